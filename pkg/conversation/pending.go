package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const pendingLogPrefix = "conversation:pending"

// Pending indexes the contexts of running interactive commands by origin so follow-ups
// can be routed back to them.
type Pending struct {
	mu       sync.Mutex
	contexts map[string]*MessageContext
}

// NewPending creates an empty Pending registry.
func NewPending() *Pending {
	return &Pending{contexts: make(map[string]*MessageContext)}
}

// Add indexes c by its origin. It returns false if the origin is already taken.
func (p *Pending) Add(c *MessageContext) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.contexts[c.Origin()]; ok {
		return false
	}
	p.contexts[c.Origin()] = c
	return true
}

// Get returns the context for origin.
func (p *Pending) Get(origin string) (*MessageContext, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.contexts[origin]
	return c, ok
}

// Remove drops the context for origin.
func (p *Pending) Remove(origin string) {
	p.mu.Lock()
	delete(p.contexts, origin)
	p.mu.Unlock()
}

// Len returns the number of indexed contexts.
func (p *Pending) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.contexts)
}

// Evict removes every context created more than olderThan ago and wakes its waiting
// prompt with ErrEvicted. It returns the number of evicted contexts.
func (p *Pending) Evict(olderThan time.Duration) int {
	cutoff := time.Now().Add(-olderThan)

	p.mu.Lock()
	var stale []*MessageContext
	for origin, c := range p.contexts {
		if !c.Created().After(cutoff) {
			stale = append(stale, c)
			delete(p.contexts, origin)
		}
	}
	p.mu.Unlock()

	for _, c := range stale {
		slog.Warn(fmt.Sprintf("%s - evicting conversation %s after %s without a result", pendingLogPrefix, c.Origin(), olderThan))
		c.evict()
	}
	return len(stale)
}

// RunSweeper evicts stale contexts every interval until ctx is done.
func (p *Pending) RunSweeper(ctx context.Context, interval, ttl time.Duration) {
	if interval <= 0 || ttl <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := p.Evict(ttl); n > 0 {
				slog.Info(fmt.Sprintf("%s - evicted %d stale conversations", pendingLogPrefix, n))
			}
		}
	}
}
