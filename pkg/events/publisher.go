package events

import "context"

// StatePublisher writes a state and notifies the GUI of the change.
type StatePublisher interface {
	PublishState(ctx context.Context, change *StateChange) error
}

// NoOpPublisher is a StatePublisher that does nothing (for in-process usage without a GUI).
type NoOpPublisher struct{}

// PublishState is a no-op.
func (p *NoOpPublisher) PublishState(_ context.Context, _ *StateChange) error {
	return nil
}

// CallbackPublisher is a StatePublisher that calls a callback function (for testing).
type CallbackPublisher struct {
	callback func(ctx context.Context, change *StateChange) error
}

// NewCallbackPublisher creates a new CallbackPublisher.
func NewCallbackPublisher(cb func(ctx context.Context, change *StateChange) error) *CallbackPublisher {
	return &CallbackPublisher{callback: cb}
}

// PublishState calls the callback.
func (p *CallbackPublisher) PublishState(ctx context.Context, change *StateChange) error {
	return p.callback(ctx, change)
}
