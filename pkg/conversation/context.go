// Package conversation lets one handler invocation hold a multi-step dialog with the GUI
// over a transport that allows a single reply per request. Each prompt consumes the reply
// channel of the last inbound message and waits for the follow-up that reopens it.
package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/morezero/device-manager/pkg/descriptor"
	"github.com/morezero/device-manager/pkg/messaging"
)

const logPrefix = "conversation:context"

var (
	// ErrDialogAlreadyOpen is returned when a prompt is started while a progress dialog
	// is open or another prompt is still waiting for its answer.
	ErrDialogAlreadyOpen = errors.New("can't show another dialog while a progress dialog is open, call Close() on the dialog first")
	// ErrChannelClosed is returned when the reply channel has already been consumed.
	ErrChannelClosed = errors.New("no outstanding message, can't send a new one")
	// ErrEvicted is returned to a prompt whose context was evicted while waiting.
	ErrEvicted = errors.New("conversation evicted before the GUI answered")
	// ErrProgressClosed is returned by Update or Close on a closed progress dialog.
	ErrProgressClosed = errors.New("progress dialog is already closed")
)

// Kind discriminates outbound interaction envelopes.
type Kind string

const (
	KindMessage  Kind = "message"
	KindConfirm  Kind = "confirm"
	KindForm     Kind = "form"
	KindProgress Kind = "progress"
	KindResult   Kind = "result"
)

// MessageContext is the conversation state of one interactive command, keyed by the id
// of the message that started it (the origin).
type MessageContext struct {
	origin    string
	messenger messaging.Messenger
	timeout   time.Duration
	onPrompt  func(Kind)
	created   time.Time

	mu           sync.Mutex
	last         *messaging.Message
	progressOpen bool
	resolver     chan json.RawMessage

	done     chan struct{}
	doneOnce sync.Once
}

// NewMessageContextParams holds the parameters for creating a MessageContext.
type NewMessageContextParams struct {
	Message   *messaging.Message
	Messenger messaging.Messenger
	// InteractionTimeout bounds the wait for each follow-up. Zero waits until ctx is done.
	InteractionTimeout time.Duration
	// OnPrompt, if set, is called after each prompt was sent.
	OnPrompt func(Kind)
}

// NewMessageContext creates a context whose reply channel is the given message.
func NewMessageContext(params NewMessageContextParams) *MessageContext {
	return &MessageContext{
		origin:    params.Message.ID.String(),
		messenger: params.Messenger,
		timeout:   params.InteractionTimeout,
		onPrompt:  params.OnPrompt,
		created:   time.Now(),
		last:      params.Message,
		done:      make(chan struct{}),
	}
}

// Origin returns the correlation id shared by every send of this context.
func (c *MessageContext) Origin() string { return c.origin }

// Created returns the creation time.
func (c *MessageContext) Created() time.Time { return c.created }

// IsOpen reports whether one more reply may be sent.
func (c *MessageContext) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last != nil
}

// ProgressOpen reports whether a progress dialog is open.
func (c *MessageContext) ProgressOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.progressOpen
}

// Awaiting reports whether a prompt is waiting for its follow-up.
func (c *MessageContext) Awaiting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resolver != nil
}

// evict wakes a waiting prompt with ErrEvicted. Safe to call more than once.
func (c *MessageContext) evict() {
	c.doneOnce.Do(func() { close(c.done) })
}

// sendTo publishes body as a reply to last, adding the type and origin fields.
func (c *MessageContext) sendTo(ctx context.Context, last *messaging.Message, kind Kind, body map[string]interface{}) error {
	body["type"] = kind
	body["origin"] = c.origin
	if err := c.messenger.SendTo(ctx, last.From, last.Command, body, last.Callback); err != nil {
		return fmt.Errorf("%s - failed to send %s for %s: %w", logPrefix, kind, c.origin, err)
	}
	return nil
}

// interact sends one prompt and waits for the follow-up that resolves it. checkProgress
// rejects the prompt while a progress dialog is open. keepOpen leaves the reply channel
// usable after the send.
func (c *MessageContext) interact(ctx context.Context, kind Kind, body map[string]interface{}, checkProgress, keepOpen bool) (json.RawMessage, error) {
	c.mu.Lock()
	if (checkProgress && c.progressOpen) || c.resolver != nil {
		c.mu.Unlock()
		return nil, ErrDialogAlreadyOpen
	}
	if c.last == nil {
		c.mu.Unlock()
		return nil, ErrChannelClosed
	}
	select {
	case <-c.done:
		c.mu.Unlock()
		return nil, ErrEvicted
	default:
	}
	ch := make(chan json.RawMessage, 1)
	c.resolver = ch
	last := c.last
	if !keepOpen {
		c.last = nil
	}
	c.mu.Unlock()

	release := func() {
		c.mu.Lock()
		if c.resolver == ch {
			c.resolver = nil
		}
		c.mu.Unlock()
	}

	if err := c.sendTo(ctx, last, kind, body); err != nil {
		release()
		return nil, err
	}
	if c.onPrompt != nil {
		c.onPrompt(kind)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	select {
	case reply := <-ch:
		return reply, nil
	case <-ctx.Done():
		release()
		slog.Warn(fmt.Sprintf("%s - %s for %s was not answered: %v", logPrefix, kind, c.origin, ctx.Err()))
		return nil, ctx.Err()
	case <-c.done:
		release()
		return nil, ErrEvicted
	}
}

// HandleProgress resolves the waiting prompt with a follow-up message. It returns false
// and leaves the context untouched when no prompt is waiting or the payload is a plain
// string, which is the echoed request rather than an answer.
func (c *MessageContext) HandleProgress(msg *messaging.Message) bool {
	c.mu.Lock()
	ch := c.resolver
	if ch == nil || msg.IsPlainString() {
		c.mu.Unlock()
		return false
	}
	c.resolver = nil
	c.last = msg
	c.mu.Unlock()

	ch <- msg.Message
	return true
}

// ShowMessage shows text and waits until the user dismisses it.
func (c *MessageContext) ShowMessage(ctx context.Context, text descriptor.Text) error {
	_, err := c.interact(ctx, KindMessage, map[string]interface{}{"message": text}, true, false)
	return err
}

// ShowConfirmation asks a yes/no question.
func (c *MessageContext) ShowConfirmation(ctx context.Context, text descriptor.Text) (bool, error) {
	reply, err := c.interact(ctx, KindConfirm, map[string]interface{}{"confirm": text}, true, false)
	if err != nil {
		return false, err
	}
	if len(reply) == 0 {
		return false, nil
	}
	var answer struct {
		Confirm interface{} `json:"confirm"`
	}
	if err := json.Unmarshal(reply, &answer); err != nil {
		return false, fmt.Errorf("%s - invalid confirmation answer: %w", logPrefix, err)
	}
	return truthy(answer.Confirm), nil
}

// ShowForm shows a form and returns the data the user entered. A cancelled form yields
// nil data.
func (c *MessageContext) ShowForm(ctx context.Context, schema json.RawMessage, opts descriptor.FormOptions) (json.RawMessage, error) {
	form := map[string]interface{}{"schema": schema}
	if len(opts.Data) > 0 {
		form["data"] = opts.Data
	}
	if opts.Title != nil {
		form["title"] = opts.Title
	}
	if len(opts.Buttons) > 0 {
		form["buttons"] = opts.Buttons
	}

	reply, err := c.interact(ctx, KindForm, map[string]interface{}{"form": form}, true, false)
	if err != nil {
		return nil, err
	}
	if len(reply) == 0 {
		return nil, nil
	}
	var answer struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(reply, &answer); err != nil {
		return nil, fmt.Errorf("%s - invalid form answer: %w", logPrefix, err)
	}
	if string(answer.Data) == "null" {
		return nil, nil
	}
	return answer.Data, nil
}

// OpenProgress opens a progress dialog. No other prompt may be shown until it is closed.
func (c *MessageContext) OpenProgress(ctx context.Context, title string, opts descriptor.ProgressOptions) (descriptor.ProgressDialog, error) {
	c.mu.Lock()
	if c.progressOpen {
		c.mu.Unlock()
		return nil, ErrDialogAlreadyOpen
	}
	c.progressOpen = true
	c.mu.Unlock()

	d := &ProgressDialog{mc: c, title: title, opts: opts}
	if _, err := c.interact(ctx, KindProgress, map[string]interface{}{"progress": d.body(true)}, false, true); err != nil {
		c.mu.Lock()
		c.progressOpen = false
		c.mu.Unlock()
		return nil, err
	}
	return d, nil
}

// SendFinalResult sends the terminal result of an action and closes the channel.
func (c *MessageContext) SendFinalResult(ctx context.Context, result descriptor.ActionResult) error {
	return c.sendTerminal(ctx, result)
}

// SendControlResult sends the terminal result of a control write or read.
func (c *MessageContext) SendControlResult(ctx context.Context, deviceID, controlID string, result descriptor.ControlResult) error {
	body := map[string]interface{}{"deviceId": deviceID, "controlId": controlID}
	if result.Error != nil {
		body["error"] = result.Error
	} else {
		body["state"] = result.State
	}
	return c.sendTerminal(ctx, body)
}

func (c *MessageContext) sendTerminal(ctx context.Context, result interface{}) error {
	c.mu.Lock()
	last := c.last
	c.last = nil
	c.mu.Unlock()

	if last == nil {
		return ErrChannelClosed
	}
	return c.sendTo(ctx, last, KindResult, map[string]interface{}{"result": result})
}

// truthy mirrors how the GUI encodes a confirmation: any non-empty, non-zero value.
func truthy(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != ""
	default:
		return true
	}
}
