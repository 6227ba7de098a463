package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/device-manager/pkg/commsutil"
)

const logPrefix = "messaging:messenger"

// Messenger sends one reply to a recipient. Delivery is fire-and-forget, at most once per
// call.
type Messenger interface {
	SendTo(ctx context.Context, recipient, command string, payload interface{}, callback json.RawMessage) error
}

// encodeReply builds the JSON reply envelope.
func encodeReply(from, command string, payload interface{}, callback json.RawMessage) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to encode payload: %w", logPrefix, err)
	}
	data, err := json.Marshal(Reply{Command: command, Message: body, From: from, Callback: callback})
	if err != nil {
		return nil, fmt.Errorf("%s - failed to encode reply: %w", logPrefix, err)
	}
	return data, nil
}

// CommsMessenger publishes replies on the recipient's reply subject.
type CommsMessenger struct {
	nc   *comms.Conn
	from string
}

// NewCommsMessenger creates a CommsMessenger. from is stamped on every reply.
func NewCommsMessenger(nc *comms.Conn, from string) *CommsMessenger {
	return &CommsMessenger{nc: nc, from: from}
}

// SendTo encodes the reply and publishes it.
func (m *CommsMessenger) SendTo(_ context.Context, recipient, command string, payload interface{}, callback json.RawMessage) error {
	if recipient == "" {
		return fmt.Errorf("%s - no recipient for %s", logPrefix, command)
	}
	data, err := encodeReply(m.from, command, payload, callback)
	if err != nil {
		return err
	}

	subject := commsutil.ReplySubject(recipient)
	if err := m.nc.Publish(subject, data); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to publish to %s: %v", logPrefix, subject, err))
		return fmt.Errorf("%s - failed to publish to %s: %w", logPrefix, subject, err)
	}

	slog.Debug(fmt.Sprintf("%s - Sent %s to %s", logPrefix, command, subject))
	return nil
}

// Sent is one reply captured by CallbackMessenger.
type Sent struct {
	Recipient string
	Command   string
	Payload   json.RawMessage
	Callback  json.RawMessage
}

// CallbackMessenger is a Messenger that hands every reply to a callback (for testing and
// in-process hosts).
type CallbackMessenger struct {
	callback func(ctx context.Context, sent Sent) error
}

// NewCallbackMessenger creates a new CallbackMessenger.
func NewCallbackMessenger(cb func(ctx context.Context, sent Sent) error) *CallbackMessenger {
	return &CallbackMessenger{callback: cb}
}

// SendTo encodes the payload and calls the callback.
func (m *CallbackMessenger) SendTo(ctx context.Context, recipient, command string, payload interface{}, callback json.RawMessage) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%s - failed to encode payload: %w", logPrefix, err)
	}
	return m.callback(ctx, Sent{Recipient: recipient, Command: command, Payload: body, Callback: callback})
}
