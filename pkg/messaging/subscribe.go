package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	comms "github.com/nats-io/nats.go"
)

const subscribeLogPrefix = "messaging:subscribe"

// HandlerFunc handles one inbound message and reports whether it was consumed.
type HandlerFunc func(ctx context.Context, msg *Message) bool

// Subscribe delivers every command published on subject to handle. A message without a
// sender is answered on its COMMS reply inbox, if any.
func Subscribe(ctx context.Context, nc *comms.Conn, subject string, handle HandlerFunc) (*comms.Subscription, error) {
	sub, err := nc.Subscribe(subject, func(m *comms.Msg) {
		var msg Message
		if err := json.Unmarshal(m.Data, &msg); err != nil {
			slog.Warn(fmt.Sprintf("%s - dropping undecodable message on %s: %v", subscribeLogPrefix, subject, err))
			return
		}
		if msg.From == "" {
			msg.From = m.Reply
		}
		if !handle(ctx, &msg) {
			slog.Debug(fmt.Sprintf("%s - %s not handled", subscribeLogPrefix, msg.Command))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("%s - failed to subscribe to %s: %w", subscribeLogPrefix, subject, err)
	}

	slog.Info(fmt.Sprintf("%s - Subscribed to %s", subscribeLogPrefix, subject))
	return sub, nil
}
