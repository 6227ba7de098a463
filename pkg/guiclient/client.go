// Package guiclient talks to a device manager instance the way the GUI does. It is used
// by the CLI and by end-to-end tests.
package guiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	comms "github.com/nats-io/nats.go"

	"github.com/morezero/device-manager/pkg/commsutil"
	"github.com/morezero/device-manager/pkg/messaging"
)

const logPrefix = "guiclient:client"

// Client sends "dm:" commands to one instance and collects the replies addressed to it.
type Client struct {
	nc      *comms.Conn
	name    string
	subject string
	sub     *comms.Subscription
	replies chan messaging.Reply
}

// NewClientParams holds the parameters for creating a Client.
type NewClientParams struct {
	Conn *comms.Conn
	// Name is the sender name replies are addressed to.
	Name string
	// Instance is the device manager instance to talk to.
	Instance string
	// Buffer is the number of replies kept until Next is called. Defaults to 64.
	Buffer int
}

// NewClient subscribes to the reply subject of params.Name.
func NewClient(params NewClientParams) (*Client, error) {
	if params.Name == "" {
		params.Name = "cli." + uuid.NewString()[:8]
	}
	if params.Buffer <= 0 {
		params.Buffer = 64
	}

	c := &Client{
		nc:      params.Conn,
		name:    params.Name,
		subject: commsutil.CommandSubject(params.Instance),
		replies: make(chan messaging.Reply, params.Buffer),
	}

	replySubject := commsutil.ReplySubject(params.Name)
	sub, err := params.Conn.Subscribe(replySubject, func(m *comms.Msg) {
		var r messaging.Reply
		if err := json.Unmarshal(m.Data, &r); err != nil {
			slog.Warn(fmt.Sprintf("%s - dropping undecodable reply: %v", logPrefix, err))
			return
		}
		select {
		case c.replies <- r:
		default:
			slog.Warn(fmt.Sprintf("%s - reply buffer full, dropping %s", logPrefix, r.Command))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("%s - failed to subscribe to %s: %w", logPrefix, replySubject, err)
	}
	// Make sure the subscription is known to the server before the first command.
	if err := params.Conn.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return nil, fmt.Errorf("%s - failed to flush: %w", logPrefix, err)
	}
	c.sub = sub
	return c, nil
}

// Name returns the sender name of the client.
func (c *Client) Name() string { return c.name }

// Send publishes a command and returns its message id, which becomes the origin of any
// conversation the command starts.
func (c *Client) Send(_ context.Context, verb string, payload interface{}) (string, error) {
	msg := messaging.Message{
		Command: messaging.CommandPrefix + verb,
		From:    c.name,
		ID:      messaging.ID(uuid.NewString()),
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return "", fmt.Errorf("%s - failed to encode %s payload: %w", logPrefix, verb, err)
		}
		msg.Message = data
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("%s - failed to encode %s: %w", logPrefix, verb, err)
	}
	if err := c.nc.Publish(c.subject, data); err != nil {
		return "", fmt.Errorf("%s - failed to publish %s: %w", logPrefix, verb, err)
	}

	slog.Debug(fmt.Sprintf("%s - Sent %s as %s", logPrefix, msg.Command, msg.ID))
	return msg.ID.String(), nil
}

// Next waits for the next reply.
func (c *Client) Next(ctx context.Context) (*messaging.Reply, error) {
	select {
	case r := <-c.replies:
		return &r, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%s - no reply: %w", logPrefix, ctx.Err())
	}
}

// Request sends a command and waits for its first reply.
func (c *Client) Request(ctx context.Context, verb string, payload interface{}) (*messaging.Reply, error) {
	if _, err := c.Send(ctx, verb, payload); err != nil {
		return nil, err
	}
	return c.Next(ctx)
}

// FollowUp answers the prompt of conversation origin. answer holds the fields the prompt
// expects, e.g. {"confirm": true} or {"data": {...}}; nil acknowledges a message or
// progress step.
func (c *Client) FollowUp(ctx context.Context, origin string, answer map[string]interface{}) (string, error) {
	payload := map[string]interface{}{}
	for k, v := range answer {
		payload[k] = v
	}
	payload["origin"] = origin
	return c.Send(ctx, "actionProgress", payload)
}

// Close unsubscribes from the reply subject.
func (c *Client) Close() error {
	if c.sub == nil {
		return nil
	}
	return c.sub.Unsubscribe()
}

// Interaction is a decoded interactive reply.
type Interaction struct {
	Type   string                     `json:"type"`
	Origin string                     `json:"origin"`
	Fields map[string]json.RawMessage `json:"-"`
}

// DecodeInteraction decodes the {type, origin, ...} envelope of an interactive reply.
func DecodeInteraction(r *messaging.Reply) (*Interaction, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(r.Message, &fields); err != nil {
		return nil, fmt.Errorf("%s - reply is not an interaction: %w", logPrefix, err)
	}
	var in Interaction
	if err := json.Unmarshal(r.Message, &in); err != nil {
		return nil, fmt.Errorf("%s - reply is not an interaction: %w", logPrefix, err)
	}
	if in.Type == "" {
		return nil, fmt.Errorf("%s - reply has no type", logPrefix)
	}
	delete(fields, "type")
	delete(fields, "origin")
	in.Fields = fields
	return &in, nil
}
