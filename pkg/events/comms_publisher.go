package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/device-manager/pkg/state"
)

const commsPublisherLogPrefix = "events:comms_publisher"

// CommsPublisher stores each change and publishes it on the instance's state subject.
type CommsPublisher struct {
	nc      *comms.Conn
	store   state.Store
	subject string
}

// NewCommsPublisherParams holds the parameters for creating a CommsPublisher.
type NewCommsPublisherParams struct {
	Conn    *comms.Conn
	Store   state.Store
	Subject string
}

// NewCommsPublisher creates a new CommsPublisher.
func NewCommsPublisher(params NewCommsPublisherParams) *CommsPublisher {
	return &CommsPublisher{nc: params.Conn, store: params.Store, subject: params.Subject}
}

// PublishState writes the change to the store, then publishes it. A failed write is not
// published.
func (p *CommsPublisher) PublishState(ctx context.Context, change *StateChange) error {
	if err := p.store.Set(ctx, change.ID, change.Val, change.Ack); err != nil {
		return fmt.Errorf("%s - failed to store %s: %w", commsPublisherLogPrefix, change.ID, err)
	}
	if change.Timestamp == "" {
		change.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}

	data, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("%s - failed to encode change: %w", commsPublisherLogPrefix, err)
	}
	if err := p.nc.Publish(p.subject, data); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to publish to %s: %v", commsPublisherLogPrefix, p.subject, err))
		return err
	}

	slog.Debug(fmt.Sprintf("%s - Published state %s", commsPublisherLogPrefix, change.ID))
	return nil
}
