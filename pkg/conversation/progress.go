package conversation

import (
	"context"
	"sync"

	"github.com/morezero/device-manager/pkg/descriptor"
)

// ProgressDialog is an open progress dialog of a MessageContext. Update keeps the reply
// channel open; Close consumes it like any other prompt.
type ProgressDialog struct {
	mc *MessageContext

	mu     sync.Mutex
	title  string
	opts   descriptor.ProgressOptions
	closed bool
}

// progressBody is the "progress" field of an open or update envelope.
type progressBody struct {
	Title         string           `json:"title"`
	Indeterminate *bool            `json:"indeterminate,omitempty"`
	Value         *float64         `json:"value,omitempty"`
	Label         *descriptor.Text `json:"label,omitempty"`
	Open          bool             `json:"open"`
}

func (d *ProgressDialog) body(open bool) progressBody {
	return progressBody{
		Title:         d.title,
		Indeterminate: d.opts.Indeterminate,
		Value:         d.opts.Value,
		Label:         d.opts.Label,
		Open:          open,
	}
}

// Update sends the open-time title and options overlaid with the set fields of update.
// Updates do not accumulate: a field set by one update and left out of the next falls
// back to its value at open time.
func (d *ProgressDialog) Update(ctx context.Context, update descriptor.ProgressUpdate) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrProgressClosed
	}
	body := d.body(true)
	d.mu.Unlock()

	if update.Title != nil {
		body.Title = *update.Title
	}
	if update.Indeterminate != nil {
		body.Indeterminate = update.Indeterminate
	}
	if update.Value != nil {
		body.Value = update.Value
	}
	if update.Label != nil {
		body.Label = update.Label
	}

	_, err := d.mc.interact(ctx, KindProgress, map[string]interface{}{"progress": body}, false, true)
	return err
}

// Close closes the dialog. Once the GUI confirms, other prompts may be shown again.
func (d *ProgressDialog) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrProgressClosed
	}
	d.mu.Unlock()

	closing := map[string]interface{}{"open": false}
	if _, err := d.mc.interact(ctx, KindProgress, map[string]interface{}{"progress": closing}, false, false); err != nil {
		return err
	}

	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	d.mc.mu.Lock()
	d.mc.progressOpen = false
	d.mc.mu.Unlock()
	return nil
}
