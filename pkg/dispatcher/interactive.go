package dispatcher

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/morezero/device-manager/pkg/conversation"
	"github.com/morezero/device-manager/pkg/descriptor"
	"github.com/morezero/device-manager/pkg/messaging"
	"github.com/morezero/device-manager/pkg/metrics"
)

const interactiveLogPrefix = "dispatcher:interactive"

// job runs one interactive command against the registry. The returned send delivers its
// terminal result.
type job func(ctx context.Context, mc *conversation.MessageContext) (failed bool, send func() error)

// prepare decodes the payload of an interactive command into the job that serves it.
func (d *Dispatcher) prepare(verb string, msg *messaging.Message) (job, error) {
	switch verb {
	case VerbInstanceAction:
		var req InstanceActionRequest
		if err := decode(verb, msg.Message, &req); err != nil {
			return nil, err
		}
		return func(ctx context.Context, mc *conversation.MessageContext) (bool, func() error) {
			result := d.registry.RunInstanceAction(ctx, req.ActionID, mc, descriptor.ActionOptions{Value: req.Value})
			return result.Error != nil, func() error { return mc.SendFinalResult(ctx, result) }
		}, nil

	case VerbDeviceAction:
		var req DeviceActionRequest
		if err := decode(verb, msg.Message, &req); err != nil {
			return nil, err
		}
		return func(ctx context.Context, mc *conversation.MessageContext) (bool, func() error) {
			result := d.registry.RunDeviceAction(ctx, req.DeviceID, req.ActionID, mc, descriptor.ActionOptions{Value: req.Value})
			return result.Error != nil, func() error { return mc.SendFinalResult(ctx, result) }
		}, nil

	case VerbDeviceControl:
		var req DeviceControlRequest
		if err := decode(verb, msg.Message, &req); err != nil {
			return nil, err
		}
		return func(ctx context.Context, mc *conversation.MessageContext) (bool, func() error) {
			result := d.registry.RunDeviceControl(ctx, req.DeviceID, req.ControlID, req.State, mc)
			return result.Error != nil, func() error { return mc.SendControlResult(ctx, req.DeviceID, req.ControlID, result) }
		}, nil

	case VerbDeviceControlState:
		var req DeviceControlStateRequest
		if err := decode(verb, msg.Message, &req); err != nil {
			return nil, err
		}
		return func(ctx context.Context, mc *conversation.MessageContext) (bool, func() error) {
			result := d.registry.ReadDeviceControlState(ctx, req.DeviceID, req.ControlID, mc)
			return result.Error != nil, func() error { return mc.SendControlResult(ctx, req.DeviceID, req.ControlID, result) }
		}, nil
	}
	return nil, fmt.Errorf("%s is not an interactive command", verb)
}

// startInteractive opens a conversation for msg and runs its job in the background. The
// conversation is unreachable by origin before the terminal result is sent.
func (d *Dispatcher) startInteractive(ctx context.Context, verb string, msg *messaging.Message) {
	run, err := d.prepare(verb, msg)
	if err != nil {
		d.replyError(ctx, verb, msg, descriptor.CodeInvalidPayload, "%v", err)
		return
	}
	if msg.ID == "" {
		d.replyError(ctx, verb, msg, descriptor.CodeInvalidPayload, "%s without message id", verb)
		return
	}

	mc := conversation.NewMessageContext(conversation.NewMessageContextParams{
		Message:            msg,
		Messenger:          d.messenger,
		InteractionTimeout: d.config.InteractionTimeout,
		OnPrompt:           func(kind conversation.Kind) { d.metrics.Interaction(string(kind)) },
	})
	if !d.pending.Add(mc) {
		d.replyError(ctx, verb, msg, descriptor.CodeInvalidPayload, "%s %s is already running", verb, msg.ID)
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		failed, send := run(ctx, mc)
		d.pending.Remove(mc.Origin())
		err := send()
		switch {
		case err != nil:
			slog.Error(fmt.Sprintf("%s - %s %s: failed to send result: %v", interactiveLogPrefix, verb, mc.Origin(), err))
			d.metrics.Command(verb, metrics.OutcomeError)
		case failed:
			d.metrics.Command(verb, metrics.OutcomeError)
		default:
			d.metrics.Command(verb, metrics.OutcomeOK)
		}
	}()
}
