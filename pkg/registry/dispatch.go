package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/morezero/device-manager/pkg/descriptor"
)

const dispatchLogPrefix = "registry:dispatch"

// fail logs a precondition failure and returns it as a structured error.
func fail(code int, format string, args ...interface{}) *descriptor.ErrorDetail {
	e := descriptor.NewError(code, format, args...)
	slog.Warn(fmt.Sprintf("%s - %s", dispatchLogPrefix, e.Message))
	return e
}

// handlerError converts an error returned by a handler. An *ErrorDetail keeps its code.
func handlerError(err error, what string) *descriptor.ErrorDetail {
	var detail *descriptor.ErrorDetail
	if errors.As(err, &detail) {
		slog.Warn(fmt.Sprintf("%s - %s failed: %v", dispatchLogPrefix, what, err))
		return detail
	}
	slog.Error(fmt.Sprintf("%s - %s failed: %v", dispatchLogPrefix, what, err))
	return descriptor.NewError(descriptor.CodeHandlerFailed, "%s failed: %v", what, err)
}

// RunInstanceAction invokes the handler of the instance action actionID.
func (r *Registry) RunInstanceAction(ctx context.Context, actionID string, actx descriptor.ActionContext, opts descriptor.ActionOptions) descriptor.ActionResult {
	instance, _ := r.snapshot()
	if instance == nil {
		return descriptor.ActionResult{Error: fail(descriptor.CodeInstanceActionNotInitialized,
			"Instance action %s was called before getInstanceInfo()", actionID)}
	}

	var action *descriptor.InstanceAction
	for i := range instance.Actions {
		if instance.Actions[i].ID == actionID {
			action = &instance.Actions[i]
			break
		}
	}
	if action == nil {
		return descriptor.ActionResult{Error: fail(descriptor.CodeInstanceActionUnknown,
			"Instance action %s is unknown", actionID)}
	}
	if action.Handler == nil {
		return descriptor.ActionResult{Error: fail(descriptor.CodeInstanceActionNoHandler,
			"Instance action %s is disabled because it has no handler", actionID)}
	}

	refresh, err := action.Handler(ctx, actx, opts)
	if err != nil {
		return descriptor.ActionResult{Error: handlerError(err, fmt.Sprintf("Instance action %s", actionID))}
	}
	return descriptor.ActionResult{Refresh: refresh}
}

// RunDeviceAction invokes the handler of action actionID on device deviceID.
func (r *Registry) RunDeviceAction(ctx context.Context, deviceID, actionID string, actx descriptor.ActionContext, opts descriptor.ActionOptions) descriptor.ActionResult {
	_, devices := r.snapshot()
	if devices == nil {
		return descriptor.ActionResult{Error: fail(descriptor.CodeDeviceActionNotInitialized,
			"Device action %s was called before listDevices()", actionID)}
	}
	device, ok := devices[deviceID]
	if !ok {
		return descriptor.ActionResult{Error: fail(descriptor.CodeDeviceActionDeviceUnknown,
			"Device action %s was called on unknown device: %s", actionID, deviceID)}
	}

	var action *descriptor.DeviceAction
	for i := range device.Actions {
		if device.Actions[i].ID == actionID {
			action = &device.Actions[i]
			break
		}
	}
	if action == nil {
		return descriptor.ActionResult{Error: fail(descriptor.CodeDeviceActionUnknown,
			"Device action %s doesn't exist on device %s", actionID, deviceID)}
	}
	if action.Handler == nil {
		return descriptor.ActionResult{Error: fail(descriptor.CodeDeviceActionNoHandler,
			"Device action %s on %s is disabled because it has no handler", actionID, deviceID)}
	}

	refresh, err := action.Handler(ctx, deviceID, actx, opts)
	if err != nil {
		return descriptor.ActionResult{Error: handlerError(err, fmt.Sprintf("Device action %s on %s", actionID, deviceID))}
	}
	return descriptor.ActionResult{Refresh: refresh}
}

// findControl walks the control precondition chain shared by set and read. codes lists
// the not-initialized, device-unknown and control-unknown codes in that order.
func (r *Registry) findControl(deviceID, controlID, verb string, codes [3]int) (*descriptor.DeviceControl, *descriptor.ErrorDetail) {
	_, devices := r.snapshot()
	if devices == nil {
		return nil, fail(codes[0], "%s %s was called before listDevices()", verb, controlID)
	}
	device, ok := devices[deviceID]
	if !ok {
		return nil, fail(codes[1], "%s %s was called on unknown device: %s", verb, controlID, deviceID)
	}
	for i := range device.Controls {
		if device.Controls[i].ID == controlID {
			return &device.Controls[i], nil
		}
	}
	return nil, fail(codes[2], "%s %s doesn't exist on device %s", verb, controlID, deviceID)
}

// RunDeviceControl invokes the command handler of control controlID with the new state.
func (r *Registry) RunDeviceControl(ctx context.Context, deviceID, controlID string, newState descriptor.ControlState, actx descriptor.ActionContext) descriptor.ControlResult {
	control, detail := r.findControl(deviceID, controlID, "Device control", [3]int{
		descriptor.CodeDeviceControlNotInitialized,
		descriptor.CodeDeviceControlDeviceUnknown,
		descriptor.CodeDeviceControlUnknown,
	})
	if detail != nil {
		return descriptor.ControlResult{Error: detail}
	}
	if control.Handler == nil {
		return descriptor.ControlResult{Error: fail(descriptor.CodeDeviceControlNoHandler,
			"Device control %s on %s is disabled because it has no handler", controlID, deviceID)}
	}

	state, err := control.Handler(ctx, deviceID, controlID, newState, actx)
	if err != nil {
		return descriptor.ControlResult{Error: handlerError(err, fmt.Sprintf("Device control %s on %s", controlID, deviceID))}
	}
	return descriptor.ControlResult{State: state}
}

// ReadDeviceControlState invokes the state-read handler of control controlID.
func (r *Registry) ReadDeviceControlState(ctx context.Context, deviceID, controlID string, actx descriptor.ActionContext) descriptor.ControlResult {
	control, detail := r.findControl(deviceID, controlID, "Device get state", [3]int{
		descriptor.CodeDeviceGetStateNotInitialized,
		descriptor.CodeDeviceGetStateDeviceUnknown,
		descriptor.CodeDeviceGetStateUnknown,
	})
	if detail != nil {
		return descriptor.ControlResult{Error: detail}
	}
	if control.GetStateHandler == nil {
		return descriptor.ControlResult{Error: fail(descriptor.CodeDeviceGetStateNoHandler,
			"Device get state %s on %s is disabled because it has no handler", controlID, deviceID)}
	}

	state, err := control.GetStateHandler(ctx, deviceID, controlID, actx)
	if err != nil {
		return descriptor.ControlResult{Error: handlerError(err, fmt.Sprintf("Device get state %s on %s", controlID, deviceID))}
	}
	return descriptor.ControlResult{State: state}
}
