// Package dispatcher routes device manager commands from the GUI to the registry and to
// the conversations of running interactive commands.
package dispatcher

import (
	"encoding/json"
	"fmt"

	"github.com/morezero/device-manager/pkg/descriptor"
	"github.com/morezero/device-manager/pkg/messaging"
)

// Verbs of the "dm:" protocol.
const (
	VerbInstanceInfo       = "instanceInfo"
	VerbListDevices        = "listDevices"
	VerbDeviceDetails      = "deviceDetails"
	VerbInstanceAction     = "instanceAction"
	VerbDeviceAction       = "deviceAction"
	VerbDeviceControl      = "deviceControl"
	VerbDeviceControlState = "deviceControlState"
	VerbActionProgress     = "actionProgress"
)

// InstanceActionRequest is the payload of dm:instanceAction.
type InstanceActionRequest struct {
	ActionID string          `json:"actionId"`
	Value    json.RawMessage `json:"value,omitempty"`
}

// DeviceActionRequest is the payload of dm:deviceAction.
type DeviceActionRequest struct {
	DeviceID string          `json:"deviceId"`
	ActionID string          `json:"actionId"`
	Value    json.RawMessage `json:"value,omitempty"`
}

// DeviceControlRequest is the payload of dm:deviceControl.
type DeviceControlRequest struct {
	DeviceID  string                  `json:"deviceId"`
	ControlID string                  `json:"controlId"`
	State     descriptor.ControlState `json:"state"`
}

// DeviceControlStateRequest is the payload of dm:deviceControlState.
type DeviceControlStateRequest struct {
	DeviceID  string `json:"deviceId"`
	ControlID string `json:"controlId"`
}

// ProgressRequest is the part of a dm:actionProgress payload the router reads. The rest
// is the answer to the waiting prompt.
type ProgressRequest struct {
	Origin messaging.ID `json:"origin"`
}

// decode unmarshals a command payload, naming the verb on failure.
func decode(verb string, data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return fmt.Errorf("%s payload is missing", verb)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%s payload is invalid: %w", verb, err)
	}
	return nil
}
