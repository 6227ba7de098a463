// Package events pushes state changes to the GUI: the commands written into the
// communication state and the values behind catalog controls.
package events

import (
	"encoding/json"

	"github.com/morezero/device-manager/pkg/descriptor"
)

// GUI command kinds written into the communication state.
const (
	CommandInfoUpdate   = "infoUpdate"
	CommandStatusUpdate = "statusUpdate"
	CommandDelete       = "delete"
	CommandAll          = "all"
)

// BackendToGuiCommand tells the GUI what to refresh without polling.
type BackendToGuiCommand struct {
	Command  string                     `json:"command"`
	DeviceID string                     `json:"deviceId,omitempty"`
	Info     *descriptor.WireDeviceInfo `json:"info,omitempty"`
	Status   json.RawMessage            `json:"status,omitempty"`
}

// InfoUpdate announces a new or changed device. info may be nil.
func InfoUpdate(deviceID string, info *descriptor.WireDeviceInfo) *BackendToGuiCommand {
	return &BackendToGuiCommand{Command: CommandInfoUpdate, DeviceID: deviceID, Info: info}
}

// StatusUpdate announces a changed device status. status may be nil.
func StatusUpdate(deviceID string, status json.RawMessage) *BackendToGuiCommand {
	return &BackendToGuiCommand{Command: CommandStatusUpdate, DeviceID: deviceID, Status: status}
}

// DeviceDeleted announces a removed device.
func DeviceDeleted(deviceID string) *BackendToGuiCommand {
	return &BackendToGuiCommand{Command: CommandDelete, DeviceID: deviceID}
}

// AllUpdate asks the GUI to reload every device.
func AllUpdate() *BackendToGuiCommand {
	return &BackendToGuiCommand{Command: CommandAll}
}

// StateChange is one written state as published to subscribers.
type StateChange struct {
	ID        string `json:"id"`
	Val       string `json:"val"`
	Ack       bool   `json:"ack"`
	Timestamp string `json:"ts"`
}
