package descriptor

// Wire variants carry no handlers. Actions expose Disabled instead.

// WireInstanceAction is the GUI view of an InstanceAction.
type WireInstanceAction struct {
	ActionBase
	Title    Text `json:"title"`
	Disabled bool `json:"disabled"`
}

// WireDeviceAction is the GUI view of a DeviceAction.
type WireDeviceAction struct {
	ActionBase
	Disabled bool `json:"disabled"`
}

// WireDeviceControl is the GUI view of a DeviceControl.
type WireDeviceControl struct {
	ControlBase
}

// WireDeviceInfo is the GUI view of a DeviceInfo.
type WireDeviceInfo struct {
	DeviceMeta
	Actions  []WireDeviceAction  `json:"actions,omitempty"`
	Controls []WireDeviceControl `json:"controls,omitempty"`
}

// WireInstanceDetails is the GUI view of InstanceDetails.
type WireInstanceDetails struct {
	APIVersion           string               `json:"apiVersion"`
	Actions              []WireInstanceAction `json:"actions,omitempty"`
	CommunicationStateID string               `json:"communicationStateId,omitempty"`
}

// checkUnique returns a DuplicateIDError for the first id seen twice.
func checkUnique(kind string, n int, id func(i int) string) error {
	seen := make(map[string]struct{}, n)
	for i := 0; i < n; i++ {
		key := id(i)
		if _, ok := seen[key]; ok {
			return &DuplicateIDError{Kind: kind, ID: key}
		}
		seen[key] = struct{}{}
	}
	return nil
}

// ConvertInstanceActions projects instance actions to their wire form. A nil input
// yields a nil output.
func ConvertInstanceActions(actions []InstanceAction) ([]WireInstanceAction, error) {
	if actions == nil {
		return nil, nil
	}
	if err := checkUnique("Action", len(actions), func(i int) string { return actions[i].ID }); err != nil {
		return nil, err
	}
	out := make([]WireInstanceAction, len(actions))
	for i, a := range actions {
		out[i] = WireInstanceAction{ActionBase: a.ActionBase, Title: a.Title, Disabled: a.Handler == nil}
	}
	return out, nil
}

// ConvertDeviceActions projects device actions to their wire form.
func ConvertDeviceActions(actions []DeviceAction) ([]WireDeviceAction, error) {
	if actions == nil {
		return nil, nil
	}
	if err := checkUnique("Action", len(actions), func(i int) string { return actions[i].ID }); err != nil {
		return nil, err
	}
	out := make([]WireDeviceAction, len(actions))
	for i, a := range actions {
		out[i] = WireDeviceAction{ActionBase: a.ActionBase, Disabled: a.Handler == nil}
	}
	return out, nil
}

// ConvertControls projects device controls to their wire form, dropping both handlers.
func ConvertControls(controls []DeviceControl) ([]WireDeviceControl, error) {
	if controls == nil {
		return nil, nil
	}
	if err := checkUnique("Control", len(controls), func(i int) string { return controls[i].ID }); err != nil {
		return nil, err
	}
	out := make([]WireDeviceControl, len(controls))
	for i, c := range controls {
		out[i] = WireDeviceControl{ControlBase: c.ControlBase}
	}
	return out, nil
}

// ConvertDevice projects one device. Actions and controls are checked independently, so
// an action and a control may share an id.
func ConvertDevice(d DeviceInfo) (WireDeviceInfo, error) {
	actions, err := ConvertDeviceActions(d.Actions)
	if err != nil {
		return WireDeviceInfo{}, err
	}
	controls, err := ConvertControls(d.Controls)
	if err != nil {
		return WireDeviceInfo{}, err
	}
	return WireDeviceInfo{DeviceMeta: d.DeviceMeta, Actions: actions, Controls: controls}, nil
}

// ConvertDevices projects a device list, preserving order.
func ConvertDevices(devices []DeviceInfo) ([]WireDeviceInfo, error) {
	out := make([]WireDeviceInfo, 0, len(devices))
	for _, d := range devices {
		w, err := ConvertDevice(d)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, nil
}

// ConvertInstance projects the instance descriptor.
func ConvertInstance(info InstanceDetails) (WireInstanceDetails, error) {
	actions, err := ConvertInstanceActions(info.Actions)
	if err != nil {
		return WireInstanceDetails{}, err
	}
	return WireInstanceDetails{
		APIVersion:           info.APIVersion,
		Actions:              actions,
		CommunicationStateID: info.CommunicationStateID,
	}, nil
}
