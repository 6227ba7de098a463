package descriptor

import (
	"context"
	"encoding/json"
)

// Reserved action ids with a predefined appearance in the GUI.
const (
	// ActionStatus is called when the user clicks on the connection icon.
	ActionStatus = "status"
	// ActionEnableDisable is called when the user clicks on the enabled/disabled icon.
	ActionEnableDisable = "enable/disable"
)

// ControlType is the kind of affordance a control renders as.
type ControlType string

const (
	ControlButton ControlType = "button"
	ControlSwitch ControlType = "switch"
	ControlSlider ControlType = "slider"
	ControlSelect ControlType = "select"
	ControlIcon   ControlType = "icon"
	ControlColor  ControlType = "color"
	ControlText   ControlType = "text"
	ControlNumber ControlType = "number"
	ControlInfo   ControlType = "info"
)

// ActionContext lets a handler talk to the user while it runs. Every call is a full
// round trip to the GUI and blocks until the GUI answers or ctx is done.
type ActionContext interface {
	ShowMessage(ctx context.Context, text Text) error
	ShowConfirmation(ctx context.Context, text Text) (bool, error)
	ShowForm(ctx context.Context, schema json.RawMessage, opts FormOptions) (json.RawMessage, error)
	OpenProgress(ctx context.Context, title string, opts ProgressOptions) (ProgressDialog, error)
}

// ProgressDialog is an open progress dialog. Update and Close are round trips as well.
type ProgressDialog interface {
	Update(ctx context.Context, update ProgressUpdate) error
	Close(ctx context.Context) error
}

// FormOptions are the optional parts of a form prompt.
type FormOptions struct {
	Data    json.RawMessage `json:"data,omitempty"`
	Title   *Text           `json:"title,omitempty"`
	Buttons []interface{}   `json:"buttons,omitempty"`
}

// ProgressOptions are the initial settings of a progress dialog.
type ProgressOptions struct {
	Indeterminate *bool    `json:"indeterminate,omitempty"`
	Value         *float64 `json:"value,omitempty"`
	Label         *Text    `json:"label,omitempty"`
}

// ProgressUpdate changes some settings of an open progress dialog.
type ProgressUpdate struct {
	Title         *string  `json:"title,omitempty"`
	Indeterminate *bool    `json:"indeterminate,omitempty"`
	Value         *float64 `json:"value,omitempty"`
	Label         *Text    `json:"label,omitempty"`
}

// Handler signatures. A returned error becomes a structured error result; returning an
// *ErrorDetail selects the code.
type (
	InstanceActionHandler func(ctx context.Context, actx ActionContext, opts ActionOptions) (Refresh, error)
	DeviceActionHandler   func(ctx context.Context, deviceID string, actx ActionContext, opts ActionOptions) (Refresh, error)
	ControlHandler        func(ctx context.Context, deviceID, controlID string, state ControlState, actx ActionContext) (*State, error)
	ControlStateHandler   func(ctx context.Context, deviceID, controlID string, actx ActionContext) (*State, error)
)

// InputBefore asks the GUI to collect a value before the action is triggered.
type InputBefore struct {
	Label           Text          `json:"label"`
	Type            string        `json:"type,omitempty"`
	Options         []InputOption `json:"options,omitempty"`
	DefaultValue    interface{}   `json:"defaultValue,omitempty"`
	AllowEmptyValue bool          `json:"allowEmptyValue,omitempty"`
	Min             *float64      `json:"min,omitempty"`
	Max             *float64      `json:"max,omitempty"`
	Step            *float64      `json:"step,omitempty"`
}

// InputOption is one choice of a select input.
type InputOption struct {
	Label Text   `json:"label"`
	Value string `json:"value"`
}

// ActionBase holds the presentation fields shared by instance and device actions.
type ActionBase struct {
	ID              string `json:"id"`
	Icon            string `json:"icon,omitempty"`
	Description     *Text  `json:"description,omitempty"`
	Color           string `json:"color,omitempty"`
	BackgroundColor string `json:"backgroundColor,omitempty"`
	// Confirmation is true or a text shown in the confirmation dialog.
	Confirmation interface{}  `json:"confirmation,omitempty"`
	InputBefore  *InputBefore `json:"inputBefore,omitempty"`
	// Timeout in ms the GUI waits for an answer. Advisory only.
	Timeout int `json:"timeout,omitempty"`
}

// InstanceAction is an action on the whole backend instance.
type InstanceAction struct {
	ActionBase
	Title   Text                  `json:"title"`
	Handler InstanceActionHandler `json:"-"`
}

// DeviceAction is an action on a single device.
type DeviceAction struct {
	ActionBase
	Handler DeviceActionHandler `json:"-"`
}

// ChannelInfo groups controls of a device card.
type ChannelInfo struct {
	Name            Text   `json:"name"`
	Description     *Text  `json:"description,omitempty"`
	Icon            string `json:"icon,omitempty"`
	Color           string `json:"color,omitempty"`
	BackgroundColor string `json:"backgroundColor,omitempty"`
	Order           int    `json:"order,omitempty"`
}

// ControlOption is one choice of a select control.
type ControlOption struct {
	Label Text         `json:"label"`
	Value ControlState `json:"value"`
	Icon  string       `json:"icon,omitempty"`
	Color string       `json:"color,omitempty"`
}

// ControlBase holds the presentation fields of a control.
type ControlBase struct {
	ID           string          `json:"id"`
	Type         ControlType     `json:"type"`
	State        *State          `json:"state,omitempty"`
	StateID      string          `json:"stateId,omitempty"`
	Icon         string          `json:"icon,omitempty"`
	IconOn       string          `json:"iconOn,omitempty"`
	Min          *float64        `json:"min,omitempty"`
	Max          *float64        `json:"max,omitempty"`
	Step         *float64        `json:"step,omitempty"`
	Unit         string          `json:"unit,omitempty"`
	Label        *Text           `json:"label,omitempty"`
	LabelOn      *Text           `json:"labelOn,omitempty"`
	Description  *Text           `json:"description,omitempty"`
	Color        string          `json:"color,omitempty"`
	ColorOn      string          `json:"colorOn,omitempty"`
	ControlDelay int             `json:"controlDelay,omitempty"`
	Options      []ControlOption `json:"options,omitempty"`
	Channel      *ChannelInfo    `json:"channel,omitempty"`
}

// DeviceControl is a stateful affordance of a device.
type DeviceControl struct {
	ControlBase
	Handler         ControlHandler      `json:"-"`
	GetStateHandler ControlStateHandler `json:"-"`
}

// Group places a device in a (slash separated) group of the device list.
type Group struct {
	Key  string `json:"key"`
	Name *Text  `json:"name,omitempty"`
	Icon string `json:"icon,omitempty"`
}

// DeviceMeta holds the display metadata of a device. Fields that may be a literal, a
// state reference or a translated object are passed through as raw JSON.
type DeviceMeta struct {
	ID              string          `json:"id"`
	Name            json.RawMessage `json:"name"`
	Icon            json.RawMessage `json:"icon,omitempty"`
	Manufacturer    json.RawMessage `json:"manufacturer,omitempty"`
	Model           json.RawMessage `json:"model,omitempty"`
	Color           json.RawMessage `json:"color,omitempty"`
	BackgroundColor json.RawMessage `json:"backgroundColor,omitempty"`
	// Status is "connected", "disconnected", a status object or a list of them.
	Status         json.RawMessage `json:"status,omitempty"`
	ConnectionType json.RawMessage `json:"connectionType,omitempty"`
	Enabled        json.RawMessage `json:"enabled,omitempty"`
	HasDetails     json.RawMessage `json:"hasDetails,omitempty"`
	Group          *Group          `json:"group,omitempty"`
}

// DeviceInfo is the internal descriptor of one device.
type DeviceInfo struct {
	DeviceMeta
	Actions  []DeviceAction  `json:"actions,omitempty"`
	Controls []DeviceControl `json:"controls,omitempty"`
}

// InstanceDetails is the internal descriptor of the backend instance.
type InstanceDetails struct {
	APIVersion           string           `json:"apiVersion"`
	Actions              []InstanceAction `json:"actions,omitempty"`
	CommunicationStateID string           `json:"communicationStateId,omitempty"`
}

// DeviceDetails is the detail form of one device.
type DeviceDetails struct {
	ID     string          `json:"id"`
	Schema json.RawMessage `json:"schema"`
	Data   json.RawMessage `json:"data,omitempty"`
}
