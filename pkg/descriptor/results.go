package descriptor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Refresh tells the GUI what to reload after an action.
type Refresh string

const (
	RefreshNone     Refresh = ""
	RefreshAll      Refresh = "all"
	RefreshDevice   Refresh = "device"
	RefreshInstance Refresh = "instance"
)

// MarshalJSON encodes RefreshNone as false and RefreshAll as true.
func (r Refresh) MarshalJSON() ([]byte, error) {
	switch r {
	case RefreshNone:
		return []byte("false"), nil
	case RefreshAll:
		return []byte("true"), nil
	default:
		return json.Marshal(string(r))
	}
}

// UnmarshalJSON accepts booleans and the "device"/"instance" strings.
func (r *Refresh) UnmarshalJSON(data []byte) error {
	switch string(bytes.TrimSpace(data)) {
	case "false", "null":
		*r = RefreshNone
		return nil
	case "true":
		*r = RefreshAll
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("descriptor:results - invalid refresh value %s", data)
	}
	*r = Refresh(s)
	return nil
}

// ActionResult is the outcome of an instance or device action: an error or a refresh
// directive.
type ActionResult struct {
	Refresh Refresh
	Error   *ErrorDetail
}

// MarshalJSON encodes {error} or {refresh}.
func (r ActionResult) MarshalJSON() ([]byte, error) {
	if r.Error != nil {
		return json.Marshal(ErrorResponse{Error: r.Error})
	}
	return json.Marshal(struct {
		Refresh Refresh `json:"refresh"`
	}{Refresh: r.Refresh})
}

// ActionOptions carries the value the GUI collected before triggering an action.
type ActionOptions struct {
	Value json.RawMessage `json:"value,omitempty"`
}

// State is the value of a control as shown by the GUI.
type State struct {
	Val  interface{} `json:"val"`
	Ack  bool        `json:"ack,omitempty"`
	Ts   int64       `json:"ts,omitempty"`
	Lc   int64       `json:"lc,omitempty"`
	From string      `json:"from,omitempty"`
	Q    int         `json:"q,omitempty"`
}

// ControlResult is the outcome of a control write or state read: an error or a state.
type ControlResult struct {
	State *State
	Error *ErrorDetail
}

// ControlState is the raw value the GUI sends to a control: string, number, bool or null.
type ControlState struct {
	raw json.RawMessage
}

// NewControlState encodes v as a ControlState.
func NewControlState(v interface{}) (ControlState, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return ControlState{}, err
	}
	return ControlState{raw: data}, nil
}

// MarshalJSON returns the raw value, or null.
func (s ControlState) MarshalJSON() ([]byte, error) {
	if len(s.raw) == 0 {
		return []byte("null"), nil
	}
	return s.raw, nil
}

// UnmarshalJSON keeps a copy of the raw value.
func (s *ControlState) UnmarshalJSON(data []byte) error {
	s.raw = append(s.raw[:0], data...)
	return nil
}

// IsNull reports whether the value is absent or JSON null.
func (s ControlState) IsNull() bool {
	return len(s.raw) == 0 || string(bytes.TrimSpace(s.raw)) == "null"
}

// AsBool returns the value as a boolean; ok is false for non-boolean values.
func (s ControlState) AsBool() (v bool, ok bool) {
	if s.IsNull() {
		return false, false
	}
	if err := json.Unmarshal(s.raw, &v); err != nil {
		return false, false
	}
	return v, true
}

// AsFloat returns the value as a number. Numeric strings are accepted.
func (s ControlState) AsFloat() (float64, bool) {
	var f float64
	if err := json.Unmarshal(s.raw, &f); err == nil {
		return f, true
	}
	var str string
	if err := json.Unmarshal(s.raw, &str); err == nil {
		if f, err := strconv.ParseFloat(str, 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

// AsString returns the value as a string; ok is false for non-string values.
func (s ControlState) AsString() (string, bool) {
	var str string
	if err := json.Unmarshal(s.raw, &str); err != nil {
		return "", false
	}
	return str, true
}

// Value decodes the raw value into a Go value (nil for null).
func (s ControlState) Value() interface{} {
	if s.IsNull() {
		return nil
	}
	var v interface{}
	if err := json.Unmarshal(s.raw, &v); err != nil {
		return nil
	}
	return v
}
