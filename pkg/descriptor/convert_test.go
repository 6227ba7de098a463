package descriptor

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

const convertTestPrefix = "descriptor:convert_test"

func noopDeviceAction(_ context.Context, _ string, _ ActionContext, _ ActionOptions) (Refresh, error) {
	return RefreshNone, nil
}

func TestConvertInstanceActions_DisabledFlag(t *testing.T) {
	actions := []InstanceAction{
		{
			ActionBase: ActionBase{ID: "rescan", Icon: "search"},
			Title:      PlainText("Rescan"),
			Handler: func(_ context.Context, _ ActionContext, _ ActionOptions) (Refresh, error) {
				return RefreshInstance, nil
			},
		},
		{ActionBase: ActionBase{ID: "reset"}, Title: PlainText("Reset")},
	}

	out, err := ConvertInstanceActions(actions)
	if err != nil {
		t.Fatalf("%s - unexpected error: %v", convertTestPrefix, err)
	}
	if len(out) != 2 {
		t.Fatalf("%s - expected 2 actions, got %d", convertTestPrefix, len(out))
	}
	if out[0].ID != "rescan" || out[0].Disabled {
		t.Errorf("%s - out[0] = %+v, want enabled rescan", convertTestPrefix, out[0])
	}
	if out[1].ID != "reset" || !out[1].Disabled {
		t.Errorf("%s - out[1] = %+v, want disabled reset", convertTestPrefix, out[1])
	}
	if out[0].Icon != "search" || out[0].Title.String() != "Rescan" {
		t.Errorf("%s - presentation fields not preserved: %+v", convertTestPrefix, out[0])
	}
}

func TestConvertInstanceActions_Nil(t *testing.T) {
	out, err := ConvertInstanceActions(nil)
	if err != nil || out != nil {
		t.Errorf("%s - ConvertInstanceActions(nil) = %v, %v; want nil, nil", convertTestPrefix, out, err)
	}
}

func TestConvert_DuplicateIDs(t *testing.T) {
	tests := []struct {
		name string
		run  func() error
		kind string
	}{
		{
			name: "instance actions",
			run: func() error {
				_, err := ConvertInstanceActions([]InstanceAction{
					{ActionBase: ActionBase{ID: "x"}},
					{ActionBase: ActionBase{ID: "x"}},
				})
				return err
			},
			kind: "Action",
		},
		{
			name: "device actions",
			run: func() error {
				_, err := ConvertDeviceActions([]DeviceAction{
					{ActionBase: ActionBase{ID: "x"}},
					{ActionBase: ActionBase{ID: "y"}},
					{ActionBase: ActionBase{ID: "x"}},
				})
				return err
			},
			kind: "Action",
		},
		{
			name: "controls",
			run: func() error {
				_, err := ConvertControls([]DeviceControl{
					{ControlBase: ControlBase{ID: "x", Type: ControlButton}},
					{ControlBase: ControlBase{ID: "x", Type: ControlSwitch}},
				})
				return err
			},
			kind: "Control",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run()
			var dup *DuplicateIDError
			if !errors.As(err, &dup) {
				t.Fatalf("%s - expected DuplicateIDError, got %v", convertTestPrefix, err)
			}
			if dup.ID != "x" || dup.Kind != tt.kind {
				t.Errorf("%s - dup = %+v, want kind %s id x", convertTestPrefix, dup, tt.kind)
			}
		})
	}
}

func TestConvertDevice_ActionAndControlMayShareID(t *testing.T) {
	d := DeviceInfo{
		DeviceMeta: DeviceMeta{ID: "dev1", Name: json.RawMessage(`"Lamp"`)},
		Actions:    []DeviceAction{{ActionBase: ActionBase{ID: "power"}, Handler: noopDeviceAction}},
		Controls:   []DeviceControl{{ControlBase: ControlBase{ID: "power", Type: ControlButton}}},
	}
	w, err := ConvertDevice(d)
	if err != nil {
		t.Fatalf("%s - unexpected error: %v", convertTestPrefix, err)
	}
	if len(w.Actions) != 1 || len(w.Controls) != 1 {
		t.Fatalf("%s - got %d actions, %d controls", convertTestPrefix, len(w.Actions), len(w.Controls))
	}
	if w.Actions[0].Disabled {
		t.Errorf("%s - action with handler must not be disabled", convertTestPrefix)
	}
}

func TestConvertDevices_NoHandlerFieldsOnWire(t *testing.T) {
	devices := []DeviceInfo{
		{
			DeviceMeta: DeviceMeta{ID: "dev1", Name: json.RawMessage(`"Lamp"`), Status: json.RawMessage(`"connected"`)},
			Actions:    []DeviceAction{{ActionBase: ActionBase{ID: "identify"}, Handler: noopDeviceAction}},
			Controls: []DeviceControl{{
				ControlBase: ControlBase{ID: "power", Type: ControlSwitch, Label: &Text{plain: "Power"}},
				Handler: func(_ context.Context, _, _ string, _ ControlState, _ ActionContext) (*State, error) {
					return &State{Val: true}, nil
				},
				GetStateHandler: func(_ context.Context, _, _ string, _ ActionContext) (*State, error) {
					return &State{Val: false}, nil
				},
			}},
		},
		{DeviceMeta: DeviceMeta{ID: "dev2", Name: json.RawMessage(`{"en":"Sensor"}`)}},
	}

	wire, err := ConvertDevices(devices)
	if err != nil {
		t.Fatalf("%s - unexpected error: %v", convertTestPrefix, err)
	}
	if len(wire) != 2 || wire[0].ID != "dev1" || wire[1].ID != "dev2" {
		t.Fatalf("%s - order not preserved: %+v", convertTestPrefix, wire)
	}

	data, err := json.Marshal(wire)
	if err != nil {
		t.Fatalf("%s - marshal failed: %v", convertTestPrefix, err)
	}
	s := string(data)
	for _, forbidden := range []string{"handler", "Handler", "getStateHandler", "GetStateHandler"} {
		if strings.Contains(s, forbidden) {
			t.Errorf("%s - wire JSON contains %q: %s", convertTestPrefix, forbidden, s)
		}
	}
	if !strings.Contains(s, `"disabled":false`) {
		t.Errorf("%s - wire JSON lacks disabled flag: %s", convertTestPrefix, s)
	}
	if !strings.Contains(s, `"label":"Power"`) {
		t.Errorf("%s - control presentation fields missing: %s", convertTestPrefix, s)
	}
}

func TestConvertInstance(t *testing.T) {
	info := InstanceDetails{
		APIVersion:           "v2",
		CommunicationStateID: "info.deviceManager",
		Actions:              []InstanceAction{{ActionBase: ActionBase{ID: "a"}, Title: PlainText("A")}},
	}
	w, err := ConvertInstance(info)
	if err != nil {
		t.Fatalf("%s - unexpected error: %v", convertTestPrefix, err)
	}
	if w.APIVersion != "v2" || w.CommunicationStateID != "info.deviceManager" {
		t.Errorf("%s - header fields = %+v", convertTestPrefix, w)
	}
	if len(w.Actions) != 1 || !w.Actions[0].Disabled {
		t.Errorf("%s - actions = %+v, want one disabled action", convertTestPrefix, w.Actions)
	}
}
