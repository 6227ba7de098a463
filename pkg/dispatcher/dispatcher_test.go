package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/morezero/device-manager/pkg/descriptor"
	"github.com/morezero/device-manager/pkg/events"
	"github.com/morezero/device-manager/pkg/messaging"
)

const testPrefix = "dispatcher:dispatcher_test"

type staticProvider struct {
	info    *descriptor.InstanceDetails
	devices []descriptor.DeviceInfo
	err     error
}

func (p *staticProvider) ListDevices(_ context.Context) ([]descriptor.DeviceInfo, error) {
	return p.devices, p.err
}

type instanceProvider struct {
	staticProvider
}

func (p *instanceProvider) GetInstanceInfo(_ context.Context) (descriptor.InstanceDetails, error) {
	return *p.info, nil
}

type outbox struct {
	ch chan messaging.Sent
}

func newOutbox() *outbox {
	return &outbox{ch: make(chan messaging.Sent, 32)}
}

func (o *outbox) messenger() messaging.Messenger {
	return messaging.NewCallbackMessenger(func(_ context.Context, s messaging.Sent) error {
		o.ch <- s
		return nil
	})
}

func (o *outbox) next(t *testing.T) messaging.Sent {
	t.Helper()
	select {
	case s := <-o.ch:
		return s
	case <-time.After(5 * time.Second):
		t.Fatalf("%s - timed out waiting for a reply", testPrefix)
		return messaging.Sent{}
	}
}

func (o *outbox) empty(t *testing.T) {
	t.Helper()
	select {
	case s := <-o.ch:
		t.Fatalf("%s - unexpected reply %s", testPrefix, s.Payload)
	default:
	}
}

func decodeMap(t *testing.T, s messaging.Sent) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	if err := json.Unmarshal(s.Payload, &m); err != nil {
		t.Fatalf("%s - undecodable payload %s: %v", testPrefix, s.Payload, err)
	}
	return m
}

func command(verb, id, payload string) *messaging.Message {
	msg := &messaging.Message{Command: "dm:" + verb, From: "system.adapter.admin.0", ID: messaging.ID(id)}
	if payload != "" {
		msg.Message = json.RawMessage(payload)
	}
	return msg
}

func powerDevice() descriptor.DeviceInfo {
	return descriptor.DeviceInfo{
		DeviceMeta: descriptor.DeviceMeta{ID: "dev1", Name: json.RawMessage(`"Lamp"`)},
		Controls: []descriptor.DeviceControl{{
			ControlBase: descriptor.ControlBase{ID: "power", Type: descriptor.ControlButton},
			Handler: func(_ context.Context, _, _ string, _ descriptor.ControlState, _ descriptor.ActionContext) (*descriptor.State, error) {
				return &descriptor.State{Val: true}, nil
			},
		}},
	}
}

func newTestDispatcher(p Provider, out *outbox) *Dispatcher {
	cfg := DefaultConfig()
	cfg.InteractionTimeout = 5 * time.Second
	return NewDispatcher(NewDispatcherParams{
		Provider:  p,
		Messenger: out.messenger(),
		Config:    cfg,
	})
}

func TestHandle_IgnoresForeignCommands(t *testing.T) {
	out := newOutbox()
	d := newTestDispatcher(&staticProvider{}, out)

	for _, cmd := range []string{"getObjects", "dmx:listDevices", ""} {
		if d.Handle(context.Background(), &messaging.Message{Command: cmd}) {
			t.Errorf("%s - Handle(%q) = true, want false", testPrefix, cmd)
		}
	}
	if !d.Handle(context.Background(), command("bogus", "1", "")) {
		t.Errorf("%s - unknown dm: verb not consumed", testPrefix)
	}
	out.empty(t)
}

func TestHandle_InstanceInfoDefault(t *testing.T) {
	out := newOutbox()
	d := newTestDispatcher(&staticProvider{}, out)

	d.Handle(context.Background(), command(VerbInstanceInfo, "1", ""))
	s := out.next(t)
	if s.Recipient != "system.adapter.admin.0" || s.Command != "dm:instanceInfo" {
		t.Errorf("%s - reply routed to %s/%s", testPrefix, s.Recipient, s.Command)
	}
	body := decodeMap(t, s)
	if body["apiVersion"] != "v2" || body["communicationStateId"] != "info.deviceManager" {
		t.Errorf("%s - instance info = %v", testPrefix, body)
	}
	if d.Registry().InstanceInfo() == nil {
		t.Errorf("%s - instance info not recorded", testPrefix)
	}
}

func TestHandle_InstanceInfoUnsupportedVersion(t *testing.T) {
	out := newOutbox()
	p := &instanceProvider{staticProvider{info: &descriptor.InstanceDetails{APIVersion: "v7"}}}
	d := newTestDispatcher(p, out)

	d.Handle(context.Background(), command(VerbInstanceInfo, "1", ""))
	body := decodeMap(t, out.next(t))
	e, _ := body["error"].(map[string]interface{})
	if e == nil || e["code"] != float64(descriptor.CodeInternal) {
		t.Errorf("%s - reply = %v, want error %d", testPrefix, body, descriptor.CodeInternal)
	}
	if d.Registry().InstanceInfo() != nil {
		t.Errorf("%s - unsupported instance info recorded", testPrefix)
	}
}

func TestHandle_ListDevicesSendsListThenMap(t *testing.T) {
	out := newOutbox()
	d := newTestDispatcher(&staticProvider{devices: []descriptor.DeviceInfo{powerDevice()}}, out)

	d.Handle(context.Background(), command(VerbListDevices, "1", ""))

	var list []map[string]interface{}
	if err := json.Unmarshal(out.next(t).Payload, &list); err != nil {
		t.Fatalf("%s - first reply is not a list: %v", testPrefix, err)
	}
	if len(list) != 1 || list[0]["id"] != "dev1" {
		t.Fatalf("%s - list = %v", testPrefix, list)
	}
	controls, _ := list[0]["controls"].([]interface{})
	if len(controls) != 1 {
		t.Fatalf("%s - controls = %v", testPrefix, list[0]["controls"])
	}
	if c := controls[0].(map[string]interface{}); c["id"] != "power" || c["type"] != "button" {
		t.Errorf("%s - wire control = %v", testPrefix, c)
	}

	raw := decodeMap(t, out.next(t))
	if _, ok := raw["dev1"]; !ok || len(raw) != 1 {
		t.Errorf("%s - raw map = %v", testPrefix, raw)
	}
	if ids := d.Registry().DeviceIDs(); len(ids) != 1 || ids[0] != "dev1" {
		t.Errorf("%s - registry ids = %v", testPrefix, ids)
	}
}

func TestHandle_ListDevicesDuplicateIsFatal(t *testing.T) {
	out := newOutbox()
	var fatal error
	d := NewDispatcher(NewDispatcherParams{
		Provider:  &staticProvider{devices: []descriptor.DeviceInfo{powerDevice(), powerDevice()}},
		Messenger: out.messenger(),
		Config:    DefaultConfig(),
		OnFatal:   func(err error) { fatal = err },
	})

	d.Handle(context.Background(), command(VerbListDevices, "1", ""))
	if fatal == nil {
		t.Fatalf("%s - OnFatal not called for a duplicate device id", testPrefix)
	}
	out.empty(t)
	if len(d.Registry().Devices()) != 0 {
		t.Errorf("%s - duplicate list recorded", testPrefix)
	}
}

func TestHandle_ListDevicesProviderError(t *testing.T) {
	out := newOutbox()
	d := newTestDispatcher(&staticProvider{err: errors.New("bus down")}, out)

	d.Handle(context.Background(), command(VerbListDevices, "1", ""))
	body := decodeMap(t, out.next(t))
	if _, ok := body["error"]; !ok {
		t.Errorf("%s - reply = %v, want error", testPrefix, body)
	}
	out.empty(t)
}

func TestHandle_DeviceDetails(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		wantCode float64
	}{
		{name: "string id", payload: `"dev1"`},
		{name: "object payload", payload: `{"id":"dev1"}`, wantCode: descriptor.CodeInvalidPayload},
		{name: "missing payload", payload: "", wantCode: descriptor.CodeInvalidPayload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := newOutbox()
			d := newTestDispatcher(&staticProvider{}, out)
			d.Handle(context.Background(), command(VerbDeviceDetails, "1", tt.payload))
			body := decodeMap(t, out.next(t))

			if tt.wantCode != 0 {
				e, _ := body["error"].(map[string]interface{})
				if e == nil || e["code"] != tt.wantCode {
					t.Errorf("%s - reply = %v, want code %v", testPrefix, body, tt.wantCode)
				}
				return
			}
			if body["id"] != "dev1" {
				t.Errorf("%s - details = %v", testPrefix, body)
			}
			if schema, ok := body["schema"].(map[string]interface{}); !ok || len(schema) != 0 {
				t.Errorf("%s - schema = %v, want {}", testPrefix, body["schema"])
			}
		})
	}
}

func TestHandle_DeviceControlEndToEnd(t *testing.T) {
	out := newOutbox()
	d := newTestDispatcher(&staticProvider{devices: []descriptor.DeviceInfo{powerDevice()}}, out)
	ctx := context.Background()

	d.Handle(ctx, command(VerbListDevices, "1", ""))
	out.next(t)
	out.next(t)

	d.Handle(ctx, command(VerbDeviceControl, "7", `{"deviceId":"dev1","controlId":"power","state":true}`))
	d.Wait()

	got := string(out.next(t).Payload)
	want := `{"origin":"7","result":{"controlId":"power","deviceId":"dev1","state":{"val":true}},"type":"result"}`
	if got != want {
		t.Errorf("%s - result = %s, want %s", testPrefix, got, want)
	}
	if d.Pending().Len() != 0 {
		t.Errorf("%s - conversation left pending", testPrefix)
	}
}

func TestHandle_InteractiveErrors(t *testing.T) {
	tests := []struct {
		name     string
		listed   bool
		verb     string
		payload  string
		wantCode float64
	}{
		{name: "control before listDevices", verb: VerbDeviceControl, payload: `{"deviceId":"dev1","controlId":"power","state":true}`, wantCode: descriptor.CodeDeviceControlNotInitialized},
		{name: "unknown control", listed: true, verb: VerbDeviceControl, payload: `{"deviceId":"dev1","controlId":"dim","state":1}`, wantCode: descriptor.CodeDeviceControlUnknown},
		{name: "unknown device", listed: true, verb: VerbDeviceControlState, payload: `{"deviceId":"dev9","controlId":"power"}`, wantCode: descriptor.CodeDeviceGetStateDeviceUnknown},
		{name: "action before listDevices", verb: VerbDeviceAction, payload: `{"deviceId":"dev1","actionId":"x"}`, wantCode: descriptor.CodeDeviceActionNotInitialized},
		{name: "instance action before instanceInfo", verb: VerbInstanceAction, payload: `{"actionId":"x"}`, wantCode: descriptor.CodeInstanceActionNotInitialized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := newOutbox()
			d := newTestDispatcher(&staticProvider{devices: []descriptor.DeviceInfo{powerDevice()}}, out)
			ctx := context.Background()
			if tt.listed {
				d.Handle(ctx, command(VerbListDevices, "1", ""))
				out.next(t)
				out.next(t)
			}

			d.Handle(ctx, command(tt.verb, "7", tt.payload))
			d.Wait()

			body := decodeMap(t, out.next(t))
			if body["type"] != "result" || body["origin"] != "7" {
				t.Fatalf("%s - envelope = %v", testPrefix, body)
			}
			result, _ := body["result"].(map[string]interface{})
			e, _ := result["error"].(map[string]interface{})
			if e == nil || e["code"] != tt.wantCode {
				t.Errorf("%s - result = %v, want code %v", testPrefix, result, tt.wantCode)
			}
			if _, ok := result["state"]; ok {
				t.Errorf("%s - error result carries a state", testPrefix)
			}
		})
	}
}

func TestHandle_MalformedInteractivePayload(t *testing.T) {
	out := newOutbox()
	d := newTestDispatcher(&staticProvider{}, out)

	d.Handle(context.Background(), command(VerbDeviceControl, "7", `[1,2]`))
	d.Wait()

	body := decodeMap(t, out.next(t))
	e, _ := body["error"].(map[string]interface{})
	if e == nil || e["code"] != float64(descriptor.CodeInvalidPayload) {
		t.Errorf("%s - reply = %v", testPrefix, body)
	}
	if d.Pending().Len() != 0 {
		t.Errorf("%s - conversation opened for a malformed payload", testPrefix)
	}
}

func TestHandle_UnknownOrigin(t *testing.T) {
	out := newOutbox()
	d := newTestDispatcher(&staticProvider{}, out)

	d.Handle(context.Background(), command(VerbActionProgress, "8", `{"origin":"404"}`))
	s := out.next(t)
	want := `{"error":{"code":501,"message":"Unknown action origin"}}`
	if string(s.Payload) != want {
		t.Errorf("%s - reply = %s, want %s", testPrefix, s.Payload, want)
	}
}

func TestHandle_ConfirmationRoundTrip(t *testing.T) {
	tests := []struct {
		name        string
		answer      string
		wantRefresh interface{}
	}{
		{name: "confirmed", answer: `true`, wantRefresh: "device"},
		{name: "declined", answer: `false`, wantRefresh: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := powerDevice()
			dev.Actions = []descriptor.DeviceAction{{
				ActionBase: descriptor.ActionBase{ID: "reset"},
				Handler: func(ctx context.Context, _ string, actx descriptor.ActionContext, _ descriptor.ActionOptions) (descriptor.Refresh, error) {
					ok, err := actx.ShowConfirmation(ctx, descriptor.PlainText("Reset?"))
					if err != nil || !ok {
						return descriptor.RefreshNone, err
					}
					return descriptor.RefreshDevice, nil
				},
			}}

			out := newOutbox()
			d := newTestDispatcher(&staticProvider{devices: []descriptor.DeviceInfo{dev}}, out)
			ctx := context.Background()
			d.Handle(ctx, command(VerbListDevices, "1", ""))
			out.next(t)
			out.next(t)

			d.Handle(ctx, command(VerbDeviceAction, "7", `{"deviceId":"dev1","actionId":"reset"}`))
			prompt := decodeMap(t, out.next(t))
			if prompt["type"] != "confirm" || prompt["origin"] != "7" || prompt["confirm"] != "Reset?" {
				t.Fatalf("%s - prompt = %v", testPrefix, prompt)
			}

			// The echoed request is not an answer.
			d.Handle(ctx, command(VerbActionProgress, "8", `"7"`))
			d.Handle(ctx, command(VerbActionProgress, "9", `{"origin":"7","confirm":`+tt.answer+`}`))
			d.Wait()

			final := decodeMap(t, out.next(t))
			result, _ := final["result"].(map[string]interface{})
			if final["type"] != "result" || result["refresh"] != tt.wantRefresh {
				t.Errorf("%s - final = %v, want refresh %v", testPrefix, final, tt.wantRefresh)
			}
			out.empty(t)
		})
	}
}

// envelope decodes a raw inbound command the way the subscription does.
func envelope(t *testing.T, raw string) *messaging.Message {
	t.Helper()
	var msg messaging.Message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		t.Fatalf("%s - undecodable envelope %s: %v", testPrefix, raw, err)
	}
	return &msg
}

func TestHandle_NumericIDs(t *testing.T) {
	dev := powerDevice()
	dev.Actions = []descriptor.DeviceAction{{
		ActionBase: descriptor.ActionBase{ID: "reset"},
		Handler: func(ctx context.Context, _ string, actx descriptor.ActionContext, _ descriptor.ActionOptions) (descriptor.Refresh, error) {
			ok, err := actx.ShowConfirmation(ctx, descriptor.PlainText("Reset?"))
			if err != nil || !ok {
				return descriptor.RefreshNone, err
			}
			return descriptor.RefreshDevice, nil
		},
	}}

	out := newOutbox()
	d := newTestDispatcher(&staticProvider{devices: []descriptor.DeviceInfo{dev}}, out)
	ctx := context.Background()
	d.Handle(ctx, envelope(t, `{"command":"dm:listDevices","from":"admin.0","_id":1}`))
	out.next(t)
	out.next(t)

	d.Handle(ctx, envelope(t, `{"command":"dm:deviceAction","message":{"deviceId":"dev1","actionId":"reset"},"from":"admin.0","_id":42}`))
	prompt := decodeMap(t, out.next(t))
	if prompt["type"] != "confirm" || prompt["origin"] != "42" {
		t.Fatalf("%s - prompt = %v, want confirm for origin 42", testPrefix, prompt)
	}

	d.Handle(ctx, envelope(t, `{"command":"dm:actionProgress","message":{"origin":42,"confirm":true},"from":"admin.0","_id":43}`))
	d.Wait()

	final := decodeMap(t, out.next(t))
	result, _ := final["result"].(map[string]interface{})
	if final["type"] != "result" || final["origin"] != "42" || result["refresh"] != "device" {
		t.Errorf("%s - final = %v, want device refresh for origin 42", testPrefix, final)
	}
	if d.Pending().Len() != 0 {
		t.Errorf("%s - Pending().Len() = %d, want 0", testPrefix, d.Pending().Len())
	}
	out.empty(t)
}

func TestHandle_CancelAbortsWaitingConversation(t *testing.T) {
	dev := powerDevice()
	handlerErr := make(chan error, 1)
	dev.Actions = []descriptor.DeviceAction{{
		ActionBase: descriptor.ActionBase{ID: "reset"},
		Handler: func(ctx context.Context, _ string, actx descriptor.ActionContext, _ descriptor.ActionOptions) (descriptor.Refresh, error) {
			_, err := actx.ShowConfirmation(ctx, descriptor.PlainText("Reset?"))
			handlerErr <- err
			return descriptor.RefreshNone, err
		},
	}}

	out := newOutbox()
	d := newTestDispatcher(&staticProvider{devices: []descriptor.DeviceInfo{dev}}, out)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Handle(ctx, command(VerbListDevices, "1", ""))
	out.next(t)
	out.next(t)

	d.Handle(ctx, command(VerbDeviceAction, "7", `{"deviceId":"dev1","actionId":"reset"}`))
	if prompt := decodeMap(t, out.next(t)); prompt["type"] != "confirm" {
		t.Fatalf("%s - prompt = %v", testPrefix, prompt)
	}

	cancel()
	waited := make(chan struct{})
	go func() {
		d.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-time.After(5 * time.Second):
		t.Fatalf("%s - Wait did not return after cancel", testPrefix)
	}

	if err := <-handlerErr; !errors.Is(err, context.Canceled) {
		t.Errorf("%s - prompt err = %v, want context.Canceled", testPrefix, err)
	}
	if d.Pending().Len() != 0 {
		t.Errorf("%s - Pending().Len() = %d, want 0", testPrefix, d.Pending().Len())
	}
}

func TestSendCommandToGUI(t *testing.T) {
	var mu sync.Mutex
	var changes []*events.StateChange
	pub := events.NewCallbackPublisher(func(_ context.Context, c *events.StateChange) error {
		mu.Lock()
		changes = append(changes, c)
		mu.Unlock()
		return nil
	})

	d := NewDispatcher(NewDispatcherParams{
		Provider:  &staticProvider{},
		Messenger: newOutbox().messenger(),
		Publisher: pub,
		Config:    DefaultConfig(),
	})
	if err := d.SendCommandToGUI(context.Background(), events.DeviceDeleted("dev1")); err != nil {
		t.Fatalf("%s - SendCommandToGUI: %v", testPrefix, err)
	}
	if len(changes) != 1 || changes[0].ID != "info.deviceManager" || !changes[0].Ack {
		t.Fatalf("%s - changes = %+v", testPrefix, changes)
	}
	var cmd map[string]interface{}
	if err := json.Unmarshal([]byte(changes[0].Val), &cmd); err != nil {
		t.Fatalf("%s - state value is not JSON: %v", testPrefix, err)
	}
	if cmd["command"] != "delete" || cmd["deviceId"] != "dev1" {
		t.Errorf("%s - command = %v", testPrefix, cmd)
	}

	noState := NewDispatcher(NewDispatcherParams{Provider: &staticProvider{}, Messenger: newOutbox().messenger()})
	if err := noState.SendCommandToGUI(context.Background(), events.AllUpdate()); !errors.Is(err, ErrNoCommunicationState) {
		t.Errorf("%s - err = %v, want ErrNoCommunicationState", testPrefix, err)
	}
}
