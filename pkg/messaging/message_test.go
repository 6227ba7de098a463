package messaging

import (
	"encoding/json"
	"testing"
)

const messageTestPrefix = "messaging:message_test"

func TestMessage_Verb(t *testing.T) {
	tests := []struct {
		command string
		want    string
	}{
		{"dm:listDevices", "listDevices"},
		{"dm:", ""},
		{"getObjects", ""},
		{"xdm:listDevices", ""},
	}
	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			m := &Message{Command: tt.command}
			if got := m.Verb(); got != tt.want {
				t.Errorf("%s - Verb() = %q, want %q", messageTestPrefix, got, tt.want)
			}
		})
	}
}

func TestMessage_IsPlainString(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    bool
	}{
		{"string", `"dm:deviceAction"`, true},
		{"leading space", ` "x"`, true},
		{"object", `{"confirm":true}`, false},
		{"bool", `true`, false},
		{"empty", ``, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &Message{Message: json.RawMessage(tt.payload)}
			if got := m.IsPlainString(); got != tt.want {
				t.Errorf("%s - IsPlainString(%s) = %v, want %v", messageTestPrefix, tt.payload, got, tt.want)
			}
		})
	}
}

func TestMessage_DecodeEnvelope(t *testing.T) {
	raw := `{"command":"dm:deviceControl","message":{"deviceId":"dev1"},"from":"admin.0","callback":{"id":7},"_id":"42"}`
	var m Message
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		t.Fatalf("%s - unmarshal failed: %v", messageTestPrefix, err)
	}
	if m.ID != "42" || m.From != "admin.0" || m.Verb() != "deviceControl" {
		t.Errorf("%s - decoded = %+v", messageTestPrefix, m)
	}
	if string(m.Callback) != `{"id":7}` {
		t.Errorf("%s - callback = %s", messageTestPrefix, m.Callback)
	}
}
