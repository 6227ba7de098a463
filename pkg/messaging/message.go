// Package messaging carries device manager commands between the GUI and a backend
// instance. It knows the envelopes, not the verbs.
package messaging

import (
	"encoding/json"
	"strings"
)

// CommandPrefix marks commands handled by the device manager.
const CommandPrefix = "dm:"

// Message is an inbound command envelope.
type Message struct {
	Command  string          `json:"command"`
	Message  json.RawMessage `json:"message,omitempty"`
	From     string          `json:"from"`
	Callback json.RawMessage `json:"callback,omitempty"`
	ID       ID              `json:"_id"`
}

// Verb returns the command without the protocol prefix, or "" if the prefix is missing.
func (m *Message) Verb() string {
	if !strings.HasPrefix(m.Command, CommandPrefix) {
		return ""
	}
	return strings.TrimPrefix(m.Command, CommandPrefix)
}

// IsPlainString reports whether the payload is a bare JSON string.
func (m *Message) IsPlainString() bool {
	for _, c := range m.Message {
		switch c {
		case ' ', '\t', '\r', '\n':
			continue
		case '"':
			return true
		default:
			return false
		}
	}
	return false
}

// Reply is an outbound envelope. It echoes the command and callback of the message it
// answers.
type Reply struct {
	Command  string          `json:"command"`
	Message  json.RawMessage `json:"message"`
	From     string          `json:"from,omitempty"`
	Callback json.RawMessage `json:"callback,omitempty"`
}
