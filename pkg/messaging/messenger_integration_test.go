package messaging

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	commsserver "github.com/nats-io/nats-server/v2/server"
	comms "github.com/nats-io/nats.go"
)

const integrationTestPrefix = "messaging:messenger_integration_test"

// startTestServer starts an in-process NATS server for testing.
func startTestServer(t *testing.T, port int) (*comms.Conn, func()) {
	t.Helper()

	opts := &commsserver.Options{
		Host:   "127.0.0.1",
		Port:   port,
		NoLog:  true,
		NoSigs: true,
	}

	ns, err := commsserver.NewServer(opts)
	if err != nil {
		t.Fatalf("%s - failed to create server: %v", integrationTestPrefix, err)
	}

	go ns.Start()
	if !ns.ReadyForConnections(10 * time.Second) {
		t.Fatalf("%s - server failed to start", integrationTestPrefix)
	}

	nc, err := comms.Connect(ns.ClientURL(), comms.Timeout(5*time.Second))
	if err != nil {
		ns.Shutdown()
		t.Fatalf("%s - failed to connect: %v", integrationTestPrefix, err)
	}

	cleanup := func() {
		nc.Close()
		ns.Shutdown()
		ns.WaitForShutdown()
	}

	return nc, cleanup
}

func TestCommsMessenger_SendTo(t *testing.T) {
	nc, cleanup := startTestServer(t, 14240)
	defer cleanup()

	received := make(chan Reply, 1)
	sub, err := nc.Subscribe("dm.reply.admin_0", func(msg *comms.Msg) {
		var r Reply
		if err := json.Unmarshal(msg.Data, &r); err != nil {
			t.Errorf("%s - failed to unmarshal: %v", integrationTestPrefix, err)
			return
		}
		received <- r
	})
	if err != nil {
		t.Fatalf("%s - failed to subscribe: %v", integrationTestPrefix, err)
	}
	defer sub.Unsubscribe()

	m := NewCommsMessenger(nc, "device-manager.0")
	payload := map[string]interface{}{"type": "message", "origin": "42"}
	if err := m.SendTo(context.Background(), "admin.0", "dm:deviceAction", payload, json.RawMessage(`{"id":1}`)); err != nil {
		t.Fatalf("%s - SendTo failed: %v", integrationTestPrefix, err)
	}

	select {
	case r := <-received:
		if r.Command != "dm:deviceAction" || r.From != "device-manager.0" {
			t.Errorf("%s - reply header = %+v", integrationTestPrefix, r)
		}
		if string(r.Callback) != `{"id":1}` {
			t.Errorf("%s - callback = %s", integrationTestPrefix, r.Callback)
		}
		if string(r.Message) != `{"origin":"42","type":"message"}` {
			t.Errorf("%s - message = %s", integrationTestPrefix, r.Message)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("%s - timed out waiting for reply", integrationTestPrefix)
	}
}

func TestCommsMessenger_NoRecipient(t *testing.T) {
	m := NewCommsMessenger(nil, "device-manager.0")
	if err := m.SendTo(context.Background(), "", "dm:listDevices", nil, nil); err == nil {
		t.Errorf("%s - expected error without recipient", integrationTestPrefix)
	}
}

func TestSubscribe_FallsBackToReplyInbox(t *testing.T) {
	nc, cleanup := startTestServer(t, 14241)
	defer cleanup()

	got := make(chan *Message, 1)
	sub, err := Subscribe(context.Background(), nc, "dm.test.commands", func(_ context.Context, msg *Message) bool {
		got <- msg
		return true
	})
	if err != nil {
		t.Fatalf("%s - Subscribe failed: %v", integrationTestPrefix, err)
	}
	defer sub.Unsubscribe()

	data := []byte(`{"command":"dm:instanceInfo","_id":"1"}`)
	if err := nc.PublishRequest("dm.test.commands", "_INBOX.test.1", data); err != nil {
		t.Fatalf("%s - publish failed: %v", integrationTestPrefix, err)
	}

	select {
	case msg := <-got:
		if msg.From != "_INBOX.test.1" || msg.ID != "1" {
			t.Errorf("%s - message = %+v", integrationTestPrefix, msg)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("%s - timed out waiting for command", integrationTestPrefix)
	}
}
