package registry

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/morezero/device-manager/pkg/descriptor"
)

const healthTestPrefix = "registry:health_test"

func TestHealth_EmptyRegistry_Idle(t *testing.T) {
	out := NewRegistry().Health()

	if out.Status != "idle" {
		t.Errorf("%s - Status = %q, want idle", healthTestPrefix, out.Status)
	}
	if out.Checks.InstanceInfo || out.Checks.DeviceList {
		t.Errorf("%s - checks = %+v, want both false", healthTestPrefix, out.Checks)
	}
	if _, err := time.Parse(time.RFC3339, out.Timestamp); err != nil {
		t.Errorf("%s - Timestamp not RFC3339: %v", healthTestPrefix, err)
	}
}

func TestHealth_Populated_Ready(t *testing.T) {
	reg := NewRegistry()
	reg.RecordInstanceInfo(descriptor.InstanceDetails{APIVersion: "v2"})
	if err := reg.RecordDeviceList([]descriptor.DeviceInfo{{DeviceMeta: descriptor.DeviceMeta{ID: "a"}}}); err != nil {
		t.Fatalf("%s - RecordDeviceList failed: %v", healthTestPrefix, err)
	}

	out := reg.Health()
	if out.Status != "ready" || out.Devices != 1 {
		t.Errorf("%s - got status %q devices %d, want ready 1", healthTestPrefix, out.Status, out.Devices)
	}

	data, err := json.Marshal(out)
	if err != nil {
		t.Fatalf("%s - marshal failed: %v", healthTestPrefix, err)
	}
	var decoded HealthOutput
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("%s - unmarshal failed: %v", healthTestPrefix, err)
	}
	if decoded.Checks != out.Checks {
		t.Errorf("%s - round-trip checks = %+v, want %+v", healthTestPrefix, decoded.Checks, out.Checks)
	}
}
