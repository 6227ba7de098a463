package registry

import (
	"time"
)

// HealthOutput holds the result of the health method.
type HealthOutput struct {
	Status    string       `json:"status"`
	Checks    HealthChecks `json:"checks"`
	Devices   int          `json:"devices"`
	Timestamp string       `json:"timestamp"`
}

// HealthChecks holds individual health check results.
type HealthChecks struct {
	InstanceInfo bool `json:"instanceInfo"`
	DeviceList   bool `json:"deviceList"`
}

// Health reports whether the GUI has populated the registry yet. An unpopulated registry
// is "idle", not unhealthy: the GUI fetches instance info and devices on demand.
func (r *Registry) Health() *HealthOutput {
	instance, devices := r.snapshot()

	status := "ready"
	if instance == nil || devices == nil {
		status = "idle"
	}

	return &HealthOutput{
		Status: status,
		Checks: HealthChecks{
			InstanceInfo: instance != nil,
			DeviceList:   devices != nil,
		},
		Devices:   len(devices),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}
