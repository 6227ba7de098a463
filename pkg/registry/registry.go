// Package registry holds the instance and device descriptors of a backend and dispatches
// GUI commands to the action and control handlers they declare.
package registry

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/morezero/device-manager/pkg/descriptor"
)

const logPrefix = "registry:registry"

// DuplicateDeviceIDError reports two devices sharing an id in one device list.
type DuplicateDeviceIDError struct {
	ID string
}

func (e *DuplicateDeviceIDError) Error() string {
	return fmt.Sprintf("Device ID %s is not unique", e.ID)
}

// Registry is the catalog of the instance's actions and current device list. Each
// Record call replaces the previous generation wholesale; readers never observe a
// partially built map.
type Registry struct {
	mu       sync.RWMutex
	instance *descriptor.InstanceDetails
	devices  map[string]*descriptor.DeviceInfo
	order    []string
}

// NewRegistry creates an empty Registry. Dispatch fails with a NotInitialized error until
// the matching Record call has been made.
func NewRegistry() *Registry {
	return &Registry{}
}

// RecordInstanceInfo replaces the stored instance descriptor.
func (r *Registry) RecordInstanceInfo(info descriptor.InstanceDetails) {
	r.mu.Lock()
	r.instance = &info
	r.mu.Unlock()
	slog.Debug(fmt.Sprintf("%s - instance info recorded with %d actions", logPrefix, len(info.Actions)))
}

// RecordDeviceList builds a fresh id to descriptor mapping from list. On a duplicate id
// the previous mapping is kept and a *DuplicateDeviceIDError is returned.
func (r *Registry) RecordDeviceList(list []descriptor.DeviceInfo) error {
	devices := make(map[string]*descriptor.DeviceInfo, len(list))
	order := make([]string, 0, len(list))
	for i := range list {
		d := list[i]
		if _, ok := devices[d.ID]; ok {
			return &DuplicateDeviceIDError{ID: d.ID}
		}
		devices[d.ID] = &d
		order = append(order, d.ID)
	}

	r.mu.Lock()
	r.devices = devices
	r.order = order
	r.mu.Unlock()

	slog.Debug(fmt.Sprintf("%s - device list recorded with %d devices", logPrefix, len(devices)))
	return nil
}

// LookupDevice returns the descriptor for id.
func (r *Registry) LookupDevice(id string) (*descriptor.DeviceInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.devices[id]
	return d, ok
}

// InstanceInfo returns the recorded instance descriptor, or nil before the first record.
func (r *Registry) InstanceInfo() *descriptor.InstanceDetails {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.instance
}

// Devices returns the current mapping, or nil before the first record. The map must not
// be modified.
func (r *Registry) Devices() map[string]*descriptor.DeviceInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.devices
}

// DeviceIDs returns the device ids in the order they were listed.
func (r *Registry) DeviceIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// snapshot returns both generations under one lock.
func (r *Registry) snapshot() (*descriptor.InstanceDetails, map[string]*descriptor.DeviceInfo) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.instance, r.devices
}
