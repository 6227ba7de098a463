package dispatcher

import (
	"context"
	"encoding/json"

	"github.com/morezero/device-manager/pkg/descriptor"
)

// Provider supplies the devices of a backend instance. It is called on every
// dm:listDevices.
type Provider interface {
	ListDevices(ctx context.Context) ([]descriptor.DeviceInfo, error)
}

// InstanceInfoProvider is implemented by providers that declare instance actions.
// Without it the instance reports the configured API version and communication state.
type InstanceInfoProvider interface {
	GetInstanceInfo(ctx context.Context) (descriptor.InstanceDetails, error)
}

// DeviceDetailsProvider is implemented by providers that show a detail form per device.
// Without it every device has an empty schema.
type DeviceDetailsProvider interface {
	GetDeviceDetails(ctx context.Context, deviceID string) (*descriptor.DeviceDetails, error)
}

func (d *Dispatcher) instanceInfo(ctx context.Context) (descriptor.InstanceDetails, error) {
	if p, ok := d.provider.(InstanceInfoProvider); ok {
		info, err := p.GetInstanceInfo(ctx)
		if err != nil {
			return descriptor.InstanceDetails{}, err
		}
		if info.APIVersion == "" {
			info.APIVersion = d.config.APIVersion
		}
		return info, nil
	}
	return descriptor.InstanceDetails{
		APIVersion:           d.config.APIVersion,
		CommunicationStateID: d.config.CommunicationStateID,
	}, nil
}

func (d *Dispatcher) deviceDetails(ctx context.Context, deviceID string) (*descriptor.DeviceDetails, error) {
	if p, ok := d.provider.(DeviceDetailsProvider); ok {
		return p.GetDeviceDetails(ctx, deviceID)
	}
	return &descriptor.DeviceDetails{ID: deviceID, Schema: json.RawMessage(`{}`)}, nil
}
