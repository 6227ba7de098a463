// Package bootstrap provides the device catalog a device manager instance serves when no
// other backend is attached.
package bootstrap

import (
	"fmt"

	"github.com/morezero/device-manager/pkg/descriptor"
)

// CatalogControl is a control entry in the catalog. Only switch and button controls are
// backed by a stored state.
type CatalogControl struct {
	ID      string                 `json:"id"`
	Type    descriptor.ControlType `json:"type"`
	Label   string                 `json:"label,omitempty"`
	Icon    string                 `json:"icon,omitempty"`
	Channel string                 `json:"channel,omitempty"`
	// Initial is the switch value used when the state does not exist yet.
	Initial bool `json:"initial,omitempty"`
}

// CatalogDevice is a device entry in the catalog.
type CatalogDevice struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	Manufacturer string           `json:"manufacturer,omitempty"`
	Model        string           `json:"model,omitempty"`
	Icon         string           `json:"icon,omitempty"`
	Group        string           `json:"group,omitempty"`
	Connected    bool             `json:"connected"`
	Identify     bool             `json:"identify,omitempty"`
	Controls     []CatalogControl `json:"controls,omitempty"`
}

// Catalog is the root catalog configuration.
type Catalog struct {
	Name        string          `json:"name"`
	Version     string          `json:"version"`
	Description string          `json:"description,omitempty"`
	Devices     []CatalogDevice `json:"devices"`
}

// Validate checks that device ids and control ids per device are unique and that every
// control has a supported type.
func (c *Catalog) Validate() error {
	devices := make(map[string]struct{}, len(c.Devices))
	for _, d := range c.Devices {
		if d.ID == "" {
			return fmt.Errorf("%s - device without id", logPrefix)
		}
		if _, ok := devices[d.ID]; ok {
			return fmt.Errorf("%s - device %s is listed twice", logPrefix, d.ID)
		}
		devices[d.ID] = struct{}{}

		controls := make(map[string]struct{}, len(d.Controls))
		for _, ctl := range d.Controls {
			if _, ok := controls[ctl.ID]; ok {
				return fmt.Errorf("%s - control %s is listed twice on device %s", logPrefix, ctl.ID, d.ID)
			}
			controls[ctl.ID] = struct{}{}
			if ctl.Type != descriptor.ControlSwitch && ctl.Type != descriptor.ControlButton {
				return fmt.Errorf("%s - control %s on device %s has unsupported type %q", logPrefix, ctl.ID, d.ID, ctl.Type)
			}
		}
	}
	return nil
}

// Device returns the catalog entry for id.
func (c *Catalog) Device(id string) (*CatalogDevice, bool) {
	for i := range c.Devices {
		if c.Devices[i].ID == id {
			return &c.Devices[i], true
		}
	}
	return nil, false
}
