package bootstrap

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/morezero/device-manager/pkg/descriptor"
)

const logPrefix = "bootstrap:loader"

// LoadCatalog loads the device catalog from file paths or environment.
// It tries paths in order: first any paths passed in, then DM_CATALOG_FILE env, then defaults.
// Files that are missing, unparsable or invalid are skipped.
func LoadCatalog(paths ...string) (*Catalog, string, error) {
	all := make([]string, 0, len(paths)+3)
	for _, p := range paths {
		if p != "" {
			all = append(all, p)
		}
	}
	if envPath := os.Getenv("DM_CATALOG_FILE"); envPath != "" {
		all = append(all, envPath)
	}
	all = append(all, "config/catalog.json", "catalog.json")

	for _, p := range all {
		cat, err := LoadCatalogFile(p)
		if err != nil {
			slog.Debug(fmt.Sprintf("%s - Skipping %s: %v", logPrefix, p, err))
			continue
		}
		slog.Info(fmt.Sprintf("%s - Loaded catalog %s from %s with %d devices", logPrefix, cat.Name, p, len(cat.Devices)))
		return cat, p, nil
	}

	slog.Info(fmt.Sprintf("%s - Using default catalog", logPrefix))
	return GetDefaultCatalog(), "", nil
}

// LoadCatalogFile reads and validates a single catalog file.
func LoadCatalogFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cat Catalog
	if err := json.Unmarshal(data, &cat); err != nil {
		slog.Warn(fmt.Sprintf("%s - Failed to parse catalog file %s: %v", logPrefix, path, err))
		return nil, fmt.Errorf("%s - failed to parse %s: %w", logPrefix, path, err)
	}
	if err := cat.Validate(); err != nil {
		slog.Warn(fmt.Sprintf("%s - Invalid catalog file %s: %v", logPrefix, path, err))
		return nil, err
	}
	return &cat, nil
}

// GetDefaultCatalog returns the built-in demo catalog.
func GetDefaultCatalog() *Catalog {
	return &Catalog{
		Name:        "demo",
		Version:     "1.0.0",
		Description: "Built-in demo devices",
		Devices: []CatalogDevice{
			{
				ID:           "lamp-1",
				Name:         "Living room lamp",
				Manufacturer: "morezero",
				Model:        "L1",
				Icon:         "lightbulb",
				Group:        "living-room",
				Connected:    true,
				Identify:     true,
				Controls: []CatalogControl{
					{ID: "power", Type: descriptor.ControlSwitch, Label: "Power", Icon: "power"},
				},
			},
			{
				ID:           "doorbell-1",
				Name:         "Front door bell",
				Manufacturer: "morezero",
				Model:        "D2",
				Icon:         "bell",
				Group:        "entrance",
				Connected:    true,
				Controls: []CatalogControl{
					{ID: "ring", Type: descriptor.ControlButton, Label: "Ring", Icon: "bell"},
					{ID: "mute", Type: descriptor.ControlSwitch, Label: "Mute"},
				},
			},
			{
				ID:           "sensor-1",
				Name:         "Garden sensor",
				Manufacturer: "morezero",
				Model:        "S3",
				Icon:         "thermometer",
				Group:        "outside",
				Connected:    false,
			},
		},
	}
}
