package bootstrap

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/morezero/device-manager/pkg/descriptor"
)

const loaderTestPrefix = "bootstrap:loader_test"

func TestGetDefaultCatalog(t *testing.T) {
	cat := GetDefaultCatalog()

	if cat.Version != "1.0.0" {
		t.Errorf("%s - expected version 1.0.0, got %s", loaderTestPrefix, cat.Version)
	}
	if len(cat.Devices) == 0 {
		t.Fatalf("%s - expected devices, got none", loaderTestPrefix)
	}
	if err := cat.Validate(); err != nil {
		t.Errorf("%s - default catalog is invalid: %v", loaderTestPrefix, err)
	}

	lamp, ok := cat.Device("lamp-1")
	if !ok {
		t.Fatalf("%s - expected lamp-1", loaderTestPrefix)
	}
	if !lamp.Identify || len(lamp.Controls) != 1 || lamp.Controls[0].Type != descriptor.ControlSwitch {
		t.Errorf("%s - unexpected lamp-1 entry: %+v", loaderTestPrefix, lamp)
	}
	if _, ok := cat.Device("nonexistent"); ok {
		t.Errorf("%s - found a nonexistent device", loaderTestPrefix)
	}
}

func TestCatalog_Validate(t *testing.T) {
	sw := CatalogControl{ID: "power", Type: descriptor.ControlSwitch}

	tests := []struct {
		name    string
		devices []CatalogDevice
		wantErr bool
	}{
		{name: "empty", devices: nil},
		{name: "valid", devices: []CatalogDevice{{ID: "a", Controls: []CatalogControl{sw}}, {ID: "b"}}},
		{name: "missing id", devices: []CatalogDevice{{Name: "x"}}, wantErr: true},
		{name: "duplicate device", devices: []CatalogDevice{{ID: "a"}, {ID: "a"}}, wantErr: true},
		{name: "duplicate control", devices: []CatalogDevice{{ID: "a", Controls: []CatalogControl{sw, sw}}}, wantErr: true},
		{name: "unsupported type", devices: []CatalogDevice{{ID: "a", Controls: []CatalogControl{{ID: "dim", Type: descriptor.ControlSlider}}}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := (&Catalog{Devices: tt.devices}).Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("%s - Validate() error = %v, wantErr %v", loaderTestPrefix, err, tt.wantErr)
			}
		})
	}
}

func TestLoadCatalog(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.json")
	bad := filepath.Join(dir, "bad.json")
	dup := filepath.Join(dir, "dup.json")

	if err := os.WriteFile(good, []byte(`{"name":"test","version":"2.0.0","devices":[{"id":"x","name":"X","connected":true}]}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(bad, []byte(`{not json`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(dup, []byte(`{"name":"dup","devices":[{"id":"x"},{"id":"x"}]}`), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DM_CATALOG_FILE", "")

	tests := []struct {
		name     string
		paths    []string
		wantName string
		wantPath string
	}{
		{name: "explicit file", paths: []string{good}, wantName: "test", wantPath: good},
		{name: "skips unparsable", paths: []string{bad, good}, wantName: "test", wantPath: good},
		{name: "skips invalid", paths: []string{dup}, wantName: "demo"},
		{name: "missing file falls back", paths: []string{filepath.Join(dir, "missing.json")}, wantName: "demo"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cat, path, err := LoadCatalog(tt.paths...)
			if err != nil {
				t.Fatalf("%s - LoadCatalog: %v", loaderTestPrefix, err)
			}
			if cat.Name != tt.wantName || path != tt.wantPath {
				t.Errorf("%s - got %s from %q, want %s from %q", loaderTestPrefix, cat.Name, path, tt.wantName, tt.wantPath)
			}
		})
	}
}

func TestLoadCatalog_Env(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "env.json")
	if err := os.WriteFile(file, []byte(`{"name":"env","devices":[]}`), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DM_CATALOG_FILE", file)

	cat, path, err := LoadCatalog()
	if err != nil {
		t.Fatalf("%s - LoadCatalog: %v", loaderTestPrefix, err)
	}
	if cat.Name != "env" || path != file {
		t.Errorf("%s - got %s from %s, want env", loaderTestPrefix, cat.Name, path)
	}
}
