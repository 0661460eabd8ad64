package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("writing test config: %v", err)
	}
	return path
}

func TestLoadDecodesNestedFields(t *testing.T) {
	path := writeConfig(t, `
profile:
  path: vehicles/rig-a.json
telemetry:
  listen_addr: ":9090"
  enable_ws: true
datastore:
  sqlite:
    enabled: true
    path: ./run.db
  influxdb:
    enabled: false
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Profile.Path != "vehicles/rig-a.json" {
		t.Errorf("profile path = %q", cfg.Profile.Path)
	}
	if cfg.Telemetry.ListenAddr != ":9090" || !cfg.Telemetry.EnableWS {
		t.Errorf("telemetry = %+v", cfg.Telemetry)
	}
	if !cfg.Datastore.SQLite.Enabled || cfg.Datastore.SQLite.Path != "./run.db" {
		t.Errorf("sqlite datastore = %+v", cfg.Datastore.SQLite)
	}
	if cfg.Datastore.InfluxDB.Enabled {
		t.Error("influxdb should be disabled")
	}
}

func TestLoadDefaultsListenAddr(t *testing.T) {
	path := writeConfig(t, `
profile:
  path: vehicles/rig-a.json
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telemetry.ListenAddr != ":8080" {
		t.Errorf("default listen addr = %q, want :8080", cfg.Telemetry.ListenAddr)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected an error loading a missing config file")
	}
}
