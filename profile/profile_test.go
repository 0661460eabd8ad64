package profile

import (
	"os"
	"path/filepath"
	"testing"
)

func writeProfile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vehicle.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("writing test profile: %v", err)
	}
	return path
}

func TestLoadDecodesWellFormedProfile(t *testing.T) {
	path := writeProfile(t, `{
		"name": "test-truck",
		"bus": {"interface": "virtual", "bitrate": 250000},
		"ecus": [
			{"name": "engine", "address": 0, "rate_ms": 100, "enabled": true},
			{"name": "transmission", "address": 3, "rate_ms": 100, "enabled": false}
		],
		"simulation": {"tick_ms": 10, "duration_ms": 5000}
	}`)

	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p.Name != "test-truck" || len(p.ECUs) != 2 || p.Simulation.TickMs != 10 {
		t.Errorf("decoded profile = %+v", p)
	}
}

func TestLoadIgnoresUnknownFields(t *testing.T) {
	path := writeProfile(t, `{
		"name": "test-truck",
		"bus": {"interface": "virtual"},
		"ecus": [{"name": "engine", "address": 0, "enabled": true}],
		"simulation": {"tick_ms": 10},
		"extra_field_from_a_newer_schema": 42
	}`)

	if _, err := Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
}

func TestLoadRejectsNoECUs(t *testing.T) {
	path := writeProfile(t, `{"name": "empty", "simulation": {"tick_ms": 10}, "ecus": []}`)
	if _, err := Load(path); err == nil {
		t.Error("expected an error for a profile naming no ECUs")
	}
}

func TestLoadRejectsBlankECUName(t *testing.T) {
	path := writeProfile(t, `{
		"name": "bad",
		"simulation": {"tick_ms": 10},
		"ecus": [{"name": "", "address": 0, "enabled": true}]
	}`)
	if _, err := Load(path); err == nil {
		t.Error("expected an error for an ECU with a blank name")
	}
}

func TestLoadRejectsZeroTickPeriod(t *testing.T) {
	path := writeProfile(t, `{
		"name": "bad",
		"simulation": {"tick_ms": 0},
		"ecus": [{"name": "engine", "address": 0, "enabled": true}]
	}`)
	if _, err := Load(path); err == nil {
		t.Error("expected an error for a non-positive tick_ms")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected an error for a missing profile file")
	}
}

func TestEnabledFiltersToEnabledSpecsOnly(t *testing.T) {
	p := Profile{
		ECUs: []ECUSpec{
			{Name: "engine", Enabled: true},
			{Name: "transmission", Enabled: false},
			{Name: "diagnostic-tool", Enabled: true},
		},
	}

	enabled := p.Enabled()
	if len(enabled) != 2 || enabled[0].Name != "engine" || enabled[1].Name != "diagnostic-tool" {
		t.Errorf("Enabled() = %+v, want [engine diagnostic-tool]", enabled)
	}
}
