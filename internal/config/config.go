// Package config loads the top-level run configuration for the cmd/
// entry points: which vehicle profile to simulate, where the telemetry
// HTTP surface listens, and which persistence backends are enabled. The
// vehicle profile itself (spec'd wire-compatible JSON) lives in the
// profile package; this is the YAML wrapper around it, matching the
// teacher's nested-struct-with-tags Config shape.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the decoded run configuration.
type Config struct {
	Profile struct {
		Path string `yaml:"path"`
	} `yaml:"profile"`

	Telemetry struct {
		ListenAddr string `yaml:"listen_addr"`
		EnableWS   bool   `yaml:"enable_ws"`
	} `yaml:"telemetry"`

	Datastore struct {
		SQLite struct {
			Enabled bool   `yaml:"enabled"`
			Path    string `yaml:"path"`
		} `yaml:"sqlite"`
		InfluxDB struct {
			Enabled bool   `yaml:"enabled"`
			URL     string `yaml:"url"`
			Org     string `yaml:"org"`
			Bucket  string `yaml:"bucket"`
			Token   string `yaml:"token"`
		} `yaml:"influxdb"`
	} `yaml:"datastore"`
}

// Load reads and decodes a run configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if cfg.Telemetry.ListenAddr == "" {
		cfg.Telemetry.ListenAddr = ":8080"
	}
	return &cfg, nil
}
