// Package profile loads the JSON vehicle profile that names which ECUs a
// simulation run starts, at which source addresses, and at what tick
// cadence. Unknown fields are ignored, matching the wire contract.
package profile

import (
	"encoding/json"
	"fmt"
	"os"
)

// Bus describes the CAN bus a profile's ECUs attach to. Interface selects
// between the virtual scheduler bus and a named hardware/serial adapter;
// Bitrate is the baud rate for a serial adapter and is unused by the
// virtual bus and by SocketCAN.
type Bus struct {
	Interface string `json:"interface"`
	Bitrate   int    `json:"bitrate"`
}

// ECUSpec names one ECU a run should instantiate.
type ECUSpec struct {
	Name    string `json:"name"`
	Address uint8  `json:"address"`
	RateMs  uint64 `json:"rate_ms"`
	Enabled bool   `json:"enabled"`
}

// Simulation holds the scheduler parameters for a run.
type Simulation struct {
	TickMs     uint64 `json:"tick_ms"`
	DurationMs uint64 `json:"duration_ms"`
}

// Profile is the decoded vehicle profile document.
type Profile struct {
	Name       string     `json:"name"`
	Bus        Bus        `json:"bus"`
	ECUs       []ECUSpec  `json:"ecus"`
	Simulation Simulation `json:"simulation"`
}

// Load reads and decodes a vehicle profile from disk. A profile naming no
// ECUs or an ECU with an empty name is a configuration error.
func Load(path string) (Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("profile: reading %s: %w", path, err)
	}

	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return Profile{}, fmt.Errorf("profile: parsing %s: %w", path, err)
	}

	if err := p.Validate(); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// Validate checks the configuration-error conditions spec'd for profile
// loading: no ECUs, a blank ECU name, or a non-positive tick period.
func (p Profile) Validate() error {
	if len(p.ECUs) == 0 {
		return fmt.Errorf("profile: %q names no ECUs", p.Name)
	}
	for _, e := range p.ECUs {
		if e.Name == "" {
			return fmt.Errorf("profile: %q has an ECU with an empty name", p.Name)
		}
	}
	if p.Simulation.TickMs == 0 {
		return fmt.Errorf("profile: %q has a non-positive simulation.tick_ms", p.Name)
	}
	return nil
}

// Enabled returns only the ECU specs with Enabled set.
func (p Profile) Enabled() []ECUSpec {
	var out []ECUSpec
	for _, e := range p.ECUs {
		if e.Enabled {
			out = append(out, e)
		}
	}
	return out
}
