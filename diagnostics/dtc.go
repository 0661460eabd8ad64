// Package diagnostics decodes J1939-73 DM1/DM2 diagnostic messages and
// tracks active/previously-active trouble codes per source address. It
// shares bit-packing conventions with j1939codec and is consumed both by
// the simulator's Diagnostic Tool ECU and by external SDK clients.
package diagnostics

import (
	"fmt"
	"sync"
	"time"
)

// DTC is a single Diagnostic Trouble Code as packed in DM1/DM2.
type DTC struct {
	SPN uint32 // 21 bits
	FMI uint8  // 5 bits
	CM  uint8  // 1 bit
	OC  uint8  // 3 bits
}

// Lamps reports the four lamp/flag bits carried in byte 0 of a DM1/DM2
// payload.
type Lamps struct {
	MIL     bool
	Flash   bool
	Amber   bool
	Protect bool
}

// DecodeLamps extracts the lamp bits from a DM1/DM2 lamp byte.
func DecodeLamps(b byte) Lamps {
	return Lamps{
		MIL:     b&0x04 != 0,
		Flash:   b&0x08 != 0,
		Amber:   b&0x20 != 0,
		Protect: b&0x40 != 0,
	}
}

// Decoded is the full result of decoding one DM1 or DM2 payload.
type Decoded struct {
	Lamps Lamps
	DTCs  []DTC
}

// Decode unpacks a DM1/DM2 payload into lamp state and one DTC per complete
// four-byte group after the lamp byte: an 8-byte payload holds one DTC, a
// 13-byte payload three. A payload shorter than 8 bytes is rejected. A DTC
// whose four bytes are all zero is the "no fault" indicator and is omitted
// from the result.
func Decode(data []byte) (Decoded, error) {
	if len(data) < 8 {
		return Decoded{}, fmt.Errorf("diagnostics: DM1/DM2 payload too short: %d bytes", len(data))
	}

	out := Decoded{Lamps: DecodeLamps(data[0])}

	for offset := 1; offset+3 < len(data); offset += 4 {
		b1, b2, b3, b4 := data[offset], data[offset+1], data[offset+2], data[offset+3]
		if b1 == 0 && b2 == 0 && b3 == 0 && b4 == 0 {
			continue
		}

		dtc := DTC{
			SPN: uint32(b1) | uint32(b2)<<8 | uint32(b3&0x1F)<<16,
			CM:  (b3 >> 5) & 0x01,
			FMI: b4 & 0x1F,
			OC:  (b4 >> 5) & 0x07,
		}
		out.DTCs = append(out.DTCs, dtc)
	}

	return out, nil
}

// Encode packs lamp state and up to three DTCs into a DM1/DM2 payload of
// 8 bytes for zero or one DTC, or 1+4n bytes for n = 2 or 3 DTCs. DTCs
// beyond the third are dropped. Unused DTC bytes are zero (no fault).
func Encode(lamps Lamps, dtcs []DTC) []byte {
	n := len(dtcs)
	if n > 3 {
		n = 3
	}
	size := 8
	if 1+4*n > size {
		size = 1 + 4*n
	}
	b := make([]byte, size)

	var lampByte byte
	if lamps.MIL {
		lampByte |= 0x04
	}
	if lamps.Flash {
		lampByte |= 0x08
	}
	if lamps.Amber {
		lampByte |= 0x20
	}
	if lamps.Protect {
		lampByte |= 0x40
	}
	b[0] = lampByte

	for i, dtc := range dtcs {
		if i >= 3 {
			break
		}
		offset := 1 + i*4
		b[offset] = byte(dtc.SPN)
		b[offset+1] = byte(dtc.SPN >> 8)
		b[offset+2] = byte((dtc.SPN>>16)&0x1F) | (dtc.CM&0x01)<<5
		b[offset+3] = (dtc.FMI & 0x1F) | (dtc.OC&0x07)<<5
	}

	return b
}

// Summary is an aggregate diagnostic report across all tracked devices.
type Summary struct {
	TotalActiveDTCs    int
	DistinctDevices    int
	MILCount           int
	FlashCount         int
	AmberCount         int
	ProtectCount       int
	HasCriticalFaults  bool
}

// entry is the per-source-address state tracked by Manager.
type entry struct {
	lamps     Lamps
	dtcs      []DTC
	updatedAt time.Time
}

// Manager maintains active (DM1) and previously-active (DM2) DTC stores
// keyed by source address. Each incoming DM1 from a source address
// replaces any prior active entry for that address.
type Manager struct {
	mu       sync.RWMutex
	active   map[uint8]entry
	previous map[uint8]entry
}

// NewManager creates an empty diagnostics manager.
func NewManager() *Manager {
	return &Manager{
		active:   make(map[uint8]entry),
		previous: make(map[uint8]entry),
	}
}

// IngestDM1 decodes a DM1 payload from source address sa and replaces its
// active-fault entry. nowMs is the simulation clock, per the determinism
// contract in spec 4.7/9 — never wall-clock time inside the core.
func (m *Manager) IngestDM1(sa uint8, data []byte, nowMs uint64) error {
	decoded, err := Decode(data)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active[sa] = entry{lamps: decoded.Lamps, dtcs: decoded.DTCs, updatedAt: time.UnixMilli(int64(nowMs))}
	return nil
}

// IngestDM2 decodes a DM2 payload from source address sa and replaces its
// previously-active-fault entry.
func (m *Manager) IngestDM2(sa uint8, data []byte, nowMs uint64) error {
	decoded, err := Decode(data)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.previous[sa] = entry{lamps: decoded.Lamps, dtcs: decoded.DTCs, updatedAt: time.UnixMilli(int64(nowMs))}
	return nil
}

// ActiveDTCs returns the current active DTCs for a source address.
func (m *Manager) ActiveDTCs(sa uint8) []DTC {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.active[sa]
	if !ok {
		return nil
	}
	out := make([]DTC, len(e.dtcs))
	copy(out, e.dtcs)
	return out
}

// PreviousDTCs returns the previously-active DTCs for a source address.
func (m *Manager) PreviousDTCs(sa uint8) []DTC {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.previous[sa]
	if !ok {
		return nil
	}
	out := make([]DTC, len(e.dtcs))
	copy(out, e.dtcs)
	return out
}

// Summarize computes the aggregate diagnostic summary across all devices
// with active faults.
func (m *Manager) Summarize() Summary {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var s Summary
	for _, e := range m.active {
		if len(e.dtcs) == 0 {
			continue
		}
		s.DistinctDevices++
		s.TotalActiveDTCs += len(e.dtcs)
		if e.lamps.MIL {
			s.MILCount++
		}
		if e.lamps.Flash {
			s.FlashCount++
		}
		if e.lamps.Amber {
			s.AmberCount++
		}
		if e.lamps.Protect {
			s.ProtectCount++
		}
	}
	s.HasCriticalFaults = s.MILCount > 0 || s.ProtectCount > 0
	return s
}
