// Package j1939id decodes and builds 29-bit extended CAN identifiers per
// SAE J1939-21. It is pure and stateless: no I/O, no allocation beyond the
// returned value.
package j1939id

// MaxID is the largest 29-bit identifier value.
const MaxID = 0x1FFFFFFF

// Identifier is the parsed form of a 29-bit J1939 CAN identifier.
type Identifier struct {
	Priority uint8
	PGN      uint32
	SA       uint8
	DA       uint8
	PDU1     bool
}

// BuildParams are the fields needed to construct a 29-bit identifier.
type BuildParams struct {
	Priority uint8
	PGN      uint32
	SA       uint8
	DA       uint8 // ignored when the PGN is PDU2 (broadcast)
}

// Parse decodes a 29-bit CAN identifier into its priority/PGN/SA/DA fields.
// Callers are expected to have already validated id <= MaxID.
func Parse(id uint32) Identifier {
	priority := uint8((id >> 26) & 0x7)
	edp := (id >> 25) & 0x1
	dp := (id >> 24) & 0x1
	pf := uint8((id >> 16) & 0xFF)
	ps := uint8((id >> 8) & 0xFF)
	sa := uint8(id & 0xFF)

	dataPage := uint32(edp<<1 | dp)

	if pf < 240 {
		return Identifier{
			Priority: priority,
			PGN:      (dataPage << 16) | uint32(pf)<<8,
			SA:       sa,
			DA:       ps,
			PDU1:     true,
		}
	}

	return Identifier{
		Priority: priority,
		PGN:      (dataPage << 16) | uint32(pf)<<8 | uint32(ps),
		SA:       sa,
		DA:       0xFF,
		PDU1:     false,
	}
}

// Build constructs a 29-bit CAN identifier from its fields. Priority is
// clamped to 0..=7. For PDU1 PGNs, DA is placed in the PS byte; for PDU2
// PGNs, DA is ignored and PS comes from the PGN's low byte.
func Build(p BuildParams) uint32 {
	priority := p.Priority
	if priority > 7 {
		priority = 7
	}

	pf := uint8((p.PGN >> 8) & 0xFF)
	dataPage := (p.PGN >> 16) & 0x3

	var ps uint8
	if pf < 240 {
		ps = p.DA
	} else {
		ps = uint8(p.PGN & 0xFF)
	}

	id := uint32(priority)<<26 | dataPage<<24 | uint32(pf)<<16 | uint32(ps)<<8 | uint32(p.SA)
	return id
}
