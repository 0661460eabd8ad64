// Package j1939codec converts between raw J1939 payload bytes and named,
// scaled signals (SPNs) for the frozen set of PGNs this engine supports. It
// is a pure function of (PGN, bytes) and performs no I/O.
package j1939codec

// Frozen PGNs, per spec section 6.
const (
	PGNRequest            uint32 = 0xEA00
	PGNTPConnManagement   uint32 = 0xEC00
	PGNTPDataTransfer     uint32 = 0xEB00
	PGNAddressClaimed     uint32 = 0xEE00
	PGNEngineControlCmd   uint32 = 0xEF00
	PGNETC1               uint32 = 0xF003
	PGNETC1Proprietary    uint32 = 0xF000
	PGNEEC1               uint32 = 0xF004
	PGNDM1                uint32 = 0xFECA
	PGNDM2                uint32 = 0xFECB
	PGNET1                uint32 = 0xFEEE
)

// unavailableByte is the wire value meaning "signal not available".
const unavailableByte = 0xFF

// Descriptor is the static registry entry for a PGN.
type Descriptor struct {
	PGN            uint32
	Name           string
	ExpectedLength int
}

// Registry is the process-static, read-only table of supported PGNs.
var Registry = map[uint32]Descriptor{
	PGNRequest:          {PGNRequest, "REQUEST", 3},
	PGNTPConnManagement: {PGNTPConnManagement, "TP.CM", 8},
	PGNTPDataTransfer:   {PGNTPDataTransfer, "TP.DT", 8},
	PGNAddressClaimed:   {PGNAddressClaimed, "ADDRESS_CLAIMED", 8},
	PGNEngineControlCmd: {PGNEngineControlCmd, "ENGINE_CONTROL_CMD", 8},
	PGNETC1:             {PGNETC1, "ETC1", 8},
	PGNETC1Proprietary:  {PGNETC1Proprietary, "ETC1", 8},
	PGNEEC1:             {PGNEEC1, "EEC1", 8},
	PGNDM1:              {PGNDM1, "DM1", 8},
	PGNDM2:              {PGNDM2, "DM2", 8},
	PGNET1:              {PGNET1, "ET1", 8},
}

// Name returns the PGN's registered name, or "" if unknown.
func Name(pgn uint32) string {
	if d, ok := Registry[pgn]; ok {
		return d.Name
	}
	return ""
}

// Signal is a single decoded SPN value. IsValid is false whenever the raw
// wire bytes were all-ones ("not available"); IsError mirrors IsValid's
// negation and is kept distinct because spec 4.2 treats them as separate
// flags a caller may want to check independently.
type Signal struct {
	Name    string
	Value   float64
	Units   string
	IsValid bool
	IsError bool
}

func notAvailable(name, units string) Signal {
	return Signal{Name: name, Units: units, IsValid: false, IsError: true}
}

func available(name, units string, value float64) Signal {
	return Signal{Name: name, Units: units, Value: value, IsValid: true, IsError: false}
}
