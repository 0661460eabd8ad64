package j1939codec

import "fmt"

// Kind tags which payload shape a decoded PGNData carries.
type Kind int

const (
	KindRaw Kind = iota
	KindRequest
	KindEEC1
	KindET1
	KindETC1
	KindEngineControlCmd
	KindDM
)

// RequestPayload is the decoded body of a REQUEST (0xEA00) message.
type RequestPayload struct {
	RequestedPGN uint32
}

// EEC1 is Electronic Engine Controller 1 (0xF004).
type EEC1 struct {
	EngineSpeed   Signal // rpm
	DriverDemand  Signal // % torque
	ActualTorque  Signal // % torque
}

// ET1 is Engine Temperature 1 (0xFEEE).
type ET1 struct {
	CoolantTemp Signal // degrees C
}

// ETC1 is Electronic Transmission Controller 1 (0xF003 / 0xF000).
type ETC1 struct {
	OutputShaftSpeed Signal // rpm
	Gear             Signal // gear number, raw byte value
}

// EngineControlCmd is the frozen proprietary command PGN (0xEF00).
type EngineControlCmd struct {
	TargetRPM   uint16
	Enable      bool
	FaultFlags  uint8
}

// Overheat reports bit 0 of FaultFlags, per spec 4.2/6.
func (c EngineControlCmd) Overheat() bool {
	return c.FaultFlags&0x01 != 0
}

// PGNData is a tagged union over the supported PGN payload shapes, plus a
// fallback raw-bytes variant for anything not in the frozen set.
type PGNData struct {
	Kind              Kind
	Request           RequestPayload
	EEC1              EEC1
	ET1               ET1
	ETC1              ETC1
	EngineControlCmd  EngineControlCmd
	Raw               []byte
}

// Decode dispatches on PGN and converts wire bytes into a PGNData. Unknown
// PGNs decode to KindRaw with the bytes verbatim; the codec never errors on
// an unrecognized PGN, only on a malformed payload for a known one (a
// REQUEST or ENGINE_CONTROL_CMD payload shorter than 3 bytes).
func Decode(pgn uint32, data []byte) (PGNData, error) {
	switch pgn {
	case PGNRequest:
		return decodeRequest(data)
	case PGNEEC1:
		return decodeEEC1(data), nil
	case PGNET1:
		return decodeET1(data), nil
	case PGNETC1, PGNETC1Proprietary:
		return decodeETC1(data), nil
	case PGNEngineControlCmd:
		return decodeEngineControlCmd(data)
	default:
		raw := make([]byte, len(data))
		copy(raw, data)
		return PGNData{Kind: KindRaw, Raw: raw}, nil
	}
}

func pad8(data []byte) []byte {
	out := make([]byte, 8)
	for i := range out {
		out[i] = unavailableByte
	}
	copy(out, data)
	return out
}

func decodeRequest(data []byte) (PGNData, error) {
	if len(data) < 3 {
		return PGNData{}, fmt.Errorf("j1939codec: REQUEST payload too short: %d bytes", len(data))
	}
	pgn := uint32(data[0]) | uint32(data[1])<<8 | uint32(data[2])<<16
	return PGNData{Kind: KindRequest, Request: RequestPayload{RequestedPGN: pgn}}, nil
}

// EncodeRequest builds the 3-byte REQUEST payload for the given PGN.
func EncodeRequest(pgn uint32) []byte {
	return []byte{byte(pgn), byte(pgn >> 8), byte(pgn >> 16)}
}

func decodeEEC1(data []byte) PGNData {
	b := pad8(data)

	out := EEC1{}

	if b[4] == unavailableByte && b[5] == unavailableByte {
		out.EngineSpeed = notAvailable("EngineSpeed", "rpm")
	} else {
		raw := uint16(b[4]) | uint16(b[5])<<8
		out.EngineSpeed = available("EngineSpeed", "rpm", float64(raw)*0.125)
	}

	if b[2] == unavailableByte {
		out.DriverDemand = notAvailable("DriverDemandTorque", "%")
	} else {
		out.DriverDemand = available("DriverDemandTorque", "%", float64(b[2])-125)
	}

	if b[3] == unavailableByte {
		out.ActualTorque = notAvailable("ActualEngineTorque", "%")
	} else {
		out.ActualTorque = available("ActualEngineTorque", "%", float64(b[3])-125)
	}

	return PGNData{Kind: KindEEC1, EEC1: out}
}

// EncodeEEC1 serializes engine speed (rpm) and driver-demand torque (%)
// into an 8-byte EEC1 payload; absent fields are written as 0xFF.
func EncodeEEC1(engineSpeedRPM float64, driverDemandPct, actualTorquePct float64, hasDemand, hasActual, hasSpeed bool) []byte {
	b := pad8(nil)
	if hasDemand {
		b[2] = byte(driverDemandPct + 125)
	}
	if hasActual {
		b[3] = byte(actualTorquePct + 125)
	}
	if hasSpeed {
		raw := uint16(engineSpeedRPM / 0.125)
		b[4] = byte(raw)
		b[5] = byte(raw >> 8)
	}
	return b
}

func decodeET1(data []byte) PGNData {
	b := pad8(data)
	out := ET1{}
	if b[0] == unavailableByte {
		out.CoolantTemp = notAvailable("CoolantTemp", "degC")
	} else {
		out.CoolantTemp = available("CoolantTemp", "degC", float64(b[0])-40)
	}
	return PGNData{Kind: KindET1, ET1: out}
}

// EncodeET1 serializes coolant temperature (degrees C) into an 8-byte ET1
// payload.
func EncodeET1(coolantTempC float64, has bool) []byte {
	b := pad8(nil)
	if has {
		b[0] = byte(coolantTempC + 40)
	}
	return b
}

func decodeETC1(data []byte) PGNData {
	b := pad8(data)
	out := ETC1{}

	if b[0] == unavailableByte && b[1] == unavailableByte {
		out.OutputShaftSpeed = notAvailable("OutputShaftSpeed", "rpm")
	} else {
		raw := uint16(b[0]) | uint16(b[1])<<8
		out.OutputShaftSpeed = available("OutputShaftSpeed", "rpm", float64(raw)*0.125)
	}

	if b[4] == unavailableByte {
		out.Gear = notAvailable("Gear", "")
	} else {
		out.Gear = available("Gear", "", float64(b[4]))
	}

	return PGNData{Kind: KindETC1, ETC1: out}
}

// EncodeETC1 serializes output-shaft speed (rpm) and gear into an 8-byte
// ETC1 payload.
func EncodeETC1(outputShaftSpeedRPM float64, gear uint8, hasSpeed, hasGear bool) []byte {
	b := pad8(nil)
	if hasSpeed {
		raw := uint16(outputShaftSpeedRPM / 0.125)
		b[0] = byte(raw)
		b[1] = byte(raw >> 8)
	}
	if hasGear {
		b[4] = gear
	}
	return b
}

func decodeEngineControlCmd(data []byte) (PGNData, error) {
	if len(data) < 3 {
		return PGNData{}, fmt.Errorf("j1939codec: ENGINE_CONTROL_CMD payload too short: %d bytes", len(data))
	}
	b := pad8(data)
	out := EngineControlCmd{
		TargetRPM:  uint16(b[0]) | uint16(b[1])<<8,
		Enable:     b[2] == 1,
		FaultFlags: b[3],
	}
	return PGNData{Kind: KindEngineControlCmd, EngineControlCmd: out}, nil
}

// EncodeEngineControlCmd builds the frozen 8-byte ENGINE_CONTROL_CMD
// payload. Reserved bytes 4-7 are always 0xFF.
func EncodeEngineControlCmd(targetRPM uint16, enable bool, faultFlags uint8) []byte {
	b := pad8(nil)
	b[0] = byte(targetRPM)
	b[1] = byte(targetRPM >> 8)
	if enable {
		b[2] = 1
	} else {
		b[2] = 0
	}
	b[3] = faultFlags
	return b
}
