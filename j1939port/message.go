// Package j1939port is the sole abstraction ECUs, plugins, and external SDK
// clients use to talk J1939: encoding/decoding, transport-protocol
// reassembly, and PGN-addressed subscription, all layered over a
// canbus.CANPort.
package j1939port

import (
	"errors"

	"j1939sim/j1939codec"
)

// PGNWildcard, passed to OnPGN, subscribes a handler to every decoded
// message regardless of PGN. Wildcard handlers always run after the
// specific-PGN handlers for the same message.
const PGNWildcard uint32 = 0xFFFFFFFF

// ErrPayloadTooLarge is returned by SendPGN for payloads over 1785 bytes.
var ErrPayloadTooLarge = errors.New("j1939port: payload exceeds 1785 bytes")

// ErrNotConnected is returned when an operation requires a bound CAN port.
var ErrNotConnected = errors.New("j1939port: not connected to a CAN port")

// J1939Message is a fully decoded, routed message delivered to subscribers.
type J1939Message struct {
	PGN         uint32
	PGNName     string
	SA          uint8
	DA          uint8
	Priority    uint8
	TimestampMs uint64
	Data        j1939codec.PGNData
	Raw         []byte
}

// ErrorKind classifies the failures reported on the error event stream.
type ErrorKind int

const (
	ErrorInvalidFrame ErrorKind = iota
	ErrorTPProtocolViolation
	ErrorHandlerFault
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorInvalidFrame:
		return "InvalidFrame"
	case ErrorTPProtocolViolation:
		return "TPProtocolViolation"
	case ErrorHandlerFault:
		return "HandlerFault"
	default:
		return "Unknown"
	}
}

// PortError is the payload of an error event.
type PortError struct {
	Kind ErrorKind
	PGN  uint32
	Err  error
}

func (e PortError) Error() string {
	return e.Err.Error()
}
