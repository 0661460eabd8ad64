// Package tp implements the SAE J1939-21 Transport Protocol: BAM
// (broadcast) and RTS/CTS (point-to-point) session state machines for
// messages too large to fit in a single 8-byte CAN frame.
package tp

// PGNs used by the transport protocol.
const (
	PGNConnManagement uint32 = 0xEC00 // TP.CM
	PGNDataTransfer   uint32 = 0xEB00 // TP.DT
)

// Control byte values carried in byte 0 of a TP.CM payload.
const (
	ControlRTS   byte = 16
	ControlCTS   byte = 17
	ControlEOM   byte = 19
	ControlBAM   byte = 32
	ControlAbort byte = 255
)

// Timing constants, per spec section 4.3/5.
const (
	InactivityTimeoutMs uint64 = 1250
	CTSWaitTimeoutMs    uint64 = 500
	BAMInterPacketMs    uint64 = 50
	DataBytesPerPacket  int    = 7
)

// State is the lifecycle state of a TP session.
type State int

const (
	StateWaitingCTS State = iota
	StateTransferring
	StateComplete
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateWaitingCTS:
		return "WaitingCTS"
	case StateTransferring:
		return "Transferring"
	case StateComplete:
		return "Complete"
	case StateAborted:
		return "Aborted"
	default:
		return "Unknown"
	}
}

func packetCount(length int) int {
	return (length + DataBytesPerPacket - 1) / DataBytesPerPacket
}
