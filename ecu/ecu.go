// Package ecu defines the component contract every simulated control unit
// implements and hosts the three reference ECUs driven by the scheduler:
// the Engine, the Transmission, and the Diagnostic Tool.
package ecu

import "j1939sim/j1939port"

// Result mirrors the teacher's error-returning lifecycle calls: nil means
// success, any non-nil error aborts the transition.
type Result = error

// ECU is any component that can bind to a J1939 port and run under the
// scheduler. BindPort is called once before Start; OnTick runs every
// scheduler tick while the owning component is Running; OnPGN runs for
// every message the ECU has subscribed to via its port.
type ECU interface {
	Name() string
	Version() string
	SourceAddress() uint8
	BroadcastRateMs() uint64

	BindPort(port *j1939port.Port)
	Start() Result
	Stop() Result
	OnTick(nowMs, deltaMs uint64)
	OnPGN(msg j1939port.J1939Message)
}

// Base provides the bookkeeping shared by every reference ECU: port
// binding and the metadata getters required by the ECU interface.
type Base struct {
	name            string
	version         string
	sourceAddress   uint8
	broadcastRateMs uint64

	Port *j1939port.Port
}

func newBase(name, version string, sa uint8, broadcastRateMs uint64) Base {
	return Base{name: name, version: version, sourceAddress: sa, broadcastRateMs: broadcastRateMs}
}

func (b *Base) Name() string           { return b.name }
func (b *Base) Version() string         { return b.version }
func (b *Base) SourceAddress() uint8    { return b.sourceAddress }
func (b *Base) BroadcastRateMs() uint64 { return b.broadcastRateMs }
func (b *Base) BindPort(port *j1939port.Port) {
	b.Port = port
	port.SetSourceAddress(b.sourceAddress)
}
