package ecu

import (
	"sync"

	"j1939sim/j1939codec"
	"j1939sim/j1939port"
)

// TransmissionSA is the frozen source address of the reference
// Transmission ECU.
const TransmissionSA uint8 = 0x03

// Transmission broadcasts ETC1 every 100 ms and answers point-to-point
// ETC1 requests.
type Transmission struct {
	Base

	mu               sync.Mutex
	outputShaftSpeed float64
	gear             uint8
	lastBroadcastMs  uint64
}

// NewTransmission builds the reference Transmission ECU, starting in
// neutral.
func NewTransmission() *Transmission {
	return &Transmission{
		Base: newBase("transmission", "1.0.0", TransmissionSA, 100),
		gear: 0,
	}
}

func (t *Transmission) Start() Result { return nil }
func (t *Transmission) Stop() Result  { return nil }

func (t *Transmission) OnTick(nowMs, deltaMs uint64) {
	t.mu.Lock()
	speed := t.outputShaftSpeed
	gear := t.gear
	due := nowMs-t.lastBroadcastMs >= t.BroadcastRateMs() || t.lastBroadcastMs == 0
	if due {
		t.lastBroadcastMs = nowMs
	}
	t.mu.Unlock()

	if !due {
		return
	}
	_ = t.Port.SendPGN(j1939codec.PGNETC1, j1939codec.EncodeETC1(speed, gear, true, true), 0xFF)
}

func (t *Transmission) OnPGN(msg j1939port.J1939Message) {}

// OnRequest answers a global REQUEST for ETC1 with a point-to-point reply.
func (t *Transmission) OnRequest(requestedPGN uint32, requesterSA uint8) {
	if requestedPGN != j1939codec.PGNETC1 {
		return
	}
	t.mu.Lock()
	speed := t.outputShaftSpeed
	gear := t.gear
	t.mu.Unlock()
	_ = t.Port.SendPGN(j1939codec.PGNETC1, j1939codec.EncodeETC1(speed, gear, true, true), requesterSA)
}

// SetOutputShaftSpeed lets a test or drive profile move the simulated
// transmission state directly.
func (t *Transmission) SetOutputShaftSpeed(rpm float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.outputShaftSpeed = rpm
}

// SetGear lets a test or drive profile select the simulated gear directly.
func (t *Transmission) SetGear(gear uint8) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.gear = gear
}

var (
	_ ECU              = (*Transmission)(nil)
	_ RequestResponder = (*Transmission)(nil)
)
