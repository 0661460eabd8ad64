package ecu

import (
	"sync"

	"j1939sim/diagnostics"
	"j1939sim/j1939codec"
	"j1939sim/j1939port"
)

// EngineSA is the frozen source address of the reference Engine ECU.
const EngineSA uint8 = 0x00

// Engine ramps its internal RPM toward a configurable target, broadcasts
// EEC1 and ET1 every 100 ms, answers point-to-point EEC1 requests, and
// reacts to incoming ENGINE_CONTROL_CMD frames.
type Engine struct {
	Base

	mu           sync.Mutex
	rpm          float64
	targetRPM    float64
	rampPerTick  float64
	coolantTemp  float64
	overheat     bool

	lastBroadcastMs uint64
}

// NewEngine builds the reference Engine ECU with the given ramp rate
// (rpm per tick) applied whenever the current RPM differs from the target.
func NewEngine(rampPerTick float64) *Engine {
	return &Engine{
		Base:        newBase("engine", "1.0.0", EngineSA, 100),
		rpm:         800,
		targetRPM:   800,
		rampPerTick: rampPerTick,
		coolantTemp: 85,
	}
}

func (e *Engine) Start() Result { return nil }
func (e *Engine) Stop() Result  { return nil }

func (e *Engine) OnTick(nowMs, deltaMs uint64) {
	e.mu.Lock()
	if e.rpm < e.targetRPM {
		e.rpm += e.rampPerTick
		if e.rpm > e.targetRPM {
			e.rpm = e.targetRPM
		}
	} else if e.rpm > e.targetRPM {
		e.rpm -= e.rampPerTick
		if e.rpm < e.targetRPM {
			e.rpm = e.targetRPM
		}
	}
	rpm := e.rpm
	temp := e.coolantTemp
	due := nowMs-e.lastBroadcastMs >= e.BroadcastRateMs() || e.lastBroadcastMs == 0
	if due {
		e.lastBroadcastMs = nowMs
	}
	e.mu.Unlock()

	if !due {
		return
	}
	_ = e.Port.SendPGN(j1939codec.PGNEEC1, j1939codec.EncodeEEC1(rpm, 0, 0, false, false, true), 0xFF)
	_ = e.Port.SendPGN(j1939codec.PGNET1, j1939codec.EncodeET1(temp, true), 0xFF)
}

func (e *Engine) OnPGN(msg j1939port.J1939Message) {
	switch msg.PGN {
	case j1939codec.PGNEngineControlCmd:
		e.handleControlCmd(msg)
	}
}

func (e *Engine) handleControlCmd(msg j1939port.J1939Message) {
	if len(msg.Raw) < 3 {
		return
	}
	cmd := msg.Data.EngineControlCmd

	e.mu.Lock()
	if cmd.Enable && cmd.TargetRPM <= 8000 {
		e.targetRPM = float64(cmd.TargetRPM)
	}
	if cmd.Overheat() {
		e.overheat = true
	}
	overheat := e.overheat
	e.mu.Unlock()

	if overheat {
		payload := diagnostics.Encode(
			diagnostics.Lamps{MIL: true, Protect: true},
			[]diagnostics.DTC{{SPN: 110, FMI: 0, CM: 0, OC: 1}}, // coolant temperature, high
		)
		_ = e.Port.SendPGN(j1939codec.PGNDM1, payload, 0xFF)
	}
}

// OnRequest answers a global REQUEST for EEC1 with a point-to-point reply
// addressed back to the requester.
func (e *Engine) OnRequest(requestedPGN uint32, requesterSA uint8) {
	if requestedPGN != j1939codec.PGNEEC1 {
		return
	}
	e.mu.Lock()
	rpm := e.rpm
	e.mu.Unlock()
	_ = e.Port.SendPGN(j1939codec.PGNEEC1, j1939codec.EncodeEEC1(rpm, 0, 0, false, false, true), requesterSA)
}

// IsOverheating reports whether the engine has latched OVERHEAT mode.
func (e *Engine) IsOverheating() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.overheat
}

// CurrentRPM returns the engine's current simulated RPM.
func (e *Engine) CurrentRPM() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rpm
}

var (
	_ ECU             = (*Engine)(nil)
	_ RequestResponder = (*Engine)(nil)
)
