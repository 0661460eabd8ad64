package ecu

import (
	"sync"

	"j1939sim/j1939codec"
	"j1939sim/j1939port"
)

// DiagnosticToolSA is the frozen source address of the reference
// Diagnostic Tool ECU.
const DiagnosticToolSA uint8 = 0xF9

// pollCycle is the fixed rotation of PGNs the Diagnostic Tool polls for.
var pollCycle = []uint32{j1939codec.PGNEEC1, j1939codec.PGNET1, j1939codec.PGNETC1}

// DiagnosticTool issues a global REQUEST for the next PGN in pollCycle
// every 500 ms and counts the responses it observes.
type DiagnosticTool struct {
	Base

	mu                sync.Mutex
	cycleIndex        int
	lastBroadcastMs   uint64
	requestsSent      uint64
	responsesReceived uint64
}

// NewDiagnosticTool builds the reference Diagnostic Tool ECU.
func NewDiagnosticTool() *DiagnosticTool {
	return &DiagnosticTool{Base: newBase("diagnostic-tool", "1.0.0", DiagnosticToolSA, 500)}
}

func (d *DiagnosticTool) Start() Result { return nil }
func (d *DiagnosticTool) Stop() Result  { return nil }

func (d *DiagnosticTool) OnTick(nowMs, deltaMs uint64) {
	d.mu.Lock()
	due := nowMs-d.lastBroadcastMs >= d.BroadcastRateMs() || d.lastBroadcastMs == 0
	var pgn uint32
	if due {
		d.lastBroadcastMs = nowMs
		pgn = pollCycle[d.cycleIndex]
		d.cycleIndex = (d.cycleIndex + 1) % len(pollCycle)
		d.requestsSent++
	}
	d.mu.Unlock()

	if !due {
		return
	}
	_ = d.Port.RequestPGN(pgn, 0xFF)
}

func (d *DiagnosticTool) OnPGN(msg j1939port.J1939Message) {
	for _, pgn := range pollCycle {
		if msg.PGN == pgn {
			d.mu.Lock()
			d.responsesReceived++
			d.mu.Unlock()
			return
		}
	}
}

// RequestsSent returns the cumulative count of REQUEST frames issued.
func (d *DiagnosticTool) RequestsSent() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.requestsSent
}

// ResponsesReceived returns the cumulative count of poll-cycle responses
// observed.
func (d *DiagnosticTool) ResponsesReceived() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.responsesReceived
}

var _ ECU = (*DiagnosticTool)(nil)
