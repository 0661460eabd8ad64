package ecu

import (
	"j1939sim/j1939port"
	"j1939sim/sim"
)

// RequestResponder is implemented by ECUs that answer global REQUEST
// frames directly, rather than through ordinary PGN subscription.
type RequestResponder interface {
	OnRequest(requestedPGN uint32, requesterSA uint8)
}

// Runner adapts an ECU to sim.Component so the scheduler can drive it
// without depending on the ecu package's richer lifecycle contract.
type Runner struct {
	ecu ECU
}

// NewRunner binds port to ecu and wraps it for scheduler registration. The
// caller is still responsible for calling Start before registering the
// runner as Running.
func NewRunner(e ECU, port *j1939port.Port) *Runner {
	e.BindPort(port)
	port.OnMessage(e.OnPGN)
	if r, ok := e.(RequestResponder); ok {
		port.OnRequest(r.OnRequest)
	}
	return &Runner{ecu: e}
}

func (r *Runner) Name() string { return r.ecu.Name() }

func (r *Runner) Tick(nowMs, deltaMs uint64) {
	r.ecu.OnTick(nowMs, deltaMs)
}

// ECU returns the wrapped ECU for callers that need direct access (e.g. the
// diagnostic tool's request/response counters).
func (r *Runner) ECU() ECU { return r.ecu }

var _ sim.Component = (*Runner)(nil)
