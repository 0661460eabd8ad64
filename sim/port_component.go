package sim

import "j1939sim/j1939port"

// PortComponent adapts a j1939port.Port to the Component interface so the
// scheduler drives its BAM pacing and periodic TP session cleanup.
type PortComponent struct {
	name string
	port *j1939port.Port
}

// NewPortComponent names a port for scheduler registration and error
// reporting; it does not affect wire traffic.
func NewPortComponent(name string, port *j1939port.Port) *PortComponent {
	return &PortComponent{name: name, port: port}
}

func (p *PortComponent) Name() string { return p.name }

func (p *PortComponent) Tick(nowMs uint64, _ uint64) {
	p.port.Tick(nowMs)
}
