package ecu

import (
	"fmt"

	"j1939sim/j1939port"
	"j1939sim/sim"
)

// PluginContext is the entire capability surface a plugin receives. It
// deliberately exposes nothing beyond sending, requesting, subscribing,
// and reading simulation time — a plugin cannot reach the port, the
// scheduler, or any other host state.
type PluginContext interface {
	SendPGN(pgn uint32, data []byte, da uint8) error
	RequestPGN(pgn uint32, da uint8) error
	SubscribePGN(pgn uint32, handler func(j1939port.J1939Message))
	GetTimeMs() uint64
}

// Plugin is the frozen third-party extension contract.
type Plugin interface {
	Init(ctx PluginContext) error
	Shutdown()
	OnTick(nowMs uint64)
	OnPGN(msg j1939port.J1939Message)
}

type pluginContext struct {
	port  *j1939port.Port
	nowMs func() uint64
}

func (c *pluginContext) SendPGN(pgn uint32, data []byte, da uint8) error {
	return c.port.SendPGN(pgn, data, da)
}

func (c *pluginContext) RequestPGN(pgn uint32, da uint8) error {
	return c.port.RequestPGN(pgn, da)
}

func (c *pluginContext) SubscribePGN(pgn uint32, handler func(j1939port.J1939Message)) {
	c.port.OnPGN(pgn, handler)
}

func (c *pluginContext) GetTimeMs() uint64 {
	return c.nowMs()
}

// PluginHost registers plugins against a port, handing each one a
// capability-scoped PluginContext rather than the port itself.
type PluginHost struct {
	port    *j1939port.Port
	nowMs   func() uint64
	plugins []Plugin
}

// NewPluginHost builds a host bound to port; nowMs supplies simulation time
// to GetTimeMs so plugins never read the wall clock.
func NewPluginHost(port *j1939port.Port, nowMs func() uint64) *PluginHost {
	return &PluginHost{port: port, nowMs: nowMs}
}

// Register validates that plugin is non-nil and calls Init with a fresh,
// capability-scoped context. A plugin whose Init returns an error is not
// added to the host's driven set.
func (h *PluginHost) Register(plugin Plugin) error {
	if plugin == nil {
		return fmt.Errorf("ecu: cannot register a nil plugin")
	}
	ctx := &pluginContext{port: h.port, nowMs: h.nowMs}
	if err := plugin.Init(ctx); err != nil {
		return fmt.Errorf("ecu: plugin init failed: %w", err)
	}
	h.plugins = append(h.plugins, plugin)
	return nil
}

// Name identifies the host as a single scheduler component driving every
// registered plugin's OnTick in registration order.
func (h *PluginHost) Name() string { return "plugin-host" }

// Tick drives every registered plugin's OnTick, satisfying sim.Component.
func (h *PluginHost) Tick(nowMs, deltaMs uint64) {
	for _, p := range h.plugins {
		p.OnTick(nowMs)
	}
}

// Shutdown calls Shutdown on every registered plugin.
func (h *PluginHost) Shutdown() {
	for _, p := range h.plugins {
		p.Shutdown()
	}
}

var _ sim.Component = (*PluginHost)(nil)
