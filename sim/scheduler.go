// Package sim implements the fixed-timestep, single-threaded scheduler that
// drives every registered simulation component in lockstep and is the sole
// source of simulated time for the rest of the engine.
package sim

import (
	"fmt"
	"sync"
	"time"

	"j1939sim/canbus"
)

// State is a component's lifecycle state.
type State int

const (
	Stopped State = iota
	Running
	Paused
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "Stopped"
	case Running:
		return "Running"
	case Paused:
		return "Paused"
	default:
		return "Unknown"
	}
}

// Component is anything the scheduler drives on every tick. ECUs, plugins,
// and j1939 ports (via PortComponent) are Components; the virtual bus pump
// is not one, Step runs it itself after every component has ticked.
type Component interface {
	Name() string
	Tick(nowMs uint64, deltaMs uint64)
}

// ErrorEvent is delivered when a component's Tick panics or otherwise
// misbehaves; it never stops the scheduler or other components.
type ErrorEvent struct {
	Component string
	Err       error
}

func (e ErrorEvent) Error() string {
	return fmt.Sprintf("sim: component %q: %v", e.Component, e.Err)
}

type registeredComponent struct {
	component Component
	state     State
}

// Scheduler drives registered components at a fixed tick period, starting
// a monotonic simulation clock at 0 that advances by exactly TickMs per
// tick regardless of wall-clock drift. Given identical inputs and
// identical registration order, two runs produce byte-identical CAN
// traffic over the virtual bus.
type Scheduler struct {
	TickMs uint64

	registry *canbus.Registry

	mu         sync.Mutex
	components []*registeredComponent
	nowMs      uint64
	running    bool

	onError []func(ErrorEvent)

	stopCh chan struct{}
	doneCh chan struct{}
}

// New builds a Scheduler that pumps busRegistry once per tick after every
// component has run, so frames sent during this tick are visible to
// subscribers starting next tick (deferred-delivery contract).
func New(busRegistry *canbus.Registry, tickMs uint64) *Scheduler {
	if tickMs == 0 {
		tickMs = 10
	}
	return &Scheduler{
		TickMs:   tickMs,
		registry: busRegistry,
	}
}

// Register adds a component in Stopped state. Components tick in
// registration order; this order is part of the determinism contract.
func (s *Scheduler) Register(c Component) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.components = append(s.components, &registeredComponent{component: c, state: Stopped})
}

// OnError subscribes to component-tick failures.
func (s *Scheduler) OnError(handler func(ErrorEvent)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onError = append(s.onError, handler)
}

// SetState transitions a named component between Stopped, Running, and
// Paused. Only Running components receive Tick calls.
func (s *Scheduler) SetState(name string, state State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rc := range s.components {
		if rc.component.Name() == name {
			rc.state = state
			return nil
		}
	}
	return fmt.Errorf("sim: no component named %q", name)
}

// NowMs returns the current simulation clock value.
func (s *Scheduler) NowMs() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nowMs
}

// IsRunning reports whether Run has been started and Stop has not yet
// completed, for external health reporting.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Step advances the simulation clock by exactly TickMs and runs one tick of
// every Running component, in registration order, followed by one bus
// pump. It is exposed directly so tests and the replay tooling can drive
// the clock without a wall-clock ticker.
func (s *Scheduler) Step() {
	s.mu.Lock()
	s.nowMs += s.TickMs
	now := s.nowMs
	delta := s.TickMs
	snapshot := append([]*registeredComponent{}, s.components...)
	s.mu.Unlock()

	for _, rc := range snapshot {
		s.mu.Lock()
		state := rc.state
		s.mu.Unlock()
		if state != Running {
			continue
		}
		s.runOne(rc.component, now, delta)
	}

	if s.registry != nil {
		s.registry.Pump()
	}
}

func (s *Scheduler) runOne(c Component, now, delta uint64) {
	defer func() {
		if r := recover(); r != nil {
			s.emitError(c.Name(), fmt.Errorf("panic: %v", r))
		}
	}()
	c.Tick(now, delta)
}

func (s *Scheduler) emitError(name string, err error) {
	s.mu.Lock()
	handlers := append([]func(ErrorEvent){}, s.onError...)
	s.mu.Unlock()
	ev := ErrorEvent{Component: name, Err: err}
	for _, h := range handlers {
		h(ev)
	}
}

// Run starts a real-time loop that calls Step once every TickMs, driven by
// a time.Ticker. The loop runs in its own goroutine and Run returns
// immediately; Stop halts it. Wall-clock drift is
// absorbed here: the simulation clock itself only ever advances by
// TickMs per Step, never by elapsed wall time.
func (s *Scheduler) Run() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer close(s.doneCh)
		ticker := time.NewTicker(time.Duration(s.TickMs) * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.Step()
			case <-s.stopCh:
				return
			}
		}
	}()
}

// Stop halts a scheduler started with Run and waits for its goroutine to
// exit. It is a no-op if the scheduler was never started.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	stopCh := s.stopCh
	doneCh := s.doneCh
	s.mu.Unlock()

	close(stopCh)
	<-doneCh
}
