package canbus

import (
	"fmt"
	"sync"
)

// pendingDelivery is one frame queued for delivery to every port on a bus
// other than its sender.
type pendingDelivery struct {
	sender *Port
	frame  Frame
}

// Bus is a single named virtual CAN segment. Frames sent this tick are
// held back: the Pump that ends this tick moves them to the due queue, and
// the Pump after it (the end of the next tick) delivers them, matching the
// "one scheduler tick later" delivery contract.
type Bus struct {
	name string

	mu          sync.Mutex
	ports       []*Port
	deliverNow  []pendingDelivery
	deliverNext []pendingDelivery
}

func newBus(name string) *Bus {
	return &Bus{name: name}
}

func (b *Bus) attach(p *Port) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ports = append(b.ports, p)
}

func (b *Bus) detach(p *Port) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, port := range b.ports {
		if port == p {
			b.ports = append(b.ports[:i], b.ports[i+1:]...)
			return
		}
	}
}

func (b *Bus) enqueue(sender *Port, frame Frame) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deliverNext = append(b.deliverNext, pendingDelivery{sender: sender, frame: frame})
}

// pump delivers everything queued by the previous call (one tick's worth
// of sends) to every connected port other than the original sender, in
// bus insertion order, then rotates the queue for the next call.
func (b *Bus) pump() {
	b.mu.Lock()
	due := b.deliverNow
	ports := make([]*Port, len(b.ports))
	copy(ports, b.ports)
	b.deliverNow = b.deliverNext
	b.deliverNext = nil
	b.mu.Unlock()

	for _, d := range due {
		for _, port := range ports {
			if port == d.sender {
				continue
			}
			port.deliver(d.frame)
		}
	}
}

// Registry owns every named bus in a simulation. The scheduler calls Pump
// once per tick, after all components have ticked, to flush deferred
// deliveries queued during that tick.
type Registry struct {
	mu    sync.Mutex
	buses map[string]*Bus
}

// NewRegistry creates an empty bus registry.
func NewRegistry() *Registry {
	return &Registry{buses: make(map[string]*Bus)}
}

func (r *Registry) bus(name string) *Bus {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.buses[name]
	if !ok {
		b = newBus(name)
		r.buses[name] = b
	}
	return b
}

// Pump flushes deferred deliveries on every bus in the registry. Call
// exactly once per scheduler tick.
func (r *Registry) Pump() {
	r.mu.Lock()
	buses := make([]*Bus, 0, len(r.buses))
	for _, b := range r.buses {
		buses = append(buses, b)
	}
	r.mu.Unlock()
	for _, b := range buses {
		b.pump()
	}
}

// Port is one endpoint connected to a named bus on a Registry.
type Port struct {
	registry *Registry
	bus      *Bus

	mu            sync.Mutex
	handlers      map[int]FrameHandler
	nextHandlerID int
}

// Connect attaches a new port to bus_name, creating the bus on first use.
func (r *Registry) Connect(busName string) *Port {
	p := &Port{registry: r, handlers: make(map[int]FrameHandler)}
	p.bus = r.bus(busName)
	p.bus.attach(p)
	return p
}

// Disconnect removes the port from its bus. A disconnected port can no
// longer send or receive.
func (p *Port) Disconnect() {
	if p.bus == nil {
		return
	}
	p.bus.detach(p)
	p.bus = nil
}

// Send queues frame for delivery to every other port on the bus; it is
// delivered by the second Pump call after the send.
func (p *Port) Send(frame Frame) error {
	if p.bus == nil {
		return fmt.Errorf("canbus: port is not connected to a bus")
	}
	p.bus.enqueue(p, frame)
	return nil
}

// OnFrame registers a handler invoked for every frame this port receives,
// returning a handler ID usable with OffFrame.
func (p *Port) OnFrame(handler FrameHandler) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextHandlerID
	p.nextHandlerID++
	p.handlers[id] = handler
	return id
}

// OffFrame removes a previously registered handler.
func (p *Port) OffFrame(id int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.handlers, id)
}

// InjectFrame is a test hook: deliver frame to this port's own handlers
// immediately, as if it had arrived from the bus, bypassing the deferred
// delivery queue.
func (p *Port) InjectFrame(frame Frame) {
	p.deliver(frame)
}

func (p *Port) deliver(frame Frame) {
	p.mu.Lock()
	handlers := make([]FrameHandler, 0, len(p.handlers))
	for _, h := range p.handlers {
		handlers = append(handlers, h)
	}
	p.mu.Unlock()
	for _, h := range handlers {
		h(frame)
	}
}
