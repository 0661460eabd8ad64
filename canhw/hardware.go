// Package canhw provides CANPort implementations backed by real transports
// (SocketCAN, a serial USB-CAN adapter) for bridging the simulator's
// protocol stack onto actual hardware. Neither is used by the deterministic
// scheduler, which always runs on canbus's virtual bus to preserve the
// determinism contract; both satisfy canbus.CANPort and can be driven by
// the same j1939port.Port as any virtual-bus test.
package canhw

import (
	"fmt"
	"sync"

	"github.com/brutella/can"

	"j1939sim/canbus"
)

// HardwareCANPort bridges canbus.CANPort onto a real SocketCAN interface
// via brutella/can.
type HardwareCANPort struct {
	bus *can.Bus

	mu            sync.Mutex
	handlers      map[int]canbus.FrameHandler
	nextHandlerID int
}

// NewHardwareCANPort opens a SocketCAN bus on the named interface (e.g.
// "can0") and starts receiving in the background.
func NewHardwareCANPort(iface string) (*HardwareCANPort, error) {
	bus, err := can.NewBusForInterface(iface)
	if err != nil {
		return nil, fmt.Errorf("canhw: opening CAN interface %s: %w", iface, err)
	}

	p := &HardwareCANPort{bus: bus, handlers: make(map[int]canbus.FrameHandler)}
	bus.SubscribeFunc(p.onHardwareFrame)

	go func() {
		if err := bus.ConnectAndPublish(); err != nil {
			// The bus loop has exited; subsequent Send calls will fail.
			_ = err
		}
	}()

	return p, nil
}

func (p *HardwareCANPort) onHardwareFrame(frame can.Frame) {
	p.mu.Lock()
	handlers := make([]canbus.FrameHandler, 0, len(p.handlers))
	for _, h := range p.handlers {
		handlers = append(handlers, h)
	}
	p.mu.Unlock()

	f := canbus.Frame{
		ID:       frame.ID,
		Extended: frame.ID > 0x7FF,
		Data:     append([]byte(nil), frame.Data[:frame.Length]...),
	}
	for _, h := range handlers {
		h(f)
	}
}

// Send publishes frame onto the real bus.
func (p *HardwareCANPort) Send(frame canbus.Frame) error {
	if len(frame.Data) > 8 {
		return fmt.Errorf("canhw: frame data length %d exceeds 8 bytes", len(frame.Data))
	}
	var data [8]byte
	copy(data[:], frame.Data)
	return p.bus.Publish(can.Frame{
		ID:     frame.ID,
		Length: uint8(len(frame.Data)),
		Data:   data,
	})
}

// OnFrame registers a handler for frames received from the hardware bus.
func (p *HardwareCANPort) OnFrame(handler canbus.FrameHandler) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextHandlerID
	p.nextHandlerID++
	p.handlers[id] = handler
	return id
}

// OffFrame removes a previously registered handler.
func (p *HardwareCANPort) OffFrame(id int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.handlers, id)
}

// Close shuts down the underlying SocketCAN bus.
func (p *HardwareCANPort) Close() error {
	return p.bus.Disconnect()
}
