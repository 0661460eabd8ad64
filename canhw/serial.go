package canhw

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/tarm/serial"

	"j1939sim/canbus"
)

// SerialCANPort carries CAN frames over a line-oriented USB-CAN-to-serial
// adapter: one frame per line, "<id-hex>,<byte0>,<byte1>,...\n". This is
// the same shape of device used by low-cost hobbyist adapters; it is not a
// standard, just a minimal wire format this port and its counterpart agree
// on.
type SerialCANPort struct {
	port *serial.Port

	mu            sync.Mutex
	handlers      map[int]canbus.FrameHandler
	nextHandlerID int
}

// NewSerialCANPort opens portName at baud and begins reading frames from it
// in the background.
func NewSerialCANPort(portName string, baud int) (*SerialCANPort, error) {
	cfg := &serial.Config{Name: portName, Baud: baud}
	port, err := serial.OpenPort(cfg)
	if err != nil {
		return nil, fmt.Errorf("canhw: opening serial port %s: %w", portName, err)
	}

	p := &SerialCANPort{port: port, handlers: make(map[int]canbus.FrameHandler)}
	go p.readLoop()
	return p, nil
}

func (p *SerialCANPort) readLoop() {
	scanner := bufio.NewScanner(p.port)
	for scanner.Scan() {
		frame, ok := parseSerialFrame(scanner.Text())
		if !ok {
			continue
		}
		p.mu.Lock()
		handlers := make([]canbus.FrameHandler, 0, len(p.handlers))
		for _, h := range p.handlers {
			handlers = append(handlers, h)
		}
		p.mu.Unlock()
		for _, h := range handlers {
			h(frame)
		}
	}
}

func parseSerialFrame(line string) (canbus.Frame, bool) {
	fields := strings.Split(strings.TrimSpace(line), ",")
	if len(fields) < 1 {
		return canbus.Frame{}, false
	}
	id, err := strconv.ParseUint(fields[0], 16, 32)
	if err != nil {
		return canbus.Frame{}, false
	}
	data := make([]byte, 0, len(fields)-1)
	for _, f := range fields[1:] {
		b, err := strconv.ParseUint(f, 16, 8)
		if err != nil {
			return canbus.Frame{}, false
		}
		data = append(data, byte(b))
	}
	return canbus.Frame{ID: uint32(id), Extended: id > 0x7FF, Data: data}, true
}

func formatSerialFrame(frame canbus.Frame) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%X", frame.ID)
	for _, by := range frame.Data {
		fmt.Fprintf(&b, ",%02X", by)
	}
	b.WriteByte('\n')
	return b.String()
}

// Send writes frame to the serial port.
func (p *SerialCANPort) Send(frame canbus.Frame) error {
	_, err := p.port.Write([]byte(formatSerialFrame(frame)))
	return err
}

// OnFrame registers a handler for frames read from the serial port.
func (p *SerialCANPort) OnFrame(handler canbus.FrameHandler) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextHandlerID
	p.nextHandlerID++
	p.handlers[id] = handler
	return id
}

// OffFrame removes a previously registered handler.
func (p *SerialCANPort) OffFrame(id int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.handlers, id)
}

// Close closes the underlying serial port.
func (p *SerialCANPort) Close() error {
	return p.port.Close()
}
