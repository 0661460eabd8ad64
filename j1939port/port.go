package j1939port

import (
	"fmt"
	"sync"

	"j1939sim/canbus"
	"j1939sim/j1939codec"
	"j1939sim/j1939id"
	"j1939sim/tp"
)

type subscriber struct {
	id      int
	handler func(J1939Message)
}

// bamSend tracks one outbound BAM transfer in progress: the CM frame has
// already gone out, and these TP.DT frames are paced at >= 50ms apart.
type bamSend struct {
	pgn        uint32
	da         uint8
	frames     [][]byte
	nextIdx    int
	lastSentMs uint64
	started    bool
}

// Port is the sole abstraction ECUs, plugins, and SDK clients use to send
// and receive J1939 traffic. It wraps a canbus.CANPort, decodes incoming
// frames, reassembles multi-packet messages via a tp.Engine, and fans out
// decoded messages to PGN subscribers.
type Port struct {
	can canbus.CANPort
	tp  *tp.Engine

	mu          sync.Mutex
	sa          uint8
	priority    uint8
	subscribers map[uint32][]subscriber
	nextSubID   int

	onRequest         []func(requestedPGN uint32, requesterSA uint8)
	onAddressClaimed  []func(sa uint8, name uint64)
	onAddressConflict []func(sa uint8, name uint64)
	onError           []func(PortError)
	onTPComplete      []func(TPCompletion)
	onTPTimeout       []func(TPCompletion)

	outboundBAM   []*bamSend
	lastCleanupMs uint64
	nowMs         uint64
}

// TPCompletion describes one transport-protocol session's outcome, for
// observers (metrics, audit logging) that want to track multi-packet
// traffic without participating in reassembly themselves.
type TPCompletion struct {
	SA            uint8
	DA            uint8
	PGN           uint32
	ByteLength    int
	StartedAtMs   uint64
	CompletedAtMs uint64
}

// currentNow returns the simulation clock value as of the most recent
// Tick call, per the determinism contract: all in-core timestamps derive
// from the scheduler, never wall-clock.
func (p *Port) currentNow() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.nowMs
}

// New creates a Port bound to the given CAN transport with source address
// sa. priority is the default priority used for sends (clamped to 0-7).
func New(can canbus.CANPort, sa uint8, priority uint8) *Port {
	if priority > 7 {
		priority = 7
	}
	p := &Port{
		can:         can,
		tp:          tp.NewEngine(),
		sa:          sa,
		priority:    priority,
		subscribers: make(map[uint32][]subscriber),
	}
	can.OnFrame(p.handleFrame)
	return p
}

// SetSourceAddress changes the port's own source address.
func (p *Port) SetSourceAddress(sa uint8) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sa = sa
}

// SourceAddress returns the port's current source address.
func (p *Port) SourceAddress() uint8 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sa
}

// SetPriority changes the default send priority, clamped to 0-7.
func (p *Port) SetPriority(priority uint8) {
	if priority > 7 {
		priority = 7
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.priority = priority
}

// OnPGN registers handler for pgn (or PGNWildcard for every message).
// Returns a handler ID for OffPGN.
func (p *Port) OnPGN(pgn uint32, handler func(J1939Message)) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextSubID
	p.nextSubID++
	p.subscribers[pgn] = append(p.subscribers[pgn], subscriber{id: id, handler: handler})
	return id
}

// OffPGN removes a handler previously registered with OnPGN.
func (p *Port) OffPGN(pgn uint32, handlerID int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	subs := p.subscribers[pgn]
	for i, s := range subs {
		if s.id == handlerID {
			p.subscribers[pgn] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

// OnMessage is equivalent to OnPGN(PGNWildcard, handler): it fires for
// every decoded message, after that message's specific-PGN subscribers.
func (p *Port) OnMessage(handler func(J1939Message)) int {
	return p.OnPGN(PGNWildcard, handler)
}

// OnRequest registers a handler invoked for every incoming REQUEST PGN.
func (p *Port) OnRequest(handler func(requestedPGN uint32, requesterSA uint8)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onRequest = append(p.onRequest, handler)
}

// OnAddressClaimed registers a handler invoked when another node's address
// claim is observed.
func (p *Port) OnAddressClaimed(handler func(sa uint8, name uint64)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onAddressClaimed = append(p.onAddressClaimed, handler)
}

// OnAddressConflict registers a handler invoked when another node claims
// this port's own source address.
func (p *Port) OnAddressConflict(handler func(sa uint8, name uint64)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onAddressConflict = append(p.onAddressConflict, handler)
}

// OnError registers a handler invoked for every error event.
func (p *Port) OnError(handler func(PortError)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onError = append(p.onError, handler)
}

func (p *Port) emitError(kind ErrorKind, pgn uint32, err error) {
	p.mu.Lock()
	handlers := append([]func(PortError){}, p.onError...)
	p.mu.Unlock()
	pe := PortError{Kind: kind, PGN: pgn, Err: err}
	for _, h := range handlers {
		h(pe)
	}
}

// OnTPComplete registers a handler invoked whenever a multi-packet BAM or
// RTS/CTS transfer finishes reassembly, for observers that want a session
// audit trail without taking part in reassembly itself.
func (p *Port) OnTPComplete(handler func(TPCompletion)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onTPComplete = append(p.onTPComplete, handler)
}

// OnTPTimeout registers a handler invoked whenever Tick's periodic cleanup
// evicts a session for inactivity; per spec 4.3/7, no error is raised to
// ordinary subscribers for this, but an observer may still want to log it.
func (p *Port) OnTPTimeout(handler func(TPCompletion)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onTPTimeout = append(p.onTPTimeout, handler)
}

// ActiveTPSessions reports the number of in-flight BAM/RTS sessions this
// port's transport engine is currently tracking.
func (p *Port) ActiveTPSessions() int {
	return p.tp.Count()
}

func (p *Port) emitTPComplete(c TPCompletion) {
	p.mu.Lock()
	handlers := append([]func(TPCompletion){}, p.onTPComplete...)
	p.mu.Unlock()
	for _, h := range handlers {
		h(c)
	}
}

// SendPGN sends data on pgn to destination da (0xFF = broadcast). Payloads
// of 8 bytes or fewer become a single frame, padded with 0xFF. Larger
// payloads (up to 1785 bytes) go out via BAM when da == 0xFF, or RTS/CTS
// otherwise, per the REDESIGN FLAG preferring point-to-point transport
// whenever a specific destination is named.
func (p *Port) SendPGN(pgn uint32, data []byte, da uint8) error {
	if len(data) > 1785 {
		return ErrPayloadTooLarge
	}

	p.mu.Lock()
	sa := p.sa
	priority := p.priority
	p.mu.Unlock()

	if len(data) <= 8 {
		padded := make([]byte, 8)
		for i := range padded {
			padded[i] = 0xFF
		}
		copy(padded, data)
		return p.sendFrame(pgn, padded, sa, da, priority)
	}

	if da == 0xFF {
		cm, frames, err := tp.BuildBAM(pgn, data)
		if err != nil {
			return err
		}
		if err := p.sendFrame(tp.PGNConnManagement, pad8(cm), sa, 0xFF, priority); err != nil {
			return err
		}
		p.mu.Lock()
		p.outboundBAM = append(p.outboundBAM, &bamSend{pgn: pgn, da: 0xFF, frames: frames})
		p.mu.Unlock()
		return nil
	}

	p.tp.StartRTSSend(sa, da, pgn, data, p.currentNow())
	rts, err := tp.BuildRTS(pgn, len(data))
	if err != nil {
		return err
	}
	return p.sendFrame(tp.PGNConnManagement, pad8(rts), sa, da, priority)
}

// RequestPGN sends a REQUEST (0xEA00) for pgn to destination da.
func (p *Port) RequestPGN(pgn uint32, da uint8) error {
	return p.SendPGN(j1939codec.PGNRequest, j1939codec.EncodeRequest(pgn), da)
}

func (p *Port) sendFrame(pgn uint32, data8 []byte, sa, da, priority uint8) error {
	if p.can == nil {
		return ErrNotConnected
	}
	id := j1939id.Build(j1939id.BuildParams{Priority: priority, PGN: pgn, SA: sa, DA: da})
	return p.can.Send(canbus.Frame{ID: id, Extended: true, Data: data8})
}

func pad8(b []byte) []byte {
	if len(b) >= 8 {
		return b[:8]
	}
	out := make([]byte, 8)
	for i := range out {
		out[i] = 0xFF
	}
	copy(out, b)
	return out
}

// Tick is driven by the simulation scheduler once per tick: it paces
// outbound BAM data frames (>= 50ms apart) and periodically evicts expired
// transport sessions. Call at most once per tick; cleanup itself runs at
// most once per second, per the concurrency model.
func (p *Port) Tick(nowMs uint64) {
	p.mu.Lock()
	p.nowMs = nowMs
	sa := p.sa
	var ready []*bamSend
	var stillPending []*bamSend
	for _, b := range p.outboundBAM {
		if !b.started || nowMs-b.lastSentMs >= tp.BAMInterPacketMs {
			ready = append(ready, b)
		} else {
			stillPending = append(stillPending, b)
		}
	}
	p.mu.Unlock()

	for _, b := range ready {
		frame := b.frames[b.nextIdx]
		if err := p.sendFrame(tp.PGNDataTransfer, frame, sa, b.da, p.priority); err != nil {
			p.emitError(ErrorInvalidFrame, tp.PGNDataTransfer, err)
			continue
		}
		b.nextIdx++
		b.started = true
		b.lastSentMs = nowMs
		if b.nextIdx < len(b.frames) {
			stillPending = append(stillPending, b)
		}
	}

	p.mu.Lock()
	p.outboundBAM = stillPending
	runCleanup := nowMs-p.lastCleanupMs >= 1000
	if runCleanup {
		p.lastCleanupMs = nowMs
	}
	p.mu.Unlock()

	if runCleanup {
		evicted := p.tp.Cleanup(nowMs)
		if len(evicted) > 0 {
			p.mu.Lock()
			handlers := append([]func(TPCompletion){}, p.onTPTimeout...)
			p.mu.Unlock()
			for _, s := range evicted {
				c := TPCompletion{SA: s.SA, DA: s.DA, PGN: s.PGN, ByteLength: s.TotalBytes, StartedAtMs: s.StartedAtMs, CompletedAtMs: s.LastActivityMs}
				for _, h := range handlers {
					h(c)
				}
			}
		}
	}
}

// handleFrame implements the internal routing table from the wire: reject
// non-extended frames silently, route TP.CM/TP.DT to the transport engine,
// surface REQUEST as an event, and dispatch everything else to subscribers.
func (p *Port) handleFrame(frame canbus.Frame) {
	if !frame.Extended {
		return
	}
	if frame.ID > j1939id.MaxID {
		p.emitError(ErrorInvalidFrame, 0, fmt.Errorf("j1939port: identifier 0x%X exceeds 29 bits", frame.ID))
		return
	}

	id := j1939id.Parse(frame.ID)
	p.mu.Lock()
	sa := p.sa
	p.mu.Unlock()

	switch id.PGN {
	case tp.PGNConnManagement:
		p.handleConnManagement(id, frame.Data, sa)
	case tp.PGNDataTransfer:
		p.handleDataTransfer(id, frame.Data, sa)
	case j1939codec.PGNRequest:
		p.handleRequest(id, frame.Data)
	default:
		p.dispatch(id, frame.Data, p.currentNow())
	}
}

func (p *Port) handleRequest(id j1939id.Identifier, data []byte) {
	decoded, err := j1939codec.Decode(j1939codec.PGNRequest, data)
	if err != nil {
		p.emitError(ErrorInvalidFrame, j1939codec.PGNRequest, err)
		return
	}
	p.mu.Lock()
	handlers := append([]func(uint32, uint8){}, p.onRequest...)
	p.mu.Unlock()
	for _, h := range handlers {
		h(decoded.Request.RequestedPGN, id.SA)
	}
}

func (p *Port) handleConnManagement(id j1939id.Identifier, data []byte, mySA uint8) {
	ctrl, err := tp.ControlByte(data)
	if err != nil {
		p.emitError(ErrorInvalidFrame, tp.PGNConnManagement, err)
		return
	}

	switch ctrl {
	case tp.ControlBAM:
		length, total, innerPGN, err := tp.ParseCM(data)
		if err != nil {
			p.emitError(ErrorInvalidFrame, tp.PGNConnManagement, err)
			return
		}
		p.tp.StartBAMReceive(id.SA, innerPGN, length, total, p.currentNow())

	case tp.ControlRTS:
		if id.DA != mySA {
			return
		}
		length, total, innerPGN, err := tp.ParseCM(data)
		if err != nil {
			p.emitError(ErrorInvalidFrame, tp.PGNConnManagement, err)
			return
		}
		_, nextPacket, numberOfPackets := p.tp.StartRTSReceive(id.SA, mySA, innerPGN, length, total, p.currentNow())
		cts := tp.BuildCTS(innerPGN, nextPacket, numberOfPackets)
		p.mu.Lock()
		priority := p.priority
		p.mu.Unlock()
		if err := p.sendFrame(tp.PGNConnManagement, pad8(cts), mySA, id.SA, priority); err != nil {
			p.emitError(ErrorInvalidFrame, tp.PGNConnManagement, err)
		}

	case tp.ControlCTS:
		if id.DA != mySA {
			return
		}
		nextPacket, numberOfPackets, innerPGN, err := tp.ParseCTS(data)
		if err != nil {
			p.emitError(ErrorInvalidFrame, tp.PGNConnManagement, err)
			return
		}
		frames, err := p.tp.ProcessCTS(mySA, id.SA, innerPGN, nextPacket, numberOfPackets, p.currentNow())
		if err != nil {
			p.emitError(ErrorTPProtocolViolation, tp.PGNConnManagement, err)
			return
		}
		p.mu.Lock()
		priority := p.priority
		p.mu.Unlock()
		for i, chunk := range frames {
			dt := make([]byte, 8)
			dt[0] = nextPacket + uint8(i)
			copy(dt[1:], chunk)
			if err := p.sendFrame(tp.PGNDataTransfer, dt, mySA, id.SA, priority); err != nil {
				p.emitError(ErrorInvalidFrame, tp.PGNDataTransfer, err)
				return
			}
		}

	case tp.ControlEOM:
		_, _, innerPGN, err := tp.ParseCM(data)
		if err != nil {
			p.emitError(ErrorInvalidFrame, tp.PGNConnManagement, err)
			return
		}
		p.tp.CompleteSend(mySA, id.SA, innerPGN)

	case tp.ControlAbort:
		_, _, innerPGN, err := tp.ParseCM(data)
		if err != nil {
			p.emitError(ErrorInvalidFrame, tp.PGNConnManagement, err)
			return
		}
		p.tp.Abort(id.SA, mySA, innerPGN)
		p.tp.Abort(mySA, id.SA, innerPGN)

	default:
		p.emitError(ErrorTPProtocolViolation, tp.PGNConnManagement, fmt.Errorf("j1939port: unknown TP.CM control byte 0x%02X", ctrl))
	}
}

func (p *Port) handleDataTransfer(id j1939id.Identifier, data []byte, mySA uint8) {
	seq, chunk, err := tp.ParseDT(data)
	if err != nil {
		p.emitError(ErrorInvalidFrame, tp.PGNDataTransfer, err)
		return
	}

	if id.DA == 0xFF {
		innerPGN, ok := p.tp.ActiveSessionPGN(id.SA, 0xFF)
		if !ok {
			p.emitError(ErrorTPProtocolViolation, tp.PGNDataTransfer, fmt.Errorf("j1939port: TP.DT with no active BAM session from sa=0x%02X", id.SA))
			return
		}
		before, _ := p.tp.Status(id.SA, 0xFF, innerPGN)
		assembled, complete, err := p.tp.AddBAMPacket(id.SA, innerPGN, seq, chunk, p.currentNow())
		if err != nil {
			p.emitError(ErrorTPProtocolViolation, tp.PGNDataTransfer, err)
			return
		}
		if complete {
			now := p.currentNow()
			p.emitTPComplete(TPCompletion{SA: id.SA, DA: 0xFF, PGN: innerPGN, ByteLength: len(assembled), StartedAtMs: before.StartedAtMs, CompletedAtMs: now})
			p.dispatch(j1939id.Identifier{Priority: id.Priority, PGN: innerPGN, SA: id.SA, DA: 0xFF, PDU1: false}, assembled, now)
		}
		return
	}

	if id.DA != mySA {
		return
	}
	innerPGN, ok := p.tp.ActiveSessionPGN(id.SA, mySA)
	if !ok {
		p.emitError(ErrorTPProtocolViolation, tp.PGNDataTransfer, fmt.Errorf("j1939port: TP.DT with no active RTS session from sa=0x%02X", id.SA))
		return
	}
	before, _ := p.tp.Status(id.SA, mySA, innerPGN)
	assembled, complete, needCTS, err := p.tp.AddRTSPacket(id.SA, mySA, innerPGN, seq, chunk, p.currentNow())
	if err != nil {
		p.emitError(ErrorTPProtocolViolation, tp.PGNDataTransfer, err)
		return
	}
	if complete {
		eom := tp.BuildEOM(innerPGN, len(assembled), (len(assembled)+tp.DataBytesPerPacket-1)/tp.DataBytesPerPacket)
		p.mu.Lock()
		priority := p.priority
		p.mu.Unlock()
		if err := p.sendFrame(tp.PGNConnManagement, pad8(eom), mySA, id.SA, priority); err != nil {
			p.emitError(ErrorInvalidFrame, tp.PGNConnManagement, err)
		}
		now := p.currentNow()
		p.emitTPComplete(TPCompletion{SA: id.SA, DA: mySA, PGN: innerPGN, ByteLength: len(assembled), StartedAtMs: before.StartedAtMs, CompletedAtMs: now})
		p.dispatch(j1939id.Identifier{Priority: id.Priority, PGN: innerPGN, SA: id.SA, DA: mySA, PDU1: true}, assembled, now)
		return
	}
	if needCTS {
		nextPacket, numberOfPackets, ok := p.tp.NextRTSWindow(id.SA, mySA, innerPGN)
		if ok {
			cts := tp.BuildCTS(innerPGN, nextPacket, numberOfPackets)
			p.mu.Lock()
			priority := p.priority
			p.mu.Unlock()
			if err := p.sendFrame(tp.PGNConnManagement, pad8(cts), mySA, id.SA, priority); err != nil {
				p.emitError(ErrorInvalidFrame, tp.PGNConnManagement, err)
			}
		}
	}
}

// dispatch decodes and delivers a reassembled or single-frame message to
// specific subscribers (registration order), then wildcard subscribers
// (registration order). A handler panic is recovered, surfaced as a
// HandlerFault error event, and does not stop remaining subscribers.
func (p *Port) dispatch(id j1939id.Identifier, data []byte, timestampMs uint64) {
	decoded, err := j1939codec.Decode(id.PGN, data)
	if err != nil {
		p.emitError(ErrorInvalidFrame, id.PGN, err)
		return
	}
	msg := J1939Message{
		PGN:         id.PGN,
		PGNName:     j1939codec.Name(id.PGN),
		SA:          id.SA,
		DA:          id.DA,
		Priority:    id.Priority,
		TimestampMs: timestampMs,
		Data:        decoded,
		Raw:         data,
	}

	p.mu.Lock()
	specific := append([]subscriber{}, p.subscribers[id.PGN]...)
	wildcard := append([]subscriber{}, p.subscribers[PGNWildcard]...)
	p.mu.Unlock()

	for _, s := range specific {
		p.invoke(s, msg)
	}
	for _, s := range wildcard {
		p.invoke(s, msg)
	}

	if id.PGN == j1939codec.PGNAddressClaimed {
		p.handleAddressClaimed(id, data)
	}
}

func (p *Port) invoke(s subscriber, msg J1939Message) {
	defer func() {
		if r := recover(); r != nil {
			p.emitError(ErrorHandlerFault, msg.PGN, fmt.Errorf("j1939port: handler panicked: %v", r))
		}
	}()
	s.handler(msg)
}

func (p *Port) handleAddressClaimed(id j1939id.Identifier, data []byte) {
	var name uint64
	for i := 0; i < 8 && i < len(data); i++ {
		name |= uint64(data[i]) << (8 * i)
	}

	p.mu.Lock()
	mySA := p.sa
	claimed := append([]func(uint8, uint64){}, p.onAddressClaimed...)
	conflict := append([]func(uint8, uint64){}, p.onAddressConflict...)
	p.mu.Unlock()

	if id.SA == mySA {
		for _, h := range conflict {
			h(id.SA, name)
		}
		return
	}
	for _, h := range claimed {
		h(id.SA, name)
	}
}
