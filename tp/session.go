package tp

import (
	"fmt"
	"sync"
)

// DefaultCTSWindow bounds how many packets a single CTS proposes, so
// messages longer than this exercise multiple CTS/DT rounds even though the
// protocol itself permits a destination to request everything in one shot.
const DefaultCTSWindow = 16

// sessionKey identifies one in-flight transport session. Broadcast (BAM)
// sessions use DA=0xFF, matching the wire convention for the global address.
type sessionKey struct {
	sa  uint8
	da  uint8
	pgn uint32
}

// Session mirrors the reassembly/send state for one transport message, per
// the wire data model: total size, which packets have arrived, the buffer
// they land in, and activity timestamps used for timeout eviction.
type Session struct {
	PGN            uint32
	TotalBytes     int
	TotalPackets   int
	ReceivedBitmap []bool
	Buffer         []byte
	SA             uint8
	DA             uint8
	StartedAtMs    uint64
	LastActivityMs uint64
	State          State
	// WindowEnd is the highest sequence number granted by the most recent
	// CTS; once receivedCount reaches it, the receiver must issue another
	// CTS (or, for BAM, equals TotalPackets since there is no windowing).
	WindowEnd int

	role role
}

type role int

const (
	roleReceiving role = iota
	roleSending
)

func newReceiveSession(sa, da uint8, pgn uint32, totalBytes, totalPackets int, nowMs uint64) *Session {
	return &Session{
		PGN:            pgn,
		TotalBytes:     totalBytes,
		TotalPackets:   totalPackets,
		ReceivedBitmap: make([]bool, totalPackets),
		Buffer:         make([]byte, totalPackets*DataBytesPerPacket),
		SA:             sa,
		DA:             da,
		StartedAtMs:    nowMs,
		LastActivityMs: nowMs,
		State:          StateTransferring,
		WindowEnd:      totalPackets,
		role:           roleReceiving,
	}
}

// receivedCount reports how many packets have landed in the session buffer.
func (s *Session) receivedCount() int {
	n := 0
	for _, got := range s.ReceivedBitmap {
		if got {
			n++
		}
	}
	return n
}

func (s *Session) ingest(seq uint8, data []byte, nowMs uint64) error {
	if int(seq) < 1 || int(seq) > s.TotalPackets {
		return fmt.Errorf("tp: sequence %d out of range for %d-packet session", seq, s.TotalPackets)
	}
	idx := int(seq) - 1
	offset := idx * DataBytesPerPacket
	n := copy(s.Buffer[offset:offset+DataBytesPerPacket], data)
	for i := offset + n; i < offset+DataBytesPerPacket; i++ {
		s.Buffer[i] = 0xFF
	}
	s.ReceivedBitmap[idx] = true
	s.LastActivityMs = nowMs
	if s.receivedCount() == s.TotalPackets {
		s.State = StateComplete
		s.Buffer = s.Buffer[:s.TotalBytes]
	}
	return nil
}

// Engine tracks every active BAM and RTS/CTS transport session, keyed by
// (sa, da, pgn). It has no knowledge of the surrounding CAN wire; callers
// feed it decoded control/data bytes and pull frames to emit in return.
type Engine struct {
	mu       sync.Mutex
	sessions map[sessionKey]*Session
}

// NewEngine creates an empty transport protocol engine.
func NewEngine() *Engine {
	return &Engine{sessions: make(map[sessionKey]*Session)}
}

// StartBAMReceive opens a reassembly session for an observed TP.CM-BAM
// announcement. A session already active for (sa, pgn) is discarded and
// replaced, per the tie-break rule: a new BAM always wins.
func (e *Engine) StartBAMReceive(sa uint8, pgn uint32, totalBytes, totalPackets int, nowMs uint64) *Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	key := sessionKey{sa: sa, da: 0xFF, pgn: pgn}
	s := newReceiveSession(sa, 0xFF, pgn, totalBytes, totalPackets, nowMs)
	e.sessions[key] = s
	return s
}

// AddBAMPacket ingests one TP.DT frame into an active BAM session. It
// returns the reassembled bytes and true once the final packet has arrived;
// the session is removed from the engine at that point.
func (e *Engine) AddBAMPacket(sa uint8, pgn uint32, seq uint8, data []byte, nowMs uint64) (assembled []byte, complete bool, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	key := sessionKey{sa: sa, da: 0xFF, pgn: pgn}
	s, ok := e.sessions[key]
	if !ok {
		return nil, false, fmt.Errorf("tp: no active BAM session for sa=0x%02X pgn=0x%X", sa, pgn)
	}
	if err := s.ingest(seq, data, nowMs); err != nil {
		return nil, false, err
	}
	if s.State == StateComplete {
		delete(e.sessions, key)
		return s.Buffer, true, nil
	}
	return nil, false, nil
}

// StartRTSSend begins a point-to-point send: stores the full message buffer
// and moves to WaitingCTS. The returned Session is a snapshot copy.
func (e *Engine) StartRTSSend(sa, da uint8, pgn uint32, data []byte, nowMs uint64) Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	key := sessionKey{sa: sa, da: da, pgn: pgn}
	total := packetCount(len(data))
	buf := make([]byte, len(data))
	copy(buf, data)
	s := &Session{
		PGN:            pgn,
		TotalBytes:     len(data),
		TotalPackets:   total,
		ReceivedBitmap: make([]bool, total),
		Buffer:         buf,
		SA:             sa,
		DA:             da,
		StartedAtMs:    nowMs,
		LastActivityMs: nowMs,
		State:          StateWaitingCTS,
		role:           roleSending,
	}
	e.sessions[key] = s
	return *s
}

// ProcessCTS handles an incoming CTS directed at a session we are sending,
// returning the raw 7-byte data chunks for the requested window in order.
// numberOfPackets == 0 is a valid "destination not ready" response and
// yields no frames without altering session state beyond the activity stamp.
func (e *Engine) ProcessCTS(sa, da uint8, pgn uint32, nextPacket, numberOfPackets uint8, nowMs uint64) ([][]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	key := sessionKey{sa: sa, da: da, pgn: pgn}
	s, ok := e.sessions[key]
	if !ok {
		return nil, fmt.Errorf("tp: no active RTS send session for sa=0x%02X da=0x%02X pgn=0x%X", sa, da, pgn)
	}
	if s.State != StateWaitingCTS && s.State != StateTransferring {
		return nil, fmt.Errorf("tp: CTS received for session in state %s", s.State)
	}
	s.LastActivityMs = nowMs
	if numberOfPackets == 0 {
		return nil, nil
	}
	s.State = StateTransferring

	var frames [][]byte
	for i := 0; i < int(numberOfPackets); i++ {
		seq := int(nextPacket) + i
		if seq < 1 || seq > s.TotalPackets {
			return nil, fmt.Errorf("tp: CTS window references out-of-range packet %d of %d", seq, s.TotalPackets)
		}
		offset := (seq - 1) * DataBytesPerPacket
		end := offset + DataBytesPerPacket
		chunk := make([]byte, DataBytesPerPacket)
		if offset < len(s.Buffer) {
			n := copy(chunk, s.Buffer[offset:min(end, len(s.Buffer))])
			for j := n; j < DataBytesPerPacket; j++ {
				chunk[j] = 0xFF
			}
		} else {
			for j := range chunk {
				chunk[j] = 0xFF
			}
		}
		frames = append(frames, chunk)
	}
	return frames, nil
}

// CompleteSend removes a sending session from the engine; callers that
// sent every requested packet call this once the destination's EOM arrives.
func (e *Engine) CompleteSend(sa, da uint8, pgn uint32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	key := sessionKey{sa: sa, da: da, pgn: pgn}
	delete(e.sessions, key)
}

// StartRTSReceive opens a reassembly session for an observed TP.CM-RTS
// announcement and proposes the next CTS window to send back.
func (e *Engine) StartRTSReceive(sa, da uint8, pgn uint32, totalBytes, totalPackets int, nowMs uint64) (session Session, nextPacket, numberOfPackets uint8) {
	e.mu.Lock()
	defer e.mu.Unlock()
	key := sessionKey{sa: sa, da: da, pgn: pgn}
	s := newReceiveSession(sa, da, pgn, totalBytes, totalPackets, nowMs)
	s.State = StateWaitingCTS
	window := totalPackets
	if window > DefaultCTSWindow {
		window = DefaultCTSWindow
	}
	s.WindowEnd = window
	e.sessions[key] = s
	return *s, 1, uint8(window)
}

// AddRTSPacket ingests one TP.DT frame into an active RTS receive session.
// needCTS reports that the granted window has been fully received and the
// session is not yet complete, so the caller must issue another CTS.
func (e *Engine) AddRTSPacket(sa, da uint8, pgn uint32, seq uint8, data []byte, nowMs uint64) (assembled []byte, complete, needCTS bool, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	key := sessionKey{sa: sa, da: da, pgn: pgn}
	s, ok := e.sessions[key]
	if !ok {
		return nil, false, false, fmt.Errorf("tp: no active RTS receive session for sa=0x%02X da=0x%02X pgn=0x%X", sa, da, pgn)
	}
	if s.State == StateWaitingCTS {
		s.State = StateTransferring
	}
	if err := s.ingest(seq, data, nowMs); err != nil {
		return nil, false, false, err
	}
	if s.State == StateComplete {
		delete(e.sessions, key)
		return s.Buffer, true, false, nil
	}
	if s.receivedCount() >= s.WindowEnd {
		return nil, false, true, nil
	}
	return nil, false, false, nil
}

// NextRTSWindow proposes and grants the next CTS window for a receive
// session that is not yet complete, given how many packets have landed so
// far, and records the new window bound on the session.
func (e *Engine) NextRTSWindow(sa, da uint8, pgn uint32) (nextPacket, numberOfPackets uint8, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	key := sessionKey{sa: sa, da: da, pgn: pgn}
	s, found := e.sessions[key]
	if !found || s.State == StateComplete {
		return 0, 0, false
	}
	received := s.receivedCount()
	remaining := s.TotalPackets - received
	if remaining <= 0 {
		return 0, 0, false
	}
	window := remaining
	if window > DefaultCTSWindow {
		window = DefaultCTSWindow
	}
	s.WindowEnd = received + window
	return uint8(received + 1), uint8(window), true
}

// ActiveSessionPGN finds the PGN of the single active session for (sa, da),
// if any. TP.DT frames carry no PGN of their own, so a receiver must look
// up the in-flight session by address pair alone; the "no two simultaneous
// sessions for the same (sa, dest, pgn)" invariant also rules out more than
// one live session per (sa, da) on a real bus.
func (e *Engine) ActiveSessionPGN(sa, da uint8) (pgn uint32, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for key := range e.sessions {
		if key.sa == sa && key.da == da {
			return key.pgn, true
		}
	}
	return 0, false
}

// Abort discards any session matching (sa, da, pgn), regardless of role.
func (e *Engine) Abort(sa, da uint8, pgn uint32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.sessions, sessionKey{sa: sa, da: da, pgn: pgn})
}

// Status returns a snapshot of the session for (sa, da, pgn), if any.
func (e *Engine) Status(sa, da uint8, pgn uint32) (Session, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[sessionKey{sa: sa, da: da, pgn: pgn}]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// Count reports how many sessions (sending or receiving, any state) are
// currently tracked, for observability gauges.
func (e *Engine) Count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.sessions)
}

// Cleanup evicts sessions that have exceeded the relevant timeout: 500ms
// for a sender still WaitingCTS, 1250ms general inactivity otherwise
// (receivers included, whatever their state).
func (e *Engine) Cleanup(nowMs uint64) []Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	var evicted []Session
	for key, s := range e.sessions {
		idle := nowMs - s.LastActivityMs
		timedOut := idle > InactivityTimeoutMs
		if s.State == StateWaitingCTS && s.role == roleSending && idle > CTSWaitTimeoutMs {
			timedOut = true
		}
		if timedOut {
			s.State = StateAborted
			evicted = append(evicted, *s)
			delete(e.sessions, key)
		}
	}
	return evicted
}
