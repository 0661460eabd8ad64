package capture

import (
	"fmt"

	"j1939sim/canbus"
)

// Replayer drives a loaded session's frames back onto a live bus port, in
// simulation-clock order, mirroring the teacher's Replayer shape
// (Play/Pause/Resume/JumpTo/GetProgress) but advancing by recorded
// simulation milliseconds rather than sleeping in wall-clock time: replay
// is driven by repeated calls to Advance as the caller's own scheduler
// ticks, not by an independent timer.
type Replayer struct {
	session *Session
	cursor  int
	port    canbus.CANPort
}

// NewReplayer prepares a session for frame-by-frame replay onto port.
func NewReplayer(session *Session, port canbus.CANPort) *Replayer {
	return &Replayer{session: session, port: port}
}

// Advance sends every recorded frame whose timestamp is <= nowMs and has
// not yet been sent, in recorded order. Call it once per tick from the
// driving scheduler.
func (r *Replayer) Advance(nowMs uint64) error {
	for r.cursor < len(r.session.Frames) {
		fr := r.session.Frames[r.cursor]
		if fr.TimestampMs > nowMs {
			break
		}
		if err := r.port.Send(canbus.Frame{ID: fr.ID, Extended: fr.Extended, Data: fr.Data}); err != nil {
			return fmt.Errorf("capture: replaying frame %d: %w", r.cursor, err)
		}
		r.cursor++
	}
	return nil
}

// Done reports whether every recorded frame has been replayed.
func (r *Replayer) Done() bool {
	return r.cursor >= len(r.session.Frames)
}

// JumpTo moves the replay cursor to the first frame at or after
// timestampMs, for seeking without resending earlier frames.
func (r *Replayer) JumpTo(timestampMs uint64) {
	for i, fr := range r.session.Frames {
		if fr.TimestampMs >= timestampMs {
			r.cursor = i
			return
		}
	}
	r.cursor = len(r.session.Frames)
}

// Progress returns the fraction of frames replayed so far, in [0,1].
func (r *Replayer) Progress() float64 {
	if len(r.session.Frames) == 0 {
		return 1
	}
	return float64(r.cursor) / float64(len(r.session.Frames))
}
