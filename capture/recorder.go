package capture

import (
	"time"

	"j1939sim/canbus"
	"j1939sim/sim"
)

// Recorder taps a bus port as a read-only observer, the same shape the
// spec's instrumentation requirement draws: something can watch every
// frame crossing a bus without being a routing participant in it. It
// never sends, so it cannot perturb the deterministic traffic it is
// recording.
type Recorder struct {
	sched       *sim.Scheduler
	port        canbus.CANPort
	handlerID   int
	vehicleInfo string
	busName     string
	frames      []FrameRecord
}

// NewRecorder attaches a recorder to port, tagging every captured frame
// with the scheduler's current simulation time.
func NewRecorder(sched *sim.Scheduler, port canbus.CANPort, busName, vehicleInfo string) *Recorder {
	r := &Recorder{sched: sched, port: port, busName: busName, vehicleInfo: vehicleInfo}
	r.handlerID = port.OnFrame(r.onFrame)
	return r
}

func (r *Recorder) onFrame(f canbus.Frame) {
	r.frames = append(r.frames, FrameRecord{
		TimestampMs: r.sched.NowMs(),
		ID:          f.ID,
		Extended:    f.Extended,
		Data:        append([]byte(nil), f.Data...),
		BusName:     r.busName,
	})
}

// Stop detaches the recorder from its port; no further frames are
// captured after this returns.
func (r *Recorder) Stop() {
	r.port.OffFrame(r.handlerID)
}

// Session returns everything captured so far as a Session ready to save.
// Wall-clock start/end are session bookkeeping only: they describe when
// the capture was taken, never the spacing between frames.
func (r *Recorder) Session(startedUnix int64) *Session {
	return &Session{
		StartedUnix: startedUnix,
		EndedUnix:   time.Now().Unix(),
		VehicleInfo: r.vehicleInfo,
		BusName:     r.busName,
		Frames:      r.frames,
	}
}
