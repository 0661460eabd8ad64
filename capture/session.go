// Package capture records and replays virtual-bus traffic for offline
// analysis, grounded on the teacher's capture package (capture.go,
// replay.go) but keyed by simulation-clock milliseconds rather than wall
// time, so a captured session reproduces the same relative frame spacing
// on replay regardless of when it is replayed. Session metadata (start/end)
// is the one place wall-clock time is recorded, since it only describes
// when the capture was taken, not the timing of its contents.
package capture

import (
	"encoding/json"
	"fmt"
	"os"
)

// FrameRecord is one captured CAN frame, timestamped against the
// simulation clock at the moment it was observed.
type FrameRecord struct {
	TimestampMs uint64 `json:"timestamp_ms"`
	ID          uint32 `json:"id"`
	Extended    bool   `json:"extended"`
	Data        []byte `json:"data"`
	BusName     string `json:"bus_name"`
}

// Session is a complete capture: wall-clock bookkeeping plus the ordered
// frames recorded against simulation time.
type Session struct {
	StartedUnix  int64         `json:"started_unix"`
	EndedUnix    int64         `json:"ended_unix"`
	VehicleInfo  string        `json:"vehicle_info"`
	BusName      string        `json:"bus_name"`
	Frames       []FrameRecord `json:"frames"`
}

// SaveSession writes a session to path as JSON.
func SaveSession(path string, s *Session) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("capture: creating %s: %w", path, err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("capture: encoding session: %w", err)
	}
	return nil
}

// LoadSession reads a previously saved session from path.
func LoadSession(path string) (*Session, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("capture: opening %s: %w", path, err)
	}
	defer f.Close()

	var s Session
	if err := json.NewDecoder(f).Decode(&s); err != nil {
		return nil, fmt.Errorf("capture: decoding %s: %w", path, err)
	}
	return &s, nil
}
