package diagstore

import (
	"testing"

	"github.com/rs/xid"

	"j1939sim/diagnostics"
	"j1939sim/tp"
)

func TestOpenCreatesSchema(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()
}

func TestRecordDM1PersistsDecodedFault(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	runID := xid.New()
	decoded := diagnostics.Decoded{
		Lamps: diagnostics.Lamps{MIL: true},
		DTCs:  []diagnostics.DTC{{SPN: 100, FMI: 3, CM: 0, OC: 1}},
	}

	if err := s.RecordDM1(runID, 0x00, decoded, 1000); err != nil {
		t.Fatalf("RecordDM1: %v", err)
	}

	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM dm1_history WHERE run_id = ? AND sa = ?`, runID.String(), 0).Scan(&count); err != nil {
		t.Fatalf("querying dm1_history: %v", err)
	}
	if count != 1 {
		t.Errorf("dm1_history row count = %d, want 1", count)
	}
}

func TestRecordTPSessionComputesDuration(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	runID := xid.New()
	sess := tp.Session{SA: 0x00, DA: 0xFF, PGN: 0xFEF1, TotalBytes: 200, StartedAtMs: 1000, LastActivityMs: 1500}

	if err := s.RecordTPSession(runID, sess, "delivered"); err != nil {
		t.Fatalf("RecordTPSession: %v", err)
	}

	var duration int64
	if err := s.db.QueryRow(`SELECT duration_ms FROM tp_sessions WHERE run_id = ?`, runID.String()).Scan(&duration); err != nil {
		t.Fatalf("querying tp_sessions: %v", err)
	}
	if duration != 500 {
		t.Errorf("duration_ms = %d, want 500", duration)
	}
}
