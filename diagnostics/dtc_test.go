package diagnostics

import "testing"

func TestDecodeScenarioE(t *testing.T) {
	data := []byte{0x04, 0xE9, 0x18, 0x00, 0x09, 0x00, 0x00, 0x00}
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Lamps != (Lamps{MIL: true}) {
		t.Errorf("lamps = %+v, want only MIL set", got.Lamps)
	}
	if len(got.DTCs) != 1 {
		t.Fatalf("expected exactly one DTC, got %d", len(got.DTCs))
	}
	want := DTC{SPN: 6377, FMI: 9, CM: 0, OC: 0}
	if got.DTCs[0] != want {
		t.Errorf("dtc = %+v, want %+v", got.DTCs[0], want)
	}
}

func TestDecodeNoFaultIsZeroDTCs(t *testing.T) {
	data := []byte{0x00, 0, 0, 0, 0, 0, 0, 0}
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got.DTCs) != 0 {
		t.Errorf("expected zero DTCs for all-zero payload, got %d", len(got.DTCs))
	}
}

func TestDecodeRejectsShortPayload(t *testing.T) {
	_, err := Decode([]byte{0x04, 0x01, 0x02})
	if err == nil {
		t.Error("expected error for payload shorter than 8 bytes")
	}
}

func TestLampDecodingProperty(t *testing.T) {
	for b := 0; b < 256; b++ {
		l := DecodeLamps(byte(b))
		if l.MIL != (b&0x04 != 0) {
			t.Fatalf("byte 0x%02X: mil mismatch", b)
		}
		if l.Flash != (b&0x08 != 0) {
			t.Fatalf("byte 0x%02X: flash mismatch", b)
		}
		if l.Amber != (b&0x20 != 0) {
			t.Fatalf("byte 0x%02X: amber mismatch", b)
		}
		if l.Protect != (b&0x40 != 0) {
			t.Fatalf("byte 0x%02X: protect mismatch", b)
		}
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	lamps := Lamps{MIL: true, Protect: true}
	dtcs := []DTC{{SPN: 100, FMI: 5, CM: 1, OC: 3}}
	encoded := Encode(lamps, dtcs)
	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decoded.Lamps != lamps {
		t.Errorf("lamps round trip = %+v, want %+v", decoded.Lamps, lamps)
	}
	if len(decoded.DTCs) != 1 || decoded.DTCs[0] != dtcs[0] {
		t.Errorf("dtc round trip = %+v, want %+v", decoded.DTCs, dtcs)
	}
}

func TestManagerActiveReplacesOnNewDM1(t *testing.T) {
	m := NewManager()
	first := Encode(Lamps{MIL: true}, []DTC{{SPN: 1, FMI: 1}})
	if err := m.IngestDM1(0x00, first, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(m.ActiveDTCs(0x00)) != 1 {
		t.Fatalf("expected one active DTC")
	}

	second := Encode(Lamps{}, nil)
	if err := m.IngestDM1(0x00, second, 1000); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(m.ActiveDTCs(0x00)) != 0 {
		t.Errorf("expected active DTCs to be replaced with empty set")
	}
}

func TestManagerSummaryCriticalFaults(t *testing.T) {
	m := NewManager()
	_ = m.IngestDM1(0x00, Encode(Lamps{MIL: true}, []DTC{{SPN: 1, FMI: 1}}), 0)
	_ = m.IngestDM1(0x03, Encode(Lamps{Amber: true}, []DTC{{SPN: 2, FMI: 2}}), 0)

	s := m.Summarize()
	if s.DistinctDevices != 2 {
		t.Errorf("distinct devices = %d, want 2", s.DistinctDevices)
	}
	if s.TotalActiveDTCs != 2 {
		t.Errorf("total active dtcs = %d, want 2", s.TotalActiveDTCs)
	}
	if !s.HasCriticalFaults {
		t.Error("expected has_critical_faults due to MIL")
	}
}

func TestManagerSummaryNoCriticalFaults(t *testing.T) {
	m := NewManager()
	_ = m.IngestDM1(0x03, Encode(Lamps{Amber: true}, []DTC{{SPN: 2, FMI: 2}}), 0)

	s := m.Summarize()
	if s.HasCriticalFaults {
		t.Error("expected no critical faults without MIL/Protect")
	}
}
