package j1939id

import "testing"

func TestParsePDU1(t *testing.T) {
	got := Parse(0x18EA00F9)
	want := Identifier{Priority: 6, PGN: 0xEA00, SA: 0xF9, DA: 0x00, PDU1: true}
	if got != want {
		t.Errorf("Parse(0x18EA00F9) = %+v, want %+v", got, want)
	}
}

func TestParsePDU2(t *testing.T) {
	got := Parse(0x18F00401)
	want := Identifier{Priority: 6, PGN: 0xF004, SA: 0x01, DA: 0xFF, PDU1: false}
	if got != want {
		t.Errorf("Parse(0x18F00401) = %+v, want %+v", got, want)
	}
}

func TestBuildRoundTripPDU1(t *testing.T) {
	id := Parse(0x18EA00F9)
	rebuilt := Build(BuildParams{Priority: id.Priority, PGN: id.PGN, SA: id.SA, DA: id.DA})
	if rebuilt != 0x18EA00F9 {
		t.Errorf("round trip = 0x%08X, want 0x18EA00F9", rebuilt)
	}
}

func TestBuildRoundTripPDU2(t *testing.T) {
	id := Parse(0x18F00401)
	rebuilt := Build(BuildParams{Priority: id.Priority, PGN: id.PGN, SA: id.SA, DA: id.DA})
	if rebuilt != 0x18F00401 {
		t.Errorf("round trip = 0x%08X, want 0x18F00401", rebuilt)
	}
}

func TestBuildPriorityClamp(t *testing.T) {
	id := Build(BuildParams{Priority: 9, PGN: 0xF004, SA: 0x01, DA: 0xFF})
	got := Parse(id)
	if got.Priority != 7 {
		t.Errorf("priority = %d, want clamped to 7", got.Priority)
	}
}

func TestBuildPDU2IgnoresDA(t *testing.T) {
	a := Build(BuildParams{Priority: 6, PGN: 0xF004, SA: 0x01, DA: 0x00})
	b := Build(BuildParams{Priority: 6, PGN: 0xF004, SA: 0x01, DA: 0xAB})
	if a != b {
		t.Errorf("PDU2 build should ignore DA: got 0x%08X vs 0x%08X", a, b)
	}
}

// TestRoundTripSpread exercises property 1 from the spec across a spread of
// representative PF/PS/SA/priority combinations rather than the full
// 2^29 space.
func TestRoundTripSpread(t *testing.T) {
	for pf := 0; pf < 256; pf += 7 {
		for ps := 0; ps < 256; ps += 37 {
			for _, sa := range []uint8{0x00, 0x01, 0x03, 0xF9, 0xFE} {
				for _, prio := range []uint8{0, 3, 6, 7} {
					id := uint32(prio)<<26 | uint32(pf)<<16 | uint32(ps)<<8 | uint32(sa)
					parsed := Parse(id)
					var da uint8
					if parsed.PDU1 {
						da = parsed.DA
					} else {
						da = 0xFF
					}
					rebuilt := Build(BuildParams{Priority: parsed.Priority, PGN: parsed.PGN, SA: parsed.SA, DA: da})
					if rebuilt != id {
						t.Fatalf("round trip mismatch for pf=%d ps=%d sa=%d prio=%d: got 0x%08X, want 0x%08X", pf, ps, sa, prio, rebuilt, id)
					}
				}
			}
		}
	}
}
