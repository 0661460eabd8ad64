package canhw

import (
	"testing"

	"j1939sim/canbus"
)

func TestParseSerialFrameRoundTrip(t *testing.T) {
	frame := canbus.Frame{ID: 0x18FEF100, Extended: true, Data: []byte{0x01, 0x02, 0xFF}}
	line := formatSerialFrame(frame)

	got, ok := parseSerialFrame(line[:len(line)-1]) // strip trailing newline, as bufio.Scanner would
	if !ok {
		t.Fatal("expected successful parse")
	}
	if got.ID != frame.ID {
		t.Errorf("id = 0x%X, want 0x%X", got.ID, frame.ID)
	}
	if len(got.Data) != len(frame.Data) {
		t.Fatalf("data length = %d, want %d", len(got.Data), len(frame.Data))
	}
	for i := range frame.Data {
		if got.Data[i] != frame.Data[i] {
			t.Errorf("data[%d] = 0x%02X, want 0x%02X", i, got.Data[i], frame.Data[i])
		}
	}
}

func TestParseSerialFrameRejectsGarbage(t *testing.T) {
	if _, ok := parseSerialFrame("not-hex,zz"); ok {
		t.Error("expected parse failure for non-hex fields")
	}
}

func TestParseSerialFrameStandardIDNotExtended(t *testing.T) {
	got, ok := parseSerialFrame("123,01")
	if !ok {
		t.Fatal("expected successful parse")
	}
	if got.Extended {
		t.Error("expected standard 11-bit id to not be marked extended")
	}
}
