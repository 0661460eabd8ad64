package telemetryhttp

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"j1939sim/canbus"
	"j1939sim/diagnostics"
	"j1939sim/internal/metrics"
	"j1939sim/sim"
)

func TestHealthzReportsSchedulerState(t *testing.T) {
	sched := sim.New(canbus.NewRegistry(), 10)
	s := New(sched, nil, nil)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	s.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if running, _ := body["running"].(bool); running {
		t.Error("expected running=false before Run is called")
	}
}

func TestDTCsReturnsActiveFaultsForAddress(t *testing.T) {
	diag := diagnostics.NewManager()
	payload := diagnostics.Encode(diagnostics.Lamps{MIL: true}, []diagnostics.DTC{{SPN: 1234, FMI: 5, CM: 0, OC: 2}})
	if err := diag.IngestDM1(0x00, payload, 0); err != nil {
		t.Fatalf("IngestDM1: %v", err)
	}

	s := New(nil, diag, nil)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/vehicles/0/dtcs", nil)
	s.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rr.Code, rr.Body.String())
	}

	var body struct {
		DTCs []dtcView `json:"dtcs"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(body.DTCs) != 1 || body.DTCs[0].SPN != 1234 {
		t.Errorf("dtcs = %+v, want one DTC with SPN 1234", body.DTCs)
	}
}

func TestDTCsRejectsInvalidAddress(t *testing.T) {
	s := New(nil, diagnostics.NewManager(), nil)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/vehicles/not-a-number/dtcs", nil)
	s.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}

func TestMetricsRouteExposesPrometheusFormat(t *testing.T) {
	m := metrics.New()
	m.IncFramesDropped()
	s := New(nil, nil, m)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	s.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "j1939sim_frames_dropped_total") {
		t.Error("expected metrics output to contain j1939sim_frames_dropped_total")
	}
}
