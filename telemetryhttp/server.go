// Package telemetryhttp exposes a read-only HTTP/WebSocket surface over a
// running simulation: health, DTC snapshots, Prometheus exposition, and a
// live push feed of decoded J1939 messages. It is the server side of the
// "browser telemetry dashboard" spec.md draws as an external collaborator
// — only the interface the dashboard would connect to lives here,
// mirroring the teacher's main.go router + websocket broadcast, with
// gorilla/mux and gorilla/websocket in the same roles. It consumes the
// j1939port/diagnostics/sim surface read-only and never influences
// scheduler determinism.
package telemetryhttp

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"j1939sim/diagnostics"
	"j1939sim/internal/metrics"
	"j1939sim/j1939port"
	"j1939sim/sim"
)

// Server is the read-only telemetry HTTP/WS surface for one simulation
// run.
type Server struct {
	router   *mux.Router
	upgrader websocket.Upgrader
	sched    *sim.Scheduler
	diag     *diagnostics.Manager
	metrics  *metrics.Metrics

	mu      sync.Mutex
	clients map[*websocket.Conn]bool
}

// New builds a Server backed by the given scheduler, diagnostics manager,
// and metrics registry. A nil diag makes /vehicles/{sa}/dtcs respond with
// an empty DTC list; a nil m leaves /metrics unregistered.
func New(sched *sim.Scheduler, diag *diagnostics.Manager, m *metrics.Metrics) *Server {
	s := &Server{
		router:  mux.NewRouter(),
		sched:   sched,
		diag:    diag,
		metrics: m,
		clients: make(map[*websocket.Conn]bool),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	s.router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	s.router.HandleFunc("/vehicles/{sa}/dtcs", s.handleDTCs).Methods(http.MethodGet)
	s.router.HandleFunc("/ws", s.handleWS)
	if m != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	return s
}

// Handler returns the server's http.Handler, for embedding in a larger
// mux or for tests that want to drive it with httptest.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe blocks serving the telemetry surface on addr.
func (s *Server) ListenAndServe(addr string) error {
	log.Printf("telemetryhttp: listening on %s", addr)
	return http.ListenAndServe(addr, s.router)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{"running": false, "now_ms": uint64(0)}
	if s.sched != nil {
		resp["running"] = s.sched.IsRunning()
		resp["now_ms"] = s.sched.NowMs()
	}
	writeJSON(w, http.StatusOK, resp)
}

type dtcView struct {
	SPN uint32 `json:"spn"`
	FMI uint8  `json:"fmi"`
	CM  uint8  `json:"cm"`
	OC  uint8  `json:"oc"`
}

func (s *Server) handleDTCs(w http.ResponseWriter, r *http.Request) {
	if s.diag == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"dtcs": []dtcView{}})
		return
	}

	saStr := mux.Vars(r)["sa"]
	sa64, err := strconv.ParseUint(saStr, 0, 8)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid source address %q", saStr), http.StatusBadRequest)
		return
	}
	sa := uint8(sa64)

	active := s.diag.ActiveDTCs(sa)
	out := make([]dtcView, 0, len(active))
	for _, d := range active {
		out = append(out, dtcView{SPN: d.SPN, FMI: d.FMI, CM: d.CM, OC: d.OC})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sa": sa, "dtcs": out})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("telemetryhttp: websocket upgrade error: %v", err)
		return
	}

	s.mu.Lock()
	s.clients[conn] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.clients, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// wireMessage is the JSON shape pushed to websocket clients for each
// decoded message: the envelope fields and raw payload bytes, rather than
// the internal tagged-union PGNData. Decoded SPN values are not included.
type wireMessage struct {
	PGN         uint32 `json:"pgn"`
	PGNName     string `json:"pgn_name"`
	SA          uint8  `json:"sa"`
	DA          uint8  `json:"da"`
	Priority    uint8  `json:"priority"`
	TimestampMs uint64 `json:"timestamp_ms"`
	Raw         []byte `json:"raw"`
}

// BroadcastMessage pushes one decoded message to every connected
// websocket client. Intended to be wired as a wildcard j1939port
// subscriber (port.OnMessage(server.BroadcastMessage)); a write failure
// drops that one client without affecting the others.
func (s *Server) BroadcastMessage(msg j1939port.J1939Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.clients) == 0 {
		return
	}

	payload, err := json.Marshal(wireMessage{
		PGN:         msg.PGN,
		PGNName:     msg.PGNName,
		SA:          msg.SA,
		DA:          msg.DA,
		Priority:    msg.Priority,
		TimestampMs: msg.TimestampMs,
		Raw:         msg.Raw,
	})
	if err != nil {
		log.Printf("telemetryhttp: marshaling message: %v", err)
		return
	}

	for conn := range s.clients {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			conn.Close()
			delete(s.clients, conn)
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("telemetryhttp: encoding response: %v", err)
	}
}
