// Command simulate runs a deterministic multi-ECU J1939 simulation from a
// vehicle profile, optionally exposing a telemetry HTTP/WS surface,
// persisting DM1 fault transitions and TP session outcomes to SQLite, and
// writing decoded EEC1/ET1/ETC1 signal values to InfluxDB. It mirrors the
// teacher's main.go shape: load config, wire datastores, start an HTTP
// surface, run until interrupted.
package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/xid"

	"j1939sim/canbus"
	"j1939sim/canhw"
	"j1939sim/diagnostics"
	"j1939sim/ecu"
	"j1939sim/internal/config"
	"j1939sim/internal/diagstore"
	"j1939sim/internal/metrics"
	"j1939sim/internal/telemetrystore"
	"j1939sim/j1939codec"
	"j1939sim/j1939port"
	"j1939sim/profile"
	"j1939sim/sim"
	"j1939sim/telemetryhttp"
	"j1939sim/tp"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to run configuration")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("simulate: %v", err)
	}

	veh, err := profile.Load(cfg.Profile.Path)
	if err != nil {
		log.Fatalf("simulate: %v", err)
	}

	runID := xid.New()
	log.Printf("simulate: starting run %s for profile %q", runID, veh.Name)

	registry := canbus.NewRegistry()
	sched := sim.New(registry, veh.Simulation.TickMs)
	m := metrics.New()
	diag := diagnostics.NewManager()

	var store *diagstore.Store
	if cfg.Datastore.SQLite.Enabled {
		store, err = diagstore.Open(cfg.Datastore.SQLite.Path)
		if err != nil {
			log.Fatalf("simulate: %v", err)
		}
		defer store.Close()
	}

	var tstore telemetrystore.Store = telemetrystore.NoOp{}
	if cfg.Datastore.InfluxDB.Enabled {
		influx, err := telemetrystore.Open(
			cfg.Datastore.InfluxDB.URL,
			cfg.Datastore.InfluxDB.Token,
			cfg.Datastore.InfluxDB.Org,
			cfg.Datastore.InfluxDB.Bucket,
		)
		if err != nil {
			log.Fatalf("simulate: %v", err)
		}
		defer influx.Close()
		tstore = influx
	}

	telemetry := telemetryhttp.New(sched, diag, m)

	var ports []*j1939port.Port
	activeTPSessions := func() int {
		n := 0
		for _, p := range ports {
			n += p.ActiveTPSessions()
		}
		return n
	}

	for _, spec := range veh.Enabled() {
		port := connectPort(registry, veh, spec)
		runner := wireECU(spec, port)
		if runner == nil {
			log.Printf("simulate: profile names unknown ECU %q, skipping", spec.Name)
			continue
		}
		ports = append(ports, port)

		port.OnPGN(j1939codec.PGNDM1, func(msg j1939port.J1939Message) {
			prev := diag.ActiveDTCs(msg.SA)
			if err := diag.IngestDM1(msg.SA, msg.Raw, msg.TimestampMs); err != nil {
				log.Printf("simulate: ingesting DM1 from 0x%02X: %v", msg.SA, err)
				return
			}
			if store != nil {
				decoded, _ := diagnostics.Decode(msg.Raw)
				changed := len(prev) != len(decoded.DTCs)
				for i := 0; !changed && i < len(prev); i++ {
					changed = prev[i] != decoded.DTCs[i]
				}
				if !changed {
					return
				}
				if err := store.RecordDM1(runID, msg.SA, decoded, msg.TimestampMs); err != nil {
					log.Printf("simulate: recording DM1: %v", err)
				}
			}
		})
		port.OnPGN(j1939codec.PGNDM2, func(msg j1939port.J1939Message) {
			if err := diag.IngestDM2(msg.SA, msg.Raw, msg.TimestampMs); err != nil {
				log.Printf("simulate: ingesting DM2 from 0x%02X: %v", msg.SA, err)
			}
		})
		port.OnMessage(telemetry.BroadcastMessage)
		port.OnMessage(func(msg j1939port.J1939Message) {
			var signals []j1939codec.Signal
			switch msg.Data.Kind {
			case j1939codec.KindEEC1:
				signals = []j1939codec.Signal{msg.Data.EEC1.EngineSpeed, msg.Data.EEC1.DriverDemand, msg.Data.EEC1.ActualTorque}
			case j1939codec.KindET1:
				signals = []j1939codec.Signal{msg.Data.ET1.CoolantTemp}
			case j1939codec.KindETC1:
				signals = []j1939codec.Signal{msg.Data.ETC1.OutputShaftSpeed, msg.Data.ETC1.Gear}
			}
			for _, sig := range signals {
				if !sig.IsValid {
					continue
				}
				if err := tstore.WriteSignal(msg.PGNName, msg.SA, sig.Name, sig.Value, msg.TimestampMs); err != nil {
					log.Printf("simulate: writing telemetry point: %v", err)
				}
			}
		})
		port.OnError(func(e j1939port.PortError) {
			if e.Kind == j1939port.ErrorInvalidFrame {
				m.IncFramesDropped()
			}
		})
		port.OnTPComplete(func(c j1939port.TPCompletion) {
			m.SetActiveTPSessions(activeTPSessions())
			if store != nil {
				sess := tp.Session{SA: c.SA, DA: c.DA, PGN: c.PGN, TotalBytes: c.ByteLength, StartedAtMs: c.StartedAtMs, LastActivityMs: c.CompletedAtMs}
				if err := store.RecordTPSession(runID, sess, "delivered"); err != nil {
					log.Printf("simulate: recording TP session: %v", err)
				}
			}
		})
		port.OnTPTimeout(func(c j1939port.TPCompletion) {
			m.SetActiveTPSessions(activeTPSessions())
			if store != nil {
				sess := tp.Session{SA: c.SA, DA: c.DA, PGN: c.PGN, TotalBytes: c.ByteLength, StartedAtMs: c.StartedAtMs, LastActivityMs: c.CompletedAtMs}
				if err := store.RecordTPSession(runID, sess, "timeout"); err != nil {
					log.Printf("simulate: recording TP session: %v", err)
				}
			}
		})

		portComponent := sim.NewPortComponent(spec.Name+"-port", port)
		sched.Register(runner)
		sched.Register(portComponent)
		if err := runner.ECU().Start(); err != nil {
			log.Fatalf("simulate: starting ECU %q: %v", spec.Name, err)
		}
		if err := sched.SetState(runner.Name(), sim.Running); err != nil {
			log.Fatalf("simulate: %v", err)
		}
		if err := sched.SetState(portComponent.Name(), sim.Running); err != nil {
			log.Fatalf("simulate: %v", err)
		}
	}

	sched.OnError(func(ev sim.ErrorEvent) {
		m.IncComponentError(ev.Component)
		log.Printf("simulate: %v", ev)
	})

	go func() {
		if err := telemetry.ListenAndServe(cfg.Telemetry.ListenAddr); err != nil {
			log.Printf("simulate: telemetry server: %v", err)
		}
	}()

	sched.Run()
	defer sched.Stop()

	if veh.Simulation.DurationMs > 0 {
		time.AfterFunc(time.Duration(veh.Simulation.DurationMs)*time.Millisecond, func() {
			log.Printf("simulate: reached configured duration, stopping")
			sched.Stop()
			os.Exit(0)
		})
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("simulate: shutting down")
}

// connectPort binds a j1939port.Port for one ECU spec to the profile's
// configured bus interface: the virtual scheduler bus by default, or a
// real/serial CAN adapter when the profile names one.
func connectPort(registry *canbus.Registry, veh profile.Profile, spec profile.ECUSpec) *j1939port.Port {
	switch veh.Bus.Interface {
	case "", "virtual":
		can := registry.Connect("vehicle")
		return j1939port.New(can, spec.Address, 6)
	case "socketcan":
		can, err := canhw.NewHardwareCANPort("can0")
		if err != nil {
			log.Fatalf("simulate: %v", err)
		}
		return j1939port.New(can, spec.Address, 6)
	default:
		can, err := canhw.NewSerialCANPort(veh.Bus.Interface, veh.Bus.Bitrate)
		if err != nil {
			log.Fatalf("simulate: %v", err)
		}
		return j1939port.New(can, spec.Address, 6)
	}
}

// wireECU instantiates the named reference ECU and wraps it in a Runner
// bound to port, or returns nil for an unrecognized name.
func wireECU(spec profile.ECUSpec, port *j1939port.Port) *ecu.Runner {
	var e ecu.ECU
	switch spec.Name {
	case "engine":
		e = ecu.NewEngine(5.0)
	case "transmission":
		e = ecu.NewTransmission()
	case "diagnostic-tool":
		e = ecu.NewDiagnosticTool()
	default:
		return nil
	}
	return ecu.NewRunner(e, port)
}
