// Command replay drives a captured session's frames back onto a named
// virtual bus in recorded order, for feeding a previously captured run
// into diagnose or a dashboard without re-running the original
// simulation, mirroring the teacher's cmd/replay shape.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"j1939sim/canbus"
	"j1939sim/canhw"
	"j1939sim/capture"
)

func main() {
	var (
		captureFile string
		speed       float64
		tickMs      uint64
		list        bool
		iface       string
	)

	flag.StringVar(&captureFile, "file", "", "capture file to replay")
	flag.Float64Var(&speed, "speed", 1.0, "replay speed multiplier (1.0 = real-time)")
	flag.Uint64Var(&tickMs, "tick-ms", 10, "simulated milliseconds advanced per tick")
	flag.BoolVar(&list, "list", false, "list available capture files under ./captures")
	flag.StringVar(&iface, "iface", "", "real SocketCAN interface to replay onto (e.g. can0); defaults to an in-process virtual bus")
	flag.Parse()

	if list {
		listCaptureFiles()
		return
	}

	if captureFile == "" {
		fmt.Println("specify a capture file with -file")
		os.Exit(1)
	}
	if speed <= 0 {
		log.Printf("replay: invalid speed %v, using 1.0", speed)
		speed = 1.0
	}

	session, err := capture.LoadSession(captureFile)
	if err != nil {
		log.Fatalf("replay: %v", err)
	}

	var (
		registry *canbus.Registry
		port     canbus.CANPort
	)
	if iface != "" {
		hw, err := canhw.NewHardwareCANPort(iface)
		if err != nil {
			log.Fatalf("replay: %v", err)
		}
		port = hw
	} else {
		registry = canbus.NewRegistry()
		port = registry.Connect(session.BusName)
	}
	replayer := capture.NewReplayer(session, port)

	fmt.Printf("replaying %q (%d frames) onto bus %q at %.2fx\n", captureFile, len(session.Frames), session.BusName, speed)

	var simMs uint64
	ticker := time.NewTicker(time.Duration(float64(tickMs)/speed) * time.Millisecond)
	defer ticker.Stop()

	for !replayer.Done() {
		<-ticker.C
		simMs += tickMs
		if err := replayer.Advance(simMs); err != nil {
			log.Fatalf("replay: %v", err)
		}
		if registry != nil {
			registry.Pump()
		}
	}
	fmt.Println("replay complete")
}

func listCaptureFiles() {
	files, err := filepath.Glob("captures/*.json")
	if err != nil {
		log.Fatalf("replay: listing capture files: %v", err)
	}
	if len(files) == 0 {
		fmt.Println("no capture files found")
		return
	}

	for _, file := range files {
		s, err := capture.LoadSession(file)
		if err != nil {
			fmt.Printf("  %s (error: %v)\n", file, err)
			continue
		}
		duration := time.Unix(s.EndedUnix, 0).Sub(time.Unix(s.StartedUnix, 0))
		fmt.Printf("  %s: %s, %d frames, duration %s\n", filepath.Base(file), s.VehicleInfo, len(s.Frames), duration)
	}
}
