// Command diagnose connects a diagnostic-tool style port to a named bus
// on its own in-process virtual bus registry and prints the active DTC
// snapshot for a source address each time a DM1 from it arrives, until
// SIGINT/SIGTERM. The registry is never pumped and is not shared with a
// simulate process or a hardware adapter, so no frames reach the port.
// It follows the teacher's cmd/query pattern of a small standalone client
// built on the same library the main binary uses.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"j1939sim/canbus"
	"j1939sim/diagnostics"
	"j1939sim/j1939codec"
	"j1939sim/j1939port"
)

func main() {
	busName := flag.String("bus", "vehicle", "virtual bus name to attach to")
	sourceAddr := flag.Uint("sa", 0xF9, "source address for this tool's port")
	jsonOutput := flag.Bool("json", false, "print snapshots as JSON instead of text")
	flag.Parse()

	registry := canbus.NewRegistry()
	can := registry.Connect(*busName)
	port := j1939port.New(can, uint8(*sourceAddr), 6)
	mgr := diagnostics.NewManager()

	port.OnPGN(j1939codec.PGNDM1, func(msg j1939port.J1939Message) {
		if err := mgr.IngestDM1(msg.SA, msg.Raw, msg.TimestampMs); err != nil {
			log.Printf("diagnose: %v", err)
			return
		}
		printSnapshot(mgr, msg.SA, *jsonOutput)
	})
	port.OnPGN(j1939codec.PGNDM2, func(msg j1939port.J1939Message) {
		if err := mgr.IngestDM2(msg.SA, msg.Raw, msg.TimestampMs); err != nil {
			log.Printf("diagnose: %v", err)
		}
	})

	log.Printf("diagnose: attached to bus %q as 0x%02X, waiting for DM1/DM2 traffic", *busName, *sourceAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
}

func printSnapshot(mgr *diagnostics.Manager, sa uint8, asJSON bool) {
	dtcs := mgr.ActiveDTCs(sa)
	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		if err := enc.Encode(map[string]interface{}{
			"sa":        sa,
			"dtcs":      dtcs,
			"timestamp": time.Now().UTC(),
		}); err != nil {
			log.Printf("diagnose: encoding snapshot: %v", err)
		}
		return
	}

	if len(dtcs) == 0 {
		fmt.Printf("0x%02X: no active faults\n", sa)
		return
	}
	fmt.Printf("0x%02X: %d active fault(s)\n", sa, len(dtcs))
	for _, d := range dtcs {
		fmt.Printf("  SPN %d FMI %d CM %d OC %d\n", d.SPN, d.FMI, d.CM, d.OC)
	}
}
