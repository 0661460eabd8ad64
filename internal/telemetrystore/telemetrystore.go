// Package telemetrystore writes decoded SPN time series to InfluxDB, one
// point per signal per broadcast, mirroring the teacher's point-per-tick
// write pattern in internal/datastore/influxdb.go. A simulation run works
// with either backend behind the same Store interface, matching the
// teacher's interface-over-concrete-impls shape; NoOp satisfies it with
// no I/O for runs that don't configure a sink.
package telemetrystore

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
)

// Store is the write side a scheduler observer uses to record decoded
// signals. WriteSignal errors are logged by the caller and never
// propagate into the scheduler tick, per the error handling design.
type Store interface {
	WriteSignal(pgnName string, sa uint8, field string, value float64, nowMs uint64) error
	Close() error
}

// NoOp discards every write; it is the default when no InfluxDB sink is
// configured.
type NoOp struct{}

func (NoOp) WriteSignal(string, uint8, string, float64, uint64) error { return nil }
func (NoOp) Close() error                                             { return nil }

// InfluxStore writes one InfluxDB point per decoded signal to the
// configured bucket, tagged by PGN name and source address.
type InfluxStore struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
}

// Open connects to an InfluxDB instance and verifies reachability with a
// Ping before returning.
func Open(url, token, org, bucket string) (*InfluxStore, error) {
	client := influxdb2.NewClient(url, token)
	if _, err := client.Ping(context.Background()); err != nil {
		client.Close()
		return nil, fmt.Errorf("telemetrystore: connecting to InfluxDB: %w", err)
	}

	return &InfluxStore{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
	}, nil
}

// WriteSignal records one decoded SPN value. nowMs is the simulation
// clock; it is converted to an absolute time only for InfluxDB's point
// timestamp, which is an external storage boundary, not an in-core one.
func (s *InfluxStore) WriteSignal(pgnName string, sa uint8, field string, value float64, nowMs uint64) error {
	point := influxdb2.NewPoint(
		"j1939_signal",
		map[string]string{
			"pgn": pgnName,
			"sa":  fmt.Sprintf("0x%02X", sa),
		},
		map[string]interface{}{
			field: value,
		},
		time.UnixMilli(int64(nowMs)),
	)
	if err := s.writeAPI.WritePoint(context.Background(), point); err != nil {
		return fmt.Errorf("telemetrystore: writing %s/%s: %w", pgnName, field, err)
	}
	return nil
}

// Close releases the InfluxDB client.
func (s *InfluxStore) Close() error {
	s.client.Close()
	return nil
}

var (
	_ Store = NoOp{}
	_ Store = (*InfluxStore)(nil)
)
