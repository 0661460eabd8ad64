// Package diagstore persists DM1/DM2 fault history and transport-protocol
// session outcomes to SQLite for audit and post-run analysis, mirroring
// the teacher's schema-on-open SQLite store. It is additive: nothing here
// changes diagnostics decode semantics, and a persistence failure is
// logged by the caller, never propagated into the scheduler tick.
package diagstore

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/rs/xid"
	_ "github.com/mattn/go-sqlite3"

	"j1939sim/diagnostics"
	"j1939sim/tp"
)

// Store is a SQLite-backed append-only log of DM1 fault transitions and
// completed/aborted transport sessions, keyed by a per-run xid so a
// single database file can hold the history of many simulation runs.
type Store struct {
	db *sql.DB
}

// Open creates (or reuses) a SQLite database at path and ensures its
// schema exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("diagstore: opening %s: %w", path, err)
	}

	s := &Store{db: db}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initialize() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS dm1_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			sa INTEGER NOT NULL,
			mil INTEGER NOT NULL,
			flash INTEGER NOT NULL,
			amber INTEGER NOT NULL,
			protect INTEGER NOT NULL,
			dtc_count INTEGER NOT NULL,
			dtcs JSON,
			recorded_at_ms INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS tp_sessions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			sa INTEGER NOT NULL,
			da INTEGER NOT NULL,
			pgn INTEGER NOT NULL,
			byte_length INTEGER NOT NULL,
			duration_ms INTEGER NOT NULL,
			outcome TEXT NOT NULL,
			recorded_at_ms INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_dm1_run_sa ON dm1_history(run_id, sa)`,
		`CREATE INDEX IF NOT EXISTS idx_tp_run ON tp_sessions(run_id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("diagstore: creating schema: %w", err)
		}
	}
	return nil
}

// RecordDM1 appends one DM1 fault-transition entry for source address sa.
func (s *Store) RecordDM1(runID xid.ID, sa uint8, decoded diagnostics.Decoded, nowMs uint64) error {
	dtcJSON, err := json.Marshal(decoded.DTCs)
	if err != nil {
		return fmt.Errorf("diagstore: marshaling DTCs: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO dm1_history (run_id, sa, mil, flash, amber, protect, dtc_count, dtcs, recorded_at_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID.String(), sa,
		boolInt(decoded.Lamps.MIL), boolInt(decoded.Lamps.Flash),
		boolInt(decoded.Lamps.Amber), boolInt(decoded.Lamps.Protect),
		len(decoded.DTCs), dtcJSON, nowMs,
	)
	if err != nil {
		return fmt.Errorf("diagstore: recording DM1: %w", err)
	}
	return nil
}

// RecordTPSession appends one transport-protocol session outcome: a
// completed reassembly ("delivered"), an explicit ABORT ("aborted"), or
// an inactivity eviction ("timeout").
func (s *Store) RecordTPSession(runID xid.ID, sess tp.Session, outcome string) error {
	duration := sess.LastActivityMs - sess.StartedAtMs
	_, err := s.db.Exec(
		`INSERT INTO tp_sessions (run_id, sa, da, pgn, byte_length, duration_ms, outcome, recorded_at_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		runID.String(), sess.SA, sess.DA, sess.PGN, sess.TotalBytes, duration, outcome, sess.LastActivityMs,
	)
	if err != nil {
		return fmt.Errorf("diagstore: recording TP session: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("diagstore: closing: %w", err)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
