// Package db persists the gate's audit trail: one row per emitted
// command tick plus a stream of safety events (engagement changes, MRM
// transitions, heartbeat loss). Each process launch is a "run" keyed by
// a UUID so logs from restarts stay separable.
package db

import (
	"compress/gzip"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"

	"github.com/banshee-data/vehicle.gate/internal/monitoring"
)

type DB struct {
	*sql.DB
}

func NewDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// sqlite allows one writer; the tick recorder and event recorder
	// share this connection pool.
	db.SetMaxOpenConns(1)

	d := &DB{db}
	if err := d.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}

	return d, nil
}

// TickRecord is one emitted command cycle.
type TickRecord struct {
	RunID        string
	Tick         uint64
	Mode         string
	Engaged      bool
	Override     bool
	MrmState     string
	RawSteering  float64
	RawSpeed     float64
	RawAccel     float64
	OutSteering  float64
	OutSpeed     float64
	OutAccel     float64
	VehicleSpeed float64
	Timestamp    time.Time
}

func (r *TickRecord) String() string {
	return fmt.Sprintf(
		"Tick: %d, Mode: %s, Engaged: %t, Override: %t, MrmState: %s, OutSteering: %f, OutSpeed: %f, OutAccel: %f",
		r.Tick, r.Mode, r.Engaged, r.Override, r.MrmState, r.OutSteering, r.OutSpeed, r.OutAccel,
	)
}

// BeginRun records the start of a gate process with its serialized
// configuration.
func (db *DB) BeginRun(runID string, config string) error {
	_, err := db.Exec("INSERT INTO runs (run_id, config) VALUES (?, ?)", runID, config)
	return err
}

// RecordTick appends one command cycle to the audit trail.
func (db *DB) RecordTick(rec TickRecord) error {
	_, err := db.Exec(
		`INSERT INTO ticks (
			run_id, tick, mode, engaged, override, mrm_state,
			raw_steering, raw_speed, raw_accel,
			out_steering, out_speed, out_accel, vehicle_speed
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.Tick, rec.Mode, rec.Engaged, rec.Override, rec.MrmState,
		rec.RawSteering, rec.RawSpeed, rec.RawAccel,
		rec.OutSteering, rec.OutSpeed, rec.OutAccel, rec.VehicleSpeed,
	)
	return err
}

// RecentTicks returns the most recent command cycles, newest first.
func (db *DB) RecentTicks(limit int) ([]TickRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(
		`SELECT run_id, tick, mode, engaged, override, mrm_state,
			raw_steering, raw_speed, raw_accel,
			out_steering, out_speed, out_accel, vehicle_speed, timestamp
		FROM ticks ORDER BY timestamp DESC, tick DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ticks []TickRecord
	for rows.Next() {
		var rec TickRecord
		if err := rows.Scan(
			&rec.RunID, &rec.Tick, &rec.Mode, &rec.Engaged, &rec.Override, &rec.MrmState,
			&rec.RawSteering, &rec.RawSpeed, &rec.RawAccel,
			&rec.OutSteering, &rec.OutSpeed, &rec.OutAccel, &rec.VehicleSpeed, &rec.Timestamp,
		); err != nil {
			return nil, err
		}
		ticks = append(ticks, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return ticks, nil
}

// EventRecord is one safety event.
type EventRecord struct {
	EventID   int64
	RunID     string
	Kind      string
	Detail    string
	Timestamp time.Time
}

func (e *EventRecord) String() string {
	return fmt.Sprintf("Kind: %s, Detail: %s, Timestamp: %s", e.Kind, e.Detail, e.Timestamp)
}

// RecordEvent appends a safety event to the audit trail.
func (db *DB) RecordEvent(runID, kind, detail string) error {
	_, err := db.Exec("INSERT INTO events (run_id, kind, detail) VALUES (?, ?, ?)", runID, kind, detail)
	return err
}

// Events returns the most recent safety events, newest first.
func (db *DB) Events(limit int) ([]EventRecord, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := db.Query(
		"SELECT event_id, run_id, kind, detail, timestamp FROM events ORDER BY event_id DESC LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []EventRecord
	for rows.Next() {
		var e EventRecord
		if err := rows.Scan(&e.EventID, &e.RunID, &e.Kind, &e.Detail, &e.Timestamp); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return events, nil
}

func (db *DB) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		monitoring.Logf("failed to create tailsql server: %v", err)
		return
	}
	tsql.SetDB("sqlite://gate.db", db.DB, &tailsql.DBOptions{
		Label: "Gate audit DB",
	})

	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("backup", "Create and download a backup of the database now", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		unixTime := time.Now().Unix()
		backupPath := fmt.Sprintf("backup-%d.db", unixTime)
		if _, err := db.DB.Exec("VACUUM INTO ?", backupPath); err != nil {
			http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", backupPath))
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Encoding", "gzip")

		backupFile, err := os.Open(backupPath)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
			return
		}
		defer func() {
			backupFile.Close()
			if err := os.Remove(backupPath); err != nil {
				monitoring.Logf("Failed to remove backup file: %v", err)
			}
		}()

		gzipWriter := gzip.NewWriter(w)
		defer gzipWriter.Close()
		if _, err := io.Copy(gzipWriter, backupFile); err != nil {
			http.Error(w, fmt.Sprintf("Failed to write backup file: %v", err), http.StatusInternalServerError)
			return
		}
	}))
}
