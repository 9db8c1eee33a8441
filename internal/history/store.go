// SPDX-License-Identifier: GPL-3.0-only

// Package history records completed control cycles in SQLite.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/shini4i/ambient-brightness-daemon/internal/controller"
	"github.com/shini4i/ambient-brightness-daemon/internal/profile"

	_ "modernc.org/sqlite" // SQLite driver.
)

const recordTimeout = 5 * time.Second

// Store wraps SQLite access for cycle history.
type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database and applies migrations.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	// One connection keeps writes from the controller and reads from the CLI
	// from tripping over SQLITE_BUSY within the process.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, errors.Join(fmt.Errorf("failed to migrate history database: %w", err), db.Close())
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS cycles (
			id INTEGER PRIMARY KEY,
			recorded_at TEXT NOT NULL,
			ambient REAL NOT NULL,
			previous INTEGER NOT NULL,
			target INTEGER NOT NULL,
			source TEXT NOT NULL,
			device_ok INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_cycles_recorded_at ON cycles(recorded_at);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Record stores a completed cycle.
func (s *Store) Record(ctx context.Context, res controller.Result) error {
	deviceOK := 0
	if res.DeviceOK {
		deviceOK = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cycles (recorded_at, ambient, previous, target, source, device_ok)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		res.Time.UTC().Format(time.RFC3339Nano),
		res.Ambient,
		res.Previous,
		res.Target,
		string(res.Source),
		deviceOK,
	)
	if err != nil {
		return fmt.Errorf("failed to record cycle: %w", err)
	}
	return nil
}

// CycleCompleted implements controller.Observer. Failures are logged.
func (s *Store) CycleCompleted(res controller.Result) {
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	if err := s.Record(ctx, res); err != nil {
		log.Warn().Err(err).Msg("Failed to store cycle history")
	}
}

// Recent returns up to n cycles, newest first.
func (s *Store) Recent(ctx context.Context, n int) ([]controller.Result, error) {
	if n <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT recorded_at, ambient, previous, target, source, device_ok
		 FROM cycles
		 ORDER BY recorded_at DESC, id DESC
		 LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query cycles: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []controller.Result
	for rows.Next() {
		var (
			recordedAt string
			source     string
			deviceOK   int
			res        controller.Result
		)
		if err := rows.Scan(&recordedAt, &res.Ambient, &res.Previous, &res.Target, &source, &deviceOK); err != nil {
			return nil, fmt.Errorf("failed to scan cycle: %w", err)
		}
		res.Time, err = time.Parse(time.RFC3339Nano, recordedAt)
		if err != nil {
			return nil, fmt.Errorf("invalid cycle timestamp %q: %w", recordedAt, err)
		}
		res.Source = profile.Source(source)
		res.DeviceOK = deviceOK != 0
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read cycles: %w", err)
	}
	return out, nil
}
