// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

// Package duckstore is a storage plugin backed by DuckDB, suited to
// appliances that want their archived samples SQL-queryable without
// standing up a separate database server.
package duckstore

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/tomtom215/cartographus/internal/channel"
	"github.com/tomtom215/cartographus/internal/logging"
)

// Config parameterizes a Store.
type Config struct {
	// Path is the DuckDB database file path, or ":memory:" for an
	// ephemeral in-process database (tests only).
	Path string
}

const schema = `
CREATE TABLE IF NOT EXISTS archived_samples (
	pv_name   VARCHAR NOT NULL,
	value     DOUBLE NOT NULL,
	recorded_at TIMESTAMP NOT NULL,
	PRIMARY KEY (pv_name, recorded_at)
)`

const insertQuery = `
INSERT INTO archived_samples (pv_name, value, recorded_at)
VALUES (?, ?, ?)
ON CONFLICT DO NOTHING`

// Store is a duckstore-backed storage.Plugin.
type Store struct {
	conn *sql.DB
}

// Open opens (or creates) a DuckDB database at cfg.Path and ensures the
// archived_samples table exists.
func Open(cfg Config) (*Store, error) {
	path := cfg.Path
	if path == "" {
		path = ":memory:"
	}

	conn, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("duckstore: open %s: %w", path, err)
	}

	if _, err := conn.Exec(schema); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("duckstore: create schema: %w", err)
	}

	logging.Info().Str("path", path).Msg("duckstore: opened")
	return &Store{conn: conn}, nil
}

// Flush drains ch's sample buffer (if it implements channel.SampleSource)
// and inserts every sample in one transaction, using a prepared statement
// and ON CONFLICT DO NOTHING so a replayed (pv_name, recorded_at) pair
// cannot be double-counted. A failed insert rolls back the whole batch;
// the already-drained samples are lost rather than requeued, matching the
// writer loop's transient-error handling elsewhere in the engine.
func (s *Store) Flush(ctx context.Context, ch channel.ArchiveChannel) error {
	source, ok := ch.(channel.SampleSource)
	if !ok {
		return nil
	}

	samples := source.DrainBuffer()
	if len(samples) == 0 {
		return nil
	}

	pvName := ch.Name()
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("duckstore: begin tx for %s: %w", pvName, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, insertQuery)
	if err != nil {
		return fmt.Errorf("duckstore: prepare insert for %s: %w", pvName, err)
	}
	defer func() {
		if closeErr := stmt.Close(); closeErr != nil {
			logging.Warn().Err(closeErr).Msg("duckstore: failed to close prepared statement")
		}
	}()

	for _, sample := range samples {
		if _, err = stmt.ExecContext(ctx, pvName, sample.Value, sample.Timestamp); err != nil {
			return fmt.Errorf("duckstore: insert sample for %s: %w", pvName, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("duckstore: commit %s (%d samples): %w", pvName, len(samples), err)
	}
	return nil
}

// Close releases the underlying DuckDB connection.
func (s *Store) Close() error {
	return s.conn.Close()
}
