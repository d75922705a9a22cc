// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

// Package badgerstore is a storage plugin backed by an embedded BadgerDB
// key-value store, suited to a single-appliance deployment with no external
// database dependency. Samples are keyed by PV name and the big-endian
// bitwise complement of the nanosecond timestamp so a per-PV range scan
// returns newest first.
package badgerstore

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/cartographus/internal/channel"
	"github.com/tomtom215/cartographus/internal/logging"
)

// Config parameterizes a Store.
type Config struct {
	// Path is the directory BadgerDB opens (and creates if absent).
	Path string

	// SyncWrites forces an fsync on every write batch. Off by default,
	// trading durability for throughput on the hot archiving path; turn it
	// on for appliances with no redundant cluster peer.
	SyncWrites bool
}

// record is the on-disk encoding of one archived sample.
type record struct {
	Value          float64 `json:"value"`
	TimestampNanos int64   `json:"timestamp_nanos"`
}

const keyPrefix = "sample:"

// Store is a badgerstore-backed storage.Plugin.
type Store struct {
	db *badger.DB
}

// Open opens (or creates) a BadgerDB database at cfg.Path.
func Open(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("badgerstore: empty path")
	}

	opts := badger.DefaultOptions(cfg.Path)
	opts.SyncWrites = cfg.SyncWrites
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badgerstore: open %s: %w", cfg.Path, err)
	}

	logging.Info().Str("path", cfg.Path).Msg("badgerstore: opened")
	return &Store{db: db}, nil
}

// Flush drains ch's sample buffer (if it implements channel.SampleSource)
// into a single BadgerDB transaction, so a flush is all-or-nothing per PV.
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
	err := s.db.Update(func(txn *badger.Txn) error {
		for _, sample := range samples {
			data, err := json.Marshal(record{
				Value:          sample.Value,
				TimestampNanos: sample.Timestamp.UnixNano(),
			})
			if err != nil {
				return fmt.Errorf("marshal sample for %s: %w", pvName, err)
			}
			if err := txn.Set(sampleKey(pvName, sample.Timestamp.UnixNano()), data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("badgerstore: flush %s (%d samples): %w", pvName, len(samples), err)
	}
	return nil
}

// sampleKey orders newest-first within a PV by storing the bitwise
// complement of the nanosecond timestamp, so BadgerDB's natural
// lexicographic key order is a reverse-chronological scan order.
func sampleKey(pvName string, nanos int64) []byte {
	key := make([]byte, 0, len(keyPrefix)+len(pvName)+1+8)
	key = append(key, keyPrefix...)
	key = append(key, pvName...)
	key = append(key, ':')

	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], math.MaxUint64-uint64(nanos))
	return append(key, buf[:]...)
}

// Close releases the underlying BadgerDB handle.
func (s *Store) Close() error {
	return s.db.Close()
}
