// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

package badgerstore

import (
	"context"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomtom215/cartographus/internal/channel"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(Config{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, store.Close())
	})
	return store
}

func TestFlushWritesEveryBufferedSample(t *testing.T) {
	store := newTestStore(t)
	ch := channel.NewMemChannel("TEST:PV1", 0)
	ch.AppendSample(channel.Sample{Value: 1.5, Timestamp: time.Now()})
	ch.AppendSample(channel.Sample{Value: 2.5, Timestamp: time.Now()})

	require.NoError(t, store.Flush(context.Background(), ch))

	assert.Equal(t, 0, ch.BufferLen())

	var count int
	require.NoError(t, store.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	}))
	assert.Equal(t, 2, count)
}

func TestFlushEmptyBufferIsNoop(t *testing.T) {
	store := newTestStore(t)
	ch := channel.NewMemChannel("TEST:PV2", 0)

	require.NoError(t, store.Flush(context.Background(), ch))
}

func TestSampleKeyOrdersNewestFirst(t *testing.T) {
	older := sampleKey("TEST:PV1", 100)
	newer := sampleKey("TEST:PV1", 200)

	assert.Less(t, string(newer), string(older))
}
