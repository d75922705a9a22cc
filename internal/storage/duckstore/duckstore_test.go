// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

package duckstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomtom215/cartographus/internal/channel"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(Config{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, store.Close())
	})
	return store
}

func TestFlushInsertsEveryBufferedSample(t *testing.T) {
	store := newTestStore(t)
	ch := channel.NewMemChannel("TEST:PV1", 0)
	now := time.Now().UTC().Truncate(time.Microsecond)
	ch.AppendSample(channel.Sample{Value: 1.5, Timestamp: now})
	ch.AppendSample(channel.Sample{Value: 2.5, Timestamp: now.Add(time.Second)})

	require.NoError(t, store.Flush(context.Background(), ch))
	assert.Equal(t, 0, ch.BufferLen())

	var count int
	require.NoError(t, store.conn.QueryRow(
		"SELECT COUNT(*) FROM archived_samples WHERE pv_name = ?", "TEST:PV1",
	).Scan(&count))
	assert.Equal(t, 2, count)
}

func TestFlushEmptyBufferIsNoop(t *testing.T) {
	store := newTestStore(t)
	ch := channel.NewMemChannel("TEST:PV2", 0)

	require.NoError(t, store.Flush(context.Background(), ch))
}

func TestFlushDuplicateTimestampIsIgnored(t *testing.T) {
	store := newTestStore(t)
	ch := channel.NewMemChannel("TEST:PV3", 0)
	ts := time.Now().UTC().Truncate(time.Microsecond)

	ch.AppendSample(channel.Sample{Value: 1.0, Timestamp: ts})
	require.NoError(t, store.Flush(context.Background(), ch))

	ch.AppendSample(channel.Sample{Value: 2.0, Timestamp: ts})
	require.NoError(t, store.Flush(context.Background(), ch))

	var count int
	require.NoError(t, store.conn.QueryRow(
		"SELECT COUNT(*) FROM archived_samples WHERE pv_name = ?", "TEST:PV3",
	).Scan(&count))
	assert.Equal(t, 1, count)
}
