// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePluginURLBadger(t *testing.T) {
	plugin, err := ParsePluginURL("badger://" + t.TempDir())
	require.NoError(t, err)
	defer plugin.Close()
}

func TestParsePluginURLDuckDB(t *testing.T) {
	plugin, err := ParsePluginURL("duckdb://" + t.TempDir() + "/archive.duckdb")
	require.NoError(t, err)
	defer plugin.Close()
}

func TestParsePluginURLUnsupportedScheme(t *testing.T) {
	_, err := ParsePluginURL("redis://localhost:6379")
	require.Error(t, err)
	var unsupported *ErrUnsupportedScheme
	assert.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "redis", unsupported.Scheme)
}

func TestParsePluginURLInvalidURL(t *testing.T) {
	_, err := ParsePluginURL("://not-a-url")
	require.Error(t, err)
}
