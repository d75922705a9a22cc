// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()
	assert.Equal(t, 10, cfg.Engine.CommandThreadCount)
	assert.Equal(t, 10, cfg.Engine.DisconnectCheckTimeoutMinutes)
	assert.InDelta(t, 1.0, cfg.Engine.SampleBufferCapacityAdjustment, 1e-9)
	assert.Equal(t, "gochannel", cfg.EventBus.Backend)
	require.NoError(t, cfg.Validate())
}

func TestConfigValidateRejectsZeroThreadCount(t *testing.T) {
	cfg := defaultConfig()
	cfg.Engine.CommandThreadCount = 0
	assert.Error(t, cfg.Validate())
}

func TestConfigValidateRejectsBadPeerURL(t *testing.T) {
	cfg := defaultConfig()
	cfg.Cluster.Peers = []string{"not-a-url"}
	assert.Error(t, cfg.Validate())
}

func TestConfigValidateAcceptsGoodPeerURL(t *testing.T) {
	cfg := defaultConfig()
	cfg.Cluster.Peers = []string{"http://appliance1.example.com:17665"}
	assert.NoError(t, cfg.Validate())
}

func TestConfigValidateNATSBackendRequiresURL(t *testing.T) {
	cfg := defaultConfig()
	cfg.EventBus.Backend = "nats"
	cfg.EventBus.NATSURL = ""
	assert.Error(t, cfg.Validate())

	cfg.EventBus.NATSURL = "nats://localhost:4222"
	assert.NoError(t, cfg.Validate())
}

func TestFromInstallationProperties(t *testing.T) {
	t.Run("defaults when property bag is empty", func(t *testing.T) {
		cfg := FromInstallationProperties(nil)
		assert.Equal(t, 10, cfg.CommandThreadCount)
		assert.Equal(t, 10, cfg.DisconnectCheckTimeoutMinutes)
		assert.InDelta(t, 1.0, cfg.SampleBufferCapacityAdjustment, 1e-9)
	})

	t.Run("property-fallback default for disconnect timeout is 10, not 20", func(t *testing.T) {
		// Preserves the open question resolution in: the in-code default of
		// 20 is inconsistent with the property-fallback default of 10; this
		// port keeps 10.
		cfg := FromInstallationProperties(map[string]string{})
		assert.Equal(t, 10, cfg.DisconnectCheckTimeoutMinutes)
	})

	t.Run("overrides from dotted property keys", func(t *testing.T) {
		props := map[string]string{
			"org.epics.archiverappliance.engine.epics.commandThreadCount":                                "20",
			"org.epics.archiverappliance.engine.util.EngineContext.disconnectCheckTimeoutInMinutes":      "15",
			"org.epics.archiverappliance.config.PVTypeInfo.sampleBufferCapacityAdjustment":                "2.5",
		}
		cfg := FromInstallationProperties(props)
		assert.Equal(t, 20, cfg.CommandThreadCount)
		assert.Equal(t, 15, cfg.DisconnectCheckTimeoutMinutes)
		assert.InDelta(t, 2.5, cfg.SampleBufferCapacityAdjustment, 1e-9)
	})

	t.Run("malformed numeric property falls back to default", func(t *testing.T) {
		props := map[string]string{
			"org.epics.archiverappliance.engine.epics.commandThreadCount": "not-a-number",
		}
		cfg := FromInstallationProperties(props)
		assert.Equal(t, 10, cfg.CommandThreadCount)
	})
}
