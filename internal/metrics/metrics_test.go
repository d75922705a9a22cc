// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestWriterCounters(t *testing.T) {
	before := testutil.ToFloat64(WriterFlushCount)
	WriterFlushCount.Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(WriterFlushCount))
}

func TestPauseResumeLabels(t *testing.T) {
	PauseResumeTotal.WithLabelValues("resumed").Inc()
	assert.GreaterOrEqual(t, testutil.ToFloat64(PauseResumeTotal.WithLabelValues("resumed")), 1.0)
}

func TestClusterBreakerStateGaugeVec(t *testing.T) {
	ClusterBreakerState.WithLabelValues("appliance1").Set(2)
	assert.Equal(t, 2.0, testutil.ToFloat64(ClusterBreakerState.WithLabelValues("appliance1")))
}
