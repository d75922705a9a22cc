// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tomtom215/cartographus/internal/channel"
	"github.com/tomtom215/cartographus/internal/logging"
	"github.com/tomtom215/cartographus/internal/metrics"
)

// metachannelGatingThresholdPercent and metachannelsToStartAtATime are the
// bit-exact gating constants.
const (
	metachannelGatingThresholdPercent = 5.0
	metachannelsToStartAtATime        = 10000
	pauseResumeSleep                  = time.Second
)

// DisconnectMonitor runs the periodic disconnect/reconnect and metachannel
// start-up control loop, on its own single-thread schedule separate from
// the writer so writer load cannot starve connectivity repair.
type DisconnectMonitor struct {
	engine *EngineContext

	mu                sync.RWMutex
	timeoutMinutes    int
	checkerPeriodMins int

	reschedule chan struct{}
	generation uint64
}

// newDisconnectMonitor constructs a monitor bound to engine with the given
// timeout and checker period, both in minutes.
func newDisconnectMonitor(engine *EngineContext, timeoutMinutes, checkerPeriodMinutes int) *DisconnectMonitor {
	return &DisconnectMonitor{
		engine:            engine,
		timeoutMinutes:    timeoutMinutes,
		checkerPeriodMins: checkerPeriodMinutes,
		reschedule:        make(chan struct{}, 1),
	}
}

// Serve implements suture.Service: fires Tick at a fixed rate of the
// checker period, first fire after the same delay. Each fire is scheduled
// one period after the previous scheduled fire, not after the previous tick
// finished; a reschedule restarts the schedule from the current time.
func (m *DisconnectMonitor) Serve(ctx context.Context) error {
	next := time.Now().Add(m.period())
	for {
		timer := time.NewTimer(time.Until(next))
		gen := atomic.LoadUint64(&m.generation)

		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-m.reschedule:
			timer.Stop()
			next = time.Now().Add(m.period())
			continue
		case <-timer.C:
			if atomic.LoadUint64(&m.generation) != gen {
				next = time.Now().Add(m.period())
				continue
			}
			m.Tick(ctx)
			next = next.Add(m.period())
		}
	}
}

func (m *DisconnectMonitor) period() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return time.Duration(m.checkerPeriodMins) * time.Minute
}

func (m *DisconnectMonitor) timeout() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return time.Duration(m.timeoutMinutes) * time.Minute
}

// reconfigureForTesting cancels the outstanding schedule without
// interrupting a tick in progress and reschedules atomically with the new
// timeout and period, a test-only affordance for driving the disconnect
// monitor from tests.
func (m *DisconnectMonitor) reconfigureForTesting(timeoutMinutes, checkerPeriodMinutes int) {
	m.mu.Lock()
	m.timeoutMinutes = timeoutMinutes
	m.checkerPeriodMins = checkerPeriodMinutes
	m.mu.Unlock()
	atomic.AddUint64(&m.generation, 1)
	select {
	case m.reschedule <- struct{}{}:
	default:
	}
}

// Tick runs one disconnect-monitor pass. All exceptions are caught and
// logged; they never propagate.
func (m *DisconnectMonitor) Tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error().Interface("panic", r).Msg("disconnect monitor tick panicked")
		}
	}()

	if m.engine.deps.Config.IsShuttingDown() {
		return
	}

	start := time.Now()
	defer func() {
		metrics.DisconnectTickDuration.Observe(time.Since(start).Seconds())
	}()

	timeoutSeconds := m.timeout().Seconds()

	var (
		stuck     []string
		needsMeta []channel.ArchiveChannel
		total     int
	)
	m.engine.registry.ForEach(func(baseName string, ch channel.ArchiveChannel) {
		total++
		switch {
		case !ch.IsConnected() && timeoutSeconds > 0 && ch.SecondsElapsedSinceSearchRequest() > timeoutSeconds:
			stuck = append(stuck, baseName)
		case ch.IsConnected() && ch.MetaChannelsNeedStartingUp():
			needsMeta = append(needsMeta, ch)
		case !ch.IsConnected():
			logging.Warn().Str("pv", baseName).Msg("disconnected but not yet past timeout")
		}
	})
	metrics.DisconnectStuckChannels.Set(float64(len(stuck)))

	for _, baseName := range stuck {
		m.repairStuckChannel(ctx, baseName)
	}

	m.gateAndStartMetachannels(ctx, total, len(stuck), needsMeta)
}

// repairStuckChannel pauses, sleeps 1s, verifies no stray native channels
// remain, then resumes. Exceptions are caught and logged; a stuck PV is
// retried again next tick unconditionally regardless of outcome.
func (m *DisconnectMonitor) repairStuckChannel(ctx context.Context, baseName string) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error().Interface("panic", r).Str("pv", baseName).Msg("pause/resume panicked")
		}
	}()

	typeInfo, ok := m.engine.deps.TypeInfo.TypeInfo(baseName)
	if !ok {
		logging.Warn().Str("pv", baseName).Msg("no type info for stuck PV, skipping this tick")
		return
	}
	if typeInfo.Paused {
		return
	}
	if m.engine.deps.PauseResumer == nil {
		return
	}

	if err := m.engine.deps.PauseResumer.PauseArchivingPV(ctx, baseName); err != nil {
		logging.Error().Err(err).Str("pv", baseName).Msg("pause failed")
		metrics.PauseResumeTotal.WithLabelValues("pause_failed").Inc()
		return
	}

	select {
	case <-ctx.Done():
		return
	case <-time.After(pauseResumeSleep):
	}

	if m.engine.deps.NativeLister != nil {
		if stray := m.engine.deps.NativeLister.NativeChannelsForPV(baseName); len(stray) > 0 {
			logging.Warn().Str("pv", baseName).Int("stray_channels", len(stray)).Msg("stray native channels remain after pause")
		}
	}

	if err := m.engine.deps.PauseResumer.ResumeArchivingPV(ctx, baseName); err != nil {
		logging.Error().Err(err).Str("pv", baseName).Msg("resume failed")
		metrics.PauseResumeTotal.WithLabelValues("resume_failed").Inc()
		return
	}
	metrics.PauseResumeTotal.WithLabelValues("resumed").Inc()
}

// gateAndStartMetachannels applies local and per-peer disconnected-fraction
// gating, then starts a bounded batch of metachannels.
func (m *DisconnectMonitor) gateAndStartMetachannels(ctx context.Context, total, stuckCount int, needsMeta []channel.ArchiveChannel) {
	if total == 0 {
		return
	}
	localPct := float64(stuckCount) * 100.0 / float64(total)
	if localPct >= metachannelGatingThresholdPercent {
		metrics.MetachannelGatingBlocked.WithLabelValues("local").Inc()
		return
	}

	if m.engine.deps.Cluster != nil {
		for _, peer := range m.engine.deps.Cluster.PollAll(ctx) {
			if !peer.Responded {
				logging.Warn().Str("peer", peer.Peer).Msg("peer did not respond to PV count poll; treated as unknown, not aborting")
				continue
			}
			if peer.Total == 0 {
				continue
			}
			peerPct := float64(peer.Disconnected) * 100.0 / float64(peer.Total)
			if peerPct >= metachannelGatingThresholdPercent {
				logging.Info().Str("peer", peer.Peer).Float64("disconnected_pct", peerPct).Msg("metachannel startup gated by peer")
				metrics.MetachannelGatingBlocked.WithLabelValues("peer").Inc()
				return
			}
		}
	}

	limit := metachannelsToStartAtATime
	if len(needsMeta) < limit {
		limit = len(needsMeta)
	}
	for i := 0; i < limit; i++ {
		if err := needsMeta[i].StartUpMetaChannels(); err != nil {
			logging.Error().Err(err).Str("pv", needsMeta[i].Name()).Msg("failed to start metachannels")
			continue
		}
		metrics.MetachannelsStarted.Inc()
	}
}

func (m *DisconnectMonitor) String() string {
	return "disconnect-monitor"
}
