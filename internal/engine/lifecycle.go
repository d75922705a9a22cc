// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

package engine

import (
	"context"

	"github.com/tomtom215/cartographus/internal/channel"
	"github.com/tomtom215/cartographus/internal/logging"
)

// Shutdown runs the ordered shutdown sequence. Each step is
// independently recovered: a panic or error in one step is logged and the
// sequence continues to the next, since a partially-stopped engine is
// still better than one stuck mid-teardown.
func (e *EngineContext) Shutdown(ctx context.Context) {
	e.stopWriterStep()
	e.stopChannelsStep()
	e.flushWriterStep(ctx)
	e.clearRegistryStep()
	e.stopControllingPVsStep()
	e.markWriterStoppedStep()
	e.stopCommandThreadsStep()
}

func (e *EngineContext) stopWriterStep() {
	defer recoverAndLog("stop writer scheduler")
	// The writer's suture.Service goroutine is stopped by the supervisor
	// tree canceling its context; nothing further is required here beyond
	// making sure no new start can race in during shutdown.
	e.writerMu.Lock()
	defer e.writerMu.Unlock()
	_ = e.writer
}

func (e *EngineContext) stopChannelsStep() {
	defer recoverAndLog("shutdown and stop archive channels")
	e.registry.ForEach(func(baseName string, ch channel.ArchiveChannel) {
		if err := ch.ShutdownMetaChannels(); err != nil {
			logging.Error().Err(err).Str("pv", baseName).Msg("metachannel shutdown failed")
		}
		if err := ch.Stop(); err != nil {
			logging.Error().Err(err).Str("pv", baseName).Msg("channel stop failed")
		}
	})
}

func (e *EngineContext) flushWriterStep(ctx context.Context) {
	defer recoverAndLog("final writer flush")
	e.writerMu.Lock()
	w := e.writer
	e.writerMu.Unlock()
	if w != nil {
		w.FlushSync(ctx)
	}
}

func (e *EngineContext) clearRegistryStep() {
	defer recoverAndLog("clear channel registry")
	e.registry.Clear()
}

func (e *EngineContext) stopControllingPVsStep() {
	defer recoverAndLog("stop controlling PVs")
	for _, err := range e.controllingPVs.StopAllAndClear() {
		logging.Error().Err(err).Msg("controlling PV stop failed")
	}
}

func (e *EngineContext) markWriterStoppedStep() {
	defer recoverAndLog("mark writer stopped")
	e.writerMu.Lock()
	defer e.writerMu.Unlock()
	e.writerStarted = false
}

func (e *EngineContext) stopCommandThreadsStep() {
	defer recoverAndLog("stop command thread pool")
	e.threads.Shutdown()
}

func recoverAndLog(step string) {
	if r := recover(); r != nil {
		logging.Error().Interface("panic", r).Str("step", step).Msg("shutdown step panicked")
	}
}
