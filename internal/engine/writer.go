// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

package engine

import (
	"context"
	"sync"
	"time"

	"github.com/tomtom215/cartographus/internal/channel"
	"github.com/tomtom215/cartographus/internal/logging"
	"github.com/tomtom215/cartographus/internal/metrics"
)

// WriterLoop drains every archive channel's sample buffer into storage on a
// fixed schedule. It implements suture.Service so the supervisor
// tree can restart it independently of the disconnect monitor.
type WriterLoop struct {
	engine *EngineContext
	period time.Duration

	mu              sync.Mutex
	secondsConsumed float64
	flushCount      int64
}

// newWriterLoop constructs a writer bound to engine, scheduled at the
// given (already-adopted) period.
func newWriterLoop(engine *EngineContext, period time.Duration) *WriterLoop {
	return &WriterLoop{engine: engine, period: period}
}

// Serve implements suture.Service: schedules runCycle at a fixed rate
// starting at delay 0, stopping when ctx is canceled.
func (w *WriterLoop) Serve(ctx context.Context) error {
	if w.period <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	w.runCycle(ctx)

	ticker := time.NewTicker(w.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.runCycle(ctx)
		}
	}
}

// runCycle drains every registered channel's buffer into storage and
// records the elapsed time, never letting a panic or error escape.
func (w *WriterLoop) runCycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error().Interface("panic", r).Msg("writer cycle panicked")
		}
	}()

	start := time.Now()
	w.flushRegistry(ctx, w.engine.deps.Storage)
	elapsed := time.Since(start).Seconds()
	w.setSecondsConsumedByWriter(elapsed)
	metrics.WriterFlushDuration.Observe(elapsed)
	metrics.WriterFlushCount.Inc()
}

// setSecondsConsumedByWriter accumulates a running sum and count for
// AverageSecondsConsumedByWriter.
func (w *WriterLoop) setSecondsConsumedByWriter(seconds float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.secondsConsumed += seconds
	w.flushCount++
}

// AverageSecondsConsumedByWriter returns sum/count, or 0 when count is 0.
func (w *WriterLoop) AverageSecondsConsumedByWriter() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.flushCount == 0 {
		return 0
	}
	return w.secondsConsumed / float64(w.flushCount)
}

// FlushSync drains every registered channel's buffer synchronously,
// blocking until complete. Used by shutdown.
func (w *WriterLoop) FlushSync(ctx context.Context) {
	w.flushRegistry(ctx, w.engine.deps.Storage)
}

// flushRegistry invokes flusher.Flush for every registered channel. A
// missing StorageFlusher collaborator is a no-op; individual flush errors
// are logged and do not abort the rest of the sweep, matching the
// transient-I/O-error handling elsewhere in the engine.
func (w *WriterLoop) flushRegistry(ctx context.Context, flusher StorageFlusher) {
	if flusher == nil {
		return
	}
	var flushed int64
	w.engine.registry.ForEach(func(baseName string, ch channel.ArchiveChannel) {
		if err := flusher.Flush(ctx, ch); err != nil {
			logging.Error().Err(err).Str("pv", baseName).Msg("writer flush failed")
			return
		}
		flushed++
	})
	if flushed > 0 {
		metrics.WriterSamplesWritten.Add(float64(flushed))
	}
}

func (w *WriterLoop) String() string {
	return "writer-loop"
}
