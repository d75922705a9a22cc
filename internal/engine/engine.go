// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

// Package engine implements EngineContext, the long-lived process-wide
// state of the archiver appliance's sampling/ingest engine: the
// command-thread pool, the archive channel registry, the periodic writer,
// and the disconnect/reconnect monitor.
package engine

import (
	"errors"
	"sync"
	"time"

	"github.com/tomtom215/cartographus/internal/channel"
	"github.com/tomtom215/cartographus/internal/logging"
)

// disconnectCheckerPeriodMinutes has no installation property and is
// hard-coded: the test-only setter updates both the timeout and the period
// to the same value, implying the two normally track each other, but there
// is no independent property for the period alone.
const disconnectCheckerPeriodMinutes = 20

var (
	// ErrSchedulerAlreadySet is returned (and logged, never panicked) when
	// a second attempt is made to start the writer, per invariant 6: the
	// main scheduler may be assigned only once.
	ErrSchedulerAlreadySet = errors.New("engine: writer already started")

	// ErrNilConfigService guards against constructing an engine without its
	// required config-service collaborator.
	ErrNilConfigService = errors.New("engine: config service must not be nil")
)

// Dependencies bundles the external collaborators EngineContext needs,
// wired concretely at process start-up in cmd/server.
type Dependencies struct {
	Config       ConfigService
	TypeInfo     TypeInfoProvider
	PauseResumer PauseResumer
	NativeLister NativeChannelLister
	Cluster      ClusterPoller
	Storage      StorageFlusher
	WritePeriod  WritePeriodAdopter
	ProtocolInit func(threadID int) (ProtocolContext, error)
}

// EngineContext is the singleton per-process engine state. It is created
// once at start-up with a reference to the config service and its
// collaborators, and destroyed on process shutdown via Shutdown.
type EngineContext struct {
	deps Dependencies

	threads  *CommandThreadPool
	registry *ChannelRegistry

	controllingPVs *ControllingPVRegistry

	writer            *WriterLoop
	writerStartedOnce sync.Once
	writerStarted     bool
	writerMu          sync.Mutex

	disconnect *DisconnectMonitor

	sampleBufferCapacityAdjustment float64
}

// New constructs an EngineContext with n command threads and the given
// collaborators. n is the configured commandThreadCount installation
// property (default 10).
func New(n int, disconnectCheckTimeoutMinutes int, sampleBufferCapacityAdjustment float64, deps Dependencies) (*EngineContext, error) {
	if deps.Config == nil {
		return nil, ErrNilConfigService
	}
	protocolInit := deps.ProtocolInit
	if protocolInit == nil {
		protocolInit = func(int) (ProtocolContext, error) { return struct{}{}, nil }
	}

	e := &EngineContext{
		deps:                           deps,
		threads:                        NewCommandThreadPool(n, protocolInit),
		registry:                       NewChannelRegistry(),
		controllingPVs:                 NewControllingPVRegistry(),
		sampleBufferCapacityAdjustment: sampleBufferCapacityAdjustment,
	}
	e.disconnect = newDisconnectMonitor(e, disconnectCheckTimeoutMinutes, disconnectCheckerPeriodMinutes)
	return e, nil
}

// CommandThreadCount returns N, the configured command-thread pool size.
func (e *EngineContext) CommandThreadCount() int {
	return e.threads.N()
}

// GetCommandThread returns the command thread at index i.
func (e *EngineContext) GetCommandThread(i int) *CommandThread {
	return e.threads.GetCommandThread(i)
}

// AssignCommandThread resolves the command thread a PV should use.
func (e *EngineContext) AssignCommandThread(pvName string) int {
	return e.threads.AssignCommandThread(e.registry, pvName)
}

// DoesContextMatchThread verifies an incoming callback's context matches
// the thread at index i.
func (e *EngineContext) DoesContextMatchThread(ctx ProtocolContext, i int) bool {
	return e.threads.DoesContextMatchThread(ctx, i)
}

// Registry returns the archive channel registry.
func (e *EngineContext) Registry() *ChannelRegistry {
	return e.registry
}

// ControllingPVs returns the controlling-PV registry.
func (e *EngineContext) ControllingPVs() *ControllingPVRegistry {
	return e.controllingPVs
}

// SampleBufferCapacityAdjustment returns the configured adjustment factor
// (org.epics.archiverappliance.config.PVTypeInfo.sampleBufferCapacityAdjustment).
func (e *EngineContext) SampleBufferCapacityAdjustment() float64 {
	return e.sampleBufferCapacityAdjustment
}

// RegisterChannel binds a new archive channel into the registry under its
// base name. No command thread is assigned here: the channel keeps the
// thread id it was constructed with.
func (e *EngineContext) RegisterChannel(ch channel.ArchiveChannel) {
	e.registry.Register(channel.BaseName(ch.Name()), ch)
}

// StartWriteThread starts the writer loop at the requested period. It is
// idempotent: a second call logs an error and leaves the existing writer
// in place, returning ErrSchedulerAlreadySet.
func (e *EngineContext) StartWriteThread(requestedSeconds int) (*WriterLoop, error) {
	e.writerMu.Lock()
	defer e.writerMu.Unlock()

	if e.writerStarted {
		logging.Error().Msg("attempted to start writer thread twice; ignoring second attempt")
		return e.writer, ErrSchedulerAlreadySet
	}

	period := time.Duration(requestedSeconds) * time.Second
	if e.deps.WritePeriod != nil {
		period = e.deps.WritePeriod.AdoptPeriod(requestedSeconds)
	}
	e.writer = newWriterLoop(e, period)
	e.writerStarted = true
	return e.writer, nil
}

// Writer returns the writer loop, or nil if StartWriteThread has not been
// called yet.
func (e *EngineContext) Writer() *WriterLoop {
	e.writerMu.Lock()
	defer e.writerMu.Unlock()
	return e.writer
}

// IsWriteThreadStarted reports whether StartWriteThread has been called.
func (e *EngineContext) IsWriteThreadStarted() bool {
	e.writerMu.Lock()
	defer e.writerMu.Unlock()
	return e.writerStarted
}

// WritePeriod implements; returns 0 if the writer has
// not started.
func (e *EngineContext) WritePeriod() time.Duration {
	e.writerMu.Lock()
	defer e.writerMu.Unlock()
	if e.writer == nil {
		return 0
	}
	return e.writer.period
}

// DisconnectMonitor returns the disconnect/reconnect monitor.
func (e *EngineContext) DisconnectMonitor() *DisconnectMonitor {
	return e.disconnect
}

// SetDisconnectTimeoutForTestingOnly implements the test-only affordance in
// atomically updates both the timeout and the checker period and
// reschedules the monitor.
func (e *EngineContext) SetDisconnectTimeoutForTestingOnly(minutes int) {
	e.disconnect.reconfigureForTesting(minutes, minutes)
}
