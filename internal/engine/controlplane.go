// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/tomtom215/cartographus/internal/channel"
	"github.com/tomtom215/cartographus/internal/eventbus"
	"github.com/tomtom215/cartographus/internal/logging"
)

// ControlPlane subscribes an EngineContext to the event-bus control-plane
// topics, turning ComputeMetaInfo and StartArchivingPV events into
// registry and command-thread-pool operations. It implements suture.Service
// so the supervisor tree's cluster layer can restart it independently of
// the HTTP surface and the writer/disconnect threads.
type ControlPlane struct {
	engine     *EngineContext
	bus        *eventbus.Bus
	identity   string
	newChannel func(pvName string, threadID int) channel.ArchiveChannel

	mu               sync.Mutex
	inFlightMetaInfo map[string]context.CancelFunc
}

// NewControlPlane constructs a ControlPlane bound to engine and bus,
// addressed as identity on the event bus. An incoming event is processed
// only when its destination is eventbus.DestinationAll or equals identity;
// every other event is silently skipped, left for the appliance it
// actually addresses. New channels are created as channel.MemChannel;
// tests may swap newChannel in by constructing the struct literal
// directly.
func NewControlPlane(engine *EngineContext, bus *eventbus.Bus, identity string) *ControlPlane {
	return &ControlPlane{
		engine:   engine,
		bus:      bus,
		identity: identity,
		newChannel: func(pvName string, threadID int) channel.ArchiveChannel {
			return channel.NewMemChannel(pvName, threadID)
		},
		inFlightMetaInfo: make(map[string]context.CancelFunc),
	}
}

// addressedToMe reports whether an event with the given destination should
// be processed by this appliance.
func (c *ControlPlane) addressedToMe(destination string) bool {
	return destination == eventbus.DestinationAll || destination == c.identity
}

// Serve implements suture.Service: subscribes to the control-plane topics
// and processes events until ctx is canceled.
func (c *ControlPlane) Serve(ctx context.Context) error {
	if err := c.bus.Subscribe(ctx, eventbus.TopicComputeMetaInfo, c.handleComputeMetaInfo); err != nil {
		return fmt.Errorf("controlplane: subscribe %s: %w", eventbus.TopicComputeMetaInfo, err)
	}
	if err := c.bus.Subscribe(ctx, eventbus.TopicStartArchivingPV, c.handleStartArchivingPV); err != nil {
		return fmt.Errorf("controlplane: subscribe %s: %w", eventbus.TopicStartArchivingPV, err)
	}
	<-ctx.Done()
	return ctx.Err()
}

// handleComputeMetaInfo resolves a PV's type info and reports the outcome,
// mirroring the original's metadata-request/response round trip. The
// computation is tracked while in flight so AbortComputeMetaInfo can cancel
// it before the MetaInfoFinished confirmation goes out.
func (c *ControlPlane) handleComputeMetaInfo(ctx context.Context, event eventbus.Event) error {
	ev, ok := event.(eventbus.ComputeMetaInfo)
	if !ok {
		return nil
	}
	if !c.addressedToMe(ev.Destination) {
		return nil
	}

	requested := eventbus.NewMetaInfoRequested(ev.PVName)
	requested.Source = c.identity
	if err := c.bus.Publish(ctx, requested); err != nil {
		return fmt.Errorf("controlplane: publish meta-info-requested for %s: %w", ev.PVName, err)
	}

	computeCtx, cancel := context.WithCancel(ctx)
	c.trackMetaInfoComputation(ev.PVName, cancel)
	defer c.untrackMetaInfoComputation(ev.PVName)

	typeInfo, found := c.engine.deps.TypeInfo.TypeInfo(ev.PVName)

	if computeCtx.Err() != nil {
		logging.Info().Str("pv", ev.PVName).Msg("metadata computation aborted")
		return nil
	}

	var finished eventbus.MetaInfoFinished
	if !found {
		finished = eventbus.NewMetaInfoFinished(ev.PVName, "", fmt.Errorf("no type info for pv %s", ev.PVName))
	} else {
		finished = eventbus.NewMetaInfoFinished(ev.PVName, typeInfo.DBRType, nil)
	}
	finished.Source = c.identity
	return c.bus.Publish(ctx, finished)
}

// trackMetaInfoComputation records cancel under pvName so a concurrent
// AbortComputeMetaInfo call can find and invoke it.
func (c *ControlPlane) trackMetaInfoComputation(pvName string, cancel context.CancelFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inFlightMetaInfo[pvName] = cancel
}

func (c *ControlPlane) untrackMetaInfoComputation(pvName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inFlightMetaInfo, pvName)
}

// AbortComputeMetaInfo cancels an in-flight metadata computation for
// pvName, reporting whether one was found. A computation that has already
// finished (or was never started) is reported as not found.
func (c *ControlPlane) AbortComputeMetaInfo(pvName string) bool {
	c.mu.Lock()
	cancel, ok := c.inFlightMetaInfo[pvName]
	if ok {
		delete(c.inFlightMetaInfo, pvName)
	}
	c.mu.Unlock()

	if !ok {
		return false
	}
	cancel()
	return true
}

// handleStartArchivingPV loads the PV's type info, resolves its first
// storage destination, registers a new archive channel under the PV's
// base name, assigns it a command thread, and confirms the start. Missing
// type info or an unresolvable storage destination is an error: the PV is
// never registered and no confirmation is sent.
func (c *ControlPlane) handleStartArchivingPV(ctx context.Context, event eventbus.Event) error {
	ev, ok := event.(eventbus.StartArchivingPV)
	if !ok {
		return nil
	}
	if !c.addressedToMe(ev.Destination) {
		return nil
	}

	baseName := channel.BaseName(ev.PVName)

	typeInfo, found := c.engine.deps.TypeInfo.TypeInfo(baseName)
	if !found {
		logging.Error().Str("pv", baseName).Msg("cannot start archiving: no type info for pv")
		return nil
	}

	storageURL, err := firstStorageDestination(typeInfo)
	if err != nil {
		logging.Error().Err(err).Str("pv", baseName).Msg("cannot start archiving")
		return nil
	}

	protocolVersion := protocolVersionForDBRType(typeInfo.DBRType)

	threadID := c.engine.AssignCommandThread(baseName)
	c.engine.RegisterChannel(c.newChannel(baseName, threadID))

	logging.Info().
		Str("pv", baseName).
		Int("thread", threadID).
		Str("storage", storageURL).
		Str("protocol", protocolVersion).
		Msg("archiving started")

	started := eventbus.NewStartedArchivingPV(baseName, threadID)
	started.Source = c.identity
	return c.bus.Publish(ctx, started)
}

// firstStorageDestination returns the first configured plugin URL from
// typeInfo's storage destinations.
func firstStorageDestination(typeInfo PVTypeInfo) (string, error) {
	if len(typeInfo.StorageURLs) == 0 {
		return "", errors.New("no storage destination configured")
	}
	return typeInfo.StorageURLs[0], nil
}

// protocolVersionForDBRType picks the archive-start path's protocol
// generation from the DBR type: classic Channel Access scalar/waveform
// types use V3, structured pvAccess types use V4.
func protocolVersionForDBRType(dbrType string) string {
	if strings.Contains(strings.ToUpper(dbrType), "V4") {
		return "V4"
	}
	return "V3"
}
