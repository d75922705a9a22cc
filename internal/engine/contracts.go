// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

package engine

import (
	"context"
	"time"

	"github.com/tomtom215/cartographus/internal/channel"
)

// ConfigService is the minimal slice of the external configuration service
// the engine depends on: a shutting-down flag. It has no
// installation-property lookups. The implementation cmd/server wires in is
// ShutdownFlag in reference.go; this interface lets the engine be tested
// against a fake.
type ConfigService interface {
	// IsShuttingDown reports whether the process has begun an orderly
	// shutdown; the disconnect monitor checks this at the top of every
	// tick.
	IsShuttingDown() bool
}

// PVTypeInfo is the subset of a PV's archival metadata the engine needs:
// whether archiving is currently paused, and (for StartArchivingPV) its
// resolved storage destination and protocol DBR type.
type PVTypeInfo struct {
	Paused      bool
	DBRType     string
	StorageURLs []string
	ExtraFields []string
}

// TypeInfoProvider resolves a PV's archival type info. Missing type info
// is reported via the second return value: missing type info is an error,
// to be logged by the caller.
type TypeInfoProvider interface {
	TypeInfo(pvName string) (PVTypeInfo, bool)
}

// PauseResumer pauses and resumes archiving for a PV, invoked by the
// disconnect monitor on stuck channels.
type PauseResumer interface {
	PauseArchivingPV(ctx context.Context, pvName string) error
	ResumeArchivingPV(ctx context.Context, pvName string) error
}

// NativeChannelLister enumerates native (protocol-level) channels matching
// a PV's base name, a test-only affordance used to verify no stray
// channels remain after a pause.
type NativeChannelLister interface {
	NativeChannelsForPV(baseName string) []string
}

// PeerCount is one peer appliance's connected/disconnected PV counts, as
// returned by ConnectedPVCountForAppliance.
type PeerCount struct {
	Peer         string
	Total        int
	Disconnected int
	Responded    bool
}

// ClusterPoller queries every configured peer appliance for its PV counts.
// A non-responding peer is represented with Responded == false rather than
// an error, treated as peer unknown.
type ClusterPoller interface {
	PollAll(ctx context.Context) []PeerCount
}

// StorageFlusher drains one archive channel's sample buffer to its
// resolved storage destination. The writer loop only guarantees the
// periodic invocation; the actual drain/flush is this collaborator.
type StorageFlusher interface {
	Flush(ctx context.Context, ch channel.ArchiveChannel) error
}

// WritePeriodAdopter lets the writer clamp or round a requested period,
// returning the period actually in effect.
type WritePeriodAdopter interface {
	AdoptPeriod(requestedSeconds int) time.Duration
}
