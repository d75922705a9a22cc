// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

// Package channel defines the ArchiveChannel contract consumed by the engine
// core and provides an in-memory reference implementation for tests and
// examples. The underlying channel-access protocol and the per-PV sample
// policy are external collaborators; this package only describes the shape
// the engine needs from them.
package channel

import (
	"strings"
	"sync"
	"time"
)

// ArchiveChannel is the engine's per-PV handle: subscription, sample buffer,
// and policy. Implementations are supplied by the protocol/storage layer;
// the engine touches a channel only through this contract.
type ArchiveChannel interface {
	// Name returns the PV's base name (no field suffix).
	Name() string

	// IsConnected reports whether the underlying subscription is live.
	IsConnected() bool

	// SecondsElapsedSinceSearchRequest reports how long the channel has been
	// searching for a connection, used by the disconnect monitor to detect
	// stuck channels.
	SecondsElapsedSinceSearchRequest() float64

	// JCACommandThreadID returns the command-thread slot this channel is
	// bound to.
	JCACommandThreadID() int

	// MetaChannelsNeedStartingUp reports whether this channel's auxiliary
	// metadata subscriptions have not yet been started.
	MetaChannelsNeedStartingUp() bool

	// StartUpMetaChannels starts the channel's metadata subscriptions.
	StartUpMetaChannels() error

	// ShutdownMetaChannels stops the channel's metadata subscriptions.
	ShutdownMetaChannels() error

	// Stop tears down the channel's subscription entirely.
	Stop() error
}

// SampleSource is the optional capability a storage plugin looks for on an
// ArchiveChannel: a FIFO buffer of values accumulated since the last flush.
// A channel implementation that buffers nothing (e.g. one that writes
// straight through) simply does not implement this interface, and
// StorageFlusher.Flush treats that as "nothing to drain".
type SampleSource interface {
	DrainBuffer() []Sample
}

// BaseName strips any ".FIELD" suffix from a PV name, per invariant 1: the
// registry key is always the base name.
func BaseName(pvName string) string {
	if idx := strings.IndexByte(pvName, '.'); idx >= 0 {
		return pvName[:idx]
	}
	return pvName
}

// HasFieldSuffix reports whether pvName carries a ".FIELD" qualifier.
func HasFieldSuffix(pvName string) bool {
	return strings.IndexByte(pvName, '.') >= 0
}

// MemChannel is a minimal in-memory ArchiveChannel used by tests and by the
// reference wiring in cmd/server when no real protocol library is present.
// It is not a storage or protocol implementation; it only tracks the state
// the engine core reads and mutates.
type MemChannel struct {
	mu sync.RWMutex

	name            string
	threadID        int
	connected       bool
	searchStartedAt time.Time
	needsMeta       bool
	metaStarted     bool
	stopped         bool
	buffer          []Sample
}

// Sample is one archived value for a PV.
type Sample struct {
	Value     float64
	Timestamp time.Time
}

// NewMemChannel constructs a channel bound to threadID, initially
// disconnected and searching.
func NewMemChannel(name string, threadID int) *MemChannel {
	return &MemChannel{
		name:            name,
		threadID:        threadID,
		searchStartedAt: time.Now(),
		needsMeta:       true,
	}
}

// Name implements ArchiveChannel.
func (c *MemChannel) Name() string { return c.name }

// IsConnected implements ArchiveChannel.
func (c *MemChannel) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// SetConnected marks the channel connected or disconnected. Every call
// that marks it disconnected resets the search-elapsed clock, even when it
// was already disconnected.
func (c *MemChannel) SetConnected(connected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = connected
	if !connected {
		c.searchStartedAt = time.Now()
	}
}

// SecondsElapsedSinceSearchRequest implements ArchiveChannel.
func (c *MemChannel) SecondsElapsedSinceSearchRequest() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Since(c.searchStartedAt).Seconds()
}

// JCACommandThreadID implements ArchiveChannel.
func (c *MemChannel) JCACommandThreadID() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.threadID
}

// MetaChannelsNeedStartingUp implements ArchiveChannel.
func (c *MemChannel) MetaChannelsNeedStartingUp() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.needsMeta && !c.metaStarted
}

// StartUpMetaChannels implements ArchiveChannel.
func (c *MemChannel) StartUpMetaChannels() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metaStarted = true
	return nil
}

// ShutdownMetaChannels implements ArchiveChannel.
func (c *MemChannel) ShutdownMetaChannels() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metaStarted = false
	return nil
}

// Stop implements ArchiveChannel.
func (c *MemChannel) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
	return nil
}

// Stopped reports whether Stop has been called, for test assertions.
func (c *MemChannel) Stopped() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stopped
}

// AppendSample pushes a value onto the channel's buffer in arrival order,
// maintained strictly FIFO within one PV.
func (c *MemChannel) AppendSample(s Sample) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buffer = append(c.buffer, s)
}

// DrainBuffer removes and returns every buffered sample in FIFO order.
func (c *MemChannel) DrainBuffer() []Sample {
	c.mu.Lock()
	defer c.mu.Unlock()
	drained := c.buffer
	c.buffer = nil
	return drained
}

// BufferLen reports the number of buffered, undrained samples.
func (c *MemChannel) BufferLen() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.buffer)
}

var (
	_ ArchiveChannel = (*MemChannel)(nil)
	_ SampleSource   = (*MemChannel)(nil)
)
