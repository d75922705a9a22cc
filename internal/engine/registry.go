// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

package engine

import (
	"sync"

	"github.com/tomtom215/cartographus/internal/channel"
)

// ChannelRegistry is the concurrent mapping from PV base name to its
// ArchiveChannel. Readers never observe a partial entry.
type ChannelRegistry struct {
	mu       sync.RWMutex
	channels map[string]channel.ArchiveChannel
}

// NewChannelRegistry constructs an empty registry.
func NewChannelRegistry() *ChannelRegistry {
	return &ChannelRegistry{
		channels: make(map[string]channel.ArchiveChannel),
	}
}

// Register adds or replaces the channel for a PV's base name.
func (r *ChannelRegistry) Register(baseName string, ch channel.ArchiveChannel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels[baseName] = ch
}

// Lookup returns the channel registered for baseName, if any.
func (r *ChannelRegistry) Lookup(baseName string) (channel.ArchiveChannel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.channels[baseName]
	return ch, ok
}

// Remove deletes the channel registered for baseName.
func (r *ChannelRegistry) Remove(baseName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.channels, baseName)
}

// Size returns the number of registered channels.
func (r *ChannelRegistry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels)
}

// Clear removes every registered channel, used during shutdown.
func (r *ChannelRegistry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels = make(map[string]channel.ArchiveChannel)
}

// Snapshot returns a point-in-time copy of the registry contents. No
// ordering guarantee.
func (r *ChannelRegistry) Snapshot() map[string]channel.ArchiveChannel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]channel.ArchiveChannel, len(r.channels))
	for k, v := range r.channels {
		out[k] = v
	}
	return out
}

// ForEach iterates the registry under a read lock, calling fn for every
// entry. fn must not call back into the registry.
func (r *ChannelRegistry) ForEach(fn func(baseName string, ch channel.ArchiveChannel)) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for k, v := range r.channels {
		fn(k, v)
	}
}

// ControllingPVRegistry is the concurrent map of controlling PVs: a PV
// whose value gates archiving of other PVs. The engine stops each on
// shutdown.
type ControllingPVRegistry struct {
	mu  sync.RWMutex
	pvs map[string]channel.ArchiveChannel
}

// NewControllingPVRegistry constructs an empty controlling-PV registry.
func NewControllingPVRegistry() *ControllingPVRegistry {
	return &ControllingPVRegistry{
		pvs: make(map[string]channel.ArchiveChannel),
	}
}

// Register adds a controlling PV.
func (r *ControllingPVRegistry) Register(baseName string, ch channel.ArchiveChannel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pvs[baseName] = ch
}

// Size returns the number of registered controlling PVs.
func (r *ControllingPVRegistry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pvs)
}

// StopAllAndClear stops every controlling PV's channel and clears the
// registry. Errors are collected but do not stop the sweep.
func (r *ControllingPVRegistry) StopAllAndClear() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	for _, ch := range r.pvs {
		if err := ch.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	r.pvs = make(map[string]channel.ArchiveChannel)
	return errs
}
