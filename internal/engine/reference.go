// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

package engine

import (
	"context"
	"sync"
	"sync/atomic"
)

// MemTypeInfoStore is an in-memory reference implementation of
// TypeInfoProvider, PauseResumer, and NativeChannelLister. The CA protocol
// layer that a real pause/resume would drive is an external collaborator
// not present in this module, so pause/resume here only
// flips the stored Paused flag; NativeChannelsForPV always reports no
// stray channels. It is intentionally simple, in the same spirit as
// channel.MemChannel, and is what cmd/server wires the engine against.
type MemTypeInfoStore struct {
	mu    sync.RWMutex
	infos map[string]PVTypeInfo
}

// NewMemTypeInfoStore constructs an empty store.
func NewMemTypeInfoStore() *MemTypeInfoStore {
	return &MemTypeInfoStore{infos: make(map[string]PVTypeInfo)}
}

// Set records or replaces the type info for pvName.
func (s *MemTypeInfoStore) Set(pvName string, info PVTypeInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.infos[pvName] = info
}

// TypeInfo implements TypeInfoProvider.
func (s *MemTypeInfoStore) TypeInfo(pvName string) (PVTypeInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info, ok := s.infos[pvName]
	return info, ok
}

// PauseArchivingPV implements PauseResumer by marking the PV paused.
func (s *MemTypeInfoStore) PauseArchivingPV(_ context.Context, pvName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	info := s.infos[pvName]
	info.Paused = true
	s.infos[pvName] = info
	return nil
}

// ResumeArchivingPV implements PauseResumer by clearing the paused flag.
func (s *MemTypeInfoStore) ResumeArchivingPV(_ context.Context, pvName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	info := s.infos[pvName]
	info.Paused = false
	s.infos[pvName] = info
	return nil
}

// NativeChannelsForPV implements NativeChannelLister. The reference store
// has no protocol layer to query, so it always reports no stray channels.
func (s *MemTypeInfoStore) NativeChannelsForPV(_ string) []string {
	return nil
}

// ShutdownFlag is a trivial ConfigService implementation: a single
// atomically-set flag flipped once at the start of process shutdown so the
// disconnect monitor stops acting on ticks already in flight.
type ShutdownFlag struct {
	flag atomic.Bool
}

// IsShuttingDown implements ConfigService.
func (f *ShutdownFlag) IsShuttingDown() bool {
	return f.flag.Load()
}

// Set marks the process as shutting down.
func (f *ShutdownFlag) Set() {
	f.flag.Store(true)
}

var (
	_ ConfigService       = (*ShutdownFlag)(nil)
	_ TypeInfoProvider    = (*MemTypeInfoStore)(nil)
	_ PauseResumer        = (*MemTypeInfoStore)(nil)
	_ NativeChannelLister = (*MemTypeInfoStore)(nil)
)
