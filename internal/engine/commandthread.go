// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

package engine

import (
	"hash/fnv"
	"sync"
	"time"

	"github.com/tomtom215/cartographus/internal/channel"
	"github.com/tomtom215/cartographus/internal/logging"
)

// startupBarrierIterations and startupBarrierInterval implement the
// start-up barrier: up to 60 iterations of 1 second each.
const (
	startupBarrierIterations = 60
	startupBarrierInterval   = time.Second
)

// ProtocolContext is an opaque handle to one command thread's underlying
// channel-access context. The protocol library is an external
// collaborator; the engine only needs to know whether a slot's context is
// ready.
type ProtocolContext interface{}

// CommandThread owns one protocol context and serialises all I/O for
// channels bound to it onto a single goroutine. Construction is
// eager; context initialisation is asynchronous and may lag.
type CommandThread struct {
	id int

	mu        sync.RWMutex
	ctx       ProtocolContext
	ready     chan struct{}
	readyOnce sync.Once

	commands chan func()
}

// newCommandThread constructs thread id with an empty command queue and
// starts its dispatch goroutine. ctxInit is called asynchronously to
// produce the thread's protocol context.
func newCommandThread(id int, ctxInit func() (ProtocolContext, error)) *CommandThread {
	t := &CommandThread{
		id:       id,
		ready:    make(chan struct{}),
		commands: make(chan func(), 256),
	}
	go t.dispatch()
	go t.initialize(ctxInit)
	return t
}

// dispatch drains the command queue on this thread's single goroutine,
// serialising all I/O for the bound protocol context.
func (t *CommandThread) dispatch() {
	for cmd := range t.commands {
		cmd()
	}
}

// initialize runs ctxInit asynchronously and signals readiness once the
// context is available. A failed initialisation leaves the context nil;
// the slot is left null and logged as a failed context initialisation.
func (t *CommandThread) initialize(ctxInit func() (ProtocolContext, error)) {
	ctx, err := ctxInit()
	if err != nil {
		logging.Error().Err(err).Int("thread_id", t.id).Msg("command thread context initialisation failed")
		return
	}
	t.mu.Lock()
	t.ctx = ctx
	t.mu.Unlock()
	t.readyOnce.Do(func() { close(t.ready) })
}

// Context returns the thread's protocol context, or nil if not yet ready.
func (t *CommandThread) Context() ProtocolContext {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.ctx
}

// Submit enqueues a command to run on this thread's dispatch goroutine.
func (t *CommandThread) Submit(cmd func()) {
	t.commands <- cmd
}

// CommandThreadPool owns N independent protocol contexts. The pool
// is written once during construction and read-only thereafter except for
// each thread's own context field, set asynchronously exactly once.
type CommandThreadPool struct {
	threads []*CommandThread
}

// NewCommandThreadPool constructs n command threads, each initialising its
// protocol context via ctxInit(threadID), and blocks for up to 60 seconds
// (in 1-second steps) waiting for every context to become non-nil.
func NewCommandThreadPool(n int, ctxInit func(id int) (ProtocolContext, error)) *CommandThreadPool {
	pool := &CommandThreadPool{threads: make([]*CommandThread, n)}
	for i := 0; i < n; i++ {
		id := i
		pool.threads[i] = newCommandThread(id, func() (ProtocolContext, error) {
			return ctxInit(id)
		})
	}
	pool.awaitStartupBarrier()
	return pool
}

// awaitStartupBarrier polls up to startupBarrierIterations times, one
// second apart, for every thread's context to become ready. A slot still
// nil afterward is logged as an error and left null.
func (p *CommandThreadPool) awaitStartupBarrier() {
	deadline := time.Now().Add(time.Duration(startupBarrierIterations) * startupBarrierInterval)
	for {
		allReady := true
		for _, t := range p.threads {
			if t.Context() == nil {
				allReady = false
				break
			}
		}
		if allReady {
			return
		}
		if time.Now().After(deadline) {
			break
		}
		time.Sleep(startupBarrierInterval)
	}
	for _, t := range p.threads {
		if t.Context() == nil {
			logging.Error().Int("thread_id", t.id).Msg("command thread context still nil after start-up barrier")
		}
	}
}

// N returns the configured command-thread count.
func (p *CommandThreadPool) N() int {
	return len(p.threads)
}

// GetCommandThread returns the thread at index i.
func (p *CommandThreadPool) GetCommandThread(i int) *CommandThread {
	if i < 0 || i >= len(p.threads) {
		return nil
	}
	return p.threads[i]
}

// ReadyCount returns how many threads currently have a non-nil context,
// used to populate the engine_command_threads_ready gauge.
func (p *CommandThreadPool) ReadyCount() int {
	count := 0
	for _, t := range p.threads {
		if t.Context() != nil {
			count++
		}
	}
	return count
}

// hashThreadID computes the stable thread assignment for a base name:
// |FNV-1a(baseName)| mod N. FNV-1a is not security-sensitive but is
// deterministic across process restarts, which is what reconnecting
// channels need.
func hashThreadID(baseName string, n int) int {
	if n <= 0 {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(baseName))
	return int(h.Sum32()) % n
}

// AssignCommandThread implements: stable hashing
// over the PV's base name, except that an already-registered channel's
// existing thread id always wins, even when the caller passed a
// field-qualified name (invariant 3).
func (p *CommandThreadPool) AssignCommandThread(registry *ChannelRegistry, pvName string) int {
	base := channel.BaseName(pvName)
	if ch, ok := registry.Lookup(base); ok {
		return ch.JCACommandThreadID()
	}
	return hashThreadID(base, p.N())
}

// DoesContextMatchThread verifies an incoming callback's context matches
// the thread at index i. A missing mapping (nil context at that slot, per
// the barrier having left it null) defensively returns true rather than
// dropping the callback.
func (p *CommandThreadPool) DoesContextMatchThread(ctx ProtocolContext, i int) bool {
	t := p.GetCommandThread(i)
	if t == nil {
		return true
	}
	threadCtx := t.Context()
	if threadCtx == nil {
		return true
	}
	return threadCtx == ctx
}

// Shutdown stops every command thread's dispatch goroutine.
func (p *CommandThreadPool) Shutdown() {
	for _, t := range p.threads {
		close(t.commands)
	}
}
