package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomtom215/cartographus/internal/channel"
)

func stubCtxInit(id int) (ProtocolContext, error) {
	return struct{ id int }{id}, nil
}

func TestCommandThreadPoolAllThreadsReadyAfterConstruction(t *testing.T) {
	pool := NewCommandThreadPool(4, stubCtxInit)
	assert.Equal(t, 4, pool.N())
	assert.Equal(t, 4, pool.ReadyCount())
}

func TestCommandThreadPoolFailedInitLeavesSlotNil(t *testing.T) {
	calls := 0
	init := func(id int) (ProtocolContext, error) {
		calls++
		if id == 1 {
			return nil, errors.New("boom")
		}
		return struct{}{}, nil
	}
	pool := NewCommandThreadPool(3, init)
	assert.Nil(t, pool.GetCommandThread(1).Context())
	assert.Equal(t, 2, pool.ReadyCount())
}

func TestHashThreadIDIsStableForSameBaseName(t *testing.T) {
	first := hashThreadID("TEST:PV1", 10)
	for i := 0; i < 50; i++ {
		assert.Equal(t, first, hashThreadID("TEST:PV1", 10))
	}
}

func TestHashThreadIDWithinRange(t *testing.T) {
	for _, name := range []string{"A", "B:C", "LONG:PV:NAME:WITH:COLONS"} {
		id := hashThreadID(name, 7)
		assert.GreaterOrEqual(t, id, 0)
		assert.Less(t, id, 7)
	}
}

func TestAssignCommandThreadPrefersExistingRegistration(t *testing.T) {
	registry := NewChannelRegistry()
	ch := channel.NewMemChannel("TEST:PV1", 3)
	registry.Register("TEST:PV1", ch)

	pool := NewCommandThreadPool(10, stubCtxInit)
	assert.Equal(t, 3, pool.AssignCommandThread(registry, "TEST:PV1"))
	assert.Equal(t, 3, pool.AssignCommandThread(registry, "TEST:PV1.HIHI"))
}

func TestAssignCommandThreadFallsBackToHash(t *testing.T) {
	registry := NewChannelRegistry()
	pool := NewCommandThreadPool(10, stubCtxInit)
	want := hashThreadID("TEST:NEW", 10)
	assert.Equal(t, want, pool.AssignCommandThread(registry, "TEST:NEW"))
}

func TestDoesContextMatchThreadDefensiveTrueWhenUnready(t *testing.T) {
	pool := &CommandThreadPool{threads: []*CommandThread{
		{id: 0, ready: make(chan struct{}), commands: make(chan func(), 1)},
	}}
	assert.True(t, pool.DoesContextMatchThread(struct{}{}, 0))
	assert.True(t, pool.DoesContextMatchThread(struct{}{}, 99))
}

func TestDoesContextMatchThreadComparesContext(t *testing.T) {
	pool := NewCommandThreadPool(2, stubCtxInit)
	require.Eventually(t, func() bool {
		return pool.GetCommandThread(0).Context() != nil
	}, 2*time.Second, 10*time.Millisecond)

	ctx0 := pool.GetCommandThread(0).Context()
	assert.True(t, pool.DoesContextMatchThread(ctx0, 0))
	assert.False(t, pool.DoesContextMatchThread(ctx0, 1))
}

func TestCommandThreadPoolShutdownClosesQueues(t *testing.T) {
	pool := NewCommandThreadPool(2, stubCtxInit)
	done := make(chan struct{})
	pool.GetCommandThread(0).Submit(func() { close(done) })
	<-done
	pool.Shutdown()
}
