package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomtom215/cartographus/internal/channel"
)

type fakeConfigService struct {
	mu           sync.RWMutex
	shuttingDown bool
}

func (f *fakeConfigService) IsShuttingDown() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.shuttingDown
}

func (f *fakeConfigService) SetShuttingDown(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shuttingDown = v
}

type countingFlusher struct {
	mu      sync.Mutex
	flushed int
	fail    map[string]bool
}

func (f *countingFlusher) Flush(ctx context.Context, ch channel.ArchiveChannel) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[ch.Name()] {
		return assert.AnError
	}
	f.flushed++
	return nil
}

func (f *countingFlusher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.flushed
}

func newTestEngine(t *testing.T, flusher StorageFlusher) *EngineContext {
	t.Helper()
	e, err := New(2, 10, 1.0, Dependencies{
		Config:       &fakeConfigService{},
		Storage:      flusher,
		ProtocolInit: stubCtxInit,
	})
	require.NoError(t, err)
	return e
}

func TestWriterLoopFlushesAllRegisteredChannels(t *testing.T) {
	flusher := &countingFlusher{}
	e := newTestEngine(t, flusher)
	e.RegisterChannel(channel.NewMemChannel("TEST:A", 0))
	e.RegisterChannel(channel.NewMemChannel("TEST:B", 1))

	w, err := e.StartWriteThread(30)
	require.NoError(t, err)
	w.FlushSync(context.Background())

	assert.Equal(t, 2, flusher.count())
}

func TestWriterLoopSecondStartReturnsErrSchedulerAlreadySet(t *testing.T) {
	e := newTestEngine(t, &countingFlusher{})
	_, err := e.StartWriteThread(30)
	require.NoError(t, err)

	_, err = e.StartWriteThread(30)
	assert.ErrorIs(t, err, ErrSchedulerAlreadySet)
}

func TestAverageSecondsConsumedByWriterZeroBeforeAnyCycle(t *testing.T) {
	e := newTestEngine(t, &countingFlusher{})
	w, err := e.StartWriteThread(30)
	require.NoError(t, err)
	assert.Equal(t, float64(0), w.AverageSecondsConsumedByWriter())
}

func TestAverageSecondsConsumedByWriterAccumulates(t *testing.T) {
	e := newTestEngine(t, &countingFlusher{})
	w, err := e.StartWriteThread(30)
	require.NoError(t, err)

	w.setSecondsConsumedByWriter(0.1)
	w.setSecondsConsumedByWriter(0.3)
	assert.InDelta(t, 0.2, w.AverageSecondsConsumedByWriter(), 1e-9)
}

func TestWriterLoopRunCycleSurvivesFlushError(t *testing.T) {
	flusher := &countingFlusher{fail: map[string]bool{"TEST:BAD": true}}
	e := newTestEngine(t, flusher)
	e.RegisterChannel(channel.NewMemChannel("TEST:BAD", 0))
	e.RegisterChannel(channel.NewMemChannel("TEST:GOOD", 1))

	w, err := e.StartWriteThread(30)
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		w.runCycle(context.Background())
	})
	assert.Equal(t, 1, flusher.count())
}

func TestWriterLoopServeStopsOnContextCancel(t *testing.T) {
	e := newTestEngine(t, &countingFlusher{})
	w, err := e.StartWriteThread(0)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = w.Serve(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
