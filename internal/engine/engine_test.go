package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomtom215/cartographus/internal/channel"
)

func TestNewRejectsNilConfigService(t *testing.T) {
	_, err := New(1, 10, 1.0, Dependencies{ProtocolInit: stubCtxInit})
	assert.ErrorIs(t, err, ErrNilConfigService)
}

func TestNewDefaultsProtocolInitWhenNil(t *testing.T) {
	e, err := New(1, 10, 1.0, Dependencies{Config: &fakeConfigService{}})
	require.NoError(t, err)
	assert.Equal(t, 1, e.CommandThreadCount())
}

func TestRegisterChannelUsesBaseNameAsKey(t *testing.T) {
	e := newTestEngine(t, &countingFlusher{})
	ch := channel.NewMemChannel("TEST:PV1", 0)
	e.RegisterChannel(ch)

	got, ok := e.Registry().Lookup("TEST:PV1")
	require.True(t, ok)
	assert.Same(t, ch, got)
}

func TestIsWriteThreadStartedReflectsState(t *testing.T) {
	e := newTestEngine(t, &countingFlusher{})
	assert.False(t, e.IsWriteThreadStarted())

	_, err := e.StartWriteThread(30)
	require.NoError(t, err)
	assert.True(t, e.IsWriteThreadStarted())
}

func TestWritePeriodZeroBeforeStart(t *testing.T) {
	e := newTestEngine(t, &countingFlusher{})
	assert.Equal(t, int64(0), int64(e.WritePeriod()))
}

func TestShutdownClearsRegistryAndStopsChannels(t *testing.T) {
	e := newTestEngine(t, &countingFlusher{})
	ch := channel.NewMemChannel("TEST:PV1", 0)
	e.RegisterChannel(ch)

	ctrl := channel.NewMemChannel("TEST:CTRL", 0)
	e.ControllingPVs().Register("TEST:CTRL", ctrl)

	_, err := e.StartWriteThread(30)
	require.NoError(t, err)

	e.Shutdown(context.Background())

	assert.Equal(t, 0, e.Registry().Size())
	assert.True(t, ch.Stopped())
	assert.Equal(t, 0, e.ControllingPVs().Size())
	assert.True(t, ctrl.Stopped())
	assert.False(t, e.IsWriteThreadStarted())
}

func TestShutdownSurvivesChannelStopPanic(t *testing.T) {
	e := newTestEngine(t, &countingFlusher{})
	e.RegisterChannel(&panickingChannel{name: "TEST:BAD"})

	assert.NotPanics(t, func() {
		e.Shutdown(context.Background())
	})
}

type panickingChannel struct {
	name string
}

func (p *panickingChannel) Name() string                              { return p.name }
func (p *panickingChannel) IsConnected() bool                         { return true }
func (p *panickingChannel) SecondsElapsedSinceSearchRequest() float64 { return 0 }
func (p *panickingChannel) JCACommandThreadID() int                   { return 0 }
func (p *panickingChannel) MetaChannelsNeedStartingUp() bool          { return false }
func (p *panickingChannel) StartUpMetaChannels() error                { return nil }
func (p *panickingChannel) ShutdownMetaChannels() error               { return nil }
func (p *panickingChannel) Stop() error                               { panic("boom") }

var _ channel.ArchiveChannel = (*panickingChannel)(nil)
