package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomtom215/cartographus/internal/channel"
)

type fakeTypeInfoProvider struct {
	info map[string]PVTypeInfo
}

func (f *fakeTypeInfoProvider) TypeInfo(pvName string) (PVTypeInfo, bool) {
	info, ok := f.info[pvName]
	return info, ok
}

type recordingPauseResumer struct {
	mu        sync.Mutex
	paused    []string
	resumed   []string
	failPause map[string]bool
}

func (r *recordingPauseResumer) PauseArchivingPV(ctx context.Context, pvName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failPause[pvName] {
		return assert.AnError
	}
	r.paused = append(r.paused, pvName)
	return nil
}

func (r *recordingPauseResumer) ResumeArchivingPV(ctx context.Context, pvName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resumed = append(r.resumed, pvName)
	return nil
}

type fakeClusterPoller struct {
	peers []PeerCount
}

func (f *fakeClusterPoller) PollAll(ctx context.Context) []PeerCount {
	return f.peers
}

func newDisconnectTestEngine(t *testing.T, typeInfo TypeInfoProvider, pr PauseResumer, cluster ClusterPoller) *EngineContext {
	t.Helper()
	e, err := New(2, 0, 1.0, Dependencies{
		Config:       &fakeConfigService{},
		TypeInfo:     typeInfo,
		PauseResumer: pr,
		Cluster:      cluster,
		ProtocolInit: stubCtxInit,
	})
	require.NoError(t, err)
	return e
}

func TestDisconnectMonitorSkipsTickDuringShutdown(t *testing.T) {
	cfg := &fakeConfigService{}
	e, err := New(1, 0, 1.0, Dependencies{Config: cfg, ProtocolInit: stubCtxInit})
	require.NoError(t, err)
	cfg.SetShuttingDown(true)

	ch := channel.NewMemChannel("TEST:PV", 0)
	ch.SetConnected(false)
	e.RegisterChannel(ch)
	e.SetDisconnectTimeoutForTestingOnly(0)

	e.DisconnectMonitor().Tick(context.Background())
	assert.False(t, ch.Stopped())
}

func TestDisconnectMonitorPausesAndResumesStuckChannel(t *testing.T) {
	pr := &recordingPauseResumer{}
	typeInfo := &fakeTypeInfoProvider{info: map[string]PVTypeInfo{
		"TEST:STUCK": {Paused: false},
	}}
	e := newDisconnectTestEngine(t, typeInfo, pr, nil)
	e.SetDisconnectTimeoutForTestingOnly(0)

	ch := channel.NewMemChannel("TEST:STUCK", 0)
	ch.SetConnected(false)
	e.RegisterChannel(ch)

	e.DisconnectMonitor().mu.Lock()
	e.DisconnectMonitor().timeoutMinutes = 0
	e.DisconnectMonitor().mu.Unlock()

	e.DisconnectMonitor().repairStuckChannel(context.Background(), "TEST:STUCK")

	assert.Contains(t, pr.paused, "TEST:STUCK")
	assert.Contains(t, pr.resumed, "TEST:STUCK")
}

func TestDisconnectMonitorSkipsAlreadyPausedChannel(t *testing.T) {
	pr := &recordingPauseResumer{}
	typeInfo := &fakeTypeInfoProvider{info: map[string]PVTypeInfo{
		"TEST:PAUSED": {Paused: true},
	}}
	e := newDisconnectTestEngine(t, typeInfo, pr, nil)

	e.DisconnectMonitor().repairStuckChannel(context.Background(), "TEST:PAUSED")

	assert.Empty(t, pr.paused)
	assert.Empty(t, pr.resumed)
}

func TestDisconnectMonitorGatesMetachannelsOnLocalThreshold(t *testing.T) {
	e := newDisconnectTestEngine(t, &fakeTypeInfoProvider{}, &recordingPauseResumer{}, nil)
	ch := channel.NewMemChannel("TEST:META", 0)
	ch.SetConnected(true)

	// 1 stuck out of 10 total is 10%, at/above the 5% gating threshold, so
	// metachannel start-up must be blocked and StartUpMetaChannels never
	// called.
	e.DisconnectMonitor().gateAndStartMetachannels(context.Background(), 10, 1, []channel.ArchiveChannel{ch})
	assert.True(t, ch.MetaChannelsNeedStartingUp())
}

func TestDisconnectMonitorStartsMetachannelsBelowThreshold(t *testing.T) {
	e := newDisconnectTestEngine(t, &fakeTypeInfoProvider{}, &recordingPauseResumer{}, nil)
	ch := channel.NewMemChannel("TEST:META", 0)
	ch.SetConnected(true)

	// 0 stuck out of 100 total is 0%, below the gating threshold, so the
	// metachannel gets started.
	e.DisconnectMonitor().gateAndStartMetachannels(context.Background(), 100, 0, []channel.ArchiveChannel{ch})
	assert.False(t, ch.MetaChannelsNeedStartingUp())
}

func TestDisconnectMonitorGatesOnPeerThreshold(t *testing.T) {
	cluster := &fakeClusterPoller{peers: []PeerCount{
		{Peer: "appliance1", Total: 100, Disconnected: 10, Responded: true},
	}}
	e := newDisconnectTestEngine(t, &fakeTypeInfoProvider{}, &recordingPauseResumer{}, cluster)
	ch := channel.NewMemChannel("TEST:META", 0)
	ch.SetConnected(true)

	e.DisconnectMonitor().gateAndStartMetachannels(context.Background(), 100, 0, []channel.ArchiveChannel{ch})
	assert.True(t, ch.MetaChannelsNeedStartingUp())
}

func TestDisconnectMonitorNonRespondingPeerDoesNotAbortGating(t *testing.T) {
	cluster := &fakeClusterPoller{peers: []PeerCount{
		{Peer: "appliance1", Responded: false},
	}}
	e := newDisconnectTestEngine(t, &fakeTypeInfoProvider{}, &recordingPauseResumer{}, cluster)
	ch := channel.NewMemChannel("TEST:META", 0)
	ch.SetConnected(true)

	e.DisconnectMonitor().gateAndStartMetachannels(context.Background(), 100, 0, []channel.ArchiveChannel{ch})
	assert.False(t, ch.MetaChannelsNeedStartingUp())
}

// stuckChannel is a MemChannel that reports a fixed time since its search
// request, placing it past the disconnect timeout without waiting.
type stuckChannel struct {
	*channel.MemChannel
	elapsedSeconds float64
}

func (s *stuckChannel) SecondsElapsedSinceSearchRequest() float64 { return s.elapsedSeconds }

func TestDisconnectMonitorTickPartitionsAndRepairsEndToEnd(t *testing.T) {
	pr := &recordingPauseResumer{}
	typeInfo := &fakeTypeInfoProvider{info: map[string]PVTypeInfo{
		"TEST:STUCK": {Paused: false},
	}}
	e := newDisconnectTestEngine(t, typeInfo, pr, nil)

	// 2000s since the search request is past a 20-minute (1200s) timeout.
	stuck := &stuckChannel{MemChannel: channel.NewMemChannel("TEST:STUCK", 0), elapsedSeconds: 2000}
	stuck.SetConnected(false)
	e.RegisterChannel(stuck)

	ready := channel.NewMemChannel("TEST:READY", 1)
	ready.SetConnected(true)
	e.RegisterChannel(ready)

	// 1 stuck out of 22 total is about 4.5%, below the 5% gating threshold,
	// so metachannel start-up is not blocked.
	for i := 0; i < 20; i++ {
		filler := channel.NewMemChannel(fmt.Sprintf("TEST:FILLER%d", i), 1)
		filler.SetConnected(true)
		e.RegisterChannel(filler)
	}

	e.SetDisconnectTimeoutForTestingOnly(20)
	e.DisconnectMonitor().Tick(context.Background())

	assert.Contains(t, pr.paused, "TEST:STUCK")
	assert.False(t, ready.MetaChannelsNeedStartingUp())
}

func TestReconfigureForTestingUpdatesTimeoutAndPeriod(t *testing.T) {
	e := newDisconnectTestEngine(t, &fakeTypeInfoProvider{}, &recordingPauseResumer{}, nil)
	e.SetDisconnectTimeoutForTestingOnly(5)

	assert.Equal(t, 5*time.Minute, e.DisconnectMonitor().timeout())
	assert.Equal(t, 5*time.Minute, e.DisconnectMonitor().period())
}
