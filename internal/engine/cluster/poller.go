// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

// Package cluster polls peer appliances for their connected/disconnected PV
// counts, used to gate metachannel startup cluster-wide. Peers are polled
// one at a time. Each peer gets its own circuit breaker and rate limiter;
// once an unhealthy appliance's breaker opens, its polls fail immediately
// without an HTTP call.
package cluster

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/tomtom215/cartographus/internal/engine"
	"github.com/tomtom215/cartographus/internal/logging"
	"github.com/tomtom215/cartographus/internal/metrics"
)

// pvCountResponse mirrors the JSON body of ConnectedPVCountForAppliance.
// Both fields are string-encoded integers on the wire.
type pvCountResponse struct {
	Total        string `json:"total"`
	Disconnected string `json:"disconnected"`
}

// parsedPVCount holds the decoded integer values of a pvCountResponse.
type parsedPVCount struct {
	Total        int
	Disconnected int
}

// peerClient polls one peer appliance, guarded by a circuit breaker and a
// token-bucket rate limiter.
type peerClient struct {
	name       string
	url        string
	httpClient *http.Client
	limiter    *rate.Limiter
	cb         *gobreaker.CircuitBreaker[parsedPVCount]
}

// newPeerClient constructs a client for a single peer appliance. pollRate is
// the maximum polls per second allowed against this peer; pollTimeout bounds
// each individual HTTP call.
func newPeerClient(peerURL string, pollTimeout time.Duration, pollRate float64) *peerClient {
	name := peerURL
	cb := gobreaker.NewCircuitBreaker[parsedPVCount](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 && counts.TotalFailures >= 3
		},
		OnStateChange: func(breakerName string, from, to gobreaker.State) {
			logging.Info().Str("peer", breakerName).Str("from", stateString(from)).Str("to", stateString(to)).Msg("cluster peer breaker state change")
			metrics.ClusterBreakerState.WithLabelValues(breakerName).Set(stateValue(to))
		},
	})

	return &peerClient{
		name:       name,
		url:        peerURL + "/ConnectedPVCountForAppliance",
		httpClient: &http.Client{Timeout: pollTimeout},
		limiter:    rate.NewLimiter(rate.Limit(pollRate), 1),
		cb:         cb,
	}
}

// poll performs one rate-limited, circuit-breaker-guarded call. A
// non-responding peer (rate-limited, breaker-open, network error, or bad
// status) is reported via the ok=false return rather than an error, so
// callers can treat it as "peer unknown" per the cluster gating contract.
func (p *peerClient) poll(ctx context.Context) (engine.PeerCount, bool) {
	if err := p.limiter.Wait(ctx); err != nil {
		return engine.PeerCount{Peer: p.name}, false
	}

	start := time.Now()
	result, err := p.cb.Execute(func() (parsedPVCount, error) {
		return p.fetch(ctx)
	})
	metrics.ClusterPeerPollDuration.WithLabelValues(p.name).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.ClusterPeerPollErrors.WithLabelValues(p.name).Inc()
		logging.Warn().Err(err).Str("peer", p.name).Msg("cluster peer poll failed")
		return engine.PeerCount{Peer: p.name}, false
	}

	return engine.PeerCount{
		Peer:         p.name,
		Total:        result.Total,
		Disconnected: result.Disconnected,
		Responded:    true,
	}, true
}

func (p *peerClient) fetch(ctx context.Context) (parsedPVCount, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return parsedPVCount{}, err
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return parsedPVCount{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return parsedPVCount{}, fmt.Errorf("cluster: peer %s returned status %d", p.name, resp.StatusCode)
	}

	var raw pvCountResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return parsedPVCount{}, fmt.Errorf("cluster: decoding peer %s response: %w", p.name, err)
	}

	total, err := strconv.Atoi(raw.Total)
	if err != nil {
		return parsedPVCount{}, fmt.Errorf("cluster: peer %s total %q not an integer: %w", p.name, raw.Total, err)
	}
	disconnected, err := strconv.Atoi(raw.Disconnected)
	if err != nil {
		return parsedPVCount{}, fmt.Errorf("cluster: peer %s disconnected %q not an integer: %w", p.name, raw.Disconnected, err)
	}
	return parsedPVCount{Total: total, Disconnected: disconnected}, nil
}

func stateString(s gobreaker.State) string {
	switch s {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// Poller implements engine.ClusterPoller across a fixed set of peer
// appliances, polling them one at a time on every PollAll call.
type Poller struct {
	peers []*peerClient
}

// NewPoller constructs a Poller for peerURLs, each polled at most
// pollRatePerSecond times per second with pollTimeout per call.
func NewPoller(peerURLs []string, pollTimeout time.Duration, pollRatePerSecond float64) *Poller {
	peers := make([]*peerClient, len(peerURLs))
	for i, url := range peerURLs {
		peers[i] = newPeerClient(url, pollTimeout, pollRatePerSecond)
	}
	return &Poller{peers: peers}
}

// PollAll implements engine.ClusterPoller: queries every configured peer in
// turn and returns one PeerCount per peer, in configuration order.
func (p *Poller) PollAll(ctx context.Context) []engine.PeerCount {
	results := make([]engine.PeerCount, len(p.peers))
	for i, peer := range p.peers {
		results[i], _ = peer.poll(ctx)
	}
	return results
}

var _ engine.ClusterPoller = (*Poller)(nil)
