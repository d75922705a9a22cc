package cluster

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, total, disconnected int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/ConnectedPVCountForAppliance", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(pvCountResponse{Total: strconv.Itoa(total), Disconnected: strconv.Itoa(disconnected)})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestPollerPollAllReturnsPeerCounts(t *testing.T) {
	srv1 := newTestServer(t, 100, 5)
	srv2 := newTestServer(t, 50, 0)

	poller := NewPoller([]string{srv1.URL, srv2.URL}, time.Second, 100)
	counts := poller.PollAll(context.Background())

	require.Len(t, counts, 2)
	assert.True(t, counts[0].Responded)
	assert.Equal(t, 100, counts[0].Total)
	assert.Equal(t, 5, counts[0].Disconnected)
	assert.True(t, counts[1].Responded)
	assert.Equal(t, 50, counts[1].Total)
}

func TestPollerUnreachablePeerReportsNotResponded(t *testing.T) {
	poller := NewPoller([]string{"http://127.0.0.1:1"}, 200*time.Millisecond, 100)
	counts := poller.PollAll(context.Background())

	require.Len(t, counts, 1)
	assert.False(t, counts[0].Responded)
}

func TestPollerNonOKStatusReportsNotResponded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	poller := NewPoller([]string{srv.URL}, time.Second, 100)
	counts := poller.PollAll(context.Background())

	require.Len(t, counts, 1)
	assert.False(t, counts[0].Responded)
}

func TestPeerClientBreakerOpensAfterRepeatedFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	client := newPeerClient(srv.URL, time.Second, 1000)
	for i := 0; i < 10; i++ {
		client.poll(context.Background())
	}

	_, ok := client.poll(context.Background())
	assert.False(t, ok)
	assert.Equal(t, gobreaker.StateOpen, client.cb.State())
}
