package connectivity

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tapcard/terminal/internal/terminal/store"
	"github.com/tapcard/terminal/internal/terminal/store/memory"
)

func newTestProber(t *testing.T, probeURL string, timeout time.Duration) (*Prober, *store.Repository) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := store.NewRepository(memory.New(), logger)
	return NewProber(logger, repo, probeURL, timeout, nil), repo
}

func TestHasRealInternet_SuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	p, _ := newTestProber(t, srv.URL, time.Second)
	assert.True(t, p.HasRealInternet(context.Background()))
}

func TestHasRealInternet_NonSuccessStatusIsOffline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p, _ := newTestProber(t, srv.URL, time.Second)
	assert.False(t, p.HasRealInternet(context.Background()))
}

func TestHasRealInternet_TimeoutIsOffline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond) // hang past the probe timeout
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p, _ := newTestProber(t, srv.URL, 50*time.Millisecond)
	assert.False(t, p.HasRealInternet(context.Background()))
}

func TestHasRealInternet_UnreachableEndpoint(t *testing.T) {
	p, _ := newTestProber(t, "http://127.0.0.1:1/healthz", 200*time.Millisecond)
	assert.False(t, p.HasRealInternet(context.Background()))
}

func TestDecideOfflineMode_ConservativePolicy(t *testing.T) {
	// Link reports connected but the probe fails: must decide offline.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	p, repo := newTestProber(t, srv.URL, time.Second)
	p.SetLinkCheck(func() bool { return true })

	assert.True(t, p.DecideOfflineMode(context.Background()))

	ns, found, err := repo.NetworkStatus(context.Background())
	require.NoError(t, err)
	require.True(t, found)
	assert.False(t, ns.IsConnected)
	assert.False(t, ns.Timestamp.IsZero())
}

func TestDecideOfflineMode_LinkDownSkipsProbe(t *testing.T) {
	var probed atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		probed.Store(true)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p, _ := newTestProber(t, srv.URL, time.Second)
	p.SetLinkCheck(func() bool { return false })

	assert.True(t, p.DecideOfflineMode(context.Background()))
	assert.False(t, probed.Load())
}

func TestDecideOfflineMode_OnlinePersistsConnectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p, repo := newTestProber(t, srv.URL, time.Second)
	p.SetLinkCheck(func() bool { return true })

	assert.False(t, p.DecideOfflineMode(context.Background()))

	ns, found, err := repo.NetworkStatus(context.Background())
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, ns.IsConnected)
}

func TestWaitForConnectivity_ExhaustsRetries(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p, _ := newTestProber(t, srv.URL, time.Second)

	start := time.Now()
	ok := p.WaitForConnectivity(context.Background(), 3, 20*time.Millisecond)
	assert.False(t, ok)
	assert.EqualValues(t, 3, attempts.Load())
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestWaitForConnectivity_RecoversMidway(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p, _ := newTestProber(t, srv.URL, time.Second)
	assert.True(t, p.WaitForConnectivity(context.Background(), 5, 10*time.Millisecond))
	assert.EqualValues(t, 2, attempts.Load())
}

var _ StatusRecorder = (*store.Repository)(nil)
