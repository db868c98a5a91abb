package sync

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tapcard/terminal/internal/terminal/domain"
	"github.com/tapcard/terminal/internal/terminal/store"
	"github.com/tapcard/terminal/internal/terminal/store/memory"
)

// flippingProber reports offline for the first n decisions, then online.
type flippingProber struct {
	decisions    atomic.Int32
	offlineUntil int32
}

func (f *flippingProber) DecideOfflineMode(ctx context.Context) bool {
	return f.decisions.Add(1) <= f.offlineUntil
}

func (f *flippingProber) WaitForConnectivity(ctx context.Context, maxRetries int, retryDelay time.Duration) bool {
	return true
}

func TestWatcher_SyncsOnConnectivityRegainedEdge(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := store.NewRepository(memory.New(), logger)
	fake := &fakeRemote{failCards: map[string]error{}}

	// watcher startup decision + first tick offline, second tick online
	prober := &flippingProber{offlineUntil: 2}

	engine := NewEngine(fake, repo, prober, 1, time.Millisecond, logger)
	defaults := domain.Settings{SyncOnConnection: true}
	watcher := NewWatcher(engine, prober, repo, defaults, 10*time.Millisecond, logger)

	enqueue(t, repo, "CARD-A", 100)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	go watcher.Run(ctx)

	require.Eventually(t, func() bool {
		queue, err := repo.PendingQueue(context.Background())
		return err == nil && len(queue) == 0
	}, time.Second, 10*time.Millisecond, "queue should drain after connectivity regained")

	assert.Equal(t, []string{"CARD-A"}, fake.calls)
}

func TestWatcher_RespectsSyncOnConnectionSetting(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := store.NewRepository(memory.New(), logger)
	fake := &fakeRemote{failCards: map[string]error{}}
	prober := &flippingProber{offlineUntil: 2}

	engine := NewEngine(fake, repo, prober, 1, time.Millisecond, logger)
	defaults := domain.Settings{SyncOnConnection: true}
	watcher := NewWatcher(engine, prober, repo, defaults, 10*time.Millisecond, logger)

	// stored settings override the defaults and disable auto sync
	require.NoError(t, repo.SaveSettings(context.Background(), domain.Settings{SyncOnConnection: false}))
	enqueue(t, repo, "CARD-A", 100)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	_ = watcher.Run(ctx)

	queue, err := repo.PendingQueue(context.Background())
	require.NoError(t, err)
	assert.Len(t, queue, 1, "auto sync must not run when disabled")
	assert.Empty(t, fake.calls)
}
