package sync

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tapcard/terminal/internal/terminal/domain"
	"github.com/tapcard/terminal/internal/terminal/remote"
	"github.com/tapcard/terminal/internal/terminal/store"
	"github.com/tapcard/terminal/internal/terminal/store/memory"
)

// fakeRemote records the order of replay calls and answers from canned
// responses keyed by cardID.
type fakeRemote struct {
	mu        sync.Mutex
	calls     []string // cardIDs in call order
	failCards map[string]error

	customers    []domain.Customer
	transactions []domain.Transaction
	listErr      error
}

func (f *fakeRemote) record(cardID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, cardID)
	if err, ok := f.failCards[cardID]; ok {
		return err
	}
	return nil
}

func (f *fakeRemote) ProcessPayment(ctx context.Context, req remote.PaymentRequest) (*remote.OperationResponse, error) {
	if err := f.record(req.CardID); err != nil {
		return nil, err
	}
	return &remote.OperationResponse{
		Success:     true,
		Transaction: &domain.Transaction{TransactionID: "srv-" + req.CardID, Status: domain.TransactionStatusSuccess},
	}, nil
}

func (f *fakeRemote) ReloadCard(ctx context.Context, req remote.ReloadRequest) (*remote.OperationResponse, error) {
	if err := f.record(req.CardID); err != nil {
		return nil, err
	}
	return &remote.OperationResponse{
		Success:     true,
		Transaction: &domain.Transaction{TransactionID: "srv-" + req.CardID, Status: domain.TransactionStatusSuccess},
	}, nil
}

func (f *fakeRemote) CustomerByCardID(ctx context.Context, cardID string) (*domain.Customer, error) {
	return nil, remote.ErrNotFound
}

func (f *fakeRemote) RegisterCustomer(ctx context.Context, req remote.RegistrationRequest) (*domain.Customer, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeRemote) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.customers, nil
}

func (f *fakeRemote) ListTransactions(ctx context.Context) ([]domain.Transaction, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.transactions, nil
}

type stubProber struct {
	offline  bool
	waitOK   bool
	waited   bool
	decideFn func() bool // optional override, used by the in-flight test
}

func (s *stubProber) DecideOfflineMode(ctx context.Context) bool {
	if s.decideFn != nil {
		return s.decideFn()
	}
	return s.offline
}

func (s *stubProber) WaitForConnectivity(ctx context.Context, maxRetries int, retryDelay time.Duration) bool {
	s.waited = true
	return s.waitOK
}

type engineTestComponents struct {
	engine *Engine
	remote *fakeRemote
	repo   *store.Repository
	prober *stubProber
}

func setupEngineTest(t *testing.T, offline bool) engineTestComponents {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := store.NewRepository(memory.New(), logger)
	fake := &fakeRemote{failCards: map[string]error{}}
	prober := &stubProber{offline: offline}
	engine := NewEngine(fake, repo, prober, 3, time.Millisecond, logger)
	return engineTestComponents{engine: engine, remote: fake, repo: repo, prober: prober}
}

func enqueue(t *testing.T, repo *store.Repository, cardID string, amount int64) string {
	t.Helper()
	ctx := context.Background()
	localID, err := repo.EnqueuePending(ctx, domain.PendingTransaction{
		Type:       domain.TransactionTypePayment,
		CustomerID: "cust-1",
		CardID:     cardID,
		Amount:     amount,
	})
	require.NoError(t, err)
	require.NoError(t, repo.AppendCachedTransaction(ctx, domain.Transaction{
		ID:          localID,
		CustomerID:  "cust-1",
		CardID:      cardID,
		Amount:      amount,
		Type:        domain.TransactionTypePayment,
		Status:      domain.TransactionStatusPendingSync,
		PendingSync: true,
	}))
	return localID
}

func TestSyncPending_ReplaysInFIFOOrder(t *testing.T) {
	c := setupEngineTest(t, false)
	ctx := context.Background()

	enqueue(t, c.repo, "CARD-A", 100)
	enqueue(t, c.repo, "CARD-B", 200)
	enqueue(t, c.repo, "CARD-C", 300)

	synced, failed, err := c.engine.SyncPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, synced)
	assert.Equal(t, 0, failed)
	assert.Equal(t, []string{"CARD-A", "CARD-B", "CARD-C"}, c.remote.calls)

	queue, _ := c.repo.PendingQueue(ctx)
	assert.Empty(t, queue)
}

func TestSyncPending_PartialFailureLeavesOnlyFailedEntry(t *testing.T) {
	c := setupEngineTest(t, false)
	ctx := context.Background()

	enqueue(t, c.repo, "CARD-A", 100)
	idB := enqueue(t, c.repo, "CARD-B", 200)
	enqueue(t, c.repo, "CARD-C", 300)

	c.remote.failCards["CARD-B"] = &remote.StatusError{StatusCode: 500, Message: "boom"}

	synced, failed, err := c.engine.SyncPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, synced)
	assert.Equal(t, 1, failed)

	// B's failure must not block A or C
	assert.Equal(t, []string{"CARD-A", "CARD-B", "CARD-C"}, c.remote.calls)

	queue, _ := c.repo.PendingQueue(ctx)
	require.Len(t, queue, 1)
	assert.Equal(t, idB, queue[0].LocalID)

	// B's cached transaction still pending, A's and C's flipped
	txns, _ := c.repo.CachedTransactions(ctx)
	for _, txn := range txns {
		if txn.ID == idB {
			assert.True(t, txn.PendingSync)
		} else {
			assert.False(t, txn.PendingSync)
			assert.NotEmpty(t, txn.TransactionID)
		}
	}
}

func TestSyncPending_TransportErrorCountsFailed(t *testing.T) {
	c := setupEngineTest(t, false)
	ctx := context.Background()

	enqueue(t, c.repo, "CARD-A", 100)
	c.remote.failCards["CARD-A"] = remote.ErrTransport

	synced, failed, err := c.engine.SyncPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, synced)
	assert.Equal(t, 1, failed)

	queue, _ := c.repo.PendingQueue(ctx)
	assert.Len(t, queue, 1)
}

func TestRefreshCaches_OverwritesWithServerTruth(t *testing.T) {
	c := setupEngineTest(t, false)
	ctx := context.Background()

	// provisional local state from an offline payment
	require.NoError(t, c.repo.CacheCustomers(ctx, []domain.Customer{{ID: "cust-1", Balance: 200}}))

	// server truth after the replay was accepted
	c.remote.customers = []domain.Customer{{ID: "cust-1", Balance: 200}}
	c.remote.transactions = []domain.Transaction{{ID: "srv-1", TransactionID: "txn-1", Amount: 300}}

	require.NoError(t, c.engine.RefreshCaches(ctx))

	customers, _ := c.repo.CachedCustomers(ctx)
	require.Len(t, customers, 1)
	assert.Equal(t, int64(200), customers[0].Balance)

	txns, _ := c.repo.CachedTransactions(ctx)
	require.Len(t, txns, 1)
	assert.Equal(t, "srv-1", txns[0].ID)
}

func TestRefreshCaches_KeepsStillQueuedPendingTransactions(t *testing.T) {
	c := setupEngineTest(t, false)
	ctx := context.Background()

	localID := enqueue(t, c.repo, "CARD-A", 100)
	c.remote.transactions = []domain.Transaction{{ID: "srv-1"}}

	require.NoError(t, c.engine.RefreshCaches(ctx))

	txns, _ := c.repo.CachedTransactions(ctx)
	require.Len(t, txns, 2)
	var sawPending bool
	for _, txn := range txns {
		if txn.ID == localID {
			sawPending = true
			assert.True(t, txn.PendingSync)
		}
	}
	assert.True(t, sawPending)
}

func TestPerformFullSync_OfflineWithForceExhausted(t *testing.T) {
	c := setupEngineTest(t, true)
	c.prober.waitOK = false

	enqueue(t, c.repo, "CARD-A", 100)

	result, err := c.engine.PerformFullSync(context.Background(), true)
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, 0, result.TransactionsSynced)
	assert.Equal(t, 0, result.TransactionsFailed)
	assert.Equal(t, "No internet connection", result.Message)
	assert.True(t, c.prober.waited)

	// queue untouched
	queue, _ := c.repo.PendingQueue(context.Background())
	assert.Len(t, queue, 1)
	assert.Empty(t, c.remote.calls)
}

func TestPerformFullSync_OfflineWithoutForceDoesNotWait(t *testing.T) {
	c := setupEngineTest(t, true)

	result, err := c.engine.PerformFullSync(context.Background(), false)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.False(t, c.prober.waited)
}

func TestPerformFullSync_DrainsThenRefreshesAndStampsMarker(t *testing.T) {
	c := setupEngineTest(t, false)
	ctx := context.Background()

	enqueue(t, c.repo, "CARD-A", 100)
	c.remote.customers = []domain.Customer{{ID: "cust-1", Balance: 400}}
	c.remote.transactions = []domain.Transaction{{ID: "srv-1", TransactionID: "srv-CARD-A"}}

	result, err := c.engine.PerformFullSync(ctx, false)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 1, result.TransactionsSynced)
	assert.Equal(t, 0, result.TransactionsFailed)

	ts, found, err := c.repo.LastSyncAt(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.WithinDuration(t, time.Now().UTC(), ts, 5*time.Second)

	// duplicate-replay idempotence: after the refresh the caches carry
	// server truth only, no residual provisional adjustment
	customers, _ := c.repo.CachedCustomers(ctx)
	require.Len(t, customers, 1)
	assert.Equal(t, int64(400), customers[0].Balance)
}

func TestPerformFullSync_SecondConcurrentCallIsNoOp(t *testing.T) {
	c := setupEngineTest(t, false)

	gate := make(chan struct{})
	entered := make(chan struct{})
	var once sync.Once
	c.prober.decideFn = func() bool {
		once.Do(func() { close(entered) })
		<-gate
		return false
	}

	done := make(chan *domain.SyncResult, 1)
	go func() {
		result, _ := c.engine.PerformFullSync(context.Background(), false)
		done <- result
	}()

	<-entered // first pass holds the in-flight guard

	second, err := c.engine.PerformFullSync(context.Background(), false)
	require.NoError(t, err)
	assert.False(t, second.Success)
	assert.Equal(t, "Sync already in progress", second.Message)

	close(gate)
	first := <-done
	assert.True(t, first.Success)
}
