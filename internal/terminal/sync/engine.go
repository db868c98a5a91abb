// Package sync drains the pending-transaction queue against the server of
// record and refreshes the local caches. Replay is strictly FIFO, because
// later entries may depend on the balance state produced by earlier ones,
// and one entry's failure never blocks the rest of the pass.
package sync

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/tapcard/terminal/internal/terminal/domain"
	"github.com/tapcard/terminal/internal/terminal/remote"
	"github.com/tapcard/terminal/internal/terminal/store"
)

// Prober is the connectivity surface the engine needs.
type Prober interface {
	DecideOfflineMode(ctx context.Context) bool
	WaitForConnectivity(ctx context.Context, maxRetries int, retryDelay time.Duration) bool
}

const msgNoConnection = "No internet connection"

type Engine struct {
	remote     remote.API
	repo       *store.Repository
	prober     Prober
	logger     *slog.Logger
	maxRetries int
	retryDelay time.Duration

	// inFlight serializes full sync passes; two concurrent drains of the
	// same queue could double-submit.
	inFlight atomic.Bool
}

func NewEngine(remoteAPI remote.API, repo *store.Repository, prober Prober, maxRetries int, retryDelay time.Duration, logger *slog.Logger) *Engine {
	return &Engine{
		remote:     remoteAPI,
		repo:       repo,
		prober:     prober,
		logger:     logger.With("component", "sync"),
		maxRetries: maxRetries,
		retryDelay: retryDelay,
	}
}

// SyncPending replays every queued entry in enqueue order. A remote
// rejection or transport error leaves the entry queued, counts it as failed,
// and moves on. Storage failures abort the pass: continuing without being
// able to dequeue risks double submission.
func (e *Engine) SyncPending(ctx context.Context) (synced, failed int, err error) {
	queue, err := e.repo.PendingQueue(ctx)
	if err != nil {
		return 0, 0, err
	}
	if len(queue) == 0 {
		return 0, 0, nil
	}
	e.logger.InfoContext(ctx, "draining pending queue", "entries", len(queue))

	for _, entry := range queue {
		resp, replayErr := e.replay(ctx, entry)
		if replayErr != nil {
			e.logger.WarnContext(ctx, "replay failed, entry left queued",
				"local_id", entry.LocalID, "type", entry.Type, "amount", entry.Amount, "error", replayErr)
			replayCounter.WithLabelValues(string(entry.Type), "failed").Inc()
			failed++
			continue
		}

		serverID := ""
		if resp.Transaction != nil {
			serverID = resp.Transaction.TransactionID
		}
		if err := e.repo.MarkTransactionSynced(ctx, entry.LocalID, serverID); err != nil {
			return synced, failed, fmt.Errorf("mark transaction synced: %w", err)
		}
		if err := e.repo.DequeuePending(ctx, entry.LocalID); err != nil {
			return synced, failed, fmt.Errorf("dequeue after replay: %w", err)
		}
		replayCounter.WithLabelValues(string(entry.Type), "success").Inc()
		synced++
		e.logger.InfoContext(ctx, "pending transaction replayed",
			"local_id", entry.LocalID, "server_transaction_id", serverID, "type", entry.Type)
	}
	return synced, failed, nil
}

func (e *Engine) replay(ctx context.Context, entry domain.PendingTransaction) (*remote.OperationResponse, error) {
	switch entry.Type {
	case domain.TransactionTypePayment:
		return e.remote.ProcessPayment(ctx, remote.PaymentRequest{
			CardID:      entry.CardID,
			CustomerID:  entry.CustomerID,
			Amount:      entry.Amount,
			Description: entry.Description,
			Items:       entry.Items,
		})
	case domain.TransactionTypeReload:
		return e.remote.ReloadCard(ctx, remote.ReloadRequest{
			CardID:      entry.CardID,
			Amount:      entry.Amount,
			Description: entry.Description,
		})
	default:
		return nil, fmt.Errorf("unknown pending transaction type %q", entry.Type)
	}
}

// RefreshCaches fetches the full customer and transaction lists and
// overwrites the local caches. Server truth replaces any provisional balance
// adjustments. Cached transactions for entries still queued (a failed
// replay) are re-appended after the overwrite so the queue stays renderable
// and every pending entry keeps its PendingSync transaction.
func (e *Engine) RefreshCaches(ctx context.Context) error {
	customers, err := e.remote.ListCustomers(ctx)
	if err != nil {
		return fmt.Errorf("refresh customers: %w", err)
	}
	serverTxns, err := e.remote.ListTransactions(ctx)
	if err != nil {
		return fmt.Errorf("refresh transactions: %w", err)
	}

	if err := e.repo.CacheCustomers(ctx, customers); err != nil {
		return err
	}

	queue, err := e.repo.PendingQueue(ctx)
	if err != nil {
		return err
	}
	if len(queue) > 0 {
		cached, err := e.repo.CachedTransactions(ctx)
		if err != nil {
			return err
		}
		stillQueued := make(map[string]bool, len(queue))
		for _, entry := range queue {
			stillQueued[entry.LocalID] = true
		}
		for _, txn := range cached {
			if txn.PendingSync && stillQueued[txn.ID] {
				serverTxns = append(serverTxns, txn)
			}
		}
	}
	if err := e.repo.CacheTransactions(ctx, serverTxns); err != nil {
		return err
	}

	e.logger.InfoContext(ctx, "caches refreshed from server", "customers", len(customers), "transactions", len(serverTxns))
	return nil
}

// PerformFullSync orchestrates a whole pass: probe (blocking on retries when
// force is set), drain the queue, refresh the caches, stamp the sync marker.
// A second concurrent call is a no-op reporting "sync already in progress".
func (e *Engine) PerformFullSync(ctx context.Context, force bool) (*domain.SyncResult, error) {
	if !e.inFlight.CompareAndSwap(false, true) {
		syncPassesCounter.WithLabelValues("busy").Inc()
		return &domain.SyncResult{Success: false, Message: "Sync already in progress"}, nil
	}
	defer e.inFlight.Store(false)

	start := time.Now()
	defer func() { syncDurationHist.Observe(time.Since(start).Seconds()) }()

	offline := e.prober.DecideOfflineMode(ctx)
	if offline && force {
		e.logger.InfoContext(ctx, "offline at sync start, waiting for connectivity",
			"max_retries", e.maxRetries, "retry_delay", e.retryDelay.String())
		offline = !e.prober.WaitForConnectivity(ctx, e.maxRetries, e.retryDelay)
	}
	if offline {
		e.logger.WarnContext(ctx, "sync aborted: no connectivity")
		syncPassesCounter.WithLabelValues("offline").Inc()
		return &domain.SyncResult{Success: false, Message: msgNoConnection}, nil
	}

	synced, failed, err := e.SyncPending(ctx)
	if err != nil {
		syncPassesCounter.WithLabelValues("error").Inc()
		return &domain.SyncResult{
			Success:            false,
			TransactionsSynced: synced,
			TransactionsFailed: failed,
			Message:            "Sync aborted: " + err.Error(),
		}, err
	}

	if err := e.RefreshCaches(ctx); err != nil {
		syncPassesCounter.WithLabelValues("error").Inc()
		return &domain.SyncResult{
			Success:            false,
			TransactionsSynced: synced,
			TransactionsFailed: failed,
			Message:            "Cache refresh failed: " + err.Error(),
		}, err
	}

	if err := e.repo.SetLastSyncAt(ctx, time.Now().UTC()); err != nil {
		syncPassesCounter.WithLabelValues("error").Inc()
		return nil, err
	}

	syncPassesCounter.WithLabelValues("completed").Inc()
	result := &domain.SyncResult{
		Success:            true,
		TransactionsSynced: synced,
		TransactionsFailed: failed,
		Message:            fmt.Sprintf("Sync completed: %d synced, %d failed", synced, failed),
	}
	e.logger.InfoContext(ctx, "full sync completed", "synced", synced, "failed", failed)
	return result, nil
}
