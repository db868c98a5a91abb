package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tapcard/terminal/internal/terminal/card"
	"github.com/tapcard/terminal/internal/terminal/domain"
)

// Persisted keys. These names are a contract with the device UI, which reads
// some of them directly for rendering.
const (
	keyCachedCustomers    = "cached_customers"
	keyCachedTransactions = "cached_transactions"
	keyPendingQueue       = "pending_transactions"
	keyUserSettings       = "user_settings"
	keyLastSync           = "last_sync_timestamp"
	keyNetworkStatus      = "network_status"
)

// LocalIDPrefix marks locally assigned transaction identifiers so they can
// never be mistaken for server ids.
const LocalIDPrefix = "local_"

// Repository layers the typed terminal operations over a generic Store.
type Repository struct {
	store  Store
	logger *slog.Logger
}

func NewRepository(s Store, logger *slog.Logger) *Repository {
	return &Repository{
		store:  s,
		logger: logger.With("component", "repository"),
	}
}

func (r *Repository) CacheCustomers(ctx context.Context, customers []domain.Customer) error {
	if err := r.store.Save(ctx, keyCachedCustomers, customers); err != nil {
		return fmt.Errorf("cache customers: %w", err)
	}
	return nil
}

// CachedCustomers returns the cached customer list, or an empty list if no
// cache has been written yet. Storage read failures still propagate.
func (r *Repository) CachedCustomers(ctx context.Context) ([]domain.Customer, error) {
	var customers []domain.Customer
	found, err := r.store.Load(ctx, keyCachedCustomers, &customers)
	if err != nil {
		return nil, fmt.Errorf("load cached customers: %w", err)
	}
	if !found {
		return []domain.Customer{}, nil
	}
	return customers, nil
}

// UpsertCachedCustomer replaces the cached copy matching by id, or appends
// when the customer is not cached yet.
func (r *Repository) UpsertCachedCustomer(ctx context.Context, customer domain.Customer) error {
	customers, err := r.CachedCustomers(ctx)
	if err != nil {
		return err
	}
	replaced := false
	for i := range customers {
		if customers[i].ID == customer.ID {
			customers[i] = customer
			replaced = true
			break
		}
	}
	if !replaced {
		customers = append(customers, customer)
	}
	return r.CacheCustomers(ctx, customers)
}

// AdjustCachedBalance applies a provisional delta (negative for payments,
// positive for reloads) to one cached customer's balance. The adjustment is
// superseded by server truth on the next cache refresh.
func (r *Repository) AdjustCachedBalance(ctx context.Context, customerID string, delta int64) error {
	customers, err := r.CachedCustomers(ctx)
	if err != nil {
		return err
	}
	for i := range customers {
		if customers[i].ID == customerID {
			customers[i].Balance += delta
			customers[i].UpdatedAt = time.Now().UTC()
			return r.CacheCustomers(ctx, customers)
		}
	}
	return fmt.Errorf("adjust balance: customer %s not cached", customerID)
}

// FindCustomerByCardID resolves a raw scanned identifier against the cached
// customers using the card matcher's rule chain.
func (r *Repository) FindCustomerByCardID(ctx context.Context, rawCardID string) (*domain.Customer, bool, error) {
	customers, err := r.CachedCustomers(ctx)
	if err != nil {
		return nil, false, err
	}
	for i := range customers {
		if _, ok := card.MatchesAny(rawCardID, customers[i].CardIDs); ok {
			c := customers[i]
			return &c, true, nil
		}
	}
	return nil, false, nil
}

func (r *Repository) CacheTransactions(ctx context.Context, txns []domain.Transaction) error {
	if err := r.store.Save(ctx, keyCachedTransactions, txns); err != nil {
		return fmt.Errorf("cache transactions: %w", err)
	}
	return nil
}

func (r *Repository) CachedTransactions(ctx context.Context) ([]domain.Transaction, error) {
	var txns []domain.Transaction
	found, err := r.store.Load(ctx, keyCachedTransactions, &txns)
	if err != nil {
		return nil, fmt.Errorf("load cached transactions: %w", err)
	}
	if !found {
		return []domain.Transaction{}, nil
	}
	return txns, nil
}

func (r *Repository) AppendCachedTransaction(ctx context.Context, txn domain.Transaction) error {
	txns, err := r.CachedTransactions(ctx)
	if err != nil {
		return err
	}
	txns = append(txns, txn)
	return r.CacheTransactions(ctx, txns)
}

// MarkTransactionSynced flips a cached transaction's PendingSync flag and
// attaches the server-assigned transaction id. PendingSync is monotonic
// true→false; re-marking an already synced transaction is a no-op.
func (r *Repository) MarkTransactionSynced(ctx context.Context, localID, serverTransactionID string) error {
	txns, err := r.CachedTransactions(ctx)
	if err != nil {
		return err
	}
	for i := range txns {
		if txns[i].ID == localID && txns[i].PendingSync {
			txns[i].PendingSync = false
			txns[i].Status = domain.TransactionStatusSuccess
			txns[i].TransactionID = serverTransactionID
			return r.CacheTransactions(ctx, txns)
		}
	}
	return nil
}

// EnqueuePending assigns a unique local id, stamps the enqueue time, and
// appends the entry to the tail of the pending queue.
func (r *Repository) EnqueuePending(ctx context.Context, entry domain.PendingTransaction) (string, error) {
	queue, err := r.PendingQueue(ctx)
	if err != nil {
		return "", err
	}
	entry.LocalID = LocalIDPrefix + uuid.NewString()
	entry.EnqueuedAt = time.Now().UTC()
	queue = append(queue, entry)
	if err := r.store.Save(ctx, keyPendingQueue, queue); err != nil {
		return "", fmt.Errorf("enqueue pending: %w", err)
	}
	r.logger.Debug("pending transaction enqueued", "local_id", entry.LocalID, "type", entry.Type, "amount", entry.Amount)
	return entry.LocalID, nil
}

// DequeuePending removes the entry with the given local id. Removing an
// absent id is a no-op, not an error.
func (r *Repository) DequeuePending(ctx context.Context, localID string) error {
	queue, err := r.PendingQueue(ctx)
	if err != nil {
		return err
	}
	kept := queue[:0]
	for _, entry := range queue {
		if entry.LocalID != localID {
			kept = append(kept, entry)
		}
	}
	if err := r.store.Save(ctx, keyPendingQueue, kept); err != nil {
		return fmt.Errorf("dequeue pending: %w", err)
	}
	return nil
}

// PendingQueue returns the queued entries in enqueue order.
func (r *Repository) PendingQueue(ctx context.Context) ([]domain.PendingTransaction, error) {
	var queue []domain.PendingTransaction
	found, err := r.store.Load(ctx, keyPendingQueue, &queue)
	if err != nil {
		return nil, fmt.Errorf("load pending queue: %w", err)
	}
	if !found {
		return []domain.PendingTransaction{}, nil
	}
	return queue, nil
}

// Settings returns the persisted user settings; found=false means nothing
// has been written yet and the caller should fall back to configured
// defaults.
func (r *Repository) Settings(ctx context.Context) (domain.Settings, bool, error) {
	var s domain.Settings
	found, err := r.store.Load(ctx, keyUserSettings, &s)
	if err != nil {
		return domain.Settings{}, false, fmt.Errorf("load settings: %w", err)
	}
	return s, found, nil
}

func (r *Repository) SaveSettings(ctx context.Context, s domain.Settings) error {
	if err := r.store.Save(ctx, keyUserSettings, s); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

func (r *Repository) LastSyncAt(ctx context.Context) (time.Time, bool, error) {
	var ts time.Time
	found, err := r.store.Load(ctx, keyLastSync, &ts)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("load last sync timestamp: %w", err)
	}
	return ts, found, nil
}

func (r *Repository) SetLastSyncAt(ctx context.Context, ts time.Time) error {
	if err := r.store.Save(ctx, keyLastSync, ts); err != nil {
		return fmt.Errorf("save last sync timestamp: %w", err)
	}
	return nil
}

func (r *Repository) NetworkStatus(ctx context.Context) (domain.NetworkStatus, bool, error) {
	var ns domain.NetworkStatus
	found, err := r.store.Load(ctx, keyNetworkStatus, &ns)
	if err != nil {
		return domain.NetworkStatus{}, false, fmt.Errorf("load network status: %w", err)
	}
	return ns, found, nil
}

func (r *Repository) SaveNetworkStatus(ctx context.Context, ns domain.NetworkStatus) error {
	if err := r.store.Save(ctx, keyNetworkStatus, ns); err != nil {
		return fmt.Errorf("save network status: %w", err)
	}
	return nil
}
