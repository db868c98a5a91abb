// Package gateway is the API-facing transaction module. Every operation
// first normalizes the scanned card identifier and asks the connectivity
// policy which mode to run in: online calls go straight to the server of
// record, offline writes are processed against the cached ledger and queued
// for later replay.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tapcard/terminal/internal/terminal/card"
	"github.com/tapcard/terminal/internal/terminal/domain"
	"github.com/tapcard/terminal/internal/terminal/remote"
	"github.com/tapcard/terminal/internal/terminal/store"
)

// ConnectivityDecider is the policy surface the gateway needs from the
// prober.
type ConnectivityDecider interface {
	DecideOfflineMode(ctx context.Context) bool
}

// PaymentRequest is a charge against a scanned card.
type PaymentRequest struct {
	RawCardID   string
	Amount      int64
	Description string
	Items       []domain.LineItem
}

// ReloadRequest tops up the balance behind a scanned card.
type ReloadRequest struct {
	RawCardID   string
	Amount      int64
	Description string
}

type Gateway struct {
	remote   remote.API
	repo     *store.Repository
	decider  ConnectivityDecider
	defaults domain.Settings
	logger   *slog.Logger
}

// New constructs the gateway. defaults are the configured settings used
// until the user persists their own.
func New(remoteAPI remote.API, repo *store.Repository, decider ConnectivityDecider, defaults domain.Settings, logger *slog.Logger) *Gateway {
	return &Gateway{
		remote:   remoteAPI,
		repo:     repo,
		decider:  decider,
		defaults: defaults,
		logger:   logger.With("component", "gateway"),
	}
}

func (g *Gateway) settings(ctx context.Context) (domain.Settings, error) {
	s, found, err := g.repo.Settings(ctx)
	if err != nil {
		return domain.Settings{}, err
	}
	if !found {
		return g.defaults, nil
	}
	return s, nil
}

// ProcessPayment charges a card. Online failures propagate unmodified: a
// reachable server saying no is a real failure, never a silent fallback to
// the offline path. The offline accept/decline decision compares against the
// cached balance, which can be stale if the same customer transacted on
// another device; that optimistic window is a documented property of the
// system, not something this code second-guesses.
func (g *Gateway) ProcessPayment(ctx context.Context, req PaymentRequest) (*domain.OperationResult, error) {
	cardID := card.Normalize(req.RawCardID)
	if cardID == card.Unknown {
		return nil, domain.ErrCardUnknown
	}
	if req.Amount <= 0 {
		return nil, fmt.Errorf("payment amount must be positive, got %d", req.Amount)
	}

	if !g.decider.DecideOfflineMode(ctx) {
		return g.processPaymentOnline(ctx, cardID, req)
	}
	return g.processPaymentOffline(ctx, cardID, req)
}

func (g *Gateway) processPaymentOnline(ctx context.Context, cardID string, req PaymentRequest) (*domain.OperationResult, error) {
	customer, err := g.remote.CustomerByCardID(ctx, cardID)
	if err != nil {
		operationsCounter.WithLabelValues("payment", "online", "error").Inc()
		return nil, err
	}

	resp, err := g.remote.ProcessPayment(ctx, remote.PaymentRequest{
		CardID:      cardID,
		CustomerID:  customer.ID,
		Amount:      req.Amount,
		Description: req.Description,
		Items:       req.Items,
	})
	if err != nil {
		operationsCounter.WithLabelValues("payment", "online", "error").Inc()
		return nil, err
	}

	g.refreshAfterOnlineOperation(ctx, resp)
	operationsCounter.WithLabelValues("payment", "online", "success").Inc()
	g.logger.InfoContext(ctx, "payment processed online", "card_id", cardID, "amount", req.Amount, "transaction_id", serverTransactionID(resp))

	return &domain.OperationResult{Success: true, Transaction: resp.Transaction, Customer: resp.Customer}, nil
}

func (g *Gateway) processPaymentOffline(ctx context.Context, cardID string, req PaymentRequest) (*domain.OperationResult, error) {
	settings, err := g.settings(ctx)
	if err != nil {
		return nil, err
	}
	if !settings.AllowOfflineTransactions {
		return nil, domain.ErrOfflineTransactionsDisabled
	}

	customer, found, err := g.repo.FindCustomerByCardID(ctx, cardID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, domain.ErrCustomerNotFoundOffline
	}

	if customer.Balance < req.Amount {
		g.logger.WarnContext(ctx, "offline payment declined: insufficient cached balance",
			"card_id", cardID, "customer_id", customer.ID, "cached_balance", customer.Balance, "amount", req.Amount)
		operationsCounter.WithLabelValues("payment", "offline", "error").Inc()
		return nil, domain.ErrInsufficientBalance
	}

	result, err := g.acceptOffline(ctx, domain.TransactionTypePayment, customer, cardID, req.Amount, req.Description, req.Items)
	if err != nil {
		operationsCounter.WithLabelValues("payment", "offline", "error").Inc()
		return nil, err
	}
	operationsCounter.WithLabelValues("payment", "offline", "success").Inc()
	return result, nil
}

// ReloadCard tops up a card. Reloads never fail on balance, but the offline
// path still needs a cached customer to attach the provisional credit to.
func (g *Gateway) ReloadCard(ctx context.Context, req ReloadRequest) (*domain.OperationResult, error) {
	cardID := card.Normalize(req.RawCardID)
	if cardID == card.Unknown {
		return nil, domain.ErrCardUnknown
	}
	if req.Amount <= 0 {
		return nil, fmt.Errorf("reload amount must be positive, got %d", req.Amount)
	}

	if !g.decider.DecideOfflineMode(ctx) {
		resp, err := g.remote.ReloadCard(ctx, remote.ReloadRequest{
			CardID:      cardID,
			Amount:      req.Amount,
			Description: req.Description,
		})
		if err != nil {
			operationsCounter.WithLabelValues("reload", "online", "error").Inc()
			return nil, err
		}
		g.refreshAfterOnlineOperation(ctx, resp)
		operationsCounter.WithLabelValues("reload", "online", "success").Inc()
		g.logger.InfoContext(ctx, "card reloaded online", "card_id", cardID, "amount", req.Amount)
		return &domain.OperationResult{Success: true, Transaction: resp.Transaction, Customer: resp.Customer}, nil
	}

	settings, err := g.settings(ctx)
	if err != nil {
		return nil, err
	}
	if !settings.AllowOfflineTransactions {
		return nil, domain.ErrOfflineTransactionsDisabled
	}

	customer, found, err := g.repo.FindCustomerByCardID(ctx, cardID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, domain.ErrCustomerNotFoundOffline
	}

	result, err := g.acceptOffline(ctx, domain.TransactionTypeReload, customer, cardID, req.Amount, req.Description, nil)
	if err != nil {
		operationsCounter.WithLabelValues("reload", "offline", "error").Inc()
		return nil, err
	}
	operationsCounter.WithLabelValues("reload", "offline", "success").Inc()
	return result, nil
}

// acceptOffline queues the operation for replay and applies the provisional
// effects to the cached ledger. The queue entry and the cached transaction
// share the same local id, so each pending entry corresponds to exactly one
// cached transaction with PendingSync set.
func (g *Gateway) acceptOffline(ctx context.Context, txnType domain.TransactionType, customer *domain.Customer, cardID string, amount int64, description string, items []domain.LineItem) (*domain.OperationResult, error) {
	localID, err := g.repo.EnqueuePending(ctx, domain.PendingTransaction{
		Type:        txnType,
		CustomerID:  customer.ID,
		CardID:      cardID,
		Amount:      amount,
		Description: description,
		Items:       items,
	})
	if err != nil {
		return nil, err
	}

	txn := domain.Transaction{
		ID:          localID,
		CustomerID:  customer.ID,
		CardID:      cardID,
		Amount:      amount,
		Type:        txnType,
		Description: description,
		Status:      domain.TransactionStatusPendingSync,
		PendingSync: true,
		CreatedAt:   time.Now().UTC(),
	}
	if err := g.repo.AppendCachedTransaction(ctx, txn); err != nil {
		return nil, err
	}

	delta := amount
	if txnType == domain.TransactionTypePayment {
		delta = -amount
	}
	if err := g.repo.AdjustCachedBalance(ctx, customer.ID, delta); err != nil {
		return nil, err
	}

	if queue, qErr := g.repo.PendingQueue(ctx); qErr == nil {
		offlineQueueDepthGauge.Set(float64(len(queue)))
	}

	updated := *customer
	updated.Balance += delta

	g.logger.InfoContext(ctx, "transaction accepted offline",
		"type", txnType, "local_id", localID, "card_id", cardID, "amount", amount, "provisional_balance", updated.Balance)

	return &domain.OperationResult{
		Success:     true,
		OfflineMode: true,
		Transaction: &txn,
		Customer:    &updated,
	}, nil
}

// CustomerByCard resolves a scanned card to a customer: from the server when
// online (refreshing the cached copy), from the cache when offline.
func (g *Gateway) CustomerByCard(ctx context.Context, rawCardID string) (*domain.Customer, error) {
	cardID := card.Normalize(rawCardID)
	if cardID == card.Unknown {
		return nil, domain.ErrCardUnknown
	}

	if !g.decider.DecideOfflineMode(ctx) {
		customer, err := g.remote.CustomerByCardID(ctx, cardID)
		if err != nil {
			return nil, err
		}
		if err := g.repo.UpsertCachedCustomer(ctx, *customer); err != nil {
			g.logger.WarnContext(ctx, "failed to cache customer after online lookup", "customer_id", customer.ID, "error", err)
		}
		return customer, nil
	}

	customer, found, err := g.repo.FindCustomerByCardID(ctx, cardID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, domain.ErrCustomerNotFoundOffline
	}
	return customer, nil
}

// TransactionHistory serves the transaction list: the server's when online
// (refreshing the cache wholesale), the cached copy when offline.
func (g *Gateway) TransactionHistory(ctx context.Context) ([]domain.Transaction, error) {
	if !g.decider.DecideOfflineMode(ctx) {
		txns, err := g.remote.ListTransactions(ctx)
		if err != nil {
			return nil, err
		}
		if err := g.repo.CacheTransactions(ctx, txns); err != nil {
			g.logger.WarnContext(ctx, "failed to refresh transaction cache", "error", err)
		}
		return txns, nil
	}
	return g.repo.CachedTransactions(ctx)
}

// Customers lists the known customers, online or from cache.
func (g *Gateway) Customers(ctx context.Context) ([]domain.Customer, error) {
	if !g.decider.DecideOfflineMode(ctx) {
		customers, err := g.remote.ListCustomers(ctx)
		if err != nil {
			return nil, err
		}
		if err := g.repo.CacheCustomers(ctx, customers); err != nil {
			g.logger.WarnContext(ctx, "failed to refresh customer cache", "error", err)
		}
		return customers, nil
	}
	return g.repo.CachedCustomers(ctx)
}

// RegisterCustomer creates a brand-new customer. A new customer has no
// cached identity to reconcile against, so this is online-only and fails
// fast when offline.
func (g *Gateway) RegisterCustomer(ctx context.Context, req remote.RegistrationRequest) (*domain.Customer, error) {
	if g.decider.DecideOfflineMode(ctx) {
		return nil, domain.ErrRegistrationRequiresConnectivity
	}

	req.CardID = card.Normalize(req.CardID)
	if req.CardID == card.Unknown {
		return nil, domain.ErrCardUnknown
	}

	customer, err := g.remote.RegisterCustomer(ctx, req)
	if err != nil {
		operationsCounter.WithLabelValues("registration", "online", "error").Inc()
		return nil, err
	}
	if err := g.repo.UpsertCachedCustomer(ctx, *customer); err != nil {
		g.logger.WarnContext(ctx, "failed to cache newly registered customer", "customer_id", customer.ID, "error", err)
	}
	operationsCounter.WithLabelValues("registration", "online", "success").Inc()
	g.logger.InfoContext(ctx, "customer registered", "customer_id", customer.ID, "card_id", req.CardID)
	return customer, nil
}

// refreshAfterOnlineOperation opportunistically folds an online operation's
// response into the local caches. Cache write failures are logged, not
// fatal: the authoritative operation already succeeded.
func (g *Gateway) refreshAfterOnlineOperation(ctx context.Context, resp *remote.OperationResponse) {
	if resp.Customer != nil {
		if err := g.repo.UpsertCachedCustomer(ctx, *resp.Customer); err != nil {
			g.logger.WarnContext(ctx, "failed to update customer cache after online operation", "error", err)
		}
	}
	if resp.Transaction != nil {
		if err := g.repo.AppendCachedTransaction(ctx, *resp.Transaction); err != nil {
			g.logger.WarnContext(ctx, "failed to update transaction cache after online operation", "error", err)
		}
	}
}

func serverTransactionID(resp *remote.OperationResponse) string {
	if resp.Transaction == nil {
		return ""
	}
	return resp.Transaction.TransactionID
}
