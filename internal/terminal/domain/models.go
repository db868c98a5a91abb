package domain

import "time"

// All monetary amounts in this package are integer minor units (cents).

type TransactionType string

const (
	TransactionTypePayment TransactionType = "payment"
	TransactionTypeReload  TransactionType = "reload"
)

type TransactionStatus string

const (
	TransactionStatusSuccess     TransactionStatus = "success"
	TransactionStatusFailed      TransactionStatus = "failed"
	TransactionStatusPendingSync TransactionStatus = "pending_sync"
)

// Customer is the terminal's cached copy of a server customer record. It is
// never deleted locally; a full cache refresh replaces the set wholesale.
type Customer struct {
	ID        string    `json:"id"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Balance   int64     `json:"balance"`
	CardIDs   []string  `json:"cardIds"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Transaction is an immutable record of a money-moving event. Once written,
// the only permitted mutation is flipping PendingSync false and attaching the
// server-assigned TransactionID after a confirmed replay.
type Transaction struct {
	// ID is either a server id or a "local_"-prefixed token assigned when
	// the transaction was accepted offline.
	ID            string            `json:"id"`
	TransactionID string            `json:"transactionId,omitempty"`
	CustomerID    string            `json:"customerId"`
	CardID        string            `json:"cardId"`
	Amount        int64             `json:"amount"`
	Type          TransactionType   `json:"type"`
	Description   string            `json:"description,omitempty"`
	Status        TransactionStatus `json:"status"`
	PendingSync   bool              `json:"pendingSync"`
	CreatedAt     time.Time         `json:"createdAt"`
}

// LineItem is an individual item on a payment request, carried through the
// pending queue so an offline payment can be resubmitted verbatim.
type LineItem struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Price    int64  `json:"price"`
}

// PendingTransaction is a queued operation awaiting replay against the
// server: the provisional transaction plus the original request payload.
// Removed from the queue only after a confirmed successful replay.
type PendingTransaction struct {
	LocalID     string          `json:"localId"`
	Type        TransactionType `json:"type"`
	CustomerID  string          `json:"customerId"`
	CardID      string          `json:"cardId"`
	Amount      int64           `json:"amount"`
	Description string          `json:"description,omitempty"`
	Items       []LineItem      `json:"items,omitempty"`
	EnqueuedAt  time.Time       `json:"enqueuedAt"`
}

// NetworkStatus is the last connectivity determination, persisted so the UI
// can render a status before the next probe completes.
type NetworkStatus struct {
	IsConnected bool      `json:"isConnected"`
	Timestamp   time.Time `json:"timestamp"`
}

// Settings are the user-facing toggles consumed by the gateway and the sync
// engine.
type Settings struct {
	AllowOfflineTransactions bool   `json:"allowOfflineTransactions"`
	SyncOnConnection         bool   `json:"syncOnConnection"`
	APIUrl                   string `json:"apiUrl,omitempty"`
	UseSimulatedAPI          bool   `json:"useSimulatedApi"`
}

// SyncResult summarizes one full synchronization pass.
type SyncResult struct {
	Success            bool   `json:"success"`
	TransactionsSynced int    `json:"transactionsSynced"`
	TransactionsFailed int    `json:"transactionsFailed"`
	Message            string `json:"message"`
}

// OperationResult is the gateway's uniform response for payments and
// reloads; the offline path returns the same shape flagged OfflineMode.
type OperationResult struct {
	Success     bool         `json:"success"`
	OfflineMode bool         `json:"offlineMode"`
	Transaction *Transaction `json:"transaction,omitempty"`
	Customer    *Customer    `json:"customer,omitempty"`
}
