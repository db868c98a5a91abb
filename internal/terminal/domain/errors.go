package domain

import "errors"

var (
	// ErrNoConnectivity means the conservative probe policy decided the
	// device is offline and the requested operation needs the network.
	ErrNoConnectivity = errors.New("no internet connection")

	// ErrInsufficientBalance is returned for an offline payment exceeding
	// the cached balance; with no server round-trip available, the cached
	// balance is authoritative for the accept/decline decision.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrCustomerNotFoundOffline means the scanned card resolved to no
	// cached customer while operating offline.
	ErrCustomerNotFoundOffline = errors.New("customer not found in offline cache")

	// ErrRegistrationRequiresConnectivity: creating a brand-new customer
	// has no cached identity to reconcile against and is online-only.
	ErrRegistrationRequiresConnectivity = errors.New("customer registration requires connectivity")

	// ErrOfflineTransactionsDisabled means the offline write path is gated
	// off by the user's settings.
	ErrOfflineTransactionsDisabled = errors.New("offline transactions are disabled in settings")

	// ErrCardUnknown means the raw card input was empty or unreadable and
	// normalized to the unknown sentinel.
	ErrCardUnknown = errors.New("card identifier is empty or unreadable")

	// ErrSyncInProgress is returned when a full sync is requested while a
	// previous pass is still draining the queue.
	ErrSyncInProgress = errors.New("sync already in progress")
)
