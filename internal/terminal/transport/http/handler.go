// Package http is the local REST surface the device UI talks to. It maps
// the gateway and sync engine onto JSON endpoints and translates the domain
// error taxonomy into HTTP statuses.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/tapcard/terminal/internal/terminal/domain"
	"github.com/tapcard/terminal/internal/terminal/gateway"
	"github.com/tapcard/terminal/internal/terminal/remote"
	"github.com/tapcard/terminal/internal/terminal/store"
)

// TransactionService is the gateway surface the handler needs.
type TransactionService interface {
	ProcessPayment(ctx context.Context, req gateway.PaymentRequest) (*domain.OperationResult, error)
	ReloadCard(ctx context.Context, req gateway.ReloadRequest) (*domain.OperationResult, error)
	CustomerByCard(ctx context.Context, rawCardID string) (*domain.Customer, error)
	TransactionHistory(ctx context.Context) ([]domain.Transaction, error)
	Customers(ctx context.Context) ([]domain.Customer, error)
	RegisterCustomer(ctx context.Context, req remote.RegistrationRequest) (*domain.Customer, error)
}

// Syncer triggers a full synchronization pass.
type Syncer interface {
	PerformFullSync(ctx context.Context, force bool) (*domain.SyncResult, error)
}

type Handler struct {
	service  TransactionService
	syncer   Syncer
	repo     *store.Repository
	logger   *slog.Logger
	validate *validator.Validate
}

func NewHandler(service TransactionService, syncer Syncer, repo *store.Repository, logger *slog.Logger, validate *validator.Validate) *Handler {
	return &Handler{
		service:  service,
		syncer:   syncer,
		repo:     repo,
		logger:   logger.With("component", "http"),
		validate: validate,
	}
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			slog.Default().Error("Failed to write JSON response", "error", err)
		}
	}
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

// mapDomainErrorToHTTPStatus translates the error taxonomy into statuses the
// UI branches on.
func mapDomainErrorToHTTPStatus(err error) int {
	var statusErr *remote.StatusError
	switch {
	case errors.Is(err, domain.ErrCardUnknown):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInsufficientBalance):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrCustomerNotFoundOffline), errors.Is(err, remote.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrOfflineTransactionsDisabled):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrRegistrationRequiresConnectivity), errors.Is(err, domain.ErrNoConnectivity):
		return http.StatusServiceUnavailable
	case errors.Is(err, remote.ErrTransport):
		return http.StatusBadGateway
	case errors.As(err, &statusErr):
		return statusErr.StatusCode
	case errors.Is(err, store.ErrStorage):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/payments/process", h.ProcessPayment)
	r.Post("/payments/reload", h.ReloadCard)
	r.Get("/customers", h.ListCustomers)
	r.Post("/customers", h.RegisterCustomer)
	r.Get("/customers/byCardId/{cardID}", h.CustomerByCard)
	r.Get("/transactions", h.ListTransactions)
	r.Post("/sync", h.Sync)
	r.Get("/status", h.Status)
	r.Get("/settings", h.GetSettings)
	r.Put("/settings", h.UpdateSettings)
}

func (h *Handler) ProcessPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var reqDTO ProcessPaymentRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&reqDTO); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}
	defer r.Body.Close()

	if err := h.validate.Struct(reqDTO); err != nil {
		respondWithError(w, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}

	result, err := h.service.ProcessPayment(ctx, gateway.PaymentRequest{
		RawCardID:   reqDTO.CardID,
		Amount:      reqDTO.Amount,
		Description: reqDTO.Description,
		Items:       toLineItems(reqDTO.Items),
	})
	if err != nil {
		h.logger.WarnContext(ctx, "payment request failed", "card_id", reqDTO.CardID, "error", err)
		respondWithError(w, mapDomainErrorToHTTPStatus(err), err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}

func (h *Handler) ReloadCard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var reqDTO ReloadRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&reqDTO); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}
	defer r.Body.Close()

	if err := h.validate.Struct(reqDTO); err != nil {
		respondWithError(w, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}

	result, err := h.service.ReloadCard(ctx, gateway.ReloadRequest{
		RawCardID:   reqDTO.CardID,
		Amount:      reqDTO.Amount,
		Description: reqDTO.Description,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "reload request failed", "card_id", reqDTO.CardID, "error", err)
		respondWithError(w, mapDomainErrorToHTTPStatus(err), err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}

func (h *Handler) CustomerByCard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cardID := chi.URLParam(r, "cardID")

	customer, err := h.service.CustomerByCard(ctx, cardID)
	if err != nil {
		respondWithError(w, mapDomainErrorToHTTPStatus(err), err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, customer)
}

func (h *Handler) ListCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := h.service.Customers(r.Context())
	if err != nil {
		respondWithError(w, mapDomainErrorToHTTPStatus(err), err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, customers)
}

func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	txns, err := h.service.TransactionHistory(r.Context())
	if err != nil {
		respondWithError(w, mapDomainErrorToHTTPStatus(err), err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, txns)
}

func (h *Handler) RegisterCustomer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var reqDTO RegisterCustomerRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&reqDTO); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}
	defer r.Body.Close()

	if err := h.validate.Struct(reqDTO); err != nil {
		respondWithError(w, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}

	customer, err := h.service.RegisterCustomer(ctx, remote.RegistrationRequest{
		FirstName: reqDTO.FirstName,
		LastName:  reqDTO.LastName,
		Email:     reqDTO.Email,
		Phone:     reqDTO.Phone,
		CardID:    reqDTO.CardID,
	})
	if err != nil {
		respondWithError(w, mapDomainErrorToHTTPStatus(err), err.Error())
		return
	}
	respondWithJSON(w, http.StatusCreated, customer)
}

// Sync triggers a full synchronization pass. The UI should not block on a
// long pass; the response reports the pass outcome (or "sync already in
// progress" when one is running).
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var reqDTO SyncRequestDTO
	if r.Body != nil {
		// body is optional; an empty body means force=false
		_ = json.NewDecoder(r.Body).Decode(&reqDTO)
		defer r.Body.Close()
	}

	result, err := h.syncer.PerformFullSync(ctx, reqDTO.Force)
	if err != nil {
		h.logger.ErrorContext(ctx, "sync failed", "error", err)
		respondWithError(w, mapDomainErrorToHTTPStatus(err), err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}

// Status reports the last persisted connectivity determination, the last
// sync marker, the pending queue depth, and the effective settings without
// issuing a new probe.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ns, _, err := h.repo.NetworkStatus(ctx)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	queue, err := h.repo.PendingQueue(ctx)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	settings, _, err := h.repo.Settings(ctx)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := StatusResponseDTO{
		Network:      ns,
		PendingCount: len(queue),
		Settings:     settings,
	}
	if ts, found, err := h.repo.LastSyncAt(ctx); err == nil && found {
		resp.LastSyncAt = ts.Format(time.RFC3339)
	}
	respondWithJSON(w, http.StatusOK, resp)
}

func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, _, err := h.repo.Settings(r.Context())
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, settings)
}

func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var settings domain.Settings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}
	defer r.Body.Close()

	if err := h.repo.SaveSettings(ctx, settings); err != nil {
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, settings)
}
