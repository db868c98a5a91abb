// Package remote is the HTTP client for the server of record. The terminal
// consumes five REST endpoints; all monetary amounts cross this boundary as
// integer minor units.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tapcard/terminal/internal/terminal/domain"
)

// ErrTransport marks failures before an HTTP status was obtained: DNS,
// connection refused, timeout. The sync engine treats these as retryable.
var ErrTransport = errors.New("remote transport error")

// ErrNotFound is returned when the server answers 404 for a lookup.
var ErrNotFound = errors.New("not found on server")

// StatusError is a non-success HTTP status from the server: the server was
// reachable and rejected the operation.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("remote rejected: status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("remote rejected: status %d", e.StatusCode)
}

// API is the remote surface consumed by the gateway and the sync engine.
type API interface {
	ProcessPayment(ctx context.Context, req PaymentRequest) (*OperationResponse, error)
	ReloadCard(ctx context.Context, req ReloadRequest) (*OperationResponse, error)
	CustomerByCardID(ctx context.Context, cardID string) (*domain.Customer, error)
	RegisterCustomer(ctx context.Context, req RegistrationRequest) (*domain.Customer, error)
	ListCustomers(ctx context.Context) ([]domain.Customer, error)
	ListTransactions(ctx context.Context) ([]domain.Transaction, error)
}

type PaymentRequest struct {
	CardID      string            `json:"cardId"`
	CustomerID  string            `json:"customerId"`
	Amount      int64             `json:"amount"`
	Description string            `json:"description,omitempty"`
	Items       []domain.LineItem `json:"items,omitempty"`
}

type ReloadRequest struct {
	CardID      string `json:"cardId"`
	Amount      int64  `json:"amount"`
	Description string `json:"description,omitempty"`
}

type RegistrationRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Phone     string `json:"phone,omitempty"`
	CardID    string `json:"cardId"`
}

type OperationResponse struct {
	Success     bool                `json:"success"`
	Transaction *domain.Transaction `json:"transaction"`
	Customer    *domain.Customer    `json:"customer"`
}

// errorBody is the server's error envelope; best-effort parsed.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type Client struct {
	logger     *slog.Logger
	httpClient *http.Client
	baseURL    string
}

func NewClient(logger *slog.Logger, baseURL string, timeout time.Duration, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		logger:     logger.With("component", "remote"),
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

func (c *Client) ProcessPayment(ctx context.Context, req PaymentRequest) (*OperationResponse, error) {
	var resp OperationResponse
	if err := c.doJSON(ctx, http.MethodPost, "/payments/process", req, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, &StatusError{StatusCode: http.StatusOK, Message: "server reported payment failure"}
	}
	return &resp, nil
}

func (c *Client) ReloadCard(ctx context.Context, req ReloadRequest) (*OperationResponse, error) {
	var resp OperationResponse
	if err := c.doJSON(ctx, http.MethodPost, "/payments/reload", req, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, &StatusError{StatusCode: http.StatusOK, Message: "server reported reload failure"}
	}
	return &resp, nil
}

func (c *Client) CustomerByCardID(ctx context.Context, cardID string) (*domain.Customer, error) {
	var customer domain.Customer
	path := "/customers/byCardId/" + url.PathEscape(cardID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &customer); err != nil {
		return nil, err
	}
	return &customer, nil
}

func (c *Client) RegisterCustomer(ctx context.Context, req RegistrationRequest) (*domain.Customer, error) {
	var customer domain.Customer
	if err := c.doJSON(ctx, http.MethodPost, "/customers", req, &customer); err != nil {
		return nil, err
	}
	return &customer, nil
}

func (c *Client) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	var customers []domain.Customer
	if err := c.doJSON(ctx, http.MethodGet, "/customers", nil, &customers); err != nil {
		return nil, err
	}
	return customers, nil
}

func (c *Client) ListTransactions(ctx context.Context) ([]domain.Transaction, error) {
	var txns []domain.Transaction
	if err := c.doJSON(ctx, http.MethodGet, "/transactions", nil, &txns); err != nil {
		return nil, err
	}
	return txns, nil
}

// doJSON issues one request and decodes the response into out. 404 maps to
// ErrNotFound, other non-2xx statuses to *StatusError, and anything that
// failed before a status was read wraps ErrTransport.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request for %s: %w", path, err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("build request for %s: %w", path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.DebugContext(ctx, "remote call failed", "method", method, "path", path, "error", err)
		return fmt.Errorf("%w: %s %s: %v", ErrTransport, method, path, err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response for %s: %v", ErrTransport, path, err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		statusErr := &StatusError{StatusCode: resp.StatusCode}
		var eb errorBody
		if json.Unmarshal(respBytes, &eb) == nil {
			if eb.Error != "" {
				statusErr.Message = eb.Error
			} else if eb.Message != "" {
				statusErr.Message = eb.Message
			}
		}
		c.logger.WarnContext(ctx, "remote rejected request", "method", method, "path", path, "status_code", resp.StatusCode, "message", statusErr.Message)
		return statusErr
	}

	if out != nil && len(respBytes) > 0 {
		if err := json.Unmarshal(respBytes, out); err != nil {
			return fmt.Errorf("decode response for %s: %w", path, err)
		}
	}
	return nil
}
