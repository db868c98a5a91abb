// Package connectivity decides whether the terminal can trust the network.
// Link-layer state alone is not enough, since a captive portal or dead
// uplink reports "connected" while dropping traffic, so the policy requires
// a real HTTP probe to succeed before any online path is taken. Failing a
// transaction is worse than provisionally accepting it offline, so every
// uncertain case resolves to offline.
package connectivity

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/tapcard/terminal/internal/terminal/domain"
)

// StatusRecorder persists connectivity determinations so the UI can render a
// status without re-probing.
type StatusRecorder interface {
	SaveNetworkStatus(ctx context.Context, ns domain.NetworkStatus) error
}

type Prober struct {
	logger       *slog.Logger
	httpClient   *http.Client
	recorder     StatusRecorder
	probeURL     string
	probeTimeout time.Duration

	// linkCheck reports cheap link-layer connectivity; overridable in tests
	// and on hardware with a dedicated modem status line.
	linkCheck func() bool
}

func NewProber(logger *slog.Logger, recorder StatusRecorder, probeURL string, probeTimeout time.Duration, httpClient *http.Client) *Prober {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: probeTimeout}
	}
	return &Prober{
		logger:       logger.With("component", "connectivity"),
		httpClient:   httpClient,
		recorder:     recorder,
		probeURL:     probeURL,
		probeTimeout: probeTimeout,
		linkCheck:    defaultLinkCheck,
	}
}

// SetLinkCheck replaces the link-layer check. Intended for tests and for
// devices that expose a modem status register.
func (p *Prober) SetLinkCheck(check func() bool) {
	p.linkCheck = check
}

// defaultLinkCheck reports whether any non-loopback interface is up with an
// address assigned.
func defaultLinkCheck() bool {
	ifaces, err := net.Interfaces()
	if err != nil {
		return false
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err == nil && len(addrs) > 0 {
			return true
		}
	}
	return false
}

// IsLinkConnected is the cheap link-layer signal. It says nothing about
// whether traffic actually flows.
func (p *Prober) IsLinkConnected() bool {
	return p.linkCheck()
}

// HasRealInternet issues a bounded-latency GET against the probe endpoint.
// Timeout, transport error, or any non-2xx status all count as no internet.
func (p *Prober) HasRealInternet(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, p.probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, p.probeURL, nil)
	if err != nil {
		p.logger.Error("failed to build probe request", "url", p.probeURL, "error", err)
		return false
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.logger.DebugContext(ctx, "connectivity probe failed", "url", p.probeURL, "error", err)
		return false
	}
	defer resp.Body.Close()

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	if !ok {
		p.logger.DebugContext(ctx, "connectivity probe got non-success status", "url", p.probeURL, "status_code", resp.StatusCode)
	}
	return ok
}

// WaitForConnectivity polls HasRealInternet with a fixed delay between
// attempts. Returns false when retries are exhausted or the context ends.
func (p *Prober) WaitForConnectivity(ctx context.Context, maxRetries int, retryDelay time.Duration) bool {
	for attempt := 1; attempt <= maxRetries; attempt++ {
		if p.HasRealInternet(ctx) {
			return true
		}
		if attempt == maxRetries {
			break
		}
		p.logger.DebugContext(ctx, "still offline, retrying", "attempt", attempt, "max_retries", maxRetries)
		select {
		case <-ctx.Done():
			return false
		case <-time.After(retryDelay):
		}
	}
	return false
}

// DecideOfflineMode is the policy function: operate online only when the
// link is up AND the real-internet probe succeeds; everything else is
// offline. The determination is persisted as NetworkStatus.
func (p *Prober) DecideOfflineMode(ctx context.Context) bool {
	online := p.IsLinkConnected() && p.HasRealInternet(ctx)

	ns := domain.NetworkStatus{IsConnected: online, Timestamp: time.Now().UTC()}
	if err := p.recorder.SaveNetworkStatus(ctx, ns); err != nil {
		// Status persistence is advisory for the UI; the connectivity
		// decision itself stands.
		p.logger.WarnContext(ctx, "failed to persist network status", "error", err)
	}

	return !online
}
