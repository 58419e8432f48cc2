// Package upstream talks HTTP to the OGC services being ingested and
// previewed.
package upstream

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"github.com/geoflux/stratum/internal/domain"
	"github.com/geoflux/stratum/internal/ogc"
)

// FetcherConfig holds capability fetcher settings.
type FetcherConfig struct {
	Timeout          time.Duration // per-attempt limit, including body read
	Retries          int           // additional attempts after the first
	RetryBackoff     time.Duration // first retry delay, doubled per attempt
	MaxDocumentBytes int64
}

// Fetcher retrieves capability documents. Transient network failures are
// retried with backoff; HTTP status failures are final on the first answer.
type Fetcher struct {
	client   *http.Client
	retries  int
	backoff  time.Duration
	maxBytes int64
}

// NewFetcher creates a capability fetcher.
func NewFetcher(cfg FetcherConfig) *Fetcher {
	if cfg.Timeout == 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.RetryBackoff == 0 {
		cfg.RetryBackoff = 500 * time.Millisecond
	}
	if cfg.MaxDocumentBytes == 0 {
		cfg.MaxDocumentBytes = 10 << 20
	}

	return &Fetcher{
		client:   &http.Client{Timeout: cfg.Timeout},
		retries:  cfg.Retries,
		backoff:  cfg.RetryBackoff,
		maxBytes: cfg.MaxDocumentBytes,
	}
}

// Fetch retrieves the capability document for a service URL. The returned
// error is always a *domain.FetchError.
func (f *Fetcher) Fetch(ctx context.Context, serviceURL string, serviceType domain.ServiceType) ([]byte, error) {
	capURL := ogc.CapabilitiesURL(serviceURL, serviceType)

	var lastErr error
	for attempt := 0; attempt <= f.retries; attempt++ {
		if attempt > 0 {
			delay := f.backoff << (attempt - 1)
			select {
			case <-ctx.Done():
				return nil, &domain.FetchError{Reason: domain.FetchUnreachable, URL: capURL, Err: ctx.Err()}
			case <-time.After(delay):
			}
		}

		body, err := f.attempt(ctx, capURL)
		if err == nil {
			return body, nil
		}

		// attempt returns a FetchError for every HTTP-level outcome;
		// those are final regardless of reason.
		var fetchErr *domain.FetchError
		if errors.As(err, &fetchErr) {
			return nil, err
		}
		if !isTransient(err) {
			return nil, &domain.FetchError{Reason: domain.FetchUnreachable, URL: capURL, Err: err}
		}
		lastErr = err
	}

	return nil, &domain.FetchError{Reason: domain.FetchUnreachable, URL: capURL, Err: lastErr}
}

// attempt performs one GET. Transport and body-read errors come back raw for
// the retry loop to classify; everything else is already a *domain.FetchError.
func (f *Fetcher) attempt(ctx context.Context, capURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, capURL, nil)
	if err != nil {
		return nil, &domain.FetchError{Reason: domain.FetchUnreachable, URL: capURL, Err: err}
	}
	req.Header.Set("Accept", "application/xml, text/xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &domain.FetchError{Reason: domain.FetchBadStatus, URL: capURL, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > f.maxBytes {
		return nil, &domain.FetchError{Reason: domain.FetchTooLarge, URL: capURL}
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil, &domain.FetchError{Reason: domain.FetchEmptyBody, URL: capURL}
	}

	return body, nil
}

// isTransient reports whether a transport error is worth another attempt.
// HTTP status handling never reaches here.
func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}

	// NXDOMAIN is permanent; only temporary resolver failures are retried.
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.IsTemporary || dnsErr.IsTimeout
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}
