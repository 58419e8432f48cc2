package upstream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/geoflux/stratum/internal/ports/output"
)

// ClientConfig holds preview request client settings.
type ClientConfig struct {
	Timeout      time.Duration
	MaxBodyBytes int64
}

// Client performs one-shot GETs for resolved requests. It never retries; a
// failed preview is reported to the caller, not repeated.
type Client struct {
	client   *http.Client
	maxBytes int64
}

// NewClient creates a request client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxBodyBytes == 0 {
		cfg.MaxBodyBytes = 64 << 20
	}

	return &Client{
		client:   &http.Client{Timeout: cfg.Timeout},
		maxBytes: cfg.MaxBodyBytes,
	}
}

// Do performs one GET against the final request URL. A completed HTTP
// exchange is returned as-is whatever its status; only transport failures
// error out.
func (c *Client) Do(ctx context.Context, url string) (*output.UpstreamResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > c.maxBytes {
		return nil, fmt.Errorf("response for %s exceeds %d bytes", url, c.maxBytes)
	}

	return &output.UpstreamResponse{
		Status:      resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}
