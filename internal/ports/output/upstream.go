package output

import (
	"context"

	"github.com/geoflux/stratum/internal/domain"
)

// CapabilityFetcher defines the secondary port for retrieving capability
// documents from remote services.
type CapabilityFetcher interface {
	// Fetch retrieves the capability document for a service URL. Transient
	// network failures are retried a bounded number of times; HTTP-level
	// failures are not. The returned error is always a *domain.FetchError.
	Fetch(ctx context.Context, url string, serviceType domain.ServiceType) ([]byte, error)
}

// RequestClient defines the secondary port for executing resolved OGC
// requests against their upstream service. Implementations never retry;
// whether a preview is worth repeating is the caller's call.
type RequestClient interface {
	// Do performs one GET against the final request URL.
	Do(ctx context.Context, url string) (*UpstreamResponse, error)
}

// UpstreamResponse carries an upstream payload plus the metadata needed to
// judge whether it satisfied the request.
type UpstreamResponse struct {
	Status      int    // HTTP status code
	ContentType string // Content-Type header value
	Body        []byte // Response payload
}
