// Package input defines the primary/driving ports of the application.
package input

import (
	"context"
	"io"

	"github.com/geoflux/stratum/internal/domain"
)

// RegistrationService defines the primary port for capability ingestion.
type RegistrationService interface {
	// Register ingests one or more service URLs and upserts the discovered
	// layers. A request without a service type probes every protocol family
	// and registers each one that answers. Per-URL failures are reported in
	// the result; the call errors only when nothing could be registered.
	Register(ctx context.Context, req RegisterRequest) (*RegisterResult, error)

	// Deregister removes a single layer record.
	Deregister(ctx context.Context, resourceID string) error
}

// RegisterRequest describes one registration call.
type RegisterRequest struct {
	URLs        []string           // Service URLs, canonicalized before use
	ServiceType domain.ServiceType // Empty means probe all families
	ServiceName string             // Empty means derive from the URL
}

// RegisterResult aggregates the per-scope reports of one registration call.
type RegisterResult struct {
	Reports  []domain.RegistrationReport // One per registered (url, type) scope
	Failures []RegisterFailure           // URLs or families that failed
}

// RegisterFailure records why one URL/family pair could not be registered.
type RegisterFailure struct {
	URL         string
	ServiceType domain.ServiceType
	Reason      string
}

// LayerCatalog defines the primary port for browsing the registry.
type LayerCatalog interface {
	// List returns layer records matching the filter.
	List(ctx context.Context, filter domain.ListFilter) ([]domain.LayerRecord, error)

	// Get returns the record behind a resource id.
	Get(ctx context.Context, resourceID string) (*domain.LayerRecord, error)

	// Services returns the distinct registered service scopes.
	Services(ctx context.Context) ([]domain.ServiceRegistration, error)

	// Stats aggregates registry contents.
	Stats(ctx context.Context) (*domain.RegistryStats, error)
}

// RequestResolver defines the primary port for parameter resolution.
type RequestResolver interface {
	// Resolve turns a layer reference into a fully parameterized request.
	// Multiple matches without a disambiguator yield a *domain.ResolveError
	// carrying the candidates; the resolver never picks one silently.
	Resolve(ctx context.Context, query ResolveQuery) (*domain.ResolvedRequest, error)
}

// ResolveQuery names a layer and the operation to resolve it for.
type ResolveQuery struct {
	Layer     string             // Layer name or resource id
	Kind      domain.RequestKind // Empty means the service type's default
	TypeHint  domain.ServiceType // Optional disambiguator for name lookups
	Overrides map[string]string  // Caller parameters merged over defaults
}

// PreviewService defines the primary port for executing resolved requests
// and serving the staged artifacts.
type PreviewService interface {
	// Execute performs the upstream request once and stages the payload.
	Execute(ctx context.Context, req *domain.ResolvedRequest) (*domain.PreviewArtifact, error)

	// Open streams a staged artifact and reports its content type.
	Open(ctx context.Context, artifactID string) (io.ReadCloser, string, error)
}

// CompositeAssembler defines the primary port for multi-layer assembly.
type CompositeAssembler interface {
	// Compose validates and orders resolved requests into a composite view.
	Compose(ctx context.Context, requests []domain.ResolvedRequest) (*domain.CompositeView, error)
}

// HealthChecker defines the primary port for health checks.
type HealthChecker interface {
	// IsHealthy returns true if the service is healthy.
	IsHealthy(ctx context.Context) bool

	// IsReady returns true if the service is ready to accept requests.
	IsReady(ctx context.Context) bool

	// GetHealthDetails returns detailed health information.
	GetHealthDetails(ctx context.Context) HealthDetails
}

// HealthDetails contains detailed health information.
type HealthDetails struct {
	Healthy            bool              // Overall health status
	Ready              bool              // Ready to accept requests
	LayersRegistered   int               // Current registry size
	ServicesRegistered int               // Registered service scopes
	Components         map[string]string // Component statuses
}
