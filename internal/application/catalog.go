package application

import (
	"context"
	"log/slog"

	"github.com/geoflux/stratum/internal/domain"
	"github.com/geoflux/stratum/internal/ports/output"
)

// CatalogService answers read-only registry queries. It implements
// input.LayerCatalog.
type CatalogService struct {
	store  output.LayerStore
	logger *slog.Logger
}

// NewCatalogService creates the catalog service.
func NewCatalogService(store output.LayerStore, logger *slog.Logger) *CatalogService {
	return &CatalogService{store: store, logger: logger}
}

// List returns layer records matching the filter. Limits are clamped by
// the store, so an unset limit yields the default page size.
func (s *CatalogService) List(ctx context.Context, filter domain.ListFilter) ([]domain.LayerRecord, error) {
	if filter.ServiceType != "" && !filter.ServiceType.Valid() {
		return nil, domain.ErrInvalidServiceType
	}
	return s.store.List(ctx, filter)
}

// Get returns the record behind a resource id.
func (s *CatalogService) Get(ctx context.Context, resourceID string) (*domain.LayerRecord, error) {
	if resourceID == "" {
		return nil, domain.ErrLayerNotFound
	}
	return s.store.Get(ctx, resourceID)
}

// Services returns the distinct registered service scopes.
func (s *CatalogService) Services(ctx context.Context) ([]domain.ServiceRegistration, error) {
	return s.store.ListServices(ctx)
}

// Stats aggregates registry contents.
func (s *CatalogService) Stats(ctx context.Context) (*domain.RegistryStats, error) {
	return s.store.Stats(ctx)
}
