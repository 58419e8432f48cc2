package output

import (
	"context"

	"github.com/geoflux/stratum/internal/domain"
)

// LayerStore defines the secondary port for layer registry persistence.
type LayerStore interface {
	// UpsertBatch writes one parse batch for a service scope in a single
	// transaction. Absent layers are inserted with fresh resource ids;
	// present ones are updated only when a mutable field differs. Existing
	// records never lose their resource id, and records missing from the
	// batch are left untouched.
	UpsertBatch(ctx context.Context, reg domain.ServiceRegistration, descriptors []domain.LayerDescriptor) (*domain.RegistrationReport, error)

	// Get returns the record behind a resource id.
	Get(ctx context.Context, resourceID string) (*domain.LayerRecord, error)

	// FindByName returns all records whose layer name matches
	// case-insensitively, optionally narrowed to one service type.
	FindByName(ctx context.Context, name string, typeHint domain.ServiceType) ([]domain.LayerRecord, error)

	// List returns records matching the filter, ordered by service and
	// layer name.
	List(ctx context.Context, filter domain.ListFilter) ([]domain.LayerRecord, error)

	// Delete removes one record. Deletion is always an explicit caller
	// action, never an ingestion side effect.
	Delete(ctx context.Context, resourceID string) error

	// ListServices returns the distinct registered service scopes.
	ListServices(ctx context.Context) ([]domain.ServiceRegistration, error)

	// Stats aggregates registry contents.
	Stats(ctx context.Context) (*domain.RegistryStats, error)

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error

	// Close releases the underlying connections.
	Close() error
}
