package application

import (
	"context"
	"log/slog"

	"github.com/geoflux/stratum/internal/ports/input"
	"github.com/geoflux/stratum/internal/ports/output"
)

// HealthService reports liveness and readiness. It implements
// input.HealthChecker.
type HealthService struct {
	store  output.LayerStore
	logger *slog.Logger
}

// NewHealthService creates the health service.
func NewHealthService(store output.LayerStore, logger *slog.Logger) *HealthService {
	return &HealthService{store: store, logger: logger}
}

// IsHealthy reports process liveness. The process serving the check is the
// signal; dependencies belong to readiness.
func (s *HealthService) IsHealthy(_ context.Context) bool {
	return true
}

// IsReady reports whether the registry database answers.
func (s *HealthService) IsReady(ctx context.Context) bool {
	if err := s.store.Ping(ctx); err != nil {
		s.logger.Warn("readiness check failed", "error", err)
		return false
	}
	return true
}

// GetHealthDetails returns component statuses and registry gauges.
func (s *HealthService) GetHealthDetails(ctx context.Context) input.HealthDetails {
	details := input.HealthDetails{
		Healthy:    s.IsHealthy(ctx),
		Ready:      s.IsReady(ctx),
		Components: map[string]string{},
	}

	if details.Ready {
		details.Components["database"] = "ok"
	} else {
		details.Components["database"] = "unavailable"
	}

	if stats, err := s.store.Stats(ctx); err == nil {
		details.LayersRegistered = stats.TotalLayers
		details.ServicesRegistered = stats.ServiceCount
	}

	return details
}
