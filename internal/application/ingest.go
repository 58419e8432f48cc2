// Package application implements the engine's primary ports on top of the
// driven adapters: capability ingestion, catalog queries, request
// resolution, preview execution, and composite assembly.
package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/geoflux/stratum/internal/domain"
	"github.com/geoflux/stratum/internal/ogc"
	"github.com/geoflux/stratum/internal/ports/input"
	"github.com/geoflux/stratum/internal/ports/output"
)

// IngestConfig tunes capability ingestion.
type IngestConfig struct {
	// EndpointDiscovery probes well-known capability paths (GeoServer ows,
	// MapServer cgi, and friends) when the URL itself does not answer.
	EndpointDiscovery bool
}

// IngestService ingests capability documents and maintains the layer
// registry. It implements input.RegistrationService.
type IngestService struct {
	store    output.LayerStore
	fetcher  output.CapabilityFetcher
	metrics  output.MetricsCollector
	logger   *slog.Logger
	scopes   *keyedMutex
	discover bool
}

// NewIngestService creates the ingestion service.
func NewIngestService(store output.LayerStore, fetcher output.CapabilityFetcher, metrics output.MetricsCollector, logger *slog.Logger, cfg IngestConfig) *IngestService {
	if metrics == nil {
		metrics = &output.NoOpMetrics{}
	}
	return &IngestService{
		store:    store,
		fetcher:  fetcher,
		metrics:  metrics,
		logger:   logger,
		scopes:   newKeyedMutex(),
		discover: cfg.EndpointDiscovery,
	}
}

// Register ingests each URL, probing every protocol family unless the
// request names one. Failures are collected per (url, family) pair and the
// call errors only when no scope at all could be registered.
func (s *IngestService) Register(ctx context.Context, req input.RegisterRequest) (*input.RegisterResult, error) {
	if len(req.URLs) == 0 {
		return nil, &domain.ValidationError{Field: "urls", Constraint: "required", Message: "at least one service url is required"}
	}

	probing := req.ServiceType == ""
	families := domain.AllServiceTypes
	if !probing {
		if !req.ServiceType.Valid() {
			return nil, fmt.Errorf("%q: %w", req.ServiceType, domain.ErrInvalidServiceType)
		}
		families = []domain.ServiceType{req.ServiceType}
	}

	result := &input.RegisterResult{}
	var firstErr error

	for _, raw := range req.URLs {
		serviceURL, err := ogc.CanonicalServiceURL(raw)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			result.Failures = append(result.Failures, input.RegisterFailure{URL: raw, Reason: err.Error()})
			continue
		}

		name := req.ServiceName
		if name == "" {
			name = ogc.DeriveServiceName(serviceURL)
		}

		for _, family := range families {
			report, err := s.ingestScope(ctx, serviceURL, family, name, s.discover)
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				if probing {
					s.logger.Debug("family probe failed", "url", serviceURL, "type", family, "error", err)
				} else {
					s.logger.Warn("registration failed", "url", serviceURL, "type", family, "error", err)
				}
				result.Failures = append(result.Failures, input.RegisterFailure{
					URL:         serviceURL,
					ServiceType: family,
					Reason:      err.Error(),
				})
				continue
			}
			result.Reports = append(result.Reports, *report)
		}
	}

	if len(result.Reports) == 0 {
		return nil, firstErr
	}
	s.refreshGauges(ctx)
	return result, nil
}

// Deregister removes one layer record. Removal is always explicit;
// ingestion never deletes records on its own.
func (s *IngestService) Deregister(ctx context.Context, resourceID string) error {
	if resourceID == "" {
		return &domain.ValidationError{Field: "resource_id", Constraint: "required", Message: "resource id is required"}
	}
	if err := s.store.Delete(ctx, resourceID); err != nil {
		return err
	}
	s.logger.Info("layer deregistered", "resource_id", resourceID)
	s.refreshGauges(ctx)
	return nil
}

// ingestScope fetches, parses, and upserts one (url, family) scope. With
// probe set, well-known endpoint suffixes are tried after the URL itself;
// a candidate counts only when its document both fetches and parses. The
// registered service URL is the endpoint that actually answered, so later
// requests target a known-good address.
func (s *IngestService) ingestScope(ctx context.Context, serviceURL string, family domain.ServiceType, name string, probe bool) (*domain.RegistrationReport, error) {
	start := time.Now()

	candidates := []string{serviceURL}
	if probe {
		candidates = ogc.EndpointCandidates(serviceURL, family)
	}

	var (
		descriptors []domain.LayerDescriptor
		endpoint    string
		firstErr    error
	)
	for _, candidate := range candidates {
		doc, err := s.fetcher.Fetch(ctx, candidate, family)
		if err == nil {
			descriptors, err = ogc.Parse(doc, family)
		}
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		endpoint = candidate
		break
	}
	if endpoint == "" {
		s.metrics.IncIngest(string(family), false)
		return nil, firstErr
	}

	reg := domain.ServiceRegistration{
		ServiceURL:  endpoint,
		ServiceType: family,
		ServiceName: name,
	}

	unlock := s.scopes.lock(reg.Key())
	report, err := s.store.UpsertBatch(ctx, reg, descriptors)
	unlock()

	s.metrics.IncIngest(string(family), err == nil)
	s.metrics.ObserveIngestDuration(string(family), time.Since(start))
	if err != nil {
		return nil, err
	}

	s.logger.Info("service registered",
		"url", endpoint,
		"type", family,
		"name", name,
		"inserted", report.Inserted,
		"updated", report.Updated,
		"unchanged", report.Unchanged)
	return report, nil
}

// refreshGauges republishes the registry size gauges after writes.
func (s *IngestService) refreshGauges(ctx context.Context) {
	stats, err := s.store.Stats(ctx)
	if err != nil {
		s.logger.Warn("registry stats unavailable", "error", err)
		return
	}
	s.metrics.SetLayersRegistered(stats.TotalLayers)
	s.metrics.SetServicesRegistered(stats.ServiceCount)
}
