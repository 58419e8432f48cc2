package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/geoflux/stratum/internal/domain"
	"github.com/geoflux/stratum/internal/ogc"
	"github.com/geoflux/stratum/internal/ports/input"
	"github.com/geoflux/stratum/internal/ports/output"
)

// ResolverService turns layer references into fully parameterized upstream
// requests. It implements input.RequestResolver.
type ResolverService struct {
	store   output.LayerStore
	metrics output.MetricsCollector
	logger  *slog.Logger
}

// NewResolverService creates the resolver.
func NewResolverService(store output.LayerStore, metrics output.MetricsCollector, logger *slog.Logger) *ResolverService {
	if metrics == nil {
		metrics = &output.NoOpMetrics{}
	}
	return &ResolverService{store: store, metrics: metrics, logger: logger}
}

// Resolve looks the layer up by resource id first and by name second, then
// builds the parameter set for the requested kind. The same registry state
// and query always yield the same parameters, and a name shared by several
// records errors with the candidates instead of guessing.
func (s *ResolverService) Resolve(ctx context.Context, query input.ResolveQuery) (*domain.ResolvedRequest, error) {
	layer := strings.TrimSpace(query.Layer)
	if layer == "" {
		return nil, &domain.ValidationError{Field: "layer", Constraint: "required", Message: "layer name or resource id is required"}
	}
	if query.TypeHint != "" && !query.TypeHint.Valid() {
		return nil, fmt.Errorf("%q: %w", query.TypeHint, domain.ErrInvalidServiceType)
	}
	if query.Kind != "" && !query.Kind.Valid() {
		return nil, fmt.Errorf("%q: %w", query.Kind, domain.ErrInvalidRequestKind)
	}

	record, err := s.lookup(ctx, layer, query)
	if err != nil {
		s.metrics.IncResolve(string(query.Kind), false)
		return nil, err
	}

	kind := query.Kind
	if kind == "" {
		kind = record.ServiceType.DefaultKind()
	}
	if kind.ServiceType() != record.ServiceType {
		s.metrics.IncResolve(string(kind), false)
		return nil, &domain.ResolveError{Reason: domain.ResolveKindMismatch, Layer: layer, Kind: kind}
	}

	params, err := buildParams(record, kind, query.Overrides)
	if err != nil {
		s.metrics.IncResolve(string(kind), false)
		return nil, err
	}

	s.metrics.IncResolve(string(kind), true)
	s.logger.Debug("request resolved", "layer", record.LayerName, "kind", kind, "service", record.ServiceURL)
	return &domain.ResolvedRequest{Record: *record, Kind: kind, Params: params}, nil
}

// lookup finds the one record the query names. Resource ids win over layer
// names; a name shared by several records needs a type hint or the id.
func (s *ResolverService) lookup(ctx context.Context, layer string, query input.ResolveQuery) (*domain.LayerRecord, error) {
	record, err := s.store.Get(ctx, layer)
	if err == nil {
		return record, nil
	}
	if !errors.Is(err, domain.ErrLayerNotFound) {
		return nil, err
	}

	matches, err := s.store.FindByName(ctx, layer, query.TypeHint)
	if err != nil {
		return nil, err
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("%q: %w", layer, domain.ErrLayerNotFound)
	case 1:
		return &matches[0], nil
	default:
		return nil, &domain.ResolveError{Reason: domain.ResolveAmbiguous, Layer: layer, Kind: query.Kind, Candidates: matches}
	}
}

// buildParams assembles the parameter map for one request kind and lays the
// caller's overrides on top.
func buildParams(record *domain.LayerRecord, kind domain.RequestKind, overrides map[string]string) (map[string]string, error) {
	extra := cloneParams(overrides)

	var params map[string]string
	switch kind {
	case domain.KindGetMap:
		// bbox and crs overrides change the geometry the request is built
		// from, so they are consumed here rather than merged afterwards.
		box := record.BoundingBox
		crsOverride, hasCRS := takeParam(extra, "crs")
		if raw, ok := takeParam(extra, "bbox"); ok {
			crs := crsOverride
			if crs == "" {
				if box.Valid() {
					crs = box.CRS
				} else {
					crs = ogc.WGS84
				}
			}
			parsed, err := ogc.ParseBBoxParam(raw, crs)
			if err != nil {
				return nil, err
			}
			box = parsed
		} else if hasCRS {
			// A bare crs override relabels the request without touching the
			// coordinates; it merges like any other parameter.
			extra["crs"] = crsOverride
		}
		if !box.Valid() {
			return nil, &domain.ResolveError{Reason: domain.ResolveMissingBBox, Layer: record.LayerName, Kind: kind}
		}
		params = ogc.BuildGetMap(record.LayerName, box)

	case domain.KindGetFeature:
		params = ogc.BuildGetFeature(record.LayerName, record.BoundingBox, record.DefaultCRS)

	case domain.KindGetTile:
		matrixSet := ogc.PreferredTileMatrixSet(record.TileMatrixSets)
		params = ogc.BuildGetTile(record.LayerName, record.DefaultStyle, matrixSet)

	default:
		return nil, fmt.Errorf("%q: %w", kind, domain.ErrInvalidRequestKind)
	}

	mergeParams(params, extra)

	if kind == domain.KindGetTile {
		for _, key := range []string{"TILEMATRIX", "TILEROW", "TILECOL"} {
			if params[key] == "" {
				return nil, &domain.ResolveError{Reason: domain.ResolveMissingTile, Layer: record.LayerName, Kind: kind}
			}
		}
	}
	return params, nil
}

// cloneParams copies the overrides so resolution never mutates caller maps.
func cloneParams(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// takeParam removes a key case-insensitively and reports whether it was set.
func takeParam(m map[string]string, key string) (string, bool) {
	for k, v := range m {
		if strings.EqualFold(k, key) {
			delete(m, k)
			return v, true
		}
	}
	return "", false
}

// mergeParams lays overrides over built parameters. Matching is
// case-insensitive and the built key's spelling wins, keeping each
// protocol's casing conventions intact.
func mergeParams(params, overrides map[string]string) {
	for key, val := range overrides {
		merged := false
		for existing := range params {
			if strings.EqualFold(existing, key) {
				params[existing] = val
				merged = true
				break
			}
		}
		if !merged {
			params[key] = val
		}
	}
}
