package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/geoflux/stratum/internal/domain"
	"github.com/geoflux/stratum/internal/ogc"
)

// fallbackCenter positions composites whose layers carry no usable extent.
var fallbackCenter = domain.Point{Lon: 116.4074, Lat: 39.9042}

const fallbackZoom = 10

// ComposerService assembles resolved requests into composite views.
// It implements input.CompositeAssembler.
type ComposerService struct {
	logger *slog.Logger
}

// NewComposerService creates the composer.
func NewComposerService(logger *slog.Logger) *ComposerService {
	return &ComposerService{logger: logger}
}

// Compose validates the layer list and derives the composite's extent and
// viewport. The caller's order is preserved as bottom-to-top render order.
// The union extent is computed in the first extent-carrying layer's CRS;
// layers in other reference systems keep their native CRS listed but are
// excluded from the union rather than reprojected.
func (s *ComposerService) Compose(_ context.Context, requests []domain.ResolvedRequest) (*domain.CompositeView, error) {
	if len(requests) == 0 {
		return nil, &domain.CompositeError{Reason: domain.CompositeEmptyInput}
	}

	seen := make(map[string]struct{}, len(requests))
	for _, req := range requests {
		id := req.Record.ResourceID
		if _, dup := seen[id]; dup {
			return nil, &domain.CompositeError{Reason: domain.CompositeDuplicateLayer, ResourceID: id}
		}
		seen[id] = struct{}{}
	}

	var (
		union      *domain.BoundingBox
		baseCRS    string
		crss       []string
		hasFeature bool
	)
	for _, req := range requests {
		if req.Kind == domain.KindGetFeature {
			hasFeature = true
		}
		box := req.Record.BoundingBox
		if !box.Valid() {
			continue
		}
		crs := ogc.NormalizeCRS(box.CRS)
		if baseCRS == "" {
			baseCRS = crs
		}
		if crs == baseCRS {
			union = union.Union(box)
		}
		crss = appendDistinct(crss, crs)
	}

	center := fallbackCenter
	zoom := fallbackZoom
	if union != nil {
		x, y := union.Center()
		center = domain.Point{Lon: x, Lat: y}
		zoom = zoomForArea(union.Area())
		if hasFeature && zoom < 18 {
			// Feature layers read best one step closer than their extent
			// alone suggests.
			zoom++
		}
	}

	view := &domain.CompositeView{
		ID:        compositeID(requests),
		Layers:    append([]domain.ResolvedRequest(nil), requests...),
		UnionBox:  union,
		CRSs:      crss,
		Center:    center,
		Zoom:      zoom,
		CreatedAt: time.Now().UTC(),
	}

	s.logger.Debug("composite assembled", "id", view.ID, "layers", view.LayerCount(), "zoom", view.Zoom)
	return view, nil
}

// compositeID derives a stable identifier from the ordered layer identities.
// The same layers in the same order always hash to the same id.
func compositeID(requests []domain.ResolvedRequest) string {
	h := xxhash.New()
	for _, req := range requests {
		_, _ = h.WriteString(req.Record.ResourceID)
		_, _ = h.WriteString("|")
		_, _ = h.WriteString(string(req.Kind))
		_, _ = h.WriteString("\n")
	}
	return fmt.Sprintf("cmp-%016x", h.Sum64())
}

// zoomForArea picks an initial web-map zoom from the extent area in squared
// CRS units. The steps are tuned for geographic degrees; projected extents
// land on the wide end, which is a safe starting view.
func zoomForArea(area float64) int {
	switch {
	case area <= 0.001:
		return 18
	case area <= 0.01:
		return 15
	case area <= 0.1:
		return 12
	case area <= 1:
		return 10
	case area <= 10:
		return 8
	case area <= 100:
		return 6
	default:
		return 4
	}
}

func appendDistinct(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}
