package application

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/geoflux/stratum/internal/domain"
)

func resolvedLayer(id, name string, kind domain.RequestKind, box *domain.BoundingBox) domain.ResolvedRequest {
	return domain.ResolvedRequest{
		Record: domain.LayerRecord{
			ResourceID:  id,
			ServiceURL:  "http://geo.example.com/" + name,
			ServiceType: kind.ServiceType(),
			LayerName:   name,
			BoundingBox: box,
		},
		Kind:   kind,
		Params: map[string]string{"layers": name},
	}
}

func TestComposePreservesOrder(t *testing.T) {
	composer := NewComposerService(testLogger())
	layers := []domain.ResolvedRequest{
		resolvedLayer("a", "base", domain.KindGetMap, &domain.BoundingBox{CRS: "EPSG:4326", MinX: -10, MinY: 35, MaxX: 30, MaxY: 70}),
		resolvedLayer("b", "roads", domain.KindGetMap, &domain.BoundingBox{CRS: "EPSG:4326", MinX: 0, MinY: 30, MaxX: 40, MaxY: 60}),
		resolvedLayer("c", "labels", domain.KindGetMap, nil),
	}

	view, err := composer.Compose(context.Background(), layers)
	if err != nil {
		t.Fatalf("compose failed: %v", err)
	}
	if view.LayerCount() != 3 {
		t.Fatalf("expected 3 layers, got %d", view.LayerCount())
	}
	for i, want := range []string{"base", "roads", "labels"} {
		if view.Layers[i].Record.LayerName != want {
			t.Errorf("layer %d: expected %s, got %s", i, want, view.Layers[i].Record.LayerName)
		}
	}
}

func TestComposeUnionInFirstCRS(t *testing.T) {
	composer := NewComposerService(testLogger())
	layers := []domain.ResolvedRequest{
		resolvedLayer("a", "base", domain.KindGetMap, &domain.BoundingBox{CRS: "EPSG:4326", MinX: -10, MinY: 35, MaxX: 30, MaxY: 70}),
		resolvedLayer("b", "roads", domain.KindGetMap, &domain.BoundingBox{CRS: "EPSG:4326", MinX: 0, MinY: 30, MaxX: 40, MaxY: 60}),
		resolvedLayer("c", "projected", domain.KindGetMap, &domain.BoundingBox{CRS: "EPSG:3857", MinX: 0, MinY: 0, MaxX: 1000, MaxY: 1000}),
	}

	view, err := composer.Compose(context.Background(), layers)
	if err != nil {
		t.Fatalf("compose failed: %v", err)
	}

	// The union covers the two EPSG:4326 layers; the projected layer is
	// listed but never unioned in.
	want := domain.BoundingBox{CRS: "EPSG:4326", MinX: -10, MinY: 30, MaxX: 40, MaxY: 70}
	if view.UnionBox == nil || *view.UnionBox != want {
		t.Errorf("union mismatch: got %+v, want %+v", view.UnionBox, want)
	}
	if len(view.CRSs) != 2 || view.CRSs[0] != "EPSG:4326" || view.CRSs[1] != "EPSG:3857" {
		t.Errorf("unexpected CRS list %v", view.CRSs)
	}
}

func TestComposeEmptyInput(t *testing.T) {
	composer := NewComposerService(testLogger())

	_, err := composer.Compose(context.Background(), nil)
	var cerr *domain.CompositeError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected composite error, got %v", err)
	}
	if cerr.Reason != domain.CompositeEmptyInput {
		t.Errorf("expected empty input, got %s", cerr.Reason)
	}
}

func TestComposeDuplicateLayer(t *testing.T) {
	composer := NewComposerService(testLogger())
	layer := resolvedLayer("a", "base", domain.KindGetMap, nil)

	_, err := composer.Compose(context.Background(), []domain.ResolvedRequest{layer, layer})
	var cerr *domain.CompositeError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected composite error, got %v", err)
	}
	if cerr.Reason != domain.CompositeDuplicateLayer {
		t.Errorf("expected duplicate layer, got %s", cerr.Reason)
	}
	if cerr.ResourceID != "a" {
		t.Errorf("expected offending id a, got %q", cerr.ResourceID)
	}
}

func TestComposeStableID(t *testing.T) {
	composer := NewComposerService(testLogger())
	a := resolvedLayer("a", "base", domain.KindGetMap, nil)
	b := resolvedLayer("b", "roads", domain.KindGetMap, nil)

	first, err := composer.Compose(context.Background(), []domain.ResolvedRequest{a, b})
	if err != nil {
		t.Fatalf("compose failed: %v", err)
	}
	second, err := composer.Compose(context.Background(), []domain.ResolvedRequest{a, b})
	if err != nil {
		t.Fatalf("compose failed: %v", err)
	}
	reversed, err := composer.Compose(context.Background(), []domain.ResolvedRequest{b, a})
	if err != nil {
		t.Fatalf("compose failed: %v", err)
	}

	if first.ID != second.ID {
		t.Errorf("identical input produced different ids: %s vs %s", first.ID, second.ID)
	}
	if first.ID == reversed.ID {
		t.Error("render order must be part of the identity")
	}
	if !strings.HasPrefix(first.ID, "cmp-") || len(first.ID) != len("cmp-")+16 {
		t.Errorf("unexpected id shape %q", first.ID)
	}
}

func TestComposeFallbackViewport(t *testing.T) {
	composer := NewComposerService(testLogger())

	view, err := composer.Compose(context.Background(), []domain.ResolvedRequest{
		resolvedLayer("a", "labels", domain.KindGetMap, nil),
	})
	if err != nil {
		t.Fatalf("compose failed: %v", err)
	}
	if view.UnionBox != nil {
		t.Errorf("expected no union box, got %+v", view.UnionBox)
	}
	if view.Center != fallbackCenter {
		t.Errorf("expected fallback center, got %+v", view.Center)
	}
	if view.Zoom != fallbackZoom {
		t.Errorf("expected fallback zoom, got %d", view.Zoom)
	}
	if len(view.CRSs) != 0 {
		t.Errorf("expected no CRSs, got %v", view.CRSs)
	}
}

func TestComposeViewportFromUnion(t *testing.T) {
	composer := NewComposerService(testLogger())

	view, err := composer.Compose(context.Background(), []domain.ResolvedRequest{
		resolvedLayer("a", "base", domain.KindGetMap, &domain.BoundingBox{CRS: "EPSG:4326", MinX: 10, MinY: 50, MaxX: 11, MaxY: 51}),
	})
	if err != nil {
		t.Fatalf("compose failed: %v", err)
	}
	if view.Center.Lon != 10.5 || view.Center.Lat != 50.5 {
		t.Errorf("unexpected center %+v", view.Center)
	}
	if view.Zoom != 10 {
		t.Errorf("expected zoom 10 for a one-degree extent, got %d", view.Zoom)
	}
}

func TestComposeFeatureLayerZoomsIn(t *testing.T) {
	composer := NewComposerService(testLogger())
	box := &domain.BoundingBox{CRS: "EPSG:4326", MinX: 10, MinY: 50, MaxX: 11, MaxY: 51}

	view, err := composer.Compose(context.Background(), []domain.ResolvedRequest{
		resolvedLayer("a", "base", domain.KindGetMap, box),
		resolvedLayer("b", "parcels", domain.KindGetFeature, box),
	})
	if err != nil {
		t.Fatalf("compose failed: %v", err)
	}
	if view.Zoom != 11 {
		t.Errorf("expected feature bump to zoom 11, got %d", view.Zoom)
	}

	// A tiny extent already sits at the deepest zoom; the bump must not
	// push past it.
	tiny := &domain.BoundingBox{CRS: "EPSG:4326", MinX: 10, MinY: 50, MaxX: 10.01, MaxY: 50.01}
	view, err = composer.Compose(context.Background(), []domain.ResolvedRequest{
		resolvedLayer("c", "parcels", domain.KindGetFeature, tiny),
	})
	if err != nil {
		t.Fatalf("compose failed: %v", err)
	}
	if view.Zoom != 18 {
		t.Errorf("expected zoom capped at 18, got %d", view.Zoom)
	}
}

func TestZoomForArea(t *testing.T) {
	tests := []struct {
		area float64
		want int
	}{
		{0.0005, 18},
		{0.005, 15},
		{0.05, 12},
		{0.5, 10},
		{5, 8},
		{50, 6},
		{5000, 4},
	}
	for _, tt := range tests {
		if got := zoomForArea(tt.area); got != tt.want {
			t.Errorf("zoomForArea(%v) = %d, want %d", tt.area, got, tt.want)
		}
	}
}
