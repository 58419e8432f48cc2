package application

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/geoflux/stratum/internal/domain"
	"github.com/geoflux/stratum/internal/ports/input"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

const wmsCapDoc = `<?xml version="1.0" encoding="UTF-8"?>
<WMS_Capabilities version="1.3.0" xmlns="http://www.opengis.net/wms">
  <Capability>
    <Request>
      <GetMap><Format>image/png</Format><Format>image/jpeg</Format></GetMap>
    </Request>
    <Layer>
      <Title>Demo Server</Title>
      <CRS>EPSG:4326</CRS>
      <EX_GeographicBoundingBox>
        <westBoundLongitude>-180</westBoundLongitude>
        <eastBoundLongitude>180</eastBoundLongitude>
        <southBoundLatitude>-90</southBoundLatitude>
        <northBoundLatitude>90</northBoundLatitude>
      </EX_GeographicBoundingBox>
      <Layer queryable="1">
        <Name>roads</Name>
        <Title>Road Network</Title>
      </Layer>
      <Layer queryable="1">
        <Name>rivers</Name>
        <Title>Rivers</Title>
      </Layer>
    </Layer>
  </Capability>
</WMS_Capabilities>`

const wfsCapDoc = `<?xml version="1.0" encoding="UTF-8"?>
<WFS_Capabilities version="2.0.0" xmlns="http://www.opengis.net/wfs/2.0" xmlns:ows="http://www.opengis.net/ows/1.1">
  <FeatureTypeList>
    <FeatureType>
      <Name>cad:parcels</Name>
      <Title>Cadastral Parcels</Title>
      <DefaultCRS>urn:ogc:def:crs:EPSG::4326</DefaultCRS>
      <OutputFormats><Format>application/json</Format></OutputFormats>
      <ows:WGS84BoundingBox>
        <ows:LowerCorner>-10 35</ows:LowerCorner>
        <ows:UpperCorner>30 70</ows:UpperCorner>
      </ows:WGS84BoundingBox>
    </FeatureType>
  </FeatureTypeList>
</WFS_Capabilities>`

func newIngestService(store *mockStore, fetcher *mockFetcher, cfg IngestConfig) *IngestService {
	return NewIngestService(store, fetcher, nil, testLogger(), cfg)
}

func TestRegisterProbesAllFamilies(t *testing.T) {
	store := &mockStore{}
	fetcher := &mockFetcher{documents: map[string][]byte{
		"http://geo.example.com/ows": []byte(wmsCapDoc),
	}}
	svc := newIngestService(store, fetcher, IngestConfig{})

	result, err := svc.Register(context.Background(), input.RegisterRequest{
		URLs: []string{"http://geo.example.com/ows"},
	})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	// The document parses as WMS only; the WFS and WMTS probes fail.
	if len(result.Reports) != 1 {
		t.Fatalf("expected 1 report, got %d", len(result.Reports))
	}
	report := result.Reports[0]
	if report.ServiceType != domain.ServiceWMS {
		t.Errorf("expected WMS report, got %s", report.ServiceType)
	}
	if report.Inserted != 2 {
		t.Errorf("expected 2 inserted layers, got %d", report.Inserted)
	}
	if len(result.Failures) != 2 {
		t.Errorf("expected 2 family failures, got %d", len(result.Failures))
	}
	if len(store.upserts) != 1 || store.upserts[0].ServiceName != "example" {
		t.Errorf("expected derived service name %q, got %+v", "example", store.upserts)
	}
}

func TestRegisterExplicitTypeAndName(t *testing.T) {
	store := &mockStore{}
	fetcher := &mockFetcher{documents: map[string][]byte{
		"http://geo.example.com/wfs": []byte(wfsCapDoc),
	}}
	svc := newIngestService(store, fetcher, IngestConfig{})

	result, err := svc.Register(context.Background(), input.RegisterRequest{
		URLs:        []string{"http://geo.example.com/wfs"},
		ServiceType: domain.ServiceWFS,
		ServiceName: "cadastre",
	})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if len(result.Reports) != 1 || len(result.Failures) != 0 {
		t.Fatalf("expected 1 report and no failures, got %d/%d", len(result.Reports), len(result.Failures))
	}
	if result.Reports[0].Inserted != 1 {
		t.Errorf("expected 1 inserted layer, got %d", result.Reports[0].Inserted)
	}
	if store.upserts[0].ServiceName != "cadastre" {
		t.Errorf("expected supplied name to win, got %q", store.upserts[0].ServiceName)
	}
	if len(fetcher.calls) != 1 {
		t.Errorf("expected a single fetch, got %d", len(fetcher.calls))
	}
}

func TestRegisterCanonicalizesURL(t *testing.T) {
	store := &mockStore{}
	fetcher := &mockFetcher{documents: map[string][]byte{
		"http://geo.example.com/wms": []byte(wmsCapDoc),
	}}
	svc := newIngestService(store, fetcher, IngestConfig{})

	// Query string and trailing slash are stripped before fetching.
	result, err := svc.Register(context.Background(), input.RegisterRequest{
		URLs:        []string{"http://geo.example.com/wms/?service=WMS&request=GetCapabilities"},
		ServiceType: domain.ServiceWMS,
	})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if result.Reports[0].ServiceURL != "http://geo.example.com/wms" {
		t.Errorf("expected canonical service url, got %q", result.Reports[0].ServiceURL)
	}
}

func TestRegisterEndpointDiscovery(t *testing.T) {
	store := &mockStore{}
	fetcher := &mockFetcher{documents: map[string][]byte{
		"http://maps.example.com/ows": []byte(wmsCapDoc),
	}}
	svc := newIngestService(store, fetcher, IngestConfig{EndpointDiscovery: true})

	result, err := svc.Register(context.Background(), input.RegisterRequest{
		URLs:        []string{"http://maps.example.com"},
		ServiceType: domain.ServiceWMS,
	})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	// The bare URL fails, the /ows probe answers, and the working endpoint
	// is what gets registered.
	if len(fetcher.calls) != 2 {
		t.Fatalf("expected 2 fetch attempts, got %d: %v", len(fetcher.calls), fetcher.calls)
	}
	if fetcher.calls[0] != "http://maps.example.com" || fetcher.calls[1] != "http://maps.example.com/ows" {
		t.Errorf("unexpected probe order: %v", fetcher.calls)
	}
	if result.Reports[0].ServiceURL != "http://maps.example.com/ows" {
		t.Errorf("expected working endpoint registered, got %q", result.Reports[0].ServiceURL)
	}
}

func TestRegisterDiscoveryDisabled(t *testing.T) {
	store := &mockStore{}
	fetcher := &mockFetcher{documents: map[string][]byte{
		"http://maps.example.com/ows": []byte(wmsCapDoc),
	}}
	svc := newIngestService(store, fetcher, IngestConfig{})

	_, err := svc.Register(context.Background(), input.RegisterRequest{
		URLs:        []string{"http://maps.example.com"},
		ServiceType: domain.ServiceWMS,
	})
	if err == nil {
		t.Fatal("expected registration to fail without discovery")
	}
	if len(fetcher.calls) != 1 {
		t.Errorf("expected a single fetch attempt, got %d", len(fetcher.calls))
	}
}

func TestRegisterNoURLs(t *testing.T) {
	svc := newIngestService(&mockStore{}, &mockFetcher{}, IngestConfig{})

	_, err := svc.Register(context.Background(), input.RegisterRequest{})
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if verr.Field != "urls" {
		t.Errorf("expected urls field, got %q", verr.Field)
	}
}

func TestRegisterRejectsUnknownType(t *testing.T) {
	svc := newIngestService(&mockStore{}, &mockFetcher{}, IngestConfig{})

	_, err := svc.Register(context.Background(), input.RegisterRequest{
		URLs:        []string{"http://geo.example.com/wms"},
		ServiceType: domain.ServiceType("WCS"),
	})
	if !errors.Is(err, domain.ErrInvalidServiceType) {
		t.Fatalf("expected invalid service type error, got %v", err)
	}
}

func TestRegisterInvalidURL(t *testing.T) {
	svc := newIngestService(&mockStore{}, &mockFetcher{}, IngestConfig{})

	_, err := svc.Register(context.Background(), input.RegisterRequest{
		URLs:        []string{"ftp://geo.example.com/wms"},
		ServiceType: domain.ServiceWMS,
	})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input error, got %v", err)
	}
}

func TestRegisterPartialFailure(t *testing.T) {
	store := &mockStore{}
	fetcher := &mockFetcher{documents: map[string][]byte{
		"http://up.example.com/wms": []byte(wmsCapDoc),
	}}
	svc := newIngestService(store, fetcher, IngestConfig{})

	result, err := svc.Register(context.Background(), input.RegisterRequest{
		URLs:        []string{"http://up.example.com/wms", "http://down.example.com/wms"},
		ServiceType: domain.ServiceWMS,
	})
	if err != nil {
		t.Fatalf("partial success must not error: %v", err)
	}
	if len(result.Reports) != 1 {
		t.Errorf("expected 1 report, got %d", len(result.Reports))
	}
	if len(result.Failures) != 1 {
		t.Fatalf("expected 1 failure, got %d", len(result.Failures))
	}
	if result.Failures[0].URL != "http://down.example.com/wms" {
		t.Errorf("unexpected failing url %q", result.Failures[0].URL)
	}
}

func TestRegisterAllUnreachable(t *testing.T) {
	svc := newIngestService(&mockStore{}, &mockFetcher{}, IngestConfig{})

	_, err := svc.Register(context.Background(), input.RegisterRequest{
		URLs:        []string{"http://down.example.com/wms"},
		ServiceType: domain.ServiceWMS,
	})
	var ferr *domain.FetchError
	if !errors.As(err, &ferr) {
		t.Fatalf("expected the fetch error to surface, got %v", err)
	}
	if ferr.Reason != domain.FetchUnreachable {
		t.Errorf("expected unreachable, got %s", ferr.Reason)
	}
}

func TestDeregister(t *testing.T) {
	store := &mockStore{}
	fetcher := &mockFetcher{documents: map[string][]byte{
		"http://geo.example.com/wms": []byte(wmsCapDoc),
	}}
	svc := newIngestService(store, fetcher, IngestConfig{})

	result, err := svc.Register(context.Background(), input.RegisterRequest{
		URLs:        []string{"http://geo.example.com/wms"},
		ServiceType: domain.ServiceWMS,
	})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	id := result.Reports[0].ResourceIDs[0]
	if err := svc.Deregister(context.Background(), id); err != nil {
		t.Fatalf("deregister failed: %v", err)
	}
	if len(store.deleted) != 1 || store.deleted[0] != id {
		t.Errorf("expected %s deleted, got %v", id, store.deleted)
	}

	if err := svc.Deregister(context.Background(), id); !errors.Is(err, domain.ErrLayerNotFound) {
		t.Errorf("expected not found on second delete, got %v", err)
	}

	var verr *domain.ValidationError
	if err := svc.Deregister(context.Background(), ""); !errors.As(err, &verr) {
		t.Errorf("expected validation error for empty id, got %v", err)
	}
}
