package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/geoflux/stratum/internal/domain"
)

func newRefreshFixture(docs map[string][]byte, services []domain.ServiceRegistration) (*RefreshService, *mockStore) {
	store := &mockStore{services: services}
	fetcher := &mockFetcher{documents: docs}
	ingest := newIngestService(store, fetcher, IngestConfig{})
	return NewRefreshService(ingest, store, time.Hour, testLogger()), store
}

func TestRefreshReingestsEveryScope(t *testing.T) {
	services := []domain.ServiceRegistration{
		{ServiceURL: "http://geo.example.com/wms", ServiceType: domain.ServiceWMS, ServiceName: "example"},
		{ServiceURL: "http://down.example.com/wms", ServiceType: domain.ServiceWMS, ServiceName: "down"},
	}
	docs := map[string][]byte{
		"http://geo.example.com/wms": []byte(wmsCapDoc),
	}
	svc, store := newRefreshFixture(docs, services)

	result, err := svc.TriggerRefresh(context.Background())
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if result.ServicesRefreshed != 1 {
		t.Errorf("expected 1 refreshed scope, got %d", result.ServicesRefreshed)
	}
	if result.ServicesFailed != 1 {
		t.Errorf("expected 1 failed scope, got %d", result.ServicesFailed)
	}
	if result.LayersInserted != 2 {
		t.Errorf("expected 2 layers from the capability document, got %d", result.LayersInserted)
	}
	if len(store.upserts) != 1 || store.upserts[0].ServiceName != "example" {
		t.Errorf("expected one upsert keeping the stored name, got %+v", store.upserts)
	}
}

func TestRefreshKeepsStoredEndpoint(t *testing.T) {
	// The stored URL answered at registration time, so refresh must not
	// probe well-known suffixes again.
	services := []domain.ServiceRegistration{
		{ServiceURL: "http://maps.example.com/ows", ServiceType: domain.ServiceWMS, ServiceName: "maps"},
	}
	docs := map[string][]byte{
		"http://maps.example.com/ows": []byte(wmsCapDoc),
	}
	store := &mockStore{services: services}
	fetcher := &mockFetcher{documents: docs}
	ingest := newIngestService(store, fetcher, IngestConfig{EndpointDiscovery: true})
	svc := NewRefreshService(ingest, store, time.Hour, testLogger())

	if _, err := svc.TriggerRefresh(context.Background()); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if len(fetcher.calls) != 1 || fetcher.calls[0] != "http://maps.example.com/ows" {
		t.Errorf("expected a single fetch of the stored endpoint, got %v", fetcher.calls)
	}
}

func TestRefreshRateLimiting(t *testing.T) {
	svc, _ := newRefreshFixture(nil, nil)

	if _, err := svc.TriggerRefresh(context.Background()); err != nil {
		t.Fatalf("first trigger should succeed, got %v", err)
	}
	if _, err := svc.TriggerRefresh(context.Background()); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestRefreshStartStop(t *testing.T) {
	store := &mockStore{}
	ingest := newIngestService(store, &mockFetcher{}, IngestConfig{})
	svc := NewRefreshService(ingest, store, 50*time.Millisecond, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc.Start(ctx)
	time.Sleep(120 * time.Millisecond)
	svc.Stop()
	// Should return without hanging.
}

func TestRefreshInterval(t *testing.T) {
	store := &mockStore{}
	ingest := newIngestService(store, &mockFetcher{}, IngestConfig{})
	svc := NewRefreshService(ingest, store, 2*time.Hour, testLogger())

	if svc.Interval() != 2*time.Hour {
		t.Errorf("expected 2h interval, got %v", svc.Interval())
	}
}
