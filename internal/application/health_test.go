package application

import (
	"context"
	"fmt"
	"testing"

	"github.com/geoflux/stratum/internal/domain"
)

func TestHealthReady(t *testing.T) {
	store := &mockStore{records: []domain.LayerRecord{wmsRoadsRecord()}}
	store.services = []domain.ServiceRegistration{{ServiceURL: "http://geo.example.com/wms", ServiceType: domain.ServiceWMS}}
	svc := NewHealthService(store, testLogger())

	ctx := context.Background()
	if !svc.IsHealthy(ctx) {
		t.Error("expected healthy")
	}
	if !svc.IsReady(ctx) {
		t.Error("expected ready")
	}

	details := svc.GetHealthDetails(ctx)
	if !details.Ready || !details.Healthy {
		t.Errorf("unexpected details %+v", details)
	}
	if details.LayersRegistered != 1 {
		t.Errorf("expected 1 layer, got %d", details.LayersRegistered)
	}
	if details.ServicesRegistered != 1 {
		t.Errorf("expected 1 service, got %d", details.ServicesRegistered)
	}
	if details.Components["database"] != "ok" {
		t.Errorf("expected database ok, got %q", details.Components["database"])
	}
}

func TestHealthDatabaseDown(t *testing.T) {
	store := &mockStore{pingErr: fmt.Errorf("database locked")}
	svc := NewHealthService(store, testLogger())

	ctx := context.Background()
	if svc.IsReady(ctx) {
		t.Error("expected not ready when the database does not answer")
	}

	details := svc.GetHealthDetails(ctx)
	if details.Ready {
		t.Error("details must reflect readiness failure")
	}
	if details.Components["database"] != "unavailable" {
		t.Errorf("expected database unavailable, got %q", details.Components["database"])
	}
}
