package application

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/geoflux/stratum/internal/domain"
	"github.com/geoflux/stratum/internal/ports/output"
)

// mockStore implements output.LayerStore for testing. Records live in a
// slice so tests control ordering exactly.
type mockStore struct {
	records   []domain.LayerRecord
	upserts   []domain.ServiceRegistration
	deleted   []string
	services  []domain.ServiceRegistration
	upsertErr error
	pingErr   error
}

func (m *mockStore) UpsertBatch(_ context.Context, reg domain.ServiceRegistration, descriptors []domain.LayerDescriptor) (*domain.RegistrationReport, error) {
	if m.upsertErr != nil {
		return nil, m.upsertErr
	}
	m.upserts = append(m.upserts, reg)
	report := &domain.RegistrationReport{
		ServiceURL:  reg.ServiceURL,
		ServiceType: reg.ServiceType,
		ServiceName: reg.ServiceName,
	}
	for _, d := range descriptors {
		record := domain.LayerRecord{
			ResourceID:  fmt.Sprintf("res-%d", len(m.records)+1),
			ServiceName: reg.ServiceName,
			ServiceURL:  reg.ServiceURL,
			ServiceType: reg.ServiceType,
			LayerName:   d.Name,
			CreatedAt:   time.Now(),
			UpdatedAt:   time.Now(),
		}
		record.Apply(d)
		m.records = append(m.records, record)
		report.Inserted++
		report.ResourceIDs = append(report.ResourceIDs, record.ResourceID)
	}
	return report, nil
}

func (m *mockStore) Get(_ context.Context, resourceID string) (*domain.LayerRecord, error) {
	for i := range m.records {
		if m.records[i].ResourceID == resourceID {
			record := m.records[i]
			return &record, nil
		}
	}
	return nil, domain.ErrLayerNotFound
}

func (m *mockStore) FindByName(_ context.Context, name string, typeHint domain.ServiceType) ([]domain.LayerRecord, error) {
	var matches []domain.LayerRecord
	for _, record := range m.records {
		if !strings.EqualFold(record.LayerName, name) {
			continue
		}
		if typeHint != "" && record.ServiceType != typeHint {
			continue
		}
		matches = append(matches, record)
	}
	return matches, nil
}

func (m *mockStore) List(_ context.Context, filter domain.ListFilter) ([]domain.LayerRecord, error) {
	filter.Normalize()
	var out []domain.LayerRecord
	for _, record := range m.records {
		if filter.ServiceType != "" && record.ServiceType != filter.ServiceType {
			continue
		}
		out = append(out, record)
	}
	if len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *mockStore) Delete(_ context.Context, resourceID string) error {
	for i := range m.records {
		if m.records[i].ResourceID == resourceID {
			m.records = append(m.records[:i], m.records[i+1:]...)
			m.deleted = append(m.deleted, resourceID)
			return nil
		}
	}
	return domain.ErrLayerNotFound
}

func (m *mockStore) ListServices(_ context.Context) ([]domain.ServiceRegistration, error) {
	return m.services, nil
}

func (m *mockStore) Stats(_ context.Context) (*domain.RegistryStats, error) {
	return &domain.RegistryStats{
		TotalLayers:   len(m.records),
		ServiceCount:  len(m.services),
		ByServiceType: map[domain.ServiceType]int{},
		ByServiceName: map[string]int{},
	}, nil
}

func (m *mockStore) Ping(_ context.Context) error { return m.pingErr }

func (m *mockStore) Close() error { return nil }

// mockFetcher implements output.CapabilityFetcher for testing. Documents are
// keyed by the exact URL the fetcher is asked for.
type mockFetcher struct {
	documents map[string][]byte
	calls     []string
}

func (m *mockFetcher) Fetch(_ context.Context, serviceURL string, serviceType domain.ServiceType) ([]byte, error) {
	m.calls = append(m.calls, serviceURL)
	if doc, ok := m.documents[serviceURL]; ok {
		return doc, nil
	}
	return nil, &domain.FetchError{Reason: domain.FetchUnreachable, URL: serviceURL}
}

// mockClient implements output.RequestClient for testing.
type mockClient struct {
	response *output.UpstreamResponse
	err      error
	lastURL  string
}

func (m *mockClient) Do(_ context.Context, requestURL string) (*output.UpstreamResponse, error) {
	m.lastURL = requestURL
	if m.err != nil {
		return nil, m.err
	}
	return m.response, nil
}

// mockArtifacts implements output.ArtifactStorage for testing.
type mockArtifacts struct {
	objects map[string][]byte
	types   map[string]string
	stamps  map[string]int64
	putErr  error
}

func newMockArtifacts() *mockArtifacts {
	return &mockArtifacts{
		objects: map[string][]byte{},
		types:   map[string]string{},
		stamps:  map[string]int64{},
	}
}

func (m *mockArtifacts) Put(_ context.Context, key, contentType string, body io.Reader) (int64, error) {
	if m.putErr != nil {
		return 0, m.putErr
	}
	payload, err := io.ReadAll(body)
	if err != nil {
		return 0, err
	}
	m.objects[key] = payload
	m.types[key] = contentType
	m.stamps[key] = time.Now().Unix()
	return int64(len(payload)), nil
}

func (m *mockArtifacts) GetReader(_ context.Context, key string) (io.ReadCloser, string, error) {
	payload, ok := m.objects[key]
	if !ok {
		return nil, "", domain.ErrArtifactNotFound
	}
	return io.NopCloser(bytes.NewReader(payload)), m.types[key], nil
}

func (m *mockArtifacts) Exists(_ context.Context, key string) (bool, error) {
	_, ok := m.objects[key]
	return ok, nil
}

func (m *mockArtifacts) List(_ context.Context) ([]output.StorageObject, error) {
	var objects []output.StorageObject
	for key, payload := range m.objects {
		objects = append(objects, output.StorageObject{
			Key:          key,
			Size:         int64(len(payload)),
			LastModified: m.stamps[key],
		})
	}
	return objects, nil
}

func (m *mockArtifacts) Delete(_ context.Context, key string) error {
	delete(m.objects, key)
	delete(m.types, key)
	delete(m.stamps, key)
	return nil
}
