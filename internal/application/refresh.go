package application

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/geoflux/stratum/internal/ports/output"
)

// ErrRateLimited is returned when a manual refresh hits the trigger cooldown.
var ErrRateLimited = errors.New("rate limit exceeded")

// refreshCooldown spaces manual refresh triggers, roughly two per minute.
const refreshCooldown = 30 * time.Second

// RefreshResult summarizes one pass over the registered service scopes.
type RefreshResult struct {
	ServicesRefreshed int       `json:"services_refreshed"`
	ServicesFailed    int       `json:"services_failed"`
	LayersInserted    int       `json:"layers_inserted"`
	LayersUpdated     int       `json:"layers_updated"`
	LayersUnchanged   int       `json:"layers_unchanged"`
	RefreshedAt       time.Time `json:"refreshed_at"`
	NextScheduledAt   time.Time `json:"next_scheduled_at,omitempty"`
}

// RefreshService re-ingests every registered service scope on a schedule so
// the registry tracks upstream capability changes. Layers withdrawn upstream
// stay registered; only explicit deregistration removes records.
type RefreshService struct {
	ingest   *IngestService
	store    output.LayerStore
	interval time.Duration
	logger   *slog.Logger

	// Lifecycle management
	stopCh chan struct{}
	wg     sync.WaitGroup

	// Cooldown between manual triggers
	lastTrigger  time.Time
	triggerMutex sync.Mutex

	// Prevents overlapping refresh passes
	refreshOpMutex sync.Mutex

	// Next scheduled pass, for reporting
	nextRefresh time.Time
	nextMu      sync.RWMutex
}

// NewRefreshService creates the refresh scheduler.
func NewRefreshService(ingest *IngestService, store output.LayerStore, interval time.Duration, logger *slog.Logger) *RefreshService {
	return &RefreshService{
		ingest:   ingest,
		store:    store,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
		// Start past the cooldown so the first manual trigger goes through
		lastTrigger: time.Now().Add(-refreshCooldown - time.Second),
	}
}

// Start begins the periodic refresh scheduler.
func (s *RefreshService) Start(ctx context.Context) {
	s.logger.Info("starting refresh service", "interval", s.interval)

	s.wg.Add(1)
	go s.run(ctx)
}

// run is the scheduler loop.
func (s *RefreshService) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.setNextRefresh(time.Now().Add(s.interval))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("refresh service stopped: context canceled")
			return
		case <-s.stopCh:
			s.logger.Info("refresh service stopped")
			return
		case <-ticker.C:
			s.logger.Debug("scheduled refresh triggered")
			if _, err := s.refresh(ctx); err != nil {
				s.logger.Error("refresh failed", "error", err)
			}
			s.setNextRefresh(time.Now().Add(s.interval))
		}
	}
}

// Stop gracefully stops the refresh service.
func (s *RefreshService) Stop() {
	s.logger.Info("stopping refresh service")
	close(s.stopCh)
	s.wg.Wait()
}

// TriggerRefresh runs a refresh pass on demand. Manual triggers share a
// cooldown so a misbehaving client cannot hammer the upstream services.
func (s *RefreshService) TriggerRefresh(ctx context.Context) (RefreshResult, error) {
	s.triggerMutex.Lock()
	defer s.triggerMutex.Unlock()

	if time.Since(s.lastTrigger) < refreshCooldown {
		return RefreshResult{}, ErrRateLimited
	}
	s.lastTrigger = time.Now()

	return s.refresh(ctx)
}

// refresh re-ingests each registered scope from its stored endpoint.
// Endpoint discovery is skipped: the stored URL already answered once.
// Scopes that fail keep their existing records.
func (s *RefreshService) refresh(ctx context.Context) (RefreshResult, error) {
	s.refreshOpMutex.Lock()
	defer s.refreshOpMutex.Unlock()

	services, err := s.store.ListServices(ctx)
	if err != nil {
		return RefreshResult{}, err
	}

	result := RefreshResult{
		RefreshedAt:     time.Now(),
		NextScheduledAt: s.getNextRefresh(),
	}
	for _, svc := range services {
		report, err := s.ingest.ingestScope(ctx, svc.ServiceURL, svc.ServiceType, svc.ServiceName, false)
		if err != nil {
			result.ServicesFailed++
			s.logger.Warn("scope refresh failed", "url", svc.ServiceURL, "type", svc.ServiceType, "error", err)
			continue
		}
		result.ServicesRefreshed++
		result.LayersInserted += report.Inserted
		result.LayersUpdated += report.Updated
		result.LayersUnchanged += report.Unchanged
	}

	s.ingest.refreshGauges(ctx)
	s.logger.Info("refresh completed",
		"refreshed", result.ServicesRefreshed,
		"failed", result.ServicesFailed,
		"inserted", result.LayersInserted,
		"updated", result.LayersUpdated)
	return result, nil
}

// setNextRefresh updates the next scheduled pass time.
func (s *RefreshService) setNextRefresh(t time.Time) {
	s.nextMu.Lock()
	defer s.nextMu.Unlock()
	s.nextRefresh = t
}

// getNextRefresh returns the next scheduled pass time.
func (s *RefreshService) getNextRefresh() time.Time {
	s.nextMu.RLock()
	defer s.nextMu.RUnlock()
	return s.nextRefresh
}

// Interval returns the scheduled refresh interval.
func (s *RefreshService) Interval() time.Duration {
	return s.interval
}
