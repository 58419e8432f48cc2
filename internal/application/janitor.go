package application

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/geoflux/stratum/internal/ports/output"
)

// ArtifactJanitor deletes staged preview artifacts past their TTL. There is
// no artifact metadata table; ages come straight from the backend listing.
type ArtifactJanitor struct {
	artifacts output.ArtifactStorage
	metrics   output.MetricsCollector
	ttl       time.Duration
	interval  time.Duration
	logger    *slog.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewArtifactJanitor creates the janitor. Sweeps run at a quarter of the
// TTL, clamped between one minute and the TTL itself.
func NewArtifactJanitor(artifacts output.ArtifactStorage, metrics output.MetricsCollector, ttl time.Duration, logger *slog.Logger) *ArtifactJanitor {
	if metrics == nil {
		metrics = &output.NoOpMetrics{}
	}
	interval := ttl / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	if interval > ttl {
		interval = ttl
	}
	return &ArtifactJanitor{
		artifacts: artifacts,
		metrics:   metrics,
		ttl:       ttl,
		interval:  interval,
		logger:    logger,
		stopCh:    make(chan struct{}),
	}
}

// Start begins periodic sweeps.
func (j *ArtifactJanitor) Start(ctx context.Context) {
	j.logger.Info("starting artifact janitor", "ttl", j.ttl, "interval", j.interval)

	j.wg.Add(1)
	go j.run(ctx)
}

func (j *ArtifactJanitor) run(ctx context.Context) {
	defer j.wg.Done()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-j.stopCh:
			return
		case <-ticker.C:
			j.Sweep(ctx)
		}
	}
}

// Stop gracefully stops the janitor.
func (j *ArtifactJanitor) Stop() {
	close(j.stopCh)
	j.wg.Wait()
}

// Sweep deletes every artifact older than the TTL and returns how many went.
func (j *ArtifactJanitor) Sweep(ctx context.Context) int {
	objects, err := j.artifacts.List(ctx)
	if err != nil {
		j.logger.Warn("artifact listing failed", "error", err)
		return 0
	}

	cutoff := time.Now().Add(-j.ttl).Unix()
	removed := 0
	for _, obj := range objects {
		if obj.LastModified >= cutoff {
			continue
		}
		err := j.artifacts.Delete(ctx, obj.Key)
		j.metrics.IncStorageOperations("delete", err == nil)
		if err != nil {
			j.logger.Warn("artifact delete failed", "key", obj.Key, "error", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		j.logger.Info("expired artifacts purged", "removed", removed, "ttl", j.ttl)
	}
	return removed
}
