// Package app provides application initialization and wiring.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	httpAdapter "github.com/geoflux/stratum/internal/adapters/http"
	"github.com/geoflux/stratum/internal/adapters/metrics"
	"github.com/geoflux/stratum/internal/adapters/sqlite"
	"github.com/geoflux/stratum/internal/adapters/storage"
	tlsAdapter "github.com/geoflux/stratum/internal/adapters/tls"
	"github.com/geoflux/stratum/internal/adapters/upstream"
	"github.com/geoflux/stratum/internal/adapters/watcher"
	"github.com/geoflux/stratum/internal/application"
	"github.com/geoflux/stratum/internal/config"
	"github.com/geoflux/stratum/internal/domain"
	"github.com/geoflux/stratum/internal/ports/input"
	"github.com/geoflux/stratum/internal/ports/output"
)

// App holds all application components.
type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	Store         *sqlite.Store
	Artifacts     output.ArtifactStorage
	Ingest        *application.IngestService
	Catalog       *application.CatalogService
	Resolver      *application.ResolverService
	Executor      *application.ExecutorService
	Composer      *application.ComposerService
	Health        *application.HealthService
	Refresh       *application.RefreshService
	Janitor       *application.ArtifactJanitor
	HTTPServer    *httpAdapter.Server
	TLSServer     *tlsAdapter.Server
	Watcher       *watcher.Watcher
	Metrics       *metrics.Collector
	MetricsServer *metrics.Server
}

// New creates and initializes a new application.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	// Initialize metrics
	if cfg.Metrics.Enabled {
		app.Metrics = metrics.NewCollector("stratum")
		app.MetricsServer = metrics.NewServer(
			cfg.Metrics.Port,
			cfg.Metrics.Path,
			logger,
		)
	}

	var metricsCollector output.MetricsCollector
	if app.Metrics != nil {
		metricsCollector = app.Metrics
	} else {
		metricsCollector = &output.NoOpMetrics{}
	}

	// Open the layer registry
	store, err := sqlite.Open(ctx, cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening registry database: %w", err)
	}
	app.Store = store

	// Initialize artifact storage
	artifacts, err := initArtifacts(ctx, cfg.Artifacts)
	if err != nil {
		return nil, fmt.Errorf("initializing artifact storage: %w", err)
	}
	app.Artifacts = artifacts

	// Upstream adapters
	fetcher := upstream.NewFetcher(upstream.FetcherConfig{
		Timeout:          cfg.Fetch.Timeout,
		Retries:          cfg.Fetch.Retries,
		RetryBackoff:     cfg.Fetch.RetryBackoff,
		MaxDocumentBytes: cfg.Fetch.MaxDocumentBytes,
	})
	client := upstream.NewClient(upstream.ClientConfig{})

	// Application services
	app.Ingest = application.NewIngestService(store, fetcher, metricsCollector, logger, application.IngestConfig{
		EndpointDiscovery: cfg.Fetch.EndpointDiscovery,
	})
	app.Catalog = application.NewCatalogService(store, logger)
	app.Resolver = application.NewResolverService(store, metricsCollector, logger)
	app.Executor = application.NewExecutorService(client, artifacts, metricsCollector, logger)
	app.Composer = application.NewComposerService(logger)
	app.Health = application.NewHealthService(store, logger)

	if cfg.Refresh.Enabled {
		app.Refresh = application.NewRefreshService(app.Ingest, store, cfg.Refresh.Interval, logger)
	}
	app.Janitor = application.NewArtifactJanitor(artifacts, metricsCollector, cfg.Artifacts.TTL, logger)

	// Initialize HTTP server
	var metricsMW mux.MiddlewareFunc
	if app.Metrics != nil {
		metricsMW = app.Metrics.Middleware
	}
	app.HTTPServer = httpAdapter.NewServer(
		cfg.Server,
		httpAdapter.Services{
			Registration: app.Ingest,
			Catalog:      app.Catalog,
			Resolver:     app.Resolver,
			Preview:      app.Executor,
			Composites:   app.Composer,
			Health:       app.Health,
			Refresh:      app.Refresh,
		},
		metricsMW,
		logger,
	)

	// Initialize TLS server if enabled
	if cfg.TLS.Enabled {
		tlsServer, err := tlsAdapter.NewServer(
			tlsAdapter.Config{
				Enabled:      cfg.TLS.Enabled,
				Domains:      cfg.TLS.Domains,
				Email:        cfg.TLS.Email,
				CacheDir:     cfg.TLS.CacheDir,
				Staging:      cfg.TLS.Staging,
				ReadTimeout:  cfg.Server.ReadTimeout,
				WriteTimeout: cfg.Server.WriteTimeout,
				DNS: tlsAdapter.DNSConfig{
					SubscriptionID:    cfg.TLS.DNS.SubscriptionID,
					ResourceGroupName: cfg.TLS.DNS.ResourceGroupName,
					ClientID:          cfg.TLS.DNS.ClientID,
				},
			},
			app.HTTPServer.Router(),
			logger,
		)
		if err != nil {
			return nil, fmt.Errorf("initializing TLS: %w", err)
		}
		app.TLSServer = tlsServer
	}

	// Initialize manifest watcher
	if cfg.Manifest.Path != "" {
		w, err := watcher.New(
			watcher.Config{Path: cfg.Manifest.Path},
			app.handleManifestEvent,
			logger,
		)
		if err != nil {
			logger.Warn("failed to initialize manifest watcher", "error", err)
		} else {
			app.Watcher = w
		}
	}

	return app, nil
}

// Start starts all application components.
func (a *App) Start(ctx context.Context) error {
	// Register manifest services before serving traffic
	if a.Config.Manifest.Path != "" {
		if err := a.loadManifest(ctx); err != nil {
			a.Logger.Warn("failed to load manifest", "error", err)
		}
	}

	// Start manifest watcher
	if a.Watcher != nil {
		if err := a.Watcher.Start(ctx); err != nil {
			a.Logger.Warn("failed to start manifest watcher", "error", err)
		}
	}

	// Start background refresh and artifact cleanup
	if a.Refresh != nil {
		a.Refresh.Start(ctx)
	}
	a.Janitor.Start(ctx)

	// Start metrics server in background
	if a.MetricsServer != nil {
		go func() {
			if err := a.MetricsServer.Start(); err != nil && err != http.ErrServerClosed {
				a.Logger.Error("metrics server error", "error", err)
			}
		}()
	}

	// Start server
	if a.Config.TLS.Enabled && a.TLSServer != nil {
		return a.TLSServer.ListenAndServe(a.Config.Server.Address())
	}
	return a.HTTPServer.Start()
}

// Shutdown gracefully shuts down all components.
func (a *App) Shutdown(ctx context.Context) error {
	a.Logger.Info("shutting down application")

	// Stop manifest watcher
	if a.Watcher != nil {
		_ = a.Watcher.Stop()
	}

	// Stop background workers
	if a.Refresh != nil {
		a.Refresh.Stop()
	}
	a.Janitor.Stop()

	// Shutdown metrics server
	if a.MetricsServer != nil {
		if err := a.MetricsServer.Shutdown(ctx); err != nil {
			a.Logger.Error("metrics server shutdown error", "error", err)
		}
	}

	// Shutdown whichever listener is serving traffic
	if a.Config.TLS.Enabled && a.TLSServer != nil {
		if err := a.TLSServer.Shutdown(ctx); err != nil {
			a.Logger.Error("TLS server shutdown error", "error", err)
		}
	} else if err := a.HTTPServer.Shutdown(ctx); err != nil {
		a.Logger.Error("HTTP server shutdown error", "error", err)
	}

	// Close the registry
	if err := a.Store.Close(); err != nil {
		a.Logger.Error("registry close error", "error", err)
	}

	return nil
}

// handleManifestEvent re-reads the manifest after a change. A removed
// manifest keeps the current registrations; records only leave the registry
// through explicit deletion.
func (a *App) handleManifestEvent(ctx context.Context, event watcher.Event) error {
	if event.Operation == watcher.OpDelete {
		a.Logger.Warn("manifest removed, keeping current registrations", "path", event.Path)
		return nil
	}
	return a.loadManifest(ctx)
}

// loadManifest registers every manifest entry. Entries are registered
// one by one so a dead service does not block the rest.
func (a *App) loadManifest(ctx context.Context) error {
	manifest, err := config.LoadManifest(a.Config.Manifest.Path)
	if err != nil {
		return err
	}

	var failed int
	for _, entry := range manifest.Services {
		result, err := a.Ingest.Register(ctx, input.RegisterRequest{
			URLs:        []string{entry.URL},
			ServiceType: domain.ServiceType(strings.ToUpper(strings.TrimSpace(entry.Type))),
			ServiceName: entry.Name,
		})
		if err != nil {
			failed++
			a.Logger.Warn("manifest registration failed", "url", entry.URL, "error", err)
			continue
		}
		for _, report := range result.Reports {
			a.Logger.Info("manifest service registered",
				"url", report.ServiceURL,
				"type", report.ServiceType,
				"layers", report.Total(),
			)
		}
	}

	a.Logger.Info("manifest loaded",
		"path", a.Config.Manifest.Path,
		"services", len(manifest.Services),
		"failed", failed,
	)
	return nil
}

// initArtifacts initializes the configured artifact storage backend.
func initArtifacts(ctx context.Context, cfg config.ArtifactsConfig) (output.ArtifactStorage, error) {
	switch cfg.Backend {
	case "local":
		return storage.NewLocalStorage(cfg.LocalPath), nil

	case "s3":
		return storage.NewS3Storage(ctx, storage.S3Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Prefix:          cfg.S3.Prefix,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
		})

	case "azure":
		return storage.NewAzureStorage(storage.AzureConfig{
			Container:        cfg.Azure.Container,
			AccountName:      cfg.Azure.AccountName,
			AccountKey:       cfg.Azure.AccountKey,
			ConnectionString: cfg.Azure.ConnectionString,
			Prefix:           cfg.Azure.Prefix,
		})

	default:
		return nil, fmt.Errorf("unknown artifact backend: %s", cfg.Backend)
	}
}
