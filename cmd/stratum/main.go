// Package main provides the entry point for the Stratum layer registry.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/geoflux/stratum/internal/adapters/sqlite"
	"github.com/geoflux/stratum/internal/adapters/upstream"
	"github.com/geoflux/stratum/internal/app"
	"github.com/geoflux/stratum/internal/application"
	"github.com/geoflux/stratum/internal/config"
	"github.com/geoflux/stratum/internal/domain"
	"github.com/geoflux/stratum/internal/ports/input"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

var cfgFile string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "stratum",
	Short: "Stratum - OGC Capability Ingestion & Layer Resolution Engine",
	Long: `Stratum ingests WMS, WFS and WMTS capability documents into a searchable
layer registry and resolves layer references into ready-to-send GetMap,
GetFeature and GetTile requests.

Features:
  - Capability ingestion with protocol probing and endpoint discovery
  - Stable resource ids across re-registration
  - Request resolution with sensible protocol defaults
  - Preview execution with staged artifacts (local, AWS S3, Azure)
  - Composite views over layers from different services
  - Scheduled capability refresh and a service manifest with hot-reload
  - TLS with automatic certificate management
  - Prometheus metrics`,
	RunE: runServer,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("Stratum %s\n", version)
		fmt.Printf("  Commit:     %s\n", commit)
		fmt.Printf("  Build Date: %s\n", buildDate)
	},
}

var registerCmd = &cobra.Command{
	Use:   "register URL...",
	Short: "Register OGC services without starting the server",
	Long: `Register fetches the capability documents behind each URL and writes the
discovered layers into the registry database, then exits. Without --type
every protocol family is probed.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRegister,
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "json", "log format (json, text)")

	// Server flags
	rootCmd.Flags().String("host", "0.0.0.0", "server host")
	rootCmd.Flags().Int("port", 8080, "server port")
	rootCmd.Flags().Bool("tls", false, "enable TLS")
	rootCmd.Flags().StringSlice("tls-domains", nil, "TLS domains")
	rootCmd.Flags().String("tls-email", "", "TLS email for Let's Encrypt")

	// Registry flags
	rootCmd.Flags().String("db", "./stratum.db", "registry database path")
	rootCmd.Flags().String("manifest", "", "service manifest file (hot-reloaded)")

	// Artifact flags
	rootCmd.Flags().String("artifacts-backend", "local", "artifact backend (local, s3, azure)")
	rootCmd.Flags().String("artifacts-path", "./artifacts", "local artifact path")

	// CORS flags
	rootCmd.Flags().StringSlice("cors", nil, "allowed CORS origins (e.g., https://example.com,*.sub.domain.tld)")

	// Bind flags to viper
	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))
	_ = viper.BindPFlag("server.host", rootCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.port", rootCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("tls.enabled", rootCmd.Flags().Lookup("tls"))
	_ = viper.BindPFlag("tls.domains", rootCmd.Flags().Lookup("tls-domains"))
	_ = viper.BindPFlag("tls.email", rootCmd.Flags().Lookup("tls-email"))
	_ = viper.BindPFlag("database.path", rootCmd.Flags().Lookup("db"))
	_ = viper.BindPFlag("manifest.path", rootCmd.Flags().Lookup("manifest"))
	_ = viper.BindPFlag("artifacts.backend", rootCmd.Flags().Lookup("artifacts-backend"))
	_ = viper.BindPFlag("artifacts.local_path", rootCmd.Flags().Lookup("artifacts-path"))
	_ = viper.BindPFlag("server.cors.allowed_origins", rootCmd.Flags().Lookup("cors"))

	// Register flags
	registerCmd.Flags().String("type", "", "service type (WMS, WFS, WMTS); empty probes all")
	registerCmd.Flags().String("name", "", "service display name; empty derives from the URL")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(registerCmd)
}

func initConfig() {
	config.Defaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
}

func runServer(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	logger.Info("starting Stratum",
		"version", version,
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"database", cfg.Database.Path,
		"artifact_backend", cfg.Artifacts.Backend,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Initialize application
	engine, err := app.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}

	// Start server in background
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", "address", cfg.Server.Address())
		if err := engine.Start(ctx); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// Wait for shutdown signal or server error
	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-serverErr:
		logger.Error("server error", "error", err)
		cancel()
	case <-ctx.Done():
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	logger.Info("shutting down server")
	if err := engine.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		return err
	}

	logger.Info("server stopped")
	return nil
}

func runRegister(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	serviceType, _ := cmd.Flags().GetString("type")
	serviceName, _ := cmd.Flags().GetString("name")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := sqlite.Open(ctx, cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening registry database: %w", err)
	}
	defer func() { _ = store.Close() }()

	fetcher := upstream.NewFetcher(upstream.FetcherConfig{
		Timeout:          cfg.Fetch.Timeout,
		Retries:          cfg.Fetch.Retries,
		RetryBackoff:     cfg.Fetch.RetryBackoff,
		MaxDocumentBytes: cfg.Fetch.MaxDocumentBytes,
	})
	ingest := application.NewIngestService(store, fetcher, nil, logger, application.IngestConfig{
		EndpointDiscovery: cfg.Fetch.EndpointDiscovery,
	})

	result, err := ingest.Register(ctx, input.RegisterRequest{
		URLs:        args,
		ServiceType: domain.ServiceType(strings.ToUpper(strings.TrimSpace(serviceType))),
		ServiceName: serviceName,
	})
	if err != nil {
		return err
	}

	for _, report := range result.Reports {
		fmt.Printf("%s (%s): %d inserted, %d updated, %d unchanged\n",
			report.ServiceURL, report.ServiceType, report.Inserted, report.Updated, report.Unchanged)
	}
	for _, failure := range result.Failures {
		fmt.Fprintf(os.Stderr, "failed: %s (%s): %s\n", failure.URL, failure.ServiceType, failure.Reason)
	}

	return nil
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Value = slog.StringValue(time.Now().UTC().Format(time.RFC3339))
			}
			return a
		},
	}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
