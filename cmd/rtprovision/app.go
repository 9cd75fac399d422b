package main

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/ericfisherdev/rtprovision/internal/adapter/driven/browser"
	"github.com/ericfisherdev/rtprovision/internal/adapter/driven/redtrack"
	sqliteadapter "github.com/ericfisherdev/rtprovision/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/rtprovision/internal/application"
	"github.com/ericfisherdev/rtprovision/internal/config"
	"github.com/ericfisherdev/rtprovision/internal/monitoring"
)

// app holds the wired services for one process.
type app struct {
	db           *sqliteadapter.DB
	registry     *prometheus.Registry
	creds        *application.CredentialService
	provisioning *application.ProvisioningService
}

// newApp opens the database, runs migrations and wires every adapter.
// The caller must call close.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	// 1. Open database (dual reader/writer with WAL mode).
	db, err := sqliteadapter.NewDB(ctx, cfg.DBPath)
	if err != nil {
		return nil, err
	}

	// 2. Run migrations on writer connection.
	version, err := sqliteadapter.RunMigrations(db.Writer)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	logger.Debug("migrations complete", "path", db.Path(), "schema_version", version)

	if cfg.SecretKey == nil {
		logger.Warn("RTPROVISION_SECRET_KEY not set, credentials cannot be stored or read")
	}
	if !cfg.HasAPIKey() {
		logger.Warn("RTPROVISION_API_KEY not set, domain lookups will be rejected by the platform")
	}

	// 3. Metrics.
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := monitoring.NewMetrics(registry)

	// 4. Platform adapters share one limiter.
	limiter := redtrack.NewLimiter(cfg.RateLimitRPS)
	client, err := redtrack.NewClient(cfg.APIBaseURL, cfg.APIKey, cfg.TrackingPrefix, cfg.ReadTimeout, limiter, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	userAgent := cfg.BrowserUserAgent
	if userAgent == "" {
		userAgent = browser.DefaultUserAgent
	}
	direct := redtrack.NewDirectWriter(cfg.AppAPIURL, cfg.AppOrigin, userAgent, cfg.DirectTimeout, limiter, logger)
	automated := browser.NewWriter(browser.Options{
		AppOrigin: cfg.AppOrigin,
		AppAPIURL: cfg.AppAPIURL,
		Headless:  cfg.BrowserHeadless,
		UserAgent: userAgent,
		Timeout:   cfg.BrowserTimeout,
	}, logger)

	// 5. Services.
	creds := application.NewCredentialService(sqliteadapter.NewCredentialRepo(db, cfg.SecretKey), nil, logger)
	resolver := application.NewDomainResolver(client, cfg.TrackingPrefix, cfg.MaxResolvePages, metrics, logger)
	executor := application.NewDualChannelExecutor(creds, direct, automated, metrics, logger)
	batch := application.NewBatchCoordinator(cfg.BatchSize, metrics, logger)
	provisioning := application.NewProvisioningService(resolver, executor, client, batch, cfg.TrackingPrefix, logger)

	return &app{
		db:           db,
		registry:     registry,
		creds:        creds,
		provisioning: provisioning,
	}, nil
}

func (a *app) close() {
	if err := a.db.Close(); err != nil {
		slog.Error("error closing database", "error", err)
	}
}
