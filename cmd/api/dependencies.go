package api

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/FACorreiaa/smart-import/internal/domain/import/antivirus"
	"github.com/FACorreiaa/smart-import/internal/domain/import/detector"
	importhandler "github.com/FACorreiaa/smart-import/internal/domain/import/handler"
	"github.com/FACorreiaa/smart-import/internal/domain/import/importer"
	importrepo "github.com/FACorreiaa/smart-import/internal/domain/import/repository"
	importservice "github.com/FACorreiaa/smart-import/internal/domain/import/service"
	"github.com/FACorreiaa/smart-import/internal/domain/import/session"

	"github.com/FACorreiaa/smart-import/pkg/config"
	"github.com/FACorreiaa/smart-import/pkg/cron"
	"github.com/FACorreiaa/smart-import/pkg/db"
	"github.com/FACorreiaa/smart-import/pkg/interceptors"
	"github.com/FACorreiaa/smart-import/pkg/metrics"
)

// Dependencies holds all application dependencies
type Dependencies struct {
	Config *config.Config
	DB     *db.DB
	Logger *slog.Logger

	// Repositories
	Ledger importrepo.Ledger

	// Services
	Catalog       *detector.Catalog
	Sessions      *session.Store
	Guard         *antivirus.Guard
	Registry      *prometheus.Registry
	Metrics       *metrics.Metrics
	ImportService *importservice.ImportService
	TokenManager  *interceptors.TokenManager
	RateLimiter   *interceptors.RateLimiter
	Scheduler     *cron.Scheduler

	// Handlers
	ImportHandler *importhandler.ImportHandler
}

// InitDependencies initializes all application dependencies
func InitDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to init database: %w", err)
	}

	if err := deps.initRepositories(); err != nil {
		return nil, fmt.Errorf("failed to init repositories: %w", err)
	}

	if err := deps.initServices(); err != nil {
		return nil, fmt.Errorf("failed to init services: %w", err)
	}

	if err := deps.initHandlers(); err != nil {
		return nil, fmt.Errorf("failed to init handlers: %w", err)
	}

	logger.Info("all dependencies initialized successfully")

	return deps, nil
}

// initDatabase initializes the database connection and runs migrations.
// The memory driver skips it entirely.
func (d *Dependencies) initDatabase() error {
	if d.Config.Database.Driver == config.DriverMemory {
		d.Logger.Warn("using in-memory ledger, imported transactions will not survive a restart")
		return nil
	}

	database, err := db.New(db.Config{
		DSN:             d.Config.Database.DSN(),
		MaxConns:        25,
		MinConns:        5,
		MaxConnLifetime: 5 * time.Minute,
		MaxConnIdleTime: 10 * time.Minute,
	}, d.Logger)
	if err != nil {
		return err
	}

	d.DB = database

	if err := d.DB.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	d.Logger.Info("database connected and migrations completed successfully")
	return nil
}

// initRepositories initializes all repository layer dependencies
func (d *Dependencies) initRepositories() error {
	if d.DB == nil {
		d.Ledger = importrepo.NewMemoryLedger()
	} else {
		d.Ledger = importrepo.NewPostgresLedger(d.DB.Pool)
	}

	d.Logger.Info("repositories initialized", slog.String("driver", d.Config.Database.Driver))
	return nil
}

// initServices initializes all service layer dependencies
func (d *Dependencies) initServices() error {
	catalog, err := detector.LoadCatalog()
	if err != nil {
		return fmt.Errorf("failed to load detection catalog: %w", err)
	}
	d.Catalog = catalog

	guard, err := newGuard(d.Config.Antivirus, d.Logger)
	if err != nil {
		return err
	}
	d.Guard = guard

	if d.Config.Observability.MetricsEnabled {
		d.Registry = metrics.NewRegistry()
		d.Metrics = metrics.New(d.Registry)
	}
	d.Sessions = session.NewStore(d.Config.Import.SessionTTL, d.Logger,
		session.WithActiveGauge(d.Metrics.SessionsActive),
	)

	imp := importer.New(d.Ledger, d.Logger,
		importer.WithBatchSize(d.Config.Import.BatchSize),
		importer.WithBatchTimeout(d.Config.Import.BatchTimeout),
		importer.WithBatchObserver(d.Metrics.Batch),
	)

	d.ImportService = importservice.NewImportService(d.Catalog, d.Sessions, d.Ledger, d.Guard, d.Logger,
		importservice.WithMaxUploadBytes(d.Config.Import.MaxUploadBytes),
		importservice.WithMaxRows(d.Config.Import.MaxRows),
		importservice.WithPreviewRows(d.Config.Import.PreviewRows),
		importservice.WithImporter(imp),
		importservice.WithMetrics(d.Metrics),
	)

	d.TokenManager = interceptors.NewTokenManager(d.Config.Auth.JWTSecret, d.Config.Auth.Issuer)
	d.RateLimiter = interceptors.NewRateLimiter(float64(d.Config.Server.RateLimitPerSecond), d.Config.Server.RateLimitBurst)
	d.Scheduler = cron.NewScheduler(d.Sessions, d.Metrics, d.Logger).WithRateLimiter(d.RateLimiter)

	d.Logger.Info("services initialized")
	return nil
}

// newGuard builds the upload scanner. Running without ANTIVIRUS_ADDR needs
// ANTIVIRUS_POLICY=disabled or fail_open.
func newGuard(cfg config.AntivirusConfig, logger *slog.Logger) (*antivirus.Guard, error) {
	policy, err := antivirus.ParsePolicy(cfg.Policy)
	if err != nil {
		return nil, err
	}

	var scanner antivirus.Scanner
	switch {
	case policy == antivirus.PolicyDisabled:
		logger.Warn("antivirus disabled by ANTIVIRUS_POLICY, uploads will not be scanned")
	case cfg.Addr != "":
		scanner = antivirus.NewClamdScanner(cfg.Addr, cfg.Timeout)
	case policy == antivirus.PolicyFailClosed:
		return nil, errors.New("ANTIVIRUS_ADDR is required when ANTIVIRUS_POLICY is fail_closed")
	default:
		logger.Warn("ANTIVIRUS_ADDR not set, uploads will be accepted unscanned", slog.String("policy", string(policy)))
	}

	return antivirus.NewGuard(scanner, policy, logger), nil
}

// initHandlers initializes all handler dependencies
func (d *Dependencies) initHandlers() error {
	d.ImportHandler = importhandler.NewImportHandler(d.ImportService, int64(d.Config.Import.MaxUploadBytes), d.Logger)

	d.Logger.Info("handlers initialized")
	return nil
}

// Cleanup closes all resources
func (d *Dependencies) Cleanup() {
	if d.DB != nil {
		d.DB.Close()
	}
	d.Logger.Info("cleanup completed")
}
