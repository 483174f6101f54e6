package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/bryanwahyu/equity-ledger/internal/application"
	appai "github.com/bryanwahyu/equity-ledger/internal/application/ai"
	"github.com/bryanwahyu/equity-ledger/internal/application/audits"
	"github.com/bryanwahyu/equity-ledger/internal/application/reconcile"
	"github.com/bryanwahyu/equity-ledger/internal/config"
	"github.com/bryanwahyu/equity-ledger/internal/domain/equity"
	"github.com/bryanwahyu/equity-ledger/internal/infra/ai/openai"
	"github.com/bryanwahyu/equity-ledger/internal/infra/db/memory"
	"github.com/bryanwahyu/equity-ledger/internal/infra/db/migrations"
	mysqlp "github.com/bryanwahyu/equity-ledger/internal/infra/db/mysql"
	"github.com/bryanwahyu/equity-ledger/internal/infra/db/postgres"
	"github.com/bryanwahyu/equity-ledger/internal/infra/db/sqlite"
	minioStore "github.com/bryanwahyu/equity-ledger/internal/infra/storage"
	"github.com/bryanwahyu/equity-ledger/internal/middleware"
)

// app holds the wired process. The caller must defer Close.
type app struct {
	cfg      *config.Config
	logger   application.Logger
	db       *sql.DB // nil for the memory store
	set      migrations.Set
	store    equity.Store
	svc      *audits.Service
	checkers map[string]middleware.HealthChecker
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("config load error: %w", err)
	}
	return cfg, nil
}

// openDatabase connects the configured driver without touching the schema.
func openDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, migrations.Set, equity.Store, error) {
	var (
		db    *sql.DB
		set   migrations.Set
		store equity.Store
		err   error
	)
	switch cfg.Database.Driver {
	case config.DriverMemory:
		return nil, migrations.Set{}, memory.NewStore(), nil
	case config.DriverSQLite:
		db, err = sqlite.Connect(ctx, cfg.Database.Path)
		if err == nil {
			set, store = sqlite.Migrations, sqlite.NewStore(db)
		}
	case config.DriverMySQL:
		db, err = mysqlp.Connect(ctx, cfg.MySQLDSN())
		if err == nil {
			set, store = mysqlp.Migrations, mysqlp.NewStore(db)
		}
	case config.DriverPostgres:
		db, err = postgres.Connect(ctx, cfg.PostgresDSN())
		if err == nil {
			set, store = postgres.Migrations, postgres.NewStore(db)
		}
	default:
		err = fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
	if err != nil {
		return nil, migrations.Set{}, nil, fmt.Errorf("%s connect error: %w", cfg.Database.Driver, err)
	}
	return db, set, store, nil
}

func newApp(ctx context.Context, cfg *config.Config, autoMigrate bool) (*app, error) {
	logger := application.NewLogger(os.Stderr, cfg.Log.Level, "equity-ledger")

	db, set, store, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger, db: db, set: set, store: store, checkers: map[string]middleware.HealthChecker{}}

	if db != nil {
		if autoMigrate {
			if err := migrations.Up(db, set); err != nil {
				a.Close()
				return nil, err
			}
		}
		if err := migrations.Status(db, set); err != nil {
			a.Close()
			return nil, fmt.Errorf("schema check: %w (run `migrate up`)", err)
		}
		a.checkers["database"] = &middleware.DatabaseHealthChecker{DB: db}
	}

	text := &reconcile.TextMatcher{ProximityDays: cfg.Matcher.ProximityDays}
	var matcher equity.ApprovalMatcher = text
	if cfg.Matcher.Mode == config.MatcherAI {
		m := appai.NewMatcher(openai.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Model), text, logger)
		m.BatchSize = cfg.Matcher.BatchSize
		matcher = m
	}

	var archive equity.Archiver
	if cfg.Minio.Enabled {
		objects, err := minioStore.New(ctx,
			cfg.Minio.Endpoint,
			cfg.Minio.Region,
			cfg.Minio.BucketName,
			cfg.Minio.AccessKey,
			cfg.Minio.SecretKey,
			cfg.Minio.UseSSL,
		)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("minio init error: %w", err)
		}
		archive = objects
		a.checkers["object_store"] = middleware.HealthCheckerFunc(objects.Ping)
		if len(cfg.Minio.AgeRecipients) > 0 {
			sealed, err := minioStore.NewSealedArchiver(objects, cfg.Minio.AgeRecipients...)
			if err != nil {
				a.Close()
				return nil, fmt.Errorf("age recipients: %w", err)
			}
			archive = sealed
		}
	}

	a.svc = &audits.Service{
		Store:      store,
		Matcher:    matcher,
		Archive:    archive,
		Normalizer: &reconcile.Normalizer{Logger: logger},
		Clock:      application.SystemClock{},
		IDs:        application.UUIDGenerator{},
		Logger:     logger,
	}
	return a, nil
}

func (a *app) Close() {
	if a.db != nil {
		a.db.Close()
	}
}
