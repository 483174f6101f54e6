package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bryanwahyu/equity-ledger/internal/application/audits"
	"github.com/bryanwahyu/equity-ledger/internal/config"
	"github.com/bryanwahyu/equity-ledger/internal/domain/equity"
	"github.com/bryanwahyu/equity-ledger/internal/infra/db/migrations"
	"github.com/bryanwahyu/equity-ledger/internal/infra/httpserver"
)

var (
	configPath  string
	autoMigrate bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func defaultConfigPath() string {
	// path config.yaml
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		return v
	}
	return "config.yaml"
}

var rootCmd = &cobra.Command{
	Use:          "equity-ledger",
	Short:        "Equity event reconciliation and time-travel cap table service",
	SilenceUsage: true,
	RunE:         runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	ctx := context.Background()
	a, err := newApp(ctx, cfg, autoMigrate)
	if err != nil {
		return err
	}
	defer a.Close()

	opts := httpserver.Options{
		CORSOrigins:    cfg.Server.CORSOrigins,
		HealthCheckers: a.checkers,
		Logger:         a.logger,
	}
	opts.RateLimit.Capacity = cfg.Server.RateLimit.Capacity
	opts.RateLimit.RefillRate = cfg.Server.RateLimit.RefillRate
	router := httpserver.NewRouter(a.svc, opts)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("server listening", "addr", addr, "driver", cfg.Database.Driver, "matcher", cfg.Matcher.Mode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-stop:
	}
	a.logger.Info("shutting down server")

	ctx2, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx2); err != nil {
		a.logger.Error("shutdown error", "error", err)
	}
	// let running syntheses commit or fail cleanly
	router.Wait()
	return nil
}

var (
	bundlePath  string
	companyName string
)

// synthesize runs one audit offline from a JSON bundle: {"documents": [...]}.
var synthesizeCmd = &cobra.Command{
	Use:   "synthesize",
	Short: "Synthesize a ledger from a document bundle and print the result",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(bundlePath)
		if err != nil {
			return fmt.Errorf("reading bundle: %w", err)
		}
		var bundle struct {
			Documents []*equity.Document `json:"documents"`
		}
		if err := json.Unmarshal(data, &bundle); err != nil {
			return fmt.Errorf("decoding bundle: %w", err)
		}

		ctx := cmd.Context()
		a, err := newApp(ctx, cfg, autoMigrate)
		if err != nil {
			return err
		}
		defer a.Close()

		audit, err := a.svc.Create(ctx, audits.CreateAuditCommand{CompanyName: companyName})
		if err != nil {
			return err
		}
		res, err := a.svc.Synthesize(ctx, audit.ID, bundle.Documents)
		if err != nil {
			return err
		}
		captable, err := a.svc.CapTable(ctx, audit.ID, audits.LatestAsOf)
		if err != nil {
			return err
		}
		issues, err := a.svc.Issues(ctx, audit.ID)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"result":    res,
			"cap_table": captable,
			"issues":    issues,
		})
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDatabase(cmd.Context(), func(a *migrationTarget) error {
			if err := migrations.Up(a.db, a.set); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s schema is up to date\n", a.driver)
			return nil
		})
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check the schema version against this binary",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDatabase(cmd.Context(), func(a *migrationTarget) error {
			if err := migrations.Status(a.db, a.set); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s schema is at the latest version\n", a.driver)
			return nil
		})
	},
}

type migrationTarget struct {
	driver string
	db     *sql.DB
	set    migrations.Set
}

// withDatabase connects the configured SQL database without migrating it.
func withDatabase(ctx context.Context, fn func(*migrationTarget) error) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if cfg.Database.Driver == config.DriverMemory {
		return fmt.Errorf("driver %s has no schema to migrate", config.DriverMemory)
	}
	db, set, _, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(&migrationTarget{driver: cfg.Database.Driver, db: db, set: set})
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath(), "path to config.yaml (env CONFIG_PATH)")
	rootCmd.PersistentFlags().BoolVar(&autoMigrate, "auto-migrate", true, "apply pending migrations on start")

	synthesizeCmd.Flags().StringVar(&bundlePath, "bundle", "", "JSON file with {\"documents\": [...]}")
	synthesizeCmd.Flags().StringVar(&companyName, "company", "", "company name recorded on the audit")
	_ = synthesizeCmd.MarkFlagRequired("bundle")

	migrateCmd.AddCommand(migrateUpCmd, migrateStatusCmd)
	rootCmd.AddCommand(serveCmd, synthesizeCmd, migrateCmd)
}
