// Document Repository — versioned document storage with department-scoped access
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/YoussefKhaledS/Document-Repository/internal/access"
	docapi "github.com/YoussefKhaledS/Document-Repository/internal/api"
	"github.com/YoussefKhaledS/Document-Repository/internal/api/handler"
	"github.com/YoussefKhaledS/Document-Repository/internal/config"
	"github.com/YoussefKhaledS/Document-Repository/internal/db"
	"github.com/YoussefKhaledS/Document-Repository/internal/directory"
	"github.com/YoussefKhaledS/Document-Repository/internal/health"
	"github.com/YoussefKhaledS/Document-Repository/internal/ledger"
	"github.com/YoussefKhaledS/Document-Repository/internal/observability"
	"github.com/YoussefKhaledS/Document-Repository/internal/query"
	"github.com/YoussefKhaledS/Document-Repository/internal/seed"
	"github.com/YoussefKhaledS/Document-Repository/internal/storage"
	"github.com/YoussefKhaledS/Document-Repository/internal/version"
	"github.com/YoussefKhaledS/Document-Repository/internal/worker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Observability -------------------------------------------------------
	obs, log, err := observability.New(ctx, &observability.Config{
		ServiceName:    "docrepo",
		ServiceVersion: version.Version,
		LogLevel:       cfg.Log.Level,
		LogFormat:      cfg.Log.Format,
		OTLPEndpoint:   cfg.OTel.OTLPEndpoint,
	})
	if err != nil {
		return fmt.Errorf("init observability: %w", err)
	}
	defer obs.Shutdown(context.Background())
	slog.SetDefault(log)
	log.Info("starting docrepo", "version", version.Version, "commit", version.Commit, "db_driver", cfg.DB.Driver)

	// --- Database ------------------------------------------------------------
	// db.New opens the connection, runs migrations (AutoMigrate for SQLite,
	// golang-migrate for Postgres), and returns the GORM handle plus an
	// optional pgxpool (non-nil only for postgres, used by River).
	gormDB, pool, err := db.New(ctx, &cfg.DB)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	if pool != nil {
		defer pool.Close()
	}
	log.Info("database ready", "driver", cfg.DB.Driver)

	// --- Seed ----------------------------------------------------------------
	if err := seed.Ensure(ctx, gormDB, seed.AdminOptions{
		Email:    cfg.App.SeedAdminEmail,
		Password: cfg.App.SeedAdminPassword,
	}, log); err != nil {
		return fmt.Errorf("seed: %w", err)
	}

	// --- File store ----------------------------------------------------------
	var store storage.Store
	switch cfg.Storage.Driver {
	case "minio":
		store, err = storage.NewMinio(ctx, storage.MinioOptions{
			Endpoint:  cfg.Storage.MinioEndpoint,
			Bucket:    cfg.Storage.MinioBucket,
			AccessKey: cfg.Storage.MinioAccessKey,
			SecretKey: cfg.Storage.MinioSecretKey,
			UseSSL:    cfg.Storage.MinioUseSSL,
		})
	default:
		store, err = storage.NewDisk(cfg.Storage.Dir)
	}
	if err != nil {
		return fmt.Errorf("open file store: %w", err)
	}
	log.Info("file store ready", "driver", cfg.Storage.Driver)

	// --- Domain services -----------------------------------------------------
	dir := directory.New(gormDB)
	acc := access.New(gormDB)
	led := ledger.New(gormDB, store, dir, cfg.Upload, log)
	eng := query.New(gormDB, store, acc)

	// --- Worker queue --------------------------------------------------------
	// River migrations only run when Postgres is available.
	if pool != nil {
		if err := worker.MigrateRiver(ctx, pool); err != nil {
			return fmt.Errorf("river migrations: %w", err)
		}
		log.Info("river migrations applied")
	}

	// Grace = one sweep period, so in-flight uploads are never reaped.
	sweeper := worker.NewSweeper(gormDB, store, cfg.Worker.SweepPeriod, log)
	wq, err := worker.New(ctx, pool, cfg.DB.Driver, sweeper, cfg.Worker.Concurrency, cfg.Worker.SweepPeriod, log)
	if err != nil {
		return fmt.Errorf("create worker: %w", err)
	}
	if err := wq.Start(ctx); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := wq.Stop(stopCtx); err != nil {
			log.Error("worker stop error", "err", err)
		}
	}()

	// --- HTTP routes ---------------------------------------------------------
	healthHandler := health.New(db.NewPinger(gormDB))
	authHandler := handler.NewAuthHandler(gormDB, dir, cfg.JWT.Secret, cfg.JWT.AccessTTL, cfg.JWT.RefreshTTL)
	docHandler := handler.NewDocumentHandler(led, eng, dir, cfg.Upload.MaxBytes)

	mux := http.NewServeMux()
	docapi.RegisterRoutes(mux, healthHandler, authHandler, docHandler, cfg.JWT.Secret)
	// Prometheus metrics endpoint
	mux.Handle("GET /metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Start server --------------------------------------------------------
	log.Info("http server listening", "addr", srv.Addr)
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	log.Info("server stopped cleanly")
	return nil
}
