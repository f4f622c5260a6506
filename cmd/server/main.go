package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/danchege/Alchemist/internal/audit"
	"github.com/danchege/Alchemist/internal/config"
	"github.com/danchege/Alchemist/internal/core"
	"github.com/danchege/Alchemist/internal/logging"
	"github.com/danchege/Alchemist/internal/session"
	"github.com/danchege/Alchemist/internal/store"
	"github.com/danchege/Alchemist/internal/web"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logCloser := logging.Setup(logging.Options{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	defer logCloser.Close()

	slog.Info("configuration loaded", "config", cfg.String())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rec, err := openAudit(ctx, cfg)
	if err != nil {
		return err
	}

	// config.Load has validated the list.
	largeOps, _ := cfg.Session.LargeFileKinds()

	service, err := core.NewService(core.ServiceConfig{
		MaxFileSize:          cfg.Upload.MaxFileSize,
		MaxConcurrentUploads: cfg.Upload.MaxConcurrent,
		MaxUploadWait:        cfg.Upload.MaxWaitTime,
		UploadDir:            filepath.Join(cfg.Upload.DataDir, "uploads"),
		Registry: session.RegistryConfig{
			TTL:             cfg.Session.TTL,
			CleanupInterval: cfg.Session.CleanupInterval,
			Session: session.Config{
				MaxHistory:     cfg.Session.MaxHistory,
				MaxViewHistory: cfg.Session.MaxViewHistory,
				PreviewRows:    cfg.Session.PreviewRows,
			},
			Store: store.Options{
				DataDir:            cfg.Upload.DataDir,
				LargeFileThreshold: cfg.Upload.LargeFileThreshold,
				BatchSize:          cfg.Upload.BatchSize,
				LargeFileOps:       largeOps,
			},
		},
	}, rec, slog.Default())
	if err != nil {
		rec.Close()
		return err
	}

	server := web.NewServer(service, cfg)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := server.Start(cfg.Server.Addr()); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		audit.StartRetention(gctx, rec, audit.RetentionConfig{
			RetentionDays: cfg.Audit.RetentionDays,
			BatchSize:     cfg.Audit.BatchSize,
			CheckInterval: cfg.Audit.CheckInterval,
		}, slog.Default())
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("http shutdown error", "error", err)
		}
		if status := service.UploadStatus(); status.Active > 0 {
			slog.Info("waiting for uploads to complete", "active", status.Active)
		}
		// Drains uploads, then closes sessions and the audit sink.
		return service.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// openAudit connects the Postgres audit trail when a database is
// configured and falls back to memory otherwise.
func openAudit(ctx context.Context, cfg *config.Config) (audit.Recorder, error) {
	if cfg.Database.URL == "" {
		slog.Info("no DATABASE_URL set, keeping audit log in memory", "capacity", cfg.Audit.MemoryCapacity)
		return audit.NewMemory(cfg.Audit.MemoryCapacity), nil
	}

	pg, err := audit.NewPostgres(ctx, cfg.Database.URL, audit.PoolConfig{
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
	})
	if err != nil {
		return nil, err
	}
	slog.Info("connected to audit database")
	return pg, nil
}
