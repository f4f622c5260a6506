package audit

// scheduler.go runs audit retention in the background. Each cycle deletes
// entries older than the retention window in batches until a batch comes
// back short. Failures are logged and retried on the next tick.

import (
	"context"
	"log/slog"
	"time"
)

// RetentionConfig controls the retention job. Zero fields take defaults.
type RetentionConfig struct {
	RetentionDays int           // Days to keep entries (default: 90)
	BatchSize     int           // Rows deleted per statement (default: 5000)
	CheckInterval time.Duration // How often to run (default: 24h)
}

func (c RetentionConfig) withDefaults() RetentionConfig {
	if c.RetentionDays <= 0 {
		c.RetentionDays = 90
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 5000
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = 24 * time.Hour
	}
	return c
}

// StartRetention purges old entries from rec immediately and then every
// CheckInterval until ctx is cancelled.
func StartRetention(ctx context.Context, rec Recorder, cfg RetentionConfig, logger *slog.Logger) {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("audit retention started",
		"retention_days", cfg.RetentionDays,
		"batch_size", cfg.BatchSize,
		"interval", cfg.CheckInterval.String(),
	)

	runRetention(ctx, rec, cfg, logger)

	ticker := time.NewTicker(cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("audit retention stopped")
			return
		case <-ticker.C:
			runRetention(ctx, rec, cfg, logger)
		}
	}
}

// runRetention performs one purge cycle and returns the number of entries
// removed.
func runRetention(ctx context.Context, rec Recorder, cfg RetentionConfig, logger *slog.Logger) int64 {
	start := time.Now()
	cutoff := start.UTC().AddDate(0, 0, -cfg.RetentionDays)

	var total int64
	for ctx.Err() == nil {
		n, err := rec.Purge(ctx, cutoff, cfg.BatchSize)
		if err != nil {
			logger.Error("audit purge failed", "error", err)
			break
		}
		total += n
		if n < int64(cfg.BatchSize) {
			break
		}
	}

	logger.Info("audit retention completed",
		"entries_purged", total,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return total
}
