package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/danchege/Alchemist/internal/ops"
	"github.com/danchege/Alchemist/internal/session"
	"github.com/danchege/Alchemist/internal/store"
	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/viper"
)

// openSession loads path into a session. The caller must Close it, which
// also removes any staging database.
func openSession(ctx context.Context, path string, largeOps []ops.Kind) (*session.Session, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	opts := store.Options{
		SessionID:          id,
		DataDir:            viper.GetString("data_dir"),
		LargeFileThreshold: viper.GetInt64("large_file_threshold"),
		BatchSize:          viper.GetInt("batch_size"),
		LargeFileOps:       largeOps,
		Logger:             slog.Default().With("file", filepath.Base(path)),
	}

	var bar *progressbar.ProgressBar
	if !viper.GetBool("no_progress") {
		bar = newLoadBar(fi.Size(), filepath.Base(path), os.Stderr)
		opts.Progress = bar
	}

	st, err := store.Open(ctx, path, filepath.Base(path), opts)
	if bar != nil {
		_ = bar.Finish()
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return session.New(id, filepath.Base(path), st, session.Config{}, nil), nil
}

// newLoadBar shows bytes read while a file loads.
func newLoadBar(size int64, name string, w io.Writer) *progressbar.ProgressBar {
	return progressbar.NewOptions64(size,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("loading "+name),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(30),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}
