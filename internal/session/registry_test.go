package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danchege/Alchemist/internal/common"
	"github.com/danchege/Alchemist/internal/store"
)

func newRegistry(t *testing.T, cfg RegistryConfig) (*Registry, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "upload.csv")
	require.NoError(t, os.WriteFile(path, []byte("a,b\n1,x\n2,y\n"), 0600))

	cfg.Store.DataDir = dir
	r := NewRegistry(cfg, nil)
	t.Cleanup(r.CloseAll)
	return r, path
}

func TestRegistry_CreateGetClose(t *testing.T) {
	r, path := newRegistry(t, RegistryConfig{})

	s, err := r.Create(context.Background(), path, "upload.csv")
	require.NoError(t, err)
	assert.Equal(t, store.ModeMemory, s.Mode())
	assert.Equal(t, 1, r.Len())

	got, err := r.Get(s.ID)
	require.NoError(t, err)
	assert.Same(t, s, got)

	require.NoError(t, r.Close(s.ID))
	assert.True(t, s.Closed())
	assert.Equal(t, 0, r.Len())

	_, err = r.Get(s.ID)
	assert.ErrorIs(t, err, common.ErrSessionNotFound)
	assert.ErrorIs(t, r.Close(s.ID), common.ErrSessionNotFound)
}

func TestRegistry_CreateFailure(t *testing.T) {
	r, path := newRegistry(t, RegistryConfig{})

	_, err := r.Create(context.Background(), path, "upload.parquet")
	assert.ErrorIs(t, err, common.ErrUnsupportedFormat)
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_AcquireIsExclusive(t *testing.T) {
	r, path := newRegistry(t, RegistryConfig{})
	s, err := r.Create(context.Background(), path, "upload.csv")
	require.NoError(t, err)

	_, release, err := r.Acquire(context.Background(), s.ID)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, _, err = r.Acquire(ctx, s.ID)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	release()
	release()

	_, release2, err := r.Acquire(context.Background(), s.ID)
	require.NoError(t, err)
	release2()
}

func TestRegistry_LargeFileCloseDeletesBackingFile(t *testing.T) {
	r, path := newRegistry(t, RegistryConfig{Store: store.Options{LargeFileThreshold: 1}})
	s, err := r.Create(context.Background(), path, "upload.csv")
	require.NoError(t, err)
	require.Equal(t, store.ModeLarge, s.Mode())

	dbPath := filepath.Join(r.cfg.Store.DataDir, "sessions", s.ID+".db")
	assert.FileExists(t, dbPath)

	require.NoError(t, r.Close(s.ID))
	assert.NoFileExists(t, dbPath)
}

func TestRegistry_Expiry(t *testing.T) {
	r, path := newRegistry(t, RegistryConfig{
		TTL:             30 * time.Millisecond,
		CleanupInterval: 10 * time.Millisecond,
		Store:           store.Options{LargeFileThreshold: 1},
	})
	s, err := r.Create(context.Background(), path, "upload.csv")
	require.NoError(t, err)
	dbPath := filepath.Join(r.cfg.Store.DataDir, "sessions", s.ID+".db")

	assert.Eventually(t, func() bool {
		_, err := os.Stat(dbPath)
		return os.IsNotExist(err)
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, r.Len())
}
