package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/danchege/Alchemist/internal/common"
	"github.com/danchege/Alchemist/internal/store"
)

// Registry defaults.
const (
	DefaultTTL             = 2 * time.Hour
	DefaultCleanupInterval = 10 * time.Minute
)

// RegistryConfig configures session storage and expiry.
type RegistryConfig struct {
	// TTL is how long an idle session lives. Every Get or Acquire
	// restarts the clock.
	TTL             time.Duration
	CleanupInterval time.Duration

	Session Config
	Store   store.Options
}

// Registry holds the live sessions keyed by id. Sessions that are not
// used for TTL are closed by the cache janitor, which deletes their
// backing files.
type Registry struct {
	cache  *cache.Cache
	cfg    RegistryConfig
	logger *slog.Logger
}

// entry guards one session.
type entry struct {
	mu      sync.Mutex
	session *Session
}

// NewRegistry returns an empty registry.
func NewRegistry(cfg RegistryConfig, logger *slog.Logger) *Registry {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = DefaultCleanupInterval
	}
	if logger == nil {
		logger = slog.Default()
	}

	r := &Registry{
		cache:  cache.New(cfg.TTL, cfg.CleanupInterval),
		cfg:    cfg,
		logger: logger,
	}
	r.cache.OnEvicted(r.evicted)
	return r
}

// evicted runs for expired and deleted sessions. It waits for any
// holder of the session to release it.
func (r *Registry) evicted(id string, v any) {
	e, ok := v.(*entry)
	if !ok {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.session.Close(); err != nil {
		r.logger.Warn("close session", "session_id", id, "error", err)
	}
	r.logger.Info("session removed", "session_id", id)
}

// Create loads the file at path into a new session. name is the file name
// the user uploaded and selects the parser.
func (r *Registry) Create(ctx context.Context, path, name string) (*Session, error) {
	id := uuid.NewString()
	opts := r.cfg.Store
	opts.SessionID = id
	opts.Logger = r.logger.With("session_id", id)

	st, err := store.Open(ctx, path, name, opts)
	if err != nil {
		return nil, err
	}
	s := New(id, name, st, r.cfg.Session, r.logger)
	r.cache.Set(id, &entry{session: s}, cache.DefaultExpiration)

	r.logger.Info("session created", "session_id", id, "file", name, "mode", st.Mode(),
		"rows", st.Shape().Rows, "columns", st.Shape().Columns)
	return s, nil
}

func (r *Registry) lookup(id string) (*entry, error) {
	v, ok := r.cache.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", common.ErrSessionNotFound, id)
	}
	e := v.(*entry)
	// Refresh the sliding expiry.
	r.cache.Set(id, e, cache.DefaultExpiration)
	return e, nil
}

// Get returns a session without locking it. Callers that mutate or read
// the session concurrently with others must use Acquire.
func (r *Registry) Get(id string) (*Session, error) {
	e, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	return e.session, nil
}

// Acquire locks the session for exclusive use. The returned release func
// must be called exactly once.
func (r *Registry) Acquire(ctx context.Context, id string) (*Session, func(), error) {
	e, err := r.lookup(id)
	if err != nil {
		return nil, nil, err
	}

	locked := make(chan struct{})
	go func() {
		e.mu.Lock()
		close(locked)
	}()
	select {
	case <-locked:
	case <-ctx.Done():
		// Release the lock once the goroutine gets it.
		go func() {
			<-locked
			e.mu.Unlock()
		}()
		return nil, nil, ctx.Err()
	}

	if e.session.Closed() {
		e.mu.Unlock()
		return nil, nil, fmt.Errorf("%w: %s", common.ErrSessionClosed, id)
	}
	var once sync.Once
	return e.session, func() { once.Do(e.mu.Unlock) }, nil
}

// Close removes the session and deletes its backing files. The caller
// must not hold the session from Acquire.
func (r *Registry) Close(id string) error {
	if _, ok := r.cache.Get(id); !ok {
		return fmt.Errorf("%w: %s", common.ErrSessionNotFound, id)
	}
	r.cache.Delete(id)
	return nil
}

// CloseAll removes every session. Used on shutdown.
func (r *Registry) CloseAll() {
	for id := range r.cache.Items() {
		r.cache.Delete(id)
	}
}

// Len returns the number of live sessions.
func (r *Registry) Len() int { return r.cache.ItemCount() }
