package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/danchege/Alchemist/internal/audit"
	"github.com/danchege/Alchemist/internal/cluster"
	"github.com/danchege/Alchemist/internal/common"
	"github.com/danchege/Alchemist/internal/ops"
	"github.com/danchege/Alchemist/internal/session"
	"github.com/danchege/Alchemist/internal/store"
	"github.com/danchege/Alchemist/internal/view"
)

// DefaultMaxFileSize is the largest upload accepted.
const DefaultMaxFileSize = 512 << 20

// ServiceConfig configures the Service.
type ServiceConfig struct {
	MaxFileSize          int64
	MaxConcurrentUploads int
	MaxUploadWait        time.Duration
	// UploadDir holds uploads while they are parsed. Defaults to
	// DataDir/uploads.
	UploadDir string
	Registry  session.RegistryConfig
}

// Service is the entry point for transports. It serializes access to each
// session, throttles uploads and records an audit trail.
type Service struct {
	cfg      ServiceConfig
	registry *session.Registry
	limiter  *UploadLimiter
	audit    audit.Recorder
	logger   *slog.Logger
}

// NewService creates a Service. A nil recorder keeps the audit trail in
// memory.
func NewService(cfg ServiceConfig, rec audit.Recorder, logger *slog.Logger) (*Service, error) {
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = DefaultMaxFileSize
	}
	if cfg.Registry.Store.DataDir == "" {
		cfg.Registry.Store.DataDir = "data"
	}
	if cfg.UploadDir == "" {
		cfg.UploadDir = filepath.Join(cfg.Registry.Store.DataDir, "uploads")
	}
	if err := os.MkdirAll(cfg.UploadDir, 0o750); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	if rec == nil {
		rec = audit.NewMemory(0)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cfg:      cfg,
		registry: session.NewRegistry(cfg.Registry, logger),
		limiter:  NewUploadLimiter(cfg.MaxConcurrentUploads, cfg.MaxUploadWait),
		audit:    rec,
		logger:   logger,
	}, nil
}

// MaxFileSize returns the upload size limit in bytes.
func (s *Service) MaxFileSize() int64 { return s.cfg.MaxFileSize }

// UploadStatus reports the upload limiter state.
func (s *Service) UploadStatus() UploadLimiterStatus { return s.limiter.Status() }

// SessionCount returns the number of live sessions.
func (s *Service) SessionCount() int { return s.registry.Len() }

// Audit returns the audit recorder.
func (s *Service) Audit() audit.Recorder { return s.audit }

// Shutdown waits for in-flight uploads, then closes every session and the
// audit recorder.
func (s *Service) Shutdown(ctx context.Context) error {
	err := s.limiter.WaitForDrain(ctx)
	s.registry.CloseAll()
	s.audit.Close()
	return err
}

// withSession runs fn with exclusive access to the session.
func (s *Service) withSession(ctx context.Context, id string, fn func(*session.Session) error) error {
	sess, release, err := s.registry.Acquire(ctx, id)
	if err != nil {
		return err
	}
	defer release()
	return fn(sess)
}

func (s *Service) record(ctx context.Context, p audit.Params) {
	p.IPAddress = GetIPAddressFromContext(ctx)
	p.UserAgent = GetUserAgentFromContext(ctx)
	p.RequestID = GetRequestIDFromContext(ctx)
	if _, err := s.audit.Record(ctx, p); err != nil {
		s.logger.Warn("audit record failed", "action", p.Action, "session_id", p.SessionID, "error", err)
	}
}

// ============================================================================
// Sessions
// ============================================================================

// Upload stores r under name and opens a session on it. Uploads larger
// than MaxFileSize fail with ErrFileTooLarge.
func (s *Service) Upload(ctx context.Context, name string, r io.Reader) (*SessionSummary, error) {
	name = filepath.Base(strings.TrimSpace(name))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return nil, errors.New("no file provided")
	}
	if _, err := store.DetectSource(name); err != nil {
		return nil, err
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()

	tmp, err := os.CreateTemp(s.cfg.UploadDir, "upload-*"+filepath.Ext(name))
	if err != nil {
		return nil, fmt.Errorf("create upload file: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, io.LimitReader(r, s.cfg.MaxFileSize+1))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}
	if n > s.cfg.MaxFileSize {
		return nil, fmt.Errorf("%w: limit is %d MB", common.ErrFileTooLarge, s.cfg.MaxFileSize>>20)
	}

	sess, err := s.registry.Create(ctx, tmp.Name(), name)
	if err != nil {
		return nil, err
	}

	var summary *SessionSummary
	err = s.withSession(ctx, sess.ID, func(sess *session.Session) error {
		var err error
		if summary, err = summarize(ctx, sess); err != nil {
			return err
		}
		s.record(ctx, audit.Params{
			Action:      audit.ActionCreate,
			SessionID:   sess.ID,
			FileName:    name,
			Description: fmt.Sprintf("Loaded %s (%d bytes, %s)", name, n, sess.Mode()),
			RowsAfter:   summary.Shape.Rows,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return summary, nil
}

// firstPage returns page one of the saved view, or of the whole table when
// an operation removed a column the view refers to.
func firstPage(ctx context.Context, sess *session.Session) (*store.Page, error) {
	page, err := sess.CurrentPage(ctx, 1)
	if errors.Is(err, common.ErrColumnNotFound) {
		return sess.Page(ctx, store.Query{})
	}
	return page, err
}

func summarize(ctx context.Context, sess *session.Session) (*SessionSummary, error) {
	page, err := firstPage(ctx, sess)
	if err != nil {
		return nil, err
	}
	return &SessionSummary{
		SessionID: sess.ID,
		FileName:  sess.FileName,
		Mode:      sess.Mode(),
		Shape:     sess.Shape(),
		Columns:   sess.Columns(),
		CreatedAt: sess.CreatedAt,
		View:      sess.CurrentView(),
		History:   sess.History(),
		Preview:   newPageResult(page),
	}, nil
}

// Session returns the summary of a live session.
func (s *Service) Session(ctx context.Context, id string) (*SessionSummary, error) {
	var out *SessionSummary
	err := s.withSession(ctx, id, func(sess *session.Session) error {
		var err error
		out, err = summarize(ctx, sess)
		return err
	})
	return out, err
}

// CloseSession discards a session and its backing files.
func (s *Service) CloseSession(ctx context.Context, id string) error {
	sess, err := s.registry.Get(id)
	if err != nil {
		return err
	}
	fileName, rows := sess.FileName, sess.Shape().Rows
	if err := s.registry.Close(id); err != nil {
		return err
	}
	s.record(ctx, audit.Params{Action: audit.ActionClose, SessionID: id, FileName: fileName, RowsAfter: rows})
	return nil
}

// ============================================================================
// Mutations
// ============================================================================

func mutation(ctx context.Context, sess *session.Session, entry *store.Snapshot, sums []ops.Summary) (*MutationResult, error) {
	page, err := firstPage(ctx, sess)
	if err != nil {
		return nil, err
	}
	return &MutationResult{
		Entry:     entry,
		Summaries: sums,
		Shape:     sess.Shape(),
		Columns:   sess.Columns(),
		History:   sess.History(),
		Preview:   newPageResult(page),
	}, nil
}

func affected(sums []ops.Summary) int {
	total := 0
	for _, s := range sums {
		total += s.Affected
	}
	return total
}

// Apply runs a batch of operations as one history entry.
func (s *Service) Apply(ctx context.Context, id string, batch []ops.Operation) (*MutationResult, error) {
	var out *MutationResult
	err := s.withSession(ctx, id, func(sess *session.Session) error {
		res, err := sess.Apply(ctx, batch)
		if err != nil {
			return err
		}
		if out, err = mutation(ctx, sess, &res.Entry, res.Summaries); err != nil {
			return err
		}
		s.record(ctx, audit.Params{
			Action:       audit.ActionApply,
			SessionID:    id,
			FileName:     sess.FileName,
			Description:  res.Entry.Description,
			Operations:   batch,
			RowsAffected: affected(res.Summaries),
			RowsAfter:    res.Shape.Rows,
		})
		return nil
	})
	return out, err
}

// Preview runs batch on a sample without committing it.
func (s *Service) Preview(ctx context.Context, id string, batch []ops.Operation, sampleSize int) (*PreviewResult, error) {
	var out *PreviewResult
	err := s.withSession(ctx, id, func(sess *session.Session) error {
		res, err := sess.Preview(ctx, batch, sampleSize)
		if err != nil {
			return err
		}
		out = &PreviewResult{
			Before:    res.Before,
			After:     res.After,
			Summaries: res.Summaries,
			Columns:   res.Table.Columns,
			Rows:      store.Records(res.Table.Columns, res.Table.Rows),
		}
		return nil
	})
	return out, err
}

// Undo reverts the most recent history entry.
func (s *Service) Undo(ctx context.Context, id string) (*MutationResult, error) {
	return s.step(ctx, id, audit.ActionUndo, (*session.Session).Undo)
}

// Redo re-applies the most recently undone entry.
func (s *Service) Redo(ctx context.Context, id string) (*MutationResult, error) {
	return s.step(ctx, id, audit.ActionRedo, (*session.Session).Redo)
}

func (s *Service) step(ctx context.Context, id string, action audit.Action,
	fn func(*session.Session, context.Context) (store.Snapshot, error)) (*MutationResult, error) {
	var out *MutationResult
	err := s.withSession(ctx, id, func(sess *session.Session) error {
		entry, err := fn(sess, ctx)
		if err != nil {
			return err
		}
		if out, err = mutation(ctx, sess, &entry, nil); err != nil {
			return err
		}
		s.record(ctx, audit.Params{
			Action:      action,
			SessionID:   id,
			FileName:    sess.FileName,
			Description: entry.Description,
			RowsAfter:   sess.Shape().Rows,
		})
		return nil
	})
	return out, err
}

// Reset restores the uploaded table and clears history.
func (s *Service) Reset(ctx context.Context, id string) (*MutationResult, error) {
	var out *MutationResult
	err := s.withSession(ctx, id, func(sess *session.Session) error {
		if err := sess.Reset(ctx); err != nil {
			return err
		}
		var err error
		if out, err = mutation(ctx, sess, nil, nil); err != nil {
			return err
		}
		s.record(ctx, audit.Params{
			Action:      audit.ActionReset,
			SessionID:   id,
			FileName:    sess.FileName,
			Description: "Reset to original data",
			RowsAfter:   sess.Shape().Rows,
		})
		return nil
	})
	return out, err
}

// History lists the undo and redo entries.
func (s *Service) History(ctx context.Context, id string) (session.History, error) {
	var out session.History
	err := s.withSession(ctx, id, func(sess *session.Session) error {
		out = sess.History()
		return nil
	})
	return out, err
}

// ============================================================================
// Views and queries
// ============================================================================

// Page returns a page of an explicit query without touching the saved view.
func (s *Service) Page(ctx context.Context, id string, q store.Query) (*PageResult, error) {
	return s.page(ctx, id, func(sess *session.Session) (*store.Page, error) {
		return sess.Page(ctx, q)
	})
}

// ViewPage returns a page of the saved view.
func (s *Service) ViewPage(ctx context.Context, id string, page int) (*PageResult, error) {
	return s.page(ctx, id, func(sess *session.Session) (*store.Page, error) {
		return sess.CurrentPage(ctx, page)
	})
}

// SetView saves a new view and returns its first page.
func (s *Service) SetView(ctx context.Context, id string, next view.State) (*PageResult, error) {
	return s.page(ctx, id, func(sess *session.Session) (*store.Page, error) {
		return sess.SetView(ctx, next)
	})
}

// UndoView restores the previous view.
func (s *Service) UndoView(ctx context.Context, id string) (*PageResult, error) {
	return s.page(ctx, id, func(sess *session.Session) (*store.Page, error) {
		return sess.UndoView(ctx)
	})
}

// RedoView restores the view most recently undone.
func (s *Service) RedoView(ctx context.Context, id string) (*PageResult, error) {
	return s.page(ctx, id, func(sess *session.Session) (*store.Page, error) {
		return sess.RedoView(ctx)
	})
}

func (s *Service) page(ctx context.Context, id string, fn func(*session.Session) (*store.Page, error)) (*PageResult, error) {
	var out *PageResult
	err := s.withSession(ctx, id, func(sess *session.Session) error {
		p, err := fn(sess)
		if err != nil {
			return err
		}
		out = newPageResult(p)
		return nil
	})
	return out, err
}

// Profile summarizes one column.
func (s *Service) Profile(ctx context.Context, id, column string, topN int) (*store.Profile, error) {
	var out *store.Profile
	err := s.withSession(ctx, id, func(sess *session.Session) error {
		var err error
		out, err = sess.Profile(ctx, column, topN)
		return err
	})
	return out, err
}

// Info describes the whole table.
func (s *Service) Info(ctx context.Context, id string) (*store.Info, error) {
	var out *store.Info
	err := s.withSession(ctx, id, func(sess *session.Session) error {
		var err error
		out, err = sess.Info(ctx)
		return err
	})
	return out, err
}

// Export writes the table, or the rows of the saved view when filtered is
// set.
func (s *Service) Export(ctx context.Context, id string, w io.Writer, format store.Format, filtered bool, name string) error {
	return s.withSession(ctx, id, func(sess *session.Session) error {
		if err := sess.Export(ctx, w, format, filtered, name); err != nil {
			return err
		}
		s.record(ctx, audit.Params{
			Action:      audit.ActionExport,
			SessionID:   id,
			FileName:    sess.FileName,
			Description: fmt.Sprintf("Exported %s as %s", name, format),
			RowsAfter:   sess.Shape().Rows,
		})
		return nil
	})
}

// ============================================================================
// Clustering
// ============================================================================

// Clusters suggests groups of near-duplicate values in column.
func (s *Service) Clusters(ctx context.Context, id, column string, maxUnique int) (*ClusterResult, error) {
	var out *ClusterResult
	err := s.withSession(ctx, id, func(sess *session.Session) error {
		sugs, err := sess.Suggest(ctx, column, maxUnique)
		if err != nil {
			return err
		}
		out = &ClusterResult{Column: column, MaxUnique: cluster.ClampMaxUnique(maxUnique), Suggestions: sugs}
		return nil
	})
	return out, err
}

// Merge replaces values of column with canonical as one history entry.
func (s *Service) Merge(ctx context.Context, id, column, canonical string, values []string) (*MutationResult, error) {
	var out *MutationResult
	err := s.withSession(ctx, id, func(sess *session.Session) error {
		res, err := sess.Merge(ctx, column, canonical, values)
		if err != nil {
			return err
		}
		if out, err = mutation(ctx, sess, &res.Entry, res.Summaries); err != nil {
			return err
		}
		s.record(ctx, audit.Params{
			Action:       audit.ActionMerge,
			SessionID:    id,
			FileName:     sess.FileName,
			Description:  res.Entry.Description,
			Operations:   res.Entry.Operations,
			RowsAffected: affected(res.Summaries),
			RowsAfter:    res.Shape.Rows,
		})
		return nil
	})
	return out, err
}

// AuditLog lists audit entries.
func (s *Service) AuditLog(ctx context.Context, f audit.Filter) ([]audit.Entry, error) {
	return s.audit.List(ctx, f)
}
