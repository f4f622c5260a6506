// Package session owns a dataset's mutable state across a sequence of
// operations: the store holding the current table, the undo and redo
// history, and the current view.
package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/danchege/Alchemist/internal/cluster"
	"github.com/danchege/Alchemist/internal/common"
	"github.com/danchege/Alchemist/internal/ops"
	"github.com/danchege/Alchemist/internal/stack"
	"github.com/danchege/Alchemist/internal/store"
	"github.com/danchege/Alchemist/internal/table"
	"github.com/danchege/Alchemist/internal/view"
)

// DefaultMaxHistory is the number of undoable entries kept per session.
const DefaultMaxHistory = 50

// Config bounds a session's history.
type Config struct {
	MaxHistory     int
	MaxViewHistory int
	PreviewRows    int
}

func (c Config) withDefaults() Config {
	if c.MaxHistory <= 0 {
		c.MaxHistory = DefaultMaxHistory
	}
	if c.MaxViewHistory <= 0 {
		c.MaxViewHistory = view.DefaultMaxHistory
	}
	if c.PreviewRows <= 0 {
		c.PreviewRows = ops.PreviewRows
	}
	return c
}

// Session is one user's working copy of an uploaded file.
//
// A Session is not safe for concurrent use. The Registry hands out
// exclusive access with Acquire.
type Session struct {
	ID        string
	FileName  string
	CreatedAt time.Time

	store  store.Store
	undo   *stack.Bounded[store.Snapshot]
	redo   *stack.Bounded[store.Snapshot]
	views  *view.Coordinator
	cfg    Config
	logger *slog.Logger
	closed bool
}

// New wraps an opened store. The session takes ownership of st.
func New(id, fileName string, st store.Store, cfg Config, logger *slog.Logger) *Session {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		ID:        id,
		FileName:  fileName,
		CreatedAt: time.Now().UTC(),
		store:     st,
		undo:      stack.New[store.Snapshot](cfg.MaxHistory),
		redo:      stack.New[store.Snapshot](cfg.MaxHistory),
		views:     view.New(cfg.MaxViewHistory),
		cfg:       cfg,
		logger:    logger.With("session_id", id),
	}
}

func (s *Session) Mode() store.Mode        { return s.store.Mode() }
func (s *Session) Shape() table.Shape      { return s.store.Shape() }
func (s *Session) Columns() []table.Column { return s.store.Columns() }
func (s *Session) Closed() bool            { return s.closed }
func (s *Session) CurrentView() view.State { return s.views.Current() }

func (s *Session) check() error {
	if s.closed {
		return common.ErrSessionClosed
	}
	return nil
}

// ApplyResult is the outcome of a committed batch.
type ApplyResult struct {
	Entry     store.Snapshot `json:"entry"`
	Summaries []ops.Summary  `json:"summaries"`
	Shape     table.Shape    `json:"shape"`
}

// Apply runs batch as one history entry. On failure the table and both
// stacks are unchanged.
func (s *Session) Apply(ctx context.Context, batch []ops.Operation) (*ApplyResult, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	if err := ops.ValidateAll(batch); err != nil {
		return nil, err
	}
	for _, op := range batch {
		if err := s.store.Supports(op); err != nil {
			return nil, err
		}
	}

	entry, sums, err := s.store.Apply(ctx, batch)
	if err != nil {
		return nil, err
	}
	s.redo.Clear()
	s.pushUndo(ctx, entry)

	s.logger.Info("operations applied", "description", entry.Description, "rows", s.Shape().Rows)
	return &ApplyResult{Entry: entry, Summaries: sums, Shape: s.Shape()}, nil
}

// pushUndo records entry and hands the entry that falls off the bottom of
// the history to the store.
func (s *Session) pushUndo(ctx context.Context, entry store.Snapshot) {
	oldest, evicted := s.undo.Push(entry)
	if !evicted {
		return
	}
	if err := s.store.Evict(ctx, oldest); err != nil {
		// The remaining entries no longer replay from a valid base.
		s.logger.Error("fold evicted history entry", "description", oldest.Description, "error", err)
		s.undo.Clear()
	}
}

// Undo reverts the most recent entry.
func (s *Session) Undo(ctx context.Context) (store.Snapshot, error) {
	if err := s.check(); err != nil {
		return store.Snapshot{}, err
	}
	entry, ok := s.undo.Pop()
	if !ok {
		return store.Snapshot{}, common.ErrNothingToUndo
	}

	redo, err := s.store.Undo(ctx, entry, s.undo.Items())
	if err != nil {
		s.undo.Push(entry)
		return store.Snapshot{}, fmt.Errorf("undo %q: %w", entry.Description, err)
	}
	s.redo.Push(redo)

	s.logger.Info("undo", "description", entry.Description, "rows", s.Shape().Rows)
	return entry, nil
}

// Redo re-applies the most recently undone entry.
func (s *Session) Redo(ctx context.Context) (store.Snapshot, error) {
	if err := s.check(); err != nil {
		return store.Snapshot{}, err
	}
	entry, ok := s.redo.Pop()
	if !ok {
		return store.Snapshot{}, common.ErrNothingToRedo
	}

	undo, err := s.store.Redo(ctx, entry)
	if err != nil {
		s.redo.Push(entry)
		return store.Snapshot{}, fmt.Errorf("redo %q: %w", entry.Description, err)
	}
	s.pushUndo(ctx, undo)

	s.logger.Info("redo", "description", entry.Description, "rows", s.Shape().Rows)
	return entry, nil
}

// Reset restores the table loaded at upload and clears both stacks.
func (s *Session) Reset(ctx context.Context) error {
	if err := s.check(); err != nil {
		return err
	}
	if err := s.store.Reset(ctx); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	s.undo.Clear()
	s.redo.Clear()
	s.logger.Info("session reset", "rows", s.Shape().Rows)
	return nil
}

// History lists the undo and redo entries, oldest first.
type History struct {
	Undo    []store.Snapshot `json:"undo"`
	Redo    []store.Snapshot `json:"redo"`
	CanUndo bool             `json:"can_undo"`
	CanRedo bool             `json:"can_redo"`
	Limit   int              `json:"limit"`
}

func (s *Session) History() History {
	return History{
		Undo:    s.undo.Items(),
		Redo:    s.redo.Items(),
		CanUndo: s.undo.Len() > 0,
		CanRedo: s.redo.Len() > 0,
		Limit:   s.undo.Cap(),
	}
}

// Preview runs batch on a sample of the current table without committing.
// In large-file mode unsupported operations fail before sampling.
func (s *Session) Preview(ctx context.Context, batch []ops.Operation, sampleSize int) (*ops.PreviewResult, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	if err := ops.ValidateAll(batch); err != nil {
		return nil, err
	}
	for _, op := range batch {
		if err := s.store.Supports(op); err != nil {
			return nil, err
		}
	}
	if sampleSize <= 0 {
		sampleSize = s.cfg.PreviewRows
	}
	sample, err := s.store.Sample(ctx, sampleSize)
	if err != nil {
		return nil, err
	}
	return ops.PreviewN(sample, batch, sampleSize)
}

// ============================================================================
// Queries
// ============================================================================

// Page returns a page of an explicit query. The saved view is not changed.
func (s *Session) Page(ctx context.Context, q store.Query) (*store.Page, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	return s.store.Page(ctx, q)
}

// CurrentPage returns page of the saved view.
func (s *Session) CurrentPage(ctx context.Context, page int) (*store.Page, error) {
	return s.Page(ctx, s.views.Current().Query(page))
}

// SetView saves next as the current view and returns its first page. An
// invalid view is rejected and not saved.
func (s *Session) SetView(ctx context.Context, next view.State) (*store.Page, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	page, err := s.store.Page(ctx, next.Query(1))
	if err != nil {
		return nil, err
	}
	s.views.Save(next)
	return page, nil
}

// UndoView restores the previous view and returns its first page. A view
// that no longer pages, for example because its column was removed, is
// reported and the view history is left as it was.
func (s *Session) UndoView(ctx context.Context) (*store.Page, error) {
	return s.restoreView(ctx, s.views.PeekUndo, s.views.Undo)
}

// RedoView restores the view most recently undone.
func (s *Session) RedoView(ctx context.Context) (*store.Page, error) {
	return s.restoreView(ctx, s.views.PeekRedo, s.views.Redo)
}

func (s *Session) restoreView(ctx context.Context, peek, move func() (view.State, error)) (*store.Page, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	next, err := peek()
	if err != nil {
		return nil, err
	}
	page, err := s.store.Page(ctx, next.Query(1))
	if err != nil {
		return nil, err
	}
	if _, err := move(); err != nil {
		return nil, err
	}
	return page, nil
}

func (s *Session) Profile(ctx context.Context, column string, topN int) (*store.Profile, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	return s.store.Profile(ctx, column, topN)
}

func (s *Session) Info(ctx context.Context) (*store.Info, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	return s.store.Info(ctx)
}

// Sample returns the first n rows.
func (s *Session) Sample(ctx context.Context, n int) (*table.Table, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	return s.store.Sample(ctx, n)
}

// Export writes the current table. When filtered is set only the rows of
// the saved view are written, in view order.
func (s *Session) Export(ctx context.Context, w io.Writer, format store.Format, filtered bool, name string) error {
	if err := s.check(); err != nil {
		return err
	}
	var v *store.View
	if filtered {
		cur := s.views.Current().View
		v = &cur
	}
	return s.store.Export(ctx, w, format, v, name)
}

// ============================================================================
// Clustering
// ============================================================================

// Suggest groups near-duplicate values of column.
func (s *Session) Suggest(ctx context.Context, column string, maxUnique int) ([]cluster.Suggestion, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	maxUnique = cluster.ClampMaxUnique(maxUnique)
	// One more than the limit is enough to detect overflow.
	freqs, err := s.store.Frequencies(ctx, column, maxUnique+1)
	if err != nil {
		return nil, err
	}
	return cluster.Suggest(freqs, maxUnique)
}

// Merge replaces values of column with canonical as one history entry.
func (s *Session) Merge(ctx context.Context, column, canonical string, values []string) (*ApplyResult, error) {
	return s.Apply(ctx, []ops.Operation{{
		Type:      ops.MergeValues,
		Column:    column,
		Canonical: canonical,
		Values:    values,
	}})
}

// Close releases the store. Later calls fail with ErrSessionClosed.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.undo.Clear()
	s.redo.Clear()
	s.views.Clear()
	err := s.store.Close()
	s.logger.Info("session closed")
	return err
}
