package store

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/danchege/Alchemist/internal/cluster"
	"github.com/danchege/Alchemist/internal/common"
	"github.com/danchege/Alchemist/internal/ops"
	"github.com/danchege/Alchemist/internal/table"
)

// Backing tables. original is never modified after load. base is created
// the first time a history entry is evicted and holds original plus every
// evicted batch. data is the current table.
const (
	tblOriginal = "original"
	tblBase     = "base"
	tblData     = "data"
	tblScratch  = "scratch"
)

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Large keeps the table in a per-session SQLite file and never holds the
// full dataset in memory. Cells are stored as their source text with NULL
// for missing values; column types are derived from the stored text with
// the same rule used when loading into memory.
type Large struct {
	db      *sql.DB
	path    string
	names   []string
	types   []table.ColumnType
	rows    int
	hasBase bool
	enabled map[ops.Kind]bool
	logger  *slog.Logger
}

var _ Store = (*Large)(nil)

// sessionDBPath returns the backing file for a session.
func sessionDBPath(dataDir, sessionID string) string {
	return filepath.Join(dataDir, "sessions", sessionID+".db")
}

func openSQLite(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("create session directory: %w", err)
	}
	db, err := sql.Open(sqliteDriver, path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection: transactions and cursors never contend for a lock.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return db, nil
}

// openLarge streams delimited records from r into a new backing file.
func openLarge(ctx context.Context, r io.Reader, comma rune, counter *CountingReader, opts Options) (_ *Large, err error) {
	if opts.SessionID == "" {
		return nil, common.InvalidOperation("large file store needs a session id")
	}
	path := sessionDBPath(opts.DataDir, opts.SessionID)
	db, err := openSQLite(path)
	if err != nil {
		return nil, err
	}
	l := &Large{db: db, path: path, enabled: enabledOps(opts.LargeFileOps), logger: opts.Logger}
	defer func() {
		if err != nil {
			l.Close()
		}
	}()

	cr := newCSVReader(r, comma)
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: empty file", common.ErrCorruptSource)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read header: %v", common.ErrCorruptSource, err)
	}
	l.names = table.SanitizeColumnNames(header)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin load: %w", err)
	}
	defer tx.Rollback()

	if err := createTable(ctx, tx, tblOriginal, l.names); err != nil {
		return nil, err
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		tblOriginal, strings.Join(quoteColumns(l.names), ", "), placeholders(len(l.names))))
	if err != nil {
		return nil, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	args := make([]any, len(l.names))
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", common.ErrCorruptSource, line, err)
		}
		if len(rec) > len(l.names) {
			return nil, fmt.Errorf("%w: line %d has %d fields, expected %d",
				common.ErrCorruptSource, line, len(rec), len(l.names))
		}
		for i := range args {
			args[i] = nil
			if i < len(rec) && !table.IsMissingToken(rec[i]) {
				args[i] = rec[i]
			}
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return nil, fmt.Errorf("insert line %d: %w", line, err)
		}
		l.rows++
		if l.rows%opts.BatchSize == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			l.logger.Debug("loading large file", "rows", l.rows, "progress", counter.Progress())
		}
	}

	if err := createTable(ctx, tx, tblData, l.names); err != nil {
		return nil, err
	}
	if err := copyTable(ctx, tx, tblData, tblOriginal, l.names); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit load: %w", err)
	}
	if err := l.refresh(ctx); err != nil {
		return nil, err
	}

	l.logger.Info("large file loaded", "rows", l.rows, "columns", len(l.names), "bytes", counter.BytesRead)
	return l, nil
}

func newCSVReader(r io.Reader, comma rune) *csv.Reader {
	cr := csv.NewReader(r)
	cr.Comma = comma
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1
	return cr
}

func enabledOps(kinds []ops.Kind) map[ops.Kind]bool {
	m := make(map[ops.Kind]bool, len(kinds))
	for _, k := range kinds {
		m[k] = true
	}
	return m
}

func createTable(ctx context.Context, q querier, name string, cols []string) error {
	defs := make([]string, len(cols))
	for i, c := range cols {
		defs[i] = quoteIdentifier(c) + " TEXT"
	}
	_, err := q.ExecContext(ctx, fmt.Sprintf("CREATE TABLE %s (%s)", name, strings.Join(defs, ", ")))
	if err != nil {
		return fmt.Errorf("create table %s: %w", name, err)
	}
	return nil
}

// copyTable copies src into dst keeping rowids, so load order survives.
func copyTable(ctx context.Context, q querier, dst, src string, cols []string) error {
	list := strings.Join(quoteColumns(cols), ", ")
	_, err := q.ExecContext(ctx, fmt.Sprintf("INSERT INTO %s (rowid, %s) SELECT rowid, %s FROM %s", dst, list, list, src))
	if err != nil {
		return fmt.Errorf("copy %s to %s: %w", src, dst, err)
	}
	return nil
}

// deriveTypes infers column types of tbl from its stored text.
func deriveTypes(ctx context.Context, q querier, tbl string, names []string) ([]table.ColumnType, int, error) {
	exprs := []string{"COUNT(*)"}
	for _, n := range names {
		c := quoteIdentifier(n)
		v := fmt.Sprintf("COALESCE(%s, '')", c)
		exprs = append(exprs,
			fmt.Sprintf("SUM(%s IS NOT NULL)", c),
			fmt.Sprintf("SUM(%s IS NOT NULL AND alc_isnum(%s) = 0)", c, v),
			fmt.Sprintf("SUM(%s IS NOT NULL AND alc_isbool(%s) = 0)", c, v),
		)
	}
	dest := make([]sql.NullInt64, len(exprs))
	ptrs := make([]any, len(exprs))
	for i := range dest {
		ptrs[i] = &dest[i]
	}
	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(exprs, ", "), tbl)
	if err := q.QueryRowContext(ctx, query).Scan(ptrs...); err != nil {
		return nil, 0, fmt.Errorf("derive column types: %w", err)
	}

	types := make([]table.ColumnType, len(names))
	for i := range names {
		present, notNum, notBool := dest[1+3*i].Int64, dest[2+3*i].Int64, dest[3+3*i].Int64
		switch {
		case present == 0:
			types[i] = table.TypeEmpty
		case notNum == 0:
			types[i] = table.TypeNumber
		case notBool == 0:
			types[i] = table.TypeBool
		default:
			types[i] = table.TypeString
		}
	}
	return types, int(dest[0].Int64), nil
}

// refresh re-reads column types and the row count of the data table.
func (l *Large) refresh(ctx context.Context) error {
	types, rows, err := deriveTypes(ctx, l.db, tblData, l.names)
	if err != nil {
		return err
	}
	l.types, l.rows = types, rows
	return nil
}

func (l *Large) Mode() Mode { return ModeLarge }

func (l *Large) Columns() []table.Column {
	cols := make([]table.Column, len(l.names))
	for i, n := range l.names {
		cols[i] = table.Column{Name: n, Type: l.types[i]}
	}
	return cols
}

func (l *Large) Shape() table.Shape {
	return table.Shape{Rows: l.rows, Columns: len(l.names)}
}

// Path returns the backing file.
func (l *Large) Path() string { return l.path }

func (l *Large) column(name string) (int, error) {
	for i, n := range l.names {
		if n == name {
			return i, nil
		}
	}
	return -1, common.ColumnNotFound(name)
}

// viewSQL returns the WHERE and ORDER BY clauses for v.
func (l *Large) viewSQL(ctx context.Context, v *View) (string, string, []any, error) {
	cols := l.Columns()
	if err := v.validate(cols); err != nil {
		return "", "", nil, err
	}

	wb := newWhereBuilder()
	if f := v.activeFilter(); f != nil {
		c := columnIndex(cols, f.Column)
		wb.addFilter(f, cols[c].Type)
		l.ensureIndex(ctx, f.Column)
	}
	wb.addSearch(v.search(), l.names)
	where, args := wb.build()

	order := orderBy(nil, table.TypeString)
	if s := v.activeSort(); s != nil {
		c := columnIndex(cols, s.Column)
		order = orderBy(s, cols[c].Type)
		l.ensureIndex(ctx, s.Column)
	}
	return where, order, args, nil
}

// ensureIndex creates an index on a filtered or sorted column. Indexes are
// dropped with the table on undo and recreated on the next query.
func (l *Large) ensureIndex(ctx context.Context, col string) {
	idx := quoteIdentifier("idx_" + tblData + "_" + col)
	_, err := l.db.ExecContext(ctx, fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)", idx, tblData, quoteIdentifier(col)))
	if err != nil {
		l.logger.Warn("create index failed", "column", col, "error", err)
	}
}

func (l *Large) selectList() string {
	return strings.Join(quoteColumns(l.names), ", ")
}

// scanRows reads typed rows from a cursor over selectList.
func (l *Large) scanRows(rows *sql.Rows, yield func([]table.Value) error) error {
	defer rows.Close()
	raw := make([]sql.NullString, len(l.names))
	ptrs := make([]any, len(raw))
	for i := range raw {
		ptrs[i] = &raw[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return fmt.Errorf("scan row: %w", err)
		}
		row := make([]table.Value, len(raw))
		for i, s := range raw {
			if s.Valid {
				row[i] = table.TypedValue(s.String, l.types[i])
			}
		}
		if err := yield(row); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (l *Large) Page(ctx context.Context, q Query) (*Page, error) {
	q = q.normalize()
	where, order, args, err := l.viewSQL(ctx, &q.View)
	if err != nil {
		return nil, err
	}

	var total int
	if err := l.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+tblData+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count rows: %w", err)
	}

	query := fmt.Sprintf("SELECT %s FROM %s%s%s LIMIT ? OFFSET ?", l.selectList(), tblData, where, order)
	cur, err := l.db.QueryContext(ctx, query, append(args, q.PageSize, q.offset())...)
	if err != nil {
		return nil, fmt.Errorf("query page: %w", err)
	}
	page := make([][]table.Value, 0, q.PageSize)
	err = l.scanRows(cur, func(row []table.Value) error {
		page = append(page, row)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &Page{
		Columns:    l.Columns(),
		Rows:       page,
		Total:      total,
		Page:       q.Page,
		PageSize:   q.PageSize,
		TotalPages: totalPages(total, q.PageSize),
	}, nil
}

func (l *Large) Sample(ctx context.Context, n int) (*table.Table, error) {
	cur, err := l.db.QueryContext(ctx, fmt.Sprintf("SELECT %s FROM %s ORDER BY rowid LIMIT ?", l.selectList(), tblData), n)
	if err != nil {
		return nil, fmt.Errorf("query sample: %w", err)
	}
	var rows [][]table.Value
	err = l.scanRows(cur, func(row []table.Value) error {
		rows = append(rows, row)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &table.Table{Columns: l.Columns(), Rows: rows}, nil
}

func (l *Large) Profile(ctx context.Context, column string, topN int) (*Profile, error) {
	i, err := l.column(column)
	if err != nil {
		return nil, err
	}
	c := quoteIdentifier(column)

	var nulls, empties sql.NullInt64
	p := &Profile{Column: column, Type: l.types[i]}
	query := fmt.Sprintf(`SELECT COUNT(*), SUM(%[1]s IS NULL),
		SUM(%[1]s IS NOT NULL AND alc_blank(COALESCE(%[1]s, '')) = 1),
		COUNT(DISTINCT %[1]s) FROM %[2]s`, c, tblData)
	if err := l.db.QueryRowContext(ctx, query).Scan(&p.TotalRows, &nulls, &empties, &p.UniqueCount); err != nil {
		return nil, fmt.Errorf("profile %s: %w", column, err)
	}
	p.NullRows, p.EmptyRows = int(nulls.Int64), int(empties.Int64)

	p.TopValues, err = l.counts(ctx, column, false, ClampTopN(topN))
	if err != nil {
		return nil, err
	}
	return p, nil
}

// counts groups the non-null values of column by text, most frequent
// first. limit <= 0 returns every group.
func (l *Large) counts(ctx context.Context, column string, skipEmpty bool, limit int) ([]cluster.Frequency, error) {
	c := quoteIdentifier(column)
	where := c + " IS NOT NULL"
	if skipEmpty {
		where += " AND " + c + " <> ''"
	}
	if limit <= 0 {
		limit = -1
	}
	query := fmt.Sprintf("SELECT %[1]s, COUNT(*) AS n FROM %[2]s WHERE %[3]s GROUP BY %[1]s ORDER BY n DESC, %[1]s LIMIT ?", c, tblData, where)
	cur, err := l.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("count values of %s: %w", column, err)
	}
	defer cur.Close()

	freqs := []cluster.Frequency{}
	for cur.Next() {
		var f cluster.Frequency
		if err := cur.Scan(&f.Value, &f.Count); err != nil {
			return nil, err
		}
		freqs = append(freqs, f)
	}
	return freqs, cur.Err()
}

func (l *Large) Frequencies(ctx context.Context, column string, limit int) ([]cluster.Frequency, error) {
	if _, err := l.column(column); err != nil {
		return nil, err
	}
	return l.counts(ctx, column, true, limit)
}

func (l *Large) Info(ctx context.Context) (*Info, error) {
	exprs := make([]string, len(l.names))
	for i, n := range l.names {
		exprs[i] = fmt.Sprintf("SUM(%s IS NULL)", quoteIdentifier(n))
	}
	dest := make([]sql.NullInt64, len(exprs))
	ptrs := make([]any, len(exprs))
	for i := range dest {
		ptrs[i] = &dest[i]
	}
	if len(exprs) > 0 {
		query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(exprs, ", "), tblData)
		if err := l.db.QueryRowContext(ctx, query).Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("count missing: %w", err)
		}
	}
	missing := make([]int, len(dest))
	for i, d := range dest {
		missing[i] = int(d.Int64)
	}
	return newInfo(ModeLarge, l.Shape(), l.Columns(), missing), nil
}

// Export streams rows from a cursor.
func (l *Large) Export(ctx context.Context, w io.Writer, format Format, view *View, name string) error {
	where, order, args, err := l.viewSQL(ctx, view)
	if err != nil {
		return err
	}
	each := func(yield func([]table.Value) error) error {
		cur, err := l.db.QueryContext(ctx, fmt.Sprintf("SELECT %s FROM %s%s%s", l.selectList(), tblData, where, order), args...)
		if err != nil {
			return fmt.Errorf("query export: %w", err)
		}
		return l.scanRows(cur, yield)
	}
	return writeExport(w, format, name, l.Columns(), each)
}

// Close releases the database and deletes the backing files.
func (l *Large) Close() error {
	var errs []error
	if l.db != nil {
		errs = append(errs, l.db.Close())
		l.db = nil
	}
	for _, p := range []string{l.path, l.path + "-wal", l.path + "-shm"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
