package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schemaSQL = `CREATE TABLE IF NOT EXISTS audit_log (
	id            UUID PRIMARY KEY,
	action        TEXT NOT NULL,
	severity      TEXT NOT NULL,
	session_id    TEXT NOT NULL,
	file_name     TEXT,
	description   TEXT,
	operations    JSONB,
	rows_affected INTEGER NOT NULL DEFAULT 0,
	rows_after    INTEGER NOT NULL DEFAULT 0,
	ip_address    TEXT,
	user_agent    TEXT,
	request_id    TEXT,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS audit_log_session_idx ON audit_log (session_id, created_at DESC);
CREATE INDEX IF NOT EXISTS audit_log_created_idx ON audit_log (created_at);`

const entryColumns = `id, action, severity, session_id, file_name, description, operations,
	rows_affected, rows_after, ip_address, user_agent, request_id, created_at`

// PoolConfig sizes the Postgres connection pool.
type PoolConfig struct {
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Postgres stores entries in the audit_log table.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ Recorder = (*Postgres)(nil)

// NewPostgres connects to url, verifies the connection and creates the
// audit_log table if needed.
func NewPostgres(ctx context.Context, url string, cfg PoolConfig) (*Postgres, error) {
	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = int32(cfg.MinConns)
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create audit schema: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Record(ctx context.Context, params Params) (*Entry, error) {
	e := newEntry(params)
	var ops []byte
	if len(e.Operations) > 0 {
		ops = e.Operations
	}
	_, err := p.pool.Exec(ctx, `INSERT INTO audit_log (`+entryColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		toPgUUID(e.ID), string(e.Action), string(e.Severity), e.SessionID,
		toPgText(e.FileName), toPgText(e.Description), ops,
		e.RowsAffected, e.RowsAfter,
		toPgText(e.IPAddress), toPgText(e.UserAgent), toPgText(e.RequestID),
		pgtype.Timestamptz{Time: e.CreatedAt, Valid: true},
	)
	if err != nil {
		return nil, fmt.Errorf("insert audit entry: %w", err)
	}
	return &e, nil
}

// listQuery builds the SELECT for f.
func listQuery(f Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.SessionID != "" {
		add("session_id = $%d", f.SessionID)
	}
	if f.Action != "" {
		add("action = $%d", string(f.Action))
	}
	if !f.Since.IsZero() {
		add("created_at >= $%d", pgtype.Timestamptz{Time: f.Since, Valid: true})
	}

	var where string
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}
	args = append(args, f.limit(), f.Offset)
	query := fmt.Sprintf("SELECT %s FROM audit_log%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		entryColumns, where, len(args)-1, len(args))
	return query, args
}

func (p *Postgres) List(ctx context.Context, f Filter) ([]Entry, error) {
	query, args := listQuery(f)
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanEntry(row pgx.Row) (Entry, error) {
	var (
		e                             Entry
		id                            pgtype.UUID
		action, severity              string
		fileName, desc, ip, ua, reqID pgtype.Text
		ops                           []byte
		affected, after               int32
		created                       pgtype.Timestamptz
	)
	err := row.Scan(&id, &action, &severity, &e.SessionID, &fileName, &desc, &ops,
		&affected, &after, &ip, &ua, &reqID, &created)
	if err != nil {
		return Entry{}, fmt.Errorf("scan audit entry: %w", err)
	}
	e.ID = fromPgUUID(id)
	e.Action, e.Severity = Action(action), Severity(severity)
	e.FileName, e.Description = fileName.String, desc.String
	e.IPAddress, e.UserAgent, e.RequestID = ip.String, ua.String, reqID.String
	e.Operations = ops
	e.RowsAffected, e.RowsAfter = int(affected), int(after)
	e.CreatedAt = created.Time
	return e, nil
}

func (p *Postgres) Purge(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	tag, err := p.pool.Exec(ctx, `DELETE FROM audit_log WHERE id IN (
		SELECT id FROM audit_log WHERE created_at < $1 ORDER BY created_at LIMIT $2)`,
		pgtype.Timestamptz{Time: cutoff, Valid: true}, batchSize)
	if err != nil {
		return 0, fmt.Errorf("purge audit log: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (p *Postgres) Close() { p.pool.Close() }

func toPgText(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}

func toPgUUID(s string) pgtype.UUID {
	var u pgtype.UUID
	if err := u.Scan(s); err != nil {
		return pgtype.UUID{}
	}
	return u
}

func fromPgUUID(u pgtype.UUID) string {
	if !u.Valid {
		return ""
	}
	v, err := u.Value()
	if err != nil {
		return ""
	}
	s, _ := v.(string)
	return s
}
