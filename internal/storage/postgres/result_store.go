// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/sitecrawler/internal/crawler"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const defaultTablePrefix = "crawl"

// ResultStoreConfig controls the Postgres connection pool used for session results.
type ResultStoreConfig struct {
	DSN string
	// TablePrefix names the "<prefix>_sessions" and "<prefix>_pages" tables.
	TablePrefix     string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type querier interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// ResultStore persists crawl sessions and per-page results in Postgres.
type ResultStore struct {
	pool     querier
	sessions string
	pages    string
}

// NewResultStore creates a Postgres-backed ResultStore using the provided config.
func NewResultStore(ctx context.Context, cfg ResultStoreConfig) (*ResultStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewResultStoreWithPool(pool, cfg.TablePrefix)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewResultStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewResultStoreWithPool(pool querier, tablePrefix string) (*ResultStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if tablePrefix == "" {
		tablePrefix = defaultTablePrefix
	}
	if !validTableName.MatchString(tablePrefix) {
		return nil, fmt.Errorf("invalid table prefix %q", tablePrefix)
	}
	return &ResultStore{
		pool:     pool,
		sessions: tablePrefix + "_sessions",
		pages:    tablePrefix + "_pages",
	}, nil
}

// Close releases the underlying pool resources.
func (s *ResultStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Migrate creates the session and page tables when they do not exist.
func (s *ResultStore) Migrate(ctx context.Context) error {
	statements := []string{
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id           text PRIMARY KEY,
	base_address text NOT NULL,
	scope        text NOT NULL,
	status       text NOT NULL,
	started_at   timestamptz NOT NULL,
	finished_at  timestamptz
)`, s.sessions),
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	session_id  text NOT NULL REFERENCES %s (id) ON DELETE CASCADE,
	address     text NOT NULL,
	succeeded   boolean NOT NULL,
	child_links text[] NOT NULL DEFAULT '{}',
	error       text NOT NULL DEFAULT '',
	recorded_at timestamptz NOT NULL,
	PRIMARY KEY (session_id, address)
)`, s.pages, s.sessions),
	}
	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate result tables: %w", err)
		}
	}
	return nil
}

// CreateSession inserts a session row.
func (s *ResultStore) CreateSession(ctx context.Context, session crawler.SessionRecord) error {
	if session.ID == "" {
		return fmt.Errorf("session id is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (id, base_address, scope, status, started_at)
VALUES ($1, $2, $3, $4, $5)`, s.sessions)
	if _, err := s.pool.Exec(ctx, query,
		session.ID,
		session.BaseAddress,
		session.Scope,
		string(session.Status),
		session.StartedAt,
	); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// RecordPage upserts the result for one address. A later result for the same
// address replaces the earlier one.
func (s *ResultStore) RecordPage(ctx context.Context, page crawler.PageRecord) error {
	if page.SessionID == "" || page.Address == "" {
		return fmt.Errorf("session id and address are required")
	}
	links := page.ChildLinks
	if links == nil {
		links = []string{}
	}
	query := fmt.Sprintf(`
INSERT INTO %s (session_id, address, succeeded, child_links, error, recorded_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (session_id, address) DO UPDATE
SET succeeded = EXCLUDED.succeeded,
	child_links = EXCLUDED.child_links,
	error = EXCLUDED.error,
	recorded_at = EXCLUDED.recorded_at`, s.pages)
	if _, err := s.pool.Exec(ctx, query,
		page.SessionID,
		page.Address,
		page.Succeeded,
		links,
		page.Error,
		page.RecordedAt,
	); err != nil {
		return fmt.Errorf("insert page: %w", err)
	}
	return nil
}

// FinishSession marks a session finished.
func (s *ResultStore) FinishSession(ctx context.Context, sessionID string, finishedAt time.Time) error {
	query := fmt.Sprintf(`
UPDATE %s
SET status = $1, finished_at = $2
WHERE id = $3`, s.sessions)
	tag, err := s.pool.Exec(ctx, query, string(crawler.SessionStatusFinished), finishedAt, sessionID)
	if err != nil {
		return fmt.Errorf("finish session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return crawler.ErrSessionNotFound
	}
	return nil
}

// GetSession returns a session summary with page counters.
func (s *ResultStore) GetSession(ctx context.Context, sessionID string) (crawler.SessionRecord, error) {
	query := fmt.Sprintf(`
SELECT s.id, s.base_address, s.scope, s.status, s.started_at, s.finished_at,
	count(p.address) FILTER (WHERE p.succeeded),
	count(p.address) FILTER (WHERE NOT p.succeeded)
FROM %s s
LEFT JOIN %s p ON p.session_id = s.id
WHERE s.id = $1
GROUP BY s.id`, s.sessions, s.pages)

	var (
		rec              crawler.SessionRecord
		status           string
		finishedAt       pgtype.Timestamptz
		succeeded, fails int64
	)
	err := s.pool.QueryRow(ctx, query, sessionID).Scan(
		&rec.ID,
		&rec.BaseAddress,
		&rec.Scope,
		&status,
		&rec.StartedAt,
		&finishedAt,
		&succeeded,
		&fails,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return crawler.SessionRecord{}, crawler.ErrSessionNotFound
		}
		return crawler.SessionRecord{}, fmt.Errorf("get session: %w", err)
	}
	rec.Status = crawler.SessionStatus(status)
	if finishedAt.Valid {
		t := finishedAt.Time
		rec.FinishedAt = &t
	}
	rec.PagesSucceeded = int(succeeded)
	rec.PagesFailed = int(fails)
	return rec, nil
}

// ListPages returns the page results recorded for a session in recording order.
func (s *ResultStore) ListPages(ctx context.Context, sessionID string) ([]crawler.PageRecord, error) {
	query := fmt.Sprintf(`
SELECT session_id, address, succeeded, child_links, error, recorded_at
FROM %s
WHERE session_id = $1
ORDER BY recorded_at, address`, s.pages)
	rows, err := s.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	defer rows.Close()

	pages := []crawler.PageRecord{}
	for rows.Next() {
		var page crawler.PageRecord
		if err := rows.Scan(
			&page.SessionID,
			&page.Address,
			&page.Succeeded,
			&page.ChildLinks,
			&page.Error,
			&page.RecordedAt,
		); err != nil {
			return nil, fmt.Errorf("scan page row: %w", err)
		}
		pages = append(pages, page)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate page rows: %w", err)
	}
	return pages, nil
}
