// Package postgres provides a Postgres-backed playlist store.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/radio-playlist-archiver/internal/playlist"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Begin(context.Context) (pgx.Tx, error)
	Ping(context.Context) error
	Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS shows (
	url         TEXT PRIMARY KEY,
	target_name TEXT NOT NULL,
	show_title  TEXT NOT NULL DEFAULT '',
	dj_name     TEXT NOT NULL DEFAULT '',
	date_str    TEXT NOT NULL DEFAULT '',
	time_str    TEXT NOT NULL DEFAULT '',
	ingested_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS shows_target_name_idx ON shows (target_name);
CREATE TABLE IF NOT EXISTS play_events (
	id          BIGSERIAL PRIMARY KEY,
	show_url    TEXT NOT NULL REFERENCES shows (url),
	artist      TEXT NOT NULL,
	song        TEXT NOT NULL,
	album       TEXT NOT NULL DEFAULT 'N/A',
	ingested_at TIMESTAMPTZ NOT NULL,
	UNIQUE (show_url, artist, song)
);`

const (
	showExistsQuery = `SELECT EXISTS (SELECT 1 FROM shows WHERE url = $1)`
	insertShowQuery = `
INSERT INTO shows (url, target_name, show_title, dj_name, date_str, time_str, ingested_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (url) DO NOTHING`
	insertPlayQuery = `
INSERT INTO play_events (show_url, artist, song, album, ingested_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (show_url, artist, song) DO NOTHING`
	historyQuery = `
SELECT pe.artist, pe.song, pe.album, s.date_str, s.time_str
FROM play_events pe
JOIN shows s ON s.url = pe.show_url
WHERE s.target_name = $1
ORDER BY pe.ingested_at DESC, pe.id DESC`
	countShowsQuery = `SELECT COUNT(*) FROM shows WHERE target_name = $1`
)

// Store implements playlist.Store on Postgres.
type Store struct {
	pool pool
}

// New connects to Postgres using cfg.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store.dsn is required")
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
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: p}, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(p pool) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: p}, nil
}

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Close releases the pool.
func (s *Store) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

// ShowExists looks up a show by URL.
func (s *Store) ShowExists(ctx context.Context, url string) (bool, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx, showExistsQuery, url).Scan(&exists); err != nil {
		return false, fmt.Errorf("query show %s: %w", url, err)
	}
	return exists, nil
}

// SaveShow inserts the show, leaving an existing row with the same URL untouched.
func (s *Store) SaveShow(ctx context.Context, show playlist.Show) (bool, error) {
	return insertShow(ctx, s.pool, show)
}

// SavePlayEvents inserts the plays in one transaction and counts the new rows.
func (s *Store) SavePlayEvents(ctx context.Context, showURL string, events []playlist.PlayEvent) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}
	var inserted int
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		n, err := insertPlays(ctx, tx, showURL, events)
		inserted = n
		return err
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// IngestShow inserts the show and its plays in a single transaction.
func (s *Store) IngestShow(ctx context.Context, show playlist.Show, events []playlist.PlayEvent) (bool, int, error) {
	var (
		created  bool
		inserted int
	)
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		var err error
		if created, err = insertShow(ctx, tx, show); err != nil {
			return err
		}
		inserted, err = insertPlays(ctx, tx, show.URL, events)
		return err
	})
	if err != nil {
		return false, 0, err
	}
	return created, inserted, nil
}

type execer interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
}

func insertShow(ctx context.Context, db execer, show playlist.Show) (bool, error) {
	tag, err := db.Exec(ctx, insertShowQuery,
		show.URL,
		show.TargetName,
		show.Title,
		show.Presenter,
		show.DateText,
		show.TimeText,
		show.IngestedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert show %s: %w", show.URL, err)
	}
	return tag.RowsAffected() == 1, nil
}

func insertPlays(ctx context.Context, db execer, showURL string, events []playlist.PlayEvent) (int, error) {
	inserted := 0
	for _, ev := range events {
		tag, err := db.Exec(ctx, insertPlayQuery, showURL, ev.Artist, ev.Song, ev.Album, ev.IngestedAt)
		if err != nil {
			return 0, fmt.Errorf("insert play for %s: %w", showURL, err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

// inTx runs fn in a transaction, rolling back when fn fails.
func (s *Store) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// QueryHistory returns the target's plays, most recently ingested first.
func (s *Store) QueryHistory(ctx context.Context, targetName string) ([]playlist.HistoryRow, error) {
	rows, err := s.pool.Query(ctx, historyQuery, targetName)
	if err != nil {
		return nil, fmt.Errorf("query history for %s: %w", targetName, err)
	}
	defer rows.Close()

	var history []playlist.HistoryRow
	for rows.Next() {
		var row playlist.HistoryRow
		if err := rows.Scan(&row.Artist, &row.Song, &row.Album, &row.DateText, &row.TimeText); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		history = append(history, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return history, nil
}

// CountShows returns how many shows are stored for the target.
func (s *Store) CountShows(ctx context.Context, targetName string) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, countShowsQuery, targetName).Scan(&n); err != nil {
		return 0, fmt.Errorf("count shows for %s: %w", targetName, err)
	}
	return n, nil
}
