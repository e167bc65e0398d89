// Package postgres implements the staging/merge warehouse on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/filmesbr/torrent-movies-etl/internal/pipeline"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// columnList is the shared schema of the main and staging tables, in insert
// order. Link leads because it is the natural key.
const columnList = `link, dubbed_title, original_title, rating, year, genres, file_size, runtime_minutes, video_quality, quality_label, dubbed_audio, synopsis`

// Config controls the Postgres connection pool and table names.
type Config struct {
	DSN             string
	MainTable       string
	StagingTable    string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// Store implements pipeline.Warehouse over a pgx pool.
type Store struct {
	pool    pgxPool
	main    string
	staging string
}

// New connects a Store using the provided config.
func New(ctx context.Context, cfg Config) (*Store, error) {
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
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return newWithPool(pool, cfg.MainTable, cfg.StagingTable)
}

// NewWithPool constructs a Store from an existing pool (primarily for
// testing with pgxmock).
func NewWithPool(pool pgxPool, mainTable, stagingTable string) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return newWithPool(pool, mainTable, stagingTable)
}

func newWithPool(pool pgxPool, mainTable, stagingTable string) (*Store, error) {
	if mainTable == "" {
		mainTable = "movies"
	}
	if stagingTable == "" {
		stagingTable = "movies_staging"
	}
	for _, table := range []string{mainTable, stagingTable} {
		if !validTableName.MatchString(table) {
			return nil, fmt.Errorf("invalid table name %q", table)
		}
	}
	return &Store{pool: pool, main: mainTable, staging: stagingTable}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema idempotently provisions the main table (keyed by link) and an
// identically shaped staging table.
func (s *Store) EnsureSchema(ctx context.Context) error {
	mainDDL := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	link TEXT PRIMARY KEY,
	dubbed_title TEXT,
	original_title TEXT,
	rating DOUBLE PRECISION,
	year INTEGER,
	genres TEXT,
	file_size TEXT,
	runtime_minutes INTEGER,
	video_quality DOUBLE PRECISION,
	quality_label TEXT,
	dubbed_audio BOOLEAN,
	synopsis TEXT
)`, s.main)
	stagingDDL := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	link TEXT NOT NULL,
	dubbed_title TEXT,
	original_title TEXT,
	rating DOUBLE PRECISION,
	year INTEGER,
	genres TEXT,
	file_size TEXT,
	runtime_minutes INTEGER,
	video_quality DOUBLE PRECISION,
	quality_label TEXT,
	dubbed_audio BOOLEAN,
	synopsis TEXT
)`, s.staging)

	if _, err := s.pool.Exec(ctx, mainDDL); err != nil {
		return fmt.Errorf("create table %s: %w", s.main, err)
	}
	if _, err := s.pool.Exec(ctx, stagingDDL); err != nil {
		return fmt.Errorf("create table %s: %w", s.staging, err)
	}
	return nil
}

// Stage replaces the staging contents with batch inside one transaction so a
// concurrent merge never observes a partially staged batch.
func (s *Store) Stage(ctx context.Context, batch []pipeline.MovieRecord) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin staging tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s", s.staging)); err != nil {
		return s.wrapSchema(s.staging, fmt.Errorf("truncate staging: %w", err))
	}

	insert := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)",
		s.staging, columnList,
	)
	for _, rec := range batch {
		_, err := tx.Exec(ctx, insert,
			rec.Link,
			rec.DubbedTitle,
			rec.OriginalTitle,
			rec.Rating,
			rec.Year,
			rec.Genres,
			rec.FileSize,
			rec.RuntimeMinutes,
			rec.VideoQuality,
			rec.QualityLabel,
			rec.DubbedAudio,
			rec.Synopsis,
		)
		if err != nil {
			return s.wrapSchema(s.staging, fmt.Errorf("stage record %s: %w", rec.Link, err))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit staging tx: %w", err)
	}
	return nil
}

// MergeToMain inserts staged records whose link is not already present in
// the permanent store and reports the number of new rows. Existing rows are
// left untouched.
func (s *Store) MergeToMain(ctx context.Context) (int64, error) {
	merge := fmt.Sprintf(`
INSERT INTO %s (%s)
SELECT DISTINCT ON (link) %s
FROM %s
ON CONFLICT (link) DO NOTHING`, s.main, columnList, columnList, s.staging)

	tag, err := s.pool.Exec(ctx, merge)
	if err != nil {
		return 0, s.wrapSchema(s.main, fmt.Errorf("merge staging into main: %w", err))
	}
	return tag.RowsAffected(), nil
}

// TruncateStaging empties the staging table. Called only after a successful
// merge; on merge failure staging is preserved for retry.
func (s *Store) TruncateStaging(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s", s.staging)); err != nil {
		return s.wrapSchema(s.staging, fmt.Errorf("truncate staging: %w", err))
	}
	return nil
}

// Postgres error codes that indicate the staged data and table shape have
// drifted apart rather than a transient failure.
var schemaErrorCodes = map[string]struct{}{
	"42P01": {}, // undefined_table
	"42703": {}, // undefined_column
	"42804": {}, // datatype_mismatch
	"42601": {}, // syntax_error (malformed generated DDL)
}

func (s *Store) wrapSchema(table string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if _, ok := schemaErrorCodes[pgErr.Code]; ok {
			return &pipeline.SchemaError{Table: table, Cause: err}
		}
	}
	return err
}
