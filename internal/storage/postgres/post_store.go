// Package postgres loads analyzed posts into the warehouse.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/carbuzz/internal/tabular"
)

const (
	defaultTable     = "posts"
	defaultBatchSize = 500
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*(\.[a-zA-Z_][a-zA-Z0-9_]*)?$`)

var postColumns = []string{
	"site", "datetime", "model", "title", "url", "popularity", "views", "positive", "negative",
}

// Config controls the Postgres connection pool used by the loader.
type Config struct {
	DSN             string
	Table           string
	BatchSize       int
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// PostStore inserts post rows into a warehouse table.
type PostStore struct {
	pool      execCloser
	table     string
	batchSize int
}

// NewPostStore connects a pool and returns a PostStore.
func NewPostStore(ctx context.Context, cfg Config) (*PostStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("warehouse.dsn is required")
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
	store, err := NewPostStoreWithPool(pool, cfg.Table, cfg.BatchSize)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewPostStoreWithPool constructs a store from an existing pool.
func NewPostStoreWithPool(pool execCloser, table string, batchSize int) (*PostStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &PostStore{pool: pool, table: table, batchSize: batchSize}, nil
}

// Close releases the underlying pool resources.
func (s *PostStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// InsertPosts writes rows in batches and returns how many were inserted.
func (s *PostStore) InsertPosts(ctx context.Context, rows []tabular.PostRow) (int, error) {
	inserted := 0
	for start := 0; start < len(rows); start += s.batchSize {
		end := min(start+s.batchSize, len(rows))
		query, args, err := s.insertQuery(rows[start:end])
		if err != nil {
			return inserted, err
		}
		tag, err := s.pool.Exec(ctx, query, args...)
		if err != nil {
			return inserted, fmt.Errorf("insert posts %d-%d: %w", start, end, err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

func (s *PostStore) insertQuery(rows []tabular.PostRow) (string, []any, error) {
	builder := sq.Insert(s.table).Columns(postColumns...).PlaceholderFormat(sq.Dollar)
	for _, r := range rows {
		builder = builder.Values(
			r.Site,
			time.UnixMilli(r.Datetime).UTC(),
			r.Model,
			r.Title,
			r.URL,
			r.Popularity,
			r.Views,
			r.Positive,
			r.Negative,
		)
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("build insert: %w", err)
	}
	return query, args, nil
}
