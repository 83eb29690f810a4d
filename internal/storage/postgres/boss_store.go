// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/tibialore/boss-sync/internal/boss"
)

// dbPool is the subset of pgxpool.Pool used by the stores; pgxmock
// implements it for tests.
type dbPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// BossStoreConfig controls the Postgres connection pool for boss documents.
type BossStoreConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// BossStore persists boss records as JSONB documents keyed by slug.
type BossStore struct {
	pool   dbPool
	logger *zap.Logger
}

// NewBossStore connects a pool and returns a store backed by it.
func NewBossStore(ctx context.Context, cfg BossStoreConfig, logger *zap.Logger) (*BossStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
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
	return NewBossStoreWithPool(pool, logger)
}

// NewBossStoreWithPool constructs a store from an existing pool (primarily
// for testing).
func NewBossStoreWithPool(pool dbPool, logger *zap.Logger) (*BossStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BossStore{pool: pool, logger: logger}, nil
}

// Pool exposes the connection pool for other stores sharing it.
func (s *BossStore) Pool() dbPool {
	return s.pool
}

// Close releases the underlying pool resources.
func (s *BossStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Upsert replaces the stored document for the record's slug wholesale.
func (s *BossStore) Upsert(ctx context.Context, rec boss.Record) error {
	if rec.Slug == "" {
		return fmt.Errorf("record slug is required")
	}
	doc, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal boss document: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO bosses (slug, name, doc, updated_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (slug) DO UPDATE SET
	name = EXCLUDED.name,
	doc = EXCLUDED.doc,
	updated_at = now()`,
		rec.Slug, rec.Name, doc,
	)
	if err != nil {
		return fmt.Errorf("upsert boss %q: %w", rec.Slug, err)
	}
	return nil
}

// UpsertBatch upserts each record individually and returns the number of
// successes. A failing record is logged and skipped, not fatal.
func (s *BossStore) UpsertBatch(ctx context.Context, recs []boss.Record) (int, error) {
	saved := 0
	for _, rec := range recs {
		if err := s.Upsert(ctx, rec); err != nil {
			s.logger.Error("batch upsert item failed",
				zap.String("slug", rec.Slug),
				zap.Error(err),
			)
			continue
		}
		saved++
	}
	s.logger.Info("batch upsert complete",
		zap.Int("saved", saved),
		zap.Int("total", len(recs)),
	)
	return saved, nil
}

// FindBySlug returns the stored record or boss.ErrNotFound.
func (s *BossStore) FindBySlug(ctx context.Context, slug string) (boss.Record, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx, `SELECT doc FROM bosses WHERE slug = $1`, slug).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return boss.Record{}, boss.ErrNotFound
	}
	if err != nil {
		return boss.Record{}, fmt.Errorf("find boss %q: %w", slug, err)
	}
	var rec boss.Record
	if err := json.Unmarshal(doc, &rec); err != nil {
		return boss.Record{}, fmt.Errorf("decode boss document %q: %w", slug, err)
	}
	return rec, nil
}

// List returns records ordered by name.
func (s *BossStore) List(ctx context.Context, offset, limit int) ([]boss.Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT doc FROM bosses ORDER BY name OFFSET $1 LIMIT $2`, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("list bosses: %w", err)
	}
	return scanRecords(rows, s.logger)
}

// Search returns records whose name contains the query, case-insensitive,
// ordered by name.
func (s *BossStore) Search(ctx context.Context, query string, offset, limit int) ([]boss.Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT doc FROM bosses WHERE name ILIKE '%' || $1 || '%' ORDER BY name OFFSET $2 LIMIT $3`,
		query, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("search bosses: %w", err)
	}
	return scanRecords(rows, s.logger)
}

// Count returns the number of stored records.
func (s *BossStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM bosses`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count bosses: %w", err)
	}
	return n, nil
}

func scanRecords(rows pgx.Rows, logger *zap.Logger) ([]boss.Record, error) {
	defer rows.Close()
	var out []boss.Record
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan boss row: %w", err)
		}
		var rec boss.Record
		if err := json.Unmarshal(doc, &rec); err != nil {
			// A single corrupt document must not break listing.
			logger.Warn("skipping undecodable boss document", zap.Error(err))
			continue
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate boss rows: %w", err)
	}
	return out, nil
}
