// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jobwatch/crawler/internal/crawler"
)

// PoolConfig controls the Postgres connection pool shared by the stores.
type PoolConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// NewPool opens a pgx pool from the config.
func NewPool(ctx context.Context, cfg PoolConfig) (*pgxpool.Pool, error) {
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
	return pool, nil
}

// TargetStore reads crawl targets and writes their bookkeeping columns.
type TargetStore struct {
	pool querier
}

// NewTargetStore creates a Postgres-backed TargetStore using the provided config.
func NewTargetStore(ctx context.Context, cfg PoolConfig) (*TargetStore, error) {
	pool, err := NewPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &TargetStore{pool: pool}, nil
}

// NewTargetStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewTargetStoreWithPool(pool querier) (*TargetStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &TargetStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *TargetStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// SelectActiveTargets loads every target with is_active = true.
func (s *TargetStore) SelectActiveTargets(ctx context.Context) ([]crawler.CrawlTarget, error) {
	query := `
SELECT
	id,
	name,
	list_url,
	parser_type,
	parser_config,
	is_active,
	last_list_hash,
	last_checked_at,
	last_error
FROM crawl_targets
WHERE is_active = true
ORDER BY name`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("select targets: %w", err)
	}
	defer rows.Close()

	var targets []crawler.CrawlTarget
	for rows.Next() {
		var (
			t            crawler.CrawlTarget
			kind         string
			parserConfig []byte
			lastHash     *string
			lastError    *string
		)
		if err := rows.Scan(
			&t.ID,
			&t.Name,
			&t.ListURL,
			&kind,
			&parserConfig,
			&t.Active,
			&lastHash,
			&t.LastCheckedAt,
			&lastError,
		); err != nil {
			return nil, fmt.Errorf("scan target: %w", err)
		}
		t.Kind = crawler.AdapterKind(kind)
		if len(parserConfig) > 0 {
			if err := json.Unmarshal(parserConfig, &t.ParserConfig); err != nil {
				return nil, fmt.Errorf("decode parser config for %s: %w", t.ID, err)
			}
		}
		if lastHash != nil {
			t.LastFingerprint = *lastHash
		}
		if lastError != nil {
			t.LastError = *lastError
		}
		targets = append(targets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate targets: %w", err)
	}
	return targets, nil
}

// UpdateTargetChecked stamps last_checked_at without touching the fingerprint.
func (s *TargetStore) UpdateTargetChecked(ctx context.Context, id string) error {
	query := `
UPDATE crawl_targets
SET last_checked_at = $2
WHERE id = $1`
	if _, err := s.pool.Exec(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("update target checked: %w", err)
	}
	return nil
}

// UpdateTargetFingerprint records the new listing fingerprint and clears any
// previous error.
func (s *TargetStore) UpdateTargetFingerprint(ctx context.Context, id, digest string) error {
	query := `
UPDATE crawl_targets
SET last_list_hash = $2,
	last_checked_at = $3,
	last_error = NULL
WHERE id = $1`
	if _, err := s.pool.Exec(ctx, query, id, digest, time.Now().UTC()); err != nil {
		return fmt.Errorf("update target fingerprint: %w", err)
	}
	return nil
}

// UpdateTargetError records a terminal failure message for the pass.
func (s *TargetStore) UpdateTargetError(ctx context.Context, id, message string) error {
	query := `
UPDATE crawl_targets
SET last_error = $2,
	last_checked_at = $3
WHERE id = $1`
	if _, err := s.pool.Exec(ctx, query, id, message, time.Now().UTC()); err != nil {
		return fmt.Errorf("update target error: %w", err)
	}
	return nil
}
