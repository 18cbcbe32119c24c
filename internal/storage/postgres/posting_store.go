package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jobwatch/crawler/internal/crawler"
)

// PostingStore persists job postings keyed by original_url.
type PostingStore struct {
	pool querier
}

// NewPostingStore creates a Postgres-backed PostingStore using the provided config.
func NewPostingStore(ctx context.Context, cfg PoolConfig) (*PostingStore, error) {
	pool, err := NewPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &PostingStore{pool: pool}, nil
}

// NewPostingStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewPostingStoreWithPool(pool querier) (*PostingStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &PostingStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *PostingStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// GetPostingByURL loads one posting by its canonical URL. Returns
// crawler.ErrNotFound when no row matches.
func (s *PostingStore) GetPostingByURL(ctx context.Context, url string) (crawler.JobPosting, error) {
	query := `
SELECT
	id,
	crawl_target_id,
	title,
	company_name,
	content_raw,
	original_url,
	analysis_result,
	created_at,
	updated_at
FROM job_postings
WHERE original_url = $1`

	var p crawler.JobPosting
	err := s.pool.QueryRow(ctx, query, url).Scan(
		&p.ID,
		&p.TargetID,
		&p.Title,
		&p.CompanyName,
		&p.Content,
		&p.URL,
		&p.AnalysisResult,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return crawler.JobPosting{}, crawler.ErrNotFound
	}
	if err != nil {
		return crawler.JobPosting{}, fmt.Errorf("select posting: %w", err)
	}
	return p, nil
}

// InsertPosting writes a brand-new posting row.
func (s *PostingStore) InsertPosting(ctx context.Context, posting crawler.JobPosting) error {
	if posting.ID == "" {
		return fmt.Errorf("posting id is required")
	}
	query := `
INSERT INTO job_postings (
	id,
	crawl_target_id,
	title,
	company_name,
	content_raw,
	original_url,
	created_at,
	updated_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8
)`
	args := []any{
		posting.ID,
		posting.TargetID,
		posting.Title,
		posting.CompanyName,
		posting.Content,
		posting.URL,
		posting.CreatedAt,
		posting.UpdatedAt,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert posting: %w", err)
	}
	return nil
}

// UpdatePosting rewrites the mutable columns of the posting at url.
// created_at is never touched.
func (s *PostingStore) UpdatePosting(ctx context.Context, url string, update crawler.PostingUpdate) error {
	query := `
UPDATE job_postings
SET title = $2,
	company_name = $3,
	content_raw = $4,
	updated_at = $5
WHERE original_url = $1`
	tag, err := s.pool.Exec(ctx, query, url, update.Title, update.CompanyName, update.Content, update.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update posting: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return crawler.ErrNotFound
	}
	return nil
}
