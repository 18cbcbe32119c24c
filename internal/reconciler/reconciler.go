// Package reconciler classifies incoming postings against the store and is
// the sole write path for job postings.
package reconciler

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/jobwatch/crawler/internal/crawler"
)

// Reconciler upserts normalized postings keyed by canonical URL.
type Reconciler struct {
	store crawler.PostingStore
	clock crawler.Clock
	newID func() string
}

// New constructs a Reconciler.
func New(store crawler.PostingStore, clock crawler.Clock) *Reconciler {
	return &Reconciler{
		store: store,
		clock: clock,
		newID: uuid.NewString,
	}
}

// Upsert looks up the posting by canonical URL and applies exactly one of:
// insert (NEW), in-place update of title/company/content/updated-at
// (UPDATED), or nothing when the stored content payload is byte-identical
// (SKIP). Comparison is exact string equality on the serialized content; no
// semantic diffing.
func (r *Reconciler) Upsert(
	ctx context.Context,
	targetID string,
	posting crawler.NormalizedPosting,
) (crawler.Outcome, error) {
	existing, err := r.store.GetPostingByURL(ctx, posting.URL)
	switch {
	case errors.Is(err, crawler.ErrNotFound):
		now := r.clock.Now()
		record := crawler.JobPosting{
			ID:          r.newID(),
			TargetID:    targetID,
			Title:       posting.Title,
			CompanyName: posting.CompanyName,
			Content:     posting.Content,
			URL:         posting.URL,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := r.store.InsertPosting(ctx, record); err != nil {
			return "", fmt.Errorf("insert posting: %w", err)
		}
		return crawler.OutcomeNew, nil
	case err != nil:
		return "", fmt.Errorf("select posting: %w", err)
	}

	if existing.Content == posting.Content {
		return crawler.OutcomeSkip, nil
	}

	update := crawler.PostingUpdate{
		Title:       posting.Title,
		CompanyName: posting.CompanyName,
		Content:     posting.Content,
		UpdatedAt:   r.clock.Now(),
	}
	if err := r.store.UpdatePosting(ctx, posting.URL, update); err != nil {
		return "", fmt.Errorf("update posting: %w", err)
	}
	return crawler.OutcomeUpdated, nil
}
