// Package orchestrator drives one crawl pass over the active targets.
package orchestrator

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/jobwatch/crawler/internal/adapter"
	"github.com/jobwatch/crawler/internal/crawler"
	"github.com/jobwatch/crawler/internal/metrics"
)

// Upserter reconciles one normalized posting into the store.
type Upserter interface {
	Upsert(ctx context.Context, targetID string, posting crawler.NormalizedPosting) (crawler.Outcome, error)
}

// Orchestrator runs crawl passes. Targets are processed sequentially; a
// failing target never aborts the pass.
type Orchestrator struct {
	targets   crawler.TargetStore
	registry  *adapter.Registry
	upserter  Upserter
	publisher crawler.Publisher
	clock     crawler.Clock
	logger    *zap.Logger
}

// New constructs an Orchestrator. publisher may be nil when no event bus is
// configured.
func New(
	targets crawler.TargetStore,
	registry *adapter.Registry,
	upserter Upserter,
	publisher crawler.Publisher,
	clock crawler.Clock,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		targets:   targets,
		registry:  registry,
		upserter:  upserter,
		publisher: publisher,
		clock:     clock,
		logger:    logger,
	}
}

// RunPass loads the active targets and processes each one, returning
// aggregate stats. The error is non-nil only when the target list itself
// cannot be loaded; per-target failures are recorded and counted instead.
func (o *Orchestrator) RunPass(ctx context.Context) (crawler.PassStats, error) {
	var stats crawler.PassStats

	targets, err := o.targets.SelectActiveTargets(ctx)
	if err != nil {
		return stats, fmt.Errorf("select active targets: %w", err)
	}
	o.logger.Info("starting crawl pass", zap.Int("targets", len(targets)))

	for _, target := range targets {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		if !target.Active {
			continue
		}
		stats.Merge(o.processTarget(ctx, target))
	}

	o.logger.Info("crawl pass finished",
		zap.Int("new", stats.New),
		zap.Int("updated", stats.Updated),
		zap.Int("skipped", stats.Skipped),
		zap.Int("errors", stats.Errors),
	)
	return stats, nil
}

func (o *Orchestrator) processTarget(ctx context.Context, target crawler.CrawlTarget) crawler.PassStats {
	var stats crawler.PassStats
	logger := o.logger.With(
		zap.String("target", target.Name),
		zap.String("kind", string(target.Kind)),
	)

	a, ok := o.registry.Lookup(target.Kind)
	if !ok {
		o.failTarget(ctx, target, fmt.Sprintf("no adapter for kind %q", target.Kind), logger)
		stats.Errors++
		return stats
	}

	res, err := a.Poll(ctx, target)
	if err != nil {
		o.failTarget(ctx, target, err.Error(), logger)
		stats.Errors++
		return stats
	}
	stats.Errors += res.ItemErrors

	if res.Fingerprint == target.LastFingerprint {
		logger.Debug("target unchanged")
		if err := o.targets.UpdateTargetChecked(ctx, target.ID); err != nil {
			logger.Warn("record checked time failed", zap.Error(err))
		}
		metrics.ObserveTarget("unchanged")
		return stats
	}

	for _, posting := range res.Postings {
		outcome, err := o.upserter.Upsert(ctx, target.ID, posting)
		if err != nil {
			logger.Error("upsert posting failed",
				zap.String("url", posting.URL),
				zap.Error(err),
			)
			stats.Errors++
			continue
		}
		stats.Count(outcome)
		metrics.ObservePosting(string(outcome))
		o.publishChange(ctx, target, posting, outcome, logger)
	}

	if err := o.targets.UpdateTargetFingerprint(ctx, target.ID, res.Fingerprint); err != nil {
		logger.Warn("record fingerprint failed", zap.Error(err))
	}
	metrics.ObserveTarget("changed")
	return stats
}

// failTarget records a terminal per-target failure. The stored fingerprint
// stays untouched so the next pass retries the full mapping.
func (o *Orchestrator) failTarget(ctx context.Context, target crawler.CrawlTarget, message string, logger *zap.Logger) {
	logger.Error("target failed", zap.String("reason", message))
	if err := o.targets.UpdateTargetError(ctx, target.ID, message); err != nil {
		logger.Warn("record target error failed", zap.Error(err))
	}
	metrics.ObserveTarget("error")
}

// publishChange emits a change event for NEW and UPDATED outcomes.
// Publishing is best effort: a bus failure is logged, never counted against
// the pass.
func (o *Orchestrator) publishChange(
	ctx context.Context,
	target crawler.CrawlTarget,
	posting crawler.NormalizedPosting,
	outcome crawler.Outcome,
	logger *zap.Logger,
) {
	if o.publisher == nil || outcome == crawler.OutcomeSkip {
		return
	}
	event := crawler.ChangeEvent{
		URL:         posting.URL,
		Outcome:     outcome,
		TargetID:    target.ID,
		Title:       posting.Title,
		CompanyName: posting.CompanyName,
		ObservedAt:  o.clock.Now(),
	}
	if err := o.publisher.PublishChange(ctx, event); err != nil {
		logger.Warn("publish change event failed",
			zap.String("url", posting.URL),
			zap.Error(err),
		)
	}
}
