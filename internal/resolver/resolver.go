// Package resolver implements the cost-tiered resolution cascade: exact
// cache, embedding similarity, cheap inference, and caller-selected
// expensive escalation, tried strictly in that order.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hollyoak/tally/internal/common"
	"github.com/hollyoak/tally/internal/model"
	"github.com/hollyoak/tally/internal/service"
)

const (
	// tierCacheConfidence is returned for deterministic lookups.
	tierCacheConfidence = 0.95
	// similarityThreshold is the minimum cosine similarity for a Tier-2 hit.
	similarityThreshold = 0.92
	// similarityTopK bounds the nearest-neighbor query.
	similarityTopK = 5
	// defaultWorkers bounds concurrent external-API usage in batch calls.
	defaultWorkers = 4
)

// Request is one resolution task.
type Request struct {
	Task            model.TaskType
	Input           string
	CandidateLabels []string
}

// Config holds configuration options for the resolver.
type Config struct {
	Workers int
}

// Resolver orchestrates the cascade. Tiers execute strictly sequentially for
// a single input; a failed external call falls back down the cascade, never
// up. Callers treat a failed resolution as "no suggestion", not an error.
type Resolver struct {
	store      service.LearnedStore
	expensive  service.ExpensiveInference
	sink       service.TierEventSink
	strategies []strategy
	workers    int
}

// New creates a resolver with the default strategy order.
func New(
	store service.LearnedStore,
	index service.EmbeddingIndex,
	generator service.EmbeddingGenerator,
	cheap service.CheapInference,
	expensive service.ExpensiveInference,
	sink service.TierEventSink,
	cfg Config,
) *Resolver {
	if sink == nil {
		sink = NewLogSink()
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}

	return &Resolver{
		store:     store,
		expensive: expensive,
		sink:      sink,
		workers:   workers,
		strategies: []strategy{
			&cacheStrategy{store: store},
			&similarityStrategy{index: index, generator: generator},
			&inferenceStrategy{cheap: cheap, store: store},
		},
	}
}

// Resolve runs the default cascade for one input. The returned resolution is
// always usable: on total failure it carries an empty value with the tier
// that failed, so the surrounding workflow can continue without a suggestion.
func (r *Resolver) Resolve(ctx context.Context, req Request) model.Resolution {
	var last model.Resolution
	last.Task = req.Task

	for _, s := range r.strategies {
		start := time.Now()
		resolution, attempted, err := s.attempt(ctx, req)
		latency := time.Since(start)

		if !attempted {
			continue
		}

		switch {
		case err != nil:
			// Fall back down the cascade; never promote on failure.
			r.emit(req.Task, s.tier(), latency, false, true)
			slog.Warn("Resolution tier failed, falling back",
				"task", req.Task,
				"tier", int(s.tier()),
				"error", err)
			last = model.Resolution{Task: req.Task, Tier: s.tier(), Failed: true}
		case resolution.Suggested():
			r.emit(req.Task, s.tier(), latency, true, false)
			return resolution
		default:
			// Recorded miss; the next tier may now be attempted.
			r.emit(req.Task, s.tier(), latency, false, false)
			last = model.Resolution{Task: req.Task, Tier: s.tier()}
		}
	}

	return last
}

// Escalate runs the expensive-inference tier for a case the caller has
// explicitly flagged as ambiguous. It is never entered automatically from
// the default cascade.
func (r *Resolver) Escalate(ctx context.Context, req service.EscalationRequest) model.Resolution {
	if r.expensive == nil {
		return model.Resolution{Task: req.Task, Tier: model.TierExpensiveInference, Failed: true}
	}

	start := time.Now()
	result, err := r.expensive.Suggest(ctx, req)
	latency := time.Since(start)

	if err != nil {
		r.emit(req.Task, model.TierExpensiveInference, latency, false, true)
		slog.Warn("Escalation failed", "task", req.Task, "error", err)
		return model.Resolution{Task: req.Task, Tier: model.TierExpensiveInference, Failed: true}
	}

	r.emit(req.Task, model.TierExpensiveInference, latency, true, false)
	return model.Resolution{
		Value:      result.Value,
		Task:       req.Task,
		Tier:       model.TierExpensiveInference,
		Confidence: result.Confidence,
	}
}

// ResolveBatch resolves independent requests across a bounded worker pool.
// Results are returned in request order.
func (r *Resolver) ResolveBatch(ctx context.Context, requests []Request) []model.Resolution {
	results := make([]model.Resolution, len(requests))

	sem := make(chan struct{}, r.workers)
	var wg sync.WaitGroup

	for i, req := range requests {
		wg.Add(1)
		go func(i int, req Request) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			select {
			case <-ctx.Done():
				results[i] = model.Resolution{Task: req.Task, Failed: true}
				return
			default:
			}

			results[i] = r.Resolve(ctx, req)
		}(i, req)
	}

	wg.Wait()
	return results
}

func (r *Resolver) emit(task model.TaskType, tier model.Tier, latency time.Duration, hit, failed bool) {
	r.sink.Record(service.TierEvent{
		Timestamp: time.Now(),
		Task:      task,
		Tier:      tier,
		Latency:   latency,
		Hit:       hit,
		Failed:    failed,
	})
}

// SplitFor returns the learned split pattern for the alias matching the
// given description, if any. Used by consumers applying a GL suggestion that
// landed on an alias carrying a split.
func (r *Resolver) SplitFor(ctx context.Context, rawDescription string) (*model.SplitPattern, error) {
	alias, err := r.store.FindAliasMatching(ctx, model.NormalizeVendor(rawDescription))
	if err != nil {
		return nil, fmt.Errorf("failed to match alias: %w", err)
	}
	if alias == nil {
		return nil, nil
	}
	pattern, err := r.store.GetSplitPattern(ctx, alias.AliasPattern)
	if errors.Is(err, common.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get split pattern: %w", err)
	}
	return pattern, nil
}
