package learning

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hollyoak/tally/internal/model"
	"github.com/hollyoak/tally/internal/service"
)

// stalenessMonths is how long an alias may go unmatched before it is flagged
// for review.
const stalenessMonths = 6

// ShouldFlag reports whether an alias is stale as of now. Aliases that have
// never matched are judged by their creation time.
func ShouldFlag(alias *model.VendorAlias, now time.Time) bool {
	if alias.FlaggedForReview {
		return false
	}
	last := alias.LastMatchedAt
	if last.IsZero() {
		last = alias.CreatedAt
	}
	if last.IsZero() {
		return false
	}
	return last.Before(now.AddDate(0, -stalenessMonths, 0))
}

// DecayJob periodically flags stale aliases for review. Flagged aliases still
// serve lookups; they are surfaced to the user for reconfirmation, never
// deleted or silently suppressed.
type DecayJob struct {
	store service.LearnedStore
}

// NewDecayJob creates a decay job over the given store.
func NewDecayJob(store service.LearnedStore) *DecayJob {
	return &DecayJob{store: store}
}

// SweepStale flags every stale alias and returns how many were flagged.
func (j *DecayJob) SweepStale(ctx context.Context, now time.Time) (int, error) {
	aliases, err := j.store.ListAliases(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list aliases: %w", err)
	}

	flagged := 0
	for i := range aliases {
		alias := &aliases[i]
		if !ShouldFlag(alias, now) {
			continue
		}
		if err := j.store.FlagAliasForReview(ctx, alias.AliasPattern, true); err != nil {
			return flagged, fmt.Errorf("failed to flag alias %q: %w", alias.AliasPattern, err)
		}
		flagged++
		slog.Info("Flagged stale alias for review",
			"pattern", alias.AliasPattern,
			"last_matched_at", alias.LastMatchedAt)
	}

	return flagged, nil
}

// Reconfirm clears the review flag on an alias after the user has verified it
// is still correct, refreshing its match recency so it won't immediately
// re-flag.
func (j *DecayJob) Reconfirm(ctx context.Context, pattern string, now time.Time) error {
	alias, err := j.store.GetAliasByPattern(ctx, pattern)
	if err != nil {
		return fmt.Errorf("failed to load alias: %w", err)
	}

	alias.FlaggedForReview = false
	alias.Confidence = 1.0
	alias.Source = model.AliasSourceReconfirmed

	if err := j.store.SaveAlias(ctx, alias); err != nil {
		return fmt.Errorf("failed to save alias: %w", err)
	}
	if err := j.store.RecordAliasMatch(ctx, pattern, now); err != nil {
		return fmt.Errorf("failed to refresh alias recency: %w", err)
	}
	return nil
}
