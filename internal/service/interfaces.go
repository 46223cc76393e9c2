// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/hollyoak/tally/internal/model"
)

// LearnedStore is the contract for the persistence layer holding learned
// state: vendor aliases, the description cache, statement fingerprints, and
// split patterns. Counter updates are single-statement upserts so they stay
// correct under concurrent writers for the same natural key.
type LearnedStore interface {
	// Vendor alias operations
	FindAliasMatching(ctx context.Context, normalizedDescription string) (*model.VendorAlias, error)
	GetAliasByPattern(ctx context.Context, pattern string) (*model.VendorAlias, error)
	SaveAlias(ctx context.Context, alias *model.VendorAlias) error
	RecordAliasMatch(ctx context.Context, pattern string, matchedAt time.Time) error
	ListAliases(ctx context.Context) ([]model.VendorAlias, error)
	ListStaleAliases(ctx context.Context) ([]model.VendorAlias, error)
	FlagAliasForReview(ctx context.Context, pattern string, flagged bool) error

	// Description cache operations
	GetDescriptionByHash(ctx context.Context, rawHash string) (*model.DescriptionCacheEntry, error)
	RecordDescriptionHit(ctx context.Context, rawHash string) error
	UpsertDescription(ctx context.Context, entry *model.DescriptionCacheEntry) error

	// Statement fingerprint operations
	GetFingerprint(ctx context.Context, headerHash string) (*model.StatementFingerprint, error)
	SaveFingerprint(ctx context.Context, fp *model.StatementFingerprint) error
	DeleteFingerprint(ctx context.Context, headerHash string) error

	// Split pattern operations
	GetSplitPattern(ctx context.Context, aliasPattern string) (*model.SplitPattern, error)
	SaveSplitPattern(ctx context.Context, pattern *model.SplitPattern) error

	// Database management
	Migrate(ctx context.Context) error
	Close() error
}

// EmbeddingMatch is one ranked nearest-neighbor result.
type EmbeddingMatch struct {
	Embedding  model.ExpenseEmbedding
	Similarity float64
}

// EmbeddingIndex stores expense embeddings and answers nearest-neighbor
// queries. Writes are append-only; queries only return verified rows.
type EmbeddingIndex interface {
	Add(ctx context.Context, embedding model.ExpenseEmbedding) error
	Query(ctx context.Context, vector []float32, k int, minSimilarity float64) ([]EmbeddingMatch, error)
	Count() int
	Close() error
}

// EmbeddingGenerator turns text into a fixed-dimensionality vector.
// Provider-agnostic; retry and timeout semantics live in the adapter.
type EmbeddingGenerator interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// Suggestion is a label choice returned by an inference provider.
type Suggestion struct {
	Label      string
	Confidence float64
}

// CheapInference is the low-cost model used for routine suggestions.
type CheapInference interface {
	Suggest(ctx context.Context, text string, candidateLabels []string) (Suggestion, error)
}

// EscalationRequest carries the extra context an ambiguous case needs.
type EscalationRequest struct {
	Context map[string]string
	Task    model.TaskType
	Input   string
}

// EscalationResult is the structured output of an expensive-model call.
type EscalationResult struct {
	Value      string
	Detail     string
	Confidence float64
}

// ExpensiveInference handles caller-selected escalations only; it is never
// entered automatically from the default cascade.
type ExpensiveInference interface {
	Suggest(ctx context.Context, req EscalationRequest) (EscalationResult, error)
}

// TierEvent records one tier attempt for cost observability.
type TierEvent struct {
	Timestamp time.Time
	Task      model.TaskType
	Tier      model.Tier
	Latency   time.Duration
	Hit       bool
	Failed    bool
}

// TierEventSink receives tier-usage events. Emission is a required side
// effect of every resolution, not best-effort.
type TierEventSink interface {
	Record(event TierEvent)
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
