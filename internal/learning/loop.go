// Package learning implements the feedback path: user confirmations update
// learned state so future resolutions stay on the cheap tiers.
package learning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hollyoak/tally/internal/common"
	"github.com/hollyoak/tally/internal/model"
	"github.com/hollyoak/tally/internal/service"
)

// Loop applies confirmation events to the learned store and embedding index.
// Every operation is idempotent per natural key: replaying a confirmation
// updates counters in place instead of creating duplicate rows.
type Loop struct {
	store     service.LearnedStore
	index     service.EmbeddingIndex
	generator service.EmbeddingGenerator
}

// NewLoop creates a learning loop. The index and generator may be nil when
// embeddings are disabled; GL and department confirmations then skip the
// verified-embedding write.
func NewLoop(store service.LearnedStore, index service.EmbeddingIndex, generator service.EmbeddingGenerator) *Loop {
	return &Loop{store: store, index: index, generator: generator}
}

// RecordConfirmation applies a user-confirmed resolution for the given task.
func (l *Loop) RecordConfirmation(ctx context.Context, task model.TaskType, input, chosenValue string) error {
	if input == "" || chosenValue == "" {
		return fmt.Errorf("%w: confirmation needs input and value", common.ErrInvalidConfig)
	}

	switch task {
	case model.TaskDescriptionNormalization:
		return l.confirmDescription(ctx, input, chosenValue)
	case model.TaskGLSuggestion, model.TaskDepartmentSuggestion:
		return l.confirmSuggestion(ctx, task, input, chosenValue)
	case model.TaskColumnMapping:
		return l.confirmColumnMapping(ctx, input, chosenValue)
	default:
		return fmt.Errorf("%w: unknown task %q", common.ErrInvalidConfig, task)
	}
}

func (l *Loop) confirmDescription(ctx context.Context, input, chosenValue string) error {
	entry := &model.DescriptionCacheEntry{
		RawHash:               model.HashDescription(input),
		RawDescription:        input,
		NormalizedDescription: chosenValue,
		HitCount:              1,
	}
	if err := l.store.UpsertDescription(ctx, entry); err != nil {
		return fmt.Errorf("failed to confirm description: %w", err)
	}
	return nil
}

func (l *Loop) confirmSuggestion(ctx context.Context, task model.TaskType, input, chosenValue string) error {
	pattern := model.NormalizeVendor(input)
	now := time.Now()

	alias, err := l.store.GetAliasByPattern(ctx, pattern)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return fmt.Errorf("failed to load alias: %w", err)
	}
	if alias == nil {
		alias = &model.VendorAlias{
			AliasPattern:  pattern,
			CanonicalName: pattern,
			Source:        model.AliasSourceAuto,
		}
	}

	if task == model.TaskGLSuggestion {
		alias.DefaultGLCode = chosenValue
	} else {
		alias.DefaultDepartment = chosenValue
	}
	alias.Confidence = 1.0
	alias.FlaggedForReview = false

	if err := l.store.SaveAlias(ctx, alias); err != nil {
		return fmt.Errorf("failed to save alias: %w", err)
	}
	if err := l.store.RecordAliasMatch(ctx, pattern, now); err != nil {
		return fmt.Errorf("failed to record alias match: %w", err)
	}

	return l.addVerifiedEmbedding(ctx, task, pattern, chosenValue, alias)
}

// addVerifiedEmbedding writes the confirmed pair into the index so the
// similarity tier can serve it. The row ID is derived from the confirmation's
// natural key, so replays overwrite instead of accumulating.
func (l *Loop) addVerifiedEmbedding(ctx context.Context, task model.TaskType, pattern, chosenValue string, alias *model.VendorAlias) error {
	if l.index == nil || l.generator == nil {
		return nil
	}

	vector, err := l.generator.Embed(ctx, pattern)
	if err != nil {
		return fmt.Errorf("failed to embed confirmation: %w", err)
	}

	embedding := model.ExpenseEmbedding{
		ID:         model.HashDescription(string(task) + "\x1f" + pattern + "\x1f" + chosenValue),
		VectorText: pattern,
		GLCode:     alias.DefaultGLCode,
		Department: alias.DefaultDepartment,
		Vector:     vector,
		Verified:   true,
	}
	if err := l.index.Add(ctx, embedding); err != nil {
		return fmt.Errorf("failed to index confirmation: %w", err)
	}
	return nil
}

func (l *Loop) confirmColumnMapping(ctx context.Context, input, chosenValue string) error {
	var mapping map[string]model.ColumnRole
	if err := json.Unmarshal([]byte(chosenValue), &mapping); err != nil {
		return fmt.Errorf("%w: bad column mapping: %v", common.ErrInvalidConfig, err)
	}

	fp := &model.StatementFingerprint{
		HeaderHash:    model.HashHeader(headerColumns(input)),
		ColumnMapping: mapping,
	}

	if err := l.store.SaveFingerprint(ctx, fp); err != nil {
		return fmt.Errorf("failed to save fingerprint: %w", err)
	}
	return nil
}

// headerColumns splits a raw header line into trimmed column names.
func headerColumns(header string) []string {
	parts := strings.Split(header, ",")
	columns := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			columns = append(columns, trimmed)
		}
	}
	return columns
}

// RecordMatchConfirmation applies a user-accepted receipt match: the alias
// derived from the transaction description is created or refreshed with the
// receipt's vendor and accounting codes. Embeddings are not touched here.
func (l *Loop) RecordMatchConfirmation(ctx context.Context, receipt model.Receipt, txn model.Transaction) error {
	pattern := model.NormalizeVendor(txn.Description)
	if pattern == "" {
		return fmt.Errorf("%w: transaction has no usable description", common.ErrInvalidConfig)
	}
	now := time.Now()

	alias, err := l.store.GetAliasByPattern(ctx, pattern)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return fmt.Errorf("failed to load alias: %w", err)
	}
	if alias == nil {
		alias = &model.VendorAlias{
			AliasPattern: pattern,
			Source:       model.AliasSourceAuto,
		}
	}

	alias.CanonicalName = model.NormalizeVendor(receipt.Vendor)
	alias.DisplayName = receipt.Vendor
	if receipt.GLCode != "" {
		alias.DefaultGLCode = receipt.GLCode
	}
	if receipt.Department != "" {
		alias.DefaultDepartment = receipt.Department
	}
	alias.Confidence = 1.0
	alias.FlaggedForReview = false

	if err := l.store.SaveAlias(ctx, alias); err != nil {
		return fmt.Errorf("failed to save alias: %w", err)
	}
	if err := l.store.RecordAliasMatch(ctx, pattern, now); err != nil {
		return fmt.Errorf("failed to record alias match: %w", err)
	}
	return nil
}

// RecordSplit stores a confirmed expense split for the vendor alias it names.
func (l *Loop) RecordSplit(ctx context.Context, pattern *model.SplitPattern) error {
	if err := pattern.Validate(); err != nil {
		return fmt.Errorf("%w: %v", common.ErrInvalidConfig, err)
	}
	if err := l.store.SaveSplitPattern(ctx, pattern); err != nil {
		return fmt.Errorf("failed to save split pattern: %w", err)
	}
	return nil
}
