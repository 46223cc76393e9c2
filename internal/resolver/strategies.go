package resolver

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

// strategy is one tier of the cascade. attempt returns attempted=false when
// the strategy does not apply to the request's task, in which case the
// cascade moves on without recording a miss.
type strategy interface {
	tier() model.Tier
	attempt(ctx context.Context, req Request) (model.Resolution, bool, error)
}

// cacheStrategy is Tier 1: exact hash or pattern lookup. Zero network calls.
type cacheStrategy struct {
	store service.LearnedStore
}

func (s *cacheStrategy) tier() model.Tier { return model.TierCache }

func (s *cacheStrategy) attempt(ctx context.Context, req Request) (model.Resolution, bool, error) {
	switch req.Task {
	case model.TaskDescriptionNormalization:
		return s.lookupDescription(ctx, req)
	case model.TaskGLSuggestion, model.TaskDepartmentSuggestion:
		return s.lookupAlias(ctx, req)
	case model.TaskColumnMapping:
		return s.lookupFingerprint(ctx, req)
	default:
		return model.Resolution{}, false, nil
	}
}

func (s *cacheStrategy) lookupDescription(ctx context.Context, req Request) (model.Resolution, bool, error) {
	hash := model.HashDescription(req.Input)

	entry, err := s.store.GetDescriptionByHash(ctx, hash)
	if errors.Is(err, common.ErrNotFound) {
		return model.Resolution{Task: req.Task}, true, nil
	}
	if err != nil {
		return model.Resolution{}, true, err
	}

	if err := s.store.RecordDescriptionHit(ctx, hash); err != nil {
		return model.Resolution{}, true, fmt.Errorf("failed to record hit: %w", err)
	}

	return model.Resolution{
		Value:      entry.NormalizedDescription,
		Task:       req.Task,
		Tier:       model.TierCache,
		Confidence: tierCacheConfidence,
	}, true, nil
}

func (s *cacheStrategy) lookupAlias(ctx context.Context, req Request) (model.Resolution, bool, error) {
	alias, err := s.store.FindAliasMatching(ctx, model.NormalizeVendor(req.Input))
	if err != nil {
		return model.Resolution{}, true, err
	}
	// A hit requires accounting defaults on the alias.
	if alias == nil || !alias.HasDefaults() {
		return model.Resolution{Task: req.Task}, true, nil
	}

	value := alias.DefaultGLCode
	if req.Task == model.TaskDepartmentSuggestion {
		value = alias.DefaultDepartment
	}
	if value == "" {
		return model.Resolution{Task: req.Task}, true, nil
	}

	if err := s.store.RecordAliasMatch(ctx, alias.AliasPattern, time.Now()); err != nil {
		return model.Resolution{}, true, fmt.Errorf("failed to record alias match: %w", err)
	}

	return model.Resolution{
		Value:      value,
		Task:       req.Task,
		Tier:       model.TierCache,
		Confidence: tierCacheConfidence,
	}, true, nil
}

func (s *cacheStrategy) lookupFingerprint(ctx context.Context, req Request) (model.Resolution, bool, error) {
	hash := model.HashHeader(splitHeader(req.Input))

	fp, err := s.store.GetFingerprint(ctx, hash)
	if errors.Is(err, common.ErrNotFound) {
		return model.Resolution{Task: req.Task}, true, nil
	}
	if err != nil {
		return model.Resolution{}, true, err
	}

	mapping, err := json.Marshal(fp.ColumnMapping)
	if err != nil {
		return model.Resolution{}, true, fmt.Errorf("failed to encode mapping: %w", err)
	}

	return model.Resolution{
		Value:      string(mapping),
		Task:       req.Task,
		Tier:       model.TierCache,
		Confidence: tierCacheConfidence,
	}, true, nil
}

// similarityStrategy is Tier 2: embedding nearest-neighbor lookup over
// verified rows only. Applies to GL and department suggestions; other tasks
// have no labeled vector source.
type similarityStrategy struct {
	index     service.EmbeddingIndex
	generator service.EmbeddingGenerator
}

func (s *similarityStrategy) tier() model.Tier { return model.TierSimilarity }

func (s *similarityStrategy) attempt(ctx context.Context, req Request) (model.Resolution, bool, error) {
	if req.Task != model.TaskGLSuggestion && req.Task != model.TaskDepartmentSuggestion {
		return model.Resolution{}, false, nil
	}
	if s.index == nil || s.generator == nil {
		return model.Resolution{}, false, nil
	}

	vector, err := s.generator.Embed(ctx, model.NormalizeVendor(req.Input))
	if err != nil {
		return model.Resolution{}, true, err
	}

	matches, err := s.index.Query(ctx, vector, similarityTopK, similarityThreshold)
	if err != nil {
		return model.Resolution{}, true, err
	}
	if len(matches) == 0 {
		return model.Resolution{Task: req.Task}, true, nil
	}

	top := matches[0]
	value := top.Embedding.GLCode
	if req.Task == model.TaskDepartmentSuggestion {
		value = top.Embedding.Department
	}
	if value == "" {
		return model.Resolution{Task: req.Task}, true, nil
	}

	return model.Resolution{
		Value:      value,
		Task:       req.Task,
		Tier:       model.TierSimilarity,
		Confidence: top.Similarity,
	}, true, nil
}

// inferenceStrategy is Tier 3: cheap model suggestion. A successful
// normalization seeds the description cache so the next identical input is
// a Tier-1 hit.
type inferenceStrategy struct {
	cheap service.CheapInference
	store service.LearnedStore
}

func (s *inferenceStrategy) tier() model.Tier { return model.TierCheapInference }

func (s *inferenceStrategy) attempt(ctx context.Context, req Request) (model.Resolution, bool, error) {
	if s.cheap == nil {
		return model.Resolution{}, false, nil
	}

	if req.Task == model.TaskColumnMapping {
		return s.mapColumns(ctx, req)
	}

	suggestion, err := s.cheap.Suggest(ctx, req.Input, req.CandidateLabels)
	if err != nil {
		return model.Resolution{}, true, err
	}
	if suggestion.Label == "" {
		return model.Resolution{Task: req.Task}, true, nil
	}

	if req.Task == model.TaskDescriptionNormalization {
		entry := &model.DescriptionCacheEntry{
			RawHash:               model.HashDescription(req.Input),
			RawDescription:        req.Input,
			NormalizedDescription: suggestion.Label,
			HitCount:              1,
		}
		if err := s.store.UpsertDescription(ctx, entry); err != nil {
			return model.Resolution{}, true, fmt.Errorf("failed to cache normalization: %w", err)
		}
	}

	return model.Resolution{
		Value:      suggestion.Label,
		Task:       req.Task,
		Tier:       model.TierCheapInference,
		Confidence: suggestion.Confidence,
	}, true, nil
}

// mapColumns suggests a role per header column and assembles the mapping.
// The resolution confidence is the weakest per-column confidence.
func (s *inferenceStrategy) mapColumns(ctx context.Context, req Request) (model.Resolution, bool, error) {
	columns := splitHeader(req.Input)
	if len(columns) == 0 {
		return model.Resolution{Task: req.Task}, true, nil
	}

	roles := req.CandidateLabels
	if len(roles) == 0 {
		roles = []string{
			string(model.RoleDate),
			string(model.RoleDescription),
			string(model.RoleAmount),
			string(model.RoleDebit),
			string(model.RoleCredit),
			string(model.RoleIgnore),
		}
	}

	mapping := make(map[string]model.ColumnRole, len(columns))
	confidence := 1.0

	for _, column := range columns {
		suggestion, err := s.cheap.Suggest(ctx, column, roles)
		if err != nil {
			return model.Resolution{}, true, err
		}
		mapping[column] = model.ColumnRole(strings.ToLower(suggestion.Label))
		if suggestion.Confidence < confidence {
			confidence = suggestion.Confidence
		}
	}

	encoded, err := json.Marshal(mapping)
	if err != nil {
		return model.Resolution{}, true, fmt.Errorf("failed to encode mapping: %w", err)
	}

	return model.Resolution{
		Value:      string(encoded),
		Task:       req.Task,
		Tier:       model.TierCheapInference,
		Confidence: confidence,
	}, true, nil
}

// splitHeader splits a raw header line into trimmed column names.
func splitHeader(header string) []string {
	parts := strings.Split(header, ",")
	columns := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			columns = append(columns, trimmed)
		}
	}
	return columns
}
