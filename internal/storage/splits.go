package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hollyoak/tally/internal/common"
	"github.com/hollyoak/tally/internal/model"
)

// GetSplitPattern retrieves the learned split for a vendor alias pattern.
func (s *SQLiteStore) GetSplitPattern(ctx context.Context, aliasPattern string) (*model.SplitPattern, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(aliasPattern, "aliasPattern"); err != nil {
		return nil, err
	}

	var pattern model.SplitPattern
	var linesJSON string

	err := s.db.QueryRowContext(ctx, `
		SELECT id, alias_pattern, lines, updated_at
		FROM split_patterns
		WHERE alias_pattern = ?
	`, aliasPattern).Scan(&pattern.ID, &pattern.AliasPattern, &linesJSON, &pattern.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get split pattern: %w", err)
	}

	if err := json.Unmarshal([]byte(linesJSON), &pattern.Lines); err != nil {
		return nil, fmt.Errorf("failed to decode split lines: %w", err)
	}
	return &pattern, nil
}

// SaveSplitPattern creates or replaces the split for a vendor alias pattern.
// The pattern is re-validated before persistence; an invalid split is a data
// integrity error.
func (s *SQLiteStore) SaveSplitPattern(ctx context.Context, pattern *model.SplitPattern) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if pattern == nil {
		return fmt.Errorf("%w: pattern", ErrNilParameter)
	}
	if err := pattern.Validate(); err != nil {
		return fmt.Errorf("%w: %v", common.ErrDataIntegrity, err)
	}

	linesJSON, err := json.Marshal(pattern.Lines)
	if err != nil {
		return fmt.Errorf("failed to encode split lines: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO split_patterns (alias_pattern, lines, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(alias_pattern) DO UPDATE SET
			lines = excluded.lines,
			updated_at = excluded.updated_at
	`, pattern.AliasPattern, string(linesJSON), time.Now())

	if err != nil {
		return fmt.Errorf("failed to save split pattern: %w", err)
	}
	return nil
}
