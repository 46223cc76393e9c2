package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/hollyoak/tally/internal/common"
	"github.com/hollyoak/tally/internal/model"
)

const aliasColumns = `id, alias_pattern, is_regex, canonical_name, display_name,
	default_gl_code, default_department, match_count, last_matched_at,
	confidence, flagged_for_review, source, created_at`

// FindAliasMatching returns the alias whose pattern matches the given
// normalized description, or nil if none matches. Substring patterns are
// matched in SQL; regex patterns are evaluated in Go. When several aliases
// match, the longest pattern wins.
func (s *SQLiteStore) FindAliasMatching(ctx context.Context, normalizedDescription string) (*model.VendorAlias, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(normalizedDescription, "normalizedDescription"); err != nil {
		return nil, err
	}

	// Substring patterns: the longest match is the most specific.
	row := s.db.QueryRowContext(ctx, `
		SELECT `+aliasColumns+`
		FROM vendor_aliases
		WHERE is_regex = 0 AND instr(?, alias_pattern) > 0
		ORDER BY length(alias_pattern) DESC
		LIMIT 1
	`, normalizedDescription)

	alias, err := scanAlias(row)
	if err == nil {
		return alias, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to match alias: %w", err)
	}

	// Fall back to regex patterns, evaluated in Go.
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+aliasColumns+`
		FROM vendor_aliases
		WHERE is_regex = 1
		ORDER BY length(alias_pattern) DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query regex aliases: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		candidate, scanErr := scanAlias(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan alias: %w", scanErr)
		}
		re, compileErr := regexp.Compile(candidate.AliasPattern)
		if compileErr != nil {
			continue
		}
		if re.MatchString(normalizedDescription) {
			return candidate, nil
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate regex aliases: %w", err)
	}

	return nil, nil
}

// GetAliasByPattern retrieves an alias by its exact pattern.
func (s *SQLiteStore) GetAliasByPattern(ctx context.Context, pattern string) (*model.VendorAlias, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(pattern, "pattern"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT `+aliasColumns+`
		FROM vendor_aliases
		WHERE alias_pattern = ?
	`, pattern)

	alias, err := scanAlias(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get alias: %w", err)
	}
	return alias, nil
}

// SaveAlias creates or updates a vendor alias keyed by its pattern. The
// match counter is preserved on conflict; counter updates go through
// RecordAliasMatch so concurrent confirmations never lose increments.
func (s *SQLiteStore) SaveAlias(ctx context.Context, alias *model.VendorAlias) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateAlias(alias); err != nil {
		return err
	}

	if alias.CreatedAt.IsZero() {
		alias.CreatedAt = time.Now()
	}
	if alias.Source == "" {
		alias.Source = model.AliasSourceAuto
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO vendor_aliases (
			alias_pattern, is_regex, canonical_name, display_name,
			default_gl_code, default_department, match_count, last_matched_at,
			confidence, flagged_for_review, source, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(alias_pattern) DO UPDATE SET
			canonical_name = excluded.canonical_name,
			display_name = excluded.display_name,
			default_gl_code = excluded.default_gl_code,
			default_department = excluded.default_department,
			last_matched_at = excluded.last_matched_at,
			confidence = excluded.confidence,
			flagged_for_review = excluded.flagged_for_review,
			source = excluded.source
	`, alias.AliasPattern, alias.IsRegex, alias.CanonicalName, alias.DisplayName,
		alias.DefaultGLCode, alias.DefaultDepartment, alias.MatchCount, nullableTime(alias.LastMatchedAt),
		alias.Confidence, alias.FlaggedForReview, alias.Source, alias.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to save alias: %w", err)
	}
	return nil
}

// RecordAliasMatch atomically increments the alias match counter and
// refreshes its last-matched timestamp.
func (s *SQLiteStore) RecordAliasMatch(ctx context.Context, pattern string, matchedAt time.Time) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(pattern, "pattern"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE vendor_aliases
		SET match_count = match_count + 1, last_matched_at = ?
		WHERE alias_pattern = ?
	`, matchedAt, pattern)
	if err != nil {
		return fmt.Errorf("failed to record alias match: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return common.ErrNotFound
	}
	return nil
}

// ListAliases retrieves all vendor aliases ordered by pattern.
func (s *SQLiteStore) ListAliases(ctx context.Context) ([]model.VendorAlias, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.listAliasesWhere(ctx, "")
}

// ListStaleAliases retrieves aliases flagged for review.
func (s *SQLiteStore) ListStaleAliases(ctx context.Context) ([]model.VendorAlias, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.listAliasesWhere(ctx, "WHERE flagged_for_review = 1")
}

func (s *SQLiteStore) listAliasesWhere(ctx context.Context, where string) ([]model.VendorAlias, error) {
	query := fmt.Sprintf(`SELECT %s FROM vendor_aliases %s ORDER BY alias_pattern`, aliasColumns, where)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query aliases: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var aliases []model.VendorAlias
	for rows.Next() {
		alias, err := scanAlias(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alias: %w", err)
		}
		aliases = append(aliases, *alias)
	}
	return aliases, rows.Err()
}

// FlagAliasForReview sets or clears the review flag on an alias. Flagged
// aliases still produce lookups; they are surfaced to the user for
// reconfirmation, never silently suppressed.
func (s *SQLiteStore) FlagAliasForReview(ctx context.Context, pattern string, flagged bool) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(pattern, "pattern"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE vendor_aliases SET flagged_for_review = ? WHERE alias_pattern = ?
	`, flagged, pattern)
	if err != nil {
		return fmt.Errorf("failed to flag alias: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return common.ErrNotFound
	}
	return nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanAlias(row scanner) (*model.VendorAlias, error) {
	var alias model.VendorAlias
	var displayName, glCode, department sql.NullString
	var lastMatched sql.NullTime
	var source string

	err := row.Scan(
		&alias.ID,
		&alias.AliasPattern,
		&alias.IsRegex,
		&alias.CanonicalName,
		&displayName,
		&glCode,
		&department,
		&alias.MatchCount,
		&lastMatched,
		&alias.Confidence,
		&alias.FlaggedForReview,
		&source,
		&alias.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	alias.DisplayName = displayName.String
	alias.DefaultGLCode = glCode.String
	alias.DefaultDepartment = department.String
	alias.Source = model.AliasSource(strings.TrimSpace(source))
	if lastMatched.Valid {
		alias.LastMatchedAt = lastMatched.Time
	}
	return &alias, nil
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
