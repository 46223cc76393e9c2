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

// GetFingerprint retrieves a statement fingerprint by its header hash.
func (s *SQLiteStore) GetFingerprint(ctx context.Context, headerHash string) (*model.StatementFingerprint, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(headerHash, "headerHash"); err != nil {
		return nil, err
	}

	var fp model.StatementFingerprint
	var mappingJSON string
	var sign string

	err := s.db.QueryRowContext(ctx, `
		SELECT header_hash, column_mapping, date_format, amount_sign, created_at
		FROM statement_fingerprints
		WHERE header_hash = ?
	`, headerHash).Scan(&fp.HeaderHash, &mappingJSON, &fp.DateFormat, &sign, &fp.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get fingerprint: %w", err)
	}

	if err := json.Unmarshal([]byte(mappingJSON), &fp.ColumnMapping); err != nil {
		return nil, fmt.Errorf("failed to decode column mapping: %w", err)
	}
	fp.AmountSign = model.AmountSign(sign)
	return &fp, nil
}

// SaveFingerprint persists a fingerprint for a newly-confirmed header shape.
// Fingerprints are read-only after creation; a conflicting insert is a no-op
// so a concurrent double-confirm cannot clobber the original.
func (s *SQLiteStore) SaveFingerprint(ctx context.Context, fp *model.StatementFingerprint) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateFingerprint(fp); err != nil {
		return err
	}

	if fp.CreatedAt.IsZero() {
		fp.CreatedAt = time.Now()
	}
	if fp.AmountSign == "" {
		fp.AmountSign = model.SignNegativeDebits
	}

	mappingJSON, err := json.Marshal(fp.ColumnMapping)
	if err != nil {
		return fmt.Errorf("failed to encode column mapping: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO statement_fingerprints (header_hash, column_mapping, date_format, amount_sign, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(header_hash) DO NOTHING
	`, fp.HeaderHash, string(mappingJSON), fp.DateFormat, string(fp.AmountSign), fp.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to save fingerprint: %w", err)
	}
	return nil
}

// DeleteFingerprint removes a fingerprint so the user can re-teach a header
// shape. This is the only mutation fingerprints support.
func (s *SQLiteStore) DeleteFingerprint(ctx context.Context, headerHash string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(headerHash, "headerHash"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		DELETE FROM statement_fingerprints WHERE header_hash = ?
	`, headerHash)
	if err != nil {
		return fmt.Errorf("failed to delete fingerprint: %w", err)
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
