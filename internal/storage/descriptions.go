package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hollyoak/tally/internal/common"
	"github.com/hollyoak/tally/internal/model"
)

// GetDescriptionByHash retrieves a cached normalized description by its
// content hash. Returns common.ErrNotFound on a miss.
func (s *SQLiteStore) GetDescriptionByHash(ctx context.Context, rawHash string) (*model.DescriptionCacheEntry, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(rawHash, "rawHash"); err != nil {
		return nil, err
	}

	var entry model.DescriptionCacheEntry
	err := s.db.QueryRowContext(ctx, `
		SELECT raw_hash, raw_description, normalized_description, hit_count, created_at
		FROM description_cache
		WHERE raw_hash = ?
	`, rawHash).Scan(
		&entry.RawHash,
		&entry.RawDescription,
		&entry.NormalizedDescription,
		&entry.HitCount,
		&entry.CreatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get description cache entry: %w", err)
	}
	return &entry, nil
}

// RecordDescriptionHit atomically increments the hit counter for an existing
// cache entry.
func (s *SQLiteStore) RecordDescriptionHit(ctx context.Context, rawHash string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(rawHash, "rawHash"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE description_cache SET hit_count = hit_count + 1 WHERE raw_hash = ?
	`, rawHash)
	if err != nil {
		return fmt.Errorf("failed to record description hit: %w", err)
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

// UpsertDescription inserts a new cache entry or, on conflict, replaces the
// normalized value while incrementing the hit counter in place. Two workers
// resolving the same novel description concurrently both land on the same
// row; the counter never loses an update. A user correction replaces the
// normalized description but preserves the accumulated hit count.
func (s *SQLiteStore) UpsertDescription(ctx context.Context, entry *model.DescriptionCacheEntry) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateCacheEntry(entry); err != nil {
		return err
	}

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	if entry.HitCount <= 0 {
		entry.HitCount = 1
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO description_cache (raw_hash, raw_description, normalized_description, hit_count, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(raw_hash) DO UPDATE SET
			normalized_description = excluded.normalized_description,
			hit_count = description_cache.hit_count + 1
	`, entry.RawHash, entry.RawDescription, entry.NormalizedDescription, entry.HitCount, entry.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to upsert description cache entry: %w", err)
	}
	return nil
}
