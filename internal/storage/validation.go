// Package storage provides the learned-state persistence layer.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hollyoak/tally/internal/model"
)

// Validation errors.
var (
	ErrNilContext         = errors.New("context cannot be nil")
	ErrEmptyString        = errors.New("string parameter cannot be empty")
	ErrNilParameter       = errors.New("parameter cannot be nil")
	ErrInvalidAlias       = errors.New("invalid vendor alias")
	ErrInvalidCacheEntry  = errors.New("invalid description cache entry")
	ErrInvalidFingerprint = errors.New("invalid statement fingerprint")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateAlias validates a vendor alias.
func validateAlias(alias *model.VendorAlias) error {
	if alias == nil {
		return fmt.Errorf("%w: alias", ErrNilParameter)
	}
	if strings.TrimSpace(alias.AliasPattern) == "" {
		return fmt.Errorf("%w: missing alias pattern", ErrInvalidAlias)
	}
	if strings.TrimSpace(alias.CanonicalName) == "" {
		return fmt.Errorf("%w: missing canonical name", ErrInvalidAlias)
	}
	if alias.Confidence < 0 || alias.Confidence > 1 {
		return fmt.Errorf("%w: confidence must be between 0 and 1", ErrInvalidAlias)
	}
	return nil
}

// validateCacheEntry validates a description cache entry.
func validateCacheEntry(entry *model.DescriptionCacheEntry) error {
	if entry == nil {
		return fmt.Errorf("%w: entry", ErrNilParameter)
	}
	if entry.RawHash == "" {
		return fmt.Errorf("%w: missing raw hash", ErrInvalidCacheEntry)
	}
	if entry.RawDescription == "" {
		return fmt.Errorf("%w: missing raw description", ErrInvalidCacheEntry)
	}
	if entry.NormalizedDescription == "" {
		return fmt.Errorf("%w: missing normalized description", ErrInvalidCacheEntry)
	}
	return nil
}

// validateFingerprint validates a statement fingerprint.
func validateFingerprint(fp *model.StatementFingerprint) error {
	if fp == nil {
		return fmt.Errorf("%w: fingerprint", ErrNilParameter)
	}
	if fp.HeaderHash == "" {
		return fmt.Errorf("%w: missing header hash", ErrInvalidFingerprint)
	}
	if len(fp.ColumnMapping) == 0 {
		return fmt.Errorf("%w: empty column mapping", ErrInvalidFingerprint)
	}
	return nil
}
