package model

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"time"
)

// ColumnRole identifies what a statement column contains.
type ColumnRole string

const (
	RoleDate        ColumnRole = "date"
	RoleDescription ColumnRole = "description"
	RoleAmount      ColumnRole = "amount"
	RoleDebit       ColumnRole = "debit"
	RoleCredit      ColumnRole = "credit"
	RoleIgnore      ColumnRole = "ignore"
)

// AmountSign describes the sign convention a statement uses for charges.
type AmountSign string

const (
	// SignNegativeDebits means charges appear as negative amounts.
	SignNegativeDebits AmountSign = "negative_debits"
	// SignPositiveDebits means charges appear as positive amounts.
	SignPositiveDebits AmountSign = "positive_debits"
)

// StatementFingerprint remembers how to interpret a previously-seen statement
// header shape. Read-only after the first confirmed import unless the user
// explicitly resets it.
type StatementFingerprint struct {
	CreatedAt     time.Time
	HeaderHash    string
	ColumnMapping map[string]ColumnRole // column name -> role
	DateFormat    string                // Go reference layout
	AmountSign    AmountSign
}

// HashHeader computes the order-sensitive fingerprint key for a header row.
// Column names are trimmed and lowercased so cosmetic changes in a bank's
// export don't produce a new fingerprint.
func HashHeader(columns []string) string {
	normalized := make([]string, len(columns))
	for i, c := range columns {
		normalized[i] = strings.ToLower(strings.TrimSpace(c))
	}
	sum := sha256.Sum256([]byte(strings.Join(normalized, "\x1f")))
	return fmt.Sprintf("%x", sum)
}
