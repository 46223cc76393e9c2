package model

import "time"

// AliasSource indicates how a vendor alias was created.
type AliasSource string

const (
	// AliasSourceAuto indicates the alias was created from a confirmed match.
	AliasSourceAuto AliasSource = "AUTO"
	// AliasSourceManual indicates the alias was created via CLI command.
	AliasSourceManual AliasSource = "MANUAL"
	// AliasSourceReconfirmed indicates a stale alias the user has reconfirmed.
	AliasSourceReconfirmed AliasSource = "RECONFIRMED"
)

// VendorAlias is a learned mapping from a raw transaction-description pattern
// to a canonical vendor and its default accounting codes.
//
// Aliases are never hard-deleted. Stale aliases are flagged for review and
// still produce lookups until the user reconfirms or edits them.
type VendorAlias struct {
	LastMatchedAt     time.Time
	CreatedAt         time.Time
	CanonicalName     string
	AliasPattern      string // uppercase substring pattern unless IsRegex
	DisplayName       string
	DefaultGLCode     string
	DefaultDepartment string
	Source            AliasSource
	ID                int64
	MatchCount        int
	Confidence        float64
	IsRegex           bool
	FlaggedForReview  bool
}

// HasDefaults reports whether the alias carries accounting defaults usable as
// an authoritative suggestion.
func (a *VendorAlias) HasDefaults() bool {
	return a.DefaultGLCode != ""
}
