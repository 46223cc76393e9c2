package model

import (
	"fmt"
	"math"
	"time"
)

// splitTolerance is the allowed deviation from 100% when validating splits.
const splitTolerance = 0.01

// SplitLine is one leg of a learned expense split.
type SplitLine struct {
	GLCode     string  `json:"glCode"`
	Department string  `json:"department"`
	Percentage float64 `json:"percentage"`
}

// SplitPattern is a learned per-vendor expense split, keyed by the vendor
// alias pattern it applies to. Updated wholesale on every confirmed split.
type SplitPattern struct {
	UpdatedAt    time.Time
	AliasPattern string
	Lines        []SplitLine
	ID           int64
}

// Validate checks that the split is well formed and its percentages sum to
// 100 within tolerance.
func (p *SplitPattern) Validate() error {
	if p.AliasPattern == "" {
		return fmt.Errorf("split pattern: missing alias pattern")
	}
	if len(p.Lines) == 0 {
		return fmt.Errorf("split pattern: no lines")
	}
	var total float64
	for i, line := range p.Lines {
		if line.GLCode == "" {
			return fmt.Errorf("split pattern: line %d missing GL code", i)
		}
		if line.Percentage <= 0 {
			return fmt.Errorf("split pattern: line %d has non-positive percentage", i)
		}
		total += line.Percentage
	}
	if math.Abs(total-100) > splitTolerance {
		return fmt.Errorf("split pattern: percentages sum to %.2f, want 100", total)
	}
	return nil
}
