package model

import (
	"crypto/sha256"
	"fmt"
	"time"
)

// DescriptionCacheEntry caches a normalized transaction description keyed by a
// content hash of the raw text. Created on the first inference resolution of a
// novel description; subsequent exact-hash hits only increment HitCount.
type DescriptionCacheEntry struct {
	CreatedAt             time.Time
	RawHash               string
	RawDescription        string
	NormalizedDescription string
	HitCount              int
}

// HashDescription computes the cache key for a raw description.
func HashDescription(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%x", sum)
}
