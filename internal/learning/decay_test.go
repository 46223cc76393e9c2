package learning

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hollyoak/tally/internal/model"
)

func TestShouldFlag(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		alias model.VendorAlias
		want  bool
	}{
		{
			name:  "matched last week",
			alias: model.VendorAlias{LastMatchedAt: now.AddDate(0, 0, -7)},
			want:  false,
		},
		{
			name:  "matched just under six months ago",
			alias: model.VendorAlias{LastMatchedAt: now.AddDate(0, -6, 1)},
			want:  false,
		},
		{
			name:  "matched just over six months ago",
			alias: model.VendorAlias{LastMatchedAt: now.AddDate(0, -6, -1)},
			want:  true,
		},
		{
			name:  "never matched, created long ago",
			alias: model.VendorAlias{CreatedAt: now.AddDate(-1, 0, 0)},
			want:  true,
		},
		{
			name:  "never matched, created recently",
			alias: model.VendorAlias{CreatedAt: now.AddDate(0, -1, 0)},
			want:  false,
		},
		{
			name: "already flagged",
			alias: model.VendorAlias{
				LastMatchedAt:    now.AddDate(-1, 0, 0),
				FlaggedForReview: true,
			},
			want: false,
		},
		{
			name:  "no timestamps at all",
			alias: model.VendorAlias{},
			want:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldFlag(&tt.alias, now))
		})
	}
}

func TestSweepStale(t *testing.T) {
	ctx := context.Background()
	store, cleanup := createTestStore(t)
	defer cleanup()

	now := time.Now()

	fresh := &model.VendorAlias{
		AliasPattern:  "FRESH VENDOR",
		CanonicalName: "FRESH VENDOR",
		LastMatchedAt: now.AddDate(0, -1, 0),
		Confidence:    1.0,
	}
	stale := &model.VendorAlias{
		AliasPattern:  "STALE VENDOR",
		CanonicalName: "STALE VENDOR",
		LastMatchedAt: now.AddDate(0, -8, 0),
		Confidence:    1.0,
	}
	require.NoError(t, store.SaveAlias(ctx, fresh))
	require.NoError(t, store.SaveAlias(ctx, stale))

	job := NewDecayJob(store)

	flagged, err := job.SweepStale(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, flagged)

	staleAliases, err := store.ListStaleAliases(ctx)
	require.NoError(t, err)
	require.Len(t, staleAliases, 1)
	assert.Equal(t, "STALE VENDOR", staleAliases[0].AliasPattern)

	// A second sweep finds nothing new.
	flagged, err = job.SweepStale(ctx, now)
	require.NoError(t, err)
	assert.Zero(t, flagged)
}

func TestReconfirm(t *testing.T) {
	ctx := context.Background()
	store, cleanup := createTestStore(t)
	defer cleanup()

	now := time.Now()
	require.NoError(t, store.SaveAlias(ctx, &model.VendorAlias{
		AliasPattern:     "STALE VENDOR",
		CanonicalName:    "STALE VENDOR",
		LastMatchedAt:    now.AddDate(0, -8, 0),
		Confidence:       0.7,
		FlaggedForReview: true,
	}))

	job := NewDecayJob(store)
	require.NoError(t, job.Reconfirm(ctx, "STALE VENDOR", now))

	alias, err := store.GetAliasByPattern(ctx, "STALE VENDOR")
	require.NoError(t, err)
	assert.False(t, alias.FlaggedForReview)
	assert.InDelta(t, 1.0, alias.Confidence, 0.001)
	assert.Equal(t, model.AliasSourceReconfirmed, alias.Source)

	// Fresh recency means the next sweep leaves it alone.
	flagged, err := job.SweepStale(ctx, now)
	require.NoError(t, err)
	assert.Zero(t, flagged)
}
