package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hollyoak/tally/internal/common"
	"github.com/hollyoak/tally/internal/model"
)

func createTestStore(t *testing.T) (*SQLiteStore, func()) {
	t.Helper()
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		t.Fatalf("Failed to migrate: %v", err)
	}

	return store, func() { _ = store.Close() }
}

func TestSQLiteStore_Migrate(t *testing.T) {
	store, cleanup := createTestStore(t)
	defer cleanup()

	// Migrating an already-current database is a no-op.
	require.NoError(t, store.Migrate(context.Background()))
}

func TestFindAliasMatching(t *testing.T) {
	ctx := context.Background()

	t.Run("substring match", func(t *testing.T) {
		store, cleanup := createTestStore(t)
		defer cleanup()

		require.NoError(t, store.SaveAlias(ctx, &model.VendorAlias{
			AliasPattern:  "CHATGPT",
			CanonicalName: "OPENAI",
			DefaultGLCode: "6500",
			Confidence:    1.0,
		}))

		alias, err := store.FindAliasMatching(ctx, "OPENAI CHATGPT SUBSCR")
		require.NoError(t, err)
		require.NotNil(t, alias)
		assert.Equal(t, "CHATGPT", alias.AliasPattern)
		assert.Equal(t, "6500", alias.DefaultGLCode)
	})

	t.Run("no match returns nil without error", func(t *testing.T) {
		store, cleanup := createTestStore(t)
		defer cleanup()

		alias, err := store.FindAliasMatching(ctx, "UNKNOWN VENDOR")
		require.NoError(t, err)
		assert.Nil(t, alias)
	})

	t.Run("longest pattern wins", func(t *testing.T) {
		store, cleanup := createTestStore(t)
		defer cleanup()

		require.NoError(t, store.SaveAlias(ctx, &model.VendorAlias{
			AliasPattern:  "AMAZON",
			CanonicalName: "AMAZON",
			DefaultGLCode: "6100",
			Confidence:    1.0,
		}))
		require.NoError(t, store.SaveAlias(ctx, &model.VendorAlias{
			AliasPattern:  "AMAZON WEB SERVICES",
			CanonicalName: "AWS",
			DefaultGLCode: "6200",
			Confidence:    1.0,
		}))

		alias, err := store.FindAliasMatching(ctx, "AMAZON WEB SERVICES BILL")
		require.NoError(t, err)
		require.NotNil(t, alias)
		assert.Equal(t, "AWS", alias.CanonicalName)
	})

	t.Run("regex match", func(t *testing.T) {
		store, cleanup := createTestStore(t)
		defer cleanup()

		require.NoError(t, store.SaveAlias(ctx, &model.VendorAlias{
			AliasPattern:  `^UBER (TRIP|EATS)`,
			IsRegex:       true,
			CanonicalName: "UBER",
			DefaultGLCode: "6300",
			Confidence:    1.0,
		}))

		alias, err := store.FindAliasMatching(ctx, "UBER TRIP HELP UBER COM")
		require.NoError(t, err)
		require.NotNil(t, alias)
		assert.Equal(t, "UBER", alias.CanonicalName)

		alias, err = store.FindAliasMatching(ctx, "LYFT RIDE")
		require.NoError(t, err)
		assert.Nil(t, alias)
	})
}

func TestSaveAliasPreservesMatchCount(t *testing.T) {
	ctx := context.Background()
	store, cleanup := createTestStore(t)
	defer cleanup()

	alias := &model.VendorAlias{
		AliasPattern:  "NETFLIX",
		CanonicalName: "NETFLIX",
		DefaultGLCode: "6400",
		Confidence:    1.0,
	}
	require.NoError(t, store.SaveAlias(ctx, alias))

	for i := 0; i < 3; i++ {
		require.NoError(t, store.RecordAliasMatch(ctx, "NETFLIX", time.Now()))
	}

	// Re-saving with new defaults must not reset the counter.
	alias.DefaultGLCode = "6450"
	require.NoError(t, store.SaveAlias(ctx, alias))

	got, err := store.GetAliasByPattern(ctx, "NETFLIX")
	require.NoError(t, err)
	assert.Equal(t, 3, got.MatchCount)
	assert.Equal(t, "6450", got.DefaultGLCode)
}

func TestRecordAliasMatch(t *testing.T) {
	ctx := context.Background()
	store, cleanup := createTestStore(t)
	defer cleanup()

	t.Run("unknown pattern", func(t *testing.T) {
		err := store.RecordAliasMatch(ctx, "MISSING", time.Now())
		assert.ErrorIs(t, err, common.ErrNotFound)
	})

	t.Run("increments and stamps", func(t *testing.T) {
		require.NoError(t, store.SaveAlias(ctx, &model.VendorAlias{
			AliasPattern:  "SPOTIFY",
			CanonicalName: "SPOTIFY",
			Confidence:    1.0,
		}))

		matchedAt := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
		require.NoError(t, store.RecordAliasMatch(ctx, "SPOTIFY", matchedAt))

		got, err := store.GetAliasByPattern(ctx, "SPOTIFY")
		require.NoError(t, err)
		assert.Equal(t, 1, got.MatchCount)
		assert.Equal(t, matchedAt.Unix(), got.LastMatchedAt.Unix())
	})
}

func TestFlagAliasForReview(t *testing.T) {
	ctx := context.Background()
	store, cleanup := createTestStore(t)
	defer cleanup()

	require.NoError(t, store.SaveAlias(ctx, &model.VendorAlias{
		AliasPattern:  "OLD VENDOR",
		CanonicalName: "OLD VENDOR",
		Confidence:    1.0,
	}))

	require.NoError(t, store.FlagAliasForReview(ctx, "OLD VENDOR", true))

	stale, err := store.ListStaleAliases(ctx)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.True(t, stale[0].FlaggedForReview)

	// Flagged aliases still match lookups.
	alias, err := store.FindAliasMatching(ctx, "OLD VENDOR CHARGE")
	require.NoError(t, err)
	require.NotNil(t, alias)

	require.NoError(t, store.FlagAliasForReview(ctx, "OLD VENDOR", false))
	stale, err = store.ListStaleAliases(ctx)
	require.NoError(t, err)
	assert.Empty(t, stale)
}

func TestDescriptionCache(t *testing.T) {
	ctx := context.Background()

	t.Run("miss returns not found", func(t *testing.T) {
		store, cleanup := createTestStore(t)
		defer cleanup()

		_, err := store.GetDescriptionByHash(ctx, model.HashDescription("nope"))
		assert.ErrorIs(t, err, common.ErrNotFound)
	})

	t.Run("upsert replays update in place", func(t *testing.T) {
		store, cleanup := createTestStore(t)
		defer cleanup()

		entry := &model.DescriptionCacheEntry{
			RawHash:               model.HashDescription("OPENAI *CHATGPT SUBSCR"),
			RawDescription:        "OPENAI *CHATGPT SUBSCR",
			NormalizedDescription: "OpenAI ChatGPT",
		}
		require.NoError(t, store.UpsertDescription(ctx, entry))
		require.NoError(t, store.UpsertDescription(ctx, entry))
		require.NoError(t, store.UpsertDescription(ctx, entry))

		got, err := store.GetDescriptionByHash(ctx, entry.RawHash)
		require.NoError(t, err)
		assert.Equal(t, "OpenAI ChatGPT", got.NormalizedDescription)
		assert.Equal(t, 3, got.HitCount)
	})

	t.Run("correction replaces value and keeps hit count", func(t *testing.T) {
		store, cleanup := createTestStore(t)
		defer cleanup()

		entry := &model.DescriptionCacheEntry{
			RawHash:               model.HashDescription("SQ *COFFEE"),
			RawDescription:        "SQ *COFFEE",
			NormalizedDescription: "Square Coffee",
		}
		require.NoError(t, store.UpsertDescription(ctx, entry))
		require.NoError(t, store.RecordDescriptionHit(ctx, entry.RawHash))

		corrected := *entry
		corrected.NormalizedDescription = "Blue Bottle Coffee"
		require.NoError(t, store.UpsertDescription(ctx, &corrected))

		got, err := store.GetDescriptionByHash(ctx, entry.RawHash)
		require.NoError(t, err)
		assert.Equal(t, "Blue Bottle Coffee", got.NormalizedDescription)
		assert.Equal(t, 3, got.HitCount) // 1 insert + 1 hit + 1 upsert replay
	})

	t.Run("hit on missing entry", func(t *testing.T) {
		store, cleanup := createTestStore(t)
		defer cleanup()

		err := store.RecordDescriptionHit(ctx, model.HashDescription("nope"))
		assert.ErrorIs(t, err, common.ErrNotFound)
	})
}

func TestFingerprints(t *testing.T) {
	ctx := context.Background()
	store, cleanup := createTestStore(t)
	defer cleanup()

	header := []string{"Date", "Description", "Amount"}
	fp := &model.StatementFingerprint{
		HeaderHash: model.HashHeader(header),
		ColumnMapping: map[string]model.ColumnRole{
			"Date":        model.RoleDate,
			"Description": model.RoleDescription,
			"Amount":      model.RoleAmount,
		},
		DateFormat: "01/02/2006",
		AmountSign: model.SignNegativeDebits,
	}
	require.NoError(t, store.SaveFingerprint(ctx, fp))

	got, err := store.GetFingerprint(ctx, fp.HeaderHash)
	require.NoError(t, err)
	assert.Equal(t, fp.ColumnMapping, got.ColumnMapping)
	assert.Equal(t, "01/02/2006", got.DateFormat)
	assert.Equal(t, model.SignNegativeDebits, got.AmountSign)

	// A second save with a different mapping must not clobber the original.
	clobber := &model.StatementFingerprint{
		HeaderHash:    fp.HeaderHash,
		ColumnMapping: map[string]model.ColumnRole{"Date": model.RoleIgnore},
	}
	require.NoError(t, store.SaveFingerprint(ctx, clobber))

	got, err = store.GetFingerprint(ctx, fp.HeaderHash)
	require.NoError(t, err)
	assert.Equal(t, model.RoleDate, got.ColumnMapping["Date"])

	// Delete allows re-teaching.
	require.NoError(t, store.DeleteFingerprint(ctx, fp.HeaderHash))
	_, err = store.GetFingerprint(ctx, fp.HeaderHash)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestSplitPatterns(t *testing.T) {
	ctx := context.Background()
	store, cleanup := createTestStore(t)
	defer cleanup()

	t.Run("round trip and replace", func(t *testing.T) {
		pattern := &model.SplitPattern{
			AliasPattern: "ACME SOFTWARE",
			Lines: []model.SplitLine{
				{GLCode: "6100", Department: "ENG", Percentage: 60},
				{GLCode: "6200", Department: "OPS", Percentage: 40},
			},
		}
		require.NoError(t, store.SaveSplitPattern(ctx, pattern))

		got, err := store.GetSplitPattern(ctx, "ACME SOFTWARE")
		require.NoError(t, err)
		require.Len(t, got.Lines, 2)
		assert.InDelta(t, 60, got.Lines[0].Percentage, 0.001)

		pattern.Lines = []model.SplitLine{{GLCode: "6100", Department: "ENG", Percentage: 100}}
		require.NoError(t, store.SaveSplitPattern(ctx, pattern))

		got, err = store.GetSplitPattern(ctx, "ACME SOFTWARE")
		require.NoError(t, err)
		assert.Len(t, got.Lines, 1)
	})

	t.Run("invalid split rejected", func(t *testing.T) {
		bad := &model.SplitPattern{
			AliasPattern: "BAD VENDOR",
			Lines:        []model.SplitLine{{GLCode: "6100", Percentage: 90}},
		}
		err := store.SaveSplitPattern(ctx, bad)
		assert.ErrorIs(t, err, common.ErrDataIntegrity)
	})

	t.Run("missing pattern", func(t *testing.T) {
		_, err := store.GetSplitPattern(ctx, "NOBODY")
		assert.ErrorIs(t, err, common.ErrNotFound)
	})
}
