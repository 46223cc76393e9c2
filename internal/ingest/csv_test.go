package ingest

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hollyoak/tally/internal/model"
	"github.com/hollyoak/tally/internal/resolver"
	"github.com/hollyoak/tally/internal/storage"
)

func createTestStore(t *testing.T) (*storage.SQLiteStore, func()) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	store, err := storage.NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	if err := store.Migrate(context.Background()); err != nil {
		_ = store.Close()
		t.Fatalf("Failed to migrate: %v", err)
	}
	return store, func() { _ = store.Close() }
}

// stubResolver returns a fixed column-mapping resolution.
type stubResolver struct {
	value string
	calls int
}

func (s *stubResolver) Resolve(_ context.Context, req resolver.Request) model.Resolution {
	s.calls++
	return model.Resolution{
		Value:      s.value,
		Task:       req.Task,
		Tier:       model.TierCheapInference,
		Confidence: 0.8,
	}
}

func TestCSVKnownFingerprint(t *testing.T) {
	ctx := context.Background()
	store, cleanup := createTestStore(t)
	defer cleanup()

	header := []string{"Date", "Description", "Amount"}
	require.NoError(t, store.SaveFingerprint(ctx, &model.StatementFingerprint{
		HeaderHash: model.HashHeader(header),
		ColumnMapping: map[string]model.ColumnRole{
			"Date":        model.RoleDate,
			"Description": model.RoleDescription,
			"Amount":      model.RoleAmount,
		},
		DateFormat: "01/02/2006",
		AmountSign: model.SignNegativeDebits,
	}))

	csvData := `Date,Description,Amount
01/15/2026,STARBUCKS STORE #1234,-25.50
01/20/2026,PAYROLL DEPOSIT,"1,200.00"
`

	importer := NewCSVImporter(store, nil)
	transactions, err := importer.ParseFile(ctx, strings.NewReader(csvData), "acct-1")
	require.NoError(t, err)
	require.Len(t, transactions, 2)

	tx1 := transactions[0]
	assert.Equal(t, "STARBUCKS STORE #1234", tx1.Description)
	assert.Equal(t, "STARBUCKS STORE 1234", tx1.Merchant)
	assert.Equal(t, -25.50, tx1.Amount)
	assert.Equal(t, "DEBIT", tx1.Type)
	assert.Equal(t, "acct-1", tx1.AccountID)
	assert.Equal(t, 2026, tx1.Date.Year())

	tx2 := transactions[1]
	assert.Equal(t, 1200.00, tx2.Amount)
	assert.Equal(t, "CREDIT", tx2.Type)
}

func TestCSVUnknownHeaderResolvesMapping(t *testing.T) {
	ctx := context.Background()
	store, cleanup := createTestStore(t)
	defer cleanup()

	stub := &stubResolver{value: `{"Posted":"date","Details":"description","Total":"amount"}`}
	importer := NewCSVImporter(store, stub)

	csvData := `Posted,Details,Total
2026-01-15,OPENAI *CHATGPT SUBSCR,-20.00
`

	transactions, err := importer.ParseFile(ctx, strings.NewReader(csvData), "acct-2")
	require.NoError(t, err)
	require.Len(t, transactions, 1)
	assert.Equal(t, 1, stub.calls)

	// The mapping is fingerprinted: re-importing needs no resolution.
	_, err = importer.ParseFile(ctx, strings.NewReader(csvData), "acct-2")
	require.NoError(t, err)
	assert.Equal(t, 1, stub.calls)

	fp, err := store.GetFingerprint(ctx, model.HashHeader([]string{"Posted", "Details", "Total"}))
	require.NoError(t, err)
	assert.Equal(t, model.RoleDate, fp.ColumnMapping["Posted"])
}

func TestCSVUnknownHeaderWithoutResolver(t *testing.T) {
	ctx := context.Background()
	store, cleanup := createTestStore(t)
	defer cleanup()

	importer := NewCSVImporter(store, nil)
	_, err := importer.ParseFile(ctx, strings.NewReader("A,B,C\n1,2,3\n"), "acct")
	assert.Error(t, err)
}

func TestCSVDebitCreditColumns(t *testing.T) {
	ctx := context.Background()
	store, cleanup := createTestStore(t)
	defer cleanup()

	header := []string{"Date", "Memo", "Debit", "Credit"}
	require.NoError(t, store.SaveFingerprint(ctx, &model.StatementFingerprint{
		HeaderHash: model.HashHeader(header),
		ColumnMapping: map[string]model.ColumnRole{
			"Date":   model.RoleDate,
			"Memo":   model.RoleDescription,
			"Debit":  model.RoleDebit,
			"Credit": model.RoleCredit,
		},
		DateFormat: "2006-01-02",
	}))

	csvData := `Date,Memo,Debit,Credit
2026-02-01,ACME SUPPLIES,45.00,
2026-02-03,REFUND ACME,,12.00
`

	importer := NewCSVImporter(store, nil)
	transactions, err := importer.ParseFile(ctx, strings.NewReader(csvData), "acct")
	require.NoError(t, err)
	require.Len(t, transactions, 2)

	assert.Equal(t, -45.00, transactions[0].Amount)
	assert.Equal(t, 12.00, transactions[1].Amount)
}

func TestCSVPositiveDebitConvention(t *testing.T) {
	ctx := context.Background()
	store, cleanup := createTestStore(t)
	defer cleanup()

	header := []string{"Date", "Description", "Amount"}
	require.NoError(t, store.SaveFingerprint(ctx, &model.StatementFingerprint{
		HeaderHash: model.HashHeader(header),
		ColumnMapping: map[string]model.ColumnRole{
			"Date":        model.RoleDate,
			"Description": model.RoleDescription,
			"Amount":      model.RoleAmount,
		},
		DateFormat: "2006-01-02",
		AmountSign: model.SignPositiveDebits,
	}))

	csvData := `Date,Description,Amount
2026-02-01,ACME SUPPLIES,45.00
`

	importer := NewCSVImporter(store, nil)
	transactions, err := importer.ParseFile(ctx, strings.NewReader(csvData), "acct")
	require.NoError(t, err)
	require.Len(t, transactions, 1)
	assert.Equal(t, -45.00, transactions[0].Amount)
}

func TestCSVSkipsUnparseableRows(t *testing.T) {
	ctx := context.Background()
	store, cleanup := createTestStore(t)
	defer cleanup()

	header := []string{"Date", "Description", "Amount"}
	require.NoError(t, store.SaveFingerprint(ctx, &model.StatementFingerprint{
		HeaderHash: model.HashHeader(header),
		ColumnMapping: map[string]model.ColumnRole{
			"Date":        model.RoleDate,
			"Description": model.RoleDescription,
			"Amount":      model.RoleAmount,
		},
		DateFormat: "2006-01-02",
	}))

	csvData := `Date,Description,Amount
not-a-date,BAD ROW,1.00
2026-02-01,GOOD ROW,-5.00
2026-02-02,,"-6.00"
`

	importer := NewCSVImporter(store, nil)
	transactions, err := importer.ParseFile(ctx, strings.NewReader(csvData), "acct")
	require.NoError(t, err)
	require.Len(t, transactions, 1)
	assert.Equal(t, "GOOD ROW", transactions[0].Description)
}
