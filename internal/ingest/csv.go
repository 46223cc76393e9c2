package ingest

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/hollyoak/tally/internal/common"
	"github.com/hollyoak/tally/internal/model"
	"github.com/hollyoak/tally/internal/resolver"
	"github.com/hollyoak/tally/internal/service"
)

// dateLayouts are tried in order when a fingerprint carries no layout.
var dateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"02 Jan 2006",
	"Jan 2, 2006",
}

// MappingResolver resolves a header line into a column mapping. Satisfied by
// the tiered resolver.
type MappingResolver interface {
	Resolve(ctx context.Context, req resolver.Request) model.Resolution
}

// CSVImporter parses bank CSV exports. Header shapes it has seen before are
// interpreted from their stored fingerprint; novel headers go through column
// mapping resolution and the result is fingerprinted for next time.
type CSVImporter struct {
	store    service.LearnedStore
	resolver MappingResolver
}

// NewCSVImporter creates a CSV importer.
func NewCSVImporter(store service.LearnedStore, mappingResolver MappingResolver) *CSVImporter {
	return &CSVImporter{store: store, resolver: mappingResolver}
}

// ParseFile parses a CSV statement export into transactions.
func (i *CSVImporter) ParseFile(ctx context.Context, reader io.Reader, accountID string) ([]model.Transaction, error) {
	r := csv.NewReader(reader)
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	fp, err := i.fingerprintFor(ctx, header)
	if err != nil {
		return nil, err
	}

	columns, err := indexColumns(header, fp.ColumnMapping)
	if err != nil {
		return nil, err
	}

	var transactions []model.Transaction
	line := 1
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV record: %w", err)
		}
		line++

		tx, err := i.convertRecord(record, columns, fp, accountID)
		if err != nil {
			slog.Warn("Skipping unparseable CSV row", "line", line, "error", err)
			continue
		}
		transactions = append(transactions, tx)
	}

	slog.Info("Parsed CSV file", "total_transactions", len(transactions))
	return transactions, nil
}

// fingerprintFor returns the stored fingerprint for the header shape, or
// resolves and stores a new one.
func (i *CSVImporter) fingerprintFor(ctx context.Context, header []string) (*model.StatementFingerprint, error) {
	hash := model.HashHeader(header)

	fp, err := i.store.GetFingerprint(ctx, hash)
	if err == nil {
		return fp, nil
	}
	if !errors.Is(err, common.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up fingerprint: %w", err)
	}

	if i.resolver == nil {
		return nil, fmt.Errorf("%w: unknown statement header and no resolver configured", common.ErrInvalidConfig)
	}

	resolution := i.resolver.Resolve(ctx, resolver.Request{
		Task:  model.TaskColumnMapping,
		Input: strings.Join(header, ","),
	})
	if !resolution.Suggested() {
		return nil, fmt.Errorf("%w: could not map statement columns", common.ErrNoSuggestion)
	}

	var mapping map[string]model.ColumnRole
	if err := json.Unmarshal([]byte(resolution.Value), &mapping); err != nil {
		return nil, fmt.Errorf("failed to decode column mapping: %w", err)
	}

	fp = &model.StatementFingerprint{
		HeaderHash:    hash,
		ColumnMapping: mapping,
		AmountSign:    model.SignNegativeDebits,
	}
	if err := i.store.SaveFingerprint(ctx, fp); err != nil {
		return nil, fmt.Errorf("failed to save fingerprint: %w", err)
	}
	return fp, nil
}

// columnIndexes holds resolved column positions; -1 means absent.
type columnIndexes struct {
	date        int
	description int
	amount      int
	debit       int
	credit      int
}

// indexColumns maps header positions to roles. A statement must carry a date,
// a description, and either a single amount column or debit/credit columns.
func indexColumns(header []string, mapping map[string]model.ColumnRole) (columnIndexes, error) {
	columns := columnIndexes{date: -1, description: -1, amount: -1, debit: -1, credit: -1}

	for pos, name := range header {
		role, ok := mapping[strings.TrimSpace(name)]
		if !ok {
			continue
		}
		switch role {
		case model.RoleDate:
			columns.date = pos
		case model.RoleDescription:
			columns.description = pos
		case model.RoleAmount:
			columns.amount = pos
		case model.RoleDebit:
			columns.debit = pos
		case model.RoleCredit:
			columns.credit = pos
		}
	}

	if columns.date < 0 || columns.description < 0 {
		return columns, fmt.Errorf("%w: mapping lacks date or description column", common.ErrDataIntegrity)
	}
	if columns.amount < 0 && columns.debit < 0 && columns.credit < 0 {
		return columns, fmt.Errorf("%w: mapping lacks an amount column", common.ErrDataIntegrity)
	}
	return columns, nil
}

// convertRecord builds one transaction from a CSV row.
func (i *CSVImporter) convertRecord(record []string, columns columnIndexes, fp *model.StatementFingerprint, accountID string) (model.Transaction, error) {
	field := func(idx int) string {
		if idx < 0 || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	date, err := parseDate(field(columns.date), fp.DateFormat)
	if err != nil {
		return model.Transaction{}, err
	}

	amount, err := parseAmount(field(columns.amount), field(columns.debit), field(columns.credit), fp.AmountSign)
	if err != nil {
		return model.Transaction{}, err
	}

	description := field(columns.description)
	if description == "" {
		return model.Transaction{}, fmt.Errorf("empty description")
	}

	tx := model.Transaction{
		Date:        date,
		Description: description,
		Merchant:    model.NormalizeVendor(description),
		Amount:      amount,
		AccountID:   accountID,
		Type:        "DEBIT",
	}
	if amount > 0 {
		tx.Type = "CREDIT"
	}
	tx.ID = tx.GenerateHash()
	tx.Hash = tx.ID
	return tx, nil
}

// parseDate parses with the fingerprint's layout when known, otherwise tries
// the common layouts in order.
func parseDate(value, layout string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	if layout != "" {
		return time.Parse(layout, value)
	}
	for _, l := range dateLayouts {
		if t, err := time.Parse(l, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", value)
}

// parseAmount normalizes to the internal convention: debits negative.
func parseAmount(amount, debit, credit string, sign model.AmountSign) (float64, error) {
	switch {
	case amount != "":
		v, err := parseMoney(amount)
		if err != nil {
			return 0, err
		}
		// Some banks export charges as positive numbers.
		if sign == model.SignPositiveDebits {
			v = -v
		}
		return v, nil
	case debit != "":
		v, err := parseMoney(debit)
		if err != nil {
			return 0, err
		}
		if v > 0 {
			v = -v
		}
		return v, nil
	case credit != "":
		v, err := parseMoney(credit)
		if err != nil {
			return 0, err
		}
		if v < 0 {
			v = -v
		}
		return v, nil
	default:
		return 0, fmt.Errorf("no amount in row")
	}
}

// parseMoney strips currency formatting before parsing.
func parseMoney(value string) (float64, error) {
	cleaned := strings.NewReplacer("$", "", ",", "", "(", "-", ")", "").Replace(strings.TrimSpace(value))
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("bad amount %q", value)
	}
	return v, nil
}
