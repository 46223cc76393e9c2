package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hollyoak/tally/internal/cli"
	"github.com/hollyoak/tally/internal/ingest"
	"github.com/hollyoak/tally/internal/learning"
	"github.com/hollyoak/tally/internal/match"
	"github.com/hollyoak/tally/internal/model"
	"github.com/hollyoak/tally/internal/service"
)

// receiptFile is the on-disk receipt format: extraction happens upstream, so
// the CLI only needs the read model.
type receiptFile struct {
	ID         string  `json:"id"`
	Vendor     string  `json:"vendor"`
	Date       string  `json:"date"` // YYYY-MM-DD
	GLCode     string  `json:"glCode,omitempty"`
	Department string  `json:"department,omitempty"`
	Amount     float64 `json:"amount"`
}

func matchCmd() *cobra.Command {
	var (
		receiptsPath     string
		transactionsPath string
		accountID        string
		confirm          bool
	)

	cmd := &cobra.Command{
		Use:   "match",
		Short: "Match receipts against statement transactions",
		Long: `Match scores every receipt against every transaction and proposes at
most one transaction per receipt. With --confirm, accepted proposals feed
the learning loop so the vendors involved resolve instantly next time.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			receipts, err := loadReceipts(receiptsPath)
			if err != nil {
				return err
			}
			transactions, err := loadTransactions(ctx, store, nil, transactionsPath, accountID)
			if err != nil {
				return err
			}

			loop := learning.NewLoop(store, nil, nil)
			engine := match.NewEngine(store, loop, match.Config{
				Workers: viper.GetInt("resolver.workers"),
			})

			proposals, err := engine.ProposeMatches(ctx, receipts, transactions)
			if err != nil {
				return err
			}

			if len(proposals) == 0 {
				fmt.Println(cli.FormatWarning("No matches found"))
				return nil
			}

			byReceipt := make(map[string]model.Receipt, len(receipts))
			for _, r := range receipts {
				byReceipt[r.ID] = r
			}
			byTxn := make(map[string]model.Transaction, len(transactions))
			for _, t := range transactions {
				byTxn[t.ID] = t
			}

			fmt.Println(cli.FormatTitle(fmt.Sprintf("%d proposed matches", len(proposals))))
			for _, p := range proposals {
				receipt := byReceipt[p.ReceiptID]
				txn := byTxn[p.TransactionID]
				fmt.Printf("  %s (%s, %.2f) -> %s (%s, %.2f) score %d [%s]\n",
					receipt.Vendor, receipt.Date.Format("2006-01-02"), receipt.Amount,
					txn.Description, txn.Date.Format("2006-01-02"), txn.Amount,
					p.Score, strings.Join(p.MatchReasons, ", "))

				if confirm {
					if err := engine.ConfirmMatch(ctx, receipt, txn); err != nil {
						return err
					}
				}
			}

			if confirm {
				fmt.Println(cli.FormatSuccess(fmt.Sprintf("Confirmed %d matches", len(proposals))))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&receiptsPath, "receipts", "", "receipts JSON file")
	cmd.Flags().StringVar(&transactionsPath, "transactions", "", "statement file (.ofx, .qfx, or .csv)")
	cmd.Flags().StringVar(&accountID, "account", "", "account ID for CSV imports")
	cmd.Flags().BoolVar(&confirm, "confirm", false, "confirm all proposals into the learning loop")
	_ = cmd.MarkFlagRequired("receipts")
	_ = cmd.MarkFlagRequired("transactions")

	return cmd
}

func loadReceipts(path string) ([]model.Receipt, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read receipts: %w", err)
	}

	var rows []receiptFile
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("failed to parse receipts: %w", err)
	}

	receipts := make([]model.Receipt, 0, len(rows))
	for _, row := range rows {
		date, err := parseDateFlag(row.Date)
		if err != nil {
			return nil, fmt.Errorf("receipt %s: %w", row.Vendor, err)
		}
		if row.ID == "" {
			row.ID = uuid.New().String()
		}
		receipts = append(receipts, model.Receipt{
			ID:         row.ID,
			Vendor:     row.Vendor,
			Date:       date,
			GLCode:     row.GLCode,
			Department: row.Department,
			Amount:     row.Amount,
		})
	}
	return receipts, nil
}

func loadTransactions(ctx context.Context, store service.LearnedStore, mappingResolver ingest.MappingResolver, path, accountID string) ([]model.Transaction, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open statement: %w", err)
	}
	defer func() { _ = f.Close() }()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".ofx", ".qfx":
		return ingest.NewOFXParser().ParseFile(ctx, f)
	case ".csv":
		return ingest.NewCSVImporter(store, mappingResolver).ParseFile(ctx, f, accountID)
	default:
		return nil, fmt.Errorf("unsupported statement format %q", filepath.Ext(path))
	}
}
