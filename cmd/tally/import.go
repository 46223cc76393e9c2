package main

import (
	"fmt"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/hollyoak/tally/internal/cli"
	"github.com/hollyoak/tally/internal/model"
	"github.com/hollyoak/tally/internal/resolver"
)

func importCmd() *cobra.Command {
	var (
		accountID string
		normalize bool
		showStats bool
	)

	cmd := &cobra.Command{
		Use:   "import <statement-file>",
		Short: "Import a statement file",
		Long: `Import parses an OFX/QFX or CSV statement export. Unknown CSV header
shapes go through column-mapping resolution and are fingerprinted, so the
same bank's exports never need mapping twice. With --normalize each raw
description is also resolved to its clean form.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			sink := resolver.NewMemorySink()
			r, cleanup, err := buildResolver(store, sink)
			if err != nil {
				return err
			}
			defer cleanup()

			transactions, err := loadTransactions(ctx, store, r, args[0], accountID)
			if err != nil {
				return err
			}

			fmt.Println(cli.FormatSuccess(fmt.Sprintf("Imported %d transactions from %s", len(transactions), args[0])))

			if normalize {
				requests := make([]resolver.Request, len(transactions))
				for i, txn := range transactions {
					requests[i] = resolver.Request{
						Task:  model.TaskDescriptionNormalization,
						Input: txn.Description,
					}
				}

				bar := progressbar.Default(int64(len(requests)), "normalizing")
				results := r.ResolveBatch(ctx, requests)
				_ = bar.Finish()

				for i, resolution := range results {
					if resolution.Suggested() {
						fmt.Printf("  %s -> %s\n", transactions[i].Description, resolution.Value)
					} else {
						fmt.Printf("  %s -> %s\n", transactions[i].Description, cli.SubtleStyle.Render("(no suggestion)"))
					}
				}
			}

			if showStats {
				printTierStats(sink)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&accountID, "account", "", "account ID for CSV imports")
	cmd.Flags().BoolVar(&normalize, "normalize", false, "normalize descriptions through the cascade")
	cmd.Flags().BoolVar(&showStats, "stats", false, "print per-tier usage statistics")

	return cmd
}
