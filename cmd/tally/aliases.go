package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/hollyoak/tally/internal/cli"
	"github.com/hollyoak/tally/internal/learning"
	"github.com/hollyoak/tally/internal/model"
)

func aliasesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "aliases",
		Short: "Manage learned vendor aliases",
	}

	cmd.AddCommand(aliasesListCmd())
	cmd.AddCommand(aliasesAddCmd())
	cmd.AddCommand(aliasesSweepCmd())
	cmd.AddCommand(aliasesReconfirmCmd())
	cmd.AddCommand(aliasesSplitCmd())

	return cmd
}

func aliasesListCmd() *cobra.Command {
	var staleOnly bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List learned vendor aliases",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			aliases, err := store.ListAliases(ctx)
			if staleOnly {
				aliases, err = store.ListStaleAliases(ctx)
			}
			if err != nil {
				return err
			}

			if len(aliases) == 0 {
				fmt.Println(cli.FormatWarning("No aliases"))
				return nil
			}

			fmt.Println(cli.TableHeaderStyle.Render(fmt.Sprintf("%-30s %-25s %-10s %-12s %7s %s",
				"PATTERN", "VENDOR", "GL", "DEPT", "MATCHES", "LAST MATCHED")))
			for _, alias := range aliases {
				last := "never"
				if !alias.LastMatchedAt.IsZero() {
					last = alias.LastMatchedAt.Format("2006-01-02")
				}
				line := fmt.Sprintf("%-30s %-25s %-10s %-12s %7d %s",
					alias.AliasPattern, alias.DisplayName, alias.DefaultGLCode,
					alias.DefaultDepartment, alias.MatchCount, last)
				if alias.FlaggedForReview {
					line = cli.WarningStyle.Render(line + "  (needs review)")
				}
				fmt.Println(line)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&staleOnly, "stale", false, "only show aliases flagged for review")
	return cmd
}

func aliasesAddCmd() *cobra.Command {
	var (
		canonical  string
		glCode     string
		department string
		isRegex    bool
	)

	cmd := &cobra.Command{
		Use:   "add <pattern>",
		Short: "Add a vendor alias",
		Long: `Add creates a manual alias. The pattern is matched as an uppercase
substring of normalized descriptions unless --regex is set.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			pattern := args[0]
			if !isRegex {
				pattern = model.NormalizeVendor(pattern)
			}

			alias := &model.VendorAlias{
				AliasPattern:      pattern,
				IsRegex:           isRegex,
				CanonicalName:     model.NormalizeVendor(canonical),
				DisplayName:       canonical,
				DefaultGLCode:     glCode,
				DefaultDepartment: department,
				Confidence:        1.0,
				Source:            model.AliasSourceManual,
			}
			if err := store.SaveAlias(ctx, alias); err != nil {
				return err
			}

			fmt.Println(cli.FormatSuccess(fmt.Sprintf("Saved alias %q -> %s", pattern, canonical)))
			return nil
		},
	}

	cmd.Flags().StringVar(&canonical, "vendor", "", "canonical vendor name")
	cmd.Flags().StringVar(&glCode, "gl", "", "default GL code")
	cmd.Flags().StringVar(&department, "department", "", "default department")
	cmd.Flags().BoolVar(&isRegex, "regex", false, "treat the pattern as a regular expression")
	_ = cmd.MarkFlagRequired("vendor")

	return cmd
}

func aliasesSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Flag aliases unmatched for six months",
		Long: `Sweep runs the confidence decay pass: aliases that have not matched in
six months are flagged for review. Flagged aliases keep working; they are
listed under 'aliases list --stale' until reconfirmed.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			flagged, err := learning.NewDecayJob(store).SweepStale(ctx, time.Now())
			if err != nil {
				return err
			}

			fmt.Println(cli.FormatSuccess(fmt.Sprintf("Flagged %d stale aliases for review", flagged)))
			return nil
		},
	}
}

func aliasesReconfirmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconfirm <pattern>",
		Short: "Reconfirm a flagged alias",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := learning.NewDecayJob(store).Reconfirm(ctx, args[0], time.Now()); err != nil {
				return err
			}

			fmt.Println(cli.FormatSuccess(fmt.Sprintf("Reconfirmed alias %q", args[0])))
			return nil
		},
	}
}

func aliasesSplitCmd() *cobra.Command {
	var lines []string

	cmd := &cobra.Command{
		Use:   "split <pattern>",
		Short: "Record an expense split for an alias",
		Long: `Split stores how a vendor's charges divide across GL codes, for example:

  tally aliases split "ACME SOFTWARE" --line 6100:ENG:60 --line 6200:OPS:40

Each --line is GL:DEPARTMENT:PERCENTAGE; percentages must sum to 100.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			pattern := &model.SplitPattern{AliasPattern: model.NormalizeVendor(args[0])}
			for _, raw := range lines {
				line, err := parseSplitLine(raw)
				if err != nil {
					return err
				}
				pattern.Lines = append(pattern.Lines, line)
			}

			loop := learning.NewLoop(store, nil, nil)
			if err := loop.RecordSplit(ctx, pattern); err != nil {
				return err
			}

			fmt.Println(cli.FormatSuccess(fmt.Sprintf("Saved %d-way split for %q", len(pattern.Lines), pattern.AliasPattern)))
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&lines, "line", nil, "split line as GL:DEPARTMENT:PERCENTAGE")
	_ = cmd.MarkFlagRequired("line")

	return cmd
}

func parseSplitLine(raw string) (model.SplitLine, error) {
	parts := strings.Split(raw, ":")
	if len(parts) != 3 {
		return model.SplitLine{}, fmt.Errorf("bad split line %q, want GL:DEPARTMENT:PERCENTAGE", raw)
	}
	pct, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return model.SplitLine{}, fmt.Errorf("bad percentage in %q", raw)
	}
	return model.SplitLine{
		GLCode:     strings.TrimSpace(parts[0]),
		Department: strings.TrimSpace(parts[1]),
		Percentage: pct,
	}, nil
}
