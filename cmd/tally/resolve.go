package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/hollyoak/tally/internal/cli"
	"github.com/hollyoak/tally/internal/model"
	"github.com/hollyoak/tally/internal/resolver"
	"github.com/hollyoak/tally/internal/service"
)

var taskNames = map[string]model.TaskType{
	"normalize":  model.TaskDescriptionNormalization,
	"gl":         model.TaskGLSuggestion,
	"department": model.TaskDepartmentSuggestion,
	"columns":    model.TaskColumnMapping,
}

func resolveCmd() *cobra.Command {
	var (
		taskFlag  string
		labels    []string
		inputFile string
		escalate  bool
		showStats bool
	)

	cmd := &cobra.Command{
		Use:   "resolve [input]",
		Short: "Resolve a description through the tiered cascade",
		Long: `Resolve runs one input (or a file of inputs, one per line) through the
resolution cascade: learned cache, embedding similarity, then the cheap
model. Use --escalate for cases the cascade cannot settle.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			task, ok := taskNames[taskFlag]
			if !ok {
				return fmt.Errorf("unknown task %q (want normalize, gl, department, or columns)", taskFlag)
			}
			if len(args) == 0 && inputFile == "" {
				return fmt.Errorf("provide an input argument or --file")
			}

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

			if escalate {
				if len(args) == 0 {
					return fmt.Errorf("escalation needs an inline input")
				}
				resolution := r.Escalate(ctx, service.EscalationRequest{
					Task:  task,
					Input: args[0],
				})
				printResolution(args[0], resolution)
				return nil
			}

			var inputs []string
			if inputFile != "" {
				inputs, err = readLines(inputFile)
				if err != nil {
					return err
				}
			} else {
				inputs = args
			}

			requests := make([]resolver.Request, len(inputs))
			for i, input := range inputs {
				requests[i] = resolver.Request{Task: task, Input: input, CandidateLabels: labels}
			}

			var results []model.Resolution
			if len(requests) == 1 {
				results = []model.Resolution{r.Resolve(ctx, requests[0])}
			} else {
				bar := progressbar.Default(int64(len(requests)), "resolving")
				results = r.ResolveBatch(ctx, requests)
				_ = bar.Finish()
			}

			for i, resolution := range results {
				printResolution(inputs[i], resolution)

				// A GL hit on an alias with a learned split expands into its lines.
				if task == model.TaskGLSuggestion && resolution.Suggested() {
					split, err := r.SplitFor(ctx, inputs[i])
					if err == nil && split != nil {
						for _, line := range split.Lines {
							fmt.Printf("    split: %s / %s %.0f%%\n", line.GLCode, line.Department, line.Percentage)
						}
					}
				}
			}

			if showStats {
				printTierStats(sink)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&taskFlag, "task", "normalize", "task: normalize, gl, department, or columns")
	cmd.Flags().StringSliceVar(&labels, "labels", nil, "candidate labels for gl/department suggestions")
	cmd.Flags().StringVar(&inputFile, "file", "", "file with one input per line")
	cmd.Flags().BoolVar(&escalate, "escalate", false, "send directly to the expensive model")
	cmd.Flags().BoolVar(&showStats, "stats", false, "print per-tier usage statistics")

	return cmd
}

func printResolution(input string, resolution model.Resolution) {
	switch {
	case resolution.Failed:
		fmt.Println(cli.FormatError(fmt.Sprintf("%s: tier %d failed, no suggestion", input, resolution.Tier)))
	case !resolution.Suggested():
		fmt.Println(cli.FormatWarning(fmt.Sprintf("%s: no suggestion", input)))
	default:
		fmt.Println(cli.FormatSuccess(fmt.Sprintf("%s -> %s (tier %d, confidence %.2f)",
			input, resolution.Value, resolution.Tier, resolution.Confidence)))
	}
}

func printTierStats(sink *resolver.MemorySink) {
	summary := sink.Summary()
	if len(summary) == 0 {
		return
	}

	fmt.Println()
	fmt.Println(cli.FormatTitle("Tier usage"))
	for tier := 1; tier <= 4; tier++ {
		stats, ok := summary[tier]
		if !ok {
			continue
		}
		avg := int64(0)
		if stats.Attempts > 0 {
			avg = stats.TotalLatency.Milliseconds() / int64(stats.Attempts)
		}
		fmt.Printf("  tier %d: %d attempts, %d hits, %d failures, avg %dms\n",
			tier, stats.Attempts, stats.Hits, stats.Failures, avg)
	}
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return lines, nil
}
