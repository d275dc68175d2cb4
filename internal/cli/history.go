package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/pendergraft/sitelaunch/internal/config"
	"github.com/pendergraft/sitelaunch/internal/history"
	"github.com/pendergraft/sitelaunch/internal/logging"
)

// runJSON is the --json shape of a history row
type runJSON struct {
	ID          string     `json:"id"`
	Domain      string     `json:"domain"`
	Registrar   string     `json:"registrar"`
	Panel       string     `json:"panel"`
	Status      string     `json:"status"`
	FailedStage string     `json:"failedStage,omitempty"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"startedAt"`
	FinishedAt  *time.Time `json:"finishedAt,omitempty"`
}

func toRunJSON(r history.Run) runJSON {
	out := runJSON{
		ID:          r.ID,
		Domain:      r.Domain,
		Registrar:   r.Registrar,
		Panel:       r.Panel,
		Status:      string(r.Status),
		FailedStage: r.FailedStage,
		Error:       r.Error,
		StartedAt:   r.StartedAt,
	}
	if !r.FinishedAt.IsZero() {
		finished := r.FinishedAt
		out.FinishedAt = &finished
	}
	return out
}

func createHistoryCmd(configPath *string) *cobra.Command {
	var limit int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "List past runs",
		Long: `List recorded provisioning runs, most recent first, or show one run.

EXAMPLES:
  # Last 20 runs
  sitelaunch history

  # One run in detail
  sitelaunch history 5f0c1f9e-8f0d-4a4e-9d59-7f1f3b0c2a11

  # Output as JSON
  sitelaunch history --limit 100 --json
`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			store, err := history.New(cfg.History, logging.Discard())
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.Migrate(ctx); err != nil {
				return err
			}

			if len(args) == 1 {
				run, err := store.Get(ctx, args[0])
				if err != nil {
					return fmt.Errorf("failed to get run: %w", err)
				}
				return printRun(cmd.OutOrStdout(), *run, jsonOutput)
			}

			runs, err := store.List(ctx, limit)
			if err != nil {
				return fmt.Errorf("failed to list runs: %w", err)
			}
			return printRuns(cmd.OutOrStdout(), runs, jsonOutput)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "number of runs to show")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	return cmd
}

func printRuns(w io.Writer, runs []history.Run, jsonOutput bool) error {
	if jsonOutput {
		out := make([]runJSON, 0, len(runs))
		for _, r := range runs {
			out = append(out, toRunJSON(r))
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"runs":  out,
			"count": len(out),
		})
	}

	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs found")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDOMAIN\tREGISTRAR\tPANEL\tSTATUS\tFAILED STAGE\tSTARTED")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Domain, r.Registrar, r.Panel, r.Status, r.FailedStage,
			r.StartedAt.Local().Format("2006-01-02 15:04:05"))
	}
	return tw.Flush()
}

func printRun(w io.Writer, r history.Run, jsonOutput bool) error {
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(toRunJSON(r))
	}

	fmt.Fprintf(w, "Run:       %s\n", r.ID)
	fmt.Fprintf(w, "Domain:    %s\n", r.Domain)
	fmt.Fprintf(w, "Registrar: %s\n", r.Registrar)
	fmt.Fprintf(w, "Panel:     %s\n", r.Panel)
	fmt.Fprintf(w, "Status:    %s\n", r.Status)
	fmt.Fprintf(w, "Started:   %s\n", r.StartedAt.Local().Format(time.RFC3339))
	if !r.FinishedAt.IsZero() {
		fmt.Fprintf(w, "Finished:  %s (%s)\n", r.FinishedAt.Local().Format(time.RFC3339), r.Duration().Round(time.Millisecond))
	}
	if r.FailedStage != "" {
		fmt.Fprintf(w, "Failed at: %s\n", r.FailedStage)
	}
	if r.Error != "" {
		fmt.Fprintf(w, "Error:     %s\n", r.Error)
	}
	return nil
}
