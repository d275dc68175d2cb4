package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pendergraft/sitelaunch/internal/config"
	"github.com/pendergraft/sitelaunch/internal/source"
)

// sourceJSON is the --json shape of a sources table entry
type sourceJSON struct {
	Name  string `json:"name"`
	URL   string `json:"url"`
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

func createSourcesCmd(configPath *string) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "sources",
		Short: "List named archive sources",
		Long: `List the [sources] table from the configuration and check each URL.

Names listed here can be passed to --source or picked from the menu.

EXAMPLES:
  sitelaunch sources
  sitelaunch sources --json
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			return printSources(cmd.OutOrStdout(), cfg.Sources, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	return cmd
}

func printSources(w io.Writer, sources map[string]string, jsonOutput bool) error {
	names := make([]string, 0, len(sources))
	for name := range sources {
		names = append(names, name)
	}
	sort.Strings(names)

	entries := make([]sourceJSON, 0, len(names))
	for _, name := range names {
		e := sourceJSON{Name: name, URL: sources[name], Valid: true}
		if err := source.ValidateURL(e.URL); err != nil {
			e.Valid = false
			e.Error = err.Error()
		}
		entries = append(entries, e)
	}

	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"sources": entries,
			"count":   len(entries),
		})
	}

	if len(entries) == 0 {
		fmt.Fprintln(w, "No sources configured")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tURL\tSTATUS")
	for _, e := range entries {
		status := "ok"
		if !e.Valid {
			status = e.Error
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", e.Name, e.URL, status)
	}
	return tw.Flush()
}
