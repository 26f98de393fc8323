package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/repopulse/repopulse/pkg/snapshot"
)

// refreshCommand creates the refresh command running the pipeline once.
func (c *CLI) refreshCommand() *cobra.Command {
	var (
		asJSON  bool
		noCache bool
	)

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Run one refresh and print a summary",
		Long: `Fetch all configured inputs, reconcile them once, and print a summary
of the resulting generation. Nothing is served or persisted; this is the
same pipeline the serve loop runs on its interval.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := loggerFromContext(cmd.Context())
			prog := newProgress(logger)

			spin := newSpinner(cmd.Context(), "Refreshing...")
			spin.Start()
			gen, err := c.buildGeneration(cmd.Context(), noCache)
			if err != nil {
				spin.StopWithError("Refresh failed")
				return err
			}
			spin.Stop()

			prog.done(fmt.Sprintf("Reconciled %d packages from %d sources",
				len(gen.Universe.Packages), len(gen.Universe.Sources)))

			if asJSON {
				return json.NewEncoder(os.Stdout).Encode(refreshSummary(gen))
			}
			printRefreshSummary(gen)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the summary as JSON")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable response caching")

	return cmd
}

// summary is the machine-readable refresh result.
type summary struct {
	Sources     int      `json:"sources"`
	Packages    int      `json:"packages"`
	Updates     int      `json:"updates"`
	Removals    int      `json:"removals"`
	Cycles      int      `json:"cycles"`
	Outdated    int      `json:"outdated"`
	Vulnerable  int      `json:"vulnerable"`
	Stale       []string `json:"stale,omitempty"`
	Diagnostics []string `json:"diagnostics,omitempty"`
}

func refreshSummary(gen *snapshot.Generation) summary {
	return summary{
		Sources:     len(gen.Universe.Sources),
		Packages:    len(gen.Universe.Packages),
		Updates:     len(gen.Updates),
		Removals:    len(gen.Removals),
		Cycles:      len(gen.Cycles),
		Outdated:    len(gen.OutOfDate.Outdated),
		Vulnerable:  len(gen.Vulnerabilities.Vulnerable),
		Stale:       gen.Stale,
		Diagnostics: gen.Diagnostics,
	}
}

func printRefreshSummary(gen *snapshot.Generation) {
	s := refreshSummary(gen)

	printSuccess("Refresh complete")
	printKeyValue("Sources", fmt.Sprint(s.Sources))
	printKeyValue("Packages", fmt.Sprint(s.Packages))
	printKeyValue("Updates", fmt.Sprint(s.Updates))
	printKeyValue("Removals", fmt.Sprint(s.Removals))
	printKeyValue("Cycles", fmt.Sprint(s.Cycles))
	printKeyValue("Out of date", fmt.Sprint(s.Outdated))
	printKeyValue("Vulnerable", fmt.Sprint(s.Vulnerable))

	if len(s.Stale) > 0 {
		printNewline()
		printWarning("Stale inputs: %s", strings.Join(s.Stale, ", "))
	}
	if len(s.Diagnostics) > 0 {
		printNewline()
		printInfo("%d diagnostics", len(s.Diagnostics))
		for _, d := range s.Diagnostics {
			printDetail("%s", d)
		}
	}
}
