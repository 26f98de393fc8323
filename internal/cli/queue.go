package cli

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/repopulse/repopulse/pkg/queue"
	"github.com/repopulse/repopulse/pkg/snapshot"
)

// queueCommand creates the queue command showing pending work.
func (c *CLI) queueCommand() *cobra.Command {
	var (
		interactive bool
		removals    bool
		noCache     bool
	)

	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Show the pending update and removal queues",
		Long: `Run one refresh and show the pending update queue: every base package
whose recipe declares a newer version than anything built from it,
together with the reported build status per build type.

With --removals the removal queue is shown instead: built binaries whose
recipe has disappeared, and the reverse dependencies blocking them.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			gen, err := c.buildGeneration(cmd.Context(), noCache)
			if err != nil {
				return err
			}

			if interactive {
				model := newQueueModel(gen)
				_, err := tea.NewProgram(model, tea.WithAltScreen()).Run()
				return err
			}
			if removals {
				printRemovalQueue(gen)
				return nil
			}
			printUpdateQueue(gen)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "browse the queue interactively")
	cmd.Flags().BoolVar(&removals, "removals", false, "show the removal queue")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable response caching")

	return cmd
}

func printUpdateQueue(gen *snapshot.Generation) {
	if len(gen.Updates) == 0 {
		printInfo("No pending updates")
		return
	}

	rows := make([][]string, 0, len(gen.Updates))
	for _, up := range gen.Updates {
		built := up.BuiltVersion
		if up.New() {
			built = "new"
		}
		rows = append(rows, []string{
			up.Source.Name,
			built,
			up.RecipeVersion,
			formatStatuses(up.Statuses),
		})
	}

	fmt.Println(queueTable([]string{"Package", "Built", "Recipe", "Status"}, rows))
	printDetail("%d pending updates", len(gen.Updates))

	if len(gen.Cycles) > 0 {
		printNewline()
		printWarning("%d dependency cycles among pending updates", len(gen.Cycles))
		for _, cycle := range gen.Cycles {
			printDetail("%s", strings.Join(cycle, " "+iconArrow+" "))
		}
	}
}

func printRemovalQueue(gen *snapshot.Generation) {
	if len(gen.Removals) == 0 {
		printInfo("No pending removals")
		return
	}

	rows := make([][]string, 0, len(gen.Removals))
	for _, rm := range gen.Removals {
		state := "ready"
		if !rm.Ready {
			state = fmt.Sprintf("blocked by %d", len(rm.Blockers))
		}
		rows = append(rows, []string{
			rm.Pkg.Name,
			rm.Pkg.Repo,
			rm.Pkg.Version,
			state,
		})
	}

	fmt.Println(queueTable([]string{"Package", "Repo", "Version", "State"}, rows))
	printDetail("%d removal candidates", len(gen.Removals))
}

func queueTable(headers []string, rows [][]string) string {
	headerStyle := lipgloss.NewStyle().Foreground(colorGray).Bold(true)
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == -1 {
				return headerStyle
			}
			if col == 0 {
				return lipgloss.NewStyle().Foreground(colorWhite)
			}
			return lipgloss.NewStyle().Foreground(colorGray)
		}).
		Render()
}

// formatStatuses joins per-build-type statuses, most urgent first.
func formatStatuses(statuses []queue.TypeStatus) string {
	if len(statuses) == 0 {
		return "—"
	}
	parts := make([]string, 0, len(statuses))
	for _, st := range statuses {
		parts = append(parts, st.BuildType+":"+st.Status)
	}
	return strings.Join(parts, " ")
}
