package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/repopulse/repopulse/pkg/graph"
	"github.com/repopulse/repopulse/pkg/snapshot"
	"github.com/repopulse/repopulse/pkg/universe"
)

// graphCommand creates the graph command exporting the build-dependency
// graph of the update queue.
func (c *CLI) graphCommand() *cobra.Command {
	var (
		output  string
		svg     bool
		noCache bool
	)

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Export the build-dependency graph of the update queue",
		Long: `Export the build-dependency graph of the pending update queue as
Graphviz DOT. An edge A -> B means a build of A needs a binary that B
produces, and both are pending. Members of dependency cycles are drawn
in red. With --svg the graph is rendered to SVG instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			gen, err := c.buildGeneration(cmd.Context(), noCache)
			if err != nil {
				return err
			}

			dot := updateGraphDOT(gen)
			data := []byte(dot)
			if svg {
				if data, err = graph.RenderSVG(dot); err != nil {
					return fmt.Errorf("render svg: %w", err)
				}
			}

			if output == "" || output == "-" {
				_, err := os.Stdout.Write(data)
				return err
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", output, err)
			}
			printSuccess("Exported %d pending updates", len(gen.Updates))
			printFile(output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	cmd.Flags().BoolVar(&svg, "svg", false, "render to SVG instead of DOT")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable response caching")

	return cmd
}

// updateGraphDOT builds the pending-update dependency graph and encodes
// it as DOT, cycle members highlighted.
func updateGraphDOT(gen *snapshot.Generation) string {
	u := gen.Universe
	pending := map[string]*universe.Source{}
	for _, up := range gen.Updates {
		pending[up.Source.Name] = up.Source
	}

	g := graph.New()
	for _, up := range gen.Updates {
		g.AddNode(up.Source.Name, graph.Metadata{"version": up.RecipeVersion})
	}
	for _, up := range gen.Updates {
		for _, decl := range up.Source.Declared {
			for _, deps := range []universe.DepMap{decl.Depends, decl.MakeDepends, decl.CheckDepends} {
				for _, token := range deps.Names() {
					for _, target := range u.ResolveToSources(token) {
						if _, ok := pending[target.Name]; !ok {
							continue
						}
						g.AddEdge(up.Source.Name, target.Name)
					}
				}
			}
		}
	}

	highlight := map[string]bool{}
	for _, cycle := range gen.Cycles {
		for _, name := range cycle {
			highlight[name] = true
		}
	}

	return graph.ToDOT(g, graph.Options{
		Label: func(id string, meta graph.Metadata) string {
			if v, ok := meta["version"].(string); ok && v != "" {
				return id + "\n" + v
			}
			return id
		},
		Highlight: highlight,
	})
}
