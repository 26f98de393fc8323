package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/repopulse/repopulse/pkg/errors"
	"github.com/repopulse/repopulse/pkg/snapshot"
	"github.com/repopulse/repopulse/pkg/universe"
)

// inspectCommand creates the inspect command showing one package or
// base package in detail.
func (c *CLI) inspectCommand() *cobra.Command {
	var noCache bool

	cmd := &cobra.Command{
		Use:   "inspect NAME",
		Short: "Show details for a package or base package",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			if err := errors.ValidatePackageName(name); err != nil {
				return err
			}

			gen, err := c.buildGeneration(cmd.Context(), noCache)
			if err != nil {
				return err
			}

			u := gen.Universe
			pkgs := u.PackagesByName(name)
			src, hasSource := u.Sources[name]
			if !hasSource && len(pkgs) > 0 {
				src, hasSource = u.Sources[pkgs[0].Base]
			}
			if len(pkgs) == 0 && !hasSource {
				return errors.New(errors.ErrCodeNotFound, "no package or source named %q", name)
			}

			if hasSource {
				printSource(gen, src)
			}
			for _, p := range pkgs {
				printNewline()
				printPackage(u, p)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable response caching")

	return cmd
}

func printSource(gen *snapshot.Generation, src *universe.Source) {
	fmt.Println(StyleTitle.Render(src.Name))

	recipe := "none"
	if src.HasRecipe {
		recipe = src.RecipeVersion
	}
	printKeyValue("Recipe", recipe)
	printKeyValue("Built", orDash(src.Version()))
	printKeyValue("Binaries", strings.Join(src.Binaries(), ", "))
	printKeyValue("Repos", orDash(strings.Join(src.Repos(), ", ")))
	if src.URL != "" {
		printKeyValue("Upstream", StyleLink.Render(src.URL))
	}
	if u := src.SourceURL(); u != "" {
		printKeyValue("Recipe tree", StyleLink.Render(u))
	}
	if len(src.Licenses) > 0 {
		printKeyValue("Licenses", strings.Join(src.Licenses, ", "))
	}

	if sr, ok := gen.Vulnerabilities.All[src.Name]; ok {
		printNewline()
		if worst, hasActive := sr.WorstActive(); hasActive {
			printWarning("%d active vulnerabilities, worst %s", sr.ActiveCount(), worst.Severity)
		}
		for _, rec := range sr.Records {
			suffix := ""
			if rec.Ignored {
				suffix = " (ignored)"
			}
			printDetail("%s %s%s", rec.Severity, rec.ID, suffix)
		}
	}
}

func printPackage(u *universe.Universe, p *universe.Package) {
	fmt.Println(StyleHighlight.Render(p.Key().String()))

	printKeyValue("Version", p.Version)
	printKeyValue("Description", orDash(p.Desc))
	printKeyValue("Base", p.Base)

	for _, kind := range []universe.DepKind{universe.DepNormal, universe.DepMake, universe.DepCheck, universe.DepOptional} {
		deps := p.DepsOfKind(kind)
		if len(deps) > 0 {
			printKeyValue(capitalize(kind.String()), strings.Join(deps.Names(), ", "))
		}
	}
	if len(p.Provides) > 0 {
		printKeyValue("Provides", strings.Join(p.Provides.Names(), ", "))
	}

	rdeps := u.RDeps(p)
	if len(rdeps) > 0 {
		printNewline()
		printInfo("Required by %d packages", len(rdeps))
		for _, rd := range rdeps {
			printDetail("%s (%s)", rd.Pkg.Key(), rd.Kinds)
		}
	}
}

func orDash(s string) string {
	if s == "" {
		return "—"
	}
	return s
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
