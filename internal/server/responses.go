package server

import (
	"sort"
	"strings"
	"time"

	"github.com/repopulse/repopulse/pkg/queue"
	"github.com/repopulse/repopulse/pkg/snapshot"
	"github.com/repopulse/repopulse/pkg/universe"
	"github.com/repopulse/repopulse/pkg/vuln"
)

const timeFormat = time.RFC3339

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

type statusResponse struct {
	State       string   `json:"state"`
	Etag        string   `json:"etag,omitempty"`
	LastUpdated string   `json:"last_updated,omitempty"`
	LastError   string   `json:"last_error,omitempty"`
	Sources     int      `json:"sources"`
	Packages    int      `json:"packages"`
	Updates     int      `json:"updates"`
	Removals    int      `json:"removals"`
	StaleInputs []string `json:"stale_inputs,omitempty"`
	Diagnostics int      `json:"diagnostics"`
}

type refreshResponse struct {
	Started   bool `json:"started"`
	Coalesced bool `json:"coalesced"`
}

type packageSummary struct {
	Name    string `json:"name"`
	Base    string `json:"base"`
	Version string `json:"version"`
	Repo    string `json:"repo"`
	Arch    string `json:"arch"`
	Desc    string `json:"desc,omitempty"`
}

func summarize(p *universe.Package) packageSummary {
	return packageSummary{
		Name:    p.Name,
		Base:    p.Base,
		Version: p.Version,
		Repo:    p.Repo,
		Arch:    p.Arch,
		Desc:    p.Desc,
	}
}

type dependencyTarget struct {
	Name string `json:"name"`
	Repo string `json:"repo"`
	Arch string `json:"arch"`
}

type dependencyEntry struct {
	Name        string             `json:"name"`
	Constraints []string           `json:"constraints,omitempty"`
	SatisfiedBy []dependencyTarget `json:"satisfied_by,omitempty"`
}

type reverseDependency struct {
	Name  string `json:"name"`
	Repo  string `json:"repo"`
	Arch  string `json:"arch"`
	Kinds string `json:"kinds"`
}

type packageDetail struct {
	packageSummary
	URL       string `json:"url,omitempty"`
	Filename  string `json:"filename,omitempty"`
	FileURL   string `json:"file_url,omitempty"`
	Packager  string `json:"packager,omitempty"`
	SHA256Sum string `json:"sha256sum,omitempty"`
	BuildDate int64  `json:"build_date,omitempty"`
	CSize     int64  `json:"csize,omitempty"`
	ISize     int64  `json:"isize,omitempty"`
	FileCount int    `json:"file_count"`
	Signed    bool   `json:"signed"`

	Groups   []string `json:"groups,omitempty"`
	Licenses []string `json:"licenses,omitempty"`

	Depends      []dependencyEntry `json:"depends,omitempty"`
	MakeDepends  []dependencyEntry `json:"makedepends,omitempty"`
	CheckDepends []dependencyEntry `json:"checkdepends,omitempty"`
	OptDepends   []dependencyEntry `json:"optdepends,omitempty"`
	Provides     []string          `json:"provides,omitempty"`
	Conflicts    []string          `json:"conflicts,omitempty"`
	Replaces     []string          `json:"replaces,omitempty"`

	// ProvidedBy lists other binaries that provide this package's name.
	ProvidedBy []dependencyTarget `json:"provided_by,omitempty"`

	ReverseDepends []reverseDependency `json:"reverse_depends,omitempty"`
}

func describePackage(u *universe.Universe, p *universe.Package) packageDetail {
	d := packageDetail{
		packageSummary: summarize(p),
		URL:            p.URL,
		Filename:       p.Filename,
		FileURL:        p.FileURL,
		Packager:       p.Packager,
		SHA256Sum:      p.SHA256Sum,
		BuildDate:      p.BuildDate,
		CSize:          p.CSize,
		ISize:          p.ISize,
		FileCount:      len(p.Files),
		Signed:         p.PGPSig != "",
		Groups:         p.Groups,
		Licenses:       p.Licenses,
		Depends:        dependencyEntries(u, p.Depends),
		MakeDepends:    dependencyEntries(u, p.MakeDepends),
		CheckDepends:   dependencyEntries(u, p.CheckDepends),
		OptDepends:     dependencyEntries(u, p.OptDepends),
		Provides:       p.Provides.Names(),
		Conflicts:      p.Conflicts.Names(),
		Replaces:       p.Replaces.Names(),
	}
	for _, prov := range u.ProvidersOf(p.Name) {
		if prov.Key() == p.Key() {
			continue
		}
		d.ProvidedBy = append(d.ProvidedBy, dependencyTarget{
			Name: prov.Name,
			Repo: prov.Repo,
			Arch: prov.Arch,
		})
	}
	for _, rd := range u.RDeps(p) {
		d.ReverseDepends = append(d.ReverseDepends, reverseDependency{
			Name:  rd.Pkg.Name,
			Repo:  rd.Pkg.Repo,
			Arch:  rd.Pkg.Arch,
			Kinds: rd.Kinds.String(),
		})
	}
	return d
}

// dependencyEntries maps raw dependency declarations to the binaries
// that satisfy them; every satisfying package is listed, provides
// matches included.
func dependencyEntries(u *universe.Universe, deps universe.DepMap) []dependencyEntry {
	var out []dependencyEntry
	for _, name := range deps.Names() {
		entry := dependencyEntry{Name: name}
		for _, c := range deps[name] {
			if c != "" {
				entry.Constraints = append(entry.Constraints, c)
			}
		}
		for _, target := range u.Resolve(name) {
			entry.SatisfiedBy = append(entry.SatisfiedBy, dependencyTarget{
				Name: target.Name,
				Repo: target.Repo,
				Arch: target.Arch,
			})
		}
		out = append(out, entry)
	}
	return out
}

type sourceDetail struct {
	Name          string   `json:"name"`
	Realname      string   `json:"realname"`
	HasRecipe     bool     `json:"has_recipe"`
	RecipeVersion string   `json:"recipe_version,omitempty"`
	BuiltVersion  string   `json:"built_version,omitempty"`
	URL           string   `json:"url,omitempty"`
	SourceURL     string   `json:"source_url,omitempty"`
	HistoryURL    string   `json:"history_url,omitempty"`
	Licenses      []string `json:"licenses,omitempty"`
	Groups        []string `json:"groups,omitempty"`
	Binaries      []string `json:"binaries,omitempty"`
	Repos         []string `json:"repos,omitempty"`

	Vulnerabilities []vuln.Record `json:"vulnerabilities,omitempty"`
}

func describeSource(gen *snapshot.Generation, src *universe.Source) *sourceDetail {
	d := &sourceDetail{
		Name:          src.Name,
		Realname:      src.Realname,
		HasRecipe:     src.HasRecipe,
		RecipeVersion: src.RecipeVersion,
		BuiltVersion:  src.Version(),
		URL:           src.URL,
		SourceURL:     src.SourceURL(),
		HistoryURL:    src.HistoryURL(),
		Licenses:      src.Licenses,
		Groups:        src.Groups,
		Binaries:      src.Binaries(),
		Repos:         src.Repos(),
	}
	if sr, ok := gen.Vulnerabilities.All[src.Name]; ok {
		d.Vulnerabilities = sr.Records
	}
	return d
}

type updateResponse struct {
	Name          string             `json:"name"`
	Binaries      []string           `json:"binaries"`
	BuiltVersion  string             `json:"built_version,omitempty"`
	RecipeVersion string             `json:"recipe_version"`
	New           bool               `json:"new"`
	Statuses      []queue.TypeStatus `json:"statuses"`
}

type blockerResponse struct {
	Name  string `json:"name"`
	Repo  string `json:"repo"`
	Arch  string `json:"arch"`
	Kinds string `json:"kinds"`
}

type removalResponse struct {
	Name     string            `json:"name"`
	Repo     string            `json:"repo"`
	Arch     string            `json:"arch"`
	Version  string            `json:"version"`
	Ready    bool              `json:"ready"`
	Blockers []blockerResponse `json:"blockers,omitempty"`
}

type outOfDateEntry struct {
	Name     string                `json:"name"`
	Local    string                `json:"local"`
	External queue.ExternalVersion `json:"external"`
}

type outOfDateResponse struct {
	Outdated []outOfDateEntry `json:"outdated"`
	Missing  []string         `json:"missing"`
}

type vulnSource struct {
	Name    string        `json:"name"`
	Worst   string        `json:"worst,omitempty"`
	Active  int           `json:"active"`
	Records []vuln.Record `json:"records"`
}

type vulnResponse struct {
	Vulnerable   []vulnSource `json:"vulnerable"`
	Insufficient []string     `json:"insufficient_metadata"`
}

type detailResponse struct {
	Name     string          `json:"name"`
	Source   *sourceDetail   `json:"source,omitempty"`
	Packages []packageDetail `json:"packages,omitempty"`
}

// search matches the query case-insensitively against package names
// and descriptions; name matches rank ahead of description matches.
func search(u *universe.Universe, q string) []packageSummary {
	q = strings.ToLower(q)
	var byName, byDesc []packageSummary
	for _, name := range u.SourceNames() {
		for _, p := range u.Sources[name].Packages {
			switch {
			case strings.Contains(strings.ToLower(p.Name), q):
				byName = append(byName, summarize(p))
			case strings.Contains(strings.ToLower(p.Desc), q):
				byDesc = append(byDesc, summarize(p))
			}
		}
	}
	sort.SliceStable(byName, func(i, j int) bool {
		// Shorter names surface the closest matches first.
		if len(byName[i].Name) != len(byName[j].Name) {
			return len(byName[i].Name) < len(byName[j].Name)
		}
		return byName[i].Name < byName[j].Name
	})
	out := append(byName, byDesc...)
	if out == nil {
		out = []packageSummary{}
	}
	return out
}
