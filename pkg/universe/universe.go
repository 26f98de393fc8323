// Package universe holds the reconciled package graph: base packages
// known from recipes, built binaries known from repository databases,
// and the dependency and reverse-dependency indexes tying them
// together. One Universe covers one refresh and is never mutated after
// Reconcile returns.
package universe

import (
	"sort"
	"strings"
	"time"

	"github.com/repopulse/repopulse/pkg/vercmp"
)

// DepKind classifies a dependency edge.
type DepKind uint8

const (
	DepNormal DepKind = iota
	DepMake
	DepCheck
	DepOptional
)

var depKindNames = [...]string{"depends", "makedepends", "checkdepends", "optdepends"}

func (k DepKind) String() string {
	if int(k) < len(depKindNames) {
		return depKindNames[k]
	}
	return "unknown"
}

// Optional reports whether this kind never blocks a removal.
func (k DepKind) Optional() bool { return k == DepOptional }

// KindSet is a set of dependency kinds.
type KindSet uint8

func (s *KindSet) Add(k DepKind) { *s |= 1 << k }

func (s KindSet) Has(k DepKind) bool { return s&(1<<k) != 0 }

// OptionalOnly reports whether every kind in the set is optional.
func (s KindSet) OptionalOnly() bool { return s != 0 && s == 1<<DepOptional }

// Kinds returns the kinds in the set, most binding first.
func (s KindSet) Kinds() []DepKind {
	var kinds []DepKind
	for k := DepNormal; k <= DepOptional; k++ {
		if s.Has(k) {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

func (s KindSet) String() string {
	names := make([]string, 0, 4)
	for _, k := range s.Kinds() {
		names = append(names, k.String())
	}
	return strings.Join(names, "+")
}

// DepMap maps a referenced package name to the constraint or reason
// strings declared against it.
type DepMap map[string][]string

// Add records one constraint for a name, keeping the list sorted and
// free of duplicates.
func (m DepMap) Add(name, constraint string) {
	existing := m[name]
	for _, c := range existing {
		if c == constraint {
			return
		}
	}
	existing = append(existing, constraint)
	sort.Strings(existing)
	m[name] = existing
}

// Merge folds all entries of other into m.
func (m DepMap) Merge(other DepMap) {
	for name, constraints := range other {
		for _, c := range constraints {
			m.Add(name, c)
		}
	}
}

// Names returns the referenced names in sorted order.
func (m DepMap) Names() []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Repository describes one binary package repository and the recipe
// environment it is built from.
type Repository struct {
	Name          string
	Variant       string
	Arch          string
	Environment   string // key used in the recipe document
	BuildTypes    []string
	URL           string
	DownloadURL   string
	SourceURL     string
	PackagePrefix string
	BasePrefix    string
}

// PackageKey uniquely identifies a built binary within one generation.
type PackageKey struct {
	Repo string
	Name string
	Arch string
}

func (k PackageKey) String() string {
	return k.Repo + "/" + k.Name + "/" + k.Arch
}

func (k PackageKey) less(o PackageKey) bool {
	if k.Repo != o.Repo {
		return k.Repo < o.Repo
	}
	if k.Name != o.Name {
		return k.Name < o.Name
	}
	return k.Arch < o.Arch
}

// Package is one built binary in one repository and architecture.
type Package struct {
	Name        string
	Base        string
	Version     string
	Desc        string
	URL         string
	Repo        string
	RepoVariant string
	Arch        string
	Filename    string
	FileURL     string
	Packager    string
	PGPSig      string
	SHA256Sum   string
	BuildDate   int64
	CSize       int64
	ISize       int64
	Groups      []string
	Licenses    []string
	Files       []string

	Depends      DepMap
	MakeDepends  DepMap
	CheckDepends DepMap
	OptDepends   DepMap
	Provides     DepMap
	Conflicts    DepMap
	Replaces     DepMap

	// Realname is the name with the repository's package prefix and any
	// VCS suffix stripped, used for matching against external trackers.
	Realname string
}

// Key returns the identifying triple for this package.
func (p *Package) Key() PackageKey {
	return PackageKey{Repo: p.Repo, Name: p.Name, Arch: p.Arch}
}

// DepsOfKind returns the dependency mapping for one edge kind.
func (p *Package) DepsOfKind(k DepKind) DepMap {
	switch k {
	case DepNormal:
		return p.Depends
	case DepMake:
		return p.MakeDepends
	case DepCheck:
		return p.CheckDepends
	case DepOptional:
		return p.OptDepends
	}
	return nil
}

// DeclaredPackage is one binary package a recipe declares, whether or
// not a build of it exists yet.
type DeclaredPackage struct {
	Name         string
	Depends      DepMap
	MakeDepends  DepMap
	CheckDepends DepMap
	OptDepends   DepMap
	Provides     DepMap
	Conflicts    DepMap
	Replaces     DepMap
}

// Source is one base package. It exists when a recipe declares it, when
// built binaries reference it, or both; HasRecipe distinguishes a
// recipe-backed source from a stub reconstructed around orphaned
// binaries.
type Source struct {
	Name     string
	Realname string

	HasRecipe     bool
	RecipeVersion string // newest declared build version across environments
	RecipeDate    time.Time
	RepoURL       string
	RepoPath      string
	URL           string
	Licenses      []string
	Groups        []string
	Internal      bool
	References    map[string]string
	Environments  []string
	BuildTypes    []string
	Declared      []DeclaredPackage

	Packages []*Package
}

// Version returns the newest built version across this source's
// packages, or the empty string when nothing has been built.
func (s *Source) Version() string {
	version := ""
	for _, p := range s.Packages {
		if version == "" || vercmp.Newer(p.Version, version) {
			version = p.Version
		}
	}
	return version
}

// Binaries returns the names of all binary packages tied to this
// source, declared or built.
func (s *Source) Binaries() []string {
	seen := map[string]bool{}
	for _, d := range s.Declared {
		seen[d.Name] = true
	}
	for _, p := range s.Packages {
		seen[p.Name] = true
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Repos returns the repositories this source has built packages in.
func (s *Source) Repos() []string {
	return collect(s.Packages, func(p *Package) string { return p.Repo })
}

// Arches returns the architectures this source has built packages for.
func (s *Source) Arches() []string {
	return collect(s.Packages, func(p *Package) string { return p.Arch })
}

// BuildDate returns the build time of the newest package, zero when
// nothing has been built.
func (s *Source) BuildDate() int64 {
	var newest int64
	for _, p := range s.Packages {
		if p.BuildDate > newest {
			newest = p.BuildDate
		}
	}
	return newest
}

// Description returns the description of the first built package.
func (s *Source) Description() string {
	if len(s.Packages) == 0 {
		return ""
	}
	return s.Packages[0].Desc
}

// UpstreamNames returns the candidate names for matching this source
// against external trackers: the source realname first, then built
// package realnames, then provided names, duplicates removed.
func (s *Source) UpstreamNames() []string {
	var names []string
	seen := map[string]bool{}
	add := func(n string) {
		if n != "" && !seen[n] {
			seen[n] = true
			names = append(names, n)
		}
	}

	add(s.Realname)
	var pkgNames, provNames []string
	for _, p := range s.Packages {
		pkgNames = append(pkgNames, p.Realname)
		for name := range p.Provides {
			provNames = append(provNames, name)
		}
	}
	sort.Strings(pkgNames)
	sort.Strings(provNames)
	for _, n := range pkgNames {
		add(n)
	}
	for _, n := range provNames {
		add(n)
	}
	return names
}

// SourceURL returns the recipe browsing URL, empty for stubs without a
// known recipe location.
func (s *Source) SourceURL() string {
	if s.RepoURL == "" {
		return ""
	}
	return s.RepoURL + "/tree/master/" + s.RepoPath
}

// HistoryURL returns the recipe history URL.
func (s *Source) HistoryURL() string {
	if s.RepoURL == "" {
		return ""
	}
	return s.RepoURL + "/commits/master/" + s.RepoPath
}

func collect(pkgs []*Package, get func(*Package) string) []string {
	seen := map[string]bool{}
	var out []string
	for _, p := range pkgs {
		v := get(p)
		if v != "" && !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}

// ReverseDep is one package depending on the queried package, with the
// union of edge kinds that tie them together.
type ReverseDep struct {
	Pkg   *Package
	Kinds KindSet
}

// Universe is the reconciled graph for one refresh.
type Universe struct {
	Repos    []Repository
	Sources  map[string]*Source
	Packages map[PackageKey]*Package

	byName     map[string][]*Package
	byProvides map[string][]*Package
	byAlias    map[string][]*Package
	rdeps      map[PackageKey][]ReverseDep

	declaredBy       map[string]string
	declaredProvides map[string][]string
	declaredAlias    map[string][]string

	packagePrefixes []string
}

// BuildTypes returns every configured build type. A type claimed by
// several repositories sorts with the last one claiming it.
func (u *Universe) BuildTypes() []string {
	var out []string
	for _, repo := range u.Repos {
		for _, bt := range repo.BuildTypes {
			for i, have := range out {
				if have == bt {
					out = append(out[:i], out[i+1:]...)
					break
				}
			}
			out = append(out, bt)
		}
	}
	return out
}

// SourceNames returns all base package names in sorted order.
func (u *Universe) SourceNames() []string {
	names := make([]string, 0, len(u.Sources))
	for name := range u.Sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PackagesByName returns every built package with the given name.
func (u *Universe) PackagesByName(name string) []*Package {
	return u.byName[name]
}

// ProvidersOf returns every built package that provides the given name.
func (u *Universe) ProvidersOf(name string) []*Package {
	return u.byProvides[name]
}

// Resolve maps a dependency token to every package satisfying it.
// Exact name matches come first, then packages providing the name; when
// neither exists, packages whose prefix-stripped name equals the
// prefix-stripped token are used as a fallback.
func (u *Universe) Resolve(name string) []*Package {
	var out []*Package
	seen := map[PackageKey]bool{}
	add := func(pkgs []*Package) {
		for _, p := range pkgs {
			if k := p.Key(); !seen[k] {
				seen[k] = true
				out = append(out, p)
			}
		}
	}

	add(u.byName[name])
	add(u.byProvides[name])
	if len(out) == 0 {
		add(u.byAlias[u.Normalize(name)])
	}
	return out
}

// ResolveToSources maps a dependency token to the sources that build a
// package satisfying it. Unlike [Universe.Resolve] this also covers
// declared packages that have never been built, which is what build
// ordering needs. Exact and provided names are considered first; the
// prefix-alias fallback only applies when neither matched anything.
func (u *Universe) ResolveToSources(name string) []*Source {
	var out []*Source
	seen := map[string]bool{}
	add := func(base string) {
		src := u.Sources[base]
		if src == nil || seen[base] {
			return
		}
		seen[base] = true
		out = append(out, src)
	}

	if base, ok := u.declaredBy[name]; ok {
		add(base)
	}
	for _, p := range u.byName[name] {
		add(p.Base)
	}
	for _, base := range u.declaredProvides[name] {
		add(base)
	}
	for _, p := range u.byProvides[name] {
		add(p.Base)
	}
	if len(out) == 0 {
		alias := u.Normalize(name)
		for _, base := range u.declaredAlias[alias] {
			add(base)
		}
		for _, p := range u.byAlias[alias] {
			add(p.Base)
		}
	}
	return out
}

// RDeps returns the packages depending on p, directly or through a
// provided name, sorted by package key.
func (u *Universe) RDeps(p *Package) []ReverseDep {
	return u.rdeps[p.Key()]
}

// Normalize strips the longest matching configured package prefix from
// a name, yielding the environment-independent alias used for fuzzy
// matching.
func (u *Universe) Normalize(name string) string {
	for _, prefix := range u.packagePrefixes {
		if strings.HasPrefix(name, prefix) {
			return strings.TrimPrefix(name, prefix)
		}
	}
	return name
}
