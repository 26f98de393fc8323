package universe

import (
	"net/url"
	"sort"
	"strings"

	"github.com/repopulse/repopulse/pkg/errors"
	"github.com/repopulse/repopulse/pkg/repodb"
	"github.com/repopulse/repopulse/pkg/srcinfo"
	"github.com/repopulse/repopulse/pkg/vercmp"
)

// RepoData pairs one repository with its parsed database records.
type RepoData struct {
	Repo    Repository
	Records []repodb.Record
}

// Input is the complete parsed data set for one refresh. Reconcile
// reads nothing else, so the same input always yields the same graph.
type Input struct {
	Repos   []RepoData
	Recipes []srcinfo.Recipe
}

type reconciler struct {
	u     *Universe
	diags []error

	basePrefixes []string
	envTypes     map[string][]string
	srcURLByRepo map[string]string
}

// Reconcile merges parsed binary records and recipe records into one
// Universe. Individual bad records become diagnostics and are excluded;
// the merge itself never fails.
func Reconcile(in Input) (*Universe, []error) {
	r := &reconciler{
		u: &Universe{
			Sources:    map[string]*Source{},
			Packages:   map[PackageKey]*Package{},
			byName:     map[string][]*Package{},
			byProvides: map[string][]*Package{},
			byAlias:    map[string][]*Package{},
			rdeps:      map[PackageKey][]ReverseDep{},

			declaredBy:       map[string]string{},
			declaredProvides: map[string][]string{},
			declaredAlias:    map[string][]string{},
		},
		envTypes:     map[string][]string{},
		srcURLByRepo: map[string]string{},
	}

	for _, rd := range in.Repos {
		r.u.Repos = append(r.u.Repos, rd.Repo)
		r.u.packagePrefixes = addPrefix(r.u.packagePrefixes, rd.Repo.PackagePrefix)
		r.basePrefixes = addPrefix(r.basePrefixes, rd.Repo.BasePrefix)
		r.srcURLByRepo[rd.Repo.Name] = rd.Repo.SourceURL
		if rd.Repo.Environment != "" {
			r.envTypes[rd.Repo.Environment] = mergeStrings(r.envTypes[rd.Repo.Environment], rd.Repo.BuildTypes)
		}
	}

	for _, recipe := range in.Recipes {
		r.addRecipe(recipe)
	}
	for _, rd := range in.Repos {
		for _, rec := range rd.Records {
			r.addPackage(rd.Repo, rec)
		}
	}
	r.finalize()

	return r.u, r.diags
}

func (r *reconciler) ensureSource(name string) *Source {
	if src, ok := r.u.Sources[name]; ok {
		return src
	}
	src := &Source{
		Name:     name,
		Realname: vercmp.StripVCS(stripPrefix(name, r.basePrefixes)),
	}
	r.u.Sources[name] = src
	return src
}

func (r *reconciler) addRecipe(recipe srcinfo.Recipe) {
	src := r.ensureSource(recipe.Base)
	src.HasRecipe = true

	bv := recipe.BuildVersion()
	if src.RecipeVersion == "" || vercmp.Newer(bv, src.RecipeVersion) {
		src.RecipeVersion = bv
	}
	if src.RepoURL == "" || recipe.Date.After(src.RecipeDate) {
		src.RepoURL = recipe.RepoURL
		src.RepoPath = recipe.Path
	}
	if recipe.Date.After(src.RecipeDate) {
		src.RecipeDate = recipe.Date
	}
	if src.URL == "" {
		src.URL = recipe.URL
	}
	src.Licenses = mergeStrings(src.Licenses, recipe.Licenses)
	src.Groups = mergeStrings(src.Groups, recipe.Groups)
	if recipe.Extra.Internal {
		src.Internal = true
	}
	if refs := recipe.Extra.ReferenceMap(); len(refs) > 0 {
		if src.References == nil {
			src.References = map[string]string{}
		}
		for k, v := range refs {
			src.References[k] = v
		}
	}
	src.Environments = mergeStrings(src.Environments, []string{recipe.Environment})
	types := r.envTypes[recipe.Environment]
	if len(types) == 0 {
		types = []string{recipe.Environment}
	}
	src.BuildTypes = mergeStrings(src.BuildTypes, types)

	for _, sub := range recipe.Packages {
		if owner, ok := r.u.declaredBy[sub.Name]; ok && owner != recipe.Base {
			r.diags = append(r.diags, errors.New(errors.ErrCodeReconcileInconsistency,
				"binary package %s declared by both %s and %s", sub.Name, owner, recipe.Base))
			continue
		}
		r.u.declaredBy[sub.Name] = recipe.Base

		decl := src.declared(sub.Name)
		decl.Depends.Merge(SplitDepends(sub.Depends))
		decl.MakeDepends.Merge(SplitDepends(sub.MakeDepends))
		decl.CheckDepends.Merge(SplitDepends(sub.CheckDepends))
		decl.OptDepends.Merge(SplitOptDepends(sub.OptDepends))
		decl.Provides.Merge(SplitDepends(sub.Provides))
		decl.Conflicts.Merge(SplitDepends(sub.Conflicts))
		decl.Replaces.Merge(SplitDepends(sub.Replaces))

		for prov := range decl.Provides {
			r.u.declaredProvides[prov] = mergeStrings(r.u.declaredProvides[prov], []string{recipe.Base})
		}
		alias := r.u.Normalize(sub.Name)
		r.u.declaredAlias[alias] = mergeStrings(r.u.declaredAlias[alias], []string{recipe.Base})
	}
}

// declared returns the declared sub-package entry for name, creating it
// on first use.
func (s *Source) declared(name string) *DeclaredPackage {
	for i := range s.Declared {
		if s.Declared[i].Name == name {
			return &s.Declared[i]
		}
	}
	s.Declared = append(s.Declared, DeclaredPackage{
		Name:         name,
		Depends:      DepMap{},
		MakeDepends:  DepMap{},
		CheckDepends: DepMap{},
		OptDepends:   DepMap{},
		Provides:     DepMap{},
		Conflicts:    DepMap{},
		Replaces:     DepMap{},
	})
	return &s.Declared[len(s.Declared)-1]
}

func (r *reconciler) addPackage(repo Repository, rec repodb.Record) {
	base := rec.Base
	if base == "" {
		if repo.PackagePrefix != "" && strings.HasPrefix(rec.Name, repo.PackagePrefix) {
			base = repo.BasePrefix + strings.TrimPrefix(rec.Name, repo.PackagePrefix)
		} else {
			base = rec.Name
		}
	}

	p := &Package{
		Name:        rec.Name,
		Base:        base,
		Version:     rec.Version,
		Desc:        rec.Desc,
		URL:         rec.URL,
		Repo:        repo.Name,
		RepoVariant: repo.Variant,
		Arch:        rec.Arch,
		Filename:    rec.Filename,
		Packager:    rec.Packager,
		PGPSig:      rec.PGPSig,
		SHA256Sum:   rec.SHA256Sum,
		BuildDate:   rec.BuildDate,
		CSize:       rec.CSize,
		ISize:       rec.ISize,
		Groups:      rec.Groups,
		Licenses:    rec.Licenses,
		Files:       rec.Files,

		Depends:      SplitDepends(rec.Depends),
		MakeDepends:  SplitDepends(rec.MakeDepends),
		CheckDepends: SplitDepends(rec.CheckDepends),
		OptDepends:   SplitOptDepends(rec.OptDepends),
		Provides:     SplitDepends(rec.Provides),
		Conflicts:    SplitDepends(rec.Conflicts),
		Replaces:     SplitDepends(rec.Replaces),

		Realname: vercmp.StripVCS(stripPrefix(rec.Name, r.u.packagePrefixes)),
	}
	if repo.DownloadURL != "" && rec.Filename != "" {
		p.FileURL = repo.DownloadURL + "/" + url.PathEscape(rec.Filename)
	}

	key := p.Key()
	if _, exists := r.u.Packages[key]; exists {
		r.diags = append(r.diags, errors.New(errors.ErrCodeReconcileInconsistency,
			"duplicate package %s", key))
		return
	}
	r.u.Packages[key] = p

	src := r.ensureSource(base)
	src.Packages = append(src.Packages, p)

	r.u.byName[p.Name] = append(r.u.byName[p.Name], p)
	for prov := range p.Provides {
		r.u.byProvides[prov] = append(r.u.byProvides[prov], p)
	}
	r.u.byAlias[r.u.Normalize(p.Name)] = append(r.u.byAlias[r.u.Normalize(p.Name)], p)
}

func (r *reconciler) finalize() {
	u := r.u

	for _, name := range u.SourceNames() {
		src := u.Sources[name]
		sort.Slice(src.Packages, func(i, j int) bool {
			return src.Packages[i].Key().less(src.Packages[j].Key())
		})
		sort.Slice(src.Declared, func(i, j int) bool {
			return src.Declared[i].Name < src.Declared[j].Name
		})

		// Stub sources reconstruct display data from their binaries.
		if len(src.Packages) > 0 {
			first := src.Packages[0]
			if src.URL == "" {
				src.URL = first.URL
			}
			if src.RepoURL == "" {
				src.RepoURL = r.srcURLByRepo[first.Repo]
				src.RepoPath = src.Name
			}
			for _, p := range src.Packages {
				src.Groups = mergeStrings(src.Groups, p.Groups)
			}
			if len(src.Licenses) == 0 {
				for _, p := range src.Packages {
					src.Licenses = mergeStrings(src.Licenses, p.Licenses)
				}
			}
		}
		sort.Strings(src.Licenses)
		sort.Strings(src.Groups)
		sort.Strings(src.Environments)
		sort.Strings(src.BuildTypes)
	}

	byKey := func(pkgs []*Package) {
		sort.Slice(pkgs, func(i, j int) bool { return pkgs[i].Key().less(pkgs[j].Key()) })
	}
	for _, pkgs := range u.byName {
		byKey(pkgs)
	}
	for _, pkgs := range u.byProvides {
		byKey(pkgs)
	}
	for _, pkgs := range u.byAlias {
		byKey(pkgs)
	}
	for _, bases := range u.declaredProvides {
		sort.Strings(bases)
	}
	for _, bases := range u.declaredAlias {
		sort.Strings(bases)
	}

	r.buildRDeps()
}

func (r *reconciler) buildRDeps() {
	u := r.u

	keys := make([]PackageKey, 0, len(u.Packages))
	for key := range u.Packages {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].less(keys[j]) })

	acc := map[PackageKey]map[PackageKey]KindSet{}
	for _, key := range keys {
		p := u.Packages[key]
		for kind := DepNormal; kind <= DepOptional; kind++ {
			for _, depName := range p.DepsOfKind(kind).Names() {
				for _, target := range u.Resolve(depName) {
					tk := target.Key()
					if acc[tk] == nil {
						acc[tk] = map[PackageKey]KindSet{}
					}
					set := acc[tk][key]
					set.Add(kind)
					acc[tk][key] = set
				}
			}
		}
	}

	for targetKey, dependents := range acc {
		depKeys := make([]PackageKey, 0, len(dependents))
		for dk := range dependents {
			depKeys = append(depKeys, dk)
		}
		sort.Slice(depKeys, func(i, j int) bool { return depKeys[i].less(depKeys[j]) })

		rdeps := make([]ReverseDep, 0, len(depKeys))
		for _, dk := range depKeys {
			rdeps = append(rdeps, ReverseDep{Pkg: u.Packages[dk], Kinds: dependents[dk]})
		}
		u.rdeps[targetKey] = rdeps
	}
}

func stripPrefix(name string, prefixes []string) string {
	for _, prefix := range prefixes {
		if strings.HasPrefix(name, prefix) {
			return strings.TrimPrefix(name, prefix)
		}
	}
	return name
}

// addPrefix inserts a prefix keeping the list sorted longest first, so
// the most specific prefix wins when several match.
func addPrefix(prefixes []string, prefix string) []string {
	if prefix == "" {
		return prefixes
	}
	for _, have := range prefixes {
		if have == prefix {
			return prefixes
		}
	}
	prefixes = append(prefixes, prefix)
	sort.Slice(prefixes, func(i, j int) bool {
		if len(prefixes[i]) != len(prefixes[j]) {
			return len(prefixes[i]) > len(prefixes[j])
		}
		return prefixes[i] < prefixes[j]
	})
	return prefixes
}

func mergeStrings(have, add []string) []string {
	for _, s := range add {
		found := false
		for _, h := range have {
			if h == s {
				found = true
				break
			}
		}
		if !found {
			have = append(have, s)
		}
	}
	return have
}
