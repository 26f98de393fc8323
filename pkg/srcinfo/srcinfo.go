// Package srcinfo decodes the aggregated recipe document that describes
// every build recipe tracked in version control.
//
// The document is a gzip-compressed JSON object keyed by content hash.
// Each entry describes one recipe checkout: the repository URL, the path
// of the recipe inside it, the commit date, optional extra metadata, and
// one raw srcinfo text per build environment. The srcinfo text itself is
// "key = value" lines forming a pkgbase section followed by pkgname
// sections; values not set in a pkgname section are inherited from the
// base.
//
// The document aggregates thousands of independently-authored recipes, so
// decoding is record-by-record: one malformed entry is skipped and
// reported as a diagnostic, never aborting the rest.
package srcinfo

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/repopulse/repopulse/pkg/errors"
)

// Recipe is one pkgbase in one build environment.
type Recipe struct {
	Base        string
	Environment string // build environment key, e.g. "UCRT64"
	RepoURL     string
	Path        string
	Date        time.Time

	PkgVer string
	PkgRel string
	Epoch  string

	URL      string
	Licenses []string
	Groups   []string

	Packages []SubPackage

	Extra Extra
}

// SubPackage is one binary package a recipe declares. Dependency fields
// hold raw tokens; constraint splitting is up to the consumer.
type SubPackage struct {
	Name         string
	Depends      []string
	MakeDepends  []string
	CheckDepends []string
	OptDepends   []string
	Provides     []string
	Conflicts    []string
	Replaces     []string
}

// Extra carries optional recipe metadata maintained next to the recipe.
type Extra struct {
	Internal         bool     `json:"internal"`
	References       []string `json:"references"`
	ChangelogURL     string   `json:"changelog_url"`
	DocumentationURL string   `json:"documentation_url"`
	RepositoryURL    string   `json:"repository_url"`
	IssueTrackerURL  string   `json:"issue_tracker_url"`
}

// ReferenceMap converts the raw reference list ("key: value" or bare
// "key" items) into a map. Bare keys map to the empty string.
func (e Extra) ReferenceMap() map[string]string {
	refs := make(map[string]string, len(e.References))
	for _, item := range e.References {
		if key, value, ok := strings.Cut(item, ":"); ok {
			refs[key] = strings.TrimSpace(value)
		} else {
			refs[item] = ""
		}
	}
	return refs
}

// BuildVersion returns the full version a build of this recipe produces.
func (r *Recipe) BuildVersion() string {
	version := r.PkgVer + "-" + r.PkgRel
	if r.Epoch != "" {
		version = r.Epoch + "~" + version
	}
	return version
}

// entry mirrors one document record.
type entry struct {
	RepoURL string            `json:"repo"`
	Path    string            `json:"path"`
	Date    string            `json:"date"`
	Srcinfo map[string]string `json:"srcinfo"`
	Extra   Extra             `json:"extra"`
}

// Parse decodes the aggregated recipe document. Recipes come back in a
// deterministic order (document key, then environment). Per-entry
// failures are returned as diagnostics; err is non-nil only when the
// document itself cannot be decoded.
func Parse(data []byte) ([]Recipe, []error, error) {
	if len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b {
		gr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, nil, errors.Wrap(errors.ErrCodeMalformedRecipeData, err, "decompress recipe document")
		}
		if data, err = io.ReadAll(gr); err != nil {
			return nil, nil, errors.Wrap(errors.ErrCodeMalformedRecipeData, err, "decompress recipe document")
		}
	}

	var doc map[string]entry
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, nil, errors.Wrap(errors.ErrCodeMalformedRecipeData, err, "decode recipe document")
	}

	hashes := make([]string, 0, len(doc))
	for hash := range doc {
		hashes = append(hashes, hash)
	}
	sort.Strings(hashes)

	var recipes []Recipe
	var diags []error
	for _, hash := range hashes {
		e := doc[hash]

		date, err := parseDate(e.Date)
		if err != nil {
			diags = append(diags, errors.Wrap(errors.ErrCodeMalformedRecipeData, err, "entry %s: bad date %q", hash, e.Date))
			continue
		}

		envs := make([]string, 0, len(e.Srcinfo))
		for env := range e.Srcinfo {
			envs = append(envs, env)
		}
		sort.Strings(envs)

		for _, env := range envs {
			recipe, err := parseText(e.Srcinfo[env])
			if err != nil {
				diags = append(diags, errors.Wrap(errors.ErrCodeMalformedRecipeData, err, "entry %s (%s)", hash, env))
				continue
			}
			recipe.Environment = env
			recipe.RepoURL = e.RepoURL
			recipe.Path = e.Path
			recipe.Date = date
			recipe.Extra = e.Extra
			recipes = append(recipes, recipe)
		}
	}

	return recipes, diags, nil
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02T15:04:05", s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// parseText decodes one srcinfo text into a Recipe.
func parseText(text string) (Recipe, error) {
	base := map[string][]string{}
	var subs []map[string][]string
	var subNames []string
	var current map[string][]string

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		key, rawValue, ok := strings.Cut(line, " =")
		if !ok {
			return Recipe{}, errors.New(errors.ErrCodeMalformedRecipeData, "unparseable line %q", line)
		}
		value := strings.TrimSpace(rawValue)

		if current == nil && key == "pkgbase" {
			current = base
		} else if key == "pkgname" {
			if value == "" {
				return Recipe{}, errors.New(errors.ErrCodeMalformedRecipeData, "empty pkgname")
			}
			sub := map[string][]string{}
			subs = append(subs, sub)
			subNames = append(subNames, value)
			current = sub
		}
		if current == nil {
			continue
		}
		if value != "" {
			current[key] = append(current[key], value)
		} else {
			// An empty assignment still marks the key as set, masking
			// the base value for this sub-package.
			if _, exists := current[key]; !exists {
				current[key] = nil
			}
		}
	}

	if len(base["pkgbase"]) == 0 {
		return Recipe{}, errors.New(errors.ErrCodeMalformedRecipeData, "missing pkgbase section")
	}

	first := func(fields map[string][]string, key string) string {
		if v := fields[key]; len(v) > 0 {
			return v[0]
		}
		return ""
	}

	recipe := Recipe{
		Base:     base["pkgbase"][0],
		PkgVer:   first(base, "pkgver"),
		PkgRel:   first(base, "pkgrel"),
		Epoch:    first(base, "epoch"),
		URL:      first(base, "url"),
		Licenses: base["license"],
		Groups:   base["groups"],
	}

	for i, sub := range subs {
		// Inherit every base field the sub-package did not set itself.
		for key, values := range base {
			if _, ok := sub[key]; !ok {
				sub[key] = values
			}
		}

		recipe.Packages = append(recipe.Packages, SubPackage{
			Name:         subNames[i],
			Depends:      sub["depends"],
			MakeDepends:  sub["makedepends"],
			CheckDepends: sub["checkdepends"],
			OptDepends:   sub["optdepends"],
			Provides:     sub["provides"],
			Conflicts:    sub["conflicts"],
			Replaces:     sub["replaces"],
		})
	}

	return recipe, nil
}
