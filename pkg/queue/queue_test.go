package queue

import (
	"reflect"
	"testing"
	"time"

	"github.com/repopulse/repopulse/pkg/repodb"
	"github.com/repopulse/repopulse/pkg/srcinfo"
	"github.com/repopulse/repopulse/pkg/universe"
)

// queueInput builds a small world: pkga, pkgb and pkgc form a build
// cycle and are all pending; pkgd is built and current; pkgnew has a
// recipe but no build; selfy's subs depend on each other; legacy and
// legacy-docs lost their recipes.
func queueInput() universe.Input {
	day := func(d int) time.Time {
		return time.Date(2024, 6, d, 0, 0, 0, 0, time.UTC)
	}
	core := universe.Repository{
		Name:        "core",
		Arch:        "x86_64",
		Environment: "CORE",
		BuildTypes:  []string{"core", "core-src"},
	}
	recipe := func(base string, ver string, date time.Time, subs ...srcinfo.SubPackage) srcinfo.Recipe {
		return srcinfo.Recipe{
			Base:        base,
			Environment: "CORE",
			Date:        date,
			PkgVer:      ver,
			PkgRel:      "1",
			Packages:    subs,
		}
	}
	return universe.Input{
		Repos: []universe.RepoData{
			{
				Repo: core,
				Records: []repodb.Record{
					{Name: "pkga", Base: "pkga", Version: "1.0-1", Arch: "x86_64"},
					{Name: "pkgb", Base: "pkgb", Version: "1.0-1", Arch: "x86_64"},
					{Name: "pkgc", Base: "pkgc", Version: "1.0-1", Arch: "x86_64"},
					{
						Name: "pkgd", Base: "pkgd", Version: "1.0-1", Arch: "x86_64",
						Depends:    []string{"legacy"},
						OptDepends: []string{"legacy-docs: manuals"},
					},
					{Name: "selfy", Base: "selfy", Version: "1.0-1", Arch: "x86_64", BuildDate: 300},
					{Name: "legacy", Base: "legacy", Version: "0.9-1", Arch: "x86_64", BuildDate: 100},
					{Name: "legacy-docs", Base: "legacy-docs", Version: "0.9-1", Arch: "x86_64", BuildDate: 200},
				},
			},
		},
		Recipes: []srcinfo.Recipe{
			recipe("pkga", "1.1", day(1), srcinfo.SubPackage{Name: "pkga", Depends: []string{"pkgb"}}),
			recipe("pkgb", "1.1", day(9), srcinfo.SubPackage{Name: "pkgb", MakeDepends: []string{"pkgc"}}),
			recipe("pkgc", "1.1", day(2), srcinfo.SubPackage{
				Name:         "pkgc",
				CheckDepends: []string{"pkga"},
				Depends:      []string{"pkgd"},
				OptDepends:   []string{"pkgnew: shiny extras"},
			}),
			recipe("pkgd", "1.0", day(1), srcinfo.SubPackage{Name: "pkgd"}),
			recipe("pkgnew", "1.0", day(3), srcinfo.SubPackage{Name: "pkgnew"}),
			recipe("selfy", "1.1", day(1),
				srcinfo.SubPackage{Name: "selfy-tools", Depends: []string{"selfy-libs"}},
				srcinfo.SubPackage{Name: "selfy-libs"},
			),
		},
	}
}

func queueUniverse(t *testing.T) *universe.Universe {
	t.Helper()
	u, diags := universe.Reconcile(queueInput())
	if len(diags) != 0 {
		t.Fatalf("Reconcile() diagnostics = %v", diags)
	}
	return u
}

func TestUpdates(t *testing.T) {
	u := queueUniverse(t)
	bs, err := ParseBuildStatus([]byte(`{"packages": [
		{"name": "pkga", "version": "1.1-1", "builds": {"core": {"status": "failed-to-build", "desc": "boom", "urls": {}}}}
	]}`))
	if err != nil {
		t.Fatal(err)
	}

	updates := Updates(u, bs)

	var names []string
	for _, up := range updates {
		names = append(names, up.Source.Name)
	}
	// pkga leads on its failed build; the unknowns follow by recipe
	// date, newest first, then name. pkgd is current and stays out.
	want := []string{"pkga", "pkgb", "pkgnew", "pkgc", "selfy"}
	if !reflect.DeepEqual(names, want) {
		t.Fatalf("update order = %v, want %v", names, want)
	}

	pkga := updates[0]
	if pkga.BuiltVersion != "1.0-1" || pkga.RecipeVersion != "1.1-1" {
		t.Errorf("pkga versions = %q -> %q", pkga.BuiltVersion, pkga.RecipeVersion)
	}
	if pkga.New() {
		t.Error("pkga has a build, New() must be false")
	}
	if len(pkga.Statuses) != 1 || pkga.Statuses[0].Status != StatusFailedToBuild {
		t.Errorf("pkga statuses = %v", pkga.Statuses)
	}

	for _, up := range updates {
		if up.Source.Name != "pkgnew" {
			continue
		}
		if !up.New() {
			t.Error("pkgnew was never built, New() must be true")
		}
		// Unknown fill covers both configured build types.
		if len(up.Statuses) != 2 || up.Statuses[0].Status != StatusUnknown {
			t.Errorf("pkgnew statuses = %v", up.Statuses)
		}
	}
}

func TestUpdates_NoFeed(t *testing.T) {
	u := queueUniverse(t)

	updates := Updates(u, nil)
	if len(updates) == 0 {
		t.Fatal("Updates() with no feed returned nothing")
	}
	for _, up := range updates {
		for _, st := range up.Statuses {
			if st.Status != StatusUnknown {
				t.Fatalf("status without a feed = %v", st)
			}
		}
	}
}

func TestRemovals(t *testing.T) {
	u := queueUniverse(t)

	removals := Removals(u)
	if len(removals) != 2 {
		t.Fatalf("Removals() = %d entries, want legacy and legacy-docs", len(removals))
	}

	legacy := removals[0]
	if legacy.Pkg.Name != "legacy" {
		t.Fatalf("first removal = %s", legacy.Pkg.Name)
	}
	if legacy.Ready {
		t.Error("legacy is required by pkgd and cannot be ready")
	}
	if len(legacy.Blockers) != 1 || legacy.Blockers[0].Pkg.Name != "pkgd" {
		t.Errorf("legacy blockers = %v", legacy.Blockers)
	}
	if !legacy.Blockers[0].Kinds.Has(universe.DepNormal) {
		t.Errorf("legacy blocker kinds = %v", legacy.Blockers[0].Kinds)
	}

	docs := removals[1]
	if docs.Pkg.Name != "legacy-docs" {
		t.Fatalf("second removal = %s", docs.Pkg.Name)
	}
	if !docs.Ready {
		t.Error("an optional-only blocker must not hold legacy-docs back")
	}
	if len(docs.Blockers) != 1 || !docs.Blockers[0].Kinds.OptionalOnly() {
		t.Errorf("legacy-docs blockers = %v", docs.Blockers)
	}
}

func TestCycles(t *testing.T) {
	u := queueUniverse(t)
	updates := Updates(u, nil)

	got := Cycles(u, updates)

	// One real cycle over the three dep kinds, one degenerate self
	// cycle from selfy's sibling dependency. The optional edge from
	// pkgc to pkgnew and the stable edge to pkgd add nothing.
	want := [][]string{{"pkga", "pkgb", "pkgc"}, {"selfy"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Cycles() = %v, want %v", got, want)
	}
}

func TestCycles_BrokenWhenMemberIsCurrent(t *testing.T) {
	in := queueInput()
	// pkgc's recipe matches its build, so it is no longer pending.
	for i := range in.Recipes {
		if in.Recipes[i].Base == "pkgc" {
			in.Recipes[i].PkgVer = "1.0"
		}
	}
	u, diags := universe.Reconcile(in)
	if len(diags) != 0 {
		t.Fatalf("Reconcile() diagnostics = %v", diags)
	}
	updates := Updates(u, nil)

	got := Cycles(u, updates)

	want := [][]string{{"selfy"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Cycles() = %v, want only the degenerate cycle", got)
	}
}
