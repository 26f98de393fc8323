package srcinfo

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"testing"

	"github.com/repopulse/repopulse/pkg/errors"
)

const libarchiveText = `
pkgbase = libarchive
	pkgver = 3.5.1
	pkgrel = 2
	url = https://libarchive.org
	license = BSD
	depends = gcc-libs
pkgname = libarchive
pkgname = libarchive-devel
	depends = libxml2-devel
	replaces = libarchive-devel-git
pkgname = something
	depends =
`

func gzipDoc(t *testing.T, doc map[string]entry) []byte {
	t.Helper()
	raw, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal document: %v", err)
	}
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write(raw); err != nil {
		t.Fatalf("compress document: %v", err)
	}
	if err := gw.Close(); err != nil {
		t.Fatalf("close gzip writer: %v", err)
	}
	return buf.Bytes()
}

func TestParse(t *testing.T) {
	doc := map[string]entry{
		"aaaa": {
			RepoURL: "https://example.invalid/recipes",
			Path:    "libarchive",
			Date:    "2021-01-15T10:30:00+00:00",
			Srcinfo: map[string]string{
				"UCRT64":  libarchiveText,
				"CLANG64": libarchiveText,
			},
			Extra: Extra{
				References: []string{"cpe: cpe:2.3:a:libarchive:libarchive", "pypi"},
			},
		},
		"bbbb": {
			RepoURL: "https://example.invalid/recipes",
			Path:    "zlib",
			Date:    "2020-06-01T00:00:00",
			Srcinfo: map[string]string{
				"UCRT64": "pkgbase = zlib\n\tpkgver = 1.2.11\n\tpkgrel = 1\n\tepoch = 2\npkgname = zlib\n",
			},
		},
	}

	recipes, diags, err := Parse(gzipDoc(t, doc))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(diags) != 0 {
		t.Fatalf("Parse() diagnostics = %v, want none", diags)
	}
	if len(recipes) != 3 {
		t.Fatalf("Parse() returned %d recipes, want 3", len(recipes))
	}

	// Document key order, then environment order.
	if recipes[0].Environment != "CLANG64" || recipes[1].Environment != "UCRT64" {
		t.Errorf("environment order = %q, %q", recipes[0].Environment, recipes[1].Environment)
	}

	la := recipes[1]
	if la.Base != "libarchive" {
		t.Errorf("Base = %q, want libarchive", la.Base)
	}
	if la.PkgVer != "3.5.1" || la.PkgRel != "2" || la.Epoch != "" {
		t.Errorf("version fields = %q/%q/%q", la.PkgVer, la.PkgRel, la.Epoch)
	}
	if got := la.BuildVersion(); got != "3.5.1-2" {
		t.Errorf("BuildVersion() = %q, want 3.5.1-2", got)
	}
	if la.URL != "https://libarchive.org" {
		t.Errorf("URL = %q", la.URL)
	}
	if len(la.Licenses) != 1 || la.Licenses[0] != "BSD" {
		t.Errorf("Licenses = %v", la.Licenses)
	}
	if la.Date.IsZero() {
		t.Error("Date not parsed")
	}
	if len(la.Packages) != 3 {
		t.Fatalf("Packages = %d, want 3", len(la.Packages))
	}

	main, devel, something := la.Packages[0], la.Packages[1], la.Packages[2]
	if main.Name != "libarchive" || len(main.Depends) != 1 || main.Depends[0] != "gcc-libs" {
		t.Errorf("main sub-package = %+v, want inherited depends [gcc-libs]", main)
	}
	if devel.Name != "libarchive-devel" {
		t.Errorf("devel name = %q", devel.Name)
	}
	if len(devel.Depends) != 1 || devel.Depends[0] != "libxml2-devel" {
		t.Errorf("devel depends = %v, want override [libxml2-devel]", devel.Depends)
	}
	if len(devel.Replaces) != 1 || devel.Replaces[0] != "libarchive-devel-git" {
		t.Errorf("devel replaces = %v", devel.Replaces)
	}
	// An empty assignment masks the base value instead of inheriting it.
	if len(something.Depends) != 0 {
		t.Errorf("something depends = %v, want none", something.Depends)
	}

	refs := la.Extra.ReferenceMap()
	if refs["cpe"] != "cpe:2.3:a:libarchive:libarchive" {
		t.Errorf("ReferenceMap()[cpe] = %q", refs["cpe"])
	}
	if v, ok := refs["pypi"]; !ok || v != "" {
		t.Errorf("ReferenceMap()[pypi] = %q, %v", v, ok)
	}

	zlib := recipes[2]
	if zlib.Base != "zlib" || zlib.Epoch != "2" {
		t.Errorf("zlib = %q epoch %q", zlib.Base, zlib.Epoch)
	}
	if got := zlib.BuildVersion(); got != "2~1.2.11-1" {
		t.Errorf("BuildVersion() = %q, want 2~1.2.11-1", got)
	}
}

func TestParsePlainJSON(t *testing.T) {
	doc := map[string]entry{
		"cccc": {
			RepoURL: "https://example.invalid/recipes",
			Path:    "zstd",
			Date:    "2022-03-01T12:00:00+00:00",
			Srcinfo: map[string]string{"UCRT64": "pkgbase = zstd\n\tpkgver = 1.5.2\n\tpkgrel = 1\npkgname = zstd\n"},
		},
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		t.Fatal(err)
	}

	recipes, diags, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(diags) != 0 || len(recipes) != 1 || recipes[0].Base != "zstd" {
		t.Fatalf("Parse() = %d recipes, diags %v", len(recipes), diags)
	}
}

func TestParseBadDocument(t *testing.T) {
	_, _, err := Parse([]byte("not json"))
	if err == nil {
		t.Fatal("Parse() error = nil, want decode failure")
	}
	if errors.GetCode(err) != errors.ErrCodeMalformedRecipeData {
		t.Errorf("GetCode() = %q, want %q", errors.GetCode(err), errors.ErrCodeMalformedRecipeData)
	}
}

func TestParseSkipsBadEntries(t *testing.T) {
	doc := map[string]entry{
		"bad-date": {
			Date:    "yesterday",
			Srcinfo: map[string]string{"UCRT64": "pkgbase = a\n\tpkgver = 1\n\tpkgrel = 1\npkgname = a\n"},
		},
		"no-base": {
			Date:    "2021-01-15T00:00:00+00:00",
			Srcinfo: map[string]string{"UCRT64": "pkgname = b\n\tpkgver = 1\n"},
		},
		"good": {
			Date:    "2021-01-15T00:00:00+00:00",
			Srcinfo: map[string]string{"UCRT64": "pkgbase = c\n\tpkgver = 1\n\tpkgrel = 1\npkgname = c\n"},
		},
	}

	recipes, diags, err := Parse(gzipDoc(t, doc))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(diags) != 2 {
		t.Fatalf("Parse() diagnostics = %v, want 2", diags)
	}
	for _, d := range diags {
		if errors.GetCode(d) != errors.ErrCodeMalformedRecipeData {
			t.Errorf("diagnostic code = %q, want %q", errors.GetCode(d), errors.ErrCodeMalformedRecipeData)
		}
	}
	if len(recipes) != 1 || recipes[0].Base != "c" {
		t.Fatalf("recipes = %+v, want only base c", recipes)
	}
}

func TestReferenceMap(t *testing.T) {
	refs := Extra{References: []string{"foo: quux", "bar"}}.ReferenceMap()
	if refs["foo"] != "quux" {
		t.Errorf("refs[foo] = %q, want quux", refs["foo"])
	}
	if v, ok := refs["bar"]; !ok || v != "" {
		t.Errorf("refs[bar] = %q, %v, want empty entry", v, ok)
	}
}
