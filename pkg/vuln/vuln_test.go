package vuln

import (
	"testing"
	"time"

	"github.com/repopulse/repopulse/pkg/repodb"
	"github.com/repopulse/repopulse/pkg/srcinfo"
	"github.com/repopulse/repopulse/pkg/universe"
)

const feedJSON = `{
	"components": [
		{"name": "openssl", "bom-ref": "ref-openssl"},
		{"name": "zlib", "bom-ref": "ref-zlib"}
	],
	"vulnerabilities": [
		{
			"id": "CVE-2024-0001",
			"source": {"url": "https://example.invalid/CVE-2024-0001"},
			"ratings": [{"severity": "critical"}],
			"affects": [{"ref": "ref-openssl"}]
		},
		{
			"id": "CVE-2024-0002",
			"source": {"url": "https://example.invalid/CVE-2024-0002"},
			"ratings": [{"severity": "high"}],
			"affects": [{"ref": "ref-openssl"}]
		},
		{
			"id": "CVE-2024-0003",
			"source": {"url": "https://example.invalid/CVE-2024-0003"},
			"ratings": [{"severity": "low"}],
			"affects": [{"ref": "ref-zlib"}]
		}
	]
}`

func TestParseSeverity(t *testing.T) {
	tests := []struct {
		in   string
		want Severity
		ok   bool
	}{
		{"none", SeverityNone, true},
		{"low", SeverityLow, true},
		{"medium", SeverityMedium, true},
		{"high", SeverityHigh, true},
		{"critical", SeverityCritical, true},
		{"catastrophic", SeverityNone, false},
		{"", SeverityNone, false},
	}
	for _, tt := range tests {
		got, ok := ParseSeverity(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseSeverity(%q) = %v, %v, want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestSeverityOrdering(t *testing.T) {
	order := []Severity{SeverityNone, SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}
	for i := 1; i < len(order); i++ {
		if order[i-1] >= order[i] {
			t.Errorf("%v should rank below %v", order[i-1], order[i])
		}
	}
}

func TestParseFeed(t *testing.T) {
	feed, diags, err := ParseFeed([]byte(feedJSON), map[string]bool{"CVE-2024-0002": true})
	if err != nil {
		t.Fatal(err)
	}
	if len(diags) != 0 {
		t.Fatalf("diagnostics = %v", diags)
	}

	recs := feed.For("openssl")
	if len(recs) != 2 {
		t.Fatalf("For(openssl) = %d records, want 2", len(recs))
	}
	if recs[0].ID != "CVE-2024-0001" || recs[0].Severity != SeverityCritical || recs[0].Ignored {
		t.Errorf("first record = %+v, want active critical CVE-2024-0001", recs[0])
	}
	if recs[1].ID != "CVE-2024-0002" || !recs[1].Ignored {
		t.Errorf("second record = %+v, want ignored CVE-2024-0002", recs[1])
	}

	if got := feed.For("never-heard-of-it"); got != nil {
		t.Errorf("For(unknown) = %v, want nil", got)
	}
}

func TestParseFeedDiagnostics(t *testing.T) {
	bad := `{
		"components": [{"name": "openssl", "bom-ref": "ref-openssl"}],
		"vulnerabilities": [
			{"id": "CVE-1", "source": {"url": ""}, "ratings": [{"severity": "apocalyptic"}], "affects": [{"ref": "ref-openssl"}]},
			{"id": "CVE-2", "source": {"url": ""}, "ratings": [{"severity": "low"}], "affects": [{"ref": "ref-gone"}]}
		]
	}`
	feed, diags, err := ParseFeed([]byte(bad), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(diags) != 2 {
		t.Fatalf("diagnostics = %v, want 2", diags)
	}
	// The unknown severity still attaches as none; the dangling ref is dropped.
	if recs := feed.For("openssl"); len(recs) != 1 || recs[0].Severity != SeverityNone {
		t.Errorf("For(openssl) = %v, want one none-severity record", recs)
	}
}

func TestParseFeedMalformed(t *testing.T) {
	if _, _, err := ParseFeed([]byte("not json"), nil); err == nil {
		t.Fatal("expected error for malformed document")
	}
}

func vulnUniverse(t *testing.T) *universe.Universe {
	t.Helper()
	in := universe.Input{
		Repos: []universe.RepoData{{
			Repo: universe.Repository{Name: "core", Arch: "x86_64", Environment: "CORE"},
			Records: []repodb.Record{
				{Name: "openssl", Base: "openssl", Version: "3.0-1", Arch: "x86_64"},
				{Name: "zlib", Base: "zlib", Version: "1.3-1", Arch: "x86_64"},
				{Name: "mystery", Base: "mystery", Version: "1.0-1", Arch: "x86_64"},
			},
		}},
		Recipes: []srcinfo.Recipe{
			{
				Base: "openssl", Environment: "CORE", PkgVer: "3.0", PkgRel: "1",
				Date:     time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
				Packages: []srcinfo.SubPackage{{Name: "openssl"}},
				Extra:    srcinfo.Extra{References: []string{"cpe: cpe:/a:openssl:openssl"}},
			},
			{
				Base: "zlib", Environment: "CORE", PkgVer: "1.3", PkgRel: "1",
				Date:     time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
				Packages: []srcinfo.SubPackage{{Name: "zlib"}},
				Extra:    srcinfo.Extra{References: []string{"cpe: cpe:/a:zlib:zlib"}},
			},
			// mystery has a recipe but no references: insufficient metadata.
			{
				Base: "mystery", Environment: "CORE", PkgVer: "1.0", PkgRel: "1",
				Date:     time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
				Packages: []srcinfo.SubPackage{{Name: "mystery"}},
			},
		},
	}
	u, diags := universe.Reconcile(in)
	if len(diags) != 0 {
		t.Fatalf("Reconcile() diagnostics = %v", diags)
	}
	return u
}

func TestCorrelate(t *testing.T) {
	u := vulnUniverse(t)
	feed, _, err := ParseFeed([]byte(feedJSON), map[string]bool{"CVE-2024-0002": true})
	if err != nil {
		t.Fatal(err)
	}

	report := Correlate(u, feed)

	if len(report.Insufficient) != 1 || report.Insufficient[0].Name != "mystery" {
		t.Fatalf("Insufficient = %v, want [mystery]", report.Insufficient)
	}

	sr, ok := report.All["openssl"]
	if !ok {
		t.Fatal("no report for openssl")
	}
	// One critical active, one high ignored: both listed, critical is worst.
	if len(sr.Records) != 2 {
		t.Fatalf("openssl records = %v, want 2", sr.Records)
	}
	worst, ok := sr.WorstActive()
	if !ok || worst.Severity != SeverityCritical {
		t.Errorf("WorstActive() = %+v, %v, want critical", worst, ok)
	}
	if sr.ActiveCount() != 1 {
		t.Errorf("ActiveCount() = %d, want 1", sr.ActiveCount())
	}

	var vulnerable []string
	for _, v := range report.Vulnerable {
		vulnerable = append(vulnerable, v.Source.Name)
	}
	// openssl (critical) ahead of zlib (low).
	if len(vulnerable) != 2 || vulnerable[0] != "openssl" || vulnerable[1] != "zlib" {
		t.Errorf("Vulnerable = %v, want [openssl zlib]", vulnerable)
	}
}

func TestCorrelateIgnoredOnly(t *testing.T) {
	u := vulnUniverse(t)
	feed, _, err := ParseFeed([]byte(feedJSON), map[string]bool{
		"CVE-2024-0001": true,
		"CVE-2024-0002": true,
	})
	if err != nil {
		t.Fatal(err)
	}

	report := Correlate(u, feed)
	sr := report.All["openssl"]
	if _, ok := sr.WorstActive(); ok {
		t.Error("all records ignored, want no worst-active")
	}
	if len(sr.Records) != 2 {
		t.Errorf("ignored records must stay listed, got %v", sr.Records)
	}
	for _, v := range report.Vulnerable {
		if v.Source.Name == "openssl" {
			t.Error("openssl with only ignored records must not count as vulnerable")
		}
	}
}

func TestCorrelateNilFeed(t *testing.T) {
	u := vulnUniverse(t)
	report := Correlate(u, nil)
	if len(report.Vulnerable) != 0 {
		t.Errorf("Vulnerable = %v, want empty", report.Vulnerable)
	}
	if len(report.Insufficient) != 1 {
		t.Errorf("Insufficient bucket must survive an absent feed, got %v", report.Insufficient)
	}
}
