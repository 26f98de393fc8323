package vuln

import (
	"sort"

	"github.com/repopulse/repopulse/pkg/universe"
)

// SourceReport is the vulnerability state of one source.
type SourceReport struct {
	Source  *universe.Source
	Records []Record // most severe first, ignored after active peers
}

// WorstActive returns the most severe non-ignored record.
func (r SourceReport) WorstActive() (Record, bool) {
	for _, rec := range r.Records {
		if !rec.Ignored {
			return rec, true
		}
	}
	return Record{}, false
}

// ActiveCount returns the number of non-ignored records.
func (r SourceReport) ActiveCount() int {
	n := 0
	for _, rec := range r.Records {
		if !rec.Ignored {
			n++
		}
	}
	return n
}

// Report is the correlation result for one universe.
type Report struct {
	// Vulnerable lists every source with at least one active record,
	// worst severity first.
	Vulnerable []SourceReport

	// All holds the report of every eligible source, including those
	// with only ignored records, keyed by source name.
	All map[string]SourceReport

	// Insufficient lists sources lacking the upstream identity
	// metadata needed for matching. They are never marked safe; they
	// are reported as unknowable.
	Insufficient []*universe.Source
}

// Eligible reports whether a source carries enough metadata to be
// matched against the feed: an upstream reference recorded next to
// its recipe. Stub sources without a recipe never qualify.
func Eligible(src *universe.Source) bool {
	return src.HasRecipe && len(src.References) > 0
}

// Correlate attaches feed records to every source in the universe.
// A source matches records filed under its realname or under any of
// its produced binary names. A nil feed yields an empty report with
// the insufficient bucket still populated.
func Correlate(u *universe.Universe, feed *Feed) Report {
	report := Report{All: map[string]SourceReport{}}
	for _, name := range u.SourceNames() {
		src := u.Sources[name]
		if !Eligible(src) {
			report.Insufficient = append(report.Insufficient, src)
			continue
		}

		var recs []Record
		seen := map[string]bool{}
		collect := func(component string) {
			for _, rec := range feed.For(component) {
				if !seen[rec.ID] {
					seen[rec.ID] = true
					recs = append(recs, rec)
				}
			}
		}
		collect(src.Realname)
		collect(src.Name)
		for _, p := range src.Packages {
			collect(p.Name)
		}

		sortRecords(recs)
		sr := SourceReport{Source: src, Records: recs}
		report.All[src.Name] = sr
		if _, ok := sr.WorstActive(); ok {
			report.Vulnerable = append(report.Vulnerable, sr)
		}
	}

	sort.SliceStable(report.Vulnerable, func(i, j int) bool {
		wi, _ := report.Vulnerable[i].WorstActive()
		wj, _ := report.Vulnerable[j].WorstActive()
		if wi.Severity != wj.Severity {
			return wi.Severity > wj.Severity
		}
		return report.Vulnerable[i].Source.Name < report.Vulnerable[j].Source.Name
	})
	return report
}
