// Package vuln correlates external vulnerability data with the
// reconciled package universe. The feed is a CycloneDX JSON document;
// records are grouped per component name and attached to sources by
// their upstream names. Records on a configured ignore list stay
// visible but never count as active.
package vuln

import (
	"encoding/json"
	"sort"

	"github.com/repopulse/repopulse/pkg/errors"
)

// Severity ranks a vulnerability rating.
type Severity int

const (
	SeverityNone Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

var severityNames = [...]string{"none", "low", "medium", "high", "critical"}

func (s Severity) String() string {
	if s >= SeverityNone && int(s) < len(severityNames) {
		return severityNames[s]
	}
	return "none"
}

// MarshalText implements encoding.TextMarshaler for JSON output.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ParseSeverity maps a rating string to a Severity. Unknown strings
// map to SeverityNone with ok=false so callers can record a
// diagnostic.
func ParseSeverity(s string) (Severity, bool) {
	for i, name := range severityNames {
		if name == s {
			return Severity(i), true
		}
	}
	return SeverityNone, false
}

// Record is one vulnerability attached to a component.
type Record struct {
	ID       string   `json:"id"`
	URL      string   `json:"url,omitempty"`
	Severity Severity `json:"severity"`

	// Ignored records stay in listings but are excluded from
	// worst-active ranking and active counts.
	Ignored bool `json:"ignored,omitempty"`
}

// Feed holds the parsed vulnerability feed, grouped by component name.
type Feed struct {
	byName map[string][]Record
}

// cdxDocument mirrors the CycloneDX fields this package reads. Extra
// fields in the document are ignored.
type cdxDocument struct {
	Components []struct {
		Name   string `json:"name"`
		BOMRef string `json:"bom-ref"`
	} `json:"components"`
	Vulnerabilities []struct {
		ID     string `json:"id"`
		Source struct {
			URL string `json:"url"`
		} `json:"source"`
		Ratings []struct {
			Severity string `json:"severity"`
		} `json:"ratings"`
		Affects []struct {
			Ref string `json:"ref"`
		} `json:"affects"`
	} `json:"vulnerabilities"`
}

// ParseFeed decodes a CycloneDX document. Records referencing an
// unknown bom-ref and ratings with an unknown severity become
// diagnostics, not failures; err is non-nil only when the document
// itself cannot be decoded. IDs listed in ignored are flagged.
func ParseFeed(data []byte, ignored map[string]bool) (*Feed, []error, error) {
	var doc cdxDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, nil, errors.Wrap(errors.ErrCodeMalformedFeedData, err, "decoding vulnerability feed")
	}

	refs := make(map[string]string, len(doc.Components))
	for _, c := range doc.Components {
		refs[c.BOMRef] = c.Name
	}

	feed := &Feed{byName: map[string][]Record{}}
	var diags []error
	for _, v := range doc.Vulnerabilities {
		severity := SeverityNone
		if len(v.Ratings) > 0 {
			parsed, ok := ParseSeverity(v.Ratings[0].Severity)
			if !ok {
				diags = append(diags, errors.New(errors.ErrCodeMalformedFeedData,
					"vulnerability %s: unknown severity %q", v.ID, v.Ratings[0].Severity))
			}
			severity = parsed
		}
		rec := Record{
			ID:       v.ID,
			URL:      v.Source.URL,
			Severity: severity,
			Ignored:  ignored[v.ID],
		}
		for _, a := range v.Affects {
			name, ok := refs[a.Ref]
			if !ok {
				diags = append(diags, errors.New(errors.ErrCodeMalformedFeedData,
					"vulnerability %s: unknown component ref %q", v.ID, a.Ref))
				continue
			}
			feed.byName[name] = append(feed.byName[name], rec)
		}
	}

	for name := range feed.byName {
		sortRecords(feed.byName[name])
	}
	return feed, diags, nil
}

// Merge combines several feeds into one. Later feeds win on component
// name collisions, matching how the upstream documents layer. Nil
// feeds are skipped.
func Merge(feeds ...*Feed) *Feed {
	merged := &Feed{byName: map[string][]Record{}}
	for _, f := range feeds {
		if f == nil {
			continue
		}
		for name, recs := range f.byName {
			merged.byName[name] = recs
		}
	}
	return merged
}

// For returns the records attached to one component name. Unknown
// names yield an empty list, never an error.
func (f *Feed) For(name string) []Record {
	if f == nil {
		return nil
	}
	return f.byName[name]
}

// sortRecords orders records most severe first, ignored records after
// active ones of the same severity, then by ID for stability.
func sortRecords(recs []Record) {
	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].Severity != recs[j].Severity {
			return recs[i].Severity > recs[j].Severity
		}
		if recs[i].Ignored != recs[j].Ignored {
			return !recs[i].Ignored
		}
		return recs[i].ID < recs[j].ID
	})
}
