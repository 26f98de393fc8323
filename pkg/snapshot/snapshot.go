// Package snapshot assembles one complete generation from a gathered
// input set and publishes it atomically. Readers load the current
// generation once and use that pointer for a whole logical query; the
// publisher swaps the pointer only after a full pipeline succeeded, so
// no reader ever observes data from two refresh cycles.
package snapshot

import (
	"time"

	"github.com/google/uuid"

	"github.com/repopulse/repopulse/pkg/fetch"
	"github.com/repopulse/repopulse/pkg/queue"
	"github.com/repopulse/repopulse/pkg/universe"
	"github.com/repopulse/repopulse/pkg/vuln"
)

// Generation is one immutable merge result. It is created here, handed
// to the publisher, and never mutated afterwards; a refresh replaces it
// wholesale.
type Generation struct {
	Universe *universe.Universe

	Updates         []queue.Update
	Removals        []queue.Removal
	Cycles          [][]string
	OutOfDate       queue.OutOfDateReport
	Vulnerabilities vuln.Report

	// Timestamp is when this generation was assembled; Etag identifies
	// it towards HTTP readers.
	Timestamp time.Time
	Etag      string

	// Stale names the inputs that were served from the cache after a
	// failed fetch; Diagnostics records per-item parse and merge
	// problems that were excluded rather than fatal.
	Stale       []string
	Diagnostics []string
}

// Build runs the merge and derivation pipeline over one input set.
// Per-record problems become diagnostics on the generation; Build
// itself never fails, matching the availability-over-completeness rule
// for everything past the fetch stage.
func Build(in *fetch.Inputs) *Generation {
	u, mergeDiags := universe.Reconcile(universe.Input{
		Repos:   in.Repos,
		Recipes: in.Recipes,
	})
	updates := queue.Updates(u, in.BuildStatus)

	gen := &Generation{
		Universe:        u,
		Updates:         updates,
		Removals:        queue.Removals(u),
		Cycles:          queue.Cycles(u, updates),
		OutOfDate:       queue.OutOfDate(u, in.Trackers),
		Vulnerabilities: vuln.Correlate(u, in.Feed),
		Timestamp:       time.Now().UTC(),
		Etag:            uuid.NewString(),
		Stale:           in.Stale,
	}
	for _, err := range in.Diags {
		gen.Diagnostics = append(gen.Diagnostics, err.Error())
	}
	for _, err := range mergeDiags {
		gen.Diagnostics = append(gen.Diagnostics, err.Error())
	}
	return gen
}
