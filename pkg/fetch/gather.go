package fetch

import (
	"bytes"
	"context"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/repopulse/repopulse/pkg/errors"
	"github.com/repopulse/repopulse/pkg/queue"
	"github.com/repopulse/repopulse/pkg/repodb"
	"github.com/repopulse/repopulse/pkg/srcinfo"
	"github.com/repopulse/repopulse/pkg/universe"
	"github.com/repopulse/repopulse/pkg/vuln"
)

// workers bounds concurrent fetches within one refresh. The shared
// limiter paces the requests themselves; this only caps in-flight
// connections and decompression work.
const workers = 8

// RepoSource pairs one repository with its database file location.
// The URL's filename suffix selects the decompression layer.
type RepoSource struct {
	Repo universe.Repository
	URL  string
}

// TrackerSource names one external version feed to fetch.
type TrackerSource struct {
	Name     string
	Key      string
	Priority int
	URL      string
}

// Plan lists every input of one refresh.
type Plan struct {
	Repos           []RepoSource
	SrcinfoURLs     []string
	BuildStatusURLs []string
	Trackers        []TrackerSource
	VulnURLs        []string
	IgnoredVulns    map[string]bool
}

// Inputs is the complete parsed input set of one refresh. The merge
// step reads nothing else, so a generation can never mix data from two
// cycles.
type Inputs struct {
	Repos       []universe.RepoData
	Recipes     []srcinfo.Recipe
	BuildStatus *queue.BuildStatus
	Trackers    []queue.Tracker
	Feed        *vuln.Feed

	// Stale names the inputs served from the cache after fetch
	// failure; Failed maps inputs that produced nothing at all.
	Stale  []string
	Failed map[string]error

	// Diags collects per-record parse diagnostics across all inputs.
	Diags []error
}

// Gather fetches and parses every input of the plan concurrently.
// Individual failures degrade to stale reuse or absence; Gather fails
// only when no repository database and no recipe document could be
// obtained at all, since a merge without either would publish an
// empty universe over a populated one.
func Gather(ctx context.Context, client *Client, plan Plan, logger *log.Logger) (*Inputs, error) {
	if logger == nil {
		logger = log.Default()
	}

	in := &Inputs{Failed: map[string]error{}}
	var mu sync.Mutex

	// Jobs fetch and parse without holding mu; only recording the
	// outcome takes the lock. Slices are pre-sized per input so
	// completion order cannot reorder the configured order.
	in.Repos = make([]universe.RepoData, len(plan.Repos))
	recipesByURL := make([][]srcinfo.Recipe, len(plan.SrcinfoURLs))
	in.Trackers = make([]queue.Tracker, len(plan.Trackers))
	feeds := make([]*vuln.Feed, len(plan.VulnURLs))
	statuses := make([]*buildStatusResult, len(plan.BuildStatusURLs))

	jobs := make(chan func(), workers)
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				job()
			}
		}()
	}

	fail := func(label string, err error) {
		mu.Lock()
		defer mu.Unlock()
		logger.Warn("input unavailable", "input", label, "err", err)
		in.Failed[label] = err
	}
	done := func(label string, res Result, diags []error, set func()) {
		mu.Lock()
		defer mu.Unlock()
		if res.Stale {
			in.Stale = append(in.Stale, label)
		}
		in.Diags = append(in.Diags, diags...)
		set()
	}

	for i, rs := range plan.Repos {
		jobs <- func() {
			label := "repo:" + rs.Repo.Name
			res, err := client.Get(ctx, rs.URL)
			if err != nil {
				fail(label, err)
				return
			}
			records, diags, err := repodb.Parse(rs.URL, bytes.NewReader(res.Body))
			if err != nil {
				// A whole-archive decode failure degrades like a fetch
				// failure for this one input.
				fail(label, err)
				return
			}
			done(label, res, diags, func() {
				in.Repos[i] = universe.RepoData{Repo: rs.Repo, Records: records}
			})
		}
	}

	for i, url := range plan.SrcinfoURLs {
		jobs <- func() {
			label := "srcinfo:" + url
			res, err := client.Get(ctx, url)
			if err != nil {
				fail(label, err)
				return
			}
			recipes, diags, err := srcinfo.Parse(res.Body)
			if err != nil {
				fail(label, err)
				return
			}
			done(label, res, diags, func() { recipesByURL[i] = recipes })
		}
	}

	for i, url := range plan.BuildStatusURLs {
		jobs <- func() {
			label := "buildstatus:" + url
			res, err := client.Get(ctx, url)
			if err != nil {
				fail(label, err)
				return
			}
			bs, err := queue.ParseBuildStatus(res.Body)
			if err != nil {
				fail(label, err)
				return
			}
			done(label, res, nil, func() {
				statuses[i] = &buildStatusResult{status: bs, result: res}
			})
		}
	}

	for i, tr := range plan.Trackers {
		jobs <- func() {
			label := "tracker:" + tr.Name
			res, err := client.Get(ctx, tr.URL)
			if err != nil {
				fail(label, err)
				return
			}
			versions, err := queue.ParseTrackerVersions(res.Body)
			if err != nil {
				fail(label, err)
				return
			}
			done(label, res, nil, func() {
				in.Trackers[i] = queue.Tracker{
					Name:     tr.Name,
					Key:      tr.Key,
					Priority: tr.Priority,
					Versions: versions,
				}
			})
		}
	}

	for i, url := range plan.VulnURLs {
		jobs <- func() {
			label := "vuln:" + url
			res, err := client.Get(ctx, url)
			if err != nil {
				fail(label, err)
				return
			}
			feed, diags, err := vuln.ParseFeed(res.Body, plan.IgnoredVulns)
			if err != nil {
				fail(label, err)
				return
			}
			done(label, res, diags, func() { feeds[i] = feed })
		}
	}

	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeRefreshTimeout, err, "gathering inputs")
	}

	in.finish(recipesByURL, statuses, feeds)
	if err := in.check(plan); err != nil {
		return nil, err
	}
	return in, nil
}

type buildStatusResult struct {
	status *queue.BuildStatus
	result Result
}

// finish flattens the per-URL partial results. Recipe documents
// concatenate in configured order; among several build status
// documents the one with the newest Last-Modified wins; vulnerability
// feeds merge with later documents overriding earlier ones.
func (in *Inputs) finish(recipesByURL [][]srcinfo.Recipe, statuses []*buildStatusResult, feeds []*vuln.Feed) {
	for _, recipes := range recipesByURL {
		in.Recipes = append(in.Recipes, recipes...)
	}

	var newest *buildStatusResult
	for _, st := range statuses {
		if st == nil {
			continue
		}
		if newest == nil || st.result.LastModified.After(newest.result.LastModified) {
			newest = st
		}
	}
	if newest != nil {
		in.BuildStatus = newest.status
	}

	var present []*vuln.Feed
	for _, f := range feeds {
		if f != nil {
			present = append(present, f)
		}
	}
	if len(present) > 0 {
		in.Feed = vuln.Merge(present...)
	}

	// Inputs that produced nothing drop out entirely.
	trackers := in.Trackers[:0]
	for _, tr := range in.Trackers {
		if tr.Name != "" {
			trackers = append(trackers, tr)
		}
	}
	in.Trackers = trackers

	repos := in.Repos[:0]
	for _, rd := range in.Repos {
		if rd.Repo.Name != "" {
			repos = append(repos, rd)
		}
	}
	in.Repos = repos
}

// check enforces the minimum for a usable merge: when repositories or
// recipe documents were planned, at least one of each kind must have
// arrived.
func (in *Inputs) check(plan Plan) error {
	if len(plan.Repos) > 0 && len(in.Repos) == 0 {
		return errors.New(errors.ErrCodeRefreshFailed,
			"every repository database failed (%d inputs failed)", len(in.Failed))
	}
	if len(plan.SrcinfoURLs) > 0 && len(in.Recipes) == 0 {
		allFailed := true
		for _, url := range plan.SrcinfoURLs {
			if _, failed := in.Failed["srcinfo:"+url]; !failed {
				allFailed = false
				break
			}
		}
		if allFailed {
			return errors.New(errors.ErrCodeRefreshFailed,
				"every recipe document failed (%d inputs failed)", len(in.Failed))
		}
	}
	return nil
}
