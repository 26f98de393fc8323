// Package queue derives the work queues from one reconciled universe:
// pending updates with per-build-type status, pending removals with
// their blockers, build-order cycles among pending updates, and the
// out-of-date report against external version trackers. Derivation is
// pure; everything it reads arrives as an argument, so the same inputs
// always produce the same queues.
package queue

import (
	"encoding/json"
	"sort"

	"github.com/repopulse/repopulse/pkg/errors"
)

// Status strings used by the build status feed.
const (
	StatusFinished               = "finished"
	StatusFinishedButBlocked     = "finished-but-blocked"
	StatusFinishedButIncomplete  = "finished-but-incomplete"
	StatusFailedToBuild          = "failed-to-build"
	StatusWaitingForBuild        = "waiting-for-build"
	StatusWaitingForDependencies = "waiting-for-dependencies"
	StatusManualBuildRequired    = "manual-build-required"
	StatusUnknown                = "unknown"
)

// statusOrder ranks statuses from least to most urgent.
var statusOrder = []string{
	StatusFinished,
	StatusFinishedButIncomplete,
	StatusFinishedButBlocked,
	StatusWaitingForDependencies,
	StatusWaitingForBuild,
	StatusUnknown,
	StatusManualBuildRequired,
	StatusFailedToBuild,
}

// StatusPriority ranks a status string, most urgent highest.
// Unrecognized statuses rank below everything known.
func StatusPriority(status string) int {
	for i, s := range statusOrder {
		if s == status {
			return i
		}
	}
	return -1
}

// BuildStatus is the parsed build status feed.
type BuildStatus struct {
	Packages []BuildEntry `json:"packages"`
}

// BuildEntry reports the build results for one base package at one
// build version.
type BuildEntry struct {
	Name    string               `json:"name"`
	Version string               `json:"version"`
	Builds  map[string]BuildInfo `json:"builds"`
}

// BuildInfo is the result of one build type.
type BuildInfo struct {
	Status string            `json:"status"`
	Desc   string            `json:"desc"`
	URLs   map[string]string `json:"urls"`
}

// ParseBuildStatus decodes the build status feed.
func ParseBuildStatus(data []byte) (*BuildStatus, error) {
	var bs BuildStatus
	if err := json.Unmarshal(data, &bs); err != nil {
		return nil, errors.Wrap(errors.ErrCodeMalformedFeedData, err, "decoding build status")
	}
	return &bs, nil
}

// TypeStatus is the reported state of one build type of one pending
// update.
type TypeStatus struct {
	BuildType string            `json:"build_type"`
	Status    string            `json:"status"`
	Desc      string            `json:"desc,omitempty"`
	URLs      map[string]string `json:"urls,omitempty"`
}

// For returns the per-build-type statuses for base at version, most
// urgent first. The feed entry must match both the base name and the
// exact build version; anything else counts as no data. Requested build
// types the feed does not cover yield an explicit unknown status, never
// a silent omission. A nil receiver behaves like an empty feed.
func (bs *BuildStatus) For(base, version string, buildTypes []string) []TypeStatus {
	requested := map[string]bool{}
	for _, bt := range buildTypes {
		requested[bt] = true
	}

	var entry *BuildEntry
	if bs != nil {
		for i := range bs.Packages {
			if bs.Packages[i].Name == base && bs.Packages[i].Version == version {
				entry = &bs.Packages[i]
				break
			}
		}
	}

	var out []TypeStatus
	if entry != nil {
		types := make([]string, 0, len(entry.Builds))
		for bt := range entry.Builds {
			types = append(types, bt)
		}
		sort.Slice(types, func(i, j int) bool {
			a, b := entry.Builds[types[i]], entry.Builds[types[j]]
			if pa, pb := StatusPriority(a.Status), StatusPriority(b.Status); pa != pb {
				return pa > pb
			}
			if a.Status != b.Status {
				return a.Status > b.Status
			}
			return types[i] < types[j]
		})
		for _, bt := range types {
			if len(requested) > 0 && !requested[bt] {
				continue
			}
			info := entry.Builds[bt]
			out = append(out, TypeStatus{
				BuildType: bt,
				Status:    info.Status,
				Desc:      info.Desc,
				URLs:      info.URLs,
			})
		}
	}

	if len(out) == 0 {
		for _, bt := range buildTypes {
			out = append(out, TypeStatus{BuildType: bt, Status: StatusUnknown})
		}
	}
	return out
}
