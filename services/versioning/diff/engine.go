// Copyright (C) 2025 SpecVault Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See <https://www.gnu.org/licenses/> for the full license text.

// Package diff compares two snapshots of a project's feature tree.
//
// The comparison runs in ordered passes:
//
//  1. Exact-id match: entities present on both sides under the same id are
//     modified (content differs) or unchanged (counted, not emitted).
//  2. Added-by-absence: new-side entities with no old-side id counterpart.
//  3. Removed-by-absence: the symmetric case.
//  4. Similarity rematch (scenarios only): unmatched old/new scenarios above
//     similarity.RenameThreshold are greedily paired and reclassified from
//     removed+added into a single modified entry. Greedy, not globally
//     optimal; ties break by iteration order.
//  5. Whatever remains is final added/removed.
//
// Worst case is O(features x scenarios x steps) because of pass 4. Accepted:
// documents are tens of scenarios, not thousands.
//
// The package is pure computation. It never logs and performs no I/O.
package diff

import (
	"github.com/specvault/specvault/services/versioning/datatypes"
	"github.com/specvault/specvault/services/versioning/similarity"
)

// Status classifies an entity's fate between two snapshots.
type Status string

const (
	StatusAdded     Status = "added"
	StatusRemoved   Status = "removed"
	StatusModified  Status = "modified"
	StatusUnchanged Status = "unchanged"
)

// ScenarioDiff is one scenario's classification. PreviousID is set only for
// pass-4 rematches, where the scenario's identity changed between snapshots.
type ScenarioDiff struct {
	ID         string `json:"id"`
	PreviousID string `json:"previousId,omitempty"`
	Name       string `json:"name"`
	Status     Status `json:"status"`
}

// BackgroundDiff reports the fate of a feature's background block.
type BackgroundDiff struct {
	Status Status `json:"status"`
}

// FeatureDiff is one feature's classification with its nested scenario and
// background diffs. Added and removed features carry no nested entries;
// their contents are implied by the feature status.
type FeatureDiff struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Status     Status          `json:"status"`
	Scenarios  []ScenarioDiff  `json:"scenarios,omitempty"`
	Background *BackgroundDiff `json:"background,omitempty"`
}

// Result is a structured diff of two snapshots. Unchanged entities are
// counted in Summary but not emitted in Features.
type Result struct {
	Features []FeatureDiff           `json:"features"`
	Summary  datatypes.ChangeSummary `json:"summary"`
}

// Generate diffs two snapshots.
//
// Description:
//
//	Matches features by exact id (no similarity rematch at feature level;
//	feature identity is stable upstream). Inside each surviving feature
//	pair, scenarios go through all five passes including the greedy
//	similarity rematch. Removed features are emitted after the new-side
//	ordering, in old-snapshot order.
//
// Inputs:
//
//	oldSnap - The earlier capture. Must not be nil.
//	newSnap - The later capture. Must not be nil.
//
// Outputs:
//
//	*Result - Per-feature statuses plus aggregate counters. Never nil.
//
// Thread Safety: Safe for concurrent use (pure function).
func Generate(oldSnap, newSnap *datatypes.Snapshot) *Result {
	res := &Result{Features: []FeatureDiff{}}

	oldByID := make(map[string]*datatypes.Feature, len(oldSnap.Features))
	for i := range oldSnap.Features {
		oldByID[oldSnap.Features[i].ID] = &oldSnap.Features[i]
	}
	newIDs := make(map[string]struct{}, len(newSnap.Features))

	for i := range newSnap.Features {
		nf := &newSnap.Features[i]
		newIDs[nf.ID] = struct{}{}

		of, ok := oldByID[nf.ID]
		if !ok {
			res.Summary.AddedFeatures++
			res.Features = append(res.Features, FeatureDiff{
				ID:     nf.ID,
				Name:   nf.Name,
				Status: StatusAdded,
			})
			continue
		}

		if featuresEqual(of, nf) {
			res.Summary.UnchangedFeatures++
			res.Summary.UnchangedScenarios += len(nf.Scenarios)
			continue
		}

		fd := FeatureDiff{
			ID:         nf.ID,
			Name:       nf.Name,
			Status:     StatusModified,
			Background: backgroundDiff(of.Background, nf.Background),
		}
		fd.Scenarios = diffScenarios(of.Scenarios, nf.Scenarios, &res.Summary)
		res.Summary.ModifiedFeatures++
		res.Features = append(res.Features, fd)
	}

	for i := range oldSnap.Features {
		of := &oldSnap.Features[i]
		if _, ok := newIDs[of.ID]; ok {
			continue
		}
		res.Summary.RemovedFeatures++
		res.Features = append(res.Features, FeatureDiff{
			ID:     of.ID,
			Name:   of.Name,
			Status: StatusRemoved,
		})
	}

	return res
}

// diffScenarios runs all five passes over the scenario lists of one feature
// pair, appending counts to summary and returning the emitted entries.
func diffScenarios(oldList, newList []datatypes.Scenario, summary *datatypes.ChangeSummary) []ScenarioDiff {
	var out []ScenarioDiff

	oldByID := make(map[string]*datatypes.Scenario, len(oldList))
	for i := range oldList {
		oldByID[oldList[i].ID] = &oldList[i]
	}

	matchedOld := make(map[string]struct{})
	var unmatchedNew []*datatypes.Scenario

	// Pass 1: exact id.
	for i := range newList {
		ns := &newList[i]
		os, ok := oldByID[ns.ID]
		if !ok {
			unmatchedNew = append(unmatchedNew, ns)
			continue
		}
		matchedOld[os.ID] = struct{}{}
		if scenariosEqual(os, ns) {
			summary.UnchangedScenarios++
			continue
		}
		summary.ModifiedScenarios++
		out = append(out, ScenarioDiff{ID: ns.ID, Name: ns.Name, Status: StatusModified})
	}

	var unmatchedOld []*datatypes.Scenario
	for i := range oldList {
		if _, ok := matchedOld[oldList[i].ID]; !ok {
			unmatchedOld = append(unmatchedOld, &oldList[i])
		}
	}

	// Pass 4: greedy similarity rematch of the leftovers. Each old scenario
	// takes the highest-scoring new scenario above the rename threshold;
	// first candidate past the running best wins.
	usedNew := make([]bool, len(unmatchedNew))
	for _, os := range unmatchedOld {
		best := similarity.RenameThreshold
		bestIdx := -1
		for j, ns := range unmatchedNew {
			if usedNew[j] {
				continue
			}
			if score := similarity.Scenario(*os, *ns); score > best {
				best = score
				bestIdx = j
			}
		}
		if bestIdx >= 0 {
			ns := unmatchedNew[bestIdx]
			usedNew[bestIdx] = true
			summary.ModifiedScenarios++
			out = append(out, ScenarioDiff{
				ID:         ns.ID,
				PreviousID: os.ID,
				Name:       ns.Name,
				Status:     StatusModified,
			})
			continue
		}
		// Pass 5: no rematch, the removal is final.
		summary.RemovedScenarios++
		out = append(out, ScenarioDiff{ID: os.ID, Name: os.Name, Status: StatusRemoved})
	}

	for j, ns := range unmatchedNew {
		if usedNew[j] {
			continue
		}
		summary.AddedScenarios++
		out = append(out, ScenarioDiff{ID: ns.ID, Name: ns.Name, Status: StatusAdded})
	}

	return out
}

// featuresEqual is the structural "has this feature changed" check: name,
// description, scenario count, each scenario pairwise in document order, and
// background must all match. A scenario-count or background mismatch alone
// is enough to answer without deep inspection.
func featuresEqual(a, b *datatypes.Feature) bool {
	if a.Name != b.Name || a.Description != b.Description {
		return false
	}
	if len(a.Scenarios) != len(b.Scenarios) {
		return false
	}
	if !backgroundsEqual(a.Background, b.Background) {
		return false
	}
	for i := range a.Scenarios {
		// An id change alone is a change: the scenario must go through the
		// rematch passes even when its content is identical.
		if a.Scenarios[i].ID != b.Scenarios[i].ID {
			return false
		}
		if !scenariosEqual(&a.Scenarios[i], &b.Scenarios[i]) {
			return false
		}
	}
	return true
}

func backgroundsEqual(a, b *datatypes.Background) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Description == b.Description && stepsEqual(a.Steps, b.Steps)
}

// scenariosEqual compares scenario content: name, description, type, steps
// in order, and the examples table.
func scenariosEqual(a, b *datatypes.Scenario) bool {
	if a.Name != b.Name || a.Description != b.Description || a.Type != b.Type {
		return false
	}
	if !stepsEqual(a.Steps, b.Steps) {
		return false
	}
	return examplesEqual(a.Examples, b.Examples)
}

func stepsEqual(a, b []datatypes.Step) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Keyword != b[i].Keyword || a[i].Text != b[i].Text || a[i].DocString != b[i].DocString {
			return false
		}
		if !tableEqual(a[i].DataTable, b[i].DataTable) {
			return false
		}
	}
	return true
}

func examplesEqual(a, b *datatypes.Examples) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if !stringsEqual(a.Headers, b.Headers) || len(a.Rows) != len(b.Rows) {
		return false
	}
	for i := range a.Rows {
		if !stringsEqual(a.Rows[i].Values, b.Rows[i].Values) {
			return false
		}
	}
	return true
}

func backgroundDiff(oldBG, newBG *datatypes.Background) *BackgroundDiff {
	switch {
	case oldBG == nil && newBG == nil:
		return nil
	case oldBG == nil:
		return &BackgroundDiff{Status: StatusAdded}
	case newBG == nil:
		return &BackgroundDiff{Status: StatusRemoved}
	case backgroundsEqual(oldBG, newBG):
		return nil
	default:
		return &BackgroundDiff{Status: StatusModified}
	}
}

func tableEqual(a, b [][]string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !stringsEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}

func stringsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
