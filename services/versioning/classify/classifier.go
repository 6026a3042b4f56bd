// Copyright (C) 2025 SpecVault Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See <https://www.gnu.org/licenses/> for the full license text.

// Package classify decides what a publish action is worth: the semantic
// version bump it warrants, or the reason it is blocked.
package classify

import (
	"fmt"
	"strings"

	"github.com/specvault/specvault/services/versioning/datatypes"
	"github.com/specvault/specvault/services/versioning/diff"
	"github.com/specvault/specvault/services/versioning/semver"
)

// Blocking reasons surfaced to the caller when a publish is disallowed.
const (
	ReasonNoFeatures = "project has no features to publish"
	ReasonNoChanges  = "no changes detected since the last approved version"
)

// Result is the outcome of classifying a publish action.
type Result struct {
	// Bump is the warranted version bump. Meaningless when Blocked.
	Bump semver.BumpType

	// ReleaseNotes is human-readable bullet text synthesized from the
	// categorized change lists.
	ReleaseNotes string

	// Blocked is true when the publish must be rejected outright.
	Blocked bool

	// Reason names why the publish is blocked. Empty otherwise.
	Reason string

	// Diff is the full comparison against the previous snapshot. Nil for a
	// first release (nothing to compare against).
	Diff *diff.Result
}

// Classify decides the version bump for publishing current, given the last
// approved snapshot (nil when no approved release exists yet).
//
// Precedence, first match wins:
//
//  1. Zero features -> blocked (publishing an empty project is disallowed).
//  2. No prior approved snapshot -> major (first release).
//  3. Feature count differs, or any feature added/removed -> major.
//  4. Any feature modified (metadata, scenario, or step level) -> minor.
//  5. No detectable difference -> blocked (no-op publishes cause version
//     churn and are disallowed).
func Classify(previous, current *datatypes.Snapshot) Result {
	if current == nil || current.Metadata.TotalFeatures == 0 {
		return Result{Blocked: true, Reason: ReasonNoFeatures}
	}

	if previous == nil {
		return Result{
			Bump:         semver.BumpMajor,
			ReleaseNotes: firstReleaseNotes(current),
		}
	}

	d := diff.Generate(previous, current)
	notes := releaseNotes(previous, current, d)

	if previous.Metadata.TotalFeatures != current.Metadata.TotalFeatures ||
		d.Summary.AddedFeatures > 0 || d.Summary.RemovedFeatures > 0 {
		return Result{Bump: semver.BumpMajor, ReleaseNotes: notes, Diff: d}
	}

	if d.Summary.HasChanges() {
		return Result{Bump: semver.BumpMinor, ReleaseNotes: notes, Diff: d}
	}

	return Result{Blocked: true, Reason: ReasonNoChanges, Diff: d}
}

func firstReleaseNotes(current *datatypes.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Initial release of %s.\n", current.Project.Name)
	fmt.Fprintf(&b, "- %d features, %d scenarios, %d steps\n",
		current.Metadata.TotalFeatures,
		current.Metadata.TotalScenarios,
		current.Metadata.TotalSteps)
	return b.String()
}

// releaseNotes renders the categorized change lists as bullet text.
func releaseNotes(previous, current *datatypes.Snapshot, d *diff.Result) string {
	var b strings.Builder

	for _, f := range d.Features {
		switch f.Status {
		case diff.StatusAdded:
			fmt.Fprintf(&b, "- Added feature %q\n", f.Name)
		case diff.StatusRemoved:
			fmt.Fprintf(&b, "- Removed feature %q\n", f.Name)
		case diff.StatusModified:
			fmt.Fprintf(&b, "- Modified feature %q\n", f.Name)
			for _, s := range f.Scenarios {
				switch s.Status {
				case diff.StatusAdded:
					fmt.Fprintf(&b, "  - Added scenario %q\n", s.Name)
				case diff.StatusRemoved:
					fmt.Fprintf(&b, "  - Removed scenario %q\n", s.Name)
				case diff.StatusModified:
					fmt.Fprintf(&b, "  - Modified scenario %q\n", s.Name)
				}
			}
		}
	}

	stepDelta := current.Metadata.TotalSteps - previous.Metadata.TotalSteps
	switch {
	case stepDelta > 0:
		fmt.Fprintf(&b, "- %d steps added overall\n", stepDelta)
	case stepDelta < 0:
		fmt.Fprintf(&b, "- %d steps removed overall\n", -stepDelta)
	}

	if b.Len() == 0 {
		return "No content changes.\n"
	}
	return b.String()
}
