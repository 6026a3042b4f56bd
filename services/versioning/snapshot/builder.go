// Copyright (C) 2025 SpecVault Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See <https://www.gnu.org/licenses/> for the full license text.

// Package snapshot builds immutable point-in-time captures of a project's
// feature tree.
package snapshot

import (
	"time"

	"github.com/specvault/specvault/services/versioning/datatypes"
)

// Build converts a live project into an immutable Snapshot plus aggregate
// counters.
//
// Description:
//
//	Pure function, no side effects. The input must have its feature,
//	scenario, step, and background associations already loaded; Build
//	performs no I/O. Missing collections are coerced to empty rather than
//	raising, so a project with zero features still yields a valid snapshot
//	with zero counts.
//
// Inputs:
//
//	project - The live project tree. May be partially populated; nil slices
//	          are tolerated at every level. Must not be nil.
//	now - Timestamp recorded in the snapshot metadata.
//
// Outputs:
//
//	datatypes.Snapshot - Deep copy of the tree; mutating the input after
//	                     Build does not affect the snapshot.
//
// Thread Safety: Safe for concurrent use (no shared state).
func Build(project *datatypes.Project, now time.Time) datatypes.Snapshot {
	p := datatypes.NormalizeProject(project)

	snap := datatypes.Snapshot{
		Project: datatypes.ProjectInfo{
			ID:          p.ID,
			Name:        p.Name,
			Description: p.Description,
			Status:      p.Status,
		},
		Features: p.Features,
	}

	totalScenarios := 0
	totalSteps := 0
	for _, f := range snap.Features {
		totalScenarios += len(f.Scenarios)
		if f.Background != nil {
			totalSteps += len(f.Background.Steps)
		}
		for _, s := range f.Scenarios {
			totalSteps += len(s.Steps)
		}
	}

	snap.Metadata = datatypes.SnapshotMetadata{
		TotalFeatures:  len(snap.Features),
		TotalScenarios: totalScenarios,
		TotalSteps:     totalSteps,
		Timestamp:      now.UTC(),
	}
	return snap
}
