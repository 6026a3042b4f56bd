// Copyright (C) 2025 SpecVault Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See <https://www.gnu.org/licenses/> for the full license text.

package datatypes

import "time"

// VersionStatus is the review state of a ProjectVersion.
type VersionStatus string

const (
	// StatusPending means the version awaits review. While a project has a
	// PENDING version it is locked against edits; at most one PENDING
	// version exists per project at any time.
	StatusPending VersionStatus = "PENDING"

	// StatusApproved is a terminal state: the version is the authoritative
	// release. Approved rows are never rewritten.
	StatusApproved VersionStatus = "APPROVED"

	// StatusRejected is terminal except for recycling: a re-publish with the
	// same target version number rewrites the row back to PENDING in place.
	StatusRejected VersionStatus = "REJECTED"
)

// IsTerminal reports whether the status ends the review lifecycle.
func (s VersionStatus) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// ProjectVersion is the persisted lifecycle record. Each row carries the
// full Snapshot as its durable payload; there is no delta format.
//
// Invariant: at most one PENDING row per project. The unique key
// (ProjectID, Version) holds for all rows except REJECTED ones, which may
// later be recycled in place.
type ProjectVersion struct {
	ID        string        `json:"id"`
	ProjectID string        `json:"projectId"`
	Version   string        `json:"version"`
	Major     int           `json:"major"`
	Minor     int           `json:"minor"`
	Patch     int           `json:"patch"`
	Status    VersionStatus `json:"status"`

	SnapshotData   Snapshot       `json:"snapshotData"`
	ChangesSummary *ChangeSummary `json:"changesSummary,omitempty"`
	ReleaseNotes   string         `json:"releaseNotes"`

	CreatedByID string    `json:"createdById"`
	CreatedAt   time.Time `json:"createdAt"`

	ApprovedByID string     `json:"approvedById,omitempty"`
	ApprovedAt   *time.Time `json:"approvedAt,omitempty"`
	RejectedByID string     `json:"rejectedById,omitempty"`
	RejectedAt   *time.Time `json:"rejectedAt,omitempty"`
}

// ApprovalStatus is a reviewer's recorded decision.
type ApprovalStatus string

const (
	ApprovalApproved ApprovalStatus = "APPROVED"
	ApprovalRejected ApprovalStatus = "REJECTED"
)

// VersionApproval is one reviewer's decision on one version. The trail is
// append-only across reviewers; a reviewer re-acting on the same version
// updates their own row rather than duplicating it.
type VersionApproval struct {
	ID         string         `json:"id"`
	VersionID  string         `json:"versionId"`
	ReviewerID string         `json:"reviewerId"`
	Status     ApprovalStatus `json:"status"`
	Message    string         `json:"message,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
	UpdatedAt  time.Time      `json:"updatedAt"`
}
