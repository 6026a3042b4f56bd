// Copyright (C) 2025 SpecVault Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See <https://www.gnu.org/licenses/> for the full license text.

// Package versioning owns the review lifecycle of project versions.
//
// A publish turns a live project tree into an immutable snapshot, classifies
// it against the last approved release, and files it as a PENDING version
// while locking the project. Approve/reject drive the terminal transition
// and release the lock. The service is synchronous and CPU-bound; all
// durable state lives behind the Store interface.
package versioning

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/specvault/specvault/services/versioning/classify"
	"github.com/specvault/specvault/services/versioning/datatypes"
	"github.com/specvault/specvault/services/versioning/diff"
	"github.com/specvault/specvault/services/versioning/semver"
	"github.com/specvault/specvault/services/versioning/snapshot"
	"github.com/specvault/specvault/services/versioning/storage/badgerstore"
	"github.com/specvault/specvault/services/versioning/telemetry"
)

var tracer = otel.Tracer("versioning.service")

// Store is the persistence surface the lifecycle needs. badgerstore
// implements it; tests may substitute an in-memory instance of the same.
type Store interface {
	// CreatePending must atomically enforce the single-pending invariant,
	// recycle a REJECTED row on version-number collision, write the new
	// PENDING row, and set the project lock.
	CreatePending(ctx context.Context, v *datatypes.ProjectVersion) (*datatypes.ProjectVersion, error)

	// Finalize must atomically write the terminal row, upsert the
	// reviewer's approval, clear the pending marker, and unlock the project.
	Finalize(ctx context.Context, v *datatypes.ProjectVersion, approval *datatypes.VersionApproval) error

	// Unlock clears the project lock unless a version is PENDING, in which
	// case the lock stays with it (idempotent re-assert).
	Unlock(ctx context.Context, projectID string) error

	GetVersion(ctx context.Context, id string) (*datatypes.ProjectVersion, error)
	Pending(ctx context.Context, projectID string) (*datatypes.ProjectVersion, error)
	LatestApproved(ctx context.Context, projectID string) (*datatypes.ProjectVersion, error)
	List(ctx context.Context, projectID string) ([]*datatypes.ProjectVersion, error)
	IsLocked(ctx context.Context, projectID string) (bool, error)
	Approvals(ctx context.Context, versionID string) ([]*datatypes.VersionApproval, error)
}

var _ Store = (*badgerstore.VersionStore)(nil)

// ServiceConfig configures the versioning Service.
type ServiceConfig struct {
	// Now supplies timestamps. Defaults to time.Now. Tests may pin it.
	Now func() time.Time
}

// DefaultServiceConfig returns production defaults.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{Now: time.Now}
}

// Service implements the versioning lifecycle operations.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService creates a Service on top of the given store.
func NewService(store Store, cfg ServiceConfig) *Service {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{store: store, now: now}
}

// VersionInfo is a parsed version triple with its canonical string form.
type VersionInfo struct {
	Version string `json:"version"`
	Major   int    `json:"major"`
	Minor   int    `json:"minor"`
	Patch   int    `json:"patch"`
}

func versionInfo(v semver.Version) VersionInfo {
	return VersionInfo{Version: v.String(), Major: v.Major, Minor: v.Minor, Patch: v.Patch}
}

// Publish snapshots the project, classifies the change against the last
// approved release, and atomically files a PENDING version while locking
// the project.
//
// Description:
//
//	When the target version number collides with a REJECTED row, that row
//	is recycled in place (same id, fresh snapshot and notes) rather than
//	erroring. A PENDING version already in flight, an empty project, or an
//	unchanged tree each block the publish with a specific error.
//
// Inputs:
//
//	ctx - Cancellation.
//	project - The live project tree with associations loaded.
//	createdBy - Identifier of the publishing user.
//
// Outputs:
//
//	*datatypes.ProjectVersion - The stored PENDING row.
//	error - ErrNoFeatures, ErrNoChanges, badgerstore.ErrVersionPending,
//	        or a wrapped storage error.
func (s *Service) Publish(ctx context.Context, project *datatypes.Project, createdBy string) (*datatypes.ProjectVersion, error) {
	ctx, span := tracer.Start(ctx, "versioning.Publish")
	defer span.End()
	span.SetAttributes(attribute.String("project_id", project.ID))

	snap := snapshot.Build(project, s.now())

	latest, err := s.store.LatestApproved(ctx, project.ID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("load latest approved version: %w", err)
	}

	var prevSnap *datatypes.Snapshot
	current := semver.Zero
	if latest != nil {
		prevSnap = &latest.SnapshotData
		current = semver.Version{Major: latest.Major, Minor: latest.Minor, Patch: latest.Patch}
	}

	diffStart := s.now()
	cls := classify.Classify(prevSnap, &snap)
	telemetry.RecordDiffDuration(s.now().Sub(diffStart).Seconds())

	if cls.Blocked {
		telemetry.RecordPublish("blocked", "")
		span.SetStatus(codes.Error, cls.Reason)
		switch cls.Reason {
		case classify.ReasonNoFeatures:
			return nil, ErrNoFeatures
		default:
			return nil, ErrNoChanges
		}
	}

	next, err := current.Next(cls.Bump)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("compute next version: %w", err)
	}
	span.SetAttributes(
		attribute.String("bump", string(cls.Bump)),
		attribute.String("version", next.String()),
	)

	row := &datatypes.ProjectVersion{
		ID:           uuid.NewString(),
		ProjectID:    project.ID,
		Version:      next.String(),
		Major:        next.Major,
		Minor:        next.Minor,
		Patch:        next.Patch,
		Status:       datatypes.StatusPending,
		SnapshotData: snap,
		ReleaseNotes: cls.ReleaseNotes,
		CreatedByID:  createdBy,
		CreatedAt:    s.now().UTC(),
	}
	if cls.Diff != nil {
		summary := cls.Diff.Summary
		row.ChangesSummary = &summary
	}

	stored, err := s.store.CreatePending(ctx, row)
	if err != nil {
		telemetry.RecordPublish("conflict", string(cls.Bump))
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	telemetry.RecordPublish("ok", string(cls.Bump))
	telemetry.PendingInc()
	return stored, nil
}

// Approve transitions a PENDING version to APPROVED and unlocks the project.
//
// Approve on an already-APPROVED version is an idempotent no-op success that
// re-asserts the unlock where no other version is PENDING. Any other
// non-PENDING source state is an error.
func (s *Service) Approve(ctx context.Context, versionID, reviewerID, message string) (*datatypes.ProjectVersion, error) {
	ctx, span := tracer.Start(ctx, "versioning.Approve")
	defer span.End()
	span.SetAttributes(attribute.String("version_id", versionID))

	v, err := s.store.GetVersion(ctx, versionID)
	if err != nil {
		telemetry.RecordReview("approve", "error")
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	switch v.Status {
	case datatypes.StatusApproved:
		// Duplicate submission; absorb it. Unlock is conditional in the
		// store, so a later PENDING version keeps its lock.
		if err := s.store.Unlock(ctx, v.ProjectID); err != nil {
			return nil, fmt.Errorf("re-assert unlock: %w", err)
		}
		telemetry.RecordReview("approve", "idempotent")
		return v, nil
	case datatypes.StatusPending:
		// Fall through to the transition.
	default:
		telemetry.RecordReview("approve", "invalid")
		span.SetStatus(codes.Error, string(v.Status))
		return nil, fmt.Errorf("approve version in state %s: %w", v.Status, ErrInvalidTransition)
	}

	now := s.now().UTC()
	v.Status = datatypes.StatusApproved
	v.ApprovedByID = reviewerID
	v.ApprovedAt = &now

	approval := &datatypes.VersionApproval{
		ID:         uuid.NewString(),
		VersionID:  versionID,
		ReviewerID: reviewerID,
		Status:     datatypes.ApprovalApproved,
		Message:    message,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.store.Finalize(ctx, v, approval); err != nil {
		telemetry.RecordReview("approve", "error")
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("finalize approval: %w", err)
	}

	telemetry.RecordReview("approve", "ok")
	telemetry.PendingDec()
	return v, nil
}

// Reject transitions a PENDING version to REJECTED and unlocks the project.
// The message is mandatory. Repeat-reject of an already-REJECTED version is
// an idempotent no-op success; rejecting an APPROVED version is an error.
func (s *Service) Reject(ctx context.Context, versionID, reviewerID, message string) (*datatypes.ProjectVersion, error) {
	ctx, span := tracer.Start(ctx, "versioning.Reject")
	defer span.End()
	span.SetAttributes(attribute.String("version_id", versionID))

	if strings.TrimSpace(message) == "" {
		telemetry.RecordReview("reject", "invalid")
		return nil, ErrRejectionMessageRequired
	}

	v, err := s.store.GetVersion(ctx, versionID)
	if err != nil {
		telemetry.RecordReview("reject", "error")
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	switch v.Status {
	case datatypes.StatusRejected:
		// Duplicate submission; same conditional unlock as Approve.
		if err := s.store.Unlock(ctx, v.ProjectID); err != nil {
			return nil, fmt.Errorf("re-assert unlock: %w", err)
		}
		telemetry.RecordReview("reject", "idempotent")
		return v, nil
	case datatypes.StatusPending:
		// Fall through to the transition.
	default:
		telemetry.RecordReview("reject", "invalid")
		span.SetStatus(codes.Error, string(v.Status))
		return nil, fmt.Errorf("reject version in state %s: %w", v.Status, ErrInvalidTransition)
	}

	now := s.now().UTC()
	v.Status = datatypes.StatusRejected
	v.RejectedByID = reviewerID
	v.RejectedAt = &now

	approval := &datatypes.VersionApproval{
		ID:         uuid.NewString(),
		VersionID:  versionID,
		ReviewerID: reviewerID,
		Status:     datatypes.ApprovalRejected,
		Message:    message,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.store.Finalize(ctx, v, approval); err != nil {
		telemetry.RecordReview("reject", "error")
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("finalize rejection: %w", err)
	}

	telemetry.RecordReview("reject", "ok")
	telemetry.PendingDec()
	return v, nil
}

// GetVersion loads one version row with its snapshot payload.
func (s *Service) GetVersion(ctx context.Context, versionID string) (*datatypes.ProjectVersion, error) {
	return s.store.GetVersion(ctx, versionID)
}

// ListVersions returns a project's version history, newest version first.
func (s *Service) ListVersions(ctx context.Context, projectID string) ([]*datatypes.ProjectVersion, error) {
	return s.store.List(ctx, projectID)
}

// Approvals returns the reviewer audit trail for a version.
func (s *Service) Approvals(ctx context.Context, versionID string) ([]*datatypes.VersionApproval, error) {
	return s.store.Approvals(ctx, versionID)
}

// IsLocked reports whether the project is locked by a pending review.
func (s *Service) IsLocked(ctx context.Context, projectID string) (bool, error) {
	return s.store.IsLocked(ctx, projectID)
}

// LatestApprovedVersion returns the project's last approved version triple,
// or 0.0.0 when no approved release exists.
func (s *Service) LatestApprovedVersion(ctx context.Context, projectID string) (VersionInfo, error) {
	latest, err := s.store.LatestApproved(ctx, projectID)
	if err != nil {
		return VersionInfo{}, err
	}
	if latest == nil {
		return versionInfo(semver.Zero), nil
	}
	return versionInfo(semver.Version{Major: latest.Major, Minor: latest.Minor, Patch: latest.Patch}), nil
}

// NextVersion computes the version after current for the given bump type.
func (s *Service) NextVersion(current string, bump semver.BumpType) (VersionInfo, error) {
	v, err := semver.Parse(current)
	if err != nil {
		return VersionInfo{}, err
	}
	next, err := v.Next(bump)
	if err != nil {
		return VersionInfo{}, err
	}
	return versionInfo(next), nil
}

// Diff compares two snapshots directly. Exposed for preview-before-publish.
func (s *Service) Diff(ctx context.Context, oldSnap, newSnap *datatypes.Snapshot) (*diff.Result, error) {
	_, span := tracer.Start(ctx, "versioning.Diff")
	defer span.End()

	if oldSnap == nil || newSnap == nil {
		err := errors.New("both snapshots are required")
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	start := s.now()
	res := diff.Generate(oldSnap, newSnap)
	telemetry.RecordDiffDuration(s.now().Sub(start).Seconds())
	return res, nil
}
