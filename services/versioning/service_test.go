// Copyright (C) 2025 SpecVault Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See <https://www.gnu.org/licenses/> for the full license text.

package versioning

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specvault/specvault/services/versioning/datatypes"
	"github.com/specvault/specvault/services/versioning/semver"
	"github.com/specvault/specvault/services/versioning/storage/badgerstore"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	db, err := badgerstore.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, db.Close())
	})
	return NewService(badgerstore.NewVersionStore(db), DefaultServiceConfig())
}

func testProject(features ...datatypes.Feature) *datatypes.Project {
	return &datatypes.Project{
		ID:       "proj-1",
		Name:     "Storefront",
		Features: features,
	}
}

func loginFeature() datatypes.Feature {
	return datatypes.Feature{
		ID:   "f-login",
		Name: "Login",
		Scenarios: []datatypes.Scenario{
			{
				ID:   "sc-ok",
				Name: "Successful login",
				Steps: []datatypes.Step{
					{ID: "s-1", Keyword: datatypes.KeywordGiven, Text: "a registered user"},
					{ID: "s-2", Keyword: datatypes.KeywordWhen, Text: "they submit valid credentials"},
					{ID: "s-3", Keyword: datatypes.KeywordThen, Text: "they see the dashboard"},
				},
			},
		},
	}
}

func searchFeature() datatypes.Feature {
	return datatypes.Feature{
		ID:   "f-search",
		Name: "Search",
		Scenarios: []datatypes.Scenario{
			{
				ID:   "sc-q",
				Name: "Simple query",
				Steps: []datatypes.Step{
					{ID: "s-4", Keyword: datatypes.KeywordWhen, Text: "the user searches for shoes"},
					{ID: "s-5", Keyword: datatypes.KeywordThen, Text: "matching products are listed"},
				},
			},
		},
	}
}

func TestPublishFirstRelease(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	v, err := svc.Publish(ctx, testProject(loginFeature()), "author-1")
	require.NoError(t, err)

	assert.Equal(t, "1.0.0", v.Version)
	assert.Equal(t, datatypes.StatusPending, v.Status)
	assert.Equal(t, "author-1", v.CreatedByID)
	assert.Nil(t, v.ChangesSummary)
	assert.Contains(t, v.ReleaseNotes, "Initial release of Storefront")
	assert.Equal(t, 1, v.SnapshotData.Metadata.TotalFeatures)

	locked, err := svc.IsLocked(ctx, "proj-1")
	require.NoError(t, err)
	assert.True(t, locked)
}

func TestPublishEmptyProjectBlocked(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Publish(context.Background(), testProject(), "author-1")
	assert.ErrorIs(t, err, ErrNoFeatures)

	locked, lerr := svc.IsLocked(context.Background(), "proj-1")
	require.NoError(t, lerr)
	assert.False(t, locked)
}

func TestPublishWhilePendingBlocked(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Publish(ctx, testProject(loginFeature()), "author-1")
	require.NoError(t, err)

	_, err = svc.Publish(ctx, testProject(loginFeature(), searchFeature()), "author-1")
	assert.ErrorIs(t, err, badgerstore.ErrVersionPending)
}

func TestPublishNoChangesBlocked(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	v, err := svc.Publish(ctx, testProject(loginFeature()), "author-1")
	require.NoError(t, err)
	_, err = svc.Approve(ctx, v.ID, "reviewer-1", "")
	require.NoError(t, err)

	_, err = svc.Publish(ctx, testProject(loginFeature()), "author-1")
	assert.ErrorIs(t, err, ErrNoChanges)

	// a blocked publish must not re-lock the project
	locked, lerr := svc.IsLocked(ctx, "proj-1")
	require.NoError(t, lerr)
	assert.False(t, locked)
}

func TestPublishBumpSequence(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	v1, err := svc.Publish(ctx, testProject(loginFeature()), "author-1")
	require.NoError(t, err)
	require.Equal(t, "1.0.0", v1.Version)
	_, err = svc.Approve(ctx, v1.ID, "reviewer-1", "")
	require.NoError(t, err)

	// a step edit is a minor bump
	edited := loginFeature()
	edited.Scenarios[0].Steps[2].Text = "they land on the dashboard"
	v2, err := svc.Publish(ctx, testProject(edited), "author-1")
	require.NoError(t, err)
	assert.Equal(t, "1.1.0", v2.Version)
	require.NotNil(t, v2.ChangesSummary)
	assert.Equal(t, 1, v2.ChangesSummary.ModifiedFeatures)
	_, err = svc.Approve(ctx, v2.ID, "reviewer-1", "")
	require.NoError(t, err)

	// a new feature is a major bump
	v3, err := svc.Publish(ctx, testProject(edited, searchFeature()), "author-1")
	require.NoError(t, err)
	assert.Equal(t, "2.0.0", v3.Version)
	require.NotNil(t, v3.ChangesSummary)
	assert.Equal(t, 1, v3.ChangesSummary.AddedFeatures)
}

func TestApproveLifecycle(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	v, err := svc.Publish(ctx, testProject(loginFeature()), "author-1")
	require.NoError(t, err)

	approved, err := svc.Approve(ctx, v.ID, "reviewer-1", "looks good")
	require.NoError(t, err)
	assert.Equal(t, datatypes.StatusApproved, approved.Status)
	assert.Equal(t, "reviewer-1", approved.ApprovedByID)
	require.NotNil(t, approved.ApprovedAt)

	locked, err := svc.IsLocked(ctx, "proj-1")
	require.NoError(t, err)
	assert.False(t, locked)

	info, err := svc.LatestApprovedVersion(ctx, "proj-1")
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", info.Version)
}

func TestApproveIdempotent(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	v, err := svc.Publish(ctx, testProject(loginFeature()), "author-1")
	require.NoError(t, err)

	_, err = svc.Approve(ctx, v.ID, "reviewer-1", "ship it")
	require.NoError(t, err)
	again, err := svc.Approve(ctx, v.ID, "reviewer-1", "ship it")
	require.NoError(t, err)
	assert.Equal(t, datatypes.StatusApproved, again.Status)

	// the duplicate call must not append a second audit row
	approvals, err := svc.Approvals(ctx, v.ID)
	require.NoError(t, err)
	assert.Len(t, approvals, 1)
}

func TestStaleDuplicateApproveKeepsLock(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	v1, err := svc.Publish(ctx, testProject(loginFeature()), "author-1")
	require.NoError(t, err)
	_, err = svc.Approve(ctx, v1.ID, "reviewer-1", "")
	require.NoError(t, err)

	edited := loginFeature()
	edited.Scenarios[0].Steps[0].Text = "a verified user"
	v2, err := svc.Publish(ctx, testProject(edited), "author-1")
	require.NoError(t, err)
	require.Equal(t, datatypes.StatusPending, v2.Status)

	// a stale duplicate approve of v1 arrives while v2 is under review
	again, err := svc.Approve(ctx, v1.ID, "reviewer-1", "")
	require.NoError(t, err)
	assert.Equal(t, datatypes.StatusApproved, again.Status)

	// v2's review lock must survive the stale call
	locked, err := svc.IsLocked(ctx, "proj-1")
	require.NoError(t, err)
	assert.True(t, locked)

	current, err := svc.GetVersion(ctx, v2.ID)
	require.NoError(t, err)
	assert.Equal(t, datatypes.StatusPending, current.Status)

	// v2 finishes its review normally
	_, err = svc.Approve(ctx, v2.ID, "reviewer-2", "")
	require.NoError(t, err)
	locked, err = svc.IsLocked(ctx, "proj-1")
	require.NoError(t, err)
	assert.False(t, locked)
}

func TestStaleDuplicateRejectKeepsLock(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	v1, err := svc.Publish(ctx, testProject(loginFeature()), "author-1")
	require.NoError(t, err)
	_, err = svc.Approve(ctx, v1.ID, "reviewer-1", "")
	require.NoError(t, err)

	// a minor change is rejected; its row stays REJECTED at 1.1.0
	edited := loginFeature()
	edited.Scenarios[0].Steps[0].Text = "a verified user"
	v2, err := svc.Publish(ctx, testProject(edited), "author-1")
	require.NoError(t, err)
	require.Equal(t, "1.1.0", v2.Version)
	_, err = svc.Reject(ctx, v2.ID, "reviewer-1", "needs another pass")
	require.NoError(t, err)

	// a major change targets 2.0.0, so the rejected 1.1.0 row is not recycled
	v3, err := svc.Publish(ctx, testProject(edited, searchFeature()), "author-1")
	require.NoError(t, err)
	require.Equal(t, "2.0.0", v3.Version)
	require.NotEqual(t, v2.ID, v3.ID)

	// a stale duplicate reject of v2 arrives while v3 is under review
	_, err = svc.Reject(ctx, v2.ID, "reviewer-1", "needs another pass")
	require.NoError(t, err)

	locked, err := svc.IsLocked(ctx, "proj-1")
	require.NoError(t, err)
	assert.True(t, locked)

	current, err := svc.GetVersion(ctx, v3.ID)
	require.NoError(t, err)
	assert.Equal(t, datatypes.StatusPending, current.Status)
}

func TestRejectRequiresMessage(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	v, err := svc.Publish(ctx, testProject(loginFeature()), "author-1")
	require.NoError(t, err)

	_, err = svc.Reject(ctx, v.ID, "reviewer-1", "")
	assert.ErrorIs(t, err, ErrRejectionMessageRequired)
	_, err = svc.Reject(ctx, v.ID, "reviewer-1", "   ")
	assert.ErrorIs(t, err, ErrRejectionMessageRequired)

	// still pending, still locked
	locked, lerr := svc.IsLocked(ctx, "proj-1")
	require.NoError(t, lerr)
	assert.True(t, locked)
}

func TestRejectAndRecycle(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	v, err := svc.Publish(ctx, testProject(loginFeature()), "author-1")
	require.NoError(t, err)
	require.Equal(t, "1.0.0", v.Version)

	rejected, err := svc.Reject(ctx, v.ID, "reviewer-1", "نیاز به اصلاح")
	require.NoError(t, err)
	assert.Equal(t, datatypes.StatusRejected, rejected.Status)
	assert.Equal(t, "reviewer-1", rejected.RejectedByID)
	require.NotNil(t, rejected.RejectedAt)

	locked, err := svc.IsLocked(ctx, "proj-1")
	require.NoError(t, err)
	assert.False(t, locked)

	// re-publish targets 1.0.0 again and recycles the rejected row in place
	edited := loginFeature()
	edited.Scenarios[0].Steps[1].Text = "they submit corrected credentials"
	v2, err := svc.Publish(ctx, testProject(edited), "author-2")
	require.NoError(t, err)

	assert.Equal(t, v.ID, v2.ID)
	assert.Equal(t, "1.0.0", v2.Version)
	assert.Equal(t, datatypes.StatusPending, v2.Status)
	assert.Equal(t, "author-2", v2.CreatedByID)
	assert.Empty(t, v2.RejectedByID)
	assert.Nil(t, v2.RejectedAt)
	assert.Nil(t, v2.ApprovedAt)

	approved, err := svc.Approve(ctx, v2.ID, "reviewer-1", "fixed")
	require.NoError(t, err)
	assert.Equal(t, datatypes.StatusApproved, approved.Status)
}

func TestApproveRejectedVersionFails(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	v, err := svc.Publish(ctx, testProject(loginFeature()), "author-1")
	require.NoError(t, err)
	_, err = svc.Reject(ctx, v.ID, "reviewer-1", "not yet")
	require.NoError(t, err)

	_, err = svc.Approve(ctx, v.ID, "reviewer-1", "")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestRejectApprovedVersionFails(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	v, err := svc.Publish(ctx, testProject(loginFeature()), "author-1")
	require.NoError(t, err)
	_, err = svc.Approve(ctx, v.ID, "reviewer-1", "")
	require.NoError(t, err)

	_, err = svc.Reject(ctx, v.ID, "reviewer-1", "changed my mind")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestReviewUnknownVersion(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Approve(ctx, "missing", "reviewer-1", "")
	assert.ErrorIs(t, err, badgerstore.ErrNotFound)
	_, err = svc.Reject(ctx, "missing", "reviewer-1", "why")
	assert.ErrorIs(t, err, badgerstore.ErrNotFound)
}

func TestListVersionsHistory(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	v1, err := svc.Publish(ctx, testProject(loginFeature()), "author-1")
	require.NoError(t, err)
	_, err = svc.Approve(ctx, v1.ID, "reviewer-1", "")
	require.NoError(t, err)

	edited := loginFeature()
	edited.Scenarios[0].Name = "Login succeeds"
	v2, err := svc.Publish(ctx, testProject(edited), "author-1")
	require.NoError(t, err)

	versions, err := svc.ListVersions(ctx, "proj-1")
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, v2.Version, versions[0].Version)
	assert.Equal(t, v1.Version, versions[1].Version)
}

func TestNextVersion(t *testing.T) {
	svc := newTestService(t)

	info, err := svc.NextVersion("1.2.3", semver.BumpMinor)
	require.NoError(t, err)
	assert.Equal(t, "1.3.0", info.Version)

	_, err = svc.NextVersion("not-a-version", semver.BumpMajor)
	assert.Error(t, err)

	_, err = svc.NextVersion("1.2.3", semver.BumpType("mega"))
	assert.Error(t, err)
}

func TestLatestApprovedVersionDefaultsToZero(t *testing.T) {
	svc := newTestService(t)

	info, err := svc.LatestApprovedVersion(context.Background(), "proj-unknown")
	require.NoError(t, err)
	assert.Equal(t, "0.0.0", info.Version)
}

func TestDiffRequiresBothSnapshots(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	snapA := &datatypes.Snapshot{Features: datatypes.NormalizeFeatures([]datatypes.Feature{loginFeature()})}
	snapB := &datatypes.Snapshot{Features: datatypes.NormalizeFeatures([]datatypes.Feature{loginFeature(), searchFeature()})}

	_, err := svc.Diff(ctx, nil, snapB)
	assert.Error(t, err)

	res, err := svc.Diff(ctx, snapA, snapB)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Summary.AddedFeatures)
}

func TestServiceNowDefaultsWhenNil(t *testing.T) {
	db, err := badgerstore.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, db.Close())
	})

	svc := NewService(badgerstore.NewVersionStore(db), ServiceConfig{})
	v, err := svc.Publish(context.Background(), testProject(loginFeature()), "author-1")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().UTC(), v.CreatedAt, time.Minute)
}
