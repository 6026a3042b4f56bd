// Copyright (C) 2025 SpecVault Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See <https://www.gnu.org/licenses/> for the full license text.

package classify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specvault/specvault/services/versioning/datatypes"
	"github.com/specvault/specvault/services/versioning/semver"
	"github.com/specvault/specvault/services/versioning/snapshot"
)

func project(features ...datatypes.Feature) *datatypes.Project {
	return &datatypes.Project{
		ID:       "proj-1",
		Name:     "Storefront",
		Features: features,
	}
}

func cartFeature() datatypes.Feature {
	return datatypes.Feature{
		ID:   "f-cart",
		Name: "Cart",
		Scenarios: []datatypes.Scenario{
			{
				ID:   "sc-add",
				Name: "Add item",
				Steps: []datatypes.Step{
					{ID: "s-1", Keyword: datatypes.KeywordWhen, Text: "the user adds an item"},
					{ID: "s-2", Keyword: datatypes.KeywordThen, Text: "the cart has one item"},
				},
			},
		},
	}
}

func paymentFeature() datatypes.Feature {
	return datatypes.Feature{
		ID:   "f-pay",
		Name: "Payment",
		Scenarios: []datatypes.Scenario{
			{
				ID:   "sc-card",
				Name: "Pay by card",
				Steps: []datatypes.Step{
					{ID: "s-3", Keyword: datatypes.KeywordWhen, Text: "the user pays by card"},
				},
			},
		},
	}
}

func snap(p *datatypes.Project) *datatypes.Snapshot {
	s := snapshot.Build(p, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	return &s
}

func TestClassifyNoFeaturesBlocked(t *testing.T) {
	res := Classify(nil, snap(project()))
	assert.True(t, res.Blocked)
	assert.Equal(t, ReasonNoFeatures, res.Reason)

	res = Classify(nil, nil)
	assert.True(t, res.Blocked)
	assert.Equal(t, ReasonNoFeatures, res.Reason)
}

func TestClassifyFirstRelease(t *testing.T) {
	res := Classify(nil, snap(project(cartFeature(), paymentFeature())))

	require.False(t, res.Blocked)
	assert.Equal(t, semver.BumpMajor, res.Bump)
	assert.Nil(t, res.Diff)
	assert.Contains(t, res.ReleaseNotes, "Initial release of Storefront")
	assert.Contains(t, res.ReleaseNotes, "2 features, 2 scenarios, 3 steps")
}

func TestClassifyFeatureAddedIsMajor(t *testing.T) {
	prev := snap(project(cartFeature()))
	curr := snap(project(cartFeature(), paymentFeature()))

	res := Classify(prev, curr)
	require.False(t, res.Blocked)
	assert.Equal(t, semver.BumpMajor, res.Bump)
	require.NotNil(t, res.Diff)
	assert.Equal(t, 1, res.Diff.Summary.AddedFeatures)
	assert.Contains(t, res.ReleaseNotes, `Added feature "Payment"`)
}

func TestClassifyFeatureRemovedIsMajor(t *testing.T) {
	prev := snap(project(cartFeature(), paymentFeature()))
	curr := snap(project(cartFeature()))

	res := Classify(prev, curr)
	assert.Equal(t, semver.BumpMajor, res.Bump)
	assert.Contains(t, res.ReleaseNotes, `Removed feature "Payment"`)
}

func TestClassifyModificationIsMinor(t *testing.T) {
	edited := cartFeature()
	edited.Scenarios[0].Steps[1].Text = "the cart shows one item"

	res := Classify(snap(project(cartFeature())), snap(project(edited)))

	require.False(t, res.Blocked)
	assert.Equal(t, semver.BumpMinor, res.Bump)
	assert.Contains(t, res.ReleaseNotes, `Modified feature "Cart"`)
	assert.Contains(t, res.ReleaseNotes, `Modified scenario "Add item"`)
}

func TestClassifyScenarioAddedIsMinor(t *testing.T) {
	grown := cartFeature()
	grown.Scenarios = append(grown.Scenarios, datatypes.Scenario{
		ID:   "sc-clear",
		Name: "Clear cart",
		Steps: []datatypes.Step{
			{ID: "s-9", Keyword: datatypes.KeywordWhen, Text: "the user clears the cart"},
		},
	})

	res := Classify(snap(project(cartFeature())), snap(project(grown)))

	// feature count is unchanged, so scenario growth stays minor
	assert.Equal(t, semver.BumpMinor, res.Bump)
	assert.Contains(t, res.ReleaseNotes, `Added scenario "Clear cart"`)
	assert.Contains(t, res.ReleaseNotes, "1 steps added overall")
}

func TestClassifyNoChangesBlocked(t *testing.T) {
	res := Classify(snap(project(cartFeature())), snap(project(cartFeature())))

	assert.True(t, res.Blocked)
	assert.Equal(t, ReasonNoChanges, res.Reason)
	require.NotNil(t, res.Diff)
	assert.False(t, res.Diff.Summary.HasChanges())
}

func TestClassifyNeverPatch(t *testing.T) {
	cases := []struct {
		name string
		prev *datatypes.Snapshot
		curr *datatypes.Snapshot
	}{
		{"first release", nil, snap(project(cartFeature()))},
		{"feature added", snap(project(cartFeature())), snap(project(cartFeature(), paymentFeature()))},
		{
			"step edited",
			snap(project(cartFeature())),
			func() *datatypes.Snapshot {
				f := cartFeature()
				f.Scenarios[0].Steps[0].Text = "the shopper adds an item"
				return snap(project(f))
			}(),
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := Classify(tc.prev, tc.curr)
			require.False(t, res.Blocked)
			assert.NotEqual(t, semver.BumpPatch, res.Bump)
		})
	}
}
