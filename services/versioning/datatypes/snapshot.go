// Copyright (C) 2025 SpecVault Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See <https://www.gnu.org/licenses/> for the full license text.

// Package datatypes defines the closed schema for SpecVault's document model.
//
// The upstream editor produces loosely-typed JSON; everything entering the
// versioning core is normalized into these value types exactly once, at this
// package's boundary. Downstream components (snapshot builder, diff engine,
// classifier) treat the types as immutable values and never mutate them.
//
// # Ownership Model
//
//   - A Snapshot is owned exclusively by the ProjectVersion row that stores it.
//   - Snapshots MUST NOT be mutated after construction.
//   - Slices inside a normalized tree are never nil (empty instead), so
//     consumers can range without nil checks.
package datatypes

import "time"

// StepKeyword is the Gherkin keyword of a step. The set is closed.
type StepKeyword string

const (
	KeywordGiven StepKeyword = "Given"
	KeywordWhen  StepKeyword = "When"
	KeywordThen  StepKeyword = "Then"
	KeywordAnd   StepKeyword = "And"
	KeywordBut   StepKeyword = "But"
)

// IsValid reports whether k is one of the five known keywords.
func (k StepKeyword) IsValid() bool {
	switch k {
	case KeywordGiven, KeywordWhen, KeywordThen, KeywordAnd, KeywordBut:
		return true
	}
	return false
}

// ScenarioType distinguishes plain scenarios from outlines.
type ScenarioType string

const (
	TypeScenario        ScenarioType = "scenario"
	TypeScenarioOutline ScenarioType = "scenario-outline"
)

// Step is a single Gherkin step. Order within the parent scenario or
// background is significant and preserved as slice order.
type Step struct {
	ID        string      `json:"id" validate:"required"`
	Keyword   StepKeyword `json:"keyword" validate:"required,oneof=Given When Then And But"`
	Text      string      `json:"text"`
	DataTable [][]string  `json:"dataTable,omitempty"`
	DocString string      `json:"docString,omitempty"`
}

// ExampleRow is one row of a scenario outline's examples table.
type ExampleRow struct {
	Values []string `json:"values"`
}

// Examples holds a scenario outline's examples table. Every row's Values
// length should equal len(Headers); upstream does not always enforce this,
// so consumers must not assume it.
type Examples struct {
	Headers []string     `json:"headers"`
	Rows    []ExampleRow `json:"rows"`
}

// Scenario is a named group of steps. Examples is present only when Type is
// scenario-outline.
type Scenario struct {
	ID          string       `json:"id" validate:"required"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Type        ScenarioType `json:"type" validate:"omitempty,oneof=scenario scenario-outline"`
	Tags        []string     `json:"tags"`
	Steps       []Step       `json:"steps" validate:"dive"`
	Examples    *Examples    `json:"examples,omitempty"`
}

// Background holds steps shared implicitly by all scenarios of a feature.
// At most one per feature.
type Background struct {
	ID          string `json:"id"`
	Description string `json:"description,omitempty"`
	Steps       []Step `json:"steps" validate:"dive"`
}

// Feature is the top document unit. Identity is the stable opaque ID
// assigned at creation; Order determines document position and is unique
// within a project (ties broken by insertion order upstream).
type Feature struct {
	ID          string      `json:"id" validate:"required"`
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Tags        []string    `json:"tags"`
	Order       int         `json:"order"`
	Background  *Background `json:"background,omitempty"`
	Scenarios   []Scenario  `json:"scenarios" validate:"dive"`
}

// ProjectInfo is the project header captured into a snapshot.
type ProjectInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status,omitempty"`
}

// Project is a live project tree as submitted for publication. Associations
// (features, scenarios, steps, backgrounds) must already be loaded; the core
// performs no I/O to complete them.
//
// The ID must not contain ':' (0x3A); it is embedded in composite storage
// keys that use that separator.
type Project struct {
	ID          string    `json:"id" validate:"required,excludesall=0x3A"`
	Name        string    `json:"name" validate:"required"`
	Description string    `json:"description,omitempty"`
	Status      string    `json:"status,omitempty"`
	IsLocked    bool      `json:"isLocked,omitempty"`
	Features    []Feature `json:"features" validate:"dive"`
}

// SnapshotMetadata carries aggregate counters computed at build time.
type SnapshotMetadata struct {
	TotalFeatures  int       `json:"totalFeatures"`
	TotalScenarios int       `json:"totalScenarios"`
	TotalSteps     int       `json:"totalSteps"`
	Timestamp      time.Time `json:"timestamp"`
}

// Snapshot is an immutable point-in-time capture of a project's full feature
// tree plus aggregate counts. Built fresh on every publish, never mutated
// afterwards.
type Snapshot struct {
	Project  ProjectInfo      `json:"project"`
	Features []Feature        `json:"features"`
	Metadata SnapshotMetadata `json:"metadata"`
}

// ChangeSummary aggregates diff counts at feature and scenario granularity.
// It is the fixed shape stored as a ProjectVersion's changesSummary.
type ChangeSummary struct {
	AddedFeatures      int `json:"addedFeatures"`
	RemovedFeatures    int `json:"removedFeatures"`
	ModifiedFeatures   int `json:"modifiedFeatures"`
	UnchangedFeatures  int `json:"unchangedFeatures"`
	AddedScenarios     int `json:"addedScenarios"`
	RemovedScenarios   int `json:"removedScenarios"`
	ModifiedScenarios  int `json:"modifiedScenarios"`
	UnchangedScenarios int `json:"unchangedScenarios"`
}

// HasChanges reports whether any add/remove/modify was recorded at either
// granularity. Unchanged counts are informational and do not count.
func (s ChangeSummary) HasChanges() bool {
	return s.AddedFeatures > 0 || s.RemovedFeatures > 0 || s.ModifiedFeatures > 0 ||
		s.AddedScenarios > 0 || s.RemovedScenarios > 0 || s.ModifiedScenarios > 0
}
