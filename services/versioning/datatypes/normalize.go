// Copyright (C) 2025 SpecVault Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See <https://www.gnu.org/licenses/> for the full license text.

package datatypes

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ValidateProject checks the structural requirements of a submitted project
// tree: project and entity IDs present, keywords drawn from the closed set.
//
// Missing collections are NOT an error here; Normalize coerces them to empty.
// This trades strictness for robustness against partially-formed upstream
// data, which is the documented contract of the snapshot boundary.
func ValidateProject(p *Project) error {
	if p == nil {
		return fmt.Errorf("project is nil")
	}
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("invalid project tree: %w", err)
	}
	return nil
}

// NormalizeProject returns a copy of p with every nil collection replaced by
// an empty one and scenario types defaulted. The input is not mutated.
//
// A project with zero features normalizes to a valid tree with zero counts;
// whether such a tree is publishable is a lifecycle decision, not a schema
// one.
func NormalizeProject(p *Project) *Project {
	if p == nil {
		return &Project{Features: []Feature{}}
	}
	out := *p
	out.Features = NormalizeFeatures(p.Features)
	return &out
}

// NormalizeFeatures deep-copies a feature list, coercing nil slices to empty
// at every level.
func NormalizeFeatures(features []Feature) []Feature {
	out := make([]Feature, 0, len(features))
	for _, f := range features {
		nf := f
		nf.Tags = copyStrings(f.Tags)
		nf.Scenarios = make([]Scenario, 0, len(f.Scenarios))
		for _, s := range f.Scenarios {
			nf.Scenarios = append(nf.Scenarios, normalizeScenario(s))
		}
		if f.Background != nil {
			bg := *f.Background
			bg.Steps = normalizeSteps(f.Background.Steps)
			nf.Background = &bg
		}
		out = append(out, nf)
	}
	return out
}

func normalizeScenario(s Scenario) Scenario {
	ns := s
	if ns.Type == "" {
		ns.Type = TypeScenario
	}
	ns.Tags = copyStrings(s.Tags)
	ns.Steps = normalizeSteps(s.Steps)
	if s.Examples != nil {
		ex := Examples{
			Headers: copyStrings(s.Examples.Headers),
			Rows:    make([]ExampleRow, 0, len(s.Examples.Rows)),
		}
		for _, r := range s.Examples.Rows {
			ex.Rows = append(ex.Rows, ExampleRow{Values: copyStrings(r.Values)})
		}
		ns.Examples = &ex
	}
	return ns
}

func normalizeSteps(steps []Step) []Step {
	out := make([]Step, 0, len(steps))
	for _, st := range steps {
		ns := st
		if st.DataTable != nil {
			table := make([][]string, 0, len(st.DataTable))
			for _, row := range st.DataTable {
				table = append(table, copyStrings(row))
			}
			ns.DataTable = table
		}
		out = append(out, ns)
	}
	return out
}

func copyStrings(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}
