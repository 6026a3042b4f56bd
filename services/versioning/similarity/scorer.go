// Copyright (C) 2025 SpecVault Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See <https://www.gnu.org/licenses/> for the full license text.

// Package similarity scores how alike two pieces of a feature tree are.
//
// All scores are normalized to [0, 1]. The package is pure computation with
// no I/O; the diff engine is its only consumer.
package similarity

import "github.com/specvault/specvault/services/versioning/datatypes"

// RenameThreshold is the score above which two differently-identified
// scenarios are treated as the same entity having been edited, not as a
// separate remove+add pair. Policy constant, not derived.
const RenameThreshold = 0.7

// stepTextThreshold is the string-similarity cutoff for two step texts to
// count as a match when their keywords agree.
const stepTextThreshold = 0.8

// Weights of the scenario score terms. Renormalized over the terms both
// sides actually have values for.
const (
	nameWeight  = 0.4
	descWeight  = 0.2
	stepsWeight = 0.4
)

// String returns 1 for equal strings, otherwise
// 1 - editDistance(a,b)/max(len(a),len(b)) with classic Levenshtein distance
// (insert/delete/substitute cost 1), computed over runes.
func String(a, b string) float64 {
	if a == b {
		return 1
	}
	ra, rb := []rune(a), []rune(b)
	longest := len(ra)
	if len(rb) > longest {
		longest = len(rb)
	}
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein(ra, rb))/float64(longest)
}

// Steps scores two step lists by set overlap, independent of order. A step
// in a matches a step in b when the keywords are equal and the texts score
// above stepTextThreshold; each b-step is consumed by at most one match.
// The score is matched / max(len(a), len(b)); 1 if both lists are empty,
// 0 if exactly one is.
func Steps(a, b []datatypes.Step) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	used := make([]bool, len(b))
	matched := 0
	for _, sa := range a {
		for j, sb := range b {
			if used[j] || sa.Keyword != sb.Keyword {
				continue
			}
			if String(sa.Text, sb.Text) > stepTextThreshold {
				used[j] = true
				matched++
				break
			}
		}
	}
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	return float64(matched) / float64(longest)
}

// Scenario scores two scenarios as a weighted sum of name, description, and
// step similarity. A term participates only when both scenarios have a
// non-empty value for it; the weights are renormalized over participating
// terms. Two scenarios with nothing to compare score 0.
func Scenario(a, b datatypes.Scenario) float64 {
	var score, weight float64

	if a.Name != "" && b.Name != "" {
		score += String(a.Name, b.Name) * nameWeight
		weight += nameWeight
	}
	if a.Description != "" && b.Description != "" {
		score += String(a.Description, b.Description) * descWeight
		weight += descWeight
	}
	if len(a.Steps) > 0 && len(b.Steps) > 0 {
		score += Steps(a.Steps, b.Steps) * stepsWeight
		weight += stepsWeight
	}

	if weight == 0 {
		return 0
	}
	return score / weight
}

// levenshtein computes edit distance with the classic two-row DP.
func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}
