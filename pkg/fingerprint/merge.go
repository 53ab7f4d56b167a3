// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package fingerprint

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Report is the merged view of one plugin across several observations of the
// same target.
type Report struct {
	Plugin       string     `json:"plugin"`
	Versions     []string   `json:"versions,omitempty"`
	Models       []string   `json:"models,omitempty"`
	Category     Category   `json:"category,omitempty"`
	MatchedRules []string   `json:"matched_rules"`
	Confidence   Confidence `json:"confidence"`
	Inconclusive []string   `json:"inconclusive,omitempty"`
}

// MergeIdentifications folds identification lists (for example one per probed
// URL of a host) into one report per plugin. Reports keep the order in which
// plugins first appear; fired rules are unioned, distinct versions are sorted
// ascending, models keep first-seen order and confidence is the highest seen.
func MergeIdentifications(lists ...[]Identification) []Report {
	var reports []*Report
	index := make(map[string]int)

	for _, ids := range lists {
		for _, id := range ids {
			pos, ok := index[id.Plugin]
			if !ok {
				pos = len(reports)
				index[id.Plugin] = pos
				reports = append(reports, &Report{Plugin: id.Plugin, MatchedRules: []string{}})
			}
			r := reports[pos]
			if r.Category == "" {
				r.Category = id.Category
			}
			if id.Model != "" {
				r.Models = appendUnique(r.Models, id.Model)
			}
			r.MatchedRules = appendUnique(r.MatchedRules, id.MatchedRules...)
			r.Inconclusive = appendUnique(r.Inconclusive, id.Inconclusive...)
			if id.Version != "" {
				r.Versions = appendUnique(r.Versions, id.Version)
			}
			if id.Confidence > r.Confidence {
				r.Confidence = id.Confidence
			}
		}
	}

	out := make([]Report, 0, len(reports))
	for _, r := range reports {
		sort.SliceStable(r.Versions, func(i, j int) bool {
			return CompareVersions(r.Versions[i], r.Versions[j]) < 0
		})
		out = append(out, *r)
	}
	return out
}

// Version returns the highest version of the report, or "" if none was extracted.
func (r Report) Version() string {
	if len(r.Versions) == 0 {
		return ""
	}
	return r.Versions[len(r.Versions)-1]
}

// FilterByConfidence keeps identifications graded at least min.
func FilterByConfidence(ids []Identification, min Confidence) []Identification {
	out := make([]Identification, 0, len(ids))
	for _, id := range ids {
		if id.Confidence >= min {
			out = append(out, id)
		}
	}
	return out
}

// FilterByVersion keeps identifications whose plugin is not named in plugins,
// or whose version satisfies constraint. plugins is matched case-insensitively;
// an empty list applies the constraint to every identification that carries a
// version. Identifications without a version never satisfy a constraint.
func FilterByVersion(ids []Identification, constraint string, plugins ...string) ([]Identification, error) {
	if strings.TrimSpace(constraint) == "" {
		return ids, nil
	}
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return nil, fmt.Errorf("invalid version constraint %q: %w", constraint, err)
	}
	scoped := make(map[string]bool, len(plugins))
	for _, p := range plugins {
		scoped[strings.ToLower(strings.TrimSpace(p))] = true
	}

	out := make([]Identification, 0, len(ids))
	for _, id := range ids {
		if len(scoped) > 0 && !scoped[strings.ToLower(id.Plugin)] {
			out = append(out, id)
			continue
		}
		if id.Version == "" {
			continue
		}
		v, err := semver.NewVersion(id.Version)
		if err != nil {
			continue
		}
		if c.Check(v) {
			out = append(out, id)
		}
	}
	return out, nil
}
