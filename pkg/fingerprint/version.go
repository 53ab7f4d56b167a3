// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package fingerprint

import (
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/dlclark/regexp2"
)

// maxMatchesPerValue bounds how many successive matches of one version rule are
// inspected in a single value while looking for a non-empty capture.
const maxMatchesPerValue = 32

// VersionRule is a compiled version extraction rule.
type VersionRule struct {
	Field      FieldPath
	Pattern    string
	Offset     int
	IgnoreCase bool
	Multiline  bool
	DotAll     bool
	Label      string

	re *regexp2.Regexp
}

// NewVersionRule compiles a version rule definition. The pattern must contain
// a capture group at the configured offset.
func NewVersionRule(def VersionRuleDef, timeout time.Duration) (*VersionRule, error) {
	if def.Pattern == "" {
		return nil, fmt.Errorf("pattern is empty")
	}
	if def.Offset < 0 {
		return nil, fmt.Errorf("offset %d is negative", def.Offset)
	}

	re, err := compilePattern(def.Pattern, def.IgnoreCase, def.Multiline, def.DotAll, timeout)
	if err != nil {
		return nil, err
	}

	groups := len(re.GetGroupNumbers()) - 1
	if groups == 0 {
		return nil, fmt.Errorf("pattern has no capture group")
	}
	if def.Offset >= groups {
		return nil, fmt.Errorf("offset %d selects a missing capture group (pattern has %d)", def.Offset, groups)
	}

	return &VersionRule{
		Field:      ParseFieldPath(def.Search),
		Pattern:    def.Pattern,
		Offset:     def.Offset,
		IgnoreCase: def.IgnoreCase,
		Multiline:  def.Multiline,
		DotAll:     def.DotAll,
		Label:      strings.TrimSpace(def.Label),
		re:         re,
	}, nil
}

// Describe returns the rule label, or a generated description.
func (r *VersionRule) Describe() string {
	if r.Label != "" {
		return r.Label
	}
	return describeRule(r.Field, KindRegexp, r.Pattern, r.IgnoreCase)
}

func (r *VersionRule) key() string {
	return fmt.Sprintf("%s\x00%s\x00%d\x00%t%t%t\x00%s", r.Field, r.Pattern, r.Offset, r.IgnoreCase, r.Multiline, r.DotAll, r.Label)
}

// extract returns the first non-empty capture selected by Offset.
func (r *VersionRule) extract(v fieldValue) (string, Outcome) {
	m, err := r.re.FindRunesMatch(v.runeSlice())
	for i := 0; i < maxMatchesPerValue; i++ {
		if err != nil {
			return "", TimedOut
		}
		if m == nil {
			return "", NotMatched
		}
		if g := m.GroupByNumber(r.re.GetGroupNumbers()[r.Offset+1]); g != nil {
			if version := strings.TrimSpace(g.String()); version != "" {
				return version, Matched
			}
		}
		m, err = r.re.FindNextMatch(m)
	}
	return "", NotMatched
}

// ExtractVersion evaluates the version rules of p in declaration order and
// returns the first extracted version. Callers are expected to have matched p
// against obs first.
func ExtractVersion(obs *Observation, p *Plugin) (string, bool) {
	version, _ := p.extractVersion(newFieldView(obs))
	return version, version != ""
}

func (p *Plugin) extractVersion(view *fieldView) (string, []string) {
	return firstCapture(p.VersionRules, view)
}

// ExtractModel evaluates the model rules of p in declaration order and returns
// the first extracted model.
func ExtractModel(obs *Observation, p *Plugin) (string, bool) {
	model, _ := p.extractModel(newFieldView(obs))
	return model, model != ""
}

func (p *Plugin) extractModel(view *fieldView) (string, []string) {
	return firstCapture(p.ModelRules, view)
}

// firstCapture returns the first capture produced by rules, together with the
// rules that exhausted their budget before it was found.
func firstCapture(rules []*VersionRule, view *fieldView) (string, []string) {
	var timedOut []string
	for _, rule := range rules {
		expired := false
		for _, value := range view.resolve(rule.Field) {
			capture, outcome := rule.extract(value)
			switch outcome {
			case Matched:
				return capture, timedOut
			case TimedOut:
				expired = true
			}
		}
		if expired {
			timedOut = append(timedOut, rule.Describe())
		}
	}
	return "", timedOut
}

// VersionSatisfies reports whether version satisfies a semver constraint such
// as ">= 4.8, < 5". Versions that are not semver-like return an error.
func VersionSatisfies(version, constraint string) (bool, error) {
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return false, fmt.Errorf("invalid version constraint %q: %w", constraint, err)
	}
	v, err := semver.NewVersion(version)
	if err != nil {
		return false, fmt.Errorf("version %q is not comparable: %w", version, err)
	}
	return c.Check(v), nil
}

// CompareVersions orders two extracted versions. Semver-like versions compare
// numerically; anything else falls back to string comparison and sorts after
// parseable versions.
func CompareVersions(a, b string) int {
	va, errA := semver.NewVersion(a)
	vb, errB := semver.NewVersion(b)
	switch {
	case errA == nil && errB == nil:
		return va.Compare(vb)
	case errA == nil:
		return -1
	case errB == nil:
		return 1
	default:
		return strings.Compare(a, b)
	}
}
