// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package fingerprint

import (
	"fmt"
	"strings"
	"time"

	"github.com/dlclark/regexp2"

	"github.com/vulntor/webprint/pkg/stringutil"
)

// DefaultRuleTimeout bounds a single regular expression evaluation.
const DefaultRuleTimeout = 100 * time.Millisecond

const describePatternMax = 64

// Outcome is the result of evaluating one rule against one value.
type Outcome int

const (
	NotMatched Outcome = iota
	Matched
	// TimedOut means the rule exhausted its evaluation budget; it counts as not matching.
	TimedOut
)

func (o Outcome) String() string {
	switch o {
	case Matched:
		return "matched"
	case TimedOut:
		return "timeout"
	default:
		return "not_matched"
	}
}

// Matcher is a compiled detection rule.
type Matcher struct {
	Field      FieldPath
	Kind       MatchKind
	Pattern    string
	IgnoreCase bool
	Multiline  bool
	DotAll     bool
	Label      string

	folded string
	re     *regexp2.Regexp
}

// NewMatcher compiles a matcher definition. timeout bounds each regular
// expression evaluation; zero or negative disables the bound.
func NewMatcher(def MatcherDef, timeout time.Duration) (*Matcher, error) {
	m := &Matcher{
		Field:      ParseFieldPath(def.Search),
		Kind:       def.Kind,
		Pattern:    def.Pattern,
		IgnoreCase: def.IgnoreCase,
		Multiline:  def.Multiline,
		DotAll:     def.DotAll,
		Label:      strings.TrimSpace(def.Label),
	}

	if def.Pattern == "" {
		return nil, fmt.Errorf("pattern is empty")
	}

	switch def.Kind {
	case KindText:
		if def.IgnoreCase {
			m.folded = strings.ToLower(def.Pattern)
		}
	case KindRegexp:
		re, err := compilePattern(def.Pattern, def.IgnoreCase, def.Multiline, def.DotAll, timeout)
		if err != nil {
			return nil, err
		}
		m.re = re
	default:
		return nil, fmt.Errorf("unknown match kind %q", def.Kind)
	}
	return m, nil
}

// Describe returns the rule label, or a generated description when the rule has none.
func (m *Matcher) Describe() string {
	if m.Label != "" {
		return m.Label
	}
	return describeRule(m.Field, m.Kind, m.Pattern, m.IgnoreCase)
}

// key identifies a matcher for merge deduplication.
func (m *Matcher) key() string {
	return fmt.Sprintf("%s\x00%s\x00%s\x00%t%t%t\x00%s", m.Field, m.Kind, m.Pattern, m.IgnoreCase, m.Multiline, m.DotAll, m.Label)
}

// Evaluate reports whether matcher m accepts value. A rule that exceeds its
// evaluation budget does not match.
func Evaluate(value string, m *Matcher) bool {
	return m.check(plainValue(value)) == Matched
}

func (m *Matcher) check(v fieldValue) Outcome {
	switch m.Kind {
	case KindText:
		if m.IgnoreCase {
			return boolOutcome(strings.Contains(v.fold(), m.folded))
		}
		return boolOutcome(strings.Contains(v.raw, m.Pattern))
	case KindRegexp:
		ok, err := m.re.MatchRunes(v.runeSlice())
		if err != nil {
			return TimedOut
		}
		return boolOutcome(ok)
	default:
		return NotMatched
	}
}

func boolOutcome(ok bool) Outcome {
	if ok {
		return Matched
	}
	return NotMatched
}

func compilePattern(pattern string, ignoreCase, multiline, dotAll bool, timeout time.Duration) (*regexp2.Regexp, error) {
	opts := regexp2.None
	if ignoreCase {
		opts |= regexp2.IgnoreCase
	}
	if multiline {
		opts |= regexp2.Multiline
	}
	if dotAll {
		opts |= regexp2.Singleline
	}

	re, err := regexp2.Compile(pattern, opts)
	if err != nil {
		return nil, fmt.Errorf("invalid regexp: %w", err)
	}
	if timeout > 0 {
		re.MatchTimeout = timeout
	}
	return re, nil
}

func describeRule(field FieldPath, kind MatchKind, pattern string, ignoreCase bool) string {
	short := stringutil.Ellipsis(pattern, describePatternMax)
	if kind == KindText {
		if ignoreCase {
			return fmt.Sprintf("%s contains %q (case-insensitive)", field, short)
		}
		return fmt.Sprintf("%s contains %q", field, short)
	}
	flags := ""
	if ignoreCase {
		flags = "i"
	}
	return fmt.Sprintf("%s =~ /%s/%s", field, short, flags)
}
