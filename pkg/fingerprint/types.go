// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package fingerprint identifies web software from an already-collected observation of a
// target. Signatures (plugins) are compiled once into an immutable Catalog and then matched
// against any number of observations.
//
// The core types include:
//   - Definition: a parsed, not yet validated signature as handed over by a loader.
//   - Plugin: a validated, compiled signature held by a Catalog.
//   - Observation: the probed surface of one target (headers, body, cookies, TLS).
//   - Identification: one matched plugin with the rules that fired and the extracted version.
package fingerprint

import (
	"fmt"
	"strings"
)

// MatchKind selects how a matcher pattern is applied to a field value.
type MatchKind string

const (
	// KindText is plain substring containment.
	KindText MatchKind = "text"
	// KindRegexp is a regular expression search.
	KindRegexp MatchKind = "regexp"
)

// Definition is a signature as produced by a catalog loader. It is validated and
// compiled by BuildCatalog.
type Definition struct {
	Name        string           `yaml:"name" json:"name" validate:"required"`
	Authors     []string         `yaml:"authors,omitempty" json:"authors,omitempty"`
	Description string           `yaml:"description,omitempty" json:"description,omitempty"`
	Website     string           `yaml:"website,omitempty" json:"website,omitempty"`
	Revision    string           `yaml:"revision,omitempty" json:"revision,omitempty"`
	Matches     []MatcherDef     `yaml:"matches" json:"matches" validate:"required,min=1,dive"`
	Versions    []VersionRuleDef `yaml:"version,omitempty" json:"version,omitempty" validate:"dive"`

	// Models extract a product model (for example a router line) the same way
	// Versions extract a version.
	Models []VersionRuleDef `yaml:"model,omitempty" json:"model,omitempty" validate:"dive"`

	// Category overrides the category derived from the plugin name.
	Category Category `yaml:"category,omitempty" json:"category,omitempty"`

	// Source names the file or bundle the definition came from (informational).
	Source string `yaml:"-" json:"-"`
}

// MatcherDef is one detection rule of a Definition.
type MatcherDef struct {
	Search     string    `yaml:"search,omitempty" json:"search,omitempty"` // field path, defaults to body
	Kind       MatchKind `yaml:"kind" json:"kind" validate:"required,oneof=text regexp"`
	Pattern    string    `yaml:"pattern" json:"pattern" validate:"required"`
	IgnoreCase bool      `yaml:"ignore_case,omitempty" json:"ignore_case,omitempty"`
	Multiline  bool      `yaml:"multiline,omitempty" json:"multiline,omitempty"` // ^ and $ match at line breaks
	DotAll     bool      `yaml:"dot_all,omitempty" json:"dot_all,omitempty"`     // . matches newlines
	Label      string    `yaml:"label,omitempty" json:"label,omitempty"`
}

// VersionRuleDef is one version extraction strategy of a Definition.
type VersionRuleDef struct {
	Search     string `yaml:"search,omitempty" json:"search,omitempty"`
	Pattern    string `yaml:"pattern" json:"pattern" validate:"required"`
	Offset     int    `yaml:"offset,omitempty" json:"offset,omitempty" validate:"min=0"` // 0-based capture group index
	IgnoreCase bool   `yaml:"ignore_case,omitempty" json:"ignore_case,omitempty"`
	Multiline  bool   `yaml:"multiline,omitempty" json:"multiline,omitempty"`
	DotAll     bool   `yaml:"dot_all,omitempty" json:"dot_all,omitempty"`
	Label      string `yaml:"label,omitempty" json:"label,omitempty"`
}

// Plugin is a compiled signature. Plugins are owned by a Catalog and must not be
// modified once the catalog has been built.
type Plugin struct {
	Name         string
	Authors      []string
	Description  string
	Website      string
	Revision     string
	Category     Category
	Sources      []string
	Matchers     []*Matcher
	VersionRules []*VersionRule
	ModelRules   []*VersionRule
}

// TLSInfo holds the certificate attributes of a TLS observation.
type TLSInfo struct {
	Issuer  string   `json:"issuer,omitempty"`
	Subject string   `json:"subject,omitempty"`
	SANs    []string `json:"san,omitempty"`
}

// Observation is the collected surface of one target. Header names are matched
// case-insensitively. Title and head are derived from Body when needed.
type Observation struct {
	Target  string              `json:"target,omitempty"`
	Headers map[string][]string `json:"headers,omitempty"`
	Body    string              `json:"body,omitempty"`
	// Cookies maps cookie name to value. When nil, cookies are derived from the
	// Set-Cookie response headers.
	Cookies map[string]string `json:"cookies,omitempty"`
	TLS     *TLSInfo          `json:"tls,omitempty"`
}

// Confidence is an ordinal grade of an identification.
type Confidence int

const (
	// ConfidenceInconclusive marks a plugin that did not match but could not be
	// cleared because at least one of its rules exhausted its evaluation budget.
	ConfidenceInconclusive Confidence = iota
	// ConfidenceLow is a single fired matcher without a version.
	ConfidenceLow
	// ConfidenceHigh is two or more fired matchers, or any extracted version.
	ConfidenceHigh
)

var confidenceNames = map[Confidence]string{
	ConfidenceInconclusive: "inconclusive",
	ConfidenceLow:          "low",
	ConfidenceHigh:         "high",
}

func (c Confidence) String() string {
	if name, ok := confidenceNames[c]; ok {
		return name
	}
	return fmt.Sprintf("confidence(%d)", int(c))
}

// MarshalText implements encoding.TextMarshaler.
func (c Confidence) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Confidence) UnmarshalText(text []byte) error {
	parsed, err := ParseConfidence(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ParseConfidence converts a confidence name into a Confidence.
func ParseConfidence(s string) (Confidence, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "inconclusive":
		return ConfidenceInconclusive, nil
	case "low":
		return ConfidenceLow, nil
	case "high":
		return ConfidenceHigh, nil
	default:
		return 0, fmt.Errorf("invalid confidence %q (must be inconclusive, low or high)", s)
	}
}

// confidenceFor grades a matched plugin. It is monotonic in the number of fired
// matchers and in version presence.
func confidenceFor(fired int, hasVersion bool) Confidence {
	if fired >= 2 || (fired >= 1 && hasVersion) {
		return ConfidenceHigh
	}
	if fired == 1 {
		return ConfidenceLow
	}
	return ConfidenceInconclusive
}

// Identification is the engine output for one plugin.
type Identification struct {
	Plugin       string     `json:"plugin"`
	MatchedRules []string   `json:"matched_rules"`
	Version      string     `json:"version,omitempty"`
	Model        string     `json:"model,omitempty"`
	Category     Category   `json:"category,omitempty"`
	Confidence   Confidence `json:"confidence"`
	// Inconclusive lists rules that exhausted their evaluation budget.
	Inconclusive []string `json:"inconclusive,omitempty"`
}

// Matched reports whether at least one matcher of the plugin fired.
func (id Identification) Matched() bool {
	return len(id.MatchedRules) > 0
}
