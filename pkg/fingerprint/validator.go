// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package fingerprint

import (
	"errors"
	"fmt"
	"strings"
)

// Validation severities.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// ValidationError is one lint finding.
type ValidationError struct {
	Plugin   string // plugin name, may be empty
	Source   string // originating file, if known
	Field    string // field path inside the definition
	Message  string
	Severity string // "error" or "warning"
}

func (e ValidationError) String() string {
	name := e.Plugin
	if name == "" {
		name = "<unnamed>"
	}
	if e.Field == "" {
		return fmt.Sprintf("[%s] %s: %s", e.Severity, name, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s: %s", e.Severity, name, e.Field, e.Message)
}

// ValidationResult contains the findings of one lint run.
type ValidationResult struct {
	Errors      []ValidationError
	Warnings    []ValidationError
	PluginCount int
	Strict      bool
}

// IsValid returns true if there are no errors. In strict mode warnings also
// invalidate the result.
func (r *ValidationResult) IsValid() bool {
	if r.Strict && len(r.Warnings) > 0 {
		return false
	}
	return len(r.Errors) == 0
}

// Err summarizes an invalid result as an error.
func (r *ValidationResult) Err() error {
	if r.IsValid() {
		return nil
	}
	return WithErrorCode(
		fmt.Errorf("%w: %d errors, %d warnings", ErrInvalidDefinition, len(r.Errors), len(r.Warnings)),
		errorCodeInvalidDefinition,
	)
}

// Validator lints signature definitions. Errors are exactly the conditions that
// make BuildCatalog reject a definition; warnings flag definitions that load but
// are incomplete or will never match.
type Validator struct {
	strict bool // Treat warnings as errors
}

// NewValidator creates a new Validator instance.
func NewValidator(strict bool) *Validator {
	return &Validator{strict: strict}
}

// Validate lints defs.
func (v *Validator) Validate(defs []Definition) *ValidationResult {
	result := &ValidationResult{
		Errors:      make([]ValidationError, 0),
		Warnings:    make([]ValidationError, 0),
		PluginCount: len(defs),
		Strict:      v.strict,
	}

	seen := make(map[string]string)
	for i := range defs {
		def := &defs[i]
		name := strings.TrimSpace(def.Name)

		_, loadWarnings, err := compileDefinition(i, def, 0)
		if err != nil {
			var le *LoadError
			if errors.As(err, &le) {
				result.Errors = append(result.Errors, ValidationError{
					Plugin: name, Source: def.Source, Field: le.Field, Message: le.Reason, Severity: SeverityError,
				})
			}
			continue
		}
		for _, w := range loadWarnings {
			result.Warnings = append(result.Warnings, ValidationError{
				Plugin: name, Source: def.Source, Field: w.Field, Message: w.Message, Severity: SeverityWarning,
			})
		}

		v.validateMetadata(def, result)
		v.validateLabels(def, result)

		if first, dup := seen[name]; dup {
			result.Warnings = append(result.Warnings, ValidationError{
				Plugin:   name,
				Source:   def.Source,
				Field:    "name",
				Message:  fmt.Sprintf("duplicate definition (first in %s) will be merged", orUnknown(first)),
				Severity: SeverityWarning,
			})
		} else {
			seen[name] = def.Source
		}
	}

	return result
}

// validateMetadata flags descriptive fields that are recommended but optional.
func (v *Validator) validateMetadata(def *Definition, result *ValidationResult) {
	recommended := []struct {
		field string
		empty bool
	}{
		{"description", strings.TrimSpace(def.Description) == ""},
		{"website", strings.TrimSpace(def.Website) == ""},
		{"authors", len(def.Authors) == 0},
	}
	for _, r := range recommended {
		if r.empty {
			result.Warnings = append(result.Warnings, ValidationError{
				Plugin:   strings.TrimSpace(def.Name),
				Source:   def.Source,
				Field:    r.field,
				Message:  fmt.Sprintf("%s field is empty (recommended)", r.field),
				Severity: SeverityWarning,
			})
		}
	}
}

// validateLabels flags rules without a label; generated descriptions are less
// readable in audit trails.
func (v *Validator) validateLabels(def *Definition, result *ValidationResult) {
	for i, m := range def.Matches {
		if strings.TrimSpace(m.Label) == "" {
			result.Warnings = append(result.Warnings, ValidationError{
				Plugin:   strings.TrimSpace(def.Name),
				Source:   def.Source,
				Field:    fmt.Sprintf("matches[%d].label", i),
				Message:  "matcher has no label",
				Severity: SeverityWarning,
			})
		}
	}
}

func orUnknown(s string) string {
	if s == "" {
		return "an earlier definition"
	}
	return s
}
