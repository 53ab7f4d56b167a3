// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package format

import (
	"errors"
	"fmt"

	"github.com/vulntor/webprint/pkg/fingerprint"
)

// Command error codes. Catalog errors keep the codes of package fingerprint.
const (
	CodeInvalidArgument = "INVALID_ARGUMENT"
	CodeObservation     = "OBSERVATION_UNREADABLE"
	CodeScanFailed      = "SCAN_FAILED"
	CodeCommandFailed   = "COMMAND_FAILED"
)

var fingerprintErrors = []error{
	fingerprint.ErrInvalidDefinition,
	fingerprint.ErrEmptyCatalog,
	fingerprint.ErrSourceRequired,
	fingerprint.ErrSourceConflict,
	fingerprint.ErrStorageDisabled,
}

// WithCode attaches a command error code to err.
func WithCode(err error, code string) error {
	return fingerprint.WithErrorCode(err, code)
}

// InvalidArgument marks err as a usage error.
func InvalidArgument(format string, args ...any) error {
	return WithCode(fmt.Errorf(format, args...), CodeInvalidArgument)
}

// ErrorCode resolves err to the code shown in failure summaries.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var coded interface{ Code() string }
	if errors.As(err, &coded) && coded.Code() != "" {
		return coded.Code()
	}
	for _, sentinel := range fingerprintErrors {
		if errors.Is(err, sentinel) {
			return fingerprint.ErrorCode(err)
		}
	}
	return CodeCommandFailed
}

// ExitCode maps err to the process exit status.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if ErrorCode(err) == CodeInvalidArgument {
		return 2
	}
	return fingerprint.ExitCode(err)
}

var suggestionGenerators = map[string][]string{
	CodeInvalidArgument: {
		"Run help for options:      webprint <command> --help",
	},
	CodeObservation: {
		"Observation files are JSON (.json) or raw HTTP responses (curl -i output)",
		"Check the file path and permissions",
	},
	CodeScanFailed: {
		"Retry with debug logs:     webprint scan --debug <files>",
		"Raise the regex budget:    webprint scan --rule-timeout 500ms <files>",
	},
}

// GetSuggestions returns actionable hints for err.
func GetSuggestions(err error) []string {
	code := ErrorCode(err)
	if hints, ok := suggestionGenerators[code]; ok {
		return hints
	}
	if code == CodeCommandFailed {
		return nil
	}
	return fingerprint.Suggestions(err)
}
