// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package fingerprint

import (
	"errors"
	"fmt"
	"strings"
)

const (
	errorCodeInvalidDefinition = "FINGERPRINT_INVALID_DEFINITION"
	errorCodeEmptyCatalog      = "FINGERPRINT_EMPTY_CATALOG"
	errorCodeSourceRequired    = "FINGERPRINT_SOURCE_REQUIRED"
	errorCodeSourceConflict    = "FINGERPRINT_SOURCE_CONFLICT"
	errorCodeStorageDisabled   = "FINGERPRINT_STORAGE_DISABLED"
	errorCodeSyncFailed        = "FINGERPRINT_SYNC_FAILED"
)

var (
	// ErrInvalidDefinition is wrapped by every LoadError.
	ErrInvalidDefinition = errors.New("invalid signature definition")
	// ErrEmptyCatalog indicates that no plugin survived validation.
	ErrEmptyCatalog = errors.New("catalog contains no valid plugins")
	// ErrSourceRequired indicates neither --file nor --url was provided.
	ErrSourceRequired = errors.New("source required")
	// ErrSourceConflict indicates both --file and --url were provided.
	ErrSourceConflict = errors.New("multiple sources provided")
	// ErrStorageDisabled indicates there is no cache directory to sync into.
	ErrStorageDisabled = errors.New("storage disabled")
)

// LoadError describes a definition rejected while building a catalog.
type LoadError struct {
	Index  int    // position of the definition in the input
	Name   string // plugin name, possibly empty
	Source string // originating file, if known
	Field  string // offending field, e.g. "matches[1].pattern"
	Reason string
}

func (e *LoadError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "definition #%d", e.Index)
	if e.Name != "" {
		fmt.Fprintf(&b, " %q", e.Name)
	}
	if e.Source != "" {
		fmt.Fprintf(&b, " (%s)", e.Source)
	}
	if e.Field != "" {
		fmt.Fprintf(&b, ": %s", e.Field)
	}
	fmt.Fprintf(&b, ": %s", e.Reason)
	return b.String()
}

func (e *LoadError) Unwrap() error {
	return ErrInvalidDefinition
}

// LoadErrors aggregates the rejections of one catalog build. It is returned
// alongside a usable catalog.
type LoadErrors struct {
	Errors []*LoadError
	// Empty is set when no plugin survived validation.
	Empty bool
}

func (e *LoadErrors) Error() string {
	var parts []string
	if e.Empty {
		parts = append(parts, ErrEmptyCatalog.Error())
	}
	switch n := len(e.Errors); {
	case n == 1:
		parts = append(parts, e.Errors[0].Error())
	case n > 1:
		parts = append(parts, fmt.Sprintf("%d definitions rejected (first: %s)", n, e.Errors[0].Error()))
	}
	return strings.Join(parts, "; ")
}

// Unwrap exposes every LoadError, plus ErrEmptyCatalog when applicable, to errors.Is/As.
func (e *LoadErrors) Unwrap() []error {
	errs := make([]error, 0, len(e.Errors)+1)
	if e.Empty {
		errs = append(errs, ErrEmptyCatalog)
	}
	for _, le := range e.Errors {
		errs = append(errs, le)
	}
	return errs
}

type errorCoder interface {
	error
	Code() string
}

type withCodeError struct {
	error
	code string
}

func (e *withCodeError) Code() string {
	return e.code
}

func (e *withCodeError) Unwrap() error {
	return e.error
}

// WithErrorCode annotates err with a fingerprint error code.
func WithErrorCode(err error, code string) error {
	if err == nil {
		return nil
	}
	return &withCodeError{error: err, code: code}
}

// NewSourceRequiredError formats a missing source error.
func NewSourceRequiredError() error {
	return WithErrorCode(fmt.Errorf("%w: either --file or --url must be provided", ErrSourceRequired), errorCodeSourceRequired)
}

// NewSourceConflictError formats a conflicting source error.
func NewSourceConflictError() error {
	return WithErrorCode(fmt.Errorf("%w: only one of --file or --url may be provided at a time", ErrSourceConflict), errorCodeSourceConflict)
}

// NewStorageDisabledError formats a storage disabled error.
func NewStorageDisabledError() error {
	return WithErrorCode(fmt.Errorf("%w: workspace disabled; specify --cache-dir", ErrStorageDisabled), errorCodeStorageDisabled)
}

// WrapSyncError annotates a sync failure.
func WrapSyncError(err error) error {
	if err == nil {
		return nil
	}
	return WithErrorCode(err, errorCodeSyncFailed)
}

// ErrorCode resolves an error to its fingerprint error code.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}

	var coded errorCoder
	if errors.As(err, &coded) {
		if code := coded.Code(); code != "" {
			return code
		}
	}

	switch {
	case errors.Is(err, ErrSourceRequired):
		return errorCodeSourceRequired
	case errors.Is(err, ErrSourceConflict):
		return errorCodeSourceConflict
	case errors.Is(err, ErrStorageDisabled):
		return errorCodeStorageDisabled
	case errors.Is(err, ErrEmptyCatalog):
		return errorCodeEmptyCatalog
	case errors.Is(err, ErrInvalidDefinition):
		return errorCodeInvalidDefinition
	default:
		return errorCodeSyncFailed
	}
}

// ExitCode maps fingerprint errors to CLI exit codes.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}

	switch {
	case errors.Is(err, ErrSourceRequired),
		errors.Is(err, ErrSourceConflict):
		return 2
	case errors.Is(err, ErrEmptyCatalog):
		return 3
	case errors.Is(err, ErrInvalidDefinition):
		return 4
	case errors.Is(err, ErrStorageDisabled):
		return 7
	default:
		return 1
	}
}

// Suggestions provides CLI hints for fingerprint errors.
func Suggestions(err error) []string {
	if err == nil {
		return nil
	}

	switch ErrorCode(err) {
	case errorCodeSourceRequired:
		return []string{
			"Provide a source:          --file <path> or --url <address>",
			"Example:                   webprint catalog sync --url https://example/signatures.yaml",
		}
	case errorCodeSourceConflict:
		return []string{
			"Use only one source flag",
			"Remove either --file or --url",
		}
	case errorCodeStorageDisabled:
		return []string{
			"Set cache directory:       webprint catalog sync --cache-dir <path>",
			"Drop --no-workspace to use the workspace cache",
		}
	case errorCodeEmptyCatalog:
		return []string{
			"Check the signature paths: webprint catalog validate <path>",
			"Enable builtin signatures: --builtin",
		}
	case errorCodeInvalidDefinition:
		return []string{
			"Inspect rejected definitions: webprint catalog validate --strict <path>",
		}
	case errorCodeSyncFailed:
		return []string{
			"Retry with --url pointing to a reachable signature bundle",
			"Check network connectivity and cache directory permissions",
		}
	default:
		return nil
	}
}
