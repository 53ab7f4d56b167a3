// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package commands

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/vulntor/webprint/cmd/webprint/internal/format"
)

// reportedError wraps an error whose failure summary was already printed.
type reportedError struct {
	error
}

func (e reportedError) Unwrap() error { return e.error }

// report prints the failure summary of operation and marks err as reported.
func report(formatter format.Formatter, operation string, err error) error {
	if err == nil {
		return nil
	}
	_ = formatter.PrintTotalFailureSummary(operation, err)
	return reportedError{err}
}

// Execute runs the CLI with args and returns the process exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := NewCommand()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	var reported reportedError
	if !errors.As(err, &reported) {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
	}
	return format.ExitCode(err)
}
