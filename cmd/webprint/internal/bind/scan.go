// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package bind turns cobra flags into validated command options.
package bind

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/vulntor/webprint/cmd/webprint/internal/format"
	"github.com/vulntor/webprint/pkg/fingerprint"
)

// ScanOptions holds the validated options of the scan command.
type ScanOptions struct {
	Files             []string
	Output            format.OutputMode
	MinConfidence     fingerprint.Confidence
	VersionConstraint string
	VersionPlugins    []string
	PerObservation    bool
	Watch             bool
}

// BindScanOptions extracts and validates scan flags.
//
// Flags read:
//   - --output: table or json
//   - --min-confidence: inconclusive, low or high
//   - --version-constraint: semver constraint such as ">= 9, < 10"
//   - --version-plugin: plugins the constraint applies to (default: all)
//   - --per-observation: report every observation separately
//   - --watch: rescan when signature files change
func BindScanOptions(cmd *cobra.Command, args []string) (ScanOptions, error) {
	output, _ := cmd.Flags().GetString("output")
	minConfidence, _ := cmd.Flags().GetString("min-confidence")
	constraint, _ := cmd.Flags().GetString("version-constraint")
	plugins, _ := cmd.Flags().GetStringSlice("version-plugin")
	perObservation, _ := cmd.Flags().GetBool("per-observation")
	watch, _ := cmd.Flags().GetBool("watch")

	opts := ScanOptions{
		Files:             args,
		VersionConstraint: strings.TrimSpace(constraint),
		VersionPlugins:    plugins,
		PerObservation:    perObservation,
		Watch:             watch,
	}

	if len(args) == 0 {
		return opts, format.InvalidArgument("at least one observation file is required")
	}

	if output == "" {
		output = string(format.ModeTable)
	}
	if err := format.ValidateMode(output); err != nil {
		return opts, format.WithCode(err, format.CodeInvalidArgument)
	}
	opts.Output = format.ParseMode(output)

	if minConfidence == "" {
		minConfidence = fingerprint.ConfidenceLow.String()
	}
	conf, err := fingerprint.ParseConfidence(minConfidence)
	if err != nil {
		return opts, format.WithCode(err, format.CodeInvalidArgument)
	}
	opts.MinConfidence = conf

	if opts.VersionConstraint != "" {
		if _, err := fingerprint.FilterByVersion(nil, opts.VersionConstraint); err != nil {
			return opts, format.WithCode(err, format.CodeInvalidArgument)
		}
	} else if len(plugins) > 0 {
		return opts, format.InvalidArgument("--version-plugin requires --version-constraint")
	}

	return opts, nil
}
