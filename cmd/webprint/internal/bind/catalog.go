// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package bind

import (
	"github.com/spf13/cobra"

	"github.com/vulntor/webprint/pkg/fingerprint"
)

// SyncOptions holds configuration options for the catalog sync command.
type SyncOptions struct {
	FilePath string
	URL      string
	CacheDir string
}

// BindSyncOptions extracts and validates catalog sync flags.
//
// Flags read:
//   - --file: load the signature bundle from a local file
//   - --url: download the signature bundle from a remote URL
//   - --cache-dir: override the cache destination directory
//
// Exactly one of --file and --url must be set.
func BindSyncOptions(cmd *cobra.Command) (SyncOptions, error) {
	filePath, _ := cmd.Flags().GetString("file")
	url, _ := cmd.Flags().GetString("url")
	cacheDir, _ := cmd.Flags().GetString("cache-dir")

	opts := SyncOptions{
		FilePath: filePath,
		URL:      url,
		CacheDir: cacheDir,
	}

	if filePath == "" && url == "" {
		return opts, fingerprint.NewSourceRequiredError()
	}

	if filePath != "" && url != "" {
		return opts, fingerprint.NewSourceConflictError()
	}

	return opts, nil
}

// ValidateOptions holds the options of the catalog validate command.
type ValidateOptions struct {
	Paths   []string
	Strict  bool
	Builtin bool
}

// BindValidateOptions reads catalog validate flags. Without paths the embedded
// signatures are validated.
func BindValidateOptions(cmd *cobra.Command, args []string) ValidateOptions {
	strict, _ := cmd.Flags().GetBool("strict")
	return ValidateOptions{
		Paths:   args,
		Strict:  strict,
		Builtin: len(args) == 0,
	}
}
