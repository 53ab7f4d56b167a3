// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package version provides build metadata for webprint binaries.
package version

import (
	"fmt"
	"runtime"

	"github.com/Masterminds/semver/v3"
)

// These variables are injected at build time using -ldflags.
var (
	// Version holds the release version, e.g. "v0.3.1".
	Version = "dev"
	// Commit holds the source commit of the build.
	Commit = "none"
	// BuildDate holds the build timestamp.
	BuildDate = "unknown"
)

// Info is the structured version report.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
	Release   bool   `json:"release"`
}

// Get returns version information for the running binary.
func Get() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
		Release:   IsRelease(Version),
	}
}

// String returns a one-line summary.
func (i Info) String() string {
	return fmt.Sprintf("webprint %s (commit: %s, date: %s)", i.Version, i.Commit, i.BuildDate)
}

// IsRelease reports whether v is a semantic version without a prerelease
// suffix. Development builds ("dev") and release candidates are not releases.
func IsRelease(v string) bool {
	sv, err := semver.NewVersion(v)
	if err != nil {
		return false
	}
	return sv.Prerelease() == ""
}
