// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package version

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGet(t *testing.T) {
	info := Get()
	require.Equal(t, Version, info.Version)
	require.Equal(t, Commit, info.Commit)
	require.Equal(t, BuildDate, info.BuildDate)
	require.Equal(t, runtime.Version(), info.GoVersion)
	require.Equal(t, runtime.GOOS+"/"+runtime.GOARCH, info.Platform)
	require.False(t, info.Release, "dev builds are not releases")
	require.Contains(t, info.String(), "webprint dev")
}

func TestIsRelease(t *testing.T) {
	tests := map[string]bool{
		"v1.2.3":       true,
		"0.4.0":        true,
		"v1.0.0-rc.1":  false,
		"dev":          false,
		"":             false,
		"1.2.3+build7": true,
	}
	for in, want := range tests {
		require.Equal(t, want, IsRelease(in), in)
	}
}
