// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package workspace

import "testing"

// overrideUserHomeDir replaces userHomeDir for the duration of the test.
func overrideUserHomeDir(t *testing.T, fn func() (string, error)) {
	t.Helper()
	old := userHomeDir
	userHomeDir = fn
	t.Cleanup(func() { userHomeDir = old })
}

// overrideGOOS replaces getGOOS for the duration of the test.
func overrideGOOS(t *testing.T, goos string) {
	t.Helper()
	old := getGOOS
	getGOOS = func() string { return goos }
	t.Cleanup(func() { getGOOS = old })
}
