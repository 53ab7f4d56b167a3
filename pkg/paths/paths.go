// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package paths

import (
	"os"
	"path/filepath"
	"runtime"
)

// ConfigFileName is the name of the default configuration file.
const ConfigFileName = "config.yaml"

// ConfigDir returns the config directory for webprint.
// Order: XDG_CONFIG_HOME/webprint, platform-specific fallback.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "webprint")
	}
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("AppData"); appData != "" {
			return filepath.Join(appData, "Webprint")
		}
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "webprint")
}

// DefaultConfigFile returns the configuration file read when --config is not
// given. The file is optional.
func DefaultConfigFile() string {
	return filepath.Join(ConfigDir(), ConfigFileName)
}
