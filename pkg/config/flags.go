// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package config

import (
	"github.com/spf13/pflag"
)

// FlagKeys maps command-line flag names onto configuration keys.
var FlagKeys = map[string]string{
	"log-level":          "log.level",
	"log-format":         "log.format",
	"workers":            "engine.workers",
	"target-concurrency": "engine.target_concurrency",
	"rule-timeout":       "engine.rule_timeout",
	"exclude":            "engine.exclude",
	"signatures":         "catalog.paths",
	"builtin":            "catalog.builtin",
	"cache-dir":          "catalog.cache_dir",
	"telemetry-file":     "telemetry.file",
}

// BindFlags registers the persistent configuration flags. Defaults mirror
// DefaultConfig; an unchanged flag never overrides a file or env value.
func BindFlags(flags *pflag.FlagSet) {
	def := DefaultConfig()

	flags.Bool("debug", false, "Enable debug logging")
	flags.String("log-level", def.Log.Level, "Log level (trace, debug, info, warn, error, fatal, panic, disabled)")
	flags.String("log-format", def.Log.Format, "Log format (console, json)")

	flags.Int("workers", def.Engine.Workers, "Plugin workers per target (0 = number of CPUs)")
	flags.Int("target-concurrency", def.Engine.TargetConcurrency, "Targets scanned in parallel")
	flags.Duration("rule-timeout", def.Engine.RuleTimeout, "Time limit for a single regular expression evaluation")
	flags.StringSlice("exclude", def.Engine.Exclude, "Plugin names left out of the catalog")

	flags.StringSlice("signatures", nil, "Signature files or directories (.yaml, .yml, .rb)")
	flags.Bool("builtin", def.Catalog.Builtin, "Include the embedded signature set")
	flags.String("cache-dir", def.Catalog.CacheDir, "Directory holding the synced signature cache")

	flags.String("telemetry-file", def.Telemetry.File, "Append scan telemetry as JSON lines to this file")
}
