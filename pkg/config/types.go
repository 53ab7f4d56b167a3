// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package config

import "time"

// Config is the root configuration structure for webprint.
type Config struct {
	Log       LogConfig       `description:"Logging configuration" koanf:"log"`
	Engine    EngineConfig    `description:"Matching engine configuration" koanf:"engine"`
	Catalog   CatalogConfig   `description:"Signature catalog configuration" koanf:"catalog"`
	Telemetry TelemetryConfig `description:"Detection telemetry configuration" koanf:"telemetry"`
}

// LogConfig holds logging related configuration.
type LogConfig struct {
	Level  string `description:"Log level: trace | debug | info | warn | error" koanf:"level" validate:"oneof=trace debug info warn error fatal panic disabled"`
	Format string `description:"Log format: console | json" koanf:"format" validate:"oneof=console json"`
}

// EngineConfig tunes the matching engine.
type EngineConfig struct {
	// Workers is the number of plugin evaluators per observation; 0 uses GOMAXPROCS.
	Workers int `description:"Plugin evaluation workers (0 = GOMAXPROCS)" koanf:"workers" validate:"min=0"`
	// TargetConcurrency bounds how many observations are scanned at once.
	TargetConcurrency int           `description:"Observations scanned in parallel" koanf:"target_concurrency" validate:"min=1"`
	RuleTimeout       time.Duration `description:"Evaluation budget of a single regexp rule (0 disables)" koanf:"rule_timeout" validate:"min=0"`
	Exclude           []string      `description:"Plugin names left out of the catalog" koanf:"exclude"`
}

// CatalogConfig selects the signature sources.
type CatalogConfig struct {
	Paths    []string `description:"Signature files or directories (*.yaml, *.yml, *.rb)" koanf:"paths"`
	Builtin  bool     `description:"Include the embedded signatures" koanf:"builtin"`
	CacheDir string   `description:"Directory holding the synced signature bundle" koanf:"cache_dir"`
}

// TelemetryConfig controls the JSONL detection event log.
type TelemetryConfig struct {
	File string `description:"Append detection events to this JSONL file" koanf:"file"`
}
