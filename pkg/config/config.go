// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package config loads webprint configuration from layered sources: defaults,
// a YAML file, WEBPRINT_* environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/vulntor/webprint/pkg/fingerprint"
)

// EnvPrefix is the prefix of configuration environment variables.
const EnvPrefix = "WEBPRINT_"

// DefaultExclude lists generic signatures (security headers, page furniture)
// that say nothing about the product behind a site.
var DefaultExclude = []string{
	"X-Frame-Options", "RedirectLocation", "Cookies", "Access-Control-Allow-Methods",
	"Content-Security-Policy", "X-Forwarded-For", "Via-Proxy", "Allow",
	"Strict-Transport-Security", "X-XSS-Protection", "x-pingback", "UncommonHeaders",
	"HTML5", "Script", "Title", "Email", "Meta-Author", "Frame", "PasswordField",
	"MetaGenerator", "Object",
}

// Manager handles loading and accessing application configuration.
type Manager struct {
	koanfInstance *koanf.Koanf
	currentConfig Config
	mu            sync.RWMutex
}

// NewManager creates a Manager with an empty koanf instance.
func NewManager() *Manager {
	return &Manager{koanfInstance: koanf.New(".")}
}

// DefaultConfig returns the baseline configuration used when no other source
// overrides a value.
func DefaultConfig() Config {
	return Config{
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Engine: EngineConfig{
			Workers:           0,
			TargetConcurrency: 4,
			RuleTimeout:       fingerprint.DefaultRuleTimeout,
			Exclude:           append([]string(nil), DefaultExclude...),
		},
		Catalog: CatalogConfig{
			Builtin: true,
		},
	}
}

// DefaultConfigAsMap flattens DefaultConfig for koanf's confmap provider so that
// every known key exists before files, env and flags are merged.
func DefaultConfigAsMap() map[string]interface{} {
	def := DefaultConfig()
	return map[string]interface{}{
		"log.level":  def.Log.Level,
		"log.format": def.Log.Format,

		"engine.workers":            def.Engine.Workers,
		"engine.target_concurrency": def.Engine.TargetConcurrency,
		"engine.rule_timeout":       def.Engine.RuleTimeout,
		"engine.exclude":            def.Engine.Exclude,

		"catalog.paths":     def.Catalog.Paths,
		"catalog.builtin":   def.Catalog.Builtin,
		"catalog.cache_dir": def.Catalog.CacheDir,

		"telemetry.file": def.Telemetry.File,
	}
}

// Load reads the standard sources: defaults, configPath, environment and flags.
func (m *Manager) Load(flags *pflag.FlagSet, configPath string) error {
	debug := false
	if flags != nil {
		if f := flags.Lookup("debug"); f != nil && f.Value.String() == "true" {
			debug = true
		}
	}
	return m.LoadWithSources(DefaultSources(configPath, flags, debug))
}

// LoadWithSources loads sources in ascending priority, then unmarshals and
// validates the merged result. On error the previous configuration is kept.
func (m *Manager) LoadWithSources(sources []ConfigSource) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ordered := append([]ConfigSource(nil), sources...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority() < ordered[j].Priority()
	})

	ko := koanf.New(".")
	for _, src := range ordered {
		if err := src.Load(ko); err != nil {
			return fmt.Errorf("config source %s: %w", src.Name(), err)
		}
	}

	var newCfg Config
	if err := ko.UnmarshalWithConf("", &newCfg, unmarshalConf()); err != nil {
		return fmt.Errorf("error unmarshaling final config: %w", err)
	}
	postProcessConfig(&newCfg)
	if err := Validate(newCfg); err != nil {
		return err
	}

	m.koanfInstance = ko
	m.currentConfig = newCfg
	return nil
}

// unmarshalConf decodes comma separated strings (from env vars) into slices
// in addition to koanf's default duration handling.
func unmarshalConf() koanf.UnmarshalConf {
	return koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
				mapstructure.TextUnmarshallerHookFunc(),
			),
			WeaklyTypedInput: true,
		},
	}
}

// Get returns a copy of the current configuration.
func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg := m.currentConfig
	cfg.Engine.Exclude = append([]string(nil), cfg.Engine.Exclude...)
	cfg.Catalog.Paths = append([]string(nil), cfg.Catalog.Paths...)
	return cfg
}

// Koanf exposes the merged key space, e.g. for printing the effective config.
func (m *Manager) Koanf() *koanf.Koanf {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.koanfInstance
}

// postProcessConfig normalizes values after unmarshaling.
func postProcessConfig(cfg *Config) {
	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	cfg.Log.Format = strings.ToLower(strings.TrimSpace(cfg.Log.Format))
	cfg.Engine.Exclude = compact(cfg.Engine.Exclude)
	cfg.Catalog.Paths = compact(cfg.Catalog.Paths)
}

// compact trims entries and drops empty ones.
func compact(values []string) []string {
	out := values[:0:0]
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

var (
	configValidator     *validator.Validate
	configValidatorOnce sync.Once
)

// Validate checks cfg against its struct tags.
func Validate(cfg Config) error {
	configValidatorOnce.Do(func() {
		configValidator = validator.New()
	})
	if err := configValidator.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid configuration: %s: failed %q (value %v)", configKey(fe.Namespace()), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// configKey maps a validator namespace such as "Config.Engine.RuleTimeout" to
// the koanf key "engine.rule_timeout".
func configKey(namespace string) string {
	parts := strings.Split(namespace, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	for i, p := range parts {
		parts[i] = toSnake(p)
	}
	return strings.Join(parts, ".")
}

func toSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
