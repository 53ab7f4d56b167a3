// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package fingerprint

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

var (
	structValidator     *validator.Validate
	structValidatorOnce sync.Once
)

// definitionValidator reports struct validation failures using the YAML field
// names signature authors see.
func definitionValidator() *validator.Validate {
	structValidatorOnce.Do(func() {
		v := validator.New()
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name, _, _ := strings.Cut(fld.Tag.Get("yaml"), ",")
			if name == "-" {
				return ""
			}
			if name == "" {
				return fld.Name
			}
			return name
		})
		structValidator = v
	})
	return structValidator
}

// LoadWarning is a non-fatal observation about an accepted definition.
type LoadWarning struct {
	Plugin  string
	Source  string
	Field   string
	Message string
}

func (w LoadWarning) String() string {
	if w.Field == "" {
		return fmt.Sprintf("%s: %s", w.Plugin, w.Message)
	}
	return fmt.Sprintf("%s: %s: %s", w.Plugin, w.Field, w.Message)
}

// MergeNotice reports that a definition was merged into an existing plugin of
// the same name.
type MergeNotice struct {
	Plugin            string
	Source            string
	AddedMatchers     int
	AddedVersionRules int
}

// Catalog is an immutable, validated set of plugins in load order. A Catalog is
// safe for concurrent use by any number of scans.
type Catalog struct {
	plugins  []*Plugin
	index    map[string]int
	warnings []LoadWarning
	merges   []MergeNotice
	excluded []string
	timeout  time.Duration
}

type catalogOptions struct {
	timeout time.Duration
	exclude map[string]struct{}
	logger  zerolog.Logger
}

// CatalogOption configures BuildCatalog.
type CatalogOption func(*catalogOptions)

// WithRuleTimeout sets the evaluation budget of every regular expression. Zero
// or a negative value disables the budget.
func WithRuleTimeout(d time.Duration) CatalogOption {
	return func(o *catalogOptions) {
		o.timeout = d
	}
}

// WithExclude drops plugins by name (case-insensitive), typically generic
// signatures that add noise to reports.
func WithExclude(names ...string) CatalogOption {
	return func(o *catalogOptions) {
		for _, name := range names {
			if name = strings.TrimSpace(name); name != "" {
				o.exclude[strings.ToLower(name)] = struct{}{}
			}
		}
	}
}

// WithCatalogLogger sets the logger used to report rejections, warnings and merges.
func WithCatalogLogger(logger zerolog.Logger) CatalogOption {
	return func(o *catalogOptions) {
		o.logger = logger
	}
}

// BuildCatalog validates and compiles defs into a Catalog. Invalid definitions
// are excluded and reported through a *LoadErrors error; the returned catalog is
// never nil and holds every valid plugin. When no plugin survives, the error
// also matches ErrEmptyCatalog.
func BuildCatalog(defs []Definition, opts ...CatalogOption) (*Catalog, error) {
	o := catalogOptions{
		timeout: DefaultRuleTimeout,
		exclude: make(map[string]struct{}),
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger.With().Str("component", "catalog").Logger()

	cat := &Catalog{
		index:   make(map[string]int),
		timeout: o.timeout,
	}
	var loadErrs []*LoadError
	excluded := make(map[string]bool)

	for i := range defs {
		def := &defs[i]
		name := strings.TrimSpace(def.Name)
		if _, skip := o.exclude[strings.ToLower(name)]; skip && name != "" {
			if !excluded[name] {
				excluded[name] = true
				cat.excluded = append(cat.excluded, name)
			}
			continue
		}

		plugin, warnings, err := compileDefinition(i, def, o.timeout)
		if err != nil {
			var le *LoadError
			if !errors.As(err, &le) {
				le = &LoadError{Index: i, Name: name, Source: def.Source, Reason: err.Error()}
			}
			logger.Warn().Str("plugin", le.Name).Str("source", le.Source).Str("field", le.Field).
				Msg("signature rejected: " + le.Reason)
			loadErrs = append(loadErrs, le)
			continue
		}

		for _, w := range warnings {
			logger.Warn().Str("plugin", w.Plugin).Str("field", w.Field).Msg(w.Message)
		}
		cat.warnings = append(cat.warnings, warnings...)

		if pos, ok := cat.index[plugin.Name]; ok {
			notice := cat.plugins[pos].absorb(plugin)
			logger.Info().Str("plugin", notice.Plugin).Str("source", notice.Source).
				Int("added_matchers", notice.AddedMatchers).
				Int("added_version_rules", notice.AddedVersionRules).
				Msg("merged duplicate signature")
			cat.merges = append(cat.merges, notice)
			continue
		}
		cat.index[plugin.Name] = len(cat.plugins)
		cat.plugins = append(cat.plugins, plugin)
	}

	for _, p := range cat.plugins {
		if p.Category == "" {
			p.Category = CategoryFor(p.Name)
		}
	}

	logger.Debug().Int("plugins", len(cat.plugins)).Int("rejected", len(loadErrs)).
		Int("merged", len(cat.merges)).Msg("catalog built")

	if len(loadErrs) == 0 && len(cat.plugins) > 0 {
		return cat, nil
	}
	return cat, &LoadErrors{Errors: loadErrs, Empty: len(cat.plugins) == 0}
}

func compileDefinition(index int, def *Definition, timeout time.Duration) (*Plugin, []LoadWarning, error) {
	name := strings.TrimSpace(def.Name)
	reject := func(field, reason string) error {
		return &LoadError{Index: index, Name: name, Source: def.Source, Field: field, Reason: reason}
	}

	if name == "" {
		return nil, nil, reject("name", "name is empty")
	}
	if err := definitionValidator().Struct(def); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return nil, nil, reject(trimNamespace(verrs[0].Namespace()), describeTag(verrs[0]))
		}
		return nil, nil, reject("", err.Error())
	}

	p := &Plugin{
		Name:        name,
		Authors:     appendUnique(nil, def.Authors...),
		Description: strings.TrimSpace(def.Description),
		Website:     strings.TrimSpace(def.Website),
		Revision:    strings.TrimSpace(def.Revision),
	}
	if strings.TrimSpace(string(def.Category)) != "" {
		c, err := ParseCategory(string(def.Category))
		if err != nil {
			return nil, nil, reject("category", err.Error())
		}
		p.Category = c
	}
	if def.Source != "" {
		p.Sources = []string{def.Source}
	}

	var warnings []LoadWarning
	warnUnknown := func(field string, path FieldPath) {
		if u, ok := path.(UnknownField); ok {
			warnings = append(warnings, LoadWarning{
				Plugin:  name,
				Source:  def.Source,
				Field:   field,
				Message: fmt.Sprintf("unknown field path %q never matches", u.Raw),
			})
		}
	}

	for i, md := range def.Matches {
		field := fmt.Sprintf("matches[%d]", i)
		m, err := NewMatcher(md, timeout)
		if err != nil {
			return nil, nil, reject(field, err.Error())
		}
		warnUnknown(field+".search", m.Field)
		if !containsMatcher(p.Matchers, m) {
			p.Matchers = append(p.Matchers, m)
		}
	}

	for i, vd := range def.Versions {
		field := fmt.Sprintf("version[%d]", i)
		r, err := NewVersionRule(vd, timeout)
		if err != nil {
			return nil, nil, reject(field, err.Error())
		}
		warnUnknown(field+".search", r.Field)
		if !containsVersionRule(p.VersionRules, r) {
			p.VersionRules = append(p.VersionRules, r)
		}
	}

	for i, md := range def.Models {
		field := fmt.Sprintf("model[%d]", i)
		r, err := NewVersionRule(md, timeout)
		if err != nil {
			return nil, nil, reject(field, err.Error())
		}
		warnUnknown(field+".search", r.Field)
		if !containsVersionRule(p.ModelRules, r) {
			p.ModelRules = append(p.ModelRules, r)
		}
	}

	return p, warnings, nil
}

// absorb merges other into p: matchers are unioned, version and model rules
// appended in load order, and descriptive fields filled where p has none.
func (p *Plugin) absorb(other *Plugin) MergeNotice {
	notice := MergeNotice{Plugin: p.Name, Source: strings.Join(other.Sources, ",")}
	for _, m := range other.Matchers {
		if !containsMatcher(p.Matchers, m) {
			p.Matchers = append(p.Matchers, m)
			notice.AddedMatchers++
		}
	}
	for _, r := range other.VersionRules {
		if !containsVersionRule(p.VersionRules, r) {
			p.VersionRules = append(p.VersionRules, r)
			notice.AddedVersionRules++
		}
	}
	for _, r := range other.ModelRules {
		if !containsVersionRule(p.ModelRules, r) {
			p.ModelRules = append(p.ModelRules, r)
		}
	}
	if p.Category == "" {
		p.Category = other.Category
	}
	p.Authors = appendUnique(p.Authors, other.Authors...)
	p.Sources = appendUnique(p.Sources, other.Sources...)
	if p.Description == "" {
		p.Description = other.Description
	}
	if p.Website == "" {
		p.Website = other.Website
	}
	if p.Revision == "" {
		p.Revision = other.Revision
	}
	return notice
}

func containsMatcher(list []*Matcher, m *Matcher) bool {
	key := m.key()
	for _, existing := range list {
		if existing.key() == key {
			return true
		}
	}
	return false
}

func containsVersionRule(list []*VersionRule, r *VersionRule) bool {
	key := r.key()
	for _, existing := range list {
		if existing.key() == key {
			return true
		}
	}
	return false
}

func appendUnique(dst []string, values ...string) []string {
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		dup := false
		for _, existing := range dst {
			if existing == v {
				dup = true
				break
			}
		}
		if !dup {
			dst = append(dst, v)
		}
	}
	return dst
}

func trimNamespace(ns string) string {
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("needs at least %s entries", fe.Param())
		}
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s], got %q", fe.Param(), fmt.Sprint(fe.Value()))
	default:
		return fmt.Sprintf("failed %q validation", fe.Tag())
	}
}

// Plugins returns the catalog plugins in load order. The slice must not be modified.
func (c *Catalog) Plugins() []*Plugin {
	if c == nil {
		return nil
	}
	return c.plugins
}

// Len returns the number of plugins.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.plugins)
}

// Lookup returns the plugin with the given name.
func (c *Catalog) Lookup(name string) (*Plugin, bool) {
	if c == nil {
		return nil, false
	}
	pos, ok := c.index[strings.TrimSpace(name)]
	if !ok {
		return nil, false
	}
	return c.plugins[pos], true
}

// Warnings returns the load-time warnings of accepted definitions.
func (c *Catalog) Warnings() []LoadWarning {
	if c == nil {
		return nil
	}
	return c.warnings
}

// Merges returns one notice per definition merged into an earlier plugin.
func (c *Catalog) Merges() []MergeNotice {
	if c == nil {
		return nil
	}
	return c.merges
}

// Excluded returns the plugin names dropped by WithExclude, in load order.
func (c *Catalog) Excluded() []string {
	if c == nil {
		return nil
	}
	return c.excluded
}

// RuleTimeout returns the per-rule budget the catalog was compiled with.
func (c *Catalog) RuleTimeout() time.Duration {
	if c == nil {
		return 0
	}
	return c.timeout
}
