// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package signatures

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/vulntor/webprint/pkg/fingerprint"
)

// CacheFileName is the signature bundle kept in a workspace cache directory.
const CacheFileName = "signatures.yaml"

// CachePath returns the bundle location inside cacheDir.
func CachePath(cacheDir string) string {
	return filepath.Join(cacheDir, CacheFileName)
}

// Loader collects definitions from every configured source. Sources are read in
// a fixed order (builtin, cache, then Paths in the order given) so that the
// catalog built from them is stable.
type Loader struct {
	// Builtin includes the embedded signatures.
	Builtin bool
	// CacheDir holds a synced bundle; a missing bundle is not an error.
	CacheDir string
	// Paths lists signature files and directories.
	Paths []string

	Logger zerolog.Logger
}

// Load returns the definitions of all sources. Sources that fail are logged and
// reported through the returned error while the definitions of the others are
// still returned, so callers decide whether a partial load is acceptable.
func (l *Loader) Load() ([]fingerprint.Definition, error) {
	logger := l.Logger.With().Str("component", "signatures").Logger()

	var (
		defs []fingerprint.Definition
		errs []error
	)

	if l.Builtin {
		builtin, err := Builtin()
		if err != nil {
			errs = append(errs, err)
		} else {
			logger.Debug().Int("definitions", len(builtin)).Msg("Loaded builtin signatures")
			defs = append(defs, builtin...)
		}
	}

	if l.CacheDir != "" {
		path := CachePath(l.CacheDir)
		cached, err := LoadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			logger.Debug().Str("path", path).Msg("No cached signature bundle")
		case err != nil:
			logger.Warn().Err(err).Str("path", path).Msg("Ignoring unreadable signature cache")
			errs = append(errs, err)
		default:
			logger.Debug().Str("path", path).Int("definitions", len(cached)).Msg("Loaded cached signatures")
			defs = append(defs, cached...)
		}
	}

	for _, path := range l.Paths {
		loaded, err := loadPath(path)
		if err != nil {
			logger.Warn().Err(err).Str("path", path).Msg("Failed to load signatures")
			errs = append(errs, err)
		}
		if len(loaded) > 0 {
			logger.Debug().Str("path", path).Int("definitions", len(loaded)).Msg("Loaded signatures")
		}
		defs = append(defs, loaded...)
	}

	return defs, errors.Join(errs...)
}

// Build loads every source and compiles the result. The returned catalog is
// never nil; see fingerprint.BuildCatalog for its error contract.
func (l *Loader) Build(opts ...fingerprint.CatalogOption) (*fingerprint.Catalog, error) {
	defs, loadErr := l.Load()
	opts = append([]fingerprint.CatalogOption{fingerprint.WithCatalogLogger(l.Logger)}, opts...)
	cat, buildErr := fingerprint.BuildCatalog(defs, opts...)
	return cat, errors.Join(loadErr, buildErr)
}

// WatchPaths returns the configured paths that exist on disk.
func (l *Loader) WatchPaths() []string {
	var paths []string
	for _, p := range l.Paths {
		if _, err := os.Stat(p); err == nil {
			paths = append(paths, p)
		}
	}
	if l.CacheDir != "" {
		if _, err := os.Stat(l.CacheDir); err == nil {
			paths = append(paths, CachePath(l.CacheDir))
		}
	}
	return paths
}
