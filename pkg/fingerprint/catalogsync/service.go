// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package catalogsync fetches signature bundles and installs them into a
// workspace cache where signatures.Loader picks them up.
package catalogsync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog"

	"github.com/vulntor/webprint/pkg/fingerprint"
	"github.com/vulntor/webprint/pkg/signatures"
)

// maxBundleSize bounds a downloaded bundle.
const maxBundleSize = 32 << 20

// Source loads a raw signature bundle. Name identifies the bundle; its
// extension selects the format and defaults to YAML.
type Source interface {
	Load(ctx context.Context) ([]byte, error)
	Name() string
}

// Store persists a normalized bundle.
type Store interface {
	Save(ctx context.Context, data []byte) error
}

// Result describes a completed sync.
type Result struct {
	Catalog *fingerprint.Catalog
	// Definitions is the number of definitions in the bundle.
	Definitions int
	// Path is where the bundle was stored, when known.
	Path string
}

// Service orchestrates catalog synchronization.
type Service struct {
	Source Source
	// Store defaults to a FileStore inside CacheDir.
	Store    Store
	CacheDir string
	Logger   zerolog.Logger
}

// Sync fetches the bundle, validates it by building a catalog, and stores it in
// YAML form. A bundle with any rejected definition is not stored.
func (s Service) Sync(ctx context.Context) (*Result, error) {
	if s.Source == nil {
		return nil, fingerprint.NewSourceRequiredError()
	}
	store := s.Store
	result := &Result{}
	if store == nil {
		if s.CacheDir == "" {
			return nil, fingerprint.NewStorageDisabledError()
		}
		fileStore := FileStore{Path: signatures.CachePath(s.CacheDir)}
		store = fileStore
		result.Path = fileStore.Path
	}
	logger := s.Logger.With().Str("component", "catalogsync").Str("source", s.Source.Name()).Logger()

	data, err := s.Source.Load(ctx)
	if err != nil {
		return nil, fingerprint.WrapSyncError(fmt.Errorf("load catalog: %w", err))
	}

	name := s.Source.Name()
	if !signatures.Supported(name) {
		name += ".yaml"
	}
	defs, err := signatures.Parse(name, data)
	if err != nil {
		return nil, fmt.Errorf("parse catalog: %w: %w", fingerprint.ErrInvalidDefinition, err)
	}

	cat, err := fingerprint.BuildCatalog(defs, fingerprint.WithCatalogLogger(s.Logger))
	if err != nil {
		return nil, fmt.Errorf("validate catalog: %w", err)
	}

	normalized, err := signatures.EncodeYAML(defs)
	if err != nil {
		return nil, fingerprint.WrapSyncError(err)
	}
	if err := store.Save(ctx, normalized); err != nil {
		return nil, fingerprint.WrapSyncError(fmt.Errorf("save catalog: %w", err))
	}

	logger.Info().Int("definitions", len(defs)).Int("plugins", cat.Len()).Msg("Signature catalog synced")
	result.Catalog = cat
	result.Definitions = len(defs)
	return result, nil
}

// FileSource loads a bundle from a local file path.
type FileSource struct {
	Path string
}

func (f FileSource) Load(_ context.Context) ([]byte, error) {
	if f.Path == "" {
		return nil, errors.New("file path is empty")
	}
	return os.ReadFile(f.Path)
}

func (f FileSource) Name() string {
	return f.Path
}

// HTTPSource downloads a bundle from a URL using the provided http.Client (or default).
type HTTPSource struct {
	URL    string
	Client *http.Client
}

func (h HTTPSource) Load(ctx context.Context) ([]byte, error) {
	if h.URL == "" {
		return nil, errors.New("url is empty")
	}
	client := h.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch catalog: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("unexpected status from catalog source: %s", resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBundleSize+1))
	if err != nil {
		return nil, fmt.Errorf("read catalog body: %w", err)
	}
	if len(data) > maxBundleSize {
		return nil, fmt.Errorf("catalog body exceeds %d bytes", maxBundleSize)
	}
	return data, nil
}

// Name returns the URL path, whose extension selects the bundle format.
func (h HTTPSource) Name() string {
	u, err := url.Parse(h.URL)
	if err != nil || u.Path == "" {
		return h.URL
	}
	return path.Base(u.Path)
}

// FileStore writes the bundle to a path on disk. Concurrent writers are
// serialized through an adjacent lock file and readers never observe a partial
// bundle.
type FileStore struct {
	Path string
}

func (f FileStore) Save(ctx context.Context, data []byte) error {
	if f.Path == "" {
		return errors.New("file store path is empty")
	}
	dir := filepath.Dir(f.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create catalog directory: %w", err)
	}

	lock := flock.New(f.Path + ".lock")
	locked, err := lock.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil {
		return fmt.Errorf("lock catalog: %w", err)
	}
	if !locked {
		return errors.New("lock catalog: not acquired")
	}
	defer func() { _ = lock.Unlock() }()

	tmp, err := os.CreateTemp(dir, filepath.Base(f.Path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write catalog: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write catalog: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("write catalog: %w", err)
	}
	return os.Rename(tmp.Name(), f.Path)
}
