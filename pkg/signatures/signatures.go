// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package signatures reads fingerprint definitions from signature files.
//
// Two formats are understood, selected by file extension:
//   - YAML (.yaml, .yml): either a list of definitions or a mapping with a
//     "plugins" list, as written by EncodeYAML.
//   - WhatWeb plugin DSL (.rb), see package whatweb.
//
// The package only turns bytes into fingerprint.Definition values; validation and
// merging happen in fingerprint.BuildCatalog.
package signatures

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vulntor/webprint/pkg/fingerprint"
	"github.com/vulntor/webprint/pkg/fingerprint/whatweb"
)

// builtinFS holds the WhatWeb plugins compiled into the binary.
//
//go:embed data/plugins/*.rb
var builtinFS embed.FS

const builtinDir = "data/plugins"

// BuiltinSource is the Source recorded on definitions of the embedded catalog.
const BuiltinSource = "builtin"

// ErrUnsupportedFormat is returned for files whose extension names no known format.
var ErrUnsupportedFormat = errors.New("unsupported signature format")

// bundle is the mapping form of a YAML signature file.
type bundle struct {
	Plugins []fingerprint.Definition `yaml:"plugins"`
}

// Supported reports whether path has a signature file extension.
func Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".rb":
		return true
	default:
		return false
	}
}

// Parse decodes data according to the extension of source. source is recorded
// as the origin of every returned definition.
func Parse(source string, data []byte) ([]fingerprint.Definition, error) {
	switch strings.ToLower(filepath.Ext(source)) {
	case ".yaml", ".yml":
		return ParseYAML(source, data)
	case ".rb":
		return whatweb.Parse(source, data)
	default:
		return nil, fmt.Errorf("%s: %w", source, ErrUnsupportedFormat)
	}
}

// ParseYAML decodes a YAML signature file. The document is either a sequence of
// definitions or a mapping whose "plugins" key holds that sequence.
func ParseYAML(source string, data []byte) ([]fingerprint.Definition, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%s: parse signature YAML: %w", source, err)
	}
	if len(doc.Content) == 0 {
		return nil, fmt.Errorf("%s: no signatures found", source)
	}

	var defs []fingerprint.Definition
	root := doc.Content[0]
	switch root.Kind {
	case yaml.SequenceNode:
		if err := root.Decode(&defs); err != nil {
			return nil, fmt.Errorf("%s: decode signatures: %w", source, err)
		}
	case yaml.MappingNode:
		var b bundle
		if err := root.Decode(&b); err != nil {
			return nil, fmt.Errorf("%s: decode signatures: %w", source, err)
		}
		defs = b.Plugins
	default:
		return nil, fmt.Errorf("%s: line %d: expected a list of signatures or a plugins mapping", source, root.Line)
	}

	if len(defs) == 0 {
		return nil, fmt.Errorf("%s: no signatures found", source)
	}
	for i := range defs {
		defs[i].Source = source
	}
	return defs, nil
}

// EncodeYAML writes defs in the mapping form read by ParseYAML.
func EncodeYAML(defs []fingerprint.Definition) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(bundle{Plugins: defs}); err != nil {
		return nil, fmt.Errorf("encode signatures: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode signatures: %w", err)
	}
	return buf.Bytes(), nil
}

// Builtin returns the definitions embedded in the binary, one plugin file at a
// time in file name order. Every definition records BuiltinSource.
func Builtin() ([]fingerprint.Definition, error) {
	entries, err := fs.ReadDir(builtinFS, builtinDir)
	if err != nil {
		return nil, fmt.Errorf("read builtin signatures: %w", err)
	}

	var defs []fingerprint.Definition
	for _, entry := range entries {
		name := path.Join(builtinDir, entry.Name())
		data, err := builtinFS.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("read builtin signatures: %w", err)
		}
		parsed, err := whatweb.Parse(path.Join(BuiltinSource, entry.Name()), data)
		if err != nil {
			return nil, fmt.Errorf("parse builtin signatures: %w", err)
		}
		for i := range parsed {
			parsed[i].Source = BuiltinSource
		}
		defs = append(defs, parsed...)
	}
	return defs, nil
}

// LoadFile reads and parses a single signature file.
func LoadFile(path string) ([]fingerprint.Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read signature file: %w", err)
	}
	return Parse(path, data)
}

// LoadDir parses every signature file below dir in lexical path order. Files
// that fail to parse are reported in the returned error; definitions of the
// remaining files are still returned.
func LoadDir(dir string) ([]fingerprint.Definition, error) {
	files, err := discover(dir)
	if err != nil {
		return nil, err
	}

	var (
		defs []fingerprint.Definition
		errs []error
	)
	for _, path := range files {
		loaded, err := LoadFile(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		defs = append(defs, loaded...)
	}
	return defs, errors.Join(errs...)
}

// LoadPaths loads each path in order; a path is either a file or a directory.
func LoadPaths(paths ...string) ([]fingerprint.Definition, error) {
	var (
		defs []fingerprint.Definition
		errs []error
	)
	for _, path := range paths {
		loaded, err := loadPath(path)
		if err != nil {
			errs = append(errs, err)
		}
		defs = append(defs, loaded...)
	}
	return defs, errors.Join(errs...)
}

func loadPath(path string) ([]fingerprint.Definition, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("signature path: %w", err)
	}
	if info.IsDir() {
		return LoadDir(path)
	}
	return LoadFile(path)
}

// discover lists the signature files below dir. fs.WalkDir visits entries in
// lexical order, which fixes the load order.
func discover(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if Supported(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan signature directory %s: %w", dir, err)
	}
	return files, nil
}
