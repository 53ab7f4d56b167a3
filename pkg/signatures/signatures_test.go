// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package signatures

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vulntor/webprint/pkg/fingerprint"
)

const jettyRuby = `
Plugin.define do
  name "Jetty"
  authors ["Ostorlab"]
  matches [
    { :search => "headers[server]", :regexp => /Jetty/, :name => "Jetty Server Header" },
  ]
  version [
    { :search => "headers[server]", :regexp => /Jetty\(([\d.]+)/ },
  ]
end
`

const listYAML = `
- name: Gitea
  matches:
    - kind: text
      pattern: Powered by Gitea
      label: footer
- name: Grafana
  matches:
    - search: title
      kind: regexp
      pattern: <title>Grafana</title>
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// builtinPlugins is the number of plugin files under data/plugins.
const builtinPlugins = 95

func TestBuiltin_BuildsCleanCatalog(t *testing.T) {
	defs, err := Builtin()
	require.NoError(t, err)
	require.Len(t, defs, builtinPlugins)
	for _, def := range defs {
		require.Equal(t, BuiltinSource, def.Source)
	}

	cat, err := fingerprint.BuildCatalog(defs)
	require.NoError(t, err)
	require.Equal(t, builtinPlugins, cat.Len(), "builtin names are unique")
	require.Empty(t, cat.Warnings())
	require.Empty(t, cat.Merges())

	result := fingerprint.NewValidator(false).Validate(defs)
	require.True(t, result.IsValid(), "%v", result.Errors)
}

func TestBuiltin_FileOrder(t *testing.T) {
	defs, err := Builtin()
	require.NoError(t, err)
	require.Equal(t, "Acronis cyber infrastructure", defs[0].Name)
	require.Equal(t, "Zyxel Devices", defs[len(defs)-1].Name)
}

func TestBuiltin_Detections(t *testing.T) {
	defs, err := Builtin()
	require.NoError(t, err)
	cat, err := fingerprint.BuildCatalog(defs)
	require.NoError(t, err)

	tests := []struct {
		name    string
		obs     *fingerprint.Observation
		plugin  string
		version string
	}{
		{
			name:   "tomcat title",
			obs:    &fingerprint.Observation{Body: "<html><head><title>Apache Tomcat</title></head></html>"},
			plugin: "Apache Tomcat",
		},
		{
			name:    "adminer",
			obs:     &fingerprint.Observation{Body: `<link rel="stylesheet" href="adminer.php?file=default.css&amp;version=4.8.1">`},
			plugin:  "Adminer",
			version: "4.8.1",
		},
		{
			name:   "nostromo server header",
			obs:    &fingerprint.Observation{Headers: map[string][]string{"Server": {"nostromo 1.9.6"}}},
			plugin: "Nostromo Server",
		},
		{
			name:    "sap netweaver",
			obs:     &fingerprint.Observation{Headers: map[string][]string{"Server": {"SAP NetWeaver Application Server 7.45 / AS Java 7.50"}}},
			plugin:  "SAP NetWeaver",
			version: "7.45",
		},
		{
			name:   "fortios header case",
			obs:    &fingerprint.Observation{Headers: map[string][]string{"server": {"Fortinet FortiOS"}}},
			plugin: "Fortinet FortiOS",
		},
		{
			name:   "symfony cookie",
			obs:    &fingerprint.Observation{Headers: map[string][]string{"set-cookie": {"symfony=abc; path=/"}}},
			plugin: "Symfony",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ids := fingerprint.Scan(tt.obs, cat)
			var found *fingerprint.Identification
			for i := range ids {
				if ids[i].Plugin == tt.plugin {
					found = &ids[i]
				}
			}
			require.NotNil(t, found, "%s not identified in %v", tt.plugin, ids)
			require.Equal(t, tt.version, found.Version)
		})
	}
}

func TestParse_DispatchesOnExtension(t *testing.T) {
	defs, err := Parse("signatures/jetty.rb", []byte(jettyRuby))
	require.NoError(t, err)
	require.Len(t, defs, 1)
	require.Equal(t, "Jetty", defs[0].Name)
	require.Equal(t, "signatures/jetty.rb", defs[0].Source)

	defs, err = Parse("list.YML", []byte(listYAML))
	require.NoError(t, err)
	require.Len(t, defs, 2)
	require.Equal(t, "title", defs[1].Matches[0].Search)

	_, err = Parse("notes.txt", []byte("x"))
	require.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestParseYAML_Errors(t *testing.T) {
	tests := map[string]string{
		"empty document": "",
		"scalar root":    "just text",
		"empty list":     "[]",
		"empty bundle":   "plugins: []",
		"bad syntax":     "plugins: [name: x",
		"wrong type":     "plugins:\n  - name: [1, 2]\n",
	}
	for name, src := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseYAML("bad.yaml", []byte(src))
			require.Error(t, err)
			require.Contains(t, err.Error(), "bad.yaml")
		})
	}
}

func TestEncodeYAML_RoundTrip(t *testing.T) {
	defs, err := Builtin()
	require.NoError(t, err)

	data, err := EncodeYAML(defs)
	require.NoError(t, err)

	decoded, err := ParseYAML(BuiltinSource, data)
	require.NoError(t, err)
	require.Equal(t, defs, decoded)
}

func TestLoadDir_SortedAndTolerant(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "b", "jetty.rb"), jettyRuby)
	writeFile(t, filepath.Join(dir, "a.yaml"), listYAML)
	writeFile(t, filepath.Join(dir, "README.md"), "# signatures")
	writeFile(t, filepath.Join(dir, ".git", "hidden.yaml"), listYAML)
	writeFile(t, filepath.Join(dir, "c.yml"), "plugins: [broken")

	defs, err := LoadDir(dir)
	require.Error(t, err)
	require.Contains(t, err.Error(), "c.yml")

	names := make([]string, 0, len(defs))
	for _, def := range defs {
		names = append(names, def.Name)
	}
	require.Equal(t, []string{"Gitea", "Grafana", "Jetty"}, names)
}

func TestLoadPaths(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "jetty.rb")
	writeFile(t, file, jettyRuby)
	sub := filepath.Join(dir, "more")
	writeFile(t, filepath.Join(sub, "list.yaml"), listYAML)

	defs, err := LoadPaths(file, sub)
	require.NoError(t, err)
	require.Len(t, defs, 3)
	require.Equal(t, "Jetty", defs[0].Name)

	defs, err = LoadPaths(filepath.Join(dir, "missing"), file)
	require.ErrorIs(t, err, os.ErrNotExist)
	require.Len(t, defs, 1)
}
