// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package whatweb

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vulntor/webprint/pkg/fingerprint"
)

func parseFile(t *testing.T, name string) []fingerprint.Definition {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	defs, err := Parse(name, data)
	require.NoError(t, err)
	return defs
}

func TestParse_Tomcat(t *testing.T) {
	defs := parseFile(t, "apache_tomcat.rb")
	require.Len(t, defs, 1)

	def := defs[0]
	require.Equal(t, "Apache Tomcat", def.Name)
	require.Equal(t, []string{"Ostorlab"}, def.Authors)
	require.Equal(t, "0.1", def.Revision)
	require.Equal(t, "https://tomcat.apache.org/", def.Website)
	require.Equal(t, "apache_tomcat.rb", def.Source)
	require.Equal(t, []fingerprint.MatcherDef{{
		Search:    "head",
		Kind:      fingerprint.KindRegexp,
		Pattern:   "<title>Apache Tomcat",
		Multiline: true,
		Label:     "On-Prem License Workspace Generator Title Tag",
	}}, def.Matches)
	require.Empty(t, def.Versions)
}

func TestParse_AdminerVersionRules(t *testing.T) {
	def := parseFile(t, "adminer_php.rb")[0]

	require.Len(t, def.Matches, 3)
	require.Equal(t, `<title>Login - Adminer</title>`, def.Matches[0].Pattern)
	require.True(t, def.Matches[0].IgnoreCase)
	require.Equal(t, "body", def.Matches[0].Search)
	require.Equal(t, `<h1><a href='https://www\.adminer\.org/'[^>]*>.*?Adminer</a> <span class='version'>`, def.Matches[2].Pattern)

	require.Len(t, def.Versions, 3)
	require.Equal(t, `adminer\.php\?file=default\.css&amp;version=([0-9.]+)`, def.Versions[0].Pattern)
	require.Equal(t, "Adminer Version (CSS)", def.Versions[0].Label)
	require.True(t, def.Versions[0].IgnoreCase)
	require.Zero(t, def.Versions[0].Offset)
}

func TestParse_OffsetAndSlashInClass(t *testing.T) {
	def := parseFile(t, "cisco_broadworks.rb")[0]
	require.Len(t, def.Versions, 1)
	require.Equal(t, "headers[server]", def.Versions[0].Search)
	require.Equal(t, `BroadWorks[/\s]+([0-9\.]+)`, def.Versions[0].Pattern)
	require.Equal(t, 0, def.Versions[0].Offset)
}

func TestParse_TextMatchersAndTabs(t *testing.T) {
	def := parseFile(t, "pfsense.rb")[0]
	require.Equal(t, "pfSense", def.Name)
	require.Len(t, def.Matches, 3)
	for _, m := range def.Matches {
		require.Equal(t, fingerprint.KindText, m.Kind)
		require.Empty(t, m.Search)
	}
	require.Equal(t, `<script src="/js/pfSense.js`, def.Matches[2].Pattern)
}

func TestParse_ModelRule(t *testing.T) {
	def := parseFile(t, "netgear_router.rb")[0]
	require.Len(t, def.Matches, 2)
	require.Equal(t, "headers[www-authenticate]", def.Matches[0].Search)
	require.Empty(t, def.Matches[1].Search)
	require.Equal(t, `^Basic realm="?[\s]*Netgear`, def.Matches[1].Pattern)

	require.Empty(t, def.Versions)
	require.Equal(t, []fingerprint.VersionRuleDef{{
		Pattern:   `^Basic realm="?[\s]*NETGEAR ([^"]+)[\s]*"?`,
		Multiline: true,
	}}, def.Models)

	cat, err := fingerprint.BuildCatalog([]fingerprint.Definition{def})
	require.NoError(t, err)
	ids := fingerprint.Scan(&fingerprint.Observation{
		Headers: map[string][]string{"WWW-Authenticate": {`Basic realm="Netgear"`}},
		Body:    `<p>Basic realm="NETGEAR R7000"</p>`,
	}, cat)
	require.Len(t, ids, 1)
	require.Equal(t, "R7000", ids[0].Model)
}

func TestParse_ModelOnlyEntryIsEvidence(t *testing.T) {
	src := `
Plugin.define do
  name "Router"
  matches [
    { :search => "headers[server]", :model => /RouterOS ([A-Z0-9-]+)/ },
  ]
end
`
	defs, err := Parse("router.rb", []byte(src))
	require.NoError(t, err)
	def := defs[0]
	require.Len(t, def.Matches, 1)
	require.Equal(t, "headers[server]", def.Matches[0].Search)
	require.Len(t, def.Models, 1)
	require.Equal(t, "headers[server]", def.Models[0].Search)
}

func TestParse_UnsupportedKeysAreIgnored(t *testing.T) {
	src := `
Plugin.define do
  name "Camera"
  dorks ['intitle:"camera"']
  matches [
    { :search => "body", :regexp => /camera/, :certainty => 75, :string => "cam" },
  ]
end
`
	defs, err := Parse("camera.rb", []byte(src))
	require.NoError(t, err)
	require.Len(t, defs[0].Matches, 1)
	require.Empty(t, defs[0].Versions)
	require.Empty(t, defs[0].Models)
}

func TestParse_InlineComment(t *testing.T) {
	def := parseFile(t, "draytek.rb")[0]
	require.Len(t, def.Matches, 1)
	require.Equal(t, "DrayTek Vigor", def.Matches[0].Label)
}

func TestParse_MatchWithVersion(t *testing.T) {
	src := `
Plugin.define do
  name 'Jetty'
  matches [
    { :search => "headers[server]", :version => /Jetty\(([\d.]+)/, :name => 'server' },
    { :regexp => /powered by jetty/mix },
  ]
end
`
	defs, err := Parse("jetty.rb", []byte(src))
	require.NoError(t, err)
	def := defs[0]

	require.Len(t, def.Matches, 2)
	require.Equal(t, `Jetty\(([\d.]+)`, def.Matches[0].Pattern)
	require.Equal(t, "headers[server]", def.Matches[0].Search)
	require.Equal(t, "(?x)powered by jetty", def.Matches[1].Pattern)
	require.True(t, def.Matches[1].IgnoreCase)
	require.True(t, def.Matches[1].DotAll)

	require.Len(t, def.Versions, 1)
	require.Equal(t, "server", def.Versions[0].Label)

	cat, err := fingerprint.BuildCatalog(defs)
	require.NoError(t, err)
	ids := fingerprint.Scan(&fingerprint.Observation{
		Headers: map[string][]string{"Server": {"Jetty(9.4.51.v20230217)"}},
	}, cat)
	require.Len(t, ids, 1)
	require.Equal(t, "9.4.51.", ids[0].Version)
}

func TestParse_MultipleBlocks(t *testing.T) {
	var bundle []byte
	for _, name := range []string{"apache_tomcat.rb", "fastcgi.rb"} {
		data, err := os.ReadFile(filepath.Join("testdata", name))
		require.NoError(t, err)
		bundle = append(bundle, data...)
		bundle = append(bundle, '\n')
	}
	defs, err := Parse("bundle.rb", bundle)
	require.NoError(t, err)
	require.Len(t, defs, 2)
	require.Equal(t, "FastCGI", defs[1].Name)
	require.Equal(t, "headers", defs[1].Matches[1].Search)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		line int
	}{
		{"empty", "", 1},
		{"not a plugin", "puts 'hello'", 1},
		{"unterminated string", "Plugin.define do\n  name \"x\n", 2},
		{"unterminated regexp", "Plugin.define do\n  matches [{:regexp => /abc\n}]\nend", 2},
		{"code block", "Plugin.define do\n  passive do\n  end\nend", 2},
		{"missing end", "Plugin.define do\n  name \"x\"\n", 3},
		{"bad offset", "Plugin.define do\n  version [{:regexp => /(x)/, :offset => :first}]\nend", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("bad.rb", []byte(tt.src))
			require.Error(t, err)
			var pe *ParseError
			require.True(t, errors.As(err, &pe), "got %T", err)
			require.Equal(t, tt.line, pe.Line)
			require.Contains(t, err.Error(), "bad.rb:")
		})
	}
}

func TestParse_RealFilesBuildIntoCatalog(t *testing.T) {
	entries, err := os.ReadDir("testdata")
	require.NoError(t, err)

	var defs []fingerprint.Definition
	for _, e := range entries {
		defs = append(defs, parseFile(t, e.Name())...)
	}
	cat, err := fingerprint.BuildCatalog(defs)
	require.NoError(t, err)
	require.Equal(t, len(entries), cat.Len())

	ids := fingerprint.Scan(&fingerprint.Observation{Body: "<title>Apache Tomcat</title>"}, cat)
	require.Len(t, ids, 1)
	require.Equal(t, "Apache Tomcat", ids[0].Plugin)
}
