// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func tomcatDefinition() Definition {
	return Definition{
		Name:        "Apache Tomcat",
		Authors:     []string{"Ostorlab"},
		Revision:    "0.1",
		Description: "Apache Tomcat is an implementation of the Jakarta Servlet specification.",
		Website:     "https://tomcat.apache.org/",
		Matches: []MatcherDef{
			{Search: "head", Kind: KindRegexp, Pattern: `<title>Apache Tomcat`, Multiline: true, Label: "Tomcat Title Tag"},
		},
		Source: "apache_tomcat.rb",
	}
}

func adminerDefinition() Definition {
	return Definition{
		Name:     "Adminer",
		Authors:  []string{"Ostorlab"},
		Revision: "0.1",
		Website:  "https://www.adminer.org/",
		Matches: []MatcherDef{
			{Kind: KindRegexp, Pattern: `<title>Login - Adminer<\/title>`, IgnoreCase: true, Multiline: true, Label: "Adminer Login Page Title"},
			{Kind: KindRegexp, Pattern: `adminer\.php\?file=default\.css&amp;version=\d+\.\d+\.\d+`, IgnoreCase: true, Multiline: true, Label: "Adminer Default CSS Reference"},
		},
		Versions: []VersionRuleDef{
			{Pattern: `adminer\.php\?file=default\.css&amp;version=([0-9.]+)`, IgnoreCase: true, Multiline: true, Label: "Adminer Version (CSS)"},
			{Pattern: `adminer\.php\?file=functions\.js&amp;version=([0-9.]+)`, IgnoreCase: true, Multiline: true, Label: "Adminer Version (JS)"},
			{Pattern: `<span class='version'>([0-9.]+)`, IgnoreCase: true, Multiline: true, Label: "Adminer Version (Footer)"},
		},
		Source: "adminer_php.rb",
	}
}

func fastCGIDefinition() Definition {
	return Definition{
		Name: "FastCGI",
		Matches: []MatcherDef{
			{Kind: KindRegexp, Pattern: `<title>TurnKey NGINX PHP FastCGI Server<\/title>`, IgnoreCase: true, Label: "FastCGI Default Test Page Title"},
			{Search: "headers", Kind: KindRegexp, Pattern: `fastcgi`, IgnoreCase: true, Label: "FastCGI Header Detected"},
		},
	}
}

func symfonyDefinition() Definition {
	return Definition{
		Name: "Symfony",
		Matches: []MatcherDef{
			{Search: "headers[set-cookie]", Kind: KindRegexp, Pattern: `symfony`, IgnoreCase: true, Label: "Symfony Set-Cookie Header"},
		},
	}
}

func mustCatalog(t testing.TB, defs ...Definition) *Catalog {
	t.Helper()
	cat, err := BuildCatalog(defs)
	require.NoError(t, err)
	return cat
}

func mustPlugin(t testing.TB, def Definition) *Plugin {
	t.Helper()
	p, ok := mustCatalog(t, def).Lookup(def.Name)
	require.True(t, ok)
	return p
}
