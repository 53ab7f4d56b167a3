// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func jqueryDefinition() Definition {
	return Definition{
		Name: "jQuery",
		Matches: []MatcherDef{
			{Kind: KindRegexp, Pattern: `jquery[.-]([0-9.]+)(\.min)?\.js`, IgnoreCase: true, Label: "jQuery Script"},
		},
		Versions: []VersionRuleDef{
			{Pattern: `jquery[.-]([0-9.]+?)(\.min)?\.js`, IgnoreCase: true},
		},
	}
}

func TestParseCategory(t *testing.T) {
	tests := []struct {
		in      string
		want    Category
		wantErr bool
	}{
		{in: "JAVASCRIPT_LIBRARY", want: CategoryJavaScriptLibrary},
		{in: " backend_component ", want: CategoryBackendComponent},
		{in: "dotnet_framework", want: CategoryDotNetFramework},
		{in: "frontend", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseCategory(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestCategoryFor(t *testing.T) {
	require.Equal(t, CategoryJavaScriptLibrary, CategoryFor("jQuery"))
	require.Equal(t, CategoryDotNetFramework, CategoryFor(".NET Framework"))
	require.Equal(t, DefaultCategory, CategoryFor("Apache Tomcat"))
}

func TestBuildCatalog_Category(t *testing.T) {
	declared := symfonyDefinition()
	declared.Category = "PROGRAMMING_LANGUAGE"

	cat := mustCatalog(t, jqueryDefinition(), tomcatDefinition(), declared)

	jq, ok := cat.Lookup("jQuery")
	require.True(t, ok)
	require.Equal(t, CategoryJavaScriptLibrary, jq.Category)

	tomcat, ok := cat.Lookup("Apache Tomcat")
	require.True(t, ok)
	require.Equal(t, CategoryBackendComponent, tomcat.Category)

	symfony, ok := cat.Lookup("Symfony")
	require.True(t, ok)
	require.Equal(t, CategoryProgrammingLanguage, symfony.Category)

	ids := Scan(&Observation{Body: `<script src="/js/jquery-3.6.0.min.js"></script>`}, cat)
	require.Len(t, ids, 1)
	require.Equal(t, CategoryJavaScriptLibrary, ids[0].Category)
	require.Equal(t, "3.6.0", ids[0].Version)
}

func TestBuildCatalog_CategoryFirstDeclarationWins(t *testing.T) {
	plain := tomcatDefinition()
	declared := tomcatDefinition()
	declared.Category = CategoryJavaLibrary
	declared.Source = "override.yaml"
	other := tomcatDefinition()
	other.Category = CategoryPELibrary
	other.Source = "late.yaml"

	p, ok := mustCatalog(t, plain, declared, other).Lookup("Apache Tomcat")
	require.True(t, ok)
	require.Equal(t, CategoryJavaLibrary, p.Category)
}

func TestBuildCatalog_RejectsUnknownCategory(t *testing.T) {
	def := tomcatDefinition()
	def.Category = "frontend"

	cat, err := BuildCatalog([]Definition{def, adminerDefinition()})
	require.Error(t, err)
	require.Equal(t, 1, cat.Len())

	var loadErrs *LoadErrors
	require.ErrorAs(t, err, &loadErrs)
	require.Len(t, loadErrs.Errors, 1)
	require.Equal(t, "category", loadErrs.Errors[0].Field)
}
