// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package fingerprint

import (
	"fmt"
	"sort"
	"strings"
)

// Category classifies the software a plugin identifies.
type Category string

const (
	CategoryProgrammingLanguage Category = "programming_language"
	CategoryJavaLibrary         Category = "java_library"
	CategoryELFLibrary          Category = "elf_library"
	CategoryIOSFramework        Category = "ios_framework"
	CategoryDotNetFramework     Category = "dotnet_framework"
	CategoryFlutterFramework    Category = "flutter_framework"
	CategoryJavaScriptLibrary   Category = "javascript_library"
	CategoryCordovaFramework    Category = "cordova_framework"
	CategoryMachOLibrary        Category = "macho_library"
	CategoryPELibrary           Category = "pe_library"
	CategoryBackendComponent    Category = "backend_component"
)

// DefaultCategory applies to plugins that neither declare a category nor appear
// in the built-in name table.
const DefaultCategory = CategoryBackendComponent

var knownCategories = map[Category]bool{
	CategoryProgrammingLanguage: true,
	CategoryJavaLibrary:         true,
	CategoryELFLibrary:          true,
	CategoryIOSFramework:        true,
	CategoryDotNetFramework:     true,
	CategoryFlutterFramework:    true,
	CategoryJavaScriptLibrary:   true,
	CategoryCordovaFramework:    true,
	CategoryMachOLibrary:        true,
	CategoryPELibrary:           true,
	CategoryBackendComponent:    true,
}

// categoryByName maps lower-cased plugin names to their category.
var categoryByName = map[string]Category{
	".net framework": CategoryDotNetFramework,
	"jquery":         CategoryJavaScriptLibrary,
	"jquery ui":      CategoryJavaScriptLibrary,
	"php":            CategoryProgrammingLanguage,
}

// ParseCategory normalizes a category name. Matching is case-insensitive so
// JAVASCRIPT_LIBRARY and javascript_library are equivalent.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if !knownCategories[c] {
		return "", fmt.Errorf("unknown category %q (must be one of %s)", s, strings.Join(categoryNames(), ", "))
	}
	return c, nil
}

// CategoryFor returns the category of a plugin name from the built-in table,
// or DefaultCategory.
func CategoryFor(name string) Category {
	if c, ok := categoryByName[strings.ToLower(strings.TrimSpace(name))]; ok {
		return c
	}
	return DefaultCategory
}

func categoryNames() []string {
	names := make([]string, 0, len(knownCategories))
	for c := range knownCategories {
		names = append(names, string(c))
	}
	sort.Strings(names)
	return names
}
