// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/vulntor/webprint/cmd/webprint/internal/bind"
	"github.com/vulntor/webprint/cmd/webprint/internal/format"
	"github.com/vulntor/webprint/pkg/fingerprint"
	"github.com/vulntor/webprint/pkg/fingerprint/catalogsync"
	"github.com/vulntor/webprint/pkg/signatures"
)

func newCatalogCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "catalog",
		Aliases: []string{"signatures", "sig"},
		Short:   "Manage signature catalogs",
		GroupID: "core",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(newCatalogListCommand())
	cmd.AddCommand(newCatalogValidateCommand())
	cmd.AddCommand(newCatalogSyncCommand())

	return cmd
}

// CatalogEntry is the JSON view of one plugin.
type CatalogEntry struct {
	Name         string   `json:"name"`
	Description  string   `json:"description,omitempty"`
	Website      string   `json:"website,omitempty"`
	Category     string   `json:"category"`
	Matchers     int      `json:"matchers"`
	VersionRules int      `json:"version_rules"`
	ModelRules   int      `json:"model_rules,omitempty"`
	Sources      []string `json:"sources,omitempty"`
}

func newCatalogListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the plugins of the configured catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			formatter := format.FromCommand(cmd)
			if err := checkOutputMode(cmd); err != nil {
				return report(formatter, "list catalog", err)
			}

			ctx := cmd.Context()
			cfg := configFrom(ctx)
			logger := log.With().Str("command", "catalog list").Logger()

			cat, err := buildCatalog(newLoader(ctx, cfg, logger), cfg, logger)
			if err != nil {
				return report(formatter, "list catalog", err)
			}

			entries := make([]CatalogEntry, 0, cat.Len())
			for _, p := range cat.Plugins() {
				entries = append(entries, CatalogEntry{
					Name:         p.Name,
					Description:  p.Description,
					Website:      p.Website,
					Category:     string(p.Category),
					Matchers:     len(p.Matchers),
					VersionRules: len(p.VersionRules),
					ModelRules:   len(p.ModelRules),
					Sources:      p.Sources,
				})
			}

			if formatter.IsJSON() {
				return formatter.PrintJSON(entries)
			}

			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				rows = append(rows, []string{e.Name, e.Category, strconv.Itoa(e.Matchers), strconv.Itoa(e.VersionRules), strings.Join(e.Sources, ", ")})
			}
			if err := formatter.PrintTable([]string{"Name", "Category", "Matchers", "Version Rules", "Sources"}, rows); err != nil {
				return err
			}
			return formatter.PrintSummary(fmt.Sprintf("\n%d plugin(s), %d merged definition(s), %d excluded, %d warning(s)",
				cat.Len(), len(cat.Merges()), len(cat.Excluded()), len(cat.Warnings())))
		},
	}

	addOutputFlags(cmd.Flags())
	return cmd
}

// findingView is the JSON view of a validation finding.
type findingView struct {
	Plugin   string `json:"plugin,omitempty"`
	Source   string `json:"source,omitempty"`
	Field    string `json:"field,omitempty"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
}

type validationView struct {
	Valid    bool          `json:"valid"`
	Strict   bool          `json:"strict"`
	Plugins  int           `json:"plugins"`
	Errors   []findingView `json:"errors"`
	Warnings []findingView `json:"warnings"`
}

func newCatalogValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [path]...",
		Short: "Lint signature files",
		Long: `Validate parses signature files and directories and reports definitions
that would be rejected (errors) or that load but can never fire or extract a
version (warnings). Without arguments the embedded signatures are checked.`,
		Example: `  webprint catalog validate ./signatures
  webprint catalog validate --strict plugins/tomcat.rb`,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := format.FromCommand(cmd)
			if err := checkOutputMode(cmd); err != nil {
				return report(formatter, "validate signatures", err)
			}
			opts := bind.BindValidateOptions(cmd, args)

			var (
				defs []fingerprint.Definition
				err  error
			)
			if opts.Builtin {
				defs, err = signatures.Builtin()
			} else {
				defs, err = signatures.LoadPaths(opts.Paths...)
			}
			if err != nil {
				err = fmt.Errorf("%w: %w", fingerprint.ErrInvalidDefinition, err)
				return report(formatter, "validate signatures", err)
			}

			result := fingerprint.NewValidator(opts.Strict).Validate(defs)
			if err := printValidation(formatter, result); err != nil {
				return err
			}
			err = result.Err()
			if err != nil && formatter.IsJSON() {
				return reportedError{err}
			}
			return report(formatter, "validate signatures", err)
		},
	}

	addOutputFlags(cmd.Flags())
	cmd.Flags().Bool("strict", false, "Treat warnings as errors")
	return cmd
}

func printValidation(formatter format.Formatter, result *fingerprint.ValidationResult) error {
	if formatter.IsJSON() {
		view := validationView{
			Valid:    result.IsValid(),
			Strict:   result.Strict,
			Plugins:  result.PluginCount,
			Errors:   findings(result.Errors),
			Warnings: findings(result.Warnings),
		}
		return formatter.PrintJSON(view)
	}

	all := append(append([]fingerprint.ValidationError(nil), result.Errors...), result.Warnings...)
	if len(all) > 0 {
		rows := make([][]string, 0, len(all))
		for _, f := range all {
			rows = append(rows, []string{f.Severity, orDash(f.Plugin), orDash(f.Field), f.Message})
		}
		if err := formatter.PrintTable([]string{"Severity", "Plugin", "Field", "Message"}, rows); err != nil {
			return err
		}
	}
	return formatter.PrintSummary(fmt.Sprintf("%d definition(s) checked: %d error(s), %d warning(s)",
		result.PluginCount, len(result.Errors), len(result.Warnings)))
}

func findings(list []fingerprint.ValidationError) []findingView {
	out := make([]findingView, 0, len(list))
	for _, f := range list {
		out = append(out, findingView(f))
	}
	return out
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func newCatalogSyncCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Sync a signature bundle from a remote or local source",
		Long: `Sync downloads or reads a signature bundle, checks that every definition
compiles, and installs it into the signature cache used by scan.`,
		Example: `  webprint catalog sync --url https://example.com/signatures.yaml
  webprint catalog sync --file ./whatweb/plugins.rb --cache-dir /tmp/sigs`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			formatter := format.FromCommand(cmd)
			if err := checkOutputMode(cmd); err != nil {
				return report(formatter, "sync catalog", err)
			}
			opts, err := bind.BindSyncOptions(cmd)
			if err != nil {
				return report(formatter, "sync catalog", err)
			}

			ctx := cmd.Context()
			destination := opts.CacheDir
			if destination == "" {
				destination = cacheDir(ctx, configFrom(ctx))
			}
			if destination == "" {
				return report(formatter, "sync catalog", fingerprint.NewStorageDisabledError())
			}

			svc := catalogsync.Service{
				CacheDir: destination,
				Logger:   log.With().Str("command", "catalog sync").Logger(),
			}
			if opts.FilePath != "" {
				svc.Source = catalogsync.FileSource{Path: opts.FilePath}
			} else {
				svc.Source = catalogsync.HTTPSource{URL: opts.URL}
			}

			result, err := svc.Sync(ctx)
			if err != nil {
				return report(formatter, "sync catalog", err)
			}

			if formatter.IsJSON() {
				return formatter.PrintJSON(map[string]any{
					"success":     true,
					"source":      svc.Source.Name(),
					"path":        result.Path,
					"definitions": result.Definitions,
					"plugins":     result.Catalog.Len(),
				})
			}
			return formatter.PrintSummary(fmt.Sprintf("✓ Synced %d definition(s) (%d plugin(s)) into %s",
				result.Definitions, result.Catalog.Len(), result.Path))
		},
	}

	addOutputFlags(cmd.Flags())
	cmd.Flags().String("file", "", "Load the signature bundle from a local file")
	cmd.Flags().String("url", "", "Download the signature bundle from a remote URL")
	cmd.Flags().String("cache-dir", "", "Override the signature cache directory")

	return cmd
}
