// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/vulntor/webprint/cmd/webprint/internal/bind"
	"github.com/vulntor/webprint/cmd/webprint/internal/format"
	"github.com/vulntor/webprint/pkg/config"
	"github.com/vulntor/webprint/pkg/fingerprint"
	"github.com/vulntor/webprint/pkg/observe"
	"github.com/vulntor/webprint/pkg/signatures"
	"github.com/vulntor/webprint/pkg/workspace"
)

func newScanCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan <observation>...",
		Short: "Identify web technologies in recorded HTTP observations",
		Long: `Scan matches every signature of the catalog against the given observations.

An observation file is either JSON (one object or a list, with target, headers,
body, cookies and tls fields) or a raw HTTP response as printed by curl -i.
Observations of the same target are merged into one report unless
--per-observation is set.`,
		Example: `  webprint scan response.http
  webprint scan --min-confidence high -o json captures/*.json
  webprint scan --signatures ./sigs --watch response.http`,
		GroupID: "scan",
		Args:    cobra.ArbitraryArgs,
		RunE:    runScanCommand,
	}

	addOutputFlags(cmd.Flags())
	cmd.Flags().String("min-confidence", fingerprint.ConfidenceLow.String(), "Lowest confidence reported (inconclusive, low, high)")
	cmd.Flags().String("version-constraint", "", "Only report versions satisfying this semver constraint, e.g. \">= 9, < 10\"")
	cmd.Flags().StringSlice("version-plugin", nil, "Plugins the version constraint applies to (default: all)")
	cmd.Flags().Bool("per-observation", false, "Report every observation separately instead of merging per target")
	cmd.Flags().Bool("watch", false, "Rescan when signature files change")

	return cmd
}

func runScanCommand(cmd *cobra.Command, args []string) error {
	formatter := format.FromCommand(cmd)

	opts, err := bind.BindScanOptions(cmd, args)
	if err != nil {
		return report(formatter, "scan", err)
	}

	ctx := cmd.Context()
	cfg := configFrom(ctx)
	logger := log.With().Str("command", "scan").Logger()

	observations, err := loadObservations(opts.Files)
	if err != nil {
		return report(formatter, "scan", err)
	}

	runner := &scanRunner{
		opts:         opts,
		cfg:          cfg,
		loader:       newLoader(ctx, cfg, logger),
		formatter:    formatter,
		logger:       logger,
		observations: observations,
	}
	if cfg.Telemetry.File == "" {
		if ws, ok := workspace.FromContext(ctx); ok {
			runner.telemetryFile = workspace.TelemetryFile(ws)
		}
	} else {
		runner.telemetryFile = cfg.Telemetry.File
	}

	var watchPaths []string
	if opts.Watch {
		watchPaths = runner.loader.WatchPaths()
		if len(watchPaths) == 0 {
			return report(formatter, "scan", format.InvalidArgument("--watch needs --signatures or a signature cache to watch"))
		}
	}

	if err := runner.run(ctx); err != nil {
		return report(formatter, "scan", err)
	}
	if !opts.Watch {
		return nil
	}
	return runner.watch(ctx, watchPaths)
}

func loadObservations(files []string) ([]*fingerprint.Observation, error) {
	var out []*fingerprint.Observation
	for _, file := range files {
		obs, err := observe.LoadFile(file)
		if err != nil {
			return nil, format.WithCode(err, format.CodeObservation)
		}
		out = append(out, obs...)
	}
	return out, nil
}

// newLoader wires the configured signature sources. The cache directory
// defaults to the workspace cache.
func newLoader(ctx context.Context, cfg config.Config, logger zerolog.Logger) *signatures.Loader {
	return &signatures.Loader{
		Builtin:  cfg.Catalog.Builtin,
		CacheDir: cacheDir(ctx, cfg),
		Paths:    cfg.Catalog.Paths,
		Logger:   logger,
	}
}

func cacheDir(ctx context.Context, cfg config.Config) string {
	if cfg.Catalog.CacheDir != "" {
		return cfg.Catalog.CacheDir
	}
	if ws, ok := workspace.FromContext(ctx); ok {
		return workspace.SignatureCacheDir(ws)
	}
	return ""
}

// buildCatalog compiles the configured sources. Rejected definitions are
// logged; the build fails only when no plugin survives.
func buildCatalog(loader *signatures.Loader, cfg config.Config, logger zerolog.Logger) (*fingerprint.Catalog, error) {
	cat, err := loader.Build(
		fingerprint.WithRuleTimeout(cfg.Engine.RuleTimeout),
		fingerprint.WithExclude(cfg.Engine.Exclude...),
	)
	if cat.Len() == 0 {
		if err == nil {
			err = fingerprint.ErrEmptyCatalog
		}
		return nil, err
	}
	if err != nil {
		logger.Warn().Err(err).Int("plugins", cat.Len()).Msg("Some signatures were not loaded")
	}
	return cat, nil
}

// ScanReport is the JSON document printed by scan.
type ScanReport struct {
	ScanID  string         `json:"scan_id"`
	Plugins int            `json:"plugins"`
	Targets []TargetReport `json:"targets"`
}

// TargetReport holds the identifications of one target.
type TargetReport struct {
	Target          string               `json:"target"`
	Observations    int                  `json:"observations"`
	Identifications []fingerprint.Report `json:"identifications"`
}

type scanRunner struct {
	opts          bind.ScanOptions
	cfg           config.Config
	loader        *signatures.Loader
	formatter     format.Formatter
	logger        zerolog.Logger
	observations  []*fingerprint.Observation
	telemetryFile string

	mu sync.Mutex
}

func (r *scanRunner) run(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cat, err := buildCatalog(r.loader, r.cfg, r.logger)
	if err != nil {
		return err
	}

	scanner := fingerprint.NewScanner(cat,
		fingerprint.WithWorkers(r.cfg.Engine.Workers),
		fingerprint.WithTargetConcurrency(r.cfg.Engine.TargetConcurrency),
		fingerprint.WithLogger(r.logger),
	)
	scanID := fingerprint.NewScanID()
	results, err := scanner.ScanAll(ctx, r.observations)
	if err != nil {
		return format.WithCode(fmt.Errorf("scan observations: %w", err), format.CodeScanFailed)
	}

	if err := r.recordTelemetry(scanID, results); err != nil {
		r.logger.Warn().Err(err).Str("file", r.telemetryFile).Msg("Failed to write telemetry")
	}

	rep, err := r.buildReport(scanID, cat.Len(), results)
	if err != nil {
		return format.WithCode(err, format.CodeInvalidArgument)
	}
	return r.render(rep)
}

func (r *scanRunner) recordTelemetry(scanID string, results [][]fingerprint.Identification) error {
	if r.telemetryFile == "" {
		return nil
	}
	w, err := fingerprint.NewTelemetryWriter(r.telemetryFile)
	if err != nil {
		return err
	}
	var errs []error
	for i, obs := range r.observations {
		errs = append(errs, w.WriteScan(scanID, obs.Target, results[i]))
	}
	errs = append(errs, w.Close())
	return errors.Join(errs...)
}

func (r *scanRunner) buildReport(scanID string, plugins int, results [][]fingerprint.Identification) (ScanReport, error) {
	rep := ScanReport{ScanID: scanID, Plugins: plugins, Targets: []TargetReport{}}

	var (
		order  []string
		groups = make(map[string][][]fingerprint.Identification)
	)
	for i, obs := range r.observations {
		ids := fingerprint.FilterByConfidence(results[i], r.opts.MinConfidence)
		ids, err := fingerprint.FilterByVersion(ids, r.opts.VersionConstraint, r.opts.VersionPlugins...)
		if err != nil {
			return rep, err
		}

		key := obs.Target
		if r.opts.PerObservation {
			key = fmt.Sprintf("%d\x00%s", i, obs.Target)
		}
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], ids)
	}

	for _, key := range order {
		target := key
		if r.opts.PerObservation {
			target = key[strings.IndexByte(key, 0)+1:]
		}
		rep.Targets = append(rep.Targets, TargetReport{
			Target:          target,
			Observations:    len(groups[key]),
			Identifications: fingerprint.MergeIdentifications(groups[key]...),
		})
	}
	return rep, nil
}

func (r *scanRunner) render(rep ScanReport) error {
	if r.formatter.IsJSON() {
		return r.formatter.PrintJSON(rep)
	}

	total := 0
	for _, t := range rep.Targets {
		if err := r.formatter.PrintHeading(t.Target); err != nil {
			return err
		}
		if len(t.Identifications) == 0 {
			if err := r.formatter.PrintSummary("No technologies identified"); err != nil {
				return err
			}
			continue
		}
		rows := make([][]string, 0, len(t.Identifications))
		for _, id := range t.Identifications {
			rows = append(rows, []string{id.Plugin, string(id.Category), versionCell(id), r.formatter.Confidence(id.Confidence), rulesCell(id)})
		}
		total += len(rows)
		if err := r.formatter.PrintTable([]string{"Plugin", "Category", "Version", "Confidence", "Matched Rules"}, rows); err != nil {
			return err
		}
	}

	return r.formatter.PrintSummary(fmt.Sprintf("\n%d identification(s) across %d target(s), %d plugin(s) in catalog",
		total, len(rep.Targets), rep.Plugins))
}

func versionCell(r fingerprint.Report) string {
	cell := strings.Join(r.Versions, ", ")
	if len(r.Models) > 0 {
		if cell != "" {
			cell += " "
		}
		cell += "(model " + strings.Join(r.Models, ", ") + ")"
	}
	if cell == "" {
		return "-"
	}
	return cell
}

func rulesCell(r fingerprint.Report) string {
	cell := strings.Join(r.MatchedRules, "; ")
	if len(r.Inconclusive) > 0 {
		if cell != "" {
			cell += " "
		}
		cell += "[timed out: " + strings.Join(r.Inconclusive, "; ") + "]"
	}
	if cell == "" {
		return "-"
	}
	return cell
}

// watch rescans whenever a watched signature file changes, until ctx ends.
func (r *scanRunner) watch(ctx context.Context, paths []string) error {
	w, err := signatures.NewWatcher(paths, func() error { return r.run(ctx) }, r.logger)
	if err != nil {
		return report(r.formatter, "watch signatures", err)
	}
	defer func() { _ = w.Close() }()

	_ = r.formatter.PrintSummary(fmt.Sprintf("Watching %d signature path(s) for changes", len(paths)))
	if err := w.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return report(r.formatter, "watch signatures", err)
	}
	return nil
}
