// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package fingerprint

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Scanner runs a catalog against observations. A Scanner is safe for concurrent use.
type Scanner struct {
	catalog     *Catalog
	workers     int
	targetLimit int
	logger      zerolog.Logger
}

// ScannerOption configures a Scanner.
type ScannerOption func(*Scanner)

// WithWorkers sets how many plugins are evaluated in parallel for one observation.
func WithWorkers(n int) ScannerOption {
	return func(s *Scanner) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithTargetConcurrency sets how many observations ScanAll processes at once.
func WithTargetConcurrency(n int) ScannerOption {
	return func(s *Scanner) {
		if n > 0 {
			s.targetLimit = n
		}
	}
}

// WithLogger sets the scanner logger.
func WithLogger(logger zerolog.Logger) ScannerOption {
	return func(s *Scanner) {
		s.logger = logger
	}
}

// NewScanner creates a Scanner over cat.
func NewScanner(cat *Catalog, opts ...ScannerOption) *Scanner {
	s := &Scanner{
		catalog:     cat,
		workers:     runtime.GOMAXPROCS(0),
		targetLimit: 4,
		logger:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With().Str("component", "scanner").Logger()
	return s
}

// Scan evaluates every plugin of cat against obs and returns the identifications
// in catalog order.
func Scan(obs *Observation, cat *Catalog) []Identification {
	ids, _ := NewScanner(cat).Scan(context.Background(), obs)
	return ids
}

// Scan evaluates every plugin against obs. The result lists matched plugins, and
// unmatched plugins whose evaluation hit a rule budget, in catalog order. When
// ctx is cancelled no further plugins are dispatched; the identifications
// collected so far are returned together with ctx.Err().
func (s *Scanner) Scan(ctx context.Context, obs *Observation) ([]Identification, error) {
	plugins := s.catalog.Plugins()
	if len(plugins) == 0 {
		return nil, ctx.Err()
	}

	start := time.Now()
	view := newFieldView(obs)
	slots := make([]*Identification, len(plugins))

	workers := s.workers
	if workers > len(plugins) {
		workers = len(plugins)
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				slots[i] = s.evaluate(view, plugins[i])
			}
		}()
	}

dispatch:
	for i := range plugins {
		select {
		case <-ctx.Done():
			break dispatch
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	ids := make([]Identification, 0, len(plugins))
	for _, id := range slots {
		if id != nil {
			ids = append(ids, *id)
		}
	}

	target := ""
	if obs != nil {
		target = obs.Target
	}
	s.logger.Debug().
		Str("target", target).
		Int("plugins", len(plugins)).
		Int("identifications", len(ids)).
		Dur("elapsed", time.Since(start)).
		Msg("scan finished")

	return ids, ctx.Err()
}

func (s *Scanner) evaluate(view *fieldView, p *Plugin) *Identification {
	verdict := p.match(view)
	if !verdict.Matched {
		if len(verdict.Inconclusive) == 0 {
			return nil
		}
		s.logger.Debug().Str("plugin", p.Name).Strs("rules", verdict.Inconclusive).
			Msg("rule evaluation exceeded budget")
		return &Identification{
			Plugin:       p.Name,
			MatchedRules: []string{},
			Category:     p.Category,
			Confidence:   ConfidenceInconclusive,
			Inconclusive: verdict.Inconclusive,
		}
	}

	version, timedOut := p.extractVersion(view)
	model, modelTimedOut := p.extractModel(view)
	inconclusive := append(verdict.Inconclusive, timedOut...)
	inconclusive = append(inconclusive, modelTimedOut...)
	if len(inconclusive) > 0 {
		s.logger.Debug().Str("plugin", p.Name).Strs("rules", inconclusive).
			Msg("rule evaluation exceeded budget")
	}
	return &Identification{
		Plugin:       p.Name,
		MatchedRules: verdict.Fired,
		Version:      version,
		Model:        model,
		Category:     p.Category,
		Confidence:   confidenceFor(len(verdict.Fired), version != ""),
		Inconclusive: inconclusive,
	}
}

// ScanAll scans several observations in parallel. The result is indexed like
// observations. The first error (a cancellation) stops further targets.
func (s *Scanner) ScanAll(ctx context.Context, observations []*Observation) ([][]Identification, error) {
	results := make([][]Identification, len(observations))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.targetLimit)
	for i, obs := range observations {
		g.Go(func() error {
			ids, err := s.Scan(gctx, obs)
			results[i] = ids
			return err
		})
	}
	return results, g.Wait()
}
