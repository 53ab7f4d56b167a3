// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package fingerprint

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event match types.
const (
	EventIdentified   = "identified"
	EventInconclusive = "inconclusive"
	EventNoMatch      = "no_match"
)

// DetectionEvent is one telemetry record of a scan.
type DetectionEvent struct {
	Timestamp    time.Time  `json:"timestamp"`
	ScanID       string     `json:"scan_id"`
	Target       string     `json:"target"`
	MatchType    string     `json:"match_type"`
	Plugin       string     `json:"plugin,omitempty"`
	Version      string     `json:"version,omitempty"`
	Model        string     `json:"model,omitempty"`
	Category     Category   `json:"category,omitempty"`
	Confidence   Confidence `json:"confidence"`
	MatchedRules []string   `json:"matched_rules,omitempty"`
	Inconclusive []string   `json:"inconclusive,omitempty"`
}

// NewScanID returns a fresh identifier correlating the events of one scan.
func NewScanID() string {
	return uuid.NewString()
}

// TelemetryWriter appends detection events to a JSONL file. It is safe for
// concurrent use.
type TelemetryWriter struct {
	filePath string
	file     *os.File
	encoder  *json.Encoder
	mu       sync.Mutex
	enabled  bool
	now      func() time.Time
}

// NewTelemetryWriter opens filePath for appending. An empty path returns a
// disabled writer.
func NewTelemetryWriter(filePath string) (*TelemetryWriter, error) {
	if filePath == "" {
		return &TelemetryWriter{enabled: false}, nil
	}

	file, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open telemetry file: %w", err)
	}

	return &TelemetryWriter{
		filePath: filePath,
		file:     file,
		encoder:  json.NewEncoder(file),
		enabled:  true,
		now:      time.Now,
	}, nil
}

// Write appends one event.
func (w *TelemetryWriter) Write(event DetectionEvent) error {
	if w == nil || !w.enabled {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return fmt.Errorf("telemetry writer is closed")
	}
	if err := w.encoder.Encode(event); err != nil {
		return fmt.Errorf("failed to write telemetry event: %w", err)
	}
	return nil
}

// WriteScan records the identifications of one scan. A scan without
// identifications produces a single no_match event.
func (w *TelemetryWriter) WriteScan(scanID, target string, ids []Identification) error {
	if w == nil || !w.enabled {
		return nil
	}

	ts := w.now()
	if len(ids) == 0 {
		return w.Write(DetectionEvent{
			Timestamp:  ts,
			ScanID:     scanID,
			Target:     target,
			MatchType:  EventNoMatch,
			Confidence: ConfidenceInconclusive,
		})
	}

	for _, id := range ids {
		matchType := EventIdentified
		if !id.Matched() {
			matchType = EventInconclusive
		}
		event := DetectionEvent{
			Timestamp:    ts,
			ScanID:       scanID,
			Target:       target,
			MatchType:    matchType,
			Plugin:       id.Plugin,
			Version:      id.Version,
			Model:        id.Model,
			Category:     id.Category,
			Confidence:   id.Confidence,
			MatchedRules: id.MatchedRules,
			Inconclusive: id.Inconclusive,
		}
		if err := w.Write(event); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the telemetry file.
func (w *TelemetryWriter) Close() error {
	if w == nil || !w.enabled {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("failed to close telemetry file: %w", err)
	}
	w.file = nil
	return nil
}

// IsEnabled reports whether events are written.
func (w *TelemetryWriter) IsEnabled() bool {
	return w != nil && w.enabled
}
