// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package logging configures zerolog for webprint binaries and hands out
// component-tagged loggers.
package logging

import (
	"fmt"
	"io"
	stdLog "log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Output formats.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

var (
	writerMu sync.RWMutex
	// logWriter is the destination of the global logger
	logWriter io.Writer = os.Stderr
	logFormat           = FormatConsole
)

// stdLogWriter reformats stdlog output as zerolog events
type stdLogWriter struct {
	logger zerolog.Logger
}

func (w *stdLogWriter) Write(p []byte) (n int, err error) {
	message := strings.TrimSuffix(string(p), "\n")

	// Example stdlog output: "2025/05/23 14:40:15 watcher.go:35: reload requested"
	parts := strings.SplitN(message, " ", 4)
	if len(parts) >= 4 {
		stdTime, err := time.Parse("2006/01/02 15:04:05", parts[0]+" "+parts[1])
		if err == nil {
			fileLine := strings.TrimSuffix(parts[2], ":")
			w.logger.Debug().
				Str("file", fileLine).
				Time("time", stdTime).
				Msg(parts[3])
			return len(p), nil
		}
	}

	w.logger.Debug().Msg(message)
	return len(p), nil
}

// init keeps the global logger quiet until a binary configures it.
func init() {
	log.Logger = zerolog.New(consoleWriter(os.Stderr)).With().Timestamp().Logger().Level(zerolog.ErrorLevel)
}

func consoleWriter(out io.Writer) io.Writer {
	return zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
}

// ParseLevel converts a level name into a zerolog.Level. An empty name selects
// the error level.
func ParseLevel(levelString string) (zerolog.Level, error) {
	if levelString == "" {
		return zerolog.ErrorLevel, nil
	}
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(levelString)))
	if err != nil {
		return zerolog.ErrorLevel, fmt.Errorf("invalid log level %q: %w", levelString, err)
	}
	return level, nil
}

// ParseFormat validates an output format name. An empty name selects console.
func ParseFormat(format string) (string, error) {
	switch f := strings.ToLower(strings.TrimSpace(format)); f {
	case "", FormatConsole:
		return FormatConsole, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("invalid log format %q (must be console or json)", format)
	}
}

// ConfigureGlobalLogging configures the global logger from a level name using
// the current writer and format.
func ConfigureGlobalLogging(levelStr string) error {
	level, err := ParseLevel(levelStr)
	if err != nil {
		return err
	}
	ConfigureGlobal(level)
	return nil
}

// Configure sets level and format of the global logger in one step.
func Configure(levelStr, format string) error {
	f, err := ParseFormat(format)
	if err != nil {
		return err
	}
	writerMu.Lock()
	logFormat = f
	writerMu.Unlock()
	return ConfigureGlobalLogging(levelStr)
}

// ConfigureGlobal sets the global level and rebuilds the global logger. At
// debug level and below, events carry the caller location.
func ConfigureGlobal(level zerolog.Level) {
	zerolog.SetGlobalLevel(level)

	logContext := zerolog.New(getLogWriter()).With().Timestamp()
	if level <= zerolog.DebugLevel {
		logContext = logContext.Caller()
	}

	log.Logger = logContext.Logger().Level(level)
	zerolog.DefaultContextLogger = &log.Logger

	stdLog.SetFlags(0)
	stdLog.SetOutput(&stdLogWriter{logger: WithLevelOverride(log.Logger, zerolog.DebugLevel)})
}

// getLogWriter returns the writer for the configured format.
func getLogWriter() io.Writer {
	writerMu.RLock()
	defer writerMu.RUnlock()
	if logFormat == FormatJSON {
		return logWriter
	}
	return consoleWriter(logWriter)
}

// SetLogWriter sets the destination of the global logger. It takes effect on
// the next Configure call.
func SetLogWriter(w io.Writer) {
	writerMu.Lock()
	defer writerMu.Unlock()
	logWriter = w
}

// NewLogger returns a logger derived from the global logger, tagged with
// component.
func NewLogger(component string, level zerolog.Level) zerolog.Logger {
	return log.Logger.Level(level).With().Str("component", component).Logger()
}

// NewLoggerWithWriter returns a JSON logger writing to w, tagged with component.
func NewLoggerWithWriter(component string, level zerolog.Level, w io.Writer) zerolog.Logger {
	return zerolog.New(w).Level(level).With().Timestamp().Str("component", component).Logger()
}

// LevelOverrideHook assigns a level to NoLevel events and filters events
// below a minimum severity.
type LevelOverrideHook struct {
	minSeverity zerolog.Level
	targetLevel zerolog.Level
}

// NewLevelOverrideHook creates a LevelOverrideHook. Events below minSeverity
// are discarded; NoLevel events are reported at targetLevel.
func NewLevelOverrideHook(minSeverity, targetLevel zerolog.Level) *LevelOverrideHook {
	return &LevelOverrideHook{
		minSeverity: minSeverity,
		targetLevel: targetLevel,
	}
}

// Run implements zerolog.Hook.
func (h LevelOverrideHook) Run(e *zerolog.Event, currentLevel zerolog.Level, _ string) {
	if h.minSeverity > h.targetLevel {
		e.Discard()
		return
	}
	if currentLevel == zerolog.NoLevel {
		e.Str("level", h.targetLevel.String())
	}
}

// WithLevelOverride configures a logger to handle NoLevel events and level filtering.
func WithLevelOverride(logger zerolog.Logger, targetLevel zerolog.Level) zerolog.Logger {
	return logger.Hook(NewLevelOverrideHook(logger.GetLevel(), targetLevel))
}
