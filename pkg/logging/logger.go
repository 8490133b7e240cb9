// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package logging provides structured logging for the knowledge store
// service and the sync CLI.
//
// The service logs JSON to stdout for container log collection; the CLI
// logs text to stderr following Unix conventions. Either can additionally
// log to a file directory, one file per service per day.
//
// # Basic Usage
//
//	logger, err := logging.New(logging.Config{Service: "rag-service", JSON: true})
//	if err != nil { ... }
//	defer logger.Close()
//	logger.Info("store opened", "documents", count)
//
// # Thread Safety
//
// Logger is safe for concurrent use.
//
// # Security Considerations
//
// This package does NOT automatically redact sensitive data. Callers
// must ensure tokens and secrets are not logged.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Level represents log severity, ordered Debug < Info < Warn < Error.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the human-readable name of the level.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// toSlogLevel bridges our Level type to the standard library.
func (l Level) toSlogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config configures Logger behavior. A zero-value Config creates a
// logger that writes Info+ messages to stderr in text format.
type Config struct {
	// Level is the minimum severity to emit. Defaults to Info.
	Level Level

	// Service names the emitting component; used in the log file name
	// and attached to every record.
	Service string

	// JSON selects JSON output (services) over text (CLIs).
	JSON bool

	// Quiet suppresses the primary stream, leaving only file output.
	Quiet bool

	// LogDir, when set, adds a {service}_{date}.log file sink. The
	// directory is created if needed.
	LogDir string
}

// Logger wraps slog with an owned file sink.
type Logger struct {
	*slog.Logger
	file *os.File
}

// New builds a logger from config and installs it as the slog default.
func New(cfg Config) (*Logger, error) {
	if cfg.Service == "" {
		cfg.Service = "once-human-ai"
	}

	var writers []io.Writer
	if !cfg.Quiet {
		if cfg.JSON {
			writers = append(writers, os.Stdout)
		} else {
			writers = append(writers, os.Stderr)
		}
	}

	var file *os.File
	if cfg.LogDir != "" {
		if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		name := fmt.Sprintf("%s_%s.log", cfg.Service, time.Now().UTC().Format("2006-01-02"))
		f, err := os.OpenFile(filepath.Join(cfg.LogDir, name), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		file = f
		writers = append(writers, f)
	}

	var out io.Writer = io.Discard
	if len(writers) == 1 {
		out = writers[0]
	} else if len(writers) > 1 {
		out = io.MultiWriter(writers...)
	}

	opts := &slog.HandlerOptions{Level: cfg.Level.toSlogLevel()}
	var handler slog.Handler
	if cfg.JSON {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	logger := &Logger{
		Logger: slog.New(handler).With("service", cfg.Service),
		file:   file,
	}
	slog.SetDefault(logger.Logger)
	return logger, nil
}

// Default returns a text logger on stderr at Info level.
func Default(service string) *Logger {
	logger, _ := New(Config{Service: service})
	return logger
}

// Close flushes and closes the file sink, if any.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}
