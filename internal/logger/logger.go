/*
Copyright (c) 2025 Tobias Schäfer. All rights reserved.
Licensed under the MIT License, see LICENSE file in the project root for details.
*/
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
)

type Logger struct {
	Logger *slog.Logger
	Level  slog.Level
	Format string
}

var (
	Levels  = []string{"debug", "info", "warn", "error"}
	Formats = []string{"json", "text"}
	level   slog.Level
)

// NewLogger builds the diagnostic logger writing to stderr.
func NewLogger(levelStr, format string) (*Logger, error) {
	return newLogger(os.Stderr, levelStr, format)
}

func newLogger(w io.Writer, levelStr, format string) (*Logger, error) {
	err := level.UnmarshalText([]byte(levelStr))
	if err != nil {
		return nil, fmt.Errorf("unknown log level: %q", levelStr)
	}

	o := &slog.HandlerOptions{Level: level}
	if level == slog.LevelDebug {
		o.AddSource = true
	}

	var handler slog.Handler
	switch format {
	case "", "json":
		format = "json"
		handler = slog.NewJSONHandler(w, o)
	case "text":
		handler = slog.NewTextHandler(w, o)
	default:
		return nil, fmt.Errorf("unknown log format: %q", format)
	}

	return &Logger{
		Logger: slog.New(handler),
		Level:  level,
		Format: format,
	}, nil
}

func Level() slog.Level {
	return level
}
