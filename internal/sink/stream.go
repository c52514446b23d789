/*
Copyright (c) 2025 Tobias Schäfer. All rights reserved.
Licensed under the MIT License, see LICENSE file in the project root for details.
*/
package sink

import (
	"fmt"
	"io"
	"log/slog"
	"os"
)

var (
	StreamWriters = []string{"stdout", "stderr", "discard"}
	StreamFormats = []string{"json", "text"}
)

// Stream writes audit records to a standard stream, as JSON unless Format
// is text.
type Stream struct {
	Enable bool
	Writer string
	Format string
}

func (s *Stream) TargetStream(options *slog.HandlerOptions) (slog.Handler, error) {
	slog.Debug("Initializing stream sink.", "writer", s.Writer, "format", s.Format)

	var w io.Writer
	switch s.Writer {
	case "stdout":
		w = os.Stdout
	case "stderr":
		w = os.Stderr
	case "discard":
		w = io.Discard
	default:
		return nil, fmt.Errorf("invalid stream writer specified: %q", s.Writer)
	}

	switch s.Format {
	case "", "json":
		return slog.NewJSONHandler(w, options), nil
	case "text":
		return slog.NewTextHandler(w, options), nil
	}

	return nil, fmt.Errorf("invalid stream format specified: %q", s.Format)
}
