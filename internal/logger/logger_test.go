/*
Copyright (c) 2025 Tobias Schäfer. All rights reserved.
Licensed under the MIT License, see LICENSE file in the project root for details.
*/
package logger

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLoggerAcceptsLevelsAndFormats(t *testing.T) {
	for _, format := range Formats {
		for _, lvl := range Levels {
			l, err := NewLogger(lvl, format)
			assert.NoError(t, err, "level %s, format %s", lvl, format)
			assert.Equal(t, format, l.Format)
		}
	}
}

func newLoggerDefaultsToJSON(t *testing.T) {
	var buf bytes.Buffer
	l, err := newLogger(&buf, "info", "")
	require.NoError(t, err)

	l.Logger.Info("Filter installed.", "id", 1)
	assert.Equal(t, "json", l.Format)
	assert.Contains(t, buf.String(), `"msg":"Filter installed."`)
}

func newLoggerWritesText(t *testing.T) {
	var buf bytes.Buffer
	l, err := newLogger(&buf, "info", "text")
	require.NoError(t, err)

	l.Logger.Info("Filter installed.", "id", 1)
	assert.Contains(t, buf.String(), `msg="Filter installed." id=1`)
}

func newLoggerGatesDebug(t *testing.T) {
	l, err := NewLogger("info", "json")
	require.NoError(t, err)
	assert.False(t, l.Logger.Enabled(context.Background(), slog.LevelDebug))

	l, err = NewLogger("debug", "json")
	require.NoError(t, err)
	assert.True(t, l.Logger.Enabled(context.Background(), slog.LevelDebug))
	assert.Equal(t, slog.LevelDebug, Level())
}

func newLoggerRejectsUnknownValues(t *testing.T) {
	_, err := NewLogger("trace", "json")
	assert.EqualError(t, err, `unknown log level: "trace"`)

	_, err = NewLogger("info", "xml")
	assert.EqualError(t, err, `unknown log format: "xml"`)
}

func TestLogger(t *testing.T) {
	t.Run("logger.NewLogger accepts levels and formats", newLoggerAcceptsLevelsAndFormats)
	t.Run("logger.NewLogger defaults to json", newLoggerDefaultsToJSON)
	t.Run("logger.NewLogger writes text", newLoggerWritesText)
	t.Run("logger.NewLogger gates debug output", newLoggerGatesDebug)
	t.Run("logger.NewLogger rejects unknown values", newLoggerRejectsUnknownValues)
}
