/*
Copyright (c) Tobias Schäfer. All rights reserved.
Licensed under the MIT License, see LICENSE file in the project root for details.
*/
package sink

import (
	"log/slog"

	slogjournal "github.com/tschaefer/slog-journal"
)

// Journal writes audit records to the systemd journal, fields are
// prefixed with FILTER_.
type Journal struct {
	Enable bool
}

// TargetJournal creates a sink target for systemd journal logging.
func (j *Journal) TargetJournal(options *slog.HandlerOptions) (slog.Handler, error) {
	slogjournal.FieldPrefix = "FILTER"
	o := &slogjournal.Option{
		Level: options.Level,
	}
	return o.NewJournalHandler(), nil
}
