//go:build !linux

/*
Copyright (c) 2025 Tobias Schäfer. All rights reserved.
Licensed under the MIT License, see LICENSE file in the project root for details.
*/
package flows

import (
	"context"
	"log/slog"

	"github.com/tschaefer/filterctl/internal/compiler"
	"github.com/tschaefer/filterctl/internal/rule"
)

type Terminator struct{}

func New(logger *slog.Logger) (*Terminator, error) {
	return nil, ErrUnavailable
}

func (t *Terminator) Installed(r *rule.Rule, unit compiler.Unit, id rule.FilterID) {}

func (t *Terminator) Failed(r *rule.Rule, layer compiler.Layer, err error) {}

func (t *Terminator) Rejected(r *rule.Rule, err error) {}

func (t *Terminator) Removed(id rule.FilterID) {}

func (t *Terminator) Watch(ctx context.Context) error {
	return ErrUnavailable
}

func (t *Terminator) Close() error {
	return nil
}
