//go:build !windows

/*
Copyright (c) 2025 Tobias Schäfer. All rights reserved.
Licensed under the MIT License, see LICENSE file in the project root for details.
*/
package wfp

import (
	"github.com/tschaefer/filterctl/internal/backend"
)

type Options struct {
	Name         string
	Description  string
	ResolveAppID bool
}

type Backend struct{}

func New(opts Options) *Backend {
	return &Backend{}
}

func (b *Backend) Name() string {
	return "wfp"
}

func (b *Backend) Open() (backend.Session, error) {
	return nil, backend.ErrUnavailable
}
