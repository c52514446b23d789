//go:build !linux

/*
Copyright (c) 2025 Tobias Schäfer. All rights reserved.
Licensed under the MIT License, see LICENSE file in the project root for details.
*/
package iptables

import (
	"github.com/tschaefer/filterctl/internal/backend"
)

type Backend struct{}

func New() *Backend {
	return &Backend{}
}

func (b *Backend) Name() string {
	return "iptables"
}

func (b *Backend) Open() (backend.Session, error) {
	return nil, backend.ErrUnavailable
}
