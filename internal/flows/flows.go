/*
Copyright (c) 2025 Tobias Schäfer. All rights reserved.
Licensed under the MIT License, see LICENSE file in the project root for details.
*/
package flows

import (
	"errors"

	"github.com/tschaefer/filterctl/internal/compiler"
	"github.com/tschaefer/filterctl/internal/rule"
)

var ErrUnavailable = errors.New("conntrack flow termination is not available on this platform")

// Terminable reports whether existing flows can be matched against a unit.
// Application scoped units carry an identity conntrack knows nothing about.
func Terminable(unit compiler.Unit) bool {
	if unit.Action != rule.ActionBlock || unit.Layer == compiler.LayerUnknown {
		return false
	}
	if unit.Layer.IsApplication() {
		return false
	}
	_, ok := unit.AppIdentity()
	return !ok
}
