/*
Copyright (c) 2025 Tobias Schäfer. All rights reserved.
Licensed under the MIT License, see LICENSE file in the project root for details.
*/
package cmd

import (
	"fmt"
	"runtime"

	"github.com/tschaefer/filterctl/internal/backend"
	"github.com/tschaefer/filterctl/internal/backend/iptables"
	"github.com/tschaefer/filterctl/internal/backend/nft"
	"github.com/tschaefer/filterctl/internal/backend/wfp"
)

var validBackends = []string{"auto", "simulation", "wfp", "nftables", "iptables"}

// resolveBackend maps auto to the native backend of the running platform.
func resolveBackend(name, goos string) string {
	if name != "auto" {
		return name
	}
	switch goos {
	case "windows":
		return "wfp"
	case "linux":
		return "nftables"
	default:
		return "simulation"
	}
}

func newBackend(name string, resolveAppID bool) (backend.Backend, error) {
	switch resolveBackend(name, runtime.GOOS) {
	case "simulation":
		return backend.NewSimulation(), nil
	case "wfp":
		return wfp.New(wfp.Options{ResolveAppID: resolveAppID}), nil
	case "nftables":
		return nft.New(), nil
	case "iptables":
		return iptables.New(), nil
	}
	return nil, fmt.Errorf("unknown backend: %q", name)
}
