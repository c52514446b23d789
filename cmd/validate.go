/*
Copyright (c) 2025 Tobias Schäfer. All rights reserved.
Licensed under the MIT License, see LICENSE file in the project root for details.
*/
package cmd

import (
	"fmt"
	"net"
	"net/url"
	"slices"
	"strings"
)

var (
	syslogSchemes = []string{"udp", "tcp", "unix", "unixgram", "unixpacket"}
	httpSchemes   = []string{"http", "https"}
)

// validateStringFlag checks a flag value against the valid values, or by
// its shape for address flags.
func validateStringFlag(name, value string, valid []string) error {
	switch name {
	case "sink.syslog.address":
		return validateURL(name, value, syslogSchemes)
	case "sink.loki.address", "profiler.address":
		return validateURL(name, value, httpSchemes)
	case "metrics.address":
		if value == "" {
			return nil
		}
		if _, _, err := net.SplitHostPort(value); err != nil {
			return fmt.Errorf("invalid value %q for flag --%s: %w", value, name, err)
		}
		return nil
	}

	if len(valid) > 0 && !slices.Contains(valid, value) {
		return fmt.Errorf("invalid value %q for flag --%s, valid values are: %s",
			value, name, strings.Join(valid, ", "))
	}
	return nil
}

func validateStringSliceFlag(name string, values, valid []string) error {
	for _, value := range values {
		if name == "sink.loki.labels" {
			key, _, ok := strings.Cut(value, "=")
			if !ok || key == "" {
				return fmt.Errorf("invalid value %q for flag --%s, expected key=value", value, name)
			}
			continue
		}
		if err := validateStringFlag(name, value, valid); err != nil {
			return err
		}
	}
	return nil
}

func validateURL(name, value string, schemes []string) error {
	uri, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("invalid value %q for flag --%s: %w", value, name, err)
	}
	if !slices.Contains(schemes, uri.Scheme) {
		return fmt.Errorf("invalid scheme %q for flag --%s, valid schemes are: %s",
			uri.Scheme, name, strings.Join(schemes, ", "))
	}

	if strings.HasPrefix(uri.Scheme, "unix") {
		if uri.Path == "" {
			return fmt.Errorf("missing socket path in %q for flag --%s", value, name)
		}
		return nil
	}
	if uri.Host == "" {
		return fmt.Errorf("missing host in %q for flag --%s", value, name)
	}
	return nil
}
