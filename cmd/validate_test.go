/*
Copyright (c) 2025 Tobias Schäfer. All rights reserved.
Licensed under the MIT License, see LICENSE file in the project root for details.
*/
package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tschaefer/filterctl/internal/logger"
	"github.com/tschaefer/filterctl/internal/sink"
)

func TestValidateStringFlag_ValuesAndBackends(t *testing.T) {
	assert.NoError(t, validateStringFlag("log.level", "debug", logger.Levels))
	assert.NoError(t, validateStringFlag("log.format", "text", logger.Formats))
	assert.NoError(t, validateStringFlag("backend", "nftables", validBackends))

	assert.Error(t, validateStringFlag("log.level", "verbose", logger.Levels))
	assert.Error(t, validateStringFlag("log.format", "xml", logger.Formats))
	assert.EqualError(t, validateStringFlag("backend", "pf", validBackends),
		`invalid value "pf" for flag --backend, valid values are: auto, simulation, wfp, nftables, iptables`)
}

func TestValidateStringFlag_SyslogAddress_Valid(t *testing.T) {
	valids := []string{
		"udp://localhost:514",
		"tcp://127.0.0.1:514",
		"unix:///var/run/syslog.sock",
		"unixgram:///var/run/syslog.sock",
		"unixpacket:///var/run/syslog.sock",
	}
	for _, v := range valids {
		assert.NoErrorf(t, validateStringFlag("sink.syslog.address", v, []string{}), "valid syslog address %q should not error", v)
	}
}

func TestValidateStringFlag_SyslogAddress_Invalid(t *testing.T) {
	assert.Error(t, validateStringFlag("sink.syslog.address", "http://localhost:514", []string{}))
	assert.Error(t, validateStringFlag("sink.syslog.address", "tcp:///nohost", []string{}))
	assert.Error(t, validateStringFlag("sink.syslog.address", "unix://", []string{}))
}

func TestValidateStringFlag_LokiAddress(t *testing.T) {
	assert.NoError(t, validateStringFlag("sink.loki.address", "http://localhost:3100", []string{}))
	assert.NoError(t, validateStringFlag("sink.loki.address", "https://example.com", []string{}))

	assert.Error(t, validateStringFlag("sink.loki.address", "tcp://localhost:3100", []string{}))
	assert.Error(t, validateStringFlag("sink.loki.address", "http:///path", []string{}))
}

func TestValidateStringFlag_MetricsAddress(t *testing.T) {
	assert.NoError(t, validateStringFlag("metrics.address", "", nil))
	assert.NoError(t, validateStringFlag("metrics.address", "127.0.0.1:9469", nil))
	assert.NoError(t, validateStringFlag("metrics.address", ":9469", nil))

	assert.Error(t, validateStringFlag("metrics.address", "localhost", nil))
}

func TestValidateStringSliceFlag(t *testing.T) {
	assert.NoError(t, validateStringSliceFlag("sink.loki.labels", []string{"env=prod", "team=net"}, nil))
	assert.NoError(t, validateStringSliceFlag("sink.stream.writer", []string{"stdout", "discard"}, sink.StreamWriters))

	assert.Error(t, validateStringSliceFlag("sink.loki.labels", []string{"env"}, nil))
	assert.Error(t, validateStringSliceFlag("sink.loki.labels", []string{"=prod"}, nil))
	assert.Error(t, validateStringSliceFlag("sink.stream.writer", []string{"file"}, sink.StreamWriters))
}

func TestOptionsValidate(t *testing.T) {
	valid := Options{backend: "auto", logLevel: "info", logFormat: "json"}
	assert.NoError(t, valid.validate())

	invalid := Options{
		backend:   "pf",
		logLevel:  "info",
		logFormat: "json",
		sink: sink.Config{
			Stream: sink.Stream{Enable: true, Writer: "file"},
		},
	}
	err := invalid.validate()
	assert.ErrorContains(t, err, "--backend")
	assert.ErrorContains(t, err, "--sink.stream.writer")

	disabled := valid
	disabled.sink.Syslog = sink.Syslog{Address: "bogus"}
	assert.NoError(t, disabled.validate(), "disabled sinks are not validated")
}
