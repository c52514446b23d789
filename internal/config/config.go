/*
Copyright (c) Tobias Schäfer. All rights reserved.
Licensed under the MIT License, see LICENSE file in the project root for details.
*/
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const EnvPrefix = "FILTERCTL"

// InitConfig initializes the configuration using Viper.
// It reads from the specified config file or defaults to
// /etc/filterctl/filterctl.{yaml,json,toml}.
// Environment variables with the prefix FILTERCTL_ can override config values.
func InitConfig(cfgFile string) error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("filterctl")
		viper.AddConfigPath("/etc/filterctl/")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("backend", "auto")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "json")
	viper.SetDefault("conntrack.terminate", false)

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			if cfgFile != "" {
				return fmt.Errorf("config file not found: %w", err)
			}
		} else {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	return nil
}

// Rules returns the configured rule lines. A single string is split into
// lines so the rules can be passed through one environment variable.
func Rules() []string {
	if s, ok := viper.Get("rules").(string); ok {
		return splitLines(s)
	}

	var rules []string
	for _, line := range viper.GetStringSlice("rules") {
		rules = append(rules, splitLines(line)...)
	}
	return rules
}

func splitLines(s string) []string {
	var lines []string
	for line := range strings.SplitSeq(s, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}
