/*
Copyright (c) Tobias Schäfer. All rights reserved.
Licensed under the MIT License, see LICENSE file in the project root for details.
*/
package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/tschaefer/filterctl/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "filterctl",
	Short: "Declarative traffic filter manager",
	Long: `filterctl compiles declarative traffic rules into native platform filters,
installs them for the lifetime of a session and removes them on exit.`,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to config file (default /etc/filterctl/filterctl.{yaml,json,toml})")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(compileCmd)
}

func initConfig() {
	cobra.CheckErr(config.InitConfig(cfgFile))
}
