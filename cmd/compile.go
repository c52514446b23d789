/*
Copyright (c) 2025 Tobias Schäfer. All rights reserved.
Licensed under the MIT License, see LICENSE file in the project root for details.
*/
package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tschaefer/filterctl/internal/compiler"
	"github.com/tschaefer/filterctl/internal/config"
	"github.com/tschaefer/filterctl/internal/rule"
)

var compileRules []string

var compileCmd = &cobra.Command{
	Use:   "compile",
	Short: "Show the filters the configured rules compile to",
	Long: `Validate the rules and print the layers and conditions every rule compiles
to. No backend is touched.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		lines := config.Rules()
		if cmd.Flags().Changed("rule") {
			lines = compileRules
		}

		rules, err := rule.ParseAll(lines)
		if err != nil {
			return err
		}
		if len(rules) == 0 {
			return errors.New("no rules configured")
		}

		if !printCompiled(cmd.OutOrStdout(), rules) {
			return errors.New("not every rule compiled")
		}
		return nil
	},
}

// printCompiled writes every rule with its units and reports whether all
// of them compiled without error.
func printCompiled(w io.Writer, rules []*rule.Rule) bool {
	clean := true
	for _, r := range rules {
		_, _ = fmt.Fprintf(w, "%s\n", r)

		units, err := compiler.Compile(r)
		for _, unit := range units {
			_, _ = fmt.Fprintf(w, "  %s weight %d %s\n", unit.Layer, unit.Weight, unit.Action)
			for _, c := range unit.Conditions {
				_, _ = fmt.Fprintf(w, "    %s\n", c)
			}
		}
		if err != nil {
			clean = false
			_, _ = fmt.Fprintf(w, "  error: %v\n", err)
		}
	}
	return clean
}

func init() {
	compileCmd.CompletionOptions.SetDefaultShellCompDirective(cobra.ShellCompDirectiveNoFileComp)

	compileCmd.Flags().StringArrayVar(&compileRules, "rule", nil, "Rule in text form (repeatable, overrides configured rules)")
}
