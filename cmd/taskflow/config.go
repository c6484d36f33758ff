// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TaskFlow Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/Lugadilu/TaskFlow/internal/config"
)

// NewConfigCmd creates the config subcommand.
func NewConfigCmd() *cobra.Command {
	var skipValidate bool

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long: `Print the configuration serve would run with, as YAML. Secrets are
redacted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cmd.Flags(), configFile)
			if err != nil {
				return err
			}
			if !skipValidate {
				if err := cfg.Validate(); err != nil {
					return err
				}
			}

			out, err := cfg.Dump()
			if err != nil {
				return err
			}
			cmd.Print(string(out))
			return nil
		},
	}

	cmd.Flags().BoolVar(&skipValidate, "no-validate", false, "print even when the configuration is invalid")
	return cmd
}
