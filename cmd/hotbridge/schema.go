// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hotbridge Contributors

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hotbridge/hotbridge/internal/config"
)

// NewSchemaCmd creates the schema subcommand.
func NewSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the configuration JSON schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			schema, err := config.GenerateSchema()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(schema))
			return err
		},
	}
}
