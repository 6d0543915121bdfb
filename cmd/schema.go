// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"

	"github.com/loadkit/normalize/cmd/flags"
	"github.com/loadkit/normalize/pkg/state"
)

func schemaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema [name]",
		Short: "Print a schema's most recently committed snapshot",
		Args:  cobra.ExactArgs(1),
	}

	var asJSON bool
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON instead of YAML")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		store := state.New(flags.SchemaVolumePath(), state.WithEngineVersion(Version))

		stored, err := store.Load(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		if asJSON {
			b, err := stored.Schema.ToStoredBytes()
			if err != nil {
				return err
			}
			fmt.Println(string(b))
			return nil
		}

		b, err := stored.Schema.ToStoredBytes()
		if err != nil {
			return err
		}
		yml, err := yaml.JSONToYAML(b)
		if err != nil {
			return fmt.Errorf("convert schema to YAML: %w", err)
		}
		fmt.Print(string(yml))
		return nil
	}

	return cmd
}
