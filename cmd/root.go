// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/loadkit/normalize/cmd/flags"
)

// Version is the engine's build version, stamped onto committed schema
// snapshots so a later run can detect it's older than the schema it's
// about to operate on (see pkg/state's VersionCompatibility).
var Version = "development"

func init() {
	viper.SetEnvPrefix("NORMALIZE")
	viper.AutomaticEnv()

	flags.VolumeFlags(rootCmd)
}

var rootCmd = &cobra.Command{
	Use:          "normalize",
	Short:        "Normalize extracted items into versioned, schema-evolving load packages",
	SilenceUsage: true,
	Version:      Version,
}

// Execute executes the root command.
func Execute() error {
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(schemaCmd())

	return rootCmd.Execute()
}
