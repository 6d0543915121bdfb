// SPDX-License-Identifier: Apache-2.0

package flags

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func NormalizeVolumePath() string {
	return viper.GetString("NORMALIZE_VOLUME_PATH")
}

func LoadVolumePath() string {
	return viper.GetString("LOAD_VOLUME_PATH")
}

func SchemaVolumePath() string {
	return viper.GetString("SCHEMA_VOLUME_PATH")
}

func WorkerCount() int {
	return viper.GetInt("WORKER_COUNT")
}

func PreferredLoaderFileFormat() string {
	return viper.GetString("PREFERRED_LOADER_FILE_FORMAT")
}

func SupportedLoaderFileFormats() []string {
	return viper.GetStringSlice("SUPPORTED_LOADER_FILE_FORMATS")
}

// VolumeFlags registers the flags every subcommand that touches a volume
// needs, binding each to its NORMALIZE_-prefixed environment variable.
func VolumeFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().String("normalize-volume", "./.normalize/normalize", "directory extracted-items files are read from")
	cmd.PersistentFlags().String("load-volume", "./.normalize/load", "directory committed load packages are written under")
	cmd.PersistentFlags().String("schema-volume", "./.normalize/schema", "directory schema snapshots are persisted under")
	cmd.PersistentFlags().Int("worker-count", 4, "number of worker goroutines dispatched per schema")
	cmd.PersistentFlags().String("preferred-format", "jsonl", "preferred destination loader file format")
	cmd.PersistentFlags().StringSlice("supported-formats", []string{"jsonl"}, "loader file formats the destination accepts")

	viper.BindPFlag("NORMALIZE_VOLUME_PATH", cmd.PersistentFlags().Lookup("normalize-volume"))
	viper.BindPFlag("LOAD_VOLUME_PATH", cmd.PersistentFlags().Lookup("load-volume"))
	viper.BindPFlag("SCHEMA_VOLUME_PATH", cmd.PersistentFlags().Lookup("schema-volume"))
	viper.BindPFlag("WORKER_COUNT", cmd.PersistentFlags().Lookup("worker-count"))
	viper.BindPFlag("PREFERRED_LOADER_FILE_FORMAT", cmd.PersistentFlags().Lookup("preferred-format"))
	viper.BindPFlag("SUPPORTED_LOADER_FILE_FORMATS", cmd.PersistentFlags().Lookup("supported-formats"))
}
