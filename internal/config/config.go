// SPDX-License-Identifier: Apache-2.0

// Package config defines the engine's runtime configuration: the volume
// paths it reads and writes, the destination capabilities that drive output
// formatting, and the worker pool size. Values are bound from flags and
// environment variables by cmd/, then validated here against an embedded
// JSON schema before the engine starts, the same validate-before-use
// arrangement this codebase's CLI JSON-schema tooling exists to support.
package config

import (
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/loadkit/normalize/pkg/rows"
)

//go:embed config.schema.json
var configSchemaJSON []byte

// Config is the engine's fully resolved runtime configuration.
type Config struct {
	// NormalizeVolumePath is the directory extracted-items files are read
	// from (§3, §6).
	NormalizeVolumePath string `json:"normalize_volume_path"`

	// LoadVolumePath is the directory committed load packages are written
	// under (§6).
	LoadVolumePath string `json:"load_volume_path"`

	// SchemaVolumePath is the directory schema snapshots are persisted
	// under (§5).
	SchemaVolumePath string `json:"schema_volume_path"`

	// WorkerCount is the number of worker goroutines the coordinator
	// dispatches file chunks to (§4.5).
	WorkerCount int `json:"worker_count"`

	// DestinationCapabilities drives output file naming and format
	// selection (§4, supplemented features).
	DestinationCapabilities DestinationCapabilities `json:"destination_capabilities"`
}

// DestinationCapabilities is the subset of a destination's declared
// capabilities this engine needs to decide how to write and name output
// files.
type DestinationCapabilities struct {
	PreferredLoaderFileFormat  string   `json:"preferred_loader_file_format"`
	SupportedLoaderFileFormats []string `json:"supported_loader_file_formats"`
	NamingConvention           string   `json:"naming_convention"`
}

// RowCapabilities adapts the config's destination capabilities to the shape
// pkg/rows needs.
func (c Config) RowCapabilities() rows.Capabilities {
	formats := make([]rows.Format, 0, len(c.DestinationCapabilities.SupportedLoaderFileFormats))
	for _, f := range c.DestinationCapabilities.SupportedLoaderFileFormats {
		formats = append(formats, rows.Format(f))
	}
	return rows.Capabilities{
		PreferredLoaderFileFormat:  rows.Format(c.DestinationCapabilities.PreferredLoaderFileFormat),
		SupportedLoaderFileFormats: formats,
	}
}

// Validate checks cfg against the engine's embedded configuration schema,
// catching malformed flag/environment input before any volume is touched.
func Validate(cfg Config) error {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("config.schema.json", jsonUnmarshal(configSchemaJSON)); err != nil {
		return fmt.Errorf("load configuration schema: %w", err)
	}
	sch, err := compiler.Compile("config.schema.json")
	if err != nil {
		return fmt.Errorf("compile configuration schema: %w", err)
	}

	b, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal configuration: %w", err)
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("unmarshal configuration: %w", err)
	}

	if err := sch.Validate(v); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func jsonUnmarshal(b []byte) any {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		panic(fmt.Sprintf("embedded configuration schema is invalid JSON: %v", err))
	}
	return v
}
