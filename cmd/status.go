// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/loadkit/normalize/cmd/flags"
	"github.com/loadkit/normalize/pkg/state"
)

type statusLine struct {
	Schema  string
	Version int
	Status  string
}

var statusCmd = &cobra.Command{
	Use:   "status [schema]",
	Short: "Show the committed schema version for a schema",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store := state.New(flags.SchemaVolumePath(), state.WithEngineVersion(Version))

		line, err := statusForSchema(ctx, store, args[0])
		if err != nil {
			return err
		}

		statusJSON, err := json.MarshalIndent(line, "", "  ")
		if err != nil {
			return err
		}

		fmt.Println(string(statusJSON))
		return nil
	},
}

func statusForSchema(ctx context.Context, store *state.Store, schemaName string) (*statusLine, error) {
	exists, err := store.Exists(schemaName)
	if err != nil {
		return nil, err
	}
	if !exists {
		return &statusLine{Schema: schemaName, Version: 0, Status: "No load packages"}, nil
	}

	stored, err := store.Load(ctx, schemaName)
	if err != nil {
		return nil, err
	}

	return &statusLine{
		Schema:  schemaName,
		Version: stored.Version,
		Status:  "Committed",
	}, nil
}
