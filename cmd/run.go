// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/loadkit/normalize/cmd/flags"
	"github.com/loadkit/normalize/internal/config"
	"github.com/loadkit/normalize/internal/logging"
	"github.com/loadkit/normalize/pkg/metrics"
	"github.com/loadkit/normalize/pkg/normalize"
	"github.com/loadkit/normalize/pkg/stage"
	"github.com/loadkit/normalize/pkg/state"
	"github.com/loadkit/normalize/pkg/volume"
)

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Normalize every pending extracted-items file into committed load packages",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			cfg := config.Config{
				NormalizeVolumePath: flags.NormalizeVolumePath(),
				LoadVolumePath:      flags.LoadVolumePath(),
				SchemaVolumePath:    flags.SchemaVolumePath(),
				WorkerCount:         flags.WorkerCount(),
				DestinationCapabilities: config.DestinationCapabilities{
					PreferredLoaderFileFormat:  flags.PreferredLoaderFileFormat(),
					SupportedLoaderFileFormats: flags.SupportedLoaderFileFormats(),
				},
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}

			return Run(ctx, cfg, logging.NewLogger())
		},
	}
}

// Run executes one normalize pass: every extracted-items file currently on
// the normalize volume is grouped by schema and dispatched to a worker
// pool, producing one committed load package per schema (§3, §4.4).
func Run(ctx context.Context, cfg config.Config, logger logging.Logger) error {
	inVol := volume.NewInputVolume(cfg.NormalizeVolumePath)
	outVol := volume.NewOutputVolume(cfg.LoadVolumePath)
	store := state.New(cfg.SchemaVolumePath, state.WithEngineVersion(Version))
	met := metrics.New(prometheus.DefaultRegisterer)

	files, err := inVol.ListPendingSorted()
	if err != nil {
		return fmt.Errorf("list pending files: %w", err)
	}
	logger.LogRunStart(len(files))
	if len(files) == 0 {
		logger.LogRunComplete(0)
		return nil
	}

	groups, order, err := volume.GroupBySchema(files)
	if err != nil {
		return fmt.Errorf("group pending files by schema: %w", err)
	}

	for _, schemaName := range order {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := runSchema(ctx, schemaName, groups[schemaName], cfg, inVol, outVol, store, met, logger); err != nil {
			return fmt.Errorf("schema %q: %w", schemaName, err)
		}
	}

	pending, err := inVol.ListPendingSorted()
	if err != nil {
		return fmt.Errorf("list remaining pending files: %w", err)
	}
	logger.LogRunComplete(len(pending))
	return nil
}

func runSchema(
	ctx context.Context,
	schemaName string,
	files []string,
	cfg config.Config,
	inVol *volume.InputVolume,
	outVol *volume.OutputVolume,
	store *state.Store,
	met *metrics.Metrics,
	logger logging.Logger,
) error {
	loadID := strconv.FormatInt(time.Now().UTC().UnixNano(), 10)

	pkg, err := stage.Open(outVol, inVol, loadID, files)
	if err != nil {
		return err
	}

	coordinator := &normalize.Coordinator{
		Store:       store,
		InputVolume: inVol,
		Caps:        cfg.RowCapabilities(),
		Metrics:     met,
		Logger:      logger,
		WorkerCount: cfg.WorkerCount,
	}

	outcome, err := coordinator.Dispatch(ctx, schemaName, loadID, pkg.Dir(), files)
	if err != nil {
		_ = pkg.Discard()
		return err
	}

	if err := pkg.WriteSchema(outcome.Schema); err != nil {
		_ = pkg.Discard()
		return err
	}
	if err := pkg.WriteSchemaUpdates(outcome.Updates); err != nil {
		_ = pkg.Discard()
		return err
	}

	logger.LogPackageCommit(loadID)
	if err := pkg.Commit(ctx); err != nil {
		if _, ok := err.(*stage.CancelledError); ok {
			logger.LogPackageCancelled(loadID)
		}
		return err
	}

	met.ObservePackageCreated(schemaName)
	met.ObserveItems(schemaName, outcome.ItemsWritten)
	return nil
}
