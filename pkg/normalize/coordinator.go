// SPDX-License-Identifier: Apache-2.0

package normalize

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/loadkit/normalize/internal/logging"
	"github.com/loadkit/normalize/pkg/metrics"
	"github.com/loadkit/normalize/pkg/rows"
	"github.com/loadkit/normalize/pkg/schema"
	"github.com/loadkit/normalize/pkg/state"
	"github.com/loadkit/normalize/pkg/volume"
)

// pollInterval is how often Dispatch checks on outstanding worker tasks,
// the Go counterpart of the original coordinator's sleep(0.3) polling loop.
const pollInterval = 300 * time.Millisecond

// maxChunkRetries bounds how many times a single chunk is resubmitted
// against a freshly merged schema before Dispatch gives up on parallelism
// entirely and falls back to a single worker for the whole file set.
const maxChunkRetries = 2

// Coordinator dispatches a schema's pending files to a worker pool, merges
// the PartialTable deltas each worker reports, and resolves the conflicts
// that arise when two workers widen the same column two different,
// incompatible ways (§4.2, §4.5).
type Coordinator struct {
	Store       *state.Store
	InputVolume *volume.InputVolume
	Caps        rows.Capabilities
	Metrics     *metrics.Metrics
	Logger      logging.Logger
	WorkerCount int
}

func (c *Coordinator) logger() logging.Logger {
	if c.Logger == nil {
		return logging.NewNoopLogger()
	}
	return c.Logger
}

// Outcome is everything Dispatch produces for one schema's run: the merged
// schema (already persisted), the ordered deltas that were applied, and the
// total item count, ready for the caller to stamp into the load package
// (§4.4 steps 4-5).
type Outcome struct {
	Schema       *schema.Schema
	Updates      []*schema.PartialTable
	ItemsWritten int
}

type task struct {
	chunkID  string
	files    []string
	resultCh chan taskOutcome
}

type taskOutcome struct {
	result Result
	err    error
}

// Dispatch processes files (already grouped by schema) against schemaName,
// writing normalized rows into pkgDir. It loads the current schema snapshot
// from the store, runs the worker pool, and returns the merged result; the
// caller is responsible for persisting the package's own
// schema.json/schema_updates.json and committing it.
func (c *Coordinator) Dispatch(ctx context.Context, schemaName, loadID, pkgDir string, files []string) (*Outcome, error) {
	stored, err := c.Store.Load(ctx, schemaName)
	if err != nil {
		return nil, fmt.Errorf("load schema %q: %w", schemaName, err)
	}
	base := &stored.Schema

	workers := c.WorkerCount
	if workers < 1 {
		workers = 1
	}

	c.logger().LogSchemaDispatchStart(schemaName, len(files))

	if workers == 1 {
		return c.runSingle(ctx, schemaName, loadID, pkgDir, base, files)
	}

	outcome, err := c.runParallel(ctx, schemaName, loadID, pkgDir, base, files)
	if err != nil {
		if _, ok := err.(*schema.CoercionConflictError); ok {
			// Parallel workers disagreed in a way retrying individual
			// chunks couldn't resolve; fall back to a single worker
			// processing every file against one authoritative schema.
			c.logger().LogSingleWorkerFallback(schemaName, err)
			stored, err := c.Store.Load(ctx, schemaName)
			if err != nil {
				return nil, fmt.Errorf("reload schema %q for single-worker fallback: %w", schemaName, err)
			}
			return c.runSingle(ctx, schemaName, loadID, pkgDir, &stored.Schema, files)
		}
		return nil, err
	}
	return outcome, nil
}

func (c *Coordinator) runSingle(ctx context.Context, schemaName, loadID, pkgDir string, base *schema.Schema, files []string) (*Outcome, error) {
	snap := base.Clone()
	rowSet := rows.NewSet(pkgDir, uuid.NewString(), c.Caps)
	w := NewWorker("single", c.InputVolume, rowSet)

	result, err := w.Run(ctx, schemaName, loadID, snap, files)
	if err != nil {
		return nil, err
	}

	return c.finish(ctx, schemaName, snap, result)
}

// runParallel shards files across the configured worker count and merges
// results as they complete. Each worker operates on its own clone of the
// current schema snapshot. When a worker itself reports a coercion conflict,
// it has already removed its own output files, and the chunk is resubmitted
// against a clone of the schema merged so far, up to maxChunkRetries times.
// A conflict raised while merging a finished chunk's deltas into the merged
// schema is returned at once; that chunk is not resubmitted.
func (c *Coordinator) runParallel(ctx context.Context, schemaName, loadID, pkgDir string, base *schema.Schema, files []string) (*Outcome, error) {
	merged := base.Clone()
	chunks := GroupWorkerFiles(files, c.WorkerCount)

	retries := make(map[string]int)
	var pending []*task
	for _, chunk := range chunks {
		pending = append(pending, c.launch(ctx, schemaName, loadID, pkgDir, merged.Clone(), chunk))
	}

	var totalItems int
	var allUpdates []*schema.PartialTable
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for len(pending) > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}

		remaining := pending[:0]
		for _, t := range pending {
			select {
			case out := <-t.resultCh:
				if out.err != nil {
					conflict, ok := out.err.(*schema.CoercionConflictError)
					if !ok {
						return nil, out.err
					}
					if retries[t.chunkID] >= maxChunkRetries {
						return nil, conflict
					}
					retries[t.chunkID]++
					c.logger().LogChunkConflict(schemaName, t.chunkID, conflict)
					retry := c.launch(ctx, schemaName, loadID, pkgDir, merged.Clone(), t.files)
					retry.chunkID = t.chunkID
					remaining = append(remaining, retry)
					continue
				}

				for _, delta := range out.result.Updates {
					if err := merged.Update(delta); err != nil {
						return nil, err
					}
					allUpdates = append(allUpdates, delta)
				}
				totalItems += out.result.ItemsWritten
			default:
				remaining = append(remaining, t)
			}
		}
		pending = remaining
	}

	return c.finish(ctx, schemaName, merged, Result{ItemsWritten: totalItems, Updates: allUpdates})
}

// launch starts one worker goroutine processing files against its own
// schema clone, reporting the result (or a coercion conflict) back on the
// task's channel once done.
func (c *Coordinator) launch(ctx context.Context, schemaName, loadID, pkgDir string, snap *schema.Schema, files []string) *task {
	t := &task{
		chunkID:  uuid.NewString(),
		files:    files,
		resultCh: make(chan taskOutcome, 1),
	}
	go func() {
		rowSet := rows.NewSet(pkgDir, t.chunkID, c.Caps)
		w := NewWorker(t.chunkID, c.InputVolume, rowSet)
		result, err := w.Run(ctx, schemaName, loadID, snap, files)
		t.resultCh <- taskOutcome{result: result, err: err}
	}()
	return t
}

func (c *Coordinator) finish(ctx context.Context, schemaName string, merged *schema.Schema, result Result) (*Outcome, error) {
	if merged.Version != 0 || len(merged.Tables) > 0 {
		if _, err := c.Store.Save(ctx, merged); err != nil {
			return nil, fmt.Errorf("save merged schema %q: %w", schemaName, err)
		}
	}
	if c.Metrics != nil {
		c.Metrics.ObserveSchemaVersion(schemaName, merged.Version)
	}
	c.logger().LogSchemaDispatchComplete(schemaName, result.ItemsWritten, merged.Version)
	return &Outcome{Schema: merged, Updates: result.Updates, ItemsWritten: result.ItemsWritten}, nil
}
