// SPDX-License-Identifier: Apache-2.0

package normalize

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/loadkit/normalize/pkg/coerce"
	"github.com/loadkit/normalize/pkg/items"
	"github.com/loadkit/normalize/pkg/rows"
	"github.com/loadkit/normalize/pkg/schema"
	"github.com/loadkit/normalize/pkg/volume"
)

// Result is what one worker produces after processing its assigned chunk of
// files: the schema deltas it accumulated, the total item count, and the
// output files it wrote -- the Go equivalent of the original
// implementation's (schema_updates, total_items) worker return value, plus
// the file list the coordinator needs to clean up after a retried chunk.
type Result struct {
	Updates      []*schema.PartialTable
	ItemsWritten int
	OutputFiles  []string
}

// Worker processes one chunk of extracted-items files against its own
// private schema snapshot. Column widening is applied to that snapshot
// immediately, so later records in the same chunk see it, and is also
// recorded as PartialTable deltas returned to the coordinator, which merges
// them into the shared schema once the chunk completes (§4.2, §4.5).
type Worker struct {
	ID        string
	in        *volume.InputVolume
	rowSet    *rows.Set
	rootTable func(fileName string) (string, error)
}

// NewWorker returns a Worker that reads input files from in and writes
// normalized rows into rowSet.
func NewWorker(id string, in *volume.InputVolume, rowSet *rows.Set) *Worker {
	return &Worker{
		ID:     id,
		in:     in,
		rowSet: rowSet,
		rootTable: func(fileName string) (string, error) {
			parsed, err := volume.Parse(fileName)
			if err != nil {
				return "", err
			}
			return parsed.RootTable, nil
		},
	}
}

// Run processes every file in files against schemaName/loadID, coercing
// each record's rows against snap (which it updates in place with every
// delta it discovers) and writing them via the
// worker's row set. It returns as soon as ctx is cancelled or a coercion
// conflict is hit, whichever comes first (§4.5's cancellation and conflict
// semantics).
func (w *Worker) Run(ctx context.Context, schemaName, loadID string, snap *schema.Schema, files []string) (Result, error) {
	var result Result

	for _, fileName := range files {
		if err := ctx.Err(); err != nil {
			w.abandon()
			return result, err
		}

		rootTable, err := w.rootTable(fileName)
		if err != nil {
			w.abandon()
			return result, err
		}

		n, updates, err := w.processFile(ctx, schemaName, loadID, rootTable, snap, fileName)
		result.ItemsWritten += n
		result.Updates = append(result.Updates, updates...)
		if err != nil {
			w.abandon()
			return result, err
		}
	}

	paths, err := w.rowSet.CloseAll()
	result.OutputFiles = paths
	return result, err
}

// abandon closes and discards any output files this worker had already
// started writing, so a failed or cancelled chunk never leaves a partial
// file behind for a later retry to trip over.
func (w *Worker) abandon() {
	paths, err := w.rowSet.CloseAll()
	if err != nil {
		return
	}
	for _, p := range paths {
		_ = os.Remove(p)
	}
}

func (w *Worker) processFile(ctx context.Context, schemaName, loadID, rootTable string, snap *schema.Schema, fileName string) (int, []*schema.PartialTable, error) {
	f, err := os.Open(w.in.Path(fileName))
	if err != nil {
		return 0, nil, fmt.Errorf("open extracted-items file %q: %w", fileName, err)
	}
	defer f.Close()

	var count int
	var updates []*schema.PartialTable

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if err := ctx.Err(); err != nil {
			return count, updates, err
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		records, err := decodeItemsLine(line)
		if err != nil {
			return count, updates, fmt.Errorf("%s:%d: decode extracted item: %w", fileName, lineNo, err)
		}

		for _, record := range records {
			rowUpdates, err := w.processRecord(schemaName, loadID, rootTable, snap, record)
			if err != nil {
				return count, updates, fmt.Errorf("%s:%d: %w", fileName, lineNo, err)
			}
			updates = append(updates, rowUpdates...)
			count++
		}
	}
	if err := scanner.Err(); err != nil && err != io.EOF {
		return count, updates, fmt.Errorf("read extracted-items file %q: %w", fileName, err)
	}

	return count, updates, nil
}

// decodeItemsLine accepts either a single JSON object (one record per line)
// or a JSON array of objects (one batch per line), matching how the extract
// stage is free to emit either shape per §3.
func decodeItemsLine(line []byte) ([]map[string]any, error) {
	var arr []map[string]any
	if err := json.Unmarshal(line, &arr); err == nil {
		return arr, nil
	}
	var single map[string]any
	if err := json.Unmarshal(line, &single); err != nil {
		return nil, err
	}
	return []map[string]any{single}, nil
}

func (w *Worker) processRecord(schemaName, loadID, rootTable string, snap *schema.Schema, record map[string]any) ([]*schema.PartialTable, error) {
	flatRows, err := items.Normalize(rootTable, loadID, record)
	if err != nil {
		return nil, err
	}

	var updates []*schema.PartialTable
	for _, row := range flatRows {
		table := snap.EnsureTable(row.Table, row.ParentTable)
		filtered := items.FilterRow(table, row.Fields)
		if len(filtered) == 0 {
			continue
		}
		decoded := items.DecodeRow(filtered)

		coerced, delta, err := coerce.Row(table, row.Table, row.ParentTable, decoded)
		if err != nil {
			return updates, err
		}
		if delta != nil {
			if err := snap.Update(delta); err != nil {
				return updates, err
			}
			updates = append(updates, delta)
			table = snap.GetTable(row.Table)
		}

		if err := w.rowSet.WriteRow(schemaName, table, coerced); err != nil {
			return updates, err
		}
	}
	return updates, nil
}
