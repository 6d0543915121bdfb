// SPDX-License-Identifier: Apache-2.0

// Package stage implements load package staging (C6, §4.4 step 5-7, §6): a
// load package is assembled in a temporary directory while its rows are
// written, then atomically promoted to committed once every worker has
// finished and no cancellation was observed.
package stage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cloudflare/backoff"

	"github.com/loadkit/normalize/pkg/schema"
	"github.com/loadkit/normalize/pkg/volume"
)

const (
	schemaFileName        = "schema.json"
	schemaUpdatesFileName = "schema_updates.json"

	commitBackoffMax      = 10 * time.Second
	commitBackoffInterval = 200 * time.Millisecond
)

// Package represents one load package under construction.
type Package struct {
	LoadID string
	dir    string
	out    *volume.OutputVolume
	inputs []string
	inVol  *volume.InputVolume
}

// Open creates (or reopens) the temporary directory for loadID, ready to
// receive output row files and schema updates.
func Open(out *volume.OutputVolume, in *volume.InputVolume, loadID string, inputs []string) (*Package, error) {
	dir := out.TempPackageDir(loadID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create load package %q: %w", loadID, err)
	}
	return &Package{LoadID: loadID, dir: dir, out: out, inputs: inputs, inVol: in}, nil
}

// Dir returns the package's temporary directory, the directory row writers
// should write into.
func (p *Package) Dir() string {
	return p.dir
}

// WriteSchema persists the final schema snapshot (post-merge, §4.3) a
// reader of the committed package can use without replaying schema_updates.
func (p *Package) WriteSchema(s *schema.Schema) error {
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal package schema: %w", err)
	}
	return os.WriteFile(filepath.Join(p.dir, schemaFileName), b, 0o644)
}

// WriteSchemaUpdates persists the ordered sequence of table diffs (ΔT, §4.2)
// that were applied while this package's rows were produced, so a
// downstream loader can audit exactly what changed.
func (p *Package) WriteSchemaUpdates(updates []*schema.PartialTable) error {
	b, err := json.MarshalIndent(updates, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal schema updates: %w", err)
	}
	return os.WriteFile(filepath.Join(p.dir, schemaUpdatesFileName), b, 0o644)
}

// CancelledError is returned by Commit when ctx was already cancelled at
// the point the package would have been promoted; per §4.4 step 6, a
// package is never partially committed, so the whole temp directory is left
// in place for a future run to resume or discard.
type CancelledError struct {
	LoadID string
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("load package %q: commit aborted, context cancelled", e.LoadID)
}

// Commit promotes the package from temporary to committed, then deletes the
// input files it consumed. The rename is retried with backoff since it can
// race with a concurrent reader listing the committed directory tree; input
// deletion only happens once the rename has succeeded, preserving the
// "never lose unprocessed input" invariant (§3) even if this process is
// killed partway through.
func (p *Package) Commit(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return &CancelledError{LoadID: p.LoadID}
	}

	committedDir := p.out.CommittedPackageDir(p.LoadID)
	if err := os.MkdirAll(filepath.Dir(committedDir), 0o755); err != nil {
		return fmt.Errorf("create committed package root: %w", err)
	}

	b := backoff.New(commitBackoffMax, commitBackoffInterval)
	var renameErr error
	for attempt := 0; attempt < 5; attempt++ {
		renameErr = os.Rename(p.dir, committedDir)
		if renameErr == nil {
			break
		}
		select {
		case <-ctx.Done():
			return &CancelledError{LoadID: p.LoadID}
		case <-time.After(b.Duration()):
		}
	}
	if renameErr != nil {
		return fmt.Errorf("commit load package %q: %w", p.LoadID, renameErr)
	}

	for _, name := range p.inputs {
		if err := p.inVol.Delete(name); err != nil {
			return fmt.Errorf("delete consumed input %q: %w", name, err)
		}
	}
	return nil
}

// Discard removes the package's temporary directory without promoting it,
// used when a run fails before every chunk has finished writing.
func (p *Package) Discard() error {
	if err := os.RemoveAll(p.dir); err != nil {
		return fmt.Errorf("discard load package %q: %w", p.LoadID, err)
	}
	return nil
}
