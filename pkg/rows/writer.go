// SPDX-License-Identifier: Apache-2.0

package rows

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/loadkit/normalize/pkg/schema"
	"github.com/loadkit/normalize/pkg/volume"
)

// key identifies one output file: a single (schema, table) pair within one
// worker's chunk. Each worker owns its own Set, so load-id and chunk-id are
// fixed per Set rather than part of the key.
type key struct {
	schemaName string
	table      string
}

// Set is a worker's buffered collection of per-table output writers for one
// chunk of one load package (§6, C3). Rows are appended table by table as
// the worker processes its assigned files; CloseAll flushes and closes every
// writer opened so far and returns the paths it wrote (each joined with the
// Set's directory),
// ready to be handed to the coordinator for staging (§4.4 step 4,5).
type Set struct {
	mu      sync.Mutex
	dir     string
	chunkID string
	caps    Capabilities
	open    map[key]fileWriter
	paths   map[key]string
}

// NewSet returns a Set that writes into dir (a load package's temp
// directory), tagging every file it creates with chunkID so concurrent
// workers never collide on a file name.
func NewSet(dir, chunkID string, caps Capabilities) *Set {
	return &Set{
		dir:     dir,
		chunkID: chunkID,
		caps:    caps,
		open:    make(map[key]fileWriter),
		paths:   make(map[key]string),
	}
}

// WriteRow appends row (already coerced and filtered) to the table's output
// file, opening the file on first use.
func (s *Set) WriteRow(schemaName string, table *schema.Table, row map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key{schemaName: schemaName, table: table.Name}
	w, ok := s.open[k]
	if !ok {
		format := string(s.caps.ResolvedFormat())
		name := volume.RowFileName(schemaName, table.Name, s.chunkID, format)
		path := filepath.Join(s.dir, name)
		var err error
		w, err = newFileWriter(s.caps.ResolvedFormat(), path)
		if err != nil {
			return err
		}
		s.open[k] = w
		s.paths[k] = path
	}
	return w.WriteRow(table.Columns, row)
}

// CloseAll flushes and closes every writer opened on this Set and returns
// the output file paths it produced, each joined with the Set's directory.
func (s *Set) CloseAll() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var paths []string
	for k, w := range s.open {
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("close output file for table %q: %w", k.table, err)
		}
		paths = append(paths, s.paths[k])
	}
	return paths, nil
}
