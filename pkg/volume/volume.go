// SPDX-License-Identifier: Apache-2.0

package volume

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// InputVolume is the flat directory of extracted-items files produced by
// the extract stage (§6).
type InputVolume struct {
	Root string
}

// NewInputVolume returns an InputVolume rooted at root.
func NewInputVolume(root string) *InputVolume {
	return &InputVolume{Root: root}
}

// ListPendingSorted lists every extracted-items file on the volume, sorted
// lexicographically. Sorting clusters same-table files in adjacent
// positions, which §4.5 relies on as a (non-load-bearing) heuristic to keep
// a single worker likely to own an entire table.
func (v *InputVolume) ListPendingSorted() ([]string, error) {
	entries, err := os.ReadDir(v.Root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list input volume %q: %w", v.Root, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		files = append(files, e.Name())
	}
	sort.Strings(files)
	return files, nil
}

// Path returns the absolute path of a named file on the volume.
func (v *InputVolume) Path(name string) string {
	return filepath.Join(v.Root, name)
}

// Delete removes a consumed input file. Called only after its owning load
// package has been committed (§3 lifecycle).
func (v *InputVolume) Delete(name string) error {
	if err := os.Remove(v.Path(name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete input file %q: %w", name, err)
	}
	return nil
}

// OutputVolume is the destination-side directory tree holding temp and
// committed load packages (§6).
type OutputVolume struct {
	Root string
}

// NewOutputVolume returns an OutputVolume rooted at root.
func NewOutputVolume(root string) *OutputVolume {
	return &OutputVolume{Root: root}
}

// TempPackageDir returns the path of the in-progress package for loadID:
// "{root}/new/{load_id}/".
func (v *OutputVolume) TempPackageDir(loadID string) string {
	return filepath.Join(v.Root, "new", loadID)
}

// CommittedPackageDir returns the path of the committed package for
// loadID: "{root}/loaded/{load_id}/".
func (v *OutputVolume) CommittedPackageDir(loadID string) string {
	return filepath.Join(v.Root, "loaded", loadID)
}

// RowFileName renders a package-relative output row file name:
// "{schema}.{table}.{chunk_id}.{format}".
func RowFileName(schemaName, table, chunkID, format string) string {
	return fmt.Sprintf("%s.%s.%s.%s", schemaName, table, chunkID, format)
}
