// SPDX-License-Identifier: Apache-2.0

// Package volume implements the pure file-name parsing and directory
// listing/grouping rules shared by the input (extracted-items) and output
// (load package) volumes, the filesystem counterpart of pgroll's
// CollectFilesFromDir helper in pkg/migrations/op_common.go.
package volume

import (
	"fmt"
	"strings"
)

// ParsedName is the result of parsing an extracted-items file name of the
// form "{schema}.{root_table}.{unique_id}.{format}".
type ParsedName struct {
	Schema    string
	RootTable string
	UniqueID  string
	Format    string
}

// ErrInvalidFileName is returned by Parse when name doesn't have the
// expected four dot-separated segments.
type ErrInvalidFileName struct {
	Name string
}

func (e *ErrInvalidFileName) Error() string {
	return fmt.Sprintf("invalid extracted-items file name %q: expected {schema}.{root_table}.{unique_id}.{format}", e.Name)
}

// Parse recovers {schema, root_table} (and the remaining segments) from an
// extracted-items file name, per §3/§6.
func Parse(name string) (ParsedName, error) {
	parts := strings.Split(name, ".")
	if len(parts) != 4 {
		return ParsedName{}, &ErrInvalidFileName{Name: name}
	}
	return ParsedName{
		Schema:    parts[0],
		RootTable: parts[1],
		UniqueID:  parts[2],
		Format:    parts[3],
	}, nil
}

// FileName renders a ParsedName back to its canonical file name.
func (p ParsedName) FileName() string {
	return strings.Join([]string{p.Schema, p.RootTable, p.UniqueID, p.Format}, ".")
}

// GroupBySchema partitions files by their parsed schema name, preserving
// the relative order of files within each group. Files are expected to
// already be sorted by the caller (matching §4.5's sort-before-shard
// heuristic), so within a group that order is preserved too.
func GroupBySchema(files []string) (map[string][]string, []string, error) {
	groups := make(map[string][]string)
	var order []string
	for _, f := range files {
		parsed, err := Parse(f)
		if err != nil {
			return nil, nil, err
		}
		if _, ok := groups[parsed.Schema]; !ok {
			order = append(order, parsed.Schema)
		}
		groups[parsed.Schema] = append(groups[parsed.Schema], f)
	}
	return groups, order, nil
}
