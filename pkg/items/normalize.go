// SPDX-License-Identifier: Apache-2.0

// Package items implements the item normalizer (C1): expanding one nested
// record into a sequence of flat (table, parent table, row) tuples, the PUA
// decode pass, and the schema-driven row filter.
package items

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/loadkit/normalize/pkg/schema"
)

const (
	// ChildTableSeparator joins a parent table name with a field path to
	// derive a child table's name, e.g. "orders__items".
	ChildTableSeparator = "__"

	// ColumnParentID links a child row back to the row it was nested
	// under in the original record.
	ColumnParentID = "_dlt_parent_id"

	// ColumnListIndex records a child row's position within the sequence
	// it was derived from.
	ColumnListIndex = "_dlt_list_idx"

	// ColumnRowID is a content-derived identifier stamped onto every row,
	// root or child, so downstream consumers have a stable row handle
	// without needing cross-package deduplication.
	ColumnRowID = "_dlt_id"
)

// Row is one emitted tuple: the table it belongs to, its parent table (""
// for root rows), and the flat field map.
type Row struct {
	Table       string
	ParentTable string
	Fields      map[string]any
}

// Normalize expands record into the ordered sequence of rows it produces:
// the root row first, then child rows in depth-first field order, per
// §4.1. rootTable names the table the top-level record belongs to; loadID
// seeds the row-id hash so rows from different load packages never collide.
func Normalize(rootTable, loadID string, record map[string]any) ([]Row, error) {
	var rows []Row
	err := emit(emitArgs{
		table:       rootTable,
		parentTable: "",
		parentRowID: "",
		hasParent:   false,
		listIndex:   0,
		record:      record,
		loadID:      loadID,
	}, &rows)
	return rows, err
}

type emitArgs struct {
	table       string
	parentTable string
	parentRowID string
	hasParent   bool
	listIndex   int
	record      map[string]any
	loadID      string
}

// emit flattens one record into a single row (appended to out) and then
// recurses depth-first into every nested sequence it found, each item of
// which becomes a row in a derived child table.
func emit(a emitArgs, out *[]Row) error {
	flat := make(map[string]any)
	var children []childSeq
	if err := flatten("", a.record, flat, &children); err != nil {
		if collision, ok := err.(*AncestorCollisionError); ok {
			collision.Table = a.table
		}
		return err
	}

	if _, collides := flat[ColumnParentID]; collides {
		return &AncestorCollisionError{Table: a.table, Field: ColumnParentID}
	}

	rowID := hashRow(a.table, a.loadID, flat)
	flat[ColumnRowID] = rowID
	if a.hasParent {
		flat[ColumnParentID] = a.parentRowID
		flat[ColumnListIndex] = a.listIndex
	}

	*out = append(*out, Row{Table: a.table, ParentTable: a.parentTable, Fields: flat})

	for _, c := range children {
		childTable := a.table + ChildTableSeparator + c.field
		for idx, item := range c.items {
			child, ok := item.(map[string]any)
			if !ok {
				child = map[string]any{"value": item}
			}
			err := emit(emitArgs{
				table:       childTable,
				parentTable: a.table,
				parentRowID: rowID,
				hasParent:   true,
				listIndex:   idx,
				record:      child,
				loadID:      a.loadID,
			}, out)
			if err != nil {
				return err
			}
		}
	}
	return nil
}

type childSeq struct {
	field string
	items []any
}

// flatten walks a nested record, merging nested mappings into flat under
// underscore-joined keys (distinct keys at each nesting level are assumed,
// per §4.1) and collecting nested sequences as child-table candidates
// rather than flattening them.
func flatten(prefix string, m map[string]any, flat map[string]any, children *[]childSeq) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := m[k]
		name := k
		if prefix != "" {
			name = prefix + "_" + k
		}
		switch val := v.(type) {
		case map[string]any:
			if err := flatten(name, val, flat, children); err != nil {
				return err
			}
		case []any:
			*children = append(*children, childSeq{field: name, items: val})
		default:
			if _, exists := flat[name]; exists {
				return &AncestorCollisionError{Table: prefix, Field: name}
			}
			flat[name] = val
		}
	}
	return nil
}

// hashRow derives a stable, content-based row identifier. It is used purely
// as bookkeeping for downstream consumers (see SPEC_FULL.md's supplemented
// features section); it plays no part in any dedup decision within this
// package.
func hashRow(table, loadID string, flat map[string]any) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s", table, loadID)
	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(h, "|%s=%v", k, flat[k])
	}
	return hex.EncodeToString(h.Sum(nil))[:32]
}

// FilterRow applies schema-driven column hints: any column marked excluded
// on the target table is dropped from row. If every field is dropped, the
// returned row is empty and the caller must skip it entirely (§4.1).
func FilterRow(table *schema.Table, row map[string]any) map[string]any {
	if table == nil {
		return row
	}
	for name := range row {
		col := table.GetColumn(name)
		if col != nil && col.Excluded {
			delete(row, name)
		}
	}
	return row
}

// AncestorCollisionError is raised when a field's inferred name collides
// with an incompatible ancestor field during flattening (§4.1 failure
// mode).
type AncestorCollisionError struct {
	Table string
	Field string
}

func (e *AncestorCollisionError) Error() string {
	return fmt.Sprintf("field %q in table %q collides with an incompatible ancestor field", e.Field, e.Table)
}
