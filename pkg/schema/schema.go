// SPDX-License-Identifier: Apache-2.0

// Package schema holds the versioned, in-memory description of the tables
// that the normalize engine writes rows into. A Schema is mutated in place
// by applying PartialTables produced by the coercer (package coerce); it
// never shrinks or narrows a column's type, only widens or appends.
package schema

import (
	"encoding/json"
	"fmt"
)

// New creates an empty, version-0 schema with the given name.
func New(name string) *Schema {
	return &Schema{
		Name:   name,
		Tables: make(map[string]*Table),
	}
}

// Schema is a named, versioned collection of table definitions.
type Schema struct {
	// Name is the schema name, shared by every load package committed
	// under it.
	Name string `json:"name"`

	// Version increases by exactly one for every PartialTable applied
	// via Update.
	Version int `json:"version"`

	// Tables maps table name to its definition.
	Tables map[string]*Table `json:"tables"`
}

// Table is a table definition: a parent reference (empty for root tables)
// and an ordered set of columns. Column order is preserved across additions
// so downstream writers can rely on a stable column ordering.
type Table struct {
	// Name is the table name.
	Name string `json:"name"`

	// ParentTable is the name of the table this one was derived from by
	// nesting, or "" if this is a root table.
	ParentTable string `json:"parentTable,omitempty"`

	// Columns lists columns in the order they were first observed.
	Columns []*Column `json:"columns"`

	index map[string]int
}

// Column describes one column's nominal type and typing hints.
type Column struct {
	// Name is the column name.
	Name string `json:"name"`

	// Type is the column's nominal type (see the coerce package for the
	// supported type names and the widening lattice between them).
	Type string `json:"dataType"`

	// Nullable reports whether the column accepts a null value.
	Nullable bool `json:"nullable"`

	// Excluded marks a column that filter_row should drop from every row
	// before it reaches the coercer.
	Excluded bool `json:"excluded,omitempty"`
}

// GetTable returns a table by name, or nil if it doesn't exist.
func (s *Schema) GetTable(name string) *Table {
	if s.Tables == nil {
		return nil
	}
	return s.Tables[name]
}

// EnsureTable returns the table with the given name, creating an empty one
// (with the given parent) if it doesn't exist yet.
func (s *Schema) EnsureTable(name, parentTable string) *Table {
	if s.Tables == nil {
		s.Tables = make(map[string]*Table)
	}
	t, ok := s.Tables[name]
	if !ok {
		t = &Table{Name: name, ParentTable: parentTable}
		s.Tables[name] = t
	}
	return t
}

// GetColumn returns a column by name, or nil if it doesn't exist.
func (t *Table) GetColumn(name string) *Column {
	if idx, ok := t.columnIndex()[name]; ok {
		return t.Columns[idx]
	}
	return nil
}

// addColumn appends a new column, preserving discovery order.
func (t *Table) addColumn(c *Column) {
	t.Columns = append(t.Columns, c)
	if t.index == nil {
		t.index = make(map[string]int, len(t.Columns))
	}
	t.index[c.Name] = len(t.Columns) - 1
}

func (t *Table) columnIndex() map[string]int {
	if t.index == nil {
		t.index = make(map[string]int, len(t.Columns))
		for i, c := range t.Columns {
			t.index[c.Name] = i
		}
	}
	return t.index
}

// Update applies a PartialTable to the schema in place: new columns are
// appended to the named table (creating the table if necessary) and widened
// columns replace their previous type. Version is incremented by exactly one
// per call that applies a non-empty PartialTable; a nil or empty
// PartialTable, or one rejected with an error, leaves it unchanged. Update returns a CoercionConflictError if pt widens a column to
// a type that conflicts with a column already present with an incompatible,
// non-widenable type (this can happen when two workers independently
// proposed incompatible widenings for the same column; see coerce.Widen).
func (s *Schema) Update(pt *PartialTable) error {
	if pt == nil || len(pt.Columns) == 0 {
		return nil
	}

	table := s.EnsureTable(pt.Table, pt.ParentTable)
	for _, col := range pt.Columns {
		existing := table.GetColumn(col.Name)
		if existing == nil {
			table.addColumn(&Column{Name: col.Name, Type: col.Type, Nullable: col.Nullable})
			continue
		}
		if existing.Type == col.Type {
			existing.Nullable = existing.Nullable || col.Nullable
			continue
		}
		widened, ok := Widen(existing.Type, col.Type)
		if !ok {
			return &CoercionConflictError{
				Table:        pt.Table,
				Column:       col.Name,
				ExistingType: existing.Type,
				IncomingType: col.Type,
			}
		}
		existing.Type = widened
		existing.Nullable = existing.Nullable || col.Nullable
	}

	s.Version++
	return nil
}

// Clone returns a deep copy of the schema, suitable for dispatching to a
// worker that must not share memory with the coordinator's copy.
func (s *Schema) Clone() *Schema {
	out := New(s.Name)
	out.Version = s.Version
	for name, t := range s.Tables {
		nt := &Table{Name: t.Name, ParentTable: t.ParentTable}
		for _, c := range t.Columns {
			cc := *c
			nt.addColumn(&cc)
		}
		out.Tables[name] = nt
	}
	return out
}

// ToStoredBytes serializes the schema to its persisted JSON representation.
func (s *Schema) ToStoredBytes() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

// FromStoredBytes reconstructs a Schema from its persisted JSON
// representation, rebuilding the column name indexes that json.Unmarshal
// can't populate.
func FromStoredBytes(b []byte) (*Schema, error) {
	var s Schema
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("unmarshal stored schema: %w", err)
	}
	if s.Tables == nil {
		s.Tables = make(map[string]*Table)
	}
	for _, t := range s.Tables {
		t.index = nil
		t.columnIndex()
	}
	return &s, nil
}
