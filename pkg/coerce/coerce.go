// SPDX-License-Identifier: Apache-2.0

// Package coerce implements the schema coercer (C2 in the design): given a
// flat row and the table it targets, it infers column types for unseen
// fields and coerces already-typed fields to their column's nominal type,
// widening the type against the schema package's lattice when necessary.
// Coercion is additive but never narrowing, which is what lets independent
// workers each propose a PartialTable that the coordinator can merge
// without rewriting rows that were already written against the old column
// set.
package coerce

import (
	"strconv"
	"time"

	"github.com/loadkit/normalize/pkg/schema"
)

// Nominal column types. These are intentionally coarse: the row writer
// (package rows) is responsible for any destination-specific formatting.
const (
	TypeBigInt    = "bigint"
	TypeDouble    = "double"
	TypeBool      = "bool"
	TypeTimestamp = "timestamp"
	TypeDate      = "date"
	TypeDecimal   = "decimal"
	TypeBinary    = "binary"
	TypeText      = "text"
	TypeJSON      = "json"
)

// Widen returns the widened type for an (existing, incoming) pair and
// whether widening is possible at all. The lattice itself lives in package
// schema, since schema.Update must consult it too and coerce already
// imports schema; this delegates rather than duplicating it.
func Widen(existing, incoming string) (string, bool) {
	return schema.Widen(existing, incoming)
}

// InferType returns the nominal column type for a decoded scalar value.
// Values must already have passed through the PUA decode pass (package
// items) so that e.g. a time.Time arrives as a time.Time, not a tagged
// string.
func InferType(v any) string {
	switch v.(type) {
	case nil:
		return TypeText
	case bool:
		return TypeBool
	case int, int32, int64:
		return TypeBigInt
	case float32, float64:
		return TypeDouble
	case time.Time:
		return TypeTimestamp
	case []byte:
		return TypeBinary
	case map[string]any, []any:
		return TypeJSON
	default:
		return TypeText
	}
}

// Row coerces every field of row against table's current columns. It
// returns the (possibly reordered-by-nothing, same map) row, a PartialTable
// describing any new or widened columns (nil if none), and an error if a
// field's value can't be coerced to its column's existing type.
//
// table may be nil, in which case every field is new and the returned
// PartialTable contains the table's full column set.
func Row(table *schema.Table, tableName, parentTable string, row map[string]any) (map[string]any, *schema.PartialTable, error) {
	var pt *schema.PartialTable
	addCol := func(c *schema.Column) {
		if pt == nil {
			pt = &schema.PartialTable{Table: tableName, ParentTable: parentTable}
		}
		pt.Columns = append(pt.Columns, c)
	}

	for name, val := range row {
		var existing *schema.Column
		if table != nil {
			existing = table.GetColumn(name)
		}

		if existing == nil {
			nullable := val == nil
			col := &schema.Column{Name: name, Type: InferType(val), Nullable: nullable}
			addCol(col)
			continue
		}

		coerced, newType, err := coerceValue(existing, val)
		if err != nil {
			if conflict, ok := err.(*schema.CoercionConflictError); ok {
				conflict.Table = tableName
			}
			return nil, nil, err
		}
		row[name] = coerced

		if newType != existing.Type {
			addCol(&schema.Column{Name: name, Type: newType, Nullable: existing.Nullable})
		}
		if val == nil && !existing.Nullable {
			addCol(&schema.Column{Name: name, Type: existing.Type, Nullable: true})
		}
	}

	return row, pt, nil
}

// coerceValue coerces v into column's nominal type, returning the possibly
// widened type name the value ends up requiring.
func coerceValue(column *schema.Column, v any) (any, string, error) {
	if v == nil {
		if !column.Nullable {
			// Null is permitted iff the column is nullable; the caller
			// widens nullability rather than failing outright, matching
			// the additive-only nature of this coercer.
			return nil, column.Type, nil
		}
		return nil, column.Type, nil
	}

	incoming := InferType(v)
	if incoming == column.Type {
		return v, column.Type, nil
	}

	// String scalars may still parse into a more specific column type
	// (date/datetime parsing from string, per §4.2).
	if s, ok := v.(string); ok {
		if column.Type == TypeTimestamp || column.Type == TypeDate {
			if t, err := parseTimestamp(s); err == nil {
				return t, column.Type, nil
			}
		}
		if column.Type == TypeBigInt {
			if n, err := strconv.ParseInt(s, 10, 64); err == nil {
				return n, column.Type, nil
			}
		}
		if column.Type == TypeDouble || column.Type == TypeDecimal {
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				return f, column.Type, nil
			}
		}
	}

	widened, ok := Widen(column.Type, incoming)
	if !ok {
		return nil, "", &schema.CoercionConflictError{
			Column:       column.Name,
			ExistingType: column.Type,
			IncomingType: incoming,
		}
	}
	return v, widened, nil
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, &time.ParseError{Layout: time.RFC3339, Value: s}
}
