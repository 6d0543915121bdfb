// SPDX-License-Identifier: Apache-2.0

package schema

// PartialTable (ΔT) carries only the columns added or widened by a single
// coercion. It is the unit of inter-worker schema merging: a worker applies
// it to its local copy immediately, and returns it to the coordinator to
// apply to the shared Schema.
type PartialTable struct {
	// Table is the name of the table the columns belong to.
	Table string `json:"table"`

	// ParentTable is set when Table is being created for the first time
	// as a child table; empty otherwise (the coordinator ignores it once
	// the table already exists).
	ParentTable string `json:"parentTable,omitempty"`

	// Columns holds only the columns that are new or were widened.
	Columns []*Column `json:"columns"`
}

// IsEmpty reports whether the partial table carries no column changes, in
// which case it should not be recorded or applied.
func (pt *PartialTable) IsEmpty() bool {
	return pt == nil || len(pt.Columns) == 0
}
