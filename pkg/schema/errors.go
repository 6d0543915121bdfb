// SPDX-License-Identifier: Apache-2.0

package schema

import "fmt"

// CoercionConflictError is raised when two incompatible column type
// proposals are made for the same column: a worker (or the coordinator,
// merging two workers' results) tried to widen an existing column to a type
// that isn't reachable from its current type through the coercion lattice.
type CoercionConflictError struct {
	Table        string
	Column       string
	ExistingType string
	IncomingType string
}

func (e *CoercionConflictError) Error() string {
	return fmt.Sprintf("coercion conflict on %q.%q: cannot widen %q to %q", e.Table, e.Column, e.ExistingType, e.IncomingType)
}

// TableDoesNotExistError mirrors the table-not-found condition used widely
// across this codebase's typed error structs.
type TableDoesNotExistError struct {
	Name string
}

func (e *TableDoesNotExistError) Error() string {
	return fmt.Sprintf("table %q does not exist", e.Name)
}
