// SPDX-License-Identifier: Apache-2.0

package schema

// widenTo maps a (existing, incoming) type pair to the widened type both
// values can be represented as: integers widen to doubles or decimals, dates
// widen to timestamps. A pair absent from this table, and not equal, is a
// coercion conflict. This lives here rather than in package coerce (which
// owns the named type constants) because Update must consult it, and coerce
// already imports schema.
var widenTo = map[[2]string]string{
	{"bigint", "double"}:    "double",
	{"double", "bigint"}:    "double",
	{"bigint", "decimal"}:   "decimal",
	{"decimal", "bigint"}:   "decimal",
	{"double", "decimal"}:   "decimal",
	{"decimal", "double"}:   "decimal",
	{"date", "timestamp"}:   "timestamp",
	{"timestamp", "date"}:   "timestamp",
}

// Widen returns the widened type for an (existing, incoming) pair and
// whether widening is possible at all. coerce.Widen delegates here so the
// lattice has a single definition.
func Widen(existing, incoming string) (string, bool) {
	if existing == incoming {
		return existing, true
	}
	if t, ok := widenTo[[2]string{existing, incoming}]; ok {
		return t, true
	}
	return "", false
}
