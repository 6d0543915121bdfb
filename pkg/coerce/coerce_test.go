// SPDX-License-Identifier: Apache-2.0

package coerce_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loadkit/normalize/pkg/coerce"
	"github.com/loadkit/normalize/pkg/schema"
)

func TestWiden(t *testing.T) {
	tests := []struct {
		name      string
		existing  string
		incoming  string
		wantType  string
		wantFound bool
	}{
		{"identical types widen to themselves", coerce.TypeBigInt, coerce.TypeBigInt, coerce.TypeBigInt, true},
		{"bigint widens to double", coerce.TypeBigInt, coerce.TypeDouble, coerce.TypeDouble, true},
		{"double widens to decimal", coerce.TypeDouble, coerce.TypeDecimal, coerce.TypeDecimal, true},
		{"date widens to timestamp", coerce.TypeDate, coerce.TypeTimestamp, coerce.TypeTimestamp, true},
		{"bool and text don't widen", coerce.TypeBool, coerce.TypeText, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := coerce.Widen(tt.existing, tt.incoming)
			assert.Equal(t, tt.wantFound, ok)
			if ok {
				assert.Equal(t, tt.wantType, got)
			}
		})
	}
}

func TestInferType(t *testing.T) {
	assert.Equal(t, coerce.TypeBool, coerce.InferType(true))
	assert.Equal(t, coerce.TypeBigInt, coerce.InferType(int64(5)))
	assert.Equal(t, coerce.TypeDouble, coerce.InferType(3.14))
	assert.Equal(t, coerce.TypeJSON, coerce.InferType(map[string]any{"a": 1}))
	assert.Equal(t, coerce.TypeText, coerce.InferType(nil))
}

func TestRowOnNilTableInfersEveryColumn(t *testing.T) {
	row := map[string]any{"id": int64(1), "name": "alice"}

	out, pt, err := coerce.Row(nil, "users", "", row)
	require.NoError(t, err)
	require.NotNil(t, pt)
	assert.Equal(t, "users", pt.Table)
	assert.Len(t, pt.Columns, 2)
	assert.Equal(t, row, out)
}

func TestRowWidensExistingColumn(t *testing.T) {
	table := &schema.Table{Name: "events"}
	s := schema.New("s")
	require.NoError(t, s.Update(&schema.PartialTable{
		Table:   "events",
		Columns: []*schema.Column{{Name: "count", Type: coerce.TypeBigInt}},
	}))
	table = s.GetTable("events")

	row := map[string]any{"count": 3.5}
	_, pt, err := coerce.Row(table, "events", "", row)
	require.NoError(t, err)
	require.NotNil(t, pt)
	require.Len(t, pt.Columns, 1)
	assert.Equal(t, coerce.TypeDouble, pt.Columns[0].Type)
}

func TestRowWidenedDeltaReappliesToItsOwnSchemaWithoutConflict(t *testing.T) {
	s := schema.New("s")
	require.NoError(t, s.Update(&schema.PartialTable{
		Table:   "events",
		Columns: []*schema.Column{{Name: "count", Type: coerce.TypeBigInt}},
	}))
	table := s.GetTable("events")

	_, pt, err := coerce.Row(table, "events", "", map[string]any{"count": 3.5})
	require.NoError(t, err)
	require.NotNil(t, pt)

	require.NoError(t, s.Update(pt), "widening the column that coerce.Row just computed the delta against must not conflict")
	assert.Equal(t, coerce.TypeDouble, s.GetTable("events").GetColumn("count").Type)
}

func TestRowConflictingTypeReturnsCoercionConflictError(t *testing.T) {
	s := schema.New("s")
	require.NoError(t, s.Update(&schema.PartialTable{
		Table:   "events",
		Columns: []*schema.Column{{Name: "flag", Type: coerce.TypeBool}},
	}))
	table := s.GetTable("events")

	_, _, err := coerce.Row(table, "events", "", map[string]any{"flag": map[string]any{"nested": true}})
	var conflict *schema.CoercionConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "events", conflict.Table)
	assert.Equal(t, "flag", conflict.Column)
}

func TestRowNullValueWidensNullability(t *testing.T) {
	s := schema.New("s")
	require.NoError(t, s.Update(&schema.PartialTable{
		Table:   "events",
		Columns: []*schema.Column{{Name: "name", Type: coerce.TypeText, Nullable: false}},
	}))
	table := s.GetTable("events")

	_, pt, err := coerce.Row(table, "events", "", map[string]any{"name": nil})
	require.NoError(t, err)
	require.NotNil(t, pt)
	assert.True(t, pt.Columns[0].Nullable)
}

func TestRowStringParsesIntoTimestampColumn(t *testing.T) {
	s := schema.New("s")
	require.NoError(t, s.Update(&schema.PartialTable{
		Table:   "events",
		Columns: []*schema.Column{{Name: "at", Type: coerce.TypeTimestamp}},
	}))
	table := s.GetTable("events")

	row := map[string]any{"at": "2024-01-02T03:04:05Z"}
	out, pt, err := coerce.Row(table, "events", "", row)
	require.NoError(t, err)
	assert.Nil(t, pt)
	assert.IsType(t, time.Time{}, out["at"])
}
