// SPDX-License-Identifier: Apache-2.0

package normalize_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loadkit/normalize/internal/testutils"
	"github.com/loadkit/normalize/pkg/normalize"
	"github.com/loadkit/normalize/pkg/rows"
	"github.com/loadkit/normalize/pkg/state"
	"github.com/loadkit/normalize/pkg/volume"
)

func newCoordinator(t *testing.T, normDir, schemaDir string, workers int) *normalize.Coordinator {
	t.Helper()
	return &normalize.Coordinator{
		Store:       state.New(schemaDir, state.WithEngineVersion("development")),
		InputVolume: volume.NewInputVolume(normDir),
		Caps:        rows.Capabilities{PreferredLoaderFileFormat: rows.FormatJSONL},
		WorkerCount: workers,
	}
}

func TestDispatchSingleWorkerPersistsSchemaAndWritesRows(t *testing.T) {
	normDir, loadDir, schemaDir := testutils.TempVolumes(t)
	testutils.WriteExtractedItemsFile(t, normDir, "acme.users.f1.jsonl",
		[]byte(`{"id": 1, "name": "alice"}`+"\n"+`{"id": 2, "name": "bob"}`+"\n"))

	coord := newCoordinator(t, normDir, schemaDir, 1)

	outcome, err := coord.Dispatch(context.Background(), "acme", "load1", loadDir, []string{"acme.users.f1.jsonl"})
	require.NoError(t, err)

	assert.Equal(t, 2, outcome.ItemsWritten)
	assert.Equal(t, 1, outcome.Schema.Version)
	assert.NotNil(t, outcome.Schema.GetTable("users"))

	store := state.New(schemaDir, state.WithEngineVersion("development"))
	exists, err := store.Exists("acme")
	require.NoError(t, err)
	assert.True(t, exists, "Dispatch must persist the merged schema via the store")
}

func TestDispatchParallelMergesAcrossFiles(t *testing.T) {
	normDir, loadDir, schemaDir := testutils.TempVolumes(t)
	testutils.WriteExtractedItemsFile(t, normDir, "acme.users.f1.jsonl", []byte(`{"id": 1, "name": "alice"}`+"\n"))
	testutils.WriteExtractedItemsFile(t, normDir, "acme.users.f2.jsonl", []byte(`{"id": 2, "name": "bob"}`+"\n"))
	testutils.WriteExtractedItemsFile(t, normDir, "acme.users.f3.jsonl", []byte(`{"id": 3, "name": "carol"}`+"\n"))

	coord := newCoordinator(t, normDir, schemaDir, 3)

	outcome, err := coord.Dispatch(context.Background(), "acme", "load1", loadDir,
		[]string{"acme.users.f1.jsonl", "acme.users.f2.jsonl", "acme.users.f3.jsonl"})
	require.NoError(t, err)

	assert.Equal(t, 3, outcome.ItemsWritten)
	assert.NotNil(t, outcome.Schema.GetTable("users"))
}

func TestDispatchOnSecondRunReusesCommittedSchema(t *testing.T) {
	normDir, loadDir, schemaDir := testutils.TempVolumes(t)
	testutils.WriteExtractedItemsFile(t, normDir, "acme.users.f1.jsonl", []byte(`{"id": 1, "name": "alice"}`+"\n"))

	coord := newCoordinator(t, normDir, schemaDir, 1)
	first, err := coord.Dispatch(context.Background(), "acme", "load1", loadDir, []string{"acme.users.f1.jsonl"})
	require.NoError(t, err)
	assert.Equal(t, 1, first.Schema.Version)

	testutils.WriteExtractedItemsFile(t, normDir, "acme.users.f2.jsonl", []byte(`{"id": 2, "email": "b@example.com"}`+"\n"))
	second, err := coord.Dispatch(context.Background(), "acme", "load2", loadDir, []string{"acme.users.f2.jsonl"})
	require.NoError(t, err)

	assert.Equal(t, 2, second.Schema.Version)
	assert.NotNil(t, second.Schema.GetTable("users").GetColumn("email"))
	assert.NotNil(t, second.Schema.GetTable("users").GetColumn("name"), "the column from the first run must survive the second")
}
