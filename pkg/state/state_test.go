// SPDX-License-Identifier: Apache-2.0

package state_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loadkit/normalize/pkg/schema"
	"github.com/loadkit/normalize/pkg/state"
)

func TestLoadMissingSchemaReturnsEmptyVersionZero(t *testing.T) {
	store := state.New(t.TempDir())

	stored, err := store.Load(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, 0, stored.Version)
	assert.Equal(t, "acme", stored.Schema.Name)

	exists, err := store.Exists("acme")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	store := state.New(t.TempDir(), state.WithEngineVersion("1.2.3"))
	ctx := context.Background()

	s := schema.New("acme")
	require.NoError(t, s.Update(&schema.PartialTable{
		Table:   "users",
		Columns: []*schema.Column{{Name: "id", Type: "bigint"}},
	}))

	saved, err := store.Save(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, 1, saved.Version)
	assert.Equal(t, "1.2.3", saved.EngineVersion)

	exists, err := store.Exists("acme")
	require.NoError(t, err)
	assert.True(t, exists)

	loaded, err := store.Load(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.Version)
	assert.NotNil(t, loaded.Schema.GetTable("users"))
}

func TestHistoryListsVersionsInOrder(t *testing.T) {
	store := state.New(t.TempDir())
	ctx := context.Background()

	s := schema.New("acme")
	require.NoError(t, s.Update(&schema.PartialTable{Table: "users", Columns: []*schema.Column{{Name: "id", Type: "bigint"}}}))
	_, err := store.Save(ctx, s)
	require.NoError(t, err)

	require.NoError(t, s.Update(&schema.PartialTable{Table: "users", Columns: []*schema.Column{{Name: "email", Type: "text"}}}))
	_, err = store.Save(ctx, s)
	require.NoError(t, err)

	history, err := store.History("acme")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, 1, history[0].Version)
	assert.Equal(t, 2, history[1].Version)
}

func TestHistoryOnMissingSchemaIsEmpty(t *testing.T) {
	store := state.New(t.TempDir())
	history, err := store.History("ghost")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestVersionCompatibilitySkippedForDevelopmentBuilds(t *testing.T) {
	store := state.New(t.TempDir())
	compat, err := store.VersionCompatibility(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, state.VersionCompatCheckSkipped, compat)
}

func TestVersionCompatibilityNotInitialized(t *testing.T) {
	store := state.New(t.TempDir(), state.WithEngineVersion("1.2.3"))
	compat, err := store.VersionCompatibility(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, state.VersionCompatNotInitialized, compat)
}

func TestVersionCompatibilityComparesEngineVersions(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	older := state.New(dir, state.WithEngineVersion("1.0.0"))
	s := schema.New("acme")
	require.NoError(t, s.Update(&schema.PartialTable{Table: "users", Columns: []*schema.Column{{Name: "id", Type: "bigint"}}}))
	_, err := older.Save(ctx, s)
	require.NoError(t, err)

	newer := state.New(dir, state.WithEngineVersion("2.0.0"))
	compat, err := newer.VersionCompatibility(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, state.VersionCompatSchemaOlder, compat)

	same := state.New(dir, state.WithEngineVersion("1.0.0"))
	compat, err = same.VersionCompatibility(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, state.VersionCompatSchemaEqual, compat)

	olderBin := state.New(dir, state.WithEngineVersion("0.5.0"))
	compat, err = olderBin.VersionCompatibility(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, state.VersionCompatSchemaNewer, compat)
}
