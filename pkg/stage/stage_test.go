// SPDX-License-Identifier: Apache-2.0

package stage_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loadkit/normalize/pkg/schema"
	"github.com/loadkit/normalize/pkg/stage"
	"github.com/loadkit/normalize/pkg/volume"
)

func TestOpenCreatesTempDir(t *testing.T) {
	normDir := t.TempDir()
	loadDir := t.TempDir()
	inVol := volume.NewInputVolume(normDir)
	outVol := volume.NewOutputVolume(loadDir)

	pkg, err := stage.Open(outVol, inVol, "load1", nil)
	require.NoError(t, err)
	assert.DirExists(t, pkg.Dir())
	assert.Equal(t, outVol.TempPackageDir("load1"), pkg.Dir())
}

func TestCommitPromotesPackageAndDeletesInputs(t *testing.T) {
	normDir := t.TempDir()
	loadDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(normDir, "acme.users.1.jsonl"), []byte("{}"), 0o644))

	inVol := volume.NewInputVolume(normDir)
	outVol := volume.NewOutputVolume(loadDir)

	pkg, err := stage.Open(outVol, inVol, "load1", []string{"acme.users.1.jsonl"})
	require.NoError(t, err)

	s := schema.New("acme")
	require.NoError(t, pkg.WriteSchema(s))
	require.NoError(t, pkg.WriteSchemaUpdates(nil))

	require.NoError(t, pkg.Commit(context.Background()))

	assert.DirExists(t, outVol.CommittedPackageDir("load1"))
	assert.NoDirExists(t, pkg.Dir())
	assert.NoFileExists(t, filepath.Join(normDir, "acme.users.1.jsonl"))
}

func TestCommitCancelledContextReturnsCancelledError(t *testing.T) {
	normDir := t.TempDir()
	loadDir := t.TempDir()
	inVol := volume.NewInputVolume(normDir)
	outVol := volume.NewOutputVolume(loadDir)

	pkg, err := stage.Open(outVol, inVol, "load1", nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = pkg.Commit(ctx)
	var cancelled *stage.CancelledError
	require.ErrorAs(t, err, &cancelled)
	assert.Equal(t, "load1", cancelled.LoadID)
	assert.DirExists(t, pkg.Dir(), "an aborted commit must leave the temp package in place")
}

func TestDiscardRemovesTempDir(t *testing.T) {
	normDir := t.TempDir()
	loadDir := t.TempDir()
	inVol := volume.NewInputVolume(normDir)
	outVol := volume.NewOutputVolume(loadDir)

	pkg, err := stage.Open(outVol, inVol, "load1", nil)
	require.NoError(t, err)

	require.NoError(t, pkg.Discard())
	assert.NoDirExists(t, pkg.Dir())
}
