// SPDX-License-Identifier: Apache-2.0

// Package testutils provides shared helpers for exercising the engine
// against real temporary directories instead of mocked volumes.
package testutils

import (
	"math/rand"
	"os"
	"testing"
)

// RandomID returns a short random lowercase identifier, used to scope a
// test's load-id or schema name so parallel tests never collide on the
// same volume paths.
func RandomID() string {
	const length = 12
	const charset = "abcdefghijklmnopqrstuvwxyz0123456789"

	b := make([]byte, length)
	for i := range b {
		b[i] = charset[rand.Intn(len(charset))] // #nosec G404
	}
	return string(b)
}

// TempVolumes creates fresh, empty normalize/load/schema volume directories
// under t.TempDir(), removed automatically when the test finishes.
func TempVolumes(t *testing.T) (normalizeVolume, loadVolume, schemaVolume string) {
	t.Helper()

	root := t.TempDir()
	normalizeVolume = root + "/normalize"
	loadVolume = root + "/load"
	schemaVolume = root + "/schema"

	for _, dir := range []string{normalizeVolume, loadVolume, schemaVolume} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("create volume directory %q: %v", dir, err)
		}
	}
	return normalizeVolume, loadVolume, schemaVolume
}

// WriteExtractedItemsFile writes a raw extracted-items file named per §3's
// convention directly onto a normalize volume, for tests that want to drive
// the engine from a fixture file rather than constructing records in code.
func WriteExtractedItemsFile(t *testing.T, volumeDir, name string, contents []byte) string {
	t.Helper()

	path := volumeDir + "/" + name
	if err := os.WriteFile(path, contents, 0o644); err != nil {
		t.Fatalf("write extracted-items fixture %q: %v", path, err)
	}
	return path
}
