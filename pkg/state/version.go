// SPDX-License-Identifier: Apache-2.0

package state

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/mod/semver"
)

var ErrNewerSchemaVersion = errors.New("engine binary version is older than the committed schema's engine version")

// VersionCompatibility represents the result of comparing this binary's
// engine version against the engine version stamped on a schema's most
// recent committed snapshot.
type VersionCompatibility int

const (
	VersionCompatCheckSkipped VersionCompatibility = iota
	VersionCompatNotInitialized
	VersionCompatSchemaOlder
	VersionCompatSchemaEqual
	VersionCompatSchemaNewer
)

// VersionCompatibility compares the engine version this Store was
// constructed with against the engine version recorded on name's latest
// committed snapshot.
func (s *Store) VersionCompatibility(ctx context.Context, name string) (VersionCompatibility, error) {
	engineVersion := s.version

	// Development builds are not checked for compatibility.
	if engineVersion == "development" {
		return VersionCompatCheckSkipped, nil
	}

	exists, err := s.Exists(name)
	if err != nil {
		return 0, fmt.Errorf("check schema %q existence: %w", name, err)
	}
	if !exists {
		return VersionCompatNotInitialized, nil
	}

	stored, err := s.Load(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("load schema %q: %w", name, err)
	}

	schemaVersion := stored.EngineVersion
	if schemaVersion == "" || schemaVersion == "development" {
		return VersionCompatCheckSkipped, nil
	}

	schemaVersion = ensureVPrefix(schemaVersion)
	binVersion := ensureVPrefix(engineVersion)

	if !semver.IsValid(schemaVersion) || !semver.IsValid(binVersion) {
		return VersionCompatCheckSkipped, nil
	}

	schemaVersion = semver.Canonical(schemaVersion)
	binVersion = semver.Canonical(binVersion)

	switch semver.Compare(schemaVersion, binVersion) {
	case -1:
		return VersionCompatSchemaOlder, nil
	case 1:
		return VersionCompatSchemaNewer, nil
	default:
		return VersionCompatSchemaEqual, nil
	}
}

// Ensure that the given version string starts with 'v' to ensure
// compatibility with the `golang.org/x/mod/semver` package.
func ensureVPrefix(version string) string {
	if len(version) > 0 && version[0] != 'v' {
		return "v" + version
	}
	return version
}
