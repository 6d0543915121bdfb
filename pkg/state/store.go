// SPDX-License-Identifier: Apache-2.0

// Package state implements the schema store (§5): the versioned record of a
// schema's tables and columns, persisted under a schema volume directory
// rather than a database, and the version history of every committed
// snapshot. Only the coordinator and the CLI use it; workers never do.
package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/cloudflare/backoff"

	"github.com/loadkit/normalize/pkg/schema"
)

// Store persists schema versions under a root directory, one subdirectory
// per named schema:
//
//	{root}/{schema}/v{version}.json   -- StoredSchema snapshots
//	{root}/{schema}/current           -- plain-text pointer to the latest version
type Store struct {
	root    string
	version string // engine version stamped on newly committed snapshots
}

// StoreOpt configures a Store, mirroring the functional-options pattern used
// throughout this codebase for optional construction parameters.
type StoreOpt func(*Store)

// WithEngineVersion sets the version of this binary, stamped onto every
// schema snapshot the Store commits so a later run can detect it's older
// than the schema it's about to operate on.
func WithEngineVersion(version string) StoreOpt {
	return func(s *Store) {
		s.version = version
	}
}

// New returns a Store rooted at root.
func New(root string, opts ...StoreOpt) *Store {
	s := &Store{root: root, version: "development"}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StoredSchema is the JSON-serialized snapshot the store persists for each
// version: a schema's tables and columns plus the
// bookkeeping the store needs to order versions and detect stale writers.
type StoredSchema struct {
	Name          string        `json:"name"`
	Version       int           `json:"version"`
	EngineVersion string        `json:"engine_version"`
	CreatedAt     time.Time     `json:"created_at"`
	Schema        schema.Schema `json:"schema"`
}

// SchemaNotFoundError is returned by Load when no version of name has ever
// been committed.
type SchemaNotFoundError struct {
	Name string
}

func (e *SchemaNotFoundError) Error() string {
	return fmt.Sprintf("schema %q: not found", e.Name)
}

func (s *Store) schemaDir(name string) string {
	return filepath.Join(s.root, name)
}

func (s *Store) versionPath(name string, version int) string {
	return filepath.Join(s.schemaDir(name), fmt.Sprintf("v%d.json", version))
}

func (s *Store) currentPath(name string) string {
	return filepath.Join(s.schemaDir(name), "current")
}

// Load returns the latest committed snapshot of name. If no version has
// ever been committed, it returns a fresh empty schema at version 0 rather
// than an error, per §5's "schema starts empty on first sight" rule -- use
// Exists to distinguish the two cases where that matters.
func (s *Store) Load(ctx context.Context, name string) (*StoredSchema, error) {
	version, err := s.currentVersion(name)
	if err != nil {
		if _, ok := err.(*SchemaNotFoundError); ok {
			return &StoredSchema{
				Name:      name,
				Version:   0,
				CreatedAt: time.Time{},
				Schema:    schema.Schema{Name: name, Version: 0, Tables: map[string]*schema.Table{}},
			}, nil
		}
		return nil, err
	}
	return s.loadVersion(ctx, name, version)
}

// Exists reports whether any version of name has been committed.
func (s *Store) Exists(name string) (bool, error) {
	_, err := s.currentVersion(name)
	if err != nil {
		if _, ok := err.(*SchemaNotFoundError); ok {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *Store) currentVersion(name string) (int, error) {
	b, err := os.ReadFile(s.currentPath(name))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, &SchemaNotFoundError{Name: name}
		}
		return 0, fmt.Errorf("read current version pointer for schema %q: %w", name, err)
	}
	var version int
	if _, err := fmt.Sscanf(string(b), "%d", &version); err != nil {
		return 0, fmt.Errorf("parse current version pointer for schema %q: %w", name, err)
	}
	return version, nil
}

func (s *Store) loadVersion(_ context.Context, name string, version int) (*StoredSchema, error) {
	b, err := os.ReadFile(s.versionPath(name, version))
	if err != nil {
		return nil, fmt.Errorf("read schema %q version %d: %w", name, version, err)
	}
	var stored StoredSchema
	if err := json.Unmarshal(b, &stored); err != nil {
		return nil, fmt.Errorf("unmarshal schema %q version %d: %w", name, version, err)
	}
	return &stored, nil
}

// Save commits updated under its own Version number (overwriting that
// version's file if it already exists) and points the current-version
// pointer at it. The write is
// retried with backoff (mirroring this codebase's database retry wrapper)
// since it's racing with other workers' coordinators writing neighbouring
// schema directories on the same volume.
func (s *Store) Save(ctx context.Context, updated *schema.Schema) (*StoredSchema, error) {
	if err := os.MkdirAll(s.schemaDir(updated.Name), 0o755); err != nil {
		return nil, fmt.Errorf("create schema directory for %q: %w", updated.Name, err)
	}

	stored := &StoredSchema{
		Name:          updated.Name,
		Version:       updated.Version,
		EngineVersion: s.version,
		CreatedAt:     time.Now().UTC(),
		Schema:        *updated,
	}
	b, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal schema %q: %w", updated.Name, err)
	}

	b2 := backoff.New(2*time.Second, 50*time.Millisecond)
	var writeErr error
	for attempt := 0; attempt < 5; attempt++ {
		writeErr = s.commitVersion(updated.Name, updated.Version, b)
		if writeErr == nil {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(b2.Duration()):
		}
	}
	if writeErr != nil {
		return nil, fmt.Errorf("commit schema %q version %d: %w", updated.Name, updated.Version, writeErr)
	}
	return stored, nil
}

func (s *Store) commitVersion(name string, version int, b []byte) error {
	path := s.versionPath(name, version)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return err
	}
	tmpCurrent := s.currentPath(name) + ".tmp"
	if err := os.WriteFile(tmpCurrent, []byte(fmt.Sprintf("%d", version)), 0o644); err != nil {
		return err
	}
	return os.Rename(tmpCurrent, s.currentPath(name))
}

// History returns every committed version of name in ascending version
// order, the file-volume counterpart of this codebase's SQL-backed schema
// history query.
func (s *Store) History(name string) ([]*StoredSchema, error) {
	entries, err := os.ReadDir(s.schemaDir(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list schema history for %q: %w", name, err)
	}

	var versions []int
	for _, e := range entries {
		var v int
		if _, err := fmt.Sscanf(e.Name(), "v%d.json", &v); err == nil {
			versions = append(versions, v)
		}
	}
	sort.Ints(versions)

	history := make([]*StoredSchema, 0, len(versions))
	for _, v := range versions {
		stored, err := s.loadVersion(context.Background(), name, v)
		if err != nil {
			return nil, err
		}
		history = append(history, stored)
	}
	return history, nil
}
