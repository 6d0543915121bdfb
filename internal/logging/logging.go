// SPDX-License-Identifier: Apache-2.0

// Package logging defines the structured events the engine reports while
// normalizing a schema's pending files, backed by pterm's leveled logger.
package logging

import "github.com/pterm/pterm"

// Logger is responsible for reporting every stage of a run: file discovery,
// per-schema dispatch, worker chunk completion, and load package
// commit/cancellation.
type Logger interface {
	LogRunStart(fileCount int)
	LogRunComplete(pendingCount int)

	LogSchemaDispatchStart(schemaName string, fileCount int)
	LogSchemaDispatchComplete(schemaName string, itemCount int, schemaVersion int)

	LogChunkConflict(schemaName, chunkID string, err error)
	LogSingleWorkerFallback(schemaName string, reason error)

	LogPackageCommit(loadID string)
	LogPackageCancelled(loadID string)

	Info(msg string, args ...any)
}

type engineLogger struct {
	logger pterm.Logger
}

type noopLogger struct{}

// NewLogger returns a Logger backed by pterm's default logger.
func NewLogger() Logger {
	return &engineLogger{logger: pterm.DefaultLogger}
}

// NewNoopLogger returns a Logger that discards every event, used by tests
// that don't want normalize output cluttering their test logs.
func NewNoopLogger() Logger {
	return &noopLogger{}
}

func (l *engineLogger) LogRunStart(fileCount int) {
	l.logger.Info("running normalize", l.logger.Args("file_count", fileCount))
}

func (l *engineLogger) LogRunComplete(pendingCount int) {
	l.logger.Info("normalize run complete", l.logger.Args("pending_file_count", pendingCount))
}

func (l *engineLogger) LogSchemaDispatchStart(schemaName string, fileCount int) {
	l.logger.Info("dispatching schema files", l.logger.Args("schema", schemaName, "file_count", fileCount))
}

func (l *engineLogger) LogSchemaDispatchComplete(schemaName string, itemCount int, schemaVersion int) {
	l.logger.Info("schema dispatch complete", l.logger.Args(
		"schema", schemaName,
		"item_count", itemCount,
		"schema_version", schemaVersion,
	))
}

func (l *engineLogger) LogChunkConflict(schemaName, chunkID string, err error) {
	l.logger.Warn("parallel schema update conflict, retrying chunk", l.logger.Args(
		"schema", schemaName,
		"chunk", chunkID,
		"error", err.Error(),
	))
}

func (l *engineLogger) LogSingleWorkerFallback(schemaName string, reason error) {
	l.logger.Warn("parallel schema update conflict, switching to single worker", l.logger.Args(
		"schema", schemaName,
		"error", reason.Error(),
	))
}

func (l *engineLogger) LogPackageCommit(loadID string) {
	l.logger.Info("committing load package, do not kill this process", l.logger.Args("load_id", loadID))
}

func (l *engineLogger) LogPackageCancelled(loadID string) {
	l.logger.Warn("load package commit aborted by cancellation", l.logger.Args("load_id", loadID))
}

func (l *engineLogger) Info(msg string, args ...any) {
	l.logger.Info(msg, l.logger.Args(args...))
}

func (l *noopLogger) LogRunStart(int)                            {}
func (l *noopLogger) LogRunComplete(int)                         {}
func (l *noopLogger) LogSchemaDispatchStart(string, int)         {}
func (l *noopLogger) LogSchemaDispatchComplete(string, int, int) {}
func (l *noopLogger) LogChunkConflict(string, string, error)     {}
func (l *noopLogger) LogSingleWorkerFallback(string, error)      {}
func (l *noopLogger) LogPackageCommit(string)                    {}
func (l *noopLogger) LogPackageCancelled(string)                 {}
func (l *noopLogger) Info(msg string, args ...any)               {}
