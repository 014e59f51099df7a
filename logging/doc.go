// Package logging provides a minimal logging interface and adapters for ragmesh.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that the agent loop, tools, chunk stores and the knowledge acquirer use for
// observability. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - StructuredLogger with component/session context and domain helpers
//   - NoOpLogger for silent operation (the default everywhere)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	mesh, err := ragmesh.New(func(o *ragmesh.Options) { o.Logger = logger })
package logging
