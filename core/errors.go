package core

import "fmt"

// TransportError reports that a remote capability (completion service,
// title search, page fetch, embedding service) could not be reached or
// timed out. Callers decide whether to retry.
type TransportError struct {
	Service string // e.g. "openai", "wikipedia"
	Op      string // e.g. "chat.completions", "search"
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error calling %s %s: %v", e.Service, e.Op, e.Err)
}

// Unwrap returns the underlying cause.
func (e *TransportError) Unwrap() error { return e.Err }

// StoreWriteError reports that a ChunkStore could not durably apply a
// write. It is retryable: Add is an idempotent upsert.
type StoreWriteError struct {
	Op  string
	Err error
}

func (e *StoreWriteError) Error() string {
	return fmt.Sprintf("chunk store write failed (%s): %v", e.Op, e.Err)
}

// Unwrap returns the underlying cause.
func (e *StoreWriteError) Unwrap() error { return e.Err }

// Retryable reports that repeating the write is safe.
func (e *StoreWriteError) Retryable() bool { return true }
