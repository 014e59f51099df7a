// Package core provides the foundational domain types and small interfaces
// shared by every ragmesh component. It defines:
//
//   - Turns and History (the ordered, append-only conversation record)
//   - Chunks and the ChunkStore contract (filter-then-rank retrieval)
//   - ToolContext / TurnState (scoped execution surface for tool handlers)
//   - IterationLimiter (hard cap on model ⇄ tool cycles)
//   - Shared error types for transport and store failures
//
// The package keeps implementation concerns (persistence, model providers,
// the agent loop) out of scope so backends can be swapped at wiring time
// without dependency cycles.
package core
