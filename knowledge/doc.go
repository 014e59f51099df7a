// Package knowledge acquires text about a subject from an external Source,
// splits it into chunks and writes them to a core.ChunkStore.
//
// An acquisition never returns an error to its caller. Every outcome,
// including transport failures and timeouts, is reported through
// AcquisitionResult so the completion service can read it as a tool result.
//
// Chunk ids are content addressed: md5(lower(subject)) + "_" + index. Acquiring
// the same subject twice overwrites the earlier chunks instead of duplicating
// them.
package knowledge
