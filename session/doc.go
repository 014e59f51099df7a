// Package session holds conversations.
//
// A Session owns one History and serializes Post calls on it. Each Post
// runs the agent loop on a working copy of the history and commits it only
// when the loop produced a non-empty answer, so a failed Post leaves the
// conversation exactly as it was.
//
// InMemoryStore maps session ids to Sessions for hosts serving several
// conversations at once. Sessions are independent; only the ChunkStore
// behind the retrieval tools is shared between them.
package session
