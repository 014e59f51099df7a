// Package retrieval exposes the knowledge base to the completion service as
// two tools:
//
//   - internal_search queries the ChunkStore for a subject
//   - get_external_info acquires a subject from the external source and
//     indexes it so a follow-up internal_search can find it
//
// The order the model should use them in is stated in DefaultSystemPrompt.
// SearchFirstPolicy enforces it for hosts that want a hard guarantee.
package retrieval
