package core

import "context"

// Chunk is an independently retrievable unit of text tied to a subject.
// Chunks are created in bulk by one acquisition and never mutated; a later
// acquisition of the same subject supersedes them by ID.
type Chunk struct {
	ID            string `json:"id"`
	Text          string `json:"text"`
	SubjectKey    string `json:"subject_key"`
	SourceTitle   string `json:"source_title"`
	SequenceIndex int    `json:"sequence_index"`
}

// Metadata returns the chunk attributes exposed to the completion service
// alongside the chunk text.
func (c Chunk) Metadata() map[string]any {
	return map[string]any{
		"subject_key":    c.SubjectKey,
		"source_title":   c.SourceTitle,
		"sequence_index": c.SequenceIndex,
	}
}

// ScoredChunk is a chunk returned by a similarity query together with its
// similarity to the query text (higher is more similar).
type ScoredChunk struct {
	Chunk
	Score float64 `json:"score"`
}

// ChunkStore is a content-addressed, subject-filtered store of text chunks
// with similarity query.
//
// Implementations must:
//   - Upsert by Chunk.ID in Add (same id replaces prior content)
//   - Return *StoreWriteError from Add when persistence is unavailable
//   - Restrict Query to exact subject key equality, ordering by descending
//     similarity with ties broken by ascending SequenceIndex
//   - Return an empty slice (not an error) when nothing matches
//   - Support concurrent Add / Query from independent sessions
type ChunkStore interface {
	Add(ctx context.Context, chunks []Chunk) error
	Query(ctx context.Context, text, subjectKey string, limit int) ([]ScoredChunk, error)
}
