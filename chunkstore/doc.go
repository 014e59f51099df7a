// Package chunkstore contains concrete core.ChunkStore implementations. The
// store contract and Chunk types live in the core package; pick a backend at
// wiring time.
//
// Both stores rank by cosine similarity of embeddings produced by an
// embedding.Embedder, restricted to one subject key, with ties broken by
// ascending sequence index. InMemoryStore is process-local; SQLiteStore
// persists chunks and their vectors to <dir>/chunks.db.
package chunkstore
