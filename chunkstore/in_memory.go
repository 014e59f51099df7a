package chunkstore

import (
	"context"
	"sync"
	"time"

	"github.com/hupe1980/ragmesh/core"
	"github.com/hupe1980/ragmesh/embedding"
	"github.com/hupe1980/ragmesh/logging"
)

type storedChunk struct {
	chunk  core.Chunk
	vector []float32
}

// InMemoryStore is a process-local ChunkStore. Chunks are grouped by subject
// key so a query only scans one subject.
//
// Concurrency: protected by RWMutex. Embedding runs outside the lock.
type InMemoryStore struct {
	mu        sync.RWMutex
	bySubject map[string]map[string]storedChunk // subject_key -> id -> chunk
	subjectOf map[string]string                 // id -> subject_key
	opts      Options
}

// NewInMemoryStore creates an empty in-memory chunk store.
func NewInMemoryStore(optFns ...func(o *Options)) *InMemoryStore {
	return &InMemoryStore{
		bySubject: make(map[string]map[string]storedChunk),
		subjectOf: make(map[string]string),
		opts:      buildOptions(optFns),
	}
}

// Add upserts chunks by id.
func (s *InMemoryStore) Add(ctx context.Context, chunks []core.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if err := validateChunks(chunks); err != nil {
		return &core.StoreWriteError{Op: "add", Err: err}
	}
	vecs, err := embedChunks(ctx, s.opts.Embedder, chunks)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range chunks {
		// a re-ingest may move an id to another subject
		if prev, ok := s.subjectOf[c.ID]; ok && prev != c.SubjectKey {
			delete(s.bySubject[prev], c.ID)
		}
		bucket, ok := s.bySubject[c.SubjectKey]
		if !ok {
			bucket = make(map[string]storedChunk)
			s.bySubject[c.SubjectKey] = bucket
		}
		bucket[c.ID] = storedChunk{chunk: c, vector: vecs[i]}
		s.subjectOf[c.ID] = c.SubjectKey
	}
	return nil
}

// Query returns up to limit chunks of subjectKey ranked by similarity to text.
func (s *InMemoryStore) Query(ctx context.Context, text, subjectKey string, limit int) ([]core.ScoredChunk, error) {
	if limit < 1 {
		return nil, ErrInvalidLimit
	}
	start := time.Now()

	s.mu.RLock()
	n := len(s.bySubject[subjectKey])
	s.mu.RUnlock()
	if n == 0 {
		logging.LogStoreQuery(s.opts.Logger, subjectKey, limit, 0, time.Since(start))
		return []core.ScoredChunk{}, nil
	}

	qv, err := embedQuery(ctx, s.opts.Embedder, text)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	scored := make([]core.ScoredChunk, 0, len(s.bySubject[subjectKey]))
	for _, sc := range s.bySubject[subjectKey] {
		scored = append(scored, core.ScoredChunk{Chunk: sc.chunk, Score: embedding.Cosine(qv, sc.vector)})
	}
	s.mu.RUnlock()

	out := rank(scored, limit)
	logging.LogStoreQuery(s.opts.Logger, subjectKey, limit, len(out), time.Since(start))
	return out, nil
}

// Count returns the number of chunks stored for subjectKey.
func (s *InMemoryStore) Count(_ context.Context, subjectKey string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.bySubject[subjectKey]), nil
}

// Close is a no-op.
func (s *InMemoryStore) Close() error { return nil }
