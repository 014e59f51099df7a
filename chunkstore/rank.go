package chunkstore

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/hupe1980/ragmesh/core"
	"github.com/hupe1980/ragmesh/embedding"
	"github.com/hupe1980/ragmesh/logging"
)

// ErrInvalidLimit is returned by Query when limit < 1.
var ErrInvalidLimit = errors.New("chunkstore: limit must be at least 1")

// Options configure both store implementations.
type Options struct {
	// Embedder produces the vectors used for similarity ranking.
	Embedder embedding.Embedder
	// Collection names the logical collection inside a shared SQLite file.
	Collection string
	Logger     logging.Logger
}

// DefaultCollection is the collection name used when none is configured.
const DefaultCollection = "chunk-store"

func buildOptions(optFns []func(o *Options)) Options {
	opts := Options{Collection: DefaultCollection}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Embedder == nil {
		opts.Embedder = embedding.NewHashEmbedder()
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.Collection == "" {
		opts.Collection = DefaultCollection
	}
	return opts
}

// rank orders by score descending, then sequence index ascending, then id,
// and truncates to limit.
func rank(scored []core.ScoredChunk, limit int) []core.ScoredChunk {
	sort.SliceStable(scored, func(i, j int) bool {
		a, b := scored[i], scored[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.SequenceIndex != b.SequenceIndex {
			return a.SequenceIndex < b.SequenceIndex
		}
		return a.ID < b.ID
	})
	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored
}

func validateChunks(chunks []core.Chunk) error {
	for i, c := range chunks {
		if c.ID == "" {
			return fmt.Errorf("chunk %d: empty id", i)
		}
	}
	return nil
}

// embedChunks embeds chunk texts, mapping failures to a StoreWriteError.
func embedChunks(ctx context.Context, e embedding.Embedder, chunks []core.Chunk) ([][]float32, error) {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vecs, err := e.Embed(ctx, texts)
	if err != nil {
		return nil, &core.StoreWriteError{Op: "embed", Err: err}
	}
	if len(vecs) != len(chunks) {
		return nil, &core.StoreWriteError{Op: "embed", Err: fmt.Errorf("got %d vectors for %d chunks", len(vecs), len(chunks))}
	}
	return vecs, nil
}

// embedQuery embeds the query text.
func embedQuery(ctx context.Context, e embedding.Embedder, text string) ([]float32, error) {
	vecs, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embed query: got %d vectors", len(vecs))
	}
	return vecs[0], nil
}
