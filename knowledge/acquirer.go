package knowledge

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hupe1980/ragmesh/core"
	"github.com/hupe1980/ragmesh/logging"
)

// SubjectKey normalizes a subject for storage and filtering.
func SubjectKey(subject string) string {
	return strings.ToLower(subject)
}

// ChunkID returns the content-addressed id of chunk index of subject.
func ChunkID(subject string, index int) string {
	sum := md5.Sum([]byte(SubjectKey(subject)))
	return hex.EncodeToString(sum[:]) + "_" + strconv.Itoa(index)
}

// AcquisitionResult reports the outcome of Acquirer.Acquire.
type AcquisitionResult struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	Stored     bool   `json:"stored"`
	Title      string `json:"title,omitempty"`
	ChunkCount int    `json:"chunk_count"`
}

// Options configure an Acquirer.
type Options struct {
	// FetchTimeout bounds each Source call. Zero disables the bound.
	FetchTimeout time.Duration
	Chunker      Chunker
	// SourceName is used in result messages.
	SourceName string
	Logger     logging.Logger
}

// Acquirer fetches text about a subject and indexes it in a ChunkStore.
type Acquirer struct {
	source Source
	store  core.ChunkStore
	opts   Options
}

// NewAcquirer creates an Acquirer. Defaults: 15s FetchTimeout, paragraph
// chunking dropping empty chunks, SourceName "Wikipedia".
func NewAcquirer(source Source, store core.ChunkStore, optFns ...func(o *Options)) *Acquirer {
	opts := Options{
		FetchTimeout: 15 * time.Second,
		Chunker:      Chunker{Separator: DefaultSeparator},
		SourceName:   "Wikipedia",
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Acquirer{source: source, store: store, opts: opts}
}

// Acquire runs search, fetch, chunk and store for subject. It never returns
// an error; failures are described in the result.
func (a *Acquirer) Acquire(ctx context.Context, subject string) AcquisitionResult {
	start := time.Now()
	res := a.acquire(ctx, subject)
	logging.LogAcquisition(a.opts.Logger, subject, res.Title, res.ChunkCount, time.Since(start), res.Success)
	return res
}

func (a *Acquirer) acquire(ctx context.Context, subject string) AcquisitionResult {
	name := a.opts.SourceName

	titles, err := withTimeout(ctx, a.opts.FetchTimeout, func(ctx context.Context) ([]string, error) {
		return a.source.SearchTitles(ctx, subject)
	})
	if err != nil {
		return a.transportFailure(subject, err)
	}
	if len(titles) == 0 {
		return AcquisitionResult{Message: fmt.Sprintf("No %s page found for: %s", name, subject)}
	}
	title := titles[0]

	page, err := withTimeout(ctx, a.opts.FetchTimeout, func(ctx context.Context) (Page, error) {
		return a.source.FetchPage(ctx, title)
	})
	if err != nil {
		return a.transportFailure(subject, err)
	}
	if !page.Exists {
		return AcquisitionResult{Title: title, Message: fmt.Sprintf("%s page does not exist for: %s", name, subject)}
	}
	if page.Title != "" {
		title = page.Title
	}

	chunks := a.BuildChunks(subject, title, page.Text)
	if len(chunks) == 0 {
		return AcquisitionResult{Title: title, Message: fmt.Sprintf("%s page for %s contains no usable text", name, subject)}
	}

	if err := a.store.Add(ctx, chunks); err != nil {
		a.opts.Logger.Error("knowledge.acquire.store_failed", "subject", subject, "error", err.Error())
		msg := fmt.Sprintf("Failed to store %s information for %s: %v", name, subject, err)
		var swe *core.StoreWriteError
		if errors.As(err, &swe) && swe.Retryable() {
			msg += " (retryable)"
		}
		return AcquisitionResult{Title: title, Message: msg}
	}
	a.opts.Logger.Info("knowledge.acquire.stored", "subject", subject, "title", title, "chunk_count", len(chunks))

	return AcquisitionResult{
		Success:    true,
		Stored:     true,
		Title:      title,
		ChunkCount: len(chunks),
		Message:    fmt.Sprintf("Successfully found and stored %s information for %s", name, subject),
	}
}

// BuildChunks splits text and assigns ids, subject key and sequence indexes.
// Sequence indexes are contiguous from 0 over the retained pieces.
func (a *Acquirer) BuildChunks(subject, title, text string) []core.Chunk {
	pieces := a.opts.Chunker.Split(text)
	key := SubjectKey(subject)
	chunks := make([]core.Chunk, len(pieces))
	for i, p := range pieces {
		chunks[i] = core.Chunk{
			ID:            ChunkID(subject, i),
			Text:          p,
			SubjectKey:    key,
			SourceTitle:   title,
			SequenceIndex: i,
		}
	}
	return chunks
}

func (a *Acquirer) transportFailure(subject string, err error) AcquisitionResult {
	a.opts.Logger.Warn("knowledge.acquire.transport_failed", "subject", subject, "error", err.Error())
	return AcquisitionResult{Message: fmt.Sprintf("Error accessing %s: %v", a.opts.SourceName, err)}
}

// withTimeout runs fn under a derived deadline when d > 0.
func withTimeout[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if d <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	return fn(ctx)
}
