package knowledge

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/ragmesh/chunkstore"
	"github.com/hupe1980/ragmesh/core"
)

type mockSource struct {
	mock.Mock
}

func (m *mockSource) SearchTitles(ctx context.Context, query string) ([]string, error) {
	args := m.Called(ctx, query)
	titles, _ := args.Get(0).([]string)
	return titles, args.Error(1)
}

func (m *mockSource) FetchPage(ctx context.Context, title string) (Page, error) {
	args := m.Called(ctx, title)
	return args.Get(0).(Page), args.Error(1)
}

type failingStore struct{}

func (failingStore) Add(context.Context, []core.Chunk) error {
	return &core.StoreWriteError{Op: "upsert", Err: errors.New("disk full")}
}

func (failingStore) Query(context.Context, string, string, int) ([]core.ScoredChunk, error) {
	return nil, nil
}

const adaText = "Ada Lovelace was a mathematician.\n\nShe was born in 1815.\n\n\n\nShe died in 1852."

func TestChunkID(t *testing.T) {
	assert.Equal(t, "d41d8cd98f00b204e9800998ecf8427e_0", ChunkID("", 0))
	assert.Equal(t, ChunkID("Ada Lovelace", 0), ChunkID("ada lovelace", 0))
	assert.True(t, strings.HasSuffix(ChunkID("x", 7), "_7"))
	assert.Len(t, strings.Split(ChunkID("x", 0), "_")[0], 32)
}

func TestChunker(t *testing.T) {
	dropped := Chunker{}.Split(adaText)
	assert.Equal(t, []string{"Ada Lovelace was a mathematician.", "She was born in 1815.", "She died in 1852."}, dropped)

	kept := Chunker{KeepEmpty: true}.Split(adaText)
	assert.Len(t, kept, 4)
	assert.Equal(t, "", kept[2])

	assert.Equal(t, []string{" a ", "b"}, Chunker{}.Split(" a \n\nb"))
}

func TestAcquire_SuccessAndIdempotent(t *testing.T) {
	ctx := context.Background()
	store := chunkstore.NewInMemoryStore()
	src := NewStaticSource().Put("Ada Lovelace", adaText)
	a := NewAcquirer(src, store)

	res := a.Acquire(ctx, "Ada Lovelace")
	require.True(t, res.Success, res.Message)
	assert.True(t, res.Stored)
	assert.Equal(t, "Ada Lovelace", res.Title)
	assert.Equal(t, 3, res.ChunkCount)
	assert.Equal(t, "Successfully found and stored Wikipedia information for Ada Lovelace", res.Message)

	res2 := a.Acquire(ctx, "ADA LOVELACE")
	require.True(t, res2.Success)
	n, err := store.Count(ctx, "ada lovelace")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	hits, err := store.Query(ctx, "born", "ada lovelace", 10)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	for _, h := range hits {
		assert.Equal(t, ChunkID("ada lovelace", h.SequenceIndex), h.ID)
	}
}

func TestAcquire_NotFoundAndMissingPage(t *testing.T) {
	ctx := context.Background()
	store := chunkstore.NewInMemoryStore()

	res := NewAcquirer(NewStaticSource(), store).Acquire(ctx, "Nobody")
	assert.False(t, res.Success)
	assert.False(t, res.Stored)
	assert.Equal(t, "No Wikipedia page found for: Nobody", res.Message)

	src := &mockSource{}
	src.On("SearchTitles", mock.Anything, "Ghost").Return([]string{"Ghost (film)"}, nil)
	src.On("FetchPage", mock.Anything, "Ghost (film)").Return(Page{Title: "Ghost (film)"}, nil)
	res = NewAcquirer(src, store).Acquire(ctx, "Ghost")
	assert.False(t, res.Success)
	assert.Equal(t, "Wikipedia page does not exist for: Ghost", res.Message)
	src.AssertExpectations(t)

	n, _ := store.Count(ctx, "ghost")
	assert.Equal(t, 0, n)
}

func TestAcquire_TransportErrorIsReported(t *testing.T) {
	src := &mockSource{}
	src.On("SearchTitles", mock.Anything, "Ada").Return(nil, errors.New("connection reset"))

	res := NewAcquirer(src, chunkstore.NewInMemoryStore()).Acquire(context.Background(), "Ada")
	assert.False(t, res.Success)
	assert.Equal(t, "Error accessing Wikipedia: connection reset", res.Message)
	src.AssertNotCalled(t, "FetchPage", mock.Anything, mock.Anything)
}

func TestAcquire_TimeoutIsReported(t *testing.T) {
	src := &mockSource{}
	src.On("SearchTitles", mock.Anything, "Ada").Return([]string{"Ada"}, nil)
	src.On("FetchPage", mock.Anything, "Ada").Run(func(args mock.Arguments) {
		<-args.Get(0).(context.Context).Done()
	}).Return(Page{}, context.DeadlineExceeded)

	a := NewAcquirer(src, chunkstore.NewInMemoryStore(), func(o *Options) { o.FetchTimeout = 20 * time.Millisecond })
	res := a.Acquire(context.Background(), "Ada")
	assert.False(t, res.Success)
	assert.True(t, strings.HasPrefix(res.Message, "Error accessing Wikipedia:"), res.Message)
}

func TestAcquire_StoreFailureAndEmptyPage(t *testing.T) {
	src := NewStaticSource().Put("Ada", "text").Put("Blank", "\n\n  \n\n")

	res := NewAcquirer(src, failingStore{}).Acquire(context.Background(), "Ada")
	assert.False(t, res.Success)
	assert.False(t, res.Stored)
	assert.Contains(t, res.Message, "(retryable)")

	res = NewAcquirer(src, failingStore{}).Acquire(context.Background(), "Blank")
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "no usable text")
}

func TestBuildChunks_KeepEmptyStaysContiguous(t *testing.T) {
	a := NewAcquirer(NewStaticSource(), chunkstore.NewInMemoryStore(), func(o *Options) {
		o.Chunker.KeepEmpty = true
	})
	chunks := a.BuildChunks("Ada", "Ada", adaText)
	require.Len(t, chunks, 4)
	for i, c := range chunks {
		assert.Equal(t, i, c.SequenceIndex)
		assert.Equal(t, "ada", c.SubjectKey)
	}
}
