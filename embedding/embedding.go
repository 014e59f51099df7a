// Package embedding turns chunk text into vectors so chunk stores can rank
// by cosine similarity. HashEmbedder is local and deterministic; OpenAIEmbedder
// calls the OpenAI embeddings endpoint.
package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"github.com/viterin/vek/vek32"
)

// Embedder maps texts to vectors. The returned slice has one vector per input
// text, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Cosine returns the cosine similarity of a and b. Vectors of different
// length or with zero norm score 0.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	na := float64(vek32.Dot(a, a))
	nb := float64(vek32.Dot(b, b))
	if na == 0 || nb == 0 {
		return 0
	}
	return float64(vek32.Dot(a, b)) / (math.Sqrt(na) * math.Sqrt(nb))
}

// HashOptions configure HashEmbedder.
type HashOptions struct {
	// Dimensions of the produced vectors.
	Dimensions int
	// Bigrams adds adjacent token pairs as extra features.
	Bigrams bool
}

// HashEmbedder is a feature-hashing bag-of-words embedder. Tokens are
// lower-cased runs of letters and digits; each token increments one signed
// bucket. Vectors are L2-normalized.
type HashEmbedder struct {
	opts HashOptions
}

// NewHashEmbedder creates a HashEmbedder (default 512 dimensions with bigrams).
func NewHashEmbedder(optFns ...func(o *HashOptions)) *HashEmbedder {
	opts := HashOptions{Dimensions: 512, Bigrams: true}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Dimensions <= 0 {
		opts.Dimensions = 512
	}
	return &HashEmbedder{opts: opts}
}

// Embed implements Embedder.
func (e *HashEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = e.vector(text)
	}
	return out, nil
}

func (e *HashEmbedder) vector(text string) []float32 {
	vec := make([]float32, e.opts.Dimensions)
	tokens := Tokenize(text)
	for i, tok := range tokens {
		e.add(vec, tok)
		if e.opts.Bigrams && i > 0 {
			e.add(vec, tokens[i-1]+" "+tok)
		}
	}
	if norm := vek32.Dot(vec, vec); norm > 0 {
		vek32.MulNumber_Inplace(vec, float32(1/math.Sqrt(float64(norm))))
	}
	return vec
}

func (e *HashEmbedder) add(vec []float32, feature string) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()
	idx := sum % uint64(len(vec))
	if sum>>63 == 1 {
		vec[idx]--
	} else {
		vec[idx]++
	}
}

// Tokenize lower-cases text and splits it into runs of letters and digits.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
