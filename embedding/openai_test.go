package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/ragmesh/core"
)

func TestOpenAIEmbedder_BatchesAndOrders(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "/embeddings", r.URL.Path)
		var body struct {
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		data := make([]map[string]any, len(body.Input))
		for i := range body.Input {
			// reversed order exercises index-based placement
			j := len(body.Input) - 1 - i
			data[i] = map[string]any{"object": "embedding", "index": j, "embedding": []float64{float64(len(body.Input[j])), 1}}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  "text-embedding-3-small",
			"usage":  map[string]any{"prompt_tokens": 1, "total_tokens": 1},
		})
	}))
	defer srv.Close()

	e := NewOpenAIEmbedder(func(o *OpenAIOptions) {
		o.BaseURL = srv.URL + "/"
		o.APIKey = "test"
		o.BatchSize = 2
	})
	vecs, err := e.Embed(context.Background(), []string{"a", "bb", "ccc"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, 2, calls)
	assert.Equal(t, []float32{1, 1}, vecs[0])
	assert.Equal(t, []float32{2, 1}, vecs[1])
	assert.Equal(t, []float32{3, 1}, vecs[2])
}

func TestOpenAIEmbedder_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":{"message":"bad"}}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	e := NewOpenAIEmbedder(func(o *OpenAIOptions) {
		o.BaseURL = srv.URL + "/"
		o.APIKey = "test"
	})
	_, err := e.Embed(context.Background(), []string{"a"})
	var te *core.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "embeddings", te.Op)
}
