package ragmesh

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/ragmesh/chunkstore"
	"github.com/hupe1980/ragmesh/config"
	"github.com/hupe1980/ragmesh/core"
	"github.com/hupe1980/ragmesh/knowledge"
	"github.com/hupe1980/ragmesh/model"
	"github.com/hupe1980/ragmesh/retrieval"
)

func newTestMesh(t *testing.T, m model.Model, optFns ...func(o *Options)) *RAGMesh {
	t.Helper()
	source := knowledge.NewStaticSource().Put("Alan Turing",
		"Alan Turing was an English mathematician.\n\nHe formalized computation with the Turing machine.")
	r, err := New(m, append([]func(o *Options){func(o *Options) { o.Source = source }}, optFns...)...)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, r.Close()) })
	return r
}

func TestNew_RequiresModel(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
}

func TestNew_RegistersRetrievalTools(t *testing.T) {
	r := newTestMesh(t, model.NewScriptedModel())
	assert.Equal(t, []string{retrieval.InternalSearchName, retrieval.ExternalInfoName}, r.Registry().Names())
}

func TestPost_EndToEnd(t *testing.T) {
	search := `{"query":"Who was Alan Turing?","person_name":"Alan Turing"}`
	m := model.NewScriptedModel(
		model.Call(retrieval.InternalSearchName, search),
		model.Call(retrieval.ExternalInfoName, `{"person_name":"Alan Turing"}`),
		model.Call(retrieval.InternalSearchName, search),
		model.Text("Alan Turing was an English mathematician (Wikipedia)."),
		model.Call(retrieval.InternalSearchName, `{"query":"Turing machine","person_name":"alan turing"}`),
		model.Text("He formalized computation."),
	)
	r := newTestMesh(t, m, func(o *Options) { o.SearchFirst = true })

	answer, err := r.Post(context.Background(), "s1", "Who was Alan Turing?")
	require.NoError(t, err)
	assert.Contains(t, answer, "mathematician")

	// knowledge acquired in the first turn is reused in the second
	answer, err = r.Post(context.Background(), "s1", "What did he formalize?")
	require.NoError(t, err)
	assert.Equal(t, "He formalized computation.", answer)

	sess, err := r.Session("s1")
	require.NoError(t, err)
	turns := sess.History()
	assert.Equal(t, core.RoleSystem, turns[0].Role)
	assert.Equal(t, retrieval.DefaultGreeting, turns[1].Text())
	assert.Len(t, turns, 2+8+4)
	assert.Contains(t, turns[len(turns)-2].Text(), `"found":true`)

	n, err := r.Store().(*chunkstore.InMemoryStore).Count(context.Background(), "alan turing")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestPost_SessionsAreIndependent(t *testing.T) {
	m := model.NewScriptedModel(model.Text("one"), model.Text("two"))
	r := newTestMesh(t, m)

	_, err := r.Post(context.Background(), "a", "hi")
	require.NoError(t, err)
	_, err = r.Post(context.Background(), "b", "hi")
	require.NoError(t, err)

	a, _ := r.Session("a")
	b, _ := r.Session("b")
	assert.Equal(t, 4, a.Len())
	assert.Equal(t, 4, b.Len())

	fresh, err := r.ResetSession("a")
	require.NoError(t, err)
	assert.Equal(t, 2, fresh.Len())
}

func TestPost_StreamsPerSession(t *testing.T) {
	m := model.NewScriptedModel(model.Text("partial answers arrive"))
	var got strings.Builder
	var gotID string
	r := newTestMesh(t, m, func(o *Options) {
		o.Stream = true
		o.OnPartial = func(id, delta string) {
			gotID = id
			got.WriteString(delta)
		}
	})

	answer, err := r.Post(context.Background(), "stream", "hi")
	require.NoError(t, err)
	assert.Equal(t, answer, got.String())
	assert.Equal(t, "stream", gotID)
}

func TestAcquire_PreWarm(t *testing.T) {
	r := newTestMesh(t, model.NewScriptedModel())
	res := r.Acquire(context.Background(), "Alan Turing")
	assert.True(t, res.Success)
	assert.Equal(t, 2, res.ChunkCount)
}

func TestNewFromConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *config.Config)
	}{
		{"openai with sqlite", func(c *config.Config) {
			c.Store.Path = filepath.Join(t.TempDir(), "data")
		}},
		{"anthropic in memory", func(c *config.Config) {
			c.Model.Provider = "anthropic"
			c.Model.Name = "claude-sonnet-4-5"
			c.Store.Backend = "memory"
			c.Agent.DispatchAll = true
			c.Agent.SearchFirst = true
		}},
		{"openai embeddings", func(c *config.Config) {
			c.Store.Backend = "memory"
			c.Embedding.Provider = "openai"
			c.Embedding.APIKey = "sk-test"
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Model.APIKey = "sk-test"
			tt.mutate(cfg)

			r, err := NewFromConfig(cfg)
			require.NoError(t, err)
			assert.Equal(t, 2, r.Registry().Len())
			assert.NoError(t, r.Close())
		})
	}
}

func TestNew_TemperatureOption(t *testing.T) {
	m := model.NewScriptedModel(model.Text("a"), model.Text("b"))
	temperature := 0.7
	r := newTestMesh(t, m, func(o *Options) { o.Temperature = &temperature })

	_, err := r.Post(context.Background(), "s1", "hi")
	require.NoError(t, err)

	reqs := m.Requests()
	require.Len(t, reqs, 1)
	require.NotNil(t, reqs[0].Temperature)
	assert.Equal(t, 0.7, *reqs[0].Temperature)

	// without the option the loop default applies
	m2 := model.NewScriptedModel(model.Text("a"))
	r2 := newTestMesh(t, m2)
	_, err = r2.Post(context.Background(), "s1", "hi")
	require.NoError(t, err)
	require.NotNil(t, m2.Requests()[0].Temperature)
	assert.Equal(t, 0.1, *m2.Requests()[0].Temperature)
}

func TestNewFromConfig_SendsConfiguredTemperature(t *testing.T) {
	temperatures := make(chan float64, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Temperature float64 `json:"temperature"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
			select {
			case temperatures <- body.Temperature:
			default:
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cmpl-1","object":"chat.completion","created":0,"model":"gpt-4o-mini",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"Hello."}}],
			"usage":{"prompt_tokens":3,"completion_tokens":1,"total_tokens":4}}`))
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.Model.APIKey = "sk-test"
	cfg.Model.BaseURL = srv.URL + "/v1/"
	cfg.Model.Temperature = 0.9
	cfg.Store.Backend = "memory"

	r, err := NewFromConfig(cfg)
	require.NoError(t, err)
	defer r.Close()

	answer, err := r.Post(context.Background(), "s1", "hi")
	require.NoError(t, err)
	assert.Equal(t, "Hello.", answer)
	require.Len(t, temperatures, 1)
	assert.Equal(t, 0.9, <-temperatures)
}

func TestNewFromConfig_Invalid(t *testing.T) {
	cfg := config.Default()
	cfg.Store.Backend = "chroma"
	_, err := NewFromConfig(cfg)
	assert.ErrorContains(t, err, "store.backend")
}
