// Package ragmesh wires a retrieval-augmented conversation engine: a
// completion service that answers questions about people, an internal
// knowledge base of text chunks, and an acquisition path that fills the
// knowledge base from Wikipedia on demand.
//
// Most applications interact with this package by:
//  1. Creating a RAGMesh via New (explicit services) or NewFromConfig
//  2. Posting user messages to named sessions with Post
//  3. Calling Close on shutdown to release the chunk store
//
// Every session shares one ChunkStore; histories are per session.
package ragmesh

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go"

	"github.com/hupe1980/ragmesh/agent"
	"github.com/hupe1980/ragmesh/chunkstore"
	"github.com/hupe1980/ragmesh/config"
	"github.com/hupe1980/ragmesh/core"
	"github.com/hupe1980/ragmesh/embedding"
	"github.com/hupe1980/ragmesh/knowledge"
	"github.com/hupe1980/ragmesh/knowledge/wikipedia"
	"github.com/hupe1980/ragmesh/logging"
	"github.com/hupe1980/ragmesh/model"
	anthropicmodel "github.com/hupe1980/ragmesh/model/anthropic"
	openaimodel "github.com/hupe1980/ragmesh/model/openai"
	"github.com/hupe1980/ragmesh/retrieval"
	"github.com/hupe1980/ragmesh/session"
	"github.com/hupe1980/ragmesh/tool"
)

// Options configures the RAGMesh instance.
type Options struct {
	// Store holds acquired chunks (defaults to an in-memory store).
	Store core.ChunkStore
	// Source is the external knowledge provider (defaults to English Wikipedia).
	Source knowledge.Source

	// SystemPrompt and Greeting seed every new session.
	SystemPrompt string
	Greeting     string

	// Loop configuration, see agent.Options. MaxIterations below 1 selects
	// agent.DefaultMaxIterations.
	MaxIterations int
	DispatchMode  agent.DispatchMode
	// Temperature is sent with every completion request. nil keeps the
	// loop default (0.1).
	Temperature *float64
	CallTimeout time.Duration
	Stream      bool
	OnPartial   func(sessionID, delta string)

	// SearchFirst installs retrieval.SearchFirstPolicy.
	SearchFirst bool
	// MaxResults caps internal_search's n_results.
	MaxResults int

	// Acquisition configuration, see knowledge.Options.
	FetchTimeout time.Duration
	Chunker      knowledge.Chunker

	// Callbacks are registered on the loop in order.
	Callbacks []agent.Callback

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// RAGMesh is the high-level façade aggregating the loop, the retrieval tools
// and the sessions.
type RAGMesh struct {
	opts     Options
	loop     *agent.Loop
	registry *tool.Registry
	acquirer *knowledge.Acquirer
	sessions *session.InMemoryStore
}

// New creates a RAGMesh answering with m. Any unset service is initialized
// with a default implementation.
func New(m model.Model, optFns ...func(o *Options)) (*RAGMesh, error) {
	if m == nil {
		return nil, errors.New("ragmesh: model is required")
	}

	opts := Options{
		SystemPrompt:  retrieval.DefaultSystemPrompt,
		Greeting:      retrieval.DefaultGreeting,
		MaxIterations: agent.DefaultMaxIterations,
		DispatchMode:  agent.DispatchFirst,
		CallTimeout:   60 * time.Second,
		MaxResults:    10,
		FetchTimeout:  15 * time.Second,
		Chunker:       knowledge.Chunker{Separator: knowledge.DefaultSeparator},
		Logger:        logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.Store == nil {
		opts.Store = chunkstore.NewInMemoryStore(func(o *chunkstore.Options) { o.Logger = opts.Logger })
	}
	if opts.Source == nil {
		src, err := wikipedia.New(func(o *wikipedia.Options) { o.Logger = opts.Logger })
		if err != nil {
			return nil, err
		}
		opts.Source = src
	}

	acquirer := knowledge.NewAcquirer(opts.Source, opts.Store, func(o *knowledge.Options) {
		o.FetchTimeout = opts.FetchTimeout
		o.Chunker = opts.Chunker
		o.Logger = opts.Logger
	})

	registry := tool.NewRegistry(func(o *tool.RegistryOptions) { o.Logger = opts.Logger })
	if err := retrieval.Register(registry, opts.Store, acquirer, func(o *retrieval.Options) {
		o.MaxResults = opts.MaxResults
	}); err != nil {
		return nil, err
	}
	if err := registry.VerifyCatalog(retrieval.InternalSearchName, retrieval.ExternalInfoName); err != nil {
		return nil, err
	}

	loop := agent.NewLoop(m, registry, func(o *agent.Options) {
		o.MaxIterations = opts.MaxIterations
		o.DispatchMode = opts.DispatchMode
		if opts.Temperature != nil {
			o.Temperature = opts.Temperature
		}
		o.CallTimeout = opts.CallTimeout
		o.Stream = opts.Stream
		o.Logger = opts.Logger
	})
	loop.Callbacks().RegisterCallback(opts.Callbacks...)
	if opts.SearchFirst {
		loop.Callbacks().RegisterCallback(retrieval.SearchFirstPolicy())
	}

	r := &RAGMesh{opts: opts, loop: loop, registry: registry, acquirer: acquirer}
	r.sessions = session.NewInMemoryStore(r.newSession)

	return r, nil
}

// NewFromConfig builds the model, embedder, store and Wikipedia client
// described by cfg and wires them with New. optFns run after the
// configuration has been applied.
func NewFromConfig(cfg *config.Config, optFns ...func(o *Options)) (*RAGMesh, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := logging.NewLogger(cfg.LoggerConfig())

	m := newModel(cfg.Model)
	embedder := newEmbedder(cfg.Embedding)

	store, err := newStore(cfg.Store, embedder, logger)
	if err != nil {
		return nil, err
	}

	source, err := wikipedia.New(func(o *wikipedia.Options) {
		o.BaseURL = cfg.Wikipedia.BaseURL
		o.Language = cfg.Wikipedia.Language
		o.UserAgent = cfg.Wikipedia.UserAgent
		o.HTTPClient = &http.Client{Timeout: cfg.Wikipedia.Timeout}
		o.RequestsPerSecond = cfg.Wikipedia.RequestsPerSecond
		o.Burst = cfg.Wikipedia.Burst
		o.CacheSize = cfg.Wikipedia.CacheSize
		o.SearchLimit = cfg.Wikipedia.SearchLimit
		o.Logger = logger
	})
	if err != nil {
		_ = closeStore(store)
		return nil, err
	}

	dispatch := agent.DispatchFirst
	if cfg.Agent.DispatchAll {
		dispatch = agent.DispatchAll
	}

	r, err := New(m, func(o *Options) {
		o.Store = store
		o.Source = source
		if cfg.Agent.SystemPrompt != "" {
			o.SystemPrompt = cfg.Agent.SystemPrompt
		}
		if cfg.Agent.Greeting != "" {
			o.Greeting = cfg.Agent.Greeting
		}
		o.MaxIterations = cfg.Agent.MaxIterations
		o.DispatchMode = dispatch
		temperature := cfg.Model.Temperature
		o.Temperature = &temperature
		o.CallTimeout = cfg.Agent.CallTimeout
		o.Stream = cfg.Agent.Stream
		o.SearchFirst = cfg.Agent.SearchFirst
		o.MaxResults = cfg.Agent.MaxResults
		o.FetchTimeout = cfg.Chunking.FetchTimeout
		o.Chunker = knowledge.Chunker{Separator: cfg.Chunking.Separator, KeepEmpty: cfg.Chunking.KeepEmpty}
		o.Logger = logger
		for _, fn := range optFns {
			fn(o)
		}
	})
	if err != nil {
		_ = closeStore(store)
		return nil, err
	}
	return r, nil
}

func newModel(c config.ModelConfig) model.Model {
	if c.Provider == "anthropic" {
		return anthropicmodel.NewModel(func(o *anthropicmodel.Options) {
			o.Model = anthropic.Model(c.Name)
			o.Temperature = c.Temperature
			if c.MaxTokens > 0 {
				o.MaxTokens = c.MaxTokens
			}
			o.APIKey = c.APIKey
			o.BaseURL = c.BaseURL
		})
	}
	return openaimodel.NewModel(func(o *openaimodel.Options) {
		o.Model = c.Name
		o.Temperature = c.Temperature
		if c.MaxTokens > 0 {
			o.MaxCompletionTokens = c.MaxTokens
		}
		o.APIKey = c.APIKey
		o.BaseURL = c.BaseURL
	})
}

func newEmbedder(c config.EmbeddingConfig) embedding.Embedder {
	if c.Provider == "openai" {
		return embedding.NewOpenAIEmbedder(func(o *embedding.OpenAIOptions) {
			if c.Model != "" {
				o.Model = openai.EmbeddingModel(c.Model)
			}
			o.Dimensions = int64(c.Dimensions)
			if c.BatchSize > 0 {
				o.BatchSize = c.BatchSize
			}
			o.APIKey = c.APIKey
			o.BaseURL = c.BaseURL
		})
	}
	return embedding.NewHashEmbedder(func(o *embedding.HashOptions) {
		o.Dimensions = c.Dimensions
	})
}

func newStore(c config.StoreConfig, e embedding.Embedder, logger logging.Logger) (core.ChunkStore, error) {
	optFn := func(o *chunkstore.Options) {
		o.Embedder = e
		o.Collection = c.Collection
		o.Logger = logger
	}
	if c.Backend == "memory" {
		return chunkstore.NewInMemoryStore(optFn), nil
	}
	return chunkstore.NewSQLiteStore(c.Path, optFn)
}

func closeStore(s core.ChunkStore) error {
	if c, ok := s.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (r *RAGMesh) newSession(id string) (*session.Session, error) {
	return session.New(id, r.loop, func(o *session.Options) {
		o.SystemPrompt = r.opts.SystemPrompt
		o.Greeting = r.opts.Greeting
		o.Logger = r.opts.Logger
		if r.opts.OnPartial != nil {
			o.OnPartial = func(delta string) { r.opts.OnPartial(id, delta) }
		}
	})
}

// Session returns the session for id, creating it on first use.
func (r *RAGMesh) Session(id string) (*session.Session, error) { return r.sessions.Get(id) }

// ResetSession replaces the session for id with a freshly seeded one.
func (r *RAGMesh) ResetSession(id string) (*session.Session, error) { return r.sessions.Create(id) }

// Post sends text to the session id and returns the answer.
func (r *RAGMesh) Post(ctx context.Context, sessionID, text string) (string, error) {
	sess, err := r.sessions.Get(sessionID)
	if err != nil {
		return "", err
	}
	return sess.Post(ctx, text)
}

// Acquire runs knowledge acquisition for subject outside of any conversation,
// for example to pre-warm the knowledge base.
func (r *RAGMesh) Acquire(ctx context.Context, subject string) knowledge.AcquisitionResult {
	return r.acquirer.Acquire(ctx, subject)
}

// Store returns the shared chunk store.
func (r *RAGMesh) Store() core.ChunkStore { return r.opts.Store }

// Registry returns the tool registry the loop dispatches against. Hosts may
// register additional tools before the first Post.
func (r *RAGMesh) Registry() *tool.Registry { return r.registry }

// Loop returns the agent loop shared by all sessions.
func (r *RAGMesh) Loop() *agent.Loop { return r.loop }

// Close releases the chunk store.
func (r *RAGMesh) Close() error { return closeStore(r.opts.Store) }
