package retrieval

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/ragmesh/core"
	"github.com/hupe1980/ragmesh/knowledge"
	"github.com/hupe1980/ragmesh/tool"
)

// Tool names as advertised to the completion service.
const (
	InternalSearchName = "internal_search"
	ExternalInfoName   = "get_external_info"
)

// searchedKey is the TurnState key holding the subject keys internal_search
// was run for during the current turn.
const searchedKey = "retrieval.searched_subjects"

// SearchArgs are the arguments of internal_search.
type SearchArgs struct {
	Query      string `json:"query" description:"The user's question to search for"`
	PersonName string `json:"person_name" description:"Name of the person, required"`
	NResults   int    `json:"n_results,omitempty" description:"Number of results to return" default:"3"`
}

// ExternalInfoArgs are the arguments of get_external_info.
type ExternalInfoArgs struct {
	PersonName string `json:"person_name" description:"Name of the person to look up"`
}

// SearchHit is one chunk returned by internal_search.
type SearchHit struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata"`
}

// SearchResult is the internal_search payload.
type SearchResult struct {
	Found   bool        `json:"found"`
	Results []SearchHit `json:"results"`
	Message string      `json:"message"`
}

// Acquirer is the acquisition capability get_external_info needs.
// *knowledge.Acquirer implements it.
type Acquirer interface {
	Acquire(ctx context.Context, subject string) knowledge.AcquisitionResult
}

// Options configure the retrieval tools.
type Options struct {
	// DefaultResults is used when n_results is missing or not positive.
	DefaultResults int
	// MaxResults caps n_results.
	MaxResults int
	// SourceName is used in the get_external_info description.
	SourceName string
}

func buildOptions(optFns []func(o *Options)) Options {
	opts := Options{DefaultResults: 3, MaxResults: 10, SourceName: "Wikipedia"}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.DefaultResults <= 0 {
		opts.DefaultResults = 3
	}
	if opts.MaxResults > 0 && opts.DefaultResults > opts.MaxResults {
		opts.DefaultResults = opts.MaxResults
	}
	return opts
}

// NewInternalSearchTool creates internal_search backed by store.
//
// Store failures never surface as tool errors; they are reported as
// found=false with an "Error searching database" message so the model can
// fall back to acquisition.
func NewInternalSearchTool(store core.ChunkStore, optFns ...func(o *Options)) *tool.FunctionTool {
	opts := buildOptions(optFns)

	return tool.NewTypedFunctionTool(InternalSearchName,
		"Search for relevant context about a person in the internal knowledge base. "+
			"Returns the stored text chunks most similar to the query.",
		func(tc *core.ToolContext, args SearchArgs) (any, error) {
			limit := args.NResults
			if limit <= 0 {
				limit = opts.DefaultResults
			}
			if opts.MaxResults > 0 && limit > opts.MaxResults {
				limit = opts.MaxResults
			}

			key := knowledge.SubjectKey(args.PersonName)
			markSearched(tc.TurnState(), key)

			hits, err := store.Query(tc.Context(), args.Query, key, limit)
			if err != nil {
				tc.Logger().Error("retrieval.internal_search.failed", "subject_key", key, "error", err.Error())
				return SearchResult{
					Results: []SearchHit{},
					Message: fmt.Sprintf("Error searching database: %v", err),
				}, nil
			}

			if len(hits) == 0 {
				return SearchResult{
					Results: []SearchHit{},
					Message: fmt.Sprintf("No information found about %s in knowledge base", args.PersonName),
				}, nil
			}

			results := make([]SearchHit, len(hits))
			for i, h := range hits {
				md := h.Metadata()
				md["score"] = h.Score
				results[i] = SearchHit{Content: h.Text, Metadata: md}
			}
			return SearchResult{
				Found:   true,
				Results: results,
				Message: fmt.Sprintf("Found %d relevant chunks about %s", len(results), args.PersonName),
			}, nil
		})
}

// NewExternalInfoTool creates get_external_info backed by acquirer.
func NewExternalInfoTool(acquirer Acquirer, optFns ...func(o *Options)) *tool.FunctionTool {
	opts := buildOptions(optFns)

	return tool.NewTypedFunctionTool(ExternalInfoName,
		fmt.Sprintf("Get information about a person from %s and automatically store it "+
			"in the internal knowledge base. Run %s afterwards to read it.", opts.SourceName, InternalSearchName),
		func(tc *core.ToolContext, args ExternalInfoArgs) (any, error) {
			if args.PersonName == "" {
				return nil, tool.NewToolError(ExternalInfoName, "person_name must not be empty", tool.CodeValidation)
			}
			return acquirer.Acquire(tc.Context(), args.PersonName), nil
		})
}

// Register adds both retrieval tools to reg.
func Register(reg *tool.Registry, store core.ChunkStore, acquirer Acquirer, optFns ...func(o *Options)) error {
	if store == nil {
		return errors.New("retrieval: chunk store is required")
	}
	if acquirer == nil {
		return errors.New("retrieval: acquirer is required")
	}
	if err := reg.Register(NewInternalSearchTool(store, optFns...)); err != nil {
		return err
	}
	return reg.Register(NewExternalInfoTool(acquirer, optFns...))
}

func markSearched(ts *core.TurnState, key string) {
	prev, _ := ts.Get(searchedKey)
	seen, _ := prev.(map[string]bool)
	next := make(map[string]bool, len(seen)+1)
	for k := range seen {
		next[k] = true
	}
	next[key] = true
	ts.Set(searchedKey, next)
}

// Searched reports whether internal_search ran for subject earlier in the
// turn that owns ts.
func Searched(ts *core.TurnState, subject string) bool {
	if ts == nil {
		return false
	}
	v, _ := ts.Get(searchedKey)
	seen, _ := v.(map[string]bool)
	return seen[knowledge.SubjectKey(subject)]
}
