package knowledge

import (
	"context"
	"strings"
	"sync"
)

// Page is the result of fetching one title from a Source.
type Page struct {
	Exists bool
	Title  string
	Text   string
}

// Source is an external knowledge provider with title search and page fetch.
type Source interface {
	// SearchTitles returns candidate titles ordered by relevance.
	SearchTitles(ctx context.Context, query string) ([]string, error)
	// FetchPage returns the plain text of a page. A missing page is reported
	// with Exists=false, not an error.
	FetchPage(ctx context.Context, title string) (Page, error)
}

// StaticSource is an in-memory Source keyed by title. Title search matches
// case-insensitively on substrings, in insertion order.
type StaticSource struct {
	mu     sync.RWMutex
	titles []string
	pages  map[string]string
}

// NewStaticSource creates an empty StaticSource.
func NewStaticSource() *StaticSource {
	return &StaticSource{pages: make(map[string]string)}
}

// Put adds or replaces a page.
func (s *StaticSource) Put(title, text string) *StaticSource {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pages[title]; !ok {
		s.titles = append(s.titles, title)
	}
	s.pages[title] = text
	return s
}

// SearchTitles implements Source.
func (s *StaticSource) SearchTitles(ctx context.Context, query string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q := strings.ToLower(strings.TrimSpace(query))
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for _, t := range s.titles {
		if q != "" && strings.Contains(strings.ToLower(t), q) {
			out = append(out, t)
		}
	}
	return out, nil
}

// FetchPage implements Source.
func (s *StaticSource) FetchPage(ctx context.Context, title string) (Page, error) {
	if err := ctx.Err(); err != nil {
		return Page{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	text, ok := s.pages[title]
	if !ok {
		return Page{Title: title}, nil
	}
	return Page{Exists: true, Title: title, Text: text}, nil
}
