// Package wikipedia implements knowledge.Source against the MediaWiki action
// API: title search via list=search and plain-text page extracts via
// prop=extracts. Requests are rate limited and title searches are cached.
package wikipedia

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"github.com/hupe1980/ragmesh/core"
	"github.com/hupe1980/ragmesh/knowledge"
	"github.com/hupe1980/ragmesh/logging"
)

// Options configure a Client.
type Options struct {
	// BaseURL of the api.php endpoint. Derived from Language when empty.
	BaseURL string
	// Language selects the <lang>.wikipedia.org host. Default "en".
	Language  string
	UserAgent string
	// HTTPClient is used for all requests. Its Timeout bounds each request.
	HTTPClient *http.Client
	// RequestsPerSecond and Burst shape outgoing traffic.
	RequestsPerSecond float64
	Burst             int
	// CacheSize is the number of title searches kept. 0 disables caching.
	CacheSize int
	// SearchLimit caps the number of titles returned by a search.
	SearchLimit int
	Logger      logging.Logger
}

// Client is a MediaWiki API client.
type Client struct {
	opts    Options
	limiter *rate.Limiter
	titles  *lru.Cache[string, []string]
}

var _ knowledge.Source = (*Client)(nil)

// New creates a Client.
func New(optFns ...func(o *Options)) (*Client, error) {
	opts := Options{
		Language:          "en",
		UserAgent:         "ragmesh/1.0 (https://github.com/hupe1980/ragmesh)",
		RequestsPerSecond: 5,
		Burst:             2,
		CacheSize:         256,
		SearchLimit:       5,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.BaseURL == "" {
		opts.BaseURL = fmt.Sprintf("https://%s.wikipedia.org/w/api.php", opts.Language)
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.Burst < 1 {
		opts.Burst = 1
	}

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	c := &Client{opts: opts, limiter: rate.NewLimiter(limit, opts.Burst)}
	if opts.CacheSize > 0 {
		cache, err := lru.New[string, []string](opts.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("create title cache: %w", err)
		}
		c.titles = cache
	}
	return c, nil
}

type searchResponse struct {
	Query struct {
		Search []struct {
			Title string `json:"title"`
		} `json:"search"`
	} `json:"query"`
}

// SearchTitles implements knowledge.Source.
func (c *Client) SearchTitles(ctx context.Context, query string) ([]string, error) {
	key := strings.ToLower(strings.TrimSpace(query))
	if c.titles != nil {
		if titles, ok := c.titles.Get(key); ok {
			c.opts.Logger.Debug("wikipedia.search.cache_hit", "query", query)
			return append([]string(nil), titles...), nil
		}
	}

	params := url.Values{
		"action":   {"query"},
		"list":     {"search"},
		"srsearch": {query},
		"srlimit":  {strconv.Itoa(c.opts.SearchLimit)},
		"format":   {"json"},
	}
	var resp searchResponse
	if err := c.get(ctx, "search", params, &resp); err != nil {
		return nil, err
	}
	titles := make([]string, 0, len(resp.Query.Search))
	for _, s := range resp.Query.Search {
		titles = append(titles, s.Title)
	}
	if c.titles != nil {
		c.titles.Add(key, titles)
	}
	c.opts.Logger.Debug("wikipedia.search", "query", query, "hits", len(titles))
	return append([]string(nil), titles...), nil
}

type extractResponse struct {
	Query struct {
		Pages []struct {
			Title   string `json:"title"`
			Missing bool   `json:"missing"`
			Invalid bool   `json:"invalid"`
			Extract string `json:"extract"`
		} `json:"pages"`
	} `json:"query"`
}

// FetchPage implements knowledge.Source. Redirects are followed, so the
// returned title may differ from the requested one.
func (c *Client) FetchPage(ctx context.Context, title string) (knowledge.Page, error) {
	params := url.Values{
		"action":        {"query"},
		"prop":          {"extracts"},
		"explaintext":   {"1"},
		"redirects":     {"1"},
		"titles":        {title},
		"format":        {"json"},
		"formatversion": {"2"},
	}
	var resp extractResponse
	if err := c.get(ctx, "fetch", params, &resp); err != nil {
		return knowledge.Page{}, err
	}
	if len(resp.Query.Pages) == 0 {
		return knowledge.Page{Title: title}, nil
	}
	p := resp.Query.Pages[0]
	if p.Missing || p.Invalid {
		return knowledge.Page{Title: p.Title}, nil
	}
	return knowledge.Page{Exists: true, Title: p.Title, Text: p.Extract}, nil
}

func (c *Client) get(ctx context.Context, op string, params url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return &core.TransportError{Service: "wikipedia", Op: op, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.opts.BaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("build wikipedia request: %w", err)
	}
	req.Header.Set("User-Agent", c.opts.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		return &core.TransportError{Service: "wikipedia", Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &core.TransportError{
			Service: "wikipedia",
			Op:      op,
			Err:     fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
		}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &core.TransportError{Service: "wikipedia", Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
