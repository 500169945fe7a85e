// Package catalog talks to remote STAC item-search endpoints.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/robert-malhotra/stac-tile-selector/internal/observability"
	"github.com/robert-malhotra/stac-tile-selector/internal/stac"
)

// Paging defaults.
const (
	// DefaultLimit is the page size requested when a query does not set one.
	DefaultLimit = 100
	// DefaultMaxPages bounds the pages followed for one query.
	DefaultMaxPages = 1000
)

// Query describes one tile search over one date range.
type Query struct {
	// DateRange is a STAC datetime interval "start/end".
	DateRange     string
	Collection    string
	TileID        string
	MaxCloudCover float64
	// Limit is the page size.
	Limit int
	// MaxItems stops paging once this many items were collected (0 = all).
	MaxItems int
}

// Searcher runs a catalog query and returns every matching item.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]*stac.Item, error)
}

// Client is a STAC item-search client. It is safe for concurrent use; all
// requests share one http.Client.
type Client struct {
	baseURL    string
	profile    Profile
	filterMode FilterMode
	maxPages   int
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new catalog client for the Planetary Computer profile.
// An empty baseURL uses the profile's URL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	c := &Client{
		profile:    ProfileFor(PlanetaryComputer),
		filterMode: FilterQuery,
		maxPages:   DefaultMaxPages,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 100,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger: slog.Default(),
	}
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

// WithLogger sets a custom logger for the client
func (c *Client) WithLogger(logger *slog.Logger) *Client {
	c.logger = logger
	return c
}

// WithProfile selects the catalog profile. The profile URL is used unless a
// base URL was given to NewClient.
func (c *Client) WithProfile(p Profile) *Client {
	c.profile = p
	return c
}

// WithFilterMode selects the Query extension or CQL2 filters.
func (c *Client) WithFilterMode(m FilterMode) *Client {
	c.filterMode = m
	return c
}

// WithMaxPages bounds the number of pages followed for one query. Values below
// one keep the default.
func (c *Client) WithMaxPages(n int) *Client {
	if n > 0 {
		c.maxPages = n
	}
	return c
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// Profile returns the catalog profile in use.
func (c *Client) Profile() Profile {
	return c.profile
}

func (c *Client) searchURL() string {
	base := c.baseURL
	if base == "" {
		base = strings.TrimRight(c.profile.URL, "/")
	}
	return base + "/search"
}

// Request builds the item-search body for q: results sorted by ascending cloud
// cover, restricted to the tile and to cloud cover strictly below the bound.
func (c *Client) Request(q Query) *stac.SearchRequest {
	collection := q.Collection
	if collection == "" {
		collection = c.profile.Collection
	}
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	req := &stac.SearchRequest{
		Collections: []string{collection},
		DateTime:    q.DateRange,
		Limit:       limit,
		Sortby: []stac.SortbyItem{{
			Field:     stac.PropertyField(c.profile.CloudCoverProperty),
			Direction: stac.SortAsc,
		}},
	}
	if c.filterMode == FilterCQL2 {
		req.Filter = cql2Filter(c.profile, q)
		req.FilterLang = "cql2-json"
	} else {
		req.Query = queryExtension(c.profile, q)
	}
	return req
}

// Search runs q and follows next links until the result set is exhausted or
// MaxItems items were collected. A next link repeating an earlier request, or
// more pages than the client allows, fails with ErrPaging.
func (c *Client) Search(ctx context.Context, q Query) ([]*stac.Item, error) {
	req := c.Request(q)
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}
	body, err := req.Body()
	if err != nil {
		return nil, err
	}

	c.logger.DebugContext(ctx, "executing catalog search",
		slog.String("catalog", c.profile.Name),
		slog.String("tile_id", q.TileID),
		slog.String("datetime", q.DateRange),
	)

	var items []*stac.Item
	method, href := http.MethodPost, c.searchURL()
	sent := make(map[string]bool)
	for page := 1; ; page++ {
		if page > c.maxPages {
			return nil, fmt.Errorf("%w: more than %d pages", ErrPaging, c.maxPages)
		}
		key, err := requestKey(method, href, body)
		if err != nil {
			return nil, err
		}
		if sent[key] {
			return nil, fmt.Errorf("%w: next link repeats %s %s", ErrPaging, method, href)
		}
		sent[key] = true

		ic, err := c.fetchPage(ctx, method, href, body)
		if err != nil {
			return nil, err
		}
		items = append(items, ic.Features...)

		if q.MaxItems > 0 && len(items) >= q.MaxItems {
			items = items[:q.MaxItems]
			break
		}
		next := ic.NextLink()
		if next == nil || len(ic.Features) == 0 {
			break
		}

		method = strings.ToUpper(next.Method)
		if method == "" {
			method = http.MethodGet
		}
		href = next.Href
		body = stac.NextBody(body, next)

		c.logger.DebugContext(ctx, "following next link",
			slog.String("tile_id", q.TileID),
			slog.Int("page", page+1),
			slog.String("method", method),
		)
	}

	c.logger.DebugContext(ctx, "catalog search completed",
		slog.String("tile_id", q.TileID),
		slog.Int("item_count", len(items)),
	)

	return items, nil
}

// requestKey identifies a page request. Map keys are marshalled in sorted order
// so equal bodies give equal keys.
func requestKey(method, href string, body map[string]any) (string, error) {
	if method == http.MethodGet {
		body = nil
	}
	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to encode search body: %w", err)
	}
	return method + " " + href + " " + string(data), nil
}

func (c *Client) fetchPage(ctx context.Context, method, href string, body map[string]any) (*stac.ItemCollection, error) {
	var reader io.Reader
	if method != http.MethodGet && body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode search body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, href, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	// Set headers
	req.Header.Set("Accept", "application/geo+json, application/json")
	req.Header.Set("User-Agent", "stac-tile-selector/1.0")
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		observability.ObserveCatalogRequest(c.profile.Name, 0, time.Since(start).Seconds())
		c.logger.ErrorContext(ctx, "catalog request failed",
			slog.String("error", err.Error()),
			slog.String("url", href),
		)
		return nil, fmt.Errorf("catalog request failed: %w", err)
	}
	defer resp.Body.Close()
	observability.ObserveCatalogRequest(c.profile.Name, resp.StatusCode, time.Since(start).Seconds())

	// Check for non-200 status codes
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.ErrorContext(ctx, "catalog returned non-200 status",
			slog.Int("status_code", resp.StatusCode),
			slog.String("response_body", string(data)),
		)
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(data)}
	}

	// Parse the response
	var ic stac.ItemCollection
	if err := json.NewDecoder(resp.Body).Decode(&ic); err != nil {
		c.logger.ErrorContext(ctx, "failed to decode catalog response",
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	return &ic, nil
}
