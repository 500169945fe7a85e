package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/robert-malhotra/stac-tile-selector/internal/stac"
)

func itemJSON(id string, cloudCover, noData float64) string {
	return fmt.Sprintf(`{
		"type": "Feature",
		"stac_version": "1.0.0",
		"id": %q,
		"collection": "sentinel-2-l2a",
		"geometry": {"type": "Polygon", "coordinates": [[[0, 0], [1, 0], [1, 1], [0, 1], [0, 0]]]},
		"bbox": [0, 0, 1, 1],
		"properties": {"datetime": "2023-06-15T18:49:21Z", "eo:cloud_cover": %g, "s2:nodata_pixel_percentage": %g},
		"links": [],
		"assets": {}
	}`, id, cloudCover, noData)
}

func pageJSON(items []string, links ...string) string {
	return fmt.Sprintf(`{"type": "FeatureCollection", "features": [%s], "links": [%s]}`,
		strings.Join(items, ","), strings.Join(links, ","))
}

func quietClient(baseURL string) *Client {
	return NewClient(baseURL, 5*time.Second).WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestClient_Search_QueryExtension(t *testing.T) {
	var calls int32
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST request, got %s", r.Method)
		}
		if r.URL.Path != "/search" {
			t.Errorf("Expected path /search, got %s", r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Expected JSON content type, got %s", ct)
		}

		req, err := stac.ParseSearchRequestBody(r.Body)
		if err != nil {
			t.Errorf("invalid request body: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/geo+json")
		if n == 1 {
			if len(req.Collections) != 1 || req.Collections[0] != "sentinel-2-l2a" {
				t.Errorf("Expected collection sentinel-2-l2a, got %v", req.Collections)
			}
			if req.DateTime != "2020-06-01T00:00:00Z/2020-07-31T23:59:59Z" {
				t.Errorf("Unexpected datetime %s", req.DateTime)
			}
			if req.Limit != DefaultLimit {
				t.Errorf("Expected limit %d, got %d", DefaultLimit, req.Limit)
			}
			if len(req.Sortby) != 1 || req.Sortby[0].Field != "properties.eo:cloud_cover" || req.Sortby[0].Direction != stac.SortAsc {
				t.Errorf("Unexpected sortby %+v", req.Sortby)
			}
			if req.Query["eo:cloud_cover"]["lt"] != 15.0 {
				t.Errorf("Expected cloud cover bound 15, got %v", req.Query["eo:cloud_cover"])
			}
			tiles, _ := req.Query["s2:mgrs_tile"]["in"].([]any)
			if len(tiles) != 1 || tiles[0] != "10SEG" {
				t.Errorf("Expected tile filter [10SEG], got %v", req.Query["s2:mgrs_tile"])
			}
			if req.Filter != nil {
				t.Errorf("Expected no CQL2 filter, got %v", req.Filter)
			}
			next := fmt.Sprintf(`{"rel": "next", "href": %q, "method": "POST", "body": {"token": "page2"}, "merge": true}`, server.URL+"/search")
			fmt.Fprint(w, pageJSON([]string{itemJSON("a", 1, 0), itemJSON("b", 2, 5)}, next))
			return
		}

		if req.Token != "page2" {
			t.Errorf("Expected merged token page2, got %q", req.Token)
		}
		if req.Query == nil {
			t.Error("Expected merged body to keep the query")
		}
		fmt.Fprint(w, pageJSON([]string{itemJSON("c", 3, 0)}))
	}))
	defer server.Close()

	items, err := quietClient(server.URL).Search(context.Background(), Query{
		DateRange:     "2020-06-01T00:00:00Z/2020-07-31T23:59:59Z",
		TileID:        "10SEG",
		MaxCloudCover: 15,
	})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	if len(items) != 3 {
		t.Fatalf("Expected 3 items, got %d", len(items))
	}
	for i, id := range []string{"a", "b", "c"} {
		if items[i].Id != id {
			t.Errorf("item %d: expected %s, got %s", i, id, items[i].Id)
		}
	}
	if calls := atomic.LoadInt32(&calls); calls != 2 {
		t.Errorf("Expected 2 requests, got %d", calls)
	}
}

func TestClient_Search_GetNextLink(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost:
			next := fmt.Sprintf(`{"rel": "next", "href": %q}`, server.URL+"/search?token=p2")
			fmt.Fprint(w, pageJSON([]string{itemJSON("a", 1, 0)}, next))
		case r.Method == http.MethodGet && r.URL.Query().Get("token") == "p2":
			fmt.Fprint(w, pageJSON([]string{itemJSON("b", 2, 0)}))
		default:
			t.Errorf("Unexpected request %s %s", r.Method, r.URL)
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	defer server.Close()

	items, err := quietClient(server.URL).Search(context.Background(), Query{TileID: "10SEG", MaxCloudCover: 20})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(items) != 2 {
		t.Errorf("Expected 2 items, got %d", len(items))
	}
}

func TestClient_Search_MaxItems(t *testing.T) {
	var calls int32
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		next := fmt.Sprintf(`{"rel": "next", "href": "%s/search?page=%d", "method": "POST"}`, server.URL, n+1)
		fmt.Fprint(w, pageJSON([]string{itemJSON("a", 1, 0), itemJSON("b", 2, 0)}, next))
	}))
	defer server.Close()

	items, err := quietClient(server.URL).Search(context.Background(), Query{TileID: "10SEG", MaxCloudCover: 20, MaxItems: 3})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(items) != 3 {
		t.Errorf("Expected 3 items, got %d", len(items))
	}
	if calls := atomic.LoadInt32(&calls); calls != 2 {
		t.Errorf("Expected 2 requests, got %d", calls)
	}
}

func TestClient_Search_PagingDoesNotTerminate(t *testing.T) {
	tests := []struct {
		name      string
		nextHref  func(base string, n int32) string
		maxPages  int
		wantCalls int32
	}{
		{
			name:      "repeated next link",
			nextHref:  func(base string, _ int32) string { return base + "/search?token=same" },
			wantCalls: 2,
		},
		{
			name:      "page limit",
			nextHref:  func(base string, n int32) string { return fmt.Sprintf("%s/search?token=%d", base, n) },
			maxPages:  5,
			wantCalls: 5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			var server *httptest.Server
			server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				n := atomic.AddInt32(&calls, 1)
				next := fmt.Sprintf(`{"rel": "next", "href": %q}`, tt.nextHref(server.URL, n))
				fmt.Fprint(w, pageJSON([]string{itemJSON("a", 1, 0)}, next))
			}))
			defer server.Close()

			_, err := quietClient(server.URL).WithMaxPages(tt.maxPages).
				Search(context.Background(), Query{TileID: "10SEG", MaxCloudCover: 20})
			if !errors.Is(err, ErrPaging) {
				t.Fatalf("Expected ErrPaging, got %v", err)
			}
			if IsTransient(err) {
				t.Error("Expected a paging error to be permanent")
			}
			if got := atomic.LoadInt32(&calls); got != tt.wantCalls {
				t.Errorf("Expected %d requests, got %d", tt.wantCalls, got)
			}
		})
	}
}

func TestClient_Search_CQL2(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("invalid request body: %v", err)
			return
		}
		if body["filter-lang"] != "cql2-json" {
			t.Errorf("Expected filter-lang cql2-json, got %v", body["filter-lang"])
		}
		if body["filter"] == nil {
			t.Error("Expected a filter")
		}
		if _, ok := body["query"]; ok {
			t.Error("Expected no query extension in cql2 mode")
		}
		fmt.Fprint(w, pageJSON(nil))
	}))
	defer server.Close()

	items, err := quietClient(server.URL).WithFilterMode(FilterCQL2).Search(context.Background(), Query{TileID: "10SEG", MaxCloudCover: 20})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("Expected no items, got %d", len(items))
	}
}

func TestClient_Request_EarthSearchProfile(t *testing.T) {
	c := NewClient("", time.Second).WithProfile(ProfileFor(EarthSearch))

	req := c.Request(Query{TileID: "10SEG", MaxCloudCover: 10, Limit: 50})
	if req.Limit != 50 {
		t.Errorf("Expected limit 50, got %d", req.Limit)
	}
	in, _ := req.Query["grid:code"]["in"].([]string)
	if len(in) != 1 || in[0] != "MGRS-10SEG" {
		t.Errorf("Expected grid:code MGRS-10SEG, got %v", req.Query["grid:code"])
	}
	if got := c.searchURL(); got != "https://earth-search.aws.element84.com/v1/search" {
		t.Errorf("Unexpected search URL %s", got)
	}
}

func TestClient_Search_StatusErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		transient bool
	}{
		{"service unavailable", http.StatusServiceUnavailable, true},
		{"bad gateway", http.StatusBadGateway, true},
		{"too many requests", http.StatusTooManyRequests, true},
		{"request timeout", http.StatusRequestTimeout, true},
		{"bad request", http.StatusBadRequest, false},
		{"not found", http.StatusNotFound, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, `{"code": "error"}`)
			}))
			defer server.Close()

			_, err := quietClient(server.URL).Search(context.Background(), Query{TileID: "10SEG"})
			var se *StatusError
			if !errors.As(err, &se) {
				t.Fatalf("Expected StatusError, got %v", err)
			}
			if se.StatusCode != tt.status {
				t.Errorf("Expected status %d, got %d", tt.status, se.StatusCode)
			}
			if IsTransient(err) != tt.transient {
				t.Errorf("Expected transient=%v for status %d", tt.transient, tt.status)
			}
		})
	}
}

func TestClient_Search_DecodeError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "not json")
	}))
	defer server.Close()

	_, err := quietClient(server.URL).Search(context.Background(), Query{TileID: "10SEG"})
	if !errors.Is(err, ErrDecode) {
		t.Fatalf("Expected ErrDecode, got %v", err)
	}
	if IsTransient(err) {
		t.Error("Expected decode errors to be permanent")
	}
}

func TestClient_Search_InvalidQuery(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer server.Close()

	_, err := quietClient(server.URL).Search(context.Background(), Query{
		TileID:    "10SEG",
		DateRange: "2020-07-31T00:00:00Z/2020-06-01T00:00:00Z",
	})
	if !errors.Is(err, ErrInvalidQuery) {
		t.Fatalf("Expected ErrInvalidQuery, got %v", err)
	}
	if IsTransient(err) {
		t.Error("Expected invalid queries to be permanent")
	}
	if n := atomic.LoadInt32(&calls); n != 0 {
		t.Errorf("Expected no request to be sent, got %d", n)
	}
}

func TestClient_Search_ConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := server.URL
	server.Close()

	_, err := quietClient(addr).Search(context.Background(), Query{TileID: "10SEG"})
	if err == nil {
		t.Fatal("Expected an error")
	}
	if !IsTransient(err) {
		t.Errorf("Expected transport errors to be transient, got %v", err)
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"cancelled", fmt.Errorf("search: %w", context.Canceled), false},
		{"transport", &url.Error{Op: "Post", URL: "http://x", Err: errors.New("connection reset")}, true},
		{"server error", &StatusError{StatusCode: 500}, true},
		{"client error", &StatusError{StatusCode: 422}, false},
		{"decode", fmt.Errorf("%w: eof", ErrDecode), false},
		{"other", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, expected %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		in      string
		want    Kind
		wantErr bool
	}{
		{"planetary-computer", PlanetaryComputer, false},
		{"", PlanetaryComputer, false},
		{"Earth-Search", EarthSearch, false},
		{"element84", EarthSearch, false},
		{"usgs", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseKind(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseKind(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if tt.wantErr {
			if !errors.Is(err, ErrUnknownCatalog) {
				t.Errorf("Expected ErrUnknownCatalog, got %v", err)
			}
			continue
		}
		if got != tt.want {
			t.Errorf("ParseKind(%q) = %v, expected %v", tt.in, got, tt.want)
		}
	}
}

func TestProfile_TileValue(t *testing.T) {
	es := ProfileFor(EarthSearch)
	if got := es.TileValue("10SEG"); got != "MGRS-10SEG" {
		t.Errorf("Expected MGRS-10SEG, got %s", got)
	}
	if got := es.TileValue("MGRS-10SEG"); got != "MGRS-10SEG" {
		t.Errorf("Expected prefix not to be doubled, got %s", got)
	}
	if got := ProfileFor(PlanetaryComputer).TileValue("10SEG"); got != "10SEG" {
		t.Errorf("Expected 10SEG, got %s", got)
	}
}
