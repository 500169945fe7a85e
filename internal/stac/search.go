package stac

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
)

// SearchRequest represents a STAC item-search POST body. Property constraints
// go either through the Query extension or through a CQL2-JSON filter.
type SearchRequest struct {
	Collections []string  `json:"collections,omitempty"`
	DateTime    string    `json:"datetime,omitempty"`
	BBox        []float64 `json:"bbox,omitempty"`
	Limit       int       `json:"limit,omitempty"`

	// Sortby extension
	Sortby []SortbyItem `json:"sortby,omitempty"`

	// Query extension: property name to operator to value
	Query map[string]map[string]any `json:"query,omitempty"`

	// Filter extension
	Filter     any    `json:"filter,omitempty"`
	FilterLang string `json:"filter-lang,omitempty"`

	// Token is set when a paging link asks for it in the body.
	Token string `json:"token,omitempty"`
}

// ParseSearchRequestBody parses a STAC search request from POST JSON body
func ParseSearchRequestBody(body io.Reader) (*SearchRequest, error) {
	var req SearchRequest

	decoder := json.NewDecoder(body)
	if err := decoder.Decode(&req); err != nil {
		return nil, fmt.Errorf("failed to parse search request body: %w", err)
	}

	return &req, nil
}

// Body returns the request as a generic JSON object so that paging link bodies
// can be merged into it.
func (req *SearchRequest) Body() (map[string]any, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode search request: %w", err)
	}
	var body map[string]any
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("failed to encode search request: %w", err)
	}
	return body, nil
}

// NextBody computes the body to send when following link. A link carrying a
// body replaces the previous one unless it asks for a merge; a link without a
// body reuses the previous one.
func NextBody(prev map[string]any, link *PageLink) map[string]any {
	if link == nil || link.Body == nil {
		return prev
	}
	if !link.Merge {
		return link.Body
	}
	out := make(map[string]any, len(prev)+len(link.Body))
	maps.Copy(out, prev)
	maps.Copy(out, link.Body)
	return out
}
