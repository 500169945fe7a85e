// Package stac provides STAC API types used to talk to remote catalogs, wrapping
// planetlabs/go-stac for the core item model and adding the search and paging
// types the item-search endpoint exchanges.
package stac

import (
	gostac "github.com/planetlabs/go-stac"
)

// Re-export core types from planetlabs/go-stac for convenience
type (
	Item  = gostac.Item
	Asset = gostac.Asset
	Link  = gostac.Link
)

// Version is the STAC version stamped on items built locally.
const Version = "1.0.0"

// ItemCollection represents a STAC ItemCollection (GeoJSON FeatureCollection)
// as returned by an item-search endpoint.
type ItemCollection struct {
	Type           string         `json:"type"` // "FeatureCollection"
	Features       []*gostac.Item `json:"features"`
	Links          []*PageLink    `json:"links"`
	NumberMatched  *int           `json:"numberMatched,omitempty"`
	NumberReturned int            `json:"numberReturned,omitempty"`
	Context        *Context       `json:"context,omitempty"`
}

// Context provides additional metadata about the response (STAC Context extension)
type Context struct {
	Returned int  `json:"returned"`
	Limit    int  `json:"limit,omitempty"`
	Matched  *int `json:"matched,omitempty"`
}

// PageLink is a link as found in item-search responses. Paging links may carry
// an HTTP method and a request body to send (or merge) when following them.
type PageLink struct {
	Rel    string         `json:"rel"`
	Href   string         `json:"href"`
	Type   string         `json:"type,omitempty"`
	Method string         `json:"method,omitempty"`
	Body   map[string]any `json:"body,omitempty"`
	Merge  bool           `json:"merge,omitempty"`
}

// NextLink returns the rel=next link, or nil on the last page.
func (ic *ItemCollection) NextLink() *PageLink {
	for _, l := range ic.Links {
		if l != nil && l.Rel == "next" && l.Href != "" {
			return l
		}
	}
	return nil
}

// NewItem creates a new STAC Item with the given ID and collection.
func NewItem(id, collection string, properties map[string]any) *gostac.Item {
	if properties == nil {
		properties = make(map[string]any)
	}
	return &gostac.Item{
		Version:    Version,
		Id:         id,
		Collection: collection,
		Properties: properties,
		Assets:     make(map[string]*gostac.Asset),
		Links:      make([]*gostac.Link, 0),
	}
}
