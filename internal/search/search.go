// Package search finds the best complete catalog product for one coarse tile.
//
// A tile search is a small pipeline: Collect queries the catalog once per date
// range and unions the items, SortByCloudCover orders them, and FirstComplete
// picks the first one whose no-data share is below the bound.
package search

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"

	"github.com/robert-malhotra/stac-tile-selector/internal/catalog"
	"github.com/robert-malhotra/stac-tile-selector/internal/observability"
	"github.com/robert-malhotra/stac-tile-selector/internal/retry"
	"github.com/robert-malhotra/stac-tile-selector/internal/stac"
)

// Reasons reported with Error and Incomplete outcomes.
const (
	ReasonNoResults  = "No results found"
	ReasonIncomplete = "No results found that cover the entire tile"
)

// Default property keys and bounds.
const (
	DefaultCloudCoverKey = "eo:cloud_cover"
	DefaultNoDataKey     = "s2:nodata_pixel_percentage"
	DefaultMaxNoData     = 5.0
)

// Status is the kind of result a tile search ends with.
type Status int

const (
	Found Status = iota
	Incomplete
	Error
)

func (s Status) String() string {
	switch s {
	case Found:
		return "found"
	case Incomplete:
		return "incomplete"
	default:
		return "error"
	}
}

// Product is the winning item of a tile search.
type Product struct {
	ID         string  `json:"id"`
	CloudCover float64 `json:"cloud_cover"`
	NoData     float64 `json:"no_data"`
}

// Outcome is the result of searching one tile. Product is set only for Found;
// Reason only for Incomplete and Error.
type Outcome struct {
	TileID  string
	Status  Status
	Product Product
	Reason  string
}

// Params configures a tile search.
type Params struct {
	// DateRanges are STAC datetime intervals, each queried separately.
	DateRanges    []string
	Collection    string
	MaxCloudCover float64
	// MaxNoData is the exclusive upper bound on the no-data percentage. Zero
	// means DefaultMaxNoData.
	MaxNoData     float64
	CloudCoverKey string
	NoDataKey     string
	Limit         int
	MaxItems      int
	Retry         retry.Policy
	Logger        *slog.Logger
}

func (p Params) withDefaults() Params {
	if p.CloudCoverKey == "" {
		p.CloudCoverKey = DefaultCloudCoverKey
	}
	if p.NoDataKey == "" {
		p.NoDataKey = DefaultNoDataKey
	}
	if p.MaxNoData <= 0 {
		p.MaxNoData = DefaultMaxNoData
	}
	if p.Retry.Retryable == nil {
		p.Retry.Retryable = catalog.IsTransient
	}
	if p.Logger == nil {
		p.Logger = slog.New(slog.DiscardHandler)
	}
	return p
}

// SearchTile runs the search pipeline for tileID. It never returns an error:
// failures are reported as Error outcomes. It keeps no state between calls and
// is safe for concurrent use with a concurrency-safe Searcher.
func SearchTile(ctx context.Context, s catalog.Searcher, tileID string, p Params) Outcome {
	p = p.withDefaults()

	items, err := Collect(ctx, s, tileID, p)
	if err != nil {
		p.Logger.WarnContext(ctx, "tile search failed",
			slog.String("tile_id", tileID),
			slog.String("error", err.Error()),
		)
		return Outcome{TileID: tileID, Status: Error, Reason: err.Error()}
	}
	if len(items) == 0 {
		return Outcome{TileID: tileID, Status: Error, Reason: ReasonNoResults}
	}

	sorted := SortByCloudCover(items, p.CloudCoverKey)
	best, ok := FirstComplete(sorted, p.NoDataKey, p.MaxNoData)
	if !ok {
		return Outcome{TileID: tileID, Status: Incomplete, Reason: ReasonIncomplete}
	}

	nd, _ := stac.Number(best, p.NoDataKey)
	return Outcome{
		TileID: tileID,
		Status: Found,
		Product: Product{
			ID:         best.Id,
			CloudCover: cloudCover(best, p.CloudCoverKey),
			NoData:     nd,
		},
	}
}

// Collect queries every date range, retrying each query under p.Retry, and
// returns the union of the items. An item seen in several ranges is kept once.
func Collect(ctx context.Context, s catalog.Searcher, tileID string, p Params) ([]*stac.Item, error) {
	p = p.withDefaults()
	policy := p.Retry
	policy.OnRetry = func(attempt int, err error) {
		observability.IncCatalogRetry(catalogName(s))
		p.Logger.DebugContext(ctx, "retrying catalog query",
			slog.String("tile_id", tileID),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)
	}

	seen := make(map[string]bool)
	var items []*stac.Item
	for _, dr := range p.DateRanges {
		q := catalog.Query{
			DateRange:     dr,
			Collection:    p.Collection,
			TileID:        tileID,
			MaxCloudCover: p.MaxCloudCover,
			Limit:         p.Limit,
			MaxItems:      p.MaxItems,
		}

		var found []*stac.Item
		err := policy.Do(ctx, func(ctx context.Context) error {
			var err error
			found, err = s.Search(ctx, q)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("search %s in %s: %w", tileID, dr, err)
		}

		for _, it := range found {
			if it == nil || seen[it.Id] {
				continue
			}
			seen[it.Id] = true
			items = append(items, it)
		}
	}
	return items, nil
}

// SortByCloudCover returns a copy of items stably sorted by ascending cloud
// cover. Items without the property sort last.
func SortByCloudCover(items []*stac.Item, key string) []*stac.Item {
	out := slices.Clone(items)
	slices.SortStableFunc(out, func(a, b *stac.Item) int {
		return cmp.Compare(sortKey(a, key), sortKey(b, key))
	})
	return out
}

// FirstComplete returns the first item whose no-data percentage is strictly
// below maxNoData. Items without the property never qualify.
func FirstComplete(items []*stac.Item, key string, maxNoData float64) (*stac.Item, bool) {
	for _, it := range items {
		if nd, ok := stac.Number(it, key); ok && nd < maxNoData {
			return it, true
		}
	}
	return nil, false
}

func sortKey(it *stac.Item, key string) float64 {
	if v, ok := stac.Number(it, key); ok && !math.IsNaN(v) {
		return v
	}
	return math.Inf(1)
}

// cloudCover reports a missing value as fully clouded.
func cloudCover(it *stac.Item, key string) float64 {
	if v, ok := stac.Number(it, key); ok && !math.IsNaN(v) {
		return v
	}
	return 100
}

func catalogName(s catalog.Searcher) string {
	if c, ok := s.(interface{ Profile() catalog.Profile }); ok {
		return c.Profile().Name
	}
	return "custom"
}
