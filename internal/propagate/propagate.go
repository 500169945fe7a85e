// Package propagate hands each fine feature the best product among the coarse
// tiles it was assigned to.
package propagate

import (
	"log/slog"

	"github.com/robert-malhotra/stac-tile-selector/internal/observability"
	"github.com/robert-malhotra/stac-tile-selector/internal/resolve"
	"github.com/robert-malhotra/stac-tile-selector/internal/spatial"
)

// Gap explains why a feature got no product.
type Gap int

const (
	// GapNone means a product was picked.
	GapNone Gap = iota
	// GapNoCoverage means the feature was not assigned to any tile.
	GapNoCoverage
	// GapPartial means at least one assigned tile has no product.
	GapPartial
)

func (g Gap) String() string {
	switch g {
	case GapNone:
		return "selected"
	case GapNoCoverage:
		return "no_coverage"
	default:
		return "partial"
	}
}

// Pick is the product chosen for one feature. ProductID and TileID are empty
// unless Reason is GapNone.
type Pick struct {
	ProductID string
	TileID    string
	Reason    Gap
}

// Selected reports whether a product was picked.
func (p Pick) Selected() bool {
	return p.Reason == GapNone
}

// Selection maps every fine feature id of an assignment to its pick.
type Selection map[string]Pick

// Counts returns the number of picks per Gap.
func (s Selection) Counts() map[Gap]int {
	out := make(map[Gap]int, 3)
	for _, p := range s {
		out[p.Reason]++
	}
	return out
}

// Propagate picks a product for every feature of a. A feature whose tiles are
// not all present in idx gets no product, even when some of them have one.
// Among several tiles the lowest cloud cover wins; on a tie the tile listed
// first wins.
func Propagate(a spatial.Assignment, idx resolve.ResultIndex, logger *slog.Logger) Selection {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	out := make(Selection, len(a))
	for featureID, tiles := range a {
		p := pick(tiles, idx)
		if p.Reason == GapPartial {
			logger.Debug("feature tiles not fully resolved",
				slog.String("feature_id", featureID),
				slog.Any("tiles", tiles),
				slog.Any("missing", missing(tiles, idx)),
			)
		}
		out[featureID] = p
	}

	for gap, n := range out.Counts() {
		observability.AddFeatureSelections(gap.String(), n)
	}
	return out
}

func pick(tiles []string, idx resolve.ResultIndex) Pick {
	if len(tiles) == 0 {
		return Pick{Reason: GapNoCoverage}
	}

	var best Pick
	var bestCC float64
	for i, t := range tiles {
		prod, ok := idx[t]
		if !ok {
			return Pick{Reason: GapPartial}
		}
		if i == 0 || prod.CloudCover < bestCC {
			best = Pick{ProductID: prod.ID, TileID: t}
			bestCC = prod.CloudCover
		}
	}
	return best
}

func missing(tiles []string, idx resolve.ResultIndex) []string {
	var out []string
	for _, t := range tiles {
		if _, ok := idx[t]; !ok {
			out = append(out, t)
		}
	}
	return out
}
