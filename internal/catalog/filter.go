package catalog

import (
	"fmt"

	"github.com/planetlabs/go-ogc/filter"
)

// FilterMode selects how property constraints are sent to the catalog.
type FilterMode string

const (
	// FilterQuery uses the STAC Query extension.
	FilterQuery FilterMode = "query"
	// FilterCQL2 uses a CQL2-JSON filter.
	FilterCQL2 FilterMode = "cql2"
)

// ParseFilterMode validates a filter mode name.
func ParseFilterMode(s string) (FilterMode, error) {
	switch FilterMode(s) {
	case FilterQuery, "":
		return FilterQuery, nil
	case FilterCQL2, "cql2-json":
		return FilterCQL2, nil
	default:
		return "", fmt.Errorf("unsupported filter mode %q", s)
	}
}

// queryExtension builds {"<cloud>": {"lt": cc}, "<tile>": {"in": [tile]}}.
func queryExtension(p Profile, q Query) map[string]map[string]any {
	return map[string]map[string]any{
		p.CloudCoverProperty: {"lt": q.MaxCloudCover},
		p.TileProperty:       {"in": []string{p.TileValue(q.TileID)}},
	}
}

// cql2Filter builds the equivalent CQL2 expression:
// <cloud> < cc AND <tile> = tile.
func cql2Filter(p Profile, q Query) *filter.Filter {
	return &filter.Filter{
		Expression: &filter.And{
			Args: []filter.BooleanExpression{
				&filter.Comparison{
					Name:  filter.LessThan,
					Left:  &filter.Property{Name: p.CloudCoverProperty},
					Right: &filter.Number{Value: q.MaxCloudCover},
				},
				&filter.Comparison{
					Name:  filter.Equals,
					Left:  &filter.Property{Name: p.TileProperty},
					Right: &filter.String{Value: p.TileValue(q.TileID)},
				},
			},
		},
	}
}
