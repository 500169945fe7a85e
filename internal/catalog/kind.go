package catalog

import (
	"fmt"
	"strings"
)

// Kind identifies a supported STAC catalog.
type Kind int

const (
	// PlanetaryComputer is Microsoft's Planetary Computer STAC API.
	PlanetaryComputer Kind = iota
	// EarthSearch is Element 84's Earth Search STAC API.
	EarthSearch
)

// String returns the canonical catalog name.
func (k Kind) String() string {
	switch k {
	case PlanetaryComputer:
		return "planetary-computer"
	case EarthSearch:
		return "earth-search"
	default:
		return fmt.Sprintf("catalog(%d)", int(k))
	}
}

// ParseKind maps a catalog name to its Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "planetary-computer", "planetary_computer", "pc", "":
		return PlanetaryComputer, nil
	case "earth-search", "earth_search", "element84":
		return EarthSearch, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownCatalog, s)
	}
}

// Profile holds what differs between catalogs for a Sentinel 2 search.
// TileProperty is the item property holding the MGRS tile and TilePrefix is
// prepended to bare tile names ("10SEG") to build the catalog's tile value.
type Profile struct {
	Name               string
	URL                string
	Collection         string
	TileProperty       string
	TilePrefix         string
	CloudCoverProperty string
	NoDataProperty     string
}

// ProfileFor returns the built-in profile of a catalog.
func ProfileFor(k Kind) Profile {
	switch k {
	case EarthSearch:
		return Profile{
			Name:               k.String(),
			URL:                "https://earth-search.aws.element84.com/v1",
			Collection:         "sentinel-2-l2a",
			TileProperty:       "grid:code",
			TilePrefix:         "MGRS-",
			CloudCoverProperty: "eo:cloud_cover",
			NoDataProperty:     "s2:nodata_pixel_percentage",
		}
	default:
		return Profile{
			Name:               PlanetaryComputer.String(),
			URL:                "https://planetarycomputer.microsoft.com/api/stac/v1",
			Collection:         "sentinel-2-l2a",
			TileProperty:       "s2:mgrs_tile",
			CloudCoverProperty: "eo:cloud_cover",
			NoDataProperty:     "s2:nodata_pixel_percentage",
		}
	}
}

// TileValue formats a tile name the way the catalog stores it.
func (p Profile) TileValue(tileID string) string {
	if p.TilePrefix == "" || strings.HasPrefix(tileID, p.TilePrefix) {
		return tileID
	}
	return p.TilePrefix + tileID
}
