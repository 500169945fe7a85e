// Package geoio reads and writes layers as GeoJSON feature collections.
package geoio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/robert-malhotra/stac-tile-selector/internal/geo"
	"github.com/robert-malhotra/stac-tile-selector/internal/propagate"
	"github.com/robert-malhotra/stac-tile-selector/internal/spatial"
)

// Output property names.
const (
	FeatureIDProperty      = "feature_id"
	DefaultTilesProperty   = "s2_tiles"
	DefaultProductProperty = "best_s2_product_id"
)

var (
	// ErrNotPolygonal is returned for a feature whose geometry is not a
	// polygon or multipolygon.
	ErrNotPolygonal = errors.New("geometry is not polygonal")
	// ErrMissingID is returned when the id property is absent or empty.
	ErrMissingID = errors.New("missing feature id")
)

// ReadOptions configures how features become layer features.
type ReadOptions struct {
	// IDProperty names the property holding the feature id. When empty the
	// GeoJSON id member is used, then the feature position.
	IDProperty string
	// CRS tags the layer when the file carries no crs member.
	CRS string
}

// Read decodes a FeatureCollection into a layer.
func Read(r io.Reader, opts ReadOptions) (*geo.Layer, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read geojson: %w", err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("decode feature collection: %w", err)
	}

	layer := &geo.Layer{CRS: opts.CRS, Features: make([]geo.Feature, 0, len(fc.Features))}
	if crs := crsName(fc.ExtraMembers); crs != "" {
		layer.CRS = crs
	}
	for i, f := range fc.Features {
		id, err := featureID(f, i, opts.IDProperty)
		if err != nil {
			return nil, fmt.Errorf("feature %d: %w", i, err)
		}
		if len(geo.Polygons(f.Geometry)) == 0 {
			return nil, fmt.Errorf("feature %q: %w: %s", id, ErrNotPolygonal, geometryType(f.Geometry))
		}
		layer.Features = append(layer.Features, geo.Feature{ID: id, Geometry: f.Geometry})
	}
	return layer, nil
}

// ReadFile reads a layer from a GeoJSON file.
func ReadFile(path string, opts ReadOptions) (*geo.Layer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	layer, err := Read(f, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return layer, nil
}

func featureID(f *geojson.Feature, pos int, prop string) (string, error) {
	if prop != "" {
		switch v := f.Properties[prop].(type) {
		case string:
			if v != "" {
				return v, nil
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64), nil
		}
		return "", fmt.Errorf("%w: property %q", ErrMissingID, prop)
	}
	switch v := f.ID.(type) {
	case string:
		if v != "" {
			return v, nil
		}
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	}
	return strconv.Itoa(pos), nil
}

func geometryType(g orb.Geometry) string {
	if g == nil {
		return "null"
	}
	return g.GeoJSONType()
}

// crsName extracts a named crs member, as written by GDAL, and normalizes
// OGC URNs to the EPSG:<code> form.
func crsName(extra geojson.Properties) string {
	crs, ok := extra["crs"].(map[string]any)
	if !ok {
		return ""
	}
	props, ok := crs["properties"].(map[string]any)
	if !ok {
		return ""
	}
	name, _ := props["name"].(string)
	if i := strings.Index(name, "EPSG::"); i >= 0 {
		return "EPSG:" + name[i+len("EPSG::"):]
	}
	return name
}

func crsMember(crs string) map[string]any {
	return map[string]any{
		"type":       "name",
		"properties": map[string]any{"name": crs},
	}
}

// LayerCollection converts a layer to a feature collection with a feature_id
// property on every feature.
func LayerCollection(layer *geo.Layer) *geojson.FeatureCollection {
	fc := newCollection(layer.CRS)
	for _, f := range layer.Features {
		gf := geojson.NewFeature(f.Geometry)
		gf.Properties[FeatureIDProperty] = f.ID
		fc.Append(gf)
	}
	return fc
}

// Columns names the properties carrying the assigned tiles and the selected
// product.
type Columns struct {
	Tiles   string
	Product string
}

func (c Columns) withDefaults() Columns {
	if c.Tiles == "" {
		c.Tiles = DefaultTilesProperty
	}
	if c.Product == "" {
		c.Product = DefaultProductProperty
	}
	return c
}

// SelectionCollection converts the fine layer to a feature collection holding
// each feature's assigned tiles and selected product. Features without a
// product get a null product property.
func SelectionCollection(layer *geo.Layer, a spatial.Assignment, sel propagate.Selection, cols Columns) *geojson.FeatureCollection {
	cols = cols.withDefaults()
	fc := newCollection(layer.CRS)
	for _, f := range layer.Features {
		gf := geojson.NewFeature(f.Geometry)
		gf.Properties[FeatureIDProperty] = f.ID
		tiles := a[f.ID]
		if tiles == nil {
			tiles = []string{}
		}
		gf.Properties[cols.Tiles] = tiles
		if p, ok := sel[f.ID]; ok && p.Selected() {
			gf.Properties[cols.Product] = p.ProductID
		} else {
			gf.Properties[cols.Product] = nil
		}
		fc.Append(gf)
	}
	return fc
}

func newCollection(crs string) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	if crs != "" {
		fc.ExtraMembers = geojson.Properties{"crs": crsMember(crs)}
	}
	return fc
}

// Write encodes fc to w.
func Write(w io.Writer, fc *geojson.FeatureCollection) error {
	data, err := fc.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encode feature collection: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write geojson: %w", err)
	}
	return nil
}

// WriteFile writes fc to path, replacing any existing file.
func WriteFile(path string, fc *geojson.FeatureCollection) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Write(f, fc); err != nil {
		f.Close()
		return fmt.Errorf("%s: %w", path, err)
	}
	return f.Close()
}
