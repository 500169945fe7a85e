// Package geo provides the vector types shared by the grid, spatial and output
// packages: identified features grouped in layers that share one CRS.
package geo

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// BBox is an axis-aligned bounding box as (minx, miny, maxx, maxy) in the
// units of the layer's CRS.
type BBox struct {
	MinX float64
	MinY float64
	MaxX float64
	MaxY float64
}

// BBoxFromSlice builds a BBox from a [minx, miny, maxx, maxy] slice.
func BBoxFromSlice(v []float64) (BBox, error) {
	if len(v) != 4 {
		return BBox{}, fmt.Errorf("bbox must have 4 coordinates, got %d", len(v))
	}
	return BBox{MinX: v[0], MinY: v[1], MaxX: v[2], MaxY: v[3]}, nil
}

// BBoxFromBound converts an orb.Bound.
func BBoxFromBound(b orb.Bound) BBox {
	return BBox{MinX: b.Min.X(), MinY: b.Min.Y(), MaxX: b.Max.X(), MaxY: b.Max.Y()}
}

// Bound converts the box to an orb.Bound.
func (b BBox) Bound() orb.Bound {
	return orb.Bound{Min: orb.Point{b.MinX, b.MinY}, Max: orb.Point{b.MaxX, b.MaxY}}
}

// Slice returns the box as [minx, miny, maxx, maxy].
func (b BBox) Slice() []float64 {
	return []float64{b.MinX, b.MinY, b.MaxX, b.MaxY}
}

// Valid reports whether the box has finite coordinates and a positive extent
// on both axes.
func (b BBox) Valid() bool {
	for _, v := range b.Slice() {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return b.MinX < b.MaxX && b.MinY < b.MaxY
}

// Feature is an identified polygonal geometry. Geometry is either an
// orb.Polygon or an orb.MultiPolygon and is never mutated once the feature is
// part of a layer.
type Feature struct {
	ID       string
	Geometry orb.Geometry
}

// Polygons returns the polygons making up the feature geometry. Non polygonal
// geometries yield nil.
func (f Feature) Polygons() []orb.Polygon {
	return Polygons(f.Geometry)
}

// Bound returns the bounding box of the feature geometry.
func (f Feature) Bound() orb.Bound {
	if f.Geometry == nil {
		return orb.Bound{}
	}
	return f.Geometry.Bound()
}

// Layer is an ordered collection of features sharing one CRS tag.
type Layer struct {
	CRS      string
	Features []Feature
}

// Len returns the number of features.
func (l *Layer) Len() int {
	if l == nil {
		return 0
	}
	return len(l.Features)
}

// IDs returns the feature ids in layer order.
func (l *Layer) IDs() []string {
	ids := make([]string, 0, l.Len())
	if l == nil {
		return ids
	}
	for _, f := range l.Features {
		ids = append(ids, f.ID)
	}
	return ids
}

// Bounds returns the total bounds of every feature in the layer. The second
// return value is false for an empty layer.
func (l *Layer) Bounds() (BBox, bool) {
	if l.Len() == 0 {
		return BBox{}, false
	}
	b := l.Features[0].Bound()
	for _, f := range l.Features[1:] {
		b = b.Union(f.Bound())
	}
	return BBoxFromBound(b), true
}

// Polygons flattens a polygonal geometry.
func Polygons(g orb.Geometry) []orb.Polygon {
	switch v := g.(type) {
	case orb.Polygon:
		return []orb.Polygon{v}
	case orb.MultiPolygon:
		return v
	case orb.Bound:
		return []orb.Polygon{v.ToPolygon()}
	default:
		return nil
	}
}
