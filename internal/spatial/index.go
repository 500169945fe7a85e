// Package spatial joins feature layers: it assigns fine grid cells to the coarse
// tiles that contain them and filters layers by location.
package spatial

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/dhconnelly/rtreego"
	"github.com/paulmach/orb"

	"github.com/robert-malhotra/stac-tile-selector/internal/geo"
)

// ErrCRSMismatch is returned when two layers carry different CRS tags.
var ErrCRSMismatch = errors.New("layers have different CRS")

// pad is the relative amount rectangles are widened by so that boundary contact
// is reported as a candidate and degenerate (zero width) bounds stay valid.
const pad = 1e-9

func checkCRS(a, b *geo.Layer) error {
	if a.CRS != "" && b.CRS != "" && a.CRS != b.CRS {
		return fmt.Errorf("%w: %s and %s", ErrCRSMismatch, a.CRS, b.CRS)
	}
	return nil
}

type entry struct {
	pos  int
	rect rtreego.Rect
}

// Bounds implements rtreego.Spatial.
func (e entry) Bounds() rtreego.Rect {
	return e.rect
}

// Index is an R-tree over the bounds of a layer's features, holding each
// feature's converted geometry for the exact predicate test. It is read-only
// once built and safe for concurrent queries.
type Index struct {
	layer  *geo.Layer
	tree   *rtreego.Rtree
	shapes []*shape
}

// NewIndex indexes every feature of layer by its bounding box. It fails when a
// feature geometry is not a valid polygon.
func NewIndex(layer *geo.Layer) (*Index, error) {
	tree := rtreego.NewTree(2, 25, 50)
	shapes := make([]*shape, layer.Len())
	for i, f := range layer.Features {
		if f.Geometry == nil {
			continue
		}
		s, err := newShape(f)
		if err != nil {
			return nil, fmt.Errorf("index layer: %w", err)
		}
		shapes[i] = s
		tree.Insert(entry{pos: i, rect: toRect(f.Bound())})
	}
	return &Index{layer: layer, tree: tree, shapes: shapes}, nil
}

// Candidates returns the positions of indexed features whose bounds touch b, in
// layer order.
func (idx *Index) Candidates(b orb.Bound) []int {
	hits := idx.tree.SearchIntersect(toRect(b))
	out := make([]int, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.(entry).pos)
	}
	sort.Ints(out)
	return out
}

// Feature returns the indexed feature at position i.
func (idx *Index) Feature(i int) geo.Feature {
	return idx.layer.Features[i]
}

// test evaluates pred between left and the indexed feature at position i.
func (idx *Index) test(pred Predicate, left *shape, i int) (bool, error) {
	return pred.eval(left, idx.shapes[i])
}

// Len returns the number of indexed features.
func (idx *Index) Len() int {
	return idx.tree.Size()
}

func toRect(b orb.Bound) rtreego.Rect {
	scale := 1.0
	for _, v := range []float64{b.Min.X(), b.Min.Y(), b.Max.X(), b.Max.Y()} {
		scale = math.Max(scale, math.Abs(v))
	}
	eps := pad * scale
	w := math.Max(b.Max.X()-b.Min.X(), 0) + 2*eps
	h := math.Max(b.Max.Y()-b.Min.Y(), 0) + 2*eps
	rect, _ := rtreego.NewRect(rtreego.Point{b.Min.X() - eps, b.Min.Y() - eps}, []float64{w, h})
	return rect
}
