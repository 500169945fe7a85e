package spatial

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/peterstace/simplefeatures/geom"

	"github.com/robert-malhotra/stac-tile-selector/internal/geo"
)

// Predicate is the geometric relation tested between a left (fine) feature and
// a right (coarse) feature.
type Predicate int

const (
	// Within holds when the left geometry lies entirely inside the right one,
	// boundary contact allowed.
	Within Predicate = iota
	// Intersects holds when the two geometries share at least one point.
	Intersects
)

// String returns the predicate name.
func (p Predicate) String() string {
	switch p {
	case Within:
		return "within"
	case Intersects:
		return "intersects"
	default:
		return fmt.Sprintf("predicate(%d)", int(p))
	}
}

// ParsePredicate maps a predicate name to its value.
func ParsePredicate(s string) (Predicate, error) {
	switch s {
	case "within", "":
		return Within, nil
	case "intersects":
		return Intersects, nil
	default:
		return 0, fmt.Errorf("unsupported spatial predicate %q", s)
	}
}

// Eval tests left against right.
func (p Predicate) Eval(left, right geo.Feature) (bool, error) {
	l, err := newShape(left)
	if err != nil {
		return false, err
	}
	r, err := newShape(right)
	if err != nil {
		return false, err
	}
	return p.eval(l, r)
}

func (p Predicate) eval(left, right *shape) (bool, error) {
	if left.empty() || right.empty() {
		return false, nil
	}
	switch p {
	case Within:
		// every part of left must lie in the whole of right, so a cell
		// spanning two adjacent parts of one tile still qualifies
		for _, part := range left.parts {
			ok, err := geom.Within(part, right.whole)
			if err != nil {
				return false, fmt.Errorf("within %s/%s: %w", left.id, right.id, err)
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	case Intersects:
		for _, a := range left.parts {
			for _, b := range right.parts {
				if geom.Intersects(a, b) {
					return true, nil
				}
			}
		}
		return false, nil
	default:
		return false, nil
	}
}

// shape is a feature converted for predicate evaluation: one geometry per
// polygon part plus their union.
type shape struct {
	id    string
	parts []geom.Geometry
	whole geom.Geometry
}

func (s *shape) empty() bool {
	return len(s.parts) == 0
}

func newShape(f geo.Feature) (*shape, error) {
	s := &shape{id: f.ID}
	for _, p := range f.Polygons() {
		if len(p) == 0 {
			continue
		}
		g, err := toGeom(p)
		if err != nil {
			return nil, fmt.Errorf("feature %s: %w", f.ID, err)
		}
		s.parts = append(s.parts, g)
	}
	if s.empty() {
		return s, nil
	}

	s.whole = s.parts[0]
	for _, g := range s.parts[1:] {
		u, err := geom.Union(s.whole, g)
		if err != nil {
			return nil, fmt.Errorf("feature %s: union parts: %w", f.ID, err)
		}
		s.whole = u
	}
	return s, nil
}

func toGeom(p orb.Polygon) (geom.Geometry, error) {
	b, err := wkb.Marshal(p)
	if err != nil {
		return geom.Geometry{}, fmt.Errorf("encode polygon: %w", err)
	}
	g, err := geom.UnmarshalWKB(b)
	if err != nil {
		return geom.Geometry{}, fmt.Errorf("invalid polygon: %w", err)
	}
	return g, nil
}
