// Package grid generates regular grids of square polygons over a bounding box.
//
// Cell starting corners are generated as start, start+size, start+2*size, ...
// strictly below the box maximum, so a box whose extent is not a multiple of
// the cell size yields cells that may overhang the requested maximum while the
// last partial row or column is never started past it.
package grid

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/paulmach/orb"

	"github.com/robert-malhotra/stac-tile-selector/internal/executor"
	"github.com/robert-malhotra/stac-tile-selector/internal/geo"
)

// ErrInvalidBounds is returned for a malformed bounding box or cell size.
var ErrInvalidBounds = errors.New("invalid grid bounds")

// InvalidBoundsError describes why a grid request was rejected.
type InvalidBoundsError struct {
	BBox     geo.BBox
	CellSize float64
	Reason   string
}

func (e *InvalidBoundsError) Error() string {
	return fmt.Sprintf("invalid grid bounds %v with cell size %g: %s", e.BBox.Slice(), e.CellSize, e.Reason)
}

// Unwrap lets errors.Is match ErrInvalidBounds.
func (e *InvalidBoundsError) Unwrap() error {
	return ErrInvalidBounds
}

func validate(bbox geo.BBox, cellSize float64) error {
	switch {
	case !bbox.Valid():
		return &InvalidBoundsError{BBox: bbox, CellSize: cellSize, Reason: "minimum must be below maximum on both axes"}
	case math.IsNaN(cellSize) || math.IsInf(cellSize, 0) || cellSize <= 0:
		return &InvalidBoundsError{BBox: bbox, CellSize: cellSize, Reason: "cell size must be positive"}
	}
	return nil
}

// Coordinates returns the cell starting coordinates along each axis. Values
// are computed as min + i*size to avoid accumulating rounding errors.
func Coordinates(bbox geo.BBox, cellSize float64) (xs, ys []float64) {
	return axis(bbox.MinX, bbox.MaxX, cellSize), axis(bbox.MinY, bbox.MaxY, cellSize)
}

func axis(start, stop, step float64) []float64 {
	n := int(math.Ceil((stop - start) / step))
	out := make([]float64, 0, max(n, 0))
	for i := 0; ; i++ {
		v := start + float64(i)*step
		if v >= stop {
			break
		}
		out = append(out, v)
	}
	return out
}

// Cell returns the closed square polygon whose lower left corner is (x, y).
func Cell(x, y, size float64) orb.Polygon {
	return orb.Polygon{{
		{x, y},
		{x + size, y},
		{x + size, y + size},
		{x, y + size},
		{x, y},
	}}
}

// Build creates the grid sequentially. Cells are emitted row by row, x varying
// fastest, and each receives a fresh UUID.
func Build(bbox geo.BBox, cellSize float64, crs string) (*geo.Layer, error) {
	if err := validate(bbox, cellSize); err != nil {
		return nil, err
	}
	xs, ys := Coordinates(bbox, cellSize)
	features := make([]geo.Feature, 0, len(xs)*len(ys))
	for _, y := range ys {
		for _, x := range xs {
			features = append(features, geo.Feature{ID: uuid.NewString(), Geometry: Cell(x, y, cellSize)})
		}
	}
	return &geo.Layer{CRS: crs, Features: features}, nil
}

// BuildParallel creates the grid by splitting the flattened coordinate pairs
// into one contiguous chunk per worker. Callers must not rely on cell order.
func BuildParallel(ctx context.Context, bbox geo.BBox, cellSize float64, crs string, exec executor.Executor) (*geo.Layer, error) {
	if err := validate(bbox, cellSize); err != nil {
		return nil, err
	}
	xs, ys := Coordinates(bbox, cellSize)
	total := len(xs) * len(ys)
	if exec == nil {
		exec = executor.NewPool(min(executor.CPU().Workers(), total))
	}

	chunks := executor.Chunks(total, exec.Workers())
	parts := make([][]geo.Feature, len(chunks))
	exec.Run(ctx, len(chunks), func(_ context.Context, c int) {
		start, end := chunks[c][0], chunks[c][1]
		cells := make([]geo.Feature, 0, end-start)
		for k := start; k < end; k++ {
			x, y := xs[k%len(xs)], ys[k/len(xs)]
			cells = append(cells, geo.Feature{ID: uuid.NewString(), Geometry: Cell(x, y, cellSize)})
		}
		parts[c] = cells
	})
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("build grid: %w", err)
	}

	features := make([]geo.Feature, 0, total)
	for _, p := range parts {
		features = append(features, p...)
	}
	return &geo.Layer{CRS: crs, Features: features}, nil
}
