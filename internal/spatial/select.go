package spatial

import (
	"context"
	"errors"
	"fmt"

	"github.com/robert-malhotra/stac-tile-selector/internal/executor"
	"github.com/robert-malhotra/stac-tile-selector/internal/geo"
)

// SelectByLocation returns the features of from that satisfy pred against at
// least one feature of with. Each feature is kept at most once and the relative
// order of from is preserved. The result shares geometries with from.
func SelectByLocation(ctx context.Context, from, with *geo.Layer, pred Predicate, exec executor.Executor) (*geo.Layer, error) {
	if err := checkCRS(from, with); err != nil {
		return nil, err
	}
	if exec == nil {
		exec = executor.CPU()
	}

	idx, err := NewIndex(with)
	if err != nil {
		return nil, fmt.Errorf("select by location: %w", err)
	}
	keep := make([]bool, from.Len())
	chunks := executor.Chunks(from.Len(), exec.Workers())
	errs := make([]error, len(chunks))
	exec.Run(ctx, len(chunks), func(ctx context.Context, c int) {
		for i := chunks[c][0]; i < chunks[c][1]; i++ {
			if ctx.Err() != nil {
				return
			}
			ok, err := matchesAny(idx, from.Features[i], pred)
			if err != nil {
				errs[c] = err
				return
			}
			keep[i] = ok
		}
	})
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("select by location: %w", err)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("select by location: %w", err)
	}

	crs := from.CRS
	if crs == "" {
		crs = with.CRS
	}
	out := &geo.Layer{CRS: crs}
	for i, f := range from.Features {
		if keep[i] {
			out.Features = append(out.Features, f)
		}
	}
	return out, nil
}

func matchesAny(idx *Index, f geo.Feature, pred Predicate) (bool, error) {
	if f.Geometry == nil {
		return false, nil
	}
	left, err := newShape(f)
	if err != nil {
		return false, err
	}
	for _, pos := range idx.Candidates(f.Bound()) {
		ok, err := idx.test(pred, left, pos)
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}
