package spatial

import (
	"context"
	"errors"
	"fmt"

	"github.com/robert-malhotra/stac-tile-selector/internal/executor"
	"github.com/robert-malhotra/stac-tile-selector/internal/geo"
)

// Assignment maps a fine feature id to the ids of the coarse features it
// matched, in coarse layer order. Every fine id is present; a feature with no
// match maps to an empty slice.
type Assignment map[string][]string

// Assign relates each fine feature to the coarse features satisfying pred. A
// nil exec runs on every CPU.
func Assign(ctx context.Context, fine, coarse *geo.Layer, pred Predicate, exec executor.Executor) (Assignment, error) {
	if err := checkCRS(fine, coarse); err != nil {
		return nil, err
	}
	if exec == nil {
		exec = executor.CPU()
	}

	idx, err := NewIndex(coarse)
	if err != nil {
		return nil, fmt.Errorf("assign features: %w", err)
	}
	matches := make([][]string, fine.Len())
	chunks := executor.Chunks(fine.Len(), exec.Workers())
	errs := make([]error, len(chunks))
	exec.Run(ctx, len(chunks), func(ctx context.Context, c int) {
		for i := chunks[c][0]; i < chunks[c][1]; i++ {
			if ctx.Err() != nil {
				return
			}
			m, err := match(idx, fine.Features[i], pred)
			if err != nil {
				errs[c] = err
				return
			}
			matches[i] = m
		}
	})
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("assign features: %w", err)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("assign features: %w", err)
	}

	out := make(Assignment, fine.Len())
	for i, f := range fine.Features {
		out[f.ID] = matches[i]
	}
	return out, nil
}

func match(idx *Index, f geo.Feature, pred Predicate) ([]string, error) {
	ids := []string{}
	if f.Geometry == nil {
		return ids, nil
	}
	left, err := newShape(f)
	if err != nil {
		return nil, err
	}
	for _, pos := range idx.Candidates(f.Bound()) {
		ok, err := idx.test(pred, left, pos)
		if err != nil {
			return nil, err
		}
		if ok {
			ids = append(ids, idx.Feature(pos).ID)
		}
	}
	return ids, nil
}
