// Package resolve runs the best product search for many coarse tiles at once
// and sorts the outcomes into found, incomplete and error buckets.
package resolve

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/robert-malhotra/stac-tile-selector/internal/catalog"
	"github.com/robert-malhotra/stac-tile-selector/internal/executor"
	"github.com/robert-malhotra/stac-tile-selector/internal/logger"
	"github.com/robert-malhotra/stac-tile-selector/internal/observability"
	"github.com/robert-malhotra/stac-tile-selector/internal/search"
)

// DefaultConcurrency is the number of tiles searched at the same time.
const DefaultConcurrency = 4

// Warning texts logged when buckets other than found are not empty.
const (
	WarnIncomplete = "some of the input Sentinel 2 tiles do not have products covering the entire tile; " +
		"these tiles will need to be handled differently (ex. creating a mosaic with multiple products)"
	WarnErrors = "products for some Sentinel 2 tiles could not be found; " +
		"consider either extending date range input or max cloud cover"
)

// ResultIndex maps a tile id to its winning product. It only holds Found tiles.
type ResultIndex map[string]search.Product

// Result holds the three disjoint outcome buckets of a resolve run.
type Result struct {
	Index      ResultIndex
	Incomplete []string
	Errors     []string
	// Reasons maps incomplete and error tile ids to the reason reported.
	Reasons map[string]string
}

// Len returns the number of distinct tiles in the result.
func (r *Result) Len() int {
	return len(r.Index) + len(r.Incomplete) + len(r.Errors)
}

// Options configures Resolve.
type Options struct {
	// Concurrency bounds the number of simultaneous tile searches when no
	// Executor is given.
	Concurrency int
	// Deadline, when positive, bounds the whole run. Tiles not finished in time
	// are reported as errors.
	Deadline time.Duration
	Executor executor.Executor
	Logger   *slog.Logger
}

// Resolve searches every distinct tile of tileIDs with s. A failing tile never
// stops the others; every tile ends up in exactly one bucket.
func Resolve(ctx context.Context, s catalog.Searcher, tileIDs []string, p search.Params, opts Options) *Result {
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if p.Logger == nil {
		p.Logger = log
	}
	exec := opts.Executor
	if exec == nil {
		n := opts.Concurrency
		if n <= 0 {
			n = DefaultConcurrency
		}
		exec = executor.NewPool(n)
	}
	if opts.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Deadline)
		defer cancel()
	}

	tiles, blank := distinct(tileIDs)
	log.InfoContext(ctx, "searching best products",
		slog.Int("tiles", len(tiles)),
		slog.Int("workers", exec.Workers()),
		slog.Int("date_ranges", len(p.DateRanges)),
		slog.Float64("max_cloud_cover", p.MaxCloudCover),
	)

	outcomes := make(chan search.Outcome, len(tiles))
	exec.Run(ctx, len(tiles), func(ctx context.Context, i int) {
		outcomes <- search.SearchTile(logger.WithTileID(ctx, tiles[i]), s, tiles[i], p)
	})
	close(outcomes)

	res := collect(outcomes, tiles, ctx.Err())
	if blank {
		observability.IncTileOutcome(search.Error.String())
		res.Errors = append([]string{""}, res.Errors...)
		res.Reasons[""] = "empty tile id"
	}

	log.InfoContext(ctx, "best product search finished",
		slog.Int("found", len(res.Index)),
		slog.Int("incomplete", len(res.Incomplete)),
		slog.Int("errors", len(res.Errors)),
	)
	if len(res.Incomplete) > 0 {
		log.WarnContext(ctx, WarnIncomplete, slog.Any("tiles", res.Incomplete))
	}
	if len(res.Errors) > 0 {
		log.WarnContext(ctx, WarnErrors, slog.Any("tiles", res.Errors))
	}
	return res
}

// collect folds outcomes into a Result. Tiles without an outcome, skipped
// because ctx ended, become errors.
func collect(outcomes <-chan search.Outcome, tiles []string, ctxErr error) *Result {
	res := &Result{
		Index:   make(ResultIndex),
		Reasons: make(map[string]string),
	}
	done := make(map[string]bool, len(tiles))
	for o := range outcomes {
		done[o.TileID] = true
		observability.IncTileOutcome(o.Status.String())
		switch o.Status {
		case search.Found:
			res.Index[o.TileID] = o.Product
		case search.Incomplete:
			res.Incomplete = append(res.Incomplete, o.TileID)
			res.Reasons[o.TileID] = o.Reason
		default:
			res.Errors = append(res.Errors, o.TileID)
			res.Reasons[o.TileID] = o.Reason
		}
	}
	for _, t := range tiles {
		if done[t] {
			continue
		}
		observability.IncTileOutcome(search.Error.String())
		res.Errors = append(res.Errors, t)
		res.Reasons[t] = fmt.Sprintf("search not run: %v", ctxErr)
	}
	slices.Sort(res.Incomplete)
	slices.Sort(res.Errors)
	return res
}

// distinct returns the searchable ids in first seen order and whether an empty
// id was submitted. Empty ids are never searched.
func distinct(ids []string) ([]string, bool) {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	blank := false
	for _, id := range ids {
		if id == "" {
			blank = true
			continue
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out, blank
}
