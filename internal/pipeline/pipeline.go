// Package pipeline runs a complete selection: it builds the fine grid over the
// region, assigns grid cells to catalog tiles, finds the best product of every
// tile and hands each cell the best product among its tiles.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/robert-malhotra/stac-tile-selector/internal/catalog"
	"github.com/robert-malhotra/stac-tile-selector/internal/config"
	"github.com/robert-malhotra/stac-tile-selector/internal/daterange"
	"github.com/robert-malhotra/stac-tile-selector/internal/executor"
	"github.com/robert-malhotra/stac-tile-selector/internal/geo"
	"github.com/robert-malhotra/stac-tile-selector/internal/geoio"
	"github.com/robert-malhotra/stac-tile-selector/internal/grid"
	"github.com/robert-malhotra/stac-tile-selector/internal/logger"
	"github.com/robert-malhotra/stac-tile-selector/internal/propagate"
	"github.com/robert-malhotra/stac-tile-selector/internal/resolve"
	"github.com/robert-malhotra/stac-tile-selector/internal/results"
	"github.com/robert-malhotra/stac-tile-selector/internal/retry"
	"github.com/robert-malhotra/stac-tile-selector/internal/search"
	"github.com/robert-malhotra/stac-tile-selector/internal/spatial"
)

// Report summarizes a finished run.
type Report struct {
	RunID      string
	DateRanges []string
	// Cells is the number of grid cells built over the bounds, Features the
	// number kept after the region filter.
	Cells     int
	Features  int
	Tiles     int
	Result    *resolve.Result
	Selection propagate.Selection
	Files     results.Files
	Duration  time.Duration
}

// NewSearcher builds the catalog client described by cfg.
func NewSearcher(cfg config.CatalogConfig, log *slog.Logger) (*catalog.Client, error) {
	if log == nil {
		log = logger.Discard()
	}
	kind, err := catalog.ParseKind(cfg.Name)
	if err != nil {
		return nil, err
	}
	mode, err := catalog.ParseFilterMode(cfg.FilterMode)
	if err != nil {
		return nil, err
	}
	return catalog.NewClient(cfg.BaseURL, cfg.Timeout).
		WithProfile(catalog.ProfileFor(kind)).
		WithFilterMode(mode).
		WithMaxPages(cfg.MaxPages).
		WithLogger(log), nil
}

// RetryPolicy converts the search settings to a retry policy.
func RetryPolicy(cfg config.SearchConfig) retry.Policy {
	p := retry.Policy{
		MaxAttempts: cfg.MaxAttempts,
		Delay:       cfg.RetryDelay,
		Backoff:     retry.Constant,
		Retryable:   catalog.IsTransient,
	}
	if cfg.RetryBackoff == "exponential" {
		p.Backoff = retry.Exponential
	}
	return p
}

// DateRanges expands the configured period.
func DateRanges(cfg config.PeriodConfig) ([]string, error) {
	return daterange.ForPeriod(cfg.StartYear, cfg.EndYear, cfg.StartMonth, cfg.EndMonth)
}

// Run executes a selection with s and writes the outputs to cfg.Output.Dir.
// Only invalid inputs and output failures end the run with an error; tiles
// that could not be resolved are reported in the result buckets.
func Run(ctx context.Context, cfg *config.Config, s catalog.Searcher, log *slog.Logger) (*Report, error) {
	if log == nil {
		log = logger.Discard()
	}
	start := time.Now()
	rep := &Report{RunID: uuid.NewString()}
	ctx = logger.WithRunID(ctx, rep.RunID)

	if err := cfg.ValidateInputs(); err != nil {
		return nil, err
	}
	pred, err := spatial.ParsePredicate(cfg.Grid.Predicate)
	if err != nil {
		return nil, err
	}
	rep.DateRanges, err = DateRanges(cfg.Period)
	if err != nil {
		return nil, err
	}
	if len(rep.DateRanges) == 0 {
		return nil, fmt.Errorf("period %d-%d with months %d-%d yields no date range",
			cfg.Period.StartYear, cfg.Period.EndYear, cfg.Period.StartMonth, cfg.Period.EndMonth)
	}

	tiles, err := geoio.ReadFile(cfg.Input.TileGrid, geoio.ReadOptions{
		IDProperty: cfg.Input.TileProperty,
		CRS:        cfg.Grid.CRS,
	})
	if err != nil {
		return nil, fmt.Errorf("load tile grid: %w", err)
	}
	rep.Tiles = tiles.Len()

	var region *geo.Layer
	if cfg.Input.Region != "" {
		region, err = geoio.ReadFile(cfg.Input.Region, geoio.ReadOptions{CRS: cfg.Grid.CRS})
		if err != nil {
			return nil, fmt.Errorf("load region: %w", err)
		}
	}
	bbox, err := bounds(cfg.Grid, region)
	if err != nil {
		return nil, err
	}

	cpu := executor.CPU()
	if cfg.Grid.Workers > 0 {
		cpu = executor.NewPool(cfg.Grid.Workers)
	}

	log.InfoContext(ctx, "building grid",
		slog.Any("bbox", bbox.Slice()),
		slog.Float64("cell_size", cfg.Grid.CellSize),
		slog.String("crs", cfg.Grid.CRS),
		slog.Int("workers", cpu.Workers()),
	)
	cells, err := grid.BuildParallel(ctx, bbox, cfg.Grid.CellSize, cfg.Grid.CRS, cpu)
	if err != nil {
		return nil, err
	}
	rep.Cells = cells.Len()

	fine := cells
	if region != nil {
		fine, err = spatial.SelectByLocation(ctx, cells, region, spatial.Intersects, cpu)
		if err != nil {
			return nil, fmt.Errorf("select cells in region: %w", err)
		}
	}
	rep.Features = fine.Len()
	log.InfoContext(ctx, "grid ready",
		slog.Int("cells", rep.Cells),
		slog.Int("features", rep.Features),
	)

	assignment, err := spatial.Assign(ctx, fine, tiles, pred, cpu)
	if err != nil {
		return nil, err
	}

	params := search.Params{
		DateRanges:    rep.DateRanges,
		Collection:    cfg.Catalog.Collection,
		MaxCloudCover: cfg.Search.MaxCloudCover,
		MaxNoData:     cfg.Search.MaxNoData,
		Limit:         cfg.Catalog.Limit,
		MaxItems:      cfg.Catalog.MaxItems,
		Retry:         RetryPolicy(cfg.Search),
		Logger:        log,
	}
	if c, ok := s.(interface{ Profile() catalog.Profile }); ok {
		params.CloudCoverKey = c.Profile().CloudCoverProperty
		params.NoDataKey = c.Profile().NoDataProperty
	}
	rep.Result = resolve.Resolve(ctx, s, tiles.IDs(), params, resolve.Options{
		Concurrency: cfg.Search.Concurrency,
		Deadline:    cfg.Search.Deadline,
		Logger:      log,
	})
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("run interrupted: %w", err)
	}

	rep.Selection = propagate.Propagate(assignment, rep.Result.Index, log)

	selection := geoio.SelectionCollection(fine, assignment, rep.Selection, geoio.Columns{
		Tiles:   cfg.Output.TilesColumn,
		Product: cfg.Output.ProductColumn,
	})
	rep.Files, err = results.Save(cfg.Output.Dir, cfg.Search.MaxCloudCover, rep.Result, selection)
	if err != nil {
		return nil, fmt.Errorf("save results: %w", err)
	}
	if cfg.Output.WriteGrid {
		name := "grid_" + strconv.FormatFloat(cfg.Grid.CellSize, 'f', -1, 64) + "m.geojson"
		if err := geoio.WriteFile(filepath.Join(cfg.Output.Dir, name), geoio.LayerCollection(fine)); err != nil {
			return nil, fmt.Errorf("save grid: %w", err)
		}
	}

	rep.Duration = time.Since(start)
	counts := rep.Selection.Counts()
	log.InfoContext(ctx, "selection finished",
		slog.Int("features", rep.Features),
		slog.Int("selected", counts[propagate.GapNone]),
		slog.Int("partial", counts[propagate.GapPartial]),
		slog.Int("no_coverage", counts[propagate.GapNoCoverage]),
		slog.String("output_dir", cfg.Output.Dir),
		slog.Duration("duration", rep.Duration),
	)
	return rep, nil
}

// bounds returns the configured bbox, or the region's total bounds.
func bounds(cfg config.GridConfig, region *geo.Layer) (geo.BBox, error) {
	if len(cfg.BBox) > 0 {
		return geo.BBoxFromSlice(cfg.BBox)
	}
	b, ok := region.Bounds()
	if !ok {
		return geo.BBox{}, fmt.Errorf("region has no features")
	}
	return b, nil
}
