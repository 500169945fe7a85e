// Package results persists the outcome of a selection run and loads it back
// for serving.
package results

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/paulmach/orb/geojson"

	"github.com/robert-malhotra/stac-tile-selector/internal/geoio"
	"github.com/robert-malhotra/stac-tile-selector/internal/resolve"
	"github.com/robert-malhotra/stac-tile-selector/internal/search"
)

// ErrNoResults is returned by Load when the directory holds no data file for
// the requested cloud cover.
var ErrNoResults = errors.New("no results")

// Files names the output files for one cloud cover bound.
type Files struct {
	Data       string
	Incomplete string
	Errors     string
	Selection  string
}

// FilesFor returns the output paths in dir for maxCloudCover.
func FilesFor(dir string, maxCloudCover float64) Files {
	cc := strconv.FormatFloat(maxCloudCover, 'f', -1, 64)
	return Files{
		Data:       filepath.Join(dir, "data_lt"+cc+"cc.json"),
		Incomplete: filepath.Join(dir, "incomplete_lt"+cc+"cc.json"),
		Errors:     filepath.Join(dir, "errors_lt"+cc+"cc.json"),
		Selection:  filepath.Join(dir, "best_products_lt"+cc+"cc.geojson"),
	}
}

type incompleteDoc struct {
	Incomplete []string `json:"incomplete"`
}

type errorsDoc struct {
	Errors []string `json:"errors"`
}

// Save writes the resolve buckets and, when selection is not nil, the
// per-feature selection. The incomplete and errors files are only written when
// their bucket is not empty; a stale one from an earlier run is removed.
func Save(dir string, maxCloudCover float64, res *resolve.Result, selection *geojson.FeatureCollection) (Files, error) {
	files := FilesFor(dir, maxCloudCover)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return files, fmt.Errorf("create output directory: %w", err)
	}

	index := res.Index
	if index == nil {
		index = resolve.ResultIndex{}
	}
	if err := writeJSON(files.Data, index); err != nil {
		return files, err
	}
	if err := writeOrRemove(files.Incomplete, len(res.Incomplete) > 0, incompleteDoc{Incomplete: res.Incomplete}); err != nil {
		return files, err
	}
	if err := writeOrRemove(files.Errors, len(res.Errors) > 0, errorsDoc{Errors: res.Errors}); err != nil {
		return files, err
	}
	if selection != nil {
		if err := geoio.WriteFile(files.Selection, selection); err != nil {
			return files, err
		}
	}
	return files, nil
}

func writeOrRemove(path string, write bool, v any) error {
	if write {
		return writeJSON(path, v)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale %s: %w", path, err)
	}
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// Snapshot is a read-only view of a saved run.
type Snapshot struct {
	MaxCloudCover float64
	Products      resolve.ResultIndex
	Incomplete    []string
	Errors        []string
	// Selection is nil when the run wrote no selection file.
	Selection *geojson.FeatureCollection

	features map[string]*geojson.Feature
}

// Load reads the files written by Save for maxCloudCover.
func Load(dir string, maxCloudCover float64) (*Snapshot, error) {
	files := FilesFor(dir, maxCloudCover)

	snap := &Snapshot{MaxCloudCover: maxCloudCover}
	if err := readJSON(files.Data, &snap.Products); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w in %s for max cloud cover %v", ErrNoResults, dir, maxCloudCover)
		}
		return nil, err
	}
	if snap.Products == nil {
		snap.Products = resolve.ResultIndex{}
	}

	var inc incompleteDoc
	if err := readOptional(files.Incomplete, &inc); err != nil {
		return nil, err
	}
	var errs errorsDoc
	if err := readOptional(files.Errors, &errs); err != nil {
		return nil, err
	}
	snap.Incomplete = inc.Incomplete
	snap.Errors = errs.Errors
	slices.Sort(snap.Incomplete)
	slices.Sort(snap.Errors)

	data, err := os.ReadFile(files.Selection)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read selection: %w", err)
	default:
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return nil, fmt.Errorf("decode selection: %w", err)
		}
		snap.Selection = fc
		snap.features = make(map[string]*geojson.Feature, len(fc.Features))
		for _, f := range fc.Features {
			if id, ok := f.Properties[geoio.FeatureIDProperty].(string); ok {
				snap.features[id] = f
			}
		}
	}
	return snap, nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return nil
}

func readOptional(path string, v any) error {
	if err := readJSON(path, v); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// TileStatus is the saved outcome of one tile.
type TileStatus struct {
	TileID  string          `json:"tile_id"`
	Status  string          `json:"status"`
	Product *search.Product `json:"product,omitempty"`
}

// Tile looks up the outcome of tileID.
func (s *Snapshot) Tile(tileID string) (TileStatus, bool) {
	if p, ok := s.Products[tileID]; ok {
		return TileStatus{TileID: tileID, Status: search.Found.String(), Product: &p}, true
	}
	if _, ok := slices.BinarySearch(s.Incomplete, tileID); ok {
		return TileStatus{TileID: tileID, Status: search.Incomplete.String()}, true
	}
	if _, ok := slices.BinarySearch(s.Errors, tileID); ok {
		return TileStatus{TileID: tileID, Status: search.Error.String()}, true
	}
	return TileStatus{}, false
}

// TileIDs returns the ids of every found tile, sorted.
func (s *Snapshot) TileIDs() []string {
	ids := make([]string, 0, len(s.Products))
	for id := range s.Products {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Feature looks up a selection feature by its feature_id property.
func (s *Snapshot) Feature(id string) (*geojson.Feature, bool) {
	f, ok := s.features[id]
	return f, ok
}
