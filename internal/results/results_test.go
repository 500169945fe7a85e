package results

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"

	"github.com/robert-malhotra/stac-tile-selector/internal/geo"
	"github.com/robert-malhotra/stac-tile-selector/internal/geoio"
	"github.com/robert-malhotra/stac-tile-selector/internal/propagate"
	"github.com/robert-malhotra/stac-tile-selector/internal/resolve"
	"github.com/robert-malhotra/stac-tile-selector/internal/search"
	"github.com/robert-malhotra/stac-tile-selector/internal/spatial"
)

func testResult() *resolve.Result {
	return &resolve.Result{
		Index: resolve.ResultIndex{
			"10SEG": {ID: "S2A_10SEG", CloudCover: 3.5, NoData: 0.1},
		},
		Incomplete: []string{"10SFG"},
		Errors:     []string{"11SKA", "10SEH"},
	}
}

func TestFilesFor(t *testing.T) {
	f := FilesFor("out", 15)
	if f.Data != filepath.Join("out", "data_lt15cc.json") {
		t.Errorf("unexpected data file %s", f.Data)
	}
	if f.Incomplete != filepath.Join("out", "incomplete_lt15cc.json") {
		t.Errorf("unexpected incomplete file %s", f.Incomplete)
	}
	if f.Errors != filepath.Join("out", "errors_lt15cc.json") {
		t.Errorf("unexpected errors file %s", f.Errors)
	}
	if g := FilesFor("out", 7.5); g.Data != filepath.Join("out", "data_lt7.5cc.json") {
		t.Errorf("unexpected data file %s", g.Data)
	}
}

func TestSave_Formats(t *testing.T) {
	dir := t.TempDir()
	files, err := Save(dir, 15, testResult(), nil)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	var data map[string]search.Product
	readFile(t, files.Data, &data)
	if data["10SEG"].ID != "S2A_10SEG" || data["10SEG"].CloudCover != 3.5 {
		t.Errorf("unexpected data %v", data)
	}

	var inc map[string][]string
	readFile(t, files.Incomplete, &inc)
	if len(inc["incomplete"]) != 1 || inc["incomplete"][0] != "10SFG" {
		t.Errorf("unexpected incomplete %v", inc)
	}

	var errs map[string][]string
	readFile(t, files.Errors, &errs)
	if len(errs["errors"]) != 2 {
		t.Errorf("unexpected errors %v", errs)
	}

	if _, err := os.Stat(files.Selection); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected no selection file, got %v", err)
	}
}

func TestSave_EmptyBucketsRemoveStaleFiles(t *testing.T) {
	dir := t.TempDir()
	if _, err := Save(dir, 15, testResult(), nil); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	files, err := Save(dir, 15, &resolve.Result{Index: resolve.ResultIndex{}}, nil)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	for _, p := range []string{files.Incomplete, files.Errors} {
		if _, err := os.Stat(p); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("expected %s to be removed", filepath.Base(p))
		}
	}
	var data map[string]any
	readFile(t, files.Data, &data)
	if len(data) != 0 {
		t.Errorf("expected empty data, got %v", data)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	layer := &geo.Layer{CRS: "EPSG:5070", Features: []geo.Feature{
		{ID: "f1", Geometry: orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{1, 1}}.ToPolygon()},
		{ID: "f2", Geometry: orb.Bound{Min: orb.Point{1, 0}, Max: orb.Point{2, 1}}.ToPolygon()},
	}}
	a := spatial.Assignment{"f1": {"10SEG"}, "f2": {"10SFG"}}
	sel := propagate.Selection{"f1": {ProductID: "S2A_10SEG", TileID: "10SEG"}, "f2": {Reason: propagate.GapPartial}}

	if _, err := Save(dir, 15, testResult(), geoio.SelectionCollection(layer, a, sel, geoio.Columns{})); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	snap, err := Load(dir, 15)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	tests := []struct {
		tile   string
		status string
		found  bool
	}{
		{"10SEG", "found", true},
		{"10SFG", "incomplete", true},
		{"10SEH", "error", true},
		{"11SKA", "error", true},
		{"99XXX", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.tile, func(t *testing.T) {
			st, ok := snap.Tile(tt.tile)
			if ok != tt.found || st.Status != tt.status {
				t.Errorf("expected %q/%v, got %q/%v", tt.status, tt.found, st.Status, ok)
			}
			if tt.status == "found" && (st.Product == nil || st.Product.ID != "S2A_10SEG") {
				t.Errorf("expected product, got %+v", st.Product)
			}
		})
	}

	if ids := snap.TileIDs(); len(ids) != 1 || ids[0] != "10SEG" {
		t.Errorf("expected [10SEG], got %v", ids)
	}
	f, ok := snap.Feature("f1")
	if !ok {
		t.Fatal("expected feature f1")
	}
	if f.Properties[geoio.DefaultProductProperty] != "S2A_10SEG" {
		t.Errorf("unexpected properties %v", f.Properties)
	}
	if _, ok := snap.Feature("nope"); ok {
		t.Error("expected unknown feature to be missing")
	}
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(t.TempDir(), 15)
	if !errors.Is(err, ErrNoResults) {
		t.Errorf("expected ErrNoResults, got %v", err)
	}
}

func readFile(t *testing.T, path string, v any) {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
}
