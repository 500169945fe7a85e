package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"sync/atomic"

	"github.com/go-chi/chi/v5"
	"github.com/paulmach/orb/geojson"

	"github.com/robert-malhotra/stac-tile-selector/internal/resolve"
	"github.com/robert-malhotra/stac-tile-selector/internal/results"
	"github.com/robert-malhotra/stac-tile-selector/internal/search"
)

// Page sizes of the /features endpoint.
const (
	DefaultFeatureLimit = 100
	MaxFeatureLimit     = 1000
)

// Handlers serves a loaded run. The snapshot can be swapped while serving.
type Handlers struct {
	snapshot atomic.Pointer[results.Snapshot]
	logger   *slog.Logger
}

// NewHandlers creates handlers serving snap, which may be nil until a run has
// been loaded.
func NewHandlers(snap *results.Snapshot, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{logger: logger}
	h.snapshot.Store(snap)
	return h
}

// SetSnapshot replaces the served run.
func (h *Handlers) SetSnapshot(snap *results.Snapshot) {
	h.snapshot.Store(snap)
}

func (h *Handlers) current(w http.ResponseWriter) (*results.Snapshot, bool) {
	snap := h.snapshot.Load()
	if snap == nil {
		WriteNoResults(w, "no selection results are loaded")
		return nil, false
	}
	return snap, true
}

// Health reports liveness and whether results are loaded.
// GET /health
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	response := map[string]any{
		"status":         "ok",
		"results_loaded": false,
	}
	if snap := h.snapshot.Load(); snap != nil {
		response["results_loaded"] = true
		response["max_cloud_cover"] = snap.MaxCloudCover
	}

	WriteJSON(w, http.StatusOK, response)
}

// TilesResponse lists tile outcomes.
type TilesResponse struct {
	MaxCloudCover float64              `json:"max_cloud_cover"`
	Counts        map[string]int       `json:"counts"`
	Tiles         []results.TileStatus `json:"tiles"`
}

// Tiles lists every tile outcome, optionally filtered by status.
// GET /tiles?status=found|incomplete|error
func (h *Handlers) Tiles(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.current(w)
	if !ok {
		return
	}

	filter := r.URL.Query().Get("status")
	switch filter {
	case "", search.Found.String(), search.Incomplete.String(), search.Error.String():
	default:
		WriteInvalidParameter(w, fmt.Sprintf("status must be one of found, incomplete, error; got %q", filter))
		return
	}

	ids := slices.Concat(snap.TileIDs(), snap.Incomplete, snap.Errors)
	slices.Sort(ids)

	resp := TilesResponse{
		MaxCloudCover: snap.MaxCloudCover,
		Counts: map[string]int{
			search.Found.String():      len(snap.Products),
			search.Incomplete.String(): len(snap.Incomplete),
			search.Error.String():      len(snap.Errors),
		},
		Tiles: make([]results.TileStatus, 0, len(ids)),
	}
	for _, id := range ids {
		ts, _ := snap.Tile(id)
		if filter == "" || ts.Status == filter {
			resp.Tiles = append(resp.Tiles, ts)
		}
	}

	WriteJSON(w, http.StatusOK, resp)
}

// Tile returns the outcome of one tile.
// GET /tiles/{tileId}
func (h *Handlers) Tile(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.current(w)
	if !ok {
		return
	}

	tileID := chi.URLParam(r, "tileId")
	ts, ok := snap.Tile(tileID)
	if !ok {
		WriteNotFound(w, fmt.Sprintf("tile %q not found", tileID))
		return
	}

	WriteJSON(w, http.StatusOK, ts)
}

// DiagnosticsResponse lists the tiles that need attention.
type DiagnosticsResponse struct {
	Incomplete []string `json:"incomplete"`
	Errors     []string `json:"errors"`
	Warnings   []string `json:"warnings"`
}

// Diagnostics returns the incomplete and error buckets with the warnings a run
// logs for them.
// GET /diagnostics
func (h *Handlers) Diagnostics(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.current(w)
	if !ok {
		return
	}

	resp := DiagnosticsResponse{
		Incomplete: nonNil(snap.Incomplete),
		Errors:     nonNil(snap.Errors),
		Warnings:   []string{},
	}
	if len(snap.Incomplete) > 0 {
		resp.Warnings = append(resp.Warnings, resolve.WarnIncomplete)
	}
	if len(snap.Errors) > 0 {
		resp.Warnings = append(resp.Warnings, resolve.WarnErrors)
	}

	WriteJSON(w, http.StatusOK, resp)
}

// Features returns a page of the selection layer.
// GET /features?limit=&offset=
func (h *Handlers) Features(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.current(w)
	if !ok {
		return
	}
	if snap.Selection == nil {
		WriteNotFound(w, "the loaded run has no selection layer")
		return
	}

	limit, err := intParam(r, "limit", DefaultFeatureLimit)
	if err != nil || limit < 1 {
		WriteInvalidParameter(w, "limit must be a positive integer")
		return
	}
	if limit > MaxFeatureLimit {
		limit = MaxFeatureLimit
	}
	offset, err := intParam(r, "offset", 0)
	if err != nil || offset < 0 {
		WriteInvalidParameter(w, "offset must be a non-negative integer")
		return
	}

	all := snap.Selection.Features
	start := min(offset, len(all))
	end := min(start+limit, len(all))

	page := geojson.NewFeatureCollection()
	page.Features = all[start:end]
	page.ExtraMembers = geojson.Properties{}
	for k, v := range snap.Selection.ExtraMembers {
		page.ExtraMembers[k] = v
	}
	page.ExtraMembers["numberMatched"] = len(all)
	page.ExtraMembers["numberReturned"] = len(page.Features)

	h.logger.DebugContext(r.Context(), "serving selection page",
		slog.Int("offset", start),
		slog.Int("returned", len(page.Features)),
	)

	WriteGeoJSON(w, http.StatusOK, page)
}

// Feature returns one selection feature by its feature id.
// GET /features/{featureId}
func (h *Handlers) Feature(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.current(w)
	if !ok {
		return
	}

	featureID := chi.URLParam(r, "featureId")
	f, ok := snap.Feature(featureID)
	if !ok {
		WriteNotFound(w, fmt.Sprintf("feature %q not found", featureID))
		return
	}

	WriteGeoJSON(w, http.StatusOK, f)
}

func intParam(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
