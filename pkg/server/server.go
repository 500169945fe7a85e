// Package server provides a public API for embedding the selection results
// server in another application.
package server

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-chi/chi/v5"

	"github.com/robert-malhotra/stac-tile-selector/internal/api"
	"github.com/robert-malhotra/stac-tile-selector/internal/results"
)

// DefaultMaxCloudCover is the cloud cover bound whose results are served when
// none is given.
const DefaultMaxCloudCover = 15.0

// Options configures the results server.
type Options struct {
	// Dir is the output directory of a selection run (required).
	Dir string

	// MaxCloudCover selects which saved run to serve.
	// Default: 15
	MaxCloudCover float64

	// RequireResults makes New fail when Dir holds no results. Otherwise the
	// server starts empty and answers 503 until Reload finds them.
	RequireResults bool

	// Logger is the slog logger to use.
	// Default: slog.Default()
	Logger *slog.Logger
}

// Server serves the saved results of a selection run.
type Server struct {
	opts     Options
	handlers *api.Handlers
	router   chi.Router
}

// New creates a new results server with the given options.
func New(opts Options) (*Server, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("results directory is required")
	}
	if opts.MaxCloudCover == 0 {
		opts.MaxCloudCover = DefaultMaxCloudCover
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	s := &Server{opts: opts}
	s.handlers = api.NewHandlers(nil, opts.Logger)
	s.router = api.NewRouter(s.handlers, opts.Logger)

	if err := s.Reload(); err != nil {
		if opts.RequireResults || !errors.Is(err, results.ErrNoResults) {
			return nil, err
		}
		opts.Logger.Warn("no results loaded, serving empty",
			"dir", opts.Dir,
			"error", err,
		)
	}
	return s, nil
}

// Reload reads the saved results again and swaps them in. On error the
// previously loaded results keep being served.
func (s *Server) Reload() error {
	snap, err := results.Load(s.opts.Dir, s.opts.MaxCloudCover)
	if err != nil {
		return err
	}
	s.handlers.SetSnapshot(snap)

	s.opts.Logger.Info("loaded results",
		"dir", s.opts.Dir,
		"max_cloud_cover", s.opts.MaxCloudCover,
		"found", len(snap.Products),
		"incomplete", len(snap.Incomplete),
		"errors", len(snap.Errors),
	)
	return nil
}

// Router returns the chi.Router for mounting in another application.
func (s *Server) Router() chi.Router {
	return s.router
}
