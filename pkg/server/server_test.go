package server

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/robert-malhotra/stac-tile-selector/internal/resolve"
	"github.com/robert-malhotra/stac-tile-selector/internal/results"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func status(s *Server, path string) int {
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w.Code
}

func TestNew_RequiresDir(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Error("expected error without a results directory")
	}
}

func TestNew_EmptyDir(t *testing.T) {
	dir := t.TempDir()

	if _, err := New(Options{Dir: dir, RequireResults: true, Logger: quietLogger()}); !errors.Is(err, results.ErrNoResults) {
		t.Fatalf("expected ErrNoResults, got %v", err)
	}

	s, err := New(Options{Dir: dir, Logger: quietLogger()})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if code := status(s, "/tiles"); code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 before results exist, got %d", code)
	}
	if code := status(s, "/health"); code != http.StatusOK {
		t.Errorf("expected 200 from health, got %d", code)
	}
}

func TestServer_Reload(t *testing.T) {
	dir := t.TempDir()
	s, err := New(Options{Dir: dir, MaxCloudCover: 20, Logger: quietLogger()})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	res := &resolve.Result{Index: resolve.ResultIndex{"10SEG": {ID: "S2A_10SEG", CloudCover: 4}}}
	if _, err := results.Save(dir, 20, res, nil); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := s.Reload(); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}

	if code := status(s, "/tiles/10SEG"); code != http.StatusOK {
		t.Errorf("expected 200 after reload, got %d", code)
	}
	if code := status(s, "/tiles/10SFG"); code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown tile, got %d", code)
	}
}
