package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func TestRecovery_Panics(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  string
	}{
		{"error", http.ErrAbortHandler, http.ErrAbortHandler.Error()},
		{"string", "something went wrong", "something went wrong"},
		{"int", 42, "42"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var logBuf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&logBuf, nil))

			handler := Recovery(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				panic(tt.value)
			}))

			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest("GET", "/tiles", nil))

			if w.Code != http.StatusInternalServerError {
				t.Errorf("Expected status 500, got %d", w.Code)
			}

			var resp STACError
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("Failed to parse response: %v", err)
			}
			if resp.Code != ErrCodeServerError {
				t.Errorf("Expected code %q, got %q", ErrCodeServerError, resp.Code)
			}

			logOutput := logBuf.String()
			if !strings.Contains(logOutput, "panic recovered") || !strings.Contains(logOutput, tt.want) {
				t.Errorf("Expected log to contain the panic value %q, got: %s", tt.want, logOutput)
			}
			if !strings.Contains(logOutput, "path=/tiles") {
				t.Errorf("Expected log to contain path, got: %s", logOutput)
			}
		})
	}
}

func TestRecovery_NoPanic(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	handler := Recovery(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))

	if w.Code != http.StatusOK || w.Body.String() != "OK" {
		t.Errorf("Expected 200 OK, got %d %q", w.Code, w.Body.String())
	}
}

func TestRecovery_IncludesRequestIDInResponse(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	handler := middleware.RequestID(Recovery(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("test panic")
	})))

	req := httptest.NewRequest("GET", "/tiles", nil)
	req.Header.Set("X-Request-Id", "test-req-123")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	var resp STACError
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}

	if resp.RequestID != "test-req-123" {
		t.Errorf("Expected request_id 'test-req-123' in error response, got %s", resp.RequestID)
	}
}

func TestRequestLogger(t *testing.T) {
	var logBuf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logBuf, nil))

	handler := middleware.RequestID(RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})))

	req := httptest.NewRequest("GET", "/tiles/10SEG?status=found", nil)
	req.Header.Set("User-Agent", "test-agent")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	logOutput := logBuf.String()
	for _, field := range []string{
		"http request",
		"request_id=",
		"method=GET",
		"path=/tiles/10SEG",
		"route=unmatched",
		"status=404",
		"duration=",
		"user_agent=test-agent",
	} {
		if !strings.Contains(logOutput, field) {
			t.Errorf("Expected log to contain '%s', got: %s", field, logOutput)
		}
	}
}

func TestRequestLogger_RoutePattern(t *testing.T) {
	var logBuf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logBuf, nil))

	r := chi.NewRouter()
	r.Use(RequestLogger(logger))
	r.Get("/tiles/{tileId}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/tiles/10SEG", nil))

	if !strings.Contains(logBuf.String(), "route=/tiles/{tileId}") {
		t.Errorf("Expected log to contain the route pattern, got: %s", logBuf.String())
	}
}

func TestRequestIDResponse(t *testing.T) {
	handler := middleware.RequestID(RequestIDResponse(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	if w.Header().Get(RequestIDHeader) == "" {
		t.Error("Expected X-Request-ID header to be set in response")
	}

	req := httptest.NewRequest("GET", "/health", nil)
	req.Header.Set("X-Request-Id", "custom-request-id-123")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if got := w.Header().Get(RequestIDHeader); got != "custom-request-id-123" {
		t.Errorf("Expected X-Request-ID to be 'custom-request-id-123', got %s", got)
	}
}
