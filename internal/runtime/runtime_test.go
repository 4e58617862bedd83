package runtime

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ambiware-labs/voxforge/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func readyStatus(t *testing.T, r *Runtime) int {
	t.Helper()
	rec := httptest.NewRecorder()
	r.handleReady(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	return rec.Code
}

func TestReadinessFollowsRuntimeState(t *testing.T) {
	r := New(config.Default(), newLogger())

	if got := readyStatus(t, r); got != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 before start, got %d", got)
	}

	r.ready.Store(true)
	if got := readyStatus(t, r); got != http.StatusOK {
		t.Fatalf("expected 200 when ready with bus disabled, got %d", got)
	}

	r.ready.Store(false)
	if got := readyStatus(t, r); got != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 after shutdown, got %d", got)
	}
}

func TestHealthAlwaysOK(t *testing.T) {
	r := New(config.Default(), newLogger())
	rec := httptest.NewRecorder()
	r.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from health, got %d", rec.Code)
	}
}
