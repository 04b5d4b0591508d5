package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRun(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/ajax/get_forecasts"):
			_, _ = w.Write([]byte(`{"allergens":["A"],"interval":[0,1],"intervalPath":{"0":"a","1":"b"},"root":"r"}`))
		default:
			_, _ = w.Write([]byte(`[]`))
		}
	}))
	defer api.Close()

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "pollenmap.yaml")
	tempConfig := `
api:
    base_url: ` + api.URL + `
server:
    address: localhost:0  # 0 lets OS choose free port
playback:
    period: 50ms
    autoplay: true
log:
    server:
        path: "` + filepath.Join(dir, "logs", "server.log") + `"
        level: "debug"
    requests:
        path: "` + filepath.Join(dir, "logs", "requests.log") + `"
        level: "info"
`
	if err := os.WriteFile(cfgPath, []byte(tempConfig), 0o644); err != nil {
		t.Fatalf("Failed to write temp config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	err := run(ctx, cfgPath)
	assert.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "logs", "server.log"))
	assert.NoError(t, err)
	assert.Contains(t, string(data), "Manifest applied")
}

func TestRun_BadConfig(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "pollenmap.yaml")
	if err := os.WriteFile(cfgPath, []byte("api:\n  base_url: nope\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	assert.Error(t, run(context.Background(), cfgPath))
}

func TestLoggingMiddleware(t *testing.T) {
	called := false
	h := loggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", http.NoBody))
	assert.True(t, called)
	assert.Equal(t, http.StatusTeapot, rec.Code)
}
