package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"pollenmap/pkg/version"
)

// NewServer creates and configures the HTTP server.
// shutdown is called after POST /api/shutdown has been answered.
func NewServer(addr string, forecastH *ForecastHandler, playbackH *PlaybackHandler, stats *StatsHandler, hub *Hub, shutdown func()) *http.Server {
	mux := http.NewServeMux()

	// 1. Health and version
	mux.HandleFunc("GET /health", handleHealth)
	mux.HandleFunc("GET /api/version", handleVersion)

	// 2. Forecast session
	mux.HandleFunc("GET /api/forecast/state", forecastH.HandleState)
	mux.HandleFunc("GET /api/forecast/areas", forecastH.HandleAreas)
	mux.HandleFunc("GET /api/forecast/areas/at", forecastH.HandleAreaAt)
	mux.HandleFunc("POST /api/forecast/allergen", forecastH.HandleAllergen)
	mux.HandleFunc("POST /api/forecast/interval", forecastH.HandleInterval)
	mux.HandleFunc("POST /api/forecast/retry", forecastH.HandleRetry)
	mux.HandleFunc("POST /api/forecast/reload", forecastH.HandleReload)

	// 3. Playback
	if playbackH != nil {
		mux.HandleFunc("POST /api/playback/play", playbackH.HandlePlay)
		mux.HandleFunc("POST /api/playback/pause", playbackH.HandlePause)
		mux.HandleFunc("GET /api/playback/status", playbackH.HandleStatus)
	}

	// 4. Diagnostics
	mux.Handle("GET /api/stats", stats)
	mux.HandleFunc("GET /api/log/latest", handleLatestLog)
	mux.HandleFunc("GET /api/log/recent", handleRecentLog)

	// 5. Notification stream
	if hub != nil {
		mux.Handle("GET /api/events", hub)
	}

	// 6. Shutdown
	mux.HandleFunc("POST /api/shutdown", func(w http.ResponseWriter, r *http.Request) {
		slog.Info("Graceful shutdown initiated via API")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("Shutting down...")); err != nil {
			slog.Error("Failed to write shutdown response", "error", err)
		}
		// Let the response flush first
		go func() {
			time.Sleep(100 * time.Millisecond)
			if shutdown != nil {
				shutdown()
			}
		}()
	})

	return &http.Server{
		Addr:        addr,
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: /api/events connections are long lived and set their own deadlines.
		IdleTimeout: 60 * time.Second,
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		slog.Error("Failed to write health response", "error", err)
	}
}

func handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if _, err := fmt.Fprintf(w, `{"version": "%s"}`, version.Version); err != nil {
		slog.Error("Failed to write version response", "error", err)
	}
}
