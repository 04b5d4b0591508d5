package api

import (
	"net/http"
	"time"
)

// PlaybackController starts and stops automatic interval advancement.
type PlaybackController interface {
	Play()
	Pause()
	Playing() bool
	Period() time.Duration
	Ticks() uint64
}

// PlaybackHandler serves playback control endpoints.
type PlaybackHandler struct {
	playback PlaybackController
}

// NewPlaybackHandler creates a new PlaybackHandler.
func NewPlaybackHandler(p PlaybackController) *PlaybackHandler {
	return &PlaybackHandler{playback: p}
}

// PlaybackStatusResponse represents the scheduler status.
type PlaybackStatusResponse struct {
	Playing  bool   `json:"playing"`
	PeriodMS int64  `json:"period_ms"`
	Ticks    uint64 `json:"ticks"`
}

// HandlePlay handles POST /api/playback/play
func (h *PlaybackHandler) HandlePlay(w http.ResponseWriter, r *http.Request) {
	h.playback.Play()
	h.HandleStatus(w, r)
}

// HandlePause handles POST /api/playback/pause
func (h *PlaybackHandler) HandlePause(w http.ResponseWriter, r *http.Request) {
	h.playback.Pause()
	h.HandleStatus(w, r)
}

// HandleStatus handles GET /api/playback/status
func (h *PlaybackHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, PlaybackStatusResponse{
		Playing:  h.playback.Playing(),
		PeriodMS: h.playback.Period().Milliseconds(),
		Ticks:    h.playback.Ticks(),
	})
}
