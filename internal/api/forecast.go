package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"pollenmap/pkg/forecast"
	"pollenmap/pkg/session"
)

// ForecastSession is the part of the session the HTTP surface drives.
type ForecastSession interface {
	State() session.State
	CurrentRenderable() session.Entry
	Manifest() *forecast.Manifest
	SetAllergen(a string) error
	SetIntervalIndex(i int)
	Advance(delta int)
	Retry()
	LoadManifest()
}

// ForecastHandler serves selection and area endpoints.
type ForecastHandler struct {
	session ForecastSession
}

// NewForecastHandler creates a new ForecastHandler.
func NewForecastHandler(s ForecastSession) *ForecastHandler {
	return &ForecastHandler{session: s}
}

// AllergenRequest selects an allergen.
type AllergenRequest struct {
	Allergen string `json:"allergen"`
}

// IntervalRequest moves the playback position. Exactly one field must be set.
type IntervalRequest struct {
	Index *int `json:"index,omitempty"`
	Delta *int `json:"delta,omitempty"`
}

// PendingResponse is returned while the current interval is loading.
type PendingResponse struct {
	Status   string `json:"status"`
	Interval int    `json:"interval"`
}

// AreaAtResponse describes the area covering a point.
type AreaAtResponse struct {
	Interval      int     `json:"interval"`
	FillColor     string  `json:"fill_color"`
	FillOpacity   float64 `json:"fill_opacity"`
	StrokeColor   string  `json:"stroke_color"`
	StrokeOpacity float64 `json:"stroke_opacity"`
}

// HandleState handles GET /api/forecast/state
func (h *ForecastHandler) HandleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.session.State())
}

// HandleAreas handles GET /api/forecast/areas
func (h *ForecastHandler) HandleAreas(w http.ResponseWriter, r *http.Request) {
	e := h.session.CurrentRenderable()
	switch e.Status {
	case session.StatusReady:
		w.Header().Set("Content-Type", "application/geo+json")
		w.Header().Set("X-Forecast-Interval", strconv.Itoa(e.Interval))
		if err := json.NewEncoder(w).Encode(e.Areas.FeatureCollection()); err != nil {
			slog.Error("Failed to encode areas", "error", err)
		}
	case session.StatusPending:
		writeJSON(w, http.StatusAccepted, PendingResponse{Status: e.Status.String(), Interval: e.Interval})
	case session.StatusFailed:
		writeError(w, http.StatusBadGateway, e.Err.Error())
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

// HandleAreaAt handles GET /api/forecast/areas/at?lat=&lng=
func (h *ForecastHandler) HandleAreaAt(w http.ResponseWriter, r *http.Request) {
	lat, errLat := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	lng, errLng := strconv.ParseFloat(r.URL.Query().Get("lng"), 64)
	if errLat != nil || errLng != nil {
		writeError(w, http.StatusBadRequest, "lat and lng must be numbers")
		return
	}

	e := h.session.CurrentRenderable()
	if e.Status != session.StatusReady {
		writeError(w, http.StatusConflict, "areas are "+e.Status.String())
		return
	}

	a, ok := e.Areas.At(lat, lng)
	if !ok {
		writeError(w, http.StatusNotFound, "no forecast area at this point")
		return
	}
	writeJSON(w, http.StatusOK, AreaAtResponse{
		Interval:      e.Interval,
		FillColor:     a.FillColor,
		FillOpacity:   a.FillOpacity,
		StrokeColor:   a.StrokeColor,
		StrokeOpacity: a.StrokeOpacity,
	})
}

// HandleAllergen handles POST /api/forecast/allergen
func (h *ForecastHandler) HandleAllergen(w http.ResponseWriter, r *http.Request) {
	var req AllergenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if m := h.session.Manifest(); m != nil && req.Allergen != "" && !m.HasAllergen(req.Allergen) {
		writeError(w, http.StatusNotFound, "unknown allergen")
		return
	}

	if err := h.session.SetAllergen(req.Allergen); err != nil {
		status := http.StatusServiceUnavailable
		if errors.Is(err, session.ErrEmptyAllergen) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.session.State())
}

// HandleInterval handles POST /api/forecast/interval
func (h *ForecastHandler) HandleInterval(w http.ResponseWriter, r *http.Request) {
	var req IntervalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	switch {
	case req.Index != nil && req.Delta == nil:
		h.session.SetIntervalIndex(*req.Index)
	case req.Delta != nil && req.Index == nil:
		h.session.Advance(*req.Delta)
	default:
		writeError(w, http.StatusBadRequest, "exactly one of index or delta is required")
		return
	}
	writeJSON(w, http.StatusOK, h.session.State())
}

// HandleRetry handles POST /api/forecast/retry
func (h *ForecastHandler) HandleRetry(w http.ResponseWriter, r *http.Request) {
	h.session.Retry()
	writeJSON(w, http.StatusAccepted, h.session.State())
}

// HandleReload handles POST /api/forecast/reload
func (h *ForecastHandler) HandleReload(w http.ResponseWriter, r *http.Request) {
	h.session.LoadManifest()
	writeJSON(w, http.StatusAccepted, h.session.State())
}
