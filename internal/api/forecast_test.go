package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"pollenmap/pkg/forecast"
	"pollenmap/pkg/session"
)

type mockSession struct {
	state    session.State
	entry    session.Entry
	manifest *forecast.Manifest

	allergen string
	index    *int
	delta    *int
	retried  bool
	reloaded bool
	setErr   error
}

func (m *mockSession) State() session.State             { return m.state }
func (m *mockSession) CurrentRenderable() session.Entry { return m.entry }
func (m *mockSession) Manifest() *forecast.Manifest     { return m.manifest }
func (m *mockSession) SetAllergen(a string) error {
	if a == "" {
		return session.ErrEmptyAllergen
	}
	m.allergen = a
	return m.setErr
}
func (m *mockSession) SetIntervalIndex(i int) { m.index = &i }
func (m *mockSession) Advance(d int)          { m.delta = &d }
func (m *mockSession) Retry()                 { m.retried = true }
func (m *mockSession) LoadManifest()          { m.reloaded = true }

func squareAreas(t *testing.T) forecast.AreaList {
	t.Helper()
	areas, err := forecast.DecodeAreaList([]byte(`[{"latlngs":[[[[0,0],[0,10],[10,10],[10,0]]]],` +
		`"color":"#00ff00","opacity":0.8,"weight":1,"fillColor":"#00ff00","fillOpacity":0.4}]`))
	if err != nil {
		t.Fatal(err)
	}
	return areas
}

func TestForecastHandler_HandleAreas(t *testing.T) {
	tests := []struct {
		name       string
		entry      session.Entry
		wantStatus int
		check      func(t *testing.T, rec *httptest.ResponseRecorder)
	}{
		{
			name:       "Ready",
			entry:      session.Entry{Status: session.StatusReady, Interval: 3},
			wantStatus: http.StatusOK,
			check: func(t *testing.T, rec *httptest.ResponseRecorder) {
				assert.Equal(t, "application/geo+json", rec.Header().Get("Content-Type"))
				assert.Equal(t, "3", rec.Header().Get("X-Forecast-Interval"))
				var fc map[string]any
				assert.NoError(t, json.NewDecoder(rec.Body).Decode(&fc))
				assert.Equal(t, "FeatureCollection", fc["type"])
				assert.Len(t, fc["features"], 1)
			},
		},
		{
			name:       "Pending",
			entry:      session.Entry{Status: session.StatusPending, Interval: 2},
			wantStatus: http.StatusAccepted,
			check: func(t *testing.T, rec *httptest.ResponseRecorder) {
				assert.JSONEq(t, `{"status":"pending","interval":2}`, rec.Body.String())
			},
		},
		{
			name:       "Failed",
			entry:      session.Entry{Status: session.StatusFailed, Err: errors.New("boom")},
			wantStatus: http.StatusBadGateway,
			check: func(t *testing.T, rec *httptest.ResponseRecorder) {
				assert.JSONEq(t, `{"error":"boom"}`, rec.Body.String())
			},
		},
		{
			name:       "Empty",
			entry:      session.Entry{},
			wantStatus: http.StatusNoContent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.entry.Status == session.StatusReady {
				tt.entry.Areas = squareAreas(t)
			}
			h := NewForecastHandler(&mockSession{entry: tt.entry})
			rec := httptest.NewRecorder()
			h.HandleAreas(rec, httptest.NewRequest(http.MethodGet, "/api/forecast/areas", http.NoBody))

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.check != nil {
				tt.check(t, rec)
			}
		})
	}
}

func TestForecastHandler_HandleAreaAt(t *testing.T) {
	ready := session.Entry{Status: session.StatusReady, Interval: 1}

	tests := []struct {
		name       string
		entry      session.Entry
		query      string
		wantStatus int
	}{
		{name: "Inside", entry: ready, query: "lat=5&lng=5", wantStatus: http.StatusOK},
		{name: "Outside", entry: ready, query: "lat=50&lng=50", wantStatus: http.StatusNotFound},
		{name: "BadQuery", entry: ready, query: "lat=x&lng=5", wantStatus: http.StatusBadRequest},
		{name: "NotReady", entry: session.Entry{Status: session.StatusPending}, query: "lat=5&lng=5", wantStatus: http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.entry.Status == session.StatusReady {
				tt.entry.Areas = squareAreas(t)
			}
			h := NewForecastHandler(&mockSession{entry: tt.entry})
			rec := httptest.NewRecorder()
			h.HandleAreaAt(rec, httptest.NewRequest(http.MethodGet, "/api/forecast/areas/at?"+tt.query, http.NoBody))
			assert.Equal(t, tt.wantStatus, rec.Code)

			if tt.wantStatus == http.StatusOK {
				var resp AreaAtResponse
				assert.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
				assert.Equal(t, "#00ff00", resp.FillColor)
				assert.Equal(t, 1, resp.Interval)
			}
		})
	}
}

func TestForecastHandler_HandleAllergen(t *testing.T) {
	manifest := &forecast.Manifest{Allergens: []string{"A", "B"}}

	tests := []struct {
		name       string
		body       string
		setErr     error
		wantStatus int
		wantSet    string
	}{
		{name: "Known", body: `{"allergen":"B"}`, wantStatus: http.StatusOK, wantSet: "B"},
		{name: "Unknown", body: `{"allergen":"Z"}`, wantStatus: http.StatusNotFound},
		{name: "Empty", body: `{"allergen":""}`, wantStatus: http.StatusBadRequest},
		{name: "BadJSON", body: `{`, wantStatus: http.StatusBadRequest},
		{name: "Closed", body: `{"allergen":"A"}`, setErr: session.ErrClosed, wantStatus: http.StatusServiceUnavailable, wantSet: "A"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ms := &mockSession{manifest: manifest, setErr: tt.setErr}
			h := NewForecastHandler(ms)
			rec := httptest.NewRecorder()
			h.HandleAllergen(rec, httptest.NewRequest(http.MethodPost, "/api/forecast/allergen", strings.NewReader(tt.body)))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantSet, ms.allergen)
		})
	}
}

func TestForecastHandler_HandleInterval(t *testing.T) {
	t.Run("Index", func(t *testing.T) {
		ms := &mockSession{}
		rec := httptest.NewRecorder()
		NewForecastHandler(ms).HandleInterval(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"index":4}`)))
		assert.Equal(t, http.StatusOK, rec.Code)
		if assert.NotNil(t, ms.index) {
			assert.Equal(t, 4, *ms.index)
		}
		assert.Nil(t, ms.delta)
	})

	t.Run("Delta", func(t *testing.T) {
		ms := &mockSession{}
		rec := httptest.NewRecorder()
		NewForecastHandler(ms).HandleInterval(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"delta":-1}`)))
		assert.Equal(t, http.StatusOK, rec.Code)
		if assert.NotNil(t, ms.delta) {
			assert.Equal(t, -1, *ms.delta)
		}
	})

	for _, body := range []string{`{}`, `{"index":1,"delta":1}`, `nope`} {
		t.Run("Invalid "+body, func(t *testing.T) {
			ms := &mockSession{}
			rec := httptest.NewRecorder()
			NewForecastHandler(ms).HandleInterval(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Nil(t, ms.index)
			assert.Nil(t, ms.delta)
		})
	}
}

func TestForecastHandler_RetryAndReload(t *testing.T) {
	ms := &mockSession{state: session.State{Allergen: "A"}}
	h := NewForecastHandler(ms)

	rec := httptest.NewRecorder()
	h.HandleRetry(rec, httptest.NewRequest(http.MethodPost, "/api/forecast/retry", http.NoBody))
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.True(t, ms.retried)

	rec = httptest.NewRecorder()
	h.HandleReload(rec, httptest.NewRequest(http.MethodPost, "/api/forecast/reload", http.NoBody))
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.True(t, ms.reloaded)

	var st session.State
	assert.NoError(t, json.NewDecoder(rec.Body).Decode(&st))
	assert.Equal(t, "A", st.Allergen)
}
