package api

import (
	"errors"
	"math"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"

	"pollenmap/pkg/forecast"
)

func dialHub(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	return ev
}

func TestHub_Broadcast(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	a := dialHub(t, srv)
	b := dialHub(t, srv)
	assert.Eventually(t, func() bool { return hub.Clients() == 2 }, 2*time.Second, 10*time.Millisecond)

	hub.OnManifestReady(&forecast.Manifest{
		Allergens: []string{"A", "B"},
		Range:     forecast.Range{Lo: -1, Hi: 1},
	})
	for _, c := range []*websocket.Conn{a, b} {
		ev := readEvent(t, c)
		assert.Equal(t, "manifest", ev.Type)
		assert.Equal(t, []string{"A", "B"}, ev.Allergens)
		assert.Equal(t, []int{-1, 0, 1}, ev.Intervals)
	}

	areas, err := forecast.DecodeAreaList([]byte(`[{"latlngs":[[[[0,0],[0,1],[1,1]]]],"fillColor":"#123456"}]`))
	assert.NoError(t, err)
	hub.OnAreaListReady(0, areas)
	ev := readEvent(t, a)
	assert.Equal(t, "areas", ev.Type)
	if assert.NotNil(t, ev.Interval) {
		assert.Equal(t, 0, *ev.Interval)
	}
	if assert.NotNil(t, ev.Areas) {
		assert.Len(t, ev.Areas.Features, 1)
	}

	hub.OnFetchFailed(forecast.KindArea, errors.New("boom"))
	ev = readEvent(t, a)
	assert.Equal(t, Event{Type: "error", Kind: "area", Error: "boom"}, ev)
}

func TestHub_ClientDisconnect(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	conn := dialHub(t, srv)
	assert.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	conn.Close()
	assert.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_Close(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dialHub(t, srv)
	assert.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
	assert.Equal(t, 0, hub.Clients())
}

func TestHub_RejectsPlainHTTP(t *testing.T) {
	hub := NewHub()
	rec := httptest.NewRecorder()
	hub.ServeHTTP(rec, httptest.NewRequest("GET", "/api/events", nil))
	assert.Equal(t, 400, rec.Code)
}

func TestHub_ManifestWithInvalidRange(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	c := dialHub(t, srv)
	assert.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.OnManifestReady(&forecast.Manifest{
		Allergens: []string{"A"},
		Range:     forecast.Range{Lo: math.MinInt, Hi: math.MaxInt},
	})
	ev := readEvent(t, c)
	assert.Equal(t, "manifest", ev.Type)
	assert.Empty(t, ev.Intervals)
}
