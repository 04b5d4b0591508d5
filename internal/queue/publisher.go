package queue

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"pollenmap/pkg/forecast"
)

// publishTimeout bounds a single broker write.
const publishTimeout = 5 * time.Second

// ForecastEvent is the message body published for each session notification.
// Area payloads carry a summary only; consumers fetch geometry over HTTP.
type ForecastEvent struct {
	Type      string    `json:"type"` // manifest, areas, error
	At        time.Time `json:"at"`
	Allergens []string  `json:"allergens,omitempty"`
	Range     []int     `json:"range,omitempty"`
	Interval  *int      `json:"interval,omitempty"`
	Areas     int       `json:"areas,omitempty"`
	Bound     []float64 `json:"bound,omitempty"` // [minLng, minLat, maxLng, maxLat]
	Kind      string    `json:"kind,omitempty"`
	Error     string    `json:"error,omitempty"`
}

type publisher interface {
	Publish(ctx context.Context, key string, value []byte) error
}

type keyedEvent struct {
	key string
	ev  ForecastEvent
}

// ForecastPublisher is a session.Listener that forwards notifications to a
// broker. Delivery is asynchronous; when the buffer is full events are dropped
// so the session's notification order is never held up by the broker.
type ForecastPublisher struct {
	producer publisher
	logger   *slog.Logger
	events   chan keyedEvent
	now      func() time.Time

	mu      sync.Mutex // protects dropped, closed and sends on events
	dropped int64
	closed  bool
	done    chan struct{}
}

// NewForecastPublisher starts a publisher with room for buffer pending events.
func NewForecastPublisher(p publisher, buffer int) *ForecastPublisher {
	if buffer < 1 {
		buffer = 1
	}
	fp := &ForecastPublisher{
		producer: p,
		logger:   slog.With("component", "forecast_publisher"),
		events:   make(chan keyedEvent, buffer),
		now:      time.Now,
		done:     make(chan struct{}),
	}
	go fp.run()
	return fp
}

func (p *ForecastPublisher) OnManifestReady(m *forecast.Manifest) {
	p.enqueue("manifest", ForecastEvent{
		Type:      "manifest",
		Allergens: m.Allergens,
		Range:     []int{m.Range.Lo, m.Range.Hi},
	})
}

func (p *ForecastPublisher) OnAreaListReady(interval int, areas forecast.AreaList) {
	ev := ForecastEvent{
		Type:     "areas",
		Interval: &interval,
		Areas:    len(areas),
	}
	if len(areas) > 0 {
		b := areas.Bound()
		ev.Bound = []float64{b.Min.Lon(), b.Min.Lat(), b.Max.Lon(), b.Max.Lat()}
	}
	p.enqueue(strconv.Itoa(interval), ev)
}

func (p *ForecastPublisher) OnFetchFailed(kind forecast.Kind, err error) {
	p.enqueue(string(kind), ForecastEvent{
		Type:  "error",
		Kind:  string(kind),
		Error: err.Error(),
	})
}

// Dropped returns how many events were discarded because the buffer was full.
func (p *ForecastPublisher) Dropped() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dropped
}

// Close stops accepting events and waits for the buffered ones to be sent.
func (p *ForecastPublisher) Close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.events)
	}
	p.mu.Unlock()
	<-p.done
}

func (p *ForecastPublisher) enqueue(key string, ev ForecastEvent) {
	ev.At = p.now()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	select {
	case p.events <- keyedEvent{key: key, ev: ev}:
	default:
		p.dropped++
		p.logger.Warn("Event buffer full, dropping", "type", ev.Type, "dropped", p.dropped)
	}
}

func (p *ForecastPublisher) run() {
	defer close(p.done)
	for ke := range p.events {
		data, err := json.Marshal(ke.ev)
		if err != nil {
			p.logger.Error("Failed to encode event", "type", ke.ev.Type, "error", err)
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		if err := p.producer.Publish(ctx, ke.key, data); err != nil {
			p.logger.Warn("Failed to publish event", "type", ke.ev.Type, "error", err)
		}
		cancel()
	}
}
