package request

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"pollenmap/pkg/tracker"
	"pollenmap/pkg/version"
)

var (
	// ErrStatus is returned for non-2xx responses.
	ErrStatus = errors.New("unexpected status")
	// ErrContentType is returned when the response is not JSON.
	ErrContentType = errors.New("unexpected content type")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("request client closed")
	// ErrTooLarge is returned when a response body exceeds MaxBodyBytes.
	ErrTooLarge = errors.New("response body too large")
)

// DefaultMaxBodyBytes bounds a response body when ClientConfig leaves it unset.
const DefaultMaxBodyBytes = 32 << 20

var defaultUserAgent = fmt.Sprintf("PollenMap/%s", version.Version)

// ClientConfig holds transport settings.
type ClientConfig struct {
	Timeout   time.Duration // upper bound for a single request; per-call deadlines come from ctx
	Workers   int           // concurrent requests per host
	QueueSize int
	UserAgent string
	// MaxBodyBytes bounds a response body; larger bodies fail with ErrTooLarge.
	MaxBodyBytes int64
}

// Client performs GET requests on per-host worker queues.
type Client struct {
	httpClient *http.Client
	tracker    *tracker.Tracker
	logger     *slog.Logger
	userAgent  string
	workers    int
	queueSize  int
	maxBody    int64

	// sendMu is held shared while enqueueing and exclusively while closing
	// the queues, so no send can hit a closed channel.
	sendMu    sync.RWMutex
	mu        sync.Mutex // protects queues and closed
	queues    map[string]chan job
	closed    bool
	done      chan struct{}
	closeOnce sync.Once
}

type job struct {
	req      *http.Request
	provider string
	respChan chan jobResult
}

type jobResult struct {
	body []byte
	err  error
}

// New creates a new Client. A nil logger falls back to slog.Default().
func New(t *tracker.Tracker, logger *slog.Logger, cfg ClientConfig) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if t == nil {
		t = tracker.New()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 32
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		tracker:    t,
		logger:     logger,
		userAgent:  cfg.UserAgent,
		workers:    cfg.Workers,
		queueSize:  cfg.QueueSize,
		maxBody:    cfg.MaxBodyBytes,
		queues:     make(map[string]chan job),
		done:       make(chan struct{}),
	}
}

// Get fetches u and returns the JSON body. Cancelling ctx aborts the request,
// whether it is still queued or already on the wire.
func (c *Client) Get(ctx context.Context, u string) ([]byte, error) {
	parsedURL, err := url.Parse(u)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	provider := normalizeProvider(parsedURL.Host)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	respChan := make(chan jobResult, 1)
	if err := c.dispatch(job{req: req, provider: provider, respChan: respChan}); err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-respChan:
		return res.body, res.err
	}
}

// Close stops accepting requests. Callers waiting on a full queue get
// ErrClosed. Workers exit once their queues drain.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.done) })

	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for _, q := range c.queues {
		close(q)
	}
}

func normalizeProvider(host string) string {
	host = strings.ToLower(host)
	for _, prefix := range []string{"www.", "api."} {
		host = strings.TrimPrefix(host, prefix)
	}
	return host
}

// dispatch sends the job to the provider's queue, creating the queue and workers if needed.
// A full queue blocks only this caller.
func (c *Client) dispatch(j job) error {
	c.sendMu.RLock()
	defer c.sendMu.RUnlock()

	q, err := c.queue(j.provider)
	if err != nil {
		return err
	}

	select {
	case q <- j:
		return nil
	case <-j.req.Context().Done():
		return j.req.Context().Err()
	case <-c.done:
		return ErrClosed
	}
}

func (c *Client) queue(provider string) (chan job, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}

	q, ok := c.queues[provider]
	if !ok {
		q = make(chan job, c.queueSize)
		c.queues[provider] = q
		for i := 0; i < c.workers; i++ {
			go c.worker(q)
		}
	}
	return q, nil
}

func (c *Client) worker(q <-chan job) {
	for j := range q {
		if err := j.req.Context().Err(); err != nil {
			c.logger.Debug("Job dropped from queue", "provider", j.provider, "url", j.req.URL.String(), "error", err)
			j.respChan <- jobResult{err: err}
			continue
		}

		start := time.Now()
		body, err := c.execute(j.req)
		elapsed := time.Since(start)

		switch {
		case err == nil:
			c.tracker.TrackSuccess(j.provider)
			c.logger.Info("GET", "url", j.req.URL.String(), "bytes", len(body), "duration", elapsed)
		case j.req.Context().Err() == context.Canceled:
			c.tracker.TrackCancelled(j.provider)
			c.logger.Debug("GET cancelled", "url", j.req.URL.String(), "duration", elapsed)
		default:
			c.tracker.TrackFailure(j.provider)
			c.logger.Warn("GET failed", "url", j.req.URL.String(), "duration", elapsed, "error", err)
		}

		j.respChan <- jobResult{body: body, err: err}
	}
}

// execute performs a single attempt. There is no retry.
func (c *Client) execute(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: %d", ErrStatus, resp.StatusCode)
	}

	if ct := resp.Header.Get("Content-Type"); !isJSON(ct) {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: %q", ErrContentType, ct)
	}

	if resp.ContentLength > c.maxBody {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, resp.ContentLength)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("read error: %w", err)
	}
	if int64(len(body)) > c.maxBody {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, c.maxBody)
	}
	return body, nil
}

func isJSON(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}
