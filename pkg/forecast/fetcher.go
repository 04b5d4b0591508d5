package forecast

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ManifestPath is the manifest endpoint relative to the API base.
const ManifestPath = "ajax/get_forecasts"

// Transport fetches raw bytes for a URL. Cancelling ctx must abort the request.
type Transport interface {
	Get(ctx context.Context, u string) ([]byte, error)
}

// ManifestFetcher fetches and decodes the forecast manifest.
type ManifestFetcher struct {
	transport Transport
	base      string
}

// NewManifestFetcher creates a fetcher against the API base URL.
func NewManifestFetcher(t Transport, baseURL string) *ManifestFetcher {
	return &ManifestFetcher{transport: t, base: strings.TrimRight(baseURL, "/")}
}

// URL returns the manifest endpoint.
func (f *ManifestFetcher) URL() string {
	return f.base + "/" + ManifestPath
}

// Fetch retrieves the current manifest.
func (f *ManifestFetcher) Fetch(ctx context.Context) (*Manifest, error) {
	data, err := get(ctx, f.transport, f.URL())
	if err != nil {
		return nil, err
	}
	return DecodeManifest(data)
}

// AreaFetcher fetches and decodes per-interval area documents.
type AreaFetcher struct {
	transport Transport
	base      string
}

// NewAreaFetcher creates a fetcher against the API base URL.
func NewAreaFetcher(t Transport, baseURL string) *AreaFetcher {
	return &AreaFetcher{transport: t, base: strings.TrimRight(baseURL, "/")}
}

// Resolve checks the preconditions and builds the area document URL.
// It never touches the network.
func (f *AreaFetcher) Resolve(m *Manifest, allergen string, interval int) (string, error) {
	if m == nil {
		return "", fmt.Errorf("%w: no manifest loaded", ErrNotFound)
	}
	if !m.HasAllergen(allergen) {
		return "", fmt.Errorf("%w: allergen %q", ErrNotFound, allergen)
	}
	path, ok := m.Path(interval)
	if !ok {
		return "", fmt.Errorf("%w: interval %d", ErrNotFound, interval)
	}
	return f.base + "/" + joinEscaped(m.Root) + "/" + url.PathEscape(allergen) + "/" + joinEscaped(path), nil
}

// Fetch resolves and retrieves the area list for one allergen and interval.
func (f *AreaFetcher) Fetch(ctx context.Context, m *Manifest, allergen string, interval int) (AreaList, error) {
	u, err := f.Resolve(m, allergen, interval)
	if err != nil {
		return nil, err
	}
	return f.FetchURL(ctx, u)
}

// FetchURL retrieves an area list from an already resolved URL.
func (f *AreaFetcher) FetchURL(ctx context.Context, u string) (AreaList, error) {
	data, err := get(ctx, f.transport, u)
	if err != nil {
		return nil, err
	}
	return DecodeAreaList(data)
}

func get(ctx context.Context, t Transport, u string) ([]byte, error) {
	data, err := t.Get(ctx, u)
	if err == nil {
		return data, nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
		return nil, fmt.Errorf("%w: %v", ErrCancelled, err)
	}
	return nil, fmt.Errorf("%w: %v", ErrTransport, err)
}

// joinEscaped escapes each segment of a slash separated path.
func joinEscaped(p string) string {
	parts := strings.Split(strings.Trim(p, "/"), "/")
	for i, s := range parts {
		parts[i] = url.PathEscape(s)
	}
	return strings.Join(parts, "/")
}
