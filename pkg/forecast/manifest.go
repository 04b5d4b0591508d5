package forecast

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
)

// Range is the inclusive interval range [Lo, Hi], in hours relative to now.
type Range struct {
	Lo int
	Hi int
}

// MaxIntervals bounds the number of hourly intervals a range may cover.
const MaxIntervals = 24 * 90

// Valid reports whether lo <= hi and the range covers at most MaxIntervals.
func (r Range) Valid() bool {
	// The unsigned difference is exact for any lo <= hi.
	return r.Lo <= r.Hi && uint64(r.Hi)-uint64(r.Lo) < MaxIntervals
}

// Len returns the number of intervals covered by the range, or 0 when the
// range is not Valid.
func (r Range) Len() int {
	if !r.Valid() {
		return 0
	}
	return r.Hi - r.Lo + 1
}

// Manifest is an immutable snapshot of the forecasts the server publishes.
type Manifest struct {
	Allergens    []string
	Range        Range
	IntervalPath map[int]string
	Root         string
}

// HasAllergen reports whether a is listed in the manifest.
func (m *Manifest) HasAllergen(a string) bool {
	if m == nil {
		return false
	}
	return slices.Contains(m.Allergens, a)
}

// Path returns the area document path for interval. Holes in the map report ok=false.
func (m *Manifest) Path(interval int) (path string, ok bool) {
	if m == nil {
		return "", false
	}
	path, ok = m.IntervalPath[interval]
	return path, ok
}

// Intervals materializes the manifest's interval range.
func (m *Manifest) Intervals() []int {
	if m == nil {
		return nil
	}
	return Intervals(&m.Range)
}

type manifestPayload struct {
	Allergens    []string          `json:"allergens"`
	Interval     []int             `json:"interval"`
	IntervalPath map[string]string `json:"intervalPath"`
	Root         string            `json:"root"`
}

// DecodeManifest parses the get_forecasts document.
func DecodeManifest(data []byte) (*Manifest, error) {
	var p manifestPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: manifest: %v", ErrDecode, err)
	}

	if len(p.Interval) != 2 {
		return nil, fmt.Errorf("%w: manifest interval must hold [lo, hi], got %d values", ErrDecode, len(p.Interval))
	}
	r := Range{Lo: p.Interval[0], Hi: p.Interval[1]}
	if r.Lo > r.Hi {
		return nil, fmt.Errorf("%w: manifest interval lo %d > hi %d", ErrDecode, r.Lo, r.Hi)
	}
	if !r.Valid() {
		return nil, fmt.Errorf("%w: manifest interval [%d, %d] spans more than %d intervals", ErrDecode, r.Lo, r.Hi, MaxIntervals)
	}
	if p.Root == "" {
		return nil, fmt.Errorf("%w: manifest root is empty", ErrDecode)
	}

	paths := make(map[int]string, len(p.IntervalPath))
	for k, v := range p.IntervalPath {
		n, err := strconv.Atoi(k)
		if err != nil {
			return nil, fmt.Errorf("%w: manifest intervalPath key %q is not an integer", ErrDecode, k)
		}
		paths[n] = v
	}

	return &Manifest{
		Allergens:    p.Allergens,
		Range:        r,
		IntervalPath: paths,
		Root:         p.Root,
	}, nil
}
