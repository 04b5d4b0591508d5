package session

import (
	"fmt"

	"pollenmap/pkg/forecast"
)

// Status is the lifecycle of one area cache entry.
type Status int

const (
	// StatusEmpty means nothing is known for the interval yet.
	StatusEmpty Status = iota
	// StatusPending means a fetch is in flight.
	StatusPending
	// StatusReady means Areas holds the decoded document.
	StatusReady
	// StatusFailed means the last fetch failed with Err. It stays failed until retried.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusReady:
		return "ready"
	case StatusFailed:
		return "failed"
	default:
		return "empty"
	}
}

// MarshalText lets Status appear by name in JSON.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a name written by MarshalText.
func (s *Status) UnmarshalText(b []byte) error {
	switch string(b) {
	case "empty":
		*s = StatusEmpty
	case "pending":
		*s = StatusPending
	case "ready":
		*s = StatusReady
	case "failed":
		*s = StatusFailed
	default:
		return fmt.Errorf("unknown status %q", b)
	}
	return nil
}

// Entry is the renderable state for one interval.
type Entry struct {
	Status   Status
	Interval int
	Areas    forecast.AreaList
	Err      error
}

// State is a read-only snapshot of the selection.
type State struct {
	HasManifest     bool     `json:"has_manifest"`
	ManifestLoading bool     `json:"manifest_loading"`
	Allergens       []string `json:"allergens"`
	Intervals       []int    `json:"intervals"`
	Allergen        string   `json:"allergen"`
	Position        int      `json:"position"`
	Interval        int      `json:"interval"`
	Status          Status   `json:"status"`
}
