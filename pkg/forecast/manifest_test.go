package forecast

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecodeManifest(t *testing.T) {
	data := []byte(`{
		"allergens": ["Береза", "Ольха"],
		"interval": [-2, 2],
		"intervalPath": {"-2": "p-2", "-1": "p-1", "0": "p0", "1": "p1", "2": "p2"},
		"root": "static/forecasts"
	}`)

	m, err := DecodeManifest(data)
	if err != nil {
		t.Fatalf("DecodeManifest failed: %v", err)
	}

	assert.Equal(t, []string{"Береза", "Ольха"}, m.Allergens)
	assert.Equal(t, Range{Lo: -2, Hi: 2}, m.Range)
	assert.Equal(t, "static/forecasts", m.Root)
	assert.Equal(t, []int{-2, -1, 0, 1, 2}, m.Intervals())

	p, ok := m.Path(-1)
	assert.True(t, ok)
	assert.Equal(t, "p-1", p)

	_, ok = m.Path(7)
	assert.False(t, ok, "absent interval must fail explicitly")

	assert.True(t, m.HasAllergen("Ольха"))
	assert.False(t, m.HasAllergen("Дуб"))
}

func TestDecodeManifest_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"NotJSON", `<html>`},
		{"IntervalTooShort", `{"allergens":["A"],"interval":[1],"intervalPath":{},"root":"r"}`},
		{"IntervalReversed", `{"allergens":["A"],"interval":[3,1],"intervalPath":{},"root":"r"}`},
		{"BadKey", `{"allergens":["A"],"interval":[0,1],"intervalPath":{"x":"p"},"root":"r"}`},
		{"NoRoot", `{"allergens":["A"],"interval":[0,1],"intervalPath":{}}`},
		{"IntervalOverflow", `{"allergens":["A"],"interval":[0,9223372036854775807],"intervalPath":{},"root":"r"}`},
		{"IntervalFullRange", `{"allergens":["A"],"interval":[-9223372036854775808,9223372036854775807],"intervalPath":{},"root":"r"}`},
		{"IntervalTooWide", `{"allergens":["A"],"interval":[0,2160],"intervalPath":{},"root":"r"}`},
		{"WrongType", `{"allergens":"A","interval":[0,1],"intervalPath":{},"root":"r"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeManifest([]byte(tt.data))
			if !errors.Is(err, ErrDecode) {
				t.Errorf("expected ErrDecode, got %v", err)
			}
		})
	}
}

func TestDecodeManifest_WidestRange(t *testing.T) {
	m, err := DecodeManifest([]byte(`{"allergens":["A"],"interval":[-10,2149],"intervalPath":{},"root":"r"}`))
	if err != nil {
		t.Fatalf("DecodeManifest failed: %v", err)
	}
	assert.Equal(t, MaxIntervals, m.Range.Len())
	assert.Len(t, m.Intervals(), MaxIntervals)
}

func TestRange_Invalid(t *testing.T) {
	tests := []struct {
		name string
		r    Range
	}{
		{"Reversed", Range{Lo: 3, Hi: 1}},
		{"Overflow", Range{Lo: 0, Hi: math.MaxInt}},
		{"Full", Range{Lo: math.MinInt, Hi: math.MaxInt}},
		{"TooWide", Range{Lo: -1, Hi: MaxIntervals - 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, tt.r.Valid())
			assert.Equal(t, 0, tt.r.Len())
			assert.Nil(t, Intervals(&tt.r))
			_, ok := IntervalAt(0, &tt.r)
			assert.False(t, ok)
		})
	}
}

func TestManifest_NilSafe(t *testing.T) {
	var m *Manifest
	assert.False(t, m.HasAllergen("A"))
	assert.Nil(t, m.Intervals())
	_, ok := m.Path(0)
	assert.False(t, ok)
}
