package forecast

import (
	"encoding/json"
	"fmt"
)

// LatLng is a single vertex.
type LatLng struct {
	Lat float64
	Lng float64
}

// Ring is an ordered polygon boundary.
type Ring []LatLng

// Area is one styled (multi-)polygon for one allergen at one interval.
type Area struct {
	OuterRings    []Ring
	HoleRings     []Ring
	StrokeColor   string
	FillColor     string
	StrokeOpacity float64
	FillOpacity   float64
	StrokeWeight  float64
}

// AreaList is the decoded content of one interval document.
type AreaList []Area

type areaPayload struct {
	LatLngs     [][][][]float64 `json:"latlngs"`
	Color       string          `json:"color"`
	Opacity     float64         `json:"opacity"`
	Weight      float64         `json:"weight"`
	FillColor   string          `json:"fillColor"`
	FillOpacity float64         `json:"fillOpacity"`
}

// DecodeAreaList parses an interval document (a JSON array of areas).
//
// latlngs is grouped Leaflet style: with a single group every polygon is an
// outer ring, otherwise the last group holds the holes.
func DecodeAreaList(data []byte) (AreaList, error) {
	var payload []areaPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("%w: area list: %v", ErrDecode, err)
	}

	list := make(AreaList, 0, len(payload))
	for i, p := range payload {
		a := Area{
			StrokeColor:   p.Color,
			FillColor:     p.FillColor,
			StrokeOpacity: p.Opacity,
			FillOpacity:   p.FillOpacity,
			StrokeWeight:  p.Weight,
		}

		fill := p.LatLngs
		var holes [][][]float64
		if len(p.LatLngs) > 1 {
			fill = p.LatLngs[:len(p.LatLngs)-1]
			holes = p.LatLngs[len(p.LatLngs)-1]
		}

		for _, group := range fill {
			rings, err := decodeRings(group)
			if err != nil {
				return nil, fmt.Errorf("%w: area %d: %v", ErrDecode, i, err)
			}
			a.OuterRings = append(a.OuterRings, rings...)
		}
		rings, err := decodeRings(holes)
		if err != nil {
			return nil, fmt.Errorf("%w: area %d holes: %v", ErrDecode, i, err)
		}
		a.HoleRings = rings

		list = append(list, a)
	}
	return list, nil
}

func decodeRings(polygons [][][]float64) ([]Ring, error) {
	var rings []Ring
	for _, poly := range polygons {
		ring := make(Ring, 0, len(poly))
		for _, pt := range poly {
			if len(pt) < 2 {
				return nil, fmt.Errorf("coordinate has %d values, want lat and lng", len(pt))
			}
			ring = append(ring, LatLng{Lat: pt[0], Lng: pt[len(pt)-1]})
		}
		rings = append(rings, ring)
	}
	return rings, nil
}
