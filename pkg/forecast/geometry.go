package forecast

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

// orbRing converts to a closed orb ring. orb points are (lng, lat).
func (r Ring) orbRing() orb.Ring {
	out := make(orb.Ring, 0, len(r)+1)
	for _, p := range r {
		out = append(out, orb.Point{p.Lng, p.Lat})
	}
	if len(out) > 0 && !out.Closed() {
		out = append(out, out[0])
	}
	return out
}

// Geometry returns the area as a multi-polygon. Each hole is attached to the
// first outer ring containing it; holes outside every outer ring are dropped.
func (a Area) Geometry() orb.MultiPolygon {
	mp := make(orb.MultiPolygon, 0, len(a.OuterRings))
	for _, r := range a.OuterRings {
		mp = append(mp, orb.Polygon{r.orbRing()})
	}

	for _, h := range a.HoleRings {
		hole := h.orbRing()
		if len(hole) == 0 {
			continue
		}
		for i := range mp {
			if planar.RingContains(mp[i][0], hole[0]) {
				mp[i] = append(mp[i], hole)
				break
			}
		}
	}
	return mp
}

// Feature returns the area as a GeoJSON feature with simplestyle properties.
func (a Area) Feature() *geojson.Feature {
	f := geojson.NewFeature(a.Geometry())
	f.Properties["stroke"] = a.StrokeColor
	f.Properties["stroke-opacity"] = a.StrokeOpacity
	f.Properties["stroke-width"] = a.StrokeWeight
	f.Properties["fill"] = a.FillColor
	f.Properties["fill-opacity"] = a.FillOpacity
	return f
}

// FeatureCollection is the form the map layer consumes.
func (l AreaList) FeatureCollection() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, a := range l {
		fc.Append(a.Feature())
	}
	return fc
}

// At returns the topmost area covering the point. Later areas draw over earlier ones.
func (l AreaList) At(lat, lng float64) (Area, bool) {
	pt := orb.Point{lng, lat}
	for i := len(l) - 1; i >= 0; i-- {
		g := l[i].Geometry()
		if !g.Bound().Contains(pt) {
			continue
		}
		if planar.MultiPolygonContains(g, pt) {
			return l[i], true
		}
	}
	return Area{}, false
}

// Bound covers every outer ring of every area.
func (l AreaList) Bound() orb.Bound {
	var b orb.Bound
	first := true
	for _, a := range l {
		for _, r := range a.OuterRings {
			if len(r) == 0 {
				continue
			}
			rb := r.orbRing().Bound()
			if first {
				b = rb
				first = false
				continue
			}
			b = b.Union(rb)
		}
	}
	return b
}
