package forecast

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func mustDecodeAreas(t *testing.T, data string) AreaList {
	t.Helper()
	list, err := DecodeAreaList([]byte(data))
	if err != nil {
		t.Fatalf("DecodeAreaList failed: %v", err)
	}
	return list
}

func TestArea_Geometry(t *testing.T) {
	list := mustDecodeAreas(t, squareWithHole)
	mp := list[0].Geometry()

	if len(mp) != 1 {
		t.Fatalf("expected 1 polygon, got %d", len(mp))
	}
	assert.Len(t, mp[0], 2, "outer ring plus one hole")
	assert.True(t, mp[0][0].Closed(), "outer ring should be closed")
	assert.True(t, mp[0][1].Closed(), "hole ring should be closed")
	// orb points are lng, lat
	assert.Equal(t, 30.0, mp[0][0][0][0])
	assert.Equal(t, 50.0, mp[0][0][0][1])
}

func TestAreaList_At(t *testing.T) {
	list := mustDecodeAreas(t, squareWithHole)

	_, ok := list.At(52, 32)
	assert.True(t, ok, "point in fill")

	_, ok = list.At(55, 35)
	assert.False(t, ok, "point in hole")

	_, ok = list.At(10, 10)
	assert.False(t, ok, "point outside")
}

func TestAreaList_FeatureCollection(t *testing.T) {
	list := mustDecodeAreas(t, squareWithHole)
	fc := list.FeatureCollection()

	if len(fc.Features) != 1 {
		t.Fatalf("expected 1 feature, got %d", len(fc.Features))
	}
	props := fc.Features[0].Properties
	assert.Equal(t, "#009900", props["stroke"])
	assert.Equal(t, "#00ff00", props["fill"])
	assert.Equal(t, 0.5, props["fill-opacity"])

	data, err := json.Marshal(fc)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	assert.Contains(t, string(data), `"MultiPolygon"`)
}

func TestAreaList_Bound(t *testing.T) {
	list := mustDecodeAreas(t, squareWithHole)
	b := list.Bound()
	assert.Equal(t, 30.0, b.Min[0])
	assert.Equal(t, 50.0, b.Min[1])
	assert.Equal(t, 40.0, b.Max[0])
	assert.Equal(t, 60.0, b.Max[1])
}
