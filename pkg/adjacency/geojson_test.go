package adjacency

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleGeoJSON = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "properties": {"GEOID": "01001"},
     "geometry": {"type": "Polygon", "coordinates": [[[0,0],[2,0],[2,2],[0,2],[0,0]]]}},
    {"type": "Feature", "properties": {"GEOID": 1003},
     "geometry": {"type": "Polygon", "coordinates": [[[10,10],[12,10],[12,14],[10,14],[10,10]]]}},
    {"type": "Feature", "properties": {"NAME": "no id"},
     "geometry": {"type": "Polygon", "coordinates": [[[0,0],[1,0],[1,1],[0,1],[0,0]]]}},
    {"type": "Feature", "properties": {"GEOID": "99999"},
     "geometry": {"type": "Point", "coordinates": [5,5]}}
  ]
}`

func TestParseCentroids(t *testing.T) {
	got, err := ParseCentroids(strings.NewReader(sampleGeoJSON), "")
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.InDelta(t, 1, got["01001"].Lat, 1e-9)
	assert.InDelta(t, 1, got["01001"].Lon, 1e-9)
	assert.InDelta(t, 12, got["01003"].Lat, 1e-9)
	assert.InDelta(t, 11, got["01003"].Lon, 1e-9)
}

func TestParseCentroidsInvalid(t *testing.T) {
	_, err := ParseCentroids(strings.NewReader("{not json"), "")
	assert.Error(t, err)
}
