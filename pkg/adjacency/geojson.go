package adjacency

import (
	"fmt"
	"io"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

// DefaultIDProperty is the feature property carrying the county id in census
// county boundary files.
const DefaultIDProperty = "GEOID"

// Centroid is a county's representative point in degrees.
type Centroid struct {
	Lat, Lon float64
}

// ParseCentroids reads a GeoJSON FeatureCollection of county polygons and
// returns the area-weighted centroid of each feature keyed by idProperty.
// Features without an id or a polygonal geometry are skipped.
func ParseCentroids(r io.Reader, idProperty string) (map[string]Centroid, error) {
	if idProperty == "" {
		idProperty = DefaultIDProperty
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read geojson: %w", err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("decode geojson: %w", err)
	}

	out := make(map[string]Centroid, len(fc.Features))
	for _, f := range fc.Features {
		id := featureID(f, idProperty)
		if id == "" || f.Geometry == nil {
			continue
		}
		switch f.Geometry.(type) {
		case orb.Polygon, orb.MultiPolygon:
		default:
			continue
		}
		c, area := planar.CentroidArea(f.Geometry)
		if area == 0 {
			continue
		}
		out[NormalizeFIPS(id)] = Centroid{Lat: c.Lat(), Lon: c.Lon()}
	}
	return out, nil
}

func featureID(f *geojson.Feature, prop string) string {
	switch v := f.Properties[prop].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatInt(int64(v), 10)
	}
	return ""
}
