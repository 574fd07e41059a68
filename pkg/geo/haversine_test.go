package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHaversine(t *testing.T) {
	tests := []struct {
		name             string
		lat1, lon1       float64
		lat2, lon2       float64
		wantMeters       float64
		tolerancePercent float64
	}{
		{
			name: "Atlanta to Birmingham",
			lat1: 33.7490, lon1: -84.3880,
			lat2: 33.5186, lon2: -86.8104,
			wantMeters:       225_000,
			tolerancePercent: 1,
		},
		{
			name: "Same point",
			lat1: 38.8977, lon1: -77.0365,
			lat2: 38.8977, lon2: -77.0365,
			wantMeters:       0,
			tolerancePercent: 0,
		},
		{
			name: "New York to Los Angeles",
			lat1: 40.7128, lon1: -74.0060,
			lat2: 34.0522, lon2: -118.2437,
			wantMeters:       3_936_000,
			tolerancePercent: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Haversine(tt.lat1, tt.lon1, tt.lat2, tt.lon2)
			if tt.wantMeters == 0 {
				assert.Zero(t, got)
				return
			}
			assert.InEpsilon(t, tt.wantMeters, got, tt.tolerancePercent/100)
		})
	}
}

func TestEquirectangularDist(t *testing.T) {
	// Two county seats ~40 km apart.
	lat1, lon1 := 32.4640, -86.4597
	lat2, lon2 := 32.8457, -86.6300
	h := Haversine(lat1, lon1, lat2, lon2)
	e := EquirectangularDist(lat1, lon1, lat2, lon2)
	assert.InEpsilon(t, h, e, 0.001)
}

func TestValidCoord(t *testing.T) {
	tests := []struct {
		lat, lng float64
		want     bool
	}{
		{33.7, -84.4, true},
		{91, 0, false},
		{0, -181, false},
		{math.NaN(), 0, false},
		{0, math.Inf(1), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ValidCoord(tt.lat, tt.lng), "ValidCoord(%f, %f)", tt.lat, tt.lng)
	}
}

func BenchmarkHaversine(b *testing.B) {
	for i := 0; i < b.N; i++ {
		Haversine(33.7490, -84.3880, 33.5186, -86.8104)
	}
}
