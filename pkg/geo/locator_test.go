package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocatorNearest(t *testing.T) {
	// Three county centroids in Alabama and one far away in Maine.
	lat := []float64{32.53, 30.73, 31.32, 45.37}
	lon := []float64{-86.64, -87.72, -85.39, -68.65}
	l := NewLocator(lat, lon, 200_000)

	require.Equal(t, 4, l.Len())

	tests := []struct {
		name       string
		lat, lng   float64
		want       uint32
		wantTooFar bool
	}{
		{name: "on a centroid", lat: 32.53, lng: -86.64, want: 0},
		{name: "near Mobile", lat: 30.69, lng: -88.04, want: 1},
		{name: "near Dothan", lat: 31.22, lng: -85.39, want: 2},
		{name: "Bangor", lat: 44.80, lng: -68.77, want: 3},
		{name: "mid Atlantic", lat: 30, lng: -40, wantTooFar: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node, _, err := l.Nearest(tt.lat, tt.lng)
			if tt.wantTooFar {
				assert.ErrorIs(t, err, ErrPointTooFar)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, node)
		})
	}
}

func TestLocatorEmpty(t *testing.T) {
	_, _, err := NewLocator(nil, nil, 0).Nearest(0, 0)
	assert.ErrorIs(t, err, ErrPointTooFar)
}
