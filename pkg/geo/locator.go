package geo

import (
	"errors"
	"math"

	"github.com/tidwall/rtree"
)

// ErrPointTooFar is returned when no indexed point lies within the
// locator's maximum distance.
var ErrPointTooFar = errors.New("point too far from any county")

const (
	initialSearchDeg = 0.25
	maxSearchDeg     = 45.0
)

// Locator finds the node whose centroid is nearest to a coordinate.
type Locator struct {
	tree    rtree.RTreeG[uint32]
	lat     []float64
	lon     []float64
	maxDist float64
}

// NewLocator indexes the given centroids; index i becomes node i.
// maxDistMeters <= 0 disables the distance limit.
func NewLocator(lat, lon []float64, maxDistMeters float64) *Locator {
	l := &Locator{lat: lat, lon: lon, maxDist: maxDistMeters}
	for i := range lat {
		p := [2]float64{lon[i], lat[i]}
		l.tree.Insert(p, p, uint32(i))
	}
	return l
}

// Len returns the number of indexed points.
func (l *Locator) Len() int {
	return l.tree.Len()
}

// Nearest returns the node nearest to (lat, lng) and its distance in meters.
func (l *Locator) Nearest(lat, lng float64) (uint32, float64, error) {
	if l.tree.Len() == 0 {
		return 0, 0, ErrPointTooFar
	}

	// Grow the box until something is inside, then search once more at
	// twice the size so a closer point just outside the first box's
	// corner is not missed.
	half := initialSearchDeg
	for half <= maxSearchDeg && !l.any(lat, lng, half) {
		half *= 2
	}
	if half > maxSearchDeg {
		return 0, 0, ErrPointTooFar
	}

	best := uint32(0)
	bestDist := math.Inf(1)
	l.search(lat, lng, 2*half, func(node uint32) {
		d := EquirectangularDist(lat, lng, l.lat[node], l.lon[node])
		if d < bestDist || (d == bestDist && node < best) {
			best, bestDist = node, d
		}
	})

	dist := Haversine(lat, lng, l.lat[best], l.lon[best])
	if l.maxDist > 0 && dist > l.maxDist {
		return 0, dist, ErrPointTooFar
	}
	return best, dist, nil
}

func (l *Locator) any(lat, lng, half float64) bool {
	found := false
	min, max := box(lat, lng, half)
	l.tree.Search(min, max, func(_, _ [2]float64, _ uint32) bool {
		found = true
		return false
	})
	return found
}

func (l *Locator) search(lat, lng, half float64, visit func(node uint32)) {
	min, max := box(lat, lng, half)
	l.tree.Search(min, max, func(_, _ [2]float64, node uint32) bool {
		visit(node)
		return true
	})
}

func box(lat, lng, half float64) (min, max [2]float64) {
	return [2]float64{lng - half, lat - half}, [2]float64{lng + half, lat + half}
}
