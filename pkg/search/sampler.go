package search

import (
	"math"
	"math/rand"
	"slices"
	"sort"

	"redistrict/pkg/partition"
)

// cumTable is a cumulative weight table sampled with one uniform draw and a
// binary search.
type cumTable struct {
	items []uint32
	cum   []float64
}

func (t *cumTable) reset() {
	t.items = t.items[:0]
	t.cum = t.cum[:0]
}

func (t *cumTable) add(item uint32, w float64) {
	total := w
	if n := len(t.cum); n > 0 {
		total += t.cum[n-1]
	}
	t.items = append(t.items, item)
	t.cum = append(t.cum, total)
}

func (t *cumTable) total() float64 {
	if len(t.cum) == 0 {
		return 0
	}
	return t.cum[len(t.cum)-1]
}

func (t *cumTable) weightAt(i int) float64 {
	if i == 0 {
		return t.cum[0]
	}
	return t.cum[i] - t.cum[i-1]
}

// search returns the first index whose cumulative weight exceeds x.
func (t *cumTable) search(x float64) int {
	i := sort.Search(len(t.cum), func(i int) bool { return t.cum[i] > x })
	if i == len(t.cum) {
		i--
	}
	return i
}

// draw picks an index, never skip when skip >= 0. The excluded slot is cut
// out of the range by shifting draws that land at or past it.
func (t *cumTable) draw(rng *rand.Rand, skip int) (int, bool) {
	n := len(t.items)
	if n == 0 || (n == 1 && skip == 0) {
		return 0, false
	}
	if skip < 0 {
		return t.search(rng.Float64() * t.total()), true
	}
	ws := t.weightAt(skip)
	x := rng.Float64() * (t.total() - ws)
	before := t.cum[skip] - ws
	if x >= before {
		x += ws
	}
	i := t.search(x)
	if i == skip {
		// Rounding at the boundary.
		if i+1 < n {
			i++
		} else {
			i--
		}
	}
	return i, true
}

// regionWeight is exp(1/rank^2) for 1-based rank by ascending size.
func regionWeight(rank int) float64 {
	r := float64(rank)
	return math.Exp(1 / (r * r))
}

// nodeWeight is exp(1/k^2) for a node touching k distinct regions.
func nodeWeight(k int) float64 {
	if k < 1 {
		k = 1
	}
	f := float64(k)
	return math.Exp(1 / (f * f))
}

// sampler draws regions and border nodes from lazily rebuilt tables.
type sampler struct {
	st  *partition.State
	rng *rand.Rand

	regions      cumTable
	regionsStale bool
	order        []uint32

	border      []cumTable
	borderStale []bool
}

func newSampler(st *partition.State, rng *rand.Rand) *sampler {
	n := st.NumRegions()
	s := &sampler{
		st:          st,
		rng:         rng,
		order:       make([]uint32, n),
		border:      make([]cumTable, n),
		borderStale: make([]bool, n),
	}
	s.invalidateAll()
	return s
}

func (s *sampler) invalidateAll() {
	s.regionsStale = true
	for r := range s.borderStale {
		s.borderStale[r] = true
	}
}

// committed marks tables touched by a committed move. Every committed move
// changes two region sizes, so the region table is always stale afterwards.
func (s *sampler) committed(dirty []uint32) {
	s.regionsStale = true
	for _, r := range dirty {
		s.borderStale[r] = true
	}
}

func (s *sampler) rebuildRegions() {
	for i := range s.order {
		s.order[i] = uint32(i)
	}
	slices.SortFunc(s.order, func(a, b uint32) int {
		if d := s.st.Size(a) - s.st.Size(b); d != 0 {
			return d
		}
		return int(a) - int(b)
	})
	weights := make([]float64, len(s.order))
	for rank, r := range s.order {
		weights[r] = regionWeight(rank + 1)
	}
	s.regions.reset()
	for r, w := range weights {
		s.regions.add(uint32(r), w)
	}
	s.regionsStale = false
}

func (s *sampler) rebuildBorder(r uint32) {
	t := &s.border[r]
	t.reset()
	for _, n := range s.st.BorderView(r) {
		t.add(n, nodeWeight(s.st.NeighborRegions(n)))
	}
	s.borderStale[r] = false
}

// Region draws a region, favoring the smallest.
func (s *sampler) Region() uint32 {
	if s.regionsStale {
		s.rebuildRegions()
	}
	i, _ := s.regions.draw(s.rng, -1)
	return s.regions.items[i]
}

// BorderNode draws a node from region r's border, never exclude. It reports
// false when no candidate remains.
func (s *sampler) BorderNode(r, exclude uint32) (uint32, bool) {
	if s.borderStale[r] {
		s.rebuildBorder(r)
	}
	t := &s.border[r]
	skip := -1
	if exclude != NoNode {
		skip = slices.Index(t.items, exclude)
	}
	i, ok := t.draw(s.rng, skip)
	if !ok {
		return NoNode, false
	}
	return t.items[i], true
}
