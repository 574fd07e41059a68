package search

import (
	"math"

	"redistrict/pkg/partition"
)

// reward is sign(x) - x: full credit for a region barely on the right side,
// shrinking as it leans harder, negative once it is on the wrong side.
func reward(x float64) float64 {
	var sign float64
	switch {
	case x > 0:
		sign = 1
	case x < 0:
		sign = -1
	}
	return sign - x
}

// contribution is one region's share of the objective.
func contribution(t Target, weight int64, lean float64) float64 {
	w := float64(weight)
	switch t {
	case SideA:
		return w * reward(lean)
	case SideB:
		return w * reward(-lean)
	default:
		return w * -math.Abs(lean)
	}
}

// scoreCache holds the objective and each region's contribution for one
// target. Moves update only the two touched regions.
type scoreCache struct {
	valid   bool
	target  Target
	contrib []float64
	total   float64
}

// scoreSave is what a rollback needs to restore the cache exactly.
type scoreSave struct {
	total  float64
	donor  float64
	recv   float64
	active bool
}

func (c *scoreCache) ensure(st *partition.State, t Target) {
	if c.valid && c.target == t {
		return
	}
	n := st.NumRegions()
	if cap(c.contrib) < n {
		c.contrib = make([]float64, n)
	}
	c.contrib = c.contrib[:n]
	c.total = 0
	for r := 0; r < n; r++ {
		v := contribution(t, st.Weight(uint32(r)), st.AverageLean(uint32(r)))
		c.contrib[r] = v
		c.total += v
	}
	c.target = t
	c.valid = true
}

func (c *scoreCache) invalidate() { c.valid = false }

// update recomputes donor and receiver after a move and returns the state
// needed to undo it.
func (c *scoreCache) update(st *partition.State, donor, recv uint32) scoreSave {
	save := scoreSave{total: c.total, donor: c.contrib[donor], recv: c.contrib[recv], active: true}
	for _, r := range [2]uint32{donor, recv} {
		v := contribution(c.target, st.Weight(r), st.AverageLean(r))
		c.total += v - c.contrib[r]
		c.contrib[r] = v
	}
	return save
}

func (c *scoreCache) restore(save scoreSave, donor, recv uint32) {
	if !save.active {
		return
	}
	c.total = save.total
	c.contrib[donor] = save.donor
	c.contrib[recv] = save.recv
}
