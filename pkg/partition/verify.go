package partition

import (
	"fmt"
	"math"
)

const leanTolerance = 1e-6

// Verify recomputes every derived structure from the node→region mapping
// and reports the first mismatch. It is O(nodes + edges) and meant for
// tests and debug checks, not the hot path.
func (s *State) Verify() error {
	g := s.g
	n := len(s.region)

	// Partition consistency.
	total := 0
	for r, list := range s.members {
		for i, node := range list {
			if int(node) >= n {
				return fmt.Errorf("region %d lists node %d out of range", r, node)
			}
			if s.region[node] != uint32(r) {
				return fmt.Errorf("region %d lists node %d assigned to %d", r, node, s.region[node])
			}
			if s.memberPos[node] != int32(i) {
				return fmt.Errorf("node %d position %d, found at %d", node, s.memberPos[node], i)
			}
		}
		total += len(list)
	}
	if total != n {
		return fmt.Errorf("regions list %d nodes, graph has %d", total, n)
	}

	// Neighbor histograms and border index.
	want := make([]map[uint32]bool, s.numRegions)
	for r := range want {
		want[r] = make(map[uint32]bool)
	}
	for u := uint32(0); u < g.NumNodes; u++ {
		counts := make(map[uint32]int32)
		for _, v := range g.Neighbors(u) {
			counts[s.region[v]]++
		}
		if len(counts) != len(s.nbr[u]) {
			return fmt.Errorf("node %d: %d neighbor regions cached, %d actual", u, len(s.nbr[u]), len(counts))
		}
		for reg, c := range counts {
			if got := s.nbr[u].get(reg); got != c {
				return fmt.Errorf("node %d: region %d count %d cached, %d actual", u, reg, got, c)
			}
			if reg != s.region[u] {
				want[reg][u] = true
			}
		}
	}
	for r := range want {
		b := &s.border[r]
		if len(b.items) != len(b.pos) {
			return fmt.Errorf("region %d border index corrupt: %d items, %d positions", r, len(b.items), len(b.pos))
		}
		if len(want[r]) != b.len() {
			return fmt.Errorf("region %d border has %d nodes, want %d", r, b.len(), len(want[r]))
		}
		for node := range want[r] {
			if !b.has(node) {
				return fmt.Errorf("region %d border missing node %d", r, node)
			}
		}
		for i, node := range b.items {
			if b.pos[node] != int32(i) {
				return fmt.Errorf("region %d border position of %d is %d, found at %d", r, node, b.pos[node], i)
			}
		}
	}

	// Aggregates.
	pop := make([]int64, s.numRegions)
	lean := make([]float64, s.numRegions)
	for u, r := range s.region {
		pop[r] += g.Population[u]
		lean[r] += float64(g.Population[u]) * g.Lean[u]
	}
	below := 0
	for r := 0; r < s.numRegions; r++ {
		if pop[r] != s.pop[r] {
			return fmt.Errorf("region %d population %d cached, %d actual", r, s.pop[r], pop[r])
		}
		scale := math.Max(1, math.Abs(lean[r]))
		if math.Abs(lean[r]-s.leanSum[r]) > leanTolerance*scale {
			return fmt.Errorf("region %d lean sum %g cached, %g actual", r, s.leanSum[r], lean[r])
		}
		if w := s.apportion(pop[r]); w != s.weight[r] {
			return fmt.Errorf("region %d weight %d cached, %d actual", r, s.weight[r], w)
		}
		if len(s.members[r]) == 0 || pop[r] < s.opts.PopulationFloor {
			below++
		}
	}
	if below != s.belowFloor {
		return fmt.Errorf("%d regions below floor cached, %d actual", s.belowFloor, below)
	}
	return nil
}
