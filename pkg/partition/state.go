// Package partition holds the mutable assignment of graph nodes to a fixed
// set of regions, together with the derived structures every move keeps in
// sync: the border index, per-node neighbor-region histograms, and
// per-region population aggregates.
package partition

import (
	"errors"
	"fmt"
	"math"

	"redistrict/pkg/graph"
)

var (
	// ErrInvalidAssignment is returned when an initial assignment does not
	// place every node in exactly one of the requested regions.
	ErrInvalidAssignment = errors.New("invalid assignment")
	// ErrInvalidSnapshot is returned when a snapshot does not match the graph.
	ErrInvalidSnapshot = errors.New("invalid snapshot")
)

const (
	DefaultPopulationFloor = 100_000
	DefaultTotalWeight     = 538
)

// Options configures validation thresholds.
type Options struct {
	// PopulationFloor is the minimum population every region must keep.
	PopulationFloor int64
	// TotalWeight is apportioned across regions by population share.
	TotalWeight int64
	// RequireContiguous rejects initial assignments with a disconnected region.
	RequireContiguous bool
}

// DefaultOptions returns the standard floor and total weight.
func DefaultOptions() Options {
	return Options{
		PopulationFloor: DefaultPopulationFloor,
		TotalWeight:     DefaultTotalWeight,
	}
}

// State is a partition of a graph into a fixed number of regions. It is not
// safe for concurrent use.
type State struct {
	g          *graph.Graph
	opts       Options
	numRegions int
	totalPop   int64

	region    []uint32   // node -> region
	members   [][]uint32 // region -> nodes
	memberPos []int32    // node -> index in members[region[node]]

	nbr    []regionCounts // node -> neighbor count per region
	border []nodeSet      // region -> outside nodes adjacent to it

	pop        []int64
	leanSum    []float64 // sum of population * lean
	weight     []int64
	belowFloor int // regions that are empty or under the floor

	// Contiguity scratch, reset by bumping epoch.
	mark  []uint32
	epoch uint32
	queue []uint32

	// Regions whose border set or candidate weights changed since the last
	// Commit or Rollback.
	dirty     []uint32
	dirtyMark []bool
}

// New builds a State from an assignment of every node to a region in
// [0, numRegions). Each region must receive at least one node.
func New(g *graph.Graph, assignment []uint32, numRegions int, opts Options) (*State, error) {
	if g == nil {
		return nil, fmt.Errorf("nil graph: %w", ErrInvalidAssignment)
	}
	if numRegions <= 0 {
		return nil, fmt.Errorf("region count %d must be positive: %w", numRegions, ErrInvalidAssignment)
	}
	if len(assignment) != int(g.NumNodes) {
		return nil, fmt.Errorf("assignment covers %d nodes, graph has %d: %w",
			len(assignment), g.NumNodes, ErrInvalidAssignment)
	}
	if opts.TotalWeight <= 0 {
		opts.TotalWeight = DefaultTotalWeight
	}
	if opts.PopulationFloor < 0 {
		opts.PopulationFloor = 0
	}

	counts := make([]int, numRegions)
	for n, r := range assignment {
		if int(r) >= numRegions {
			return nil, fmt.Errorf("node %s assigned to region %d of %d: %w",
				g.NodeID[n], r, numRegions, ErrInvalidAssignment)
		}
		counts[r]++
	}
	for r, c := range counts {
		if c == 0 {
			return nil, fmt.Errorf("region %d is empty: %w", r, ErrInvalidAssignment)
		}
	}

	s := &State{
		g:          g,
		opts:       opts,
		numRegions: numRegions,
		totalPop:   g.TotalPopulation(),
		mark:       make([]uint32, g.NumNodes),
		dirtyMark:  make([]bool, numRegions),
	}
	s.rebuild(assignment, nil)

	if opts.RequireContiguous {
		if bad := s.Disconnected(); len(bad) > 0 {
			return nil, fmt.Errorf("regions %v are not contiguous: %w", bad, ErrInvalidAssignment)
		}
	}
	return s, nil
}

// rebuild recomputes every derived structure from scratch. members, when
// non-nil, fixes the per-region member order.
func (s *State) rebuild(assignment []uint32, members [][]uint32) {
	g := s.g
	n := int(g.NumNodes)

	s.region = append(s.region[:0], assignment...)
	s.memberPos = make([]int32, n)
	s.members = make([][]uint32, s.numRegions)
	if members != nil {
		for r := range members {
			s.members[r] = append([]uint32(nil), members[r]...)
		}
	} else {
		for node, r := range assignment {
			s.members[r] = append(s.members[r], uint32(node))
		}
	}
	for _, list := range s.members {
		for i, node := range list {
			s.memberPos[node] = int32(i)
		}
	}

	s.nbr = make([]regionCounts, n)
	s.border = make([]nodeSet, s.numRegions)
	for r := range s.border {
		s.border[r] = newNodeSet()
	}
	for u := uint32(0); u < g.NumNodes; u++ {
		for _, v := range g.Neighbors(u) {
			s.nbr[u].inc(s.region[v])
		}
		// Neighbor order keeps border insertion deterministic.
		for _, v := range g.Neighbors(u) {
			if r := s.region[v]; r != s.region[u] {
				s.border[r].add(u)
			}
		}
	}

	s.pop = make([]int64, s.numRegions)
	s.leanSum = make([]float64, s.numRegions)
	s.weight = make([]int64, s.numRegions)
	for u, r := range s.region {
		p := g.Population[u]
		s.pop[r] += p
		s.leanSum[r] += float64(p) * g.Lean[u]
	}
	s.belowFloor = 0
	for r := 0; r < s.numRegions; r++ {
		s.weight[r] = s.apportion(s.pop[r])
		if s.isBelow(uint32(r)) {
			s.belowFloor++
		}
	}
	s.resetChanges()
}

// apportion returns round-half-even(pop * TotalWeight / totalPop).
func (s *State) apportion(pop int64) int64 {
	if s.totalPop == 0 {
		return 0
	}
	return int64(math.RoundToEven(float64(pop) * float64(s.opts.TotalWeight) / float64(s.totalPop)))
}

func (s *State) isBelow(r uint32) bool {
	return len(s.members[r]) == 0 || s.pop[r] < s.opts.PopulationFloor
}

func (s *State) markDirty(r uint32) {
	if !s.dirtyMark[r] {
		s.dirtyMark[r] = true
		s.dirty = append(s.dirty, r)
	}
}

func (s *State) resetChanges() {
	for _, r := range s.dirty {
		s.dirtyMark[r] = false
	}
	s.dirty = s.dirty[:0]
}

// Undo holds what Rollback needs to restore a tentative move exactly.
type Undo struct {
	Node, From, To uint32

	pop    [2]int64
	lean   [2]float64
	weight [2]int64
}

// Apply moves node into region to and updates every derived structure in
// O(degree). to must differ from the node's current region. The move stays
// tentative until Commit or Rollback.
func (s *State) Apply(node, to uint32) Undo {
	from := s.region[node]
	u := Undo{
		Node:   node,
		From:   from,
		To:     to,
		pop:    [2]int64{s.pop[from], s.pop[to]},
		lean:   [2]float64{s.leanSum[from], s.leanSum[to]},
		weight: [2]int64{s.weight[from], s.weight[to]},
	}

	s.move(node, from, to)

	p := s.g.Population[node]
	pl := float64(p) * s.g.Lean[node]
	s.setAggregate(from, s.pop[from]-p, s.leanSum[from]-pl, -1)
	s.setAggregate(to, s.pop[to]+p, s.leanSum[to]+pl, -1)
	return u
}

// Rollback reverses a tentative move, restoring aggregates bit for bit, and
// discards the pending change set.
func (s *State) Rollback(u Undo) {
	s.move(u.Node, u.To, u.From)
	s.setAggregate(u.From, u.pop[0], u.lean[0], u.weight[0])
	s.setAggregate(u.To, u.pop[1], u.lean[1], u.weight[1])
	s.resetChanges()
}

// Commit finalizes tentative moves and returns the regions whose border
// candidates changed since the previous Commit.
func (s *State) Commit() []uint32 {
	out := append([]uint32(nil), s.dirty...)
	s.resetChanges()
	return out
}

// setAggregate writes a region's aggregates and keeps belowFloor in step.
// weight < 0 recomputes the apportioned weight.
func (s *State) setAggregate(r uint32, pop int64, leanSum float64, weight int64) {
	if s.isBelow(r) {
		s.belowFloor--
	}
	s.pop[r] = pop
	s.leanSum[r] = leanSum
	if weight < 0 {
		weight = s.apportion(pop)
	}
	s.weight[r] = weight
	if s.isBelow(r) {
		s.belowFloor++
	}
}

// move updates membership, histograms, and the border index. Aggregates are
// the caller's job.
func (s *State) move(node, from, to uint32) {
	// Floor status depends on member counts too.
	wasBelow := [2]bool{s.isBelow(from), s.isBelow(to)}

	// Membership.
	list := s.members[from]
	i := s.memberPos[node]
	last := list[len(list)-1]
	list[i] = last
	s.memberPos[last] = i
	s.members[from] = list[:len(list)-1]
	s.memberPos[node] = int32(len(s.members[to]))
	s.members[to] = append(s.members[to], node)
	s.region[node] = to

	s.adjustFloor(from, wasBelow[0])
	s.adjustFloor(to, wasBelow[1])

	// The node itself: it now borders its old region if it has a neighbor
	// there, and can no longer border its own region.
	if s.nbr[node].get(from) > 0 {
		s.border[from].add(node)
	}
	s.border[to].remove(node)
	s.markDirty(from)
	s.markDirty(to)

	// Neighbors: shift one count from the old region to the new one.
	for _, m := range s.g.Neighbors(node) {
		rm := s.region[m]
		kChanged := false
		if c := s.nbr[m].dec(from); c == 0 {
			kChanged = true
			if rm != from {
				s.border[from].remove(m)
			}
		}
		if c := s.nbr[m].inc(to); c == 1 {
			kChanged = true
			if rm != to {
				s.border[to].add(m)
			}
		}
		if kChanged {
			// m's candidate weight changed in every region it borders.
			for _, e := range s.nbr[m] {
				if e.region != rm {
					s.markDirty(e.region)
				}
			}
		}
	}
}

func (s *State) adjustFloor(r uint32, wasBelow bool) {
	if nowBelow := s.isBelow(r); nowBelow != wasBelow {
		if nowBelow {
			s.belowFloor++
		} else {
			s.belowFloor--
		}
	}
}

// Graph returns the underlying graph.
func (s *State) Graph() *graph.Graph { return s.g }

// Options returns the thresholds in effect.
func (s *State) Options() Options { return s.opts }

// NumRegions returns the fixed region count.
func (s *State) NumRegions() int { return s.numRegions }

// NumNodes returns the node count.
func (s *State) NumNodes() int { return len(s.region) }

// TotalPopulation returns the population of all nodes.
func (s *State) TotalPopulation() int64 { return s.totalPop }

// RegionOf returns the region of node n.
func (s *State) RegionOf(n uint32) uint32 { return s.region[n] }

// Size returns the number of nodes in region r.
func (s *State) Size(r uint32) int { return len(s.members[r]) }

// Members returns a copy of region r's nodes.
func (s *State) Members(r uint32) []uint32 {
	return append([]uint32(nil), s.members[r]...)
}

// Assignment returns a copy of the node→region mapping.
func (s *State) Assignment() []uint32 {
	return append([]uint32(nil), s.region...)
}

// Population returns the total population of region r.
func (s *State) Population(r uint32) int64 { return s.pop[r] }

// LeanSum returns the population-weighted lean sum of region r.
func (s *State) LeanSum(r uint32) float64 { return s.leanSum[r] }

// AverageLean returns the population-weighted average lean of region r, or
// 0 when the region has no population.
func (s *State) AverageLean(r uint32) float64 {
	if s.pop[r] == 0 {
		return 0
	}
	return s.leanSum[r] / float64(s.pop[r])
}

// Weight returns the apportioned weight of region r.
func (s *State) Weight(r uint32) int64 { return s.weight[r] }

// Border returns a copy of region r's border nodes.
func (s *State) Border(r uint32) []uint32 {
	return append([]uint32(nil), s.border[r].items...)
}

// BorderView returns region r's border nodes without copying. The slice is
// invalidated by the next Apply or Rollback and must not be modified.
func (s *State) BorderView(r uint32) []uint32 { return s.border[r].items }

// InBorder reports whether n is outside region r and adjacent to it.
func (s *State) InBorder(r, n uint32) bool { return s.border[r].has(n) }

// NeighborRegions returns how many distinct regions n's neighbors belong to.
func (s *State) NeighborRegions(n uint32) int { return len(s.nbr[n]) }

// ForeignNeighborRegion returns the region of n's first neighbor, in
// adjacency order, that lies outside n's own region.
func (s *State) ForeignNeighborRegion(n uint32) (uint32, bool) {
	own := s.region[n]
	for _, m := range s.g.Neighbors(n) {
		if r := s.region[m]; r != own {
			return r, true
		}
	}
	return 0, false
}

// PopulationOK reports whether every region is non-empty and at or above
// the population floor.
func (s *State) PopulationOK() bool { return s.belowFloor == 0 }
