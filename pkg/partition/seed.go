package partition

import (
	"fmt"
	"math/rand"
	"sort"

	"redistrict/pkg/graph"
)

// HomeAssignment returns each node's real-world region from the dataset.
func HomeAssignment(g *graph.Graph) ([]uint32, int, error) {
	assignment := make([]uint32, g.NumNodes)
	for i, r := range g.HomeRegion {
		if r == graph.NoRegion {
			return nil, 0, fmt.Errorf("node %s has no home region: %w", g.NodeID[i], ErrInvalidAssignment)
		}
		assignment[i] = r
	}
	return assignment, len(g.RegionLabel), nil
}

// Pair names the region label of one node in an explicit assignment.
type Pair struct {
	NodeID string
	Label  string
}

// FromLabels resolves explicit (node id, region label) pairs. Labels are
// indexed in sorted order, which is also the order of the returned labels.
// Every node must appear exactly once.
func FromLabels(g *graph.Graph, pairs []Pair) ([]uint32, []string, error) {
	index := g.NodeIndex()

	labelSet := make(map[string]struct{})
	for _, p := range pairs {
		labelSet[p.Label] = struct{}{}
	}
	labels := make([]string, 0, len(labelSet))
	for l := range labelSet {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	labelIdx := make(map[string]uint32, len(labels))
	for i, l := range labels {
		labelIdx[l] = uint32(i)
	}

	assignment := make([]uint32, g.NumNodes)
	seen := make([]bool, g.NumNodes)
	for _, p := range pairs {
		n, ok := index[p.NodeID]
		if !ok {
			return nil, nil, fmt.Errorf("unknown node %s: %w", p.NodeID, ErrInvalidAssignment)
		}
		if seen[n] {
			return nil, nil, fmt.Errorf("node %s assigned twice: %w", p.NodeID, ErrInvalidAssignment)
		}
		seen[n] = true
		assignment[n] = labelIdx[p.Label]
	}
	for n, ok := range seen {
		if !ok {
			return nil, nil, fmt.Errorf("node %s not assigned: %w", g.NodeID[n], ErrInvalidAssignment)
		}
	}
	return assignment, labels, nil
}

// GrowSeed builds a random contiguous partition into numRegions regions by
// growing all regions at once from random seed nodes, breadth first, with
// each BFS level shuffled. Every connected component gets at least one seed
// so no node is left unassigned.
func GrowSeed(g *graph.Graph, numRegions int, rng *rand.Rand) ([]uint32, error) {
	n := int(g.NumNodes)
	if numRegions <= 0 || numRegions > n {
		return nil, fmt.Errorf("cannot seed %d regions over %d nodes: %w", numRegions, n, ErrInvalidAssignment)
	}
	comp, numComp := graph.Components(g)
	if numRegions < numComp {
		return nil, fmt.Errorf("graph has %d components, more than %d regions: %w",
			numComp, numRegions, ErrInvalidAssignment)
	}

	// One seed per component, then the rest anywhere.
	byComp := make([][]uint32, numComp)
	for node, c := range comp {
		byComp[c] = append(byComp[c], uint32(node))
	}
	assigned := make([]int32, n)
	for i := range assigned {
		assigned[i] = -1
	}
	type entry struct {
		node   uint32
		region uint32
	}
	queue := make([]entry, 0, n)
	seed := func(node uint32) {
		r := uint32(len(queue))
		assigned[node] = int32(r)
		queue = append(queue, entry{node, r})
	}
	for _, nodes := range byComp {
		seed(nodes[rng.Intn(len(nodes))])
	}
	if extra := numRegions - numComp; extra > 0 {
		rest := make([]uint32, 0, n-numComp)
		for node := range assigned {
			if assigned[node] < 0 {
				rest = append(rest, uint32(node))
			}
		}
		rng.Shuffle(len(rest), func(i, j int) { rest[i], rest[j] = rest[j], rest[i] })
		for _, node := range rest[:extra] {
			seed(node)
		}
	}

	// Multi-source BFS, shuffling each level so shapes vary.
	head := 0
	for head < len(queue) {
		levelEnd := len(queue)
		for i := levelEnd - 1; i > head; i-- {
			j := head + rng.Intn(i-head+1)
			queue[i], queue[j] = queue[j], queue[i]
		}
		for head < levelEnd {
			e := queue[head]
			head++
			for _, v := range g.Neighbors(e.node) {
				if assigned[v] < 0 {
					assigned[v] = int32(e.region)
					queue = append(queue, entry{v, e.region})
				}
			}
		}
	}

	out := make([]uint32, n)
	for i, r := range assigned {
		out[i] = uint32(r)
	}
	return out, nil
}
