package graph

import "slices"

// UnionFind implements a disjoint-set data structure with path compression
// and union by rank.
type UnionFind struct {
	parent []uint32
	rank   []byte
	size   []uint32
}

// NewUnionFind creates a UnionFind for n elements.
func NewUnionFind(n uint32) *UnionFind {
	parent := make([]uint32, n)
	size := make([]uint32, n)
	for i := range n {
		parent[i] = i
		size[i] = 1
	}
	return &UnionFind{
		parent: parent,
		rank:   make([]byte, n),
		size:   size,
	}
}

// Find returns the representative of the set containing x, with path halving.
func (uf *UnionFind) Find(x uint32) uint32 {
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]]
		x = uf.parent[x]
	}
	return x
}

// Union merges the sets containing x and y. Returns false if already same set.
func (uf *UnionFind) Union(x, y uint32) bool {
	rx := uf.Find(x)
	ry := uf.Find(y)
	if rx == ry {
		return false
	}
	if uf.rank[rx] < uf.rank[ry] {
		rx, ry = ry, rx
	}
	uf.parent[ry] = rx
	uf.size[rx] += uf.size[ry]
	if uf.rank[rx] == uf.rank[ry] {
		uf.rank[rx]++
	}
	return true
}

// Size returns the size of the set containing x.
func (uf *UnionFind) Size(x uint32) uint32 {
	return uf.size[uf.Find(x)]
}

// Components labels every node with a dense component index, numbered in
// order of each component's lowest node. Returns the labels and the count.
func Components(g *Graph) ([]uint32, int) {
	uf := NewUnionFind(g.NumNodes)
	for u := uint32(0); u < g.NumNodes; u++ {
		for _, v := range g.Neighbors(u) {
			uf.Union(u, v)
		}
	}

	labels := make([]uint32, g.NumNodes)
	dense := make(map[uint32]uint32)
	for i := uint32(0); i < g.NumNodes; i++ {
		root := uf.Find(i)
		c, ok := dense[root]
		if !ok {
			c = uint32(len(dense))
			dense[root] = c
		}
		labels[i] = c
	}
	return labels, len(dense)
}

// LargestComponent returns the node indices belonging to the largest
// connected component. Ties go to the component containing the lower node.
func LargestComponent(g *Graph) []uint32 {
	if g.NumNodes == 0 {
		return nil
	}
	labels, count := Components(g)
	sizes := make([]uint32, count)
	for _, c := range labels {
		sizes[c]++
	}
	best := uint32(0)
	for c := range sizes {
		if sizes[c] > sizes[best] {
			best = uint32(c)
		}
	}

	nodes := make([]uint32, 0, sizes[best])
	for i, c := range labels {
		if c == best {
			nodes = append(nodes, uint32(i))
		}
	}
	return nodes
}

// FilterToComponent creates a new graph containing only the specified nodes,
// in the given order. Region labels no longer used by any node are dropped.
func FilterToComponent(g *Graph, nodes []uint32) *Graph {
	if len(nodes) == 0 {
		return &Graph{FirstOut: []uint32{0}}
	}

	oldToNew := make(map[uint32]uint32, len(nodes))
	for newIdx, oldIdx := range nodes {
		oldToNew[oldIdx] = uint32(newIdx)
	}
	numNodes := uint32(len(nodes))

	// Neighbor lists must stay ascending for an arbitrary node order.
	firstOut := make([]uint32, numNodes+1)
	var head []uint32
	for newU, oldU := range nodes {
		start := len(head)
		for _, oldV := range g.Neighbors(oldU) {
			if newV, ok := oldToNew[oldV]; ok {
				head = append(head, newV)
			}
		}
		slices.Sort(head[start:])
		firstOut[newU+1] = uint32(len(head))
	}

	out := &Graph{
		NumNodes:   numNodes,
		NumEdges:   uint32(len(head)),
		FirstOut:   firstOut,
		Head:       head,
		NodeID:     make([]string, numNodes),
		Population: make([]int64, numNodes),
		Lean:       make([]float64, numNodes),
		HomeRegion: make([]uint32, numNodes),
	}
	if g.HasCoordinates() {
		out.NodeLat = make([]float64, numNodes)
		out.NodeLon = make([]float64, numNodes)
	}

	regionMap := make(map[uint32]uint32)
	for newIdx, oldIdx := range nodes {
		out.NodeID[newIdx] = g.NodeID[oldIdx]
		out.Population[newIdx] = g.Population[oldIdx]
		out.Lean[newIdx] = g.Lean[oldIdx]
		if out.NodeLat != nil {
			out.NodeLat[newIdx] = g.NodeLat[oldIdx]
			out.NodeLon[newIdx] = g.NodeLon[oldIdx]
		}
		out.HomeRegion[newIdx] = NoRegion
		if r := g.HomeRegion[oldIdx]; r != NoRegion {
			regionMap[r] = 0
		}
	}

	// Keep surviving labels in their original (sorted) order.
	for r := range g.RegionLabel {
		if _, ok := regionMap[uint32(r)]; ok {
			regionMap[uint32(r)] = uint32(len(out.RegionLabel))
			out.RegionLabel = append(out.RegionLabel, g.RegionLabel[r])
		}
	}
	for newIdx, oldIdx := range nodes {
		if r := g.HomeRegion[oldIdx]; r != NoRegion {
			out.HomeRegion[newIdx] = regionMap[r]
		}
	}
	return out
}
