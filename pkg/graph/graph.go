package graph

import "errors"

// ErrInvalidGraph is returned when input data cannot form a valid adjacency graph.
var ErrInvalidGraph = errors.New("invalid graph")

// NoRegion marks a node with no home region.
const NoRegion = ^uint32(0)

// Graph is an undirected county adjacency graph in CSR (Compressed Sparse Row)
// format. Every edge is stored in both directions. Immutable once built.
type Graph struct {
	NumNodes uint32
	NumEdges uint32   // directed half-edges, 2x the undirected count
	FirstOut []uint32 // len: NumNodes + 1; FirstOut[i]..FirstOut[i+1] are neighbors of node i
	Head     []uint32 // len: NumEdges; neighbor for each half-edge, ascending per node

	NodeID     []string  // len: NumNodes; external id (FIPS)
	Population []int64   // len: NumNodes
	Lean       []float64 // len: NumNodes

	// Optional centroid coordinates, nil when not loaded.
	NodeLat []float64
	NodeLon []float64

	// HomeRegion is the index into RegionLabel of each node's real-world region.
	HomeRegion  []uint32 // len: NumNodes
	RegionLabel []string
}

// EdgesFrom returns the range of half-edge indices for neighbors of node u.
func (g *Graph) EdgesFrom(u uint32) (start, end uint32) {
	return g.FirstOut[u], g.FirstOut[u+1]
}

// Neighbors returns the neighbor slice of u. The slice aliases Head.
func (g *Graph) Neighbors(u uint32) []uint32 {
	return g.Head[g.FirstOut[u]:g.FirstOut[u+1]]
}

// Degree returns the number of neighbors of u.
func (g *Graph) Degree(u uint32) int {
	return int(g.FirstOut[u+1] - g.FirstOut[u])
}

// HasCoordinates reports whether centroids are loaded.
func (g *Graph) HasCoordinates() bool {
	return len(g.NodeLat) == int(g.NumNodes) && g.NumNodes > 0
}

// NodeIndex builds an id→index lookup.
func (g *Graph) NodeIndex() map[string]uint32 {
	idx := make(map[string]uint32, g.NumNodes)
	for i, id := range g.NodeID {
		idx[id] = uint32(i)
	}
	return idx
}

// TotalPopulation sums Population over all nodes.
func (g *Graph) TotalPopulation() int64 {
	var total int64
	for _, p := range g.Population {
		total += p
	}
	return total
}
