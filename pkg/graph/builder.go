package graph

import (
	"fmt"
	"log/slog"
	"sort"

	"redistrict/pkg/adjacency"
)

// Build creates a symmetric CSR Graph from a parsed adjacency list.
// Self pairs and duplicate pairs are dropped; an edge listed in only one
// direction is added in both.
func Build(result *adjacency.ParseResult) (*Graph, error) {
	nodes := result.Nodes
	if len(nodes) == 0 {
		return &Graph{FirstOut: []uint32{0}}, nil
	}

	// Step 1: Compact node ids in first-seen order.
	index := make(map[string]uint32, len(nodes))
	ids := make([]string, len(nodes))
	for i, n := range nodes {
		if n.ID == "" {
			return nil, fmt.Errorf("node %d has empty id: %w", i, ErrInvalidGraph)
		}
		if _, dup := index[n.ID]; dup {
			return nil, fmt.Errorf("duplicate node id %s: %w", n.ID, ErrInvalidGraph)
		}
		index[n.ID] = uint32(i)
		ids[i] = n.ID
	}
	numNodes := uint32(len(nodes))

	// Step 2: Region labels, sorted for a stable index.
	labelSet := make(map[string]struct{})
	for _, n := range nodes {
		if n.Region != "" {
			labelSet[n.Region] = struct{}{}
		}
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
	home := make([]uint32, numNodes)
	for i, n := range nodes {
		if r, ok := labelIdx[n.Region]; ok {
			home[i] = r
		} else {
			home[i] = NoRegion
		}
	}

	// Step 3: Both directions of every pair, minus self loops.
	type halfEdge struct{ from, to uint32 }
	half := make([]halfEdge, 0, 2*len(result.Edges))
	for _, e := range result.Edges {
		u, ok := index[e.From]
		if !ok {
			return nil, fmt.Errorf("edge references unknown node %s: %w", e.From, ErrInvalidGraph)
		}
		v, ok := index[e.To]
		if !ok {
			return nil, fmt.Errorf("edge references unknown node %s: %w", e.To, ErrInvalidGraph)
		}
		if u == v {
			continue
		}
		half = append(half, halfEdge{u, v}, halfEdge{v, u})
	}

	// Step 4: Sort and dedupe.
	sort.Slice(half, func(i, j int) bool {
		if half[i].from != half[j].from {
			return half[i].from < half[j].from
		}
		return half[i].to < half[j].to
	})
	uniq := half[:0]
	for i, e := range half {
		if i > 0 && e == half[i-1] {
			continue
		}
		uniq = append(uniq, e)
	}

	// Step 5: CSR arrays.
	numEdges := uint32(len(uniq))
	firstOut := make([]uint32, numNodes+1)
	head := make([]uint32, numEdges)
	for i, e := range uniq {
		head[i] = e.to
		firstOut[e.from+1]++
	}
	for i := uint32(1); i <= numNodes; i++ {
		firstOut[i] += firstOut[i-1]
	}

	return &Graph{
		NumNodes:    numNodes,
		NumEdges:    numEdges,
		FirstOut:    firstOut,
		Head:        head,
		NodeID:      ids,
		Population:  make([]int64, numNodes),
		Lean:        make([]float64, numNodes),
		HomeRegion:  home,
		RegionLabel: labels,
	}, nil
}

// SetAttributes copies population and lean onto the graph. A node without
// attributes is an error unless allowMissing, in which case it gets zero
// population and zero lean.
func (g *Graph) SetAttributes(attrs adjacency.Attributes, allowMissing bool, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	var missing int
	for i, id := range g.NodeID {
		a, ok := attrs[id]
		if !ok {
			if !allowMissing {
				return fmt.Errorf("node %s has no attributes: %w", id, ErrInvalidGraph)
			}
			missing++
			g.Population[i], g.Lean[i] = 0, 0
			continue
		}
		if a.Population < 0 {
			return fmt.Errorf("node %s has negative population %d: %w", id, a.Population, ErrInvalidGraph)
		}
		g.Population[i] = a.Population
		g.Lean[i] = a.Lean
	}
	if missing > 0 {
		logger.Warn("nodes without attributes defaulted to zero", "count", missing)
	}
	return nil
}

// SetCoordinates attaches centroids. Nodes without a centroid stay at (0, 0)
// and are counted in the returned value.
func (g *Graph) SetCoordinates(centroids map[string]adjacency.Centroid) (missing int) {
	g.NodeLat = make([]float64, g.NumNodes)
	g.NodeLon = make([]float64, g.NumNodes)
	for i, id := range g.NodeID {
		c, ok := centroids[id]
		if !ok {
			missing++
			continue
		}
		g.NodeLat[i] = c.Lat
		g.NodeLon[i] = c.Lon
	}
	return missing
}
