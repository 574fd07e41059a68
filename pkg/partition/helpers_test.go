package partition

import (
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"redistrict/pkg/adjacency"
	"redistrict/pkg/graph"
)

// gridGraph builds a rows x cols 4-neighbor grid. Node r*cols+c sits at
// row r, column c; its lean is leanAt(node) and population pop.
func gridGraph(t *testing.T, rows, cols int, pop int64, leanAt func(node int) float64) *graph.Graph {
	t.Helper()
	res := &adjacency.ParseResult{}
	id := func(r, c int) string { return fmt.Sprintf("n%02d", r*cols+c) }
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			res.Nodes = append(res.Nodes, adjacency.NodeInfo{ID: id(r, c), Region: fmt.Sprintf("R%d", r)})
			if c+1 < cols {
				res.Edges = append(res.Edges, adjacency.RawEdge{From: id(r, c), To: id(r, c+1)})
			}
			if r+1 < rows {
				res.Edges = append(res.Edges, adjacency.RawEdge{From: id(r, c), To: id(r+1, c)})
			}
		}
	}
	g, err := graph.Build(res)
	require.NoError(t, err)

	attrs := make(adjacency.Attributes)
	for i, nid := range g.NodeID {
		lean := 0.0
		if leanAt != nil {
			lean = leanAt(i)
		}
		attrs[nid] = adjacency.Attribute{Population: pop, Lean: lean}
	}
	require.NoError(t, g.SetAttributes(attrs, false, nil))
	return g
}

// rowAssignment puts each grid row in its own region.
func rowAssignment(rows, cols int) []uint32 {
	out := make([]uint32, rows*cols)
	for i := range out {
		out[i] = uint32(i / cols)
	}
	return out
}

func noFloor() Options {
	return Options{PopulationFloor: 0, TotalWeight: DefaultTotalWeight, RequireContiguous: true}
}

func sorted(s []uint32) []uint32 {
	out := append([]uint32(nil), s...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
