package search

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"redistrict/pkg/adjacency"
	"redistrict/pkg/graph"
	"redistrict/pkg/partition"
)

// grid builds a rows x cols 4-neighbor grid with node r*cols+c at row r,
// column c.
func grid(t *testing.T, rows, cols int, pop int64, leanAt func(node int) float64) *graph.Graph {
	t.Helper()
	res := &adjacency.ParseResult{}
	id := func(r, c int) string { return fmt.Sprintf("g%03d", r*cols+c) }
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

func rows(rowCount, cols int) []uint32 {
	out := make([]uint32, rowCount*cols)
	for i := range out {
		out[i] = uint32(i / cols)
	}
	return out
}

// quadrants splits a 6x6 grid into four 3x3 blocks.
func quadrants() []uint32 {
	out := make([]uint32, 36)
	for i := range out {
		r, c := i/6, i%6
		out[i] = uint32((r/3)*2 + c/3)
	}
	return out
}

func noFloor() partition.Options {
	return partition.Options{TotalWeight: partition.DefaultTotalWeight, RequireContiguous: true}
}

func newState(t *testing.T, g *graph.Graph, assignment []uint32, regions int, opts partition.Options) *partition.State {
	t.Helper()
	st, err := partition.New(g, assignment, regions, opts)
	require.NoError(t, err)
	return st
}

// requireValid checks every partition invariant from scratch.
func requireValid(t *testing.T, st *partition.State, msgAndArgs ...any) {
	t.Helper()
	require.NoError(t, st.Verify(), msgAndArgs...)
	require.Empty(t, st.Disconnected(), msgAndArgs...)
	for r := 0; r < st.NumRegions(); r++ {
		require.NotZero(t, st.Size(uint32(r)), msgAndArgs...)
	}
}

// fullScore recomputes the objective without the cache.
func fullScore(st *partition.State, target Target) float64 {
	var total float64
	for r := 0; r < st.NumRegions(); r++ {
		total += contribution(target, st.Weight(uint32(r)), st.AverageLean(uint32(r)))
	}
	return total
}
