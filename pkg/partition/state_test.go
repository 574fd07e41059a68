package partition

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 3x3 grid, one region per row:
//
//	0 - 1 - 2     region 0
//	|   |   |
//	3 - 4 - 5     region 1
//	|   |   |
//	6 - 7 - 8     region 2
func newGridState(t *testing.T, opts Options) *State {
	t.Helper()
	g := gridGraph(t, 3, 3, 100, func(n int) float64 { return float64(n%3) - 1 })
	s, err := New(g, rowAssignment(3, 3), 3, opts)
	require.NoError(t, err)
	return s
}

func TestNewRejectsBadAssignment(t *testing.T) {
	g := gridGraph(t, 3, 3, 100, nil)

	tests := []struct {
		name       string
		assignment []uint32
		regions    int
		opts       Options
	}{
		{name: "short", assignment: []uint32{0, 0, 0}, regions: 3},
		{name: "region out of range", assignment: []uint32{0, 0, 0, 1, 1, 1, 2, 2, 3}, regions: 3},
		{name: "empty region", assignment: []uint32{0, 0, 0, 0, 0, 0, 2, 2, 2}, regions: 3},
		{name: "zero regions", assignment: rowAssignment(3, 3), regions: 0},
		{
			name:       "disconnected region",
			assignment: []uint32{0, 1, 0, 1, 1, 1, 2, 2, 2},
			regions:    3,
			opts:       Options{RequireContiguous: true},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(g, tt.assignment, tt.regions, tt.opts)
			assert.True(t, errors.Is(err, ErrInvalidAssignment), "err = %v", err)
		})
	}
}

func TestInitialBorderAndAggregates(t *testing.T) {
	s := newGridState(t, noFloor())
	require.NoError(t, s.Verify())

	assert.Equal(t, []uint32{3, 4, 5}, sorted(s.Border(0)))
	assert.Equal(t, []uint32{0, 1, 2, 6, 7, 8}, sorted(s.Border(1)))
	assert.Equal(t, []uint32{3, 4, 5}, sorted(s.Border(2)))

	for r := uint32(0); r < 3; r++ {
		assert.Equal(t, int64(300), s.Population(r))
		assert.Equal(t, 3, s.Size(r))
		// Leans -1, 0, 1 per row cancel out.
		assert.InDelta(t, 0, s.AverageLean(r), 1e-12)
		// 300/900 of 538 = 179.33
		assert.Equal(t, int64(179), s.Weight(r))
	}

	// Corner 0 touches only region 0 and region 1.
	assert.Equal(t, 2, s.NeighborRegions(0))
	// Center 4 touches all three.
	assert.Equal(t, 3, s.NeighborRegions(4))
	assert.True(t, s.PopulationOK())
}

func TestApplyUpdatesBorderAndAggregates(t *testing.T) {
	s := newGridState(t, noFloor())

	// Move node 3 (row 1, lean -1) into region 0.
	s.Apply(3, 0)
	require.NoError(t, s.Verify())

	assert.Equal(t, uint32(0), s.RegionOf(3))
	assert.Equal(t, 4, s.Size(0))
	assert.Equal(t, 2, s.Size(1))
	assert.Equal(t, int64(400), s.Population(0))
	assert.Equal(t, int64(200), s.Population(1))
	assert.InDelta(t, -100.0/400, s.AverageLean(0), 1e-12)

	// Node 3 now borders region 1 (via 4) and region 2 (via 6).
	assert.True(t, s.InBorder(1, 3))
	assert.True(t, s.InBorder(2, 3))
	assert.False(t, s.InBorder(0, 3))
	// Node 6 now borders region 0.
	assert.True(t, s.InBorder(0, 6))

	dirty := s.Commit()
	assert.Contains(t, dirty, uint32(0))
	assert.Contains(t, dirty, uint32(1))
	assert.Empty(t, s.Commit(), "second commit has nothing pending")
}

func TestRollbackRestoresExactly(t *testing.T) {
	s := newGridState(t, noFloor())
	before := s.Snapshot()
	var pops []int64
	var leans []float64
	var weights []int64
	var borders [][]uint32
	for r := uint32(0); r < 3; r++ {
		pops = append(pops, s.Population(r))
		leans = append(leans, s.LeanSum(r))
		weights = append(weights, s.Weight(r))
		borders = append(borders, sorted(s.Border(r)))
	}

	u := s.Apply(4, 2)
	s.Rollback(u)
	require.NoError(t, s.Verify())

	assert.Equal(t, before.Assignment, s.Assignment())
	for r := uint32(0); r < 3; r++ {
		assert.Equal(t, pops[r], s.Population(r))
		assert.Equal(t, math.Float64bits(leans[r]), math.Float64bits(s.LeanSum(r)), "lean sum must be bit-identical")
		assert.Equal(t, weights[r], s.Weight(r))
		assert.Equal(t, borders[r], sorted(s.Border(r)))
		assert.ElementsMatch(t, before.Members[r], s.Members(r))
	}
	assert.Empty(t, s.Commit())
}

func TestConnected(t *testing.T) {
	s := newGridState(t, noFloor())
	for r := uint32(0); r < 3; r++ {
		assert.True(t, s.Connected(r))
	}

	// Taking the middle of row 1 splits 3 from 5.
	u := s.Apply(4, 0)
	assert.False(t, s.Connected(1))
	assert.True(t, s.Connected(0))
	s.Rollback(u)

	// Empty a region entirely: 3, 4, 5 all to region 0.
	s.Apply(3, 0)
	s.Commit()
	s.Apply(5, 0)
	s.Commit()
	assert.True(t, s.Connected(1), "single node region is connected")
	u = s.Apply(4, 2)
	assert.False(t, s.Connected(1), "empty region is not connected")
	assert.False(t, s.PopulationOK(), "empty region fails the floor check")
	assert.Equal(t, []uint32{1}, s.Disconnected())
	s.Rollback(u)
	assert.True(t, s.PopulationOK())
}

func TestPopulationFloor(t *testing.T) {
	opts := noFloor()
	opts.PopulationFloor = 300
	s := newGridState(t, opts)
	require.True(t, s.PopulationOK())

	u := s.Apply(3, 0)
	assert.False(t, s.PopulationOK(), "region 1 drops to 200")
	s.Rollback(u)
	assert.True(t, s.PopulationOK())
	require.NoError(t, s.Verify())
}

func TestWeightRoundsHalfToEven(t *testing.T) {
	// Two nodes, one per region, populations 1 and 3 out of 4; TotalWeight 6
	// gives raw weights 1.5 and 4.5.
	g := gridGraph(t, 1, 2, 1, nil)
	g.Population[1] = 3
	s, err := New(g, []uint32{0, 1}, 2, Options{TotalWeight: 6})
	require.NoError(t, err)

	assert.Equal(t, int64(2), s.Weight(0))
	assert.Equal(t, int64(4), s.Weight(1))
}

func TestRandomMovesKeepInvariants(t *testing.T) {
	g := gridGraph(t, 6, 6, 10, func(n int) float64 { return math.Sin(float64(n)) })
	assignment := make([]uint32, 36)
	for i := range assignment {
		// Four 3x3 quadrants.
		row, col := i/6, i%6
		assignment[i] = uint32((row/3)*2 + col/3)
	}
	s, err := New(g, assignment, 4, noFloor())
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(42))
	for step := 0; step < 2000; step++ {
		r := uint32(rng.Intn(4))
		border := s.BorderView(r)
		if len(border) == 0 {
			continue
		}
		node := border[rng.Intn(len(border))]
		donor := s.RegionOf(node)
		u := s.Apply(node, r)
		if !s.Connected(donor) || rng.Intn(3) == 0 {
			s.Rollback(u)
		} else {
			s.Commit()
		}
		if step%50 == 0 {
			require.NoError(t, s.Verify(), "step %d", step)
		}
	}
	require.NoError(t, s.Verify())
	assert.Empty(t, s.Disconnected())
}
