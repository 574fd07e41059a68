package sim

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"redistrict/pkg/adjacency"
	"redistrict/pkg/graph"
	"redistrict/pkg/partition"
	"redistrict/pkg/search"
	"redistrict/pkg/store"
)

// newRunner builds a runner over a rows x cols grid split into one region
// per row.
func newRunner(t *testing.T, rows, cols int, cs CheckpointStore) *Runner {
	t.Helper()
	res := &adjacency.ParseResult{}
	id := func(r, c int) string { return fmt.Sprintf("c%03d", r*cols+c) }
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			res.Nodes = append(res.Nodes, adjacency.NodeInfo{ID: id(r, c), Region: fmt.Sprintf("S%d", r)})
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
		attrs[nid] = adjacency.Attribute{Population: 10, Lean: math.Sin(float64(i))}
	}
	require.NoError(t, g.SetAttributes(attrs, false, nil))

	assignment, n, err := partition.HomeAssignment(g)
	require.NoError(t, err)
	st, err := partition.New(g, assignment, n, partition.Options{TotalWeight: 100})
	require.NoError(t, err)
	return NewRunner(search.NewEngine(st, search.Options{Seed: 1}), cs, Options{FrameRate: 1000})
}

func waitRun(t *testing.T, r *Runner) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, r.Wait(ctx))
}

// lastFrame drains frames until the final one.
func lastFrame(t *testing.T, ch <-chan Frame) Frame {
	t.Helper()
	timeout := time.After(10 * time.Second)
	for {
		select {
		case f, ok := <-ch:
			require.True(t, ok, "channel closed before final frame")
			if f.Final {
				return f
			}
		case <-timeout:
			t.Fatal("no final frame")
		}
	}
}

func TestRunCompletes(t *testing.T) {
	r := newRunner(t, 4, 4, nil)
	frames, cancel := r.Broadcaster().Subscribe()
	defer cancel()

	id, err := r.Start(context.Background(), RunParams{Steps: 300, Target: search.Balance})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	final := lastFrame(t, frames)
	waitRun(t, r)

	assert.Equal(t, id, final.RunID)
	assert.Equal(t, EndCompleted, final.EndReason)
	assert.Equal(t, int64(300), final.Iteration)

	st := r.Status()
	assert.False(t, st.Running)
	assert.Equal(t, EndCompleted, st.LastEnd)
	assert.Equal(t, int64(300), st.Iteration)
	c := st.Counters
	assert.Equal(t, int64(300), c.Accepted+c.Rejected+c.NoCandidate)
}

func TestRunStopsWhenStalled(t *testing.T) {
	// Two single-node regions: nothing can ever be accepted.
	r := newRunner(t, 2, 1, nil)
	frames, cancel := r.Broadcaster().Subscribe()
	defer cancel()

	_, err := r.Start(context.Background(), RunParams{StopAfterStall: 25})
	require.NoError(t, err)
	final := lastFrame(t, frames)
	waitRun(t, r)

	assert.Equal(t, EndStalled, final.EndReason)
	assert.Equal(t, int64(25), r.Status().Iteration)
}

func TestStopEndsUnboundedRun(t *testing.T) {
	r := newRunner(t, 4, 4, nil)
	_, err := r.Start(context.Background(), RunParams{Strategy: search.DFS, ReplayProbability: 0.1})
	require.NoError(t, err)

	_, err = r.Start(context.Background(), RunParams{})
	assert.ErrorIs(t, err, ErrRunning)

	require.True(t, r.Stop())
	waitRun(t, r)
	assert.Equal(t, EndStopped, r.Status().LastEnd)
	assert.False(t, r.Stop(), "nothing left to stop")
	require.NoError(t, r.Verify())
}

func TestStartOutlivesCallerContext(t *testing.T) {
	r := newRunner(t, 4, 4, nil)
	ctx, cancel := context.WithCancel(context.Background())
	_, err := r.Start(ctx, RunParams{Steps: 200})
	require.NoError(t, err)
	cancel()
	waitRun(t, r)
	assert.Equal(t, EndCompleted, r.Status().LastEnd)
}

func TestStartRejectsBadParams(t *testing.T) {
	r := newRunner(t, 2, 2, nil)
	for _, p := range []RunParams{
		{Steps: -1},
		{ReplayProbability: 2},
		{Target: search.Target(9)},
		{Strategy: search.Strategy(9)},
	} {
		_, err := r.Start(context.Background(), p)
		assert.True(t, errors.Is(err, ErrInvalidParams), "%+v: %v", p, err)
	}
}

func TestCheckpointRoundTrip(t *testing.T) {
	cs, err := store.OpenInMemory()
	require.NoError(t, err)
	defer cs.Close()
	r := newRunner(t, 4, 4, cs)
	ctx := context.Background()

	before := r.Snapshot()
	meta, err := r.Checkpoint(ctx, "start")
	require.NoError(t, err)
	assert.Equal(t, 16, meta.Nodes)

	_, err = r.Start(ctx, RunParams{Steps: 500, Target: search.SideB})
	require.NoError(t, err)
	waitRun(t, r)

	_, err = r.RestoreCheckpoint(ctx, "start")
	require.NoError(t, err)
	assert.Equal(t, before.Assignment, r.Snapshot().Assignment)

	list, err := r.Checkpoints(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "start", list[0].Name)

	_, err = r.RestoreCheckpoint(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCheckpointRefusedWhileRunning(t *testing.T) {
	cs, err := store.OpenInMemory()
	require.NoError(t, err)
	defer cs.Close()
	r := newRunner(t, 4, 4, cs)

	_, err = r.Start(context.Background(), RunParams{})
	require.NoError(t, err)
	_, err = r.Checkpoint(context.Background(), "busy")
	assert.ErrorIs(t, err, ErrRunning)
	r.Stop()
	waitRun(t, r)
}

func TestCheckpointWithoutStore(t *testing.T) {
	r := newRunner(t, 2, 2, nil)
	_, err := r.Checkpoint(context.Background(), "x")
	assert.ErrorIs(t, err, ErrNoStore)
	_, err = r.Checkpoints(context.Background())
	assert.ErrorIs(t, err, ErrNoStore)
}

func TestQueries(t *testing.T) {
	r := newRunner(t, 3, 3, nil)

	regions := r.Regions()
	require.Len(t, regions, 3)
	assert.Equal(t, "S0", regions[0].Label)
	assert.Equal(t, 3, regions[0].Nodes)
	assert.Equal(t, int64(30), regions[0].Population)

	n, err := r.Node("c004")
	require.NoError(t, err)
	assert.Equal(t, uint32(4), n.Index)
	assert.Equal(t, "S1", n.RegionLabel)
	assert.Equal(t, "S1", n.HomeRegion)
	assert.ElementsMatch(t, []string{"c001", "c003", "c005", "c007"}, n.Neighbors)
	assert.Nil(t, n.Lat)

	_, err = r.Node("zzz")
	assert.ErrorIs(t, err, ErrUnknownNode)
	_, err = r.NodeAt(99)
	assert.ErrorIs(t, err, ErrUnknownNode)

	w := r.Winner()
	assert.Equal(t, int64(99), w.WeightA+w.WeightB, "three regions of 33.3 round to 33 each")

	info := r.Info()
	assert.Equal(t, uint32(9), info.Nodes)
	assert.Equal(t, 3, info.Regions)
}
