package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"redistrict/pkg/geo"
	"redistrict/pkg/partition"
	"redistrict/pkg/search"
	"redistrict/pkg/sim"
	"redistrict/pkg/store"
)

// mockSim implements Simulator for testing.
type mockSim struct {
	started  *sim.RunParams
	startErr error
	stopped  bool
	nodes    map[string]sim.NodeSummary
	ckptErr  error
	ckpts    []store.Checkpoint
	frames   chan sim.Frame
}

func (m *mockSim) Info() sim.GraphInfo { return sim.GraphInfo{Nodes: 9, Regions: 3} }
func (m *mockSim) Status() sim.Status { return sim.Status{Iteration: 7} }
func (m *mockSim) Regions() []sim.RegionSummary { return []sim.RegionSummary{{Label: "A"}, {Label: "B"}} }
func (m *mockSim) Winner() sim.WinnerSummary {
	return sim.WinnerSummary{Side: "side_a", WeightA: 60, WeightB: 40}
}

func (m *mockSim) Node(id string) (sim.NodeSummary, error) {
	n, ok := m.nodes[id]
	if !ok {
		return sim.NodeSummary{}, fmt.Errorf("%q: %w", id, sim.ErrUnknownNode)
	}
	return n, nil
}

func (m *mockSim) NodeAt(idx uint32) (sim.NodeSummary, error) {
	for _, n := range m.nodes {
		if n.Index == idx {
			return n, nil
		}
	}
	return sim.NodeSummary{}, sim.ErrUnknownNode
}

func (m *mockSim) Start(ctx context.Context, p sim.RunParams) (string, error) {
	if m.startErr != nil {
		return "", m.startErr
	}
	m.started = &p
	return "run-1", nil
}

func (m *mockSim) Stop() bool {
	m.stopped = true
	return true
}

func (m *mockSim) Checkpoint(ctx context.Context, name string) (store.Checkpoint, error) {
	if m.ckptErr != nil {
		return store.Checkpoint{}, m.ckptErr
	}
	return store.Checkpoint{Name: name, Nodes: 9}, nil
}

func (m *mockSim) RestoreCheckpoint(ctx context.Context, name string) (store.Checkpoint, error) {
	for _, c := range m.ckpts {
		if c.Name == name {
			return c, nil
		}
	}
	return store.Checkpoint{}, store.ErrNotFound
}

func (m *mockSim) Checkpoints(ctx context.Context) ([]store.Checkpoint, error) {
	return m.ckpts, m.ckptErr
}

func (m *mockSim) Subscribe() (<-chan sim.Frame, func()) {
	return m.frames, func() {}
}

// mockLocator implements Locator for testing.
type mockLocator struct {
	idx  uint32
	dist float64
	err  error
}

func (m *mockLocator) Nearest(lat, lng float64) (uint32, float64, error) {
	return m.idx, m.dist, m.err
}

var runDefaults = sim.RunParams{Steps: 1000, Target: search.Balance, ReplayProbability: 0.05}

func newTestHandlers(m *mockSim, loc Locator) *Handlers {
	return NewHandlers(m, loc, runDefaults, nil)
}

func postJSON(h http.HandlerFunc, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), "decode error response")
	return resp
}

func TestHandleRun_Defaults(t *testing.T) {
	m := &mockSim{}
	h := newTestHandlers(m, nil)

	w := postJSON(h.HandleRun, "/api/v1/run", `{}`)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	require.NotNil(t, m.started)
	assert.Equal(t, runDefaults, *m.started)

	var resp RunResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "run-1", resp.RunID)
	assert.Equal(t, "balance", resp.Target)
	assert.Equal(t, "standard", resp.Strategy)
}

func TestHandleRun_Overrides(t *testing.T) {
	m := &mockSim{}
	h := newTestHandlers(m, nil)

	body := `{"steps":0,"target":"side_b","strategy":"dfs","replay_probability":0,"stop_after_stall":50}`
	w := postJSON(h.HandleRun, "/api/v1/run", body)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	want := sim.RunParams{Steps: 0, Target: search.SideB, Strategy: search.DFS, StopAfterStall: 50}
	require.NotNil(t, m.started)
	assert.Equal(t, want, *m.started)
}

func TestHandleRun_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"bad json", "not json", ""},
		{"unknown target", `{"target":"side_c"}`, "target"},
		{"unknown strategy", `{"strategy":"random"}`, "strategy"},
		{"probability", `{"replay_probability":1.5}`, "replay_probability"},
		{"negative steps", `{"steps":-3}`, "steps"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &mockSim{}
			w := postJSON(newTestHandlers(m, nil).HandleRun, "/api/v1/run", tt.body)
			require.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tt.field, decodeError(t, w).Field)
			assert.Nil(t, m.started, "run started on invalid request")
		})
	}
}

func TestHandleRun_MissingContentType(t *testing.T) {
	h := newTestHandlers(&mockSim{}, nil)

	req := httptest.NewRequest("POST", "/api/v1/run", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	h.HandleRun(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleRun_AlreadyRunning(t *testing.T) {
	h := newTestHandlers(&mockSim{startErr: sim.ErrRunning}, nil)

	w := postJSON(h.HandleRun, "/api/v1/run", `{}`)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "run_in_progress", decodeError(t, w).Error)
}

func TestHandleStop(t *testing.T) {
	m := &mockSim{}
	h := newTestHandlers(m, nil)

	w := postJSON(h.HandleStop, "/api/v1/stop", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, m.stopped, "Stop not called")
}

func TestHandleNode(t *testing.T) {
	m := &mockSim{nodes: map[string]sim.NodeSummary{"p1": {Index: 1, ID: "p1", RegionLabel: "A"}}}
	h := newTestHandlers(m, nil)

	req := httptest.NewRequest("GET", "/api/v1/nodes/p1", nil)
	req.SetPathValue("id", "p1")
	w := httptest.NewRecorder()
	h.HandleNode(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	var n sim.NodeSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &n))
	assert.Equal(t, "A", n.RegionLabel)

	req = httptest.NewRequest("GET", "/api/v1/nodes/nope", nil)
	req.SetPathValue("id", "nope")
	w = httptest.NewRecorder()
	h.HandleNode(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleLocate(t *testing.T) {
	m := &mockSim{nodes: map[string]sim.NodeSummary{"p2": {Index: 2, ID: "p2"}}}

	tests := []struct {
		name   string
		loc    Locator
		query  string
		status int
		code   string
	}{
		{"found", &mockLocator{idx: 2, dist: 12}, "lat=1.3&lng=103.8", http.StatusOK, ""},
		{"no coordinates", nil, "lat=1.3&lng=103.8", http.StatusNotFound, "no_coordinates"},
		{"missing lat", &mockLocator{}, "lng=103.8", http.StatusBadRequest, "invalid_coordinates"},
		{"out of range", &mockLocator{}, "lat=91&lng=0", http.StatusBadRequest, "invalid_coordinates"},
		{"too far", &mockLocator{dist: 9000, err: geo.ErrPointTooFar}, "lat=1&lng=1", http.StatusUnprocessableEntity, "point_too_far"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandlers(m, tt.loc)
			req := httptest.NewRequest("GET", "/api/v1/locate?"+tt.query, nil)
			w := httptest.NewRecorder()
			h.HandleLocate(w, req)
			require.Equal(t, tt.status, w.Code, w.Body.String())
			if tt.code != "" {
				assert.Equal(t, tt.code, decodeError(t, w).Error)
				return
			}
			var resp LocateResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, "p2", resp.Node.ID)
			assert.Equal(t, 12.0, resp.DistanceMeters)
		})
	}
}

func TestHandleCreateCheckpoint(t *testing.T) {
	h := newTestHandlers(&mockSim{}, nil)

	w := postJSON(h.HandleCreateCheckpoint, "/api/v1/checkpoints", `{"name":"round-1"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = postJSON(h.HandleCreateCheckpoint, "/api/v1/checkpoints", `{"name":"bad/name"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "name", decodeError(t, w).Field)

	w = postJSON(h.HandleCreateCheckpoint, "/api/v1/checkpoints", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleCreateCheckpoint_Errors(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{sim.ErrRunning, http.StatusConflict},
		{sim.ErrNoStore, http.StatusNotImplemented},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		h := newTestHandlers(&mockSim{ckptErr: tt.err}, nil)
		w := postJSON(h.HandleCreateCheckpoint, "/api/v1/checkpoints", `{"name":"x"}`)
		assert.Equal(t, tt.status, w.Code, "%v", tt.err)
	}
}

func TestHandleRestoreCheckpoint(t *testing.T) {
	m := &mockSim{ckpts: []store.Checkpoint{{Name: "a", Iteration: 40}}}
	h := newTestHandlers(m, nil)

	req := httptest.NewRequest("POST", "/api/v1/checkpoints/a/restore", nil)
	req.SetPathValue("name", "a")
	w := httptest.NewRecorder()
	h.HandleRestoreCheckpoint(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest("POST", "/api/v1/checkpoints/b/restore", nil)
	req.SetPathValue("name", "b")
	w = httptest.NewRecorder()
	h.HandleRestoreCheckpoint(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestWriteSimError_Mismatch(t *testing.T) {
	h := newTestHandlers(&mockSim{}, nil)
	w := httptest.NewRecorder()
	h.writeSimError(w, fmt.Errorf("restore: %w", partition.ErrInvalidSnapshot))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestHandleListCheckpoints_Empty(t *testing.T) {
	h := newTestHandlers(&mockSim{}, nil)

	req := httptest.NewRequest("GET", "/api/v1/checkpoints", nil)
	w := httptest.NewRecorder()
	h.HandleListCheckpoints(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"checkpoints":[]`)
}

func TestHandleHealth(t *testing.T) {
	h := newTestHandlers(&mockSim{}, nil)

	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	w := httptest.NewRecorder()
	h.HandleHealth(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestHandleStats(t *testing.T) {
	h := newTestHandlers(&mockSim{}, nil)

	req := httptest.NewRequest("GET", "/api/v1/stats", nil)
	w := httptest.NewRecorder()
	h.HandleStats(w, req)

	var resp StatsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, uint32(9), resp.Graph.Nodes)
	assert.Equal(t, int64(7), resp.Run.Iteration)
}
