package sim

import (
	"fmt"

	"redistrict/pkg/graph"
)

// RegionSummary describes one region.
type RegionSummary struct {
	Index       int     `json:"index"`
	Label       string  `json:"label"`
	Nodes       int     `json:"nodes"`
	Border      int     `json:"border"`
	Population  int64   `json:"population"`
	AverageLean float64 `json:"average_lean"`
	Weight      int64   `json:"weight"`
}

// NodeSummary describes one node and where it currently sits.
type NodeSummary struct {
	Index       uint32   `json:"index"`
	ID          string   `json:"id"`
	Region      int      `json:"region"`
	RegionLabel string   `json:"region_label"`
	HomeRegion  string   `json:"home_region,omitempty"`
	Population  int64    `json:"population"`
	Lean        float64  `json:"lean"`
	Neighbors   []string `json:"neighbors"`
	Lat         *float64 `json:"lat,omitempty"`
	Lon         *float64 `json:"lon,omitempty"`
}

// WinnerSummary compares the summed weight on each side.
type WinnerSummary struct {
	Side    string  `json:"side"`
	WeightA int64   `json:"weight_a"`
	WeightB int64   `json:"weight_b"`
	Score   float64 `json:"score"`
	Target  string  `json:"target"`
}

// GraphInfo summarizes the static graph.
type GraphInfo struct {
	Nodes           uint32 `json:"nodes"`
	Edges           uint32 `json:"edges"`
	Regions         int    `json:"regions"`
	TotalPopulation int64  `json:"total_population"`
	HasCoordinates  bool   `json:"has_coordinates"`
}

// Graph returns the underlying graph, which never changes.
func (r *Runner) Graph() *graph.Graph { return r.engine.State().Graph() }

// Info summarizes the graph.
func (r *Runner) Info() GraphInfo {
	g := r.Graph()
	return GraphInfo{
		Nodes:           g.NumNodes,
		Edges:           g.NumEdges,
		Regions:         len(r.labels),
		TotalPopulation: g.TotalPopulation(),
		HasCoordinates:  g.HasCoordinates(),
	}
}

// Regions summarizes every region.
func (r *Runner) Regions() []RegionSummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.engine.State()
	out := make([]RegionSummary, st.NumRegions())
	for i := range out {
		reg := uint32(i)
		out[i] = RegionSummary{
			Index:       i,
			Label:       r.labels[i],
			Nodes:       st.Size(reg),
			Border:      len(st.BorderView(reg)),
			Population:  st.Population(reg),
			AverageLean: st.AverageLean(reg),
			Weight:      st.Weight(reg),
		}
	}
	return out
}

// Node looks a node up by its external id.
func (r *Runner) Node(id string) (NodeSummary, error) {
	idx, ok := r.index[id]
	if !ok {
		return NodeSummary{}, fmt.Errorf("%q: %w", id, ErrUnknownNode)
	}
	return r.NodeAt(idx)
}

// NodeAt looks a node up by index.
func (r *Runner) NodeAt(idx uint32) (NodeSummary, error) {
	g := r.Graph()
	if idx >= g.NumNodes {
		return NodeSummary{}, fmt.Errorf("index %d: %w", idx, ErrUnknownNode)
	}
	r.mu.Lock()
	region := r.engine.State().RegionOf(idx)
	r.mu.Unlock()

	n := NodeSummary{
		Index:       idx,
		ID:          g.NodeID[idx],
		Region:      int(region),
		RegionLabel: r.labels[region],
		Population:  g.Population[idx],
		Lean:        g.Lean[idx],
	}
	if h := g.HomeRegion[idx]; h != graph.NoRegion && int(h) < len(g.RegionLabel) {
		n.HomeRegion = g.RegionLabel[h]
	}
	for _, m := range g.Neighbors(idx) {
		n.Neighbors = append(n.Neighbors, g.NodeID[m])
	}
	if g.HasCoordinates() {
		lat, lon := g.NodeLat[idx], g.NodeLon[idx]
		n.Lat, n.Lon = &lat, &lon
	}
	return n, nil
}

// Winner reports the weight on each side and the score for target.
func (r *Runner) Winner() WinnerSummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	side, a, b := r.engine.Winner()
	return WinnerSummary{
		Side:    side.String(),
		WeightA: a,
		WeightB: b,
		Score:   r.engine.Score(r.params.Target),
		Target:  r.params.Target.String(),
	}
}
