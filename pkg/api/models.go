package api

import (
	"redistrict/pkg/sim"
	"redistrict/pkg/store"
)

// RunRequest is the JSON body for POST /api/v1/run. Omitted fields take the
// server's configured defaults.
type RunRequest struct {
	Steps             *int64   `json:"steps" validate:"omitempty,gte=0"`
	Target            string   `json:"target" validate:"omitempty,oneof=side_a side_b balance"`
	Strategy          string   `json:"strategy" validate:"omitempty,oneof=standard follow_the_leader bfs dfs"`
	ReplayProbability *float64 `json:"replay_probability" validate:"omitempty,gte=0,lte=1"`
	StopAfterStall    *int64   `json:"stop_after_stall" validate:"omitempty,gte=0"`
}

// RunResponse is the JSON response for a started run.
type RunResponse struct {
	RunID    string `json:"run_id"`
	Target   string `json:"target"`
	Strategy string `json:"strategy"`
}

// StopResponse is the JSON response for POST /api/v1/stop.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// CheckpointRequest is the JSON body for POST /api/v1/checkpoints.
type CheckpointRequest struct {
	Name string `json:"name" validate:"required,checkpoint_name"`
}

// CheckpointsResponse lists stored checkpoints.
type CheckpointsResponse struct {
	Checkpoints []store.Checkpoint `json:"checkpoints"`
}

// LocateResponse is the JSON response for GET /api/v1/locate.
type LocateResponse struct {
	Node           sim.NodeSummary `json:"node"`
	DistanceMeters float64         `json:"distance_meters"`
}

// RegionsResponse is the JSON response for GET /api/v1/regions.
type RegionsResponse struct {
	Regions []sim.RegionSummary `json:"regions"`
}

// ErrorResponse is the JSON response for errors.
type ErrorResponse struct {
	Error          string  `json:"error"`
	Field          string  `json:"field,omitempty"`
	DistanceMeters float64 `json:"distance_meters,omitempty"`
}

// StatsResponse is the JSON response for GET /api/v1/stats.
type StatsResponse struct {
	Graph sim.GraphInfo `json:"graph"`
	Run   sim.Status    `json:"run"`
}

// HealthResponse is the JSON response for GET /api/v1/health.
type HealthResponse struct {
	Status string `json:"status"`
}
