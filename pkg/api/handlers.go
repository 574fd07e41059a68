package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"mime"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"

	"redistrict/pkg/geo"
	"redistrict/pkg/partition"
	"redistrict/pkg/search"
	"redistrict/pkg/sim"
	"redistrict/pkg/store"
)

// Simulator is what the handlers need from the run driver. *sim.Runner
// implements it.
type Simulator interface {
	Info() sim.GraphInfo
	Status() sim.Status
	Regions() []sim.RegionSummary
	Node(id string) (sim.NodeSummary, error)
	NodeAt(idx uint32) (sim.NodeSummary, error)
	Winner() sim.WinnerSummary
	Start(ctx context.Context, p sim.RunParams) (string, error)
	Stop() bool
	Checkpoint(ctx context.Context, name string) (store.Checkpoint, error)
	RestoreCheckpoint(ctx context.Context, name string) (store.Checkpoint, error)
	Checkpoints(ctx context.Context) ([]store.Checkpoint, error)
	Subscribe() (<-chan sim.Frame, func())
}

// Locator maps a coordinate to the nearest node.
type Locator interface {
	Nearest(lat, lng float64) (uint32, float64, error)
}

// Handlers holds the HTTP handlers and their dependencies.
type Handlers struct {
	sim      Simulator
	locator  Locator
	defaults sim.RunParams
	validate *validator.Validate
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewHandlers creates handlers. locator may be nil when the dataset has no
// coordinates; defaults fill fields a run request leaves out.
func NewHandlers(s Simulator, locator Locator, defaults sim.RunParams, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handlers{
		sim:      s,
		locator:  locator,
		defaults: defaults,
		validate: newValidator(),
		upgrader: newUpgrader(""),
		logger:   logger,
	}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report json names in errors.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterValidation("checkpoint_name", func(fl validator.FieldLevel) bool {
		return store.ValidateName(fl.Field().String()) == nil
	})
	return v
}

// HandleHealth handles GET /api/v1/health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// HandleStats handles GET /api/v1/stats.
func (h *Handlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatsResponse{Graph: h.sim.Info(), Run: h.sim.Status()})
}

// HandleRegions handles GET /api/v1/regions.
func (h *Handlers) HandleRegions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, RegionsResponse{Regions: h.sim.Regions()})
}

// HandleWinner handles GET /api/v1/winner.
func (h *Handlers) HandleWinner(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sim.Winner())
}

// HandleNode handles GET /api/v1/nodes/{id}.
func (h *Handlers) HandleNode(w http.ResponseWriter, r *http.Request) {
	n, err := h.sim.Node(r.PathValue("id"))
	if err != nil {
		h.writeSimError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

// HandleLocate handles GET /api/v1/locate?lat=..&lng=..
func (h *Handlers) HandleLocate(w http.ResponseWriter, r *http.Request) {
	if h.locator == nil {
		writeError(w, http.StatusNotFound, "no_coordinates", "")
		return
	}
	lat, err := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_coordinates", "lat")
		return
	}
	lng, err := strconv.ParseFloat(r.URL.Query().Get("lng"), 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_coordinates", "lng")
		return
	}
	if err := validateCoord(lat, lng); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_coordinates", "")
		return
	}

	idx, dist, err := h.locator.Nearest(lat, lng)
	if err != nil {
		if errors.Is(err, geo.ErrPointTooFar) {
			writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: "point_too_far", DistanceMeters: dist})
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", "")
		return
	}
	n, err := h.sim.NodeAt(idx)
	if err != nil {
		h.writeSimError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, LocateResponse{Node: n, DistanceMeters: dist})
}

// HandleRun handles POST /api/v1/run.
func (h *Handlers) HandleRun(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if !h.decode(w, r, &req) {
		return
	}

	p := h.defaults
	if req.Steps != nil {
		p.Steps = *req.Steps
	}
	if req.ReplayProbability != nil {
		p.ReplayProbability = *req.ReplayProbability
	}
	if req.StopAfterStall != nil {
		p.StopAfterStall = *req.StopAfterStall
	}
	if req.Target != "" {
		t, err := search.ParseTarget(req.Target)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "target")
			return
		}
		p.Target = t
	}
	if req.Strategy != "" {
		s, err := search.ParseStrategy(req.Strategy)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "strategy")
			return
		}
		p.Strategy = s
	}

	id, err := h.sim.Start(r.Context(), p)
	if err != nil {
		h.writeSimError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, RunResponse{RunID: id, Target: p.Target.String(), Strategy: p.Strategy.String()})
}

// HandleStop handles POST /api/v1/stop.
func (h *Handlers) HandleStop(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StopResponse{Stopped: h.sim.Stop()})
}

// HandleListCheckpoints handles GET /api/v1/checkpoints.
func (h *Handlers) HandleListCheckpoints(w http.ResponseWriter, r *http.Request) {
	list, err := h.sim.Checkpoints(r.Context())
	if err != nil {
		h.writeSimError(w, err)
		return
	}
	if list == nil {
		list = []store.Checkpoint{}
	}
	writeJSON(w, http.StatusOK, CheckpointsResponse{Checkpoints: list})
}

// HandleCreateCheckpoint handles POST /api/v1/checkpoints.
func (h *Handlers) HandleCreateCheckpoint(w http.ResponseWriter, r *http.Request) {
	var req CheckpointRequest
	if !h.decode(w, r, &req) {
		return
	}
	meta, err := h.sim.Checkpoint(r.Context(), req.Name)
	if err != nil {
		h.writeSimError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, meta)
}

// HandleRestoreCheckpoint handles POST /api/v1/checkpoints/{name}/restore.
func (h *Handlers) HandleRestoreCheckpoint(w http.ResponseWriter, r *http.Request) {
	meta, err := h.sim.RestoreCheckpoint(r.Context(), r.PathValue("name"))
	if err != nil {
		h.writeSimError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

// decode enforces a JSON content type, decodes a small body into dst and
// validates it. It writes the error response and returns false on failure.
func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "application/json" {
		writeError(w, http.StatusBadRequest, "invalid_request", "")
		return false
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		field := ""
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			field = verrs[0].Field()
		}
		writeError(w, http.StatusBadRequest, "invalid_request", field)
		return false
	}
	return true
}

// writeSimError maps driver and store errors to status codes.
func (h *Handlers) writeSimError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, sim.ErrRunning):
		writeError(w, http.StatusConflict, "run_in_progress", "")
	case errors.Is(err, sim.ErrInvalidParams):
		writeError(w, http.StatusBadRequest, "invalid_request", "")
	case errors.Is(err, sim.ErrUnknownNode):
		writeError(w, http.StatusNotFound, "unknown_node", "")
	case errors.Is(err, sim.ErrNoStore):
		writeError(w, http.StatusNotImplemented, "checkpoints_disabled", "")
	case errors.Is(err, store.ErrInvalidName):
		writeError(w, http.StatusBadRequest, "invalid_request", "name")
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "checkpoint_not_found", "")
	case errors.Is(err, partition.ErrInvalidSnapshot):
		writeError(w, http.StatusUnprocessableEntity, "checkpoint_mismatch", "")
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, "request_timeout", "")
	default:
		h.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "")
	}
}

func validateCoord(lat, lng float64) error {
	if math.IsNaN(lat) || math.IsNaN(lng) || math.IsInf(lat, 0) || math.IsInf(lng, 0) {
		return errors.New("coordinates must be finite numbers")
	}
	if !geo.ValidCoord(lat, lng) {
		return errors.New("coordinates out of range")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, field string) {
	writeJSON(w, status, ErrorResponse{Error: code, Field: field})
}
