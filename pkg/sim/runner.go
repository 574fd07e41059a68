// Package sim drives a search engine from a background run loop, publishes
// progress frames, and saves and restores checkpoints.
package sim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"redistrict/pkg/partition"
	"redistrict/pkg/search"
	"redistrict/pkg/store"
)

var (
	// ErrRunning is returned for operations that need the engine idle.
	ErrRunning = errors.New("a run is in progress")
	// ErrNoStore is returned for checkpoint operations without a store.
	ErrNoStore = errors.New("no checkpoint store configured")
	// ErrUnknownNode is returned when a node id or index is not in the graph.
	ErrUnknownNode = errors.New("unknown node")
	// ErrInvalidParams is returned when RunParams fail validation.
	ErrInvalidParams = errors.New("invalid run parameters")
)

// End reasons recorded for finished runs.
const (
	EndCompleted = "completed"
	EndStalled   = "stalled"
	EndStopped   = "stopped"
)

// CheckpointStore persists snapshots. *store.Store implements it.
type CheckpointStore interface {
	Save(ctx context.Context, meta store.Checkpoint, snap partition.Snapshot) error
	Load(ctx context.Context, name string) (store.Checkpoint, partition.Snapshot, error)
	List(ctx context.Context) ([]store.Checkpoint, error)
}

// RunParams configures one run.
type RunParams struct {
	// Steps bounds the run. Zero runs until stopped or stalled.
	Steps    int64
	Target   search.Target
	Strategy search.Strategy
	// ReplayProbability is the chance of replaying the ledger after a
	// score rejection.
	ReplayProbability float64
	// StopAfterStall ends the run after this many consecutive steps without
	// an acceptance. Zero disables it.
	StopAfterStall int64
}

func (p RunParams) validate() error {
	if p.Steps < 0 || p.StopAfterStall < 0 {
		return fmt.Errorf("negative step bound: %w", ErrInvalidParams)
	}
	if p.ReplayProbability < 0 || p.ReplayProbability > 1 {
		return fmt.Errorf("replay probability %g outside [0,1]: %w", p.ReplayProbability, ErrInvalidParams)
	}
	if p.Target > search.Balance {
		return fmt.Errorf("unknown target %d: %w", p.Target, ErrInvalidParams)
	}
	if p.Strategy > search.DFS {
		return fmt.Errorf("unknown strategy %d: %w", p.Strategy, ErrInvalidParams)
	}
	return nil
}

// Frame reports one step. Node is empty and Donor/Receiver are -1 when no
// node was touched.
type Frame struct {
	RunID     string  `json:"run_id"`
	Iteration int64   `json:"iteration"`
	Status    string  `json:"status"`
	Reason    string  `json:"reason,omitempty"`
	Replayed  bool    `json:"replayed,omitempty"`
	Node      string  `json:"node,omitempty"`
	Donor     int     `json:"donor"`
	Receiver  int     `json:"receiver"`
	Score     float64 `json:"score"`
	Winner    string  `json:"winner"`
	WeightA   int64   `json:"weight_a"`
	WeightB   int64   `json:"weight_b"`
	// Final marks the last frame of a run; EndReason is set on it.
	Final     bool   `json:"final,omitempty"`
	EndReason string `json:"end_reason,omitempty"`
}

// Counters tally step outcomes.
type Counters struct {
	Accepted    int64 `json:"accepted"`
	Rejected    int64 `json:"rejected"`
	NoCandidate int64 `json:"no_candidate"`
	Replayed    int64 `json:"replayed"`
}

// Status describes the runner.
type Status struct {
	Running   bool     `json:"running"`
	RunID     string   `json:"run_id,omitempty"`
	Target    string   `json:"target,omitempty"`
	Strategy  string   `json:"strategy,omitempty"`
	Iteration int64    `json:"iteration"`
	Counters  Counters `json:"counters"`
	LastEnd   string   `json:"last_end,omitempty"`
	LedgerLen int      `json:"ledger_len"`
}

// Options configures a Runner.
type Options struct {
	// FrameRate caps frames per second; the final frame is always sent.
	FrameRate float64
	// RegionLabels names regions; defaults to the graph's labels when they
	// match the region count, else R0, R1, ...
	RegionLabels []string
	Logger       *slog.Logger
}

// Runner owns one engine. Every engine access goes through mu, so queries
// are safe while a run is in progress.
type Runner struct {
	mu      sync.Mutex
	engine  *search.Engine
	labels  []string
	index   map[string]uint32
	iter    int64
	counts  Counters
	lastEnd string

	store     CheckpointStore
	bus       *Broadcaster
	frameRate float64
	logger    *slog.Logger

	// run state, also under mu
	running  bool
	runID    string
	params   RunParams
	cancel   context.CancelFunc
	finished chan struct{}
}

// NewRunner wraps engine. cs may be nil, which disables checkpoints.
func NewRunner(engine *search.Engine, cs CheckpointStore, opts Options) *Runner {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.FrameRate <= 0 {
		opts.FrameRate = 10
	}
	st := engine.State()
	labels := opts.RegionLabels
	if len(labels) != st.NumRegions() {
		labels = st.Graph().RegionLabel
	}
	if len(labels) != st.NumRegions() {
		labels = make([]string, st.NumRegions())
		for r := range labels {
			labels[r] = fmt.Sprintf("R%d", r)
		}
	}
	return &Runner{
		engine:    engine,
		labels:    labels,
		index:     st.Graph().NodeIndex(),
		store:     cs,
		bus:       NewBroadcaster(64),
		frameRate: opts.FrameRate,
		logger:    logger,
	}
}

// Broadcaster returns the frame fan-out.
func (r *Runner) Broadcaster() *Broadcaster { return r.bus }

// Subscribe registers a frame listener; see Broadcaster.Subscribe.
func (r *Runner) Subscribe() (<-chan Frame, func()) { return r.bus.Subscribe() }

// Start launches a run in the background and returns its id. The run
// outlives ctx's cancellation; use Stop to end it.
func (r *Runner) Start(ctx context.Context, p RunParams) (string, error) {
	if err := p.validate(); err != nil {
		return "", err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return "", ErrRunning
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r.running = true
	r.runID = uuid.NewString()
	r.params = p
	r.cancel = cancel
	r.finished = make(chan struct{})

	id, done := r.runID, r.finished
	r.logger.Info("run started",
		"run_id", id,
		"target", p.Target.String(),
		"strategy", p.Strategy.String(),
		"steps", p.Steps,
		"replay_probability", p.ReplayProbability)

	go r.run(runCtx, cancel, id, p, done)
	return id, nil
}

func (r *Runner) run(ctx context.Context, cancel context.CancelFunc, id string, p RunParams, done chan struct{}) {
	defer close(done)
	defer cancel()

	frames := make(chan Frame, 1)
	g, gctx := errgroup.WithContext(ctx)
	var end string

	g.Go(func() error {
		defer close(frames)
		end = r.loop(gctx, id, p, frames)
		return nil
	})
	g.Go(func() error {
		lim := rate.NewLimiter(rate.Limit(r.frameRate), 1)
		for f := range frames {
			if f.Final || lim.Allow() {
				if n := r.bus.Publish(f); n > 0 {
					framesDropped.Add(float64(n))
				}
			}
		}
		return nil
	})
	start := time.Now()
	if err := g.Wait(); err != nil {
		r.logger.Error("run failed", "run_id", id, "error", err)
	}

	runsTotal.WithLabelValues(end).Inc()
	r.mu.Lock()
	r.running = false
	r.cancel = nil
	r.lastEnd = end
	iter := r.iter
	r.mu.Unlock()
	r.logger.Info("run finished", "run_id", id, "end", end, "iteration", iter, "elapsed", time.Since(start))
}

// loop steps the engine until the run ends and returns the end reason. The
// final frame is delivered even if the publisher is busy.
func (r *Runner) loop(ctx context.Context, id string, p RunParams, frames chan Frame) string {
	var (
		steps int64
		stall int64
		last  Frame
	)
	end := EndCompleted
	for p.Steps == 0 || steps < p.Steps {
		if ctx.Err() != nil {
			end = EndStopped
			break
		}
		t0 := time.Now()
		r.mu.Lock()
		out := r.engine.Step(p.Target, p.Strategy, p.ReplayProbability)
		r.tally(out)
		last = r.frameLocked(id, out)
		ledger := r.engine.LedgerLen()
		r.mu.Unlock()
		stepDuration.Observe(time.Since(t0).Seconds())
		scoreGauge.Set(out.Score)
		ledgerGauge.Set(float64(ledger))

		steps++
		if out.Status == search.Accepted {
			stall = 0
		} else {
			stall++
		}

		select {
		case frames <- last:
		default:
		}
		if p.StopAfterStall > 0 && stall >= p.StopAfterStall {
			end = EndStalled
			break
		}
	}

	if steps == 0 {
		r.mu.Lock()
		last = r.idleFrameLocked(id)
		r.mu.Unlock()
	}
	last.Final = true
	last.EndReason = end
	// Make room: the publisher may still hold a stale frame in the buffer.
	select {
	case <-frames:
	default:
	}
	frames <- last
	return end
}

func (r *Runner) tally(out search.Outcome) {
	r.iter++
	stepsTotal.WithLabelValues(out.Status.String(), out.Reason.String()).Inc()
	switch out.Status {
	case search.Accepted:
		r.counts.Accepted++
		if out.Replayed {
			r.counts.Replayed++
			replaysTotal.Inc()
		}
	case search.Rejected:
		r.counts.Rejected++
	default:
		r.counts.NoCandidate++
	}
}

func (r *Runner) frameLocked(id string, out search.Outcome) Frame {
	f := r.idleFrameLocked(id)
	f.Status = out.Status.String()
	if out.Reason != search.ReasonNone {
		f.Reason = out.Reason.String()
	}
	f.Replayed = out.Replayed
	f.Score = out.Score
	if out.Node != search.NoNode {
		f.Node = r.engine.State().Graph().NodeID[out.Node]
		f.Donor = int(out.Donor)
		f.Receiver = int(out.Receiver)
	}
	return f
}

func (r *Runner) idleFrameLocked(id string) Frame {
	side, a, b := r.engine.Winner()
	return Frame{
		RunID:     id,
		Iteration: r.iter,
		Donor:     -1,
		Receiver:  -1,
		Score:     r.engine.Score(r.params.Target),
		Winner:    side.String(),
		WeightA:   a,
		WeightB:   b,
	}
}

// Stop cancels the current run and reports whether one was running. It
// does not wait; use Wait for that.
func (r *Runner) Stop() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return false
	}
	r.cancel()
	return true
}

// Wait blocks until the current run, if any, has finished.
func (r *Runner) Wait(ctx context.Context) error {
	r.mu.Lock()
	done := r.finished
	r.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status returns the runner's current state.
func (r *Runner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := Status{
		Running:   r.running,
		Iteration: r.iter,
		Counters:  r.counts,
		LastEnd:   r.lastEnd,
		LedgerLen: r.engine.LedgerLen(),
	}
	if r.running {
		s.RunID = r.runID
		s.Target = r.params.Target.String()
		s.Strategy = r.params.Strategy.String()
	}
	return s
}

// Checkpoint saves the current partition under name.
func (r *Runner) Checkpoint(ctx context.Context, name string) (store.Checkpoint, error) {
	if r.store == nil {
		return store.Checkpoint{}, ErrNoStore
	}
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return store.Checkpoint{}, ErrRunning
	}
	snap := r.engine.Snapshot()
	meta := store.Checkpoint{
		Name:      name,
		CreatedAt: time.Now().UTC(),
		Nodes:     len(snap.Assignment),
		Regions:   len(snap.Members),
		RunID:     r.runID,
		Iteration: r.iter,
		Target:    r.params.Target.String(),
		Score:     r.engine.Score(r.params.Target),
	}
	r.mu.Unlock()

	if err := r.store.Save(ctx, meta, snap); err != nil {
		return store.Checkpoint{}, err
	}
	return meta, nil
}

// RestoreCheckpoint replaces the partition with the named checkpoint.
func (r *Runner) RestoreCheckpoint(ctx context.Context, name string) (store.Checkpoint, error) {
	if r.store == nil {
		return store.Checkpoint{}, ErrNoStore
	}
	meta, snap, err := r.store.Load(ctx, name)
	if err != nil {
		return meta, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return meta, ErrRunning
	}
	if err := r.engine.Restore(snap); err != nil {
		return meta, fmt.Errorf("restore %s: %w", name, err)
	}
	r.logger.Info("checkpoint restored", "name", name, "iteration", meta.Iteration)
	return meta, nil
}

// Checkpoints lists stored checkpoints.
func (r *Runner) Checkpoints(ctx context.Context) ([]store.Checkpoint, error) {
	if r.store == nil {
		return nil, ErrNoStore
	}
	return r.store.List(ctx)
}

// Verify recomputes every derived structure and reports any drift.
func (r *Runner) Verify() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.engine.State().Verify()
}

// Snapshot returns the current partition.
func (r *Runner) Snapshot() partition.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.engine.Snapshot()
}
