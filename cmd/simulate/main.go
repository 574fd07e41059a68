package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"redistrict/pkg/config"
	"redistrict/pkg/dataset"
	"redistrict/pkg/partition"
	"redistrict/pkg/search"
	"redistrict/pkg/sim"
)

type simulateFlags struct {
	configPath string
	dataPath   string
	steps      int64
	target     string
	strategy   string
	replay     float64
	stall      int64
	seed       int64
	resume     string
	output     string
	assignment string
	every      time.Duration
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var f simulateFlags
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run the search headless and write the final partition",
		Long: `Load a dataset, run the search for a fixed number of steps and print a
per-region summary. The final partition is written as a snapshot file and,
optionally, as a node,region CSV.

Examples:
  simulate --dataset counties.bin --steps 200000 --target side_b
  simulate -c redistrict.yaml --strategy dfs --replay 0.05 -o final.snap
  simulate --dataset counties.bin --resume final.snap --steps 50000`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(f.configPath)
			if err != nil {
				return err
			}
			fl := cmd.Flags()
			if fl.Changed("dataset") {
				cfg.Data.Dataset = f.dataPath
			}
			if fl.Changed("steps") {
				cfg.Search.Steps = f.steps
			}
			if fl.Changed("target") {
				cfg.Search.Target = f.target
			}
			if fl.Changed("strategy") {
				cfg.Search.Strategy = f.strategy
			}
			if fl.Changed("replay") {
				cfg.Search.ReplayProbability = f.replay
			}
			if fl.Changed("stop-after-stall") {
				cfg.Search.StopAfterStall = f.stall
			}
			if fl.Changed("seed") {
				cfg.Search.Seed = f.seed
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runSimulate(cmd.Context(), cfg, f, cmd.OutOrStdout())
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&f.configPath, "config", "c", "", "Path to a YAML or JSON config file")
	fl.StringVar(&f.dataPath, "dataset", "", "Dataset file, overrides data.dataset")
	fl.Int64VarP(&f.steps, "steps", "n", 0, "Number of steps, 0 runs until stalled or interrupted")
	fl.StringVar(&f.target, "target", "", "Target: side_a, side_b or balance")
	fl.StringVar(&f.strategy, "strategy", "", "Strategy: standard, follow_the_leader, bfs or dfs")
	fl.Float64Var(&f.replay, "replay", 0, "Replay probability after a score rejection")
	fl.Int64Var(&f.stall, "stop-after-stall", 0, "Stop after this many steps without an acceptance")
	fl.Int64Var(&f.seed, "seed", 0, "Random seed")
	fl.StringVar(&f.resume, "resume", "", "Snapshot file to start from")
	fl.StringVarP(&f.output, "output", "o", "final.snap", "Snapshot file for the final partition")
	fl.StringVar(&f.assignment, "assignment", "", "Optional CSV of node,region for the final partition")
	fl.DurationVar(&f.every, "progress", 5*time.Second, "Progress log interval")
	return cmd
}

func runSimulate(ctx context.Context, cfg config.Config, f simulateFlags, out io.Writer) error {
	logger := config.NewLogger(os.Stderr, cfg.Log)

	loaded, err := dataset.Load(cfg, logger)
	if err != nil {
		return err
	}
	if f.resume != "" {
		if err := resume(loaded.Engine, f.resume); err != nil {
			return err
		}
		logger.Info("resumed", "path", f.resume)
	}
	params, err := dataset.RunParams(cfg)
	if err != nil {
		return err
	}

	runner := sim.NewRunner(loaded.Engine, nil, sim.Options{
		FrameRate:    1,
		RegionLabels: loaded.Labels,
		Logger:       logger,
	})
	frames, unsubscribe := runner.Subscribe()
	defer unsubscribe()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	if _, err := runner.Start(ctx, params); err != nil {
		return err
	}
	progress(ctx, runner, frames, f.every, logger)
	if err := runner.Wait(context.Background()); err != nil {
		return err
	}
	if err := runner.Verify(); err != nil {
		return fmt.Errorf("final partition: %w", err)
	}

	st := runner.Status()
	logger.Info("run finished",
		"reason", st.LastEnd,
		"iterations", st.Iteration,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	printSummary(out, runner, st)

	snap := runner.Snapshot()
	data, err := snap.MarshalBinary()
	if err != nil {
		return err
	}
	if err := os.WriteFile(f.output, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	logger.Info("snapshot written", "path", f.output, "bytes", len(data))

	if f.assignment != "" {
		if err := writeAssignment(f.assignment, runner); err != nil {
			return err
		}
		logger.Info("assignment written", "path", f.assignment)
	}
	return nil
}

// progress logs throttled frames until the final one. An interrupt stops the
// run and keeps waiting for its final frame.
func progress(ctx context.Context, runner *sim.Runner, frames <-chan sim.Frame, every time.Duration, logger *slog.Logger) {
	var last time.Time
	done := ctx.Done()
	for {
		select {
		case <-done:
			logger.Info("interrupted, stopping run")
			runner.Stop()
			done = nil
		case f, ok := <-frames:
			if !ok || f.Final {
				return
			}
			if time.Since(last) < every {
				continue
			}
			last = time.Now()
			logger.Info("progress",
				"iteration", f.Iteration,
				"score", f.Score,
				"winner", f.Winner,
				"weight_a", f.WeightA,
				"weight_b", f.WeightB,
			)
		}
	}
}

func resume(eng *search.Engine, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}
	var snap partition.Snapshot
	if err := snap.UnmarshalBinary(data); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}
	if err := eng.Restore(snap); err != nil {
		return fmt.Errorf("restore snapshot: %w", err)
	}
	return nil
}

func printSummary(out io.Writer, runner *sim.Runner, st sim.Status) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "region\tnodes\tpopulation\tlean\tweight\t")
	for _, r := range runner.Regions() {
		fmt.Fprintf(w, "%s\t%d\t%d\t%.4f\t%d\t\n", r.Label, r.Nodes, r.Population, r.AverageLean, r.Weight)
	}
	w.Flush()

	win := runner.Winner()
	c := st.Counters
	fmt.Fprintf(out, "\nwinner: %s (A %d, B %d), %s score %.0f\n", win.Side, win.WeightA, win.WeightB, win.Target, win.Score)
	fmt.Fprintf(out, "steps: %d accepted, %d rejected, %d no candidate, %d replayed\n",
		c.Accepted, c.Rejected, c.NoCandidate, c.Replayed)
}

func writeAssignment(path string, runner *sim.Runner) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create assignment file: %w", err)
	}
	defer f.Close()

	regions := runner.Regions()
	g := runner.Graph()
	cw := csv.NewWriter(f)
	cw.Write([]string{"node", "region"})
	for i, r := range runner.Snapshot().Assignment {
		cw.Write([]string{g.NodeID[i], regions[r].Label})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("write assignment: %w", err)
	}
	return f.Close()
}
