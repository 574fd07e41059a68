// Package dataset turns a configuration into a ready engine: it reads the
// graph file, seeds the initial partition and builds the search engine.
package dataset

import (
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"redistrict/pkg/config"
	"redistrict/pkg/geo"
	"redistrict/pkg/graph"
	"redistrict/pkg/partition"
	"redistrict/pkg/search"
	"redistrict/pkg/sim"
)

// Loaded is everything built from one dataset.
type Loaded struct {
	Graph  *graph.Graph
	State  *partition.State
	Engine *search.Engine
	// Labels names the seeded regions.
	Labels []string
}

// Load reads cfg.Data.Dataset and seeds it per cfg.
func Load(cfg config.Config, logger *slog.Logger) (*Loaded, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	start := time.Now()
	g, err := graph.ReadBinary(cfg.Data.Dataset)
	if err != nil {
		return nil, fmt.Errorf("load dataset: %w", err)
	}
	logger.Info("dataset loaded",
		"path", cfg.Data.Dataset,
		"nodes", g.NumNodes,
		"edges", g.NumEdges/2,
		"regions", len(g.RegionLabel),
	)
	return FromGraph(g, cfg, logger, start)
}

// FromGraph seeds g per cfg. start only feeds the ready log line.
func FromGraph(g *graph.Graph, cfg config.Config, logger *slog.Logger, start time.Time) (*Loaded, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Data.LargestComponentOnly {
		nodes := graph.LargestComponent(g)
		if len(nodes) < int(g.NumNodes) {
			logger.Info("keeping largest component",
				"nodes", len(nodes),
				"dropped", int(g.NumNodes)-len(nodes),
			)
			g = graph.FilterToComponent(g, nodes)
		}
	}

	assignment, labels, err := seed(g, cfg)
	if err != nil {
		return nil, err
	}
	st, err := partition.New(g, assignment, len(labels), cfg.PartitionOptions())
	if err != nil {
		return nil, fmt.Errorf("initial partition: %w", err)
	}
	eng := search.NewEngine(st, cfg.EngineOptions())
	logger.Info("engine ready",
		"seed", cfg.Data.Seed,
		"regions", len(labels),
		"population_ok", st.PopulationOK(),
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return &Loaded{Graph: g, State: st, Engine: eng, Labels: labels}, nil
}

func seed(g *graph.Graph, cfg config.Config) ([]uint32, []string, error) {
	switch cfg.Data.Seed {
	case "grow":
		rng := rand.New(rand.NewSource(cfg.Search.Seed))
		assignment, err := partition.GrowSeed(g, cfg.Data.Regions, rng)
		if err != nil {
			return nil, nil, fmt.Errorf("grow seed: %w", err)
		}
		labels := make([]string, cfg.Data.Regions)
		for i := range labels {
			labels[i] = fmt.Sprintf("R%d", i)
		}
		return assignment, labels, nil
	default:
		assignment, n, err := partition.HomeAssignment(g)
		if err != nil {
			return nil, nil, fmt.Errorf("home seed: %w", err)
		}
		return assignment, g.RegionLabel[:n], nil
	}
}

// Locator indexes node centroids, or returns nil when the dataset carries
// none.
func (l *Loaded) Locator(maxDistMeters float64) *geo.Locator {
	if !l.Graph.HasCoordinates() {
		return nil
	}
	return geo.NewLocator(l.Graph.NodeLat, l.Graph.NodeLon, maxDistMeters)
}

// RunParams builds the default run parameters from the search section.
func RunParams(cfg config.Config) (sim.RunParams, error) {
	target, err := search.ParseTarget(cfg.Search.Target)
	if err != nil {
		return sim.RunParams{}, err
	}
	strategy, err := search.ParseStrategy(cfg.Search.Strategy)
	if err != nil {
		return sim.RunParams{}, err
	}
	return sim.RunParams{
		Steps:             cfg.Search.Steps,
		Target:            target,
		Strategy:          strategy,
		ReplayProbability: cfg.Search.ReplayProbability,
		StopAfterStall:    cfg.Search.StopAfterStall,
	}, nil
}
