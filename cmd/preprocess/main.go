package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"redistrict/pkg/adjacency"
	"redistrict/pkg/config"
	"redistrict/pkg/graph"
)

type preprocessFlags struct {
	adjacency     string
	results       string
	synthetic     bool
	syntheticSeed int64
	geojson       string
	idProperty    string
	exclude       []string
	excludeStates []string
	flip          []string
	allowMissing  bool
	strict        bool
	largestOnly   bool
	output        string
	logLevel      string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var f preprocessFlags
	cmd := &cobra.Command{
		Use:   "preprocess",
		Short: "Build a dataset file from county adjacency and results data",
		Long: `Build a binary dataset from a county adjacency file, per-county
attributes and optional GeoJSON centroids.

Examples:
  preprocess --adjacency county_adjacency.txt --results results.csv
  preprocess --adjacency county_adjacency.txt --synthetic --synthetic-seed 7
  preprocess --adjacency county_adjacency.txt --results results.csv --geojson counties.geojson -o counties.bin`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPreprocess(cmd.Context(), f)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.adjacency, "adjacency", "", "Path to the county adjacency file")
	fl.StringVar(&f.results, "results", "", "Path to the county results CSV")
	fl.BoolVar(&f.synthetic, "synthetic", false, "Generate synthetic attributes instead of reading results")
	fl.Int64Var(&f.syntheticSeed, "synthetic-seed", 1, "Seed for synthetic attributes")
	fl.StringVar(&f.geojson, "geojson", "", "Optional county GeoJSON for centroid coordinates")
	fl.StringVar(&f.idProperty, "id-property", adjacency.DefaultIDProperty, "GeoJSON feature property holding the county id")
	fl.StringSliceVar(&f.exclude, "exclude", adjacency.DefaultExcludeRegions, "Home regions to drop from the adjacency file")
	fl.StringSliceVar(&f.excludeStates, "exclude-states", adjacency.DefaultExcludeStates, "State names to drop from the results file")
	fl.StringSliceVar(&f.flip, "flip", nil, "Home regions whose sides are swapped")
	fl.BoolVar(&f.allowMissing, "allow-missing", false, "Give nodes without results zero population instead of failing")
	fl.BoolVar(&f.strict, "strict", false, "Fail on results rows for unknown counties")
	fl.BoolVar(&f.largestOnly, "largest-component", false, "Keep only the largest connected component")
	fl.StringVarP(&f.output, "output", "o", "counties.bin", "Output dataset path")
	fl.StringVar(&f.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	cmd.MarkFlagRequired("adjacency")
	cmd.MarkFlagsMutuallyExclusive("results", "synthetic")
	cmd.MarkFlagsOneRequired("results", "synthetic")
	return cmd
}

func runPreprocess(ctx context.Context, f preprocessFlags) error {
	logger := config.NewLogger(os.Stderr, config.LogConfig{Level: f.logLevel, Format: "text"})
	start := time.Now()

	// Step 1: Parse adjacency.
	logger.Info("parsing adjacency", "path", f.adjacency)
	af, err := os.Open(f.adjacency)
	if err != nil {
		return fmt.Errorf("open adjacency: %w", err)
	}
	parsed, err := adjacency.Parse(ctx, af, adjacency.ParseOptions{ExcludeRegions: f.exclude, Logger: logger})
	af.Close()
	if err != nil {
		return fmt.Errorf("parse adjacency: %w", err)
	}
	logger.Info("parsed adjacency", "nodes", len(parsed.Nodes), "pairs", len(parsed.Edges))

	// Step 2: Build graph.
	g, err := graph.Build(parsed)
	if err != nil {
		return fmt.Errorf("build graph: %w", err)
	}
	logger.Info("graph built", "nodes", g.NumNodes, "edges", g.NumEdges/2, "regions", len(g.RegionLabel))

	// Step 3: Attributes.
	attrs, err := loadAttributes(ctx, f, parsed, g, logger)
	if err != nil {
		return err
	}
	if len(f.flip) > 0 {
		attrs.Flip(parsed.Nodes, f.flip)
		logger.Info("flipped regions", "regions", f.flip)
	}
	if err := g.SetAttributes(attrs, f.allowMissing, logger); err != nil {
		return fmt.Errorf("attach attributes: %w", err)
	}

	// Step 4: Coordinates.
	if f.geojson != "" {
		gf, err := os.Open(f.geojson)
		if err != nil {
			return fmt.Errorf("open geojson: %w", err)
		}
		centroids, err := adjacency.ParseCentroids(gf, f.idProperty)
		gf.Close()
		if err != nil {
			return fmt.Errorf("parse geojson: %w", err)
		}
		missing := g.SetCoordinates(centroids)
		logger.Info("centroids attached", "features", len(centroids), "missing", missing)
	}

	// Step 5: Largest component.
	if f.largestOnly {
		nodes := graph.LargestComponent(g)
		logger.Info("largest component",
			"nodes", len(nodes),
			"share", fmt.Sprintf("%.1f%%", float64(len(nodes))/float64(max(g.NumNodes, 1))*100),
		)
		g = graph.FilterToComponent(g, nodes)
	}

	// Step 6: Serialize.
	logger.Info("writing dataset", "path", f.output)
	if err := graph.WriteBinary(f.output, g); err != nil {
		return fmt.Errorf("write dataset: %w", err)
	}
	info, err := os.Stat(f.output)
	if err != nil {
		return err
	}
	logger.Info("done",
		"elapsed", time.Since(start).Round(time.Millisecond),
		"bytes", info.Size(),
		"total_population", g.TotalPopulation(),
	)
	return nil
}

func loadAttributes(ctx context.Context, f preprocessFlags, parsed *adjacency.ParseResult, g *graph.Graph, logger *slog.Logger) (adjacency.Attributes, error) {
	if f.synthetic {
		logger.Info("generating synthetic attributes", "seed", f.syntheticSeed)
		return adjacency.Synthetic(parsed.Nodes, f.syntheticSeed), nil
	}

	known := make(map[string]bool, len(g.NodeID))
	for _, id := range g.NodeID {
		known[id] = true
	}
	rf, err := os.Open(f.results)
	if err != nil {
		return nil, fmt.Errorf("open results: %w", err)
	}
	defer rf.Close()
	attrs, err := adjacency.ParseResults(ctx, rf, adjacency.ResultsOptions{
		ExcludeStates: f.excludeStates,
		Known:         known,
		Strict:        f.strict,
		Logger:        logger,
	})
	if err != nil {
		return nil, fmt.Errorf("parse results: %w", err)
	}
	logger.Info("parsed results", "counties", len(attrs))
	return attrs, nil
}
