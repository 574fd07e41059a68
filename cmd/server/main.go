package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"redistrict/pkg/api"
	"redistrict/pkg/config"
	"redistrict/pkg/dataset"
	"redistrict/pkg/sim"
	"redistrict/pkg/store"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		dataPath   string
		addr       string
		corsOrigin string
		storePath  string
		inMemory   bool
	)
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Serve the redistricting API",
		Long: `Load a dataset, seed the initial partition and serve the HTTP API,
the websocket frame stream and Prometheus metrics.

Examples:
  server --config redistrict.yaml
  server --dataset counties.bin --addr :9090 --in-memory`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			fl := cmd.Flags()
			if fl.Changed("dataset") {
				cfg.Data.Dataset = dataPath
			}
			if fl.Changed("addr") {
				cfg.Server.Addr = addr
			}
			if fl.Changed("cors-origin") {
				cfg.Server.CORSOrigin = corsOrigin
			}
			if fl.Changed("store") {
				cfg.Store.Path = storePath
			}
			if fl.Changed("in-memory") {
				cfg.Store.InMemory = inMemory
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runServer(cmd.Context(), cfg)
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&configPath, "config", "c", "", "Path to a YAML or JSON config file")
	fl.StringVar(&dataPath, "dataset", "", "Dataset file, overrides data.dataset")
	fl.StringVar(&addr, "addr", "", "Listen address, overrides server.addr")
	fl.StringVar(&corsOrigin, "cors-origin", "", "CORS allowed origin (empty = same-origin)")
	fl.StringVar(&storePath, "store", "", "Checkpoint directory, overrides store.path")
	fl.BoolVar(&inMemory, "in-memory", false, "Keep checkpoints in memory only")
	return cmd
}

func runServer(ctx context.Context, cfg config.Config) error {
	logger := config.NewLogger(os.Stderr, cfg.Log)
	slog.SetDefault(logger)
	start := time.Now()

	loaded, err := dataset.Load(cfg, logger)
	if err != nil {
		return err
	}

	storeCfg := store.DefaultConfig(cfg.Store.Path)
	storeCfg.InMemory = cfg.Store.InMemory
	storeCfg.SyncWrites = cfg.Store.SyncWrites
	storeCfg.GCInterval = cfg.Store.GCInterval
	storeCfg.Logger = logger
	cs, err := store.Open(storeCfg)
	if err != nil {
		return fmt.Errorf("open checkpoint store: %w", err)
	}
	defer cs.Close()

	runner := sim.NewRunner(loaded.Engine, cs, sim.Options{
		FrameRate:    cfg.Server.FrameRate,
		RegionLabels: loaded.Labels,
		Logger:       logger,
	})
	defer func() {
		if runner.Stop() {
			waitCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			runner.Wait(waitCtx)
		}
	}()

	defaults, err := dataset.RunParams(cfg)
	if err != nil {
		return err
	}

	// A nil *geo.Locator must not become a non-nil interface.
	var locator api.Locator
	if l := loaded.Locator(cfg.Server.MaxLocateDistance); l != nil {
		locator = l
		logger.Info("locator ready", "points", l.Len())
	}

	serverCfg := api.DefaultConfig(cfg.Server.Addr)
	serverCfg.CORSOrigin = cfg.Server.CORSOrigin
	serverCfg.MaxConcurrent = cfg.Server.MaxConcurrent
	serverCfg.RequestTimeout = cfg.Server.RequestTimeout

	handlers := api.NewHandlers(runner, locator, defaults, logger)
	srv := api.NewServer(serverCfg, handlers, logger)

	logger.Info("ready", "elapsed", time.Since(start).Round(time.Millisecond))
	if err := api.ListenAndServe(ctx, srv, logger); err != nil {
		logger.Error("server stopped", "error", err)
		return err
	}
	return nil
}
