// Package config loads run and server settings from YAML with environment
// overrides, and validates them with struct tags.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"redistrict/pkg/partition"
	"redistrict/pkg/search"
)

// Config is the complete configuration.
type Config struct {
	Data   DataConfig   `json:"data" yaml:"data"`
	Search SearchConfig `json:"search" yaml:"search"`
	Server ServerConfig `json:"server" yaml:"server"`
	Store  StoreConfig  `json:"store" yaml:"store"`
	Log    LogConfig    `json:"log" yaml:"log"`
}

// DataConfig says where the graph comes from and how it is first split.
type DataConfig struct {
	// Dataset is the preprocessed binary graph.
	Dataset string `json:"dataset" yaml:"dataset" validate:"required"`
	// Seed picks the initial partition: "home" uses each node's home region,
	// "grow" grows Regions random contiguous regions.
	Seed    string `json:"seed" yaml:"seed" validate:"oneof=home grow"`
	Regions int    `json:"regions" yaml:"regions" validate:"required_if=Seed grow,gte=0"`
	// LargestComponentOnly drops nodes outside the largest connected component.
	LargestComponentOnly bool `json:"largest_component_only" yaml:"largest_component_only"`
}

// SearchConfig tunes the engine.
type SearchConfig struct {
	Target            string  `json:"target" yaml:"target" validate:"oneof=side_a side_b balance"`
	Strategy          string  `json:"strategy" yaml:"strategy" validate:"oneof=standard follow_the_leader bfs dfs"`
	ReplayProbability float64 `json:"replay_probability" yaml:"replay_probability" validate:"gte=0,lte=1"`
	LedgerCap         int     `json:"ledger_cap" yaml:"ledger_cap" validate:"gte=1"`
	PopulationFloor   int64   `json:"population_floor" yaml:"population_floor" validate:"gte=0"`
	TotalWeight       int64   `json:"total_weight" yaml:"total_weight" validate:"gte=1"`
	RequireContiguous bool    `json:"require_contiguous" yaml:"require_contiguous"`
	Seed              int64   `json:"seed" yaml:"seed"`
	Steps             int64   `json:"steps" yaml:"steps" validate:"gte=0"`
	StopAfterStall    int64   `json:"stop_after_stall" yaml:"stop_after_stall" validate:"gte=0"`
}

// ServerConfig holds HTTP settings.
type ServerConfig struct {
	Addr           string        `json:"addr" yaml:"addr" validate:"required"`
	MaxConcurrent  int           `json:"max_concurrent" yaml:"max_concurrent" validate:"gte=1"`
	RequestTimeout time.Duration `json:"request_timeout" yaml:"request_timeout" validate:"gt=0"`
	CORSOrigin     string        `json:"cors_origin" yaml:"cors_origin"`
	// FrameRate caps streamed frames per second.
	FrameRate float64 `json:"frame_rate" yaml:"frame_rate" validate:"gt=0"`
	// MaxLocateDistance is the farthest a point may be from a node centroid,
	// in meters.
	MaxLocateDistance float64 `json:"max_locate_distance" yaml:"max_locate_distance" validate:"gt=0"`
}

// StoreConfig configures the checkpoint database.
type StoreConfig struct {
	Path       string        `json:"path" yaml:"path" validate:"required_without=InMemory"`
	InMemory   bool          `json:"in_memory" yaml:"in_memory"`
	SyncWrites bool          `json:"sync_writes" yaml:"sync_writes"`
	GCInterval time.Duration `json:"gc_interval" yaml:"gc_interval" validate:"gte=0"`
}

// LogConfig selects the log handler.
type LogConfig struct {
	Level  string `json:"level" yaml:"level" validate:"oneof=debug info warn error"`
	Format string `json:"format" yaml:"format" validate:"oneof=text json"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Data: DataConfig{
			Dataset: "data/counties.bin",
			Seed:    "home",
		},
		Search: SearchConfig{
			Target:            search.SideA.String(),
			Strategy:          search.Standard.String(),
			ReplayProbability: 0.01,
			LedgerCap:         search.DefaultLedgerCap,
			PopulationFloor:   partition.DefaultPopulationFloor,
			TotalWeight:       partition.DefaultTotalWeight,
			Seed:              1,
			Steps:             100_000,
			StopAfterStall:    0,
		},
		Server: ServerConfig{
			Addr:              ":8080",
			MaxConcurrent:     64,
			RequestTimeout:    5 * time.Second,
			CORSOrigin:        "*",
			FrameRate:         10,
			MaxLocateDistance: 100_000,
		},
		Store: StoreConfig{
			Path:       "data/checkpoints",
			SyncWrites: true,
			GCInterval: 5 * time.Minute,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads path over the defaults, applies REDISTRICT_* environment
// overrides and validates the result. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := Parse(data, &cfg); err != nil {
			return cfg, err
		}
	}
	applyEnv(&cfg, os.Getenv)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Parse decodes YAML, falling back to JSON, into cfg.
func Parse(data []byte, cfg *Config) error {
	if err := yaml.Unmarshal(data, cfg); err != nil {
		if jsonErr := json.Unmarshal(data, cfg); jsonErr != nil {
			return fmt.Errorf("parse config (tried YAML and JSON): YAML error: %v, JSON error: %w", err, jsonErr)
		}
	}
	return nil
}

func applyEnv(cfg *Config, getenv func(string) string) {
	if v := getenv("REDISTRICT_DATASET"); v != "" {
		cfg.Data.Dataset = v
	}
	if v := getenv("REDISTRICT_TARGET"); v != "" {
		cfg.Search.Target = v
	}
	if v := getenv("REDISTRICT_STRATEGY"); v != "" {
		cfg.Search.Strategy = v
	}
	if v := getenv("REDISTRICT_SEED"); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Search.Seed = i
		}
	}
	if v := getenv("REDISTRICT_POPULATION_FLOOR"); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Search.PopulationFloor = i
		}
	}
	if v := getenv("REDISTRICT_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := getenv("REDISTRICT_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := getenv("REDISTRICT_LOG_LEVEL"); v != "" {
		cfg.Log.Level = strings.ToLower(v)
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// FieldError is a validation failure on one field.
type FieldError struct {
	Field string
	Tag   string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("config: %s fails %q", e.Field, e.Tag)
}

// Validate checks every field against its tags and returns the first
// failure as a *FieldError.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return &FieldError{Field: verrs[0].Namespace(), Tag: verrs[0].Tag()}
	}
	return err
}

// PartitionOptions converts the search section for partition.New.
func (c Config) PartitionOptions() partition.Options {
	return partition.Options{
		PopulationFloor:   c.Search.PopulationFloor,
		TotalWeight:       c.Search.TotalWeight,
		RequireContiguous: c.Search.RequireContiguous,
	}
}

// EngineOptions converts the search section for search.NewEngine.
func (c Config) EngineOptions() search.Options {
	return search.Options{LedgerCap: c.Search.LedgerCap, Seed: c.Search.Seed}
}

// NewLogger builds a slog logger writing to w.
func NewLogger(w io.Writer, cfg LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
