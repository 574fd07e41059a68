// Package store persists named partition checkpoints in an embedded
// BadgerDB. Only the snapshot (node→region and region→nodes) and a small
// metadata record are stored; everything else is recomputed on restore.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"redistrict/pkg/partition"
)

var (
	// ErrNotFound is returned when no checkpoint has the requested name.
	ErrNotFound = errors.New("checkpoint not found")
	// ErrInvalidName is returned for empty or malformed checkpoint names.
	ErrInvalidName = errors.New("invalid checkpoint name")
)

const (
	metaPrefix = "meta/"
	snapPrefix = "snap/"

	maxNameLen = 128
)

// Config configures the database.
type Config struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path     string
	InMemory bool
	// SyncWrites fsyncs every commit.
	SyncWrites bool
	// GCInterval is how often value log GC runs. Zero disables it.
	GCInterval     time.Duration
	GCDiscardRatio float64
	// Logger receives badger's own log lines. Nil silences them.
	Logger *slog.Logger
}

// DefaultConfig returns production defaults for a database at path.
func DefaultConfig(path string) Config {
	return Config{
		Path:           path,
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// Checkpoint describes a stored snapshot.
type Checkpoint struct {
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	RunID     string    `json:"run_id,omitempty"`
	Iteration int64     `json:"iteration"`
	Target    string    `json:"target,omitempty"`
	Score     float64   `json:"score"`
	Nodes     int       `json:"nodes"`
	Regions   int       `json:"regions"`
}

// Store is a checkpoint database. Safe for concurrent use.
type Store struct {
	db     *badger.DB
	logger *slog.Logger

	stopGC chan struct{}
	gcDone chan struct{}
	once   sync.Once
}

// badgerLogger adapts slog to badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l badgerLogger) Infof(format string, args ...any) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

// Open opens or creates the database described by cfg.
func Open(cfg Config) (*Store, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, errors.New("store path is required")
		}
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create store directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Store{db: db, logger: logger}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		s.stopGC = make(chan struct{})
		s.gcDone = make(chan struct{})
		go s.runGC(cfg.GCInterval, cfg.GCDiscardRatio)
	}
	return s, nil
}

// OpenInMemory opens a throwaway database, mostly for tests.
func OpenInMemory() (*Store, error) {
	return Open(Config{InMemory: true})
}

func (s *Store) runGC(interval time.Duration, ratio float64) {
	defer close(s.gcDone)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopGC:
			return
		case <-ticker.C:
			err := s.db.RunValueLogGC(ratio)
			if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				s.logger.Warn("value log gc failed", "error", err)
			}
		}
	}
}

// Close stops background GC and closes the database.
func (s *Store) Close() error {
	var err error
	s.once.Do(func() {
		if s.stopGC != nil {
			close(s.stopGC)
			<-s.gcDone
		}
		err = s.db.Close()
	})
	return err
}

// ValidateName checks that name can be used as a checkpoint key.
func ValidateName(name string) error {
	if name == "" || len(name) > maxNameLen {
		return fmt.Errorf("%q: %w", name, ErrInvalidName)
	}
	for _, c := range name {
		ok := c == '-' || c == '_' || c == '.' ||
			(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
		if !ok {
			return fmt.Errorf("%q: %w", name, ErrInvalidName)
		}
	}
	return nil
}

// Save writes snap under meta.Name, replacing any checkpoint of that name.
// CreatedAt, Nodes and Regions are filled in when zero.
func (s *Store) Save(ctx context.Context, meta Checkpoint, snap partition.Snapshot) error {
	if err := ValidateName(meta.Name); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = time.Now().UTC()
	}
	if meta.Nodes == 0 {
		meta.Nodes = len(snap.Assignment)
	}
	if meta.Regions == 0 {
		meta.Regions = len(snap.Members)
	}

	body, err := snap.MarshalBinary()
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	head, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode checkpoint metadata: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(snapPrefix+meta.Name), body); err != nil {
			return err
		}
		return txn.Set([]byte(metaPrefix+meta.Name), head)
	})
	if err != nil {
		return fmt.Errorf("save checkpoint %s: %w", meta.Name, err)
	}
	s.logger.Info("checkpoint saved", "name", meta.Name, "bytes", len(body))
	return nil
}

// Load returns the checkpoint called name.
func (s *Store) Load(ctx context.Context, name string) (Checkpoint, partition.Snapshot, error) {
	var (
		meta Checkpoint
		snap partition.Snapshot
	)
	if err := ValidateName(name); err != nil {
		return meta, snap, err
	}
	if err := ctx.Err(); err != nil {
		return meta, snap, err
	}
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(metaPrefix + name))
		if err != nil {
			return err
		}
		if err := item.Value(func(v []byte) error { return json.Unmarshal(v, &meta) }); err != nil {
			return fmt.Errorf("decode metadata: %w", err)
		}
		item, err = txn.Get([]byte(snapPrefix + name))
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error { return snap.UnmarshalBinary(v) })
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return meta, snap, fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	if err != nil {
		return meta, snap, fmt.Errorf("load checkpoint %s: %w", name, err)
	}
	return meta, snap, nil
}

// List returns every checkpoint's metadata, newest first.
func (s *Store) List(ctx context.Context) ([]Checkpoint, error) {
	var out []Checkpoint
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(metaPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var meta Checkpoint
			if err := it.Item().Value(func(v []byte) error { return json.Unmarshal(v, &meta) }); err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			out = append(out, meta)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// Delete removes the checkpoint called name.
func (s *Store) Delete(ctx context.Context, name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(metaPrefix + name)); err != nil {
			return err
		}
		if err := txn.Delete([]byte(metaPrefix + name)); err != nil {
			return err
		}
		return txn.Delete([]byte(snapPrefix + name))
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	return err
}
