// Package neuralmem is a persistent, cross-session pattern memory store.
// It captures reusable patterns discovered by independent work sessions,
// makes them searchable by embedding similarity, discovers cross-context
// bridges between near-duplicate patterns, and keeps a usage-driven quality
// score per pattern.
//
// Embeddings are supplied by the caller; the store never computes them.
package neuralmem

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	_ "github.com/asg017/sqlite-vec-go-bindings/ncruces"
	"github.com/dgraph-io/ristretto"
	_ "github.com/ncruces/go-sqlite3/driver"
)

type Store struct {
	db    *sql.DB
	cfg   Config
	log   *slog.Logger
	index VectorIndex
	merge func(existing, incoming string) string

	sessMu    sync.RWMutex
	sessLocks map[string]*sync.Mutex

	insightCache *ristretto.Cache

	bridgeCh chan int64
	bridgeWG sync.WaitGroup
	workerWG sync.WaitGroup
	closeMu  sync.Mutex
	closed   bool
}

type Option func(*Store)

// WithConfig replaces the default tunables.
func WithConfig(cfg Config) Option {
	return func(s *Store) { s.cfg = cfg }
}

// WithLogger sets the logger used for swallowed bridge-discovery and
// maintenance failures.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.log = l }
}

// WithVectorIndex injects an alternative similarity index, e.g. the in-memory
// chromem implementation. The default indexes into the sqlite-vec table.
func WithVectorIndex(ix VectorIndex) Option {
	return func(s *Store) { s.index = ix }
}

// WithMergePolicy sets how upserted content merges into an existing pattern.
// The default replaces the old content.
func WithMergePolicy(f func(existing, incoming string) string) Option {
	return func(s *Store) { s.merge = f }
}

func Open(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	// a :memory: database exists per connection; pin the pool to one
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{
		db:        db,
		cfg:       DefaultConfig(),
		sessLocks: make(map[string]*sync.Mutex),
		bridgeCh:  make(chan int64, 64),
	}

	for _, opt := range opts {
		opt(s)
	}

	if err := s.cfg.validate(); err != nil {
		db.Close()
		return nil, err
	}

	if s.log == nil {
		level := slog.LevelInfo
		if os.Getenv("NEURALMEM_DEBUG") == "true" {
			level = slog.LevelDebug
		}
		s.log = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	}

	if s.index == nil {
		s.index = &sqliteIndex{s: s}
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e4,
		MaxCost:     1 << 20,
		BufferItems: 64,
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	s.insightCache = cache

	s.workerWG.Add(1)
	go s.bridgeWorker()

	return s, nil
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	if _, err := s.db.Exec(fmt.Sprintf(vecSchemaFmt, s.cfg.Dimensions)); err != nil {
		return err
	}

	return nil
}

// Flush blocks until all queued bridge checks have run. Useful for callers
// that need bridge rows visible before their next read.
func (s *Store) Flush() {
	s.bridgeWG.Wait()
}

func (s *Store) Close() error {
	s.closeMu.Lock()
	if s.closed {
		s.closeMu.Unlock()
		return nil
	}
	s.closed = true
	s.closeMu.Unlock()

	s.bridgeWG.Wait()
	close(s.bridgeCh)
	s.workerWG.Wait()

	if s.insightCache != nil {
		s.insightCache.Close()
	}

	if s.db != nil {
		return s.db.Close()
	}

	return nil
}

func (s *Store) DB() *sql.DB {
	return s.db
}

const maxWriteRetries = 3

// withRetry retries contended writes a bounded number of times before
// surfacing ErrConcurrencyConflict.
func (s *Store) withRetry(fn func() error) error {
	var err error
	for attempt := 0; attempt < maxWriteRetries; attempt++ {
		err = fn()
		if err == nil || !isBusy(err) {
			return err
		}
		time.Sleep(time.Duration(attempt+1) * 10 * time.Millisecond)
	}
	return fmt.Errorf("%w: %v", ErrConcurrencyConflict, err)
}

func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE") || strings.Contains(msg, "constraint")
}
