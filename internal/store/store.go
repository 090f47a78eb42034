// Package store provides the BadgerDB-backed origin for shelves and tags.
//
// The origin is the authoritative copy the cache fetches from when running
// standalone. It serves the same contract as a remote origin: single shelf
// fetches, cursor-paginated listings and reorder commits.
package store

import (
	"context"
	"encoding/json/v2"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/listenupapp/shelfcache/internal/domain"
	"github.com/listenupapp/shelfcache/internal/validation"
)

// EventEmitter receives change notifications after writes commit.
// Store uses this to announce changes without depending on who listens.
type EventEmitter interface {
	Emit(event any)
}

// NoopEmitter is a no-op implementation of EventEmitter for testing.
type NoopEmitter struct{}

// Emit implements EventEmitter.Emit as a no-op.
func (NoopEmitter) Emit(_ any) {}

// NewNoopEmitter creates a new no-op emitter for testing.
func NewNoopEmitter() EventEmitter {
	return NoopEmitter{}
}

// TagIndexer keeps a secondary tag search index in sync with the store.
type TagIndexer interface {
	IndexTag(ctx context.Context, t *domain.Tag) error
	IndexTags(ctx context.Context, tags []*domain.Tag) error
	DeleteTag(ctx context.Context, slug string) error
	SearchPrefix(ctx context.Context, prefix, after string, limit int) ([]string, error)
}

// Store wraps a Badger database instance.
type Store struct {
	db        *badger.DB
	logger    *slog.Logger
	validator *validation.Validator

	// eventEmitter is replaced after construction once listeners exist.
	eventEmitter EventEmitter

	// tagIndex answers prefix searches when set; otherwise slug prefixes are
	// answered by a key scan.
	tagIndex TagIndexer

	// writeMu serializes read-modify-write cycles so index diffs never race.
	writeMu sync.Mutex
	emitMu  sync.RWMutex
}

// New creates a new Store with the given database path and event emitter.
// An empty path opens an in-memory database.
func New(path string, logger *slog.Logger, emitter EventEmitter) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if emitter == nil {
		emitter = NoopEmitter{}
	}

	opts := badger.DefaultOptions(path)
	opts.Logger = nil // Disable Badger's internal logging
	if path == "" {
		opts = opts.WithInMemory(true)
	} else {
		opts.SyncWrites = true       // Ensure writes are synced to disk to prevent corruption on crashes
		opts.CompactL0OnClose = true // Compact L0 tables on close for faster startup
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	store := &Store{
		db:           db,
		logger:       logger,
		validator:    validation.New(),
		eventEmitter: emitter,
	}

	if path == "" {
		logger.Info("Badger database opened in memory")
	} else {
		logger.Info("Badger database opened successfully", "path", path)
	}

	return store, nil
}

// Close gracefully closes the database connection.
func (s *Store) Close() error {
	s.logger.Info("Closing database connection")
	return s.db.Close()
}

// SetEventEmitter replaces the change emitter.
func (s *Store) SetEventEmitter(emitter EventEmitter) {
	if emitter == nil {
		emitter = NoopEmitter{}
	}
	s.emitMu.Lock()
	s.eventEmitter = emitter
	s.emitMu.Unlock()
}

// SetTagIndexer attaches the tag search index and loads every stored tag into it.
func (s *Store) SetTagIndexer(ctx context.Context, indexer TagIndexer) error {
	s.tagIndex = indexer
	if indexer == nil {
		return nil
	}

	tags, err := s.ListTags(ctx)
	if err != nil {
		return fmt.Errorf("load tags for index: %w", err)
	}
	if err := indexer.IndexTags(ctx, tags); err != nil {
		return fmt.Errorf("index tags: %w", err)
	}
	s.logger.Info("tag index populated", "tags", len(tags))
	return nil
}

func (s *Store) emit(event any) {
	s.emitMu.RLock()
	emitter := s.eventEmitter
	s.emitMu.RUnlock()
	emitter.Emit(event)
}

// Helper methods for database operations.

// get retrieves a value by key.
func (s *Store) get(key []byte, dest any) error {
	return s.db.View(func(txn *badger.Txn) error {
		return getInTxn(txn, key, dest)
	})
}

func getInTxn(txn *badger.Txn, key []byte, dest any) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, dest)
	})
}

func setInTxn(txn *badger.Txn, key []byte, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	return txn.Set(key, data)
}

// exists checks if a key exists.
func (s *Store) exists(key []byte) (bool, error) {
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		return err
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
