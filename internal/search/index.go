package search

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/blevesearch/bleve/v2"

	"github.com/listenupapp/shelfcache/internal/domain"
)

// TagIndex wraps a Bleve index of tags.
//
// Thread safety: All public methods are safe for concurrent use.
type TagIndex struct {
	index  bleve.Index
	path   string
	logger *slog.Logger
	mu     sync.RWMutex
}

// Options configures the tag index.
type Options struct {
	DataPath string       // Directory for index storage; empty keeps the index in memory
	Logger   *slog.Logger // Logger for operations (uses discard if nil)
}

// mappingVersion is incremented whenever the index mapping changes.
// A mismatch on startup triggers a rebuild.
const mappingVersion = "1"

// batchSize bounds the number of documents per Bleve batch.
const batchSize = 500

// NewTagIndex creates or opens a tag index.
// An on-disk index with an outdated mapping or that fails to open is removed and recreated;
// the origin store repopulates it on startup.
func NewTagIndex(opts Options) (*TagIndex, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	if opts.DataPath == "" {
		index, err := bleve.NewMemOnly(buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("create in-memory index: %w", err)
		}
		return &TagIndex{index: index, logger: logger}, nil
	}

	indexPath := filepath.Join(opts.DataPath, "tags.bleve")
	versionPath := filepath.Join(opts.DataPath, "tags.version")

	var index bleve.Index
	var err error

	if _, statErr := os.Stat(indexPath); statErr == nil {
		existing, readErr := os.ReadFile(versionPath)
		switch {
		case readErr != nil || string(existing) != mappingVersion:
			logger.Info("tag index mapping changed, will rebuild",
				"old_version", string(existing),
				"new_version", mappingVersion,
			)
		default:
			index, err = bleve.Open(indexPath)
			if err != nil {
				logger.Warn("failed to open existing tag index, will recreate", "path", indexPath, "error", err)
				index = nil
			}
		}
		if index == nil {
			if removeErr := os.RemoveAll(indexPath); removeErr != nil {
				return nil, fmt.Errorf("remove old index: %w", removeErr)
			}
		}
	}

	if index == nil {
		index, err = bleve.New(indexPath, buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("create index: %w", err)
		}
		if writeErr := os.WriteFile(versionPath, []byte(mappingVersion), 0o644); writeErr != nil {
			logger.Warn("failed to write tag index version file", "error", writeErr)
		}
		logger.Info("created new tag index", "path", indexPath, "mapping_version", mappingVersion)
	} else {
		logger.Info("opened existing tag index", "path", indexPath)
	}

	return &TagIndex{
		index:  index,
		path:   indexPath,
		logger: logger,
	}, nil
}

// Close closes the index and releases resources.
func (s *TagIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.Close()
}

// IndexTag adds or replaces a tag document.
func (s *TagIndex) IndexTag(_ context.Context, t *domain.Tag) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.Index(t.Slug, NewTagDocument(t).ToMap())
}

// IndexTags indexes many tags in chunked batches.
func (s *TagIndex) IndexTags(_ context.Context, tags []*domain.Tag) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for start := 0; start < len(tags); start += batchSize {
		end := min(start+batchSize, len(tags))

		batch := s.index.NewBatch()
		for _, t := range tags[start:end] {
			if err := batch.Index(t.Slug, NewTagDocument(t).ToMap()); err != nil {
				return fmt.Errorf("batch index %s: %w", t.Slug, err)
			}
		}
		if err := s.index.Batch(batch); err != nil {
			return fmt.Errorf("commit batch %d-%d: %w", start, end, err)
		}
	}
	return nil
}

// DeleteTag removes a tag document.
func (s *TagIndex) DeleteTag(_ context.Context, slug string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.Delete(slug)
}

// DocumentCount returns the number of indexed tags.
func (s *TagIndex) DocumentCount() (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.DocCount()
}
