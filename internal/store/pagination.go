package store

import (
	"github.com/dgraph-io/badger/v4"
)

// Page size bounds for origin listings.
const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// PaginationParams contains pagination request parameters.
type PaginationParams struct {
	Limit  int    // Entries per page (defaults to DefaultPageLimit, capped at MaxPageLimit)
	Cursor string // Opaque cursor for the next page (empty for the first page)
}

// Validate checks and corrects pagination parameters.
func (p *PaginationParams) Validate() {
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
}

// scanIndex returns up to limit key suffixes under prefix, resuming strictly
// after the suffix `after`. more reports whether further keys exist.
func scanIndex(txn *badger.Txn, prefix, after string, limit int) (suffixes []string, more bool) {
	p := []byte(prefix)
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false // Key-only index, no values to fetch
	opts.Prefix = p

	it := txn.NewIterator(opts)
	defer it.Close()

	seekKey := p
	if after != "" {
		seekKey = []byte(prefix + after)
	}
	it.Seek(seekKey)
	// Skip the cursor key itself (it was returned on the previous page)
	if after != "" && it.ValidForPrefix(p) && string(it.Item().Key()) == prefix+after {
		it.Next()
	}

	for ; it.ValidForPrefix(p); it.Next() {
		if len(suffixes) == limit {
			return suffixes, true
		}
		suffixes = append(suffixes, string(it.Item().Key()[len(p):]))
	}
	return suffixes, false
}
