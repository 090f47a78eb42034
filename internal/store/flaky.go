package store

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/listenupapp/shelfcache/internal/domain"
	"github.com/listenupapp/shelfcache/internal/remote"
)

// Errors returned by Flaky.
var (
	ErrInjected       = errors.New("injected origin failure")
	ErrNotPublishable = errors.New("wrapped backend does not accept writes")
)

// Operations Flaky can fail on demand.
const (
	OpFetchShelf    = "fetch_shelf"
	OpFetchPage     = "fetch_page"
	OpCommitReorder = "commit_reorder"
	OpPublish       = "publish"
)

// FlakyOptions configures simulated latency and failures.
type FlakyOptions struct {
	Latency     time.Duration // Added before every call
	FailureRate float64       // Probability in [0,1] that a call fails
	Seed        uint64        // Seeds the failure draw; zero picks a random seed
}

// Flaky wraps a backend with artificial latency and failures.
type Flaky struct {
	next     remote.Backend
	rng      *rand.Rand
	failNext map[string]int
	opts     FlakyOptions
	mu       sync.Mutex
}

var (
	_ remote.Backend   = (*Flaky)(nil)
	_ remote.Publisher = (*Flaky)(nil)
)

// NewFlaky wraps next.
func NewFlaky(next remote.Backend, opts FlakyOptions) *Flaky {
	seed := opts.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &Flaky{
		next:     next,
		rng:      rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		failNext: make(map[string]int),
		opts:     opts,
	}
}

// FailNext makes the next n calls of op fail regardless of the failure rate.
func (f *Flaky) FailNext(op string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failNext[op] += n
}

// FetchShelf implements remote.Backend.
func (f *Flaky) FetchShelf(ctx context.Context, id string) (*domain.Shelf, error) {
	if err := f.before(ctx, OpFetchShelf); err != nil {
		return nil, err
	}
	return f.next.FetchShelf(ctx, id)
}

// FetchPage implements remote.Backend.
func (f *Flaky) FetchPage(ctx context.Context, kind domain.QueryKind, key, cursor string, limit int) (*domain.Page, error) {
	if err := f.before(ctx, OpFetchPage); err != nil {
		return nil, err
	}
	return f.next.FetchPage(ctx, kind, key, cursor, limit)
}

// CommitReorder implements remote.Backend.
func (f *Flaky) CommitReorder(ctx context.Context, shelfID string, order []int) error {
	if err := f.before(ctx, OpCommitReorder); err != nil {
		return err
	}
	return f.next.CommitReorder(ctx, shelfID, order)
}

// PutShelf forwards to the wrapped backend when it is a remote.Publisher.
func (f *Flaky) PutShelf(ctx context.Context, shelf *domain.Shelf) error {
	pub, ok := f.next.(remote.Publisher)
	if !ok {
		return ErrNotPublishable
	}
	if err := f.before(ctx, OpPublish); err != nil {
		return err
	}
	return pub.PutShelf(ctx, shelf)
}

// AppendItems forwards to the wrapped backend when it is a remote.Publisher.
func (f *Flaky) AppendItems(ctx context.Context, shelfID string, items []domain.Item) (*domain.Shelf, error) {
	pub, ok := f.next.(remote.Publisher)
	if !ok {
		return nil, ErrNotPublishable
	}
	if err := f.before(ctx, OpPublish); err != nil {
		return nil, err
	}
	return pub.AppendItems(ctx, shelfID, items)
}

func (f *Flaky) before(ctx context.Context, op string) error {
	if f.opts.Latency > 0 {
		timer := time.NewTimer(f.opts.Latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext[op] > 0 {
		f.failNext[op]--
		return ErrInjected
	}
	if f.opts.FailureRate > 0 && f.rng.Float64() < f.opts.FailureRate {
		return ErrInjected
	}
	return nil
}
