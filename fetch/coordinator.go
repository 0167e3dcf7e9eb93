// Package fetch deduplicates and sequences the REST calls that refresh the
// entity store, both on initial mount and on event-driven invalidation.
package fetch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"nestly/store"
	"nestly/utils"
)

// Func loads one collection from the backend.
type Func func(ctx context.Context) ([]store.Entity, error)

// DefaultCoalesceWindow is how long an event-driven refresh waits so that a
// burst of events produces a single request.
const DefaultCoalesceWindow = 10 * time.Millisecond

// Coordinator guarantees at most one concurrent fetch per collection key.
// Concurrent EnsureFresh calls for the same key attach to the in-flight
// fetch; Invalidate calls arriving while a fetch runs are coalesced into
// exactly one follow-up fetch.
type Coordinator struct {
	store    *store.Store
	logger   *zap.Logger
	group    singleflight.Group
	coalesce time.Duration

	mu       sync.Mutex
	fetchers map[string]Func
	dirty    map[string]bool
	pending  map[string]bool
}

// New creates a Coordinator writing into st.
func New(st *store.Store) *Coordinator {
	return &Coordinator{
		store:    st,
		logger:   utils.GetLogger(),
		coalesce: DefaultCoalesceWindow,
		fetchers: make(map[string]Func),
		dirty:    make(map[string]bool),
		pending:  make(map[string]bool),
	}
}

// SetCoalesceWindow overrides the burst window (tests shrink it).
func (c *Coordinator) SetCoalesceWindow(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.coalesce = d
}

// Register installs the fetcher for a collection key.
func (c *Coordinator) Register(key string, fn Func) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fetchers[key] = fn
}

// EnsureFresh fetches the collection unless a fetch for the same key is
// already in flight, in which case the caller attaches to its result. The
// dirty flag is cleared at the start of each fetch and re-checked after it:
// an invalidation arriving mid-flight makes the same call fetch again
// before returning, no matter who started the fetch, so the store never
// ends up serving data staler than the last known mutation.
// Failures land in the store as the collection's error state and are also
// returned for callers that block on freshness.
func (c *Coordinator) EnsureFresh(ctx context.Context, key string) error {
	_, err, _ := c.group.Do(key, func() (any, error) {
		for {
			c.mu.Lock()
			c.dirty[key] = false
			c.mu.Unlock()

			err := c.fetch(ctx, key)

			c.mu.Lock()
			redo := c.dirty[key]
			c.mu.Unlock()
			if !redo {
				return nil, err
			}
		}
	})
	return err
}

func (c *Coordinator) fetch(ctx context.Context, key string) error {
	c.mu.Lock()
	fn, ok := c.fetchers[key]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("fetch: no fetcher registered for %q", key)
	}

	c.store.SetLoading(key)
	items, err := fn(ctx)
	if err != nil {
		c.logger.Warn("collection fetch failed",
			zap.String("collection", key), zap.Error(err))
		c.store.SetError(key, err)
		return err
	}
	c.store.Set(key, items)
	return nil
}

// Invalidate schedules an asynchronous refresh of the collection. Bursts
// within one coalescing window collapse into a single request. The dirty
// flag reaches every in-flight fetch through EnsureFresh, including ones
// started by direct callers; the worker here only guarantees that some
// fetch runs when none is in flight to pick the flag up.
func (c *Coordinator) Invalidate(key string) {
	c.mu.Lock()
	c.dirty[key] = true
	if c.pending[key] {
		c.mu.Unlock()
		return
	}
	c.pending[key] = true
	window := c.coalesce
	c.mu.Unlock()

	go func() {
		time.Sleep(window)
		for {
			c.mu.Lock()
			if !c.dirty[key] {
				c.pending[key] = false
				c.mu.Unlock()
				return
			}
			c.mu.Unlock()
			_ = c.EnsureFresh(context.Background(), key)
		}
	}()
}

// Wait blocks until no refresh is pending for the key, or the context ends.
// Only tests and the demo agent use it.
func (c *Coordinator) Wait(ctx context.Context, key string) error {
	tick := time.NewTicker(2 * time.Millisecond)
	defer tick.Stop()
	for {
		c.mu.Lock()
		idle := !c.pending[key]
		c.mu.Unlock()
		if idle {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
		}
	}
}
