package syncer

import (
	"context"
	"time"

	"github.com/mesh-intelligence/oilsync/internal/cache"
	"github.com/mesh-intelligence/oilsync/internal/logging"
	"github.com/mesh-intelligence/oilsync/internal/metrics"
	"github.com/mesh-intelligence/oilsync/internal/netstate"
	"github.com/mesh-intelligence/oilsync/pkg/types"
)

// DefaultMaxAge is how long a cache counts as fresh.
const DefaultMaxAge = 5 * time.Minute

// ReadOptions controls one read-through read.
type ReadOptions struct {
	Token   string
	OwnerID int64
	Force   bool
	MaxAge  time.Duration
}

// Fetcher loads the server value for an owner.
type Fetcher[V any] func(ctx context.Context, token string, ownerID int64) (V, error)

// ReadThrough serves a cache and refreshes it from the server when it is
// stale. Connectivity and server errors never escape Get; the cached value
// is returned instead.
type ReadThrough[V any] struct {
	name      string
	cache     cache.Snapshot[V]
	fetch     Fetcher[V]
	conn      netstate.Connectivity
	afterSave func(ownerID int64, v V) error
	opts      options
}

// NewReadThrough creates a read-through engine named after its cache.
func NewReadThrough[V any](name string, snap cache.Snapshot[V], fetch Fetcher[V], conn netstate.Connectivity, opts ...Option) *ReadThrough[V] {
	o := buildOptions(logging.ComponentReadSync, opts)
	o.logger = o.logger.With("cache", name)
	return &ReadThrough[V]{name: name, cache: snap, fetch: fetch, conn: conn, opts: o}
}

// AfterSave registers fn to run after each successful refresh.
func (r *ReadThrough[V]) AfterSave(fn func(ownerID int64, v V) error) *ReadThrough[V] {
	r.afterSave = fn
	return r
}

// Name returns the cache name.
func (r *ReadThrough[V]) Name() string { return r.name }

// Get returns the owner's value, refreshing it first when forced, never
// synced, or older than MaxAge.
func (r *ReadThrough[V]) Get(ctx context.Context, ro ReadOptions) (V, error) {
	var zero V
	if ro.OwnerID == 0 {
		return zero, types.ErrOwnerRequired
	}
	maxAge := ro.MaxAge
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}

	last, synced, err := r.cache.LastSync(ro.OwnerID)
	if err != nil {
		return zero, err
	}
	if !ro.Force && synced && r.opts.now().Sub(last) <= maxAge {
		metrics.RecordCacheRead(r.name, metrics.RefreshFresh)
		return r.cache.Load(ro.OwnerID)
	}

	if ro.Token == "" || !r.conn.Online() {
		r.opts.logger.Debugw("serving cache without refresh", "owner_id", ro.OwnerID,
			"has_token", ro.Token != "", "online", r.conn.Online())
		metrics.RecordCacheRead(r.name, metrics.RefreshFallback)
		return r.cache.Load(ro.OwnerID)
	}

	v, err := r.fetch(ctx, ro.Token, ro.OwnerID)
	if err != nil {
		r.opts.logger.Warnw("refresh failed, serving cache", "owner_id", ro.OwnerID, "error", err)
		metrics.RecordCacheRead(r.name, metrics.RefreshFallback)
		return r.cache.Load(ro.OwnerID)
	}
	if err := r.cache.Replace(ro.OwnerID, v); err != nil {
		return zero, err
	}
	if r.afterSave != nil {
		if err := r.afterSave(ro.OwnerID, v); err != nil {
			return zero, err
		}
	}
	metrics.RecordCacheRead(r.name, metrics.RefreshFetched)
	return v, nil
}

// Refresh forces a refresh and discards the value.
func (r *ReadThrough[V]) Refresh(ctx context.Context, token string, ownerID int64) error {
	_, err := r.Get(ctx, ReadOptions{Token: token, OwnerID: ownerID, Force: true})
	return err
}

// Refresher is a cache that can be refreshed as part of a full pass.
type Refresher interface {
	Name() string
	Refresh(ctx context.Context, token string, ownerID int64) error
}
