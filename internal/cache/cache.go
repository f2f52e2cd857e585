// Package cache holds the per-owner entity caches kept in the local store.
//
// A ListCache stores an ordered list per owner and a RecordCache stores a
// single snapshot per owner. Every query is filtered on owner_id.
package cache

import (
	"time"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/oilsync/internal/logging"
)

// Snapshot is the view the read-path sync engine needs from a cache.
type Snapshot[V any] interface {
	// Load returns the cached value for the owner, the zero value when
	// nothing is cached.
	Load(ownerID int64) (V, error)

	// Replace overwrites the cached value and stamps the last sync time.
	Replace(ownerID int64, v V) error

	// LastSync returns when the owner's cache was last refreshed. ok is
	// false when it never was or has been marked stale.
	LastSync(ownerID int64) (t time.Time, ok bool, err error)
}

// Option configures a cache.
type Option func(*options)

type options struct {
	logger *zap.SugaredLogger
	now    func() time.Time
}

// WithLogger sets the logger used for corrupt-row warnings.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(o *options) { o.logger = l }
}

// WithClock overrides the time source used for sync stamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func buildOptions(name string, opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = logging.OrNop(o.logger).With("cache", name)
	return o
}

// fromMillis turns a stored stamp into a time; 0 means never or stale.
func fromMillis(ms int64) (time.Time, bool) {
	if ms <= 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}
