package syncer

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/mesh-intelligence/oilsync/internal/logging"
	"github.com/mesh-intelligence/oilsync/pkg/types"
)

// DefaultSyncInterval is the pause between passes when nothing failed.
const DefaultSyncInterval = time.Minute

// Passer runs one full sync pass.
type Passer interface {
	SyncAll(ctx context.Context, ownerID int64, token string) (Report, error)
}

// Runner repeats sync passes in the background: on a fixed interval, on
// every reconnect signal, and sooner (with exponential backoff) after a
// pass that failed.
type Runner struct {
	pass        Passer
	identity    func() types.Identity
	interval    time.Duration
	reconnected <-chan struct{}
	opts        options
}

// NewRunner creates a runner. identity is read before every pass so a
// logout or token refresh takes effect without a restart. reconnected may
// be nil.
func NewRunner(pass Passer, identity func() types.Identity, interval time.Duration, reconnected <-chan struct{}, opts ...Option) *Runner {
	if interval <= 0 {
		interval = DefaultSyncInterval
	}
	return &Runner{
		pass:        pass,
		identity:    identity,
		interval:    interval,
		reconnected: reconnected,
		opts:        buildOptions(logging.ComponentRunner, opts),
	}
}

// Run loops until ctx ends and returns ctx.Err().
func (r *Runner) Run(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.interval / 10
	b.MaxInterval = r.interval
	b.MaxElapsedTime = 0
	b.Reset()

	for {
		wait := r.interval
		id := r.identity()
		rep, err := r.pass.SyncAll(ctx, id.OwnerID, id.Token)
		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			wait = b.NextBackOff()
			r.opts.logger.Errorw("sync pass failed", "owner_id", id.OwnerID, "error", err, "retry_in", wait)
		case rep.Failed() > 0:
			wait = b.NextBackOff()
			r.opts.logger.Infow("sync pass left failed rows", "owner_id", id.OwnerID,
				"failed", rep.Failed(), "retry_in", wait)
		default:
			b.Reset()
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		case <-r.reconnected:
			timer.Stop()
			b.Reset()
			r.opts.logger.Infow("reconnected, syncing now")
		}
	}
}
