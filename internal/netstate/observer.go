// Package netstate tracks whether the API is reachable.
//
// One Observer per process listens to network events and every sync engine
// reads its Online flag at call time.
package netstate

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/oilsync/internal/logging"
	"github.com/mesh-intelligence/oilsync/pkg/types"
)

// Connectivity is the read side consumed by sync engines.
type Connectivity interface {
	Online() bool
}

// Source produces network events until ctx ends.
type Source interface {
	Events(ctx context.Context) <-chan types.NetworkEvent
}

// Observer turns network events into an online flag. It starts online
// until the first event says otherwise.
type Observer struct {
	online      atomic.Bool
	running     atomic.Bool
	reconnected chan struct{}
	logger      *zap.SugaredLogger
}

var _ Connectivity = (*Observer)(nil)

// NewObserver creates an observer in the online state.
func NewObserver(logger *zap.SugaredLogger) *Observer {
	o := &Observer{
		reconnected: make(chan struct{}, 1),
		logger:      logging.OrNop(logger),
	}
	o.online.Store(true)
	return o
}

// Online reports the last observed state.
func (o *Observer) Online() bool {
	return o.online.Load()
}

// Observe applies one event. An offline to online change signals
// Reconnected.
func (o *Observer) Observe(ev types.NetworkEvent) {
	now := ev.Online()
	was := o.online.Swap(now)
	if was == now {
		return
	}
	o.logger.Infow("connectivity changed", "online", now)
	if now {
		select {
		case o.reconnected <- struct{}{}:
		default:
		}
	}
}

// Reconnected delivers one signal per burst of offline to online changes.
func (o *Observer) Reconnected() <-chan struct{} {
	return o.reconnected
}

// Run consumes src until ctx ends or src closes. Only one Run may be
// active per observer.
func (o *Observer) Run(ctx context.Context, src Source) error {
	if !o.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer o.running.Store(false)

	events := src.Events(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			o.Observe(ev)
		}
	}
}

// Static is a fixed Connectivity.
type Static bool

// Online returns the fixed value.
func (s Static) Online() bool { return bool(s) }
