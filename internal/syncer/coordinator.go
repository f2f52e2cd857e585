package syncer

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mesh-intelligence/oilsync/internal/logging"
	"github.com/mesh-intelligence/oilsync/internal/metrics"
	"github.com/mesh-intelligence/oilsync/internal/netstate"
)

const engineAll = "all"

// Report summarizes one full sync pass.
type Report struct {
	Forms     DrainResult   `json:"forms"`
	Payments  DrainResult   `json:"payments"`
	Refreshed []string      `json:"refreshed"`
	Skipped   bool          `json:"skipped,omitempty"`
	Offline   bool          `json:"offline,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// Failed is the number of queue rows that failed in the pass.
func (r Report) Failed() int {
	return r.Forms.Failed + r.Payments.Failed
}

// Coordinator runs a full pass: forms, then payments, then a forced
// refresh of every cache.
type Coordinator struct {
	forms    *FormSyncer
	payments *PaymentSyncer
	bills    Refresher
	others   []Refresher
	conn     netstate.Connectivity
	running  atomic.Bool
	opts     options
}

// NewCoordinator creates a coordinator. bills is refreshed before the
// others, which run in parallel and may read the bills cache.
func NewCoordinator(forms *FormSyncer, payments *PaymentSyncer, conn netstate.Connectivity, bills Refresher, others []Refresher, opts ...Option) *Coordinator {
	return &Coordinator{
		forms:    forms,
		payments: payments,
		bills:    bills,
		others:   others,
		conn:     conn,
		opts:     buildOptions(logging.ComponentCoordinator, opts),
	}
}

// SyncAll runs one pass for the owner. Forms drain fully before payments
// so deferred payments can pick up the ids their forms just received.
// Only store errors are returned.
func (c *Coordinator) SyncAll(ctx context.Context, ownerID int64, token string) (Report, error) {
	var rep Report
	if ownerID == 0 || token == "" {
		rep.Skipped = true
		return rep, nil
	}
	if !c.conn.Online() {
		rep.Offline = true
		return rep, nil
	}
	if !c.running.CompareAndSwap(false, true) {
		c.opts.logger.Warnw("sync already running, dropping call", "owner_id", ownerID)
		metrics.IncSkipped(engineAll)
		rep.Skipped = true
		return rep, nil
	}
	defer c.running.Store(false)
	start := time.Now()

	var err error
	if rep.Forms, err = c.forms.SyncPending(ctx, ownerID, token); err != nil {
		return rep, err
	}
	if rep.Payments, err = c.payments.SyncPending(ctx, ownerID, token); err != nil {
		return rep, err
	}

	if c.bills != nil {
		if err := c.bills.Refresh(ctx, token, ownerID); err != nil {
			return rep, err
		}
		rep.Refreshed = append(rep.Refreshed, c.bills.Name())
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, r := range c.others {
		g.Go(func() error {
			return r.Refresh(gctx, token, ownerID)
		})
	}
	if err := g.Wait(); err != nil {
		return rep, err
	}
	for _, r := range c.others {
		rep.Refreshed = append(rep.Refreshed, r.Name())
	}

	rep.Duration = time.Since(start)
	metrics.ObservePass(engineAll, rep.Duration)
	c.opts.logger.Infow("sync pass finished", "owner_id", ownerID,
		"forms_synced", rep.Forms.Synced, "forms_failed", rep.Forms.Failed,
		"payments_synced", rep.Payments.Synced, "payments_failed", rep.Payments.Failed,
		"payments_deferred", rep.Payments.Deferred, "duration", rep.Duration)
	return rep, nil
}
