package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/mesh-intelligence/oilsync/internal/logging"
	"github.com/mesh-intelligence/oilsync/internal/metrics"
	"github.com/mesh-intelligence/oilsync/internal/netstate"
	"github.com/mesh-intelligence/oilsync/internal/queue"
	"github.com/mesh-intelligence/oilsync/internal/remote"
	"github.com/mesh-intelligence/oilsync/pkg/types"
)

// PaymentSyncer drains the offline vendor-payment queue.
type PaymentSyncer struct {
	payments *queue.PaymentQueue
	forms    *queue.FormQueue
	api      PaymentAPI
	conn     netstate.Connectivity
	running  atomic.Bool
	opts     options
}

// NewPaymentSyncer creates a payment queue drainer.
func NewPaymentSyncer(payments *queue.PaymentQueue, forms *queue.FormQueue, api PaymentAPI, conn netstate.Connectivity, opts ...Option) *PaymentSyncer {
	return &PaymentSyncer{
		payments: payments,
		forms:    forms,
		api:      api,
		conn:     conn,
		opts:     buildOptions(logging.ComponentPaymentSync, opts),
	}
}

// SyncPending pushes dirty payments oldest first, with the same
// preconditions and re-entrance guard as FormSyncer.SyncPending.
//
// A payment that points only at a local form is deferred until that form
// has synced; it stays dirty and is retried on a later pass.
func (s *PaymentSyncer) SyncPending(ctx context.Context, ownerID int64, token string) (DrainResult, error) {
	var res DrainResult
	if ownerID == 0 || token == "" || !s.conn.Online() {
		return res, nil
	}
	if !s.running.CompareAndSwap(false, true) {
		s.opts.logger.Warnw("payment sync already running, dropping call", "owner_id", ownerID)
		metrics.IncSkipped(metrics.QueuePayments)
		res.Skipped = true
		return res, nil
	}
	defer s.running.Store(false)
	start := time.Now()
	defer func() { metrics.ObservePass(metrics.QueuePayments, time.Since(start)) }()

	dirty, err := s.payments.ListDirty(ownerID)
	if err != nil {
		return res, err
	}
	for _, p := range dirty {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if p.IsUnresolved() {
			resolved, ready, err := s.resolve(ownerID, p)
			if err != nil {
				return res, err
			}
			if !ready {
				res.Deferred++
				metrics.RecordQueueRow(metrics.QueuePayments, metrics.ResultDeferred)
				continue
			}
			p = resolved
		}

		if err := s.payments.Touch(ownerID, p.ID); err != nil {
			return res, err
		}
		read, sendErr := s.api.CreateVendorPayment(ctx, token, p.Request(), p.IdempotencyKey)
		if sendErr != nil {
			s.opts.logger.Warnw("payment sync failed", "owner_id", ownerID, "id", p.ID, "error", sendErr)
			if err := s.payments.MarkFailed(ownerID, p.ID, errorMessage(sendErr)); err != nil {
				return res, err
			}
			res.Failed++
			metrics.RecordQueueRow(metrics.QueuePayments, metrics.ResultFailed)
			if remote.IsConnectivity(sendErr) {
				break
			}
			continue
		}
		if err := s.payments.MarkPushed(ownerID, p.ID, read.ID); err != nil {
			return res, err
		}
		res.Synced++
		metrics.RecordQueueRow(metrics.QueuePayments, metrics.ResultSynced)
		s.opts.logger.Debugw("payment synced", "owner_id", ownerID, "id", p.ID, "remote_id", read.ID)
	}
	if res.Synced+res.Failed+res.Deferred > 0 {
		s.opts.logger.Infow("payment sync finished", "owner_id", ownerID,
			"synced", res.Synced, "failed", res.Failed, "deferred", res.Deferred)
	}
	return res, nil
}

// resolve fills the ids of an unresolved payment from its synced form.
// ready is false while the form has not synced.
func (s *PaymentSyncer) resolve(ownerID int64, p types.QueuedVendorPayment) (types.QueuedVendorPayment, bool, error) {
	form, err := s.forms.Get(ownerID, *p.LocalOilFormID)
	if errors.Is(err, types.ErrNotFound) {
		s.opts.logger.Warnw("payment references a missing form", "owner_id", ownerID, "id", p.ID,
			"local_form_id", *p.LocalOilFormID)
		return p, false, nil
	}
	if err != nil {
		return p, false, err
	}
	if form.Status != types.StatusSynced || form.RemoteIDs == nil {
		return p, false, nil
	}
	if _, err := s.payments.ResolveLocalForm(ownerID, form.ID, *form.RemoteIDs); err != nil {
		return p, false, err
	}
	resolved, err := s.payments.Get(ownerID, p.ID)
	if err != nil {
		return p, false, fmt.Errorf("reload payment %d: %w", p.ID, err)
	}
	return resolved, !resolved.IsUnresolved(), nil
}
