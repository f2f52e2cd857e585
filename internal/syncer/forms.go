package syncer

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/mesh-intelligence/oilsync/internal/logging"
	"github.com/mesh-intelligence/oilsync/internal/metrics"
	"github.com/mesh-intelligence/oilsync/internal/netstate"
	"github.com/mesh-intelligence/oilsync/internal/queue"
	"github.com/mesh-intelligence/oilsync/internal/remote"
	"github.com/mesh-intelligence/oilsync/pkg/types"
)

// FormSyncer drains the oil-create form queue.
type FormSyncer struct {
	forms   *queue.FormQueue
	api     FormAPI
	linker  *Linker
	conn    netstate.Connectivity
	running atomic.Bool
	opts    options
}

// NewFormSyncer creates a form queue drainer.
func NewFormSyncer(forms *queue.FormQueue, api FormAPI, linker *Linker, conn netstate.Connectivity, opts ...Option) *FormSyncer {
	return &FormSyncer{
		forms:  forms,
		api:    api,
		linker: linker,
		conn:   conn,
		opts:   buildOptions(logging.ComponentFormSync, opts),
	}
}

// SyncPending replays pending and failed forms oldest first. It does
// nothing without an owner and token or while offline, and a call made
// while another is running is dropped and reported as skipped.
//
// A failed row is marked failed and kept. A connectivity failure also
// ends the pass; the remaining rows wait for the next one.
func (s *FormSyncer) SyncPending(ctx context.Context, ownerID int64, token string) (DrainResult, error) {
	var res DrainResult
	if ownerID == 0 || token == "" || !s.conn.Online() {
		return res, nil
	}
	if !s.running.CompareAndSwap(false, true) {
		s.opts.logger.Warnw("form sync already running, dropping call", "owner_id", ownerID)
		metrics.IncSkipped(metrics.QueueForms)
		res.Skipped = true
		return res, nil
	}
	defer s.running.Store(false)
	start := time.Now()
	defer func() { metrics.ObservePass(metrics.QueueForms, time.Since(start)) }()

	if err := s.requeueOrphans(ownerID); err != nil {
		return res, err
	}

	pending, err := s.forms.ListPending(ownerID)
	if err != nil {
		return res, err
	}
	for _, f := range pending {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		ok, sendErr, err := s.syncOne(ctx, ownerID, token, f)
		if err != nil {
			return res, err
		}
		if ok {
			res.Synced++
			metrics.RecordQueueRow(metrics.QueueForms, metrics.ResultSynced)
			continue
		}
		res.Failed++
		metrics.RecordQueueRow(metrics.QueueForms, metrics.ResultFailed)
		if remote.IsConnectivity(sendErr) {
			s.opts.logger.Infow("lost connectivity, ending form sync", "owner_id", ownerID)
			break
		}
	}
	if res.Synced+res.Failed > 0 {
		s.opts.logger.Infow("form sync finished", "owner_id", ownerID, "synced", res.Synced, "failed", res.Failed)
	}
	return res, nil
}

// requeueOrphans returns rows stuck in syncing to pending.
func (s *FormSyncer) requeueOrphans(ownerID int64) error {
	orphans, err := s.forms.ListOrphaned(ownerID)
	if err != nil {
		return err
	}
	for _, f := range orphans {
		if err := s.forms.Requeue(ownerID, f.ID); err != nil {
			return err
		}
		s.opts.logger.Infow("requeued interrupted form", "owner_id", ownerID, "id", f.ID)
	}
	return nil
}

// syncOne pushes one form. ok reports success, sendErr is the API or
// decode failure recorded on the row, and err is a store error.
func (s *FormSyncer) syncOne(ctx context.Context, ownerID int64, token string, f types.QueuedForm) (ok bool, sendErr, err error) {
	if err := s.forms.MarkSyncing(ownerID, f.ID); err != nil {
		return false, nil, err
	}

	ids, sendErr := createOil(ctx, s.api, token, f.Mode, f.Payload, f.IdempotencyKey)
	if sendErr != nil {
		s.opts.logger.Warnw("form sync failed", "owner_id", ownerID, "id", f.ID, "error", sendErr)
		if err := s.forms.MarkFailed(ownerID, f.ID, errorMessage(sendErr)); err != nil {
			return false, sendErr, err
		}
		return false, sendErr, nil
	}

	if err := s.forms.MarkSynced(ownerID, f.ID, ids); err != nil {
		return false, nil, err
	}
	s.opts.logger.Debugw("form synced", "owner_id", ownerID, "id", f.ID, "lot_id", ids.LotID, "oil_ids", ids.OilIDs)

	if s.linker != nil {
		if _, err := s.linker.LinkDependents(ownerID, f.ID, ids); err != nil {
			s.opts.logger.Errorw("linking dependents failed", "owner_id", ownerID, "id", f.ID, "error", err)
		}
	}
	postExtraCosts(ctx, s.api, token, f.ExtraCosts(ids.LotID, singleOil(f.Mode, ids)), s.opts)
	return true, nil, nil
}

// createOil posts a create and decodes the response for mode.
func createOil(ctx context.Context, api FormAPI, token string, mode types.FormMode, payload []byte, key string) (types.RemoteIDs, error) {
	body, err := api.CreateOil(ctx, token, mode, payload, key)
	if err != nil {
		return types.RemoteIDs{}, err
	}
	res, err := types.DecodeCreateResult(mode, body)
	if err != nil {
		return types.RemoteIDs{}, err
	}
	return res.RemoteIDs(), nil
}

// singleOil is the oil an extra cost attaches to: the created oil for a
// single-mode form, none (the lot) otherwise.
func singleOil(mode types.FormMode, ids types.RemoteIDs) *int64 {
	if mode != types.FormModeSingle {
		return nil
	}
	id, ok := ids.SingleOilID()
	if !ok {
		return nil
	}
	return &id
}

// postExtraCosts sends each extra cost. Failures are logged and dropped.
func postExtraCosts(ctx context.Context, api FormAPI, token string, reqs []types.ExtraCostRequest, o options) {
	for _, req := range reqs {
		if err := api.CreateExtraCost(ctx, token, req); err != nil {
			o.logger.Warnw("extra cost not recorded", "lot_id", req.LotID, "category", req.Category,
				"amount", req.Amount, "error", err)
		}
	}
}
