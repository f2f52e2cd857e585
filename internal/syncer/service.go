package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mesh-intelligence/oilsync/internal/cache"
	"github.com/mesh-intelligence/oilsync/internal/logging"
	"github.com/mesh-intelligence/oilsync/internal/netstate"
	"github.com/mesh-intelligence/oilsync/internal/queue"
	"github.com/mesh-intelligence/oilsync/internal/remote"
	"github.com/mesh-intelligence/oilsync/pkg/types"
)

// Deps are the collaborators a Service is built from.
type Deps struct {
	Caches   *cache.Set
	Forms    *queue.FormQueue
	Payments *queue.PaymentQueue
	API      API
	Conn     netstate.Connectivity
}

// Service is the entry point for user actions: submitting forms and
// payments online or offline, reading cached screens, and logging out.
type Service struct {
	caches   *cache.Set
	forms    *queue.FormQueue
	payments *queue.PaymentQueue
	api      API
	conn     netstate.Connectivity

	linker      *Linker
	formSync    *FormSyncer
	paymentSync *PaymentSyncer
	coordinator *Coordinator

	bills          *ReadThrough[[]types.SupplierDueItem]
	vendorPayments *ReadThrough[[]types.VendorPaymentWithContext]
	oilSummary     *ReadThrough[types.OilSummary]
	wakaaladStats  *ReadThrough[types.WakaaladStats]
	movements      *ReadThrough[[]types.WakaaladMovement]

	raw  []Option
	opts options
}

// NewService wires the engines over deps.
func NewService(deps Deps, opts ...Option) *Service {
	s := &Service{
		caches:   deps.Caches,
		forms:    deps.Forms,
		payments: deps.Payments,
		api:      deps.API,
		conn:     deps.Conn,
		raw:      opts,
		opts:     buildOptions(logging.ComponentService, opts),
	}

	s.linker = NewLinker(s.caches.VendorBills, s.payments, opts...)
	s.formSync = NewFormSyncer(s.forms, s.api, s.linker, s.conn, opts...)
	s.paymentSync = NewPaymentSyncer(s.payments, s.forms, s.api, s.conn, opts...)

	s.bills = NewReadThrough[[]types.SupplierDueItem](cache.TableVendorBills, s.caches.VendorBills, s.fetchBills, s.conn, opts...).
		AfterSave(s.saveBillsMeta)
	s.vendorPayments = NewReadThrough[[]types.VendorPaymentWithContext](cache.TableVendorPayments, s.caches.VendorPayments, s.fetchVendorPayments, s.conn, opts...)
	s.oilSummary = NewReadThrough[types.OilSummary](cache.TableOilSummary, s.caches.OilSummary, s.api.OilSummary, s.conn, opts...)
	s.wakaaladStats = NewReadThrough[types.WakaaladStats](cache.TableWakaaladStats, s.caches.WakaaladStats, s.api.WakaaladStats, s.conn, opts...)
	s.movements = NewReadThrough[[]types.WakaaladMovement](cache.TableWakaaladMovements, s.caches.WakaaladMovements, s.api.WakaaladMovements, s.conn, opts...)

	s.coordinator = NewCoordinator(s.formSync, s.paymentSync, s.conn, s.bills,
		[]Refresher{s.vendorPayments, s.oilSummary, s.wakaaladStats, s.movements}, opts...)
	return s
}

// Coordinator returns the full-pass coordinator.
func (s *Service) Coordinator() *Coordinator { return s.coordinator }

// FormSyncer returns the form queue drainer.
func (s *Service) FormSyncer() *FormSyncer { return s.formSync }

// PaymentSyncer returns the payment queue drainer.
func (s *Service) PaymentSyncer() *PaymentSyncer { return s.paymentSync }

// SyncAll runs one full pass for id.
func (s *Service) SyncAll(ctx context.Context, id types.Identity) (Report, error) {
	return s.coordinator.SyncAll(ctx, id.OwnerID, id.Token)
}

// NewRunner creates a background runner over this service.
func (s *Service) NewRunner(identity func() types.Identity, interval time.Duration, reconnected <-chan struct{}) *Runner {
	return NewRunner(s.coordinator, identity, interval, reconnected, s.raw...)
}

// SubmitResult is the outcome of SubmitOilForm. Exactly one of Form and
// RemoteIDs is set.
type SubmitResult struct {
	Queued    bool              `json:"queued"`
	Form      *types.QueuedForm `json:"form,omitempty"`
	RemoteIDs *types.RemoteIDs  `json:"remote_ids,omitempty"`
}

// SubmitOilForm creates an oil. Online it posts directly, records the
// extra costs and refreshes the bills. Offline, or when the server cannot
// be reached, it queues the form and appends draft to the cached bills
// with local_oil_form_id set. A server rejection is returned.
func (s *Service) SubmitOilForm(ctx context.Context, id types.Identity, sub types.FormSubmission, draft types.SupplierDueItem) (SubmitResult, error) {
	if id.OwnerID == 0 {
		return SubmitResult{}, types.ErrOwnerRequired
	}
	if err := sub.Validate(); err != nil {
		return SubmitResult{}, err
	}

	if id.Token != "" && s.conn.Online() {
		key, err := newKey()
		if err != nil {
			return SubmitResult{}, err
		}
		ids, err := createOil(ctx, s.api, id.Token, sub.Mode, sub.Payload, key)
		switch {
		case err == nil:
			postExtraCosts(ctx, s.api, id.Token, extraCostsFor(sub, ids), s.opts)
			if _, err := s.bills.Get(ctx, ReadOptions{Token: id.Token, OwnerID: id.OwnerID, Force: true}); err != nil {
				s.opts.logger.Warnw("bills refresh after create failed", "owner_id", id.OwnerID, "error", err)
			}
			return SubmitResult{RemoteIDs: &ids}, nil
		case remote.IsConnectivity(err):
			s.opts.logger.Infow("server unreachable, queueing form", "owner_id", id.OwnerID, "error", err)
		default:
			return SubmitResult{}, err
		}
	}

	f, err := s.forms.Enqueue(id.OwnerID, sub)
	if err != nil {
		return SubmitResult{}, err
	}
	bill := localBill(draft, sub, f.ID)
	if err := s.caches.VendorBills.AppendOne(id.OwnerID, bill); err != nil {
		return SubmitResult{}, fmt.Errorf("append local bill: %w", err)
	}
	return SubmitResult{Queued: true, Form: &f}, nil
}

// localBill is the optimistic bill shown for a queued form.
func localBill(draft types.SupplierDueItem, sub types.FormSubmission, formID int64) types.SupplierDueItem {
	bill := draft
	bill.LotID = nil
	bill.OilID = nil
	local := formID
	bill.LocalOilFormID = &local
	bill.TotalExtraCost = sub.ExtraCostsTotal()
	bill.ExtraCosts = nil
	for _, ec := range []struct {
		category string
		amount   float64
	}{
		{types.ExtraCostTruckRent, sub.TruckRent},
		{types.ExtraCostDepotCost, sub.DepotCost},
		{types.ExtraCostTax, sub.Tax},
	} {
		if ec.amount == 0 {
			continue
		}
		bill.ExtraCosts = append(bill.ExtraCosts, types.ExtraCostSummary{
			Category:  ec.category,
			Amount:    ec.amount,
			AmountDue: ec.amount,
		})
	}
	bill.RecomputeTotals()
	return bill
}

// extraCostsFor builds the extra-cost requests for a direct create.
func extraCostsFor(sub types.FormSubmission, ids types.RemoteIDs) []types.ExtraCostRequest {
	f := types.QueuedForm{Mode: sub.Mode, TruckRent: sub.TruckRent, DepotCost: sub.DepotCost, Tax: sub.Tax, Currency: sub.Currency}
	return f.ExtraCosts(ids.LotID, singleOil(sub.Mode, ids))
}

// PaymentResult is the outcome of RecordVendorPayment. Exactly one of
// Queued and Payment is set.
type PaymentResult struct {
	Queued  *types.QueuedVendorPayment `json:"queued,omitempty"`
	Payment *types.VendorPaymentRead   `json:"payment,omitempty"`
}

// RecordVendorPayment records a payment against a bill. Online it posts
// directly and refreshes payments and bills. Offline, when the server
// cannot be reached, or when the bill's form has not synced yet, it queues
// the payment, appends it to the payments screen and applies it to the
// cached bill. A server rejection is returned.
func (s *Service) RecordVendorPayment(ctx context.Context, id types.Identity, in types.VendorPaymentInput) (PaymentResult, error) {
	if id.OwnerID == 0 {
		return PaymentResult{}, types.ErrOwnerRequired
	}
	if err := in.Validate(); err != nil {
		return PaymentResult{}, err
	}

	in, err := s.resolveInput(id.OwnerID, in)
	if err != nil {
		return PaymentResult{}, err
	}
	unresolved := in.OilID == nil && in.LotID == nil && in.LocalOilFormID != nil

	if id.Token != "" && s.conn.Online() && !unresolved {
		key, err := newKey()
		if err != nil {
			return PaymentResult{}, err
		}
		read, err := s.api.CreateVendorPayment(ctx, id.Token, in.Request(), key)
		switch {
		case err == nil:
			ro := ReadOptions{Token: id.Token, OwnerID: id.OwnerID, Force: true}
			if _, err := s.bills.Get(ctx, ro); err != nil {
				s.opts.logger.Warnw("bills refresh after payment failed", "owner_id", id.OwnerID, "error", err)
			}
			if _, err := s.vendorPayments.Get(ctx, ro); err != nil {
				s.opts.logger.Warnw("payments refresh after payment failed", "owner_id", id.OwnerID, "error", err)
			}
			return PaymentResult{Payment: &read}, nil
		case remote.IsConnectivity(err):
			s.opts.logger.Infow("server unreachable, queueing payment", "owner_id", id.OwnerID, "error", err)
		default:
			return PaymentResult{}, err
		}
	}

	q, err := s.payments.Enqueue(id.OwnerID, in)
	if err != nil {
		return PaymentResult{}, err
	}
	if err := s.applyLocalPayment(id.OwnerID, q); err != nil {
		return PaymentResult{}, err
	}
	return PaymentResult{Queued: &q}, nil
}

// resolveInput fills the ids of a payment made against a local form that
// has already synced.
func (s *Service) resolveInput(ownerID int64, in types.VendorPaymentInput) (types.VendorPaymentInput, error) {
	if in.OilID != nil || in.LotID != nil || in.LocalOilFormID == nil {
		return in, nil
	}
	f, err := s.forms.Get(ownerID, *in.LocalOilFormID)
	if err != nil {
		return in, fmt.Errorf("payment form: %w", err)
	}
	if f.Status != types.StatusSynced || f.RemoteIDs == nil {
		return in, nil
	}
	lot := f.RemoteIDs.LotID
	in.LotID = &lot
	if oil, ok := f.RemoteIDs.SingleOilID(); ok {
		in.OilID = &oil
	}
	return in, nil
}

// applyLocalPayment shows a queued payment on the payments screen and
// takes it off the matching cached bill.
func (s *Service) applyLocalPayment(ownerID int64, q types.QueuedVendorPayment) error {
	var matched *types.SupplierDueItem
	err := s.caches.VendorBills.Update(ownerID, func(bills []types.SupplierDueItem) ([]types.SupplierDueItem, error) {
		i := findBill(bills, q.OilID, q.LotID, q.LocalOilFormID)
		if i < 0 {
			return nil, errNoChange
		}
		bills[i].ApplyPayment(q.Amount)
		if q.ExtraCostID != nil {
			for j := range bills[i].ExtraCosts {
				ec := &bills[i].ExtraCosts[j]
				if ec.ID != nil && *ec.ID == *q.ExtraCostID {
					ec.TotalPaid = types.SumMoney(ec.TotalPaid, q.Amount)
					ec.AmountDue = types.SubMoney(ec.Amount, ec.TotalPaid)
				}
			}
		}
		bill := bills[i]
		matched = &bill
		return bills, nil
	})
	if err != nil && !errors.Is(err, errNoChange) {
		return fmt.Errorf("apply payment to bill: %w", err)
	}

	row := types.VendorPaymentWithContext{
		Payment:      localPaymentRead(q),
		SupplierDue:  matched,
		LocalQueueID: &q.ID,
	}
	if matched != nil && q.ExtraCostID != nil {
		for _, ec := range matched.ExtraCosts {
			if ec.ID != nil && *ec.ID == *q.ExtraCostID {
				row.ExtraCost = &ec
			}
		}
	}
	if err := s.caches.VendorPayments.AppendOne(ownerID, row); err != nil {
		return fmt.Errorf("append local payment: %w", err)
	}
	return nil
}

// findBill returns the index of the bill a payment targets, matched by
// oil id, then lot id, then local form id; -1 when none matches.
func findBill(bills []types.SupplierDueItem, oilID, lotID, localFormID *int64) int {
	match := func(a, b *int64) bool { return a != nil && b != nil && *a == *b }
	if oilID != nil {
		for i := range bills {
			if match(bills[i].OilID, oilID) {
				return i
			}
			for _, c := range bills[i].ChildOils {
				if match(c.OilID, oilID) {
					return i
				}
			}
		}
	}
	if lotID != nil {
		for i := range bills {
			if match(bills[i].LotID, lotID) {
				return i
			}
		}
	}
	if localFormID != nil {
		for i := range bills {
			if match(bills[i].LocalOilFormID, localFormID) {
				return i
			}
		}
	}
	return -1
}

func localPaymentRead(q types.QueuedVendorPayment) types.VendorPaymentRead {
	due := q.AmountDue
	return types.VendorPaymentRead{
		Amount:          q.Amount,
		AmountDue:       &due,
		Note:            q.Note,
		PaymentDate:     q.PaymentDate,
		SupplierName:    q.SupplierName,
		OilID:           q.OilID,
		LotID:           q.LotID,
		ExtraCostID:     q.ExtraCostID,
		PaymentMethod:   q.PaymentMethod,
		TransactionType: q.TransactionType,
		TruckPlate:      q.TruckPlate,
		TruckType:       q.TruckType,
		CreatedAt:       q.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// fetchBills loads the server bills and keeps the local bills whose forms
// have not synced, so a refresh never hides a queued submission.
func (s *Service) fetchBills(ctx context.Context, token string, ownerID int64) ([]types.SupplierDueItem, error) {
	server, err := s.api.SupplierDues(ctx, token, ownerID)
	if err != nil {
		return nil, err
	}
	cached, err := s.caches.VendorBills.GetAll(ownerID)
	if err != nil {
		return nil, err
	}
	out := make([]types.SupplierDueItem, 0, len(server))
	out = append(out, server...)
	for _, b := range cached {
		if !b.IsPendingLocal() {
			continue
		}
		keep, err := s.awaitingSync(ownerID, *b.LocalOilFormID)
		if err != nil {
			return nil, err
		}
		if keep {
			out = append(out, b)
		}
	}
	return out, nil
}

// awaitingSync reports whether the local form is still queued. A synced or
// purged form is already part of the server bills.
func (s *Service) awaitingSync(ownerID, formID int64) (bool, error) {
	f, err := s.forms.Get(ownerID, formID)
	switch {
	case errors.Is(err, types.ErrNotFound):
		return false, nil
	case err != nil:
		return false, err
	}
	return f.Status != types.StatusSynced, nil
}

func (s *Service) saveBillsMeta(ownerID int64, bills []types.SupplierDueItem) error {
	return s.caches.VendorBillsMeta.Save(ownerID, types.SummarizeBills(bills, s.opts.now().UnixMilli()))
}

// fetchVendorPayments loads the server payments, attaches bill context
// from the bills cache, and keeps the payments still waiting in the queue.
func (s *Service) fetchVendorPayments(ctx context.Context, token string, ownerID int64) ([]types.VendorPaymentWithContext, error) {
	server, err := s.api.VendorPayments(ctx, token, ownerID)
	if err != nil {
		return nil, err
	}
	bills, err := s.caches.VendorBills.GetAll(ownerID)
	if err != nil {
		return nil, err
	}
	out := types.AttachPaymentContext(server, bills)

	dirty, err := s.payments.ListDirty(ownerID)
	if err != nil {
		return nil, err
	}
	for _, q := range dirty {
		local := q.ID
		row := types.VendorPaymentWithContext{Payment: localPaymentRead(q), LocalQueueID: &local}
		if i := findBill(bills, q.OilID, q.LotID, q.LocalOilFormID); i >= 0 {
			bill := bills[i]
			row.SupplierDue = &bill
		}
		out = append(out, row)
	}
	return out, nil
}

// VendorBills returns the cached vendor bills, refreshed when stale.
func (s *Service) VendorBills(ctx context.Context, ro ReadOptions) ([]types.SupplierDueItem, error) {
	return s.bills.Get(ctx, ro)
}

// VendorPayments returns the payments screen, refreshed when stale.
func (s *Service) VendorPayments(ctx context.Context, ro ReadOptions) ([]types.VendorPaymentWithContext, error) {
	return s.vendorPayments.Get(ctx, ro)
}

// OilSummary returns the oil KPI snapshot, refreshed when stale.
func (s *Service) OilSummary(ctx context.Context, ro ReadOptions) (types.OilSummary, error) {
	return s.oilSummary.Get(ctx, ro)
}

// WakaaladStats returns the sub-distributor KPI snapshot.
func (s *Service) WakaaladStats(ctx context.Context, ro ReadOptions) (types.WakaaladStats, error) {
	return s.wakaaladStats.Get(ctx, ro)
}

// WakaaladMovements returns the sub-distributor movements.
func (s *Service) WakaaladMovements(ctx context.Context, ro ReadOptions) ([]types.WakaaladMovement, error) {
	return s.movements.Get(ctx, ro)
}

// VendorBillsMeta returns the summary saved with the last bills refresh.
func (s *Service) VendorBillsMeta(ownerID int64) (types.VendorBillsMeta, bool, error) {
	return s.caches.VendorBillsMeta.Get(ownerID)
}

// Status is a snapshot of what is waiting to sync.
type Status struct {
	Online          bool                      `json:"online"`
	Forms           map[types.QueueStatus]int `json:"forms"`
	DirtyPayments   int                       `json:"dirty_payments"`
	BillsLastSyncAt *time.Time                `json:"bills_last_sync_at,omitempty"`
}

// Status reports the queue depths for the owner.
func (s *Service) Status(ownerID int64) (Status, error) {
	if ownerID == 0 {
		return Status{}, types.ErrOwnerRequired
	}
	st := Status{Online: s.conn.Online()}
	var err error
	if st.Forms, err = s.forms.Counts(ownerID); err != nil {
		return st, err
	}
	if st.DirtyPayments, err = s.payments.DirtyCount(ownerID); err != nil {
		return st, err
	}
	last, ok, err := s.caches.VendorBills.LastSync(ownerID)
	if err != nil {
		return st, err
	}
	if ok {
		st.BillsLastSyncAt = &last
	}
	return st, nil
}

// PurgeSynced removes synced forms older than olderThan.
func (s *Service) PurgeSynced(ownerID int64, olderThan time.Duration) (int64, error) {
	if ownerID == 0 {
		return 0, types.ErrOwnerRequired
	}
	return s.forms.PurgeSynced(ownerID, s.opts.now().Add(-olderThan))
}

// Logout clears every cache for the owner. Queued writes are kept.
func (s *Service) Logout(ownerID int64) error {
	if ownerID == 0 {
		return types.ErrOwnerRequired
	}
	if err := s.caches.Clear(ownerID); err != nil {
		return err
	}
	s.opts.logger.Infow("caches cleared", "owner_id", ownerID)
	return nil
}

func newKey() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate idempotency key: %w", err)
	}
	return id.String(), nil
}
