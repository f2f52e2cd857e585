package syncer

import (
	"errors"
	"strings"

	"github.com/mesh-intelligence/oilsync/internal/cache"
	"github.com/mesh-intelligence/oilsync/internal/logging"
	"github.com/mesh-intelligence/oilsync/internal/queue"
	"github.com/mesh-intelligence/oilsync/pkg/types"
)

// errNoChange aborts a cache update that would rewrite nothing.
var errNoChange = errors.New("no change")

// Linker rewrites local form references to server ids after a form syncs.
type Linker struct {
	bills    *cache.ListCache[types.SupplierDueItem]
	payments *queue.PaymentQueue
	opts     options
}

// LinkResult counts what LinkDependents patched.
type LinkResult struct {
	Bills    int
	Payments int64
}

// NewLinker creates a linker over the bills cache and payment queue.
func NewLinker(bills *cache.ListCache[types.SupplierDueItem], payments *queue.PaymentQueue, opts ...Option) *Linker {
	return &Linker{bills: bills, payments: payments, opts: buildOptions(logging.ComponentLinker, opts)}
}

// LinkDependents patches cached bills made from localFormID, then queued
// payments that still point only at it. Bills keep local_oil_form_id.
func (l *Linker) LinkDependents(ownerID, localFormID int64, ids types.RemoteIDs) (LinkResult, error) {
	var res LinkResult
	err := l.bills.Update(ownerID, func(bills []types.SupplierDueItem) ([]types.SupplierDueItem, error) {
		for i := range bills {
			if bills[i].LocalOilFormID == nil || *bills[i].LocalOilFormID != localFormID {
				continue
			}
			linkBill(&bills[i], ids)
			res.Bills++
		}
		if res.Bills == 0 {
			return nil, errNoChange
		}
		return bills, nil
	})
	if err != nil && !errors.Is(err, errNoChange) {
		return res, err
	}

	n, err := l.payments.ResolveLocalForm(ownerID, localFormID, ids)
	if err != nil {
		return res, err
	}
	res.Payments = n

	l.opts.logger.Debugw("linked dependents", "owner_id", ownerID, "local_form_id", localFormID,
		"bills", res.Bills, "payments", res.Payments)
	return res, nil
}

func linkBill(bill *types.SupplierDueItem, ids types.RemoteIDs) {
	lot := ids.LotID
	bill.LotID = &lot

	if len(bill.ChildOils) == 0 {
		if id, ok := ids.SingleOilID(); ok {
			bill.OilID = &id
		}
		return
	}
	linkChildren(bill.ChildOils, ids)
}

// linkChildren assigns oil ids to the children of a multi-product bill.
// Children are matched by oil type when every child and every id carries
// one, and by position when the counts agree otherwise.
func linkChildren(children []types.ChildOil, ids types.RemoteIDs) {
	if typed(children, ids) {
		used := make([]bool, len(ids.OilIDs))
		for i := range children {
			want := normalizeType(children[i].OilType)
			for j, t := range ids.OilTypes {
				if used[j] || t != want {
					continue
				}
				id := ids.OilIDs[j]
				children[i].OilID = &id
				used[j] = true
				break
			}
		}
		return
	}
	if len(children) != len(ids.OilIDs) {
		return
	}
	for i := range children {
		id := ids.OilIDs[i]
		children[i].OilID = &id
	}
}

func typed(children []types.ChildOil, ids types.RemoteIDs) bool {
	if len(ids.OilTypes) != len(ids.OilIDs) || len(ids.OilIDs) == 0 {
		return false
	}
	for _, t := range ids.OilTypes {
		if t == "" {
			return false
		}
	}
	for _, c := range children {
		if normalizeType(c.OilType) == "" {
			return false
		}
	}
	return true
}

func normalizeType(t string) string {
	return strings.ToLower(strings.TrimSpace(t))
}
