package cache

import (
	"errors"

	"github.com/mesh-intelligence/oilsync/pkg/types"
)

// Cache table names.
const (
	TableVendorBills       = "vendor_bills"
	TableVendorPayments    = "vendor_payments_screen"
	TableWakaaladMovements = "wakaalad_movements"
	TableOilSummary        = "oil_summary"
	TableWakaaladStats     = "wakaalad_stats"
	TableVendorBillsMeta   = "vendor_bills_meta"
)

// Set is every entity cache the application keeps.
type Set struct {
	VendorBills       *ListCache[types.SupplierDueItem]
	VendorPayments    *ListCache[types.VendorPaymentWithContext]
	WakaaladMovements *ListCache[types.WakaaladMovement]
	OilSummary        *RecordCache[types.OilSummary]
	WakaaladStats     *RecordCache[types.WakaaladStats]
	VendorBillsMeta   *RecordCache[types.VendorBillsMeta]
}

// NewSet creates the caches on store.
func NewSet(store types.Store, opts ...Option) *Set {
	return &Set{
		VendorBills:       NewList[types.SupplierDueItem](store, TableVendorBills, opts...),
		VendorPayments:    NewList[types.VendorPaymentWithContext](store, TableVendorPayments, opts...),
		WakaaladMovements: NewList[types.WakaaladMovement](store, TableWakaaladMovements, opts...),
		OilSummary:        NewRecord[types.OilSummary](store, TableOilSummary, opts...),
		WakaaladStats:     NewRecord[types.WakaaladStats](store, TableWakaaladStats, opts...),
		VendorBillsMeta:   NewRecord[types.VendorBillsMeta](store, TableVendorBillsMeta, opts...),
	}
}

// Clear empties every cache for the owner. Each cache is cleared even if
// an earlier one fails; the errors are joined.
func (s *Set) Clear(ownerID int64) error {
	return errors.Join(
		s.VendorBills.Clear(ownerID),
		s.VendorPayments.Clear(ownerID),
		s.WakaaladMovements.Clear(ownerID),
		s.OilSummary.Clear(ownerID),
		s.WakaaladStats.Clear(ownerID),
		s.VendorBillsMeta.Clear(ownerID),
	)
}

// MarkStale forces every cache for the owner to refresh on next read.
func (s *Set) MarkStale(ownerID int64) error {
	return errors.Join(
		s.VendorBills.MarkStale(ownerID),
		s.VendorPayments.MarkStale(ownerID),
		s.WakaaladMovements.MarkStale(ownerID),
		s.OilSummary.MarkStale(ownerID),
		s.WakaaladStats.MarkStale(ownerID),
		s.VendorBillsMeta.MarkStale(ownerID),
	)
}
