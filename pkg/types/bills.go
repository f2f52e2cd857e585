package types

// SupplierDueItem is one vendor bill as served by the supplier-dues
// endpoint, or as appended locally for a form that has not synced yet.
// Producers keep OverAllCost equal to OilTotalLandedCost + TotalExtraCost.
// AmountDue settles to OverAllCost - TotalPaid once a payment or sync
// recomputes it.
type SupplierDueItem struct {
	SupplierName       string             `json:"supplier_name"`
	LotID              *int64             `json:"lot_id,omitempty"`
	OilID              *int64             `json:"oil_id,omitempty"`
	OilType            string             `json:"oil_type,omitempty"`
	Liters             *float64           `json:"liters,omitempty"`
	TruckPlate         string             `json:"truck_plate,omitempty"`
	TruckType          string             `json:"truck_type,omitempty"`
	OilTotalLandedCost float64            `json:"oil_total_landed_cost"`
	TotalExtraCost     float64            `json:"total_extra_cost"`
	OverAllCost        float64            `json:"over_all_cost"`
	TotalPaid          float64            `json:"total_paid"`
	AmountDue          float64            `json:"amount_due"`
	ChildOils          []ChildOil         `json:"child_oils,omitempty"`
	ExtraCosts         []ExtraCostSummary `json:"extra_costs,omitempty"`
	Date               string             `json:"date"`
	LocalOilFormID     *int64             `json:"local_oil_form_id,omitempty"`
}

// ChildOil is one product of a multi-product lot bill.
type ChildOil struct {
	OilID      *int64   `json:"oil_id,omitempty"`
	OilType    string   `json:"oil_type"`
	Liters     *float64 `json:"liters,omitempty"`
	LandedCost float64  `json:"landed_cost"`
}

// ExtraCostSummary is one extra cost attached to a bill.
type ExtraCostSummary struct {
	ID        *int64  `json:"id,omitempty"`
	Category  string  `json:"category"`
	Amount    float64 `json:"amount"`
	TotalPaid float64 `json:"total_paid"`
	AmountDue float64 `json:"amount_due"`
}

// RecomputeTotals sets OverAllCost and AmountDue from the landed cost,
// the extra cost, and what has been paid.
func (b *SupplierDueItem) RecomputeTotals() {
	b.OverAllCost = SumMoney(b.OilTotalLandedCost, b.TotalExtraCost)
	b.AmountDue = SubMoney(b.OverAllCost, b.TotalPaid)
}

// ApplyPayment records a payment against the bill.
func (b *SupplierDueItem) ApplyPayment(amount float64) {
	b.TotalPaid = SumMoney(b.TotalPaid, amount)
	b.RecomputeTotals()
}

// IsPendingLocal reports whether the bill was created offline and still
// waits for server ids.
func (b SupplierDueItem) IsPendingLocal() bool {
	return b.LocalOilFormID != nil && b.LotID == nil && b.OilID == nil
}

// VendorBillsMeta summarizes the last vendor-bills refresh.
type VendorBillsMeta struct {
	Count        int     `json:"count"`
	TotalDue     float64 `json:"total_due"`
	PendingLocal int     `json:"pending_local"`
	RefreshedAt  int64   `json:"refreshed_at"`
}

// SummarizeBills builds the meta snapshot for a bills list.
func SummarizeBills(bills []SupplierDueItem, refreshedAt int64) VendorBillsMeta {
	meta := VendorBillsMeta{Count: len(bills), RefreshedAt: refreshedAt}
	dues := make([]float64, 0, len(bills))
	for _, b := range bills {
		dues = append(dues, b.AmountDue)
		if b.IsPendingLocal() {
			meta.PendingLocal++
		}
	}
	meta.TotalDue = SumMoney(dues...)
	return meta
}
