package types

import "time"

// VendorPaymentInput is what a caller supplies to record a vendor payment.
// AmountDue is the bill balance after this payment, as shown to the user.
type VendorPaymentInput struct {
	Amount          float64 `json:"amount"`
	AmountDue       float64 `json:"amount_due"`
	Note            string  `json:"note,omitempty"`
	PaymentDate     string  `json:"payment_date"`
	TruckPlate      string  `json:"truck_plate,omitempty"`
	TruckType       string  `json:"truck_type,omitempty"`
	ExtraCostID     *int64  `json:"extra_cost_id,omitempty"`
	OilID           *int64  `json:"oil_id,omitempty"`
	LotID           *int64  `json:"lot_id,omitempty"`
	LocalOilFormID  *int64  `json:"local_oil_form_id,omitempty"`
	TransactionType string  `json:"transaction_type,omitempty"`
	PaymentMethod   string  `json:"payment_method"`
	SupplierName    string  `json:"supplier_name,omitempty"`
}

// Validate checks the amount.
func (in VendorPaymentInput) Validate() error {
	if in.Amount <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Request builds the create body from the input.
func (in VendorPaymentInput) Request() VendorPaymentRequest {
	return VendorPaymentRequest{
		Amount:          in.Amount,
		Note:            in.Note,
		PaymentDate:     in.PaymentDate,
		TruckPlate:      in.TruckPlate,
		TruckType:       in.TruckType,
		ExtraCostID:     in.ExtraCostID,
		OilID:           in.OilID,
		LotID:           in.LotID,
		TransactionType: in.TransactionType,
		PaymentMethod:   in.PaymentMethod,
		SupplierName:    in.SupplierName,
	}
}

// QueuedVendorPayment is a vendor payment recorded offline.
// Dirty is cleared only after the server accepted the payment.
type QueuedVendorPayment struct {
	ID              int64      `json:"id"`
	OwnerID         int64      `json:"owner_id"`
	Amount          float64    `json:"amount"`
	AmountDue       float64    `json:"amount_due"`
	Note            string     `json:"note,omitempty"`
	PaymentDate     string     `json:"payment_date"`
	TruckPlate      string     `json:"truck_plate,omitempty"`
	TruckType       string     `json:"truck_type,omitempty"`
	ExtraCostID     *int64     `json:"extra_cost_id,omitempty"`
	OilID           *int64     `json:"oil_id,omitempty"`
	LotID           *int64     `json:"lot_id,omitempty"`
	LocalOilFormID  *int64     `json:"local_oil_form_id,omitempty"`
	TransactionType string     `json:"transaction_type,omitempty"`
	PaymentMethod   string     `json:"payment_method"`
	SupplierName    string     `json:"supplier_name,omitempty"`
	Dirty           bool       `json:"dirty"`
	Deleted         bool       `json:"deleted"`
	Error           string     `json:"error,omitempty"`
	RemoteID        *int64     `json:"remote_id,omitempty"`
	IdempotencyKey  string     `json:"idempotency_key"`
	CreatedAt       time.Time  `json:"created_at"`
	LastAttemptAt   *time.Time `json:"last_attempt_at,omitempty"`
}

// IsUnresolved reports whether the payment still points only at a local
// form and so cannot be pushed yet.
func (p QueuedVendorPayment) IsUnresolved() bool {
	return p.OilID == nil && p.LotID == nil && p.LocalOilFormID != nil
}

// Request builds the create body from the queued row.
func (p QueuedVendorPayment) Request() VendorPaymentRequest {
	return VendorPaymentRequest{
		Amount:          p.Amount,
		Note:            p.Note,
		PaymentDate:     p.PaymentDate,
		TruckPlate:      p.TruckPlate,
		TruckType:       p.TruckType,
		ExtraCostID:     p.ExtraCostID,
		OilID:           p.OilID,
		LotID:           p.LotID,
		TransactionType: p.TransactionType,
		PaymentMethod:   p.PaymentMethod,
		SupplierName:    p.SupplierName,
	}
}

// VendorPaymentRequest is the body of POST /vendor-payments.
type VendorPaymentRequest struct {
	Amount          float64 `json:"amount"`
	Note            string  `json:"note,omitempty"`
	PaymentDate     string  `json:"payment_date"`
	TruckPlate      string  `json:"truck_plate,omitempty"`
	TruckType       string  `json:"truck_type,omitempty"`
	ExtraCostID     *int64  `json:"extra_cost_id,omitempty"`
	OilID           *int64  `json:"oil_id,omitempty"`
	LotID           *int64  `json:"lot_id,omitempty"`
	TransactionType string  `json:"transaction_type,omitempty"`
	PaymentMethod   string  `json:"payment_method"`
	SupplierName    string  `json:"supplier_name,omitempty"`
}

// VendorPaymentRead is a vendor payment as returned by the server.
type VendorPaymentRead struct {
	ID              int64    `json:"id"`
	Amount          float64  `json:"amount"`
	AmountDue       *float64 `json:"amount_due,omitempty"`
	Note            string   `json:"note,omitempty"`
	PaymentDate     string   `json:"payment_date"`
	SupplierName    string   `json:"supplier_name,omitempty"`
	OilID           *int64   `json:"oil_id,omitempty"`
	LotID           *int64   `json:"lot_id,omitempty"`
	ExtraCostID     *int64   `json:"extra_cost_id,omitempty"`
	PaymentMethod   string   `json:"payment_method"`
	TransactionType string   `json:"transaction_type,omitempty"`
	TruckPlate      string   `json:"truck_plate,omitempty"`
	TruckType       string   `json:"truck_type,omitempty"`
	CreatedAt       string   `json:"created_at,omitempty"`
}

// VendorPaymentWithContext is one row of the vendor payments screen.
// LocalQueueID is set on rows appended optimistically while offline.
type VendorPaymentWithContext struct {
	Payment      VendorPaymentRead `json:"payment"`
	SupplierDue  *SupplierDueItem  `json:"supplier_due,omitempty"`
	ExtraCost    *ExtraCostSummary `json:"extra_cost,omitempty"`
	LocalQueueID *int64            `json:"local_queue_id,omitempty"`
}

// AttachPaymentContext pairs each payment with the bill and extra cost it
// was made against, looked up in bills by oil id, then lot id.
func AttachPaymentContext(payments []VendorPaymentRead, bills []SupplierDueItem) []VendorPaymentWithContext {
	byOil := make(map[int64]int)
	byLot := make(map[int64]int)
	byExtra := make(map[int64]ExtraCostSummary)
	for i, b := range bills {
		if b.OilID != nil {
			byOil[*b.OilID] = i
		}
		if b.LotID != nil {
			if _, seen := byLot[*b.LotID]; !seen {
				byLot[*b.LotID] = i
			}
		}
		for _, ec := range b.ExtraCosts {
			if ec.ID != nil {
				byExtra[*ec.ID] = ec
			}
		}
	}

	out := make([]VendorPaymentWithContext, 0, len(payments))
	for _, p := range payments {
		row := VendorPaymentWithContext{Payment: p}
		idx, ok := -1, false
		if p.OilID != nil {
			idx, ok = byOil[*p.OilID]
		}
		if !ok && p.LotID != nil {
			idx, ok = byLot[*p.LotID]
		}
		if ok {
			bill := bills[idx]
			row.SupplierDue = &bill
		}
		if p.ExtraCostID != nil {
			if ec, found := byExtra[*p.ExtraCostID]; found {
				row.ExtraCost = &ec
			}
		}
		out = append(out, row)
	}
	return out
}
