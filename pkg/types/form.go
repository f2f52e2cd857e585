package types

import (
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// FormMode selects which create endpoint a queued oil form replays against.
type FormMode string

// Form modes.
const (
	// FormModeSingle creates one oil; the server answers with its id.
	FormModeSingle FormMode = "single"
	// FormModeBoth creates a multi-product lot; the server answers with
	// the lot id and one item per product.
	FormModeBoth FormMode = "both"
)

// Valid reports whether m is a known mode.
func (m FormMode) Valid() bool {
	return m == FormModeSingle || m == FormModeBoth
}

// QueueStatus is the sync state of a queued form.
type QueueStatus string

// Queue statuses. A row moves pending -> syncing -> synced|failed, and a
// failed row may start again.
const (
	StatusPending QueueStatus = "pending"
	StatusSyncing QueueStatus = "syncing"
	StatusFailed  QueueStatus = "failed"
	StatusSynced  QueueStatus = "synced"
)

// Oil types the server reports on lot items.
const (
	OilTypeDiesel = "diesel"
	OilTypePetrol = "petrol"
)

// Extra-cost categories posted after an oil create.
const (
	ExtraCostTruckRent = "truck_rent"
	ExtraCostDepotCost = "depot_cost"
	ExtraCostTax       = "tax"
)

// FormSubmission is what a caller hands to the form queue.
type FormSubmission struct {
	Mode      FormMode        `json:"mode"`
	Payload   json.RawMessage `json:"payload"`
	TruckRent float64         `json:"truck_rent"`
	DepotCost float64         `json:"depot_cost"`
	Tax       float64         `json:"tax"`
	Currency  string          `json:"currency"`
}

// Validate checks the mode and that the payload is a JSON object.
func (s FormSubmission) Validate() error {
	if !s.Mode.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidMode, s.Mode)
	}
	var obj map[string]any
	if len(s.Payload) == 0 || json.Unmarshal(s.Payload, &obj) != nil || obj == nil {
		return ErrInvalidPayload
	}
	return nil
}

// ExtraCostsTotal is truck rent plus depot cost plus tax.
func (s FormSubmission) ExtraCostsTotal() float64 {
	return SumMoney(s.TruckRent, s.DepotCost, s.Tax)
}

// QueuedForm is one offline oil-create submission.
// RemoteIDs stays nil until Status is StatusSynced.
type QueuedForm struct {
	ID             int64           `json:"id"`
	OwnerID        int64           `json:"owner_id"`
	Mode           FormMode        `json:"mode"`
	Payload        json.RawMessage `json:"payload"`
	TruckRent      float64         `json:"truck_rent"`
	DepotCost      float64         `json:"depot_cost"`
	Tax            float64         `json:"tax"`
	Currency       string          `json:"currency"`
	Status         QueueStatus     `json:"status"`
	Error          string          `json:"error,omitempty"`
	RemoteIDs      *RemoteIDs      `json:"remote_ids,omitempty"`
	IdempotencyKey string          `json:"idempotency_key"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	LastAttemptAt  *time.Time      `json:"last_attempt_at,omitempty"`
}

// ExtraCosts returns the non-zero extra-cost requests for the form,
// bound to the given lot and oil.
func (f QueuedForm) ExtraCosts(lotID int64, oilID *int64) []ExtraCostRequest {
	var out []ExtraCostRequest
	add := func(category string, amount float64) {
		if amount == 0 {
			return
		}
		out = append(out, ExtraCostRequest{
			LotID:    lotID,
			OilID:    oilID,
			Category: category,
			Amount:   amount,
			Currency: f.Currency,
		})
	}
	add(ExtraCostTruckRent, f.TruckRent)
	add(ExtraCostDepotCost, f.DepotCost)
	add(ExtraCostTax, f.Tax)
	return out
}

// RemoteIDs are the server identifiers assigned to a synced form.
// OilTypes, when present, runs parallel to OilIDs.
type RemoteIDs struct {
	LotID    int64    `json:"lot_id"`
	OilIDs   []int64  `json:"oil_ids"`
	OilTypes []string `json:"oil_types,omitempty"`
}

// SingleOilID returns the oil id when exactly one was assigned.
func (r RemoteIDs) SingleOilID() (int64, bool) {
	if len(r.OilIDs) != 1 {
		return 0, false
	}
	return r.OilIDs[0], true
}

// ExtraCostRequest is one additive ledger entry posted after an oil create.
type ExtraCostRequest struct {
	LotID    int64   `json:"lot_id"`
	OilID    *int64  `json:"oil_id,omitempty"`
	Category string  `json:"category"`
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

// CreateResult is the decoded response of an oil create. There is one
// implementation per FormMode.
type CreateResult interface {
	RemoteIDs() RemoteIDs
	isCreateResult()
}

// SingleCreateResult is the response to a single-mode create.
type SingleCreateResult struct {
	ID      int64  `json:"id"`
	LotID   *int64 `json:"lot_id,omitempty"`
	OilType string `json:"oil_type,omitempty"`
}

func (SingleCreateResult) isCreateResult() {}

// RemoteIDs uses lot_id when the server sent one and the oil id otherwise.
func (r SingleCreateResult) RemoteIDs() RemoteIDs {
	lot := r.ID
	if r.LotID != nil {
		lot = *r.LotID
	}
	return RemoteIDs{LotID: lot, OilIDs: []int64{r.ID}}
}

// LotItem is one product in a lot create response.
type LotItem struct {
	ID      int64  `json:"id"`
	OilType string `json:"oil_type"`
}

// LotCreateResult is the response to a both-mode create.
type LotCreateResult struct {
	LotID int64     `json:"lot_id"`
	Items []LotItem `json:"items"`
}

func (LotCreateResult) isCreateResult() {}

// RemoteIDs keeps the diesel and petrol items in response order.
func (r LotCreateResult) RemoteIDs() RemoteIDs {
	ids := RemoteIDs{LotID: r.LotID, OilIDs: []int64{}}
	for _, item := range r.Items {
		t := strings.ToLower(strings.TrimSpace(item.OilType))
		if t != OilTypeDiesel && t != OilTypePetrol {
			continue
		}
		ids.OilIDs = append(ids.OilIDs, item.ID)
		ids.OilTypes = append(ids.OilTypes, t)
	}
	return ids
}

// DecodeCreateResult decodes a create response body for the given mode.
func DecodeCreateResult(mode FormMode, body []byte) (CreateResult, error) {
	switch mode {
	case FormModeSingle:
		var raw struct {
			ID      *int64 `json:"id"`
			LotID   *int64 `json:"lot_id"`
			OilType string `json:"oil_type"`
		}
		if err := json.Unmarshal(body, &raw); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
		}
		if raw.ID == nil {
			return nil, fmt.Errorf("%w: missing id", ErrInvalidResponse)
		}
		return SingleCreateResult{ID: *raw.ID, LotID: raw.LotID, OilType: raw.OilType}, nil
	case FormModeBoth:
		var raw struct {
			LotID *int64    `json:"lot_id"`
			Items []LotItem `json:"items"`
		}
		if err := json.Unmarshal(body, &raw); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
		}
		if raw.LotID == nil {
			return nil, fmt.Errorf("%w: missing lot_id", ErrInvalidResponse)
		}
		return LotCreateResult{LotID: *raw.LotID, Items: raw.Items}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}
}
