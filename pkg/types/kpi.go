package types

// OilSummary is the oil dashboard KPI snapshot.
type OilSummary struct {
	TotalLots       int     `json:"total_lots"`
	TotalOils       int     `json:"total_oils"`
	TotalLiters     float64 `json:"total_liters"`
	DieselLiters    float64 `json:"diesel_liters"`
	PetrolLiters    float64 `json:"petrol_liters"`
	InStockLiters   float64 `json:"in_stock_liters"`
	TotalLandedCost float64 `json:"total_landed_cost"`
	TotalAmountDue  float64 `json:"total_amount_due"`
}

// WakaaladStats is the sub-distributor KPI snapshot.
type WakaaladStats struct {
	TotalWakaalads        int     `json:"total_wakaalads"`
	ActiveWakaalads       int     `json:"active_wakaalads"`
	AllocatedLiters       float64 `json:"allocated_liters"`
	SoldLiters            float64 `json:"sold_liters"`
	ReturnedLiters        float64 `json:"returned_liters"`
	OutstandingLiters     float64 `json:"outstanding_liters"`
	OutstandingReceivable float64 `json:"outstanding_receivable"`
}

// Wakaalad movement kinds.
const (
	MovementAllocation = "allocation"
	MovementSale       = "sale"
	MovementReturn     = "return"
)

// WakaaladMovement is one stock movement to or from a sub-distributor.
type WakaaladMovement struct {
	ID           int64    `json:"id"`
	WakaaladID   int64    `json:"wakaalad_id"`
	WakaaladName string   `json:"wakaalad_name"`
	OilID        *int64   `json:"oil_id,omitempty"`
	OilType      string   `json:"oil_type,omitempty"`
	MovementType string   `json:"movement_type"`
	Liters       float64  `json:"liters"`
	Amount       *float64 `json:"amount,omitempty"`
	Date         string   `json:"date"`
}
