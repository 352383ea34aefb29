package types

import "github.com/shopspring/decimal"

// AreaType classifies a delivery suburb for surcharge purposes.
type AreaType string

const (
	AreaStandard AreaType = "standard"
	AreaAffluent AreaType = "affluent"
	AreaStressed AreaType = "stressed"
)

// PricingBreakdown is the itemised quote computed once at order creation.
// Amounts are in cents; every consumer reads these stored values.
type PricingBreakdown struct {
	FuelSubtotalCents          int64           `json:"fuelSubtotalCents" gorm:"column:fuel_subtotal_cents;not null"`
	StoreSubtotalCents         int64           `json:"storeSubtotalCents" gorm:"column:store_subtotal_cents;not null"`
	SubtotalCents              int64           `json:"subtotalCents" gorm:"column:subtotal_cents;not null"`
	VATRate                    decimal.Decimal `json:"vatRate" gorm:"column:vat_rate;type:numeric(5,4);not null"`
	VATCents                   int64           `json:"vatCents" gorm:"column:vat_cents;not null"`
	LoadSheddingStage          int             `json:"loadSheddingStage" gorm:"column:load_shedding_stage;not null"`
	LoadSheddingSurchargeCents int64           `json:"loadSheddingSurchargeCents" gorm:"column:load_shedding_surcharge_cents;not null"`
	AreaType                   AreaType        `json:"areaType" gorm:"column:area_type;type:text;not null"`
	AreaSurchargeCents         int64           `json:"areaSurchargeCents" gorm:"column:area_surcharge_cents;not null"`
	DistanceKm                 decimal.Decimal `json:"distanceKm" gorm:"column:distance_km;type:numeric(8,2);not null"`
	DeliveryFeeCents           int64           `json:"deliveryFeeCents" gorm:"column:delivery_fee_cents;not null"`
	TotalCents                 int64           `json:"totalCents" gorm:"column:total_cents;not null"`
	MinimumOrderApplied        bool            `json:"minimumOrderApplied" gorm:"column:minimum_order_applied;not null"`
}

// PayableCents is the amount the customer is charged.
func (p PricingBreakdown) PayableCents() int64 {
	return p.TotalCents
}

// StationEarningCents is what the station is owed once the order is delivered.
func (p PricingBreakdown) StationEarningCents() int64 {
	return p.FuelSubtotalCents + p.StoreSubtotalCents
}
