// Package pricing computes the itemised quote for a fuel order. It is pure:
// the same Input and configuration always produce the same Breakdown.
package pricing

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/angelmondragon/fueldrop-backend/pkg/errors"
	"github.com/angelmondragon/fueldrop-backend/pkg/types"
)

var (
	vatBeforeCutover = decimal.RequireFromString("0.15")
	vatFromCutover   = decimal.RequireFromString("0.16")

	loadSheddingRates = map[int]decimal.Decimal{
		1: decimal.RequireFromString("0.05"),
		2: decimal.RequireFromString("0.10"),
		3: decimal.RequireFromString("0.15"),
		4: decimal.RequireFromString("0.20"),
		5: decimal.RequireFromString("0.25"),
	}

	affluentRate = decimal.RequireFromString("0.05")
	stressedRate = decimal.RequireFromString("0.02")
)

// StoreItem is a convenience-store line priced in cents.
type StoreItem struct {
	Name       string
	PriceCents int64
	Quantity   int
}

// Input carries everything the quote depends on. LoadSheddingStage comes from
// the provider lookup and is 0 when the lookup failed.
type Input struct {
	QuantityLitres    decimal.Decimal
	UnitPriceCents    int64
	StoreItems        []StoreItem
	Suburb            string
	Delivery          types.GeoPoint
	Station           types.GeoPoint
	Date              time.Time
	LoadSheddingStage int
}

type Config struct {
	VATCutover        time.Time
	BaseDeliveryFee   int64
	MinimumOrderValue int64
	AffluentAreas     []string
	StressedAreas     []string
}

type Engine struct {
	cutover    time.Time
	baseFee    int64
	minimum    int64
	classifier areaClassifier
}

func NewEngine(cfg Config) (*Engine, error) {
	if cfg.VATCutover.IsZero() {
		return nil, fmt.Errorf("vat cutover date required")
	}
	if cfg.BaseDeliveryFee < 0 || cfg.MinimumOrderValue < 0 {
		return nil, fmt.Errorf("pricing amounts must not be negative")
	}
	y, m, d := cfg.VATCutover.Date()
	return &Engine{
		cutover:    time.Date(y, m, d, 0, 0, 0, 0, time.UTC),
		baseFee:    cfg.BaseDeliveryFee,
		minimum:    cfg.MinimumOrderValue,
		classifier: newAreaClassifier(cfg.AffluentAreas, cfg.StressedAreas),
	}, nil
}

// VATRate returns 0.15 before the cutover date and 0.16 on or after it.
// Dates compare by UTC calendar day.
func (e *Engine) VATRate(date time.Time) decimal.Decimal {
	y, m, d := date.UTC().Date()
	if time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Before(e.cutover) {
		return vatBeforeCutover
	}
	return vatFromCutover
}

// Calculate produces the full breakdown. Every line is rounded half-up to the cent
// before it is summed so the stored parts always add up to the total.
func (e *Engine) Calculate(in Input) (types.PricingBreakdown, error) {
	if err := validate(in); err != nil {
		return types.PricingBreakdown{}, err
	}

	fuel := cents(in.QuantityLitres.Mul(decimal.NewFromInt(in.UnitPriceCents)))
	var store int64
	for _, item := range in.StoreItems {
		store += item.PriceCents * int64(item.Quantity)
	}
	subtotal := fuel + store
	sub := decimal.NewFromInt(subtotal)

	vatRate := e.VATRate(in.Date)
	vat := cents(sub.Mul(vatRate))

	stage := in.LoadSheddingStage
	var loadShedding int64
	if rate, ok := loadSheddingRates[stage]; ok {
		loadShedding = cents(sub.Mul(rate))
	} else {
		stage = 0
	}

	area := e.classifier.classify(in.Suburb)
	var areaSurcharge int64
	switch area {
	case types.AreaAffluent:
		areaSurcharge = cents(sub.Mul(affluentRate))
	case types.AreaStressed:
		areaSurcharge = cents(sub.Mul(stressedRate))
	}

	distance := HaversineKm(in.Station, in.Delivery)
	delivery := e.DeliveryFee(distance)

	total := subtotal + vat + loadShedding + areaSurcharge + delivery
	minimumApplied := false
	if total < e.minimum {
		total = e.minimum
		minimumApplied = true
	}

	return types.PricingBreakdown{
		FuelSubtotalCents:          fuel,
		StoreSubtotalCents:         store,
		SubtotalCents:              subtotal,
		VATRate:                    vatRate,
		VATCents:                   vat,
		LoadSheddingStage:          stage,
		LoadSheddingSurchargeCents: loadShedding,
		AreaType:                   area,
		AreaSurchargeCents:         areaSurcharge,
		DistanceKm:                 decimal.NewFromFloat(distance).Round(2),
		DeliveryFeeCents:           delivery,
		TotalCents:                 total,
		MinimumOrderApplied:        minimumApplied,
	}, nil
}

// DeliveryFee is the base fee up to 5 km, then +R10 to 10 km, +R20 to 15 km and +R30 beyond.
func (e *Engine) DeliveryFee(distanceKm float64) int64 {
	switch {
	case distanceKm <= 5:
		return e.baseFee
	case distanceKm <= 10:
		return e.baseFee + 1000
	case distanceKm <= 15:
		return e.baseFee + 2000
	default:
		return e.baseFee + 3000
	}
}

func cents(amount decimal.Decimal) int64 {
	return amount.Round(0).IntPart()
}

func validate(in Input) error {
	details := map[string]string{}
	if !in.QuantityLitres.IsPositive() {
		details["quantityLitres"] = "must be greater than zero"
	}
	if in.UnitPriceCents <= 0 {
		details["unitPrice"] = "must be greater than zero"
	}
	for i, item := range in.StoreItems {
		if item.Quantity <= 0 || item.PriceCents < 0 {
			details[fmt.Sprintf("storeItems[%d]", i)] = "price must be non-negative and quantity positive"
		}
	}
	if err := in.Delivery.Validate(); err != nil {
		details["delivery"] = err.Error()
	}
	if err := in.Station.Validate(); err != nil {
		details["station"] = err.Error()
	}
	if len(details) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid pricing input").WithDetails(details)
	}
	return nil
}
