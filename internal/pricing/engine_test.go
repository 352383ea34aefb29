package pricing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/angelmondragon/fueldrop-backend/pkg/errors"
	"github.com/angelmondragon/fueldrop-backend/pkg/types"
)

var (
	station = types.GeoPoint{Lat: -26.0, Lon: 28.0}
	// ~6.0 km due south of the station.
	sixKmAway = types.GeoPoint{Lat: -26.054, Lon: 28.0}
	cutover   = time.Date(2025, time.May, 1, 0, 0, 0, 0, time.UTC)
)

func newTestEngine(t *testing.T, minimum int64) *Engine {
	t.Helper()
	engine, err := NewEngine(Config{
		VATCutover:        cutover,
		BaseDeliveryFee:   2500,
		MinimumOrderValue: minimum,
		AffluentAreas:     []string{"Sandton", "Camps Bay"},
		StressedAreas:     []string{"Soweto", "Camps"},
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return engine
}

func TestCalculateWorkedExample(t *testing.T) {
	engine := newTestEngine(t, 5000)

	got, err := engine.Calculate(Input{
		QuantityLitres: decimal.NewFromInt(50),
		UnitPriceCents: 2550,
		Suburb:         "Randburg",
		Delivery:       sixKmAway,
		Station:        station,
		Date:           cutover.AddDate(0, 0, -1),
	})
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}

	checks := []struct {
		name string
		got  int64
		want int64
	}{
		{"fuel subtotal", got.FuelSubtotalCents, 127500},
		{"store subtotal", got.StoreSubtotalCents, 0},
		{"vat", got.VATCents, 19125},
		{"delivery", got.DeliveryFeeCents, 3500},
		{"area", got.AreaSurchargeCents, 0},
		{"load shedding", got.LoadSheddingSurchargeCents, 0},
		{"total", got.TotalCents, 150125},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Fatalf("%s: want %d got %d", c.name, c.want, c.got)
		}
	}
	if !got.VATRate.Equal(decimal.RequireFromString("0.15")) {
		t.Fatalf("expected pre-cutover vat, got %s", got.VATRate)
	}
	if got.AreaType != types.AreaStandard || got.MinimumOrderApplied {
		t.Fatalf("unexpected flags %+v", got)
	}
}

func TestCalculateIsDeterministic(t *testing.T) {
	engine := newTestEngine(t, 0)
	in := Input{
		QuantityLitres:    decimal.RequireFromString("37.35"),
		UnitPriceCents:    2389,
		StoreItems:        []StoreItem{{Name: "pie", PriceCents: 3499, Quantity: 2}},
		Suburb:            "Soweto",
		Delivery:          types.GeoPoint{Lat: -26.25, Lon: 27.9},
		Station:           station,
		Date:              cutover,
		LoadSheddingStage: 3,
	}
	first, err := engine.Calculate(in)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := engine.Calculate(in)
		if err != nil {
			t.Fatalf("calculate: %v", err)
		}
		if again != first {
			t.Fatalf("non deterministic result: %+v vs %+v", again, first)
		}
	}
	sum := first.SubtotalCents + first.VATCents + first.LoadSheddingSurchargeCents + first.AreaSurchargeCents + first.DeliveryFeeCents
	if first.TotalCents != sum {
		t.Fatalf("total %d does not equal parts %d", first.TotalCents, sum)
	}
	if first.SubtotalCents != first.FuelSubtotalCents+first.StoreSubtotalCents {
		t.Fatal("subtotal does not equal fuel + store")
	}
}

func TestVATGating(t *testing.T) {
	engine := newTestEngine(t, 0)
	low := decimal.RequireFromString("0.15")
	high := decimal.RequireFromString("0.16")

	cases := []struct {
		date time.Time
		want decimal.Decimal
	}{
		{time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), low},
		{cutover.Add(-time.Nanosecond), low},
		{cutover, high},
		{cutover.Add(23 * time.Hour), high},
		{time.Date(2031, 12, 31, 0, 0, 0, 0, time.UTC), high},
	}
	for _, c := range cases {
		if got := engine.VATRate(c.date); !got.Equal(c.want) {
			t.Fatalf("date %s: want %s got %s", c.date, c.want, got)
		}
	}
}

func TestLoadSheddingSurcharge(t *testing.T) {
	engine := newTestEngine(t, 0)
	cases := map[int]int64{0: 0, 1: 5000, 2: 10000, 3: 15000, 4: 20000, 5: 25000, 6: 0, -1: 0}
	for stage, want := range cases {
		got, err := engine.Calculate(Input{
			QuantityLitres:    decimal.NewFromInt(100),
			UnitPriceCents:    1000,
			Delivery:          station,
			Station:           station,
			Date:              cutover,
			LoadSheddingStage: stage,
		})
		if err != nil {
			t.Fatalf("calculate: %v", err)
		}
		if got.LoadSheddingSurchargeCents != want {
			t.Fatalf("stage %d: want %d got %d", stage, want, got.LoadSheddingSurchargeCents)
		}
		if (stage < 0 || stage > 5) && got.LoadSheddingStage != 0 {
			t.Fatalf("unknown stage %d should be recorded as 0", stage)
		}
	}
}

func TestAreaClassification(t *testing.T) {
	engine := newTestEngine(t, 0)
	cases := []struct {
		suburb string
		want   types.AreaType
		cents  int64
	}{
		{"SANDTON", types.AreaAffluent, 5000},
		{"Sandton Central", types.AreaAffluent, 5000},
		{"Sandtonview", types.AreaStandard, 0},
		{"soweto", types.AreaStressed, 2000},
		// listed on both: affluent wins
		{"Camps Bay", types.AreaAffluent, 5000},
		{"Camps", types.AreaStressed, 2000},
		{"", types.AreaStandard, 0},
	}
	for _, c := range cases {
		got, err := engine.Calculate(Input{
			QuantityLitres: decimal.NewFromInt(100),
			UnitPriceCents: 1000,
			Suburb:         c.suburb,
			Delivery:       station,
			Station:        station,
			Date:           cutover,
		})
		if err != nil {
			t.Fatalf("calculate: %v", err)
		}
		if got.AreaType != c.want || got.AreaSurchargeCents != c.cents {
			t.Fatalf("suburb %q: want %s/%d got %s/%d", c.suburb, c.want, c.cents, got.AreaType, got.AreaSurchargeCents)
		}
	}
}

func TestDeliveryFeeTiers(t *testing.T) {
	engine := newTestEngine(t, 0)
	cases := map[float64]int64{0: 2500, 5: 2500, 5.01: 3500, 10: 3500, 12: 4500, 15: 4500, 15.5: 5500, 80: 5500}
	for km, want := range cases {
		if got := engine.DeliveryFee(km); got != want {
			t.Fatalf("%v km: want %d got %d", km, want, got)
		}
	}
}

func TestMinimumOrderFloor(t *testing.T) {
	engine := newTestEngine(t, 20000)
	got, err := engine.Calculate(Input{
		QuantityLitres: decimal.NewFromInt(2),
		UnitPriceCents: 2000,
		Delivery:       station,
		Station:        station,
		Date:           cutover,
	})
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if got.TotalCents != 20000 || !got.MinimumOrderApplied {
		t.Fatalf("expected floor to apply, got %+v", got)
	}
}

func TestCalculateRejectsInvalidInput(t *testing.T) {
	engine := newTestEngine(t, 0)
	_, err := engine.Calculate(Input{
		QuantityLitres: decimal.Zero,
		UnitPriceCents: 2000,
		StoreItems:     []StoreItem{{Name: "x", PriceCents: 100, Quantity: 0}},
		Delivery:       types.GeoPoint{Lat: 100},
		Station:        station,
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestHaversine(t *testing.T) {
	if d := HaversineKm(station, station); d != 0 {
		t.Fatalf("expected zero distance, got %v", d)
	}
	// Johannesburg to Pretoria is roughly 54 km.
	d := HaversineKm(types.GeoPoint{Lat: -26.2041, Lon: 28.0473}, types.GeoPoint{Lat: -25.7479, Lon: 28.2293})
	if d < 50 || d > 58 {
		t.Fatalf("unexpected distance %v", d)
	}
}
