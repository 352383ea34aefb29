package types

import "testing"

func TestNormalizeArea(t *testing.T) {
	cases := map[string]string{
		"  Sandton ":        "sandton",
		"CAMPS   Bay":       "camps bay",
		"":                  "",
		"Mitchells\tPlain ": "mitchells plain",
	}
	for in, want := range cases {
		if got := NormalizeArea(in); got != want {
			t.Fatalf("NormalizeArea(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestGeoPointValidate(t *testing.T) {
	if err := (GeoPoint{Lat: -26.1, Lon: 28.05}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := (GeoPoint{Lat: 91}).Validate(); err == nil {
		t.Fatal("expected latitude error")
	}
	if err := (GeoPoint{Lon: -181}).Validate(); err == nil {
		t.Fatal("expected longitude error")
	}
}
