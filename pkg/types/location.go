package types

import (
	"fmt"
	"strings"
)

// GeoPoint is a WGS84 coordinate pair.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

func (g GeoPoint) Validate() error {
	if g.Lat < -90 || g.Lat > 90 {
		return fmt.Errorf("latitude %v out of range", g.Lat)
	}
	if g.Lon < -180 || g.Lon > 180 {
		return fmt.Errorf("longitude %v out of range", g.Lon)
	}
	return nil
}

// DeliveryAddress is stored inline on the order row with a delivery_ prefix.
type DeliveryAddress struct {
	Street string  `json:"street" gorm:"column:street;not null" validate:"required"`
	Suburb string  `json:"suburb" gorm:"column:suburb;not null" validate:"required"`
	City   string  `json:"city" gorm:"column:city;not null" validate:"required"`
	Lat    float64 `json:"lat" gorm:"column:lat;not null" validate:"gte=-90,lte=90"`
	Lon    float64 `json:"lon" gorm:"column:lon;not null" validate:"gte=-180,lte=180"`
}

func (a DeliveryAddress) Point() GeoPoint {
	return GeoPoint{Lat: a.Lat, Lon: a.Lon}
}

// NormalizeArea lowercases and collapses whitespace so area names compare reliably.
func NormalizeArea(value string) string {
	return strings.Join(strings.Fields(strings.ToLower(value)), " ")
}
