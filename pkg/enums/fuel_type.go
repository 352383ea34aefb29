package enums

import "fmt"

// FuelType enumerates the fuels stations sell.
type FuelType string

const (
	FuelTypePetrol93  FuelType = "petrol_93"
	FuelTypePetrol95  FuelType = "petrol_95"
	FuelTypeDiesel50  FuelType = "diesel_50ppm"
	FuelTypeDiesel500 FuelType = "diesel_500ppm"
	FuelTypeParaffin  FuelType = "paraffin"
)

var validFuelTypes = []FuelType{
	FuelTypePetrol93,
	FuelTypePetrol95,
	FuelTypeDiesel50,
	FuelTypeDiesel500,
	FuelTypeParaffin,
}

// String implements fmt.Stringer.
func (f FuelType) String() string {
	return string(f)
}

// IsValid reports whether the value is a known FuelType.
func (f FuelType) IsValid() bool {
	for _, candidate := range validFuelTypes {
		if candidate == f {
			return true
		}
	}
	return false
}

// ParseFuelType converts raw input into a FuelType.
func ParseFuelType(value string) (FuelType, error) {
	for _, candidate := range validFuelTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid fuel type %q", value)
}
