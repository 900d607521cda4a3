package enums

import "fmt"

// UnitType describes how a market product is sold.
type UnitType string

const (
	UnitTypePiece UnitType = "piece"
	UnitTypeKg    UnitType = "kg"
	UnitTypeGram  UnitType = "gram"
	UnitTypeLiter UnitType = "liter"
	UnitTypeMl    UnitType = "ml"
)

var validUnitTypes = []UnitType{
	UnitTypePiece,
	UnitTypeKg,
	UnitTypeGram,
	UnitTypeLiter,
	UnitTypeMl,
}

// String implements fmt.Stringer.
func (u UnitType) String() string {
	return string(u)
}

// IsValid reports whether the value is a known UnitType.
func (u UnitType) IsValid() bool {
	for _, candidate := range validUnitTypes {
		if candidate == u {
			return true
		}
	}
	return false
}

// IsPiece reports whether the unit is counted rather than weighed or measured.
// An empty unit is treated as a piece.
func (u UnitType) IsPiece() bool {
	return u == UnitTypePiece || u == ""
}

// ParseUnitType converts raw input into a UnitType.
func ParseUnitType(value string) (UnitType, error) {
	for _, candidate := range validUnitTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid unit type %q", value)
}
