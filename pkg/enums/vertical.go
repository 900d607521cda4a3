package enums

import (
	"fmt"
	"strings"
)

// Vertical separates restaurant ordering from grocery ordering.
type Vertical string

const (
	VerticalEat    Vertical = "eat"
	VerticalMarket Vertical = "market"
)

var validVerticals = []Vertical{
	VerticalEat,
	VerticalMarket,
}

// String implements fmt.Stringer.
func (v Vertical) String() string {
	return string(v)
}

// IsValid reports whether the value is a known Vertical.
func (v Vertical) IsValid() bool {
	for _, candidate := range validVerticals {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseVertical converts user input into a Vertical, ignoring case and surrounding space.
func ParseVertical(value string) (Vertical, error) {
	for _, candidate := range validVerticals {
		if strings.EqualFold(string(candidate), strings.TrimSpace(value)) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid vertical %q", value)
}
