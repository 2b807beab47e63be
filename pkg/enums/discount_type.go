package enums

import (
	"fmt"
	"strings"
)

// DiscountType selects how a promotion's discount value is applied to the subtotal.
type DiscountType string

const (
	DiscountTypeFixed      DiscountType = "Fixed"
	DiscountTypePercentage DiscountType = "Percentage"
)

var validDiscountTypes = []DiscountType{
	DiscountTypeFixed,
	DiscountTypePercentage,
}

// String implements fmt.Stringer.
func (d DiscountType) String() string {
	return string(d)
}

// IsValid reports whether the value is a known DiscountType.
func (d DiscountType) IsValid() bool {
	for _, candidate := range validDiscountTypes {
		if candidate == d {
			return true
		}
	}
	return false
}

// ParseDiscountType converts raw input into a DiscountType. Matching is case-insensitive
// because the commerce API is not consistent about casing.
func ParseDiscountType(value string) (DiscountType, error) {
	trimmed := strings.TrimSpace(value)
	for _, candidate := range validDiscountTypes {
		if strings.EqualFold(string(candidate), trimmed) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid discount type %q", value)
}
