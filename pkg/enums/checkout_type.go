package enums

import "fmt"

// CheckoutType distinguishes cart checkouts from direct buys.
type CheckoutType string

const (
	CheckoutTypeCart   CheckoutType = "cart"
	CheckoutTypeDirect CheckoutType = "direct"
)

var validCheckoutTypes = []CheckoutType{
	CheckoutTypeCart,
	CheckoutTypeDirect,
}

// String implements fmt.Stringer.
func (c CheckoutType) String() string {
	return string(c)
}

// IsValid reports whether the value is a known CheckoutType.
func (c CheckoutType) IsValid() bool {
	for _, candidate := range validCheckoutTypes {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseCheckoutType converts raw input into a CheckoutType.
func ParseCheckoutType(value string) (CheckoutType, error) {
	for _, candidate := range validCheckoutTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid checkout type %q", value)
}
