package enums

import "fmt"

// PaymentPolicy decides whether outstanding money blocks order completion.
type PaymentPolicy string

const (
	PaymentPolicyFullyPaid PaymentPolicy = "fully_paid"
	PaymentPolicyOptional  PaymentPolicy = "payment_optional"
)

var validPaymentPolicies = []PaymentPolicy{
	PaymentPolicyFullyPaid,
	PaymentPolicyOptional,
}

// String implements fmt.Stringer.
func (p PaymentPolicy) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentPolicy.
func (p PaymentPolicy) IsValid() bool {
	for _, candidate := range validPaymentPolicies {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePaymentPolicy converts raw input into a PaymentPolicy.
func ParsePaymentPolicy(value string) (PaymentPolicy, error) {
	for _, candidate := range validPaymentPolicies {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment policy %q", value)
}
