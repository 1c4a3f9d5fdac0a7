package enums

import "fmt"

// ReturnReason explains why received goods were sent back to the supplier.
type ReturnReason string

const (
	ReturnReasonDamage      ReturnReason = "damage"
	ReturnReasonWrongItem   ReturnReason = "wrong_item"
	ReturnReasonExcess      ReturnReason = "excess"
	ReturnReasonQualityFail ReturnReason = "quality_fail"
	ReturnReasonDefect      ReturnReason = "defect"
	ReturnReasonOther       ReturnReason = "other"
)

var validReturnReasons = []ReturnReason{
	ReturnReasonDamage,
	ReturnReasonWrongItem,
	ReturnReasonExcess,
	ReturnReasonQualityFail,
	ReturnReasonDefect,
	ReturnReasonOther,
}

// String implements fmt.Stringer.
func (r ReturnReason) String() string {
	return string(r)
}

// IsValid reports whether the value is a known ReturnReason.
func (r ReturnReason) IsValid() bool {
	for _, candidate := range validReturnReasons {
		if candidate == r {
			return true
		}
	}
	return false
}

// ImpliesRefund reports whether the supplier owes money back for the goods.
func (r ReturnReason) ImpliesRefund() bool {
	switch r {
	case ReturnReasonDamage, ReturnReasonWrongItem, ReturnReasonQualityFail, ReturnReasonDefect:
		return true
	}
	return false
}

// ParseReturnReason converts raw input into a ReturnReason. The hyphenated
// spellings used by older clients are accepted.
func ParseReturnReason(value string) (ReturnReason, error) {
	switch value {
	case "wrong-item":
		return ReturnReasonWrongItem, nil
	case "quality-fail":
		return ReturnReasonQualityFail, nil
	}
	for _, candidate := range validReturnReasons {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid return reason %q", value)
}
