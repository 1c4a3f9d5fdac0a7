package enums

import "fmt"

// PurchaseOrderStatus tracks the lifecycle of a purchase order.
type PurchaseOrderStatus string

const (
	PurchaseOrderStatusDraft           PurchaseOrderStatus = "draft"
	PurchaseOrderStatusConfirmed       PurchaseOrderStatus = "confirmed"
	PurchaseOrderStatusPartialReceived PurchaseOrderStatus = "partial_received"
	PurchaseOrderStatusReceived        PurchaseOrderStatus = "received"
	PurchaseOrderStatusCompleted       PurchaseOrderStatus = "completed"
	PurchaseOrderStatusShortClosed     PurchaseOrderStatus = "short_closed"
	PurchaseOrderStatusCancelled       PurchaseOrderStatus = "cancelled"
)

var validPurchaseOrderStatuses = []PurchaseOrderStatus{
	PurchaseOrderStatusDraft,
	PurchaseOrderStatusConfirmed,
	PurchaseOrderStatusPartialReceived,
	PurchaseOrderStatusReceived,
	PurchaseOrderStatusCompleted,
	PurchaseOrderStatusShortClosed,
	PurchaseOrderStatusCancelled,
}

// String implements fmt.Stringer.
func (s PurchaseOrderStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known PurchaseOrderStatus.
func (s PurchaseOrderStatus) IsValid() bool {
	for _, candidate := range validPurchaseOrderStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are possible.
func (s PurchaseOrderStatus) IsTerminal() bool {
	switch s {
	case PurchaseOrderStatusCompleted, PurchaseOrderStatusShortClosed, PurchaseOrderStatusCancelled:
		return true
	}
	return false
}

// AcceptsReceipts reports whether goods may be received in this status.
func (s PurchaseOrderStatus) AcceptsReceipts() bool {
	return s == PurchaseOrderStatusConfirmed || s == PurchaseOrderStatusPartialReceived
}

// AcceptsPayments reports whether payments may be recorded in this status.
func (s PurchaseOrderStatus) AcceptsPayments() bool {
	switch s {
	case PurchaseOrderStatusConfirmed,
		PurchaseOrderStatusPartialReceived,
		PurchaseOrderStatusReceived,
		PurchaseOrderStatusCompleted,
		PurchaseOrderStatusShortClosed:
		return true
	}
	return false
}

// ParsePurchaseOrderStatus converts raw input into a PurchaseOrderStatus.
func ParsePurchaseOrderStatus(value string) (PurchaseOrderStatus, error) {
	for _, candidate := range validPurchaseOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid purchase order status %q", value)
}
