package enums

import "fmt"

// AuditEntityType names the kind of row an audit entry describes.
type AuditEntityType string

const (
	AuditEntityPurchaseOrder  AuditEntityType = "purchase_order"
	AuditEntityOrderLine      AuditEntityType = "purchase_order_line"
	AuditEntityPayment        AuditEntityType = "payment"
	AuditEntityReturn         AuditEntityType = "return"
	AuditEntityQualityCheck   AuditEntityType = "quality_check"
	AuditEntityFundingAccount AuditEntityType = "funding_account"
)

var validAuditEntityTypes = []AuditEntityType{
	AuditEntityPurchaseOrder,
	AuditEntityOrderLine,
	AuditEntityPayment,
	AuditEntityReturn,
	AuditEntityQualityCheck,
	AuditEntityFundingAccount,
}

// IsValid reports whether the value is a known AuditEntityType.
func (a AuditEntityType) IsValid() bool {
	for _, candidate := range validAuditEntityTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// AuditOperation names the mutation recorded by an audit entry.
type AuditOperation string

const (
	AuditOpOrderCreated       AuditOperation = "order_created"
	AuditOpLinesAdded         AuditOperation = "lines_added"
	AuditOpOrderConfirmed     AuditOperation = "order_confirmed"
	AuditOpLineReceived       AuditOperation = "line_received"
	AuditOpStatusChanged      AuditOperation = "status_changed"
	AuditOpItemsReturned      AuditOperation = "items_returned"
	AuditOpPaymentRecorded    AuditOperation = "payment_recorded"
	AuditOpPaymentReversed    AuditOperation = "payment_reversed"
	AuditOpOrderCompleted     AuditOperation = "order_completed"
	AuditOpOrderShortClosed   AuditOperation = "order_short_closed"
	AuditOpOrderCancelled     AuditOperation = "order_cancelled"
	AuditOpOrderArchived      AuditOperation = "order_archived"
	AuditOpQualityChecked     AuditOperation = "quality_checked"
	AuditOpAccountOpened      AuditOperation = "account_opened"
	AuditOpAccountCredited    AuditOperation = "account_credited"
	AuditOpAccountDebited     AuditOperation = "account_debited"
	AuditOpAccountRefunded    AuditOperation = "account_refunded"
)

var validAuditOperations = []AuditOperation{
	AuditOpOrderCreated,
	AuditOpLinesAdded,
	AuditOpOrderConfirmed,
	AuditOpLineReceived,
	AuditOpStatusChanged,
	AuditOpItemsReturned,
	AuditOpPaymentRecorded,
	AuditOpPaymentReversed,
	AuditOpOrderCompleted,
	AuditOpOrderShortClosed,
	AuditOpOrderCancelled,
	AuditOpOrderArchived,
	AuditOpQualityChecked,
	AuditOpAccountOpened,
	AuditOpAccountCredited,
	AuditOpAccountDebited,
	AuditOpAccountRefunded,
}

// IsValid reports whether the value is a known AuditOperation.
func (a AuditOperation) IsValid() bool {
	for _, candidate := range validAuditOperations {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseAuditOperation converts raw input into an AuditOperation.
func ParseAuditOperation(value string) (AuditOperation, error) {
	for _, candidate := range validAuditOperations {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid audit operation %q", value)
}
