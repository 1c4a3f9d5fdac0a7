// Package quantity holds the pure arithmetic behind goods receipt: how much of
// each line is outstanding, what has been kept net of returns, and whether an
// order has everything it asked for.
package quantity

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/procurement-backend/pkg/db/models"
	"github.com/angelmondragon/procurement-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/procurement-backend/pkg/errors"
)

// Line is the quantity snapshot of a purchase order line.
type Line struct {
	ID       uuid.UUID
	Ordered  int64
	Received int64
	Returned int64
}

// FromModel snapshots a persisted line.
func FromModel(l models.PurchaseOrderLine) Line {
	return Line{
		ID:       l.ID,
		Ordered:  l.OrderedQuantity,
		Received: l.ReceivedQuantity,
		Returned: l.ReturnedQuantity,
	}
}

// FromModels snapshots every line of an order.
func FromModels(lines []models.PurchaseOrderLine) []Line {
	out := make([]Line, 0, len(lines))
	for _, l := range lines {
		out = append(out, FromModel(l))
	}
	return out
}

// Outstanding is what the supplier still owes. Negative after an authorised over-receipt.
func Outstanding(l Line) int64 {
	return l.Ordered - l.Received
}

// NetReceived is what the buyer kept after returns.
func NetReceived(l Line) int64 {
	return l.Received - l.Returned
}

// IsLineComplete reports whether the kept quantity covers the order. Over-receipt counts.
func IsLineComplete(l Line) bool {
	return NetReceived(l) >= l.Ordered
}

// OrderCompletionEligible reports whether every line is complete. An order
// without lines is never eligible.
func OrderCompletionEligible(lines []Line) bool {
	if len(lines) == 0 {
		return false
	}
	for _, l := range lines {
		if NetReceived(l) < 0 || !IsLineComplete(l) {
			return false
		}
	}
	return true
}

// DerivedStatus recomputes the receipt status of an order after its lines
// changed. Statuses outside the receiving phase are returned unchanged.
func DerivedStatus(current enums.PurchaseOrderStatus, lines []Line) enums.PurchaseOrderStatus {
	switch current {
	case enums.PurchaseOrderStatusConfirmed,
		enums.PurchaseOrderStatusPartialReceived,
		enums.PurchaseOrderStatusReceived:
	default:
		return current
	}
	if OrderCompletionEligible(lines) {
		return enums.PurchaseOrderStatusReceived
	}
	for _, l := range lines {
		if l.Received > 0 {
			return enums.PurchaseOrderStatusPartialReceived
		}
	}
	return current
}

// Receipt splits the part of a delta that lands above the ordered quantity.
type Receipt struct {
	// Replacement re-delivers returned units; net received stays within ordered.
	Replacement int64
	// Over is what exceeds the order even after counting returns.
	Over int64
}

// Excess is every unit of the delta above the ordered quantity.
func (r Receipt) Excess() int64 { return r.Replacement + r.Over }

// Replaceable is how many units can arrive above ordered while net received
// still stays within ordered.
func Replaceable(l Line) int64 {
	return max(l.Ordered-NetReceived(l), 0) - max(Outstanding(l), 0)
}

// CheckReceipt validates receiving delta units on l. Units past the ordered
// quantity need allowOver, and the result says how many of them replace
// returned goods and how many are a true over-receipt.
func CheckReceipt(l Line, delta int64, allowOver bool) (Receipt, error) {
	if delta <= 0 {
		return Receipt{}, pkgerrors.NewViolation(pkgerrors.CodeValidation, "received quantity must be positive; use a return to reduce stock", pkgerrors.Violation{
			EntityID:   l.ID.String(),
			Field:      "quantity",
			Current:    l.Received,
			Attempted:  delta,
			Constraint: "quantity > 0",
		})
	}
	excess := delta - max(Outstanding(l), 0)
	if excess <= 0 {
		return Receipt{}, nil
	}
	replacement := min(max(Replaceable(l), 0), excess)
	if !allowOver {
		msg := "receipt exceeds ordered quantity"
		if replacement > 0 {
			msg = "receipt exceeds ordered quantity; replacing returned units requires the over-receipt override"
		}
		return Receipt{}, pkgerrors.NewViolation(pkgerrors.CodeQuantityInvariant, msg, pkgerrors.Violation{
			EntityID:   l.ID.String(),
			Field:      "received_quantity",
			Current:    l.Received,
			Attempted:  l.Received + delta,
			Constraint: "received_quantity <= ordered_quantity",
		})
	}
	return Receipt{Replacement: replacement, Over: excess - replacement}, nil
}

// CheckReturn validates sending qty units of l back to the supplier.
func CheckReturn(l Line, qty int64) error {
	if qty <= 0 {
		return pkgerrors.NewViolation(pkgerrors.CodeValidation, "return quantity must be positive", pkgerrors.Violation{
			EntityID:   l.ID.String(),
			Field:      "quantity",
			Current:    l.Returned,
			Attempted:  qty,
			Constraint: "quantity > 0",
		})
	}
	if qty > NetReceived(l) {
		return pkgerrors.NewViolation(pkgerrors.CodeQuantityInvariant, "return exceeds net received quantity", pkgerrors.Violation{
			EntityID:   l.ID.String(),
			Field:      "returned_quantity",
			Current:    l.Returned,
			Attempted:  l.Returned + qty,
			Constraint: "returned_quantity <= received_quantity",
		})
	}
	return nil
}

// Summary aggregates quantities across an order.
type Summary struct {
	LineCount     int   `json:"line_count"`
	CompleteLines int   `json:"complete_lines"`
	Ordered       int64 `json:"ordered"`
	Received      int64 `json:"received"`
	Returned      int64 `json:"returned"`
	NetReceived   int64 `json:"net_received"`
	Outstanding   int64 `json:"outstanding"`
	OverReceived  int64 `json:"over_received"`
	FullyReceived bool  `json:"fully_received"`
}

// Summarize totals lines. Outstanding only counts lines still short, so an
// over-received line never offsets another line's shortfall.
func Summarize(lines []Line) Summary {
	s := Summary{LineCount: len(lines)}
	for _, l := range lines {
		s.Ordered += l.Ordered
		s.Received += l.Received
		s.Returned += l.Returned
		s.NetReceived += NetReceived(l)
		if out := Outstanding(l); out > 0 {
			s.Outstanding += out
		} else {
			s.OverReceived -= out
		}
		if IsLineComplete(l) {
			s.CompleteLines++
		}
	}
	s.FullyReceived = OrderCompletionEligible(lines)
	return s
}
