package payments

import (
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/procurement-backend/pkg/db/models"
	"github.com/angelmondragon/procurement-backend/pkg/enums"
)

// PaidTolerance is the shortfall an order may carry and still count as paid.
// The comparison is strict, so with 2-decimal totals a full cent short is
// still partial.
var PaidTolerance = decimal.RequireFromString("0.01")

// TotalPaid nets counted payments against their reversals, in order currency.
func TotalPaid(payments []models.Payment, reversals []models.PaymentReversal) decimal.Decimal {
	counted := make(map[string]struct{}, len(payments))
	total := decimal.Zero
	for _, p := range payments {
		if !p.Status.CountsTowardTotals() {
			continue
		}
		counted[p.ID.String()] = struct{}{}
		total = total.Add(p.OrderCurrencyAmount)
	}
	for _, r := range reversals {
		if _, ok := counted[r.PaymentID.String()]; !ok {
			continue
		}
		total = total.Sub(r.OrderCurrencyAmount)
	}
	return total.Round(2)
}

// Status derives the order payment status from what has been paid.
func Status(totalPaid, totalAmount decimal.Decimal) enums.OrderPaymentStatus {
	switch {
	case !totalPaid.IsPositive():
		return enums.OrderPaymentStatusUnpaid
	case totalAmount.Sub(totalPaid).LessThan(PaidTolerance):
		return enums.OrderPaymentStatusPaid
	default:
		return enums.OrderPaymentStatusPartial
	}
}

// ToOrderCurrency converts a payment-currency amount with rate. A nil rate
// means both sides share a currency.
func ToOrderCurrency(amount decimal.Decimal, rate *decimal.Decimal) decimal.Decimal {
	if rate == nil {
		return amount.Round(2)
	}
	return amount.Mul(*rate).Round(2)
}

// ToPaymentCurrency is the inverse of ToOrderCurrency.
func ToPaymentCurrency(amount decimal.Decimal, rate *decimal.Decimal) decimal.Decimal {
	if rate == nil || rate.IsZero() {
		return amount.Round(2)
	}
	return amount.DivRound(*rate, 2)
}

// Remaining is the part of a payment that has not been reversed yet, in
// payment currency and in order currency.
func Remaining(payment models.Payment, reversals []models.PaymentReversal) (decimal.Decimal, decimal.Decimal) {
	amount := payment.Amount
	orderAmount := payment.OrderCurrencyAmount
	for _, r := range reversals {
		if r.PaymentID != payment.ID {
			continue
		}
		amount = amount.Sub(r.Amount)
		orderAmount = orderAmount.Sub(r.OrderCurrencyAmount)
	}
	return amount, orderAmount
}
