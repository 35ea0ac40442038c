// Package calculator holds the pure balance arithmetic of the ledger.
// The same functions run on entry creation and during chain recalculation,
// which is what makes editing a historical entry safe: recalculation is
// just replaying the insert math forward from the edited point.
package calculator

import "github.com/shopspring/decimal"

// CylinderBalance derives the next running cylinder count in a
// (customer, variant) chain. The result may be negative; callers treat a
// negative value as a chain violation, never persist it.
func CylinderBalance(previous, filledOut, emptyIn int32) int32 {
	return previous + filledOut - emptyIn
}

// ReturnShortfall reports by how many cylinders an entry over-returns.
// An entry's own filledOut counts toward what can be returned in that
// same entry. Zero means the entry is fine.
func ReturnShortfall(previous, filledOut, emptyIn int32) int32 {
	if short := emptyIn - (previous + filledOut); short > 0 {
		return short
	}
	return 0
}

// DueAmount derives the next running due in a customer chain, clamped at
// zero.
func DueAmount(previous, totalAmount, amountReceived decimal.Decimal) decimal.Decimal {
	due := previous.Add(totalAmount).Sub(amountReceived)
	if due.IsNegative() {
		return decimal.Zero
	}
	return due
}

// DueShortfall returns the pre-clamp amount by which the due would dip
// below zero, or zero decimal when it would not. The create path uses it
// to reject overpayments; the edit path treats a non-zero shortfall on any
// downstream entry as a chain violation.
func DueShortfall(previous, totalAmount, amountReceived decimal.Decimal) decimal.Decimal {
	due := previous.Add(totalAmount).Sub(amountReceived)
	if due.IsNegative() {
		return due.Neg()
	}
	return decimal.Zero
}
