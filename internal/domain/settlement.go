package domain

import "github.com/shopspring/decimal"

// OrderTotal recomputes an order's total from the authoritative line set.
// Recompute-from-scratch is deliberate: repeated incremental +/- on decimal
// money would let rounding drift accumulate across edits.
func OrderTotal(lines []OrderLine, tax decimal.Decimal, discount decimal.Decimal) decimal.Decimal {
	subtotal := decimal.Zero
	for _, line := range lines {
		subtotal = subtotal.Add(line.Price.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	return subtotal.Add(tax).Sub(discount)
}

// OrderStatus derives the settlement status. The boundary is inclusive: a
// payment exactly equal to the total completes the order.
func OrderStatus(total decimal.Decimal, totalPaid decimal.Decimal) string {
	if totalPaid.GreaterThanOrEqual(total) {
		return OrderStatusCompleted
	}
	return OrderStatusIncomplete
}

// PaymentProgress returns the display percentage round(totalPaid/total*100),
// or 0 when the total is not positive.
func PaymentProgress(total decimal.Decimal, totalPaid decimal.Decimal) int {
	if !total.IsPositive() {
		return 0
	}
	pct := totalPaid.Div(total).Mul(decimal.NewFromInt(100)).Round(0)
	return int(pct.IntPart())
}
