package orders

import "math"

// Round2 rounds to two decimal places, half away from zero. All
// monetary amounts pass through it before persistence so stored
// values are stable across recomputation.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// LineTotal prices one order line. Discount is a percentage in
// [0, 100] applied to the extended price.
func LineTotal(unitPrice float64, quantity int, discountPct float64) float64 {
	return Round2(unitPrice * float64(quantity) * (1 - discountPct/100))
}

// Totals is the derived money breakdown of an order.
type Totals struct {
	Subtotal float64
	Tax      float64
	Total    float64
}

// ComputeTotals derives subtotal, tax and grand total from the item
// lines. Tax applies to the subtotal before the order level discount;
// the discount then reduces the final amount only.
func ComputeTotals(items []OrderItem, taxRate, orderDiscount float64) Totals {
	var subtotal float64
	for _, it := range items {
		subtotal += it.TotalPrice
	}
	subtotal = Round2(subtotal)
	tax := Round2(subtotal * taxRate)
	total := Round2(subtotal + tax - orderDiscount)
	return Totals{Subtotal: subtotal, Tax: tax, Total: total}
}
