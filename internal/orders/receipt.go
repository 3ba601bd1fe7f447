package orders

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const receiptWidth = 40

// RenderReceipt formats a plain-text till receipt. Amounts use the
// English locale printer so large totals carry thousands separators.
func RenderReceipt(o *Order, storeName string) string {
	p := message.NewPrinter(language.English)
	var b strings.Builder

	center := func(s string) {
		if pad := (receiptWidth - len(s)) / 2; pad > 0 {
			b.WriteString(strings.Repeat(" ", pad))
		}
		b.WriteString(s)
		b.WriteByte('\n')
	}
	rule := func() {
		b.WriteString(strings.Repeat("-", receiptWidth))
		b.WriteByte('\n')
	}
	amount := func(label string, v float64) {
		val := p.Sprintf("%.2f", v)
		b.WriteString(label)
		if pad := receiptWidth - len(label) - len(val); pad > 0 {
			b.WriteString(strings.Repeat(" ", pad))
		}
		b.WriteString(val)
		b.WriteByte('\n')
	}

	center(storeName)
	center("SALES RECEIPT")
	rule()
	b.WriteString(fmt.Sprintf("Order:   %s\n", o.OrderNumber))
	b.WriteString(fmt.Sprintf("Date:    %s\n", o.CreatedAt.Format("2006-01-02 15:04:05")))
	if o.CustomerName != nil {
		b.WriteString(fmt.Sprintf("Customer: %s\n", *o.CustomerName))
	}
	rule()
	for _, it := range o.Items {
		b.WriteString(it.ProductName)
		b.WriteByte('\n')
		line := p.Sprintf("  %d x %.2f", it.Quantity, it.UnitPrice)
		if it.Discount > 0 {
			line += p.Sprintf(" (-%.0f%%)", it.Discount)
		}
		val := p.Sprintf("%.2f", it.TotalPrice)
		b.WriteString(line)
		if pad := receiptWidth - len(line) - len(val); pad > 0 {
			b.WriteString(strings.Repeat(" ", pad))
		}
		b.WriteString(val)
		b.WriteByte('\n')
	}
	rule()
	amount("Subtotal", o.Subtotal)
	amount("Tax", o.TaxAmount)
	if o.DiscountAmount > 0 {
		amount("Discount", -o.DiscountAmount)
	}
	amount("TOTAL", o.TotalAmount)
	rule()
	center("Thank you for shopping with us!")
	return b.String()
}
