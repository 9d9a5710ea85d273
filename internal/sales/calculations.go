// Package sales carries the pricing arithmetic shared by quotations, orders
// and the billing documents derived from them.
package sales

// LineInput is the pricing slice of a document line.
type LineInput struct {
	Quantity        float64
	UnitPrice       float64
	DiscountPercent float64
	TaxPercent      float64
}

// LineAmounts holds the computed money fields for one line.
type LineAmounts struct {
	LineTotal      float64
	DiscountAmount float64
	TaxableAmount  float64
	TaxAmount      float64
}

// DocumentTotals aggregates line amounts into document-level figures.
type DocumentTotals struct {
	Subtotal       float64
	DiscountAmount float64
	TaxAmount      float64
	TotalAmount    float64
}

// ComputeLine derives a line's amounts. Discount applies to the line total
// and tax applies to the discounted base, in that order.
func ComputeLine(in LineInput) LineAmounts {
	lineTotal := in.Quantity * in.UnitPrice
	discount := lineTotal * in.DiscountPercent / 100
	taxable := lineTotal - discount
	tax := taxable * in.TaxPercent / 100
	return LineAmounts{
		LineTotal:      lineTotal,
		DiscountAmount: discount,
		TaxableAmount:  taxable,
		TaxAmount:      tax,
	}
}

// ComputeTotals folds per-line amounts into document totals. The grand total
// is subtotal minus discounts plus tax.
func ComputeTotals(lines []LineInput) DocumentTotals {
	var t DocumentTotals
	for _, in := range lines {
		amounts := ComputeLine(in)
		t.Subtotal += amounts.LineTotal
		t.DiscountAmount += amounts.DiscountAmount
		t.TaxAmount += amounts.TaxAmount
	}
	t.TotalAmount = t.Subtotal - t.DiscountAmount + t.TaxAmount
	return t
}
