package core

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Totals is the computed money breakdown of an invoice.
type Totals struct {
	Subtotal decimal.Decimal
	Tax      decimal.Decimal
	Amount   decimal.Decimal
}

// Total returns quantity × rate.
func (li LineItem) Total() decimal.Decimal {
	return li.Quantity.Mul(li.Rate)
}

// NewLineItem builds a line item with its amount filled in.
func NewLineItem(desc string, quantity, rate decimal.Decimal) LineItem {
	li := LineItem{Description: strings.TrimSpace(desc), Quantity: quantity, Rate: rate}
	li.Amount = li.Total()
	return li
}

// ComputeTotals sums the line items and applies taxRate (a percentage).
// amount = subtotal + tax; no rounding is applied.
func ComputeTotals(items []LineItem, taxRate decimal.Decimal) Totals {
	subtotal := decimal.Zero
	for _, it := range items {
		subtotal = subtotal.Add(it.Total())
	}
	tax := subtotal.Mul(taxRate).Div(hundred)
	return Totals{Subtotal: subtotal, Tax: tax, Amount: subtotal.Add(tax)}
}

// ApplyTotals recomputes every line amount and the invoice totals.
func (i *Invoice) ApplyTotals(taxRate decimal.Decimal) {
	for n := range i.Items {
		i.Items[n].Amount = i.Items[n].Total()
	}
	t := ComputeTotals(i.Items, taxRate)
	i.Subtotal, i.Tax, i.Amount = t.Subtotal, t.Tax, t.Amount
}

// IsPaid reports whether the invoice counts towards earnings.
func (i Invoice) IsPaid() bool { return i.Status == StatusPaid }

var trailingNumber = regexp.MustCompile(`(\d+)$`)

// NextInvoiceID returns prefix-NNN where NNN is one more than the highest
// trailing number among ids carrying the same prefix.
func NextInvoiceID(prefix string, ids []string) string {
	prefix = strings.TrimSpace(prefix)
	next := 1
	for _, id := range ids {
		if prefix != "" && !strings.HasPrefix(id, prefix) {
			continue
		}
		m := trailingNumber.FindStringSubmatch(id)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if n >= next {
			next = n + 1
		}
	}
	if prefix == "" {
		return fmt.Sprintf("%03d", next)
	}
	return fmt.Sprintf("%s-%03d", prefix, next)
}

// DefaultPaymentTerms applies to clients saved without terms.
const DefaultPaymentTerms = "net30"
