package core

import (
	"testing"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestComputeTotals(t *testing.T) {
	items := []LineItem{{Description: "Design", Quantity: d("2"), Rate: d("500")}}
	got := ComputeTotals(items, d("18"))
	if !got.Subtotal.Equal(d("1000")) || !got.Tax.Equal(d("180")) || !got.Amount.Equal(d("1180")) {
		t.Fatalf("unexpected totals %+v", got)
	}

	zero := ComputeTotals(nil, d("18"))
	if !zero.Amount.IsZero() {
		t.Fatalf("expected zero totals for no items, got %+v", zero)
	}
}

func TestApplyTotalsFillsLineAmounts(t *testing.T) {
	inv := Invoice{Items: []LineItem{
		{Description: "a", Quantity: d("1.5"), Rate: d("100")},
		{Description: "b", Quantity: d("3"), Rate: d("33.33")},
	}}
	inv.ApplyTotals(decimal.Zero)
	if !inv.Items[0].Amount.Equal(d("150")) || !inv.Items[1].Amount.Equal(d("99.99")) {
		t.Fatalf("line amounts not filled: %+v", inv.Items)
	}
	if !inv.Amount.Equal(inv.Subtotal.Add(inv.Tax)) {
		t.Fatalf("amount must equal subtotal + tax")
	}
}

func TestNextInvoiceID(t *testing.T) {
	cases := []struct {
		prefix string
		ids    []string
		want   string
	}{
		{"HP-2526", nil, "HP-2526-001"},
		{"HP-2526", []string{"HP-2526-001", "HP-2526-009", "HP-2526-003"}, "HP-2526-010"},
		{"HP-2526", []string{"OLD-050", "HP-2526-002"}, "HP-2526-003"},
		{"", []string{"12"}, "013"},
	}
	for _, tc := range cases {
		if got := NextInvoiceID(tc.prefix, tc.ids); got != tc.want {
			t.Fatalf("NextInvoiceID(%q, %v) = %q, want %q", tc.prefix, tc.ids, got, tc.want)
		}
	}
}
