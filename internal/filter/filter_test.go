package filter

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"fatture/internal/core"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func sample() []core.Expense {
	return []core.Expense{
		{ID: "e1", Amount: dec("100"), Date: "2025-01-15", CategoryID: "food", Category: "food", PaymentMethod: core.PaymentCash},
		{ID: "e2", Amount: dec("50"), Date: "2025-01-20", CategoryID: "food", Category: "food", PaymentMethod: core.PaymentUPI, IsBusinessExpense: true},
		{ID: "e3", Amount: dec("30"), Date: "2025-02-01", CategoryID: "transport", Category: "transport", PaymentMethod: core.PaymentCard},
	}
}

func ids(records []core.Expense) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

func TestRecords_ZeroStateIsIdentity(t *testing.T) {
	in := sample()
	assert.True(t, State{}.IsZero())
	assert.True(t, State{Category: "all", PaymentMethod: "all"}.IsZero())
	assert.Equal(t, in, Records(in, State{}))
}

func TestRecords_DateRange(t *testing.T) {
	got := Records(sample(), State{From: "2025-01-01", To: "2025-01-31"})
	assert.Equal(t, []string{"e1", "e2"}, ids(got))
}

func TestRecords_Predicates(t *testing.T) {
	tests := []struct {
		name  string
		state State
		want  []string
	}{
		{"category by id", State{Category: "transport"}, []string{"e3"}},
		{"payment method", State{PaymentMethod: core.PaymentUPI}, []string{"e2"}},
		{"business only", State{BusinessOnly: true}, []string{"e2"}},
		{"from only", State{From: "2025-01-16"}, []string{"e2", "e3"}},
		{"to only inclusive", State{To: "2025-01-15"}, []string{"e1"}},
		{"unparsable bound ignored", State{From: "garbage"}, []string{"e1", "e2", "e3"}},
		{"predicates compose", State{Category: "food", From: "2025-01-16", To: "2025-01-31"}, []string{"e2"}},
		{"no match", State{Category: "travel"}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ids(Records(sample(), tt.state)))
		})
	}
}

func TestRecords_DoesNotMutateInput(t *testing.T) {
	in := sample()
	before := append([]core.Expense(nil), in...)
	_ = Records(in, State{Category: "food"})
	assert.Equal(t, before, in)
}

func TestRecords_RangeExcludesUnparsableDates(t *testing.T) {
	in := append(sample(), core.Expense{ID: "bad", Amount: dec("1"), Date: "15/01/2025"})
	assert.Equal(t, []string{"e1", "e2", "e3", "bad"}, ids(Records(in, State{})))
	assert.Equal(t, []string{"e1", "e2"}, ids(Records(in, State{From: "2025-01-01", To: "2025-01-31"})))
}

func TestInRange(t *testing.T) {
	assert.True(t, InRange("2025-03-01", "", ""))
	assert.True(t, InRange("bad", "", ""))
	assert.False(t, InRange("bad", "2025-01-01", ""))
	assert.True(t, InRange("2025-03-01", "2025-03-01", "2025-03-01"))
	assert.False(t, InRange("2025-03-02", "", "2025-03-01"))
}
