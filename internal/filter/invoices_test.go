package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fatture/internal/core"
)

func invoices() []core.Invoice {
	return []core.Invoice{
		{ID: "INV-001", ClientID: "c1", ClientName: "Acme", Amount: dec("1180"), DateIssued: "2025-01-10", Status: core.StatusPaid},
		{ID: "INV-002", ClientID: "c2", ClientName: "Globex", Amount: dec("500"), DateIssued: "2025-02-10", Status: core.StatusPending},
		{ID: "INV-003", ClientID: "c2", ClientName: "Globex", Amount: dec("2000"), DateIssued: "2025-04-02", Status: core.StatusPaid},
		{ID: "INV-004", ClientID: "c1", ClientName: "Acme", Amount: dec("300"), DateIssued: "2025-04-05", Status: core.StatusOverdue},
	}
}

func TestEarnings(t *testing.T) {
	assert.True(t, Earnings(invoices()).Equal(dec("3180")))
	assert.True(t, Outstanding(invoices()).Equal(dec("800")))

	q := EarningsBy(invoices(), Quarterly)
	require.Len(t, q, 2)
	assert.Equal(t, "2025-Q1", q[0].Period)
	assert.Equal(t, "2025-Q2", q[1].Period)
	assert.True(t, q[1].Amount.Equal(dec("2000")))
}

func TestInvoicesInRange(t *testing.T) {
	got := InvoicesInRange(invoices(), "2025-02-01", "2025-04-02")
	require.Len(t, got, 2)
	assert.Equal(t, "INV-002", got[0].ID)
	assert.Equal(t, "INV-003", got[1].ID)
}

func TestTopClient(t *testing.T) {
	top, ok := TopClient(invoices())
	require.True(t, ok)
	assert.Equal(t, "c2", top.ClientID)
	assert.True(t, top.Amount.Equal(dec("2000")))

	_, ok = TopClient(nil)
	assert.False(t, ok)
}

func TestClientTotals(t *testing.T) {
	totals := ClientTotals(invoices())
	assert.Equal(t, 2, totals["c1"].Invoices)
	assert.True(t, totals["c1"].Paid.Equal(dec("1180")))
	assert.Equal(t, 2, totals["c2"].Invoices)
	assert.True(t, totals["c2"].Paid.Equal(dec("2000")))
}

func TestBalance(t *testing.T) {
	earned, spent := Balance(invoices(), sample(), "")
	assert.True(t, earned.Equal(dec("3180")))
	assert.True(t, spent.Equal(dec("180")))

	earned, spent = Balance(invoices(), sample(), "2025-02-01")
	assert.True(t, earned.Equal(dec("2000")))
	assert.True(t, spent.Equal(dec("30")))
}

func TestSummarize(t *testing.T) {
	a := Summarize(sample())
	assert.Equal(t, 3, a.Count)
	assert.True(t, a.Total.Equal(dec("180")))
	assert.True(t, a.Average.Equal(dec("60")))
	assert.True(t, a.Business.Equal(dec("50")))
	assert.True(t, a.HasData)
	assert.Equal(t, "food", a.Top.Category)
	assert.Len(t, a.ByMonth, 2)

	empty := Summarize(nil)
	assert.False(t, empty.HasData)
	assert.Equal(t, NoData, empty.Top)
	assert.True(t, empty.Average.IsZero())
	assert.True(t, empty.Share(NoData).IsZero())
}

func TestInvoicesByStatus(t *testing.T) {
	all := invoices()

	paid := InvoicesByStatus(all, core.StatusPaid)
	require.Len(t, paid, 2)
	assert.Equal(t, "INV-001", paid[0].ID)
	assert.Equal(t, "INV-003", paid[1].ID)

	assert.Len(t, InvoicesByStatus(all, ""), len(all))
	assert.Empty(t, InvoicesByStatus(all, core.StatusDraft))

	counts := StatusCounts(all)
	assert.Equal(t, 2, counts[core.StatusPaid])
	assert.Equal(t, 1, counts[core.StatusPending])
	assert.Equal(t, 1, counts[core.StatusOverdue])
	assert.Zero(t, counts[core.StatusDraft])
}

func TestParseStatus(t *testing.T) {
	tests := []struct {
		in   string
		want core.InvoiceStatus
	}{
		{"draft", core.StatusDraft},
		{"Pending", core.StatusPending},
		{" PAID ", core.StatusPaid},
		{"overdue", core.StatusOverdue},
		{"all", ""},
		{"", ""},
		{"archived", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseStatus(tt.in))
		})
	}
}
