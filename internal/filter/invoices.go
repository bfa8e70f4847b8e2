package filter

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"fatture/internal/core"
)

// ClientAmount is the paid revenue attributed to one client.
type ClientAmount struct {
	ClientID   string
	ClientName string
	Amount     decimal.Decimal
	Count      int
}

// PaidInvoices returns the invoices with status Paid, in input order.
func PaidInvoices(invoices []core.Invoice) []core.Invoice {
	out := make([]core.Invoice, 0, len(invoices))
	for _, inv := range invoices {
		if inv.IsPaid() {
			out = append(out, inv)
		}
	}
	return out
}

// InvoicesInRange returns invoices issued within [from, to].
func InvoicesInRange(invoices []core.Invoice, from, to core.Date) []core.Invoice {
	out := make([]core.Invoice, 0, len(invoices))
	for _, inv := range invoices {
		if InRange(inv.DateIssued, from, to) {
			out = append(out, inv)
		}
	}
	return out
}

// ParseStatus maps a tab value to an invoice status, case-insensitively.
// Anything else, "all" included, selects every status and yields "".
func ParseStatus(s string) core.InvoiceStatus {
	for _, st := range core.InvoiceStatuses() {
		if strings.EqualFold(strings.TrimSpace(s), string(st)) {
			return st
		}
	}
	return ""
}

// InvoicesByStatus returns the invoices with status, in input order. An
// empty status keeps them all.
func InvoicesByStatus(invoices []core.Invoice, status core.InvoiceStatus) []core.Invoice {
	if status == "" {
		return append([]core.Invoice(nil), invoices...)
	}
	out := make([]core.Invoice, 0, len(invoices))
	for _, inv := range invoices {
		if inv.Status == status {
			out = append(out, inv)
		}
	}
	return out
}

// StatusCounts counts invoices per status.
func StatusCounts(invoices []core.Invoice) map[core.InvoiceStatus]int {
	out := make(map[core.InvoiceStatus]int, len(core.InvoiceStatuses()))
	for _, inv := range invoices {
		out[inv.Status]++
	}
	return out
}

// EarningsBy groups paid invoice amounts by issue date.
func EarningsBy(invoices []core.Invoice, p Period) []PeriodAmount {
	paid := PaidInvoices(invoices)
	entries := make([]entry, len(paid))
	for i, inv := range paid {
		entries[i] = entry{id: inv.ID, date: inv.DateIssued, amount: inv.Amount}
	}
	return group(entries, p)
}

// Earnings sums paid invoice amounts.
func Earnings(invoices []core.Invoice) decimal.Decimal {
	total := decimal.Zero
	for _, inv := range invoices {
		if inv.IsPaid() {
			total = total.Add(inv.Amount)
		}
	}
	return total
}

// Outstanding sums invoices that are neither paid nor cancelled nor drafts.
func Outstanding(invoices []core.Invoice) decimal.Decimal {
	total := decimal.Zero
	for _, inv := range invoices {
		if inv.Status == core.StatusPending || inv.Status == core.StatusOverdue {
			total = total.Add(inv.Amount)
		}
	}
	return total
}

// ByClient groups paid revenue by client, highest first, stable for ties.
func ByClient(invoices []core.Invoice) []ClientAmount {
	idx := make(map[string]int)
	out := make([]ClientAmount, 0)
	for _, inv := range PaidInvoices(invoices) {
		i, ok := idx[inv.ClientID]
		if !ok {
			i = len(out)
			idx[inv.ClientID] = i
			out = append(out, ClientAmount{ClientID: inv.ClientID, ClientName: inv.ClientName, Amount: decimal.Zero})
		}
		out[i].Amount = out[i].Amount.Add(inv.Amount)
		out[i].Count++
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Amount.GreaterThan(out[b].Amount) })
	return out
}

// TopClient returns the client with the highest paid revenue.
func TopClient(invoices []core.Invoice) (ClientAmount, bool) {
	clients := ByClient(invoices)
	if len(clients) == 0 {
		return ClientAmount{Amount: decimal.Zero}, false
	}
	return clients[0], true
}

// ClientTotal is the derived invoice summary of one client.
type ClientTotal struct {
	Invoices int
	Paid     decimal.Decimal
}

// ClientTotals counts every invoice per client and sums the paid ones.
func ClientTotals(invoices []core.Invoice) map[string]ClientTotal {
	out := make(map[string]ClientTotal)
	for _, inv := range invoices {
		t, ok := out[inv.ClientID]
		if !ok {
			t.Paid = decimal.Zero
		}
		t.Invoices++
		if inv.IsPaid() {
			t.Paid = t.Paid.Add(inv.Amount)
		}
		out[inv.ClientID] = t
	}
	return out
}

// Balance computes earnings minus expenses for records dated on or after
// since. An empty since counts everything; records with unparsable dates are
// skipped when a window is set.
func Balance(invoices []core.Invoice, expenses []core.Expense, since core.Date) (earnings, spent decimal.Decimal) {
	earnings, spent = decimal.Zero, decimal.Zero
	for _, inv := range invoices {
		if !inv.IsPaid() {
			continue
		}
		if !InRange(inv.DateIssued, since, "") {
			if !inv.DateIssued.Valid() {
				logSkip(entry{id: inv.ID, date: inv.DateIssued}, core.ErrInvalidDate)
			}
			continue
		}
		earnings = earnings.Add(inv.Amount)
	}
	for _, e := range expenses {
		if !InRange(e.Date, since, "") {
			if !e.Date.Valid() {
				logSkip(entry{id: e.ID, date: e.Date}, core.ErrInvalidDate)
			}
			continue
		}
		spent = spent.Add(e.Amount)
	}
	return earnings, spent
}
