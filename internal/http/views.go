package http

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"fatture/internal/core"
	"fatture/internal/filter"
	"fatture/internal/services"
)

// invoiceRow is an invoice as the tables show it.
type invoiceRow struct {
	core.Invoice
	DueIn   int
	HasDue  bool
	Overdue bool
}

// statusTab is one tab of the invoice table; an empty Value lists all.
type statusTab struct {
	Value  core.InvoiceStatus
	Label  string
	Count  int
	Active bool
}

func statusTabs(invoices []core.Invoice, active core.InvoiceStatus) []statusTab {
	counts := filter.StatusCounts(invoices)
	tabs := []statusTab{{Label: "All", Count: len(invoices), Active: active == ""}}
	for _, st := range []core.InvoiceStatus{core.StatusDraft, core.StatusPending, core.StatusPaid, core.StatusOverdue} {
		tabs = append(tabs, statusTab{Value: st, Label: string(st), Count: counts[st], Active: active == st})
	}
	return tabs
}

// view is the data every page template renders from. It is built from one
// consistent read of the ledger; money is formatted only here.
type view struct {
	Page  string
	Title string
	Today core.Date

	Settings core.Settings
	Balance  core.BalanceSummary
	money    *core.Formatter

	Filter   filter.State
	Period   filter.Period
	Periods  []filter.Period
	Filtered bool
	From     core.Date
	To       core.Date
	Status   core.InvoiceStatus
	Tabs     []statusTab

	Categories     []core.Category
	PaymentMethods []core.PaymentMethodOption
	Statuses       []core.InvoiceStatus
	Terms          []struct{ Value, Label string }

	Expenses      []core.Expense
	TotalExpenses int
	Analytics     filter.Analytics

	Invoices      []invoiceRow
	Listed        []invoiceRow
	Recent        []invoiceRow
	Clients       []core.Client
	NextInvoiceID string

	Earnings     decimal.Decimal
	Outstanding  decimal.Decimal
	ExpenseTotal decimal.Decimal
	Net          decimal.Decimal

	TopClient    filter.ClientAmount
	HasTopClient bool
	ByClient     []filter.ClientAmount
	// paid invoice revenue and spending of the selected range, by period
	ByPeriod         []filter.PeriodAmount
	SpendingByPeriod []filter.PeriodAmount

	// set when a form is rendered for editing an existing record
	EditExpense *core.Expense
	EditClient  *core.Client
	EditInvoice *core.Invoice
}

// Money formats an amount in the configured currency.
func (v *view) Money(d decimal.Decimal) string { return v.money.Format(d) }

// Share is a category's share of the filtered total, in percent.
func (v *view) Share(c filter.CategoryAmount) string {
	return core.Plain(v.Analytics.Share(c))
}

// PaymentLabel resolves a payment method to its display label.
func (v *view) PaymentLabel(p core.PaymentMethod) string {
	for _, o := range v.PaymentMethods {
		if o.Value == p {
			return o.Icon + " " + o.Label
		}
	}
	return string(p)
}

// ExpenseDraft is the expense the form shows: the one being edited or a
// blank one dated today.
func (v *view) ExpenseDraft() core.Expense {
	if v.EditExpense != nil {
		return *v.EditExpense
	}
	return core.Expense{Date: v.Today, PaymentMethod: core.PaymentUPI}
}

func (v *view) ClientDraft() core.Client {
	if v.EditClient != nil {
		return *v.EditClient
	}
	return core.Client{PaymentTerms: core.DefaultPaymentTerms}
}

func (v *view) InvoiceDraft() core.Invoice {
	if v.EditInvoice != nil {
		return *v.EditInvoice
	}
	return core.Invoice{ID: v.NextInvoiceID, DateIssued: v.Today, Status: core.StatusDraft}
}

// Tags joins expense tags for the form.
func (v *view) Tags(e core.Expense) string { return strings.Join(e.Tags, ", ") }

// ItemRows pads the invoice form to at least n line item rows.
func (v *view) ItemRows(n int) []core.LineItem {
	var items []core.LineItem
	if v.EditInvoice != nil {
		items = append(items, v.EditInvoice.Items...)
	}
	for len(items) < n {
		items = append(items, core.LineItem{})
	}
	return items
}

// invoiceRows decorates invoices with their due state, newest first.
func invoiceRows(invoices []core.Invoice, now time.Time) []invoiceRow {
	rows := make([]invoiceRow, len(invoices))
	for i, inv := range invoices {
		days, ok := services.DaysUntilDue(inv, now)
		rows[i] = invoiceRow{
			Invoice: inv,
			DueIn:   days,
			HasDue:  ok,
			Overdue: ok && days < 0 && (inv.Status == core.StatusPending || inv.Status == core.StatusOverdue),
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].DateIssued != rows[j].DateIssued {
			return rows[i].DateIssued > rows[j].DateIssued
		}
		return rows[i].ID > rows[j].ID
	})
	return rows
}

// buildView snapshots the ledger for one render. st is the control state of
// the page being rendered; the zero state selects everything.
func buildView(l *services.Ledger, st pageState, now time.Time) *view {
	settings := l.CurrentSettings()
	period := st.period()

	sel := st.Filter
	if st.From != "" {
		sel.From = st.From
	}
	if st.To != "" {
		sel.To = st.To
	}
	all := l.Expenses.All()
	expenses := filter.Records(all, sel)
	sort.SliceStable(expenses, func(i, j int) bool { return expenses[i].Date > expenses[j].Date })

	invoices := l.Invoices.All()
	rows := invoiceRows(invoices, now)
	recent := rows
	if len(recent) > 5 {
		recent = recent[:5]
	}
	listed := rows
	if st.Status != "" {
		listed = invoiceRows(filter.InvoicesByStatus(invoices, st.Status), now)
	}

	clients := l.Clients.All()
	sort.SliceStable(clients, func(i, j int) bool { return clients[i].Name < clients[j].Name })

	ids := make([]string, len(invoices))
	for i, inv := range invoices {
		ids[i] = inv.ID
	}

	ranged := filter.InvoicesInRange(invoices, st.From, st.To)
	top, hasTop := filter.TopClient(ranged)
	earnings := filter.Earnings(ranged)
	spent := filter.Total(filter.Records(all, filter.State{From: st.From, To: st.To}))

	return &view{
		Today:            core.DateOf(now),
		Settings:         settings,
		Balance:          l.CurrentBalance(),
		money:            core.NewFormatter(settings.Currency),
		Filter:           st.Filter,
		Period:           period,
		Periods:          []filter.Period{filter.Monthly, filter.Quarterly, filter.Yearly},
		Filtered:         !st.Filter.IsZero(),
		From:             st.From,
		To:               st.To,
		Status:           st.Status,
		Tabs:             statusTabs(invoices, st.Status),
		Categories:       l.Categories.All(),
		PaymentMethods:   core.PaymentMethods(),
		Statuses:         core.InvoiceStatuses(),
		Terms:            services.PaymentTermsOptions(),
		Expenses:         expenses,
		TotalExpenses:    len(all),
		Analytics:        filter.Summarize(expenses),
		Invoices:         rows,
		Listed:           listed,
		Recent:           recent,
		Clients:          clients,
		NextInvoiceID:    core.NextInvoiceID(settings.InvoicePrefix, ids),
		Earnings:         earnings,
		Outstanding:      filter.Outstanding(invoices),
		ExpenseTotal:     spent,
		Net:              earnings.Sub(spent),
		TopClient:        top,
		HasTopClient:     hasTop,
		ByClient:         filter.ByClient(ranged),
		ByPeriod:         filter.EarningsBy(ranged, period),
		SpendingByPeriod: filter.ByPeriod(expenses, period),
	}
}
