package filter

import (
	"github.com/shopspring/decimal"

	"fatture/internal/core"
)

// Analytics is the expense overview shown on the expenses and analytics pages.
type Analytics struct {
	Count         int
	Total         decimal.Decimal
	Average       decimal.Decimal
	Business      decimal.Decimal
	TaxDeductible decimal.Decimal
	Top           CategoryAmount
	HasData       bool
	ByCategory    []CategoryAmount
	ByMonth       []PeriodAmount
}

// Summarize computes the analytics of records. An empty input yields zero
// totals and the NoData top category.
func Summarize(records []core.Expense) Analytics {
	a := Analytics{
		Count:         len(records),
		Total:         decimal.Zero,
		Average:       decimal.Zero,
		Business:      decimal.Zero,
		TaxDeductible: decimal.Zero,
	}
	for _, r := range records {
		a.Total = a.Total.Add(r.Amount)
		if r.IsBusinessExpense {
			a.Business = a.Business.Add(r.Amount)
		}
		if r.TaxDeductible {
			a.TaxDeductible = a.TaxDeductible.Add(r.Amount)
		}
	}
	if a.Count > 0 {
		a.Average = a.Total.Div(decimal.NewFromInt(int64(a.Count)))
	}
	a.ByCategory = ByCategory(records)
	a.ByMonth = ByMonth(records)
	a.Top, a.HasData = NoData, false
	if len(a.ByCategory) > 0 {
		a.Top, a.HasData = a.ByCategory[0], true
	}
	return a
}

// Share returns the category's percentage of the analytics total.
func (a Analytics) Share(c CategoryAmount) decimal.Decimal {
	return Percent(c.Amount, a.Total)
}
