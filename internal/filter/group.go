package filter

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"fatture/internal/core"
	"fatture/internal/log"
)

// Period selects the bucket size for time aggregates.
type Period string

const (
	Monthly   Period = "monthly"
	Quarterly Period = "quarterly"
	Yearly    Period = "yearly"
)

// ParsePeriod maps a query value to a Period, defaulting to Monthly.
func ParsePeriod(s string) Period {
	switch Period(s) {
	case Quarterly, Yearly:
		return Period(s)
	}
	return Monthly
}

// PeriodAmount is one time bucket: "2025-01", "2025-Q1" or "2025".
type PeriodAmount struct {
	Period string
	Amount decimal.Decimal
	Count  int
}

// CategoryAmount is one category bucket.
type CategoryAmount struct {
	Category string
	Amount   decimal.Decimal
	Count    int
}

// Uncategorized labels expenses without a category name.
const Uncategorized = "Uncategorized"

// NoData is returned by TopCategory when there is nothing to rank.
var NoData = CategoryAmount{Category: "No expenses", Amount: decimal.Zero}

// entry is the common shape grouped by period.
type entry struct {
	id     string
	date   core.Date
	amount decimal.Decimal
}

func expenseEntries(records []core.Expense) []entry {
	out := make([]entry, len(records))
	for i, r := range records {
		out[i] = entry{id: r.ID, date: r.Date, amount: r.Amount}
	}
	return out
}

func periodKey(p Period, e entry) (string, error) {
	t, err := e.date.Time()
	if err != nil {
		return "", err
	}
	switch p {
	case Quarterly:
		return fmt.Sprintf("%04d-Q%d", t.Year(), (int(t.Month())+2)/3), nil
	case Yearly:
		return fmt.Sprintf("%04d", t.Year()), nil
	default:
		return fmt.Sprintf("%04d-%02d", t.Year(), int(t.Month())), nil
	}
}

// group buckets entries by period key, skipping unparsable dates, and returns
// the buckets sorted ascending by key. Period keys are zero padded, so the
// lexical order is the chronological one.
func group(entries []entry, p Period) []PeriodAmount {
	idx := make(map[string]int)
	out := make([]PeriodAmount, 0)
	for _, e := range entries {
		key, err := periodKey(p, e)
		if err != nil {
			logSkip(e, err)
			continue
		}
		i, ok := idx[key]
		if !ok {
			i = len(out)
			idx[key] = i
			out = append(out, PeriodAmount{Period: key, Amount: decimal.Zero})
		}
		out[i].Amount = out[i].Amount.Add(e.amount)
		out[i].Count++
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Period < out[b].Period })
	return out
}

func logSkip(e entry, err error) {
	log.Default().WithComponent(log.ComponentFilter).Warn("Record skipped in aggregation",
		log.FieldRecordID, e.id,
		log.FieldDate, string(e.date),
		log.FieldError, err.Error())
}

// ByPeriod groups expenses by the given period.
func ByPeriod(records []core.Expense, p Period) []PeriodAmount {
	return group(expenseEntries(records), p)
}

// ByMonth groups expenses by calendar year-month.
func ByMonth(records []core.Expense) []PeriodAmount { return ByPeriod(records, Monthly) }

// ByQuarter groups expenses by YYYY-Qn.
func ByQuarter(records []core.Expense) []PeriodAmount { return ByPeriod(records, Quarterly) }

// ByYear groups expenses by YYYY.
func ByYear(records []core.Expense) []PeriodAmount { return ByPeriod(records, Yearly) }

// ByCategory groups expenses by category name, sorted by amount descending.
// Ties keep the order in which categories were first encountered.
func ByCategory(records []core.Expense) []CategoryAmount {
	idx := make(map[string]int)
	out := make([]CategoryAmount, 0)
	for _, r := range records {
		name := r.Category
		if name == "" {
			name = Uncategorized
		}
		i, ok := idx[name]
		if !ok {
			i = len(out)
			idx[name] = i
			out = append(out, CategoryAmount{Category: name, Amount: decimal.Zero})
		}
		out[i].Amount = out[i].Amount.Add(r.Amount)
		out[i].Count++
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Amount.GreaterThan(out[b].Amount) })
	return out
}

// TopCategory returns the highest spending category. When records is empty
// it returns NoData and false.
func TopCategory(records []core.Expense) (CategoryAmount, bool) {
	cats := ByCategory(records)
	if len(cats) == 0 {
		return NoData, false
	}
	return cats[0], true
}

// Percent returns part as a percentage of total. A zero total yields zero.
func Percent(part, total decimal.Decimal) decimal.Decimal {
	if total.IsZero() {
		return decimal.Zero
	}
	return part.Div(total).Mul(decimal.NewFromInt(100))
}

// Total sums the amounts of records.
func Total(records []core.Expense) decimal.Decimal {
	total := decimal.Zero
	for _, r := range records {
		total = total.Add(r.Amount)
	}
	return total
}
