// Package services holds the application store and the business rules that
// span more than one table.
//
// This file implements the Strategy Pattern for invoice payment terms. Each
// terms keyword has its own strategy deciding the due date of an invoice.
package services

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"fatture/internal/core"
)

// TermsStrategy computes when an invoice issued on a date falls due.
type TermsStrategy interface {
	Due(issued time.Time) time.Time
	Label() string
}

// DueOnReceipt is due the day it is issued.
type DueOnReceipt struct{}

func (DueOnReceipt) Due(issued time.Time) time.Time { return issued }
func (DueOnReceipt) Label() string                  { return "Due on receipt" }

// NetDays is due a fixed number of days after issue.
type NetDays struct{ Days int }

func (n NetDays) Due(issued time.Time) time.Time { return issued.AddDate(0, 0, n.Days) }
func (n NetDays) Label() string                  { return fmt.Sprintf("Net %d", n.Days) }

// EndOfMonth is due on the last day of the month of issue.
type EndOfMonth struct{}

func (EndOfMonth) Due(issued time.Time) time.Time {
	return time.Date(issued.Year(), issued.Month()+1, 0, 0, 0, 0, 0, time.UTC)
}
func (EndOfMonth) Label() string { return "End of month" }

var termsStrategies = map[string]TermsStrategy{
	"due_on_receipt": DueOnReceipt{},
	"net7":           NetDays{Days: 7},
	"net15":          NetDays{Days: 15},
	"net30":          NetDays{Days: 30},
	"net45":          NetDays{Days: 45},
	"net60":          NetDays{Days: 60},
	"eom":            EndOfMonth{},
}

var netPattern = regexp.MustCompile(`^net(\d{1,3})$`)

// TermsFor returns the strategy for a terms keyword. Any "netN" is accepted
// even when not registered.
func TermsFor(terms string) (TermsStrategy, error) {
	key := strings.ToLower(strings.TrimSpace(terms))
	if s, ok := termsStrategies[key]; ok {
		return s, nil
	}
	if m := netPattern.FindStringSubmatch(key); m != nil {
		days, _ := strconv.Atoi(m[1])
		return NetDays{Days: days}, nil
	}
	return nil, fmt.Errorf("unknown payment terms: %s", terms)
}

// RegisterTerms adds or replaces the strategy for a terms keyword.
func RegisterTerms(terms string, s TermsStrategy) {
	termsStrategies[strings.ToLower(terms)] = s
}

// PaymentTermsOptions lists the registered keywords with their labels, in
// due order.
func PaymentTermsOptions() []struct{ Value, Label string } {
	keys := []string{"due_on_receipt", "net7", "net15", "net30", "eom", "net45", "net60"}
	out := make([]struct{ Value, Label string }, 0, len(keys))
	for _, k := range keys {
		if s, ok := termsStrategies[k]; ok {
			out = append(out, struct{ Value, Label string }{k, s.Label()})
		}
	}
	return out
}

// DueDate derives the due date of an invoice from its issue date and the
// client's terms. Unknown terms fall back to net30; an unparsable issue date
// is returned unchanged.
func DueDate(issued core.Date, terms string) core.Date {
	t, err := issued.Time()
	if err != nil {
		return issued
	}
	s, err := TermsFor(terms)
	if err != nil {
		s = termsStrategies[core.DefaultPaymentTerms]
	}
	return core.DateOf(s.Due(t))
}

// DaysUntilDue is negative once an open invoice is past its due date. The
// second result is false for invoices that are settled or have no due date.
func DaysUntilDue(inv core.Invoice, today time.Time) (int, bool) {
	if inv.Status == core.StatusPaid || inv.Status == core.StatusCancelled {
		return 0, false
	}
	due, err := inv.DueDate.Time()
	if err != nil {
		return 0, false
	}
	day := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	return int(due.Sub(day).Hours() / 24), true
}
