package services

import (
	"testing"
	"time"

	"fatture/internal/core"
)

func TestTermsFor(t *testing.T) {
	tests := []struct {
		name    string
		terms   string
		want    string
		wantErr bool
	}{
		{name: "registered net", terms: "net30", want: "Net 30"},
		{name: "case and spaces", terms: "  NET15 ", want: "Net 15"},
		{name: "unregistered net", terms: "net90", want: "Net 90"},
		{name: "end of month", terms: "eom", want: "End of month"},
		{name: "receipt", terms: "due_on_receipt", want: "Due on receipt"},
		{name: "unknown", terms: "whenever", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := TermsFor(tt.terms)
			if (err != nil) != tt.wantErr {
				t.Fatalf("TermsFor(%q) error = %v, wantErr %v", tt.terms, err, tt.wantErr)
			}
			if err == nil && s.Label() != tt.want {
				t.Errorf("TermsFor(%q).Label() = %q, want %q", tt.terms, s.Label(), tt.want)
			}
		})
	}
}

func TestDueDate(t *testing.T) {
	tests := []struct {
		issued core.Date
		terms  string
		want   core.Date
	}{
		{"2025-01-15", "net30", "2025-02-14"},
		{"2025-01-15", "net15", "2025-01-30"},
		{"2025-01-15", "due_on_receipt", "2025-01-15"},
		{"2025-02-10", "eom", "2025-02-28"},
		{"2024-02-10", "eom", "2024-02-29"},
		{"2025-01-15", "bogus", "2025-02-14"},
		{"not-a-date", "net30", "not-a-date"},
	}

	for _, tt := range tests {
		t.Run(string(tt.issued)+"_"+tt.terms, func(t *testing.T) {
			if got := DueDate(tt.issued, tt.terms); got != tt.want {
				t.Errorf("DueDate(%q, %q) = %q, want %q", tt.issued, tt.terms, got, tt.want)
			}
		})
	}
}

func TestDaysUntilDue(t *testing.T) {
	today := time.Date(2025, 3, 10, 15, 30, 0, 0, time.UTC)

	tests := []struct {
		name   string
		inv    core.Invoice
		want   int
		wantOK bool
	}{
		{name: "due later", inv: core.Invoice{Status: core.StatusPending, DueDate: "2025-03-15"}, want: 5, wantOK: true},
		{name: "due today", inv: core.Invoice{Status: core.StatusPending, DueDate: "2025-03-10"}, want: 0, wantOK: true},
		{name: "past due", inv: core.Invoice{Status: core.StatusOverdue, DueDate: "2025-03-01"}, want: -9, wantOK: true},
		{name: "paid", inv: core.Invoice{Status: core.StatusPaid, DueDate: "2025-03-01"}},
		{name: "no due date", inv: core.Invoice{Status: core.StatusDraft}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := DaysUntilDue(tt.inv, today)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("DaysUntilDue() = %d, %v; want %d, %v", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestRegisterTerms(t *testing.T) {
	RegisterTerms("net3", NetDays{Days: 3})
	defer delete(termsStrategies, "net3")

	if got := DueDate("2025-01-30", "net3"); got != "2025-02-02" {
		t.Errorf("DueDate with registered terms = %q, want 2025-02-02", got)
	}
}
