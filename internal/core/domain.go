package core

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const DateLayout = "2006-01-02"

const (
	StatusDraft     InvoiceStatus = "Draft"
	StatusPending   InvoiceStatus = "Pending"
	StatusPaid      InvoiceStatus = "Paid"
	StatusOverdue   InvoiceStatus = "Overdue"
	StatusCancelled InvoiceStatus = "Cancelled"
)

const (
	PaymentCash         PaymentMethod = "cash"
	PaymentUPI          PaymentMethod = "upi"
	PaymentCard         PaymentMethod = "card"
	PaymentNetBanking   PaymentMethod = "net_banking"
	PaymentBankTransfer PaymentMethod = "bank_transfer"
	PaymentWallet       PaymentMethod = "wallet"
	PaymentCheque       PaymentMethod = "cheque"
	PaymentOther        PaymentMethod = "other"
)

type (
	InvoiceStatus string

	PaymentMethod string

	// Date is a calendar date as stored by the table store (YYYY-MM-DD).
	// It is kept verbatim so that records with malformed dates still load.
	Date string

	Expense struct {
		ID                string
		Amount            decimal.Decimal
		Description       string `validate:"required,max=200"`
		CategoryID        string
		Category          string
		Date              Date `validate:"required"`
		PaymentMethod     PaymentMethod
		VendorName        string `validate:"max=120"`
		ReceiptNumber     string `validate:"max=60"`
		Notes             string `validate:"max=1000"`
		Tags              []string
		IsBusinessExpense bool
		TaxDeductible     bool
	}

	Category struct {
		ID          string
		Name        string `validate:"required,max=60"`
		Description string
		Icon        string
		Color       string `validate:"omitempty,hexcolor"`
		IsDefault   bool
	}

	LineItem struct {
		Description string
		Quantity    decimal.Decimal
		Rate        decimal.Decimal
		Amount      decimal.Decimal
	}

	Invoice struct {
		ID         string `validate:"required"`
		ClientID   string `validate:"required"`
		ClientName string
		Subtotal   decimal.Decimal
		Tax        decimal.Decimal
		Amount     decimal.Decimal
		DateIssued Date
		DueDate    Date
		Status     InvoiceStatus
		Items      []LineItem
	}

	Client struct {
		ID            string
		Name          string `validate:"required,max=120"`
		Email         string `validate:"required,email"`
		Phone         string
		Address       string
		PaymentTerms  string
		ContactName   string
		Company       string
		TotalInvoices int
		TotalAmount   decimal.Decimal
	}

	Settings struct {
		ID              string
		Currency        string `validate:"required,len=3"`
		TaxRate         decimal.Decimal
		InvoicePrefix   string `validate:"required,max=20"`
		ProfileName     string `validate:"required"`
		ProfileEmail    string `validate:"required,email"`
		ProfilePhone    string
		ProfileAddress  string
		ProfileGSTIN    string
		BankAccountName string
		BankName        string
		BankAccount     string
		BankBranch      string
		BankIFSC        string
		BankSWIFT       string
		AccountType     string
	}

	// BalanceSummary is the persisted running balance. TrackingSince marks the
	// start of the current tracking window; records dated before it are not
	// counted towards the balance but stay available to analytics.
	BalanceSummary struct {
		ID             string
		TotalEarnings  decimal.Decimal
		TotalExpenses  decimal.Decimal
		CurrentBalance decimal.Decimal
		TrackingSince  Date
		CalculatedAt   time.Time
	}
)

func (e Expense) RecordID() string  { return e.ID }
func (c Category) RecordID() string { return c.ID }
func (i Invoice) RecordID() string  { return i.ID }
func (c Client) RecordID() string   { return c.ID }

func (s Settings) RecordID() string       { return s.ID }
func (b BalanceSummary) RecordID() string { return b.ID }

// Time parses the date. Callers that aggregate must treat an error as "skip".
func (d Date) Time() (time.Time, error) {
	return time.Parse(DateLayout, strings.TrimSpace(string(d)))
}

// Valid reports whether the date parses.
func (d Date) Valid() bool {
	_, err := d.Time()
	return err == nil
}

func (d Date) String() string { return string(d) }

// DateOf formats t as a Date.
func DateOf(t time.Time) Date {
	return Date(t.Format(DateLayout))
}

// Today returns the current local date.
func Today() Date {
	return DateOf(time.Now())
}

// Valid reports whether s is one of the known invoice statuses.
func (s InvoiceStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusPending, StatusPaid, StatusOverdue, StatusCancelled:
		return true
	}
	return false
}

// InvoiceStatuses lists statuses in the order the UI offers them.
func InvoiceStatuses() []InvoiceStatus {
	return []InvoiceStatus{StatusDraft, StatusPending, StatusPaid, StatusOverdue, StatusCancelled}
}

// PaymentMethodOption is a select option for the expense form.
type PaymentMethodOption struct {
	Value PaymentMethod
	Label string
	Icon  string
}

// PaymentMethods returns the supported payment methods.
func PaymentMethods() []PaymentMethodOption {
	return []PaymentMethodOption{
		{PaymentCash, "Cash", "💸"},
		{PaymentUPI, "UPI", "📱"},
		{PaymentCard, "Debit/Credit Card", "💳"},
		{PaymentNetBanking, "Net Banking", "🏦"},
		{PaymentBankTransfer, "Bank Transfer", "🔄"},
		{PaymentWallet, "Digital Wallet", "📲"},
		{PaymentCheque, "Cheque", "📄"},
		{PaymentOther, "Other", "🔗"},
	}
}

// Valid reports whether p is a known payment method.
func (p PaymentMethod) Valid() bool {
	for _, o := range PaymentMethods() {
		if o.Value == p {
			return true
		}
	}
	return false
}

// DefaultSettings mirrors the values a fresh installation starts with.
func DefaultSettings() Settings {
	return Settings{
		ID:            "default",
		Currency:      "INR",
		TaxRate:       decimal.Zero,
		InvoicePrefix: "INV",
		ProfileName:   "Freelancer",
		ProfileEmail:  "billing@example.com",
		AccountType:   "Current Account",
	}
}

// DefaultCategories seeds the expense category table.
func DefaultCategories() []Category {
	return []Category{
		{ID: "office", Name: "Office Supplies", Icon: "🖇️", Color: "#3B82F6", IsDefault: true},
		{ID: "software", Name: "Software", Icon: "💻", Color: "#8B5CF6", IsDefault: true},
		{ID: "travel", Name: "Travel", Icon: "✈️", Color: "#F59E0B", IsDefault: true},
		{ID: "food", Name: "Food", Icon: "🍽️", Color: "#EF4444", IsDefault: true},
		{ID: "utilities", Name: "Utilities", Icon: "💡", Color: "#10B981", IsDefault: true},
		{ID: "other", Name: "Other", Icon: "💰", Color: "#6B7280", IsDefault: true},
	}
}
