package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"fatture/internal/core"
)

// ExpenseRow maps an expense to its persisted columns.
func ExpenseRow(e core.Expense) Row {
	return Row{
		ColumnID:              e.ID,
		"amount":              e.Amount.String(),
		"description":         e.Description,
		"category_id":         e.CategoryID,
		"category_name":       e.Category,
		"date_incurred":       string(e.Date),
		"payment_method":      string(e.PaymentMethod),
		"vendor_name":         e.VendorName,
		"receipt_number":      e.ReceiptNumber,
		"notes":               e.Notes,
		"tags":                strings.Join(e.Tags, ","),
		"is_business_expense": e.IsBusinessExpense,
		"tax_deductible":      e.TaxDeductible,
	}
}

// ExpenseFromRow is the inverse of ExpenseRow. The date is kept verbatim even
// when it does not parse.
func ExpenseFromRow(r Row) (core.Expense, error) {
	amount, err := decimalOf(r["amount"])
	if err != nil {
		return core.Expense{}, fmt.Errorf("expense %s amount: %w", r.ID(), err)
	}
	return core.Expense{
		ID:                r.ID(),
		Amount:            amount,
		Description:       stringOf(r["description"]),
		CategoryID:        stringOf(r["category_id"]),
		Category:          stringOf(r["category_name"]),
		Date:              core.Date(stringOf(r["date_incurred"])),
		PaymentMethod:     core.PaymentMethod(stringOf(r["payment_method"])),
		VendorName:        stringOf(r["vendor_name"]),
		ReceiptNumber:     stringOf(r["receipt_number"]),
		Notes:             stringOf(r["notes"]),
		Tags:              splitTags(stringOf(r["tags"])),
		IsBusinessExpense: boolOf(r["is_business_expense"]),
		TaxDeductible:     boolOf(r["tax_deductible"]),
	}, nil
}

// CategoryRow maps an expense category.
func CategoryRow(c core.Category) Row {
	return Row{
		ColumnID:      c.ID,
		"name":        c.Name,
		"description": c.Description,
		"icon":        c.Icon,
		"color":       c.Color,
		"is_default":  c.IsDefault,
	}
}

func CategoryFromRow(r Row) (core.Category, error) {
	return core.Category{
		ID:          r.ID(),
		Name:        stringOf(r["name"]),
		Description: stringOf(r["description"]),
		Icon:        stringOf(r["icon"]),
		Color:       stringOf(r["color"]),
		IsDefault:   boolOf(r["is_default"]),
	}, nil
}

type lineItemDoc struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	Rate        decimal.Decimal `json:"rate"`
	Amount      decimal.Decimal `json:"amount"`
}

// InvoiceRow maps an invoice. Line items are stored as a JSON document.
func InvoiceRow(inv core.Invoice) (Row, error) {
	docs := make([]lineItemDoc, len(inv.Items))
	for i, it := range inv.Items {
		docs[i] = lineItemDoc{Description: it.Description, Quantity: it.Quantity, Rate: it.Rate, Amount: it.Amount}
	}
	items, err := json.Marshal(docs)
	if err != nil {
		return nil, fmt.Errorf("encode line items: %w", err)
	}
	return Row{
		ColumnID:      inv.ID,
		"client_id":   inv.ClientID,
		"client_name": inv.ClientName,
		"subtotal":    inv.Subtotal.String(),
		"tax":         inv.Tax.String(),
		"amount":      inv.Amount.String(),
		"date_issued": string(inv.DateIssued),
		"due_date":    string(inv.DueDate),
		"status":      string(inv.Status),
		"items":       string(items),
	}, nil
}

func InvoiceFromRow(r Row) (core.Invoice, error) {
	inv := core.Invoice{
		ID:         r.ID(),
		ClientID:   stringOf(r["client_id"]),
		ClientName: stringOf(r["client_name"]),
		DateIssued: core.Date(stringOf(r["date_issued"])),
		DueDate:    core.Date(stringOf(r["due_date"])),
		Status:     core.InvoiceStatus(stringOf(r["status"])),
	}
	var err error
	if inv.Subtotal, err = decimalOf(r["subtotal"]); err != nil {
		return core.Invoice{}, fmt.Errorf("invoice %s subtotal: %w", inv.ID, err)
	}
	if inv.Tax, err = decimalOf(r["tax"]); err != nil {
		return core.Invoice{}, fmt.Errorf("invoice %s tax: %w", inv.ID, err)
	}
	if inv.Amount, err = decimalOf(r["amount"]); err != nil {
		return core.Invoice{}, fmt.Errorf("invoice %s amount: %w", inv.ID, err)
	}
	if inv.Items, err = itemsOf(r["items"]); err != nil {
		return core.Invoice{}, fmt.Errorf("invoice %s items: %w", inv.ID, err)
	}
	return inv, nil
}

func itemsOf(v any) ([]core.LineItem, error) {
	var raw []byte
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		if strings.TrimSpace(t) == "" {
			return nil, nil
		}
		raw = []byte(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	var docs []lineItemDoc
	if err := json.Unmarshal(raw, &docs); err != nil {
		return nil, err
	}
	items := make([]core.LineItem, len(docs))
	for i, d := range docs {
		items[i] = core.LineItem{Description: d.Description, Quantity: d.Quantity, Rate: d.Rate, Amount: d.Amount}
	}
	return items, nil
}

// ClientRow maps a client including its derived totals.
func ClientRow(c core.Client) Row {
	return Row{
		ColumnID:         c.ID,
		"name":           c.Name,
		"email":          c.Email,
		"phone":          c.Phone,
		"address":        c.Address,
		"payment_terms":  c.PaymentTerms,
		"contact_name":   c.ContactName,
		"company":        c.Company,
		"total_invoices": c.TotalInvoices,
		"total_amount":   c.TotalAmount.String(),
	}
}

func ClientFromRow(r Row) (core.Client, error) {
	total, err := decimalOf(r["total_amount"])
	if err != nil {
		return core.Client{}, fmt.Errorf("client %s total_amount: %w", r.ID(), err)
	}
	return core.Client{
		ID:            r.ID(),
		Name:          stringOf(r["name"]),
		Email:         stringOf(r["email"]),
		Phone:         stringOf(r["phone"]),
		Address:       stringOf(r["address"]),
		PaymentTerms:  stringOf(r["payment_terms"]),
		ContactName:   stringOf(r["contact_name"]),
		Company:       stringOf(r["company"]),
		TotalInvoices: intOf(r["total_invoices"]),
		TotalAmount:   total,
	}, nil
}

// SettingsRow maps the single settings record.
func SettingsRow(s core.Settings) Row {
	return Row{
		ColumnID:            s.ID,
		"currency":          s.Currency,
		"tax_rate":          s.TaxRate.String(),
		"invoice_prefix":    s.InvoicePrefix,
		"profile_name":      s.ProfileName,
		"profile_email":     s.ProfileEmail,
		"profile_phone":     s.ProfilePhone,
		"profile_address":   s.ProfileAddress,
		"profile_gstin":     s.ProfileGSTIN,
		"bank_account_name": s.BankAccountName,
		"bank_name":         s.BankName,
		"bank_account":      s.BankAccount,
		"bank_branch":       s.BankBranch,
		"bank_ifsc":         s.BankIFSC,
		"bank_swift":        s.BankSWIFT,
		"account_type":      s.AccountType,
	}
}

func SettingsFromRow(r Row) (core.Settings, error) {
	rate, err := decimalOf(r["tax_rate"])
	if err != nil {
		return core.Settings{}, fmt.Errorf("settings tax_rate: %w", err)
	}
	return core.Settings{
		ID:              r.ID(),
		Currency:        stringOf(r["currency"]),
		TaxRate:         rate,
		InvoicePrefix:   stringOf(r["invoice_prefix"]),
		ProfileName:     stringOf(r["profile_name"]),
		ProfileEmail:    stringOf(r["profile_email"]),
		ProfilePhone:    stringOf(r["profile_phone"]),
		ProfileAddress:  stringOf(r["profile_address"]),
		ProfileGSTIN:    stringOf(r["profile_gstin"]),
		BankAccountName: stringOf(r["bank_account_name"]),
		BankName:        stringOf(r["bank_name"]),
		BankAccount:     stringOf(r["bank_account"]),
		BankBranch:      stringOf(r["bank_branch"]),
		BankIFSC:        stringOf(r["bank_ifsc"]),
		BankSWIFT:       stringOf(r["bank_swift"]),
		AccountType:     stringOf(r["account_type"]),
	}, nil
}

// BalanceRow maps the persisted balance summary.
func BalanceRow(b core.BalanceSummary) Row {
	calculated := ""
	if !b.CalculatedAt.IsZero() {
		calculated = b.CalculatedAt.UTC().Format(time.RFC3339)
	}
	return Row{
		ColumnID:          b.ID,
		"total_earnings":  b.TotalEarnings.String(),
		"total_expenses":  b.TotalExpenses.String(),
		"current_balance": b.CurrentBalance.String(),
		"tracking_since":  string(b.TrackingSince),
		"last_updated":    calculated,
	}
}

func BalanceFromRow(r Row) (core.BalanceSummary, error) {
	b := core.BalanceSummary{
		ID:            r.ID(),
		TrackingSince: core.Date(stringOf(r["tracking_since"])),
	}
	var err error
	if b.TotalEarnings, err = decimalOf(r["total_earnings"]); err != nil {
		return core.BalanceSummary{}, fmt.Errorf("balance total_earnings: %w", err)
	}
	if b.TotalExpenses, err = decimalOf(r["total_expenses"]); err != nil {
		return core.BalanceSummary{}, fmt.Errorf("balance total_expenses: %w", err)
	}
	if b.CurrentBalance, err = decimalOf(r["current_balance"]); err != nil {
		return core.BalanceSummary{}, fmt.Errorf("balance current_balance: %w", err)
	}
	if s := stringOf(r["last_updated"]); s != "" {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			b.CalculatedAt = t
		}
	}
	return b, nil
}

// DecodeAll decodes every row it can. Rows that fail are left out and their
// errors joined into the second return value.
func DecodeAll[T any](rows []Row, decode func(Row) (T, error)) ([]T, error) {
	out := make([]T, 0, len(rows))
	var errs []error
	for _, r := range rows {
		v, err := decode(r)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, v)
	}
	return out, errors.Join(errs...)
}

func decimalOf(v any) (decimal.Decimal, error) {
	switch t := v.(type) {
	case nil:
		return decimal.Zero, nil
	case decimal.Decimal:
		return t, nil
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return decimal.Zero, nil
		}
		return decimal.NewFromString(strings.ReplaceAll(s, ",", ""))
	case float64:
		return decimal.NewFromFloat(t), nil
	case float32:
		return decimal.NewFromFloat32(t), nil
	case int:
		return decimal.NewFromInt(int64(t)), nil
	case int64:
		return decimal.NewFromInt(t), nil
	case json.Number:
		return decimal.NewFromString(t.String())
	}
	return decimal.Zero, fmt.Errorf("unsupported numeric value %T", v)
}

func boolOf(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		return err == nil && b
	case float64:
		return t != 0
	case int:
		return t != 0
	case int64:
		return t != 0
	case json.Number:
		f, err := t.Float64()
		return err == nil && f != 0
	}
	return false
}

func intOf(v any) int {
	switch t := v.(type) {
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		return int(t)
	case json.Number:
		n, err := t.Int64()
		if err == nil {
			return int(n)
		}
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err == nil {
			return n
		}
	}
	return 0
}

func splitTags(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
