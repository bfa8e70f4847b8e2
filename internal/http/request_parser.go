// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing request bodies into domain
// records. HTMX posts form-encoded data, the json-enc extension and API
// clients post JSON; both are accepted.

package http

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"fatture/internal/core"
	"fatture/internal/filter"
)

const maxBodyBytes = 1 << 20

// RequestBodyParser handles different content types for request body parsing.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]any
	formData    url.Values
	parsed      bool
	err         error
}

// NewRequestBodyParser creates a parser for the given request.
// It reads the body once and stores it for subsequent parsing.
func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{contentType: r.Header.Get("Content-Type")}
	if r.Body != nil {
		p.body, p.err = io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	}
	return p
}

// Parse attempts to parse the body as JSON or form data.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true
	if p.err != nil {
		return p.err
	}
	if len(p.body) == 0 {
		p.formData = url.Values{}
		return nil
	}
	if p.body[0] == '{' {
		p.jsonData = make(map[string]any)
		if err := json.Unmarshal(p.body, &p.jsonData); err != nil {
			p.err = err
		}
		return p.err
	}
	p.formData, p.err = url.ParseQuery(string(p.body))
	return p.err
}

// Get returns a sanitized string value from the parsed data.
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			if list, ok := val.([]any); ok {
				if len(list) == 0 {
					return ""
				}
				val = list[0]
			}
			return sanitizeInput(stringValue(val))
		}
		return ""
	}
	if p.formData != nil {
		return sanitizeInput(p.formData.Get(key))
	}
	return ""
}

// GetAll returns every value of a repeated field, in order.
func (p *RequestBodyParser) GetAll(key string) []string {
	var raw []string
	switch {
	case p.jsonData != nil:
		switch v := p.jsonData[key].(type) {
		case []any:
			for _, x := range v {
				raw = append(raw, stringValue(x))
			}
		case nil:
		default:
			raw = []string{stringValue(v)}
		}
	case p.formData != nil:
		raw = p.formData[key]
	}
	out := make([]string, len(raw))
	for i, v := range raw {
		out[i] = sanitizeInput(v)
	}
	return out
}

// Bool reads a checkbox style flag.
func (p *RequestBodyParser) Bool(key string) bool {
	switch strings.ToLower(p.Get(key)) {
	case "on", "true", "1", "yes":
		return true
	}
	return false
}

// IsJSON returns true if the parsed content was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

// ContentType returns the Content-Type header value.
func (p *RequestBodyParser) ContentType() string {
	return p.contentType
}

func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case json.Number:
		return val.String()
	default:
		return ""
	}
}

// sanitizeInput removes control characters except tab and newlines and
// trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s)
}

func parseBody(r *http.Request) (*RequestBodyParser, error) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		return nil, err
	}
	return p, nil
}

func amountField(p *RequestBodyParser, field string) (decimal.Decimal, error) {
	d, err := core.ParseAmount(p.Get(field))
	if err != nil {
		return decimal.Zero, core.Invalid(field, err)
	}
	return d, nil
}

func dateField(p *RequestBodyParser, field string, required bool) (core.Date, error) {
	v := p.Get(field)
	if v == "" && !required {
		return "", nil
	}
	d := core.Date(v)
	if !d.Valid() {
		return "", core.Invalid(field, core.ErrInvalidDate)
	}
	return d, nil
}

func splitTags(s string) []string {
	var out []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// ParseExpense reads the expense form.
func ParseExpense(p *RequestBodyParser) (core.Expense, error) {
	amount, err := amountField(p, "amount")
	if err != nil {
		return core.Expense{}, err
	}
	date, err := dateField(p, "date", true)
	if err != nil {
		return core.Expense{}, err
	}
	return core.Expense{
		Amount:            amount,
		Description:       p.Get("description"),
		CategoryID:        p.Get("category_id"),
		Date:              date,
		PaymentMethod:     core.PaymentMethod(p.Get("payment_method")),
		VendorName:        p.Get("vendor_name"),
		ReceiptNumber:     p.Get("receipt_number"),
		Notes:             p.Get("notes"),
		Tags:              splitTags(p.Get("tags")),
		IsBusinessExpense: p.Bool("is_business_expense"),
		TaxDeductible:     p.Bool("tax_deductible"),
	}, nil
}

// ParseCategory reads the quick-add category form.
func ParseCategory(p *RequestBodyParser) core.Category {
	return core.Category{
		Name:        p.Get("name"),
		Description: p.Get("description"),
		Icon:        p.Get("icon"),
		Color:       p.Get("color"),
	}
}

// ParseClient reads the client form.
func ParseClient(p *RequestBodyParser) core.Client {
	return core.Client{
		Name:         p.Get("name"),
		Email:        p.Get("email"),
		Phone:        p.Get("phone"),
		Address:      p.Get("address"),
		PaymentTerms: p.Get("payment_terms"),
		ContactName:  p.Get("contact_name"),
		Company:      p.Get("company"),
	}
}

// ParseInvoice reads the invoice form. Line items arrive as parallel
// item_description, item_quantity and item_rate lists; rows left entirely
// blank are skipped.
func ParseInvoice(p *RequestBodyParser) (core.Invoice, error) {
	issued, err := dateField(p, "date_issued", false)
	if err != nil {
		return core.Invoice{}, err
	}
	due, err := dateField(p, "due_date", false)
	if err != nil {
		return core.Invoice{}, err
	}
	inv := core.Invoice{
		ID:         p.Get("id"),
		ClientID:   p.Get("client_id"),
		DateIssued: issued,
		DueDate:    due,
		Status:     core.InvoiceStatus(p.Get("status")),
	}

	descs := p.GetAll("item_description")
	qtys := p.GetAll("item_quantity")
	rates := p.GetAll("item_rate")
	for i, desc := range descs {
		qty, rate := at(qtys, i), at(rates, i)
		if desc == "" && qty == "" && rate == "" {
			continue
		}
		q, err := core.ParseAmount(qty)
		if err != nil {
			return core.Invoice{}, core.Invalid("item_quantity", err)
		}
		r, err := core.ParseAmount(rate)
		if err != nil {
			return core.Invoice{}, core.Invalid("item_rate", err)
		}
		inv.Items = append(inv.Items, core.NewLineItem(desc, q, r))
	}
	return inv, nil
}

func at(list []string, i int) string {
	if i < len(list) {
		return list[i]
	}
	return ""
}

// ParseSettings reads the settings form.
func ParseSettings(p *RequestBodyParser) (core.Settings, error) {
	rate := decimal.Zero
	if v := p.Get("tax_rate"); v != "" {
		r, err := core.ParseRate(v)
		if err != nil {
			return core.Settings{}, core.Invalid("tax_rate", err)
		}
		rate = r
	}
	return core.Settings{
		Currency:        p.Get("currency"),
		TaxRate:         rate,
		InvoicePrefix:   p.Get("invoice_prefix"),
		ProfileName:     p.Get("profile_name"),
		ProfileEmail:    p.Get("profile_email"),
		ProfilePhone:    p.Get("profile_phone"),
		ProfileAddress:  p.Get("profile_address"),
		ProfileGSTIN:    strings.ToUpper(p.Get("profile_gstin")),
		BankAccountName: p.Get("bank_account_name"),
		BankName:        p.Get("bank_name"),
		BankAccount:     p.Get("bank_account"),
		BankBranch:      p.Get("bank_branch"),
		BankIFSC:        p.Get("bank_ifsc"),
		BankSWIFT:       p.Get("bank_swift"),
		AccountType:     p.Get("account_type"),
	}, nil
}

// ParseFilter reads the expense filter panel. Invalid dates are kept as
// typed; the filter engine ignores bounds that do not parse.
func ParseFilter(p *RequestBodyParser) filter.State {
	return filter.State{
		Category:      p.Get("category"),
		PaymentMethod: core.PaymentMethod(p.Get("payment_method")),
		From:          core.Date(p.Get("from")),
		To:            core.Date(p.Get("to")),
		BusinessOnly:  p.Bool("business_only"),
	}
}
