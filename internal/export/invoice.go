package export

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"html/template"
	"io"
	"strings"

	"github.com/shopspring/decimal"

	"fatture/internal/core"
)

//go:embed invoice.html
var invoiceLayout string

var invoiceTemplate = template.Must(template.New("invoice").Funcs(template.FuncMap{
	"lines": func(s string) []string { return strings.Split(strings.TrimSpace(s), "\n") },
}).Parse(invoiceLayout))

// ErrEmptyDocument is returned when a renderer produced no bytes.
var ErrEmptyDocument = errors.New("rendered document is empty")

// PDFRenderer turns a complete HTML document into PDF bytes.
type PDFRenderer interface {
	RenderPDF(ctx context.Context, html string) ([]byte, error)
}

type invoiceDoc struct {
	Invoice  core.Invoice
	Settings core.Settings
	Money    func(decimal.Decimal) string
	Title    string
}

// InvoiceHTML writes the printable invoice: the profile of settings as the
// issuer, the line items with their totals and the bank details to pay into.
// The output depends on nothing but its arguments.
func InvoiceHTML(w io.Writer, inv core.Invoice, settings core.Settings) error {
	doc := invoiceDoc{
		Invoice:  inv,
		Settings: settings,
		Money:    core.NewFormatter(settings.Currency).Format,
		Title:    "Invoice " + inv.ID,
	}
	if err := invoiceTemplate.Execute(w, doc); err != nil {
		return fmt.Errorf("render invoice %s: %w", inv.ID, err)
	}
	return nil
}

// InvoicePDF renders inv with InvoiceHTML and prints it through r.
func InvoicePDF(ctx context.Context, r PDFRenderer, inv core.Invoice, settings core.Settings) ([]byte, error) {
	var buf bytes.Buffer
	if err := InvoiceHTML(&buf, inv, settings); err != nil {
		return nil, err
	}
	data, err := r.RenderPDF(ctx, buf.String())
	if err != nil {
		return nil, fmt.Errorf("print invoice %s: %w", inv.ID, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("print invoice %s: %w", inv.ID, ErrEmptyDocument)
	}
	return data, nil
}

// InvoiceFilename names the downloaded document after the invoice number.
func InvoiceFilename(inv core.Invoice) string {
	id := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '-'
	}, inv.ID)
	return "invoice-" + id + ".pdf"
}
