package export

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fatture/internal/core"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func sampleInvoice() core.Invoice {
	return core.Invoice{
		ID:         "INV-007",
		ClientID:   "c1",
		ClientName: "Acme <Labs>",
		Subtotal:   d("1000"),
		Tax:        d("180"),
		Amount:     d("1180"),
		DateIssued: "2025-01-10",
		DueDate:    "2025-02-09",
		Status:     core.StatusPending,
		Items: []core.LineItem{
			{Description: "Design", Quantity: d("2"), Rate: d("500"), Amount: d("1000")},
		},
	}
}

func sampleSettings() core.Settings {
	return core.Settings{
		Currency:       "EUR",
		TaxRate:        d("18"),
		InvoicePrefix:  "INV",
		ProfileName:    "Jane Doe",
		ProfileEmail:   "jane@example.com",
		ProfileAddress: "Via Roma 1\nMilano",
		BankName:       "Banca",
		BankAccount:    "IT60X0542811101000000123456",
		BankSWIFT:      "BPMOIT22",
	}
}

type fakePDF struct {
	html string
	out  []byte
	err  error
}

func (f *fakePDF) RenderPDF(_ context.Context, html string) ([]byte, error) {
	f.html = html
	return f.out, f.err
}

func TestInvoiceHTML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, InvoiceHTML(&buf, sampleInvoice(), sampleSettings()))
	html := buf.String()

	assert.Contains(t, html, `<strong id="invoice-number">INV-007</strong>`)
	assert.Contains(t, html, "Acme &lt;Labs&gt;")
	assert.Contains(t, html, "<div>Via Roma 1</div><div>Milano</div>")
	assert.Contains(t, html, "Design")
	assert.Contains(t, html, "1,000.00")
	assert.Contains(t, html, "180.00")
	assert.Contains(t, html, "1,180.00")
	assert.Contains(t, html, "BPMOIT22")
	assert.Contains(t, html, "Due 2025-02-09")
}

func TestInvoiceHTML_WithoutBankDetails(t *testing.T) {
	s := sampleSettings()
	s.BankName, s.BankAccount = "", ""

	var buf bytes.Buffer
	require.NoError(t, InvoiceHTML(&buf, sampleInvoice(), s))
	assert.NotContains(t, buf.String(), "Payment details")
}

func TestInvoiceHTML_Deterministic(t *testing.T) {
	var a, b bytes.Buffer
	require.NoError(t, InvoiceHTML(&a, sampleInvoice(), sampleSettings()))
	require.NoError(t, InvoiceHTML(&b, sampleInvoice(), sampleSettings()))
	assert.Equal(t, a.String(), b.String())
}

func TestInvoicePDF(t *testing.T) {
	r := &fakePDF{out: []byte("%PDF-1.7")}
	data, err := InvoicePDF(context.Background(), r, sampleInvoice(), sampleSettings())
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.7"), data)
	assert.True(t, strings.HasPrefix(r.html, "<!DOCTYPE html>"))
	assert.Contains(t, r.html, "INV-007")
}

func TestInvoicePDF_Failures(t *testing.T) {
	boom := errors.New("chrome crashed")
	_, err := InvoicePDF(context.Background(), &fakePDF{err: boom}, sampleInvoice(), sampleSettings())
	assert.ErrorIs(t, err, boom)

	_, err = InvoicePDF(context.Background(), &fakePDF{}, sampleInvoice(), sampleSettings())
	assert.ErrorIs(t, err, ErrEmptyDocument)
}

func TestInvoiceFilename(t *testing.T) {
	assert.Equal(t, "invoice-INV-007.pdf", InvoiceFilename(core.Invoice{ID: "INV-007"}))
	assert.Equal(t, "invoice-2025-01-a-b.pdf", InvoiceFilename(core.Invoice{ID: "2025/01 a\"b"}))
}

func TestPrintParams_A4(t *testing.T) {
	p := printParams()
	assert.InDelta(t, 8.27, p.PaperWidth, 0.01)
	assert.InDelta(t, 11.69, p.PaperHeight, 0.01)
	assert.InDelta(t, 0.59, p.MarginTop, 0.01)
	assert.Equal(t, p.MarginTop, p.MarginLeft)
	assert.True(t, p.PrintBackground)
}

func TestChromePDF_RejectsEmptyDocument(t *testing.T) {
	c := NewChromePDF(ChromeConfig{})
	defer c.Close()

	_, err := c.RenderPDF(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrEmptyDocument)
}
