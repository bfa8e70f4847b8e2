// Package export writes the ledger out for backups and spreadsheets.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"fatture/internal/core"
	"fatture/internal/gateway"
)

var expenseHeader = []string{
	"Date", "Description", "Category", "Amount", "Payment Method",
	"Vendor", "Receipt Number", "Business Expense", "Tax Deductible", "Notes", "Tags",
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

// ExpensesCSV writes expenses as CSV with a header row. Amounts keep their
// full precision.
func ExpensesCSV(w io.Writer, expenses []core.Expense) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(expenseHeader); err != nil {
		return err
	}
	for _, e := range expenses {
		record := []string{
			string(e.Date),
			e.Description,
			e.Category,
			e.Amount.String(),
			string(e.PaymentMethod),
			e.VendorName,
			e.ReceiptNumber,
			yesNo(e.IsBusinessExpense),
			yesNo(e.TaxDeductible),
			e.Notes,
			strings.Join(e.Tags, ";"),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write expense %s: %w", e.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// RowSource yields the persisted rows of one table.
type RowSource interface {
	Table() gateway.Table
	Rows() ([]gateway.Row, error)
}

// Snapshot is the JSON backup document.
type Snapshot struct {
	ExportedAt time.Time                       `json:"exported_at"`
	Tables     map[gateway.Table][]gateway.Row `json:"tables"`
}

// Collect reads every source into a snapshot.
func Collect(now time.Time, sources ...RowSource) (*Snapshot, error) {
	snap := &Snapshot{ExportedAt: now.UTC(), Tables: make(map[gateway.Table][]gateway.Row, len(sources))}
	for _, src := range sources {
		rows, err := src.Rows()
		if err != nil {
			return nil, fmt.Errorf("export %s: %w", src.Table(), err)
		}
		if rows == nil {
			rows = []gateway.Row{}
		}
		snap.Tables[src.Table()] = rows
	}
	return snap, nil
}

// JSON writes the snapshot indented.
func (s *Snapshot) JSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

// Filename is the download name for kind ("expenses", "backup") and ext.
func Filename(kind string, now time.Time, ext string) string {
	return fmt.Sprintf("%s-%s.%s", kind, now.Format(core.DateLayout), ext)
}
