package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fatture/internal/core"
	"fatture/internal/gateway"
)

func TestExpensesCSV(t *testing.T) {
	var buf bytes.Buffer
	err := ExpensesCSV(&buf, []core.Expense{{
		ID:                "e1",
		Date:              "2025-01-15",
		Description:       `Lunch, "team"`,
		Category:          "Food",
		Amount:            decimal.RequireFromString("100.50"),
		PaymentMethod:     core.PaymentUPI,
		IsBusinessExpense: true,
		Tags:              []string{"client", "q1"},
	}})
	require.NoError(t, err)

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, expenseHeader, records[0])
	assert.Equal(t, `Lunch, "team"`, records[1][1])
	assert.Equal(t, "100.5", records[1][3])
	assert.Equal(t, "Yes", records[1][7])
	assert.Equal(t, "No", records[1][8])
	assert.Equal(t, "client;q1", records[1][10])
}

type fakeSource struct {
	table gateway.Table
	rows  []gateway.Row
	err   error
}

func (f fakeSource) Table() gateway.Table         { return f.table }
func (f fakeSource) Rows() ([]gateway.Row, error) { return f.rows, f.err }

func TestCollect(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	snap, err := Collect(now,
		fakeSource{table: gateway.Clients, rows: []gateway.Row{{"id": "c1", "name": "Acme"}}},
		fakeSource{table: gateway.Invoices},
	)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, snap.JSON(&buf))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	tables := decoded["tables"].(map[string]any)
	assert.Len(t, tables["clients"], 1)
	assert.Equal(t, []any{}, tables["invoices"])
}

func TestCollectStopsOnError(t *testing.T) {
	boom := errors.New("boom")
	_, err := Collect(time.Now(), fakeSource{table: gateway.Expenses, err: boom})
	assert.ErrorIs(t, err, boom)
}

func TestFilename(t *testing.T) {
	assert.Equal(t, "expenses-2025-03-01.csv", Filename("expenses", time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), "csv"))
}
