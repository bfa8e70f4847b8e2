// Package gateway is the persistence boundary of the application. Every
// backend speaks the same four table operations over loosely typed rows;
// mapping.go converts rows to and from the core types.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Table names as persisted.
type Table string

const (
	Clients           Table = "clients"
	Invoices          Table = "invoices"
	Settings          Table = "settings"
	Expenses          Table = "expenses"
	ExpenseCategories Table = "expense_categories"
	BalanceSummary    Table = "balance_summary"
)

// Tables lists every table in creation order.
func Tables() []Table {
	return []Table{Clients, Invoices, Settings, Expenses, ExpenseCategories, BalanceSummary}
}

// Valid reports whether t is a known table.
func (t Table) Valid() bool {
	for _, known := range Tables() {
		if t == known {
			return true
		}
	}
	return false
}

// Operation names carried by PersistenceError.
const (
	OpList   = "list"
	OpInsert = "insert"
	OpUpdate = "update"
	OpDelete = "delete"
)

// Reserved column names every backend maintains.
const (
	ColumnID        = "id"
	ColumnCreatedAt = "created_at"
	ColumnUpdatedAt = "updated_at"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrDuplicate    = errors.New("record already exists")
	ErrUnknownTable = errors.New("unknown table")
)

// Row is a record as the table store sees it: persisted column names mapped to
// strings, booleans or numbers.
type Row map[string]any

// ID returns the row's id column as a string.
func (r Row) ID() string {
	return stringOf(r[ColumnID])
}

// Clone returns a shallow copy of r.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Order sorts List results by a column. The zero value keeps backend order.
type Order struct {
	Column string
	Desc   bool
}

// OrderBy is shorthand for an ascending order.
func OrderBy(column string) Order { return Order{Column: column} }

// OrderByDesc is shorthand for a descending order.
func OrderByDesc(column string) Order { return Order{Column: column, Desc: true} }

// Gateway is the contract every backend implements.
type Gateway interface {
	List(ctx context.Context, table Table, order Order) ([]Row, error)
	Insert(ctx context.Context, table Table, row Row) (Row, error)
	Update(ctx context.Context, table Table, id string, row Row) (Row, error)
	Delete(ctx context.Context, table Table, id string) error
}

// PersistenceError wraps every failure that crosses the gateway boundary.
type PersistenceError struct {
	Table Table
	Op    string
	ID    string
	Err   error
}

func (e *PersistenceError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s %s %s: %v", e.Op, e.Table, e.ID, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Table, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Wrap builds a PersistenceError unless err is nil or already one.
func Wrap(table Table, op, id string, err error) error {
	if err == nil {
		return nil
	}
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	return &PersistenceError{Table: table, Op: op, ID: id, Err: err}
}

// AsPersistence extracts a PersistenceError from err.
func AsPersistence(err error) (*PersistenceError, bool) {
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// PrepareInsert copies row, assigns an id when missing and stamps both
// timestamps. Backends call it before storing.
func PrepareInsert(row Row, now time.Time) Row {
	out := row.Clone()
	if strings.TrimSpace(out.ID()) == "" {
		out[ColumnID] = uuid.NewString()
	}
	ts := now.UTC().Format(time.RFC3339)
	if stringOf(out[ColumnCreatedAt]) == "" {
		out[ColumnCreatedAt] = ts
	}
	out[ColumnUpdatedAt] = ts
	return out
}

// Merge applies patch over existing, keeping id and created_at.
func Merge(existing, patch Row, now time.Time) Row {
	out := existing.Clone()
	for k, v := range patch {
		if k == ColumnID || k == ColumnCreatedAt {
			continue
		}
		out[k] = v
	}
	out[ColumnUpdatedAt] = now.UTC().Format(time.RFC3339)
	return out
}

// SortRows orders rows in place by o. Values compare as strings, which is
// chronological for ISO dates; rows missing the column sort first.
func SortRows(rows []Row, o Order) {
	if o.Column == "" {
		return
	}
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := stringOf(rows[i][o.Column]), stringOf(rows[j][o.Column])
		if o.Desc {
			return a > b
		}
		return a < b
	})
}

func stringOf(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}
