package sheets

import (
	"fmt"
	"sort"
	"strings"

	"fatture/internal/gateway"
)

type sheetTable struct {
	header []string
	rows   []gateway.Row
}

func (t sheetTable) indexOf(id string) int {
	for i, r := range t.rows {
		if r.ID() == id {
			return i
		}
	}
	return -1
}

func defaultHeader() []string {
	return []string{gateway.ColumnID, gateway.ColumnCreatedAt, gateway.ColumnUpdatedAt}
}

// parseValues converts a values matrix into rows keyed by the header row.
// Fully blank rows keep their position so row numbers stay aligned with the
// sheet.
func parseValues(values [][]any) sheetTable {
	if len(values) == 0 {
		return sheetTable{}
	}
	header := toStrings(values[0])
	rows := make([]gateway.Row, 0, len(values)-1)
	for _, raw := range values[1:] {
		cols := toStrings(raw)
		r := gateway.Row{}
		for i, h := range header {
			if h == "" || i >= len(cols) {
				continue
			}
			r[h] = cols[i]
		}
		rows = append(rows, r)
	}
	return sheetTable{header: header, rows: rows}
}

// extendHeader appends any column of r missing from header. New columns are
// added in sorted order so repeated writes produce the same layout.
func extendHeader(header []string, r gateway.Row) ([]string, bool) {
	changed := false
	if len(header) == 0 {
		header, changed = defaultHeader(), true
	}
	known := make(map[string]bool, len(header))
	for _, h := range header {
		known[h] = true
	}
	var missing []string
	for k := range r {
		if !known[k] {
			missing = append(missing, k)
		}
	}
	if len(missing) == 0 {
		return header, changed
	}
	sort.Strings(missing)
	out := append(append([]string(nil), header...), missing...)
	return out, true
}

func rowValues(header []string, r gateway.Row) []any {
	out := make([]any, len(header))
	for i, h := range header {
		v, ok := r[h]
		if !ok || v == nil {
			out[i] = ""
			continue
		}
		out[i] = v
	}
	return out
}

// columnName converts a 1-based column index to A1 notation letters.
func columnName(n int) string {
	if n < 1 {
		n = 1
	}
	var b []byte
	for n > 0 {
		n--
		b = append([]byte{byte('A' + n%26)}, b...)
		n /= 26
	}
	return string(b)
}

func quoteTab(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}

func toStrings(in []any) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}
