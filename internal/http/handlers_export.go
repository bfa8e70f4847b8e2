package http

import (
	"bytes"
	"net/http"
	"sort"

	"fatture/internal/export"
	"fatture/internal/filter"
	"fatture/internal/log"
)

// handleExportCSV downloads the expenses the session's filter selects.
func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	st := filter.State{}
	if sess, ok := s.sessions.Lookup(r); ok {
		st = sess.Filter()
	}
	expenses := filter.Records(s.ledger.Expenses.All(), st)
	sort.SliceStable(expenses, func(i, j int) bool { return expenses[i].Date > expenses[j].Date })

	var buf bytes.Buffer
	if err := export.ExpensesCSV(&buf, expenses); err != nil {
		s.logger.ErrorContext(r.Context(), "CSV export failed", log.FieldError, err.Error())
		http.Error(w, "export failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.Filename("expenses", s.now(), "csv")+`"`)
	_, _ = w.Write(buf.Bytes())
}

// handleExportJSON downloads every table as stored.
func (s *Server) handleExportJSON(w http.ResponseWriter, r *http.Request) {
	l := s.ledger
	snap, err := export.Collect(s.now(), l.Clients, l.Invoices, l.Settings, l.Expenses, l.Categories, l.Balance)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "JSON export failed", log.FieldError, err.Error())
		http.Error(w, "export failed", http.StatusInternalServerError)
		return
	}
	var buf bytes.Buffer
	if err := snap.JSON(&buf); err != nil {
		http.Error(w, "export failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.Filename("fatture-backup", s.now(), "json")+`"`)
	_, _ = w.Write(buf.Bytes())
}
