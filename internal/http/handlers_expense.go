package http

import (
	"context"
	"net/http"

	"fatture/internal/core"
	"fatture/internal/filter"
)

const (
	expenseForm  = "expense-form"
	categoryForm = "category-form"
)

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, expenseForm, func(ctx context.Context, p *RequestBodyParser) error {
		e, err := ParseExpense(p)
		if err != nil {
			return err
		}
		_, err = s.ledger.SaveExpense(ctx, e)
		return err
	})
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.mutate(w, r, expenseForm, func(ctx context.Context, p *RequestBodyParser) error {
		e, err := ParseExpense(p)
		if err != nil {
			return err
		}
		_, err = s.ledger.UpdateExpense(ctx, id, e)
		return err
	})
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.mutate(w, r, "", func(ctx context.Context, _ *RequestBodyParser) error {
		return s.ledger.DeleteExpense(ctx, id)
	})
}

// handleEditExpense returns the expense form filled with a stored expense.
func (s *Server) handleEditExpense(w http.ResponseWriter, r *http.Request) {
	e, ok := s.ledger.Expenses.Get(r.PathValue("id"))
	if !ok {
		NotFoundError("Expense not found").Write(w)
		return
	}
	v := buildView(s.ledger, pageState{}, s.now())
	v.EditExpense = &e
	s.fragment(w, r, "expense_form", v)
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, categoryForm, func(ctx context.Context, p *RequestBodyParser) error {
		_, err := s.ledger.AddCategory(ctx, ParseCategory(p))
		return err
	})
}

// handleFilter applies the sidebar filter to the expenses page. The filter
// panel itself is left alone while the user edits it.
func (s *Server) handleFilter(w http.ResponseWriter, r *http.Request) {
	s.updateState(w, r, "expenses", false, func(st *pageState, p *RequestBodyParser) {
		st.Filter = ParseFilter(p)
	})
}

func (s *Server) handleClearFilter(w http.ResponseWriter, r *http.Request) {
	s.updateState(w, r, "expenses", true, func(st *pageState, _ *RequestBodyParser) {
		st.Filter = filter.State{}
	})
}

// handlePeriod switches the analytics grouping and date range.
func (s *Server) handlePeriod(w http.ResponseWriter, r *http.Request) {
	s.updateState(w, r, "analytics", false, func(st *pageState, p *RequestBodyParser) {
		st.Period = filter.ParsePeriod(p.Get("period"))
		st.From = core.Date(p.Get("from"))
		st.To = core.Date(p.Get("to"))
	})
}
