package http

import (
	"context"
	"net/http"
)

const clientForm = "client-form"

func (s *Server) handleCreateClient(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, clientForm, func(ctx context.Context, p *RequestBodyParser) error {
		_, err := s.ledger.SaveClient(ctx, ParseClient(p))
		return err
	})
}

func (s *Server) handleUpdateClient(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.mutate(w, r, clientForm, func(ctx context.Context, p *RequestBodyParser) error {
		_, err := s.ledger.UpdateClient(ctx, id, ParseClient(p))
		return err
	})
}

// handleDeleteClient refuses, with a 422, clients that invoices still use.
func (s *Server) handleDeleteClient(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.mutate(w, r, "", func(ctx context.Context, _ *RequestBodyParser) error {
		return s.ledger.DeleteClient(ctx, id)
	})
}

func (s *Server) handleEditClient(w http.ResponseWriter, r *http.Request) {
	c, ok := s.ledger.Clients.Get(r.PathValue("id"))
	if !ok {
		NotFoundError("Client not found").Write(w)
		return
	}
	v := buildView(s.ledger, pageState{}, s.now())
	v.EditClient = &c
	s.fragment(w, r, "client_form", v)
}
