package http

import (
	"context"
	"net/http"
)

const settingsForm = "settings-form"

func (s *Server) handleSaveSettings(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, settingsForm, func(ctx context.Context, p *RequestBodyParser) error {
		settings, err := ParseSettings(p)
		if err != nil {
			return err
		}
		_, err = s.ledger.SaveSettings(ctx, settings)
		return err
	})
}

// handleResetBalance starts a new balance tracking window today. Stored
// invoices and expenses are not touched.
func (s *Server) handleResetBalance(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, "", func(ctx context.Context, _ *RequestBodyParser) error {
		_, err := s.ledger.ResetBalance(ctx)
		return err
	})
}
