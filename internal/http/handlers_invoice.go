package http

import (
	"bytes"
	"context"
	"net/http"

	"fatture/internal/core"
	"fatture/internal/export"
	"fatture/internal/filter"
	"fatture/internal/log"
)

const invoiceForm = "invoice-form"

func (s *Server) handleCreateInvoice(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, invoiceForm, func(ctx context.Context, p *RequestBodyParser) error {
		inv, err := ParseInvoice(p)
		if err != nil {
			return err
		}
		_, err = s.ledger.SaveInvoice(ctx, inv)
		return err
	})
}

func (s *Server) handleUpdateInvoice(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.mutate(w, r, invoiceForm, func(ctx context.Context, p *RequestBodyParser) error {
		inv, err := ParseInvoice(p)
		if err != nil {
			return err
		}
		_, err = s.ledger.UpdateInvoice(ctx, id, inv)
		return err
	})
}

func (s *Server) handleInvoiceStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.mutate(w, r, "", func(ctx context.Context, p *RequestBodyParser) error {
		_, err := s.ledger.SetInvoiceStatus(ctx, id, core.InvoiceStatus(p.Get("status")))
		return err
	})
}

func (s *Server) handleDeleteInvoice(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.mutate(w, r, "", func(ctx context.Context, _ *RequestBodyParser) error {
		return s.ledger.DeleteInvoice(ctx, id)
	})
}

func (s *Server) handleEditInvoice(w http.ResponseWriter, r *http.Request) {
	inv, ok := s.ledger.Invoices.Get(r.PathValue("id"))
	if !ok {
		NotFoundError("Invoice not found").Write(w)
		return
	}
	v := buildView(s.ledger, pageState{}, s.now())
	v.EditInvoice = &inv
	s.fragment(w, r, "invoice_form", v)
}

// handleInvoiceTab narrows the invoice table to one status.
func (s *Server) handleInvoiceTab(w http.ResponseWriter, r *http.Request) {
	s.updateState(w, r, "invoices", false, func(st *pageState, p *RequestBodyParser) {
		st.Status = filter.ParseStatus(p.Get("status"))
	})
}

// handleInvoicePDF downloads an invoice as a PDF. Without a PDF printer the
// printable page is served instead, for the browser to print.
func (s *Server) handleInvoicePDF(w http.ResponseWriter, r *http.Request) {
	inv, ok := s.ledger.Invoices.Get(r.PathValue("id"))
	if !ok {
		NotFoundError("Invoice not found").Write(w)
		return
	}
	settings := s.ledger.CurrentSettings()

	if s.opts.PDF == nil {
		var buf bytes.Buffer
		if err := export.InvoiceHTML(&buf, inv, settings); err != nil {
			s.renderFailed(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(buf.Bytes())
		return
	}

	data, err := export.InvoicePDF(r.Context(), s.opts.PDF, inv, settings)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Invoice PDF failed",
			log.FieldInvoiceID, inv.ID,
			log.FieldError, err.Error())
		code := statusFor(err)
		if code == http.StatusInternalServerError {
			code = http.StatusBadGateway
		}
		http.Error(w, "could not produce the PDF, try again", code)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.InvoiceFilename(inv)+`"`)
	_, _ = w.Write(data)
}
