package http

import (
	"context"
	"errors"
	"html/template"
	"net/http"

	"fatture/internal/core"
	"fatture/internal/gateway"
	"fatture/internal/log"
	"fatture/internal/notify"
	"fatture/internal/store"
)

// statusFor maps the error taxonomy to HTTP status codes.
func statusFor(err error) int {
	if _, ok := core.AsValidation(err); ok {
		return http.StatusUnprocessableEntity
	}
	switch {
	case errors.Is(err, store.ErrBusy), errors.Is(err, store.ErrDuplicate), errors.Is(err, store.ErrIDChanged):
		return http.StatusConflict
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	if _, ok := gateway.AsPersistence(err); ok {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// respondError writes err for a request made by form. Validation errors are
// swapped into the form's error box and flag the offending field; everything
// else is shown as a toast only. notes are the notifications the failed
// operation already produced.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, form string, err error, notes []notify.Notification) {
	code := statusFor(err)
	b := NewHTMXResponse().Status(code).Notifications(notes)

	if ve, ok := core.AsValidation(err); ok {
		if len(notes) == 0 {
			b.TriggerNotification(notify.Warning, ve.Error())
		}
		if form != "" {
			b.Retarget("#"+form+"-errors", "innerHTML").TriggerFieldError(form, ve.Field)
		}
		b.BodyHTML(`<div class="error" role="alert">` + template.HTMLEscapeString(ve.Error()) + `</div>`)
		b.Write(w)
		return
	}

	if len(notes) == 0 {
		msg := "Something went wrong, please retry"
		switch code {
		case http.StatusConflict:
			msg = "The record is being changed elsewhere, try again"
		case http.StatusNotFound:
			msg = "The record no longer exists"
		case http.StatusBadGateway, http.StatusGatewayTimeout:
			msg = "Storage is unavailable, nothing was saved"
		}
		b.TriggerNotification(notify.Error, msg)
	}
	if code >= http.StatusInternalServerError {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Request failed",
			log.FieldStatusCode, code,
			log.FieldPath, r.URL.Path,
			log.FieldError, err.Error())
	}
	b.Write(w)
}
