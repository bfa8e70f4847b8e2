// Package http serves the fatture web UI.
//
// This file implements the Builder Pattern for constructing HTMX responses.
// It provides a fluent API for HX-Trigger events, out-of-band fragments and
// consistent error formatting.

package http

import (
	"encoding/json"
	"html/template"
	"net/http"
	"sort"
	"strings"

	"fatture/internal/notify"
)

// Client side events.
const (
	EventNotification = "show-notification"
	EventFormReset    = "form:reset"
	EventFieldError   = "field-error"
)

// HTMXResponseBuilder provides a fluent API for building HTMX responses.
type HTMXResponseBuilder struct {
	triggers   map[string]any
	statusCode int
	body       strings.Builder
	headers    map[string]string
}

// NewHTMXResponse creates a new response builder with default 200 status.
func NewHTMXResponse() *HTMXResponseBuilder {
	return &HTMXResponseBuilder{
		triggers:   make(map[string]any),
		statusCode: http.StatusOK,
		headers:    map[string]string{"Content-Type": "text/html; charset=utf-8"},
	}
}

// Status sets the HTTP status code for the response.
func (b *HTMXResponseBuilder) Status(code int) *HTMXResponseBuilder {
	b.statusCode = code
	return b
}

// Trigger adds a named trigger with optional data to the HX-Trigger header.
func (b *HTMXResponseBuilder) Trigger(name string, data any) *HTMXResponseBuilder {
	b.triggers[name] = data
	return b
}

// TriggerFormReset asks the page script to clear the form with the given id.
func (b *HTMXResponseBuilder) TriggerFormReset(form string) *HTMXResponseBuilder {
	return b.Trigger(EventFormReset, map[string]string{"form": form})
}

// TriggerFieldError highlights the invalid field of a form.
func (b *HTMXResponseBuilder) TriggerFieldError(form, field string) *HTMXResponseBuilder {
	return b.Trigger(EventFieldError, map[string]string{"form": form, "field": field})
}

// TriggerNotification queues a toast. HX-Trigger carries one value per
// event name, so only the most severe of several notifications is shown.
func (b *HTMXResponseBuilder) TriggerNotification(severity notify.Severity, message string) *HTMXResponseBuilder {
	if cur, ok := b.triggers[EventNotification].(map[string]any); ok {
		if rank(notify.Severity(cur["type"].(string))) > rank(severity) {
			return b
		}
	}
	return b.Trigger(EventNotification, map[string]any{
		"type":     string(severity),
		"message":  message,
		"duration": severity.Duration().Milliseconds(),
	})
}

func rank(s notify.Severity) int {
	switch s {
	case notify.Error:
		return 3
	case notify.Warning:
		return 2
	case notify.Success:
		return 1
	}
	return 0
}

// Notifications queues what a collector gathered during the request.
func (b *HTMXResponseBuilder) Notifications(ns []notify.Notification) *HTMXResponseBuilder {
	for _, n := range ns {
		b.TriggerNotification(n.Severity, n.Message)
	}
	return b
}

// Retarget swaps the response into selector instead of the request target.
func (b *HTMXResponseBuilder) Retarget(selector, swap string) *HTMXResponseBuilder {
	b.headers["HX-Retarget"] = selector
	if swap != "" {
		b.headers["HX-Reswap"] = swap
	}
	return b
}

// Header adds a custom header to the response.
func (b *HTMXResponseBuilder) Header(name, value string) *HTMXResponseBuilder {
	b.headers[name] = value
	return b
}

// BodyHTML appends trusted HTML to the body.
func (b *HTMXResponseBuilder) BodyHTML(html string) *HTMXResponseBuilder {
	b.body.WriteString(html)
	return b
}

// OOB appends html as an out-of-band swap replacing the children of the
// element with the given id.
func (b *HTMXResponseBuilder) OOB(id, html string) *HTMXResponseBuilder {
	b.body.WriteString(`<div hx-swap-oob="innerHTML:#`)
	b.body.WriteString(template.HTMLEscapeString(id))
	b.body.WriteString(`">`)
	b.body.WriteString(html)
	b.body.WriteString(`</div>`)
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *HTMXResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if len(b.triggers) > 0 {
		if triggerJSON, err := json.Marshal(b.triggers); err == nil {
			w.Header().Set("HX-Trigger", string(triggerJSON))
		}
	}
	w.WriteHeader(b.statusCode)
	if b.body.Len() > 0 {
		_, _ = w.Write([]byte(b.body.String()))
	}
}

// TriggerNames lists the queued triggers, sorted. Used by tests and logs.
func (b *HTMXResponseBuilder) TriggerNames() []string {
	out := make([]string, 0, len(b.triggers))
	for k := range b.triggers {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ErrorResponse creates a standard error response with HTML formatting.
// The message is HTML-escaped for safety.
func ErrorResponse(statusCode int, message string) *HTMXResponseBuilder {
	return NewHTMXResponse().
		Status(statusCode).
		BodyHTML(`<div class="error" role="alert">` + template.HTMLEscapeString(message) + `</div>`)
}

// BadRequestError creates a 400 Bad Request error response.
func BadRequestError(message string) *HTMXResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, message)
}

// NotFoundError creates a 404 Not Found error response.
func NotFoundError(message string) *HTMXResponseBuilder {
	return ErrorResponse(http.StatusNotFound, message)
}
