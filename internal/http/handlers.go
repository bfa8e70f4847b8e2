package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"fatture/internal/lifecycle"
	"fatture/internal/log"
	"fatture/internal/notify"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	health := map[string]any{
		"status":    "ok",
		"timestamp": s.now().Format(time.RFC3339),
		"uptime":    s.now().Sub(s.started).Round(time.Second).String(),
	}
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(health)
}

// handleReady performs readiness check with dependency verification
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)

	if !s.renderer.Has("index.html") {
		checks["templates"] = "failed: templates not loaded"
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["templates"] = "ok"
	}

	if s.opts.Backend != nil {
		if err := s.opts.Backend.Ping(ctx); err != nil {
			checks["backend"] = fmt.Sprintf("failed: %v", err)
			status = "not_ready"
			httpStatus = http.StatusServiceUnavailable
		} else {
			checks["backend"] = "ok"
		}
	} else {
		checks["backend"] = "not_configured"
	}

	checks["sessions"] = map[string]any{
		"active": s.sessions.Len(),
		"status": "ok",
	}
	checks["rate_limiter"] = map[string]any{
		"active_clients": s.limiter.ActiveClients(),
		"status":         "ok",
	}

	if httpStatus != http.StatusOK {
		s.logger.WarnContext(r.Context(), "Readiness check failed", "checks", checks)
	}
	w.WriteHeader(httpStatus)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":    status,
		"timestamp": s.now().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleMetrics provides application and security metrics in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	rateLimitMetrics := s.limiter.GetMetrics()
	traceMetrics := s.tracer.GetMetrics()

	w.WriteHeader(http.StatusOK)

	fmt.Fprintf(w, "# HELP http_requests_total Total number of HTTP requests\n")
	fmt.Fprintf(w, "# TYPE http_requests_total counter\n")
	fmt.Fprintf(w, "http_requests_total %d\n\n", traceMetrics.TotalRequests)

	fmt.Fprintf(w, "# HELP records Records currently loaded\n")
	fmt.Fprintf(w, "# TYPE records gauge\n")
	fmt.Fprintf(w, "records{table=\"expenses\"} %d\n", s.ledger.Expenses.Len())
	fmt.Fprintf(w, "records{table=\"invoices\"} %d\n", s.ledger.Invoices.Len())
	fmt.Fprintf(w, "records{table=\"clients\"} %d\n\n", s.ledger.Clients.Len())

	fmt.Fprintf(w, "# HELP sessions Live browser sessions\n")
	fmt.Fprintf(w, "# TYPE sessions gauge\n")
	fmt.Fprintf(w, "sessions %d\n\n", s.sessions.Len())

	fmt.Fprintf(w, "# HELP document_listeners Subscriptions on the document bus\n")
	fmt.Fprintf(w, "# TYPE document_listeners gauge\n")
	fmt.Fprintf(w, "document_listeners %d\n\n", s.events.Total())

	fmt.Fprintf(w, "# HELP rate_limit_hits_total Total rate limit hits\n")
	fmt.Fprintf(w, "# TYPE rate_limit_hits_total counter\n")
	fmt.Fprintf(w, "rate_limit_hits_total %d\n\n", rateLimitMetrics.TotalHits)

	fmt.Fprintf(w, "# HELP suspicious_requests_total Total suspicious requests detected\n")
	fmt.Fprintf(w, "# TYPE suspicious_requests_total counter\n")
	fmt.Fprintf(w, "suspicious_requests_total %d\n\n", s.detector.SuspiciousCount())

	fmt.Fprintf(w, "# HELP uptime_seconds Application uptime in seconds\n")
	fmt.Fprintf(w, "# TYPE uptime_seconds gauge\n")
	fmt.Fprintf(w, "uptime_seconds %.0f\n", s.now().Sub(s.started).Seconds())
}

type navItem struct {
	ID     string
	Title  string
	Active bool
}

func (s *Server) nav(active string) []navItem {
	out := make([]navItem, len(s.order))
	for i, def := range s.order {
		out[i] = navItem{ID: def.id, Title: def.title, Active: def.id == active}
	}
	return out
}

// activate makes page the session's active page and composes its layout.
func (s *Server) activate(ctx context.Context, sess *Session, page string) (*pageDef, string, error) {
	def, ok := s.pages[page]
	if !ok {
		return nil, "", fmt.Errorf("page %q: %w", page, lifecycle.ErrUnknownPage)
	}
	if _, err := sess.Ctrl.Activate(ctx, page); err != nil {
		return nil, "", err
	}
	html, err := s.compose(sess, def)
	if err != nil {
		return nil, "", err
	}
	return def, html, nil
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.Get(w, r)
	page := r.URL.Query().Get("page")
	if _, ok := s.pages[page]; !ok {
		page = s.order[0].id
	}
	// a full load always starts from a fresh mount, as a browser reload does
	sess.Ctrl.Deactivate(r.Context(), page)

	def, main, err := s.activate(r.Context(), sess, page)
	if err != nil {
		s.renderFailed(w, r, err)
		return
	}
	data := struct {
		Title   string
		Nav     []navItem
		Main    template.HTML
		Sidebar template.HTML
	}{
		Title:   def.title,
		Nav:     s.nav(def.id),
		Main:    template.HTML(main),
		Sidebar: template.HTML(sess.Doc.Render(SidebarContainer)),
	}
	html, err := s.renderer.Fragment("index.html", data)
	if err != nil {
		s.renderFailed(w, r, err)
		return
	}
	NewHTMXResponse().BodyHTML(html).Write(w)
}

// handlePage navigates the session to another page. The page body replaces
// the main area; nav and sidebar follow out of band.
func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.Get(w, r)
	page := r.PathValue("page")
	if _, ok := s.pages[page]; !ok {
		NotFoundError("Unknown page").Write(w)
		return
	}
	def, main, err := s.activate(r.Context(), sess, page)
	if err != nil {
		s.renderFailed(w, r, err)
		return
	}
	nav, err := s.renderer.Fragment("nav", s.nav(def.id))
	if err != nil {
		s.renderFailed(w, r, err)
		return
	}
	NewHTMXResponse().
		Header("HX-Push-Url", "/?page="+def.id).
		BodyHTML(main).
		OOB("nav", nav).
		OOB(SidebarContainer, sess.Doc.Render(SidebarContainer)).
		Write(w)
}

// handleSlots serves the live slots of the active page. A page that is no
// longer active answers 286, which stops the browser's polling.
func (s *Server) handleSlots(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessions.Lookup(r)
	if !ok || sess.Ctrl.Active() != r.PathValue("page") {
		w.WriteHeader(286)
		return
	}
	def := s.pages[sess.Ctrl.Active()]
	b := NewHTMXResponse()
	for _, c := range def.containers(true) {
		b.OOB(c, sess.Doc.Render(c))
	}
	b.Write(w)
}

// slots re-renders the active page and queues its containers on b. With
// forms set, the form slots are included too, which resets them.
func (s *Server) slots(b *HTMXResponseBuilder, sess *Session, forms bool) {
	def, err := s.refresh(sess)
	if err != nil {
		if !errors.Is(err, lifecycle.ErrStale) {
			s.logger.Error("Page refresh failed", log.FieldSessionID, sess.ID, log.FieldError, err.Error())
		}
		return
	}
	if def == nil {
		return
	}
	for _, c := range def.containers(!forms) {
		b.OOB(c, sess.Doc.Render(c))
	}
}

// updateState changes the control state of page and sends its live slots
// back, plus the sidebar when withSidebar is set. A page that is not the
// active one has no state to change; the request is answered 204.
func (s *Server) updateState(w http.ResponseWriter, r *http.Request, page string, withSidebar bool, fn func(st *pageState, p *RequestBodyParser)) {
	sess := s.sessions.Get(w, r)
	p, err := parseBody(r)
	if err != nil {
		BadRequestError("Invalid request format").Write(w)
		return
	}
	comp := sess.component(page)
	if comp == nil || sess.Ctrl.Active() != page || !comp.update(func(st *pageState) { fn(st, p) }) {
		s.logger.DebugContext(r.Context(), "Dropped state change for inactive page", log.FieldPage, page)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	b := NewHTMXResponse()
	s.slots(b, sess, false)
	if withSidebar {
		b.OOB(SidebarContainer, sess.Doc.Render(SidebarContainer))
	}
	b.Write(w)
}

func (s *Server) renderFailed(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, lifecycle.ErrUnknownPage) {
		NotFoundError("Unknown page").Write(w)
		return
	}
	log.NewStructuredLogger(s.logger).LogError(r.Context(), "Render failed", err, log.ComponentTemplate, "render", nil)
	ErrorResponse(http.StatusInternalServerError, "Something went wrong while rendering the page").Write(w)
}

// mutation is one ledger operation driven by a request body.
type mutation func(ctx context.Context, p *RequestBodyParser) error

// mutate runs op with a notification collector in the context. On success
// the active page is re-rendered and its slots sent back out of band
// together with the toasts op produced; form, if set, is reset.
func (s *Server) mutate(w http.ResponseWriter, r *http.Request, form string, op mutation) {
	sess := s.sessions.Get(w, r)
	p, err := parseBody(r)
	if err != nil {
		BadRequestError("Invalid request format").Write(w)
		return
	}

	collector := &notify.Collector{}
	ctx := notify.WithNotifier(r.Context(), collector)
	if err := op(ctx, p); err != nil {
		s.respondError(w, r, form, err, collector.Drain())
		return
	}

	b := NewHTMXResponse()
	s.slots(b, sess, true)
	b.Notifications(collector.Drain())
	if form != "" {
		b.OOB(form+"-errors", "").TriggerFormReset(form)
	}
	b.Write(w)
}

// fragment renders a single template for the session, outside any page.
func (s *Server) fragment(w http.ResponseWriter, r *http.Request, name string, data any) {
	html, err := s.renderer.Fragment(name, data)
	if err != nil {
		s.renderFailed(w, r, err)
		return
	}
	NewHTMXResponse().BodyHTML(html).Write(w)
}
