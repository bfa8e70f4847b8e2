package http

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"fatture/internal/cache"
	"fatture/internal/chart"
	"fatture/internal/export"
	"fatture/internal/lifecycle"
	"fatture/internal/log"
	"fatture/internal/middleware/ratelimit"
	"fatture/internal/middleware/security"
	"fatture/internal/middleware/trace"
	"fatture/internal/notify"
	"fatture/internal/services"
)

// Pinger reports whether the persistence backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Options struct {
	Addr    string
	Ledger  *services.Ledger
	Events  *lifecycle.Bus
	Backend Pinger
	Logger  *log.Logger

	Templates fs.FS
	Static    fs.FS

	// PDF prints invoices; nil serves the printable HTML instead.
	PDF export.PDFRenderer

	// RefreshInterval drives the auto-refresh of live pages; PollInterval is
	// how often the browser asks for updated slots.
	RefreshInterval time.Duration
	PollInterval    time.Duration

	SessionTTL      time.Duration
	SessionCapacity int
	SecureCookies   bool

	RateLimit ratelimit.Config
	Now       func() time.Time
}

type Server struct {
	http.Server
	opts     Options
	ledger   *services.Ledger
	events   *lifecycle.Bus
	logger   *log.Logger
	renderer *Renderer
	now      func() time.Time

	pages    map[string]*pageDef
	order    []*pageDef
	sessions *sessionStore
	caches   *cache.Manager
	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware
	started  time.Time

	shutdownOnce sync.Once
}

// NewServer configures routes and templates, returning a ready-to-run server.
func NewServer(opts Options) (*Server, error) {
	if opts.Ledger == nil {
		return nil, errors.New("server: ledger is required")
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Events == nil {
		opts.Events = lifecycle.NewBus("document")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 30 * time.Second
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 30 * time.Minute
	}
	if opts.SessionCapacity <= 0 {
		opts.SessionCapacity = 500
	}
	if opts.RateLimit.RequestsPerSecond <= 0 {
		opts.RateLimit = ratelimit.DefaultConfig()
	}

	renderer, err := NewRenderer(opts.Templates)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	s := &Server{
		Server: http.Server{
			Addr:              opts.Addr,
			ReadHeaderTimeout: 10 * time.Second,
		},
		opts:     opts,
		ledger:   opts.Ledger,
		events:   opts.Events,
		logger:   opts.Logger.WithComponent(log.ComponentHTTP),
		renderer: renderer,
		now:      opts.Now,
		pages:    make(map[string]*pageDef),
		caches:   cache.NewManager(opts.Logger),
		limiter:  ratelimit.NewLimiter(opts.RateLimit),
		detector: security.NewDetector(),
		started:  opts.Now(),
	}
	for _, def := range pageDefs() {
		s.pages[def.id] = def
		s.order = append(s.order, def)
	}

	s.sessions = newSessionStore(opts.SessionCapacity, opts.SessionTTL, opts.SecureCookies, s.newSession, opts.Logger)
	s.caches.Register(s.sessions.cache)
	s.caches.StartCleanup(time.Minute)

	s.tracer = trace.NewMiddleware(opts.Logger, s.detector.ExtractClientIP)
	s.routes(mux)

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	limit := s.limiter.Middleware(s.detector.ExtractClientIP, s.rateLimited, http.MethodPost, http.MethodDelete)
	s.Handler = s.tracer.Middleware(s.detector.Middleware(headers.Middleware(limit(mux))))
	return s, nil
}

func (s *Server) routes(mux *http.ServeMux) {
	if s.opts.Static != nil {
		if sub, err := fs.Sub(s.opts.Static, "static"); err == nil {
			static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
			mux.Handle("GET /static/", security.StaticAssetMiddleware(3600)(static))
		} else {
			s.logger.Warn("Failed to mount embedded static FS", log.FieldError, err.Error())
		}
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /ui/pages/{page}", s.handlePage)
	mux.HandleFunc("GET /ui/pages/{page}/slots", s.handleSlots)

	mux.HandleFunc("POST /expenses", s.handleCreateExpense)
	mux.HandleFunc("POST /expenses/{id}", s.handleUpdateExpense)
	mux.HandleFunc("DELETE /expenses/{id}", s.handleDeleteExpense)
	mux.HandleFunc("GET /ui/expenses/{id}/edit", s.handleEditExpense)
	mux.HandleFunc("POST /categories", s.handleCreateCategory)
	mux.HandleFunc("POST /ui/expenses/filter", s.handleFilter)
	mux.HandleFunc("POST /ui/expenses/filter/clear", s.handleClearFilter)
	mux.HandleFunc("POST /ui/analytics/period", s.handlePeriod)

	mux.HandleFunc("POST /clients", s.handleCreateClient)
	mux.HandleFunc("POST /clients/{id}", s.handleUpdateClient)
	mux.HandleFunc("DELETE /clients/{id}", s.handleDeleteClient)
	mux.HandleFunc("GET /ui/clients/{id}/edit", s.handleEditClient)

	mux.HandleFunc("POST /invoices", s.handleCreateInvoice)
	mux.HandleFunc("POST /invoices/{id}", s.handleUpdateInvoice)
	mux.HandleFunc("POST /invoices/{id}/status", s.handleInvoiceStatus)
	mux.HandleFunc("DELETE /invoices/{id}", s.handleDeleteInvoice)
	mux.HandleFunc("GET /ui/invoices/{id}/edit", s.handleEditInvoice)
	mux.HandleFunc("POST /ui/invoices/tab", s.handleInvoiceTab)
	mux.HandleFunc("GET /invoices/{id}/pdf", s.handleInvoicePDF)

	mux.HandleFunc("POST /settings", s.handleSaveSettings)
	mux.HandleFunc("POST /balance/reset", s.handleResetBalance)

	mux.HandleFunc("GET /expenses/export.csv", s.handleExportCSV)
	mux.HandleFunc("GET /export.json", s.handleExportJSON)
}

func (s *Server) newSession(id string) *Session {
	doc := lifecycle.NewDocument()
	logger := s.opts.Logger.With(log.FieldSessionID, id)
	sess := &Session{
		ID:     id,
		Doc:    doc,
		Ctrl:   lifecycle.NewController(doc, s.events, logger),
		Charts: chart.NewAdapter(doc, logger),
		pages:  make(map[string]*pageComponent),
	}
	for _, def := range s.order {
		comp := &pageComponent{def: def, srv: s, sess: sess}
		sess.pages[def.id] = comp
		sess.Ctrl.Register(comp)
	}
	return sess
}

func (s *Server) rateLimited(w http.ResponseWriter, r *http.Request) {
	NewHTMXResponse().
		Status(http.StatusTooManyRequests).
		TriggerNotification(notify.Warning, "Too many requests, slow down a little").
		Write(w)
}

// Sessions returns the number of live browser sessions.
func (s *Server) Sessions() int { return s.sessions.Len() }

// Shutdown stops accepting requests, then tears every session down.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		shutdownErr = s.Server.Shutdown(ctx)
		s.caches.Stop()
		s.limiter.Stop()
		s.sessions.Close()
	})
	return shutdownErr
}
