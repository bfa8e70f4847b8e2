package http

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"sync"
	"time"

	"fatture/internal/chart"
	"fatture/internal/core"
	"fatture/internal/filter"
	"fatture/internal/lifecycle"
	"fatture/internal/log"
	"fatture/internal/services"
)

// SidebarContainer holds page-specific side panels, such as the expense
// filter. It lives outside every page container.
const SidebarContainer = "sidebar"

// eventDelay batches bursts of change events into one render.
const eventDelay = 50 * time.Millisecond

// slot is a placeholder of a page layout filled from a template. Live slots
// are refreshed in place by polling; the others (forms) only when the page
// mounts or a mutation succeeds, so typing is never interrupted.
type slot struct {
	id       string
	template string
	live     bool
}

type chartSlot struct {
	id     string
	kind   chart.Kind
	series func(v *view) chart.Series
}

type pageDef struct {
	id      string
	title   string
	slots   []slot
	charts  []chartSlot
	sidebar string
	topics  []string
	refresh bool
}

// containers lists every container the page writes into, sidebar excluded.
func (p *pageDef) containers(liveOnly bool) []string {
	out := make([]string, 0, len(p.slots)+len(p.charts))
	for _, s := range p.slots {
		if s.live || !liveOnly {
			out = append(out, s.id)
		}
	}
	for _, c := range p.charts {
		out = append(out, c.id)
	}
	return out
}

func pageDefs() []*pageDef {
	return []*pageDef{
		{
			id:    "dashboard",
			title: "Dashboard",
			slots: []slot{
				{id: "dashboard-summary", template: "dashboard_summary", live: true},
				{id: "dashboard-recent", template: "dashboard_recent", live: true},
			},
			charts: []chartSlot{
				{id: "dashboard-earnings", kind: chart.Line, series: func(v *view) chart.Series {
					return chart.FromPeriods("Earnings", filter.EarningsBy(invoicesOf(v), filter.Monthly))
				}},
			},
			topics: []string{services.TopicInvoiceChanged, services.TopicClientChanged, services.TopicExpenseChanged, services.TopicSettingsChanged},
		},
		{
			id:    "invoices",
			title: "Invoices",
			slots: []slot{
				{id: "invoices-form", template: "invoice_form"},
				{id: "invoices-table", template: "invoices_table", live: true},
			},
			topics: []string{services.TopicInvoiceChanged, services.TopicClientChanged, services.TopicSettingsChanged},
		},
		{
			id:    "clients",
			title: "Clients",
			slots: []slot{
				{id: "clients-form", template: "client_form"},
				{id: "clients-table", template: "clients_table", live: true},
			},
			topics: []string{services.TopicClientChanged, services.TopicInvoiceChanged},
		},
		{
			id:    "expenses",
			title: "Expenses",
			slots: []slot{
				{id: "expenses-balance", template: "expenses_balance", live: true},
				{id: "expenses-summary", template: "expenses_summary", live: true},
				{id: "expenses-form", template: "expense_form"},
				{id: "expenses-table", template: "expenses_table", live: true},
			},
			charts: []chartSlot{
				{id: "expenses-monthly", kind: chart.Line, series: func(v *view) chart.Series {
					return chart.FromPeriods("Expenses", v.Analytics.ByMonth)
				}},
				{id: "expenses-categories", kind: chart.Doughnut, series: func(v *view) chart.Series {
					return chart.FromCategories("By category", v.Analytics.ByCategory)
				}},
			},
			sidebar: "expense_filter",
			topics:  []string{services.TopicExpenseChanged, services.TopicCategoryChanged, services.TopicBalanceChanged, services.TopicSettingsChanged},
			refresh: true,
		},
		{
			id:    "analytics",
			title: "Analytics",
			slots: []slot{
				{id: "analytics-summary", template: "analytics_summary", live: true},
			},
			charts: []chartSlot{
				{id: "analytics-period", kind: chart.Bar, series: func(v *view) chart.Series {
					return chart.FromPeriods("Earnings", v.ByPeriod)
				}},
				{id: "analytics-spending", kind: chart.Bar, series: func(v *view) chart.Series {
					return chart.FromPeriods("Expenses", v.SpendingByPeriod)
				}},
				{id: "analytics-categories", kind: chart.Doughnut, series: func(v *view) chart.Series {
					return chart.FromCategories("By category", v.Analytics.ByCategory)
				}},
				{id: "analytics-clients", kind: chart.Bar, series: func(v *view) chart.Series {
					return chart.FromClients("Revenue", v.ByClient)
				}},
			},
			sidebar: "analytics_filter",
			topics:  []string{services.TopicExpenseChanged, services.TopicInvoiceChanged, services.TopicCategoryChanged},
		},
		{
			id:    "settings",
			title: "Settings",
			slots: []slot{
				{id: "settings-form", template: "settings_form"},
				{id: "settings-balance", template: "settings_balance", live: true},
			},
			topics: []string{services.TopicSettingsChanged, services.TopicBalanceChanged},
		},
	}
}

func invoicesOf(v *view) []core.Invoice {
	out := make([]core.Invoice, len(v.Invoices))
	for i, r := range v.Invoices {
		out[i] = r.Invoice
	}
	return out
}

// pageState is what the controls of a page select: the expense filter, the
// analytics grouping and range, the invoice status tab. It belongs to one
// activation of the page and is cleared when the page is left.
type pageState struct {
	Filter filter.State
	Period filter.Period
	From   core.Date
	To     core.Date
	Status core.InvoiceStatus
}

func (st pageState) period() filter.Period {
	if st.Period == "" {
		return filter.Monthly
	}
	return st.Period
}

// pageComponent mounts one page definition into a session.
type pageComponent struct {
	def  *pageDef
	srv  *Server
	sess *Session

	// serializes renders of one session page
	mu sync.Mutex

	smu     sync.Mutex
	state   pageState
	mounted bool
}

func (c *pageComponent) ID() string { return c.def.id }

// State returns the control state of the current activation.
func (c *pageComponent) State() pageState {
	c.smu.Lock()
	defer c.smu.Unlock()
	return c.state
}

// update changes the control state. It reports false, changing nothing, when
// the page is not mounted.
func (c *pageComponent) update(fn func(st *pageState)) bool {
	c.smu.Lock()
	defer c.smu.Unlock()
	if !c.mounted {
		return false
	}
	fn(&c.state)
	return true
}

func (c *pageComponent) setMounted(mounted bool) {
	c.smu.Lock()
	c.state = pageState{}
	c.mounted = mounted
	c.smu.Unlock()
}

// Mount renders every slot, then subscribes the page to the ledger topics it
// shows and, for live pages, starts the refresh timer. Everything is owned by
// the scope and released on deactivation, the control state included.
func (c *pageComponent) Mount(ctx context.Context, s *lifecycle.Scope) error {
	c.setMounted(true)
	if err := s.OnClose("page state", func() error {
		c.setMounted(false)
		return nil
	}); err != nil {
		return err
	}
	if err := c.render(s); err != nil {
		return err
	}
	for _, topic := range c.def.topics {
		if err := s.Listen(c.srv.events, topic, func(ctx context.Context, ev lifecycle.Event) {
			c.schedule(s)
		}); err != nil {
			return err
		}
	}
	if c.def.refresh && c.srv.opts.RefreshInterval > 0 {
		return s.Every(c.srv.opts.RefreshInterval, func(ctx context.Context) {
			c.rerender(s)
		})
	}
	return nil
}

func (c *pageComponent) schedule(s *lifecycle.Scope) {
	if err := s.Defer(eventDelay, func(ctx context.Context) { c.rerender(s) }); err != nil && !errors.Is(err, lifecycle.ErrStale) {
		c.srv.logger.Warn("Failed to schedule render", log.FieldPage, c.def.id, log.FieldError, err.Error())
	}
}

func (c *pageComponent) rerender(s *lifecycle.Scope) {
	if err := c.render(s); err != nil && !errors.Is(err, lifecycle.ErrStale) {
		c.srv.logger.Error("Page render failed", log.FieldPage, c.def.id, log.FieldError, err.Error())
	}
}

// render writes the page's current state into the document.
func (c *pageComponent) render(s *lifecycle.Scope) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	v := buildView(c.srv.ledger, c.State(), c.srv.now())
	v.Page, v.Title = c.def.id, c.def.title

	for _, sl := range c.def.slots {
		html, err := c.srv.renderer.Fragment(sl.template, v)
		if err != nil {
			return err
		}
		if err := s.Node(sl.id, sl.id+"-body", html); err != nil {
			return err
		}
	}
	for _, ch := range c.def.charts {
		if _, err := c.sess.Charts.Mount(s, ch.id, ch.series(v), ch.kind); err != nil {
			return fmt.Errorf("chart %s: %w", ch.id, err)
		}
	}
	if c.def.sidebar != "" {
		html, err := c.srv.renderer.Fragment(c.def.sidebar, v)
		if err != nil {
			return err
		}
		if err := s.Node(SidebarContainer, "sidebar-"+c.def.id, html); err != nil {
			return err
		}
	}
	return nil
}

// layoutData feeds the page_<id> templates.
type layoutData struct {
	Page        string
	Title       string
	PollSeconds int
	Slots       map[string]template.HTML
}

// compose renders the active page's layout with its slots filled from the
// session document.
func (s *Server) compose(sess *Session, def *pageDef) (string, error) {
	data := layoutData{
		Page:        def.id,
		Title:       def.title,
		PollSeconds: int(s.opts.PollInterval.Seconds()),
		Slots:       make(map[string]template.HTML),
	}
	for _, c := range def.containers(false) {
		data.Slots[c] = template.HTML(sess.Doc.Render(c))
	}
	return s.renderer.Fragment("page_"+def.id, data)
}

// refresh re-renders the active page of sess synchronously. It is a no-op
// when no page is active.
func (s *Server) refresh(sess *Session) (*pageDef, error) {
	token := sess.Ctrl.Token()
	def, ok := s.pages[token.Page]
	if !ok {
		return nil, nil
	}
	scope, err := sess.Ctrl.Scope(token)
	if err != nil {
		return nil, err
	}
	comp := sess.component(def.id)
	if comp == nil {
		return nil, fmt.Errorf("page %s: %w", def.id, lifecycle.ErrUnknownPage)
	}
	if err := comp.render(scope); err != nil {
		return nil, err
	}
	return def, nil
}
