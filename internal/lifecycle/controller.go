// Package lifecycle keeps page navigation of a browser session leak free.
// Exactly one page is active per Controller; everything the page creates is
// registered on its Scope and released when the page is deactivated.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"fatture/internal/log"
)

var ErrUnknownPage = errors.New("unknown page")

// Component is a page that can be mounted into a scope.
type Component interface {
	ID() string
	Mount(ctx context.Context, s *Scope) error
}

// Unmounter is implemented by components that need a hook before their
// scope is released.
type Unmounter interface {
	Unmount(ctx context.Context, s *Scope) error
}

// Container is the id of the container a page renders its own subtree
// into. Nodes in any other container are considered outside the page.
func Container(page string) string { return "page-" + page }

// RenderToken identifies one activation of a page. A token stays valid only
// while that activation is the current one.
type RenderToken struct {
	Page       string
	Generation uint64
	ctrl       *Controller
}

// Valid reports whether the activation the token was issued for is still
// active.
func (t RenderToken) Valid() bool {
	if t.ctrl == nil || t.Generation == 0 {
		return false
	}
	cur := t.ctrl.current.Load()
	return cur != nil && cur.Page == t.Page && cur.Generation == t.Generation
}

type activation struct {
	token RenderToken
	comp  Component
	scope *Scope
}

// Controller drives page activation for one session.
type Controller struct {
	doc    *Document
	events *Bus
	logger *log.Logger

	mu       sync.Mutex
	registry map[string]Component
	active   *activation
	gen      uint64

	current atomic.Pointer[RenderToken]
}

// NewController creates a controller rendering into doc. events is the
// document level bus shared with the rest of the application; it may be nil.
func NewController(doc *Document, events *Bus, logger *log.Logger) *Controller {
	if doc == nil {
		doc = NewDocument()
	}
	if events == nil {
		events = NewBus("document")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Controller{
		doc:      doc,
		events:   events,
		logger:   logger.WithComponent(log.ComponentLifecycle),
		registry: make(map[string]Component),
	}
}

// Document returns the session document.
func (c *Controller) Document() *Document { return c.doc }

// Events returns the document level bus.
func (c *Controller) Events() *Bus { return c.events }

// Register adds pages. A later registration with the same id replaces the
// earlier one.
func (c *Controller) Register(comps ...Component) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, comp := range comps {
		c.registry[comp.ID()] = comp
	}
}

// Pages lists registered page ids.
func (c *Controller) Pages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.registry))
	for id := range c.registry {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Activate makes page the active one. The current page, if different, is
// deactivated first. Activating the page that is already active returns its
// existing token and changes nothing.
func (c *Controller) Activate(ctx context.Context, page string) (RenderToken, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active != nil && c.active.token.Page == page {
		return c.active.token, nil
	}
	comp, ok := c.registry[page]
	if !ok {
		return RenderToken{}, fmt.Errorf("activate %q: %w", page, ErrUnknownPage)
	}
	if c.active != nil {
		c.deactivateLocked(ctx)
	}
	return c.mountLocked(ctx, comp)
}

// Reload remounts the active page from scratch, as a browser reload does.
func (c *Controller) Reload(ctx context.Context) (RenderToken, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return RenderToken{}, nil
	}
	comp := c.active.comp
	c.deactivateLocked(ctx)
	return c.mountLocked(ctx, comp)
}

// caller holds c.mu
func (c *Controller) mountLocked(ctx context.Context, comp Component) (RenderToken, error) {
	c.gen++
	token := RenderToken{Page: comp.ID(), Generation: c.gen, ctrl: c}
	scope := newScope(ctx, token, c.doc, c.logger)
	c.active = &activation{token: token, comp: comp, scope: scope}
	c.current.Store(&token)

	if err := comp.Mount(ctx, scope); err != nil {
		c.logger.ErrorContext(ctx, "Page mount failed",
			log.FieldPage, token.Page, log.FieldError, err.Error())
		c.deactivateLocked(ctx)
		return RenderToken{}, fmt.Errorf("mount %q: %w", token.Page, err)
	}
	c.logger.DebugContext(ctx, "Page activated",
		log.FieldPage, token.Page, log.FieldGeneration, token.Generation)
	return token, nil
}

// Deactivate tears down page if it is the active one. Teardown failures are
// logged; teardown always runs to completion.
func (c *Controller) Deactivate(ctx context.Context, page string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil || c.active.token.Page != page {
		return
	}
	c.deactivateLocked(ctx)
}

// Close deactivates whatever page is active.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active != nil {
		c.deactivateLocked(context.Background())
	}
	return nil
}

// caller holds c.mu
func (c *Controller) deactivateLocked(ctx context.Context) {
	act := c.active
	c.active = nil
	c.current.Store(nil)

	var errs []error
	if u, ok := act.comp.(Unmounter); ok {
		if err := safeUnmount(ctx, u, act.scope); err != nil {
			errs = append(errs, err)
		}
	}
	if err := act.scope.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		c.logger.WarnContext(ctx, "Page teardown reported errors",
			log.FieldPage, act.token.Page,
			log.FieldGeneration, act.token.Generation,
			log.FieldError, err.Error())
	}
	c.logger.DebugContext(ctx, "Page deactivated",
		log.FieldPage, act.token.Page, log.FieldGeneration, act.token.Generation)
}

func safeUnmount(ctx context.Context, u Unmounter, s *Scope) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("unmount %s: panic: %v", s.Page(), p)
		}
	}()
	return u.Unmount(ctx, s)
}

// Active returns the id of the active page, or "" when none is.
func (c *Controller) Active() string {
	if t := c.current.Load(); t != nil {
		return t.Page
	}
	return ""
}

// Token returns the token of the current activation. The zero token is
// never valid.
func (c *Controller) Token() RenderToken {
	if t := c.current.Load(); t != nil {
		return *t
	}
	return RenderToken{}
}

// Scope returns the scope of the activation token was issued for, or
// ErrStale when that activation has ended.
func (c *Controller) Scope(token RenderToken) (*Scope, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil || c.active.token.Generation != token.Generation || c.active.token.Page != token.Page {
		return nil, ErrStale
	}
	return c.active.scope, nil
}

// Defer runs fn after delay with the scope of token's activation, but only
// if that activation is still current by then. A stale call is logged and
// dropped.
func (c *Controller) Defer(token RenderToken, delay time.Duration, fn func(ctx context.Context, s *Scope)) error {
	s, err := c.Scope(token)
	if err != nil {
		c.logStale(token)
		return err
	}
	return s.Defer(delay, func(ctx context.Context) { fn(ctx, s) })
}

func (c *Controller) logStale(token RenderToken) {
	c.logger.Debug("Dropped stale render",
		log.FieldPage, token.Page, log.FieldGeneration, token.Generation)
}
