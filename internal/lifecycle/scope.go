package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"fatture/internal/log"
)

// ErrStale is the render guard violation: work attempted on behalf of a page
// that is no longer active. It is logged and dropped, never shown.
var ErrStale = errors.New("stale render: page no longer active")

type resource struct {
	name  string
	close func() error
}

// Scope owns everything one activation of a page creates. Closing it
// releases every resource in reverse order of acquisition.
type Scope struct {
	token  RenderToken
	doc    *Document
	bus    *Bus
	logger *log.Logger

	ctx    context.Context
	cancel context.CancelFunc
	timers sync.WaitGroup

	mu        sync.Mutex
	closed    bool
	resources []resource
}

func newScope(parent context.Context, token RenderToken, doc *Document, logger *log.Logger) *Scope {
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	return &Scope{
		token:  token,
		doc:    doc,
		bus:    NewBus(token.Page),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Page returns the id of the page this scope belongs to.
func (s *Scope) Page() string { return s.token.Page }

// Token returns the render token of the activation.
func (s *Scope) Token() RenderToken { return s.token }

// Context is cancelled when the scope closes.
func (s *Scope) Context() context.Context { return s.ctx }

// Bus is the page-scoped event bus. It is cleared on close.
func (s *Scope) Bus() *Bus { return s.bus }

// Document is the session document the scope renders into.
func (s *Scope) Document() *Document { return s.doc }

// Closed reports whether the scope has been torn down.
func (s *Scope) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Node places html into container as a node owned by this page. Writing
// into a closed scope returns ErrStale and changes nothing.
func (s *Scope) Node(container, id, html string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		s.logStale("node", id)
		return ErrStale
	}
	s.doc.Put(Node{ID: id, Container: container, Owner: s.token.Page, HTML: html})
	return nil
}

// RemoveNode deletes a node this page placed earlier.
func (s *Scope) RemoveNode(container, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n, ok := s.doc.Find(id); ok && n.Owner == s.token.Page && n.Container == container {
		s.doc.Remove(container, id)
	}
}

// Listen subscribes h on bus for the lifetime of the scope. The bus may be
// the page bus or a document level bus shared across pages.
func (s *Scope) Listen(bus *Bus, topic string, h Handler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStale
	}
	sub := bus.Subscribe(topic, func(ctx context.Context, ev Event) {
		if s.Closed() {
			return
		}
		h(ctx, ev)
	})
	s.resources = append(s.resources, resource{
		name:  fmt.Sprintf("listener %s/%s", bus.Name(), topic),
		close: sub.Close,
	})
	return nil
}

// Every calls fn on each tick of interval until the scope closes.
func (s *Scope) Every(interval time.Duration, fn func(ctx context.Context)) error {
	if interval <= 0 {
		return fmt.Errorf("invalid interval %v", interval)
	}
	return s.startTimer(func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-s.ctx.Done():
				return
			case <-t.C:
				if s.ctx.Err() != nil {
					return
				}
				s.safeCall("interval", fn)
			}
		}
	})
}

// After calls fn once after delay unless the scope closes first.
func (s *Scope) After(delay time.Duration, fn func(ctx context.Context)) error {
	return s.startTimer(func() {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-s.ctx.Done():
		case <-t.C:
			if s.ctx.Err() == nil {
				s.safeCall("timeout", fn)
			}
		}
	})
}

// Defer runs fn after delay if the activation is still the current one by
// then. Stale calls are logged and dropped.
func (s *Scope) Defer(delay time.Duration, fn func(ctx context.Context)) error {
	return s.After(delay, func(ctx context.Context) {
		if !s.token.Valid() {
			s.logStale("defer", "")
			return
		}
		fn(ctx)
	})
}

func (s *Scope) startTimer(loop func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStale
	}
	s.timers.Add(1)
	go func() {
		defer s.timers.Done()
		loop()
	}()
	return nil
}

func (s *Scope) safeCall(kind string, fn func(ctx context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Timer callback panicked",
				log.FieldPage, s.token.Page,
				log.FieldOperation, kind,
				log.FieldError, fmt.Sprint(r))
		}
	}()
	fn(s.ctx)
}

// Own registers c to be closed with the scope. If the scope is already
// closed, c is closed immediately and ErrStale returned.
func (s *Scope) Own(name string, c io.Closer) error {
	return s.OnClose(name, c.Close)
}

// OnClose registers a teardown function.
func (s *Scope) OnClose(name string, fn func() error) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.Join(ErrStale, fn())
	}
	s.resources = append(s.resources, resource{name: name, close: fn})
	s.mu.Unlock()
	return nil
}

// Close tears the scope down: timers are stopped and awaited, resources are
// released newest first, then every remaining node owned by the page is
// removed from the document. A failing step never stops the ones after it;
// all failures are joined into the returned error.
func (s *Scope) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	resources := s.resources
	s.resources = nil
	s.mu.Unlock()

	s.cancel()
	s.timers.Wait()

	var errs []error
	for i := len(resources) - 1; i >= 0; i-- {
		if err := release(resources[i]); err != nil {
			errs = append(errs, err)
		}
	}
	s.bus.Clear()
	s.doc.RemoveOwned(s.token.Page)
	return errors.Join(errs...)
}

func release(r resource) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("release %s: panic: %v", r.name, p)
		}
	}()
	if e := r.close(); e != nil {
		return fmt.Errorf("release %s: %w", r.name, e)
	}
	return nil
}

func (s *Scope) logStale(op, id string) {
	s.logger.Debug("Dropped stale render",
		log.FieldPage, s.token.Page,
		log.FieldGeneration, s.token.Generation,
		log.FieldOperation, op,
		log.FieldRecordID, id)
}
