package http

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"fatture/internal/cache"
	"fatture/internal/chart"
	"fatture/internal/filter"
	"fatture/internal/lifecycle"
	"fatture/internal/log"
)

const sessionCookie = "fatture_session"

// Session is one browser tab's view state: the document it shows, the page
// controller driving it and the charts bound to it.
type Session struct {
	ID     string
	Doc    *lifecycle.Document
	Ctrl   *lifecycle.Controller
	Charts *chart.Adapter

	pages map[string]*pageComponent
}

func (s *Session) component(page string) *pageComponent {
	return s.pages[page]
}

// Filter returns the expense filter of the expenses page. It is zero unless
// that page is showing and the filter was changed since it was opened.
func (s *Session) Filter() filter.State {
	if c := s.component("expenses"); c != nil {
		return c.State().Filter
	}
	return filter.State{}
}

// Close tears down whatever page the session shows.
func (s *Session) Close() error {
	return s.Ctrl.Close()
}

// sessionStore keeps sessions in a TTL LRU cache. An evicted session is
// closed so none of its timers or listeners outlive it.
type sessionStore struct {
	cache  *cache.LRUCache[*Session]
	create func(id string) *Session
	logger *log.Logger
	secure bool
	ttl    time.Duration

	mu sync.Mutex
}

func newSessionStore(capacity int, ttl time.Duration, secure bool, create func(id string) *Session, logger *log.Logger) *sessionStore {
	st := &sessionStore{
		create: create,
		logger: logger.WithComponent(log.ComponentSession),
		secure: secure,
		ttl:    ttl,
	}
	st.cache = cache.NewLRUCache[*Session](capacity, ttl,
		cache.WithSlidingTTL[*Session](),
		cache.WithEvict(st.evicted))
	return st
}

func (st *sessionStore) evicted(id string, s *Session, reason cache.EvictReason) {
	if err := s.Close(); err != nil {
		st.logger.Warn("Session teardown failed",
			log.FieldSessionID, id,
			log.FieldError, err.Error())
	}
	st.logger.Debug("Session closed", log.FieldSessionID, id, "reason", string(reason))
}

// Get returns the session named by the request cookie, creating one (and
// setting the cookie) when there is none or it expired.
func (st *sessionStore) Get(w http.ResponseWriter, r *http.Request) *Session {
	if c, err := r.Cookie(sessionCookie); err == nil {
		if s, ok := st.cache.Get(c.Value); ok {
			return s
		}
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	id := uuid.NewString()
	s := st.create(id)
	st.cache.Set(id, s)
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   st.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(st.ttl.Seconds()),
	})
	st.logger.Debug("Session created", log.FieldSessionID, id)
	return s
}

// Lookup returns an existing session without creating one.
func (st *sessionStore) Lookup(r *http.Request) (*Session, bool) {
	c, err := r.Cookie(sessionCookie)
	if err != nil {
		return nil, false
	}
	return st.cache.Get(c.Value)
}

func (st *sessionStore) Len() int { return st.cache.Size() }

// Close tears every session down.
func (st *sessionStore) Close() {
	st.cache.Purge()
}
