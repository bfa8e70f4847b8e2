// Package notify carries fire-and-forget user feedback from mutating
// operations to whatever surface shows it.
package notify

import (
	"context"
	"sync"
	"time"

	"fatture/internal/log"
)

type Severity string

const (
	Success Severity = "success"
	Error   Severity = "error"
	Warning Severity = "warning"
	Info    Severity = "info"
)

// Duration is how long a toast of this severity stays visible.
func (s Severity) Duration() time.Duration {
	switch s {
	case Error:
		return 5 * time.Second
	case Warning:
		return 4 * time.Second
	default:
		return 3 * time.Second
	}
}

type Notification struct {
	Message  string
	Severity Severity
}

// Notifier shows a message to the user. Implementations must not block.
type Notifier interface {
	Notify(ctx context.Context, message string, severity Severity)
}

// Func adapts a function to Notifier.
type Func func(ctx context.Context, message string, severity Severity)

func (f Func) Notify(ctx context.Context, message string, severity Severity) {
	f(ctx, message, severity)
}

// Discard drops every notification.
var Discard Notifier = Func(func(context.Context, string, Severity) {})

// Collector queues notifications in order until a response is written.
type Collector struct {
	mu    sync.Mutex
	items []Notification
}

func (c *Collector) Notify(_ context.Context, message string, severity Severity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = append(c.items, Notification{Message: message, Severity: severity})
}

// Drain returns the queued notifications and empties the queue.
func (c *Collector) Drain() []Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.items
	c.items = nil
	return out
}

// Logger writes notifications to a log, for surfaces without a UI.
type Logger struct {
	L *log.Logger
}

func (l Logger) Notify(ctx context.Context, message string, severity Severity) {
	lg := l.L
	if lg == nil {
		lg = log.Default()
	}
	switch severity {
	case Error:
		lg.ErrorContext(ctx, message)
	case Warning:
		lg.WarnContext(ctx, message)
	default:
		lg.InfoContext(ctx, message)
	}
}

type ctxKey struct{}

// WithNotifier attaches n to ctx.
func WithNotifier(ctx context.Context, n Notifier) context.Context {
	return context.WithValue(ctx, ctxKey{}, n)
}

// FromContext returns the notifier attached to ctx, or Discard.
func FromContext(ctx context.Context) Notifier {
	if n, ok := ctx.Value(ctxKey{}).(Notifier); ok && n != nil {
		return n
	}
	return Discard
}

// Send notifies through the notifier attached to ctx.
func Send(ctx context.Context, message string, severity Severity) {
	FromContext(ctx).Notify(ctx, message, severity)
}
