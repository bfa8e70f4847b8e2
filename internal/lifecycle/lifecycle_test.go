package lifecycle

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fatture/internal/log"
)

type page struct {
	id      string
	mounts  int
	mount   func(ctx context.Context, s *Scope) error
	unmount func(ctx context.Context, s *Scope) error
}

func (p *page) ID() string { return p.id }

func (p *page) Mount(ctx context.Context, s *Scope) error {
	p.mounts++
	if p.mount != nil {
		return p.mount(ctx, s)
	}
	return s.Node(Container(p.id), p.id+"-body", "<p>"+p.id+"</p>")
}

func (p *page) Unmount(ctx context.Context, s *Scope) error {
	if p.unmount != nil {
		return p.unmount(ctx, s)
	}
	return nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func newController(pages ...Component) *Controller {
	c := NewController(NewDocument(), NewBus("document"), log.Discard())
	c.Register(pages...)
	return c
}

func TestActivate_Idempotent(t *testing.T) {
	p := &page{id: "expenses"}
	c := newController(p)
	ctx := context.Background()

	first, err := c.Activate(ctx, "expenses")
	require.NoError(t, err)
	second, err := c.Activate(ctx, "expenses")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, p.mounts)
	assert.Len(t, c.Document().OwnedBy("expenses"), 1)
	assert.True(t, second.Valid())
}

func TestActivate_UnknownPage(t *testing.T) {
	c := newController()
	_, err := c.Activate(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrUnknownPage)
	assert.Equal(t, "", c.Active())
}

func TestActivate_SwitchTearsDownPrevious(t *testing.T) {
	var ticks atomic.Int64
	expenses := &page{id: "expenses", mount: func(ctx context.Context, s *Scope) error {
		// filter panel lives outside the page container
		if err := s.Node("sidebar", "expense-filters", "<form></form>"); err != nil {
			return err
		}
		if err := s.Node(Container("expenses"), "expense-table", "<table></table>"); err != nil {
			return err
		}
		if err := s.Listen(s.Bus(), "filter:changed", func(context.Context, Event) {}); err != nil {
			return err
		}
		return s.Every(time.Millisecond, func(context.Context) { ticks.Add(1) })
	}}
	dashboard := &page{id: "dashboard"}
	c := newController(expenses, dashboard)
	ctx := context.Background()
	events := c.Events()

	tok, err := c.Activate(ctx, "expenses")
	require.NoError(t, err)
	scope, err := c.Scope(tok)
	require.NoError(t, err)
	require.NoError(t, scope.Listen(events, "expense:changed", func(context.Context, Event) {}))
	assert.Equal(t, 1, events.Count("expense:changed"))
	assert.Len(t, c.Document().OwnedOutside("expenses", Container("expenses")), 1)

	_, err = c.Activate(ctx, "dashboard")
	require.NoError(t, err)

	assert.Equal(t, "dashboard", c.Active())
	assert.False(t, tok.Valid())
	assert.Empty(t, c.Document().OwnedBy("expenses"))
	assert.Equal(t, 0, events.Count("expense:changed"))
	assert.Equal(t, 0, scope.Bus().Total())
	assert.True(t, scope.Closed())
	assert.Len(t, c.Document().OwnedBy("dashboard"), 1)

	stopped := ticks.Load()
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, stopped, ticks.Load())
}

func TestActivate_RepeatedNavigationDoesNotAccumulate(t *testing.T) {
	expenses := &page{id: "expenses", mount: func(ctx context.Context, s *Scope) error {
		if err := s.Node("sidebar", "expense-filters", "<form></form>"); err != nil {
			return err
		}
		return s.Node(Container("expenses"), "expense-table", "<table></table>")
	}}
	dashboard := &page{id: "dashboard"}
	c := newController(expenses, dashboard)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := c.Activate(ctx, "expenses")
		require.NoError(t, err)
		_, err = c.Activate(ctx, "dashboard")
		require.NoError(t, err)
	}
	_, err := c.Activate(ctx, "expenses")
	require.NoError(t, err)

	assert.Len(t, c.Document().Nodes("sidebar"), 1)
	assert.Len(t, c.Document().OwnedBy("expenses"), 2)
	assert.Equal(t, 6, expenses.mounts)
}

func TestDeactivate_BestEffort(t *testing.T) {
	var released []string
	p := &page{id: "analytics", mount: func(ctx context.Context, s *Scope) error {
		require.NoError(t, s.Node(Container("analytics"), "chart-a", "<canvas></canvas>"))
		require.NoError(t, s.Own("chart-a", closerFunc(func() error {
			released = append(released, "chart-a")
			return nil
		})))
		require.NoError(t, s.Own("chart-b", closerFunc(func() error {
			released = append(released, "chart-b")
			return errors.New("already destroyed")
		})))
		require.NoError(t, s.OnClose("chart-c", func() error {
			released = append(released, "chart-c")
			panic("boom")
		}))
		return nil
	}, unmount: func(context.Context, *Scope) error {
		return errors.New("unmount failed")
	}}
	c := newController(p)
	ctx := context.Background()

	_, err := c.Activate(ctx, "analytics")
	require.NoError(t, err)
	c.Deactivate(ctx, "analytics")

	assert.Equal(t, []string{"chart-c", "chart-b", "chart-a"}, released)
	assert.Empty(t, c.Document().OwnedBy("analytics"))
	assert.Equal(t, "", c.Active())
}

func TestScopeClose_JoinsErrors(t *testing.T) {
	doc := NewDocument()
	s := newScope(context.Background(), RenderToken{Page: "p", Generation: 1}, doc, log.Discard())
	errA := errors.New("a")
	errB := errors.New("b")
	require.NoError(t, s.OnClose("a", func() error { return errA }))
	require.NoError(t, s.OnClose("b", func() error { return errB }))

	err := s.Close()
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errB)
	assert.NoError(t, s.Close())
}

func TestActivate_MountFailureCleansUp(t *testing.T) {
	broken := &page{id: "settings", mount: func(ctx context.Context, s *Scope) error {
		require.NoError(t, s.Node("sidebar", "settings-nav", "<nav></nav>"))
		return errors.New("template missing")
	}}
	c := newController(broken)

	_, err := c.Activate(context.Background(), "settings")
	require.Error(t, err)
	assert.Equal(t, "", c.Active())
	assert.Equal(t, 0, c.Document().Len())
}

func TestDefer_StaleRenderDropped(t *testing.T) {
	expenses := &page{id: "expenses"}
	dashboard := &page{id: "dashboard"}
	c := newController(expenses, dashboard)
	ctx := context.Background()

	tok, err := c.Activate(ctx, "expenses")
	require.NoError(t, err)

	ran := make(chan struct{}, 1)
	require.NoError(t, c.Defer(tok, 20*time.Millisecond, func(ctx context.Context, s *Scope) {
		ran <- struct{}{}
	}))
	_, err = c.Activate(ctx, "dashboard")
	require.NoError(t, err)

	select {
	case <-ran:
		t.Fatal("deferred render ran after deactivation")
	case <-time.After(50 * time.Millisecond):
	}

	err = c.Defer(tok, 0, func(context.Context, *Scope) { ran <- struct{}{} })
	assert.ErrorIs(t, err, ErrStale)
}

func TestDefer_RunsWhileValid(t *testing.T) {
	p := &page{id: "expenses"}
	c := newController(p)
	tok, err := c.Activate(context.Background(), "expenses")
	require.NoError(t, err)

	done := make(chan string, 1)
	require.NoError(t, c.Defer(tok, time.Millisecond, func(ctx context.Context, s *Scope) {
		_ = s.Node(Container("expenses"), "expense-table", "<table>fresh</table>")
		done <- s.Page()
	}))

	select {
	case got := <-done:
		assert.Equal(t, "expenses", got)
	case <-time.After(time.Second):
		t.Fatal("deferred render did not run")
	}
	assert.Contains(t, c.Document().Render(Container("expenses")), "fresh")
}

func TestScope_WritesAfterCloseAreStale(t *testing.T) {
	doc := NewDocument()
	s := newScope(context.Background(), RenderToken{Page: "p", Generation: 1}, doc, log.Discard())
	require.NoError(t, s.Close())

	assert.ErrorIs(t, s.Node("c", "n", "x"), ErrStale)
	assert.ErrorIs(t, s.Listen(NewBus("b"), "t", func(context.Context, Event) {}), ErrStale)
	assert.ErrorIs(t, s.After(0, func(context.Context) {}), ErrStale)

	closed := false
	err := s.Own("late", closerFunc(func() error { closed = true; return nil }))
	assert.ErrorIs(t, err, ErrStale)
	assert.True(t, closed)
	assert.Equal(t, 0, doc.Len())
}

func TestReload_Remounts(t *testing.T) {
	p := &page{id: "invoices"}
	c := newController(p)
	ctx := context.Background()

	first, err := c.Activate(ctx, "invoices")
	require.NoError(t, err)
	second, err := c.Reload(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, p.mounts)
	assert.False(t, first.Valid())
	assert.True(t, second.Valid())
	assert.Greater(t, second.Generation, first.Generation)
}

func TestBus_PublishOrderAndCancel(t *testing.T) {
	b := NewBus("document")
	var got []int
	s1 := b.Subscribe("t", func(context.Context, Event) { got = append(got, 1) })
	b.Subscribe("t", func(context.Context, Event) { got = append(got, 2) })

	assert.Equal(t, 2, b.Publish(context.Background(), "t", nil))
	s1.Cancel()
	s1.Cancel()
	assert.Equal(t, 1, b.Publish(context.Background(), "t", nil))
	assert.Equal(t, []int{1, 2, 2}, got)
	assert.Equal(t, 1, b.Count("t"))
}

func TestDocument_PutReplacesWithinContainer(t *testing.T) {
	d := NewDocument()
	d.Put(Node{ID: "a", Container: "c", Owner: "p", HTML: "1"})
	d.Put(Node{ID: "b", Container: "c", Owner: "p", HTML: "2"})
	d.Put(Node{ID: "a", Container: "c", Owner: "p", HTML: "3"})

	assert.Equal(t, "32", d.Render("c"))
	assert.True(t, d.Remove("c", "a"))
	assert.False(t, d.Remove("c", "a"))
	assert.Equal(t, 1, d.RemoveOwned("p"))
	assert.Empty(t, d.Containers())
}
