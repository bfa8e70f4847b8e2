package store

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fatture/internal/core"
	"fatture/internal/gateway"
	"fatture/internal/gateway/memory"
	"fatture/internal/log"
)

var errBackendDown = errors.New("backend down")

// flakyGateway wraps the memory store with failure injection and an
// optional gate that blocks mutations until released.
type flakyGateway struct {
	*memory.Store
	fail    atomic.Bool
	lists   atomic.Int32
	gate    chan struct{}
	entered chan struct{}
}

func newFlaky() *flakyGateway {
	return &flakyGateway{Store: memory.New()}
}

func (f *flakyGateway) wait() {
	if f.gate != nil {
		f.entered <- struct{}{}
		<-f.gate
	}
}

func (f *flakyGateway) List(ctx context.Context, t gateway.Table, o gateway.Order) ([]gateway.Row, error) {
	f.lists.Add(1)
	f.wait()
	if f.fail.Load() {
		return nil, errBackendDown
	}
	return f.Store.List(ctx, t, o)
}

func (f *flakyGateway) Insert(ctx context.Context, t gateway.Table, r gateway.Row) (gateway.Row, error) {
	if f.fail.Load() {
		return nil, errBackendDown
	}
	return f.Store.Insert(ctx, t, r)
}

func (f *flakyGateway) Update(ctx context.Context, t gateway.Table, id string, r gateway.Row) (gateway.Row, error) {
	f.wait()
	if f.fail.Load() {
		return nil, errBackendDown
	}
	return f.Store.Update(ctx, t, id, r)
}

func (f *flakyGateway) Delete(ctx context.Context, t gateway.Table, id string) error {
	if f.fail.Load() {
		return errBackendDown
	}
	return f.Store.Delete(ctx, t, id)
}

func expense(id, amount string) core.Expense {
	return core.Expense{ID: id, Amount: decimal.RequireFromString(amount), Description: id, Date: "2025-01-01"}
}

func newExpenses(gw gateway.Gateway) *Collection[core.Expense] {
	return New(gw, ExpenseCodec(), log.Discard())
}

func TestCollectionAddUpdateRemove(t *testing.T) {
	ctx := context.Background()
	gw := newFlaky()
	c := newExpenses(gw)

	_, err := c.Add(ctx, expense("e1", "10"))
	require.NoError(t, err)
	_, err = c.Add(ctx, expense("e2", "20"))
	require.NoError(t, err)
	assert.Equal(t, 2, c.Len())
	assert.Equal(t, []string{"e1", "e2"}, c.IDs())

	_, err = c.Add(ctx, expense("e1", "99"))
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.Equal(t, 2, c.Len())

	got, err := c.Update(ctx, "e1", func(e *core.Expense) error {
		e.Amount = decimal.NewFromInt(15)
		return nil
	})
	require.NoError(t, err)
	assert.True(t, got.Amount.Equal(decimal.NewFromInt(15)))
	stored, _ := c.Get("e1")
	assert.True(t, stored.Amount.Equal(decimal.NewFromInt(15)))

	require.NoError(t, c.Remove(ctx, "e2"))
	assert.Equal(t, 1, c.Len())
	assert.ErrorIs(t, c.Remove(ctx, "e2"), ErrNotFound)

	// A fresh collection over the same gateway sees the persisted state.
	other := newExpenses(gw)
	require.NoError(t, other.Load(ctx))
	assert.Equal(t, c.IDs(), other.IDs())
}

func TestCollectionAddAssignsID(t *testing.T) {
	c := newExpenses(newFlaky())
	got, err := c.Add(context.Background(), expense("", "5"))
	require.NoError(t, err)
	assert.NotEmpty(t, got.ID)
	_, ok := c.Get(got.ID)
	assert.True(t, ok)
}

func TestCollectionGatewayFailureLeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()
	gw := newFlaky()
	c := newExpenses(gw)
	_, err := c.Add(ctx, expense("e1", "10"))
	require.NoError(t, err)
	before := c.All()

	gw.fail.Store(true)

	_, err = c.Add(ctx, expense("e2", "20"))
	pe, ok := gateway.AsPersistence(err)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, gateway.Expenses, pe.Table)
	assert.Equal(t, gateway.OpInsert, pe.Op)

	_, err = c.Update(ctx, "e1", func(e *core.Expense) error {
		e.Description = "changed"
		return nil
	})
	assert.ErrorIs(t, err, errBackendDown)

	err = c.Remove(ctx, "e1")
	assert.ErrorIs(t, err, errBackendDown)

	err = c.Load(ctx)
	assert.ErrorIs(t, err, errBackendDown)

	assert.Equal(t, before, c.All())
}

func TestCollectionPatchErrorAndIDChange(t *testing.T) {
	ctx := context.Background()
	c := newExpenses(newFlaky())
	_, err := c.Add(ctx, expense("e1", "10"))
	require.NoError(t, err)

	boom := errors.New("invalid")
	_, err = c.Update(ctx, "e1", func(*core.Expense) error { return boom })
	assert.ErrorIs(t, err, boom)

	_, err = c.Update(ctx, "e1", func(e *core.Expense) error { e.ID = "e9"; return nil })
	assert.ErrorIs(t, err, ErrIDChanged)

	_, err = c.Update(ctx, "missing", func(*core.Expense) error { return nil })
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCollectionRejectsConcurrentMutationOfSameRecord(t *testing.T) {
	ctx := context.Background()
	gw := newFlaky()
	c := newExpenses(gw)
	_, err := c.Add(ctx, expense("e1", "10"))
	require.NoError(t, err)

	gw.gate = make(chan struct{})
	gw.entered = make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := c.Update(ctx, "e1", func(e *core.Expense) error { e.Description = "first"; return nil })
		assert.NoError(t, err)
	}()
	<-gw.entered

	_, err = c.Update(ctx, "e1", func(e *core.Expense) error { e.Description = "second"; return nil })
	assert.ErrorIs(t, err, ErrBusy)
	assert.ErrorIs(t, c.Remove(ctx, "e1"), ErrBusy)

	close(gw.gate)
	wg.Wait()

	got, _ := c.Get("e1")
	assert.Equal(t, "first", got.Description)
}

func TestCollectionLoadIsShared(t *testing.T) {
	ctx := context.Background()
	gw := newFlaky()
	_, err := gw.Store.Insert(ctx, gateway.Expenses, gateway.ExpenseRow(expense("e1", "1")))
	require.NoError(t, err)
	c := newExpenses(gw)

	gw.gate = make(chan struct{})
	gw.entered = make(chan struct{}, 2)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); assert.NoError(t, c.Load(ctx)) }()
	<-gw.entered
	go func() { defer wg.Done(); assert.NoError(t, c.Load(ctx)) }()
	assert.False(t, c.Loaded())
	close(gw.gate)
	wg.Wait()

	assert.True(t, c.Loaded())
	assert.Equal(t, 1, c.Len())
	assert.LessOrEqual(t, gw.lists.Load(), int32(2))
}

func TestCollectionLoadSkipsBadRows(t *testing.T) {
	ctx := context.Background()
	gw := newFlaky()
	_, err := gw.Store.Insert(ctx, gateway.Expenses, gateway.Row{"id": "bad", "amount": "lots"})
	require.NoError(t, err)
	_, err = gw.Store.Insert(ctx, gateway.Expenses, gateway.ExpenseRow(expense("ok", "1")))
	require.NoError(t, err)

	c := newExpenses(gw)
	require.NoError(t, c.Load(ctx))
	assert.Equal(t, []string{"ok"}, c.IDs())
}

// staleListGateway lists the table when the call starts but returns the
// rows only once released, like a slow backend answering with an older
// snapshot.
type staleListGateway struct {
	*memory.Store
	gate    chan struct{}
	entered chan struct{}
}

func (g *staleListGateway) List(ctx context.Context, t gateway.Table, o gateway.Order) ([]gateway.Row, error) {
	rows, err := g.Store.List(ctx, t, o)
	if g.gate != nil {
		g.entered <- struct{}{}
		<-g.gate
	}
	return rows, err
}

func TestCollectionLoadKeepsConcurrentMutations(t *testing.T) {
	ctx := context.Background()
	gw := &staleListGateway{Store: memory.New()}
	for _, e := range []core.Expense{expense("e1", "1"), expense("e2", "2")} {
		_, err := gw.Store.Insert(ctx, gateway.Expenses, gateway.ExpenseRow(e))
		require.NoError(t, err)
	}
	c := newExpenses(gw)
	require.NoError(t, c.Load(ctx))

	gw.gate = make(chan struct{})
	gw.entered = make(chan struct{}, 1)
	done := make(chan error, 1)
	go func() { done <- c.Load(ctx) }()
	<-gw.entered

	_, err := c.Add(ctx, expense("e3", "3"))
	require.NoError(t, err)
	_, err = c.Update(ctx, "e1", func(e *core.Expense) error {
		e.Amount = decimal.RequireFromString("10")
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, c.Remove(ctx, "e2"))

	close(gw.gate)
	require.NoError(t, <-done)

	assert.Equal(t, []string{"e1", "e3"}, c.IDs())
	got, ok := c.Get("e1")
	require.True(t, ok)
	assert.True(t, got.Amount.Equal(decimal.RequireFromString("10")))

	require.NoError(t, c.Load(ctx))
	assert.Equal(t, []string{"e1", "e3"}, c.IDs())
}
