// Package store keeps the in-memory collections the views read from. Every
// mutation goes to the gateway first; local state changes only when the
// gateway call succeeds.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"fatture/internal/gateway"
	"fatture/internal/log"
)

var (
	// ErrBusy is returned when another mutation of the same record is still
	// in flight. Callers may retry.
	ErrBusy = errors.New("record is being modified, retry")

	ErrNotFound  = gateway.ErrNotFound
	ErrDuplicate = gateway.ErrDuplicate
	ErrIDChanged = errors.New("record id cannot change")
)

// Record is anything addressable by a unique id.
type Record interface {
	RecordID() string
}

// Codec binds a record type to its table.
type Codec[T Record] struct {
	Table  gateway.Table
	Order  gateway.Order
	Encode func(T) (gateway.Row, error)
	Decode func(gateway.Row) (T, error)
}

// Collection is an ordered set of records of one table.
type Collection[T Record] struct {
	gw     gateway.Gateway
	codec  Codec[T]
	logger *log.Logger

	mu     sync.RWMutex
	items  []T
	loaded bool
	// ids mutated while a Load is in flight; nil otherwise
	touched map[string]struct{}

	loads singleflight.Group

	flightMu sync.Mutex
	inflight map[string]struct{}
}

func New[T Record](gw gateway.Gateway, codec Codec[T], logger *log.Logger) *Collection[T] {
	if logger == nil {
		logger = log.Default()
	}
	return &Collection[T]{
		gw:       gw,
		codec:    codec,
		logger:   logger.WithComponent(log.ComponentStore).With(log.FieldTable, string(codec.Table)),
		inflight: make(map[string]struct{}),
	}
}

// Table returns the table the collection persists to.
func (c *Collection[T]) Table() gateway.Table { return c.codec.Table }

// Load replaces the collection with the table contents. Concurrent calls
// share one gateway round trip. On failure the previous contents are kept.
// Rows that cannot be decoded are skipped and logged. Records added, updated
// or removed while the round trip is in flight keep their local state.
func (c *Collection[T]) Load(ctx context.Context) error {
	_, err, _ := c.loads.Do("load", func() (any, error) {
		c.mu.Lock()
		c.touched = make(map[string]struct{})
		c.mu.Unlock()

		rows, err := c.gw.List(ctx, c.codec.Table, c.codec.Order)
		if err != nil {
			c.mu.Lock()
			c.touched = nil
			c.mu.Unlock()
			return nil, gateway.Wrap(c.codec.Table, gateway.OpList, "", err)
		}
		items, decodeErr := gateway.DecodeAll(rows, c.codec.Decode)
		if decodeErr != nil {
			c.logger.WarnContext(ctx, "Skipped undecodable rows", log.FieldError, decodeErr.Error(),
				log.FieldCount, len(rows)-len(items))
		}
		c.mu.Lock()
		if len(c.touched) > 0 {
			c.logger.DebugContext(ctx, "Merged concurrent mutations into load", log.FieldCount, len(c.touched))
			items = c.mergeLocked(items)
		}
		c.items = items
		c.touched = nil
		c.loaded = true
		c.mu.Unlock()
		return nil, nil
	})
	return err
}

// mergeLocked overlays the local state of touched records on a freshly
// listed snapshot. caller holds c.mu
func (c *Collection[T]) mergeLocked(snapshot []T) []T {
	out := make([]T, 0, len(snapshot)+len(c.touched))
	for _, it := range snapshot {
		id := it.RecordID()
		if _, ok := c.touched[id]; !ok {
			out = append(out, it)
			continue
		}
		if i := c.indexOf(id); i >= 0 {
			out = append(out, c.items[i])
			delete(c.touched, id)
		}
	}
	for id := range c.touched {
		if i := c.indexOf(id); i >= 0 {
			out = append(out, c.items[i])
		}
	}
	return out
}

// caller holds c.mu
func (c *Collection[T]) touchLocked(id string) {
	if c.touched != nil {
		c.touched[id] = struct{}{}
	}
}

// Loaded reports whether a Load has succeeded at least once.
func (c *Collection[T]) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

// Add persists item and appends it. An empty id is assigned by the gateway.
func (c *Collection[T]) Add(ctx context.Context, item T) (T, error) {
	var zero T
	id := item.RecordID()
	if id != "" {
		if _, ok := c.Get(id); ok {
			return zero, fmt.Errorf("add %s %s: %w", c.codec.Table, id, ErrDuplicate)
		}
		release, err := c.acquire(id)
		if err != nil {
			return zero, err
		}
		defer release()
	}

	row, err := c.codec.Encode(item)
	if err != nil {
		return zero, fmt.Errorf("encode %s: %w", c.codec.Table, err)
	}
	saved, err := c.gw.Insert(ctx, c.codec.Table, row)
	if err != nil {
		return zero, gateway.Wrap(c.codec.Table, gateway.OpInsert, id, err)
	}
	out, err := c.codec.Decode(saved)
	if err != nil {
		return zero, fmt.Errorf("decode %s: %w", c.codec.Table, err)
	}

	c.mu.Lock()
	c.items = append(c.items, out)
	c.touchLocked(out.RecordID())
	c.mu.Unlock()
	return out, nil
}

// Update applies patch to a copy of the record, persists the copy and swaps
// it in. The patch may return an error to abort without touching storage.
func (c *Collection[T]) Update(ctx context.Context, id string, patch func(*T) error) (T, error) {
	var zero T
	release, err := c.acquire(id)
	if err != nil {
		return zero, err
	}
	defer release()

	current, ok := c.Get(id)
	if !ok {
		return zero, fmt.Errorf("update %s %s: %w", c.codec.Table, id, ErrNotFound)
	}
	if err := patch(&current); err != nil {
		return zero, err
	}
	if current.RecordID() != id {
		return zero, fmt.Errorf("update %s %s: %w", c.codec.Table, id, ErrIDChanged)
	}

	row, err := c.codec.Encode(current)
	if err != nil {
		return zero, fmt.Errorf("encode %s: %w", c.codec.Table, err)
	}
	saved, err := c.gw.Update(ctx, c.codec.Table, id, row)
	if err != nil {
		return zero, gateway.Wrap(c.codec.Table, gateway.OpUpdate, id, err)
	}
	out, err := c.codec.Decode(saved)
	if err != nil {
		return zero, fmt.Errorf("decode %s: %w", c.codec.Table, err)
	}

	c.mu.Lock()
	if i := c.indexOf(id); i >= 0 {
		c.items[i] = out
	}
	c.touchLocked(id)
	c.mu.Unlock()
	return out, nil
}

// Remove deletes the record from storage, then from the collection.
func (c *Collection[T]) Remove(ctx context.Context, id string) error {
	release, err := c.acquire(id)
	if err != nil {
		return err
	}
	defer release()

	if _, ok := c.Get(id); !ok {
		return fmt.Errorf("remove %s %s: %w", c.codec.Table, id, ErrNotFound)
	}
	if err := c.gw.Delete(ctx, c.codec.Table, id); err != nil {
		return gateway.Wrap(c.codec.Table, gateway.OpDelete, id, err)
	}

	c.mu.Lock()
	if i := c.indexOf(id); i >= 0 {
		c.items = append(c.items[:i:i], c.items[i+1:]...)
	}
	c.touchLocked(id)
	c.mu.Unlock()
	return nil
}

// Get returns the record with id.
func (c *Collection[T]) Get(id string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if i := c.indexOf(id); i >= 0 {
		return c.items[i], true
	}
	var zero T
	return zero, false
}

// All returns a copy of the records in collection order.
func (c *Collection[T]) All() []T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]T(nil), c.items...)
}

// Len returns the number of records.
func (c *Collection[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// IDs returns every record id in collection order.
func (c *Collection[T]) IDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.items))
	for i, it := range c.items {
		out[i] = it.RecordID()
	}
	return out
}

// Rows encodes every record with the collection's codec, for exports.
func (c *Collection[T]) Rows() ([]gateway.Row, error) {
	items := c.All()
	out := make([]gateway.Row, 0, len(items))
	for _, it := range items {
		row, err := c.codec.Encode(it)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s: %w", c.codec.Table, it.RecordID(), err)
		}
		out = append(out, row)
	}
	return out, nil
}

// caller holds c.mu
func (c *Collection[T]) indexOf(id string) int {
	for i, it := range c.items {
		if it.RecordID() == id {
			return i
		}
	}
	return -1
}

func (c *Collection[T]) acquire(id string) (func(), error) {
	c.flightMu.Lock()
	defer c.flightMu.Unlock()
	if _, busy := c.inflight[id]; busy {
		return nil, fmt.Errorf("%s %s: %w", c.codec.Table, id, ErrBusy)
	}
	c.inflight[id] = struct{}{}
	return func() {
		c.flightMu.Lock()
		delete(c.inflight, id)
		c.flightMu.Unlock()
	}, nil
}
