// Package memory is an in-process table store, optionally seeded from JSON
// files. It is the default backend for local development and tests.
package memory

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"fatture/internal/gateway"
)

type Store struct {
	mu     sync.Mutex
	now    func() time.Time
	tables map[gateway.Table][]gateway.Row
}

var _ gateway.Gateway = (*Store)(nil)

func New() *Store {
	s := &Store{now: time.Now, tables: make(map[gateway.Table][]gateway.Row)}
	for _, t := range gateway.Tables() {
		s.tables[t] = nil
	}
	return s
}

// NewFromFiles seeds each table from <base>/<table>.json when the file
// exists. Unreadable or malformed files are ignored.
func NewFromFiles(base string) *Store {
	s := New()
	for _, t := range gateway.Tables() {
		for _, r := range readRows(filepath.Join(base, string(t)+".json")) {
			s.tables[t] = append(s.tables[t], gateway.PrepareInsert(r, s.now()))
		}
	}
	return s
}

func (s *Store) List(_ context.Context, table gateway.Table, order gateway.Order) ([]gateway.Row, error) {
	if !table.Valid() {
		return nil, gateway.Wrap(table, gateway.OpList, "", gateway.ErrUnknownTable)
	}
	s.mu.Lock()
	rows := make([]gateway.Row, len(s.tables[table]))
	for i, r := range s.tables[table] {
		rows[i] = r.Clone()
	}
	s.mu.Unlock()
	gateway.SortRows(rows, order)
	return rows, nil
}

func (s *Store) Insert(_ context.Context, table gateway.Table, row gateway.Row) (gateway.Row, error) {
	if !table.Valid() {
		return nil, gateway.Wrap(table, gateway.OpInsert, row.ID(), gateway.ErrUnknownTable)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r := gateway.PrepareInsert(row, s.now())
	if s.indexOf(table, r.ID()) >= 0 {
		return nil, gateway.Wrap(table, gateway.OpInsert, r.ID(), gateway.ErrDuplicate)
	}
	s.tables[table] = append(s.tables[table], r)
	return r.Clone(), nil
}

func (s *Store) Update(_ context.Context, table gateway.Table, id string, row gateway.Row) (gateway.Row, error) {
	if !table.Valid() {
		return nil, gateway.Wrap(table, gateway.OpUpdate, id, gateway.ErrUnknownTable)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(table, id)
	if i < 0 {
		return nil, gateway.Wrap(table, gateway.OpUpdate, id, gateway.ErrNotFound)
	}
	r := gateway.Merge(s.tables[table][i], row, s.now())
	s.tables[table][i] = r
	return r.Clone(), nil
}

func (s *Store) Delete(_ context.Context, table gateway.Table, id string) error {
	if !table.Valid() {
		return gateway.Wrap(table, gateway.OpDelete, id, gateway.ErrUnknownTable)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(table, id)
	if i < 0 {
		return gateway.Wrap(table, gateway.OpDelete, id, gateway.ErrNotFound)
	}
	rows := s.tables[table]
	s.tables[table] = append(rows[:i:i], rows[i+1:]...)
	return nil
}

func (s *Store) indexOf(table gateway.Table, id string) int {
	for i, r := range s.tables[table] {
		if r.ID() == id {
			return i
		}
	}
	return -1
}

func readRows(path string) []gateway.Row {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var rows []gateway.Row
	if err := json.Unmarshal(b, &rows); err != nil {
		return nil
	}
	return rows
}
