// Package sqlite stores each table as JSON documents in a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"fatture/internal/gateway"
)

type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ gateway.Gateway = (*Store)(nil)

// Open creates the database directory if needed, runs migrations and
// returns a ready store.
func Open(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single writer avoids SQLITE_BUSY under concurrent requests.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) List(ctx context.Context, table gateway.Table, order gateway.Order) ([]gateway.Row, error) {
	if !table.Valid() {
		return nil, gateway.Wrap(table, gateway.OpList, "", gateway.ErrUnknownTable)
	}
	query := fmt.Sprintf("SELECT id, doc, created_at, updated_at FROM %s", table)
	var args []any
	if order.Column != "" {
		dir := "ASC"
		if order.Desc {
			dir = "DESC"
		}
		query += " ORDER BY json_extract(doc, ?) " + dir + ", rowid"
		args = append(args, "$."+order.Column)
	} else {
		query += " ORDER BY rowid"
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, gateway.Wrap(table, gateway.OpList, "", err)
	}
	defer rows.Close()

	var out []gateway.Row
	for rows.Next() {
		var id, doc, created, updated string
		if err := rows.Scan(&id, &doc, &created, &updated); err != nil {
			return nil, gateway.Wrap(table, gateway.OpList, "", err)
		}
		r, err := decode(doc)
		if err != nil {
			return nil, gateway.Wrap(table, gateway.OpList, id, err)
		}
		r[gateway.ColumnID] = id
		r[gateway.ColumnCreatedAt] = created
		r[gateway.ColumnUpdatedAt] = updated
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, gateway.Wrap(table, gateway.OpList, "", err)
	}
	return out, nil
}

func (s *Store) Insert(ctx context.Context, table gateway.Table, row gateway.Row) (gateway.Row, error) {
	if !table.Valid() {
		return nil, gateway.Wrap(table, gateway.OpInsert, row.ID(), gateway.ErrUnknownTable)
	}
	r := gateway.PrepareInsert(row, s.now())
	doc, err := encode(r)
	if err != nil {
		return nil, gateway.Wrap(table, gateway.OpInsert, r.ID(), err)
	}
	query := fmt.Sprintf("INSERT INTO %s (id, doc, created_at, updated_at) VALUES (?, ?, ?, ?)", table)
	_, err = s.db.ExecContext(ctx, query, r.ID(), doc, r[gateway.ColumnCreatedAt], r[gateway.ColumnUpdatedAt])
	if err != nil {
		if isUniqueViolation(err) {
			err = fmt.Errorf("%w: %v", gateway.ErrDuplicate, err)
		}
		return nil, gateway.Wrap(table, gateway.OpInsert, r.ID(), err)
	}
	return r, nil
}

func (s *Store) Update(ctx context.Context, table gateway.Table, id string, row gateway.Row) (gateway.Row, error) {
	if !table.Valid() {
		return nil, gateway.Wrap(table, gateway.OpUpdate, id, gateway.ErrUnknownTable)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, gateway.Wrap(table, gateway.OpUpdate, id, err)
	}
	defer tx.Rollback()

	var doc, created string
	err = tx.QueryRowContext(ctx, fmt.Sprintf("SELECT doc, created_at FROM %s WHERE id = ?", table), id).Scan(&doc, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, gateway.Wrap(table, gateway.OpUpdate, id, gateway.ErrNotFound)
	}
	if err != nil {
		return nil, gateway.Wrap(table, gateway.OpUpdate, id, err)
	}
	existing, err := decode(doc)
	if err != nil {
		return nil, gateway.Wrap(table, gateway.OpUpdate, id, err)
	}
	existing[gateway.ColumnID] = id
	existing[gateway.ColumnCreatedAt] = created

	merged := gateway.Merge(existing, row, s.now())
	newDoc, err := encode(merged)
	if err != nil {
		return nil, gateway.Wrap(table, gateway.OpUpdate, id, err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("UPDATE %s SET doc = ?, updated_at = ? WHERE id = ?", table),
		newDoc, merged[gateway.ColumnUpdatedAt], id); err != nil {
		return nil, gateway.Wrap(table, gateway.OpUpdate, id, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, gateway.Wrap(table, gateway.OpUpdate, id, err)
	}
	return merged, nil
}

func (s *Store) Delete(ctx context.Context, table gateway.Table, id string) error {
	if !table.Valid() {
		return gateway.Wrap(table, gateway.OpDelete, id, gateway.ErrUnknownTable)
	}
	res, err := s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", table), id)
	if err != nil {
		return gateway.Wrap(table, gateway.OpDelete, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return gateway.Wrap(table, gateway.OpDelete, id, err)
	}
	if n == 0 {
		return gateway.Wrap(table, gateway.OpDelete, id, gateway.ErrNotFound)
	}
	return nil
}

// encode stores every column except the reserved ones, which live in their
// own SQL columns.
func encode(r gateway.Row) (string, error) {
	doc := make(map[string]any, len(r))
	for k, v := range r {
		switch k {
		case gateway.ColumnID, gateway.ColumnCreatedAt, gateway.ColumnUpdatedAt:
			continue
		}
		doc[k] = v
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encode row: %w", err)
	}
	return string(b), nil
}

func decode(doc string) (gateway.Row, error) {
	r := gateway.Row{}
	dec := json.NewDecoder(strings.NewReader(doc))
	dec.UseNumber()
	if err := dec.Decode(&r); err != nil {
		return nil, fmt.Errorf("decode row: %w", err)
	}
	return r, nil
}

func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "PRIMARY KEY")
}
