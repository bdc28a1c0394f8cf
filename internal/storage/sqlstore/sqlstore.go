// Package sqlstore implements storage.TableStore over database/sql.
//
// The abstract model is kept in three tables:
//
//	ts_tables(id, name, created)
//	ts_fields(id, table_id, name, type, property, created)
//	ts_rows(id, table_id, data, created)
//
// ts_rows.data is a JSON object keyed by field id. Dialects differ only in
// DDL and placeholder syntax.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"tablesync/internal/schema"
	"tablesync/internal/storage"
)

// Dialect captures what differs between SQL engines.
type Dialect struct {
	Name string
	// DDL creates the three tables if they are missing.
	DDL []string
	// Placeholder renders the i-th (1-based) bind parameter.
	Placeholder func(i int) string
}

// QuestionMark is the placeholder style of SQLite and MySQL.
func QuestionMark(int) string { return "?" }

// AtP is the placeholder style of SQL Server.
func AtP(i int) string { return "@p" + strconv.Itoa(i) }

// Store is a database/sql backed Table Store.
type Store struct {
	db      *sql.DB
	dialect Dialect
	seq     atomic.Int64
}

// Open wraps db, creating the schema if needed. The Store owns db.
func Open(ctx context.Context, db *sql.DB, d Dialect) (*Store, error) {
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	for _, stmt := range d.DDL {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: ensure schema: %w", d.Name, err)
		}
	}
	return &Store{db: db, dialect: d}, nil
}

// DB exposes the underlying handle for tests.
func (s *Store) DB() *sql.DB { return s.db }

// q rewrites "?" markers into the dialect's placeholders.
func (s *Store) q(query string) string {
	if s.dialect.Placeholder == nil {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString(s.dialect.Placeholder(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// stamp orders rows by creation even within one clock tick.
func (s *Store) stamp() int64 {
	now := time.Now().UnixNano()
	for {
		prev := s.seq.Load()
		next := now
		if next <= prev {
			next = prev + 1
		}
		if s.seq.CompareAndSwap(prev, next) {
			return next
		}
	}
}

func (s *Store) ListTables(ctx context.Context) ([]storage.Table, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM ts_tables ORDER BY created, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []storage.Table
	for rows.Next() {
		var t storage.Table
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) CreateTable(ctx context.Context, name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%s: empty table name", s.dialect.Name)
	}
	id := storage.NewID(storage.TablePrefix)
	_, err := s.db.ExecContext(ctx, s.q(`INSERT INTO ts_tables (id, name, created) VALUES (?, ?, ?)`), id, name, s.stamp())
	if err != nil {
		return "", fmt.Errorf("create table %s: %w", name, err)
	}
	return id, nil
}

func (s *Store) DeleteTable(ctx context.Context, tableID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM ts_rows WHERE table_id = ?`), tableID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM ts_fields WHERE table_id = ?`), tableID); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, s.q(`DELETE FROM ts_tables WHERE id = ?`), tableID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrTableNotFound
	}
	return tx.Commit()
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *Store) tableExists(ctx context.Context, db querier, tableID string) error {
	var one int
	err := db.QueryRowContext(ctx, s.q(`SELECT 1 FROM ts_tables WHERE id = ?`), tableID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrTableNotFound
	}
	return err
}

func (s *Store) listFields(ctx context.Context, db querier, tableID string) ([]storage.Field, error) {
	if err := s.tableExists(ctx, db, tableID); err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx,
		s.q(`SELECT id, name, type, property FROM ts_fields WHERE table_id = ? ORDER BY created, id`), tableID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []storage.Field
	for rows.Next() {
		var (
			f    storage.Field
			typ  string
			prop sql.NullString
		)
		if err := rows.Scan(&f.ID, &f.Name, &typ, &prop); err != nil {
			return nil, err
		}
		f.Type = schema.FieldType(typ)
		if f.Property, err = storage.DecodeProperty(prop.String); err != nil {
			return nil, fmt.Errorf("field %s property: %w", f.ID, err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *Store) ListFields(ctx context.Context, tableID string) ([]storage.Field, error) {
	return s.listFields(ctx, s.db, tableID)
}

func (s *Store) CreateField(ctx context.Context, tableID string, in storage.FieldInput) (string, error) {
	if in.Name == "" {
		return "", fmt.Errorf("%s: empty field name", s.dialect.Name)
	}
	if err := s.tableExists(ctx, s.db, tableID); err != nil {
		return "", err
	}
	prop, err := storage.EncodeProperty(in.Property)
	if err != nil {
		return "", err
	}
	id := storage.NewID(storage.FieldPrefix)
	_, err = s.db.ExecContext(ctx,
		s.q(`INSERT INTO ts_fields (id, table_id, name, type, property, created) VALUES (?, ?, ?, ?, ?, ?)`),
		id, tableID, in.Name, string(in.Type), prop, s.stamp())
	if err != nil {
		return "", fmt.Errorf("create field %s: %w", in.Name, err)
	}
	return id, nil
}

func (s *Store) RenameField(ctx context.Context, tableID, fieldID, name string) error {
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE ts_fields SET name = ? WHERE table_id = ? AND id = ?`), name, tableID, fieldID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrFieldNotFound
	}
	return nil
}

func (s *Store) DeleteField(ctx context.Context, tableID, fieldID string) error {
	res, err := s.db.ExecContext(ctx, s.q(`DELETE FROM ts_fields WHERE table_id = ? AND id = ?`), tableID, fieldID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrFieldNotFound
	}
	return nil
}

// InsertRows validates every row against the live field list and inserts
// them in one transaction.
func (s *Store) InsertRows(ctx context.Context, tableID string, rows []storage.Row) ([]string, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	fields, err := s.listFields(ctx, tx, tableID)
	if err != nil {
		return nil, err
	}
	known := make(map[string]bool, len(fields))
	for _, f := range fields {
		known[f.ID] = true
	}

	stmt, err := tx.PrepareContext(ctx, s.q(`INSERT INTO ts_rows (id, table_id, data, created) VALUES (?, ?, ?, ?)`))
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	ids := make([]string, 0, len(rows))
	for i, r := range rows {
		data, err := storage.EncodeRow(r, known)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		id := storage.NewID(storage.RowPrefix)
		if _, err := stmt.ExecContext(ctx, id, tableID, string(data), s.stamp()); err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		ids = append(ids, id)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *Store) DeleteRows(ctx context.Context, tableID string, rowIDs []string) error {
	if len(rowIDs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, s.q(`DELETE FROM ts_rows WHERE table_id = ? AND id = ?`))
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, id := range rowIDs {
		if _, err := stmt.ExecContext(ctx, tableID, id); err != nil {
			return fmt.Errorf("delete row %s: %w", id, err)
		}
	}
	return tx.Commit()
}

func (s *Store) ListRows(ctx context.Context, tableID string) ([]storage.StoredRow, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT id, data FROM ts_rows WHERE table_id = ? ORDER BY created, id`), tableID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []storage.StoredRow
	for rows.Next() {
		var (
			id   string
			data string
		)
		if err := rows.Scan(&id, &data); err != nil {
			return nil, err
		}
		row, err := storage.DecodeRow([]byte(data))
		if err != nil {
			return nil, fmt.Errorf("row %s: %w", id, err)
		}
		out = append(out, storage.StoredRow{ID: id, Data: row})
	}
	return out, rows.Err()
}

func (s *Store) Close() error { return s.db.Close() }

var (
	_ storage.TableStore = (*Store)(nil)
	_ storage.RowLister  = (*Store)(nil)
)
