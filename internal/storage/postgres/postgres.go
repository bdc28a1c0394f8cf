package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tablesync/internal/schema"
	"tablesync/internal/storage"
)

/*
Store implements storage.TableStore for Postgres over a pgx connection pool.

It keeps the same three-table model as the database/sql backends
(ts_tables, ts_fields, ts_rows) but stores row payloads as JSONB.
*/
type Store struct {
	pool *pgxpool.Pool
	seq  atomic.Int64
}

var ddl = []string{
	`CREATE TABLE IF NOT EXISTS ts_tables (
		id      TEXT PRIMARY KEY,
		name    TEXT NOT NULL,
		created BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS ts_fields (
		id       TEXT PRIMARY KEY,
		table_id TEXT NOT NULL,
		name     TEXT NOT NULL,
		type     TEXT NOT NULL,
		property TEXT,
		created  BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS ts_fields_table ON ts_fields (table_id)`,
	`CREATE TABLE IF NOT EXISTS ts_rows (
		id       TEXT PRIMARY KEY,
		table_id TEXT NOT NULL,
		data     JSONB NOT NULL,
		created  BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS ts_rows_table ON ts_rows (table_id)`,
}

// Open creates the pool and ensures the schema exists.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	for _, stmt := range ddl {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			pool.Close()
			return nil, fmt.Errorf("postgres: ensure schema: %w", err)
		}
	}
	return &Store{pool: pool}, nil
}

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

// Close closes the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) ListTables(ctx context.Context) ([]storage.Table, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name FROM ts_tables ORDER BY created, id`)
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
		return "", fmt.Errorf("postgres: empty table name")
	}
	id := storage.NewID(storage.TablePrefix)
	sql, args := buildInsertSQL("ts_tables", tableColumns, [][]any{{id, name, s.stamp()}})
	if _, err := s.pool.Exec(ctx, sql, args...); err != nil {
		return "", fmt.Errorf("create table %s: %w", name, err)
	}
	return id, nil
}

func (s *Store) DeleteTable(ctx context.Context, tableID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM ts_rows WHERE table_id = $1`, tableID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM ts_fields WHERE table_id = $1`, tableID); err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `DELETE FROM ts_tables WHERE id = $1`, tableID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrTableNotFound
	}
	return tx.Commit(ctx)
}

type pgQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func tableExists(ctx context.Context, q pgQuerier, tableID string) error {
	var one int
	err := q.QueryRow(ctx, `SELECT 1 FROM ts_tables WHERE id = $1`, tableID).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.ErrTableNotFound
	}
	return err
}

func listFields(ctx context.Context, q pgQuerier, tableID string) ([]storage.Field, error) {
	if err := tableExists(ctx, q, tableID); err != nil {
		return nil, err
	}
	rows, err := q.Query(ctx, `SELECT id, name, type, COALESCE(property, '') FROM ts_fields WHERE table_id = $1 ORDER BY created, id`, tableID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []storage.Field
	for rows.Next() {
		var (
			f    storage.Field
			typ  string
			prop string
		)
		if err := rows.Scan(&f.ID, &f.Name, &typ, &prop); err != nil {
			return nil, err
		}
		f.Type = schema.FieldType(typ)
		if f.Property, err = storage.DecodeProperty(prop); err != nil {
			return nil, fmt.Errorf("field %s property: %w", f.ID, err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *Store) ListFields(ctx context.Context, tableID string) ([]storage.Field, error) {
	return listFields(ctx, s.pool, tableID)
}

func (s *Store) CreateField(ctx context.Context, tableID string, in storage.FieldInput) (string, error) {
	if in.Name == "" {
		return "", fmt.Errorf("postgres: empty field name")
	}
	if err := tableExists(ctx, s.pool, tableID); err != nil {
		return "", err
	}
	prop, err := storage.EncodeProperty(in.Property)
	if err != nil {
		return "", err
	}
	id := storage.NewID(storage.FieldPrefix)
	var propArg any
	if prop != "" {
		propArg = prop
	}
	sql, args := buildInsertSQL("ts_fields", fieldColumns, [][]any{{id, tableID, in.Name, string(in.Type), propArg, s.stamp()}})
	if _, err := s.pool.Exec(ctx, sql, args...); err != nil {
		return "", fmt.Errorf("create field %s: %w", in.Name, err)
	}
	return id, nil
}

func (s *Store) RenameField(ctx context.Context, tableID, fieldID, name string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE ts_fields SET name = $1 WHERE table_id = $2 AND id = $3`, name, tableID, fieldID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrFieldNotFound
	}
	return nil
}

func (s *Store) DeleteField(ctx context.Context, tableID, fieldID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM ts_fields WHERE table_id = $1 AND id = $2`, tableID, fieldID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrFieldNotFound
	}
	return nil
}

// InsertRows writes the rows with multi-row INSERTs inside one transaction,
// splitting them so no statement exceeds the bind parameter limit.
func (s *Store) InsertRows(ctx context.Context, tableID string, rows []storage.Row) ([]string, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	fields, err := listFields(ctx, tx, tableID)
	if err != nil {
		return nil, err
	}
	known := make(map[string]bool, len(fields))
	for _, f := range fields {
		known[f.ID] = true
	}

	ids := make([]string, 0, len(rows))
	values := make([][]any, 0, len(rows))
	for i, r := range rows {
		data, err := storage.EncodeRow(r, known)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		id := storage.NewID(storage.RowPrefix)
		values = append(values, []any{id, tableID, string(data), s.stamp()})
		ids = append(ids, id)
	}

	for _, chunk := range chunkRows(values, len(rowColumns)) {
		sql, args := buildInsertSQL("ts_rows", rowColumns, chunk)
		if _, err := tx.Exec(ctx, sql, args...); err != nil {
			return nil, fmt.Errorf("insert rows: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *Store) DeleteRows(ctx context.Context, tableID string, rowIDs []string) error {
	if len(rowIDs) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM ts_rows WHERE table_id = $1 AND id = ANY($2)`, tableID, rowIDs)
	return err
}

func (s *Store) ListRows(ctx context.Context, tableID string) ([]storage.StoredRow, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, data::text FROM ts_rows WHERE table_id = $1 ORDER BY created, id`, tableID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []storage.StoredRow
	for rows.Next() {
		var id, data string
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

var (
	tableColumns = []string{"id", "name", "created"}
	fieldColumns = []string{"id", "table_id", "name", "type", "property", "created"}
	rowColumns   = []string{"id", "table_id", "data", "created"}
)

// maxBindParams is the Postgres limit on parameters in one statement.
const maxBindParams = 65535

// pgIdent double-quotes an identifier.
func pgIdent(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// buildInsertSQL renders one multi-row INSERT with $N placeholders numbered
// across all rows, and the flattened arguments in the same order. Every row
// must have len(columns) values.
func buildInsertSQL(table string, columns []string, rows [][]any) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(pgIdent(table))
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(pgIdent(c))
	}
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	p := 1
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", p)
			args = append(args, row[j])
			p++
		}
		b.WriteString(")")
	}
	return b.String(), args
}

// chunkRows splits rows so each chunk binds at most maxBindParams values.
func chunkRows(rows [][]any, width int) [][][]any {
	per := maxBindParams / width
	var out [][][]any
	for len(rows) > per {
		out = append(out, rows[:per])
		rows = rows[per:]
	}
	if len(rows) > 0 {
		out = append(out, rows)
	}
	return out
}

var (
	_ storage.TableStore = (*Store)(nil)
	_ storage.RowLister  = (*Store)(nil)
)
