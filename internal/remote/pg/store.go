// Package pg implements remote.Store directly against Postgres through the
// pgx database/sql driver. It serves deployments that run their own
// database instead of a PostgREST gateway.
package pg

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"github.com/farmsync/farmsync/internal/remote"
)

//go:embed schema.sql
var schemaDDL string

var identRegex = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Store is a Postgres-backed remote.Store.
type Store struct {
	db *sql.DB
}

// Open connects to dsn, applies pool limits, and verifies connectivity.
func Open(ctx context.Context, dsn string) (*Store, error) {
	s, err := Dial(dsn)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := s.db.PingContext(pingCtx); err != nil {
		_ = s.db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return s, nil
}

// Dial prepares a connection pool for dsn without connecting. Connections
// are made on first use, so an unreachable server surfaces as per-call
// errors.
func Dial(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(30 * time.Minute)
	return &Store{db: db}, nil
}

// New wraps an existing database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the remote tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range strings.Split(schemaDDL, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute ddl: %w", err)
		}
	}
	return nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Select(ctx context.Context, table string, filter remote.Filter) ([]remote.Row, error) {
	if err := checkIdent(table); err != nil {
		return nil, wrap("select", table, err)
	}
	cols := sortedKeys(filter)
	query := "SELECT * FROM " + table
	args := make([]any, 0, len(cols))
	var where []string
	for _, col := range cols {
		if err := checkIdent(col); err != nil {
			return nil, wrap("select", table, err)
		}
		if filter[col] == nil {
			where = append(where, col+" IS NULL")
			continue
		}
		args = append(args, filter[col])
		where = append(where, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY 1"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrap("select", table, err)
	}
	out, err := scanRows(rows)
	if err != nil {
		return nil, wrap("select", table, err)
	}
	return out, nil
}

func (s *Store) Insert(ctx context.Context, table string, row remote.Row) (remote.Row, error) {
	cols, args, err := columnsAndArgs(table, row)
	if err != nil {
		return nil, wrap("insert", table, err)
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING *",
		table, strings.Join(cols, ", "), placeholders(len(cols), 1))
	return s.returningOne(ctx, "insert", table, query, args)
}

func (s *Store) Update(ctx context.Context, table string, id remote.ID, patch remote.Row) error {
	cols, args, err := columnsAndArgs(table, patch)
	if err != nil {
		return wrap("update", table, err)
	}
	if err := checkIdent(id.Column); err != nil {
		return wrap("update", table, err)
	}
	if len(cols) == 0 {
		return nil
	}
	sets := make([]string, len(cols))
	for i, col := range cols {
		sets[i] = fmt.Sprintf("%s = $%d", col, i+1)
	}
	args = append(args, id.Value)
	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = $%d",
		table, strings.Join(sets, ", "), id.Column, len(args))

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return wrap("update", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrap("update", table, err)
	}
	if n == 0 {
		return &remote.Error{Operation: "update", Table: table, StatusCode: 404, Err: remote.ErrNotFound}
	}
	return nil
}

func (s *Store) Upsert(ctx context.Context, table string, row remote.Row, conflictKey string) (remote.Row, error) {
	cols, args, err := columnsAndArgs(table, row)
	if err != nil {
		return nil, wrap("upsert", table, err)
	}
	if err := checkIdent(conflictKey); err != nil {
		return nil, wrap("upsert", table, err)
	}
	var sets []string
	for _, col := range cols {
		if col != conflictKey {
			sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", col, col))
		}
	}
	action := "DO NOTHING"
	if len(sets) > 0 {
		action = "DO UPDATE SET " + strings.Join(sets, ", ")
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) %s RETURNING *",
		table, strings.Join(cols, ", "), placeholders(len(cols), 1), conflictKey, action)
	return s.returningOne(ctx, "upsert", table, query, args)
}

func (s *Store) Delete(ctx context.Context, table string, id remote.ID) error {
	if err := checkIdent(table); err != nil {
		return wrap("delete", table, err)
	}
	if err := checkIdent(id.Column); err != nil {
		return wrap("delete", table, err)
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE %s = $1", table, id.Column)
	if _, err := s.db.ExecContext(ctx, query, id.Value); err != nil {
		return wrap("delete", table, err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return wrap("ping", "", err)
	}
	return nil
}

func (s *Store) returningOne(ctx context.Context, op, table, query string, args []any) (remote.Row, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrap(op, table, err)
	}
	out, err := scanRows(rows)
	if err != nil {
		return nil, wrap(op, table, err)
	}
	if len(out) == 0 {
		return nil, &remote.Error{Operation: op, Table: table, Message: "no row returned"}
	}
	return out[0], nil
}

func scanRows(rows *sql.Rows) ([]remote.Row, error) {
	defer func() { _ = rows.Close() }()

	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}
	var out []remote.Row
	for rows.Next() {
		values := make([]any, len(types))
		ptrs := make([]any, len(types))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(remote.Row, len(types))
		for i, ct := range types {
			row[ct.Name()] = normalize(ct.DatabaseTypeName(), values[i])
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// normalize converts driver values into the plain types rows carry
// elsewhere: DATE columns become YYYY-MM-DD strings, bytes become strings.
func normalize(dbType string, v any) any {
	switch x := v.(type) {
	case time.Time:
		if dbType == "DATE" {
			return x.Format("2006-01-02")
		}
		return x.UTC().Format(time.RFC3339)
	case []byte:
		return string(x)
	case int32:
		return int64(x)
	default:
		return v
	}
}

func columnsAndArgs(table string, row remote.Row) ([]string, []any, error) {
	if err := checkIdent(table); err != nil {
		return nil, nil, err
	}
	cols := sortedKeys(row)
	args := make([]any, len(cols))
	for i, col := range cols {
		if err := checkIdent(col); err != nil {
			return nil, nil, err
		}
		args[i] = row[col]
	}
	return cols, args, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func placeholders(n, start int) string {
	ph := make([]string, n)
	for i := range ph {
		ph[i] = fmt.Sprintf("$%d", start+i)
	}
	return strings.Join(ph, ", ")
}

func checkIdent(name string) error {
	if !identRegex.MatchString(name) {
		return fmt.Errorf("invalid identifier %q", name)
	}
	return nil
}

func wrap(op, table string, err error) error {
	e := &remote.Error{Operation: op, Table: table, Err: err}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		e.Code = pgErr.Code
		e.Message = pgErr.Message
	}
	return e
}
