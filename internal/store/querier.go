package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"

	"github.com/sells-group/evidence-cli/internal/db"
)

// Queries are written once with '?' placeholders. The SQLite querier passes
// them through; the Postgres querier rebinds them to $n.

type scannable interface {
	Scan(dest ...any) error
}

type rowIter interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}

type querier interface {
	exec(ctx context.Context, query string, args ...any) (int64, error)
	queryRow(ctx context.Context, query string, args ...any) scannable
	query(ctx context.Context, query string, args ...any) (rowIter, error)
}

// sqlStore holds the dialect-neutral query logic shared by both backends.
type sqlStore struct {
	q    querier
	inTx func(ctx context.Context, fn func(q querier) error) error
}

// --- database/sql (SQLite) ---

type sqlConn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type sqlQuerier struct {
	conn sqlConn
}

func (q sqlQuerier) exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := q.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (q sqlQuerier) queryRow(ctx context.Context, query string, args ...any) scannable {
	return q.conn.QueryRowContext(ctx, query, args...)
}

func (q sqlQuerier) query(ctx context.Context, query string, args ...any) (rowIter, error) {
	rows, err := q.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return sqlRows{rows}, nil
}

type sqlRows struct {
	*sql.Rows
}

func (r sqlRows) Close() {
	_ = r.Rows.Close()
}

// --- pgx (Postgres) ---

type pgConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type pgQuerier struct {
	conn pgConn
}

func (q pgQuerier) exec(ctx context.Context, query string, args ...any) (int64, error) {
	tag, err := q.conn.Exec(ctx, db.Rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (q pgQuerier) queryRow(ctx context.Context, query string, args ...any) scannable {
	return q.conn.QueryRow(ctx, db.Rebind(query), args...)
}

func (q pgQuerier) query(ctx context.Context, query string, args ...any) (rowIter, error) {
	return q.conn.Query(ctx, db.Rebind(query), args...)
}

// --- helpers ---

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows) || errors.Is(err, pgx.ErrNoRows)
}

func notFound(entity, id string) error {
	return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
}

func toJSON(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	return b, eris.Wrap(err, "store: marshal json")
}

func fromJSON(b []byte, v any) error {
	if len(b) == 0 {
		return nil
	}
	return eris.Wrap(json.Unmarshal(b, v), "store: unmarshal json")
}

// collect drains rows through scan, closing them when done.
func collect[T any](rows rowIter, scan func(scannable) (*T, error)) ([]T, error) {
	defer rows.Close()

	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, eris.Wrap(rows.Err(), "store: iterate rows")
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	b := make([]byte, 0, n*3)
	for i := range n {
		if i > 0 {
			b = append(b, ", "...)
		}
		b = append(b, '?')
	}
	return string(b)
}
