// Package db provides a small query interface with Postgres (pgxpool) and
// SQLite implementations.
package db

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
)

// DB defines the database operations used by the repositories.
// Statements use Postgres-style $N placeholders.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) ([]map[string]any, error)
	Insert(ctx context.Context, sql string, args ...any) (string, error)
	Exec(ctx context.Context, sql string, args ...any) error
	Close()
}

// Pool is the subset of *pgxpool.Pool used by PgxDB. pgxmock pools satisfy it.
type Pool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close()
}

// DSNFunc returns a Postgres connection string.
type DSNFunc func(ctx context.Context) (string, error)

// PgxDB implements DB using pgxpool. The pool is created on first use; a
// failed attempt is not remembered, so the next call tries again.
type PgxDB struct {
	dsnFn DSNFunc
	mu    sync.Mutex
	pool  Pool
}

// New creates a PgxDB with lazy pool initialization.
func New(dsnFn DSNFunc) *PgxDB {
	return &PgxDB{dsnFn: dsnFn}
}

// NewWithPool wraps an existing pool.
func NewWithPool(pool Pool) *PgxDB {
	return &PgxDB{pool: pool}
}

func (d *PgxDB) init(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pool != nil {
		return nil
	}

	dsn, err := d.dsnFn(ctx)
	if err != nil {
		return eris.Wrap(err, "get db credentials")
	}

	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return eris.Wrap(err, "parse pool config")
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return eris.Wrap(err, "create pool")
	}
	d.pool = pool
	return nil
}

// Query executes a SQL query and returns results as a slice of column maps.
func (d *PgxDB) Query(ctx context.Context, sql string, args ...any) ([]map[string]any, error) {
	if err := d.init(ctx); err != nil {
		return nil, err
	}

	rows, err := d.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, eris.Wrap(err, "query")
	}
	defer rows.Close()

	fieldDescs := rows.FieldDescriptions()
	var results []map[string]any

	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, eris.Wrap(err, "scan row")
		}

		row := make(map[string]any, len(fieldDescs))
		for i, fd := range fieldDescs {
			row[fd.Name] = values[i]
		}
		results = append(results, row)
	}

	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "rows iteration")
	}

	return results, nil
}

// Insert executes a SQL INSERT with RETURNING id and returns the id as a string.
func (d *PgxDB) Insert(ctx context.Context, sql string, args ...any) (string, error) {
	if err := d.init(ctx); err != nil {
		return "", err
	}

	var id any
	if err := d.pool.QueryRow(ctx, sql, args...).Scan(&id); err != nil {
		return "", eris.Wrap(err, "insert")
	}

	return stringID(id), nil
}

// Exec executes a SQL statement that does not return rows.
func (d *PgxDB) Exec(ctx context.Context, sql string, args ...any) error {
	if err := d.init(ctx); err != nil {
		return err
	}

	if _, err := d.pool.Exec(ctx, sql, args...); err != nil {
		return eris.Wrap(err, "exec")
	}
	return nil
}

// Close releases the pool if it was created.
func (d *PgxDB) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pool != nil {
		d.pool.Close()
		d.pool = nil
	}
}

func stringID(id any) string {
	switch v := id.(type) {
	case [16]byte:
		return fmt.Sprintf("%x-%x-%x-%x-%x", v[0:4], v[4:6], v[6:8], v[8:10], v[10:16])
	case []byte:
		return string(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// SerializeValue converts database values to JSON-friendly types.
func SerializeValue(v any) any {
	if v == nil {
		return nil
	}
	switch val := v.(type) {
	case []byte:
		return string(val)
	case [16]byte:
		return stringID(val)
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	default:
		return v
	}
}
