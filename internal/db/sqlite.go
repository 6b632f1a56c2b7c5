package db

import (
	"context"
	"database/sql"
	_ "embed"
	"regexp"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

//go:embed schema/sqlite.sql
var sqliteSchema string

var pgPlaceholder = regexp.MustCompile(`\$(\d+)`)

// SQLiteDB implements DB on modernc.org/sqlite for local runs and tests.
// $N placeholders are rewritten to SQLite's numbered ?N form.
type SQLiteDB struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) a SQLite database at path and creates the
// service tables. Use ":memory:" for a private in-memory database.
func OpenSQLite(ctx context.Context, path string) (*SQLiteDB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "open sqlite")
	}
	// each connection to :memory: is a separate database
	conn.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=10000",
	}
	for _, p := range pragmas {
		if _, err := conn.ExecContext(ctx, p); err != nil {
			conn.Close()
			return nil, eris.Wrapf(err, "set pragma %q", p)
		}
	}

	if _, err := conn.ExecContext(ctx, sqliteSchema); err != nil {
		conn.Close()
		return nil, eris.Wrap(err, "apply sqlite schema")
	}
	return &SQLiteDB{db: conn}, nil
}

func rewrite(query string) string {
	return pgPlaceholder.ReplaceAllString(query, "?${1}")
}

// Query executes a SQL query and returns results as a slice of column maps.
func (s *SQLiteDB) Query(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	rows, err := s.db.QueryContext(ctx, rewrite(query), args...)
	if err != nil {
		return nil, eris.Wrap(err, "query")
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, eris.Wrap(err, "columns")
	}

	var results []map[string]any
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, eris.Wrap(err, "scan row")
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			row[c] = SerializeValue(values[i])
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "rows iteration")
	}
	return results, nil
}

// Insert executes an INSERT ... RETURNING id and returns the id as a string.
func (s *SQLiteDB) Insert(ctx context.Context, query string, args ...any) (string, error) {
	var id any
	if err := s.db.QueryRowContext(ctx, rewrite(query), args...).Scan(&id); err != nil {
		return "", eris.Wrap(err, "insert")
	}
	return stringID(id), nil
}

// Exec executes a SQL statement that does not return rows.
func (s *SQLiteDB) Exec(ctx context.Context, query string, args ...any) error {
	if _, err := s.db.ExecContext(ctx, rewrite(query), args...); err != nil {
		return eris.Wrap(err, "exec")
	}
	return nil
}

// Close closes the database.
func (s *SQLiteDB) Close() {
	s.db.Close()
}
