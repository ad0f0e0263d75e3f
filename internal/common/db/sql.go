package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SQLDatabase implements Database on top of database/sql.
// Each instance owns its own connection pool.
type SQLDatabase struct {
	db      *sql.DB
	dialect Dialect
}

func openSQL(driver string, dialect Dialect, dsn string, pool PoolConfig) (*SQLDatabase, error) {
	if dsn == "" {
		return nil, fmt.Errorf("DSN cannot be empty")
	}
	pool.setDefaults()

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	db.SetMaxOpenConns(pool.MaxOpenConnections)
	db.SetMaxIdleConns(pool.MaxIdleConnections)
	db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	db.SetConnMaxIdleTime(pool.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &SQLDatabase{db: db, dialect: dialect}, nil
}

// NewSQLDatabase wraps an existing sql.DB.
func NewSQLDatabase(db *sql.DB, dialect Dialect) *SQLDatabase {
	return &SQLDatabase{db: db, dialect: dialect}
}

// Query executes a query that returns rows
func (s *SQLDatabase) Query(ctx context.Context, query string, args ...interface{}) (Rows, error) {
	return queryRows(ctx, s.db.QueryContext, Rebind(s.dialect, query), args)
}

// QueryRow executes a query that returns at most one row
func (s *SQLDatabase) QueryRow(ctx context.Context, query string, args ...interface{}) Row {
	return &sqlRow{row: s.db.QueryRowContext(ctx, Rebind(s.dialect, query), args...)}
}

// Exec executes a query that doesn't return rows
func (s *SQLDatabase) Exec(ctx context.Context, query string, args ...interface{}) (Result, error) {
	return execStmt(ctx, s.db.ExecContext, Rebind(s.dialect, query), args)
}

// Conn pins a single connection from the pool.
func (s *SQLDatabase) Conn(ctx context.Context) (Conn, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection failed: %w", err)
	}
	return &sqlConn{conn: conn, dialect: s.dialect}, nil
}

// Ping verifies a connection to the database is still alive
func (s *SQLDatabase) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	return nil
}

// Stats returns pool statistics
func (s *SQLDatabase) Stats() Stats {
	return ConvertSQLStats(s.db.Stats())
}

// Close closes the pool
func (s *SQLDatabase) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close failed: %w", err)
	}
	return nil
}

type sqlConn struct {
	conn    *sql.Conn
	dialect Dialect
}

func (c *sqlConn) Query(ctx context.Context, query string, args ...interface{}) (Rows, error) {
	return queryRows(ctx, c.conn.QueryContext, Rebind(c.dialect, query), args)
}

func (c *sqlConn) QueryRow(ctx context.Context, query string, args ...interface{}) Row {
	return &sqlRow{row: c.conn.QueryRowContext(ctx, Rebind(c.dialect, query), args...)}
}

func (c *sqlConn) Exec(ctx context.Context, query string, args ...interface{}) (Result, error) {
	return execStmt(ctx, c.conn.ExecContext, Rebind(c.dialect, query), args)
}

// Close returns the connection to the pool.
func (c *sqlConn) Close() error {
	if err := c.conn.Close(); err != nil {
		return fmt.Errorf("release connection failed: %w", err)
	}
	return nil
}

type queryFunc func(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)

type execFunc func(ctx context.Context, query string, args ...interface{}) (sql.Result, error)

func queryRows(ctx context.Context, fn queryFunc, query string, args []interface{}) (Rows, error) {
	rows, err := fn(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	return &sqlRows{rows: rows}, nil
}

func execStmt(ctx context.Context, fn execFunc, query string, args []interface{}) (Result, error) {
	result, err := fn(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("exec failed: %w", err)
	}
	return result, nil
}

type sqlRows struct {
	rows *sql.Rows
}

func (r *sqlRows) Next() bool {
	return r.rows.Next()
}

func (r *sqlRows) Scan(dest ...interface{}) error {
	if err := r.rows.Scan(dest...); err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}
	return nil
}

func (r *sqlRows) Close() error {
	return r.rows.Close()
}

func (r *sqlRows) Err() error {
	return r.rows.Err()
}

type sqlRow struct {
	row *sql.Row
}

// Scan keeps sql.ErrNoRows reachable through errors.Is.
func (r *sqlRow) Scan(dest ...interface{}) error {
	if err := r.row.Scan(dest...); err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}
	return nil
}
