package db

import (
	"context"
	"database/sql"
	"time"
)

// Querier abstracts the statements shared by a pool and a pinned connection.
type Querier interface {
	Query(ctx context.Context, query string, args ...interface{}) (Rows, error)
	QueryRow(ctx context.Context, query string, args ...interface{}) Row
	Exec(ctx context.Context, query string, args ...interface{}) (Result, error)
}

// Database is a pooled relational database handle.
type Database interface {
	Querier

	// Conn pins one pooled connection until the returned Conn is closed.
	Conn(ctx context.Context) (Conn, error)
	Ping(ctx context.Context) error
	// Stats feeds the pool gauges of the metrics registry.
	Stats() Stats
	Close() error
}

// Conn is a single connection taken from the pool.
type Conn interface {
	Querier
	Close() error
}

// Rows is the result of a query.
type Rows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Close() error
	Err() error
}

// Row is the result of QueryRow.
type Row interface {
	Scan(dest ...interface{}) error
}

// Result summarizes an executed statement.
type Result interface {
	LastInsertId() (int64, error)
	RowsAffected() (int64, error)
}

// Stats is a snapshot of pool statistics.
type Stats struct {
	MaxOpenConnections int
	OpenConnections    int
	InUse              int
	Idle               int
	WaitCount          int64
	WaitDuration       time.Duration
	MaxIdleClosed      int64
	MaxLifetimeClosed  int64
}

// PoolConfig holds connection pool settings shared by all drivers.
type PoolConfig struct {
	// MaxOpenConnections is the maximum number of open connections. Default: 10
	MaxOpenConnections int `yaml:"maxOpenConnections"`
	// MaxIdleConnections is the maximum number of idle connections. Default: 2
	MaxIdleConnections int `yaml:"maxIdleConnections"`
	// ConnMaxLifetime is the maximum time a connection may be reused. Default: 5 minutes
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
	// ConnMaxIdleTime is the maximum time a connection may be idle. Default: 10 minutes
	ConnMaxIdleTime time.Duration `yaml:"connMaxIdleTime"`
}

func (c *PoolConfig) setDefaults() {
	if c.MaxOpenConnections <= 0 {
		c.MaxOpenConnections = 10
	}
	if c.MaxIdleConnections <= 0 {
		c.MaxIdleConnections = 2
	}
	if c.ConnMaxLifetime <= 0 {
		c.ConnMaxLifetime = 5 * time.Minute
	}
	if c.ConnMaxIdleTime <= 0 {
		c.ConnMaxIdleTime = 10 * time.Minute
	}
}

// ConvertSQLStats converts sql.DBStats into Stats.
func ConvertSQLStats(s sql.DBStats) Stats {
	return Stats{
		MaxOpenConnections: s.MaxOpenConnections,
		OpenConnections:    s.OpenConnections,
		InUse:              s.InUse,
		Idle:               s.Idle,
		WaitCount:          s.WaitCount,
		WaitDuration:       s.WaitDuration,
		MaxIdleClosed:      s.MaxIdleClosed,
		MaxLifetimeClosed:  s.MaxLifetimeClosed,
	}
}
