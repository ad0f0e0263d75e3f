package db

import (
	_ "github.com/lib/pq"
)

// PostgreSQLConfig holds the configuration for a PostgreSQL connection pool
type PostgreSQLConfig struct {
	// DSN format: "user=postgres password=password host=localhost port=5432 dbname=oj sslmode=disable"
	DSN  string     `yaml:"dsn"`
	Pool PoolConfig `yaml:"pool"`
}

// NewPostgreSQL opens a PostgreSQL pool and verifies it with a ping.
// Queries keep MySQL-style '?' placeholders and are rebound to $n.
func NewPostgreSQL(cfg PostgreSQLConfig) (*SQLDatabase, error) {
	return openSQL("postgres", DialectPostgres, cfg.DSN, cfg.Pool)
}
