package db

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// MySQLConfig holds the configuration for a MySQL connection pool
type MySQLConfig struct {
	// DSN format: "user:password@tcp(host:port)/dbname?parseTime=true&loc=UTC"
	DSN  string     `yaml:"dsn"`
	Pool PoolConfig `yaml:"pool"`
}

// NewMySQL opens a MySQL pool and verifies it with a ping.
// parseTime is forced on so DATETIME columns scan into time.Time.
func NewMySQL(cfg MySQLConfig) (*SQLDatabase, error) {
	dsn := cfg.DSN
	if parsed, err := mysql.ParseDSN(cfg.DSN); err == nil {
		parsed.ParseTime = true
		dsn = parsed.FormatDSN()
	}
	return openSQL("mysql", DialectMySQL, dsn, cfg.Pool)
}

// IsDeadlock reports whether err is a MySQL deadlock or lock wait timeout.
func IsDeadlock(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1213 || myErr.Number == 1205
	}
	return false
}
