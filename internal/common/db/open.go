package db

import "fmt"

// Config selects and configures one relational driver.
type Config struct {
	// Driver is "mysql" (default) or "postgres".
	Driver string     `yaml:"driver"`
	DSN    string     `yaml:"dsn"`
	Pool   PoolConfig `yaml:"pool"`
}

// Open connects to the database selected by cfg.Driver.
func Open(cfg Config) (Database, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database dsn is required")
	}
	switch Dialect(cfg.Driver) {
	case "", DialectMySQL:
		return NewMySQL(MySQLConfig{DSN: cfg.DSN, Pool: cfg.Pool})
	case DialectPostgres:
		return NewPostgreSQL(PostgreSQLConfig{DSN: cfg.DSN, Pool: cfg.Pool})
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}
