package postgres

import (
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Pool defaults used when the matching Config field is zero.
const (
	defaultMaxConns          = 25
	defaultMinConns          = 5
	defaultMaxConnLifetime   = 5 * time.Minute
	defaultHealthCheckPeriod = 30 * time.Second
)

// Config holds the connection settings of a Store.
type Config struct {
	// DSN is a libpq connection string or URL,
	// e.g. "postgres://askdocs:secret@db:5432/askdocs?sslmode=require".
	DSN string

	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	HealthCheckPeriod time.Duration

	// MigrateOnStart applies pending schema migrations in New.
	MigrateOnStart bool
}

// poolConfig parses the DSN and applies the pool limits, falling back to
// the package defaults for zero fields.
func (c Config) poolConfig() (*pgxpool.Config, error) {
	if c.DSN == "" {
		return nil, fmt.Errorf("postgres: DSN is required")
	}
	pc, err := pgxpool.ParseConfig(c.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}

	pc.MaxConns = orDefault(c.MaxConns, defaultMaxConns)
	pc.MinConns = orDefault(c.MinConns, defaultMinConns)
	if pc.MinConns > pc.MaxConns {
		pc.MinConns = pc.MaxConns
	}
	pc.MaxConnLifetime = orDefault(c.MaxConnLifetime, defaultMaxConnLifetime)
	pc.HealthCheckPeriod = orDefault(c.HealthCheckPeriod, defaultHealthCheckPeriod)
	return pc, nil
}

func orDefault[T int32 | time.Duration](v, def T) T {
	if v == 0 {
		return def
	}
	return v
}
