// Package postgres manages the relational store holding notebooks, their
// synthesis hierarchy and the molecules referenced by reactions.
package postgres

import (
	"context"
	"database/sql"
	"net/url"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/turtacn/molecule-search/internal/config"
	"github.com/turtacn/molecule-search/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/molecule-search/pkg/errors"
)

// DriverName is the database/sql driver registered by pgx.
const DriverName = "pgx"

// sqlOpen is a variable to allow mocking in tests.
var sqlOpen = func(driverName, dataSourceName string) (*sql.DB, error) {
	return sql.Open(driverName, dataSourceName)
}

// PostgresConfig holds the pool settings derived from config.DatabaseConfig.
type PostgresConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

// ConfigFromDatabase maps pool_size/max_overflow semantics onto database/sql:
// idle connections are the steady pool, open connections add the overflow.
func ConfigFromDatabase(cfg config.DatabaseConfig) PostgresConfig {
	pc := PostgresConfig{
		DSN:             cfg.DSN,
		MaxIdleConns:    cfg.PoolSize,
		MaxOpenConns:    cfg.PoolSize + cfg.MaxOverflow,
		ConnMaxLifetime: cfg.PoolRecycle,
		PingTimeout:     cfg.PoolTimeout,
	}
	if pc.MaxIdleConns <= 0 {
		pc.MaxIdleConns = 5
	}
	if pc.MaxOpenConns < pc.MaxIdleConns {
		pc.MaxOpenConns = pc.MaxIdleConns
	}
	if pc.ConnMaxLifetime <= 0 {
		pc.ConnMaxLifetime = 30 * time.Minute
	}
	if pc.PingTimeout <= 0 {
		pc.PingTimeout = 5 * time.Second
	}
	pc.ConnMaxIdleTime = 5 * time.Minute
	return pc
}

// Connection manages the PostgreSQL connection pool.
type Connection struct {
	db     *sql.DB
	cfg    PostgresConfig
	logger logging.Logger
	once   sync.Once
}

// NewConnection opens the pool and verifies it with a ping.
func NewConnection(cfg PostgresConfig, log logging.Logger) (*Connection, error) {
	if cfg.DSN == "" {
		return nil, errors.New(errors.ErrCodeDatabaseError, "database dsn is not configured")
	}

	db, err := sqlOpen(DriverName, cfg.DSN)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to open database connection")
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	timeout := cfg.PingTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "database connection failed")
	}

	log.Info("Connected to PostgreSQL database",
		logging.String("target", redactDSN(cfg.DSN)),
		logging.Int("max_open_conns", cfg.MaxOpenConns),
		logging.Int("max_idle_conns", cfg.MaxIdleConns),
	)

	return &Connection{
		db:     db,
		cfg:    cfg,
		logger: log,
	}, nil
}

// NewConnectionWithDB wraps an existing pool, typically a sqlmock in tests.
func NewConnectionWithDB(db *sql.DB, log logging.Logger) *Connection {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Connection{
		db:     db,
		logger: log,
	}
}

// DB returns the underlying pool.
func (c *Connection) DB() *sql.DB {
	return c.db
}

// Init runs a trivial query so start-up fails early on a broken schema search
// path or missing permissions, which a ping does not catch.
func (c *Connection) Init(ctx context.Context) error {
	var one int
	if err := c.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "database initialisation failed")
	}
	return nil
}

// HealthCheck pings the database and warns when the pool is nearly exhausted.
func (c *Connection) HealthCheck(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "database health check failed")
	}

	stats := c.Stats()
	if stats.OpenConnections > 0 {
		usage := float64(stats.InUse) / float64(stats.OpenConnections)
		if usage > 0.8 {
			c.logger.Warn("High database connection pool usage",
				logging.Int("in_use", stats.InUse),
				logging.Int("open", stats.OpenConnections),
				logging.Float64("usage", usage),
			)
		}
	}
	return nil
}

// Stats returns pool statistics.
func (c *Connection) Stats() sql.DBStats {
	return c.db.Stats()
}

// Close closes the pool once.
func (c *Connection) Close() error {
	var err error
	c.once.Do(func() {
		err = c.db.Close()
		if err == nil {
			c.logger.Info("Closed PostgreSQL database connection")
		} else {
			c.logger.Error("Failed to close PostgreSQL database connection", logging.Err(err))
		}
	})
	return err
}

// redactDSN keeps host and database for logs and drops credentials.
func redactDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.Host == "" {
		return "postgres"
	}
	return u.Host + u.Path
}
