package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tgienger/taskdesk/internal/remote"
)

// Store implements remote.Backend on PostgreSQL. Every scoped query filters
// on user_id, mirroring the row-level security policies of the hosted store.
type Store struct {
	pool *pgxpool.Pool
}

var _ remote.Backend = (*Store)(nil)

// Config holds PostgreSQL connection configuration
type Config struct {
	Host            string        `mapstructure:"host" yaml:"host"`
	Port            int           `mapstructure:"port" yaml:"port"`
	Database        string        `mapstructure:"database" yaml:"database"`
	User            string        `mapstructure:"user" yaml:"user"`
	Password        string        `mapstructure:"password" yaml:"password"`
	SSLMode         string        `mapstructure:"sslmode" yaml:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns" yaml:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns" yaml:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime" yaml:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time" yaml:"max_conn_idle_time"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Host:            "localhost",
		Port:            5432,
		Database:        "taskdesk",
		User:            "taskdesk",
		SSLMode:         "prefer",
		MaxConns:        10,
		MinConns:        1,
		MaxConnLifetime: 1 * time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
	}
}

// ConnString builds the connection URL for cfg
func (cfg *Config) ConnString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.Database,
		cfg.SSLMode,
	)
}

// New connects to PostgreSQL and initializes the schema
func New(ctx context.Context, cfg *Config) (*Store, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return Open(ctx, cfg.ConnString(), cfg)
}

// Open connects using a connection string. Pool limits are taken from
// cfg when it is non-nil.
func Open(ctx context.Context, connString string, cfg *Config) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	if cfg != nil {
		if cfg.MaxConns > 0 {
			poolConfig.MaxConns = cfg.MaxConns
		}
		if cfg.MinConns > 0 {
			poolConfig.MinConns = cfg.MinConns
		}
		if cfg.MaxConnLifetime > 0 {
			poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
		}
		if cfg.MaxConnIdleTime > 0 {
			poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
		}
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Close closes the connection pool
func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// storeError converts a pgx error into the remote error taxonomy
func storeError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		msg := pgErr.Message
		if pgErr.Detail != "" {
			msg += ": " + pgErr.Detail
		}
		return &remote.RemoteError{Code: pgErr.Code, Message: msg, Err: err}
	}
	return &remote.RemoteError{Message: err.Error(), Err: err}
}

// rowError maps pgx.ErrNoRows on a single-row query to a NotFoundError
func rowError(err error, entity string, id int64) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return &remote.NotFoundError{Entity: entity, ID: id}
	}
	return storeError(err)
}
