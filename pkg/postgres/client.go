package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Option configures Client.
type Option func(*Config)

// Config holds pool settings on top of the DSN.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	ConnectTimeout  time.Duration
}

// WithPool sets the pool bounds.
func WithPool(maxConns, minConns int32) Option {
	return func(c *Config) {
		if maxConns > 0 {
			c.MaxConns = maxConns
		}
		if minConns >= 0 {
			c.MinConns = minConns
		}
	}
}

// WithConnectTimeout bounds the initial connect and ping.
func WithConnectTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.ConnectTimeout = d
	}
}

// Client owns a pgx connection pool.
type Client struct {
	pool *pgxpool.Pool
}

// NewClient parses dsn, opens the pool and pings the server.
func NewClient(ctx context.Context, dsn string, opts ...Option) (*Client, error) {
	cfg := &Config{
		DSN:             dsn,
		MaxConns:        4,
		MaxConnLifetime: 30 * time.Minute,
		ConnectTimeout:  5 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	pcfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}
	pcfg.MaxConns = cfg.MaxConns
	pcfg.MinConns = cfg.MinConns
	pcfg.MaxConnLifetime = cfg.MaxConnLifetime

	ctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &Client{pool: pool}, nil
}

// Pool exposes the underlying pool to repositories.
func (c *Client) Pool() *pgxpool.Pool {
	return c.pool
}

// Health pings the server.
func (c *Client) Health(ctx context.Context) error {
	return c.pool.Ping(ctx)
}

// InitSchema runs DDL statements in order.
func (c *Client) InitSchema(ctx context.Context, stmts []string) error {
	for _, stmt := range stmts {
		if _, err := c.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: init schema: %w", err)
		}
	}
	return nil
}

// Close releases all connections.
func (c *Client) Close() {
	c.pool.Close()
}
