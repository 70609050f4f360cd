package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"strata/pkg/logger"
)

// Client is the connect/disconnect capability of a database client whose
// lifetime is bound to a scope.
type Client interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
}

// WithClient runs fn within the lifetime of c: connect first, then a
// guaranteed disconnect once fn returns, fails or the context is cancelled.
//
// Disconnect runs exactly once per successful connect. Its failures are
// logged and discarded so teardown can never mask fn's outcome. If the
// connect handshake itself fails, no disconnect is attempted and the failure
// surfaces to the caller.
func WithClient(ctx context.Context, c Client, fn func(ctx context.Context) error) error {
	if err := c.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer func() {
		// Background context: a cancelled caller must not skip release.
		if err := c.Disconnect(context.Background()); err != nil {
			logger.Warn(ctx, "disconnect failed", "error", err)
		}
	}()
	return fn(ctx)
}

// Conn is a single dedicated database connection managed as a Client.
// Use it for maintenance work that must not share pooled connections;
// regular traffic goes through Pool.
type Conn struct {
	dsn  string
	conn *pgx.Conn
}

// NewConn creates an unconnected Conn for the given DSN.
func NewConn(dsn string) *Conn {
	return &Conn{dsn: dsn}
}

// Connect dials the database and performs the handshake.
func (c *Conn) Connect(ctx context.Context) error {
	conn, err := pgx.Connect(ctx, c.dsn)
	if err != nil {
		return err
	}
	c.conn = conn
	return nil
}

// Disconnect closes the connection.
func (c *Conn) Disconnect(ctx context.Context) error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close(ctx)
	c.conn = nil
	return err
}

// Querier exposes the live connection for query execution.
// Valid only between Connect and Disconnect.
func (c *Conn) Querier() Querier {
	return c.conn
}
