// Package client is the public convenience surface over the connection
// layer: DSN parsing, host failover, query IDs, and aggregated results.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/IAL32/clickhouse-async/pkg/conn"
	"github.com/IAL32/clickhouse-async/pkg/log"
	"github.com/IAL32/clickhouse-async/pkg/proto"
)

// ErrClientClosed is returned by operations on a closed client.
var ErrClientClosed = errors.New("client closed")

// Client wraps one connection with connect-time failover across the
// configured hosts. A lost connection is re-established on the next
// operation; an in-flight query is never retried. Like the underlying
// Connection, a Client serves one query at a time.
type Client struct {
	opts Options

	mu     sync.Mutex
	conn   *conn.Connection
	closed bool
}

// Open validates the options and connects to the first reachable host.
func Open(ctx context.Context, opts Options) (*Client, error) {
	c := &Client{opts: opts.withDefaults()}
	cn, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	c.conn = cn
	return c, nil
}

// OpenDSN is Open with options parsed from a connection string.
func OpenDSN(ctx context.Context, dsn string) (*Client, error) {
	opts, err := ParseDSN(dsn)
	if err != nil {
		return nil, err
	}
	return Open(ctx, opts)
}

// dial tries every host in order, cycling the list up to RetryCount
// times, and returns the first connection that completes a handshake.
func (c *Client) dial(ctx context.Context) (*conn.Connection, error) {
	connOpts := conn.Options{
		Database:     c.opts.Database,
		User:         c.opts.User,
		Password:     c.opts.Password,
		ReadTimeout:  c.opts.ReadTimeout,
		WriteTimeout: c.opts.WriteTimeout,
		DrainTimeout: c.opts.DrainTimeout,
		MaxLength:    c.opts.MaxLength,
		Settings:     c.opts.Settings,
		Metrics:      c.opts.Metrics,
	}

	var lastErr error
	for attempt := 0; attempt < c.opts.RetryCount; attempt++ {
		if attempt > 0 && c.opts.RetryTimeout > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("dial: %w", ctx.Err())
			case <-time.After(c.opts.RetryTimeout):
			}
		}
		for _, host := range c.opts.Hosts {
			cn, err := c.dialHost(ctx, host, connOpts)
			if err == nil {
				return cn, nil
			}
			lastErr = err
			log.Warn("dial failed", "host", host, "attempt", attempt, "error", err)
			if errors.Is(err, conn.ErrHandshakeRejected) {
				// Credentials will not get better on another host.
				return nil, err
			}
			if ctx.Err() != nil {
				return nil, fmt.Errorf("dial: %w", ctx.Err())
			}
		}
	}
	return nil, fmt.Errorf("all hosts unreachable: %w", lastErr)
}

func (c *Client) dialHost(ctx context.Context, host string, connOpts conn.Options) (*conn.Connection, error) {
	if c.opts.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.DialTimeout)
		defer cancel()
	}
	return conn.Dial(ctx, host, connOpts)
}

// acquire returns a live connection, re-dialing if the previous one was
// lost or closed.
func (c *Client) acquire(ctx context.Context) (*conn.Connection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClientClosed
	}
	if c.conn != nil && c.conn.State() != conn.StateClosed {
		return c.conn, nil
	}
	cn, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	c.conn = cn
	return cn, nil
}

// ServerInfo returns the identity of the currently connected server, or
// nil when disconnected.
func (c *Client) ServerInfo() *proto.ServerInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	return c.conn.ServerInfo()
}

// Ping checks that the server is responsive, reconnecting first if
// needed.
func (c *Client) Ping(ctx context.Context) error {
	cn, err := c.acquire(ctx)
	if err != nil {
		return err
	}
	return cn.Ping(ctx)
}

// QueryStream executes sql and returns the lazy block stream. The
// client must not be used for another query until the stream is closed
// or fully consumed.
func (c *Client) QueryStream(ctx context.Context, sql string) (*conn.Rows, error) {
	cn, err := c.acquire(ctx)
	if err != nil {
		return nil, err
	}
	return cn.QueryID(ctx, uuid.NewString(), sql, nil)
}

// Query executes sql and aggregates every yielded block into one
// Result.
func (c *Client) Query(ctx context.Context, sql string) (*Result, error) {
	rows, err := c.QueryStream(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := &Result{}
	for rows.Next() {
		res.append(rows.Block())
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if res.columns == nil && rows.Header() != nil {
		res.columns = rows.Header().ColumnNames()
	}
	res.progress = rows.Progress()
	return res, nil
}

// Exec executes sql and discards any result rows.
func (c *Client) Exec(ctx context.Context, sql string) error {
	rows, err := c.QueryStream(ctx, sql)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
	}
	return rows.Err()
}

// Close releases the underlying connection. Idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
