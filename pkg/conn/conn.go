// Package conn implements the connection state machine over the native
// protocol: handshake, ping, query dispatch, and the streaming read loop.
package conn

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IAL32/clickhouse-async/pkg/binary"
	"github.com/IAL32/clickhouse-async/pkg/block"
	"github.com/IAL32/clickhouse-async/pkg/log"
	"github.com/IAL32/clickhouse-async/pkg/metrics"
	"github.com/IAL32/clickhouse-async/pkg/proto"
)

// Connection lifecycle errors.
var (
	// ErrNotReady is returned when an operation is invoked before the
	// handshake has completed.
	ErrNotReady = errors.New("connection not ready")

	// ErrClosed is returned by every operation once the connection has
	// been closed. Closed is terminal; there is no implicit reconnect.
	ErrClosed = errors.New("connection closed")

	// ErrConnectionLost marks a transport-level failure mid-exchange.
	ErrConnectionLost = errors.New("connection lost")

	// ErrConcurrentQuery is returned when a second query or ping is
	// started while one is still in flight. The protocol is strictly
	// one request/response stream per connection.
	ErrConcurrentQuery = errors.New("concurrent use of connection")

	// ErrTimeout marks an I/O wait that exceeded its deadline. The
	// connection is closed; a timed-out stream has unknowable state.
	ErrTimeout = errors.New("protocol timeout")

	// ErrHandshakeRejected marks a server exception received in place
	// of the server hello.
	ErrHandshakeRejected = errors.New("handshake rejected")
)

// State is the connection lifecycle state.
type State int32

const (
	StateDisconnected State = iota
	StateHandshaking
	StateIdle
	StateQuerying
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateHandshaking:
		return "handshaking"
	case StateIdle:
		return "idle"
	case StateQuerying:
		return "querying"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Options configures a single connection.
type Options struct {
	Database string
	User     string
	Password string

	// Revision is the protocol revision offered in the client hello.
	// Zero means the default client revision.
	Revision uint64

	// Per-I/O timeouts. Zero disables the corresponding deadline.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// DrainTimeout bounds the post-cancel drain. Zero means a default
	// of ten seconds.
	DrainTimeout time.Duration

	// MaxLength caps any single length-prefixed field read off the
	// wire. Zero means the reader default.
	MaxLength uint64

	// Settings are sent with every query on this connection.
	Settings map[string]string

	Metrics *metrics.Metrics
}

const defaultDrainTimeout = 10 * time.Second

// Connection is one native-protocol session over one byte stream. It is
// exclusively owned by the flow driving it; handshake, query, ping and
// close must not race from independent goroutines.
type Connection struct {
	netConn net.Conn
	r       *binary.Reader
	w       *binary.Writer
	opts    Options
	server  *proto.ServerInfo

	state    atomic.Int32
	inFlight atomic.Bool
	closeMu  sync.Mutex
	closed   bool
}

// Dial establishes a TCP connection to addr and performs the handshake.
func Dial(ctx context.Context, addr string, opts Options) (*Connection, error) {
	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	c, err := Open(ctx, nc, opts)
	if err != nil {
		nc.Close()
		return nil, err
	}
	return c, nil
}

// Open performs the handshake over an established byte stream and returns
// a connection in the idle state. On failure the stream is closed.
func Open(ctx context.Context, nc net.Conn, opts Options) (*Connection, error) {
	if opts.Revision == 0 {
		opts.Revision = proto.ClientRevision
	}
	if opts.DrainTimeout == 0 {
		opts.DrainTimeout = defaultDrainTimeout
	}
	c := &Connection{
		netConn: nc,
		r:       binary.NewReader(nc),
		w:       binary.NewWriter(nc),
		opts:    opts,
	}
	if opts.MaxLength > 0 {
		c.r.SetMaxLength(opts.MaxLength)
	}

	started := time.Now()
	if err := c.handshake(ctx); err != nil {
		if opts.Metrics != nil {
			opts.Metrics.HandshakeFailed()
		}
		c.Close()
		return nil, err
	}
	if opts.Metrics != nil {
		opts.Metrics.ConnectionStarted(time.Since(started))
	}
	log.Debug("connection established",
		"server", c.server.String(),
		"timezone", c.server.Timezone)
	return c, nil
}

func (c *Connection) handshake(ctx context.Context) error {
	c.state.Store(int32(StateHandshaking))

	hello := &proto.ClientHello{
		Name:     proto.ClientName,
		Revision: c.opts.Revision,
		Database: c.opts.Database,
		User:     c.opts.User,
		Password: c.opts.Password,
	}
	if err := c.writeDeadline(ctx); err != nil {
		return err
	}
	if err := hello.Encode(c.w); err != nil {
		return c.ioFailure(err)
	}
	if err := c.w.Flush(); err != nil {
		return c.ioFailure(err)
	}

	if err := c.readDeadline(ctx); err != nil {
		return err
	}
	code, err := c.r.UVarInt()
	if err != nil {
		return c.ioFailure(err)
	}
	switch code {
	case proto.ServerHelloPacket:
		info, err := proto.ReadServerInfo(c.r)
		if err != nil {
			return c.ioFailure(err)
		}
		c.server = info
		c.state.Store(int32(StateIdle))
		return nil
	case proto.ServerExceptionPacket:
		exc, err := proto.ReadException(c.r)
		if err != nil {
			return c.ioFailure(err)
		}
		return fmt.Errorf("%w: %w", ErrHandshakeRejected, exc)
	default:
		return fmt.Errorf("%w: unexpected packet %d during handshake", ErrHandshakeRejected, code)
	}
}

// ServerInfo returns the identity the server reported during the
// handshake. It is nil before the handshake completes.
func (c *Connection) ServerInfo() *proto.ServerInfo {
	return c.server
}

// State returns the current lifecycle state.
func (c *Connection) State() State {
	return State(c.state.Load())
}

// revision is the revision both sides speak: the lower of ours and the
// server's.
func (c *Connection) revision() uint64 {
	if c.server != nil && c.server.Revision < c.opts.Revision {
		return c.server.Revision
	}
	return c.opts.Revision
}

// Ping sends a ping and waits for the matching pong. Any other packet in
// response is a protocol violation and closes the connection.
func (c *Connection) Ping(ctx context.Context) error {
	if err := c.checkIdle(); err != nil {
		return err
	}
	if !c.inFlight.CompareAndSwap(false, true) {
		return ErrConcurrentQuery
	}
	defer c.inFlight.Store(false)

	err := c.ping(ctx)
	if c.opts.Metrics != nil {
		c.opts.Metrics.PingCompleted(err == nil)
	}
	return err
}

func (c *Connection) ping(ctx context.Context) error {
	if err := c.writeDeadline(ctx); err != nil {
		return err
	}
	if err := c.w.UVarInt(proto.ClientPingPacket); err != nil {
		return c.ioFailure(err)
	}
	if err := c.w.Flush(); err != nil {
		return c.ioFailure(err)
	}

	if err := c.readDeadline(ctx); err != nil {
		return err
	}
	code, err := c.r.UVarInt()
	if err != nil {
		return c.ioFailure(err)
	}
	if code != proto.ServerPongPacket {
		c.Close()
		return fmt.Errorf("%w: expected pong, got packet %d", ErrConnectionLost, code)
	}
	return nil
}

// Query sends sql to the server and returns a stream of result blocks.
// The connection stays in the querying state until the stream is fully
// consumed or closed; it must not be used for anything else meanwhile.
func (c *Connection) Query(ctx context.Context, sql string, settings map[string]string) (*Rows, error) {
	return c.QueryID(ctx, "", sql, settings)
}

// QueryID is Query with a caller-chosen query ID.
func (c *Connection) QueryID(ctx context.Context, id, sql string, settings map[string]string) (*Rows, error) {
	if err := c.checkIdle(); err != nil {
		return nil, err
	}
	if !c.inFlight.CompareAndSwap(false, true) {
		return nil, ErrConcurrentQuery
	}
	c.state.Store(int32(StateQuerying))

	merged := make(map[string]string, len(c.opts.Settings)+len(settings))
	for k, v := range c.opts.Settings {
		merged[k] = v
	}
	for k, v := range settings {
		merged[k] = v
	}

	q := &proto.Query{
		ID:          id,
		Body:        sql,
		Settings:    merged,
		Compression: proto.CompressDisable,
		InitialUser: c.opts.User,
	}
	if err := c.sendQuery(ctx, q); err != nil {
		c.inFlight.Store(false)
		return nil, err
	}

	log.Debug("query sent", "id", id, "server", c.server.DisplayName)
	return &Rows{conn: c, ctx: ctx, started: time.Now()}, nil
}

func (c *Connection) sendQuery(ctx context.Context, q *proto.Query) error {
	if err := c.writeDeadline(ctx); err != nil {
		return err
	}
	if err := q.Encode(c.w, c.revision()); err != nil {
		return c.ioFailure(err)
	}
	// A query is always followed by a data block; with no external
	// tables to ship, an empty one.
	if err := c.writeEmptyBlock(); err != nil {
		return c.ioFailure(err)
	}
	if err := c.w.Flush(); err != nil {
		return c.ioFailure(err)
	}
	return nil
}

func (c *Connection) writeEmptyBlock() error {
	if err := c.w.UVarInt(proto.ClientDataPacket); err != nil {
		return err
	}
	if err := c.w.String(""); err != nil {
		return err
	}
	return block.New().Encode(c.w)
}

// sendCancel asks the server to stop the in-flight query. The response
// stream still has to be drained to end of stream afterwards.
func (c *Connection) sendCancel(ctx context.Context) error {
	if err := c.writeDeadline(ctx); err != nil {
		return err
	}
	if err := c.w.UVarInt(proto.ClientCancelPacket); err != nil {
		return c.ioFailure(err)
	}
	if err := c.w.Flush(); err != nil {
		return c.ioFailure(err)
	}
	return nil
}

func (c *Connection) checkIdle() error {
	switch c.State() {
	case StateIdle:
		return nil
	case StateClosed:
		return ErrClosed
	case StateQuerying:
		return ErrConcurrentQuery
	default:
		return ErrNotReady
	}
}

// queryDone returns the connection to idle after a query stream ends.
func (c *Connection) queryDone() {
	if c.State() == StateQuerying {
		c.state.Store(int32(StateIdle))
	}
	c.inFlight.Store(false)
}

// ioFailure closes the connection and maps err to the transport error
// taxonomy. Deadline expiries become ErrTimeout, everything else
// ErrConnectionLost.
func (c *Connection) ioFailure(err error) error {
	c.Close()
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	if c.opts.Metrics != nil {
		c.opts.Metrics.ConnectionLost()
	}
	return fmt.Errorf("%w: %w", ErrConnectionLost, err)
}

func (c *Connection) readDeadline(ctx context.Context) error {
	return c.deadline(ctx, c.opts.ReadTimeout, c.netConn.SetReadDeadline)
}

func (c *Connection) writeDeadline(ctx context.Context) error {
	return c.deadline(ctx, c.opts.WriteTimeout, c.netConn.SetWriteDeadline)
}

func (c *Connection) deadline(ctx context.Context, timeout time.Duration, set func(time.Time) error) error {
	if err := ctx.Err(); err != nil {
		c.Close()
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	deadline := time.Time{}
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	if err := set(deadline); err != nil {
		return c.ioFailure(err)
	}
	return nil
}

// Close releases the underlying stream. Idempotent; always succeeds.
func (c *Connection) Close() error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.state.Store(int32(StateClosed))
	c.netConn.Close()
	if c.opts.Metrics != nil {
		c.opts.Metrics.ConnectionClosed()
	}
	log.Debug("connection closed")
	return nil
}
