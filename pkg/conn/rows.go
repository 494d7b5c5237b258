package conn

import (
	"context"
	"fmt"
	"time"

	"github.com/IAL32/clickhouse-async/pkg/block"
	"github.com/IAL32/clickhouse-async/pkg/log"
	"github.com/IAL32/clickhouse-async/pkg/proto"
)

// Rows is the lazy result stream of one query. It is single-pass: blocks
// arrive in the order the server sent them, and once consumed the stream
// cannot be rewound. The owning Connection stays busy until the stream
// ends or Close is called.
type Rows struct {
	conn    *Connection
	ctx     context.Context
	started time.Time

	header   *block.Block
	cur      *block.Block
	totals   *block.Block
	extremes *block.Block
	progress proto.Progress
	profile  proto.ProfileInfo

	done   bool
	closed bool
	err    error
}

// Next advances to the next data block. It returns false when the stream
// has ended; check Err to distinguish completion from failure.
func (r *Rows) Next() bool {
	if r.closed || r.done || r.err != nil {
		return false
	}
	for {
		ended, blockReady := r.step(r.ctx, false)
		if blockReady {
			return true
		}
		if ended {
			return false
		}
	}
}

// step reads and dispatches one packet. ended reports that the stream
// terminated (end of stream, server exception, or a failure recorded in
// r.err); blockReady reports that a data block is available in r.cur.
// In discard mode data blocks are decoded and dropped.
func (r *Rows) step(ctx context.Context, discard bool) (ended, blockReady bool) {
	c := r.conn

	if err := c.readDeadline(ctx); err != nil {
		r.fail(err)
		return true, false
	}
	code, err := c.r.UVarInt()
	if err != nil {
		r.fail(c.ioFailure(err))
		return true, false
	}

	switch code {
	case proto.ServerDataPacket:
		b, err := r.readBlock()
		if err != nil {
			r.fail(err)
			return true, false
		}
		if b.Rows() == 0 {
			// Leading schema-only block, or a trailer.
			if r.header == nil {
				r.header = b
			}
			return false, false
		}
		if c.opts.Metrics != nil {
			c.opts.Metrics.BlockReceived(b.Rows())
		}
		if discard {
			return false, false
		}
		r.cur = b
		return false, true

	case proto.ServerExceptionPacket:
		exc, err := proto.ReadException(c.r)
		if err != nil {
			r.fail(c.ioFailure(err))
			return true, false
		}
		// The server aborts the stream after an exception; the
		// connection itself stays usable.
		r.err = exc
		c.queryDone()
		if c.opts.Metrics != nil {
			c.opts.Metrics.ServerExceptionReceived()
			c.opts.Metrics.QueryFailed()
		}
		log.Debug("server exception", "code", exc.Code, "message", exc.Message)
		return true, false

	case proto.ServerProgressPacket:
		var p proto.Progress
		if err := p.Read(c.r); err != nil {
			r.fail(c.ioFailure(err))
			return true, false
		}
		r.progress.Rows += p.Rows
		r.progress.Bytes += p.Bytes
		if p.TotalRows > 0 {
			r.progress.TotalRows = p.TotalRows
		}
		return false, false

	case proto.ServerProfileInfoPacket:
		if err := r.profile.Read(c.r); err != nil {
			r.fail(c.ioFailure(err))
			return true, false
		}
		return false, false

	case proto.ServerTotalsPacket:
		b, err := r.readBlock()
		if err != nil {
			r.fail(err)
			return true, false
		}
		r.totals = b
		return false, false

	case proto.ServerExtremesPacket:
		b, err := r.readBlock()
		if err != nil {
			r.fail(err)
			return true, false
		}
		r.extremes = b
		return false, false

	case proto.ServerLogPacket:
		// Server logs ride in a data-shaped payload; decode and drop.
		if _, err := r.readBlock(); err != nil {
			r.fail(err)
			return true, false
		}
		return false, false

	case proto.ServerEndOfStreamPacket:
		r.done = true
		c.queryDone()
		if c.opts.Metrics != nil {
			c.opts.Metrics.QueryExecuted(time.Since(r.started))
		}
		return true, false

	default:
		// An unknown packet cannot be skipped on a length-free byte
		// stream; the connection is unusable from here on.
		c.Close()
		r.fail(fmt.Errorf("%w: unexpected packet %d while reading query response", ErrConnectionLost, code))
		return true, false
	}
}

// readBlock consumes one block payload: temporary table name, then the
// block itself.
func (r *Rows) readBlock() (*block.Block, error) {
	c := r.conn
	if _, err := c.r.String(); err != nil {
		return nil, c.ioFailure(err)
	}
	b := &block.Block{}
	if err := b.Decode(c.r); err != nil {
		// Corrupt framing poisons the rest of the stream.
		c.Close()
		return nil, fmt.Errorf("read block: %w", err)
	}
	return b, nil
}

// fail records a terminal stream error. The connection has already been
// closed by the failure path that produced err.
func (r *Rows) fail(err error) {
	r.err = err
	r.conn.inFlight.Store(false)
	if r.conn.opts.Metrics != nil {
		r.conn.opts.Metrics.QueryFailed()
	}
}

// Block returns the data block made available by the last Next call.
func (r *Rows) Block() *block.Block {
	return r.cur
}

// Header returns the leading zero-row block carrying the result schema,
// if the server sent one.
func (r *Rows) Header() *block.Block {
	return r.header
}

// Totals returns the totals block, if the server sent one.
func (r *Rows) Totals() *block.Block {
	return r.totals
}

// Extremes returns the extremes block, if the server sent one.
func (r *Rows) Extremes() *block.Block {
	return r.extremes
}

// Progress returns the accumulated progress counters so far.
func (r *Rows) Progress() proto.Progress {
	return r.progress
}

// ProfileInfo returns the execution profile, populated near end of
// stream.
func (r *Rows) ProfileInfo() proto.ProfileInfo {
	return r.profile
}

// Err returns the terminal error of the stream, if any. A server
// exception surfaces here as a *proto.Exception.
func (r *Rows) Err() error {
	return r.err
}

// Close releases the stream. If the caller abandons consumption before
// end of stream, Close sends a cancel packet and drains the remaining
// response so the connection returns to idle in a usable state. A drain
// that exceeds the configured deadline closes the connection instead.
func (r *Rows) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	if r.done || r.err != nil {
		return nil
	}

	c := r.conn
	if c.opts.Metrics != nil {
		c.opts.Metrics.QueryCanceled()
	}
	log.Debug("canceling query mid-stream")
	if err := c.sendCancel(context.Background()); err != nil {
		return err
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), c.opts.DrainTimeout)
	defer cancel()
	for {
		ended, _ := r.step(drainCtx, true)
		if ended {
			break
		}
	}
	if r.err != nil && !r.done {
		if _, ok := r.err.(*proto.Exception); ok {
			// A post-cancel exception still ends the stream cleanly.
			return nil
		}
		return r.err
	}
	return nil
}
