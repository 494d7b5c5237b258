package conn

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/IAL32/clickhouse-async/pkg/binary"
	"github.com/IAL32/clickhouse-async/pkg/block"
	"github.com/IAL32/clickhouse-async/pkg/proto"
)

// fakeServer drives the server side of a net.Pipe with a scripted
// exchange. Scripts run in a goroutine; failures surface on the test.
type fakeServer struct {
	t *testing.T
	r *binary.Reader
	w *binary.Writer
}

func newFakeServer(t *testing.T, nc net.Conn) *fakeServer {
	return &fakeServer{t: t, r: binary.NewReader(nc), w: binary.NewWriter(nc)}
}

func (s *fakeServer) flush() {
	if err := s.w.Flush(); err != nil {
		s.t.Errorf("server flush: %v", err)
	}
}

// readClientHello consumes the client hello and returns the offered
// revision.
func (s *fakeServer) readClientHello() uint64 {
	code, err := s.r.UVarInt()
	if err != nil || code != proto.ClientHelloPacket {
		s.t.Errorf("client hello code = %d, err = %v", code, err)
		return 0
	}
	s.r.String()  // client name
	s.r.UVarInt() // major
	s.r.UVarInt() // minor
	rev, _ := s.r.UVarInt()
	s.r.String() // database
	s.r.String() // user
	if _, err := s.r.String(); err != nil { // password
		s.t.Errorf("read client hello: %v", err)
	}
	return rev
}

func (s *fakeServer) writeHello(info *proto.ServerInfo) {
	if err := proto.WriteServerHello(s.w, info); err != nil {
		s.t.Errorf("write server hello: %v", err)
	}
	s.flush()
}

// readQuery consumes a full client query packet plus the trailing empty
// block and returns the query body. revision is the negotiated revision
// both sides agreed on.
func (s *fakeServer) readQuery(revision uint64) string {
	code, err := s.r.UVarInt()
	if err != nil || code != proto.ClientQueryPacket {
		s.t.Errorf("query code = %d, err = %v", code, err)
		return ""
	}
	s.r.String() // query id

	if revision >= proto.MinRevisionWithClientInfo {
		s.r.UInt8()  // query kind
		s.r.String() // initial user
		s.r.String() // initial query id
		s.r.String() // initial address
		s.r.UInt8()  // interface
		s.r.String() // os user
		s.r.String() // hostname
		s.r.String() // client name
		s.r.UVarInt()
		s.r.UVarInt()
		s.r.UVarInt()
		if revision >= proto.MinRevisionWithQuotaKeyInClientInfo {
			s.r.String()
		}
		if revision >= proto.MinRevisionWithVersionPatch {
			s.r.UVarInt()
		}
	}

	// Settings until the empty-name terminator.
	for {
		name, err := s.r.String()
		if err != nil {
			s.t.Errorf("read setting: %v", err)
			return ""
		}
		if name == "" {
			break
		}
		if revision >= proto.MinRevisionWithSettingsSerializedAsStrings {
			s.r.UVarInt() // important flag
			s.r.String()  // value
		} else {
			s.r.String()
		}
	}
	if revision >= proto.MinRevisionWithInterserverSecret {
		s.r.String()
	}
	s.r.UVarInt() // stage
	s.r.UVarInt() // compression
	body, err := s.r.String()
	if err != nil {
		s.t.Errorf("read query body: %v", err)
	}
	if revision >= proto.MinRevisionWithParameters {
		s.r.String()
	}

	// Trailing empty data block.
	code, err = s.r.UVarInt()
	if err != nil || code != proto.ClientDataPacket {
		s.t.Errorf("trailing block code = %d, err = %v", code, err)
		return body
	}
	s.r.String() // table name
	var b block.Block
	if err := b.Decode(s.r); err != nil {
		s.t.Errorf("decode trailing block: %v", err)
	}
	return body
}

func (s *fakeServer) readCancel() {
	code, err := s.r.UVarInt()
	if err != nil || code != proto.ClientCancelPacket {
		s.t.Errorf("cancel code = %d, err = %v", code, err)
	}
}

func (s *fakeServer) writeBlock(b *block.Block) {
	s.w.UVarInt(proto.ServerDataPacket)
	s.w.String("")
	if err := b.Encode(s.w); err != nil {
		s.t.Errorf("encode block: %v", err)
	}
	s.flush()
}

func (s *fakeServer) writeEndOfStream() {
	s.w.UVarInt(proto.ServerEndOfStreamPacket)
	s.flush()
}

func (s *fakeServer) writeException(e *proto.Exception) {
	s.w.UVarInt(proto.ServerExceptionPacket)
	if err := proto.WriteException(s.w, e); err != nil {
		s.t.Errorf("encode exception: %v", err)
	}
	s.flush()
}

func (s *fakeServer) writeProgress(p *proto.Progress) {
	s.w.UVarInt(proto.ServerProgressPacket)
	if err := p.Write(s.w); err != nil {
		s.t.Errorf("encode progress: %v", err)
	}
	s.flush()
}

func testServerInfo() *proto.ServerInfo {
	return &proto.ServerInfo{
		Name:         "TestServer",
		VersionMajor: 23,
		VersionMinor: 3,
		VersionPatch: 1,
		Revision:     54452,
		Timezone:     "UTC",
		DisplayName:  "test-node",
	}
}

// dialFake opens a connection against a scripted server. script runs on
// the server side after the handshake completes.
func dialFake(t *testing.T, opts Options, script func(s *fakeServer)) *Connection {
	t.Helper()
	clientSide, serverSide := net.Pipe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s := newFakeServer(t, serverSide)
		s.readClientHello()
		s.writeHello(testServerInfo())
		if script != nil {
			script(s)
		}
	}()
	t.Cleanup(func() {
		clientSide.Close()
		serverSide.Close()
		<-done
	})

	c, err := Open(context.Background(), clientSide, opts)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func uint8Block(t *testing.T, name string, values ...uint8) *block.Block {
	t.Helper()
	b := block.New()
	if err := b.AddColumn(name, "UInt8"); err != nil {
		t.Fatalf("add column: %v", err)
	}
	for _, v := range values {
		if err := b.Append(v); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	return b
}

func TestHandshake(t *testing.T) {
	c := dialFake(t, Options{Revision: 54451, Database: "default", User: "default"}, nil)

	info := c.ServerInfo()
	if info.Name != "TestServer" {
		t.Fatalf("server name = %q", info.Name)
	}
	if info.VersionMajor != 23 || info.VersionMinor != 3 || info.VersionPatch != 1 {
		t.Fatalf("server version = %d.%d.%d", info.VersionMajor, info.VersionMinor, info.VersionPatch)
	}
	if info.Revision != 54452 {
		t.Fatalf("server revision = %d", info.Revision)
	}
	if got := c.State(); got != StateIdle {
		t.Fatalf("state after handshake = %v", got)
	}
	// The negotiated revision is the lower of the two.
	if got := c.revision(); got != 54451 {
		t.Fatalf("negotiated revision = %d", got)
	}
}

func TestHandshakeRejected(t *testing.T) {
	clientSide, serverSide := net.Pipe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		s := newFakeServer(t, serverSide)
		s.readClientHello()
		s.writeException(&proto.Exception{Code: 516, Name: "DB::Exception", Message: "Authentication failed"})
	}()
	defer func() {
		clientSide.Close()
		serverSide.Close()
		<-done
	}()

	_, err := Open(context.Background(), clientSide, Options{User: "nobody"})
	if !errors.Is(err, ErrHandshakeRejected) {
		t.Fatalf("err = %v, want ErrHandshakeRejected", err)
	}
	var exc *proto.Exception
	if !errors.As(err, &exc) || exc.Code != 516 {
		t.Fatalf("err = %v, want wrapped exception code 516", err)
	}
}

func TestPing(t *testing.T) {
	c := dialFake(t, Options{}, func(s *fakeServer) {
		code, err := s.r.UVarInt()
		if err != nil || code != proto.ClientPingPacket {
			s.t.Errorf("ping code = %d, err = %v", code, err)
			return
		}
		s.w.UVarInt(proto.ServerPongPacket)
		s.flush()
	})

	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if got := c.State(); got != StateIdle {
		t.Fatalf("state after ping = %v", got)
	}
}

func TestQuerySelectOne(t *testing.T) {
	c := dialFake(t, Options{}, func(s *fakeServer) {
		body := s.readQuery(proto.ClientRevision)
		if body != "SELECT 1" {
			s.t.Errorf("query body = %q", body)
		}
		s.writeBlock(uint8Block(s.t, "1", 1))
		s.writeEndOfStream()
	})

	rows, err := c.Query(context.Background(), "SELECT 1", nil)
	if err != nil {
		t.Fatalf("query: %v", err)
	}

	var blocks []*block.Block
	for rows.Next() {
		blocks = append(blocks, rows.Block())
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("rows err: %v", err)
	}
	if len(blocks) != 1 {
		t.Fatalf("got %d blocks, want 1", len(blocks))
	}
	if blocks[0].Rows() != 1 {
		t.Fatalf("rows = %d, want 1", blocks[0].Rows())
	}
	row := blocks[0].Row(0)
	if len(row) != 1 || row[0] != uint8(1) {
		t.Fatalf("row = %v, want [1]", row)
	}
	if err := rows.Close(); err != nil {
		t.Fatalf("close rows: %v", err)
	}
	if got := c.State(); got != StateIdle {
		t.Fatalf("state after query = %v", got)
	}
}

func TestQueryProgress(t *testing.T) {
	c := dialFake(t, Options{}, func(s *fakeServer) {
		s.readQuery(proto.ClientRevision)
		s.writeProgress(&proto.Progress{Rows: 100, Bytes: 4096, TotalRows: 300})
		s.writeBlock(uint8Block(s.t, "x", 1, 2, 3))
		s.writeProgress(&proto.Progress{Rows: 200, Bytes: 8192})
		s.writeEndOfStream()
	})

	rows, err := c.Query(context.Background(), "SELECT x FROM t", nil)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	for rows.Next() {
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("rows err: %v", err)
	}
	p := rows.Progress()
	if p.Rows != 300 || p.Bytes != 12288 || p.TotalRows != 300 {
		t.Fatalf("progress = %+v", p)
	}
}

func TestQueryServerException(t *testing.T) {
	c := dialFake(t, Options{}, func(s *fakeServer) {
		s.readQuery(proto.ClientRevision)
		s.writeException(&proto.Exception{Code: 60, Name: "DB::Exception", Message: "Table not found"})

		// The connection must stay usable for a follow-up query.
		s.readQuery(proto.ClientRevision)
		s.writeBlock(uint8Block(s.t, "1", 1))
		s.writeEndOfStream()
	})

	rows, err := c.Query(context.Background(), "SELECT * FROM missing", nil)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if rows.Next() {
		t.Fatal("Next returned true, want stream terminated by exception")
	}
	var exc *proto.Exception
	if !errors.As(rows.Err(), &exc) {
		t.Fatalf("rows err = %v, want *proto.Exception", rows.Err())
	}
	if exc.Code != 60 || exc.Message != "Table not found" {
		t.Fatalf("exception = %+v", exc)
	}
	if got := c.State(); got != StateIdle {
		t.Fatalf("state after exception = %v, want idle", got)
	}

	// A subsequent query on the same connection succeeds.
	rows, err = c.Query(context.Background(), "SELECT 1", nil)
	if err != nil {
		t.Fatalf("second query: %v", err)
	}
	if !rows.Next() {
		t.Fatalf("second query yielded no block: %v", rows.Err())
	}
	for rows.Next() {
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("second query err: %v", err)
	}
}

func TestQueryCancelDrains(t *testing.T) {
	c := dialFake(t, Options{}, func(s *fakeServer) {
		s.readQuery(proto.ClientRevision)
		s.writeBlock(uint8Block(s.t, "x", 1))
		// The client cancels after the first block; the response
		// stream still finishes with the remaining blocks.
		s.readCancel()
		s.writeBlock(uint8Block(s.t, "x", 2))
		s.writeBlock(uint8Block(s.t, "x", 3))
		s.writeEndOfStream()

		// The connection is reusable afterwards.
		code, err := s.r.UVarInt()
		if err != nil || code != proto.ClientPingPacket {
			s.t.Errorf("post-cancel packet = %d, err = %v", code, err)
			return
		}
		s.w.UVarInt(proto.ServerPongPacket)
		s.flush()
	})

	rows, err := c.Query(context.Background(), "SELECT x FROM big", nil)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if !rows.Next() {
		t.Fatalf("first block: %v", rows.Err())
	}
	if err := rows.Close(); err != nil {
		t.Fatalf("close mid-stream: %v", err)
	}
	if got := c.State(); got != StateIdle {
		t.Fatalf("state after cancel = %v, want idle", got)
	}
	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("ping after cancel: %v", err)
	}
}

func TestCancelDrainDeadline(t *testing.T) {
	c := dialFake(t, Options{DrainTimeout: 100 * time.Millisecond}, func(s *fakeServer) {
		s.readQuery(proto.ClientRevision)
		s.writeBlock(uint8Block(s.t, "x", 1))
		// Ignore the cancel and never finish the stream; the drain
		// must give up at its deadline.
		s.readCancel()
	})

	rows, err := c.Query(context.Background(), "SELECT x FROM big", nil)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if !rows.Next() {
		t.Fatalf("first block: %v", rows.Err())
	}
	if err := rows.Close(); !errors.Is(err, ErrTimeout) {
		t.Fatalf("close err = %v, want ErrTimeout", err)
	}
	if got := c.State(); got != StateClosed {
		t.Fatalf("state after stalled drain = %v, want closed", got)
	}
}

func TestQueryUnknownPacket(t *testing.T) {
	c := dialFake(t, Options{}, func(s *fakeServer) {
		s.readQuery(proto.ClientRevision)
		// A packet code the protocol does not define. There is no
		// length envelope to skip it by.
		s.w.UVarInt(99)
		s.flush()
	})

	rows, err := c.Query(context.Background(), "SELECT 1", nil)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if rows.Next() {
		t.Fatal("Next returned true, want stream aborted")
	}
	if !errors.Is(rows.Err(), ErrConnectionLost) {
		t.Fatalf("rows err = %v, want ErrConnectionLost", rows.Err())
	}
	if got := c.State(); got != StateClosed {
		t.Fatalf("state after unknown packet = %v, want closed", got)
	}
	if c.inFlight.Load() {
		t.Fatal("query guard still held after terminal failure")
	}
}

func TestQueryBeforeHandshake(t *testing.T) {
	clientSide, serverSide := net.Pipe()
	defer clientSide.Close()
	defer serverSide.Close()

	c := &Connection{
		netConn: clientSide,
		r:       binary.NewReader(clientSide),
		w:       binary.NewWriter(clientSide),
	}
	c.state.Store(int32(StateHandshaking))

	if _, err := c.Query(context.Background(), "SELECT 1", nil); !errors.Is(err, ErrNotReady) {
		t.Fatalf("err = %v, want ErrNotReady", err)
	}
}

func TestConcurrentQuery(t *testing.T) {
	c := dialFake(t, Options{}, func(s *fakeServer) {
		s.readQuery(proto.ClientRevision)
		s.writeBlock(uint8Block(s.t, "1", 1))
		s.writeEndOfStream()
	})

	rows, err := c.Query(context.Background(), "SELECT 1", nil)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if _, err := c.Query(context.Background(), "SELECT 2", nil); !errors.Is(err, ErrConcurrentQuery) {
		t.Fatalf("err = %v, want ErrConcurrentQuery", err)
	}
	for rows.Next() {
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("rows err: %v", err)
	}
}

func TestOperationsAfterClose(t *testing.T) {
	c := dialFake(t, Options{}, nil)
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	// Idempotent.
	if err := c.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}

	if err := c.Ping(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("ping err = %v, want ErrClosed", err)
	}
	if _, err := c.Query(context.Background(), "SELECT 1", nil); !errors.Is(err, ErrClosed) {
		t.Fatalf("query err = %v, want ErrClosed", err)
	}
}

func TestReadTimeout(t *testing.T) {
	c := dialFake(t, Options{ReadTimeout: 50 * time.Millisecond}, func(s *fakeServer) {
		s.readQuery(proto.ClientRevision)
		// Never respond; the client read must time out.
	})

	rows, err := c.Query(context.Background(), "SELECT sleep(100)", nil)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if rows.Next() {
		t.Fatal("Next returned true, want timeout")
	}
	if !errors.Is(rows.Err(), ErrTimeout) {
		t.Fatalf("rows err = %v, want ErrTimeout", rows.Err())
	}
	if got := c.State(); got != StateClosed {
		t.Fatalf("state after timeout = %v, want closed", got)
	}
}
