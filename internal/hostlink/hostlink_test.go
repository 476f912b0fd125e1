package hostlink

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/layermirror/internal/protocol"
	"github.com/danmuck/layermirror/internal/protocol/frame"
	"github.com/danmuck/layermirror/internal/protocol/session"
	"github.com/danmuck/layermirror/internal/testutil/testlog"
	"github.com/google/go-cmp/cmp"
)

var errApply = errors.New("apply failed")

type fakeHandler struct {
	mu        sync.Mutex
	snapshots []int
	changes   []int64
	closed    []int
	fail      map[int64]bool
}

func (h *fakeHandler) HandleSnapshot(s protocol.Snapshot) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.snapshots = append(h.snapshots, s.ID)
	return nil
}

func (h *fakeHandler) HandleChange(c protocol.Change) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.fail[c.Count] {
		return errApply
	}
	h.changes = append(h.changes, c.Count)
	return nil
}

func (h *fakeHandler) HandleClosed(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = append(h.closed, id)
}

func (h *fakeHandler) applied() []int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]int64{}, h.changes...)
}

func snapshot(id int) protocol.Snapshot {
	return protocol.Snapshot{ID: id, Version: "1.0.0", TimeStamp: 1}
}

func change(id int, count int64) protocol.Change {
	return protocol.Change{ID: id, Version: "1.0.0", Count: count, TimeStamp: float64(count)}
}

func mustFrame(t *testing.T) func(wire []byte, err error) frame.Frame {
	return func(wire []byte, err error) frame.Frame {
		t.Helper()
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		f, err := frame.ReadFrame(bytes.NewReader(wire), frame.DefaultLimits())
		if err != nil {
			t.Fatalf("read frame: %v", err)
		}
		return f
	}
}

// sink collects frames written by a dispatcher.
type sink struct {
	frames []frame.Frame
}

func (s *sink) send(wire []byte) error {
	f, err := frame.ReadFrame(bytes.NewReader(wire), frame.DefaultLimits())
	if err != nil {
		return err
	}
	s.frames = append(s.frames, f)
	return nil
}

func TestDispatcherAcksAndResyncs(t *testing.T) {
	testlog.Start(t)
	h := &fakeHandler{fail: map[int64]bool{2: true}}
	d := NewDispatcher(h, time.Minute)
	out := &sink{}
	d.Attach(out.send)

	steps := []frame.Frame{
		mustFrame(t)(session.EncodeSnapshotFrame(1, snapshot(1))),
		mustFrame(t)(session.EncodeChangeFrame(2, change(1, 1))),
		mustFrame(t)(session.EncodeChangeFrame(3, change(1, 2))),
		mustFrame(t)(session.EncodeChangeFrame(4, change(1, 3))),
	}
	for _, f := range steps {
		if err := d.Dispatch(f); err != nil {
			t.Fatalf("dispatch %s: %v", f.Header.Type, err)
		}
	}
	if diff := cmp.Diff([]int64{1}, h.applied()); diff != "" {
		t.Fatalf("applied changes mismatch (-want +got):\n%s", diff)
	}
	if len(out.frames) != 3 {
		t.Fatalf("expected ack, ack, resync; got %d frames", len(out.frames))
	}
	ack, err := session.DecodeAckFrame(out.frames[1])
	if err != nil || ack != (session.Ack{ID: 1, Count: 1}) {
		t.Fatalf("unexpected ack %+v err=%v", ack, err)
	}
	rs, err := session.DecodeResyncFrame(out.frames[2])
	if err != nil || rs.ID != 1 || rs.Reason != errApply.Error() {
		t.Fatalf("unexpected resync %+v err=%v", rs, err)
	}
	if len(d.Pending()) != 1 {
		t.Fatalf("expected one pending resync, got %+v", d.Pending())
	}

	fresh := snapshot(1)
	fresh.Count = 3
	if err := d.Dispatch(mustFrame(t)(session.EncodeSnapshotFrame(5, fresh))); err != nil {
		t.Fatalf("dispatch resync snapshot: %v", err)
	}
	if len(d.Pending()) != 0 {
		t.Fatalf("snapshot should resolve resync, pending=%+v", d.Pending())
	}
	if err := d.Dispatch(mustFrame(t)(session.EncodeChangeFrame(6, change(1, 4)))); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if diff := cmp.Diff([]int64{1, 4}, h.applied()); diff != "" {
		t.Fatalf("applied changes mismatch (-want +got):\n%s", diff)
	}
}

func TestDispatcherDefersResyncWhileDetached(t *testing.T) {
	testlog.Start(t)
	h := &fakeHandler{fail: map[int64]bool{1: true}}
	d := NewDispatcher(h, time.Minute)
	if err := d.Dispatch(mustFrame(t)(session.EncodeChangeFrame(1, change(7, 1)))); err != nil {
		t.Fatalf("dispatch without link: %v", err)
	}
	if len(d.Pending()) != 1 {
		t.Fatalf("expected pending resync")
	}
	out := &sink{}
	d.Attach(out.send)
	if err := d.Resend(); err != nil {
		t.Fatalf("resend: %v", err)
	}
	if len(out.frames) != 1 || out.frames[0].Header.Type != frame.MsgResync {
		t.Fatalf("expected one resync frame, got %+v", out.frames)
	}
}

func TestReadAllReplaysStream(t *testing.T) {
	testlog.Start(t)
	var buf bytes.Buffer
	write := func(wire []byte, err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		buf.Write(wire)
	}
	write(session.EncodeSnapshotFrame(1, snapshot(1)))
	write(session.EncodeChangeFrame(2, change(1, 1)))
	// missing version fails decode but still names its document
	bad := frame.Frame{Header: frame.Header{Type: frame.MsgChange, Sequence: 3}, Payload: []byte(`{"id":3,"count":1}`)}
	if err := frame.WriteFrame(&buf, bad, frame.DefaultLimits()); err != nil {
		t.Fatalf("write bad frame: %v", err)
	}
	write(session.EncodeClosedFrame(4, session.Closed{ID: 1}))

	h := &fakeHandler{}
	disp, err := ReadAll(context.Background(), &buf, h, frame.Limits{})
	if err != nil {
		t.Fatalf("read all: %v", err)
	}
	if diff := cmp.Diff([]int{1}, h.snapshots); diff != "" {
		t.Fatalf("snapshots mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int64{1}, h.changes); diff != "" {
		t.Fatalf("changes mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{1}, h.closed); diff != "" {
		t.Fatalf("closed mismatch (-want +got):\n%s", diff)
	}
	pending := disp.Pending()
	if len(pending) != 1 || pending[0].DocumentID != 3 {
		t.Fatalf("expected resync pending for document 3, got %+v", pending)
	}
}

func TestReadAllTruncatedStream(t *testing.T) {
	testlog.Start(t)
	wire, err := session.EncodeSnapshotFrame(1, snapshot(1))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	_, err = ReadAll(context.Background(), bytes.NewReader(wire[:10]), &fakeHandler{}, frame.Limits{})
	if !errors.Is(err, frame.ErrShortHeader) {
		t.Fatalf("expected ErrShortHeader, got %v", err)
	}
}

func testClientConfig(addr string) Config {
	cfg := DefaultConfig()
	cfg.Addr = addr
	cfg.ClientID = "test-mirror"
	cfg.Session.HeartbeatInterval = time.Hour
	cfg.Session.Backoff.InitialDelay = 10 * time.Millisecond
	cfg.Session.Backoff.Jitter = false
	return cfg
}

func acceptHello(t *testing.T, ln net.Listener, status string) (net.Conn, *bufio.Reader, session.Hello) {
	t.Helper()
	conn, err := ln.Accept()
	if err != nil {
		t.Errorf("accept: %v", err)
		return nil, nil, session.Hello{}
	}
	br := bufio.NewReader(conn)
	hello, err := session.ReadHello(br)
	if err != nil {
		t.Errorf("read hello: %v", err)
	}
	ack := session.HelloAck{Status: status, HostVersion: "test", TimestampMS: uint64(time.Now().UnixMilli())}
	if status == session.AckStatusRejected {
		ack.Message = "go away"
	}
	if err := session.WriteHelloAck(conn, ack); err != nil {
		t.Errorf("write hello ack: %v", err)
	}
	return conn, br, hello
}

func TestClientSessionWithHost(t *testing.T) {
	testlog.Start(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	h := &fakeHandler{fail: map[int64]bool{2: true}}
	client, err := NewClient(testClientConfig(ln.Addr().String()), h)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- client.Run(ctx) }()

	conn, br, hello := acceptHello(t, ln, session.AckStatusAccepted)
	if conn == nil {
		cancel()
		t.FailNow()
	}
	defer conn.Close()
	if hello.ClientID != "test-mirror" || hello.Protocol != ProtocolName {
		t.Fatalf("unexpected hello: %+v", hello)
	}
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))

	expect := func(typ frame.MessageType) frame.Frame {
		t.Helper()
		f, err := frame.ReadFrame(br, frame.DefaultLimits())
		if err != nil {
			t.Fatalf("host read: %v", err)
		}
		if f.Header.Type != typ {
			t.Fatalf("expected %s, got %s", typ, f.Header.Type)
		}
		return f
	}
	send := func(wire []byte, err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		if _, err := conn.Write(wire); err != nil {
			t.Fatalf("host write: %v", err)
		}
	}

	send(session.EncodeSnapshotFrame(1, snapshot(1)))
	expect(frame.MsgAck)
	send(session.EncodeChangeFrame(2, change(1, 1)))
	ack, err := session.DecodeAckFrame(expect(frame.MsgAck))
	if err != nil || ack.Count != 1 {
		t.Fatalf("unexpected ack %+v err=%v", ack, err)
	}
	send(session.EncodeChangeFrame(3, change(1, 2)))
	rs, err := session.DecodeResyncFrame(expect(frame.MsgResync))
	if err != nil || rs.ID != 1 {
		t.Fatalf("unexpected resync %+v err=%v", rs, err)
	}
	if !client.Connected() {
		t.Fatalf("client should report connected")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("client did not stop")
	}
	if client.Connected() {
		t.Fatalf("client should report disconnected after stop")
	}
}

func TestClientStopsOnRejectedHello(t *testing.T) {
	testlog.Start(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	client, err := NewClient(testClientConfig(ln.Addr().String()), &fakeHandler{})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- client.Run(context.Background()) }()

	conn, _, _ := acceptHello(t, ln, session.AckStatusRejected)
	if conn != nil {
		defer conn.Close()
	}
	select {
	case err := <-done:
		if !errors.Is(err, session.ErrHelloRejected) {
			t.Fatalf("expected ErrHelloRejected, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("client did not stop")
	}
}

func TestNewClientRequiresAddr(t *testing.T) {
	testlog.Start(t)
	if _, err := NewClient(Config{Addr: "  "}, &fakeHandler{}); !errors.Is(err, ErrAddrRequired) {
		t.Fatalf("expected ErrAddrRequired, got %v", err)
	}
	c, err := NewClient(Config{Addr: DefaultAddr}, &fakeHandler{})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if c.ClientID() == "" {
		t.Fatalf("expected generated client id")
	}
}
