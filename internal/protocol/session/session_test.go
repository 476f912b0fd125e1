package session

import (
	"bufio"
	"bytes"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/danmuck/layermirror/internal/protocol"
	"github.com/danmuck/layermirror/internal/protocol/frame"
	"github.com/danmuck/layermirror/internal/testutil/testlog"
)

func TestDelayWithoutJitter(t *testing.T) {
	testlog.Start(t)
	cfg := BackoffConfig{
		InitialDelay: 250 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     5 * time.Second,
		Jitter:       false,
	}
	want := map[int]time.Duration{
		0: 250 * time.Millisecond,
		1: 250 * time.Millisecond,
		2: 500 * time.Millisecond,
		3: time.Second,
		6: 5 * time.Second,
	}
	for attempt, d := range want {
		if got := Delay(cfg, attempt, rand.New(rand.NewSource(1))); got != d {
			t.Fatalf("attempt %d: got=%v want=%v", attempt, got, d)
		}
	}
	cfg.Jitter = true
	if got := Delay(cfg, 2, nil); got != 500*time.Millisecond {
		t.Fatalf("nil rng should not jitter, got=%v", got)
	}
}

func TestBackoffJitterVariesAndStaysCapped(t *testing.T) {
	testlog.Start(t)
	cfg := BackoffConfig{
		InitialDelay: 250 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     5 * time.Second,
		Jitter:       true,
	}
	b := NewBackoff(cfg, 7)
	seen := map[time.Duration]bool{}
	for i := 1; i <= 12; i++ {
		d := b.Next()
		if d > cfg.MaxDelay {
			t.Fatalf("attempt %d exceeded max delay: %v", i, d)
		}
		if i == 2 && (d < 250*time.Millisecond || d >= 750*time.Millisecond) {
			t.Fatalf("attempt 2 jitter out of range: %v", d)
		}
		seen[d] = true
	}
	if len(seen) < 3 {
		t.Fatalf("jitter should vary delays, got %v", seen)
	}
	if b.Attempt() != 12 {
		t.Fatalf("attempt=%d", b.Attempt())
	}
	b.Reset()
	if d := b.Next(); d < 125*time.Millisecond || d >= 375*time.Millisecond {
		t.Fatalf("first delay after reset out of range: %v", d)
	}
}

func TestResyncOutboxLifecycle(t *testing.T) {
	testlog.Start(t)
	o := NewResyncOutbox(10 * time.Second)
	now := time.Unix(1700000000, 0)

	if _, dup := o.Request(4, "layer not found", now); dup {
		t.Fatalf("first request reported as duplicate")
	}
	if _, dup := o.Request(4, "again", now); !dup {
		t.Fatalf("second request should be a duplicate")
	}
	if due := o.Due(now); len(due) != 1 || due[0].DocumentID != 4 || due[0].Reason != "layer not found" {
		t.Fatalf("unsent request should be due: %+v", due)
	}

	item, ok := o.MarkAttempt(4, now)
	if !ok || item.Attempts != 1 || !item.DeadlineAt.Equal(now.Add(10*time.Second)) {
		t.Fatalf("unexpected attempt: %+v", item)
	}
	if due := o.Due(now.Add(time.Second)); len(due) != 0 {
		t.Fatalf("request inside deadline should not be due: %+v", due)
	}
	if due := o.Due(now.Add(10 * time.Second)); len(due) != 1 {
		t.Fatalf("request past deadline should be due: %+v", due)
	}

	o.Request(2, "decode", now)
	if list := o.List(); len(list) != 2 || list[0].DocumentID != 2 {
		t.Fatalf("unexpected list order: %+v", list)
	}
	o.Resolve(4)
	if o.Pending(4) || !o.Pending(2) {
		t.Fatalf("resolve touched the wrong document")
	}
	if _, ok := o.MarkAttempt(4, now); ok {
		t.Fatalf("resolved request should not be marked")
	}
}

func TestHelloRoundTrip(t *testing.T) {
	testlog.Start(t)
	var buf bytes.Buffer
	hello := Hello{ClientID: "01HZY", Protocol: "layermirror/1", Documents: []int{3, 9}}
	if err := WriteHello(&buf, hello); err != nil {
		t.Fatalf("write hello: %v", err)
	}
	got, err := ReadHello(bufio.NewReader(&buf))
	if err != nil {
		t.Fatalf("read hello: %v", err)
	}
	if got.ClientID != hello.ClientID || len(got.Documents) != 2 {
		t.Fatalf("unexpected hello: %+v", got)
	}
	if err := WriteHello(&buf, Hello{Protocol: "layermirror/1"}); !errors.Is(err, ErrInvalidHello) {
		t.Fatalf("expected ErrInvalidHello, got %v", err)
	}
}

func TestHelloAckRejected(t *testing.T) {
	testlog.Start(t)
	var buf bytes.Buffer
	if err := WriteHelloAck(&buf, HelloAck{Status: AckStatusAccepted, HostVersion: "1.0.0", TimestampMS: 1}); err != nil {
		t.Fatalf("write ack: %v", err)
	}
	if err := WriteHelloAck(&buf, HelloAck{Status: AckStatusRejected, Message: "busy", TimestampMS: 2}); err != nil {
		t.Fatalf("write reject: %v", err)
	}
	r := bufio.NewReader(&buf)
	if ack, err := ReadHelloAck(r); err != nil || ack.HostVersion != "1.0.0" {
		t.Fatalf("ack=%+v err=%v", ack, err)
	}
	if _, err := ReadHelloAck(r); !errors.Is(err, ErrHelloRejected) {
		t.Fatalf("expected ErrHelloRejected, got %v", err)
	}
	if err := WriteHelloAck(&buf, HelloAck{Status: "maybe", TimestampMS: 1}); !errors.Is(err, ErrInvalidHelloAck) {
		t.Fatalf("expected ErrInvalidHelloAck, got %v", err)
	}
}

func readOne(t *testing.T, wire []byte) frame.Frame {
	t.Helper()
	f, err := frame.ReadFrame(bytes.NewReader(wire), frame.DefaultLimits())
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return f
}

func TestChangeFrameRoundTrip(t *testing.T) {
	testlog.Start(t)
	wire, err := EncodeChangeFrame(7, protocol.Change{
		ID: 1, Version: "1.0.0", Count: 2, TimeStamp: 3,
		Bounds: protocol.Some(protocol.Bounds{Bottom: 10, Right: 20}),
		Layers: []protocol.RawLayer{{ID: 4, Removed: true}},
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	f := readOne(t, wire)
	if f.Header.Sequence != 7 || f.Header.Type != frame.MsgChange {
		t.Fatalf("unexpected header: %+v", f.Header)
	}
	c, err := DecodeChangeFrame(f)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b, ok := c.Bounds.Get(); !ok || b.Right != 20 || c.File.Set || len(c.Layers) != 1 {
		t.Fatalf("unexpected change: %+v", c)
	}
	if _, err := DecodeSnapshotFrame(f); !errors.Is(err, ErrUnexpectedType) {
		t.Fatalf("expected ErrUnexpectedType, got %v", err)
	}
}

func TestSnapshotFrameValidates(t *testing.T) {
	testlog.Start(t)
	if _, err := EncodeSnapshotFrame(1, protocol.Snapshot{ID: 1}); !errors.Is(err, protocol.ErrMissingVersion) {
		t.Fatalf("expected ErrMissingVersion, got %v", err)
	}
	wire, err := EncodeSnapshotFrame(1, protocol.Snapshot{ID: 1, Version: "1.0.0", Layers: []protocol.RawLayer{{ID: 2, Index: protocol.Some(0)}}})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	s, err := DecodeSnapshotFrame(readOne(t, wire))
	if err != nil || len(s.Layers) != 1 {
		t.Fatalf("snapshot=%+v err=%v", s, err)
	}
}

func TestControlFramesRoundTrip(t *testing.T) {
	testlog.Start(t)
	wire, err := EncodeResyncFrame(3, Resync{ID: 5, Reason: "layer not found"})
	if err != nil {
		t.Fatalf("encode resync: %v", err)
	}
	r, err := DecodeResyncFrame(readOne(t, wire))
	if err != nil || r.ID != 5 || r.Reason != "layer not found" {
		t.Fatalf("resync=%+v err=%v", r, err)
	}

	wire, err = EncodeAckFrame(4, Ack{ID: 5, Count: 12})
	if err != nil {
		t.Fatalf("encode ack: %v", err)
	}
	a, err := DecodeAckFrame(readOne(t, wire))
	if err != nil || a.Count != 12 {
		t.Fatalf("ack=%+v err=%v", a, err)
	}

	wire, err = EncodeClosedFrame(5, Closed{ID: 5})
	if err != nil {
		t.Fatalf("encode closed: %v", err)
	}
	c, err := DecodeClosedFrame(readOne(t, wire))
	if err != nil || c.ID != 5 {
		t.Fatalf("closed=%+v err=%v", c, err)
	}

	wire, err = EncodeHeartbeatFrame(6)
	if err != nil {
		t.Fatalf("encode heartbeat: %v", err)
	}
	if f := readOne(t, wire); f.Header.Type != frame.MsgHeartbeat || len(f.Payload) != 0 {
		t.Fatalf("unexpected heartbeat: %+v", f)
	}

	bad := frame.Frame{Header: frame.Header{Type: frame.MsgAck}, Payload: []byte("{")}
	if _, err := DecodeAckFrame(bad); !errors.Is(err, protocol.ErrInvalidRecord) {
		t.Fatalf("expected ErrInvalidRecord, got %v", err)
	}
}
