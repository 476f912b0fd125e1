package frame

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/danmuck/layermirror/internal/testutil/testlog"
)

func TestReadWriteFrameRoundTrip(t *testing.T) {
	testlog.Start(t)
	payload := []byte(`{"id":1,"version":"1.0.0","count":2,"timeStamp":3}`)
	in := Frame{
		Header:  Header{Type: MsgChange, Flags: FlagIsResponse, Sequence: 42},
		Payload: payload,
	}
	var buf bytes.Buffer
	if err := WriteFrame(&buf, in, DefaultLimits()); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	if buf.Len() != FixedHeaderLen+len(payload) {
		t.Fatalf("unexpected wire length: %d", buf.Len())
	}
	out, err := ReadFrame(&buf, DefaultLimits())
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if out.Header.Type != MsgChange || out.Header.Sequence != 42 || out.Header.Flags != FlagIsResponse {
		t.Fatalf("header mismatch: got=%+v", out.Header)
	}
	if out.Header.Magic != Magic || out.Header.Version != Version {
		t.Fatalf("magic/version not stamped: %+v", out.Header)
	}
	if !bytes.Equal(out.Payload, payload) {
		t.Fatalf("payload mismatch")
	}
	if _, err := ReadFrame(&buf, DefaultLimits()); !errors.Is(err, io.EOF) {
		t.Fatalf("expected clean EOF after last frame, got %v", err)
	}
}

func TestReadFrameShortHeader(t *testing.T) {
	testlog.Start(t)
	_, err := ReadFrame(bytes.NewReader([]byte{1, 2, 3}), DefaultLimits())
	if !errors.Is(err, ErrShortHeader) {
		t.Fatalf("expected ErrShortHeader, got %v", err)
	}
}

func TestReadFrameRejectsForeignHeaders(t *testing.T) {
	testlog.Start(t)
	bad := EncodeHeader(Header{Magic: 0xEDCE1001, Version: Version, Type: MsgChange})
	if _, err := ReadFrame(bytes.NewReader(bad), DefaultLimits()); !errors.Is(err, ErrBadMagic) {
		t.Fatalf("expected ErrBadMagic, got %v", err)
	}
	bad = EncodeHeader(Header{Magic: Magic, Version: 9, Type: MsgChange})
	if _, err := ReadFrame(bytes.NewReader(bad), DefaultLimits()); !errors.Is(err, ErrUnsupportedVersion) {
		t.Fatalf("expected ErrUnsupportedVersion, got %v", err)
	}
}

func TestPayloadLimits(t *testing.T) {
	testlog.Start(t)
	limits := Limits{MaxPayloadBytes: 4}
	var buf bytes.Buffer
	if err := WriteFrame(&buf, Frame{Header: Header{Type: MsgAck}, Payload: []byte("12345")}, limits); !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge on write, got %v", err)
	}
	big := EncodeHeader(Header{Magic: Magic, Version: Version, Type: MsgAck, PayloadLen: 5})
	if _, err := ReadFrame(bytes.NewReader(big), limits); !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge on read, got %v", err)
	}
}

func TestMessageTypeString(t *testing.T) {
	testlog.Start(t)
	if MsgResync.String() != "resync" || MessageType(99).String() != "type(99)" {
		t.Fatalf("unexpected names: %s %s", MsgResync, MessageType(99))
	}
}
