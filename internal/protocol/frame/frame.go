// Package frame is the binary envelope for the host link: a fixed header
// followed by a JSON payload.
package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	Magic          uint32 = 0x4C4D4952 // "LMIR"
	Version        uint16 = 1
	FixedHeaderLen        = 24

	FlagIsResponse uint16 = 0x01
	FlagIsError    uint16 = 0x02
)

// MessageType identifies the payload carried by a frame.
type MessageType uint16

const (
	MsgSnapshot  MessageType = 1 // host -> mirror, full document
	MsgChange    MessageType = 2 // host -> mirror, incremental change
	MsgResync    MessageType = 3 // mirror -> host, snapshot request
	MsgAck       MessageType = 4 // mirror -> host, change applied
	MsgHeartbeat MessageType = 5 // either way
	MsgClosed    MessageType = 6 // host -> mirror, document gone
)

func (t MessageType) String() string {
	switch t {
	case MsgSnapshot:
		return "snapshot"
	case MsgChange:
		return "change"
	case MsgResync:
		return "resync"
	case MsgAck:
		return "ack"
	case MsgHeartbeat:
		return "heartbeat"
	case MsgClosed:
		return "closed"
	default:
		return fmt.Sprintf("type(%d)", uint16(t))
	}
}

var (
	ErrShortHeader        = errors.New("frame: short fixed header")
	ErrBadMagic           = errors.New("frame: bad magic")
	ErrUnsupportedVersion = errors.New("frame: unsupported version")
	ErrPayloadTooLarge    = errors.New("frame: payload too large")
)

// Header is the fixed wire header.
type Header struct {
	Magic      uint32
	Version    uint16
	Type       MessageType
	Flags      uint16
	Sequence   uint64
	PayloadLen uint32
}

// Frame is one complete wire message.
type Frame struct {
	Header  Header
	Payload []byte
}

// Limits constrains frame decode/encode memory use.
type Limits struct {
	MaxPayloadBytes uint32
}

func DefaultLimits() Limits {
	return Limits{
		MaxPayloadBytes: 16 * 1024 * 1024,
	}
}

func ReadFrame(r io.Reader, limits Limits) (Frame, error) {
	var fixed [FixedHeaderLen]byte
	if _, err := io.ReadFull(r, fixed[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Frame{}, ErrShortHeader
		}
		return Frame{}, err
	}

	h, err := DecodeHeader(fixed[:])
	if err != nil {
		return Frame{}, err
	}
	if h.Magic != Magic {
		return Frame{}, fmt.Errorf("%w: 0x%08x", ErrBadMagic, h.Magic)
	}
	if h.Version != Version {
		return Frame{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, h.Version)
	}
	if h.PayloadLen > limits.MaxPayloadBytes {
		return Frame{}, ErrPayloadTooLarge
	}

	payload := make([]byte, h.PayloadLen)
	if h.PayloadLen > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return Frame{}, err
		}
	}
	return Frame{Header: h, Payload: payload}, nil
}

// WriteFrame fills in magic, version and payload length before writing.
func WriteFrame(w io.Writer, f Frame, limits Limits) error {
	if uint64(len(f.Payload)) > uint64(limits.MaxPayloadBytes) {
		return ErrPayloadTooLarge
	}
	h := f.Header
	h.Magic = Magic
	h.Version = Version
	h.PayloadLen = uint32(len(f.Payload))

	buf := make([]byte, 0, FixedHeaderLen+len(f.Payload))
	buf = append(buf, EncodeHeader(h)...)
	buf = append(buf, f.Payload...)
	_, err := w.Write(buf)
	return err
}

func EncodeHeader(h Header) []byte {
	buf := make([]byte, FixedHeaderLen)
	binary.BigEndian.PutUint32(buf[0:4], h.Magic)
	binary.BigEndian.PutUint16(buf[4:6], h.Version)
	binary.BigEndian.PutUint16(buf[6:8], uint16(h.Type))
	binary.BigEndian.PutUint16(buf[8:10], h.Flags)
	// buf[10:12] reserved
	binary.BigEndian.PutUint64(buf[12:20], h.Sequence)
	binary.BigEndian.PutUint32(buf[20:24], h.PayloadLen)
	return buf
}

func DecodeHeader(b []byte) (Header, error) {
	if len(b) != FixedHeaderLen {
		return Header{}, fmt.Errorf("frame: invalid fixed header length: %d", len(b))
	}
	return Header{
		Magic:      binary.BigEndian.Uint32(b[0:4]),
		Version:    binary.BigEndian.Uint16(b[4:6]),
		Type:       MessageType(binary.BigEndian.Uint16(b[6:8])),
		Flags:      binary.BigEndian.Uint16(b[8:10]),
		Sequence:   binary.BigEndian.Uint64(b[12:20]),
		PayloadLen: binary.BigEndian.Uint32(b[20:24]),
	}, nil
}
