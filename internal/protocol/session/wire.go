package session

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/danmuck/layermirror/internal/protocol"
	"github.com/danmuck/layermirror/internal/protocol/frame"
)

var ErrUnexpectedType = errors.New("session: unexpected message type")

// Resync asks the host for a fresh snapshot of one document.
type Resync struct {
	ID     int    `json:"id"`
	Reason string `json:"reason,omitempty"`
}

// Ack confirms the mirror holds document ID at Count.
type Ack struct {
	ID    int   `json:"id"`
	Count int64 `json:"count"`
}

// Closed tells the mirror a document is gone on the host.
type Closed struct {
	ID int `json:"id"`
}

func EncodeSnapshotFrame(seq uint64, s protocol.Snapshot) ([]byte, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	payload, err := protocol.EncodeSnapshot(s)
	if err != nil {
		return nil, err
	}
	return encodeFrame(seq, frame.MsgSnapshot, payload)
}

func DecodeSnapshotFrame(f frame.Frame) (protocol.Snapshot, error) {
	if err := expectType(f, frame.MsgSnapshot); err != nil {
		return protocol.Snapshot{}, err
	}
	return protocol.DecodeSnapshot(f.Payload)
}

func EncodeChangeFrame(seq uint64, c protocol.Change) ([]byte, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	payload, err := protocol.EncodeChange(c)
	if err != nil {
		return nil, err
	}
	return encodeFrame(seq, frame.MsgChange, payload)
}

func DecodeChangeFrame(f frame.Frame) (protocol.Change, error) {
	if err := expectType(f, frame.MsgChange); err != nil {
		return protocol.Change{}, err
	}
	return protocol.DecodeChange(f.Payload)
}

func EncodeResyncFrame(seq uint64, r Resync) ([]byte, error) {
	return encodeJSONFrame(seq, frame.MsgResync, r)
}

func DecodeResyncFrame(f frame.Frame) (Resync, error) {
	var r Resync
	err := decodeJSONFrame(f, frame.MsgResync, &r)
	return r, err
}

func EncodeAckFrame(seq uint64, a Ack) ([]byte, error) {
	return encodeJSONFrame(seq, frame.MsgAck, a)
}

func DecodeAckFrame(f frame.Frame) (Ack, error) {
	var a Ack
	err := decodeJSONFrame(f, frame.MsgAck, &a)
	return a, err
}

func EncodeClosedFrame(seq uint64, c Closed) ([]byte, error) {
	return encodeJSONFrame(seq, frame.MsgClosed, c)
}

func DecodeClosedFrame(f frame.Frame) (Closed, error) {
	var c Closed
	err := decodeJSONFrame(f, frame.MsgClosed, &c)
	return c, err
}

func EncodeHeartbeatFrame(seq uint64) ([]byte, error) {
	return encodeFrame(seq, frame.MsgHeartbeat, nil)
}

func encodeJSONFrame(seq uint64, typ frame.MessageType, v any) ([]byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return encodeFrame(seq, typ, payload)
}

func decodeJSONFrame(f frame.Frame, typ frame.MessageType, out any) error {
	if err := expectType(f, typ); err != nil {
		return err
	}
	if err := json.Unmarshal(f.Payload, out); err != nil {
		return fmt.Errorf("%w: %s payload: %v", protocol.ErrInvalidRecord, typ, err)
	}
	return nil
}

func encodeFrame(seq uint64, typ frame.MessageType, payload []byte) ([]byte, error) {
	var buf bytes.Buffer
	err := frame.WriteFrame(&buf, frame.Frame{
		Header:  frame.Header{Type: typ, Sequence: seq},
		Payload: payload,
	}, frame.DefaultLimits())
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func expectType(f frame.Frame, typ frame.MessageType) error {
	if f.Header.Type != typ {
		return fmt.Errorf("%w: want %s, got %s", ErrUnexpectedType, typ, f.Header.Type)
	}
	return nil
}
