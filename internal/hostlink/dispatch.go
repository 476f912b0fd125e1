package hostlink

import (
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/layermirror/internal/protocol"
	"github.com/danmuck/layermirror/internal/protocol/frame"
	"github.com/danmuck/layermirror/internal/protocol/session"
	"github.com/rs/zerolog/log"
)

var ErrNotConnected = errors.New("hostlink: not connected")

// Handler receives decoded host records. An error from HandleSnapshot or
// HandleChange puts the document into resync.
type Handler interface {
	HandleSnapshot(s protocol.Snapshot) error
	HandleChange(c protocol.Change) error
	HandleClosed(id int)
}

// Dispatcher routes frames to a Handler and answers the host. It is safe
// for one reader goroutine plus concurrent Flush calls.
type Dispatcher struct {
	handler Handler
	outbox  *session.ResyncOutbox
	seq     atomic.Uint64
	now     func() time.Time

	mu   sync.Mutex
	send func(wire []byte) error
}

func NewDispatcher(h Handler, resyncTimeout time.Duration) *Dispatcher {
	return &Dispatcher{
		handler: h,
		outbox:  session.NewResyncOutbox(resyncTimeout),
		now:     time.Now,
	}
}

// Attach installs the writer for the current connection; nil detaches.
func (d *Dispatcher) Attach(send func(wire []byte) error) {
	d.mu.Lock()
	d.send = send
	d.mu.Unlock()
}

// Pending lists documents waiting for a resync snapshot.
func (d *Dispatcher) Pending() []session.PendingResync {
	return d.outbox.List()
}

// Dispatch handles one frame from the host. The returned error means the
// link itself failed; record-level failures are handled by resync.
func (d *Dispatcher) Dispatch(f frame.Frame) error {
	switch f.Header.Type {
	case frame.MsgSnapshot:
		return d.dispatchSnapshot(f)
	case frame.MsgChange:
		return d.dispatchChange(f)
	case frame.MsgClosed:
		c, err := session.DecodeClosedFrame(f)
		if err != nil {
			log.Warn().Err(err).Uint64("seq", f.Header.Sequence).Msg("hostlink dropping malformed closed frame")
			return nil
		}
		d.outbox.Resolve(c.ID)
		d.handler.HandleClosed(c.ID)
		return nil
	case frame.MsgHeartbeat:
		log.Debug().Uint64("seq", f.Header.Sequence).Msg("hostlink heartbeat")
		return nil
	default:
		log.Warn().Str("type", f.Header.Type.String()).Uint64("seq", f.Header.Sequence).Msg("hostlink ignoring unexpected frame")
		return nil
	}
}

func (d *Dispatcher) dispatchSnapshot(f frame.Frame) error {
	s, err := session.DecodeSnapshotFrame(f)
	if err != nil {
		return d.requestResync(peekID(f.Payload), "malformed snapshot: "+err.Error())
	}
	if err := d.handler.HandleSnapshot(s); err != nil {
		return d.requestResync(s.ID, err.Error())
	}
	d.outbox.Resolve(s.ID)
	return d.ack(s.ID, s.Count)
}

func (d *Dispatcher) dispatchChange(f frame.Frame) error {
	c, err := session.DecodeChangeFrame(f)
	if err != nil {
		return d.requestResync(peekID(f.Payload), "malformed change: "+err.Error())
	}
	if d.outbox.Pending(c.ID) {
		log.Debug().Int("document", c.ID).Int64("count", c.Count).Msg("hostlink dropping change while resync pending")
		return nil
	}
	if err := d.handler.HandleChange(c); err != nil {
		return d.requestResync(c.ID, err.Error())
	}
	return d.ack(c.ID, c.Count)
}

func (d *Dispatcher) ack(id int, count int64) error {
	wire, err := session.EncodeAckFrame(d.seq.Add(1), session.Ack{ID: id, Count: count})
	if err != nil {
		return err
	}
	if err := d.write(wire); err != nil && !errors.Is(err, ErrNotConnected) {
		return err
	}
	return nil
}

func (d *Dispatcher) requestResync(id int, reason string) error {
	if id < 0 {
		log.Warn().Str("reason", reason).Msg("hostlink dropping record without document id")
		return nil
	}
	if _, dup := d.outbox.Request(id, reason, d.now()); dup {
		return nil
	}
	log.Warn().Int("document", id).Str("reason", reason).Msg("hostlink requesting resync")
	return d.Flush()
}

// Flush sends every resync request that is unsent or past its deadline.
func (d *Dispatcher) Flush() error {
	now := d.now()
	return d.sendResyncs(d.outbox.Due(now), now)
}

// Resend sends every pending resync request, used after a reconnect.
func (d *Dispatcher) Resend() error {
	return d.sendResyncs(d.outbox.List(), d.now())
}

func (d *Dispatcher) sendResyncs(items []session.PendingResync, now time.Time) error {
	for _, item := range items {
		wire, err := session.EncodeResyncFrame(d.seq.Add(1), session.Resync{ID: item.DocumentID, Reason: item.Reason})
		if err != nil {
			return err
		}
		err = d.write(wire)
		if errors.Is(err, ErrNotConnected) {
			log.Debug().Int("document", item.DocumentID).Msg("hostlink resync deferred, no host connection")
		} else if err != nil {
			return err
		}
		d.outbox.MarkAttempt(item.DocumentID, now)
	}
	return nil
}

// Heartbeat sends one heartbeat frame.
func (d *Dispatcher) Heartbeat() error {
	wire, err := session.EncodeHeartbeatFrame(d.seq.Add(1))
	if err != nil {
		return err
	}
	return d.write(wire)
}

func (d *Dispatcher) write(wire []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.send == nil {
		return ErrNotConnected
	}
	return d.send(wire)
}

// peekID pulls the document id out of a payload that failed full decode.
func peekID(payload []byte) int {
	var head struct {
		ID *int `json:"id"`
	}
	if err := json.Unmarshal(payload, &head); err != nil || head.ID == nil {
		return -1
	}
	return *head.ID
}
