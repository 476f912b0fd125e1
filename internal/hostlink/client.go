package hostlink

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/layermirror/internal/observability"
	"github.com/danmuck/layermirror/internal/protocol/frame"
	"github.com/danmuck/layermirror/internal/protocol/session"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"
)

const (
	DefaultAddr  = "127.0.0.1:8123"
	ProtocolName = "layermirror/1"
)

var ErrAddrRequired = errors.New("hostlink: host address is required")

type Config struct {
	Addr     string
	ClientID string
	Session  session.Config
	Limits   frame.Limits
}

func DefaultConfig() Config {
	return Config{
		Addr:    DefaultAddr,
		Session: session.DefaultConfig(),
		Limits:  frame.DefaultLimits(),
	}
}

// DocumentLister is implemented by handlers that can report the documents
// they already mirror. The ids go into the hello so the host can skip them.
type DocumentLister interface {
	DocumentIDs() []int
}

// Client keeps a session with the host open, reconnecting with backoff
// until its context ends.
type Client struct {
	cfg       Config
	handler   Handler
	disp      *Dispatcher
	connected atomic.Bool
}

func NewClient(cfg Config, h Handler) (*Client, error) {
	cfg.Addr = strings.TrimSpace(cfg.Addr)
	if cfg.Addr == "" {
		return nil, ErrAddrRequired
	}
	if strings.TrimSpace(cfg.ClientID) == "" {
		cfg.ClientID = ulid.Make().String()
	}
	if cfg.Limits.MaxPayloadBytes == 0 {
		cfg.Limits = frame.DefaultLimits()
	}
	return &Client{
		cfg:     cfg,
		handler: h,
		disp:    NewDispatcher(h, cfg.Session.ResyncTimeout),
	}, nil
}

func (c *Client) Connected() bool { return c.connected.Load() }
func (c *Client) ClientID() string { return c.cfg.ClientID }

// Pending lists documents waiting on a resync snapshot.
func (c *Client) Pending() []session.PendingResync {
	return c.disp.Pending()
}

// Run connects and serves sessions until ctx is done. It returns nil on
// cancellation.
func (c *Client) Run(ctx context.Context) error {
	backoff := session.NewBackoff(c.cfg.Session.Backoff, time.Now().UnixNano())
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		conn, br, err := c.connect(ctx)
		if err != nil {
			if errors.Is(err, session.ErrHelloRejected) {
				return err
			}
			delay := backoff.Next()
			observability.RecordHostReconnect()
			log.Warn().
				Err(err).
				Int("attempt", backoff.Attempt()).
				Dur("retry_in", delay).
				Str("addr", c.cfg.Addr).
				Msg("hostlink.Client.Run connect failed")
			if err := waitReconnect(ctx, delay); err != nil {
				return nil
			}
			continue
		}
		backoff.Reset()
		log.Info().Str("addr", c.cfg.Addr).Str("client", c.cfg.ClientID).Msg("hostlink.Client.Run connected")

		err = c.serve(ctx, conn, br)
		if err != nil && ctx.Err() == nil {
			log.Warn().Err(err).Msg("hostlink.Client.Run session lost")
		}
	}
}

// connect dials the host and completes the hello exchange. The returned
// reader may already hold buffered frame bytes and must be used for reads.
func (c *Client) connect(ctx context.Context) (net.Conn, *bufio.Reader, error) {
	dialer := net.Dialer{Timeout: c.cfg.Session.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.cfg.Addr)
	if err != nil {
		return nil, nil, err
	}
	if c.cfg.Session.HandshakeTimeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(c.cfg.Session.HandshakeTimeout))
	}
	hello := session.Hello{ClientID: c.cfg.ClientID, Protocol: ProtocolName}
	if lister, ok := c.handler.(DocumentLister); ok {
		hello.Documents = lister.DocumentIDs()
	}
	if err := session.WriteHello(conn, hello); err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("hostlink: write hello: %w", err)
	}
	br := bufio.NewReader(conn)
	ack, err := session.ReadHelloAck(br)
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("hostlink: read hello ack: %w", err)
	}
	_ = conn.SetDeadline(time.Time{})
	log.Debug().Str("host_version", ack.HostVersion).Msg("hostlink hello accepted")
	return conn, br, nil
}

func (c *Client) serve(ctx context.Context, conn net.Conn, br *bufio.Reader) error {
	var writeMu sync.Mutex
	c.disp.Attach(func(wire []byte) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		if c.cfg.Session.WriteTimeout > 0 {
			_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.Session.WriteTimeout))
		}
		_, err := conn.Write(wire)
		return err
	})
	c.connected.Store(true)
	defer func() {
		c.connected.Store(false)
		c.disp.Attach(nil)
		_ = conn.Close()
	}()

	// requests made while disconnected go out first
	if err := c.disp.Resend(); err != nil {
		return err
	}

	readErr := make(chan error, 1)
	go func() {
		readErr <- c.readLoop(conn, br)
	}()

	interval := c.cfg.Session.HeartbeatInterval
	if interval <= 0 {
		interval = session.DefaultConfig().HeartbeatInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.Close()
			<-readErr
			return nil
		case err := <-readErr:
			return err
		case <-ticker.C:
			if err := c.disp.Heartbeat(); err != nil {
				return fmt.Errorf("hostlink: heartbeat: %w", err)
			}
			if err := c.disp.Flush(); err != nil {
				return fmt.Errorf("hostlink: resync: %w", err)
			}
		}
	}
}

func (c *Client) readLoop(conn net.Conn, br *bufio.Reader) error {
	for {
		if c.cfg.Session.ReadTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(c.cfg.Session.ReadTimeout))
		}
		f, err := frame.ReadFrame(br, c.cfg.Limits)
		if err != nil {
			return err
		}
		if err := c.disp.Dispatch(f); err != nil {
			return err
		}
	}
}

func waitReconnect(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
