// Package status serves the render status line protocol: plugins connect
// over TCP, receive {"type":"status","data":...} lines whenever the render
// state changes, and may send enable/disable requests back.
package status

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/layermirror/internal/state"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"
)

const DefaultAddr = "127.0.0.1:8124"

const (
	TypeStatus  = "status"
	TypeRequest = "request"
	TypeError   = "error"

	RequestEnable  = "enable"
	RequestDisable = "disable"
)

// Controller is the state the server reports on and relays requests to.
type Controller interface {
	Status() state.Status
	Subscribe(fn func(state.Status)) func()
	ActivateActive() error
	DeactivateActive() error
}

// Message is one line on the wire.
type Message struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

type Config struct {
	Addr string
	// IdleTimeout closes clients that send nothing for this long. Zero
	// keeps listen-only clients connected indefinitely.
	IdleTimeout time.Duration
	// WriteTimeout bounds each push. A client that stops reading is
	// dropped once a write times out.
	WriteTimeout time.Duration
}

const defaultWriteTimeout = 2 * time.Second

func DefaultConfig() Config {
	return Config{Addr: DefaultAddr, WriteTimeout: defaultWriteTimeout}
}

type Server struct {
	cfg  Config
	ctrl Controller

	mu      sync.Mutex
	clients map[ulid.ULID]*client
	count   atomic.Int64
}

type client struct {
	id      ulid.ULID
	conn    net.Conn
	timeout time.Duration
	wmu     sync.Mutex
}

func NewServer(cfg Config, ctrl Controller) *Server {
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	return &Server{
		cfg:     cfg,
		ctrl:    ctrl,
		clients: make(map[ulid.ULID]*client),
	}
}

// Serve listens on the configured address until ctx is done.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", strings.TrimSpace(s.cfg.Addr))
	if err != nil {
		return fmt.Errorf("status: listen %s: %w", s.cfg.Addr, err)
	}
	return s.ServeListener(ctx, ln)
}

// ServeListener accepts clients from ln until ctx is done, then closes ln
// and every connected client.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	defer ln.Close()
	log.Info().Str("addr", ln.Addr().String()).Msg("status server listening")

	go func() {
		<-ctx.Done()
		_ = ln.Close()
		s.closeClients()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		go s.handleConn(conn)
	}
}

// Clients is the number of connected clients.
func (s *Server) Clients() int {
	return int(s.count.Load())
}

func (s *Server) handleConn(conn net.Conn) {
	c := &client{id: ulid.Make(), conn: conn, timeout: s.cfg.WriteTimeout}
	s.mu.Lock()
	s.clients[c.id] = c
	s.mu.Unlock()
	active := s.count.Add(1)
	remote := conn.RemoteAddr().String()
	log.Debug().Str("client", c.id.String()).Str("remote", remote).Int64("active_clients", active).Msg("status client connected")

	unsubscribe := s.ctrl.Subscribe(func(st state.Status) {
		if err := c.write(Message{Type: TypeStatus, Data: string(st)}); err != nil {
			log.Warn().Str("client", c.id.String()).Err(err).Msg("status push failed, dropping client")
			_ = conn.Close()
		}
	})
	defer func() {
		unsubscribe()
		_ = conn.Close()
		s.mu.Lock()
		delete(s.clients, c.id)
		s.mu.Unlock()
		remaining := s.count.Add(-1)
		log.Debug().Str("client", c.id.String()).Int64("active_clients", remaining).Msg("status client disconnected")
	}()

	if err := c.write(Message{Type: TypeStatus, Data: string(s.ctrl.Status())}); err != nil {
		log.Warn().Str("client", c.id.String()).Err(err).Msg("status initial write failed")
		return
	}

	reader := bufio.NewReader(conn)
	for {
		if s.cfg.IdleTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout))
		}
		line, err := reader.ReadBytes('\n')
		if len(strings.TrimSpace(string(line))) > 0 {
			if reply, ok := s.handleLine(c, line); ok {
				if werr := c.write(reply); werr != nil {
					log.Warn().Str("client", c.id.String()).Err(werr).Msg("status write failed")
					return
				}
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				log.Warn().Str("client", c.id.String()).Err(err).Msg("status read failed")
			}
			return
		}
	}
}

// handleLine processes one request line and returns an optional reply.
func (s *Server) handleLine(c *client, line []byte) (Message, bool) {
	var msg Message
	if err := json.Unmarshal(line, &msg); err != nil {
		return Message{Type: TypeError, Data: err.Error()}, true
	}
	log.Debug().Str("client", c.id.String()).Str("type", msg.Type).Str("data", msg.Data).Msg("status received")

	if msg.Type != TypeRequest {
		log.Debug().Str("type", msg.Type).Msg("status ignoring message type")
		return Message{}, false
	}
	var err error
	switch msg.Data {
	case RequestEnable:
		err = s.ctrl.ActivateActive()
	case RequestDisable:
		err = s.ctrl.DeactivateActive()
	default:
		log.Debug().Str("data", msg.Data).Msg("status ignoring unknown request")
		return Message{}, false
	}
	if err != nil {
		return Message{Type: TypeError, Data: err.Error()}, true
	}
	return Message{}, false
}

func (s *Server) closeClients() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.clients {
		_ = c.conn.Close()
	}
}

func (c *client) write(msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	payload = append(payload, '\n')
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.timeout))
	_, err = c.conn.Write(payload)
	return err
}
