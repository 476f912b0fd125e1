// Package inspect serves a read-only HTTP view of the mirror: health,
// metrics, mirrored documents and the render status, including a websocket
// status stream.
package inspect

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/layermirror/internal/auth"
	"github.com/danmuck/layermirror/internal/document"
	"github.com/danmuck/layermirror/internal/observability"
	"github.com/danmuck/layermirror/internal/state"
	"github.com/danmuck/layermirror/internal/status"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const (
	DefaultAddr = "127.0.0.1:8125"
	nodeName    = "inspect"
	version     = "0.1.0"
)

// Backend is what the server reports on.
type Backend interface {
	status.Controller
	DocumentViews() []document.View
	DocumentView(id int) (document.View, bool)
	Ready() bool
}

type Config struct {
	Addr         string
	CORSOrigins  []string
	WriteTimeout time.Duration
	// ControlToken guards status commands when set. Reads stay open.
	ControlToken string
}

// DocumentSummary is one entry of GET /documents.
type DocumentSummary struct {
	ID     int     `json:"id"`
	File   string  `json:"file"`
	Count  int64   `json:"count"`
	Closed bool    `json:"closed"`
	Layers int     `json:"layers"`
	Width  int     `json:"width"`
	Height int     `json:"height"`
	Stamp  float64 `json:"timeStamp"`
}

type Server struct {
	cfg      Config
	backend  Backend
	control  auth.Validator
	router   *gin.Engine
	upgrader websocket.Upgrader
	started  time.Time
}

func NewServer(cfg Config, backend Backend) *Server {
	observability.RegisterMetrics()
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"http://localhost:3000"}
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(observability.RequestMetricsMiddleware(nodeName))
	r.Use(cors.New(cors.Config{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{"GET", "POST"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{
		cfg:     cfg,
		backend: backend,
		router:  r,
		started: time.Now(),
	}
	if token := strings.TrimSpace(cfg.ControlToken); token != "" {
		s.control = auth.StaticToken{Token: token}
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.checkOrigin}
	s.registerRoutes()
	return s
}

func (s *Server) Router() *gin.Engine {
	return s.router
}

// Serve listens on the configured address until ctx is done.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{Addr: s.cfg.Addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.cfg.Addr).Msg("inspect server listening")
		errCh <- srv.ListenAndServe()
	}()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) registerRoutes() {
	r := s.router
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.started).String(),
			"service": nodeName,
			"version": version,
		})
	})

	r.GET("/ready", func(c *gin.Context) {
		code := http.StatusOK
		ready := s.backend.Ready()
		if !ready {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"ready":   ready,
			"uptime":  time.Since(s.started).String(),
			"service": nodeName,
			"version": version,
		})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/documents", func(c *gin.Context) {
		views := s.backend.DocumentViews()
		out := make([]DocumentSummary, 0, len(views))
		for _, v := range views {
			out = append(out, summarize(v))
		}
		c.JSON(http.StatusOK, gin.H{"documents": out})
	})

	r.GET("/documents/:id", func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid document id"})
			return
		}
		view, ok := s.backend.DocumentView(id)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
			return
		}
		c.JSON(http.StatusOK, view)
	})

	r.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": s.backend.Status()})
	})

	r.POST("/status/:command", func(c *gin.Context) {
		if err := s.authorize(c.Request); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		err := s.apply(c.Param("command"))
		switch {
		case errors.Is(err, errUnknownCommand):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, state.ErrNoActiveDocument):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case err != nil:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusOK, gin.H{"status": s.backend.Status()})
		}
	})

	r.GET("/status/ws", s.serveStatusStream)
}

var errUnknownCommand = errors.New("inspect: unknown status command")

func (s *Server) authorize(r *http.Request) error {
	if s.control == nil {
		return nil
	}
	return auth.CheckHeader(s.control, r.Header.Get("Authorization"))
}

func (s *Server) apply(command string) error {
	switch strings.ToLower(strings.TrimSpace(command)) {
	case status.RequestEnable:
		return s.backend.ActivateActive()
	case status.RequestDisable:
		return s.backend.DeactivateActive()
	default:
		return errUnknownCommand
	}
}

// serveStatusStream pushes status messages as JSON text frames and accepts
// the same request messages as the status TCP server.
func (s *Server) serveStatusStream(c *gin.Context) {
	authErr := s.authorize(c.Request)
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Msg("inspect status stream upgrade failed")
		return
	}
	defer conn.Close()

	var mu sync.Mutex
	send := func(msg status.Message) error {
		mu.Lock()
		defer mu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
		return conn.WriteJSON(msg)
	}
	unsubscribe := s.backend.Subscribe(func(st state.Status) {
		if err := send(status.Message{Type: status.TypeStatus, Data: string(st)}); err != nil {
			log.Debug().Err(err).Msg("inspect status stream write failed")
		}
	})
	defer unsubscribe()

	if err := send(status.Message{Type: status.TypeStatus, Data: string(s.backend.Status())}); err != nil {
		return
	}
	for {
		var msg status.Message
		if err := conn.ReadJSON(&msg); err != nil {
			var closeErr *websocket.CloseError
			if !errors.As(err, &closeErr) {
				log.Debug().Err(err).Msg("inspect status stream closed")
			}
			return
		}
		if msg.Type != status.TypeRequest {
			continue
		}
		if authErr != nil {
			_ = send(status.Message{Type: status.TypeError, Data: authErr.Error()})
			continue
		}
		if err := s.apply(msg.Data); err != nil {
			_ = send(status.Message{Type: status.TypeError, Data: err.Error()})
		}
	}
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return slices.Contains(s.cfg.CORSOrigins, "*") || slices.Contains(s.cfg.CORSOrigins, origin)
}

func summarize(v document.View) DocumentSummary {
	return DocumentSummary{
		ID:     v.ID,
		File:   v.File,
		Count:  v.Count,
		Closed: v.Closed,
		Layers: countLayers(v.Layers),
		Width:  v.Bounds.Width(),
		Height: v.Bounds.Height(),
		Stamp:  v.TimeStamp,
	}
}

func countLayers(layers []document.LayerView) int {
	n := len(layers)
	for _, l := range layers {
		n += countLayers(l.Layers)
	}
	return n
}
