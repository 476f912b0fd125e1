// Package mirror owns the mirrored documents and runs the processes around
// them: the host link, the status server, the inspect server and rendering.
package mirror

import (
	"context"
	"errors"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/danmuck/layermirror/internal/config"
	"github.com/danmuck/layermirror/internal/document"
	"github.com/danmuck/layermirror/internal/files"
	"github.com/danmuck/layermirror/internal/hostlink"
	"github.com/danmuck/layermirror/internal/inspect"
	"github.com/danmuck/layermirror/internal/observability"
	"github.com/danmuck/layermirror/internal/render"
	"github.com/danmuck/layermirror/internal/state"
	"github.com/danmuck/layermirror/internal/status"
	"github.com/rs/zerolog/log"
)

var ErrInvalidHeartbeatInterval = errors.New("mirror: invalid heartbeat interval")

// ServiceConfig configures the mirror process. Empty addresses disable the
// matching listener or, for HostLink, run headless.
type ServiceConfig struct {
	HostLink          hostlink.Config
	StatusAddr        string
	InspectAddr       string
	CORSOrigins       []string
	ControlToken      string
	Render            config.RenderConfig
	RenderEnabled     bool
	HeartbeatInterval time.Duration
}

func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		HostLink:          hostlink.DefaultConfig(),
		StatusAddr:        status.DefaultAddr,
		InspectAddr:       inspect.DefaultAddr,
		Render:            config.DefaultRenderConfig(),
		RenderEnabled:     true,
		HeartbeatInterval: 5 * time.Second,
	}
}

// Service is the mirror runtime. Its Handle* methods are the host link
// handler; the rest serves the status and inspect servers.
type Service struct {
	cfg   ServiceConfig
	state *state.Manager
	files *files.Manager
	opts  render.WrapperOptions

	mu     sync.RWMutex
	docs   map[int]*document.Document
	closed closedDocs

	link   *hostlink.Client
	status *status.Server
}

func NewService() *Service {
	return NewServiceWithConfig(DefaultServiceConfig())
}

func NewServiceWithConfig(cfg ServiceConfig) *Service {
	s := &Service{
		cfg:   cfg,
		state: state.NewManager(),
		files: files.NewManager(cfg.Render.FileLayout()),
		opts:  cfg.Render.WrapperOptions(),
		docs:  make(map[int]*document.Document),
	}
	s.closed = newClosedDocs(maxClosedDocs)
	s.status = status.NewServer(status.Config{Addr: cfg.StatusAddr}, s)
	return s
}

// Run blocks until SIGINT or SIGTERM.
func (s *Service) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.Serve(ctx)
}

// Serve runs every configured process until ctx is done or one of them
// fails.
func (s *Service) Serve(ctx context.Context) error {
	if s.cfg.HeartbeatInterval <= 0 {
		return ErrInvalidHeartbeatInterval
	}
	if s.cfg.RenderEnabled {
		if err := config.ValidateRenderConfig(s.cfg.Render); err != nil {
			return err
		}
	}
	observability.RegisterMetrics()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errs := make(chan error, 3)
	var wg sync.WaitGroup
	start := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil {
				log.Error().Err(err).Str("process", name).Msg("mirror.Service.Serve process failed")
				errs <- err
			}
		}()
	}

	if strings.TrimSpace(s.cfg.HostLink.Addr) != "" {
		link, err := hostlink.NewClient(s.cfg.HostLink, s)
		if err != nil {
			return err
		}
		s.mu.Lock()
		s.link = link
		s.mu.Unlock()
		start("hostlink", link.Run)
	} else {
		log.Warn().Msg("mirror.Service.Serve no host address, running headless")
	}
	if strings.TrimSpace(s.cfg.StatusAddr) != "" {
		start("status", s.status.Serve)
	}
	if strings.TrimSpace(s.cfg.InspectAddr) != "" {
		srv := inspect.NewServer(inspect.Config{
			Addr:         s.cfg.InspectAddr,
			CORSOrigins:  s.cfg.CORSOrigins,
			ControlToken: s.cfg.ControlToken,
		}, s)
		start("inspect", srv.Serve)
	}

	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()
	defer wg.Wait()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("mirror.Service.Serve shutdown")
			return nil
		case err := <-errs:
			return err
		case <-ticker.C:
			s.heartbeat()
		}
	}
}

func (s *Service) heartbeat() {
	s.mu.RLock()
	docs := len(s.docs)
	s.mu.RUnlock()
	clients := s.status.Clients()
	observability.SetDocuments(docs)
	observability.SetStatusClients(clients)
	active, hasActive := s.state.ActiveDocument()
	log.Info().
		Int("documents", docs).
		Bool("host_connected", s.HostConnected()).
		Int("status_clients", clients).
		Str("status", string(s.state.Status())).
		Int("active", active).
		Bool("has_active", hasActive).
		Bool("active_enabled", s.state.Enabled()).
		Msg("mirror.Service.heartbeat")
}

// State exposes the render state manager.
func (s *Service) State() *state.Manager {
	return s.state
}

func (s *Service) HostConnected() bool {
	s.mu.RLock()
	link := s.link
	s.mu.RUnlock()
	return link != nil && link.Connected()
}

// Ready reports whether the mirror can receive host data. A headless
// mirror is always ready.
func (s *Service) Ready() bool {
	if strings.TrimSpace(s.cfg.HostLink.Addr) == "" {
		return true
	}
	return s.HostConnected()
}

func (s *Service) Status() state.Status {
	return s.state.Status()
}

func (s *Service) Subscribe(fn func(state.Status)) func() {
	return s.state.Subscribe(fn)
}

// ActivateActive enables the focused document and renders it.
func (s *Service) ActivateActive() error {
	if err := s.state.ActivateActive(); err != nil {
		return err
	}
	if id, ok := s.state.ActiveDocument(); ok {
		s.renderIfEnabled(id)
	}
	return nil
}

func (s *Service) DeactivateActive() error {
	return s.state.DeactivateActive()
}
