package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/layermirror/internal/config"
	"github.com/danmuck/layermirror/internal/mirror"
)

// config.toml key mapping to mirror runtime settings.
type fileConfig struct {
	HostAddr            string   `toml:"host_addr"`
	ClientID            string   `toml:"client_id"`
	StatusAddr          string   `toml:"status_addr"`
	InspectAddr         string   `toml:"inspect_addr"`
	RenderConfig        string   `toml:"render_config"`
	RenderEnabled       bool     `toml:"render_enabled"`
	HeartbeatIntervalMS int64    `toml:"heartbeat_interval_ms"`
	ReconnectInitialMS  int64    `toml:"reconnect_initial_ms"`
	ReconnectMaxMS      int64    `toml:"reconnect_max_ms"`
	CORSOrigins         []string `toml:"cors_origins"`
	ControlToken        string   `toml:"control_token"`
}

func loadServiceConfig(path string) (mirror.ServiceConfig, error) {
	cfg := mirror.DefaultServiceConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return mirror.ServiceConfig{}, fmt.Errorf("load mirror config: %w", err)
	}

	if meta.IsDefined("host_addr") {
		cfg.HostLink.Addr = strings.TrimSpace(raw.HostAddr)
	}
	if meta.IsDefined("client_id") {
		cfg.HostLink.ClientID = strings.TrimSpace(raw.ClientID)
	}
	if meta.IsDefined("status_addr") {
		cfg.StatusAddr = strings.TrimSpace(raw.StatusAddr)
	}
	if meta.IsDefined("inspect_addr") {
		cfg.InspectAddr = strings.TrimSpace(raw.InspectAddr)
	}
	if meta.IsDefined("render_enabled") {
		cfg.RenderEnabled = raw.RenderEnabled
	}
	if meta.IsDefined("heartbeat_interval_ms") {
		cfg.HeartbeatInterval = time.Duration(raw.HeartbeatIntervalMS) * time.Millisecond
		cfg.HostLink.Session.HeartbeatInterval = cfg.HeartbeatInterval
	}
	if meta.IsDefined("reconnect_initial_ms") {
		cfg.HostLink.Session.Backoff.InitialDelay = time.Duration(raw.ReconnectInitialMS) * time.Millisecond
	}
	if meta.IsDefined("reconnect_max_ms") {
		cfg.HostLink.Session.Backoff.MaxDelay = time.Duration(raw.ReconnectMaxMS) * time.Millisecond
	}
	if meta.IsDefined("cors_origins") {
		cfg.CORSOrigins = normalizeOrigins(raw.CORSOrigins)
	}
	if meta.IsDefined("control_token") {
		cfg.ControlToken = strings.TrimSpace(raw.ControlToken)
	}

	if rc := strings.TrimSpace(raw.RenderConfig); rc != "" {
		if !filepath.IsAbs(rc) {
			rc = filepath.Join(filepath.Dir(path), rc)
		}
		renderCfg, err := config.LoadRenderConfig(rc)
		if err != nil {
			return mirror.ServiceConfig{}, fmt.Errorf("load mirror config: render_config %q: %w", raw.RenderConfig, err)
		}
		cfg.Render = renderCfg
	}

	if cfg.HeartbeatInterval <= 0 {
		return mirror.ServiceConfig{}, fmt.Errorf("load mirror config: heartbeat_interval_ms must be positive")
	}
	b := cfg.HostLink.Session.Backoff
	if b.MaxDelay > 0 && b.InitialDelay > b.MaxDelay {
		return mirror.ServiceConfig{}, fmt.Errorf(
			"load mirror config: reconnect_initial_ms (%v) exceeds reconnect_max_ms (%v)",
			b.InitialDelay,
			b.MaxDelay,
		)
	}
	return cfg, nil
}

func normalizeOrigins(in []string) []string {
	out := make([]string, 0, len(in))
	for _, origin := range in {
		v := strings.TrimSpace(origin)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
