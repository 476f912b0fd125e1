package config

import (
	"bytes"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// MirrorFile is the key set of a layermirror config.toml. The mirror binary
// overlays it on its own defaults; this type only checks a file's shape.
type MirrorFile struct {
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

// LoadMirrorFile decodes path strictly: unknown keys are errors.
func LoadMirrorFile(path string) (MirrorFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return MirrorFile{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	var out MirrorFile
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return MirrorFile{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	if out.HeartbeatIntervalMS < 0 || out.ReconnectInitialMS < 0 || out.ReconnectMaxMS < 0 {
		return MirrorFile{}, fmt.Errorf("mirror config %s: durations must not be negative", path)
	}
	return out, nil
}
