package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/danmuck/layermirror/internal/render"
	"github.com/danmuck/layermirror/internal/testutil/testlog"
)

func TestLoadRenderConfigTemplate(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "render.toml")
	if err := WriteTemplate(path, "render", false); err != nil {
		t.Fatalf("write template: %v", err)
	}
	cfg, err := LoadRenderConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LayoutsDir != filepath.Join(dir, "out/layouts") {
		t.Fatalf("layouts dir not resolved: %q", cfg.LayoutsDir)
	}
	opts := cfg.WrapperOptions()
	if opts.ClassPaths[render.ComponentText] != "starling.text.TextField" {
		t.Fatalf("class path override lost: %+v", opts.ClassPaths)
	}
	if cfg.FileLayout().WrappersDir != filepath.Join(dir, "out/wrappers") {
		t.Fatalf("unexpected file layout: %+v", cfg.FileLayout())
	}
	if err := WriteTemplate(path, "render", false); err == nil {
		t.Fatalf("expected existing file error")
	}
}

func TestLoadRenderConfigDefaultsAndOverrides(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "render.toml")
	body := "layouts_dir = \"/abs/layouts\"\npackage = \"game.ui.gen\"\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := LoadRenderConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LayoutsDir != "/abs/layouts" || cfg.Package != "game.ui.gen" {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.PopupBase != DefaultRenderConfig().PopupBase {
		t.Fatalf("default popup base lost: %q", cfg.PopupBase)
	}
}

func TestValidateRenderConfig(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		name   string
		mutate func(*RenderConfig)
		want   string
	}{
		{name: "layouts", mutate: func(c *RenderConfig) { c.LayoutsDir = "" }, want: "layouts_dir"},
		{name: "package", mutate: func(c *RenderConfig) { c.Package = "a..b" }, want: "package"},
		{name: "unknown type", mutate: func(c *RenderConfig) { c.ClassPaths = map[string]string{"Slider": "x.Slider"} }, want: "Slider"},
		{name: "empty class path", mutate: func(c *RenderConfig) { c.ClassPaths = map[string]string{"Text": " "} }, want: "class_paths.Text"},
	}
	for _, tc := range cases {
		cfg := DefaultRenderConfig()
		tc.mutate(&cfg)
		err := ValidateRenderConfig(cfg)
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s: expected error containing %q, got %v", tc.name, tc.want, err)
		}
	}
	if err := ValidateRenderConfig(DefaultRenderConfig()); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}

func TestTemplateUnknownKind(t *testing.T) {
	testlog.Start(t)
	if _, err := Template("unknown"); err == nil {
		t.Fatalf("expected unknown kind error")
	}
	if _, err := Template(" Mirror "); err != nil {
		t.Fatalf("mirror template: %v", err)
	}
}

func TestLoadMirrorFile(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := WriteTemplate(path, "mirror", false); err != nil {
		t.Fatalf("write template: %v", err)
	}
	f, err := LoadMirrorFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if f.HostAddr != "127.0.0.1:8123" || f.RenderConfig != "render.toml" || f.HeartbeatIntervalMS != 5000 {
		t.Fatalf("unexpected mirror file: %+v", f)
	}

	bad := filepath.Join(dir, "bad.toml")
	if err := os.WriteFile(bad, []byte("host_adr = \"typo\"\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadMirrorFile(bad); err == nil || !strings.Contains(err.Error(), "config parse failed") {
		t.Fatalf("expected unknown key error, got %v", err)
	}
}
