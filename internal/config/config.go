package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// RenderConfig is render.toml: where artifacts go and what the generated
// wrapper classes refer to.
type RenderConfig struct {
	LayoutsDir  string            `toml:"layouts_dir"`
	WrappersDir string            `toml:"wrappers_dir"`
	Package     string            `toml:"package"`
	LayoutUtils string            `toml:"layout_utils"`
	PopupBase   string            `toml:"popup_base"`
	ElementBase string            `toml:"element_base"`
	ClassPaths  map[string]string `toml:"class_paths"`
}

func DefaultRenderConfig() RenderConfig {
	return RenderConfig{
		LayoutsDir:  "out/layouts",
		WrappersDir: "out/wrappers",
		Package:     "com.mobscience.match.ui.wrappers",
		LayoutUtils: "com.mobscience.match.ui.LayoutUtils",
		PopupBase:   "com.mobscience.match.ui.popup.BasePopup",
		ElementBase: "com.mobscience.match.ui.elements.BaseUiElement",
	}
}

// LoadRenderConfig reads path over the defaults. Relative output
// directories resolve against the config file's directory.
func LoadRenderConfig(path string) (RenderConfig, error) {
	cfg := DefaultRenderConfig()
	if err := loadToml(path, &cfg); err != nil {
		return RenderConfig{}, err
	}
	base := filepath.Dir(path)
	cfg.LayoutsDir = resolveDir(base, cfg.LayoutsDir)
	cfg.WrappersDir = resolveDir(base, cfg.WrappersDir)
	if err := ValidateRenderConfig(cfg); err != nil {
		return RenderConfig{}, err
	}
	return cfg, nil
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func resolveDir(base, dir string) string {
	dir = strings.TrimSpace(dir)
	if dir == "" || filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(base, dir)
}

func ValidateRenderConfig(cfg RenderConfig) error {
	if strings.TrimSpace(cfg.LayoutsDir) == "" {
		return fmt.Errorf("render config missing layouts_dir")
	}
	if strings.TrimSpace(cfg.WrappersDir) == "" {
		return fmt.Errorf("render config missing wrappers_dir")
	}
	for field, v := range map[string]string{
		"package":      cfg.Package,
		"layout_utils": cfg.LayoutUtils,
		"popup_base":   cfg.PopupBase,
		"element_base": cfg.ElementBase,
	} {
		if err := validateClassPath(v); err != nil {
			return fmt.Errorf("render config %s invalid: %w", field, err)
		}
	}
	for kind, v := range cfg.ClassPaths {
		if !knownComponent(kind) {
			return fmt.Errorf("render config class_paths: unknown component type %q", kind)
		}
		if err := validateClassPath(v); err != nil {
			return fmt.Errorf("render config class_paths.%s invalid: %w", kind, err)
		}
	}
	return nil
}

func validateClassPath(v string) error {
	v = strings.TrimSpace(v)
	if v == "" {
		return fmt.Errorf("class path is required")
	}
	for _, part := range strings.Split(v, ".") {
		if part == "" {
			return fmt.Errorf("empty segment in %q", v)
		}
	}
	return nil
}
