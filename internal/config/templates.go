package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "render":
		return renderTemplate, nil
	case "mirror":
		return mirrorTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const renderTemplate = `layouts_dir = "out/layouts"
wrappers_dir = "out/wrappers"
package = "com.mobscience.match.ui.wrappers"
layout_utils = "com.mobscience.match.ui.LayoutUtils"
popup_base = "com.mobscience.match.ui.popup.BasePopup"
element_base = "com.mobscience.match.ui.elements.BaseUiElement"

[class_paths]
Text = "starling.text.TextField"
`

const mirrorTemplate = `host_addr = "127.0.0.1:8123"
status_addr = "127.0.0.1:8124"
inspect_addr = "127.0.0.1:8125"
render_config = "render.toml"
render_enabled = true
heartbeat_interval_ms = 5000
reconnect_initial_ms = 500
reconnect_max_ms = 10000
cors_origins = ["http://localhost:3000"]
`
