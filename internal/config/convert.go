package config

import (
	"github.com/danmuck/layermirror/internal/files"
	"github.com/danmuck/layermirror/internal/render"
)

func knownComponent(kind string) bool {
	return render.ComponentType(kind).Known()
}

// WrapperOptions maps render.toml onto renderer options.
func (c RenderConfig) WrapperOptions() render.WrapperOptions {
	opts := render.WrapperOptions{
		Package:     c.Package,
		LayoutUtils: c.LayoutUtils,
		PopupBase:   c.PopupBase,
		ElementBase: c.ElementBase,
	}
	if len(c.ClassPaths) > 0 {
		opts.ClassPaths = make(map[render.ComponentType]string, len(c.ClassPaths))
		for kind, path := range c.ClassPaths {
			opts.ClassPaths[render.ComponentType(kind)] = path
		}
	}
	return opts
}

func (c RenderConfig) FileLayout() files.Layout {
	return files.Layout{
		LayoutsDir:  c.LayoutsDir,
		WrappersDir: c.WrappersDir,
	}
}
