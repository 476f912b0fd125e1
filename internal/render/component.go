package render

import (
	"path"
	"strings"
	"unicode"

	"github.com/danmuck/layermirror/internal/layer"
)

// ComponentType is the game-side element a layer maps to.
type ComponentType string

const (
	ComponentImage            ComponentType = "Image"
	ComponentText             ComponentType = "Text"
	ComponentButton           ComponentType = "Button"
	ComponentScaleButton      ComponentType = "ScaleButton"
	ComponentScaleButtonIcons ComponentType = "ScaleButtonIcons"
)

func (t ComponentType) Known() bool {
	switch t {
	case ComponentImage, ComponentText, ComponentButton, ComponentScaleButton, ComponentScaleButtonIcons:
		return true
	}
	return false
}

func (t ComponentType) IsButton() bool {
	return t == ComponentButton || t == ComponentScaleButton || t == ComponentScaleButtonIcons
}

// Component is a layer tagged for the wrapper through its name:
// "name@Type" or "name@Type:trigger". An image name with a file
// extension ("logo.png@Image") is backed by an exported asset.
type Component struct {
	Name    string
	Type    ComponentType
	Trigger string
	File    string
	Layer   *layer.Node
}

// ParseComponent reads the component tag from a layer name.
func ParseComponent(n *layer.Node) (Component, bool) {
	name, tag, ok := strings.Cut(n.Name, "@")
	if !ok {
		return Component{}, false
	}
	typ, trigger, _ := strings.Cut(tag, ":")
	c := Component{
		Name:    strings.TrimSpace(name),
		Type:    ComponentType(strings.TrimSpace(typ)),
		Trigger: strings.TrimSpace(trigger),
		Layer:   n,
	}
	if c.Name == "" || !c.Type.Known() {
		return Component{}, false
	}
	if ext := path.Ext(c.Name); ext != "" && c.Type == ComponentImage {
		c.File = c.Name
		c.Name = strings.TrimSuffix(c.Name, ext)
	}
	if c.Type.IsButton() && c.Trigger == "" {
		c.Trigger = "on" + upperFirst(c.Name)
	}
	return c, true
}

// Components collects the tagged layers of tree in walk order.
func Components(tree *layer.Tree) []Component {
	var out []Component
	_ = tree.Walk(func(n *layer.Node, _ int) error {
		if c, ok := ParseComponent(n); ok {
			out = append(out, c)
		}
		return nil
	})
	return out
}

func upperFirst(s string) string {
	r := []rune(s)
	if len(r) == 0 {
		return s
	}
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
