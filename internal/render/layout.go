package render

import (
	"bytes"
	"encoding/xml"
	"strconv"
	"strings"
	"text/template"

	"github.com/danmuck/layermirror/internal/layer"
	"github.com/danmuck/layermirror/internal/protocol"
)

// Source is the read-only view of a document the renderers need.
type Source interface {
	Bounds() protocol.Bounds
	Layers() *layer.Tree
}

type subObject struct {
	Indent   string
	Name     string
	X, Y     string
	Width    string
	Height   string
	Group    bool
	Children []subObject
}

type layoutData struct {
	Width   string
	Height  string
	Objects []subObject
}

var funcs = template.FuncMap{
	"xml": func(s string) string {
		var b bytes.Buffer
		_ = xml.EscapeText(&b, []byte(s))
		return b.String()
	},
}

var layoutTemplate = template.Must(template.New("layout").Funcs(funcs).Parse(
	`<?xml version="1.0" encoding="UTF-8"?>
<Layout width="{{.Width}}" height="{{.Height}}">
{{template "objects" .Objects}}</Layout>` +
		`{{define "objects"}}{{range .}}{{if .Group}}` +
		`{{.Indent}}<SubObject name="{{xml .Name}}" x="{{.X}}" y="{{.Y}}" width="{{.Width}}" height="{{.Height}}">
{{template "objects" .Children}}{{.Indent}}</SubObject>
{{else}}{{.Indent}}<SubObject name="{{xml .Name}}" x="{{.X}}" y="{{.Y}}" width="{{.Width}}" height="{{.Height}}" />
{{end}}{{end}}{{end}}`))

// Layout renders the layout XML for src. Positions are layer centres
// normalised against the enclosing group, or the document for top-level
// layers; sizes are halved for the client's half-resolution assets.
func Layout(src Source) (string, error) {
	doc := src.Bounds()
	tree := src.Layers()
	data := layoutData{
		Width:   formatNumber(float64(doc.Right) * 0.5),
		Height:  formatNumber(float64(doc.Bottom) * 0.5),
		Objects: subObjects(tree, tree.Root(), doc, 1),
	}
	var b strings.Builder
	if err := layoutTemplate.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}

func subObjects(tree *layer.Tree, group *layer.Node, doc protocol.Bounds, depth int) []subObject {
	parent := doc
	if group.ID != layer.RootID && group.Bounds.Width() != 0 && group.Bounds.Height() != 0 {
		parent = group.Bounds
	}
	children := tree.Children(group)
	out := make([]subObject, 0, len(children))
	for _, n := range children {
		w := float64(n.Bounds.Width())
		h := float64(n.Bounds.Height())
		obj := subObject{
			Indent: strings.Repeat("\t", depth),
			Name:   displayName(n),
			X:      formatNumber(ratio(float64(n.Bounds.Left-parent.Left)+w/2, float64(parent.Width()))),
			Y:      formatNumber(ratio(float64(n.Bounds.Top-parent.Top)+h/2, float64(parent.Height()))),
			Width:  formatNumber(w * 0.5),
			Height: formatNumber(h * 0.5),
			Group:  n.IsGroup(),
		}
		if obj.Group {
			obj.Children = subObjects(tree, n, doc, depth+1)
		}
		out = append(out, obj)
	}
	return out
}

// displayName is the component name for tagged layers, else the raw name.
func displayName(n *layer.Node) string {
	if c, ok := ParseComponent(n); ok {
		return c.Name
	}
	return n.Name
}

func ratio(v, total float64) float64 {
	if total == 0 {
		return 0
	}
	return v / total
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
