package document

import (
	"github.com/danmuck/layermirror/internal/layer"
	"github.com/danmuck/layermirror/internal/protocol"
)

// View is a JSON-friendly copy of a document, used by the inspect server
// and the replay tool.
type View struct {
	ID        int             `json:"id"`
	Version   string          `json:"version"`
	Count     int64           `json:"count"`
	TimeStamp float64         `json:"timeStamp"`
	File      string          `json:"file"`
	Bounds    protocol.Bounds `json:"bounds"`
	Selection []int           `json:"selection"`
	Closed    bool            `json:"closed"`
	Layers    []LayerView     `json:"layers"`
}

type LayerView struct {
	ID      int             `json:"id"`
	Index   int             `json:"index"`
	Type    layer.Type      `json:"type"`
	Name    string          `json:"name"`
	Bounds  protocol.Bounds `json:"bounds"`
	Visible bool            `json:"visible"`
	Layers  []LayerView     `json:"layers,omitempty"`
}

// View copies the document into a View. The copy shares nothing with d.
func (d *Document) View() View {
	return View{
		ID:        d.id,
		Version:   d.version,
		Count:     d.count,
		TimeStamp: d.timeStamp,
		File:      d.file,
		Bounds:    d.bounds,
		Selection: d.SelectionIDs(),
		Closed:    d.closed,
		Layers:    layerViews(d.layers, d.layers.Root()),
	}
}

func layerViews(tree *layer.Tree, group *layer.Node) []LayerView {
	children := tree.Children(group)
	out := make([]LayerView, 0, len(children))
	for _, n := range children {
		v := LayerView{
			ID:      n.ID,
			Index:   n.Index,
			Type:    n.Type,
			Name:    n.Name,
			Bounds:  n.Bounds,
			Visible: n.Visible,
		}
		if n.IsGroup() {
			v.Layers = layerViews(tree, n)
		}
		out = append(out, v)
	}
	return out
}
