package layer

import (
	"fmt"

	"github.com/danmuck/layermirror/internal/protocol"
)

// RootID is the id of the implicit root group.
const RootID = -1

// Type is the host layer kind.
type Type string

const (
	TypeLayer       Type = "layer"
	TypeGroup       Type = "layerSection"
	TypeText        Type = "textLayer"
	TypeShape       Type = "shapeLayer"
	TypeAdjustment  Type = "adjustmentLayer"
	TypeSmartObject Type = "smartObjectLayer"
	TypeBackground  Type = "backgroundLayer"
)

func (t Type) IsGroup() bool {
	return t == TypeGroup
}

// Node is one layer or group. Parent is RootID for top-level layers.
// Children is only populated for groups.
type Node struct {
	ID       int             `json:"id"`
	Index    int             `json:"index"`
	Type     Type            `json:"type"`
	Name     string          `json:"name"`
	Bounds   protocol.Bounds `json:"bounds"`
	Visible  bool            `json:"visible"`
	Parent   int             `json:"parent"`
	Children []int           `json:"children,omitempty"`
}

func (n *Node) IsGroup() bool {
	return n.Type.IsGroup()
}

func (n *Node) String() string {
	return fmt.Sprintf("%d:%s", n.ID, n.Name)
}

func newNode(raw protocol.RawLayer) *Node {
	n := &Node{
		ID:      raw.ID,
		Type:    TypeLayer,
		Visible: true,
		Parent:  RootID,
	}
	if raw.Type != "" {
		n.Type = Type(raw.Type)
	}
	if idx, ok := raw.Index.Get(); ok {
		n.Index = idx
	}
	n.Name = raw.Name.Value
	n.Bounds = raw.Bounds.Value
	if v, ok := raw.Visible.Get(); ok {
		n.Visible = v
	}
	if n.IsGroup() {
		n.Children = []int{}
	}
	return n
}

// update copies the fields present on raw onto n.
func (n *Node) update(raw protocol.RawLayer) error {
	if raw.Type != "" && Type(raw.Type) != n.Type {
		next := Type(raw.Type)
		if n.IsGroup() && !next.IsGroup() && len(n.Children) > 0 {
			return fmt.Errorf("%w: group %d with %d children retyped to %q",
				ErrStructuralInvariant, n.ID, len(n.Children), next)
		}
		n.Type = next
		if n.IsGroup() && n.Children == nil {
			n.Children = []int{}
		}
	}
	if v, ok := raw.Name.Get(); ok {
		n.Name = v
	}
	if v, ok := raw.Bounds.Get(); ok {
		n.Bounds = v
	}
	if v, ok := raw.Visible.Get(); ok {
		n.Visible = v
	}
	return nil
}

func (n *Node) clone() *Node {
	c := *n
	if n.Children != nil {
		c.Children = make([]int, len(n.Children))
		copy(c.Children, n.Children)
	}
	return &c
}
