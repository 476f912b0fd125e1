package layer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/danmuck/layermirror/internal/protocol"
)

// Tree is the id-indexed layer table plus the implicit root group.
type Tree struct {
	root  *Node
	nodes map[int]*Node
}

// Location is the result of a lookup: the layer, the group holding it and
// its position in that group's child sequence.
type Location struct {
	Layer  *Node
	Parent *Node
	Index  int
}

// New returns an empty tree.
func New() *Tree {
	return &Tree{
		root:  &Node{ID: RootID, Type: TypeGroup, Visible: true, Parent: RootID, Children: []int{}},
		nodes: make(map[int]*Node),
	}
}

// Build constructs a tree from snapshot layer records.
func Build(raw []protocol.RawLayer) (*Tree, error) {
	t := New()
	if err := t.buildLevel(t.root, raw); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Tree) buildLevel(group *Node, raw []protocol.RawLayer) error {
	for _, rec := range SortByIndex(raw) {
		if rec.ID < 0 {
			return fmt.Errorf("%w: negative id %d", ErrInvalidIndex, rec.ID)
		}
		if _, exists := t.nodes[rec.ID]; exists {
			return fmt.Errorf("%w: %d", ErrDuplicateLayer, rec.ID)
		}
		n := newNode(rec)
		n.Parent = group.ID
		t.nodes[n.ID] = n
		group.Children = append(group.Children, n.ID)
		if rec.Layers != nil {
			if !n.IsGroup() {
				return fmt.Errorf("%w: %d has nested layers", ErrNotGroup, n.ID)
			}
			if err := t.buildLevel(n, rec.Layers); err != nil {
				return err
			}
		}
	}
	t.reindex(group)
	return nil
}

// Root returns the implicit root group.
func (t *Tree) Root() *Node {
	return t.root
}

// Len is the number of layers, excluding the root.
func (t *Tree) Len() int {
	return len(t.nodes)
}

// Node returns the layer with id.
func (t *Tree) Node(id int) (*Node, bool) {
	n, ok := t.nodes[id]
	return n, ok
}

// Parent returns the group that holds n. Top-level layers return the root.
func (t *Tree) Parent(n *Node) (*Node, bool) {
	if n == nil || n.ID == RootID {
		return nil, false
	}
	if n.Parent == RootID {
		return t.root, true
	}
	p, ok := t.nodes[n.Parent]
	return p, ok
}

// Children returns the child nodes of group in order.
func (t *Tree) Children(group *Node) []*Node {
	if group == nil {
		return nil
	}
	out := make([]*Node, 0, len(group.Children))
	for _, id := range group.Children {
		if n, ok := t.nodes[id]; ok {
			out = append(out, n)
		}
	}
	return out
}

// Find resolves id to its layer, parent group and sibling position. The
// node's maintained Index is trusted when it checks out. It never mutates
// the tree.
func (t *Tree) Find(id int) (Location, bool) {
	n, ok := t.nodes[id]
	if !ok {
		return Location{}, false
	}
	p, ok := t.Parent(n)
	if !ok {
		return Location{}, false
	}
	idx := n.Index
	if idx < 0 || idx >= len(p.Children) || p.Children[idx] != id {
		if idx = indexOf(p.Children, id); idx < 0 {
			return Location{}, false
		}
	}
	return Location{Layer: n, Parent: p, Index: idx}, true
}

// Detach removes n from its parent's child sequence. The node and its
// subtree stay in the table so the caller can re-insert them.
func (t *Tree) Detach(n *Node) error {
	p, ok := t.Parent(n)
	if !ok {
		return fmt.Errorf("%w: layer %d claims missing parent %d", ErrStructuralInvariant, n.ID, n.Parent)
	}
	idx := indexOf(p.Children, n.ID)
	if idx < 0 {
		return fmt.Errorf("%w: layer %d not a child of parent %d", ErrStructuralInvariant, n.ID, p.ID)
	}
	p.Children = append(p.Children[:idx], p.Children[idx+1:]...)
	t.reindex(p)
	return nil
}

// Clone deep-copies the tree. Node pointers in the copy are distinct from
// the original.
func (t *Tree) Clone() *Tree {
	c := &Tree{
		root:  t.root.clone(),
		nodes: make(map[int]*Node, len(t.nodes)),
	}
	for id, n := range t.nodes {
		c.nodes[id] = n.clone()
	}
	return c
}

// Walk visits every layer depth-first in child order. Returning an error
// stops the walk.
func (t *Tree) Walk(fn func(n *Node, depth int) error) error {
	return t.walk(t.root, 0, fn)
}

func (t *Tree) walk(group *Node, depth int, fn func(n *Node, depth int) error) error {
	for _, n := range t.Children(group) {
		if err := fn(n, depth); err != nil {
			return err
		}
		if n.IsGroup() {
			if err := t.walk(n, depth+1, fn); err != nil {
				return err
			}
		}
	}
	return nil
}

// String renders the tree as nested bracket lists, e.g. [1:bg, 2:grp [3:btn]].
func (t *Tree) String() string {
	var b strings.Builder
	t.writeGroup(&b, t.root)
	return b.String()
}

func (t *Tree) writeGroup(b *strings.Builder, group *Node) {
	b.WriteByte('[')
	for i, n := range t.Children(group) {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(n.String())
		if n.IsGroup() {
			b.WriteByte(' ')
			t.writeGroup(b, n)
		}
	}
	b.WriteByte(']')
}

func (t *Tree) reindex(group *Node) {
	for i, id := range group.Children {
		if n, ok := t.nodes[id]; ok {
			n.Index = i
		}
	}
}

func indexOf(ids []int, id int) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}

// SortByIndex returns a copy of raw ordered by index ascending. Records
// without an index keep their relative order after the indexed ones.
func SortByIndex(raw []protocol.RawLayer) []protocol.RawLayer {
	out := make([]protocol.RawLayer, len(raw))
	copy(out, raw)
	sort.SliceStable(out, func(i, j int) bool {
		a, aok := out[i].Index.Get()
		b, bok := out[j].Index.Get()
		if aok != bok {
			return aok
		}
		return aok && a < b
	})
	return out
}
