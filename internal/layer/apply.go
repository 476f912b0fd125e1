package layer

import (
	"fmt"

	"github.com/danmuck/layermirror/internal/protocol"
	"github.com/rs/zerolog/log"
)

// applyState tracks one ApplyChanges pass.
type applyState struct {
	detached map[int]*Node
	placed   map[int]bool
	deleted  map[int]bool
}

// ApplyChanges re-inserts detached nodes and builds added ones at the
// positions described by changes. Nesting in changes names the parent: a
// top-level record belongs to the root, a nested record to its enclosing
// record's group.
//
// detached must hold every existing node referenced by an actionable
// non-add record, already removed from its old parent. It may be empty.
// Detached nodes that no record places again (removed, or nested under a
// removed group) are dropped from the table with their subtrees.
func (t *Tree) ApplyChanges(detached map[int]*Node, changes []protocol.RawLayer) error {
	st := &applyState{
		detached: detached,
		placed:   make(map[int]bool),
		deleted:  make(map[int]bool),
	}
	if err := t.applyLevel(t.root, changes, st); err != nil {
		return err
	}
	for id, n := range detached {
		if st.placed[id] || st.deleted[id] {
			continue
		}
		log.Debug().Int("layer", id).Msg("layer.ApplyChanges dropping unplaced layer")
		t.deleteSubtree(n, st)
	}
	return nil
}

func (t *Tree) applyLevel(group *Node, changes []protocol.RawLayer, st *applyState) error {
	for _, rec := range SortByIndex(changes) {
		switch {
		case rec.Removed:
			if n, ok := st.detached[rec.ID]; ok && !st.deleted[rec.ID] {
				if st.placed[rec.ID] {
					if err := t.Detach(n); err != nil {
						return err
					}
				}
				t.deleteSubtree(n, st)
			}
		case rec.Index.Set:
			n, err := t.placeRecord(group, rec, st)
			if err != nil {
				return err
			}
			if rec.Layers != nil {
				if !n.IsGroup() {
					return fmt.Errorf("%w: %d has nested layer changes", ErrNotGroup, n.ID)
				}
				if err := t.applyLevel(n, rec.Layers, st); err != nil {
					return err
				}
			}
		default:
			if err := t.updateInPlace(rec, st); err != nil {
				return err
			}
		}
	}
	t.reindex(group)
	return nil
}

// placeRecord inserts the node for rec into group at rec's index.
func (t *Tree) placeRecord(group *Node, rec protocol.RawLayer, st *applyState) (*Node, error) {
	idx := rec.Index.Value
	if idx < 0 {
		return nil, fmt.Errorf("%w: layer %d index %d", ErrInvalidIndex, rec.ID, idx)
	}

	var n *Node
	if rec.Added {
		if _, exists := t.nodes[rec.ID]; exists {
			return nil, fmt.Errorf("%w: added layer %d already exists", ErrDuplicateLayer, rec.ID)
		}
		n = newNode(rec)
		t.nodes[n.ID] = n
	} else {
		var ok bool
		n, ok = st.detached[rec.ID]
		if !ok || st.deleted[rec.ID] {
			return nil, fmt.Errorf("%w: %d was not detached before apply", ErrLayerNotFound, rec.ID)
		}
		if st.placed[rec.ID] {
			// Same id placed twice in one change set: the later record wins.
			if err := t.Detach(n); err != nil {
				return nil, err
			}
		}
		if err := n.update(rec); err != nil {
			return nil, err
		}
	}

	if err := t.checkAncestry(n, group); err != nil {
		return nil, err
	}
	if idx > len(group.Children) {
		log.Debug().
			Int("layer", n.ID).
			Int("parent", group.ID).
			Int("index", idx).
			Int("children", len(group.Children)).
			Msg("layer.ApplyChanges clamping index")
		idx = len(group.Children)
	}
	group.Children = append(group.Children, 0)
	copy(group.Children[idx+1:], group.Children[idx:])
	group.Children[idx] = n.ID
	n.Parent = group.ID
	st.placed[n.ID] = true
	return n, nil
}

// updateInPlace handles a record that neither moves nor removes its layer:
// field updates and nested child changes for a layer that stays put.
func (t *Tree) updateInPlace(rec protocol.RawLayer, st *applyState) error {
	if st.deleted[rec.ID] {
		log.Debug().Int("layer", rec.ID).Msg("layer.ApplyChanges skipping update for removed layer")
		return nil
	}
	n, ok := t.nodes[rec.ID]
	if !ok {
		return fmt.Errorf("%w: can't find changed layer %d", ErrLayerNotFound, rec.ID)
	}
	if err := n.update(rec); err != nil {
		return err
	}
	if rec.Layers == nil {
		return nil
	}
	if !n.IsGroup() {
		return fmt.Errorf("%w: %d has nested layer changes", ErrNotGroup, n.ID)
	}
	return t.applyLevel(n, rec.Layers, st)
}

// checkAncestry rejects placing n inside itself or one of its descendants.
func (t *Tree) checkAncestry(n, group *Node) error {
	for g := group; g.ID != RootID; {
		if g.ID == n.ID {
			return fmt.Errorf("%w: layer %d placed inside its own subtree under %d", ErrStructuralInvariant, n.ID, group.ID)
		}
		p, ok := t.Parent(g)
		if !ok {
			return fmt.Errorf("%w: group %d claims missing parent %d", ErrStructuralInvariant, g.ID, g.Parent)
		}
		g = p
	}
	return nil
}

func (t *Tree) deleteSubtree(n *Node, st *applyState) {
	for _, id := range n.Children {
		if child, ok := t.nodes[id]; ok {
			t.deleteSubtree(child, st)
		}
	}
	delete(t.nodes, n.ID)
	st.deleted[n.ID] = true
}
