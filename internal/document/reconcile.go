package document

import (
	"fmt"
	"sort"

	"github.com/danmuck/layermirror/internal/layer"
	"github.com/danmuck/layermirror/internal/protocol"
)

// reconcile applies a structural layer delta to tree in three passes:
// collect the existing layers the delta touches, detach them from their
// current parents, then let the tree re-insert them at their new places.
func reconcile(tree *layer.Tree, changes []protocol.RawLayer) error {
	affected := make(map[int]*layer.Node)
	if err := collectAffected(tree, changes, affected); err != nil {
		return err
	}
	if err := detachAffected(tree, affected); err != nil {
		return err
	}
	return tree.ApplyChanges(affected, changes)
}

// collectAffected resolves every non-add record with an index or removed
// flag. Nested lists are walked before their record, and are walked even
// when the record itself is not actionable.
func collectAffected(tree *layer.Tree, changes []protocol.RawLayer, into map[int]*layer.Node) error {
	for _, rec := range layer.SortByIndex(changes) {
		if rec.Layers != nil {
			if err := collectAffected(tree, rec.Layers, into); err != nil {
				return err
			}
		}
		if !rec.Actionable() || rec.Added {
			continue
		}
		n, ok := tree.Node(rec.ID)
		if !ok {
			if rec.Removed {
				// already gone
				continue
			}
			return fmt.Errorf("%w: can't find changed layer %d", ErrLayerNotFound, rec.ID)
		}
		into[rec.ID] = n
	}
	return nil
}

// detachAffected removes each affected layer from its parent, lowest
// current index first.
func detachAffected(tree *layer.Tree, affected map[int]*layer.Node) error {
	nodes := make([]*layer.Node, 0, len(affected))
	for _, n := range affected {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].Index != nodes[j].Index {
			return nodes[i].Index < nodes[j].Index
		}
		return nodes[i].ID < nodes[j].ID
	})
	for _, n := range nodes {
		if err := tree.Detach(n); err != nil {
			return err
		}
	}
	return nil
}
