// Package layer owns the mirrored layer tree.
//
// Nodes live in a flat table keyed by layer id. Parent and child links are
// ids, so the tree holds no pointer cycles and a lookup by id is O(1).
// The root group is not a layer and has id RootID.
//
// The tree is mutated only by ApplyChanges and Detach; every other caller
// treats nodes as read-only.
package layer
