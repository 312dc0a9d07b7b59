package fstack

import (
	"errors"
	"fmt"
)

// ErrTooManyNodes is returned when the object-ID space is exhausted.
// The all-ones value is reserved as the "unregistered" sentinel, so the
// registry must fail before handing it out.
var ErrTooManyNodes = errors.New("too many file stack nodes; try splitting the file up")

// ErrNodeOrder reports a broken registry invariant: the flattened list's IDs
// are expected to be dense, and any gap means a registry bug, not bad input.
var ErrNodeOrder = errors.New("file stack node IDs are not contiguous")

// Registry assigns object-file IDs to tree nodes on first use and keeps the
// write-ordered flat list. IDs are handed out only for nodes actually
// reachable from an emitted patch or symbol, so inclusion contexts that
// produced no output never bloat the file.
type Registry struct {
	tree *Tree
	flat []NodeID // registration order: flat[i] has object ID i
}

// NewRegistry creates a registry over the given arena.
func NewRegistry(tree *Tree) *Registry {
	return &Registry{tree: tree}
}

// Count returns highest assigned ID + 1, or 0 if nothing is registered.
func (r *Registry) Count() uint32 {
	return uint32(len(r.flat))
}

// Register assigns the node, and any unregistered ancestors, the next
// object-file IDs. Registering an already-registered node is a no-op.
func (r *Registry) Register(id NodeID) error {
	for id.IsValid() {
		node := r.tree.Node(id)
		if node.objID.IsValid() {
			break
		}
		next := ObjID(r.Count())
		if next == NoObjID {
			return ErrTooManyNodes
		}
		node.objID = next
		r.flat = append(r.flat, id)

		// Parents are referenced by the child's record, so they must be
		// registered too.
		id = node.Parent
	}
	return nil
}

// Walk visits every registered node in write order: most recently registered
// first, object IDs strictly descending. It re-checks the density invariant
// on the way and returns ErrNodeOrder if the registry ever broke it.
func (r *Registry) Walk(visit func(node *Node) error) error {
	for i := len(r.flat) - 1; i >= 0; i-- {
		node := r.tree.Node(r.flat[i])
		if node.objID != ObjID(i) {
			return fmt.Errorf("%w: node #%d holds ID %d", ErrNodeOrder, i, node.objID)
		}
		if err := visit(node); err != nil {
			return err
		}
	}
	return nil
}
