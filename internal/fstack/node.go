// Package fstack models the file-inclusion stack of the assembler: every
// file inclusion, macro expansion and REPT iteration opens a new context
// node. Nodes form a parent-linked tree stored in an arena; link-time
// diagnostics reference them by the object-file IDs assigned in registry.go.
package fstack

import (
	"fmt"

	"fortio.org/safecast"
)

// NodeID identifies a node inside the arena.
type NodeID uint32

// NoNodeID marks the absence of a node reference (root contexts have no parent).
const NoNodeID NodeID = 0xFFFFFFFF

// IsValid reports whether the ID refers to an allocated node.
func (id NodeID) IsValid() bool { return id != NoNodeID }

// ObjID is a node's identifier inside the written object file.
// It stays NoObjID until the node is first referenced by a patch or symbol.
type ObjID uint32

// NoObjID marks a node that has not been registered for output.
const NoObjID ObjID = 0xFFFFFFFF

// IsValid reports whether the node has been registered.
func (id ObjID) IsValid() bool { return id != NoObjID }

// NodeKind classifies a context node. The values are wire tags.
type NodeKind uint8

const (
	NodeRept NodeKind = iota
	NodeFile
	NodeMacro
)

func (k NodeKind) String() string {
	switch k {
	case NodeRept:
		return "rept"
	case NodeFile:
		return "file"
	case NodeMacro:
		return "macro"
	default:
		return "invalid"
	}
}

// Node is one inclusion/expansion context.
// Name is meaningful for NodeFile and NodeMacro; Iters for NodeRept only,
// stored by decreasing depth (innermost iteration first).
type Node struct {
	Parent NodeID
	Line   uint32
	Kind   NodeKind
	Name   string
	Iters  []uint32

	objID ObjID
}

// ObjID returns the node's object-file ID, or NoObjID if unregistered.
func (n *Node) ObjID() ObjID { return n.objID }

// Tree is the arena owning every context node of one compilation.
type Tree struct {
	nodes []Node
}

// NewTree creates an empty node arena.
func NewTree() *Tree {
	return &Tree{nodes: make([]Node, 0, 16)}
}

func (t *Tree) add(n Node) NodeID {
	lenNodes, err := safecast.Conv[uint32](len(t.nodes))
	if err != nil {
		panic(fmt.Errorf("node arena overflow: %w", err))
	}
	id := NodeID(lenNodes)
	n.objID = NoObjID
	t.nodes = append(t.nodes, n)
	return id
}

// AddFile appends a file-inclusion context.
func (t *Tree) AddFile(name string, parent NodeID, line uint32) NodeID {
	return t.add(Node{Kind: NodeFile, Name: name, Parent: parent, Line: line})
}

// AddMacro appends a macro-expansion context.
func (t *Tree) AddMacro(name string, parent NodeID, line uint32) NodeID {
	return t.add(Node{Kind: NodeMacro, Name: name, Parent: parent, Line: line})
}

// AddRept appends a REPT iteration context.
// iters is stored as given: deepest level first.
func (t *Tree) AddRept(iters []uint32, parent NodeID, line uint32) NodeID {
	return t.add(Node{Kind: NodeRept, Iters: iters, Parent: parent, Line: line})
}

// Node returns the node for the given ID.
func (t *Tree) Node(id NodeID) *Node {
	return &t.nodes[id]
}

// Len returns the number of allocated nodes (registered or not).
func (t *Tree) Len() int {
	return len(t.nodes)
}
