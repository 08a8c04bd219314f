package genotype

import (
	"errors"
	"fmt"
	"strings"

	"gpbreed/internal/funcset"
	"gpbreed/internal/gptype"
)

var (
	ErrEmptyTree     = errors.New("tree has no root")
	ErrArity         = errors.New("child count does not match template arity")
	ErrTypeMismatch  = errors.New("node return type incompatible with slot")
	ErrBrokenLink    = errors.New("parent link inconsistent")
	ErrUnknownNodeID = errors.New("node id out of range")
)

// NodeID addresses a node inside its tree's arena.
type NodeID int32

const NoNode NodeID = -1

// Node is one instantiated template. Children has exactly Template.Arity()
// entries once the tree is complete.
type Node struct {
	Template *funcset.Template
	Parent   NodeID
	ArgPos   int
	Children []NodeID
}

// Tree is an arena of nodes rooted at Root. Type is the type required of the
// root. Subtree replacement always produces a new compact arena, so node IDs
// never dangle across trees.
type Tree struct {
	Type  *gptype.Type
	Root  NodeID
	nodes []Node
}

func NewTree(typ *gptype.Type) *Tree {
	return &Tree{Type: typ, Root: NoNode}
}

// Add instantiates tpl under parent at argPos (or as the root when parent is
// NoNode) and returns its ID. Its child slots start as NoNode.
func (t *Tree) Add(tpl *funcset.Template, parent NodeID, argPos int) NodeID {
	id := NodeID(len(t.nodes))
	children := make([]NodeID, tpl.Arity())
	for i := range children {
		children[i] = NoNode
	}
	t.nodes = append(t.nodes, Node{Template: tpl, Parent: parent, ArgPos: argPos, Children: children})
	if parent == NoNode {
		t.Root = id
	} else {
		t.nodes[parent].Children[argPos] = id
	}
	return id
}

func (t *Tree) Node(id NodeID) *Node { return &t.nodes[id] }

func (t *Tree) Template(id NodeID) *funcset.Template { return t.nodes[id].Template }

// Size is the number of nodes reachable from the root.
func (t *Tree) Size() int {
	if t.Root == NoNode {
		return 0
	}
	return t.SubtreeSize(t.Root)
}

func (t *Tree) SubtreeSize(id NodeID) int {
	n := 1
	for _, c := range t.nodes[id].Children {
		if c != NoNode {
			n += t.SubtreeSize(c)
		}
	}
	return n
}

// Depth is the longest root-to-leaf node count; a single node has depth 1.
func (t *Tree) Depth() int {
	if t.Root == NoNode {
		return 0
	}
	return t.SubtreeDepth(t.Root)
}

func (t *Tree) SubtreeDepth(id NodeID) int {
	deepest := 0
	for _, c := range t.nodes[id].Children {
		if c == NoNode {
			continue
		}
		if d := t.SubtreeDepth(c); d > deepest {
			deepest = d
		}
	}
	return deepest + 1
}

// AtDepth is the number of edges from the root to id; the root is at 0.
func (t *Tree) AtDepth(id NodeID) int {
	d := 0
	for p := t.nodes[id].Parent; p != NoNode; p = t.nodes[p].Parent {
		d++
	}
	return d
}

// SlotType is the type required at id's position: the parent's child type, or
// the tree's root type.
func (t *Tree) SlotType(id NodeID) *gptype.Type {
	n := t.nodes[id]
	if n.Parent == NoNode {
		return t.Type
	}
	return t.nodes[n.Parent].Template.Children[n.ArgPos]
}

// Preorder lists the subtree under id, root first.
func (t *Tree) Preorder(id NodeID) []NodeID {
	if id == NoNode {
		return nil
	}
	out := make([]NodeID, 0, 16)
	var walk func(NodeID)
	walk = func(n NodeID) {
		out = append(out, n)
		for _, c := range t.nodes[n].Children {
			if c != NoNode {
				walk(c)
			}
		}
	}
	walk(id)
	return out
}

// Clone returns a compact deep copy.
func (t *Tree) Clone() *Tree {
	out := NewTree(t.Type)
	if t.Root != NoNode {
		out.nodes = make([]Node, 0, len(t.nodes))
		out.graft(t, t.Root, NoNode, 0)
	}
	return out
}

// CloneReplacing copies t with the subtree at `at` replaced by a copy of the
// subtree rooted at donorRoot in donor. Neither input is modified.
func (t *Tree) CloneReplacing(at NodeID, donor *Tree, donorRoot NodeID) *Tree {
	out := NewTree(t.Type)
	out.nodes = make([]Node, 0, len(t.nodes))
	var walk func(src NodeID, parent NodeID, argPos int)
	walk = func(src NodeID, parent NodeID, argPos int) {
		if src == at {
			out.graft(donor, donorRoot, parent, argPos)
			return
		}
		n := t.nodes[src]
		id := out.Add(n.Template, parent, argPos)
		for i, c := range n.Children {
			if c != NoNode {
				walk(c, id, i)
			}
		}
	}
	walk(t.Root, NoNode, 0)
	return out
}

// graft copies the subtree at srcID of src into t under parent.
func (t *Tree) graft(src *Tree, srcID NodeID, parent NodeID, argPos int) NodeID {
	n := src.nodes[srcID]
	id := t.Add(n.Template, parent, argPos)
	for i, c := range n.Children {
		if c != NoNode {
			t.graft(src, c, id, i)
		}
	}
	return id
}

// Validate checks arity integrity, slot type safety and parent links for
// every node reachable from the root.
func (t *Tree) Validate() error {
	if t.Root == NoNode {
		return ErrEmptyTree
	}
	if t.nodes[t.Root].Parent != NoNode {
		return fmt.Errorf("%w: root has a parent", ErrBrokenLink)
	}
	for _, id := range t.Preorder(t.Root) {
		n := t.nodes[id]
		if len(n.Children) != n.Template.Arity() {
			return fmt.Errorf("%w: %s has %d children", ErrArity, n.Template.Name, len(n.Children))
		}
		if slot := t.SlotType(id); !n.Template.Return.Compatible(slot) {
			return fmt.Errorf("%w: %s returns %s, slot needs %s", ErrTypeMismatch, n.Template.Name, n.Template.Return, slot)
		}
		for i, c := range n.Children {
			if c == NoNode {
				return fmt.Errorf("%w: %s child %d unfilled", ErrArity, n.Template.Name, i)
			}
			if int(c) < 0 || int(c) >= len(t.nodes) {
				return fmt.Errorf("%w: %d", ErrUnknownNodeID, c)
			}
			if t.nodes[c].Parent != id || t.nodes[c].ArgPos != i {
				return fmt.Errorf("%w: child %d of %s", ErrBrokenLink, i, n.Template.Name)
			}
		}
	}
	return nil
}

// String renders the tree in lisp form, e.g. (F A (F A A)).
func (t *Tree) String() string {
	if t.Root == NoNode {
		return "()"
	}
	var b strings.Builder
	t.write(&b, t.Root)
	return b.String()
}

func (t *Tree) SubtreeString(id NodeID) string {
	var b strings.Builder
	t.write(&b, id)
	return b.String()
}

func (t *Tree) write(b *strings.Builder, id NodeID) {
	n := t.nodes[id]
	if len(n.Children) == 0 {
		b.WriteString(n.Template.Name)
		return
	}
	b.WriteByte('(')
	b.WriteString(n.Template.Name)
	for _, c := range n.Children {
		b.WriteByte(' ')
		if c == NoNode {
			b.WriteString("_")
			continue
		}
		t.write(b, c)
	}
	b.WriteByte(')')
}

// Eval evaluates a tree whose templates carry ops. Templates without an op
// evaluate to 0.
func (t *Tree) Eval(vars []float64) float64 {
	if t.Root == NoNode {
		return 0
	}
	return t.eval(t.Root, vars)
}

func (t *Tree) eval(id NodeID, vars []float64) float64 {
	n := t.nodes[id]
	args := make([]float64, len(n.Children))
	for i, c := range n.Children {
		args[i] = t.eval(c, vars)
	}
	if n.Template.Op == nil {
		return 0
	}
	return n.Template.Op(vars, args)
}
