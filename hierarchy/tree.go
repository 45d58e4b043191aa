// Package hierarchy implements the granularity tree: a rooted hierarchy
// of named resources (for example Database -> Area -> Table -> Page ->
// Tuple) over which multi-granularity locks are held. A Node tracks,
// for each lock mode, the set of transactions currently holding it,
// plus the reference counts needed to back-propagate intention locks
// to ancestors correctly when multiple descendants contribute them.
package hierarchy

import "github.com/johniel/mgl2pl/lockmode"

// Node is one vertex of the granularity tree. Nodes are identified by
// pointer, not by name; name is a label for diagnostics only.
type Node struct {
	name     string
	isRoot   bool
	parent   *Node
	children []*Node

	locks map[lockmode.LockMode][]uint64

	// intentionRefs counts, per transaction and per intention mode, how
	// many distinct grants elsewhere in the subtree are currently
	// contributing that intention lock to this node. The lock is held
	// in locks[mode] only while the count is positive.
	intentionRefs map[uint64]map[lockmode.LockMode]int
}

// NewNode creates a detached node. Attach it to a tree with Tree.AddChild.
func NewNode(name string, isRoot bool) *Node {
	return &Node{
		name:          name,
		isRoot:        isRoot,
		locks:         make(map[lockmode.LockMode][]uint64),
		intentionRefs: make(map[uint64]map[lockmode.LockMode]int),
	}
}

func (n *Node) Name() string      { return n.name }
func (n *Node) IsRoot() bool      { return n.isRoot }
func (n *Node) Parent() *Node     { return n.parent }
func (n *Node) Children() []*Node { return append([]*Node(nil), n.children...) }

// Holders returns a copy of the set of transactions holding mode at n.
func (n *Node) Holders(mode lockmode.LockMode) []uint64 {
	return append([]uint64(nil), n.locks[mode]...)
}

// HasHolder reports whether txn holds mode at n.
func (n *Node) HasHolder(mode lockmode.LockMode, txn uint64) bool {
	for _, h := range n.locks[mode] {
		if h == txn {
			return true
		}
	}
	return false
}

// AddHolder adds txn to mode's holder set if not already present. It
// reports whether the set changed.
func (n *Node) AddHolder(mode lockmode.LockMode, txn uint64) bool {
	if n.HasHolder(mode, txn) {
		return false
	}
	n.locks[mode] = append(n.locks[mode], txn)
	return true
}

// RemoveHolder removes txn from mode's holder set if present. It
// reports whether the set changed.
func (n *Node) RemoveHolder(mode lockmode.LockMode, txn uint64) bool {
	holders := n.locks[mode]
	for i, h := range holders {
		if h == txn {
			n.locks[mode] = append(holders[:i], holders[i+1:]...)
			return true
		}
	}
	return false
}

// HeldModesExcluding returns, for each mode with at least one holder
// other than exclude, that mode. Used to evaluate compatibility for a
// new request by exclude.
func (n *Node) HeldModesExcluding(exclude uint64) []lockmode.LockMode {
	var modes []lockmode.LockMode
	for mode, holders := range n.locks {
		for _, h := range holders {
			if h != exclude {
				modes = append(modes, mode)
				break
			}
		}
	}
	return modes
}

// SelectBlocker returns a holder other than exclude to blame for a
// failed grant at n. A CL holder is checked first: CL is only ever
// granted on an otherwise-empty node, so whenever CL is held by
// someone other than exclude it is necessarily the sole conflicting
// holder, and lockmode.BlockingScanOrder (which omits CL, since CL is
// never itself requested while blocked on another CL) would never find
// it. Otherwise it scans the node's holder sets in
// lockmode.BlockingScanOrder and returns the first holder other than
// exclude that it finds.
func (n *Node) SelectBlocker(exclude uint64) (uint64, bool) {
	for _, h := range n.locks[lockmode.CL] {
		if h != exclude {
			return h, true
		}
	}

	for _, mode := range lockmode.BlockingScanOrder {
		for _, h := range n.locks[mode] {
			if h != exclude {
				return h, true
			}
		}
	}
	return 0, false
}

// IncIntentionRef records one more contribution of mode (an intention
// mode) from the subtree below n for txn, adding txn to the holder set
// on the 0->1 transition. It returns the new count.
func (n *Node) IncIntentionRef(txn uint64, mode lockmode.LockMode) int {
	byMode, ok := n.intentionRefs[txn]
	if !ok {
		byMode = make(map[lockmode.LockMode]int)
		n.intentionRefs[txn] = byMode
	}
	byMode[mode]++
	count := byMode[mode]
	if count == 1 {
		n.AddHolder(mode, txn)
	}
	return count
}

// DecIntentionRef removes one contribution of mode for txn, removing
// txn from the holder set on the 1->0 transition. It returns the new
// count.
func (n *Node) DecIntentionRef(txn uint64, mode lockmode.LockMode) int {
	byMode, ok := n.intentionRefs[txn]
	if !ok {
		return 0
	}
	if byMode[mode] <= 0 {
		return 0
	}
	byMode[mode]--
	count := byMode[mode]
	if count == 0 {
		delete(byMode, mode)
		n.RemoveHolder(mode, txn)
	}
	if len(byMode) == 0 {
		delete(n.intentionRefs, txn)
	}
	return count
}

// Ancestors returns n's strict ancestors, nearest first, up to and
// including the root.
func (n *Node) Ancestors() []*Node {
	var out []*Node
	for p := n.parent; p != nil; p = p.parent {
		out = append(out, p)
	}
	return out
}

// Descendants returns all of n's strict descendants, in a deterministic
// pre-order traversal.
func (n *Node) Descendants() []*Node {
	var out []*Node
	var walk func(*Node)
	walk = func(cur *Node) {
		for _, c := range cur.children {
			out = append(out, c)
			walk(c)
		}
	}
	walk(n)
	return out
}

// Tree is a granularity tree rooted at a single Database-like node.
type Tree struct {
	root   *Node
	byName map[string]*Node
}

// NewTree creates a tree with a fresh root node named rootName.
func NewTree(rootName string) *Tree {
	root := NewNode(rootName, true)
	return &Tree{
		root:   root,
		byName: map[string]*Node{rootName: root},
	}
}

// Root returns the tree's root node.
func (t *Tree) Root() *Node { return t.root }

// AddChild attaches child under parent. Both must belong to this tree
// (parent already does; child must not already be attached elsewhere).
// It registers child under its name for lookup via Node.
func (t *Tree) AddChild(parent, child *Node) {
	parent.children = append(parent.children, child)
	child.parent = parent
	t.byName[child.name] = child
}

// Node looks up a node previously attached to the tree by name.
func (t *Tree) Node(name string) (*Node, bool) {
	n, ok := t.byName[name]
	return n, ok
}
