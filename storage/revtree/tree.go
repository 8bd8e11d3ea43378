package revtree

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Status describes whether a revision's body is stored
type Status int

const (
	// StatusAvailable means the revision body is stored
	StatusAvailable Status = iota
	// StatusMissing means the revision is only known by id.
	// Its body was never received, was stemmed or was compacted.
	StatusMissing
)

func (status Status) String() string {
	switch status {
	case StatusAvailable:
		return "available"
	case StatusMissing:
		return "missing"
	}

	return fmt.Sprintf("Status(%d)", int(status))
}

// MarshalJSON implements json.Marshaler
func (status Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(status.String())
}

// UnmarshalJSON implements json.Unmarshaler
func (status *Status) UnmarshalJSON(data []byte) error {
	var s string

	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	switch s {
	case "available":
		*status = StatusAvailable
	case "missing":
		*status = StatusMissing
	default:
		return fmt.Errorf("unknown revision status %q", s)
	}

	return nil
}

// Node is a single revision in the tree. Parent is the
// index of the parent node in the arena or -1 for roots.
type Node struct {
	Pos     int    `json:"pos"`
	Hash    string `json:"hash"`
	Status  Status `json:"status"`
	Deleted bool   `json:"deleted,omitempty"`
	Parent  int    `json:"parent"`
}

// Rev returns the revision id of this node
func (node Node) Rev() string {
	return Rev(node.Pos, node.Hash)
}

// Tree is a revision forest. Parents always appear
// before their children in Nodes.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

// Path is a linear lineage, oldest revision first.
// IDs[i] is the hash of the revision at generation Pos+i.
// Status and Deleted describe the last revision only;
// the ones before it are implicitly missing.
type Path struct {
	Pos     int
	IDs     []string
	Status  Status
	Deleted bool
}

// Leaf returns the revision id of the last revision in the path
func (path Path) Leaf() string {
	return Rev(path.Pos+len(path.IDs)-1, path.IDs[len(path.IDs)-1])
}

// Clone returns a deep copy of the tree. A tree with
// nil Nodes clones to a tree with nil Nodes.
func (tree Tree) Clone() Tree {
	if tree.Nodes == nil {
		return Tree{}
	}

	nodes := make([]Node, len(tree.Nodes))
	copy(nodes, tree.Nodes)

	return Tree{Nodes: nodes}
}

// Empty returns true if the tree has no revisions
func (tree Tree) Empty() bool {
	return len(tree.Nodes) == 0
}

func (tree Tree) index(pos int, hash string) int {
	for i, node := range tree.Nodes {
		if node.Pos == pos && node.Hash == hash {
			return i
		}
	}

	return -1
}

func (tree Tree) hasChildren() []bool {
	hasChildren := make([]bool, len(tree.Nodes))

	for _, node := range tree.Nodes {
		if node.Parent >= 0 {
			hasChildren[node.Parent] = true
		}
	}

	return hasChildren
}

// Get returns the node for revision rev
func (tree Tree) Get(rev string) (Node, bool) {
	pos, hash, err := ParseRev(rev)

	if err != nil {
		return Node{}, false
	}

	i := tree.index(pos, hash)

	if i < 0 {
		return Node{}, false
	}

	return tree.Nodes[i], true
}

// Contains returns true if rev is part of the tree
func (tree Tree) Contains(rev string) bool {
	_, ok := tree.Get(rev)

	return ok
}

// IsDeleted returns true if rev is a deletion
func (tree Tree) IsDeleted(rev string) bool {
	node, ok := tree.Get(rev)

	return ok && node.Deleted
}

// IsLeaf returns true if rev is part of the tree
// and has no children
func (tree Tree) IsLeaf(rev string) bool {
	pos, hash, err := ParseRev(rev)

	if err != nil {
		return false
	}

	i := tree.index(pos, hash)

	return i >= 0 && !tree.hasChildren()[i]
}

// Leaves returns the leaves of the tree in arena order
func (tree Tree) Leaves() []Node {
	hasChildren := tree.hasChildren()
	leaves := []Node{}

	for i, node := range tree.Nodes {
		if !hasChildren[i] {
			leaves = append(leaves, node)
		}
	}

	return leaves
}

// wins returns true if a beats b
func wins(a, b Node) bool {
	if a.Deleted != b.Deleted {
		return !a.Deleted
	}

	if a.Pos != b.Pos {
		return a.Pos > b.Pos
	}

	return a.Hash > b.Hash
}

// Winner returns the winning leaf: non-deleted leaves beat
// deleted ones, then the greater generation wins, then the
// greater hash. ok is false for an empty tree.
func (tree Tree) Winner() (Node, bool) {
	var winner Node
	found := false

	for _, leaf := range tree.Leaves() {
		if !found || wins(leaf, winner) {
			winner = leaf
			found = true
		}
	}

	return winner, found
}

// Conflicts lists non-deleted leaves other than the winner,
// highest generation and hash first
func (tree Tree) Conflicts() []string {
	return tree.losers(false)
}

// DeletedConflicts lists deleted leaves other than the winner
func (tree Tree) DeletedConflicts() []string {
	return tree.losers(true)
}

func (tree Tree) losers(deleted bool) []string {
	winner, ok := tree.Winner()

	if !ok {
		return []string{}
	}

	losers := []Node{}

	for _, leaf := range tree.Leaves() {
		if leaf.Deleted == deleted && !(leaf.Pos == winner.Pos && leaf.Hash == winner.Hash) {
			losers = append(losers, leaf)
		}
	}

	sort.Slice(losers, func(i, j int) bool {
		if losers[i].Pos != losers[j].Pos {
			return losers[i].Pos > losers[j].Pos
		}

		return losers[i].Hash > losers[j].Hash
	})

	revs := make([]string, len(losers))

	for i, leaf := range losers {
		revs[i] = leaf.Rev()
	}

	return revs
}

// Ancestry returns the hashes from rev up to its root,
// newest first, along with the generation of rev.
func (tree Tree) Ancestry(rev string) (int, []string, bool) {
	pos, hash, err := ParseRev(rev)

	if err != nil {
		return 0, nil, false
	}

	i := tree.index(pos, hash)

	if i < 0 {
		return 0, nil, false
	}

	ids := []string{}

	for ; i >= 0; i = tree.Nodes[i].Parent {
		ids = append(ids, tree.Nodes[i].Hash)
	}

	return pos, ids, true
}

// Paths returns one path per leaf, from its root to the leaf
func (tree Tree) Paths() []Path {
	hasChildren := tree.hasChildren()
	paths := []Path{}

	for i, node := range tree.Nodes {
		if hasChildren[i] {
			continue
		}

		ids := []string{}
		pos := node.Pos

		for j := i; j >= 0; j = tree.Nodes[j].Parent {
			ids = append([]string{tree.Nodes[j].Hash}, ids...)
			pos = tree.Nodes[j].Pos
		}

		paths = append(paths, Path{Pos: pos, IDs: ids, Status: node.Status, Deleted: node.Deleted})
	}

	return paths
}

// Traverse calls visitor with a pointer to every node in
// arena order, so parents are visited before children.
// The visitor may change a node's Status or Deleted flag
// but not its identity or parent. Traversal stops when
// the visitor returns false.
func (tree Tree) Traverse(visitor func(node *Node) bool) {
	for i := range tree.Nodes {
		if !visitor(&tree.Nodes[i]) {
			return
		}
	}
}
