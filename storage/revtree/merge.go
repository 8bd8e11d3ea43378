package revtree

import (
	"sort"
)

// Conflicts classifies the effect of a merge
type Conflicts int

const (
	// InternalNode means the incoming leaf was already known
	// and nothing new was added to the tree
	InternalNode Conflicts = iota
	// NewLeaf means the incoming path extended an existing leaf
	NewLeaf
	// NewBranch means the incoming path forked off an internal
	// node or started a new root
	NewBranch
)

func (conflicts Conflicts) String() string {
	switch conflicts {
	case InternalNode:
		return "internal_node"
	case NewLeaf:
		return "new_leaf"
	case NewBranch:
		return "new_branch"
	}

	return "unknown"
}

// MergeResult is the outcome of Merge
type MergeResult struct {
	Tree        Tree
	Conflicts   Conflicts
	StemmedRevs []string
}

// Merge merges path into tree and stems the result to
// revsLimit revisions per lineage. revsLimit <= 0 disables
// stemming. tree is not modified. Nodes shared by the
// tree and the path are never duplicated.
func Merge(tree Tree, path Path, revsLimit int) MergeResult {
	result := MergeResult{Tree: tree.Clone(), StemmedRevs: []string{}}

	if len(path.IDs) == 0 {
		result.Conflicts = InternalNode

		return result
	}

	result.Conflicts = result.Tree.graft(path)

	if revsLimit > 0 {
		result.Tree, result.StemmedRevs = result.Tree.Stem(revsLimit)
	}

	return result
}

// graft adds path to the tree in place
func (tree *Tree) graft(path Path) Conflicts {
	if len(tree.Nodes) == 0 {
		tree.appendChain(path, 0, -1)

		return NewLeaf
	}

	last := len(path.IDs) - 1
	overlap := -1
	j := last

	// find the deepest revision of the path that the tree already has
	for ; j >= 0; j-- {
		if overlap = tree.index(path.Pos+j, path.IDs[j]); overlap >= 0 {
			break
		}
	}

	if overlap < 0 {
		tree.appendChain(path, 0, -1)
		tree.normalize()

		return NewBranch
	}

	// the path may carry ancestors the tree has lost to stemming
	root, depth := overlap, j

	for tree.Nodes[root].Parent >= 0 && depth > 0 {
		root = tree.Nodes[root].Parent
		depth--
	}

	if tree.Nodes[root].Parent < 0 && depth > 0 && tree.Nodes[root].Hash == path.IDs[depth] {
		tree.prependAncestors(path, depth, root)
	}

	if j == last {
		node := &tree.Nodes[overlap]

		if node.Status == StatusMissing && path.Status == StatusAvailable {
			node.Status = StatusAvailable
			node.Deleted = path.Deleted
		}

		tree.normalize()

		return InternalNode
	}

	conflicts := NewBranch

	if !tree.hasChildren()[overlap] {
		conflicts = NewLeaf
	}

	tree.appendChain(path, j+1, overlap)
	tree.normalize()

	return conflicts
}

// appendChain appends path.IDs[from:] below parent
func (tree *Tree) appendChain(path Path, from int, parent int) {
	last := len(path.IDs) - 1

	for i := from; i <= last; i++ {
		node := Node{Pos: path.Pos + i, Hash: path.IDs[i], Status: StatusMissing, Parent: parent}

		if i == last {
			node.Status = path.Status
			node.Deleted = path.Deleted
		}

		tree.Nodes = append(tree.Nodes, node)
		parent = len(tree.Nodes) - 1
	}
}

// prependAncestors links path.IDs[:j] above the root at index
// root, reusing any of those revisions the tree still has.
func (tree *Tree) prependAncestors(path Path, j int, root int) {
	child := root

	for i := j - 1; i >= 0; i-- {
		if existing := tree.index(path.Pos+i, path.IDs[i]); existing >= 0 {
			tree.Nodes[child].Parent = existing

			return
		}

		tree.Nodes = append(tree.Nodes, Node{Pos: path.Pos + i, Hash: path.IDs[i], Status: StatusMissing, Parent: -1})
		tree.Nodes[child].Parent = len(tree.Nodes) - 1
		child = len(tree.Nodes) - 1
	}
}

// normalize orders the arena by generation so that parents
// precede children. Parent indices are remapped.
func (tree *Tree) normalize() {
	order := make([]int, len(tree.Nodes))

	for i := range order {
		order[i] = i
	}

	sort.SliceStable(order, func(a, b int) bool {
		return tree.Nodes[order[a]].Pos < tree.Nodes[order[b]].Pos
	})

	tree.reorder(order)
}

// reorder rebuilds the arena from the nodes at the given
// old indices. Parents that are not kept become -1.
func (tree *Tree) reorder(order []int) {
	newIndex := make([]int, len(tree.Nodes))

	for i := range newIndex {
		newIndex[i] = -1
	}

	for i, old := range order {
		newIndex[old] = i
	}

	nodes := make([]Node, len(order))

	for i, old := range order {
		nodes[i] = tree.Nodes[old]

		if nodes[i].Parent >= 0 {
			nodes[i].Parent = newIndex[nodes[i].Parent]
		}
	}

	tree.Nodes = nodes
}

// Stem keeps at most limit revisions on every root-to-leaf
// lineage, dropping the oldest ones. It returns the stemmed
// tree and the ids of the dropped revisions. tree is not
// modified.
func (tree Tree) Stem(limit int) (Tree, []string) {
	stemmed := tree.Clone()
	keep := make([]bool, len(stemmed.Nodes))
	hasChildren := stemmed.hasChildren()

	for i := range stemmed.Nodes {
		if hasChildren[i] {
			continue
		}

		for j, depth := i, 0; j >= 0 && depth < limit; j, depth = stemmed.Nodes[j].Parent, depth+1 {
			keep[j] = true
		}
	}

	order := []int{}
	dropped := []string{}

	for i, node := range stemmed.Nodes {
		if keep[i] {
			order = append(order, i)
		} else {
			dropped = append(dropped, node.Rev())
		}
	}

	if len(dropped) == 0 {
		return stemmed, dropped
	}

	stemmed.reorder(order)

	return stemmed, dropped
}
