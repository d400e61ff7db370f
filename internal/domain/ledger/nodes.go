package ledger

import (
	"github.com/vetledger/vetledger/internal/platform/apperr"
	"github.com/vetledger/vetledger/internal/platform/db"
)

// PersistTree stores every node of the tree over the ordered leaf hashes
// that is not already in merkle_nodes and returns the root hash. Nodes are
// content-addressed, so subtrees unchanged since the previous commit are
// recognized by their root row and skipped; an append touches only the
// right spine.
func PersistTree(q db.Queryer, repo Repository, leaves [][32]byte) ([32]byte, error) {
	if len(leaves) == 0 {
		return EmptyRoot(), nil
	}
	root, _, err := persistSubtree(q, repo, leaves, 0)
	return root, err
}

func persistSubtree(q db.Queryer, repo Repository, leaves [][32]byte, base uint64) ([32]byte, int, error) {
	if len(leaves) == 1 {
		seq := base
		node := &Node{Hash: leaves[0], Kind: NodeLeaf, SeqNo: &seq}
		if err := repo.UpsertNode(q, node); err != nil {
			return [32]byte{}, 0, err
		}
		return leaves[0], 0, nil
	}

	// A stored node implies its whole subtree is stored.
	h := RootFromLeaves(leaves)
	if existing, err := repo.NodeByHash(q, h); err == nil {
		return h, existing.Height, nil
	} else if !apperr.Is(err, apperr.NotFound) {
		return [32]byte{}, 0, err
	}

	k := largestPowerOfTwoBelow(uint64(len(leaves)))
	left, lh, err := persistSubtree(q, repo, leaves[:k], base)
	if err != nil {
		return [32]byte{}, 0, err
	}
	right, rh, err := persistSubtree(q, repo, leaves[k:], base+k)
	if err != nil {
		return [32]byte{}, 0, err
	}

	height := lh
	if rh > height {
		height = rh
	}
	height++
	node := &Node{Hash: h, Kind: NodeInternal, Left: &left, Right: &right, Height: height}
	if err := repo.UpsertNode(q, node); err != nil {
		return [32]byte{}, 0, err
	}
	return h, height, nil
}

// auditPath walks the stored tree from root toward leaf index, collecting
// sibling hashes bottom-up. Cost is one node read per tree level.
func auditPath(q db.Queryer, repo Repository, node [32]byte, index, n uint64) ([][32]byte, error) {
	if n == 1 {
		return nil, nil
	}
	nd, err := repo.NodeByHash(q, node)
	if err != nil {
		if apperr.Is(err, apperr.NotFound) {
			return nil, apperr.New(apperr.Consistency, "tree node %x missing from store", node[:4])
		}
		return nil, err
	}
	if nd.Kind != NodeInternal || nd.Left == nil || nd.Right == nil {
		return nil, apperr.New(apperr.Consistency, "tree node %x has no children at size %d", node[:4], n)
	}

	k := largestPowerOfTwoBelow(n)
	if index < k {
		path, err := auditPath(q, repo, *nd.Left, index, k)
		if err != nil {
			return nil, err
		}
		return append(path, *nd.Right), nil
	}
	path, err := auditPath(q, repo, *nd.Right, index-k, n-k)
	if err != nil {
		return nil, err
	}
	return append(path, *nd.Left), nil
}
