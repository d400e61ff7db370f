package ledger

import "github.com/vetledger/vetledger/internal/platform/db"

// Leaf is one persisted log entry.
type Leaf struct {
	SeqNo   uint64
	Hash    [32]byte
	Payload []byte
	DraftID string
}

// Node kinds stored in merkle_nodes.
const (
	NodeLeaf     = "leaf"
	NodeInternal = "internal"
)

// Node is one content-addressed tree node. Leaf nodes carry their sequence
// number; internal nodes carry their children. Height is 0 for leaves.
type Node struct {
	Hash   [32]byte
	Kind   string
	SeqNo  *uint64
	Left   *[32]byte
	Right  *[32]byte
	Height int
}

// Repository is the persistence boundary for the append-only log. The log
// stores leaves, every tree node ever produced, and the current root, so
// inclusion proofs are a hash walk instead of a full recomputation.
type Repository interface {
	AppendLeaf(q db.Queryer, leaf *Leaf) error
	LeafBySeq(q db.Queryer, seqNo uint64) (*Leaf, error)
	SeqByHash(q db.Queryer, hash [32]byte) (uint64, bool, error)
	LeafHashes(q db.Queryer) ([][32]byte, error)
	Leaves(q db.Queryer) ([]*Leaf, error)
	Count(q db.Queryer) (uint64, error)
	UpsertNode(q db.Queryer, node *Node) error
	NodeByHash(q db.Queryer, hash [32]byte) (*Node, error)
	SaveRoot(q db.Queryer, root [32]byte, n uint64) error
	Root(q db.Queryer) ([32]byte, uint64, error)
}
