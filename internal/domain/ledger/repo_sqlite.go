package ledger

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vetledger/vetledger/internal/platform/apperr"
	"github.com/vetledger/vetledger/internal/platform/db"
)

type repoSQLite struct{}

func NewRepoSQLite() Repository {
	return &repoSQLite{}
}

func (r *repoSQLite) AppendLeaf(q db.Queryer, leaf *Leaf) error {
	_, err := q.Exec(`
		INSERT INTO ledger_leaves (seq_no, leaf_hash, payload, draft_id, appended_at)
		VALUES (?,?,?,?,?)`,
		leaf.SeqNo, leaf.Hash[:], leaf.Payload, leaf.DraftID,
		time.Now().UTC().Format(time.RFC3339))
	return db.Classify(err, fmt.Sprintf("ledger leaf %d", leaf.SeqNo))
}

func (r *repoSQLite) LeafBySeq(q db.Queryer, seqNo uint64) (*Leaf, error) {
	var (
		leaf Leaf
		hash []byte
	)
	err := q.QueryRow(
		`SELECT seq_no, leaf_hash, payload, draft_id FROM ledger_leaves WHERE seq_no = ?`, seqNo,
	).Scan(&leaf.SeqNo, &hash, &leaf.Payload, &leaf.DraftID)
	if err != nil {
		return nil, db.Classify(err, fmt.Sprintf("ledger leaf %d", seqNo))
	}
	if len(hash) != 32 {
		return nil, apperr.New(apperr.Consistency, "leaf %d hash is %d bytes", seqNo, len(hash))
	}
	copy(leaf.Hash[:], hash)
	return &leaf, nil
}

func (r *repoSQLite) SeqByHash(q db.Queryer, hash [32]byte) (uint64, bool, error) {
	var seq uint64
	err := q.QueryRow(`SELECT seq_no FROM ledger_leaves WHERE leaf_hash = ?`, hash[:]).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, db.Classify(err, "ledger leaf by hash")
	}
	return seq, true, nil
}

func (r *repoSQLite) LeafHashes(q db.Queryer) ([][32]byte, error) {
	rows, err := q.Query(`SELECT seq_no, leaf_hash FROM ledger_leaves ORDER BY seq_no`)
	if err != nil {
		return nil, db.Classify(err, "ledger leaf hashes")
	}
	defer rows.Close()

	var out [][32]byte
	for rows.Next() {
		var (
			seq  uint64
			hash []byte
		)
		if err := rows.Scan(&seq, &hash); err != nil {
			return nil, db.Classify(err, "ledger leaf hash row")
		}
		// Sequence numbers are dense from zero; a gap means the log was
		// tampered with or partially deleted.
		if seq != uint64(len(out)) {
			return nil, apperr.New(apperr.Consistency, "leaf gap: expected seq %d, found %d", len(out), seq)
		}
		if len(hash) != 32 {
			return nil, apperr.New(apperr.Consistency, "leaf %d hash is %d bytes", seq, len(hash))
		}
		var h [32]byte
		copy(h[:], hash)
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, db.Classify(err, "ledger leaf hashes")
	}
	return out, nil
}

func (r *repoSQLite) Leaves(q db.Queryer) ([]*Leaf, error) {
	rows, err := q.Query(`SELECT seq_no, leaf_hash, payload, draft_id FROM ledger_leaves ORDER BY seq_no`)
	if err != nil {
		return nil, db.Classify(err, "ledger leaves")
	}
	defer rows.Close()

	var out []*Leaf
	for rows.Next() {
		var (
			leaf Leaf
			hash []byte
		)
		if err := rows.Scan(&leaf.SeqNo, &hash, &leaf.Payload, &leaf.DraftID); err != nil {
			return nil, db.Classify(err, "ledger leaf row")
		}
		if len(hash) != 32 {
			return nil, apperr.New(apperr.Consistency, "leaf %d hash is %d bytes", leaf.SeqNo, len(hash))
		}
		copy(leaf.Hash[:], hash)
		out = append(out, &leaf)
	}
	if err := rows.Err(); err != nil {
		return nil, db.Classify(err, "ledger leaves")
	}
	return out, nil
}

func (r *repoSQLite) Count(q db.Queryer) (uint64, error) {
	var n uint64
	if err := q.QueryRow(`SELECT count(*) FROM ledger_leaves`).Scan(&n); err != nil {
		return 0, db.Classify(err, "ledger count")
	}
	return n, nil
}

func (r *repoSQLite) UpsertNode(q db.Queryer, node *Node) error {
	var seq, left, right interface{}
	if node.SeqNo != nil {
		seq = *node.SeqNo
	}
	if node.Left != nil {
		left = node.Left[:]
	}
	if node.Right != nil {
		right = node.Right[:]
	}
	// Nodes are content-addressed; a hash collision is a re-insert of the
	// same node, never a conflict to resolve.
	_, err := q.Exec(`
		INSERT INTO merkle_nodes (hash, kind, seq_no, left_hash, right_hash, height)
		VALUES (?,?,?,?,?,?)
		ON CONFLICT(hash) DO NOTHING`,
		node.Hash[:], node.Kind, seq, left, right, node.Height)
	return db.Classify(err, "merkle node")
}

func (r *repoSQLite) NodeByHash(q db.Queryer, hash [32]byte) (*Node, error) {
	var (
		seq         sql.NullInt64
		left, right []byte
	)
	node := &Node{Hash: hash}
	err := q.QueryRow(
		`SELECT kind, seq_no, left_hash, right_hash, height FROM merkle_nodes WHERE hash = ?`, hash[:],
	).Scan(&node.Kind, &seq, &left, &right, &node.Height)
	if err != nil {
		return nil, db.Classify(err, "merkle node")
	}
	if seq.Valid {
		s := uint64(seq.Int64)
		node.SeqNo = &s
	}
	if node.Left, err = childHash(left); err != nil {
		return nil, err
	}
	if node.Right, err = childHash(right); err != nil {
		return nil, err
	}
	return node, nil
}

func childHash(raw []byte) (*[32]byte, error) {
	if raw == nil {
		return nil, nil
	}
	if len(raw) != 32 {
		return nil, apperr.New(apperr.Consistency, "tree node child hash is %d bytes", len(raw))
	}
	var h [32]byte
	copy(h[:], raw)
	return &h, nil
}

func (r *repoSQLite) SaveRoot(q db.Queryer, root [32]byte, n uint64) error {
	_, err := q.Exec(`
		INSERT INTO ledger_root (id, root_hash, n_leaves, updated_at) VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			root_hash=excluded.root_hash, n_leaves=excluded.n_leaves,
			updated_at=excluded.updated_at`,
		root[:], n, time.Now().UTC().Format(time.RFC3339))
	return db.Classify(err, "ledger root")
}

func (r *repoSQLite) Root(q db.Queryer) ([32]byte, uint64, error) {
	var (
		hash []byte
		n    uint64
	)
	err := q.QueryRow(`SELECT root_hash, n_leaves FROM ledger_root WHERE id = 1`).Scan(&hash, &n)
	if errors.Is(err, sql.ErrNoRows) {
		return EmptyRoot(), 0, nil
	}
	if err != nil {
		return [32]byte{}, 0, db.Classify(err, "ledger root")
	}
	if len(hash) != 32 {
		return [32]byte{}, 0, apperr.New(apperr.Consistency, "stored root is %d bytes", len(hash))
	}
	var root [32]byte
	copy(root[:], hash)
	return root, n, nil
}
