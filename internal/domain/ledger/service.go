package ledger

import (
	"bytes"

	"github.com/rs/zerolog"

	"github.com/vetledger/vetledger/internal/platform/apperr"
	"github.com/vetledger/vetledger/internal/platform/db"
)

// Service is the append-only commit log. Reads take the store lock on their
// own; CommitTx is designed to run inside a caller-owned transaction so a
// draft close and its leaf land atomically.
type Service struct {
	store *db.Store
	repo  Repository
	log   zerolog.Logger
}

func NewService(store *db.Store, repo Repository, log zerolog.Logger) *Service {
	return &Service{store: store, repo: repo, log: log}
}

// CommitTx appends one reviewed encounter inside the caller's transaction.
// Re-submitting a byte-identical encounter is a no-op returning the
// original position. The stored root row always matches the leaf set when
// the transaction commits.
func (s *Service) CommitTx(q db.Queryer, enc *ReviewedEncounter) (*CommitResult, error) {
	if err := validate(enc); err != nil {
		return nil, err
	}

	payload := Encode(enc)
	leafHash := LeafHash(payload)

	if seq, ok, err := s.repo.SeqByHash(q, leafHash); err != nil {
		return nil, err
	} else if ok {
		root, _, err := s.repo.Root(q)
		if err != nil {
			return nil, err
		}
		s.log.Debug().Uint64("seq_no", seq).Msg("duplicate encounter commit ignored")
		return &CommitResult{SeqNo: seq, LeafHash: leafHash, NewRoot: root}, nil
	}

	hashes, err := s.repo.LeafHashes(q)
	if err != nil {
		return nil, err
	}
	seqNo := uint64(len(hashes))

	if err := s.repo.AppendLeaf(q, &Leaf{
		SeqNo:   seqNo,
		Hash:    leafHash,
		Payload: payload,
		DraftID: enc.DraftID,
	}); err != nil {
		return nil, err
	}

	hashes = append(hashes, leafHash)
	newRoot, err := PersistTree(q, s.repo, hashes)
	if err != nil {
		return nil, err
	}
	if err := s.repo.SaveRoot(q, newRoot, seqNo+1); err != nil {
		return nil, err
	}

	s.log.Info().Uint64("seq_no", seqNo).Str("draft_id", enc.DraftID).Msg("encounter committed to ledger")
	return &CommitResult{SeqNo: seqNo, LeafHash: leafHash, NewRoot: newRoot}, nil
}

// Root returns the current root hash and leaf count.
func (s *Service) Root() ([32]byte, uint64, error) {
	var (
		root [32]byte
		n    uint64
	)
	err := s.store.Do(func(q db.Queryer) error {
		var err error
		root, n, err = s.repo.Root(q)
		return err
	})
	return root, n, err
}

// ProofFor builds the inclusion proof for the leaf at seqNo by walking the
// stored tree nodes from the root, one read per level.
func (s *Service) ProofFor(seqNo uint64) (*Proof, [32]byte, error) {
	var (
		proof Proof
		root  [32]byte
	)
	err := s.store.Do(func(q db.Queryer) error {
		storedRoot, n, err := s.repo.Root(q)
		if err != nil {
			return err
		}
		if seqNo >= n {
			return apperr.New(apperr.NotFound, "leaf %d not in log of %d", seqNo, n)
		}
		path, err := auditPath(q, s.repo, storedRoot, seqNo, n)
		if err != nil {
			return err
		}
		proof = Proof{
			SeqNo:    seqNo,
			TreeSize: n,
			Path:     path,
		}
		root = storedRoot
		return nil
	})
	if err != nil {
		return nil, [32]byte{}, err
	}
	return &proof, root, nil
}

// LeafEncounter decodes the stored payload at seqNo.
func (s *Service) LeafEncounter(seqNo uint64) (*ReviewedEncounter, [32]byte, error) {
	var leaf *Leaf
	err := s.store.Do(func(q db.Queryer) error {
		var err error
		leaf, err = s.repo.LeafBySeq(q, seqNo)
		return err
	})
	if err != nil {
		return nil, [32]byte{}, err
	}
	enc, err := Decode(leaf.Payload)
	if err != nil {
		return nil, [32]byte{}, err
	}
	if got := LeafHash(leaf.Payload); !bytes.Equal(got[:], leaf.Hash[:]) {
		return nil, [32]byte{}, apperr.New(apperr.Consistency, "leaf %d payload does not match its hash", seqNo)
	}
	return enc, leaf.Hash, nil
}

// AllLeaves returns every leaf in order, for exports and sync.
func (s *Service) AllLeaves() ([]*Leaf, error) {
	var leaves []*Leaf
	err := s.store.Do(func(q db.Queryer) error {
		var err error
		leaves, err = s.repo.Leaves(q)
		return err
	})
	return leaves, err
}

// Verify recomputes the root from all stored leaves and checks it against
// the stored root row.
func (s *Service) Verify() error {
	return s.store.Do(func(q db.Queryer) error {
		leaves, err := s.repo.Leaves(q)
		if err != nil {
			return err
		}
		hashes := make([][32]byte, len(leaves))
		for i, leaf := range leaves {
			if got := LeafHash(leaf.Payload); !bytes.Equal(got[:], leaf.Hash[:]) {
				return apperr.New(apperr.HashMismatch, "leaf %d payload does not match its hash", leaf.SeqNo)
			}
			hashes[i] = leaf.Hash
		}
		root, n, err := s.repo.Root(q)
		if err != nil {
			return err
		}
		if n != uint64(len(hashes)) {
			return apperr.New(apperr.Consistency, "root row claims %d leaves, log has %d", n, len(hashes))
		}
		computed := RootFromLeaves(hashes)
		if !bytes.Equal(computed[:], root[:]) {
			return apperr.New(apperr.Consistency, "stored root does not match leaf set")
		}
		return nil
	})
}

func validate(enc *ReviewedEncounter) error {
	if enc == nil {
		return apperr.New(apperr.InvalidInput, "nil encounter")
	}
	if enc.DraftID == "" {
		return apperr.New(apperr.InvalidInput, "encounter draft_id is required")
	}
	if enc.Patient.ID == "" {
		return apperr.New(apperr.InvalidInput, "encounter patient identity is required")
	}
	if enc.ReviewerID == "" {
		return apperr.New(apperr.InvalidInput, "encounter reviewer_id is required")
	}
	if len(enc.Items) == 0 {
		return apperr.New(apperr.InvalidInput, "encounter has no line items")
	}
	if enc.ReviewedAt.IsZero() {
		return apperr.New(apperr.InvalidInput, "encounter reviewed_at is required")
	}
	return nil
}
