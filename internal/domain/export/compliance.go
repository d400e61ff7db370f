package export

import (
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/vetledger/vetledger/internal/domain/ledger"
	"github.com/vetledger/vetledger/internal/platform/apperr"
)

// FormatVersion identifies the compliance document layout.
const FormatVersion = "1.0"

// ComplianceDoc is the auditor-facing dump: the tree head plus every
// encounter with its inclusion proof. A verifier needs nothing but this
// document to check that no encounter was altered or removed.
type ComplianceDoc struct {
	Metadata   ComplianceMetadata    `json:"metadata"`
	Encounters []ComplianceEncounter `json:"encounters"`
}

type ComplianceMetadata struct {
	FormatVersion string `json:"format_version"`
	ExportedAt    string `json:"exported_at"`
	HashAlgorithm string `json:"hash_algorithm"`
	RootHash      string `json:"root_hash"`
	NLeaves       uint64 `json:"n_leaves"`
	SystemID      string `json:"system_id,omitempty"`
}

type ComplianceEncounter struct {
	SeqNo        uint64          `json:"seq_no"`
	LeafHash     string          `json:"leaf_hash"`
	DraftID      string          `json:"draft_id"`
	PatientID    string          `json:"patient_id"`
	PatientScope string          `json:"patient_id_scope"`
	ReviewerID   string          `json:"reviewer_id"`
	ReviewedAt   string          `json:"reviewed_at"`
	LineItems    []BillingLine   `json:"line_items"`
	Proof        ComplianceProof `json:"proof"`
}

type ComplianceProof struct {
	TreeSize uint64   `json:"tree_size"`
	Path     []string `json:"path"`
}

// ComplianceJSON builds and serializes the full document. systemID is
// optional and identifies the exporting device.
func (s *Service) ComplianceJSON(systemID string) ([]byte, error) {
	doc, err := s.complianceDoc(systemID)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(doc, "", "  ")
}

func (s *Service) complianceDoc(systemID string) (*ComplianceDoc, error) {
	root, n, err := s.ledger.Root()
	if err != nil {
		return nil, err
	}
	doc := &ComplianceDoc{
		Metadata: ComplianceMetadata{
			FormatVersion: FormatVersion,
			ExportedAt:    time.Now().UTC().Format(time.RFC3339),
			HashAlgorithm: "SHA-256",
			RootHash:      hex.EncodeToString(root[:]),
			NLeaves:       n,
			SystemID:      systemID,
		},
		Encounters: make([]ComplianceEncounter, 0, n),
	}

	for seq := uint64(0); seq < n; seq++ {
		enc, leafHash, err := s.ledger.LeafEncounter(seq)
		if err != nil {
			return nil, err
		}
		proof, _, err := s.ledger.ProofFor(seq)
		if err != nil {
			return nil, err
		}
		ce := ComplianceEncounter{
			SeqNo:        seq,
			LeafHash:     hex.EncodeToString(leafHash[:]),
			DraftID:      enc.DraftID,
			PatientID:    enc.Patient.ID,
			PatientScope: "local",
			ReviewerID:   enc.ReviewerID,
			ReviewedAt:   enc.ReviewedAt.UTC().Format(time.RFC3339),
			Proof:        ComplianceProof{TreeSize: proof.TreeSize},
		}
		if enc.Patient.Server {
			ce.PatientScope = "server"
		}
		for _, it := range enc.Items {
			ce.LineItems = append(ce.LineItems, BillingLine{
				SKU:      it.SKU,
				Quantity: it.Quantity,
				Unit:     it.Unit,
				Route:    it.Route,
				Species:  it.Species,
			})
		}
		for _, p := range proof.Path {
			ce.Proof.Path = append(ce.Proof.Path, hex.EncodeToString(p[:]))
		}
		doc.Encounters = append(doc.Encounters, ce)
	}
	return doc, nil
}

// VerifyCompliance checks a previously exported document: every proof must
// verify against the document's own root. This is what an auditor runs on
// their side; it touches no database.
func VerifyCompliance(data []byte) error {
	var doc ComplianceDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return apperr.Wrap(err, apperr.InvalidInput, "malformed compliance document")
	}
	root, err := decodeHash32(doc.Metadata.RootHash)
	if err != nil {
		return err
	}
	if uint64(len(doc.Encounters)) != doc.Metadata.NLeaves {
		return apperr.New(apperr.Consistency, "document claims %d leaves, lists %d",
			doc.Metadata.NLeaves, len(doc.Encounters))
	}
	for _, enc := range doc.Encounters {
		leaf, err := decodeHash32(enc.LeafHash)
		if err != nil {
			return err
		}
		path := make([][32]byte, len(enc.Proof.Path))
		for i, p := range enc.Proof.Path {
			if path[i], err = decodeHash32(p); err != nil {
				return err
			}
		}
		proof := &ledger.Proof{SeqNo: enc.SeqNo, TreeSize: enc.Proof.TreeSize, Path: path}
		if !ledger.VerifyProof(leaf, proof, root) {
			return apperr.New(apperr.HashMismatch, "encounter %d fails verification", enc.SeqNo)
		}
	}
	return nil
}

func decodeHash32(s string) ([32]byte, error) {
	var h [32]byte
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != 32 {
		return h, apperr.New(apperr.InvalidInput, "malformed hash %q", s)
	}
	copy(h[:], b)
	return h, nil
}
