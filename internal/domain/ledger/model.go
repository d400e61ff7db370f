package ledger

import "time"

// PatientIdentity names the patient in the audit record. Server identity is
// preferred once known; the tag records which id was used so the encoding
// stays unambiguous.
type PatientIdentity struct {
	Server bool   `json:"server"`
	ID     string `json:"id"`
}

// LineItem is one billable line of a committed encounter.
type LineItem struct {
	SKU      string  `json:"sku"`
	Quantity float64 `json:"quantity"`
	Unit     string  `json:"unit"`
	Route    string  `json:"route"`
	Species  string  `json:"species"`
}

// ReviewedEncounter is the canonical record hashed into the log. Field
// order and encoding are part of the audit contract; see Encode.
type ReviewedEncounter struct {
	DraftID          string          `json:"draft_id"`
	Patient          PatientIdentity `json:"patient"`
	ReviewerID       string          `json:"reviewer_id"`
	ReviewedAt       time.Time       `json:"reviewed_at"`
	Items            []LineItem      `json:"items"`
	TranscriptDigest [32]byte        `json:"-"`
}

// CommitResult reports where an encounter landed in the log.
type CommitResult struct {
	SeqNo    uint64
	LeafHash [32]byte
	NewRoot  [32]byte
}

// Proof is an RFC-6962 inclusion proof: the audit path for leaf seq_no in a
// tree of tree_size leaves.
type Proof struct {
	SeqNo    uint64     `json:"seq_no"`
	TreeSize uint64     `json:"tree_size"`
	Path     [][32]byte `json:"path"`
}
