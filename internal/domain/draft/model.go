package draft

import (
	"time"

	"github.com/vetledger/vetledger/internal/domain/resolver"
)

// Draft statuses.
const (
	StatusOpen      = "open"
	StatusCommitted = "committed"
)

// ResolvedItem review statuses.
const (
	ItemPending             = "pending"
	ItemApproved            = "approved"
	ItemAlternativeSelected = "alternative_selected"
	ItemRejected            = "rejected"
)

// ResolvedItem is one drug mention after resolution, awaiting (or past)
// clinician review.
type ResolvedItem struct {
	MentionText string                     `json:"mention_text"`
	Normalized  resolver.NormalizedMention `json:"normalized"`
	TopSKU      string                     `json:"top_sku,omitempty"`
	Candidates  []resolver.ScoredCandidate `json:"candidates,omitempty"`
	Status      string                     `json:"status"`
	ChosenSKU   *string                    `json:"chosen_sku,omitempty"`
}

// FinalSKU returns the SKU that will be billed, empty for pending and
// rejected items.
func (it *ResolvedItem) FinalSKU() string {
	switch it.Status {
	case ItemApproved:
		if it.ChosenSKU != nil {
			return *it.ChosenSKU
		}
		return it.TopSKU
	case ItemAlternativeSelected:
		if it.ChosenSKU != nil {
			return *it.ChosenSKU
		}
	}
	return ""
}

// Draft is one in-progress encounter. Committed drafts are kept for audit
// and never mutated again.
type Draft struct {
	ID             string         `json:"id"`
	PatientLocalID string         `json:"patient_local_id"`
	Transcript     string         `json:"transcript"`
	Items          []ResolvedItem `json:"items"`
	Status         string         `json:"status"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// PendingCount reports how many items still await review.
func (d *Draft) PendingCount() int {
	n := 0
	for i := range d.Items {
		if d.Items[i].Status == ItemPending {
			n++
		}
	}
	return n
}

// AllReviewed reports whether every item has a decision.
func (d *Draft) AllReviewed() bool { return d.PendingCount() == 0 }

// BillableCount reports how many items survive into the committed
// encounter.
func (d *Draft) BillableCount() int {
	n := 0
	for i := range d.Items {
		if d.Items[i].FinalSKU() != "" {
			n++
		}
	}
	return n
}

// LowestConfidence returns the weakest top-candidate confidence across
// items, 1.0 for a draft with no items. Pending lists are surfaced worst
// first.
func (d *Draft) LowestConfidence() float64 {
	lowest := 1.0
	for i := range d.Items {
		cands := d.Items[i].Candidates
		if len(cands) == 0 {
			lowest = 0
			continue
		}
		if c := cands[0].Confidence; c < lowest {
			lowest = c
		}
	}
	return lowest
}
