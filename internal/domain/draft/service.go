package draft

import (
	"crypto/sha256"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vetledger/vetledger/internal/domain/ledger"
	"github.com/vetledger/vetledger/internal/domain/patient"
	"github.com/vetledger/vetledger/internal/domain/resolver"
	"github.com/vetledger/vetledger/internal/platform/apperr"
	"github.com/vetledger/vetledger/internal/platform/db"
)

// Decision is a reviewer's verdict on one resolved item.
type Decision struct {
	Action string // approve | choose_alternative | reject
	SKU    string // required for choose_alternative
}

const (
	ActionApprove           = "approve"
	ActionChooseAlternative = "choose_alternative"
	ActionReject            = "reject"
)

// Service owns the encounter draft lifecycle from creation through commit.
type Service struct {
	store    *db.Store
	repo     Repository
	patients patient.Repository
	resolver *resolver.Service
	ledger   *ledger.Service
	log      zerolog.Logger
}

func NewService(
	store *db.Store,
	repo Repository,
	patients patient.Repository,
	res *resolver.Service,
	led *ledger.Service,
	log zerolog.Logger,
) *Service {
	return &Service{store: store, repo: repo, patients: patients, resolver: res, ledger: led, log: log}
}

// Create opens a draft for the given patient. The patient must exist.
func (s *Service) Create(patientLocalID, transcript string) (*Draft, error) {
	if patientLocalID == "" {
		return nil, apperr.New(apperr.InvalidInput, "patient_local_id is required")
	}
	d := &Draft{
		ID:             uuid.NewString(),
		PatientLocalID: patientLocalID,
		Transcript:     transcript,
		Status:         StatusOpen,
	}
	err := s.store.Do(func(q db.Queryer) error {
		if _, err := s.patients.GetByLocalID(q, patientLocalID); err != nil {
			return err
		}
		return s.repo.Create(q, d)
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Service) Get(id string) (*Draft, error) {
	var d *Draft
	err := s.store.Do(func(q db.Queryer) error {
		var err error
		d, err = s.repo.Get(q, id)
		return err
	})
	return d, err
}

// AddMention resolves a mention against the patient's context and appends
// the ResolvedItem to the draft. Returns the item's index. Resolution runs
// between two store sections; the resolver needs the store lock itself for
// catalog retrieval.
func (s *Service) AddMention(draftID string, m resolver.DrugMention) (int, error) {
	var p *patient.Patient
	err := s.store.Do(func(q db.Queryer) error {
		d, err := s.repo.Get(q, draftID)
		if err != nil {
			return err
		}
		if d.Status != StatusOpen {
			return apperr.New(apperr.InvalidState, "draft %s is %s", draftID, d.Status)
		}
		p, err = s.patients.GetByLocalID(q, d.PatientLocalID)
		return err
	})
	if err != nil {
		return 0, err
	}

	species := p.CanonicalSpecies()
	norm, cands, err := s.resolver.Resolve(m, &species, p.WeightKg)
	if err != nil {
		return 0, err
	}

	item := ResolvedItem{
		MentionText: m.Text,
		Normalized:  norm,
		Candidates:  cands,
		Status:      ItemPending,
	}
	if len(cands) > 0 {
		item.TopSKU = cands[0].Item.SKU
	}

	var idx int
	err = s.store.Do(func(q db.Queryer) error {
		d, err := s.repo.Get(q, draftID)
		if err != nil {
			return err
		}
		if d.Status != StatusOpen {
			return apperr.New(apperr.InvalidState, "draft %s is %s", draftID, d.Status)
		}
		d.Items = append(d.Items, item)
		idx = len(d.Items) - 1
		return s.repo.Save(q, d)
	})
	return idx, err
}

// SetDecision records a reviewer verdict on one item. Closed drafts are
// immutable.
func (s *Service) SetDecision(draftID string, itemIndex int, dec Decision) error {
	return s.store.Do(func(q db.Queryer) error {
		d, err := s.repo.Get(q, draftID)
		if err != nil {
			return err
		}
		if d.Status != StatusOpen {
			return apperr.New(apperr.InvalidState, "draft %s is %s", draftID, d.Status)
		}
		if itemIndex < 0 || itemIndex >= len(d.Items) {
			return apperr.New(apperr.InvalidInput, "item index %d out of range", itemIndex)
		}
		item := &d.Items[itemIndex]

		switch dec.Action {
		case ActionApprove:
			if item.TopSKU == "" {
				return apperr.New(apperr.InvalidState, "item %d has no candidate to approve", itemIndex)
			}
			item.Status = ItemApproved
			item.ChosenSKU = nil
		case ActionChooseAlternative:
			if dec.SKU == "" {
				return apperr.New(apperr.InvalidInput, "choose_alternative needs a sku")
			}
			if !candidateSKU(item, dec.SKU) {
				return apperr.New(apperr.InvalidInput, "sku %s is not a candidate of item %d", dec.SKU, itemIndex)
			}
			sku := dec.SKU
			item.Status = ItemAlternativeSelected
			item.ChosenSKU = &sku
		case ActionReject:
			item.Status = ItemRejected
			item.ChosenSKU = nil
		default:
			return apperr.New(apperr.InvalidInput, "unknown decision %q", dec.Action)
		}
		return s.repo.Save(q, d)
	})
}

// ListPending returns open drafts that still have pending items, riskiest
// first (ascending by lowest candidate confidence).
func (s *Service) ListPending() ([]*Draft, error) {
	var out []*Draft
	err := s.store.Do(func(q db.Queryer) error {
		open, err := s.repo.ListByStatus(q, StatusOpen)
		if err != nil {
			return err
		}
		for _, d := range open {
			if d.PendingCount() > 0 {
				out = append(out, d)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LowestConfidence() < out[j].LowestConfidence()
	})
	return out, nil
}

// Commit validates the draft, builds the ReviewedEncounter, appends it to
// the ledger and closes the draft, all in one transaction.
func (s *Service) Commit(draftID, reviewerID string) (*ledger.CommitResult, error) {
	if reviewerID == "" {
		return nil, apperr.New(apperr.InvalidInput, "reviewer_id is required")
	}
	var res *ledger.CommitResult
	err := s.store.Tx(func(q db.Queryer) error {
		d, err := s.repo.Get(q, draftID)
		if err != nil {
			return err
		}
		if d.Status != StatusOpen {
			return apperr.New(apperr.InvalidState, "draft %s is %s", draftID, d.Status)
		}
		if !d.AllReviewed() {
			return apperr.New(apperr.InvalidState, "draft %s has %d pending items", draftID, d.PendingCount())
		}
		if d.BillableCount() == 0 {
			return apperr.New(apperr.InvalidState, "draft %s has no billable items", draftID)
		}
		p, err := s.patients.GetByLocalID(q, d.PatientLocalID)
		if err != nil {
			return err
		}

		enc := buildEncounter(d, p, reviewerID, time.Now().UTC())
		res, err = s.ledger.CommitTx(q, enc)
		if err != nil {
			return err
		}

		d.Status = StatusCommitted
		return s.repo.Save(q, d)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("draft_id", draftID).Uint64("seq_no", res.SeqNo).Msg("draft committed")
	return res, nil
}

// buildEncounter assembles the canonical record. Rejected items are kept on
// the draft but never reach the encounter.
func buildEncounter(d *Draft, p *patient.Patient, reviewerID string, now time.Time) *ledger.ReviewedEncounter {
	identity := ledger.PatientIdentity{ID: d.PatientLocalID}
	if p.ServerID != nil {
		identity = ledger.PatientIdentity{Server: true, ID: *p.ServerID}
	}

	enc := &ledger.ReviewedEncounter{
		DraftID:          d.ID,
		Patient:          identity,
		ReviewerID:       reviewerID,
		ReviewedAt:       now.Truncate(time.Second),
		TranscriptDigest: sha256.Sum256([]byte(d.Transcript)),
	}
	for i := range d.Items {
		item := &d.Items[i]
		sku := item.FinalSKU()
		if sku == "" {
			continue
		}
		line := ledger.LineItem{SKU: sku, Quantity: 1, Unit: "unit"}
		if item.Normalized.Dose != nil {
			line.Quantity = *item.Normalized.Dose
		}
		if item.Normalized.Unit != nil {
			line.Unit = *item.Normalized.Unit
		}
		if item.Normalized.Route != nil {
			line.Route = *item.Normalized.Route
		}
		if item.Normalized.Species != nil {
			line.Species = *item.Normalized.Species
		}
		enc.Items = append(enc.Items, line)
	}
	return enc
}

func candidateSKU(item *ResolvedItem, sku string) bool {
	for i := range item.Candidates {
		if item.Candidates[i].Item.SKU == sku {
			return true
		}
	}
	return false
}
