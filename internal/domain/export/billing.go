// Package export renders the committed ledger into billing and compliance
// documents. Exports are read-only views; they never mutate the log.
package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/vetledger/vetledger/internal/domain/ledger"
	"github.com/vetledger/vetledger/internal/platform/apperr"
)

type Service struct {
	ledger *ledger.Service
	log    zerolog.Logger
}

func NewService(led *ledger.Service, log zerolog.Logger) *Service {
	return &Service{ledger: led, log: log}
}

// BillingRecord is one committed encounter flattened for the billing
// system.
type BillingRecord struct {
	DraftID   string        `json:"draft_id"`
	PatientID string        `json:"patient_id"`
	LineItems []BillingLine `json:"line_items"`
}

type BillingLine struct {
	SKU      string  `json:"sku"`
	Quantity float64 `json:"quantity"`
	Unit     string  `json:"unit"`
	Route    string  `json:"route,omitempty"`
	Species  string  `json:"species,omitempty"`
}

// BillingJSON renders every committed encounter as a JSON array in log
// order. The same log always produces the same bytes.
func (s *Service) BillingJSON() ([]byte, error) {
	records, err := s.billingRecords()
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(records, "", "  ")
}

var billingHeader = []string{"draft_id", "patient_id", "sku", "quantity", "unit", "route", "species"}

// BillingCSV renders the same data row-per-line-item, with a header row.
func (s *Service) BillingCSV() ([]byte, error) {
	records, err := s.billingRecords()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(billingHeader); err != nil {
		return nil, apperr.Wrap(err, apperr.IO, "write csv header")
	}
	for _, rec := range records {
		for _, line := range rec.LineItems {
			row := []string{
				rec.DraftID,
				rec.PatientID,
				line.SKU,
				strconv.FormatFloat(line.Quantity, 'f', -1, 64),
				line.Unit,
				line.Route,
				line.Species,
			}
			if err := w.Write(row); err != nil {
				return nil, apperr.Wrap(err, apperr.IO, "write csv row")
			}
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, apperr.Wrap(err, apperr.IO, "flush csv")
	}
	return buf.Bytes(), nil
}

func (s *Service) billingRecords() ([]BillingRecord, error) {
	leaves, err := s.ledger.AllLeaves()
	if err != nil {
		return nil, err
	}
	records := make([]BillingRecord, 0, len(leaves))
	for _, leaf := range leaves {
		enc, err := ledger.Decode(leaf.Payload)
		if err != nil {
			return nil, apperr.Wrap(err, apperr.Consistency, "leaf %d", leaf.SeqNo)
		}
		rec := BillingRecord{
			DraftID:   enc.DraftID,
			PatientID: enc.Patient.ID,
			LineItems: make([]BillingLine, 0, len(enc.Items)),
		}
		for _, it := range enc.Items {
			rec.LineItems = append(rec.LineItems, BillingLine{
				SKU:      it.SKU,
				Quantity: it.Quantity,
				Unit:     it.Unit,
				Route:    it.Route,
				Species:  it.Species,
			})
		}
		records = append(records, rec)
	}
	return records, nil
}
