package export

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/vetledger/vetledger/internal/domain/ledger"
	"github.com/vetledger/vetledger/internal/platform/apperr"
	"github.com/vetledger/vetledger/internal/platform/db"
)

func newFixture(t *testing.T, commits int) *Service {
	t.Helper()
	store, err := db.OpenInMemory()
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	led := ledger.NewService(store, ledger.NewRepoSQLite(), zerolog.Nop())
	for i := 0; i < commits; i++ {
		enc := &ledger.ReviewedEncounter{
			DraftID:    fmt.Sprintf("draft-%03d", i),
			Patient:    ledger.PatientIdentity{Server: i%2 == 0, ID: fmt.Sprintf("pat-%d", i)},
			ReviewerID: "dr-a",
			ReviewedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC).Add(time.Duration(i) * time.Minute),
			Items: []ledger.LineItem{
				{SKU: "CARP-100", Quantity: 100, Unit: "mg", Route: "PO", Species: "canine"},
				{SKU: "ACE-10", Quantity: 0.5, Unit: "mL", Route: "IM"},
			},
		}
		err := store.Tx(func(q db.Queryer) error {
			_, err := led.CommitTx(q, enc)
			return err
		})
		if err != nil {
			t.Fatalf("commit %d: %v", i, err)
		}
	}
	return NewService(led, zerolog.Nop())
}

func TestBillingJSONOrderedAndStable(t *testing.T) {
	svc := newFixture(t, 3)

	first, err := svc.BillingJSON()
	if err != nil {
		t.Fatalf("billing json: %v", err)
	}
	second, err := svc.BillingJSON()
	if err != nil {
		t.Fatalf("billing json again: %v", err)
	}
	if string(first) != string(second) {
		t.Fatal("billing export is not byte-stable")
	}

	var records []BillingRecord
	if err := json.Unmarshal(first, &records); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("records = %d, want 3", len(records))
	}
	for i, rec := range records {
		if rec.DraftID != fmt.Sprintf("draft-%03d", i) {
			t.Fatalf("record %d out of order: %s", i, rec.DraftID)
		}
		if len(rec.LineItems) != 2 {
			t.Fatalf("record %d line items = %d", i, len(rec.LineItems))
		}
	}
}

func TestBillingCSVLayout(t *testing.T) {
	svc := newFixture(t, 2)

	out, err := svc.BillingCSV()
	if err != nil {
		t.Fatalf("billing csv: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	// Header plus two line items per encounter.
	if len(lines) != 5 {
		t.Fatalf("csv lines = %d, want 5\n%s", len(lines), out)
	}
	if lines[0] != "draft_id,patient_id,sku,quantity,unit,route,species" {
		t.Fatalf("header = %q", lines[0])
	}
	if !strings.Contains(lines[1], "draft-000") || !strings.Contains(lines[1], "CARP-100") {
		t.Fatalf("first row = %q", lines[1])
	}
	if !strings.Contains(lines[2], "0.5") {
		t.Fatalf("fractional quantity mangled: %q", lines[2])
	}
}

func TestBillingEmptyLedger(t *testing.T) {
	svc := newFixture(t, 0)

	out, err := svc.BillingJSON()
	if err != nil {
		t.Fatalf("billing json: %v", err)
	}
	if string(out) != "[]" {
		t.Fatalf("empty export = %q, want []", out)
	}
}

func TestComplianceRoundTripVerifies(t *testing.T) {
	svc := newFixture(t, 5)

	out, err := svc.ComplianceJSON("device-7")
	if err != nil {
		t.Fatalf("compliance json: %v", err)
	}
	var doc ComplianceDoc
	if err := json.Unmarshal(out, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if doc.Metadata.FormatVersion != "1.0" || doc.Metadata.HashAlgorithm != "SHA-256" {
		t.Fatalf("metadata = %+v", doc.Metadata)
	}
	if doc.Metadata.NLeaves != 5 || doc.Metadata.SystemID != "device-7" {
		t.Fatalf("metadata = %+v", doc.Metadata)
	}
	if doc.Encounters[0].PatientScope != "server" || doc.Encounters[1].PatientScope != "local" {
		t.Fatalf("patient scopes = %s %s", doc.Encounters[0].PatientScope, doc.Encounters[1].PatientScope)
	}

	if err := VerifyCompliance(out); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestComplianceDetectsTampering(t *testing.T) {
	svc := newFixture(t, 3)

	out, err := svc.ComplianceJSON("")
	if err != nil {
		t.Fatalf("compliance json: %v", err)
	}
	var doc ComplianceDoc
	if err := json.Unmarshal(out, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	// Swap one leaf hash; the proof no longer matches the root.
	doc.Encounters[1].LeafHash = doc.Encounters[2].LeafHash
	tampered, _ := json.Marshal(doc)

	err = VerifyCompliance(tampered)
	if apperr.KindOf(err) != apperr.HashMismatch {
		t.Fatalf("kind = %v, want HashMismatch (%v)", apperr.KindOf(err), err)
	}
}

func TestComplianceRejectsCountMismatch(t *testing.T) {
	svc := newFixture(t, 2)

	out, _ := svc.ComplianceJSON("")
	var doc ComplianceDoc
	if err := json.Unmarshal(out, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	doc.Encounters = doc.Encounters[:1]
	truncated, _ := json.Marshal(doc)

	if apperr.KindOf(VerifyCompliance(truncated)) != apperr.Consistency {
		t.Fatal("truncated document accepted")
	}
}
