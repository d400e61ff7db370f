package resolver

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/vetledger/vetledger/internal/domain/catalog"
	"github.com/vetledger/vetledger/internal/platform/db"
)

func newTestResolver(t *testing.T) *Service {
	t.Helper()
	store, err := db.OpenInMemory()
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	cat := catalog.NewService(store, catalog.NewRepoSQLite(), zerolog.Nop())
	for _, it := range testItems() {
		if err := cat.Upsert(it); err != nil {
			t.Fatalf("seed %s: %v", it.SKU, err)
		}
	}
	svc, err := NewService(cat, DefaultWeights(), zerolog.Nop())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestResolveEndToEnd(t *testing.T) {
	s := newTestResolver(t)

	norm, cands, err := s.Resolve(
		DrugMention{Text: "Rimadyl", Dose: fptr(100), Unit: sptr("mg"), Route: sptr("orally")},
		sptr("Canine"), fptr(30),
	)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if norm.Name != "carprofen" {
		t.Fatalf("normalized name = %q", norm.Name)
	}
	if norm.Species == nil || *norm.Species != "canine" {
		t.Fatalf("species context not applied: %v", norm.Species)
	}
	if len(cands) == 0 {
		t.Fatal("no candidates")
	}
	if cands[0].Confidence < 0.90 {
		t.Fatalf("top confidence = %v, want >= 0.90", cands[0].Confidence)
	}
}

func TestResolveFelineMeloxicam(t *testing.T) {
	s := newTestResolver(t)

	_, cands, err := s.Resolve(
		DrugMention{Text: "metacam", Route: sptr("sq")},
		sptr("feline"), fptr(4),
	)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(cands) == 0 || cands[0].Item.SKU != "MELOX-15" {
		t.Fatalf("top = %v, want MELOX-15", cands)
	}
}

func TestResolveUnknownDrugEmpty(t *testing.T) {
	s := newTestResolver(t)

	_, cands, err := s.Resolve(DrugMention{Text: "xylophone"}, nil, nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(cands) != 0 {
		t.Fatalf("got %d candidates for nonsense, want 0", len(cands))
	}
}

func TestResolveBoundsCandidates(t *testing.T) {
	s := newTestResolver(t)

	_, cands, err := s.Resolve(DrugMention{Text: "carprofen"}, nil, nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(cands) > MaxCandidates {
		t.Fatalf("got %d candidates, cap is %d", len(cands), MaxCandidates)
	}
}
