package resolver

import (
	"fmt"
	"math"
	"testing"

	"github.com/vetledger/vetledger/internal/domain/catalog"
)

func testItems() []*catalog.Item {
	return []*catalog.Item{
		{
			SKU: "CARP-100", Name: "Carprofen 100mg", Aliases: []string{"rimadyl", "novox"},
			Species: []string{"canine"}, Routes: []string{"PO"},
			DoseMinMgKg: fptr(2.0), DoseMaxMgKg: fptr(4.4), Active: true,
		},
		{
			SKU: "CARP-75", Name: "Carprofen 75mg", Aliases: []string{"rimadyl"},
			Species: []string{"canine"}, Routes: []string{"PO"},
			DoseMinMgKg: fptr(2.0), DoseMaxMgKg: fptr(4.4), Active: true,
		},
		{
			SKU: "MELOX-15", Name: "Meloxicam 1.5mg/mL", Aliases: []string{"metacam"},
			Species: []string{"canine", "feline"}, Routes: []string{"PO", "SQ"},
			DoseMinMgKg: fptr(0.05), DoseMaxMgKg: fptr(0.2), Active: true,
		},
		{
			SKU: "ACE-10", Name: "Acepromazine 10mg", Aliases: []string{"promace"},
			Species: []string{"canine", "feline"}, Routes: []string{"PO", "IM", "IV"},
			DoseMinMgKg: fptr(0.5), DoseMaxMgKg: fptr(2.2), Active: true,
		},
	}
}

func resolveNorm(text string, dose *float64, unit, route, species *string) NormalizedMention {
	return Normalize(DrugMention{Text: text, Dose: dose, Unit: unit, Route: route, Species: species})
}

func TestRankBrandNameHighConfidence(t *testing.T) {
	// "rimadyl 100mg PO" for a 30kg dog: in-range dose, listed route,
	// right species. Confidence must clear 0.90.
	m := resolveNorm("rimadyl", fptr(100), sptr("mg"), sptr("PO"), sptr("canine"))
	got := Rank(m, fptr(30), testItems(), DefaultWeights())

	if len(got) == 0 {
		t.Fatal("no candidates")
	}
	top := got[0]
	if top.Item.SKU != "CARP-100" && top.Item.SKU != "CARP-75" {
		t.Fatalf("top = %s, want a carprofen SKU", top.Item.SKU)
	}
	if top.Confidence < 0.90 {
		t.Fatalf("confidence = %v, want >= 0.90", top.Confidence)
	}
}

func TestRankShorthandWithRoute(t *testing.T) {
	// "ace IM" with a plausible dose for a 25kg dog.
	m := resolveNorm("ace", fptr(25), sptr("mg"), sptr("IM"), sptr("canine"))
	got := Rank(m, fptr(25), testItems(), DefaultWeights())

	if len(got) == 0 || got[0].Item.SKU != "ACE-10" {
		t.Fatalf("top = %v, want ACE-10", got)
	}
	if got[0].Confidence < 0.80 {
		t.Fatalf("confidence = %v, want >= 0.80", got[0].Confidence)
	}
}

func TestRankSpeciesPenalty(t *testing.T) {
	// Carprofen for a cat: the canine-only item takes the species penalty
	// and scores below the same item ranked for a dog. Another candidate
	// with full species compatibility may still outrank it.
	m := resolveNorm("rimadyl", nil, nil, nil, sptr("feline"))
	feline := Rank(m, nil, testItems(), DefaultWeights())

	mDog := resolveNorm("rimadyl", nil, nil, nil, sptr("canine"))
	canine := Rank(mDog, nil, testItems(), DefaultWeights())

	felineCarp := findCandidate(t, feline, "CARP-100")
	canineCarp := findCandidate(t, canine, "CARP-100")

	if felineCarp.SpeciesScore != 0.1 {
		t.Fatalf("feline species score = %v, want 0.1", felineCarp.SpeciesScore)
	}
	if canineCarp.SpeciesScore != 1.0 {
		t.Fatalf("canine species score = %v, want 1.0", canineCarp.SpeciesScore)
	}
	if felineCarp.Confidence >= canineCarp.Confidence {
		t.Fatalf("feline carprofen %v >= canine carprofen %v",
			felineCarp.Confidence, canineCarp.Confidence)
	}
}

func findCandidate(t *testing.T, cands []ScoredCandidate, sku string) ScoredCandidate {
	t.Helper()
	for _, c := range cands {
		if c.Item.SKU == sku {
			return c
		}
	}
	t.Fatalf("%s missing from candidates %v", sku, cands)
	return ScoredCandidate{}
}

func TestRankConfidenceIdentity(t *testing.T) {
	m := resolveNorm("meloxicam", fptr(3), sptr("mg"), sptr("SQ"), sptr("feline"))
	w := DefaultWeights()
	for _, c := range Rank(m, fptr(4), testItems(), w) {
		want := w.Name*c.NameScore + w.Species*c.SpeciesScore + w.Route*c.RouteScore + w.Dose*c.DoseScore
		if math.Abs(c.Confidence-want) > 1e-6 {
			t.Fatalf("%s: confidence %v != weighted sum %v", c.Item.SKU, c.Confidence, want)
		}
	}
}

func TestRankTieBreakBySKU(t *testing.T) {
	// Identical items except SKU must come back in SKU order.
	m := resolveNorm("rimadyl", nil, nil, nil, nil)
	items := []*catalog.Item{
		{SKU: "B", Name: "Carprofen", Aliases: []string{"rimadyl"}},
		{SKU: "A", Name: "Carprofen", Aliases: []string{"rimadyl"}},
	}
	got := Rank(m, nil, items, DefaultWeights())
	if got[0].Item.SKU != "A" || got[1].Item.SKU != "B" {
		t.Fatalf("order = %s, %s; want A, B", got[0].Item.SKU, got[1].Item.SKU)
	}
}

func TestRankTruncatesToFive(t *testing.T) {
	m := resolveNorm("carprofen", nil, nil, nil, nil)
	var items []*catalog.Item
	for i := 0; i < 8; i++ {
		items = append(items, &catalog.Item{
			SKU: fmt.Sprintf("CARP-%d", i), Name: "Carprofen",
		})
	}
	got := Rank(m, nil, items, DefaultWeights())
	if len(got) != MaxCandidates {
		t.Fatalf("len = %d, want %d", len(got), MaxCandidates)
	}
}

func TestRankEmptyPool(t *testing.T) {
	m := resolveNorm("carprofen", nil, nil, nil, nil)
	if got := Rank(m, nil, nil, DefaultWeights()); len(got) != 0 {
		t.Fatalf("empty pool returned %d candidates", len(got))
	}
}

func TestDoseScoreBands(t *testing.T) {
	item := &catalog.Item{
		SKU: "X", Name: "X", DoseMinMgKg: fptr(2.0), DoseMaxMgKg: fptr(4.0),
	}
	weight := fptr(10.0) // mg_per_kg = dose/10

	mk := func(doseMg float64) NormalizedMention {
		return resolveNorm("x", fptr(doseMg), sptr("mg"), nil, nil)
	}

	// In range.
	if got := doseScore(mk(30), weight, item); got != 1.0 {
		t.Fatalf("in-range = %v, want 1.0", got)
	}
	// No weight: no evidence.
	if got := doseScore(mk(30), nil, item); got != 1.0 {
		t.Fatalf("no weight = %v, want 1.0", got)
	}
	// No range: no evidence.
	if got := doseScore(mk(30), weight, &catalog.Item{SKU: "Y", Name: "Y"}); got != 1.0 {
		t.Fatalf("no range = %v, want 1.0", got)
	}
	// Halfway into the decay band above max (4.0 -> 6.0): expect 0.65.
	if got := doseScore(mk(50), weight, item); math.Abs(got-0.65) > 1e-9 {
		t.Fatalf("decay midpoint = %v, want 0.65", got)
	}
	// At the decay limit, score reaches the floor.
	if got := doseScore(mk(60), weight, item); math.Abs(got-0.3) > 1e-9 {
		t.Fatalf("decay limit = %v, want 0.3", got)
	}
	// Far beyond.
	if got := doseScore(mk(200), weight, item); got != 0.1 {
		t.Fatalf("implausible = %v, want 0.1", got)
	}
	// Below min with decay: min 2.0, limit 1.0; 1.5 mg/kg is midway -> 0.65.
	if got := doseScore(mk(15), weight, item); math.Abs(got-0.65) > 1e-9 {
		t.Fatalf("below-min midpoint = %v, want 0.65", got)
	}
}

func TestWeightsNormalization(t *testing.T) {
	w, err := (Weights{Name: 2, Species: 1, Route: 1, Dose: 0}).Normalized()
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if math.Abs(w.Name-0.5) > 1e-9 || math.Abs(w.Species-0.25) > 1e-9 {
		t.Fatalf("normalized = %+v", w)
	}
	if _, err := (Weights{Name: -1, Species: 1, Route: 1, Dose: 1}).Normalized(); err == nil {
		t.Fatal("negative weight accepted")
	}
	if _, err := (Weights{}).Normalized(); err == nil {
		t.Fatal("zero weights accepted")
	}
}
