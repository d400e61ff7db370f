package ner

import "testing"

func lex() []string {
	return []string{"rimadyl", "Carprofen 100mg", "ace", "metacam"}
}

func TestExtractMentionWithDoseAndRoute(t *testing.T) {
	ex := NewRuleBased(lex())

	got := ex.Extract("administered rimadyl 100 mg PO with food")
	if len(got) != 1 {
		t.Fatalf("mentions = %d, want 1", len(got))
	}
	m := got[0]
	if m.Text != "rimadyl" {
		t.Fatalf("text = %q", m.Text)
	}
	if m.Dose == nil || *m.Dose != 100 || m.Unit == nil || *m.Unit != "mg" {
		t.Fatalf("dose = %+v %+v", m.Dose, m.Unit)
	}
	if m.Route == nil || *m.Route != "PO" {
		t.Fatalf("route = %+v", m.Route)
	}
}

func TestExtractFusedDoseToken(t *testing.T) {
	ex := NewRuleBased(lex())

	got := ex.Extract("gave ace 10mg im for sedation")
	if len(got) != 1 {
		t.Fatalf("mentions = %d, want 1", len(got))
	}
	m := got[0]
	if m.Dose == nil || *m.Dose != 10 || m.Unit == nil || *m.Unit != "mg" {
		t.Fatalf("dose = %+v %+v", m.Dose, m.Unit)
	}
	if m.Route == nil || *m.Route != "IM" {
		t.Fatalf("route = %+v", m.Route)
	}
}

func TestExtractMultipleMentionsScopedWindows(t *testing.T) {
	ex := NewRuleBased(lex())

	got := ex.Extract("rimadyl 75 mg orally then metacam 0.5 ml sq")
	if len(got) != 2 {
		t.Fatalf("mentions = %d, want 2", len(got))
	}
	if *got[0].Dose != 75 || *got[0].Route != "PO" {
		t.Fatalf("first mention = %+v", got[0])
	}
	if *got[1].Dose != 0.5 || *got[1].Unit != "ml" || *got[1].Route != "SQ" {
		t.Fatalf("second mention = %+v", got[1])
	}
}

func TestExtractSpeciesAppliesToAllMentions(t *testing.T) {
	ex := NewRuleBased(lex())

	got := ex.Extract("canine patient, gave rimadyl 100mg and ace 10mg")
	if len(got) != 2 {
		t.Fatalf("mentions = %d, want 2", len(got))
	}
	for i, m := range got {
		if m.Species == nil || *m.Species != "canine" {
			t.Fatalf("mention %d species = %+v", i, m.Species)
		}
	}
}

func TestExtractNoLexiconHits(t *testing.T) {
	ex := NewRuleBased(lex())
	if got := ex.Extract("patient ate breakfast and went home"); len(got) != 0 {
		t.Fatalf("mentions = %d, want 0", len(got))
	}
}

func TestMultiWordLexiconMatchesFirstWord(t *testing.T) {
	ex := NewRuleBased([]string{"Carprofen 100mg"})
	got := ex.Extract("carprofen given at discharge")
	if len(got) != 1 || got[0].Text != "carprofen" {
		t.Fatalf("mentions = %+v", got)
	}
}
