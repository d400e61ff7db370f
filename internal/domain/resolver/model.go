package resolver

import "github.com/vetledger/vetledger/internal/domain/catalog"

// DrugMention is a raw extraction from the transcript: the drug text as
// spoken plus whatever dose/route/species evidence the extractor found.
type DrugMention struct {
	Text    string   `json:"text"`
	Dose    *float64 `json:"dose,omitempty"`
	Unit    *string  `json:"unit,omitempty"`
	Route   *string  `json:"route,omitempty"`
	Species *string  `json:"species,omitempty"`
}

// NormalizedMention is the deterministic canonical form of a DrugMention.
type NormalizedMention struct {
	// Name is the canonical drug name after alias expansion.
	Name string `json:"name"`
	// RawName preserves the cleaned input for fallback retrieval.
	RawName string   `json:"raw_name"`
	Dose    *float64 `json:"dose,omitempty"`
	Unit    *string  `json:"unit,omitempty"`
	Route   *string  `json:"route,omitempty"`
	Species *string  `json:"species,omitempty"`
}

// DoseInMg returns the dose in milligrams when the normalized unit is mg.
func (m *NormalizedMention) DoseInMg() (float64, bool) {
	if m.Dose == nil || m.Unit == nil || *m.Unit != "mg" {
		return 0, false
	}
	return *m.Dose, true
}

// ScoredCandidate pairs a catalog item with its confidence and the four
// sub-scores the confidence is built from.
type ScoredCandidate struct {
	Item         *catalog.Item `json:"item"`
	Confidence   float64       `json:"confidence"`
	NameScore    float64       `json:"name_score"`
	SpeciesScore float64       `json:"species_score"`
	RouteScore   float64       `json:"route_score"`
	DoseScore    float64       `json:"dose_score"`
}
