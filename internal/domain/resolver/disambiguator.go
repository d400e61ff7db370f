package resolver

import (
	"sort"
	"strings"

	"github.com/vetledger/vetledger/internal/domain/catalog"
	"github.com/vetledger/vetledger/internal/platform/textmatch"
)

// MaxCandidates bounds the ranked list handed back to review.
const MaxCandidates = 5

const (
	speciesMismatchScore = 0.1
	routeMismatchScore   = 0.2
	doseImplausibleScore = 0.1
	doseDecayFloor       = 0.3
)

// Rank scores every retrieved candidate against the mention and patient
// context and returns the top candidates, confidence descending with SKU as
// the tie-break. An empty pool yields an empty list; ranking never invents
// a candidate.
func Rank(m NormalizedMention, weightKg *float64, pool []*catalog.Item, w Weights) []ScoredCandidate {
	scored := make([]ScoredCandidate, 0, len(pool))
	for _, item := range pool {
		c := ScoredCandidate{
			Item:         item,
			NameScore:    nameScore(m, item),
			SpeciesScore: speciesScore(m.Species, item),
			RouteScore:   routeScore(m.Route, item),
			DoseScore:    doseScore(m, weightKg, item),
		}
		c.Confidence = w.Name*c.NameScore + w.Species*c.SpeciesScore +
			w.Route*c.RouteScore + w.Dose*c.DoseScore
		scored = append(scored, c)
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Confidence != scored[j].Confidence {
			return scored[i].Confidence > scored[j].Confidence
		}
		return scored[i].Item.SKU < scored[j].Item.SKU
	})
	if len(scored) > MaxCandidates {
		scored = scored[:MaxCandidates]
	}
	return scored
}

// nameScore blends Jaro-Winkler and Levenshtein similarity 50/50 over the
// candidate's name and aliases. A mention that appears verbatim in the
// candidate name, or equals one of its aliases, is a certain name match.
func nameScore(m NormalizedMention, item *catalog.Item) float64 {
	query := m.Name
	candName := strings.ToLower(item.Name)

	if strings.Contains(candName, query) {
		return 1.0
	}
	for _, alias := range item.Aliases {
		if strings.ToLower(alias) == query || strings.ToLower(alias) == m.RawName {
			return 1.0
		}
	}

	best := blend(query, candName)
	for _, alias := range item.Aliases {
		if s := blend(query, strings.ToLower(alias)); s > best {
			best = s
		}
	}
	return best
}

func blend(a, b string) float64 {
	s := 0.5*textmatch.JaroWinkler(a, b) + 0.5*textmatch.LevenshteinSimilarity(a, b)
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

func speciesScore(species *string, item *catalog.Item) float64 {
	if species == nil || item.SpeciesCompatible(*species) {
		return 1.0
	}
	return speciesMismatchScore
}

func routeScore(route *string, item *catalog.Item) float64 {
	if route == nil || item.RouteCompatible(*route) {
		return 1.0
	}
	return routeMismatchScore
}

// doseScore checks the mention dose against the candidate's mg/kg range.
// Missing evidence (no mg dose, no patient weight, no range) scores 1.0:
// absence of evidence penalizes nothing.
func doseScore(m NormalizedMention, weightKg *float64, item *catalog.Item) float64 {
	doseMg, ok := m.DoseInMg()
	if !ok || weightKg == nil || *weightKg <= 0 || !item.HasDoseRange() {
		return 1.0
	}

	mgPerKg := doseMg / *weightKg
	min, max := *item.DoseMinMgKg, *item.DoseMaxMgKg
	if mgPerKg >= min && mgPerKg <= max {
		return 1.0
	}

	// Within half the nearer bound, decay linearly from 1.0 at the bound to
	// the floor at 1.5x (or 0.5x) of it.
	if mgPerKg > max {
		limit := max * 1.5
		if mgPerKg <= limit && max > 0 {
			frac := (mgPerKg - max) / (limit - max)
			return 1.0 - frac*(1.0-doseDecayFloor)
		}
	} else {
		limit := min * 0.5
		if mgPerKg >= limit && min > 0 {
			frac := (min - mgPerKg) / (min - limit)
			return 1.0 - frac*(1.0-doseDecayFloor)
		}
	}
	return doseImplausibleScore
}
