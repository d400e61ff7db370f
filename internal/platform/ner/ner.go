// Package ner extracts drug mentions from transcript text. Hosts with a
// real clinical NER model implement Extractor themselves; RuleBased is the
// offline fallback that matches against a lexicon built from the catalog.
package ner

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/vetledger/vetledger/internal/domain/resolver"
)

// Extractor turns free text into candidate drug mentions.
type Extractor interface {
	Extract(transcript string) []resolver.DrugMention
}

// RuleBased scans for lexicon hits and attaches the nearest dose and route
// found before the next hit. It favors precision over recall; a missed
// mention can be added by hand, a phantom one wastes review time.
type RuleBased struct {
	lexicon map[string]bool
}

// NewRuleBased builds an extractor over the given drug names and aliases.
// Multi-word names match on their first word.
func NewRuleBased(lexicon []string) *RuleBased {
	set := make(map[string]bool, len(lexicon))
	for _, name := range lexicon {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		if i := strings.IndexByte(name, ' '); i > 0 {
			name = name[:i]
		}
		set[name] = true
	}
	return &RuleBased{lexicon: set}
}

var (
	tokenRe = regexp.MustCompile(`[a-z0-9]+(?:\.[0-9]+)?`)
	// "100mg" style tokens where the amount and unit are fused.
	fusedDoseRe = regexp.MustCompile(`^([0-9]+(?:\.[0-9]+)?)(mg|ml|cc|mcg|ug|g|iu)$`)
	numberRe    = regexp.MustCompile(`^[0-9]+(?:\.[0-9]+)?$`)
)

var unitWords = map[string]bool{
	"mg": true, "ml": true, "cc": true, "mcg": true, "ug": true, "g": true,
	"iu": true, "tab": true, "tabs": true, "tablet": true, "tablets": true,
	"cap": true, "caps": true, "capsule": true, "capsules": true,
	"unit": true, "units": true,
}

var routeWords = map[string]string{
	"po": "PO", "orally": "PO", "oral": "PO",
	"sq": "SQ", "subq": "SQ", "subcutaneously": "SQ", "subcutaneous": "SQ",
	"im": "IM", "intramuscular": "IM", "intramuscularly": "IM",
	"iv": "IV", "intravenous": "IV", "intravenously": "IV",
	"topical": "TOP", "topically": "TOP",
}

var speciesWords = map[string]string{
	"canine": "canine", "dog": "canine", "puppy": "canine",
	"feline": "feline", "cat": "feline", "kitten": "feline",
	"equine": "equine", "horse": "equine",
	"rabbit": "rabbit", "avian": "avian", "bird": "avian",
}

// Extract returns one mention per lexicon hit, in transcript order. A
// species word anywhere in the transcript applies to every mention.
func (r *RuleBased) Extract(transcript string) []resolver.DrugMention {
	tokens := tokenRe.FindAllString(strings.ToLower(transcript), -1)

	var species *string
	for _, tok := range tokens {
		if s, ok := speciesWords[tok]; ok {
			sp := s
			species = &sp
			break
		}
	}

	var hits []int
	for i, tok := range tokens {
		if r.lexicon[tok] {
			hits = append(hits, i)
		}
	}

	var out []resolver.DrugMention
	for h, start := range hits {
		end := len(tokens)
		if h+1 < len(hits) {
			end = hits[h+1]
		}
		m := resolver.DrugMention{Text: tokens[start], Species: species}
		fillDoseAndRoute(&m, tokens[start+1:end])
		out = append(out, m)
	}
	return out
}

// fillDoseAndRoute scans the tokens between a mention and the next one for
// the first dose expression and the first route word.
func fillDoseAndRoute(m *resolver.DrugMention, window []string) {
	for i := 0; i < len(window); i++ {
		tok := window[i]
		if m.Route == nil {
			if canonical, ok := routeWords[tok]; ok {
				rt := canonical
				m.Route = &rt
				continue
			}
		}
		if m.Dose != nil {
			continue
		}
		if sub := fusedDoseRe.FindStringSubmatch(tok); sub != nil {
			if v, err := strconv.ParseFloat(sub[1], 64); err == nil {
				unit := sub[2]
				m.Dose, m.Unit = &v, &unit
			}
			continue
		}
		if numberRe.MatchString(tok) && i+1 < len(window) && unitWords[window[i+1]] {
			if v, err := strconv.ParseFloat(tok, 64); err == nil {
				unit := window[i+1]
				m.Dose, m.Unit = &v, &unit
				i++
			}
		}
	}
}
