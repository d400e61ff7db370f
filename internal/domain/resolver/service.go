package resolver

import (
	"github.com/rs/zerolog"

	"github.com/vetledger/vetledger/internal/domain/catalog"
)

// Service resolves drug mentions: normalize, retrieve candidates from the
// catalog index, rank them.
type Service struct {
	catalog *catalog.Service
	weights Weights
	log     zerolog.Logger
}

func NewService(cat *catalog.Service, weights Weights, log zerolog.Logger) (*Service, error) {
	w, err := weights.Normalized()
	if err != nil {
		return nil, err
	}
	return &Service{catalog: cat, weights: w, log: log}, nil
}

// Resolve runs the full pipeline for one mention. Patient context overrides
// whatever species the extractor guessed; weightKg enables dose plausibility
// scoring. An empty candidate list means the mention needs manual search,
// not that resolution failed.
func (s *Service) Resolve(m DrugMention, species *string, weightKg *float64) (NormalizedMention, []ScoredCandidate, error) {
	norm := Normalize(m)
	if species != nil {
		sp := Normalize(DrugMention{Species: species}).Species
		if sp != nil {
			norm.Species = sp
		}
	}

	hits, err := s.catalog.Search(norm.Name, catalog.DefaultSearchLimit)
	if err != nil {
		return norm, nil, err
	}
	// The alias map may canonicalize to a name the catalog spells
	// differently; retry with the text as spoken before giving up.
	if len(hits) == 0 && norm.RawName != norm.Name {
		hits, err = s.catalog.Search(norm.RawName, catalog.DefaultSearchLimit)
		if err != nil {
			return norm, nil, err
		}
	}
	if len(hits) == 0 {
		s.log.Debug().Str("name", norm.Name).Msg("no catalog candidates for mention")
		return norm, nil, nil
	}

	pool := make([]*catalog.Item, len(hits))
	for i, h := range hits {
		pool[i] = h.Item
	}
	return norm, Rank(norm, weightKg, pool, s.weights), nil
}
