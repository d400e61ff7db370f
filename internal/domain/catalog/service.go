package catalog

import (
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/vetledger/vetledger/internal/platform/apperr"
	"github.com/vetledger/vetledger/internal/platform/db"
	"github.com/vetledger/vetledger/internal/platform/textmatch"
)

// DefaultSearchLimit caps the candidate pool handed to disambiguation.
const DefaultSearchLimit = 20

// Queries longer than this are truncated before tokenization.
const maxQueryLen = 64

// Retrieval rank-class scores. The index answers "how was this found", not
// "how likely is it the right drug".
const (
	scoreExact     = 1.0
	scorePrefix    = 0.85
	scoreSubstring = 0.65
	scoreEdit1     = 0.55
	scoreEdit2     = 0.45
)

const stateCatalogLastSync = "catalog_last_sync"

type Service struct {
	store *db.Store
	repo  Repository
	log   zerolog.Logger
}

func NewService(store *db.Store, repo Repository, log zerolog.Logger) *Service {
	return &Service{store: store, repo: repo, log: log}
}

// Upsert validates and writes one item. SKU and name are required; a dose
// range needs both bounds and a unit, with min <= max.
func (s *Service) Upsert(item *Item) error {
	if item.SKU == "" {
		return apperr.New(apperr.InvalidInput, "sku is required")
	}
	if item.Name == "" {
		return apperr.New(apperr.InvalidInput, "name is required")
	}
	if (item.DoseMinMgKg == nil) != (item.DoseMaxMgKg == nil) {
		return apperr.New(apperr.InvalidInput, "dose range needs both min and max")
	}
	if item.DoseMinMgKg != nil && *item.DoseMinMgKg > *item.DoseMaxMgKg {
		return apperr.New(apperr.InvalidInput, "dose min %v exceeds max %v", *item.DoseMinMgKg, *item.DoseMaxMgKg)
	}
	return s.store.Do(func(q db.Queryer) error {
		return s.repo.Upsert(q, item)
	})
}

func (s *Service) Get(sku string) (*Item, error) {
	var item *Item
	err := s.store.Do(func(q db.Queryer) error {
		var err error
		item, err = s.repo.GetBySKU(q, sku)
		return err
	})
	return item, err
}

func (s *Service) ListActive() ([]*Item, error) {
	var items []*Item
	err := s.store.Do(func(q db.Queryer) error {
		var err error
		items, err = s.repo.ListActive(q)
		return err
	})
	return items, err
}

// Search retrieves active items matching the query text and assigns each a
// rank-class score. Results are ordered score descending, then SKU
// ascending, and capped at limit.
func (s *Service) Search(query string, limit int) ([]SearchHit, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	tokens := tokenize(query)
	if len(tokens) == 0 {
		return nil, nil
	}
	needle := strings.Join(tokens, " ")

	var pool []*Item
	err := s.store.Do(func(q db.Queryer) error {
		// Single-character queries would wildcard-match most of the
		// index; only an exact alias or name hit is meaningful.
		if len(needle) >= 2 && s.store.FTSEnabled() {
			hits, err := s.repo.MatchFTS(q, ftsQuery(tokens), limit*2)
			if err != nil {
				s.log.Warn().Err(err).Msg("catalog fts lookup failed, falling back to scan")
			} else {
				pool = hits
			}
		}
		// FTS prefix matching misses typos. Small catalogs scan cheaply,
		// so widen the pool whenever retrieval came up short.
		if len(pool) < limit {
			all, err := s.repo.ListActive(q)
			if err != nil {
				return err
			}
			pool = mergePool(pool, all)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var hits []SearchHit
	for _, item := range pool {
		score := retrievalScore(needle, item)
		// Multi-word queries also match token-wise, so "rimadyl chewable"
		// still finds plain "rimadyl".
		if len(tokens) > 1 {
			for _, tok := range tokens {
				if s := retrievalScore(tok, item); s > score {
					score = s
				}
			}
		}
		if len(needle) == 1 && score < scoreExact {
			continue
		}
		if score > 0 {
			hits = append(hits, SearchHit{Item: item, Score: score})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Item.SKU < hits[j].Item.SKU
	})
	// A lone character is ambiguous even across exact alias hits; keep only
	// the first in SKU order.
	if len(needle) == 1 && len(hits) > 1 {
		hits = hits[:1]
	}
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// ApplyDelta ingests a catalog change set from the practice-management
// server in one transaction and advances the catalog watermark.
func (s *Service) ApplyDelta(delta *Delta) error {
	if delta == nil {
		return apperr.New(apperr.InvalidInput, "nil delta")
	}
	now := time.Now().UTC()
	return s.store.Tx(func(q db.Queryer) error {
		for _, item := range delta.Items {
			if item.SKU == "" || item.Name == "" {
				return apperr.New(apperr.InvalidInput, "delta item missing sku or name")
			}
			item.Active = true
			item.LastSynced = &now
			if err := s.repo.Upsert(q, item); err != nil {
				return err
			}
		}
		for _, sku := range delta.RemovedSKUs {
			if err := s.repo.Deactivate(q, sku); err != nil {
				if apperr.Is(err, apperr.NotFound) {
					continue // already gone locally
				}
				return err
			}
		}
		watermark := delta.ServerTime
		if watermark == "" {
			watermark = now.Format(time.RFC3339)
		}
		return db.SetState(q, stateCatalogLastSync, watermark)
	})
}

// LastSync returns the catalog watermark, empty when no delta has been
// applied yet.
func (s *Service) LastSync() (string, error) {
	var v string
	err := s.store.Do(func(q db.Queryer) error {
		var err error
		v, _, err = db.GetState(q, stateCatalogLastSync)
		return err
	})
	return v, err
}

func tokenize(query string) []string {
	query = strings.ToLower(query)
	if len(query) > maxQueryLen {
		// Back up to a rune boundary so multi-byte input is never split.
		cut := maxQueryLen
		for cut > 0 && !utf8.RuneStart(query[cut]) {
			cut--
		}
		query = query[:cut]
	}
	return strings.FieldsFunc(query, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
}

// ftsQuery builds a prefix-match FTS5 expression: each token quoted and
// starred, joined with OR.
func ftsQuery(tokens []string) string {
	parts := make([]string, len(tokens))
	for i, t := range tokens {
		parts[i] = `"` + t + `"*`
	}
	return strings.Join(parts, " OR ")
}

func mergePool(pool, extra []*Item) []*Item {
	seen := make(map[string]bool, len(pool))
	for _, it := range pool {
		seen[it.SKU] = true
	}
	for _, it := range extra {
		if !seen[it.SKU] {
			pool = append(pool, it)
			seen[it.SKU] = true
		}
	}
	return pool
}

// retrievalScore assigns the best rank-class score the query achieves
// against the item's name or any alias. Zero means no match.
func retrievalScore(needle string, item *Item) float64 {
	best := 0.0
	names := append([]string{item.Name}, item.Aliases...)
	for _, n := range names {
		n = strings.ToLower(n)
		switch {
		case n == needle:
			return scoreExact
		case strings.HasPrefix(n, needle):
			best = maxf(best, scorePrefix)
		case strings.Contains(n, needle):
			best = maxf(best, scoreSubstring)
		default:
			switch textmatch.Levenshtein(n, needle) {
			case 1:
				best = maxf(best, scoreEdit1)
			case 2:
				best = maxf(best, scoreEdit2)
			}
		}
	}
	return best
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
