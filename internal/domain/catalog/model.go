package catalog

import (
	"strings"
	"time"
)

// Item maps to the catalog table. One billable product the clinic stocks.
// Dose bounds are expressed in mg per kg of patient body weight.
type Item struct {
	SKU           string     `db:"sku" json:"sku"`
	Name          string     `db:"name" json:"name"`
	Aliases       []string   `db:"aliases" json:"aliases,omitempty"`
	Concentration *string    `db:"concentration" json:"concentration,omitempty"`
	Species       []string   `db:"species" json:"species,omitempty"`
	Routes        []string   `db:"routes" json:"routes,omitempty"`
	DoseMinMgKg   *float64   `db:"dose_min_mg_per_kg" json:"dose_min_mg_per_kg,omitempty"`
	DoseMaxMgKg   *float64   `db:"dose_max_mg_per_kg" json:"dose_max_mg_per_kg,omitempty"`
	PackageSize   *string    `db:"package_size" json:"package_size,omitempty"`
	PriceCents    int64      `db:"price_cents" json:"price_cents"`
	Active        bool       `db:"active" json:"active"`
	ServerID      *string    `db:"server_id" json:"server_id,omitempty"`
	LastSynced    *time.Time `db:"last_synced" json:"last_synced,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// SpeciesCompatible reports whether the item may be dispensed for the given
// species. An empty restriction list means no restriction.
func (i *Item) SpeciesCompatible(species string) bool {
	if len(i.Species) == 0 {
		return true
	}
	species = strings.ToLower(species)
	for _, s := range i.Species {
		if strings.ToLower(s) == species {
			return true
		}
	}
	return false
}

// RouteCompatible reports whether the canonical route is listed for the item.
// An empty route list means any route.
func (i *Item) RouteCompatible(route string) bool {
	if len(i.Routes) == 0 {
		return true
	}
	for _, r := range i.Routes {
		if strings.EqualFold(r, route) {
			return true
		}
	}
	return false
}

// HasDoseRange reports whether the item carries mg/kg dose bounds. Scoring
// treats a missing range as no evidence.
func (i *Item) HasDoseRange() bool {
	return i.DoseMinMgKg != nil && i.DoseMaxMgKg != nil
}

// SearchHit pairs an item with its retrieval score from the index.
type SearchHit struct {
	Item  *Item
	Score float64 // 0.0 to 1.0, rank-class score, not a probability
}

// Delta is one catalog change pushed down from the practice-management
// server during catalog sync.
type Delta struct {
	Items       []*Item  `json:"items"`
	RemovedSKUs []string `json:"removed_skus,omitempty"`
	ServerTime  string   `json:"server_time"`
}
