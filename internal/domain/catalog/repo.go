package catalog

import "github.com/vetledger/vetledger/internal/platform/db"

// Repository is the persistence boundary for catalog items. Implementations
// receive the store's Queryer so calls compose into larger transactions.
type Repository interface {
	Upsert(q db.Queryer, item *Item) error
	GetBySKU(q db.Queryer, sku string) (*Item, error)
	// MatchFTS returns active items whose indexed text matches the FTS5
	// query, best bm25 rank first.
	MatchFTS(q db.Queryer, match string, limit int) ([]*Item, error)
	ListActive(q db.Queryer) ([]*Item, error)
	Deactivate(q db.Queryer, sku string) error
	Count(q db.Queryer) (int, error)
}
