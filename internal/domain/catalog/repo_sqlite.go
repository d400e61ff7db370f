package catalog

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vetledger/vetledger/internal/platform/db"
)

type repoSQLite struct{}

// NewRepoSQLite returns the sqlite-backed catalog repository.
func NewRepoSQLite() Repository {
	return &repoSQLite{}
}

const itemCols = `sku, name, aliases, concentration, species, routes,
	dose_min_mg_per_kg, dose_max_mg_per_kg, package_size, price_cents,
	active, server_id, last_synced, created_at, updated_at`

func scanItem(row interface{ Scan(...interface{}) error }) (*Item, error) {
	var (
		it            Item
		aliases       string
		species       string
		routes        string
		lastSynced    sql.NullString
		created, updd string
	)
	err := row.Scan(&it.SKU, &it.Name, &aliases, &it.Concentration, &species, &routes,
		&it.DoseMinMgKg, &it.DoseMaxMgKg, &it.PackageSize, &it.PriceCents,
		&it.Active, &it.ServerID, &lastSynced, &created, &updd)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(aliases), &it.Aliases); err != nil {
		return nil, fmt.Errorf("decode aliases for %s: %w", it.SKU, err)
	}
	if err := json.Unmarshal([]byte(species), &it.Species); err != nil {
		return nil, fmt.Errorf("decode species for %s: %w", it.SKU, err)
	}
	if err := json.Unmarshal([]byte(routes), &it.Routes); err != nil {
		return nil, fmt.Errorf("decode routes for %s: %w", it.SKU, err)
	}
	if lastSynced.Valid {
		t, err := time.Parse(time.RFC3339, lastSynced.String)
		if err != nil {
			return nil, fmt.Errorf("decode last_synced for %s: %w", it.SKU, err)
		}
		it.LastSynced = &t
	}
	if it.CreatedAt, err = time.Parse(time.RFC3339, created); err != nil {
		return nil, fmt.Errorf("decode created_at for %s: %w", it.SKU, err)
	}
	if it.UpdatedAt, err = time.Parse(time.RFC3339, updd); err != nil {
		return nil, fmt.Errorf("decode updated_at for %s: %w", it.SKU, err)
	}
	return &it, nil
}

func jsonList(ss []string) string {
	if ss == nil {
		ss = []string{}
	}
	b, _ := json.Marshal(ss)
	return string(b)
}

func (r *repoSQLite) Upsert(q db.Queryer, item *Item) error {
	now := time.Now().UTC().Format(time.RFC3339)
	var lastSynced *string
	if item.LastSynced != nil {
		s := item.LastSynced.UTC().Format(time.RFC3339)
		lastSynced = &s
	}
	_, err := q.Exec(`
		INSERT INTO catalog (sku, name, aliases, concentration, species, routes,
			dose_min_mg_per_kg, dose_max_mg_per_kg, package_size, price_cents,
			active, server_id, last_synced, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(sku) DO UPDATE SET
			name=excluded.name, aliases=excluded.aliases,
			concentration=excluded.concentration,
			species=excluded.species, routes=excluded.routes,
			dose_min_mg_per_kg=excluded.dose_min_mg_per_kg,
			dose_max_mg_per_kg=excluded.dose_max_mg_per_kg,
			package_size=excluded.package_size,
			price_cents=excluded.price_cents, active=excluded.active,
			server_id=excluded.server_id, last_synced=excluded.last_synced,
			updated_at=excluded.updated_at`,
		item.SKU, item.Name, jsonList(item.Aliases), item.Concentration,
		jsonList(item.Species), jsonList(item.Routes),
		item.DoseMinMgKg, item.DoseMaxMgKg, item.PackageSize, item.PriceCents,
		item.Active, item.ServerID, lastSynced, now, now)
	return db.Classify(err, "catalog item "+item.SKU)
}

func (r *repoSQLite) GetBySKU(q db.Queryer, sku string) (*Item, error) {
	it, err := scanItem(q.QueryRow(`SELECT `+itemCols+` FROM catalog WHERE sku = ?`, sku))
	if err != nil {
		return nil, db.Classify(err, "catalog item "+sku)
	}
	return it, nil
}

func (r *repoSQLite) MatchFTS(q db.Queryer, match string, limit int) ([]*Item, error) {
	rows, err := q.Query(`
		SELECT `+itemCols+` FROM catalog
		WHERE rowid IN (
			SELECT rowid FROM catalog_fts WHERE catalog_fts MATCH ?
			ORDER BY bm25(catalog_fts) LIMIT ?
		) AND active = 1`, match, limit)
	if err != nil {
		return nil, db.Classify(err, "catalog search")
	}
	defer rows.Close()
	return collectItems(rows)
}

func (r *repoSQLite) ListActive(q db.Queryer) ([]*Item, error) {
	rows, err := q.Query(`SELECT ` + itemCols + ` FROM catalog WHERE active = 1 ORDER BY sku`)
	if err != nil {
		return nil, db.Classify(err, "catalog list")
	}
	defer rows.Close()
	return collectItems(rows)
}

func (r *repoSQLite) Deactivate(q db.Queryer, sku string) error {
	res, err := q.Exec(`UPDATE catalog SET active = 0, updated_at = ? WHERE sku = ?`,
		time.Now().UTC().Format(time.RFC3339), sku)
	if err != nil {
		return db.Classify(err, "catalog item "+sku)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return db.Classify(sql.ErrNoRows, "catalog item "+sku)
	}
	return nil
}

func (r *repoSQLite) Count(q db.Queryer) (int, error) {
	var n int
	if err := q.QueryRow(`SELECT count(*) FROM catalog WHERE active = 1`).Scan(&n); err != nil {
		return 0, db.Classify(err, "catalog count")
	}
	return n, nil
}

func collectItems(rows *sql.Rows) ([]*Item, error) {
	var items []*Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, db.Classify(err, "catalog row")
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, db.Classify(err, "catalog rows")
	}
	return items, nil
}
