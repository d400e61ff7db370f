package draft

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vetledger/vetledger/internal/platform/db"
)

type repoSQLite struct{}

func NewRepoSQLite() Repository {
	return &repoSQLite{}
}

const draftCols = `id, patient_local_id, transcript, status, items, created_at, updated_at`

func scanDraft(row interface{ Scan(...interface{}) error }) (*Draft, error) {
	var (
		d             Draft
		items         string
		created, updd string
	)
	err := row.Scan(&d.ID, &d.PatientLocalID, &d.Transcript, &d.Status, &items, &created, &updd)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(items), &d.Items); err != nil {
		return nil, fmt.Errorf("decode items for %s: %w", d.ID, err)
	}
	if d.CreatedAt, err = time.Parse(time.RFC3339, created); err != nil {
		return nil, fmt.Errorf("decode created_at for %s: %w", d.ID, err)
	}
	if d.UpdatedAt, err = time.Parse(time.RFC3339, updd); err != nil {
		return nil, fmt.Errorf("decode updated_at for %s: %w", d.ID, err)
	}
	return &d, nil
}

func marshalItems(items []ResolvedItem) (string, error) {
	if items == nil {
		items = []ResolvedItem{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "", fmt.Errorf("encode items: %w", err)
	}
	return string(b), nil
}

func (r *repoSQLite) Create(q db.Queryer, d *Draft) error {
	items, err := marshalItems(d.Items)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	_, err = q.Exec(`
		INSERT INTO drafts (id, patient_local_id, transcript, status, items, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?)`,
		d.ID, d.PatientLocalID, d.Transcript, d.Status, items, now, now)
	return db.Classify(err, "draft "+d.ID)
}

func (r *repoSQLite) Get(q db.Queryer, id string) (*Draft, error) {
	d, err := scanDraft(q.QueryRow(`SELECT `+draftCols+` FROM drafts WHERE id = ?`, id))
	if err != nil {
		return nil, db.Classify(err, "draft "+id)
	}
	return d, nil
}

func (r *repoSQLite) Save(q db.Queryer, d *Draft) error {
	items, err := marshalItems(d.Items)
	if err != nil {
		return err
	}
	res, err := q.Exec(`UPDATE drafts SET status=?, items=?, updated_at=? WHERE id=?`,
		d.Status, items, time.Now().UTC().Format(time.RFC3339), d.ID)
	if err != nil {
		return db.Classify(err, "draft "+d.ID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return db.Classify(sql.ErrNoRows, "draft "+d.ID)
	}
	return nil
}

func (r *repoSQLite) ListByStatus(q db.Queryer, status string) ([]*Draft, error) {
	rows, err := q.Query(`SELECT `+draftCols+` FROM drafts WHERE status = ? ORDER BY created_at, id`, status)
	if err != nil {
		return nil, db.Classify(err, "draft list")
	}
	defer rows.Close()

	var out []*Draft
	for rows.Next() {
		d, err := scanDraft(rows)
		if err != nil {
			return nil, db.Classify(err, "draft row")
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, db.Classify(err, "draft rows")
	}
	return out, nil
}
