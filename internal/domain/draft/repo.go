package draft

import "github.com/vetledger/vetledger/internal/platform/db"

// Repository is the persistence boundary for encounter drafts. Items travel
// as a JSON document with the draft row.
type Repository interface {
	Create(q db.Queryer, d *Draft) error
	Get(q db.Queryer, id string) (*Draft, error)
	// Save persists items and status for an existing draft.
	Save(q db.Queryer, d *Draft) error
	ListByStatus(q db.Queryer, status string) ([]*Draft, error)
}
