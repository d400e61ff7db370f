package patient

import "github.com/vetledger/vetledger/internal/platform/db"

// Repository is the persistence boundary for patient records.
type Repository interface {
	Create(q db.Queryer, p *Patient) error
	GetByLocalID(q db.Queryer, localID string) (*Patient, error)
	Update(q db.Queryer, p *Patient) error
	SetServerID(q db.Queryer, localID, serverID string) error
	SearchByName(q db.Queryer, name string, limit int) ([]*Patient, error)
}
