package patient

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vetledger/vetledger/internal/platform/apperr"
	"github.com/vetledger/vetledger/internal/platform/db"
)

type Service struct {
	store *db.Store
	repo  Repository
	log   zerolog.Logger
}

func NewService(store *db.Store, repo Repository, log zerolog.Logger) *Service {
	return &Service{store: store, repo: repo, log: log}
}

// Create registers a new patient and assigns its local id.
func (s *Service) Create(p *Patient) error {
	if p.Name == "" {
		return apperr.New(apperr.InvalidInput, "name is required")
	}
	if p.Species == "" {
		return apperr.New(apperr.InvalidInput, "species is required")
	}
	if p.WeightKg != nil && *p.WeightKg <= 0 {
		return apperr.New(apperr.InvalidInput, "weight must be positive")
	}
	if p.LocalID == "" {
		p.LocalID = uuid.NewString()
	}
	return s.store.Do(func(q db.Queryer) error {
		return s.repo.Create(q, p)
	})
}

func (s *Service) Get(localID string) (*Patient, error) {
	var p *Patient
	err := s.store.Do(func(q db.Queryer) error {
		var err error
		p, err = s.repo.GetByLocalID(q, localID)
		return err
	})
	return p, err
}

func (s *Service) Update(p *Patient) error {
	if p.LocalID == "" {
		return apperr.New(apperr.InvalidInput, "local_id is required")
	}
	if p.Name == "" || p.Species == "" {
		return apperr.New(apperr.InvalidInput, "name and species are required")
	}
	return s.store.Do(func(q db.Queryer) error {
		return s.repo.Update(q, p)
	})
}

// BindServerID records the identity assigned by the practice-management
// server after first sync.
func (s *Service) BindServerID(localID, serverID string) error {
	if serverID == "" {
		return apperr.New(apperr.InvalidInput, "server_id is required")
	}
	return s.store.Do(func(q db.Queryer) error {
		return s.repo.SetServerID(q, localID, serverID)
	})
}

func (s *Service) SearchByName(name string, limit int) ([]*Patient, error) {
	if limit <= 0 {
		limit = 20
	}
	var out []*Patient
	err := s.store.Do(func(q db.Queryer) error {
		var err error
		out, err = s.repo.SearchByName(q, name, limit)
		return err
	})
	return out, err
}
