package patient

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/vetledger/vetledger/internal/platform/apperr"
	"github.com/vetledger/vetledger/internal/platform/db"
)

type repoSQLite struct{}

func NewRepoSQLite() Repository {
	return &repoSQLite{}
}

const patientCols = `local_id, server_id, name, species, breed, weight_kg,
	date_of_birth, owner_name, notes, created_at, updated_at`

func scanPatient(row interface{ Scan(...interface{}) error }) (*Patient, error) {
	var (
		p             Patient
		created, updd string
	)
	err := row.Scan(&p.LocalID, &p.ServerID, &p.Name, &p.Species, &p.Breed, &p.WeightKg,
		&p.DateOfBirth, &p.OwnerName, &p.Notes, &created, &updd)
	if err != nil {
		return nil, err
	}
	if p.CreatedAt, err = time.Parse(time.RFC3339, created); err != nil {
		return nil, fmt.Errorf("decode created_at for %s: %w", p.LocalID, err)
	}
	if p.UpdatedAt, err = time.Parse(time.RFC3339, updd); err != nil {
		return nil, fmt.Errorf("decode updated_at for %s: %w", p.LocalID, err)
	}
	return &p, nil
}

func (r *repoSQLite) Create(q db.Queryer, p *Patient) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := q.Exec(`
		INSERT INTO patients (local_id, server_id, name, species, breed, weight_kg,
			date_of_birth, owner_name, notes, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		p.LocalID, p.ServerID, p.Name, p.Species, p.Breed, p.WeightKg,
		p.DateOfBirth, p.OwnerName, p.Notes, now, now)
	return db.Classify(err, "patient "+p.LocalID)
}

func (r *repoSQLite) GetByLocalID(q db.Queryer, localID string) (*Patient, error) {
	p, err := scanPatient(q.QueryRow(`SELECT `+patientCols+` FROM patients WHERE local_id = ?`, localID))
	if err != nil {
		return nil, db.Classify(err, "patient "+localID)
	}
	return p, nil
}

func (r *repoSQLite) Update(q db.Queryer, p *Patient) error {
	res, err := q.Exec(`
		UPDATE patients SET name=?, species=?, breed=?, weight_kg=?,
			date_of_birth=?, owner_name=?, notes=?, updated_at=?
		WHERE local_id = ?`,
		p.Name, p.Species, p.Breed, p.WeightKg,
		p.DateOfBirth, p.OwnerName, p.Notes, time.Now().UTC().Format(time.RFC3339),
		p.LocalID)
	if err != nil {
		return db.Classify(err, "patient "+p.LocalID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return db.Classify(sql.ErrNoRows, "patient "+p.LocalID)
	}
	return nil
}

// SetServerID records the server-assigned identity. A patient keeps its
// server id for life; reassignment is refused.
func (r *repoSQLite) SetServerID(q db.Queryer, localID, serverID string) error {
	existing, err := r.GetByLocalID(q, localID)
	if err != nil {
		return err
	}
	if existing.ServerID != nil && *existing.ServerID != serverID {
		return apperr.New(apperr.UniqueViolation,
			"patient %s already bound to server id %s", localID, *existing.ServerID)
	}
	_, err = q.Exec(`UPDATE patients SET server_id=?, updated_at=? WHERE local_id=?`,
		serverID, time.Now().UTC().Format(time.RFC3339), localID)
	return db.Classify(err, "patient "+localID)
}

func (r *repoSQLite) SearchByName(q db.Queryer, name string, limit int) ([]*Patient, error) {
	rows, err := q.Query(`
		SELECT `+patientCols+` FROM patients
		WHERE name LIKE ? COLLATE NOCASE
		ORDER BY name, local_id LIMIT ?`, "%"+name+"%", limit)
	if err != nil {
		return nil, db.Classify(err, "patient search")
	}
	defer rows.Close()

	var out []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, db.Classify(err, "patient row")
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, db.Classify(err, "patient rows")
	}
	return out, nil
}
