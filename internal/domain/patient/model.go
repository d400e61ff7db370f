package patient

import (
	"strings"
	"time"
)

// Patient is one animal record. Records are created offline with a local
// UUID; the practice-management server assigns ServerID at first sync.
type Patient struct {
	LocalID     string    `db:"local_id" json:"local_id"`
	ServerID    *string   `db:"server_id" json:"server_id,omitempty"`
	Name        string    `db:"name" json:"name"`
	Species     string    `db:"species" json:"species"`
	Breed       *string   `db:"breed" json:"breed,omitempty"`
	WeightKg    *float64  `db:"weight_kg" json:"weight_kg,omitempty"`
	DateOfBirth *string   `db:"date_of_birth" json:"date_of_birth,omitempty"`
	OwnerName   *string   `db:"owner_name" json:"owner_name,omitempty"`
	Notes       *string   `db:"notes" json:"notes,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Synced reports whether the record is known to the server.
func (p *Patient) Synced() bool { return p.ServerID != nil }

// CanonicalSpecies returns the lower-cased species used by resolution.
func (p *Patient) CanonicalSpecies() string { return strings.ToLower(p.Species) }
