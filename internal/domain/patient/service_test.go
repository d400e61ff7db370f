package patient

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/vetledger/vetledger/internal/platform/apperr"
	"github.com/vetledger/vetledger/internal/platform/db"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	store, err := db.OpenInMemory()
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return NewService(store, NewRepoSQLite(), zerolog.Nop())
}

func TestCreateAssignsLocalID(t *testing.T) {
	s := newTestService(t)

	p := &Patient{Name: "Max", Species: "canine"}
	if err := s.Create(p); err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(p.LocalID) != 36 {
		t.Fatalf("local id %q is not a uuid", p.LocalID)
	}
	got, err := s.Get(p.LocalID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Synced() {
		t.Fatal("new patient reports synced")
	}
	if got.CanonicalSpecies() != "canine" {
		t.Fatalf("canonical species = %q", got.CanonicalSpecies())
	}
}

func TestCreateValidation(t *testing.T) {
	s := newTestService(t)

	if err := s.Create(&Patient{Species: "feline"}); apperr.KindOf(err) != apperr.InvalidInput {
		t.Fatalf("missing name kind = %v", apperr.KindOf(err))
	}
	w := -3.0
	if err := s.Create(&Patient{Name: "Luna", Species: "feline", WeightKg: &w}); apperr.KindOf(err) != apperr.InvalidInput {
		t.Fatalf("negative weight kind = %v", apperr.KindOf(err))
	}
}

func TestGetMissingIsNotFound(t *testing.T) {
	s := newTestService(t)
	_, err := s.Get("nope")
	if apperr.KindOf(err) != apperr.NotFound {
		t.Fatalf("kind = %v, want NotFound", apperr.KindOf(err))
	}
}

func TestBindServerIDOnce(t *testing.T) {
	s := newTestService(t)
	p := &Patient{Name: "Max", Species: "canine"}
	if err := s.Create(p); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := s.BindServerID(p.LocalID, "PIMS-42"); err != nil {
		t.Fatalf("bind: %v", err)
	}
	// Rebinding the same id is a no-op.
	if err := s.BindServerID(p.LocalID, "PIMS-42"); err != nil {
		t.Fatalf("rebind same: %v", err)
	}
	// A different id is refused.
	err := s.BindServerID(p.LocalID, "PIMS-43")
	if apperr.KindOf(err) != apperr.UniqueViolation {
		t.Fatalf("rebind kind = %v, want UniqueViolation", apperr.KindOf(err))
	}
}

func TestSearchByNameCaseInsensitive(t *testing.T) {
	s := newTestService(t)
	for _, name := range []string{"Max", "Maxwell", "Luna"} {
		if err := s.Create(&Patient{Name: name, Species: "canine"}); err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
	}
	out, err := s.SearchByName("max", 0)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("got %d results, want 2", len(out))
	}
}
