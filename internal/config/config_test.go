package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DBPath != "vetledger.db" {
		t.Fatalf("db path = %q", cfg.DBPath)
	}
	if cfg.SyncTimeoutSeconds != 30 {
		t.Fatalf("sync timeout = %d", cfg.SyncTimeoutSeconds)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	w := cfg.Weights()
	if w.Name != 0.40 || w.Dose != 0.15 {
		t.Fatalf("weights = %+v", w)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("DB_PATH", "/tmp/clinic.db")
	t.Setenv("NAME_WEIGHT", "0.7")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DBPath != "/tmp/clinic.db" {
		t.Fatalf("db path = %q", cfg.DBPath)
	}
	if cfg.NameWeight != 0.7 {
		t.Fatalf("name weight = %v", cfg.NameWeight)
	}
}

func TestValidateRejectsBadWeights(t *testing.T) {
	t.Setenv("NAME_WEIGHT", "-1")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("negative weight accepted")
	}
}

func TestValidateRejectsZeroTimeout(t *testing.T) {
	t.Setenv("SYNC_TIMEOUT_SECONDS", "0")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("zero timeout accepted")
	}
}
