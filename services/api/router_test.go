package api

import (
	"testing"
	"time"

	"gorm.io/gorm"
)

func TestNewAppliesConfigDefaults(t *testing.T) {
	store := &Store{ORM: &gorm.DB{}}
	authority := newTestAuthority(t, NewMemoryDenylist())

	a, err := New(store, authority, Config{ArtifactBucket: "artifacts"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if a.config.MaxUploadBytes != defaultMaxUpload {
		t.Errorf("MaxUploadBytes = %d, want %d", a.config.MaxUploadBytes, defaultMaxUpload)
	}
	if a.config.ReputationIncrement != defaultReputation {
		t.Errorf("ReputationIncrement = %d, want %d", a.config.ReputationIncrement, defaultReputation)
	}
	if a.config.SessionTTL != defaultSessionTTL {
		t.Errorf("SessionTTL = %s, want %s", a.config.SessionTTL, defaultSessionTTL)
	}
}

func TestNewKeepsExplicitConfig(t *testing.T) {
	store := &Store{ORM: &gorm.DB{}}
	authority := newTestAuthority(t, NewMemoryDenylist())

	cfg := Config{
		ArtifactBucket:      "artifacts",
		MaxUploadBytes:      1 << 20,
		ReputationIncrement: 25,
		SessionTTL:          time.Hour,
	}
	a, err := New(store, authority, cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if a.config.MaxUploadBytes != 1<<20 || a.config.ReputationIncrement != 25 || a.config.SessionTTL != time.Hour {
		t.Fatalf("explicit config was overridden: %+v", a.config)
	}
}

func TestNewValidatesDependencies(t *testing.T) {
	authority := newTestAuthority(t, NewMemoryDenylist())

	if _, err := New(nil, authority, Config{ArtifactBucket: "b"}); err == nil {
		t.Fatal("New accepted a nil store")
	}
	if _, err := New(&Store{}, authority, Config{ArtifactBucket: "b"}); err == nil {
		t.Fatal("New accepted a store without an ORM handle")
	}
	if _, err := New(&Store{ORM: &gorm.DB{}}, nil, Config{ArtifactBucket: "b"}); err == nil {
		t.Fatal("New accepted a nil authority")
	}
}
