package useractor

import (
	"path/filepath"
	"testing"

	"github.com/weblinq/gateway/internal/artifact"
	"github.com/weblinq/gateway/internal/clock"
	"github.com/weblinq/gateway/internal/config"
)

func TestManagerForCachesActorPerUser(t *testing.T) {
	cfg := &config.Config{UserDBDir: t.TempDir(), S3Bucket: "artifacts"}
	m := NewManager(cfg, nil, clock.Real{})

	a1 := m.For("alice")
	a2 := m.For("alice")
	if a1 != a2 {
		t.Fatal("expected the same cached Actor for repeat calls")
	}

	b := m.For("bob")
	if a1 == b {
		t.Fatal("expected distinct Actors for distinct users")
	}
}

func TestManagerForDegradesWhenStoreNil(t *testing.T) {
	cfg := &config.Config{UserDBDir: t.TempDir()}
	m := NewManager(cfg, nil, clock.Real{})

	a := m.For("alice")
	if !a.disabled() {
		t.Fatal("expected a disabled Actor when ArtifactStore is nil")
	}
}

func TestManagerForOpensRealSQLiteFileAndClose(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{
		UserDBDir:   dir,
		S3Bucket:    "artifacts",
		S3Endpoint:  "localhost:9000",
		S3AccessKey: "minioadmin",
		S3SecretKey: "minioadmin",
	}
	store, err := artifact.New(cfg)
	if err != nil {
		t.Fatalf("artifact.New: %v", err)
	}
	m := NewManager(cfg, store, clock.Real{})

	a := m.For("alice")
	if a.disabled() {
		t.Fatalf("expected enabled Actor, openErr=%v", a.openErr)
	}
	if _, err := filepath.Abs(filepath.Join(dir, "alice.db")); err != nil {
		t.Fatalf("filepath.Abs: %v", err)
	}

	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
